package main

import (
	"fmt"
	"time"

	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/environment/box2d/spread"
	"github.com/samuelfneumann/gomarl/launcher"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/solver"
	"github.com/samuelfneumann/gomarl/system"
	"github.com/samuelfneumann/gomarl/system/architecture"
	"github.com/samuelfneumann/gomarl/system/mad4pg"
)

func main() {
	var seed uint64 = 192382

	// Value distribution support shared by every critic
	support := network.Support{VMin: -10.0, VMax: 50.0, NumAtoms: 51}

	policySolver, err := solver.NewDefaultAdam(0.0001, 256)
	if err != nil {
		panic(err)
	}
	criticSolver, err := solver.NewDefaultAdam(0.0005, 256)
	if err != nil {
		panic(err)
	}

	// Create the system
	conf := mad4pg.DefaultConfig()
	conf.Environment = func(seed uint64) (environment.Environment,
		error) {
		e, _, err := spread.New(3, 0.99, seed)
		return e, err
	}
	conf.Networks = mad4pg.MakeDefaultNetworks([]int{256, 256},
		[]int{512, 512, 256}, support, architecture.Decentralised)
	conf.PolicySolver = policySolver
	conf.CriticSolver = criticSolver
	conf.Seed = seed

	sys, err := mad4pg.New(conf)
	if err != nil {
		panic(err)
	}
	program, err := sys.Build()
	if err != nil {
		panic(err)
	}

	// Run every node until stopped
	launched := launcher.Launch(program)

	start := time.Now()
	time.Sleep(30 * time.Second)
	if err := launched.Stop(); err != nil {
		panic(err)
	}
	fmt.Println("Trained for:", time.Since(start))

	count := program.Group("counter")[0].Dereference().(*system.ServiceNode)
	fmt.Println(count.Value().(*counter.Counter).Get())
}
