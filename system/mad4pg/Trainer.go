package mad4pg

import (
	"fmt"
	"sync"

	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/samuelfneumann/gomarl/counter"
	"github.com/samuelfneumann/gomarl/loggers"
	"github.com/samuelfneumann/gomarl/network"
	"github.com/samuelfneumann/gomarl/replay"
	"github.com/samuelfneumann/gomarl/replay/adders"
	"github.com/samuelfneumann/gomarl/system/architecture"
)

// trainKey holds the networks, virtual machines, and solvers of one
// network key. Critic and policy updates run on separate graphs: the
// critic trains against a placeholder holding the projected bootstrap
// distribution, while the policy trains through a clone of the online
// critic whose action input is the policy's output, so that the
// critic's value gradient flows back into the policy weights.
type trainKey struct {
	agents []string

	critic        network.NeuralNet
	criticTarget  *G.Node
	criticLossVal G.Value
	criticVM      G.VM
	criticSolver  G.Solver

	policy        network.NeuralNet
	criticClone   network.NeuralNet
	obsInput      *G.Node
	obsWidth      int
	actionsBefore *G.Node // replayed neighbour actions, nil when the
	actionsAfter  *G.Node // architecture gives them zero width
	policyLossVal G.Value
	policyVM      G.VM
	policySolver  G.Solver

	targetPolicy   network.NeuralNet
	targetPolicyVM G.VM

	targetCritic   network.NeuralNet
	targetProbsVal G.Value
	targetCriticVM G.VM

	support network.Support
}

// trainer implements MAD4PG critic and policy updates on replayed
// n-step transitions for every feedforward architecture. The
// architecture decides what each critic conditions on and which
// replayed actions surround the policy output in the policy loss.
type trainer struct {
	mu sync.Mutex

	arch  architecture.Type
	dims  adders.Dims
	batch int

	keys  []string
	byKey map[string]*trainKey

	table *replay.Table

	steps              int
	targetUpdatePeriod int

	count    *counter.Counter
	logger   loggers.Logger
	logEvery int
}

func newTrainer(arch architecture.Type, cfg Config, nets *Networks,
	dims adders.Dims, table *replay.Table, count *counter.Counter,
	logger loggers.Logger) (*trainer, error) {
	if nets == nil || nets.NewPolicy == nil || nets.NewCritic == nil {
		return nil, fmt.Errorf("newtrainer: no network constructors " +
			"given")
	}
	if nets.Recurrent {
		return nil, fmt.Errorf("newtrainer: policies are recurrent")
	}
	if table == nil {
		return nil, fmt.Errorf("newtrainer: no replay table given")
	}
	if count == nil {
		return nil, fmt.Errorf("newtrainer: no counter given")
	}
	if cfg.PolicySolver == nil || cfg.CriticSolver == nil {
		return nil, fmt.Errorf("newtrainer: no solvers given")
	}
	if err := arch.Validate(); err != nil {
		return nil, fmt.Errorf("newtrainer: %v", err)
	}
	if cfg.SharedWeights && arch != architecture.Decentralised {
		return nil, fmt.Errorf("newtrainer: %v critics are "+
			"agent-specific and cannot share weights", arch)
	}
	if err := architecture.ValidateShared(dims,
		cfg.SharedWeights); err != nil {
		return nil, fmt.Errorf("newtrainer: %v", err)
	}
	if arch == architecture.StateBasedQValueCritic && dims.StateDim < 1 {
		return nil, fmt.Errorf("newtrainer: state-based critics " +
			"require an environment with global state")
	}
	if cfg.TargetUpdatePeriod < 1 {
		return nil, fmt.Errorf("newtrainer: target update period "+
			"must be positive \n\twant(k > 0) \n\thave(%v)",
			cfg.TargetUpdatePeriod)
	}

	t := &trainer{
		arch:               arch,
		dims:               dims,
		batch:              cfg.BatchSize,
		keys:               architecture.NetworkKeys(dims.Agents, cfg.SharedWeights),
		byKey:              make(map[string]*trainKey),
		table:              table,
		targetUpdatePeriod: cfg.TargetUpdatePeriod,
		count:              count,
		logger:             logger,
		logEvery:           cfg.LogEvery,
	}

	for _, key := range t.keys {
		var agents []string
		for _, agent := range dims.Agents {
			if architecture.NetworkKey(agent,
				cfg.SharedWeights) == key {
				agents = append(agents, agent)
			}
		}

		k, err := t.buildKey(key, agents, cfg, nets)
		if err != nil {
			return nil, fmt.Errorf("newtrainer: %v", err)
		}
		t.byKey[key] = k
	}

	return t, nil
}

// buildKey constructs the networks and training graphs of one network
// key. Agents sharing the key agree in observation and action
// dimension, so the first agent stands in for all of them when sizing
// networks.
func (t *trainer) buildKey(key string, agents []string, cfg Config,
	nets *Networks) (*trainKey, error) {
	rows := cfg.BatchSize
	rep := agents[0]
	k := &trainKey{agents: agents}

	// Critic training graph
	critic, err := nets.NewCritic(key, rows)
	if err != nil {
		return nil, err
	}
	dist, ok := critic.(network.Distributional)
	if !ok {
		return nil, fmt.Errorf("critic for key %v does not predict "+
			"a value distribution", key)
	}
	k.critic = critic
	k.support = dist.Support()

	features, err := architecture.CriticFeatures(t.arch, t.dims, rep)
	if err != nil {
		return nil, err
	}
	if critic.Features() != features {
		return nil, fmt.Errorf("critic input width does not match "+
			"the architecture \n\twant(%v) \n\thave(%v)", features,
			critic.Features())
	}

	cg := critic.Graph()
	k.criticTarget = G.NewMatrix(
		cg,
		tensor.Float64,
		G.WithShape(rows, k.support.NumAtoms),
		G.WithName("projectedTarget"),
	)
	criticLoss := network.CrossEntropy(critic.Prediction()[0],
		k.criticTarget)
	G.Read(criticLoss, &k.criticLossVal)
	if _, err := G.Grad(criticLoss, critic.Learnables()...); err != nil {
		return nil, fmt.Errorf("could not compute critic gradient: %v",
			err)
	}
	k.criticVM = G.NewTapeMachine(cg,
		G.BindDualValues(critic.Learnables()...))
	k.criticSolver = cfg.CriticSolver.Config.Create()

	// Policy training graph
	policy, err := nets.NewPolicy(key, rows, 1)
	if err != nil {
		return nil, err
	}
	k.policy = policy

	pg := policy.Graph()
	k.obsWidth, err = architecture.ObsFeatures(t.arch, t.dims, rep)
	if err != nil {
		return nil, err
	}
	k.obsInput = G.NewMatrix(
		pg,
		tensor.Float64,
		G.WithShape(rows, k.obsWidth),
		G.WithName("criticObs"),
	)

	// Widths of the replayed actions before and after this key's
	// agent in the joint action ordering
	beforeWidth, afterWidth := 0, 0
	if t.arch != architecture.Decentralised {
		seen := false
		for _, a := range t.dims.Agents {
			if a == rep {
				seen = true
				continue
			}
			if seen {
				afterWidth += t.dims.ActionDims[a]
			} else {
				beforeWidth += t.dims.ActionDims[a]
			}
		}
	}

	inputs := []*G.Node{k.obsInput}
	if beforeWidth > 0 {
		k.actionsBefore = G.NewMatrix(
			pg,
			tensor.Float64,
			G.WithShape(rows, beforeWidth),
			G.WithName("actionsBefore"),
		)
		inputs = append(inputs, k.actionsBefore)
	}
	inputs = append(inputs, policy.Prediction()[0])
	if afterWidth > 0 {
		k.actionsAfter = G.NewMatrix(
			pg,
			tensor.Float64,
			G.WithShape(rows, afterWidth),
			G.WithName("actionsAfter"),
		)
		inputs = append(inputs, k.actionsAfter)
	}

	k.criticClone, err = network.CloneWithInputsTo(critic, 1, inputs,
		pg)
	if err != nil {
		return nil, err
	}

	expectation := network.Expectation(k.criticClone.Prediction()[0],
		k.support)
	policyLoss := G.Must(G.Neg(G.Must(G.Mean(expectation))))
	G.Read(policyLoss, &k.policyLossVal)
	if _, err := G.Grad(policyLoss, policy.Learnables()...); err != nil {
		return nil, fmt.Errorf("could not compute policy gradient: %v",
			err)
	}
	k.policyVM = G.NewTapeMachine(pg,
		G.BindDualValues(policy.Learnables()...))
	k.policySolver = cfg.PolicySolver.Config.Create()

	// Target networks
	k.targetPolicy, err = nets.NewPolicy(key, rows, 1)
	if err != nil {
		return nil, err
	}
	if err := k.targetPolicy.Set(policy); err != nil {
		return nil, err
	}
	k.targetPolicyVM = G.NewTapeMachine(k.targetPolicy.Graph())

	k.targetCritic, err = nets.NewCritic(key, rows)
	if err != nil {
		return nil, err
	}
	if err := k.targetCritic.Set(critic); err != nil {
		return nil, err
	}
	targetProbs := network.Probabilities(k.targetCritic.Prediction()[0])
	G.Read(targetProbs, &k.targetProbsVal)
	k.targetCriticVM = G.NewTapeMachine(k.targetCritic.Graph())

	return k, nil
}

// Step samples a batch of transitions and updates every critic,
// policy, and, periodically, target network. Sampling errors are
// returned unwrapped so that callers can recognise an underfilled
// table and retry.
func (t *trainer) Step() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	batch, err := t.table.Sample()
	if err != nil {
		return err
	}

	// Each agent's target action on the next observations
	targetActions := make(map[string][]float64, len(t.dims.Agents))
	for _, key := range t.keys {
		k := t.byKey[key]
		for _, agent := range k.agents {
			if err := k.targetPolicy.SetInput(
				batch[replay.NextObsKey(agent)]); err != nil {
				return fmt.Errorf("step: %v", err)
			}
			if err := k.targetPolicyVM.RunAll(); err != nil {
				return fmt.Errorf("step: %v", err)
			}
			targetActions[agent] = copyValue(k.targetPolicy.Output()[0])
			k.targetPolicyVM.Reset()
		}
	}

	var criticLoss, policyLoss float64
	updates := 0
	for _, key := range t.keys {
		k := t.byKey[key]
		for _, agent := range k.agents {
			closs, err := t.criticStep(k, agent, batch, targetActions)
			if err != nil {
				return fmt.Errorf("step: %v", err)
			}
			ploss, err := t.policyStep(k, agent, batch)
			if err != nil {
				return fmt.Errorf("step: %v", err)
			}
			criticLoss += closs
			policyLoss += ploss
			updates++
		}
	}

	t.steps++
	if t.steps%t.targetUpdatePeriod == 0 {
		for _, key := range t.keys {
			k := t.byKey[key]
			if err := k.targetCritic.Set(k.critic); err != nil {
				return fmt.Errorf("step: %v", err)
			}
			if err := k.targetPolicy.Set(k.policy); err != nil {
				return fmt.Errorf("step: %v", err)
			}
		}
	}

	values := t.count.Increment(
		map[string]float64{counter.TrainerSteps: 1},
	)
	if t.logger != nil && t.steps%t.logEvery == 0 {
		values["critic_loss"] = criticLoss / float64(updates)
		values["policy_loss"] = policyLoss / float64(updates)
		if err := t.logger.Write(values); err != nil {
			return fmt.Errorf("step: %v", err)
		}
	}
	return nil
}

// criticStep updates agent's critic towards the projection of the
// bootstrap distribution computed by the target networks.
func (t *trainer) criticStep(k *trainKey, agent string,
	batch replay.Batch,
	targetActions map[string][]float64) (float64, error) {
	rows := t.batch
	atoms := k.support.NumAtoms

	targetInput, err := architecture.TargetCriticInput(t.arch, t.dims,
		agent, batch, rows, targetActions)
	if err != nil {
		return 0, err
	}
	if err := k.targetCritic.SetInput(targetInput); err != nil {
		return 0, err
	}
	if err := k.targetCriticVM.RunAll(); err != nil {
		return 0, err
	}
	flat := copyValue(k.targetProbsVal)
	k.targetCriticVM.Reset()

	probs := make([][]float64, rows)
	for b := 0; b < rows; b++ {
		probs[b] = flat[b*atoms : (b+1)*atoms]
	}
	projected, err := k.support.Project(batch[replay.RewardKey(agent)],
		batch[replay.DiscountKey(agent)], probs)
	if err != nil {
		return 0, err
	}
	target := make([]float64, 0, rows*atoms)
	for _, row := range projected {
		target = append(target, row...)
	}

	input, err := architecture.CriticInput(t.arch, t.dims, agent, batch,
		rows)
	if err != nil {
		return 0, err
	}
	if err := k.critic.SetInput(input); err != nil {
		return 0, err
	}
	if err := G.Let(k.criticTarget, tensor.New(
		tensor.WithBacking(target),
		tensor.WithShape(rows, atoms),
	)); err != nil {
		return 0, err
	}

	if err := k.criticVM.RunAll(); err != nil {
		return 0, err
	}
	if err := k.criticSolver.Step(k.critic.Model()); err != nil {
		return 0, err
	}
	loss := k.criticLossVal.Data().(float64)
	k.criticVM.Reset()

	return loss, nil
}

// policyStep updates agent's policy to maximise the expected value
// that the online critic assigns to the policy's actions.
func (t *trainer) policyStep(k *trainKey, agent string,
	batch replay.Batch) (float64, error) {
	rows := t.batch

	// The clone's weights track the online critic
	if err := k.criticClone.Set(k.critic); err != nil {
		return 0, err
	}

	if err := k.policy.SetInput(batch[replay.ObsKey(agent)]); err != nil {
		return 0, err
	}
	obs, err := architecture.CriticObs(t.arch, t.dims, agent, batch,
		rows, false)
	if err != nil {
		return 0, err
	}
	if err := G.Let(k.obsInput, tensor.New(
		tensor.WithBacking(obs),
		tensor.WithShape(rows, k.obsWidth),
	)); err != nil {
		return 0, err
	}

	if k.actionsBefore != nil || k.actionsAfter != nil {
		before, after, beforeWidth, afterWidth, err :=
			architecture.SplitActions(t.arch, t.dims, agent, batch,
				rows)
		if err != nil {
			return 0, err
		}
		if k.actionsBefore != nil {
			if err := G.Let(k.actionsBefore, tensor.New(
				tensor.WithBacking(before),
				tensor.WithShape(rows, beforeWidth),
			)); err != nil {
				return 0, err
			}
		}
		if k.actionsAfter != nil {
			if err := G.Let(k.actionsAfter, tensor.New(
				tensor.WithBacking(after),
				tensor.WithShape(rows, afterWidth),
			)); err != nil {
				return 0, err
			}
		}
	}

	if err := k.policyVM.RunAll(); err != nil {
		return 0, err
	}
	if err := k.policySolver.Step(k.policy.Model()); err != nil {
		return 0, err
	}
	loss := k.policyLossVal.Data().(float64)
	k.policyVM.Reset()

	return loss, nil
}

// CopyPoliciesTo copies the online policy weights into nets, keyed the
// same way as the trainer's networks.
func (t *trainer) CopyPoliciesTo(
	nets map[string]network.NeuralNet) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for key, dst := range nets {
		k, ok := t.byKey[key]
		if !ok {
			return fmt.Errorf("copypoliciesto: no networks stored "+
				"under key %v", key)
		}
		if err := dst.Set(k.policy); err != nil {
			return fmt.Errorf("copypoliciesto: %v", err)
		}
	}
	return nil
}

// Trainer learns decentralised critics: each agent's critic conditions
// on that agent's own observations and actions only.
type Trainer struct {
	*trainer
}

// NewTrainer creates a trainer with decentralised critics, sampling
// from table and logging through logger every cfg.LogEvery steps.
func NewTrainer(cfg Config, nets *Networks, dims adders.Dims,
	table *replay.Table, count *counter.Counter,
	logger loggers.Logger) (*Trainer, error) {
	t, err := newTrainer(architecture.Decentralised, cfg, nets, dims,
		table, count, logger)
	if err != nil {
		return nil, err
	}
	return &Trainer{trainer: t}, nil
}
