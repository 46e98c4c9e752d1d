// Package wrappers provides environments that wrap other environments
// to modify or record their behaviour.
package wrappers

import (
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"os"
	"path/filepath"

	"github.com/fogleman/gg"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/gomarl/environment"
	"github.com/samuelfneumann/gomarl/timestep"
)

// Drawer is implemented by environments that can render their current
// state onto a drawing context.
type Drawer interface {
	Draw(dc *gg.Context)
}

// RecorderOption modifies how a Recorder captures episodes
type RecorderOption func(*Recorder)

// WithFrameSize sets the width and height of recorded frames in
// pixels
func WithFrameSize(width, height int) RecorderOption {
	return func(r *Recorder) {
		r.width, r.height = width, height
	}
}

// WithRecordEvery records only every n-th episode, starting with the
// first
func WithRecordEvery(n int) RecorderOption {
	return func(r *Recorder) {
		r.every = n
	}
}

// WithFrameDelay sets the delay between frames in hundredths of a
// second
func WithFrameDelay(delay int) RecorderOption {
	return func(r *Recorder) {
		r.delay = delay
	}
}

// Recorder wraps an environment and records episodes as animated GIF
// files, one file per recorded episode, rendering each timestep with
// the wrapped environment's Draw method. Episodes that are reset
// before ending are discarded.
type Recorder struct {
	environment.Environment
	drawer Drawer

	dir           string
	width, height int
	every         int
	delay         int

	episode   int
	recording bool
	frames    []*image.Paletted
}

// NewRecorder wraps e, writing one GIF per recorded episode into dir.
// The wrapped environment must know how to draw itself.
func NewRecorder(e environment.Environment, dir string,
	opts ...RecorderOption) (environment.Environment, error) {
	drawer, ok := e.(Drawer)
	if !ok {
		return nil, fmt.Errorf("newrecorder: environment cannot " +
			"draw itself")
	}
	if dir == "" {
		return nil, fmt.Errorf("newrecorder: no output directory " +
			"given")
	}

	r := &Recorder{
		Environment: e,
		drawer:      drawer,
		dir:         dir,
		width:       256,
		height:      256,
		every:       1,
		delay:       5,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.width < 1 || r.height < 1 {
		return nil, fmt.Errorf("newrecorder: illegal frame size "+
			"\n\thave(%vx%v)", r.width, r.height)
	}
	if r.every < 1 {
		return nil, fmt.Errorf("newrecorder: illegal recording "+
			"period \n\thave(%v)", r.every)
	}

	if _, ok := e.(environment.StateReporter); ok {
		return &stateRecorder{r}, nil
	}
	return r, nil
}

// Reset resets the wrapped environment and begins recording if the
// new episode is due to be recorded
func (r *Recorder) Reset() timestep.TimeStep {
	step := r.Environment.Reset()

	r.episode++
	r.frames = r.frames[:0]
	r.recording = (r.episode-1)%r.every == 0
	if r.recording {
		r.capture()
	}
	return step
}

// Step takes one step in the wrapped environment, capturing a frame
// when recording. When a recorded episode ends, the episode's GIF is
// written out.
func (r *Recorder) Step(actions map[string]*mat.VecDense) (
	timestep.TimeStep, bool, error) {
	step, last, err := r.Environment.Step(actions)
	if err != nil {
		return step, last, err
	}

	if r.recording {
		r.capture()
		if last {
			r.recording = false
			if err := r.flush(); err != nil {
				return step, last, fmt.Errorf("step: %v", err)
			}
		}
	}
	return step, last, nil
}

// capture renders the wrapped environment's current state into a new
// frame
func (r *Recorder) capture() {
	dc := gg.NewContext(r.width, r.height)
	r.drawer.Draw(dc)

	img := dc.Image()
	frame := image.NewPaletted(img.Bounds(), palette.Plan9)
	draw.FloydSteinberg.Draw(frame, img.Bounds(), img, image.Point{})
	r.frames = append(r.frames, frame)
}

// flush encodes the captured frames as a GIF named after the episode
func (r *Recorder) flush() error {
	if err := os.MkdirAll(r.dir, 0755); err != nil {
		return fmt.Errorf("flush: %v", err)
	}

	delays := make([]int, len(r.frames))
	for i := range delays {
		delays[i] = r.delay
	}

	path := filepath.Join(r.dir, fmt.Sprintf("episode_%d.gif",
		r.episode))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("flush: %v", err)
	}
	defer f.Close()

	anim := &gif.GIF{Image: r.frames, Delay: delays}
	if err := gif.EncodeAll(f, anim); err != nil {
		return fmt.Errorf("flush: could not encode episode: %v", err)
	}
	return nil
}

// stateRecorder records an environment that also reports a global
// environment state
type stateRecorder struct {
	*Recorder
}

// StateSpec returns the wrapped environment's global state
// specification
func (s *stateRecorder) StateSpec() environment.Spec {
	return s.Environment.(environment.StateReporter).StateSpec()
}
