// Package replay drives a simulation through the gateway from a YAML script,
// the way a host would.
package replay

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"github.com/beyawnko/Majestik-World/internal/sim"
	"gopkg.in/yaml.v3"
)

// Script is a recorded host session: an init config and the input frames
// submitted after it.
//
//	name: walk
//	config: {seed: 1}
//	steps:
//	  - intents: [{move: {entity: 1, dx: 0, dy: 1}}]
//	    repeat: 10
//	  - {}                        # one idle tick
type Script struct {
	Name   string    `yaml:"name"`
	Config yaml.Node `yaml:"config"`
	Steps  []Step    `yaml:"steps"`
}

// Step is one frame, submitted Repeat times (once when zero).
type Step struct {
	Intents []Intent `yaml:"intents"`
	Repeat  int      `yaml:"repeat"`
}

// Intent holds exactly one of its fields.
type Intent struct {
	Spawn      *Spawn      `yaml:"spawn"`
	Despawn    *EntityRef  `yaml:"despawn"`
	Move       *Move       `yaml:"move"`
	EditRegion *EditRegion `yaml:"edit_region"`
	SetData    *SetData    `yaml:"set_data"`
}

type Spawn struct {
	X       int32  `yaml:"x"`
	Y       int32  `yaml:"y"`
	Heading uint8  `yaml:"heading"`
	Tag     string `yaml:"tag"`
	Data    string `yaml:"data"`
}

type EntityRef struct {
	Entity uint64 `yaml:"entity"`
}

type Move struct {
	Entity uint64 `yaml:"entity"`
	DX     int8   `yaml:"dx"`
	DY     int8   `yaml:"dy"`
}

type EditRegion struct {
	X    int32  `yaml:"x"`
	Y    int32  `yaml:"y"`
	Data string `yaml:"data"` // empty clears the region
}

type SetData struct {
	Entity uint64 `yaml:"entity"`
	Data   string `yaml:"data"`
}

// Load reads and parses a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script %s: %w", path, err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("script %s: %w", path, err)
	}
	return s, nil
}

// Parse decodes a script. Unknown keys are errors.
func Parse(data []byte) (*Script, error) {
	s := &Script{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty script")
		}
		return nil, fmt.Errorf("parse script: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Script) validate() error {
	if s.Config.Kind == 0 {
		return errors.New("script has no config")
	}
	for i, st := range s.Steps {
		if st.Repeat < 0 {
			return fmt.Errorf("steps[%d]: negative repeat", i)
		}
		if len(st.Intents) > sim.MaxIntentsPerFrame {
			return fmt.Errorf("steps[%d]: %d intents, frame limit is %d", i, len(st.Intents), sim.MaxIntentsPerFrame)
		}
		for j, in := range st.Intents {
			if n := in.count(); n != 1 {
				return fmt.Errorf("steps[%d].intents[%d]: %d kinds set, want 1", i, j, n)
			}
		}
	}
	return nil
}

// ConfigBlob returns the init blob embedded in the script.
func (s *Script) ConfigBlob() ([]byte, error) {
	out, err := yaml.Marshal(&s.Config)
	if err != nil {
		return nil, fmt.Errorf("encode script config: %w", err)
	}
	return out, nil
}

// TotalTicks is the number of frames the script submits.
func (s *Script) TotalTicks() int {
	n := 0
	for _, st := range s.Steps {
		n += st.times()
	}
	return n
}

func (st Step) times() int {
	if st.Repeat == 0 {
		return 1
	}
	return st.Repeat
}

// Frame encodes the step's intents as an input frame.
func (st Step) Frame() []byte {
	f := sim.NewFrame()
	for _, in := range st.Intents {
		switch {
		case in.Spawn != nil:
			f.Spawn(in.Spawn.X, in.Spawn.Y, in.Spawn.Heading, in.Spawn.Tag, []byte(in.Spawn.Data))
		case in.Despawn != nil:
			f.Despawn(ecs.EntityID(in.Despawn.Entity))
		case in.Move != nil:
			f.Move(ecs.EntityID(in.Move.Entity), in.Move.DX, in.Move.DY)
		case in.EditRegion != nil:
			f.EditRegion(in.EditRegion.X, in.EditRegion.Y, []byte(in.EditRegion.Data))
		case in.SetData != nil:
			f.SetData(ecs.EntityID(in.SetData.Entity), []byte(in.SetData.Data))
		}
	}
	return f.Bytes()
}

func (in Intent) count() int {
	n := 0
	for _, set := range []bool{in.Spawn != nil, in.Despawn != nil, in.Move != nil, in.EditRegion != nil, in.SetData != nil} {
		if set {
			n++
		}
	}
	return n
}
