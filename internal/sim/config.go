package sim

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
	"unicode/utf8"

	"github.com/beyawnko/Majestik-World/internal/core/ecs"
	"gopkg.in/yaml.v3"
)

// Limits enforced on configs and input frames.
const (
	MaxMapSizeLg       = 16
	MaxTagLen          = 32
	MaxEntityData      = 1024
	MaxRegionPayload   = 4096
	MaxIntentsPerFrame = 4096
	MaxTickMillis      = 10_000
	MaxRuleBudget      = 60_000
	DefaultAvatarTag   = "avatar"
)

// Game modes. The core behaves the same in every mode; the value is carried
// so hosts can tell a dedicated server world from a local one.
const (
	GameModeServer       = "server"
	GameModeClient       = "client"
	GameModeSingleplayer = "singleplayer"
)

// MapSizeLg is the base-two logarithm of the world size in regions.
type MapSizeLg struct {
	X uint32 `yaml:"x"`
	Y uint32 `yaml:"y"`
}

// EntityDef describes one entity present when the world is created.
// ID and Version are only set by saved configs.
type EntityDef struct {
	ID      uint64 `yaml:"id,omitempty"`
	Version uint32 `yaml:"version,omitempty"`
	X       int32  `yaml:"x"`
	Y       int32  `yaml:"y"`
	Heading uint8  `yaml:"heading,omitempty"`
	Tag     string `yaml:"tag"`
	Wander  bool   `yaml:"wander,omitempty"`
	Data    string `yaml:"data,omitempty"` // base64
}

// RegionDef describes one initial region payload.
type RegionDef struct {
	X    int32  `yaml:"x"`
	Y    int32  `yaml:"y"`
	Data string `yaml:"data"` // base64
}

// Config is the parsed init blob. The blob is YAML, so JSON flow style such
// as `{seed: 1}` is accepted as well.
type Config struct {
	Seed                int64        `yaml:"seed"`
	GameMode            string       `yaml:"game_mode"`
	MapSizeLg           MapSizeLg    `yaml:"map_size_lg"`
	RegionSize          int32        `yaml:"region_size"`
	DayCycleCoefficient float64      `yaml:"day_cycle_coefficient"`
	TickMillis          uint32       `yaml:"tick_millis"`
	MoveStep            int32        `yaml:"move_step"`
	Entities            *[]EntityDef `yaml:"entities,omitempty"`
	Regions             []RegionDef  `yaml:"regions,omitempty"`
	Rules               string       `yaml:"rules,omitempty"`
	RuleBudgetMillis    uint32       `yaml:"rule_budget_millis,omitempty"` // 0: one timestep
	StartTick           uint64       `yaml:"start_tick,omitempty"`
	NextEntityID        uint64       `yaml:"next_entity_id,omitempty"`
}

func defaultConfig() Config {
	return Config{
		GameMode:            GameModeServer,
		MapSizeLg:           MapSizeLg{X: 1, Y: 1},
		RegionSize:          32_000,
		DayCycleCoefficient: 1.0,
		TickMillis:          16,
		MoveStep:            1000,
	}
}

// ParseConfig decodes and validates an init blob. Unknown keys are rejected
// so a typo never silently falls back to a default.
func ParseConfig(blob []byte) (Config, error) {
	if len(bytes.TrimSpace(blob)) == 0 {
		return Config{}, fmt.Errorf("%w: empty config", ErrConfigInvalid)
	}
	cfg := defaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("%w: empty config", ErrConfigInvalid)
		}
		return Config{}, fmt.Errorf("%w: parse: %v", ErrConfigInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks domain invariants.
func (c *Config) Validate() error {
	if c.MapSizeLg.X > MaxMapSizeLg || c.MapSizeLg.Y > MaxMapSizeLg {
		return fmt.Errorf("%w: map_size_lg (%d,%d) outside 0..%d", ErrConfigInvalid, c.MapSizeLg.X, c.MapSizeLg.Y, MaxMapSizeLg)
	}
	if c.RegionSize <= 0 {
		return fmt.Errorf("%w: region_size must be positive", ErrConfigInvalid)
	}
	if int64(c.RegionsX())*int64(c.RegionSize) > math.MaxInt32 ||
		int64(c.RegionsY())*int64(c.RegionSize) > math.MaxInt32 {
		return fmt.Errorf("%w: world extent overflows int32", ErrConfigInvalid)
	}
	if math.IsNaN(c.DayCycleCoefficient) || math.IsInf(c.DayCycleCoefficient, 0) || c.DayCycleCoefficient <= 0 {
		return fmt.Errorf("%w: day_cycle_coefficient must be finite and positive", ErrConfigInvalid)
	}
	if c.TickMillis == 0 || c.TickMillis > MaxTickMillis {
		return fmt.Errorf("%w: tick_millis %d outside 1..%d", ErrConfigInvalid, c.TickMillis, MaxTickMillis)
	}
	if c.MoveStep <= 0 || c.MoveStep > c.RegionSize {
		return fmt.Errorf("%w: move_step must be in 1..region_size", ErrConfigInvalid)
	}
	switch c.GameMode {
	case GameModeServer, GameModeClient, GameModeSingleplayer:
	default:
		return fmt.Errorf("%w: game_mode %q", ErrConfigInvalid, c.GameMode)
	}
	if c.RuleBudgetMillis > MaxRuleBudget {
		return fmt.Errorf("%w: rule_budget_millis %d above %d", ErrConfigInvalid, c.RuleBudgetMillis, MaxRuleBudget)
	}

	if c.StartTick == math.MaxUint64 {
		return fmt.Errorf("%w: start_tick %d leaves no tick to run", ErrConfigInvalid, c.StartTick)
	}
	if c.NextEntityID > uint64(ecs.MaxEntityID) {
		return fmt.Errorf("%w: next_entity_id %d above %d", ErrConfigInvalid, c.NextEntityID, ecs.MaxEntityID)
	}

	seen := make(map[uint64]struct{})
	if c.Entities != nil {
		for i, e := range *c.Entities {
			if e.ID > uint64(ecs.MaxEntityID) {
				return fmt.Errorf("%w: entities[%d]: id %d above %d", ErrConfigInvalid, i, e.ID, ecs.MaxEntityID)
			}
			if e.ID != 0 {
				if _, dup := seen[e.ID]; dup {
					return fmt.Errorf("%w: entity %d listed twice", ErrConfigInvalid, e.ID)
				}
				seen[e.ID] = struct{}{}
			}
			if !c.InBounds(e.X, e.Y) {
				return fmt.Errorf("%w: entities[%d] at (%d,%d) outside world", ErrConfigInvalid, i, e.X, e.Y)
			}
			if err := validateTag(e.Tag); err != nil {
				return fmt.Errorf("%w: entities[%d]: %v", ErrConfigInvalid, i, err)
			}
			if e.Heading >= headingCount {
				return fmt.Errorf("%w: entities[%d]: heading %d", ErrConfigInvalid, i, e.Heading)
			}
			data, err := decodeData(e.Data)
			if err != nil || len(data) > MaxEntityData {
				return fmt.Errorf("%w: entities[%d]: bad data", ErrConfigInvalid, i)
			}
		}
	}
	regions := make(map[RegionCoord]struct{})
	for i, r := range c.Regions {
		coord := RegionCoord{X: r.X, Y: r.Y}
		if !c.RegionInBounds(coord) {
			return fmt.Errorf("%w: regions[%d] (%d,%d) outside map", ErrConfigInvalid, i, r.X, r.Y)
		}
		if _, dup := regions[coord]; dup {
			return fmt.Errorf("%w: region (%d,%d) listed twice", ErrConfigInvalid, r.X, r.Y)
		}
		regions[coord] = struct{}{}
		data, err := decodeData(r.Data)
		if err != nil || len(data) > MaxRegionPayload {
			return fmt.Errorf("%w: regions[%d]: bad data", ErrConfigInvalid, i)
		}
	}
	for id := range seen {
		if c.NextEntityID != 0 && id >= c.NextEntityID {
			return fmt.Errorf("%w: next_entity_id %d not above entity %d", ErrConfigInvalid, c.NextEntityID, id)
		}
	}
	return nil
}

// RuleBudget is the wall-clock time the rule hook may spend in one tick.
func (c *Config) RuleBudget() time.Duration {
	ms := c.RuleBudgetMillis
	if ms == 0 {
		ms = c.TickMillis
	}
	return time.Duration(ms) * time.Millisecond
}

// RegionsX is the map width in regions.
func (c *Config) RegionsX() int32 { return 1 << c.MapSizeLg.X }

// RegionsY is the map height in regions.
func (c *Config) RegionsY() int32 { return 1 << c.MapSizeLg.Y }

// Extent returns the world size in position sub-units.
func (c *Config) Extent() (w, h int32) {
	return c.RegionsX() * c.RegionSize, c.RegionsY() * c.RegionSize
}

func (c *Config) InBounds(x, y int32) bool {
	w, h := c.Extent()
	return x >= 0 && y >= 0 && x < w && y < h
}

func (c *Config) RegionInBounds(rc RegionCoord) bool {
	return rc.X >= 0 && rc.Y >= 0 && rc.X < c.RegionsX() && rc.Y < c.RegionsY()
}

// initialEntities returns the configured entities, or the single default
// avatar when the key is absent.
func (c *Config) initialEntities() []EntityDef {
	if c.Entities == nil {
		return []EntityDef{{Tag: DefaultAvatarTag}}
	}
	return *c.Entities
}

func validateTag(tag string) error {
	if tag == "" {
		return errors.New("empty tag")
	}
	if len(tag) > MaxTagLen {
		return fmt.Errorf("tag longer than %d bytes", MaxTagLen)
	}
	if !utf8.ValidString(tag) {
		return errors.New("tag is not UTF-8")
	}
	return nil
}

func decodeData(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(s)
}

func encodeData(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return base64.StdEncoding.EncodeToString(b)
}
