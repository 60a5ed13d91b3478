// Package config loads and saves the calibration core's configuration,
// mirroring the G-code config keys of spec.md 6. Grounded on the
// teacher's cmd/spectrometer/internal/config Loader/Saver pair, narrowed
// to YAML only via gopkg.in/yaml.v3 (this core has no protobuf/JSON
// config format to support).
package config

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// ZProbe mirrors the zprobe.* keys of spec.md 6.
type ZProbe struct {
	Enable              bool    `yaml:"enable"`
	ProbePin            string  `yaml:"probe_pin"`
	DebounceCount       int     `yaml:"debounce_count"`
	SlowFeedrate        float32 `yaml:"slow_feedrate"`
	FastFeedrate        float32 `yaml:"fast_feedrate"`
	ReturnFeedrate      float32 `yaml:"return_feedrate"`
	ProbeHeight         float32 `yaml:"probe_height"`
	ProbeRadius         float32 `yaml:"probe_radius"`
	DecelerateOnTrigger bool    `yaml:"decelerate_on_trigger"`
	DecelerateRunout    float32 `yaml:"decelerate_runout"`
	ReverseZ            bool    `yaml:"reverse_z"`
	Invert              bool    `yaml:"invert"`
}

// ComprehensiveDelta mirrors leveling-strategy.comprehensive-delta.*.
type ComprehensiveDelta struct {
	ProbeRadius        float32 `yaml:"probe_radius"`
	ProbeSmoothing     int     `yaml:"probe_smoothing"`
	ProbeAcceleration  float32 `yaml:"probe_acceleration"`
	ProbeOffsetX       float32 `yaml:"probe_offset_x"`
	ProbeOffsetY       float32 `yaml:"probe_offset_y"`
	ProbeOffsetZ       float32 `yaml:"probe_offset_z"`
	ProbeIgnoreBedTemp bool    `yaml:"probe_ignore_bed_temp"`
}

// LevelingStrategy mirrors the leveling-strategy.* key tree; this core
// only implements the comprehensive-delta strategy (spec.md 4.G).
type LevelingStrategy struct {
	ComprehensiveDelta ComprehensiveDelta `yaml:"comprehensive-delta"`
}

// Config is the top-level YAML-serializable configuration struct,
// mirroring spec.md 6's "Configuration keys consumed" list.
type Config struct {
	ZProbe           ZProbe           `yaml:"zprobe"`
	GammaMax         float32          `yaml:"gamma_max"`
	DeltaHoming      float32          `yaml:"delta_homing"`
	RDeltaHoming     float32          `yaml:"rdelta_homing"`
	LevelingStrategy LevelingStrategy `yaml:"leveling-strategy"`
}

// Default returns a Config populated with the defaults named throughout
// spec.md 4 (0.03 mm convergence targets, 1.3 initial trimscale, etc. are
// strategy-owned constants, not config defaults; this covers only the
// values spec.md 6 lists as configuration).
func Default() Config {
	return Config{
		ZProbe: ZProbe{
			Enable:         true,
			DebounceCount:  2,
			SlowFeedrate:   2,
			FastFeedrate:   5,
			ReturnFeedrate: 8,
			ProbeRadius:    100,
		},
		LevelingStrategy: LevelingStrategy{
			ComprehensiveDelta: ComprehensiveDelta{
				ProbeRadius:    100,
				ProbeSmoothing: 1,
			},
		},
	}
}

// Loader loads Config from YAML.
type Loader struct{}

// NewLoader builds a Loader.
func NewLoader() *Loader { return &Loader{} }

// Load reads and parses the YAML file at path.
func (l *Loader) Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()
	return l.LoadFromReader(f)
}

// LoadFromReader parses YAML from r.
func (l *Loader) LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Saver saves Config to YAML.
type Saver struct{}

// NewSaver builds a Saver.
func NewSaver() *Saver { return &Saver{} }

// Save writes cfg as YAML to path.
func (s *Saver) Save(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("config: create %s: %w", path, err)
	}
	defer f.Close()
	return s.SaveToWriter(f, cfg)
}

// SaveToWriter writes cfg as YAML to w.
func (s *Saver) SaveToWriter(w io.Writer, cfg Config) error {
	enc := yaml.NewEncoder(w)
	defer enc.Close()
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return nil
}
