package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mchmarny/metro/pkg/sampler"
	"github.com/mchmarny/metro/pkg/sdt"
	"github.com/mchmarny/metro/pkg/target"
	"gopkg.in/yaml.v3"
)

const (
	// FileName is the default run configuration file name.
	FileName = "metro.yaml"

	dirMode  = 0700
	fileMode = 0600

	nameDefault    = "standard-normal"
	samplesDefault = 5000
	blockDefault   = 1000
)

var (
	ErrInvalidConfig = errors.New("invalid run config")
)

// Run is a single sampler run: the target, the chain settings, and an
// optional set of detection counts for the signal-detection targets.
type Run struct {
	Name      string         `yaml:"name" json:"name"`
	Target    target.Spec    `yaml:"target" json:"target"`
	Detection *sdt.Detection `yaml:"detection,omitempty" json:"detection,omitempty"`
	Initial   float64        `yaml:"initial" json:"initial"`
	StdDev    float64        `yaml:"std_dev" json:"std_dev"`
	Schedule  []int          `yaml:"schedule" json:"schedule"`
	Samples   int            `yaml:"samples" json:"samples"`
	Seed      *uint64        `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Default returns the standard-normal run.
func Default() *Run {
	return &Run{
		Name:     nameDefault,
		Target:   target.Spec{Kind: target.KindNormal, Params: map[string]float64{"mu": 0, "sigma": 1}},
		Initial:  0,
		StdDev:   sampler.StdDevDefault,
		Schedule: []int{blockDefault},
		Samples:  samplesDefault,
	}
}

// Validate checks the settings the sampler would otherwise reject later.
func (r *Run) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: config required", ErrInvalidConfig)
	}
	if r.Target.Kind == "" {
		return fmt.Errorf("%w: target kind required", ErrInvalidConfig)
	}
	if !(r.StdDev > 0) {
		return fmt.Errorf("%w: std_dev must be positive, got %v", ErrInvalidConfig, r.StdDev)
	}
	if len(r.Schedule) == 0 {
		return fmt.Errorf("%w: schedule required", ErrInvalidConfig)
	}
	for i, b := range r.Schedule {
		if b < 1 {
			return fmt.Errorf("%w: schedule block %d must be >= 1, got %d", ErrInvalidConfig, i, b)
		}
	}
	if r.Samples <= 0 {
		return fmt.Errorf("%w: samples must be positive, got %d", ErrInvalidConfig, r.Samples)
	}
	if r.Detection != nil {
		if err := r.Detection.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

// Save writes the run config as YAML to path.
func Save(path string, r *Run) error {
	if path == "" {
		return errors.New("config path required")
	}
	if r == nil {
		return errors.New("config required")
	}
	b, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, b, fileMode); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Load reads and validates a run config. Unset chain settings fall back to
// the defaults.
func Load(path string) (*Run, error) {
	if path == "" {
		return nil, errors.New("config path required")
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	r := &Run{}
	if err := yaml.Unmarshal(b, r); err != nil {
		return nil, fmt.Errorf("error unmarshalling config file %s: %w", path, err)
	}
	applyDefaults(r, path)

	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return r, nil
}

// ReadOrCreate reads the run config from the directory or creates the
// default one there.
func ReadOrCreate(dirPath string) (*Run, error) {
	if dirPath == "" {
		return nil, errors.New("config directory required")
	}

	if _, err := os.Stat(dirPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(dirPath, dirMode); err != nil {
			return nil, fmt.Errorf("failed to create dir %s: %w", dirPath, err)
		}
	}

	path := filepath.Join(dirPath, FileName)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := Save(path, Default()); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	return Load(path)
}

func applyDefaults(r *Run, path string) {
	if r.Name == "" {
		r.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if r.StdDev == 0 {
		r.StdDev = sampler.StdDevDefault
	}
	if len(r.Schedule) == 0 {
		r.Schedule = []int{blockDefault}
	}
	if r.Samples == 0 {
		r.Samples = samplesDefault
	}
}
