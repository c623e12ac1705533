// Package config handles training and batching configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/matsen/docqa/internal/device"
	"gopkg.in/yaml.v3"
)

// Config mirrors a training run's settings. Only the batching, loader and
// device fields are consumed by docqa itself; the rest are carried for the
// training loop.
type Config struct {
	LearningRate        float64 `yaml:"learning_rate" json:"learning_rate"`
	NumEpochs           int     `yaml:"num_epochs" json:"num_epochs"`
	BatchSize           int     `yaml:"batch_size" json:"batch_size"`
	MaxQuestionSize     int     `yaml:"max_question_size" json:"max_question_size"` // 0 means unlimited
	MaxContextSize      int     `yaml:"max_context_size" json:"max_context_size"`   // 0 means unlimited
	UseCUDA             bool    `yaml:"use_cuda" json:"use_cuda"`
	Device              string  `yaml:"device,omitempty" json:"device,omitempty"`
	DeviceCapacity      int64   `yaml:"device_capacity,omitempty" json:"device_capacity,omitempty"` // Bytes; 0 uses the arena default
	LoaderNumWorkers    int     `yaml:"loader_num_workers" json:"loader_num_workers"`
	LoaderRate          float64 `yaml:"loader_rate,omitempty" json:"loader_rate,omitempty"` // Batches per second; 0 disables throttling
	Shuffle             bool    `yaml:"shuffle" json:"shuffle"`
	Seed                int64   `yaml:"seed" json:"seed"`
	ModelCheckpointPath string  `yaml:"model_checkpoint_path,omitempty" json:"model_checkpoint_path,omitempty"`
	DataDir             string  `yaml:"data_dir" json:"data_dir"`
}

const (
	DataDir     = ".docqa"
	SamplesFile = "samples.jsonl"
	CacheDir    = "cache"
	DBFile      = "samples.db"
)

var (
	// ErrInvalidConfig is wrapped by every Validate failure.
	ErrInvalidConfig = errors.New("invalid config")
)

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		LearningRate:     1.0,
		NumEpochs:        10,
		BatchSize:        32,
		LoaderNumWorkers: 1,
		Shuffle:          true,
		Seed:             1,
		DataDir:          DataDir,
	}
}

// Load reads a yaml configuration on top of Default.
// A missing file is not an error; the defaults are returned.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.DataDir = ExpandPath(cfg.DataDir)
	cfg.ModelCheckpointPath = ExpandPath(cfg.ModelCheckpointPath)
	return cfg, nil
}

// Save writes the configuration as yaml.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	return nil
}

// Validate checks the fields docqa consumes.
func (c *Config) Validate() error {
	switch {
	case c.MaxQuestionSize < 0:
		return fmt.Errorf("%w: max_question_size must be >= 0, got %d", ErrInvalidConfig, c.MaxQuestionSize)
	case c.MaxContextSize < 0:
		return fmt.Errorf("%w: max_context_size must be >= 0, got %d", ErrInvalidConfig, c.MaxContextSize)
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch_size must be >= 1, got %d", ErrInvalidConfig, c.BatchSize)
	case c.LoaderNumWorkers < 1:
		return fmt.Errorf("%w: loader_num_workers must be >= 1, got %d", ErrInvalidConfig, c.LoaderNumWorkers)
	case c.LoaderRate < 0:
		return fmt.Errorf("%w: loader_rate must be >= 0, got %g", ErrInvalidConfig, c.LoaderRate)
	case c.DeviceCapacity < 0:
		return fmt.Errorf("%w: device_capacity must be >= 0, got %d", ErrInvalidConfig, c.DeviceCapacity)
	}

	if _, err := device.Lookup(c.DeviceName(), c.DeviceCapacity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DeviceName resolves the target device. An explicit device wins; otherwise
// use_cuda selects the arena.
func (c *Config) DeviceName() string {
	if name := strings.TrimSpace(c.Device); name != "" {
		return strings.ToLower(name)
	}
	if c.UseCUDA {
		return device.NameArena
	}
	return device.NameCPU
}

// NewDevice builds the configured device.
func (c *Config) NewDevice() (device.Device, error) {
	return device.Lookup(c.DeviceName(), c.DeviceCapacity)
}

// SamplesPath returns the path to samples.jsonl.
func (c *Config) SamplesPath() string {
	return filepath.Join(c.DataDir, SamplesFile)
}

// CachePath returns the path to the cache directory.
func (c *Config) CachePath() string {
	return filepath.Join(c.DataDir, CacheDir)
}

// DBPath returns the path to the SQLite cache.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, CacheDir, DBFile)
}

// ExpandPath expands ~ to the user's home directory.
// Returns the original path unchanged if it doesn't start with ~.
func ExpandPath(path string) string {
	if len(path) == 0 || path[0] != '~' {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path // Return original if we can't get home directory
	}

	return filepath.Join(home, path[1:])
}
