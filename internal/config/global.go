package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

const (
	// GlobalConfigDir is the directory name under XDG_CONFIG_HOME.
	GlobalConfigDir = "docqa"
	// GlobalConfigFile is the config file name.
	GlobalConfigFile = "config.yml"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "DOCQA_"
)

// GlobalConfigPath returns the path to the global config file.
// Respects XDG_CONFIG_HOME, defaults to ~/.config/docqa/config.yml.
func GlobalConfigPath() string {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configHome = filepath.Join(home, ".config")
	}
	return filepath.Join(configHome, GlobalConfigDir, GlobalConfigFile)
}

// ApplyEnv overrides fields from DOCQA_* environment variables.
// Unset or empty variables leave the field alone.
func (c *Config) ApplyEnv() error {
	if v := getenv("DATA_DIR"); v != "" {
		c.DataDir = ExpandPath(v)
	}
	if v := getenv("DEVICE"); v != "" {
		c.Device = v
	}
	if v := getenv("MODEL_CHECKPOINT_PATH"); v != "" {
		c.ModelCheckpointPath = ExpandPath(v)
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"BATCH_SIZE", &c.BatchSize},
		{"MAX_QUESTION_SIZE", &c.MaxQuestionSize},
		{"MAX_CONTEXT_SIZE", &c.MaxContextSize},
		{"LOADER_NUM_WORKERS", &c.LoaderNumWorkers},
		{"NUM_EPOCHS", &c.NumEpochs},
	}
	for _, f := range ints {
		v := getenv(f.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s%s: %w", EnvPrefix, f.name, err)
		}
		*f.dst = n
	}

	if v := getenv("DEVICE_CAPACITY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %sDEVICE_CAPACITY: %w", EnvPrefix, err)
		}
		c.DeviceCapacity = n
	}
	if v := getenv("SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing %sSEED: %w", EnvPrefix, err)
		}
		c.Seed = n
	}
	if v := getenv("LOADER_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing %sLOADER_RATE: %w", EnvPrefix, err)
		}
		c.LoaderRate = r
	}
	if v := getenv("LEARNING_RATE"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing %sLEARNING_RATE: %w", EnvPrefix, err)
		}
		c.LearningRate = r
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"USE_CUDA", &c.UseCUDA},
		{"SHUFFLE", &c.Shuffle},
	}
	for _, f := range bools {
		v := getenv(f.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parsing %s%s: %w", EnvPrefix, f.name, err)
		}
		*f.dst = b
	}

	return nil
}

func getenv(name string) string {
	return os.Getenv(EnvPrefix + name)
}
