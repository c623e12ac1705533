package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGlobalConfigPath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	if got, want := GlobalConfigPath(), "/custom/config/docqa/config.yml"; got != want {
		t.Errorf("GlobalConfigPath() = %q, want %q", got, want)
	}

	// Empty XDG_CONFIG_HOME falls back to ~/.config
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot get home directory")
	}
	want := filepath.Join(home, ".config", "docqa", "config.yml")
	if got := GlobalConfigPath(); got != want {
		t.Errorf("GlobalConfigPath() = %q, want %q", got, want)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DOCQA_DATA_DIR", "/env/data")
	t.Setenv("DOCQA_BATCH_SIZE", "16")
	t.Setenv("DOCQA_MAX_CONTEXT_SIZE", "300")
	t.Setenv("DOCQA_USE_CUDA", "true")
	t.Setenv("DOCQA_SHUFFLE", "false")
	t.Setenv("DOCQA_LOADER_RATE", "2.5")
	t.Setenv("DOCQA_SEED", "42")
	t.Setenv("DOCQA_DEVICE_CAPACITY", "2048")

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}

	if cfg.DataDir != "/env/data" {
		t.Errorf("DataDir = %q, want /env/data", cfg.DataDir)
	}
	if cfg.BatchSize != 16 {
		t.Errorf("BatchSize = %d, want 16", cfg.BatchSize)
	}
	if cfg.MaxContextSize != 300 {
		t.Errorf("MaxContextSize = %d, want 300", cfg.MaxContextSize)
	}
	if !cfg.UseCUDA || cfg.Shuffle {
		t.Errorf("UseCUDA = %v, Shuffle = %v, want true, false", cfg.UseCUDA, cfg.Shuffle)
	}
	if cfg.LoaderRate != 2.5 {
		t.Errorf("LoaderRate = %v, want 2.5", cfg.LoaderRate)
	}
	if cfg.Seed != 42 || cfg.DeviceCapacity != 2048 {
		t.Errorf("Seed = %d, DeviceCapacity = %d", cfg.Seed, cfg.DeviceCapacity)
	}
	// Untouched fields keep their values.
	if cfg.MaxQuestionSize != 0 {
		t.Errorf("MaxQuestionSize = %d, want 0", cfg.MaxQuestionSize)
	}
}

func TestApplyEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"DOCQA_BATCH_SIZE", "many"},
		{"DOCQA_USE_CUDA", "maybe"},
		{"DOCQA_LOADER_RATE", "fast"},
		{"DOCQA_SEED", "1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.name, tt.value)
			if err := Default().ApplyEnv(); err == nil {
				t.Errorf("ApplyEnv() with %s=%q expected error", tt.name, tt.value)
			}
		})
	}
}
