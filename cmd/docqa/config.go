package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/matsen/docqa/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configInitForce bool

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "Overwrite an existing config file")
}

var configCmd = &cobra.Command{
	Use:   "config [key]",
	Short: "Show the resolved configuration",
	Long: `Show the configuration after applying the config file, DOCQA_* environment
variables and flags.

Usage:
  docqa config                    # Show all config
  docqa config max-context-size   # Get specific value
  docqa config init               # Write a default config file`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfig,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Args:  cobra.NoArgs,
	RunE:  runConfigInit,
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := mustLoadConfig()

	if len(args) == 0 {
		if humanOutput {
			data, err := yaml.Marshal(cfg)
			if err != nil {
				exitWithError(ExitError, "encoding config: %v", err)
			}
			fmt.Print(string(data))
			if configPath == "" {
				fmt.Printf("# file: %s\n", config.GlobalConfigPath())
			} else {
				fmt.Printf("# file: %s\n", configPath)
			}
		} else {
			outputJSON(cfg)
		}
		return nil
	}

	key := normalizeKey(args[0])
	values, err := configValues(cfg)
	if err != nil {
		exitWithError(ExitError, "encoding config: %v", err)
	}
	value, ok := values[key]
	if !ok {
		exitWithError(ExitError, "unknown config key: %s", args[0])
	}

	if humanOutput {
		fmt.Println(value)
	} else {
		outputJSON(map[string]any{key: value})
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath
	if path == "" {
		path = config.GlobalConfigPath()
	}
	if path == "" {
		exitWithError(ExitConfigError, "cannot determine config path; pass --config")
	}

	if _, err := os.Stat(path); err == nil && !configInitForce {
		exitWithError(ExitConfigError, "config already exists: %s (use --force to overwrite)", path)
	}

	if err := config.Default().Save(path); err != nil {
		exitWithError(ExitError, "%v", err)
	}

	if humanOutput {
		outputHuman("Wrote default config to %s\n", path)
	} else {
		outputJSON(StatusResponse{Status: "created", Path: path})
	}
	return nil
}

// configValues flattens the config into its yaml keys, including unset ones.
func configValues(cfg *config.Config) (map[string]any, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	values := map[string]any{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}

	// omitempty fields still answer as keys
	for _, key := range []string{"device", "device_capacity", "loader_rate", "model_checkpoint_path"} {
		if _, ok := values[key]; !ok {
			values[key] = nil
		}
	}
	values["device"] = cfg.DeviceName()
	return values, nil
}

// normalizeKey converts "max-context-size" to "max_context_size".
func normalizeKey(key string) string {
	return strings.ReplaceAll(strings.ToLower(key), "-", "_")
}
