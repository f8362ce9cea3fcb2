package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tastemap/tastemap-cli/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config.yaml",
	Long:  "Writes the effective configuration, defaults included, to config.yaml as a starting point. API keys are left blank; supply them via the environment. Refuses to overwrite an existing file.",
	RunE: func(cmd *cobra.Command, args []string) error {
		const path = "config.yaml"
		if _, err := os.Stat(path); err == nil {
			return eris.Errorf("%s already exists, refusing to overwrite", path)
		}

		sample := cfg
		if sample == nil {
			c, err := config.Load()
			if err != nil {
				return err
			}
			sample = c
		}

		// API keys stay in the environment. The written file gets empty
		// placeholders and owner-only permissions.
		redacted := *sample
		redacted.Places.Key = ""
		redacted.Anthropic.Key = ""

		data, err := yaml.Marshal(redacted)
		if err != nil {
			return eris.Wrap(err, "marshal config")
		}
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return eris.Wrap(err, "write config")
		}
		fmt.Printf("wrote %s\n", path)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
