package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"multicam/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration",
	Long: `Print the configuration that results from defaults, the config file and
flags. With --save the configuration is also written as YAML.`,
	Args: cobra.NoArgs,
	RunE: runConfig,
}

var configSave string

func init() {
	configCmd.Flags().StringVar(&configSave, "save", "", "Write the effective configuration to this file")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup(cmd)
	if err != nil {
		return err
	}

	cfg.PrintConfig(cmd.OutOrStdout())

	if configSave != "" {
		if err := config.SaveConfigFile(cfg, configSave); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n✓ Saved configuration to %s\n", configSave)
	}
	return nil
}
