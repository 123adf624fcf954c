package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agroscan/leafscan-go/internal/conf"
)

// Command creates the config command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	cmd.AddCommand(saveCommand(settings))
	return cmd
}

// saveCommand persists the effective settings, including any flag
// overrides from this invocation, back to the configuration file.
func saveCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "save",
		Short: "Write the effective settings to the configuration file",
		Long:  "Persist the current settings, including command line overrides, so they apply to future runs without repeating the flags.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.SaveSettings(); err != nil {
				return err
			}
			configPath, err := conf.FindConfigFile()
			if err != nil {
				return err
			}
			fmt.Printf("Settings saved to %s\n", configPath)
			return nil
		},
	}
}
