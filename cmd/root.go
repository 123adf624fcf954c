package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agroscan/leafscan-go/cmd/config"
	"github.com/agroscan/leafscan-go/cmd/file"
	"github.com/agroscan/leafscan-go/cmd/retry"
	"github.com/agroscan/leafscan-go/cmd/scan"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/logging"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "leafscan",
		Short: "LeafScan CLI",
		Long:  "Scan crop leaves for pests with a two-stage classification cascade and report detections to the AgroScan backend.",
	}

	// Set up the global flags for the root command.
	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		scan.Command(settings),
		file.Command(settings),
		retry.Command(settings),
		config.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmd.Flags().Parse(args); err != nil {
			return err
		}
		if settings.Debug {
			logging.SetLevel(slog.LevelDebug)
		}
		return conf.ValidateSettings(settings)
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Backend.BaseURL, "backend", viper.GetString("backend.baseurl"), "Base URL of the AgroScan backend API")
	rootCmd.PersistentFlags().StringVar(&settings.Backend.Token, "token", viper.GetString("backend.token"), "Bearer token for backend authentication")
	rootCmd.PersistentFlags().DurationVar(&settings.Scanner.Interval, "interval", viper.GetDuration("scanner.interval"), "Minimum interval between analyzed frames")
	rootCmd.PersistentFlags().Float64VarP(&settings.Scanner.LeafThreshold, "leafthreshold", "t", viper.GetFloat64("scanner.leafthreshold"), "Minimum leaf-presence confidence to continue the cascade")
	rootCmd.PersistentFlags().Float64Var(&settings.Scanner.PestThreshold, "pestthreshold", viper.GetFloat64("scanner.pestthreshold"), "Pest probability above which a frame counts as infested")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	return nil
}
