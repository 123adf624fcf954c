package file

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agroscan/leafscan-go/internal/analysis"
	"github.com/agroscan/leafscan-go/internal/classifier"
	"github.com/agroscan/leafscan-go/internal/conf"
)

var (
	fieldID int
	submit  bool
)

// Command creates the file command for analyzing a single photo.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file [photo]",
		Short: "Analyze a single photo",
		Long:  "Run one photo through the classification cascade, for example a gallery image, optionally submitting the result as a detection.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(settings, args[0])
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runFile(settings *conf.Settings, path string) error {
	runner, cleanup, err := analysis.NewRunner(settings)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := runner.AnalyzeFile(context.Background(), path, fieldID, submit)
	if err != nil {
		return err
	}

	switch result.Outcome.Kind {
	case classifier.LeafInfested:
		fmt.Printf("%s: pests detected (confidence %.2f, %v)\n", path, result.Outcome.Confidence, result.ProcessingTime)
	case classifier.LeafHealthy:
		fmt.Printf("%s: healthy leaf (pest probability %.2f, %v)\n", path, result.Outcome.Confidence, result.ProcessingTime)
	default:
		fmt.Printf("%s: not a leaf (confidence %.2f, %v)\n", path, result.Outcome.Confidence, result.ProcessingTime)
	}

	if result.Submission != nil {
		fmt.Printf("Submitted detection %d: %s\n", result.Submission.ServerDetectionID, result.Submission.Record.Result)
	}
	return nil
}

// setupFlags configures flags specific to the file command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&fieldID, "field", 0, "Backend id of the field the photo belongs to")
	cmd.Flags().BoolVar(&submit, "submit", false, "Submit the result to the backend as a detection record")
	cmd.Flags().StringVar(&settings.Scanner.LeafModelPath, "leafmodel", viper.GetString("scanner.leafmodelpath"), "Path to the leaf-presence model file")
	cmd.Flags().StringVar(&settings.Scanner.PestModelPath, "pestmodel", viper.GetString("scanner.pestmodelpath"), "Path to the pest-presence model file")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}
	return nil
}
