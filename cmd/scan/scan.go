package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/agroscan/leafscan-go/internal/analysis"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/frames"
	"github.com/agroscan/leafscan-go/internal/logging"
)

var (
	fieldID  int
	frameDir string
	duration time.Duration
)

// Command creates the scan command, which runs a live scan session over
// a frame spool directory.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run a scan session over a field",
		Long:  "Consume camera frames from a spool directory, classify them through the cascade and submit the session's detection record when the scan ends.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runScan(settings *conf.Settings) error {
	runner, cleanup, err := analysis.NewRunner(settings)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	// Ctrl-C ends the scan and still submits the session.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	var sessionLog *slog.Logger
	if settings.Main.Log.Enabled {
		fileLogger, closeLog, logErr := logging.NewFileLogger(settings.Main.Log.Path, "scan", slog.LevelInfo)
		if logErr != nil {
			fmt.Printf("warning: cannot open session log: %v\n", logErr)
		} else {
			sessionLog = fileLogger
			defer closeLog()
		}
	}

	src := frames.NewDirectorySource(frameDir, 250*time.Millisecond, true)
	outcome, err := runner.RunSession(ctx, fieldID, src)
	if err != nil {
		return err
	}

	if sessionLog != nil {
		sessionLog.Info("Scan session finished",
			"session", outcome.Snapshot.ID,
			"field_id", fieldID,
			"frames_analyzed", outcome.Snapshot.FramesAnalyzed,
			"detections", outcome.Snapshot.Detections,
			"uploaded", len(outcome.ImageIDs),
			"detection_id", outcome.ServerDetectionID,
			"result", outcome.Record.Result)
	}

	fmt.Printf("Session %s: %d frames analyzed, %d detections, %d images uploaded\n",
		outcome.Snapshot.ID, outcome.Snapshot.FramesAnalyzed, outcome.Snapshot.Detections, len(outcome.ImageIDs))
	fmt.Printf("Result: %s (%.1f%% affected, prediction %s)\n",
		outcome.Record.Result, outcome.Record.PlaguePercentage, outcome.Record.PredictionValue)
	if outcome.UploadErr != nil {
		fmt.Printf("Warning: evidence upload failed: %v\n", outcome.UploadErr)
	}
	return nil
}

// setupFlags configures flags specific to the scan command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&fieldID, "field", 0, "Backend id of the field being scanned")
	cmd.Flags().StringVar(&frameDir, "frames", ".", "Directory the camera spools frames into")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop scanning after this long (0 scans until interrupted)")
	cmd.Flags().StringVar(&settings.Capture.Path, "capturepath", viper.GetString("capture.path"), "Directory to save evidence images")
	cmd.Flags().StringVar(&settings.Scanner.LeafModelPath, "leafmodel", viper.GetString("scanner.leafmodelpath"), "Path to the leaf-presence model file")
	cmd.Flags().StringVar(&settings.Scanner.PestModelPath, "pestmodel", viper.GetString("scanner.pestmodelpath"), "Path to the pest-presence model file")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "metrics", viper.GetBool("metrics.enabled"), "Enable Prometheus metrics endpoint")
	cmd.Flags().StringVar(&settings.Metrics.Listen, "listen", viper.GetString("metrics.listen"), "Listen address and port of metrics endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}

	if err := cmd.MarkFlagRequired("field"); err != nil {
		return err
	}
	return nil
}
