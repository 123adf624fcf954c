package retry

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agroscan/leafscan-go/internal/analysis"
	"github.com/agroscan/leafscan-go/internal/backend"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/datastore"
	"github.com/agroscan/leafscan-go/internal/errors"
)

// Command creates the retry command, which resubmits detection records
// the backend rejected in earlier sessions.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Resubmit pending detection records",
		Long:  "Replay locally retained detection records whose original submission was rejected by the backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRetry(settings)
		},
	}
}

func runRetry(settings *conf.Settings) error {
	if !settings.Output.SQLite.Enabled {
		return errors.Newf("local store is disabled, nothing to retry").
			Component("cmd").
			Category(errors.CategoryConfiguration).
			Build()
	}

	local, err := datastore.Open(settings.Output.SQLite.Path)
	if err != nil {
		return err
	}
	defer local.Close()

	client := backend.New(&settings.Backend)
	runner := &analysis.Runner{
		Settings:  settings,
		Detection: client,
		Local:     local,
	}

	accepted, err := runner.RetryPending(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Resubmitted %d pending detection record(s)\n", accepted)
	return nil
}
