package analysis

import (
	"github.com/agroscan/leafscan-go/internal/backend"
	"github.com/agroscan/leafscan-go/internal/capture"
	"github.com/agroscan/leafscan-go/internal/classifier"
	"github.com/agroscan/leafscan-go/internal/conf"
	"github.com/agroscan/leafscan-go/internal/datastore"
	"github.com/agroscan/leafscan-go/internal/logging"
	"github.com/agroscan/leafscan-go/internal/observability"
	"github.com/agroscan/leafscan-go/internal/uploader"
)

// NewRunner builds a fully wired Runner from settings: loads both
// cascade models, opens the local store when enabled and connects the
// backend client. The returned cleanup releases models and the store.
func NewRunner(settings *conf.Settings) (*Runner, func(), error) {
	leafModel, err := classifier.LoadModel(settings.Scanner.LeafModelPath, &settings.Scanner)
	if err != nil {
		return nil, nil, err
	}
	pestModel, err := classifier.LoadModel(settings.Scanner.PestModelPath, &settings.Scanner)
	if err != nil {
		leafModel.Close()
		return nil, nil, err
	}

	cascade := classifier.NewCascade(
		&classifier.LeafModel{Model: leafModel},
		&classifier.PestModel{Model: pestModel},
		&settings.Scanner,
	)

	var metrics *observability.Metrics
	if settings.Metrics.Enabled {
		metrics = observability.NewMetrics()
		go func() {
			if err := metrics.Serve(settings.Metrics.Listen); err != nil {
				logging.Error("Metrics endpoint stopped", "error", err)
			}
		}()
	}

	var local *datastore.Store
	if settings.Output.SQLite.Enabled {
		local, err = datastore.Open(settings.Output.SQLite.Path)
		if err != nil {
			leafModel.Close()
			pestModel.Close()
			return nil, nil, err
		}
	}

	client := backend.New(&settings.Backend)

	runner := &Runner{
		Settings:  settings,
		Cascade:   cascade,
		Store:     capture.NewStore(&settings.Capture),
		Fields:    client,
		Detection: client,
		Uploader:  uploader.New(client, &settings.Upload, metrics),
		Local:     local,
		Metrics:   metrics,
	}

	cleanup := func() {
		leafModel.Close()
		pestModel.Close()
		if local != nil {
			_ = local.Close()
		}
	}
	return runner, cleanup, nil
}
