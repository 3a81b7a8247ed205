package commands

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenorchestrator/internal/config"
	"github.com/pbinitiative/zenorchestrator/internal/deploy"
	"github.com/pbinitiative/zenorchestrator/internal/log"
	"github.com/pbinitiative/zenorchestrator/internal/otel"
	"github.com/pbinitiative/zenorchestrator/internal/profile"
	"github.com/pbinitiative/zenorchestrator/internal/rest"
	"github.com/pbinitiative/zenorchestrator/internal/sqlite"
	"github.com/pbinitiative/zenorchestrator/pkg/bpmn"
	"github.com/pbinitiative/zenorchestrator/pkg/storage"
	"github.com/pbinitiative/zenorchestrator/pkg/storage/inmemory"
	"github.com/spf13/cobra"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the engine with its REST API until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf, err := loadConfig()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), conf)
		},
	}
}

func serve(ctx context.Context, conf config.Config) error {
	openTelemetry, err := otel.SetupOtel(ctx, conf.Tracing)
	if err != nil {
		return fmt.Errorf("failed to set up OTEL: %w", err)
	}
	defer openTelemetry.Stop(context.WithoutCancel(ctx))

	store, err := openStorage(ctx, conf)
	if err != nil {
		return err
	}
	defer store.close()

	engine := bpmn.NewEngine(
		bpmn.EngineWithName(conf.Name),
		bpmn.EngineWithStorage(store.storage),
		bpmn.EngineWithConfig(conf.EngineConfig()),
		bpmn.EngineWithLogger(engineLogger(conf)),
	)
	engine.Start()
	defer engine.Stop()

	if conf.Deploy.Directory != "" {
		definitions, err := deploy.Directory(ctx, engine, conf.Deploy.Directory)
		if err != nil {
			log.Error("some definitions of %s were not deployed: %s", conf.Deploy.Directory, err)
		}
		log.Info("deployed %d definitions from %s", len(definitions), conf.Deploy.Directory)
		if conf.Deploy.Watch {
			watcher := deploy.NewWatcher(engine, conf.Deploy.Directory)
			go func() {
				if err := watcher.Run(ctx, nil); err != nil {
					log.Error("definition watcher stopped: %s", err)
				}
			}()
		}
	}

	svr, err := rest.NewServer(engine, conf, openTelemetry.Rest)
	if err != nil {
		return err
	}
	if _, err := svr.Start(); err != nil {
		return err
	}

	<-ctx.Done()
	svr.Stop(context.WithoutCancel(ctx))
	return nil
}

type openedStorage struct {
	storage storage.Storage
	close   func()
}

func openStorage(ctx context.Context, conf config.Config) (openedStorage, error) {
	switch conf.Storage.Driver {
	case config.StorageSqlite:
		path, err := filepath.Abs(conf.Storage.Path)
		if err != nil {
			return openedStorage{}, err
		}
		store, err := sqlite.Open(ctx, sqlite.Config{Path: path})
		if err != nil {
			return openedStorage{}, fmt.Errorf("failed to open sqlite storage %s: %w", path, err)
		}
		log.Info("using sqlite storage %s", path)
		return openedStorage{storage: store, close: func() {
			if err := store.Close(); err != nil {
				log.Error("failed to close sqlite storage: %s", err)
			}
		}}, nil
	default:
		log.Info("using in-memory storage, state is lost on shutdown")
		return openedStorage{storage: inmemory.NewStorage(), close: func() {}}, nil
	}
}

func engineLogger(conf config.Config) hclog.Logger {
	level := hclog.Info
	if profile.Current == profile.DEV {
		level = hclog.Debug
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       conf.Name,
		Level:      level,
		JSONFormat: profile.Current == profile.PROD,
	})
}
