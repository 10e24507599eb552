package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/giygas/misalud-api/config"
	"github.com/giygas/misalud-api/data"
	"github.com/giygas/misalud-api/datasets"
	"github.com/giygas/misalud-api/enrichment"
	"github.com/giygas/misalud-api/entities"
	"github.com/giygas/misalud-api/handlers"
	"github.com/giygas/misalud-api/health"
	"github.com/giygas/misalud-api/inference"
	"github.com/giygas/misalud-api/interactions"
	"github.com/giygas/misalud-api/interfaces"
	"github.com/giygas/misalud-api/logging"
	"github.com/giygas/misalud-api/matcher"
	"github.com/giygas/misalud-api/scheduler"
	"github.com/giygas/misalud-api/server"
	"github.com/giygas/misalud-api/validation"
)

// snapshotMaxAge is how long downloaded dataset files are reused.
const snapshotMaxAge = 12 * time.Hour

// registrySources is what the matcher and the enrichment read from.
type registrySources struct {
	registry interfaces.Registry
	prices   interfaces.PriceSource
	refs     interfaces.ReferencePrices // nil in live mode
	store    interfaces.DataStore       // nil in live mode
	sched    *scheduler.Scheduler       // nil in live mode
}

func main() {
	if err := godotenv.Load(); err != nil {
		logging.Info("No .env file loaded, using the process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := logging.Init(logging.Options{
		Dir:            cfg.LogDir,
		Level:          cfg.LogLevel,
		RetentionWeeks: cfg.LogRetentionWeeks,
		MaxFileSize:    cfg.MaxLogFileSize,
	}); err != nil {
		logging.Error("Failed to initialize logging", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		logging.Error("Server stopped with error", "error", err)
		logging.Close()
		os.Exit(1)
	}
	logging.Close()
}

func run(cfg *config.Config) error {
	startTime := time.Now()
	validator := validation.NewDataValidator()

	checker, err := loadInteractions(cfg.InteractionTablePath)
	if err != nil {
		return err
	}

	orchestrator, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}

	sources, err := buildRegistry(cfg, validator, startTime)
	if err != nil {
		return err
	}
	if sources.sched != nil {
		defer sources.sched.Stop()
	}

	opts := matcher.DefaultOptions()
	opts.AlternativesLimit = cfg.AlternativesLimit
	if sources.refs != nil {
		opts.Prices = sources.refs
	}
	drugMatcher := matcher.New(sources.registry, opts)
	generics := matcher.NewGenericFinder(sources.registry, 0)
	coordinator := enrichment.NewCoordinator(drugMatcher, generics, sources.prices, cfg.EnrichWorkers)

	healthChecker := health.NewHealthChecker(health.Options{
		DataStore:          sources.store,
		Backends:           orchestrator.Backends(),
		InteractionVersion: func() string { return checker.Table().Version() },
		Schedule:           cfg.SnapshotSchedule,
	})

	handler := handlers.NewHTTPHandler(handlers.Deps{
		Extractor:    orchestrator,
		Enricher:     coordinator,
		Matcher:      drugMatcher,
		Interactions: checker,
		Validator:    validator,
		Health:       healthChecker,
		MaxUpload:    cfg.MaxRequestBody,
		StartTime:    startTime,
	})

	srv := server.NewServer(cfg, handler)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case err := <-errCh:
			return err
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadInteractions(checker, cfg.InteractionTablePath)
				continue
			}
			logging.Info("Received shutdown signal", "signal", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		}
	}
}

// buildOrchestrator creates the backends selected by INFERENCE_BACKEND in
// fallback order.
func buildOrchestrator(cfg *config.Config) (*inference.Orchestrator, error) {
	client := &http.Client{Timeout: cfg.BackendTimeout + 5*time.Second}

	backends := make([]interfaces.InferenceBackend, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		var (
			b   *inference.HTTPBackend
			err error
		)
		switch name {
		case entities.BackendRemote:
			b, err = inference.NewRemoteBackend(cfg.RemoteInferenceURL, cfg.RemoteInferenceToken, client)
		case entities.BackendLocal:
			b, err = inference.NewLocalBackend(cfg.LocalInferenceURL, client)
		default:
			err = fmt.Errorf("unknown backend %q", name)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create inference backend: %w", err)
		}
		backends = append(backends, b)
	}

	orchestrator, err := inference.NewOrchestrator(cfg.BackendTimeout, backends...)
	if err != nil {
		return nil, fmt.Errorf("failed to create inference orchestrator: %w", err)
	}
	logging.Info("Inference backends configured", "mode", cfg.InferenceBackend, "order", cfg.Backends)
	return orchestrator, nil
}

// buildRegistry wires the live open-data clients, or a local snapshot
// refreshed by the scheduler.
func buildRegistry(cfg *config.Config, validator interfaces.DataValidator, startTime time.Time) (registrySources, error) {
	registryAPI, err := datasets.NewSocrataClient(cfg.RegistryURL, cfg.SocrataAppToken, cfg.DatasetTimeout)
	if err != nil {
		return registrySources{}, fmt.Errorf("invalid REGISTRY_URL: %w", err)
	}
	pricesAPI, err := datasets.NewSocrataClient(cfg.PricesURL, cfg.SocrataAppToken, cfg.DatasetTimeout)
	if err != nil {
		return registrySources{}, fmt.Errorf("invalid PRICES_URL: %w", err)
	}
	cum := datasets.NewCUMClient(registryAPI)
	sismed := datasets.NewSISMEDClient(pricesAPI, 0)

	if cfg.RegistryMode == config.RegistryModeLive {
		logging.Info("Querying the drug registry live", "registry", registryAPI.Endpoint(), "prices", pricesAPI.Endpoint(), "cache_ttl", cfg.RegistryCacheTTL)
		return registrySources{
			registry: datasets.NewCachedRegistry(cum, cfg.RegistryCacheTTL),
			prices:   datasets.NewCachedPrices(sismed, cfg.RegistryCacheTTL),
		}, nil
	}

	container := data.NewDataContainer()
	container.SetServerStartTime(startTime)

	snapshotter := datasets.NewSnapshotter(cum, sismed, datasets.SnapshotOptions{
		Dir:    cfg.SnapshotDir,
		MaxAge: snapshotMaxAge,
	})
	sched := scheduler.NewScheduler(container, snapshotter, validator, cfg.SnapshotSchedule)
	if err := sched.Start(); err != nil {
		return registrySources{}, err
	}

	logging.Info("Serving the drug registry from a snapshot", "dir", cfg.SnapshotDir, "schedule", cfg.SnapshotSchedule)
	return registrySources{
		registry: container,
		prices:   container,
		refs:     container,
		store:    container,
		sched:    sched,
	}, nil
}

// loadInteractions returns a checker over the table at path, or over the
// built-in table when path is empty.
func loadInteractions(path string) (*interactions.Checker, error) {
	if path == "" {
		return interactions.NewChecker(nil), nil
	}
	table, err := readInteractionTable(path)
	if err != nil {
		return nil, err
	}
	logging.Info("Interaction table loaded", "path", path, "version", table.Version(), "pairs", table.Len())
	return interactions.NewChecker(table), nil
}

// reloadInteractions swaps in a fresh copy of the table file. A bad file
// keeps the current table.
func reloadInteractions(checker *interactions.Checker, path string) {
	if path == "" {
		logging.Info("No interaction table file configured, nothing to reload")
		return
	}
	table, err := readInteractionTable(path)
	if err != nil {
		logging.Error("Interaction table reload failed, keeping current table", "error", err)
		return
	}
	prev := checker.Swap(table)
	logging.Info("Interaction table reloaded", "previous", prev.Version(), "version", table.Version(), "pairs", table.Len())
}

func readInteractionTable(path string) (*interactions.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open interaction table: %w", err)
	}
	defer f.Close()

	table, err := interactions.LoadTable(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load interaction table %s: %w", path, err)
	}
	return table, nil
}
