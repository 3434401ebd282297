package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/coopfin/bankintake/internal/assign"
	"github.com/coopfin/bankintake/internal/dedup"
	"github.com/coopfin/bankintake/internal/ingest"
	"github.com/coopfin/bankintake/internal/store"
	"github.com/coopfin/bankintake/internal/transfer"
)

// globalOptions holds flags shared by every subcommand.
type globalOptions struct {
	dbPath        string
	matcherConfig string
	verbose       bool
}

// env bundles the services a command may need. Close it when done.
type env struct {
	store      *store.Store
	registry   *ingest.Registry
	coord      *ingest.Coordinator
	uploader   *ingest.Uploader
	pipeline   *ingest.Pipeline
	reanalyzer *dedup.Reanalyzer
	assigner   *assign.Service
	transfers  *transfer.Service
	logger     *slog.Logger
}

// openEnv opens the database and wires every service.
func openEnv(opts *globalOptions) (*env, error) {
	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	st, err := store.Open(opts.dbPath)
	if err != nil {
		return nil, err
	}

	cfg, err := loadMatcherConfig(opts)
	if err != nil {
		st.Close()
		return nil, err
	}

	registry := ingest.NewRegistry()
	coord := ingest.NewCoordinator()

	return &env{
		store:      st,
		registry:   registry,
		coord:      coord,
		uploader:   ingest.NewUploader(st),
		pipeline:   ingest.NewPipeline(st, registry, coord, logger),
		reanalyzer: dedup.NewReanalyzer(st, coord, logger),
		assigner:   assign.NewService(st, assign.NewMatcher(cfg), logger),
		transfers:  transfer.NewService(st, logger),
		logger:     logger,
	}, nil
}

func (e *env) Close() error {
	return e.store.Close()
}

func loadMatcherConfig(opts *globalOptions) (*assign.Config, error) {
	if opts.matcherConfig != "" {
		return assign.LoadFromFile(opts.matcherConfig)
	}
	cfg, err := assign.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("failed to load built-in matcher config: %w", err)
	}
	return cfg, nil
}
