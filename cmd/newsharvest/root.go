package main

import (
	"fmt"

	"github.com/pevans/newsharvest/config"
	"github.com/pevans/newsharvest/crawl"
	"github.com/pevans/newsharvest/discovery"
	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/newsfeed"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	debug      bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "newsharvest",
		Short: "Incremental news archive harvester",
		Long: `newsharvest walks a paginated news archive from the newest page backwards,
stops at the newest item it already holds, and prepends what is new to a
local JSON store.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "",
		"config file (default is ./newsharvest.yaml or ~/.newsharvest/config.yaml)")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(opts),
		newServeCommand(opts),
		newItemsCommand(opts),
		newLatestCommand(opts),
		newNewCommand(opts),
		newStatusCommand(opts),
		newRunsCommand(opts),
		newDoctorCommand(opts),
	)

	return root
}

// app is the wiring shared by every subcommand.
type app struct {
	cfg     *config.Config
	log     logger.Logger
	store   *newsfeed.Store
	ledger  *ledger.Ledger
	metrics *metrics.Metrics
	journal *history.Journal
}

// loadApp loads configuration, applies override, then opens the store and
// ledger. override may be nil.
func loadApp(opts *globalOptions, override func(*config.Config)) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(cfg)
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if opts.debug {
		cfg.Log.Level = "debug"
		cfg.Log.Development = true
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
	})
	if err != nil {
		return nil, err
	}

	store, err := newsfeed.NewStore(cfg.Storage.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	l, err := ledger.New(cfg.Storage.Ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}

	return &app{
		cfg:     cfg,
		log:     log,
		store:   store,
		ledger:  l,
		metrics: metrics.New(),
	}, nil
}

// openJournal opens the run history database. History is informational, so
// a failure is logged and the journal stays disabled.
func (a *app) openJournal() *history.Journal {
	if a.journal != nil || a.cfg.Storage.History == "" {
		return a.journal
	}
	j, err := history.Open(a.cfg.Storage.History)
	if err != nil {
		a.log.Warn("run history disabled",
			logger.String("path", a.cfg.Storage.History),
			logger.Error(err),
		)
		return nil
	}
	a.journal = j
	return j
}

func (a *app) newRunner() (*crawl.Runner, error) {
	var extractor crawl.Extractor
	switch a.cfg.Source.Extractor {
	case config.ExtractorFeed:
		extractor = discovery.NewFeedExtractor(a.log)
	default:
		e, err := discovery.NewListingExtractor(a.cfg.Source.Selectors, a.log)
		if err != nil {
			return nil, err
		}
		extractor = e
	}

	fetcher := discovery.NewFetcher(a.cfg.FetcherConfig(), a.log)

	rc := crawl.Config{
		StartURL:  a.cfg.Source.StartURL,
		Store:     a.store,
		Ledger:    a.ledger,
		Traverser: crawl.NewTraverser(fetcher, extractor, a.log),
		Metrics:   a.metrics,
		Log:       a.log,
	}
	// Assigned only when open so the interface never holds a nil pointer
	if j := a.openJournal(); j != nil {
		rc.Journal = j
	}

	return crawl.NewRunner(rc)
}

func (a *app) close() {
	if a.journal != nil {
		a.journal.Close()
	}
	_ = a.log.Sync()
}
