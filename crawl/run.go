package crawl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/newsfeed"
)

// Run modes.
const (
	ModeIncremental = ledger.ModeIncremental
	ModeFull        = ledger.ModeFull
)

// Journal records a summary of every finished run.
type Journal interface {
	Record(run history.Run) error
}

// RunOptions selects how a single run behaves.
type RunOptions struct {
	// Mode is ModeIncremental (default when empty) or ModeFull.
	Mode string `json:"mode"`
	// MaxPages bounds the pages attempted; zero means no ceiling.
	MaxPages int `json:"max_pages,omitempty"`
}

// Result summarizes a finished run.
type Result struct {
	RunID string `json:"run_id"`
	Mode  string `json:"mode"`
	// EffectiveMode is "full" when an incremental run had no usable
	// watermark.
	EffectiveMode  string     `json:"effective_mode"`
	MaxPages       int        `json:"max_pages,omitempty"`
	Reason         StopReason `json:"stop_reason"`
	WatermarkFound bool       `json:"watermark_found"`
	PagesFetched   int        `json:"pages_fetched"`
	NewItems       int        `json:"new_items"`
	TotalItems     int        `json:"total_items"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     time.Time  `json:"finished_at"`
}

// Status is a snapshot of the runner, safe to read from any goroutine.
type Status struct {
	Running    bool       `json:"running"`
	LastError  *string    `json:"last_error"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	RunID      string     `json:"run_id,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	LastResult *Result    `json:"last_result,omitempty"`
}

// Config wires a Runner to its collaborators. Journal and Metrics are
// optional.
type Config struct {
	StartURL  string
	Store     *newsfeed.Store
	Ledger    *ledger.Ledger
	Traverser *Traverser
	Journal   Journal
	Metrics   *metrics.Metrics
	Log       logger.Logger
	Now       func() time.Time
}

// Runner executes crawl runs. At most one run is active per Runner; a
// second trigger while one is active fails with ErrRunInProgress.
type Runner struct {
	startURL  string
	store     *newsfeed.Store
	ledger    *ledger.Ledger
	traverser *Traverser
	journal   Journal
	metrics   *metrics.Metrics
	log       logger.Logger
	now       func() time.Time

	running atomic.Bool
	// status is replaced wholesale by the run goroutine and read without
	// locking.
	status atomic.Pointer[Status]
	wg     sync.WaitGroup
}

// NewRunner creates a runner. Its status starts as not running with no
// error.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.StartURL == "" {
		return nil, fmt.Errorf("start URL is required")
	}
	if cfg.Store == nil || cfg.Ledger == nil || cfg.Traverser == nil {
		return nil, fmt.Errorf("store, ledger and traverser are required")
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	r := &Runner{
		startURL:  cfg.StartURL,
		store:     cfg.Store,
		ledger:    cfg.Ledger,
		traverser: cfg.Traverser,
		journal:   cfg.Journal,
		metrics:   cfg.Metrics,
		log:       cfg.Log,
		now:       cfg.Now,
	}
	r.status.Store(&Status{})
	return r, nil
}

// Status returns the current status snapshot.
func (r *Runner) Status() Status {
	return *r.status.Load()
}

// Run executes one run synchronously: traverse, merge, persist the store,
// then update the ledger.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (*Result, error) {
	runID, opts, err := r.acquire(opts)
	if err != nil {
		return nil, err
	}

	res, err := r.execute(ctx, runID, opts)
	r.release(runID, res, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Start begins a run in the background and returns its ID once the run
// slot is held, so a concurrent trigger is rejected immediately. ctx
// governs the run itself, not just the call.
func (r *Runner) Start(ctx context.Context, opts RunOptions) (uuid.UUID, error) {
	runID, opts, err := r.acquire(opts)
	if err != nil {
		return uuid.Nil, err
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		res, err := r.execute(ctx, runID, opts)
		r.release(runID, res, err)
	}()

	return runID, nil
}

// Wait blocks until every run started with Start has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// NormalizeMode maps an empty mode to incremental and rejects unknown modes.
func NormalizeMode(mode string) (string, error) {
	switch mode {
	case "":
		return ModeIncremental, nil
	case ModeIncremental, ModeFull:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
}

func (r *Runner) acquire(opts RunOptions) (uuid.UUID, RunOptions, error) {
	mode, err := NormalizeMode(opts.Mode)
	if err != nil {
		return uuid.Nil, opts, err
	}
	opts.Mode = mode
	if opts.MaxPages < 0 {
		opts.MaxPages = 0
	}

	if !r.running.CompareAndSwap(false, true) {
		r.log.Warn("crawl run rejected, another run is active",
			logger.String("active_run_id", r.Status().RunID))
		return uuid.Nil, opts, ErrRunInProgress
	}

	runID := uuid.New()
	startedAt := r.now()
	prev := r.status.Load()
	r.status.Store(&Status{
		Running:    true,
		RunID:      runID.String(),
		StartedAt:  &startedAt,
		LastResult: prev.LastResult,
	})

	return runID, opts, nil
}

// release publishes the final status before freeing the run slot, so the
// next run never has its status overwritten by this one.
func (r *Runner) release(runID uuid.UUID, res *Result, runErr error) {
	finishedAt := r.now()
	prev := r.status.Load()

	next := &Status{
		Running:    false,
		RunID:      runID.String(),
		StartedAt:  prev.StartedAt,
		FinishedAt: &finishedAt,
		LastResult: prev.LastResult,
	}
	if runErr != nil {
		msg := runErr.Error()
		next.LastError = &msg
		next.ErrorKind = ErrorKind(runErr)
	} else {
		next.LastResult = res
	}

	r.record(runID, res, runErr, finishedAt)

	r.status.Store(next)
	r.running.Store(false)
}

func (r *Runner) execute(ctx context.Context, runID uuid.UUID, opts RunOptions) (*Result, error) {
	log := r.log.With(
		logger.String("run_id", runID.String()),
		logger.String("mode", opts.Mode),
	)

	res := &Result{
		RunID:         runID.String(),
		Mode:          opts.Mode,
		EffectiveMode: opts.Mode,
		MaxPages:      opts.MaxPages,
		StartedAt:     r.now(),
	}
	log.Info("crawl run starting",
		logger.String("start_url", r.startURL),
		logger.Int("max_pages", opts.MaxPages),
	)

	existing := r.loadStore(log)
	log.Info("existing items loaded", logger.Int("count", len(existing)))

	stopURL := ""
	if opts.Mode == ModeIncremental {
		stopURL = r.stopURL(log, existing)
		if stopURL == "" {
			res.EffectiveMode = ModeFull
		}
	}

	var found []newsfeed.Item
	outcome, err := r.traverser.Walk(ctx, WalkOptions{
		StartURL: r.startURL,
		StopURL:  stopURL,
		MaxPages: opts.MaxPages,
	}, func(item newsfeed.Item) error {
		found = append(found, item)
		return nil
	})
	res.Reason = outcome.Reason
	res.PagesFetched = outcome.PagesFetched
	if err != nil {
		log.Error("traversal failed, store and ledger left untouched",
			logger.String("stop_reason", string(outcome.Reason)),
			logger.Int("pages_fetched", outcome.PagesFetched),
			logger.Error(err),
		)
		return res, err
	}

	res.WatermarkFound = outcome.Reason == StopWatermarkFound
	if stopURL != "" && !res.WatermarkFound {
		log.Info("watermark not found, merging everything traversed",
			logger.String("watermark_url", stopURL),
			logger.String("stop_reason", string(outcome.Reason)),
			logger.Int("pages_fetched", outcome.PagesFetched),
		)
	}

	unique := newsfeed.DedupeByURL(found)
	if dropped := len(found) - len(unique); dropped > 0 {
		log.Debug("dropped repeated records within run", logger.Int("count", dropped))
	}
	merged, newCount := newsfeed.Merge(unique, existing)
	res.NewItems = newCount
	res.TotalItems = len(merged)

	before, err := r.store.Snapshot()
	if err != nil {
		return res, &PersistenceError{Op: "snapshot store", Path: r.store.Path(), Err: err}
	}
	if err := r.store.Save(merged); err != nil {
		return res, &PersistenceError{Op: "save store", Path: r.store.Path(), Err: err}
	}

	if len(merged) > 0 {
		wm := ledger.FromItem(merged[0], opts.Mode, newCount, r.now())
		if err := r.ledger.Save(wm); err != nil {
			r.rollbackStore(log, before)
			return res, &PersistenceError{Op: "save ledger", Path: r.ledger.Path(), Err: err}
		}
	}

	res.FinishedAt = r.now()
	log.Info("crawl run finished",
		logger.String("stop_reason", string(res.Reason)),
		logger.Int("pages_fetched", res.PagesFetched),
		logger.Int("new_items", res.NewItems),
		logger.Int("total_items", res.TotalItems),
		logger.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)

	return res, nil
}

// loadStore reads the store, degrading to an empty store when it cannot be
// read.
func (r *Runner) loadStore(log logger.Logger) []newsfeed.Item {
	items, err := r.store.Load()
	if err != nil {
		log.Warn("store unreadable, treating as empty",
			logger.String("path", r.store.Path()),
			logger.Error(err),
		)
		return []newsfeed.Item{}
	}
	return items
}

// stopURL decides the watermark for an incremental run. An absent or
// unreadable ledger, or a watermark that is not in the store, means a full
// traversal: stopping at an item the store doesn't hold would lose it.
func (r *Runner) stopURL(log logger.Logger, existing []newsfeed.Item) string {
	wm, err := r.ledger.Load()
	if err != nil {
		var corrupt *ledger.CorruptError
		log.Warn("ledger unreadable, running full traversal",
			logger.Bool("corrupt", errors.As(err, &corrupt)),
			logger.Error(err),
		)
		return ""
	}
	if wm == nil {
		log.Info("no previous run recorded, running full traversal")
		return ""
	}
	if !newsfeed.ContainsURL(existing, wm.URL) {
		log.Warn("watermark missing from store, running full traversal",
			logger.String("watermark_url", wm.URL))
		return ""
	}

	log.Info("incremental run from watermark",
		logger.String("watermark_title", wm.Title),
		logger.String("watermark_url", wm.URL),
		logger.String("watermark_date", wm.Date),
	)
	return wm.URL
}

// rollbackStore puts the store file back to its pre-run bytes after the
// ledger could not be written. This includes a store that was corrupt or
// missing before the run.
func (r *Runner) rollbackStore(log logger.Logger, before newsfeed.Snapshot) {
	if err := r.store.Restore(before); err != nil {
		log.Error("failed to restore store after ledger write failure", logger.Error(err))
	}
}

func (r *Runner) record(runID uuid.UUID, res *Result, runErr error, finishedAt time.Time) {
	outcome := "success"
	if runErr != nil {
		outcome = ErrorKind(runErr)
	}

	var mode string
	var pages, newItems, total int
	var startedAt time.Time
	if res != nil {
		mode = res.Mode
		pages = res.PagesFetched
		newItems = res.NewItems
		total = res.TotalItems
		startedAt = res.StartedAt
	}
	r.metrics.ObserveRun(mode, outcome, pages, newItems, total, finishedAt.Sub(startedAt))

	if r.journal == nil || res == nil {
		return
	}

	run := history.Run{
		RunID:         runID,
		Mode:          res.Mode,
		EffectiveMode: res.EffectiveMode,
		MaxPages:      res.MaxPages,
		StartedAt:     res.StartedAt,
		FinishedAt:    finishedAt,
		StopReason:    string(res.Reason),
		PagesFetched:  res.PagesFetched,
		NewItems:      res.NewItems,
		TotalItems:    res.TotalItems,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	if err := r.journal.Record(run); err != nil {
		r.log.Warn("failed to record run history",
			logger.String("run_id", runID.String()),
			logger.Error(err),
		)
	}
}
