// Package api serves the harvester over HTTP: a trigger and status surface
// for runs, and read-only views of the item store and ledger.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/newsharvest/crawl"
	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/logger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/newsfeed"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "newsharvest"

const defaultRunsLimit = 20

// RunController starts runs and reports their status.
type RunController interface {
	Start(ctx context.Context, opts crawl.RunOptions) (uuid.UUID, error)
	Status() crawl.Status
}

// RunHistory lists past runs.
type RunHistory interface {
	List(limit int) ([]history.Run, error)
}

// Config wires a Server. History and Metrics are optional.
type Config struct {
	Runs    RunController
	Store   *newsfeed.Store
	Ledger  *ledger.Ledger
	History RunHistory
	Metrics *metrics.Metrics
	Log     logger.Logger
	// RunContext governs runs started over HTTP. It outlives the request
	// that triggered the run and is cancelled on shutdown.
	RunContext context.Context
	// DefaultMaxPages applies when a trigger omits max_pages.
	DefaultMaxPages int
}

// Server is the HTTP API server.
type Server struct {
	runs            RunController
	store           *newsfeed.Store
	ledger          *ledger.Ledger
	history         RunHistory
	metrics         *metrics.Metrics
	log             logger.Logger
	runCtx          context.Context
	defaultMaxPages int
}

// NewServer creates an API server.
func NewServer(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logger.NewNop()
	}
	if cfg.RunContext == nil {
		cfg.RunContext = context.Background()
	}
	return &Server{
		runs:            cfg.Runs,
		store:           cfg.Store,
		ledger:          cfg.Ledger,
		history:         cfg.History,
		metrics:         cfg.Metrics,
		log:             cfg.Log,
		runCtx:          cfg.RunContext,
		defaultMaxPages: cfg.DefaultMaxPages,
	}
}

// SetupRouter configures the Gin router with all routes.
func (s *Server) SetupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	// Add CORS middleware
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	})

	router.GET("/", s.HandleIndex)
	router.GET("/health", s.HandleHealth)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	scraper := router.Group("/scraper")
	scraper.POST("/run", s.HandleRun)
	scraper.GET("/status", s.HandleStatus)
	scraper.GET("/runs", s.HandleListRuns)

	news := router.Group("/news")
	news.GET("", s.HandleListNews)
	news.GET("/new", s.HandleNewNews)
	news.GET("/latest", s.HandleLatestNews)

	return router
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error: ErrorDetail{Code: code, Message: message},
	})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("elapsed", time.Since(start)),
		)
	}
}

// HandleIndex handles GET /.
func (s *Server) HandleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": ServiceName,
		"endpoints": gin.H{
			"GET /health":         "liveness check",
			"POST /scraper/run":   "start a run (body: {mode, max_pages})",
			"GET /scraper/status": "current run status",
			"GET /scraper/runs":   "run history (?limit=)",
			"GET /news":           "stored items (?limit=&date_from=)",
			"GET /news/new":       "items added by the last run",
			"GET /news/latest":    "newest stored item",
			"GET /metrics":        "Prometheus metrics",
		},
	})
}

// HandleHealth handles GET /health.
func (s *Server) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

// RunRequest is the optional body of POST /scraper/run.
type RunRequest struct {
	Mode     string `json:"mode"`
	MaxPages *int   `json:"max_pages"`
}

// RunResponse acknowledges a started run.
type RunResponse struct {
	Status   string `json:"status"`
	RunID    string `json:"run_id"`
	Mode     string `json:"mode"`
	MaxPages int    `json:"max_pages"`
}

// HandleRun handles POST /scraper/run. The run continues in the background
// after the response is sent.
func (s *Server) HandleRun(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		abortWithError(c, http.StatusBadRequest, "invalid_request", "Invalid request body: "+err.Error())
		return
	}

	opts := crawl.RunOptions{Mode: req.Mode, MaxPages: s.defaultMaxPages}
	if req.MaxPages != nil {
		if *req.MaxPages < 0 {
			abortWithError(c, http.StatusBadRequest, "invalid_parameter", "max_pages must not be negative")
			return
		}
		opts.MaxPages = *req.MaxPages
	}

	mode, err := crawl.NormalizeMode(opts.Mode)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	opts.Mode = mode

	runID, err := s.runs.Start(s.runCtx, opts)
	if errors.Is(err, crawl.ErrRunInProgress) {
		abortWithError(c, http.StatusConflict, "run_in_progress", "A run is already in progress")
		return
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to start run: "+err.Error())
		return
	}

	s.log.Info("run triggered over HTTP",
		logger.String("run_id", runID.String()),
		logger.String("mode", opts.Mode),
		logger.Int("max_pages", opts.MaxPages),
	)

	c.JSON(http.StatusAccepted, RunResponse{
		Status:   "started",
		RunID:    runID.String(),
		Mode:     opts.Mode,
		MaxPages: opts.MaxPages,
	})
}

// HandleStatus handles GET /scraper/status.
func (s *Server) HandleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runs.Status())
}

// HandleListRuns handles GET /scraper/runs.
func (s *Server) HandleListRuns(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultRunsLimit)
	if !ok {
		return
	}

	runs := []history.Run{}
	if s.history != nil {
		var err error
		runs, err = s.history.List(limit)
		if err != nil {
			abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to list runs: "+err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"total": len(runs), "data": runs})
}

// ListNewsResponse is the body of GET /news.
type ListNewsResponse struct {
	Total int             `json:"total"`
	Data  []newsfeed.Item `json:"data"`
}

// HandleListNews handles GET /news. date_from is compared to each item's
// date as a string, so any prefix of an ISO 8601 date works.
func (s *Server) HandleListNews(c *gin.Context) {
	limit, ok := intQuery(c, "limit", 0)
	if !ok {
		return
	}

	items, ok := s.loadItems(c)
	if !ok {
		return
	}

	data := newsfeed.Filter(items, newsfeed.ListFilter{
		DateFrom: c.Query("date_from"),
		Limit:    limit,
	})
	c.JSON(http.StatusOK, ListNewsResponse{Total: len(data), Data: data})
}

// NewNewsResponse is the body of GET /news/new.
type NewNewsResponse struct {
	Total    int               `json:"total"`
	NewItems int               `json:"new_items"`
	LastRun  *ledger.Watermark `json:"last_run,omitempty"`
	Data     []newsfeed.Item   `json:"data"`
	Message  string            `json:"message,omitempty"`
}

// HandleNewNews handles GET /news/new: the items added by the last run,
// which are the first new_items records of the store.
func (s *Server) HandleNewNews(c *gin.Context) {
	wm, err := s.ledger.Load()
	if err != nil {
		s.log.Warn("ledger unreadable", logger.Error(err))
		wm = nil
	}
	if wm == nil {
		c.JSON(http.StatusOK, NewNewsResponse{
			Data:    []newsfeed.Item{},
			Message: "No run has been recorded yet",
		})
		return
	}

	items, ok := s.loadItems(c)
	if !ok {
		return
	}

	data := newsfeed.Newest(items, wm.NewItems)
	c.JSON(http.StatusOK, NewNewsResponse{
		Total:    len(data),
		NewItems: wm.NewItems,
		LastRun:  wm,
		Data:     data,
	})
}

// HandleLatestNews handles GET /news/latest.
func (s *Server) HandleLatestNews(c *gin.Context) {
	items, ok := s.loadItems(c)
	if !ok {
		return
	}
	if len(items) == 0 {
		abortWithError(c, http.StatusNotFound, "not_found", "No items stored yet")
		return
	}
	c.JSON(http.StatusOK, items[0])
}

// loadItems reads the store for a read endpoint. A corrupt store reads as
// empty, the same way a run treats it.
func (s *Server) loadItems(c *gin.Context) ([]newsfeed.Item, bool) {
	items, err := s.store.Load()
	if errors.Is(err, newsfeed.ErrCorruptStore) {
		s.log.Warn("store unreadable, serving it as empty",
			logger.String("path", s.store.Path()),
			logger.Error(err),
		)
		return []newsfeed.Item{}, true
	}
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, "internal_error", "Failed to read store: "+err.Error())
		return nil, false
	}
	return items, true
}

// intQuery parses a non-negative integer query parameter, replying 400 on
// bad input.
func intQuery(c *gin.Context, name string, fallback int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		abortWithError(c, http.StatusBadRequest, "invalid_parameter", name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
