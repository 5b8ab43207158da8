package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pevans/newsharvest/crawl"
	"github.com/pevans/newsharvest/history"
	"github.com/pevans/newsharvest/ledger"
	"github.com/pevans/newsharvest/metrics"
	"github.com/pevans/newsharvest/newsfeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	mu      sync.Mutex
	busy    bool
	started []crawl.RunOptions
	status  crawl.Status
}

func (f *fakeRunner) Start(_ context.Context, opts crawl.RunOptions) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return uuid.Nil, crawl.ErrRunInProgress
	}
	f.busy = true
	f.started = append(f.started, opts)
	return uuid.New(), nil
}

func (f *fakeRunner) Status() crawl.Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

type fakeHistory struct {
	runs []history.Run
	err  error
}

func (f *fakeHistory) List(limit int) ([]history.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

type testEnv struct {
	server  *Server
	router  *gin.Engine
	runner  *fakeRunner
	history *fakeHistory
	store   *newsfeed.Store
	ledger  *ledger.Ledger
}

// Test helper: create a server over a temp store and ledger
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	store, err := newsfeed.NewStore(filepath.Join(dir, "noticias.json"))
	require.NoError(t, err)
	l, err := ledger.New(filepath.Join(dir, "last_run.json"))
	require.NoError(t, err)

	env := &testEnv{
		runner:  &fakeRunner{},
		history: &fakeHistory{},
		store:   store,
		ledger:  l,
	}
	env.server = NewServer(Config{
		Runs:            env.runner,
		Store:           store,
		Ledger:          l,
		History:         env.history,
		Metrics:         metrics.New(),
		DefaultMaxPages: 10,
	})
	env.router = env.server.SetupRouter()
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func newsItem(n int, date string) newsfeed.Item {
	return newsfeed.Item{
		Title: "Boletín " + date,
		URL:   "https://www.gob.mx/sep/prensa/boletin-" + string(rune('a'+n)),
		Date:  date,
	}
}

func TestHealth(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","service":"newsharvest"}`, w.Body.String())
}

func TestIndexListsEndpoints(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/scraper/run")
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodOptions, "/scraper/run", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHandleRun_StartsWithDefaults(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodPost, "/scraper/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decode[RunResponse](t, w)
	assert.Equal(t, "started", resp.Status)
	assert.Equal(t, crawl.ModeIncremental, resp.Mode)
	assert.Equal(t, 10, resp.MaxPages)
	_, err := uuid.Parse(resp.RunID)
	assert.NoError(t, err)

	require.Len(t, env.runner.started, 1)
	assert.Equal(t, crawl.RunOptions{Mode: crawl.ModeIncremental, MaxPages: 10}, env.runner.started[0])
}

func TestHandleRun_WithBody(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodPost, "/scraper/run", `{"mode":"full","max_pages":0}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	resp := decode[RunResponse](t, w)
	assert.Equal(t, crawl.ModeFull, resp.Mode)
	assert.Equal(t, 0, resp.MaxPages, "explicit zero removes the ceiling")
}

func TestHandleRun_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"invalid mode", `{"mode":"sideways"}`, http.StatusBadRequest, "invalid_parameter"},
		{"negative pages", `{"max_pages":-1}`, http.StatusBadRequest, "invalid_parameter"},
		{"malformed json", `{"mode":`, http.StatusBadRequest, "invalid_request"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t)

			w := env.do(http.MethodPost, "/scraper/run", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Error.Code)
			assert.Empty(t, env.runner.started)
		})
	}
}

func TestHandleRun_ConflictWhileRunning(t *testing.T) {
	env := setupTestServer(t)

	first := env.do(http.MethodPost, "/scraper/run", "")
	require.Equal(t, http.StatusAccepted, first.Code)

	second := env.do(http.MethodPost, "/scraper/run", "")
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, "run_in_progress", decode[ErrorResponse](t, second).Error.Code)
	assert.Len(t, env.runner.started, 1)
}

func TestHandleStatus(t *testing.T) {
	env := setupTestServer(t)
	msg := "fetch failed on page 2"
	env.runner.status = crawl.Status{Running: false, LastError: &msg, ErrorKind: "fetch_failure"}

	w := env.do(http.MethodGet, "/scraper/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, false, body["running"])
	assert.Equal(t, msg, body["last_error"])
	assert.Equal(t, "fetch_failure", body["error_kind"])
}

func TestHandleStatus_IdleHasNullError(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/scraper/status", "")
	assert.JSONEq(t, `{"running":false,"last_error":null}`, w.Body.String())
}

func TestHandleListRuns(t *testing.T) {
	env := setupTestServer(t)
	for range 3 {
		env.history.runs = append(env.history.runs, history.Run{RunID: uuid.New(), Mode: "incremental"})
	}

	w := env.do(http.MethodGet, "/scraper/runs?limit=2", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Total int           `json:"total"`
		Data  []history.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, env.history.runs[0].RunID, body.Data[0].RunID)

	env.history.err = errors.New("database is locked")
	w = env.do(http.MethodGet, "/scraper/runs", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHandleListNews(t *testing.T) {
	env := setupTestServer(t)
	require.NoError(t, env.store.Save([]newsfeed.Item{
		newsItem(0, "2025-03-10T09:00:00-06:00"),
		newsItem(1, "2025-03-05T09:00:00-06:00"),
		newsItem(2, "2025-02-20T09:00:00-06:00"),
	}))

	w := env.do(http.MethodGet, "/news", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, decode[ListNewsResponse](t, w).Total)

	w = env.do(http.MethodGet, "/news?date_from=2025-03", "")
	resp := decode[ListNewsResponse](t, w)
	assert.Equal(t, 2, resp.Total)

	w = env.do(http.MethodGet, "/news?date_from=2025-03&limit=1", "")
	resp = decode[ListNewsResponse](t, w)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "2025-03-10T09:00:00-06:00", resp.Data[0].Date)

	w = env.do(http.MethodGet, "/news?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListNews_EmptyStore(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/news", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0,"data":[]}`, w.Body.String())
}

func TestHandleNewNews(t *testing.T) {
	env := setupTestServer(t)
	items := []newsfeed.Item{
		newsItem(0, "2025-03-10"),
		newsItem(1, "2025-03-09"),
		newsItem(2, "2025-03-08"),
	}
	require.NoError(t, env.store.Save(items))
	require.NoError(t, env.ledger.Save(ledger.FromItem(items[0], ledger.ModeIncremental, 2, time.Now())))

	w := env.do(http.MethodGet, "/news/new", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[NewNewsResponse](t, w)
	assert.Equal(t, 2, resp.NewItems)
	assert.Equal(t, 2, resp.Total)
	require.NotNil(t, resp.LastRun)
	assert.Equal(t, items[0].URL, resp.LastRun.URL)
	assert.Equal(t, []string{items[0].URL, items[1].URL}, []string{resp.Data[0].URL, resp.Data[1].URL})
}

func TestHandleNewNews_NoLedger(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/news/new", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[NewNewsResponse](t, w)
	assert.Zero(t, resp.NewItems)
	assert.Empty(t, resp.Data)
	assert.NotEmpty(t, resp.Message)
}

func TestHandleLatestNews(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/news/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error.Code)

	items := []newsfeed.Item{newsItem(0, "2025-03-10"), newsItem(1, "2025-03-09")}
	require.NoError(t, env.store.Save(items))

	w = env.do(http.MethodGet, "/news/latest", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, items[0], decode[newsfeed.Item](t, w))
}

func TestNewsEndpoints_CorruptStoreReadsAsEmpty(t *testing.T) {
	env := setupTestServer(t)
	require.NoError(t, os.WriteFile(env.store.Path(), []byte("{not json"), 0o600))
	require.NoError(t, env.ledger.Save(ledger.FromItem(newsItem(0, "2025-03-10"), ledger.ModeFull, 3, time.Now())))

	w := env.do(http.MethodGet, "/news", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"total":0,"data":[]}`, w.Body.String())

	w = env.do(http.MethodGet, "/news/latest", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error.Code)

	w = env.do(http.MethodGet, "/news/new", "")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[NewNewsResponse](t, w)
	assert.Equal(t, 3, resp.NewItems)
	assert.Zero(t, resp.Total)
	assert.Empty(t, resp.Data)
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupTestServer(t)

	w := env.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "newsharvest_crawl_pages_fetched_total")
}
