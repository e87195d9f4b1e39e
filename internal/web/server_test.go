package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/charimport/internal/config"
	"github.com/JonMunkholm/charimport/internal/core"
	"github.com/JonMunkholm/charimport/internal/metrics"
	"github.com/JonMunkholm/charimport/internal/store"
)

const rosterCSV = "name,description,type\n小樱,魔卡少女樱主角,动漫\n知世,小樱的好友,anime\n"

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Import: config.ImportConfig{MaxFileSize: 1 << 20},
		Rate:   config.RateLimitConfig{RequestsPerMinute: 100, ImportLimit: 10},
	}
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}

	st, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "web.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := metrics.New()
	svc := core.NewService(st, core.Options{
		Metrics:     reg,
		MaxFileSize: cfg.Import.MaxFileSize,
		MaxWaitTime: 50 * time.Millisecond,
	})
	return NewServer(svc, cfg, reg)
}

func do(t *testing.T, s *Server, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func multipartBody(t *testing.T, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	health := decode[HealthResponse](t, rec)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, core.DefaultMaxConcurrentImports, health.Imports.MaxConcurrent)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestListDialects(t *testing.T) {
	s := newTestServer(t, nil)

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/dialects", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var names []string
	for _, d := range decode[[]DialectInfo](t, rec) {
		names = append(names, d.Name)
	}
	assert.Subset(t, names, []string{"csv", "feishu", "json"})
}

func TestPreview(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/preview/csv", strings.NewReader(rosterCSV))
	req.Header.Set("Content-Type", "text/csv")
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := decode[core.Outcome](t, rec)
	assert.Equal(t, "csv", out.Dialect)
	assert.Len(t, out.Records, 2)
	assert.Equal(t, 2, out.Report.Accepted)
	assert.Nil(t, out.Run)
}

func TestImport_Multipart(t *testing.T) {
	s := newTestServer(t, nil)

	body, contentType := multipartBody(t, "roster.csv", rosterCSV)
	req := httptest.NewRequest(http.MethodPost, "/api/import/auto?expected=2", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "roster-uploader/1.0")
	rec := do(t, s, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	out := decode[core.Outcome](t, rec)
	require.NotNil(t, out.Run)
	assert.Empty(t, out.Records, "import responses leave records out")
	assert.Equal(t, "roster.csv", out.Run.FileName)
	assert.False(t, out.LowYield)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/"+out.Run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	run := decode[core.ImportRun](t, rec)
	assert.Equal(t, core.StatusSucceeded, run.Status)
	assert.Equal(t, 2, run.Accepted)
	assert.Equal(t, "roster-uploader/1.0", run.UserAgent)
	assert.Equal(t, "192.0.2.1", run.RemoteAddr)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/characters?import="+out.Run.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	chars := decode[[]core.Character](t, rec)
	require.Len(t, chars, 2)
	assert.Equal(t, out.Run.ID, chars[0].ImportID)

	query := url.Values{"q": {"知世"}, "type": {"anime"}}
	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/characters?"+query.Encode(), nil))
	require.Equal(t, http.StatusOK, rec.Code)
	chars = decode[[]core.Character](t, rec)
	require.Len(t, chars, 1)
	assert.Equal(t, "知世", chars[0].Name)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports?limit=10", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]core.ImportRun](t, rec), 1)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `charimport_imports_total{dialect="csv",status="succeeded"} 1`)
}

func TestImport_Errors(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		body       string
		wantStatus int
		wantCode   string
		wantRun    bool
	}{
		{name: "empty input", path: "/api/import/csv", body: "  \n ", wantStatus: http.StatusUnprocessableEntity, wantCode: "IMP001", wantRun: true},
		{name: "too few rows", path: "/api/import/csv", body: "name,description\n", wantStatus: http.StatusUnprocessableEntity, wantCode: "IMP003", wantRun: true},
		{name: "bad json shape", path: "/api/import/json", body: `{"name":"x"}`, wantStatus: http.StatusUnprocessableEntity, wantCode: "IMP004", wantRun: true},
		{name: "unknown dialect", path: "/api/import/xlsx", body: rosterCSV, wantStatus: http.StatusBadRequest, wantCode: "IMP006"},
		{name: "too large", path: "/api/import/csv", body: strings.Repeat("a", 2048), wantStatus: http.StatusRequestEntityTooLarge, wantCode: "FILE001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, func(c *config.Config) { c.Import.MaxFileSize = 1024 })

			rec := do(t, s, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())

			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.Message)
			if tt.wantRun {
				assert.NotEmpty(t, resp.ImportID, "failed runs are recorded")
				assert.NotEmpty(t, resp.Hints)
			} else {
				assert.Empty(t, resp.ImportID)
			}
		})
	}
}

func TestImport_MissingFile(t *testing.T) {
	s := newTestServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("expected", "3"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/import/csv", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := do(t, s, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE002", decode[ErrorResponse](t, rec).Code)
}

func TestGetImport_NotFound(t *testing.T) {
	s := newTestServer(t, nil)

	for _, id := range []string{"nope", "5f0c9b1e-7a4e-4c59-9d7e-0f1b2c3d4e5f"} {
		rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/imports/"+id, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, id)
		assert.Equal(t, "DB007", decode[ErrorResponse](t, rec).Code)
	}
}

func TestHTMX(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/preview/csv", strings.NewReader(rosterCSV))
	req.Header.Set("HX-Request", "true")
	rec := do(t, s, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "<dt>Accepted</dt><dd>2</dd>")

	req = httptest.NewRequest(http.MethodPost, "/api/preview/csv", strings.NewReader("name\n"))
	req.Header.Set("HX-Request", "true")
	rec = do(t, s, req)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `data-code="IMP003"`)
	assert.Contains(t, rec.Body.String(), `<ul class="hints">`)
}

func TestAPIKey(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Security.RequireAPIKey = true
		c.Security.APIKeys = []string{"secret-key"}
	})

	rec := do(t, s, httptest.NewRequest(http.MethodGet, "/api/dialects", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/dialects", nil)
	req.Header.Set("X-API-Key", "secret-key")
	assert.Equal(t, http.StatusOK, do(t, s, req).Code)

	rec = do(t, s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health checks stay open")
}

func TestImportRateLimit(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) {
		c.Rate.Enabled = true
		c.Rate.ImportLimit = 1
	})

	first := do(t, s, httptest.NewRequest(http.MethodPost, "/api/preview/csv", strings.NewReader(rosterCSV)))
	require.Equal(t, http.StatusOK, first.Code)

	second := do(t, s, httptest.NewRequest(http.MethodPost, "/api/preview/csv", strings.NewReader(rosterCSV)))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "RATE001", decode[ErrorResponse](t, second).Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, do(t, s, httptest.NewRequest(http.MethodGet, "/api/dialects", nil)).Code,
		"read endpoints use the general limit")
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := newRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }
	rl.lastSweep = now

	assert.True(t, rl.allow("a"))
	assert.True(t, rl.allow("a"))
	assert.False(t, rl.allow("a"))
	assert.True(t, rl.allow("b"), "limits are per client")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.allow("a"), "window resets")

	now = now.Add(3 * time.Minute)
	rl.allow("c")
	assert.NotContains(t, rl.visitors, "b", "idle visitors are swept")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.ErrTooManyImports, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errNoFile, http.StatusBadRequest},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
