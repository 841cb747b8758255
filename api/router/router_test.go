package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sshcollectorpro/switchdoc/internal/collector"
	"github.com/sshcollectorpro/switchdoc/internal/config"
	"github.com/sshcollectorpro/switchdoc/internal/database"
	"github.com/sshcollectorpro/switchdoc/internal/metrics"
	"github.com/sshcollectorpro/switchdoc/internal/model"
	"github.com/sshcollectorpro/switchdoc/internal/service"
)

type stubCollector struct {
	dir string
}

func (s stubCollector) Collect(_ context.Context, address string, _ collector.Credentials, _ []string) (*collector.Result, error) {
	return &collector.Result{
		Hostname:  "core1",
		Timestamp: model.FormatTimestamp(time.Now()),
		Items: []model.CommandResult{{
			Command: "show vlan brief",
			Headers: []string{"vlan_id", "name", "status", "interfaces"},
			Rows:    [][]string{{"10", "USERS", "active", ""}},
		}},
		WorkDir: filepath.Join(s.dir, "core1"),
	}, nil
}

func setup(t *testing.T) (*gin.Engine, *service.CrawlService) {
	t.Helper()
	cfg := config.Default()
	cfg.Snapshot.BaseDir = t.TempDir()
	cfg.Crawl.Seed = "10.0.0.1"
	cfg.Report.RawOutputs = false

	require.NoError(t, database.InitSQLite(config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "api.db")}))
	t.Cleanup(func() { _ = database.Close() })

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	svc := service.NewCrawlService(context.Background(), cfg, stubCollector{dir: cfg.Snapshot.BaseDir})
	r := SetupRouter(Options{
		Mode:      gin.TestMode,
		Crawl:     svc,
		Snapshots: service.NewSnapshotQuery(cfg),
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
	return r, svc
}

func do(r *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	r, _ := setup(t)
	w := do(r, http.MethodGet, "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"database":"ok"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

// TestCrawlFlow 启动遍历后可查询运行记录、设备、快照与差异
func TestCrawlFlow(t *testing.T) {
	r, svc := setup(t)

	w := do(r, http.MethodPost, "/api/v1/crawl", []byte(`{"max_depth":0}`))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp struct {
		Data model.CrawlRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	runID := resp.Data.ID
	require.NotEmpty(t, runID)

	assert.Eventually(t, func() bool {
		_, running := svc.Running()
		return !running
	}, 5*time.Second, 10*time.Millisecond)

	w = do(r, http.MethodGet, "/api/v1/crawl/runs/"+runID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), model.RunStatusSuccess)

	w = do(r, http.MethodGet, "/api/v1/crawl/runs", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), runID)

	w = do(r, http.MethodGet, "/api/v1/devices", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "core1")

	w = do(r, http.MethodGet, "/api/v1/snapshots/core1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data struct {
			Timestamps []string `json:"timestamps"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data.Timestamps, 1)

	w = do(r, http.MethodGet, "/api/v1/snapshots/core1/"+list.Data.Timestamps[0], nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "show vlan brief")

	w = do(r, http.MethodGet, "/api/v1/diff/core1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"changed":false`)

	w = do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "switchdoc_crawl_runs_total")
}

func TestErrors(t *testing.T) {
	r, _ := setup(t)

	w := do(r, http.MethodPost, "/api/v1/crawl", []byte(`{"allowed_subnets":["bad"]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/v1/crawl", []byte(`{bad json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/crawl/runs/none", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/v1/diff/nobody", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodGet, "/api/v1/snapshots/core1/bad..name", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
