package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/formdeck/core/internal/pkg/cron"
	"github.com/formdeck/core/internal/pkg/dbtest"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func newRouter(t *testing.T, cache Pinger) (*gin.Engine, *cron.Scheduler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	sched := cron.New(zap.NewNop())
	r := gin.New()
	allow := func(c *gin.Context) { c.Next() }
	RegisterRoutes(r.Group("/api/v1"), dbtest.Open(t), cache, sched, allow)
	return r, sched
}

func TestHealthOK(t *testing.T) {
	r, _ := newRouter(t, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["database"])
	assert.NotContains(t, body, "cache")
}

func TestHealthDegradedCache(t *testing.T) {
	r, _ := newRouter(t, stubPinger{err: errors.New("down")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"degraded"`)
}

func TestCronRun(t *testing.T) {
	r, sched := newRouter(t, stubPinger{})
	ran := 0
	sched.Register(cron.Job{
		Name:     "reconcile_lookup_sources",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			ran++
			return nil
		},
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/health/cron/run/reconcile_lookup_sources", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ran)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/health/cron/run/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/cron", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "reconcile_lookup_sources")
}
