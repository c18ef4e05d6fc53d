package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstancesDoNotCollide(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.JobEnqueued("dispatch")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.JobsEnqueued.WithLabelValues("dispatch")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.JobsEnqueued.WithLabelValues("dispatch")))
}

func TestRecorders(t *testing.T) {
	m := NewMetrics()

	m.JobCompleted("call", "ok", time.Millisecond, 2*time.Millisecond)
	m.JobCompleted("call", "error", time.Millisecond, time.Millisecond)
	m.QueueDepth(3)
	m.EventDispatched("request", "delivered", time.Millisecond)
	m.EventDispatched("request", "vetoed", time.Millisecond)
	m.EventDispatched("request", "error", time.Millisecond)
	m.ModuleResolved("filesystem", "ok", time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("call", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.JobsTotal.WithLabelValues("call", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.QueueLength))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDispatched.WithLabelValues("request", "vetoed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModulesResolved.WithLabelValues("filesystem", "ok")))

	snap := m.Snapshot()
	assert.EqualValues(t, 3, snap.QueueDepth)
	assert.EqualValues(t, 1, snap.EventsVetoed)
	assert.EqualValues(t, 1, snap.EventsFailed)
}

func TestMiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, "hello there") })
	router.GET("/fail", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	router.GET("/metrics", gin.WrapH(m.Handler()))

	for _, path := range []string{"/", "/", "/fail", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))

	snap := m.Snapshot()
	assert.EqualValues(t, 4, snap.TotalRequests)
	assert.EqualValues(t, 2, snap.TotalErrors)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "scriptbridge_http_requests_total"))
	assert.True(t, strings.Contains(body, "scriptbridge_uptime_seconds"))
}
