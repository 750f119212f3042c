package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestRequestObserverLogsAndCounts(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestObserver(zerolog.New(&buf)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	RegisterMetrics()
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200"))
	beforeMiss := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404"))

	for _, path := range []string{"/health", "/nope/123"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, beforeMiss+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"path":"unmatched"`)
}
