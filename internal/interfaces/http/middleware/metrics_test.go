package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method, route string
	status        int
}

type recordingObserver struct {
	mu   sync.Mutex
	seen []observation
}

func (r *recordingObserver) ObserveHTTPRequest(method, route string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, observation{method, route, status})
}

func TestMetrics(t *testing.T) {
	obs := &recordingObserver{}
	router := gin.New()
	router.Use(Metrics(obs, "/metrics"))
	router.GET("/metrics", ok)
	router.POST("/returns/:id/approve", func(c *gin.Context) {
		c.Status(http.StatusUnprocessableEntity)
	})

	serve(router, httptest.NewRequest(http.MethodPost, "/returns/42/approve", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/wp-admin.php", nil))
	serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Len(t, obs.seen, 2)
	assert.Equal(t, observation{http.MethodPost, "/returns/:id/approve", http.StatusUnprocessableEntity}, obs.seen[0])
	assert.Equal(t, observation{http.MethodGet, "unmatched", http.StatusNotFound}, obs.seen[1])
}
