package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func reply(body string) gin.HandlerFunc {
	return func(c *gin.Context) { c.String(http.StatusOK, body) }
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestRouter_Setup(t *testing.T) {
	t.Run("default version", func(t *testing.T) {
		engine := gin.New()
		routes := NewRouter(engine).
			Register(NewDomainGroup("returns", "/returns").GET("/:id", reply("one"))).
			Setup()

		assert.Equal(t, []Route{{Method: http.MethodGet, Path: "/api/v1/returns/:id", Group: "returns"}}, routes)
		assert.Equal(t, "one", serve(engine, http.MethodGet, "/api/v1/returns/abc").Body.String())
	})

	t.Run("custom version", func(t *testing.T) {
		engine := gin.New()
		NewRouter(engine, WithAPIVersion("v2")).
			Register(NewDomainGroup("courier", "/courier").GET("/pick-shifts", reply("shifts"))).
			Setup()

		assert.Equal(t, http.StatusOK, serve(engine, http.MethodGet, "/api/v2/courier/pick-shifts").Code)
		assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/api/v1/courier/pick-shifts").Code)
	})

	t.Run("several groups", func(t *testing.T) {
		engine := gin.New()
		routes := NewRouter(engine).
			Register(NewDomainGroup("returns", "/returns").POST("", reply("created"))).
			Register(NewDomainGroup("webhooks", "/webhooks").POST("/ghn", reply("ack"))).
			Setup()

		require.Len(t, routes, 2)
		assert.Equal(t, "/api/v1/returns", routes[0].Path)
		assert.Equal(t, "/api/v1/webhooks/ghn", routes[1].Path)
		assert.Equal(t, "ack", serve(engine, http.MethodPost, "/api/v1/webhooks/ghn").Body.String())
	})
}

func TestDomainGroup(t *testing.T) {
	t.Run("chained methods", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("returns", "/returns").
			GET("/:id", reply("get")).
			POST("/:id/approve", reply("approve")).
			Handle(http.MethodPut, "/:id/note", reply("note"))
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, "get", serve(engine, http.MethodGet, "/api/v1/returns/x").Body.String())
		assert.Equal(t, "approve", serve(engine, http.MethodPost, "/api/v1/returns/x/approve").Body.String())
		assert.Equal(t, "note", serve(engine, http.MethodPut, "/api/v1/returns/x/note").Body.String())
	})

	t.Run("middleware applies to nested groups and nil is skipped", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("system", "/system").Use(nil, func(c *gin.Context) {
			c.Header("X-Guard", "operators")
			c.Next()
		})
		g.Group("outbox", "/outbox").GET("/stats", reply("stats"))
		routes := g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/system/outbox/stats")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "operators", w.Header().Get("X-Guard"))
		assert.Equal(t, []Route{{Method: http.MethodGet, Path: "/api/v1/system/outbox/stats", Group: "system.outbox"}}, routes)
	})

	t.Run("empty path mounts at the prefix", func(t *testing.T) {
		engine := gin.New()
		routes := NewDomainGroup("stores", "/stores/:store_id/returns").
			GET("", reply("list")).
			RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, "/api/v1/stores/:store_id/returns", routes[0].Path)
		assert.Equal(t, "list", serve(engine, http.MethodGet, "/api/v1/stores/s1/returns").Body.String())
	})
}
