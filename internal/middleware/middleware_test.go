package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stwalsh4118/siteplan/internal/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// lastLine decodes the final JSON log line in buf.
func lastLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestRequestID(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.GET("/id", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	t.Run("generates an ID", func(t *testing.T) {
		w := serve(router, httptest.NewRequest(http.MethodGet, "/id", nil))
		id := w.Header().Get(RequestIDHeader)
		assert.Len(t, id, 36)
		assert.Equal(t, id, w.Body.String())
	})

	t.Run("reuses a well-formed upstream ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/id", nil)
		req.Header.Set(RequestIDHeader, "lb-7f3a9c")
		w := serve(router, req)
		assert.Equal(t, "lb-7f3a9c", w.Body.String())
		assert.Equal(t, "lb-7f3a9c", w.Header().Get(RequestIDHeader))
	})

	t.Run("replaces a malformed upstream ID", func(t *testing.T) {
		for _, bad := range []string{"has space", strings.Repeat("x", maxRequestIDLen+1), "tab\there"} {
			req := httptest.NewRequest(http.MethodGet, "/id", nil)
			req.Header.Set(RequestIDHeader, bad)
			w := serve(router, req)
			assert.NotEqual(t, bad, w.Body.String())
			assert.Len(t, w.Body.String(), 36)
		}
	})

	t.Run("empty outside the middleware", func(t *testing.T) {
		assert.Empty(t, GetRequestID(&gin.Context{}))
	})
}

func TestLogger(t *testing.T) {
	t.Run("logs domain query fields", func(t *testing.T) {
		var buf bytes.Buffer
		router := gin.New()
		router.Use(RequestID(), Logger(logger.NewWithWriter(&buf, "debug"), 0))
		router.GET("/api/v1/parcels/context", func(c *gin.Context) {
			assert.NotNil(t, GetLogger(c))
			c.Status(http.StatusOK)
		})

		req := httptest.NewRequest(http.MethodGet, "/api/v1/parcels/context?lot_plan=3/RP12345&fresh=true&secret=x", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		serve(router, req)

		entry := lastLine(t, &buf)
		assert.Equal(t, "info", entry["level"])
		assert.Equal(t, "Request completed", entry["message"])
		assert.Equal(t, "req-1", entry["request_id"])
		assert.Equal(t, "/api/v1/parcels/context", entry["route"])
		assert.Equal(t, "3/RP12345", entry["lot_plan"])
		assert.Equal(t, "true", entry["fresh"])
		assert.NotContains(t, entry, "secret")
	})

	t.Run("client errors log at warn", func(t *testing.T) {
		var buf bytes.Buffer
		router := gin.New()
		router.Use(Logger(logger.NewWithWriter(&buf, "debug"), 0))
		router.POST("/api/v1/sync/run/:region/:layer", func(c *gin.Context) {
			c.Status(http.StatusConflict)
		})

		serve(router, httptest.NewRequest(http.MethodPost, "/api/v1/sync/run/NOOSA/zone", nil))

		entry := lastLine(t, &buf)
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "NOOSA", entry["region"])
	})

	t.Run("slow requests log at warn", func(t *testing.T) {
		var buf bytes.Buffer
		router := gin.New()
		router.Use(Logger(logger.NewWithWriter(&buf, "debug"), time.Millisecond))
		router.GET("/slow", func(c *gin.Context) {
			time.Sleep(5 * time.Millisecond)
			c.Status(http.StatusOK)
		})

		serve(router, httptest.NewRequest(http.MethodGet, "/slow", nil))

		entry := lastLine(t, &buf)
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "Slow request", entry["message"])
	})

	t.Run("server errors log at error", func(t *testing.T) {
		var buf bytes.Buffer
		router := gin.New()
		router.Use(Logger(logger.NewWithWriter(&buf, "debug"), 0))
		router.GET("/boom", func(c *gin.Context) {
			_ = c.Error(assert.AnError)
			c.Status(http.StatusInternalServerError)
		})

		serve(router, httptest.NewRequest(http.MethodGet, "/boom", nil))

		entry := lastLine(t, &buf)
		assert.Equal(t, "error", entry["level"])
		assert.Contains(t, entry["errors"], assert.AnError.Error())
	})

	t.Run("nil outside the middleware", func(t *testing.T) {
		assert.Nil(t, GetLogger(&gin.Context{}))
	})
}

func TestRecovery(t *testing.T) {
	t.Run("panic becomes a 500 envelope", func(t *testing.T) {
		var buf bytes.Buffer
		log := logger.NewWithWriter(&buf, "debug")
		router := gin.New()
		router.Use(RequestID(), Recovery(log))
		router.GET("/panic", func(c *gin.Context) {
			panic("test panic")
		})

		req := httptest.NewRequest(http.MethodGet, "/panic", nil)
		req.Header.Set(RequestIDHeader, "req-panic")
		w := serve(router, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var body struct {
			Error struct {
				Code      string `json:"code"`
				RequestID string `json:"request_id"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "INTERNAL_SERVER_ERROR", body.Error.Code)
		assert.Equal(t, "req-panic", body.Error.RequestID)

		entry := lastLine(t, &buf)
		assert.Equal(t, "Panic recovered", entry["message"])
		assert.Equal(t, "/panic", entry["route"])
	})

	t.Run("keeps a response already written", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.Nop()))
		router.GET("/partial", func(c *gin.Context) {
			c.String(http.StatusOK, "partial")
			panic("late panic")
		})

		w := serve(router, httptest.NewRequest(http.MethodGet, "/partial", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "partial", w.Body.String())
	})

	t.Run("passes normal requests through", func(t *testing.T) {
		router := gin.New()
		router.Use(Recovery(logger.Nop()))
		router.GET("/normal", func(c *gin.Context) {
			c.String(http.StatusOK, "OK")
		})

		w := serve(router, httptest.NewRequest(http.MethodGet, "/normal", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "OK", w.Body.String())
	})
}

func TestCORS(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"http://localhost:3000"}))
	handler := func(c *gin.Context) { c.Status(http.StatusOK) }
	router.GET("/api/v1/rules", handler)
	router.OPTIONS("/api/v1/sync/staged/:region/:layer", handler)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := serve(router, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		// gin-contrib/cors canonicalises the exposed header names
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), http.CanonicalHeaderKey(RequestIDHeader))
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/rules", nil)
		req.Header.Set("Origin", "http://evil.com")
		w := serve(router, req)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight for discard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/staged/NOOSA/zone", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
		w := serve(router, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete)
		assert.NotContains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPatch)
	})

	t.Run("preflight from disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/v1/sync/staged/NOOSA/zone", nil)
		req.Header.Set("Origin", "http://evil.com")
		w := serve(router, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestMiddlewareStack(t *testing.T) {
	router := gin.New()
	router.Use(RequestID(), Logger(logger.Nop(), 0), Metrics(), Recovery(logger.Nop()), CORS([]string{"http://localhost:3000"}))
	router.GET("/api/v1/info", func(c *gin.Context) {
		assert.NotEmpty(t, GetRequestID(c))
		assert.NotNil(t, GetLogger(c))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/info", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := serve(router, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}
