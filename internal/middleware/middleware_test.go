package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-portal/internal/handler"
	apperrors "github.com/jwalitptl/clinic-portal/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) handler.Response {
	t.Helper()
	var resp handler.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestErrorHandlerRendersAppErrors(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandler())
	engine.GET("/missing", func(c *gin.Context) {
		handler.Abort(c, apperrors.NotFound("appointment", nil))
	})
	engine.GET("/remote", func(c *gin.Context) {
		handler.Abort(c, apperrors.Remote(http.StatusConflict, []byte(`{"message":"El horario ya no está disponible"}`)))
	})
	engine.GET("/nav", func(c *gin.Context) {
		handler.Abort(c, apperrors.Navigation("a patient is required", "/doctor/appointments"))
	})
	engine.GET("/plain", func(c *gin.Context) {
		handler.Abort(c, errors.New("boom"))
	})

	tests := []struct {
		path     string
		status   int
		message  string
		redirect string
	}{
		{"/missing", http.StatusNotFound, "", ""},
		{"/remote", http.StatusConflict, "El horario ya no está disponible", ""},
		{"/nav", http.StatusUnprocessableEntity, "a patient is required", "/doctor/appointments"},
		{"/plain", http.StatusInternalServerError, apperrors.FallbackMessage, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := serve(engine, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			resp := decode(t, w)
			assert.Equal(t, "error", resp.Status)
			if tt.message != "" {
				assert.Equal(t, tt.message, resp.Message)
			}
			assert.Equal(t, tt.redirect, resp.Redirect)
		})
	}
}

func TestErrorHandlerKeepsWrittenResponse(t *testing.T) {
	engine := gin.New()
	engine.Use(ErrorHandler())
	engine.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusAccepted, handler.NewSuccessResponse("partial"))
		_ = c.Error(errors.New("logged only"))
	})
	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "success", decode(t, w).Status)
}

func TestRecoveryUsesEnvelope(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/", func(c *gin.Context) { panic("kaboom") })
	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", decode(t, w).Status)
}

func TestRequestIDPropagates(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestID)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "req-1")
	w := serve(engine, req)
	assert.Equal(t, "req-1", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "req-1", w.Body.String())

	w = serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(HeaderXRequestID))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderXRequestID, "forged\tentry")
	w = serve(engine, req)
	assert.NotEqual(t, "forged\tentry", w.Body.String())
	assert.Len(t, w.Body.String(), 36)
}

func TestRecoveryIgnoresAbortedClients(t *testing.T) {
	engine := gin.New()
	engine.Use(Recovery())
	engine.GET("/", func(c *gin.Context) { panic(http.ErrAbortHandler) })
	w := serve(engine, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Zero(t, w.Body.Len())
}

func TestRateLimitPerClient(t *testing.T) {
	engine := gin.New()
	engine.Use(NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 2}).RateLimit())
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	from := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		return serve(engine, req).Code
	}
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, from("10.0.0.1"))
	assert.Equal(t, http.StatusOK, from("10.0.0.2"))
}

func TestSizeLimit(t *testing.T) {
	engine := gin.New()
	engine.Use(SizeLimit(SecurityConfig{MaxBodySize: 8}))
	engine.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = serve(engine, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("small")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCORSOnlyEchoesAllowedOrigins(t *testing.T) {
	config := DefaultCORSConfig()
	config.AllowOrigins = []string{"http://localhost:5173"}
	engine := gin.New()
	engine.Use(CORS(config))
	engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w := serve(engine, req)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = serve(engine, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	w = serve(engine, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestCORSWildcardNeverWithCredentials(t *testing.T) {
	origin := func(config CORSConfig) (string, string) {
		engine := gin.New()
		engine.Use(CORS(config))
		engine.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "http://evil.test")
		w := serve(engine, req)
		return w.Header().Get("Access-Control-Allow-Origin"), w.Header().Get("Access-Control-Allow-Credentials")
	}

	config := DefaultCORSConfig()
	allowed, _ := origin(config)
	assert.Empty(t, allowed, "no origin allowed by default")

	config.AllowOrigins = []string{"*"}
	allowed, creds := origin(config)
	assert.Empty(t, allowed)
	assert.Empty(t, creds)

	config.AllowCredentials = false
	allowed, creds = origin(config)
	assert.Equal(t, "*", allowed)
	assert.Empty(t, creds)
}
