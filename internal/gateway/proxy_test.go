package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// newTestGateway wires a gateway over the given downstream URL for
// both the open auth prefix and the gated post prefix.
func newTestGateway(downstreamURL string) (*Gateway, *gin.Engine) {
	services := map[string]string{"auth": downstreamURL, "post": downstreamURL}
	registry := NewRegistry(BreakerConfig{
		Timeout:        2 * time.Second,
		ResetTimeout:   30 * time.Second,
		ErrorThreshold: 0.5,
		Window:         10 * time.Second,
		MinRequests:    4,
	}, []string{"auth", "post"})
	gw := New(NewTable(DefaultRoutes()), registry, services, testSecret)
	return gw, NewRouter(gw, 1000, time.Minute)
}

func doRequest(router *gin.Engine, method, path, token string, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestProxyRewritesAndForwards(t *testing.T) {
	var gotPath, gotUser atomic.Value
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		gotUser.Store(r.Header.Get("X-User-Id"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42"}`))
	}))
	defer downstream.Close()

	_, router := newTestGateway(downstream.URL)
	w := doRequest(router, http.MethodGet, "/posts/42", signToken(t, testSecret), "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"42"}`, w.Body.String())
	assert.Equal(t, "/42", gotPath.Load(), "prefix must be stripped before forwarding")
	assert.Equal(t, "u1", gotUser.Load(), "authenticated subject is forwarded")
}

func TestProxyAuthGate(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()
	_, router := newTestGateway(downstream.URL)

	w := doRequest(router, http.MethodGet, "/posts/42", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doRequest(router, http.MethodGet, "/posts/42", signToken(t, "wrong-secret"), "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// open prefix needs no credential
	w = doRequest(router, http.MethodPost, "/auth/login", "", `{"user":"u1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProxyPropagatesUpstreamFailureStatus(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer downstream.Close()
	_, router := newTestGateway(downstream.URL)

	w := doRequest(router, http.MethodGet, "/posts/42", signToken(t, testSecret), "")
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "post", body["service"])
	assert.NotEmpty(t, body["error"])
}

func TestProxyPassesClientErrorsThrough(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"no such post"}`))
	}))
	defer downstream.Close()
	gw, router := newTestGateway(downstream.URL)

	w := doRequest(router, http.MethodGet, "/posts/42", signToken(t, testSecret), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"no such post"}`, w.Body.String())

	// a 4xx is the downstream answering, not failing
	breaker, _ := gw.registry.Get("post")
	assert.Equal(t, StateClosed, breaker.State())
}

func TestProxyShortCircuitsWhenBreakerOpens(t *testing.T) {
	var hits atomic.Int64
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer downstream.Close()
	_, router := newTestGateway(downstream.URL)
	token := signToken(t, testSecret)

	for i := 0; i < 4; i++ {
		w := doRequest(router, http.MethodGet, "/posts/42", token, "")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	}
	require.Equal(t, int64(4), hits.Load())

	// breaker tripped: fallback without touching the downstream
	w := doRequest(router, http.MethodGet, "/posts/42", token, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, int64(4), hits.Load(), "open breaker must not forward")

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "post", body["service"])
}

func TestProxyUnmatchedRouteIs404(t *testing.T) {
	_, router := newTestGateway("http://localhost:1")

	w := doRequest(router, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGatewayHealthBypassesProxy(t *testing.T) {
	_, router := newTestGateway("http://localhost:1")

	w := doRequest(router, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestRateLimitExceeded(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer downstream.Close()

	services := map[string]string{"auth": downstream.URL}
	registry := NewRegistry(BreakerConfig{}, []string{"auth"})
	gw := New(NewTable(DefaultRoutes()), registry, services, testSecret)
	router := NewRouter(gw, 2, time.Hour)

	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/auth/login", "", "{}").Code)
	assert.Equal(t, http.StatusOK, doRequest(router, http.MethodPost, "/auth/login", "", "{}").Code)
	assert.Equal(t, http.StatusTooManyRequests, doRequest(router, http.MethodPost, "/auth/login", "", "{}").Code)
}
