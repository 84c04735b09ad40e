package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/d60-Lab/feedgate/pkg/logger"
	"github.com/d60-Lab/feedgate/pkg/response"
)

// hop-by-hop headers never forwarded in either direction
var hopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// upstreamError carries a downstream 5xx through the breaker so the
// proxy can propagate the original status.
type upstreamError struct {
	status int
}

func (e *upstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d", e.status)
}

// Gateway dispatches inbound requests to downstream services through
// per-service circuit breakers.
type Gateway struct {
	table    *Table
	registry *Registry
	services map[string]string // service name -> base URL
	secret   string
	client   *http.Client
}

func New(table *Table, registry *Registry, services map[string]string, jwtSecret string) *Gateway {
	return &Gateway{
		table:    table,
		registry: registry,
		services: services,
		secret:   jwtSecret,
		// per-call deadlines come from the breaker; the transport
		// only bounds dialing and idle pooling
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 32,
			IdleConnTimeout:     90 * time.Second,
		}},
	}
}

// Handler is mounted as the catch-all route: resolve rule, gate auth,
// rewrite, forward through the target's breaker.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, ok := g.table.Match(c.Request.Method, c.Request.URL.Path)
		if !ok {
			response.Error(c, http.StatusNotFound, "not found")
			return
		}

		userID := ""
		if rule.RequiresAuth {
			var err error
			userID, err = authenticate(c.GetHeader("Authorization"), g.secret)
			if errors.Is(err, errNoToken) {
				response.Error(c, http.StatusUnauthorized, "no token provided")
				return
			}
			if err != nil {
				response.Error(c, http.StatusForbidden, "invalid token")
				return
			}
		}

		base, ok := g.services[rule.Target]
		if !ok {
			response.ServiceError(c, http.StatusInternalServerError, rule.Target, "service not configured")
			return
		}
		breaker, ok := g.registry.Get(rule.Target)
		if !ok {
			response.ServiceError(c, http.StatusInternalServerError, rule.Target, "no breaker for service")
			return
		}

		g.forward(c, rule, breaker, base, userID)
	}
}

func (g *Gateway) forward(c *gin.Context, rule RouteRule, breaker *Breaker, base, userID string) {
	target := strings.TrimSuffix(base, "/") + rule.Rewrite(c.Request.URL.Path)
	if q := c.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "unreadable request body")
		return
	}

	logger.Info("routing",
		zap.String("method", c.Request.Method),
		zap.String("target", target),
		zap.String("service", rule.Target))

	var status int
	var header http.Header
	var respBody []byte
	callErr := breaker.Do(c.Request.Context(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, c.Request.Method, target, bytes.NewReader(body))
		if err != nil {
			return err
		}
		copyHeaders(req.Header, c.Request.Header)
		if userID != "" {
			req.Header.Set("X-User-Id", userID)
		}

		res, err := g.client.Do(req)
		if err != nil {
			return err
		}
		defer res.Body.Close()
		data, err := io.ReadAll(res.Body)
		if err != nil {
			return err
		}
		if res.StatusCode >= http.StatusInternalServerError {
			return &upstreamError{status: res.StatusCode}
		}
		status, header, respBody = res.StatusCode, res.Header, data
		return nil
	})

	if callErr != nil {
		logger.Error("downstream call failed",
			zap.String("service", rule.Target),
			zap.Error(callErr))
		fallbackStatus := http.StatusInternalServerError
		var ue *upstreamError
		if errors.As(callErr, &ue) {
			fallbackStatus = ue.status
		}
		response.ServiceError(c, fallbackStatus, rule.Target, callErr.Error())
		return
	}

	copyHeaders(c.Writer.Header(), header)
	c.Data(status, header.Get("Content-Type"), respBody)
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		if isHopHeader(k) || strings.EqualFold(k, "Host") {
			continue
		}
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

func isHopHeader(name string) bool {
	for _, h := range hopHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
