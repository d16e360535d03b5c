package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticStatus map[string]any

func (s staticStatus) Status() map[string]any { return s }

func healthy() HealthChecker {
	return HealthCheckFunc(func(context.Context) error { return nil })
}

func failing(msg string) HealthChecker {
	return HealthCheckFunc(func(context.Context) error { return errors.New(msg) })
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthHandler_Readiness(t *testing.T) {
	t.Run("all dependencies up", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthChecker{
			"mongo":    healthy(),
			"postgres": healthy(),
		}, nil, "v1.2.3")

		rec := httptest.NewRecorder()
		h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "v1.2.3", body["version"])
		checks := body["checks"].(map[string]any)
		assert.Len(t, checks, 2)
	})

	t.Run("one dependency down", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthChecker{
			"mongo":    failing("no primary"),
			"postgres": healthy(),
		}, nil, "v1")

		rec := httptest.NewRecorder()
		h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "unhealthy", body["status"])
		mongo := body["checks"].(map[string]any)["mongo"].(map[string]any)
		assert.Equal(t, "unhealthy", mongo["status"])
		assert.Equal(t, "no primary", mongo["message"])
	})

	t.Run("nil checker counts as down", func(t *testing.T) {
		h := NewHealthHandler(map[string]HealthChecker{"postgres": nil}, nil, "v1")

		rec := httptest.NewRecorder()
		h.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestHealthHandler_Health(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{"mongo": failing("timeout")},
		staticStatus{"connected_clients": 3}, "v1")

	rec := httptest.NewRecorder()
	h.HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body, "memory")
	assert.Equal(t, float64(3), body["runtime"].(map[string]any)["connected_clients"])
}

func TestHealthHandler_Liveness(t *testing.T) {
	h := NewHealthHandler(map[string]HealthChecker{"mongo": failing("down")}, nil, "v1")

	rec := httptest.NewRecorder()
	h.HandleLiveness(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	assert.Equal(t, http.StatusOK, rec.Code, "liveness does not depend on the stores")
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}
