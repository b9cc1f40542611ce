package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(e *echo.Echo, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		want       string
	}{
		{name: "no dependencies", wantStatus: http.StatusOK, want: "healthy"},
		{
			name: "all healthy",
			checks: map[string]Check{
				"database": func(ctx context.Context) error { return nil },
				"redis":    func(ctx context.Context) error { return nil },
			},
			wantStatus: http.StatusOK,
			want:       "healthy",
		},
		{
			name: "one failing",
			checks: map[string]Check{
				"database": func(ctx context.Context) error { return nil },
				"graph":    func(ctx context.Context) error { return errors.New("connection refused") },
			},
			wantStatus: http.StatusServiceUnavailable,
			want:       "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := NewChecker("1.2.3")
			for name, check := range tt.checks {
				checker.AddCheck(name, check)
			}
			e := echo.New()
			checker.RegisterRoutes(e)

			rec := serve(e, "/api/v1/health")
			assert.Equal(t, tt.wantStatus, rec.Code)

			var body HealthStatus
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.want, body.Status)
			assert.Equal(t, "1.2.3", body.Version)
			assert.Len(t, body.Checks, len(tt.checks))
			if graph, ok := body.Checks["graph"]; ok {
				assert.Equal(t, "connection refused", graph.Message)
			}
		})
	}
}

func TestLiveAndReady(t *testing.T) {
	checker := NewChecker("dev")
	e := echo.New()
	checker.RegisterRoutes(e)

	assert.Equal(t, http.StatusOK, serve(e, "/api/v1/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(e, "/api/v1/health/ready").Code)

	checker.SetReady(true)
	assert.Equal(t, http.StatusOK, serve(e, "/api/v1/health/ready").Code)
}
