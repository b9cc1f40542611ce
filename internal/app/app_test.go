package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/config"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/store"
)

func memoryApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.App.Store = config.StoreMemory
	require.NoError(t, cfg.Validate())

	a := New(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func TestApp_MemoryWiring(t *testing.T) {
	a := memoryApp(t)
	ctx := context.Background()

	assert.IsType(t, &store.Memory{}, a.Store)
	assert.Nil(t, a.DB())
	assert.Nil(t, a.Related)

	first, err := a.Linker.LinkDocument(ctx, &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Court: "2590/2025"},
		Parties:     []models.BagParty{{NameEn: "Ahmed Ali", PersonalID: "784-1990-1234567-1", Role: "defendant"}},
	}, "court-filing")
	require.NoError(t, err)
	assert.True(t, first.WasCreated)

	second, err := a.Linker.LinkDocument(ctx, &models.EntityBag{
		CaseNumbers: models.BagCaseNumbers{Court: "2590/2025"},
	}, "hearing-minutes")
	require.NoError(t, err)
	assert.Equal(t, first.CaseID, second.CaseID)

	link, err := a.Store.GetDocumentLink(ctx, "hearing-minutes", first.CaseID)
	require.NoError(t, err)
	assert.Equal(t, a.Config.Linking.MinConfidence, link.LinkingParams["min_confidence"])
}

func TestApp_Router(t *testing.T) {
	a := memoryApp(t)
	router, err := a.Router(context.Background())
	require.NoError(t, err)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "health", method: http.MethodGet, path: "/api/v1/health", status: http.StatusOK},
		{name: "not ready before serving", method: http.MethodGet, path: "/api/v1/health/ready", status: http.StatusServiceUnavailable},
		{name: "metrics", method: http.MethodGet, path: "/metrics", status: http.StatusOK},
		{
			name:   "link",
			method: http.MethodPost,
			path:   "/api/v1/cases/link",
			body:   `{"document_id": "doc-1", "entity_bag": {"case_numbers": {"police": "77/2025"}}}`,
			status: http.StatusCreated,
		},
		{name: "merge candidates", method: http.MethodGet, path: "/api/v1/merge-candidates", status: http.StatusOK},
		{name: "duplicates", method: http.MethodGet, path: "/api/v1/cases/duplicates", status: http.StatusOK},
		{name: "validate", method: http.MethodPost, path: "/api/v1/entity-bags/validate", body: `{"case_numbers": {"court": "1/2025"}}`, status: http.StatusOK},
		{name: "unknown case", method: http.MethodGet, path: "/api/v1/cases/missing", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
		})
	}

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/cases/missing", nil)
		req.Header.Set(echo.HeaderXRequestID, "req-42")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var body struct {
			RequestID string `json:"request_id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "req-42", body.RequestID)
	})
}

func TestApp_StartFailsWithoutDatabase(t *testing.T) {
	cfg := config.Default()
	cfg.App.StartupMaxAttempts = 1
	cfg.Database.Host = "127.0.0.1"
	cfg.Database.Port = 1

	a := New(cfg, ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	err := a.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 1 attempts")
	assert.Nil(t, a.Linker)
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LogConfig
		wantErr bool
	}{
		{name: "production", cfg: config.LogConfig{Level: "info"}},
		{name: "pretty debug", cfg: config.LogConfig{Level: "debug", Pretty: true}},
		{name: "default level", cfg: config.LogConfig{}},
		{name: "unknown level", cfg: config.LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, sync, err := NewLogger(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, logger)
			sync()
		})
	}
}
