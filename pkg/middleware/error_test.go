package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMeta bool
	}{
		{
			name:     "http error",
			err:      httperror.NewHTTPError(http.StatusNotFound, "case x not found"),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "wrapped http error",
			err:      fmt.Errorf("merge case x: %w", httperror.NewHTTPError(http.StatusConflict, "reference taken")),
			wantCode: http.StatusConflict,
		},
		{
			name:     "wrapped http error with meta",
			err:      fmt.Errorf("bind: %w", httperror.NewHTTPError(http.StatusBadRequest, "invalid request").AddMetaValue("fields", []string{"document_id"})),
			wantCode: http.StatusBadRequest,
			wantMeta: true,
		},
		{
			name:     "echo error",
			err:      echo.NewHTTPError(http.StatusUnauthorized, "missing bearer"),
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "plain error",
			err:      errors.New("boom"),
			wantCode: http.StatusInternalServerError,
		},
	}

	handler := Error(ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {}))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			handler(tt.err, c)

			assert.Equal(t, tt.wantCode, rec.Code)
			var res ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
			assert.NotEmpty(t, res.Message)
			if tt.wantMeta {
				assert.Contains(t, res.Meta, "fields")
			}
		})
	}
}
