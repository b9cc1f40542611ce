package validation

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

func post(t *testing.T, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	Register(e.Group("/api/v1/entity-bags"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/entity-bags/validate", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestValidateEntityBag(t *testing.T) {
	rec := post(t, `{
		"case_numbers": {"court": "2590/2025"},
		"parties": [{"name_en": "Ahmed Ali", "personal_id": "784-1990-1234567-1"}, "not a party"]
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.False(t, res.Valid)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, "parties", res.Issues[0].Field)
	assert.True(t, res.HasIdentifyingParty)
	assert.False(t, res.Empty)
	assert.NotEmpty(t, res.Fingerprint)
	assert.Contains(t, res.LookupKeys, "ref:2590/2025")
}

func TestValidateEntityBag_Empty(t *testing.T) {
	rec := post(t, `{}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var res ValidateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Valid)
	assert.True(t, res.Empty)
	assert.Empty(t, res.LookupKeys)
}

func TestStruct(t *testing.T) {
	assert.NoError(t, Struct(models.MergeCasesRequest{AbsorbedIDs: []string{"a"}}))

	err := Struct(models.MergeCasesRequest{AbsorbedIDs: []string{""}})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))

	err = Struct(models.LinkDocumentRequest{})
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}
