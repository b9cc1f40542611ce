// Package validation binds and validates request bodies, and previews how an entity bag would
// be indexed without linking it
package validation

import (
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/signature"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Bind decodes the request into a T and validates its struct tags
func Bind[T any](c echo.Context) (*T, error) {
	var req T
	if err := c.Bind(&req); err != nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := Struct(req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Struct validates v and reports every failed field as a 400 error
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s: failed '%s'", fe.Namespace(), fe.Tag()))
	}
	return httperror.NewHTTPError(http.StatusBadRequest, "invalid request").AddMetaValue("fields", fields)
}

// Register registers validation routes
func Register(g *echo.Group) {
	g.POST("/validate", ValidateEntityBag)
}

// ValidateResponse describes how a bag would be read by the linker
type ValidateResponse struct {
	Valid               bool                 `json:"valid"`
	Issues              []models.DecodeIssue `json:"issues,omitempty"`
	Empty               bool                 `json:"empty"`
	HasIdentifyingParty bool                 `json:"has_identifying_party"`
	LookupKeys          []string             `json:"lookup_keys"`
	Fingerprint         string               `json:"fingerprint"`
}

// ValidateEntityBag decodes an entity bag and reports its decode issues and lookup keys.
// Nothing is stored.
func ValidateEntityBag(c echo.Context) error {
	var bag models.EntityBag
	if err := c.Bind(&bag); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "entity bag must be a JSON object")
	}

	keys := signature.BagLookupKeys(&bag)
	if keys == nil {
		keys = []string{}
	}
	return c.JSON(http.StatusOK, ValidateResponse{
		Valid:               len(bag.Issues) == 0,
		Issues:              bag.Issues,
		Empty:               bag.IsEmpty(),
		HasIdentifyingParty: bag.HasIdentifyingParty(),
		LookupKeys:          keys,
		Fingerprint:         signature.BagFingerprint(&bag),
	})
}
