package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/sitemedic/sitemedic/pkg/analyzer"
	"github.com/sitemedic/sitemedic/pkg/reinstall"
	"github.com/sitemedic/sitemedic/pkg/sigscan"
	"github.com/sitemedic/sitemedic/pkg/storage"
)

var validate = validator.New()

// decodeAndValidate parses a JSON request body into v and runs struct
// validation. Unknown fields are rejected to surface client typos early.
func decodeAndValidate(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// httpStatus maps component errors onto response codes. Anything unmapped is
// a 500.
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case storage.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidToken),
		errors.Is(err, reinstall.ErrInvalidBatch):
		return http.StatusBadRequest
	case errors.Is(err, analyzer.ErrPluginsDirNotWritable):
		return http.StatusConflict
	case errors.Is(err, sigscan.ErrOutsideRoot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
