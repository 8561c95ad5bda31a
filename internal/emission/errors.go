package emission

import (
	"fmt"
	"net/http"

	apperrors "github.com/carbon-tracker/internal/errors"
)

type constError string

func (e constError) Error() string { return string(e) }

// Sentinel causes carried by calculator validation errors
var (
	ErrUnknownType   = constError("unknown activity type")
	ErrUnknownMode   = constError("unknown transport mode")
	ErrUnknownDiet   = constError("unknown diet type")
	ErrMissingField  = constError("missing required field")
	ErrInvalidNumber = constError("invalid number")
)

// invalid builds a 400 error naming field whose cause is the sentinel
func invalid(field string, cause constError, detail string) error {
	msg := fmt.Sprintf("invalid %s: %s", field, cause)
	if detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, detail)
	}
	return &apperrors.CategorizedError{
		Category:   apperrors.CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    msg,
		Cause:      cause,
	}
}
