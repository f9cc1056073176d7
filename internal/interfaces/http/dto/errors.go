package dto

import (
	"errors"
	"net/http"

	"github.com/finplat/backend/internal/domain/accounting"
)

// Error codes returned by the ops surface.
const (
	CodeInternal      = "ERR_INTERNAL"
	CodeValidation    = "ERR_VALIDATION"
	CodeNotFound      = "ERR_NOT_FOUND"
	CodeAlreadyExists = "ERR_ALREADY_EXISTS"
	CodeNotEnabled    = "ERR_NOT_ENABLED"
	CodeBadTenant     = "ERR_TENANT_REQUIRED"
)

// MapDomainError translates domain sentinel errors into an HTTP status and
// stable error code. Unrecognized errors map to a 500 without leaking the
// underlying message.
func MapDomainError(err error) (int, Response) {
	switch {
	case errors.Is(err, accounting.ErrConfigNotFound),
		errors.Is(err, accounting.ErrSyncLogNotFound),
		errors.Is(err, accounting.ErrSyncErrorNotFound):
		return http.StatusNotFound, Fail(CodeNotFound, err.Error())
	case errors.Is(err, accounting.ErrConfigAlreadyExists):
		return http.StatusConflict, Fail(CodeAlreadyExists, err.Error())
	case errors.Is(err, accounting.ErrConfigNotEnabled):
		return http.StatusConflict, Fail(CodeNotEnabled, err.Error())
	case errors.Is(err, accounting.ErrInvalidSystem),
		errors.Is(err, accounting.ErrInvalidSettings):
		return http.StatusBadRequest, Fail(CodeValidation, err.Error())
	default:
		return http.StatusInternalServerError, Fail(CodeInternal, "internal error")
	}
}
