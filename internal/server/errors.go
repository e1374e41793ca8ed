// Package server provides the HTTP API for the search coordinator.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/talent-search/internal/grading"
	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/schemas"
	"github.com/jonathan/talent-search/internal/webhook"
)

// ErrValidation indicates a malformed request that never reached a service.
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error  string               `json:"error"`
	Rule   string               `json:"rule,omitempty"`
	Fields []schemas.FieldError `json:"fields,omitempty"`
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		gradingErr grading.ValidationError
		payloadErr *webhook.PayloadError
		briefErr   *intake.InvalidBriefError
		schemaErr  *schemas.ValidationError
		reqErr     *ErrValidation
		tooLarge   *http.MaxBytesError
	)
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.Is(err, webhook.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.As(err, &gradingErr),
		errors.As(err, &payloadErr),
		errors.As(err, &briefErr),
		errors.As(err, &schemaErr),
		errors.As(err, &reqErr):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, lifecycle.ErrStateConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// bodyFor builds the response body for err. Server errors never leak detail.
func bodyFor(err error, status int) errorBody {
	if status >= http.StatusInternalServerError {
		if errors.Is(err, webhook.ErrNotConfigured) {
			return errorBody{Error: "webhook not configured"}
		}
		return errorBody{Error: "internal error"}
	}

	body := errorBody{Error: err.Error()}

	var (
		gradingErr grading.ValidationError
		payloadErr *webhook.PayloadError
		briefErr   *intake.InvalidBriefError
		schemaErr  *schemas.ValidationError
		reqErr     *ErrValidation
	)
	switch {
	case errors.As(err, &gradingErr):
		body.Rule = gradingErr.Rule()
	case errors.As(err, &payloadErr):
		body.Error = "invalid payload"
		body.Fields = payloadErr.Fields
	case errors.As(err, &briefErr):
		body.Rule = briefErr.Rule
		body.Fields = []schemas.FieldError{{Field: briefErr.Field, Message: briefErr.Rule}}
	case errors.As(err, &schemaErr):
		body.Error = "invalid payload"
		body.Rule = "schema"
		body.Fields = schemaErr.Errors
	case errors.As(err, &reqErr):
		body.Fields = []schemas.FieldError{{Field: reqErr.Field, Message: reqErr.Message}}
	}
	return body
}
