package server

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/talent-search/internal/grading"
	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/schemas"
	"github.com/jonathan/talent-search/internal/types"
	"github.com/jonathan/talent-search/internal/webhook"
)

func TestErrValidation(t *testing.T) {
	err := &ErrValidation{Field: "id", Message: "must be a UUID"}
	assert.Equal(t, "validation error: id - must be a UUID", err.Error())
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))
}

func TestHTTPStatus(t *testing.T) {
	id := uuid.New()

	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{"weight sum", &grading.WeightSumError{Sum: 99}, http.StatusBadRequest},
		{"weight keys", &grading.WeightKeyMismatchError{Missing: []string{"A"}}, http.StatusBadRequest},
		{"wrapped grading", fmt.Errorf("confirm: %w", &grading.WeightRangeError{Name: "A", Value: -1}), http.StatusBadRequest},
		{"invalid signature", webhook.ErrAuthentication, http.StatusUnauthorized},
		{"payload", &webhook.PayloadError{}, http.StatusBadRequest},
		{"brief", &intake.InvalidBriefError{Field: "name", Rule: "required"}, http.StatusBadRequest},
		{"schema", &schemas.ValidationError{}, http.StatusBadRequest},
		{"too large", &http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{"not found", &lifecycle.NotFoundError{ID: id}, http.StatusNotFound},
		{"conflict", &lifecycle.StateConflictError{ID: id, Current: types.StatusReady, Attempted: types.StatusProcessing}, http.StatusConflict},
		{"not configured", webhook.ErrNotConfigured, http.StatusInternalServerError},
		{"unknown error", assert.AnError, http.StatusInternalServerError},
		{"nil error", nil, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTTPStatus(tt.err))
		})
	}
}

func TestBodyFor(t *testing.T) {
	t.Run("grading names the rule", func(t *testing.T) {
		err := &grading.WeightSumError{Sum: 101}
		body := bodyFor(err, HTTPStatus(err))
		assert.Equal(t, "weight_sum", body.Rule)
		assert.Equal(t, err.Error(), body.Error)
	})

	t.Run("payload lists fields", func(t *testing.T) {
		err := &webhook.PayloadError{Fields: []schemas.FieldError{{Field: "status", Message: "bad"}}}
		body := bodyFor(err, HTTPStatus(err))
		assert.Equal(t, "invalid payload", body.Error)
		assert.Equal(t, err.Fields, body.Fields)
	})

	t.Run("brief", func(t *testing.T) {
		err := &intake.InvalidBriefError{Field: "contact_email", Rule: "email"}
		body := bodyFor(err, HTTPStatus(err))
		assert.Equal(t, "email", body.Rule)
		assert.Equal(t, "contact_email", body.Fields[0].Field)
	})

	t.Run("signature carries no detail", func(t *testing.T) {
		body := bodyFor(webhook.ErrAuthentication, http.StatusUnauthorized)
		assert.Equal(t, errorBody{Error: "invalid signature"}, body)
	})

	t.Run("internal errors are generic", func(t *testing.T) {
		body := bodyFor(fmt.Errorf("pq: password authentication failed"), http.StatusInternalServerError)
		assert.Equal(t, errorBody{Error: "internal error"}, body)
	})
}

func TestRequestError(t *testing.T) {
	req := types.ConfirmGradingRequest{Weights: map[string]float64{"A": 100}}
	err := requestError(req.Validate())

	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "dimensions", ve.Field)
	assert.Equal(t, "failed required", ve.Message)
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	assert.Equal(t, assert.AnError, requestError(assert.AnError))
}
