package webhook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jonathan/talent-search/internal/schemas"
)

var (
	// ErrNotConfigured is returned when no webhook secret was supplied at startup.
	ErrNotConfigured = errors.New("webhook secret not configured")
	// ErrAuthentication is returned for a missing or invalid signature. It
	// deliberately carries no detail about what was wrong.
	ErrAuthentication = errors.New("invalid signature")
)

// PayloadError reports a verified body that does not match the callback format.
type PayloadError struct {
	Fields []schemas.FieldError
}

func (e *PayloadError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return fmt.Sprintf("invalid callback payload: %s", strings.Join(names, ", "))
}
