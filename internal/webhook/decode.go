package webhook

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/schemas"
	"github.com/jonathan/talent-search/internal/types"
)

// payload is the callback wire format.
type payload struct {
	SearchID  string  `json:"search_id"`
	Status    string  `json:"status"`
	ResultURL *string `json:"result_url,omitempty"`
	RunID     *string `json:"n8n_run_id,omitempty"`
	Summary   *string `json:"summary,omitempty"`
}

// decode turns a schema-valid body into its tagged callback variant.
func decode(raw []byte) (lifecycle.Callback, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, &PayloadError{Fields: []schemas.FieldError{{Field: "(root)", Message: err.Error()}}}
	}

	id, err := uuid.Parse(p.SearchID)
	if err != nil {
		return nil, &PayloadError{Fields: []schemas.FieldError{{Field: "search_id", Message: "must be a UUID"}}}
	}

	meta := lifecycle.CallbackMeta{SearchID: id, Raw: json.RawMessage(raw)}
	if p.RunID != nil {
		meta.RunID = *p.RunID
	}
	if p.Summary != nil {
		meta.Summary = *p.Summary
	}

	switch types.Status(p.Status) {
	case types.StatusProcessing:
		return lifecycle.ProcessingCallback{CallbackMeta: meta}, nil
	case types.StatusReady:
		cb := lifecycle.ReadyCallback{CallbackMeta: meta}
		if p.ResultURL != nil {
			cb.ResultURL = *p.ResultURL
		}
		return cb, nil
	case types.StatusFailed:
		return lifecycle.FailedCallback{CallbackMeta: meta}, nil
	default:
		return nil, &PayloadError{Fields: []schemas.FieldError{{Field: "status", Message: "must be one of processing, ready, failed"}}}
	}
}
