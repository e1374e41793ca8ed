package lifecycle

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/types"
)

// Callback is a verified, decoded report from the automation system. The
// concrete type fixes the target status and the fields that transition needs.
type Callback interface {
	Meta() CallbackMeta
	Target() types.Status
}

// CallbackMeta carries the fields every callback shares.
type CallbackMeta struct {
	SearchID uuid.UUID
	RunID    string
	Summary  string
	// Raw is the verified request body, stored verbatim as the event payload.
	Raw json.RawMessage
}

// ProcessingCallback reports that the automation run has started.
type ProcessingCallback struct {
	CallbackMeta
}

// ReadyCallback reports a finished run. ResultURL may be empty, in which
// case the stored value is kept.
type ReadyCallback struct {
	CallbackMeta
	ResultURL string
}

// FailedCallback reports a failed run.
type FailedCallback struct {
	CallbackMeta
}

func (c ProcessingCallback) Meta() CallbackMeta   { return c.CallbackMeta }
func (c ProcessingCallback) Target() types.Status { return types.StatusProcessing }

func (c ReadyCallback) Meta() CallbackMeta   { return c.CallbackMeta }
func (c ReadyCallback) Target() types.Status { return types.StatusReady }

func (c FailedCallback) Meta() CallbackMeta   { return c.CallbackMeta }
func (c FailedCallback) Target() types.Status { return types.StatusFailed }
