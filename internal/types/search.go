// Package types provides type definitions for structured data used throughout the talent-search system.
package types

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Search.
type Status string

const (
	// StatusDraft exists in older rows only; nothing produces it.
	StatusDraft            Status = "draft"
	StatusSubmitted        Status = "submitted"
	StatusGradingConfirmed Status = "grading_confirmed"
	StatusProcessing       Status = "processing"
	StatusReady            Status = "ready"
	StatusFailed           Status = "failed"
)

// statusRank orders statuses along the forward path. ready and failed share
// the terminal rank.
var statusRank = map[Status]int{
	StatusDraft:            0,
	StatusSubmitted:        1,
	StatusGradingConfirmed: 2,
	StatusProcessing:       3,
	StatusReady:            4,
	StatusFailed:           4,
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusRank[st]; !ok {
		return "", fmt.Errorf("unknown search status %q", s)
	}
	return st, nil
}

// Rank returns the position of s in the forward ordering, or -1 if unknown.
func (s Status) Rank() int {
	r, ok := statusRank[s]
	if !ok {
		return -1
	}
	return r
}

// IsTerminal reports whether s is a sink state.
func (s Status) IsTerminal() bool {
	return s == StatusReady || s == StatusFailed
}

func (s Status) String() string { return string(s) }

// Dimension is a named grading criterion with a human-authored rationale.
type Dimension struct {
	Name   string `json:"name" validate:"required"`
	Reason string `json:"reason"`
}

// Criteria holds the structured brief fields. The lifecycle core treats it as opaque.
type Criteria struct {
	JobTitle           string `json:"job_title,omitempty"`
	Seniority          string `json:"seniority,omitempty"`
	LocationPreference string `json:"location_preference,omitempty"`
	EmploymentType     string `json:"employment_type,omitempty"`
	MustHaveKeywords   string `json:"must_have_keywords,omitempty"`
	NiceToHaveKeywords string `json:"nice_to_have_keywords,omitempty"`
	BudgetSalaryRange  string `json:"budget_salary_range,omitempty"`
	Company            string `json:"company,omitempty"`
}

// Search is one requester's candidate-sourcing request and its lifecycle record.
type Search struct {
	ID              uuid.UUID          `json:"id"`
	Name            string             `json:"name"`
	JobDescription  string             `json:"job_description"`
	ContactName     string             `json:"contact_name"`
	ContactEmail    string             `json:"contact_email"`
	Comments        string             `json:"comments,omitempty"`
	Status          Status             `json:"status"`
	Weights         map[string]float64 `json:"weights,omitempty"`
	Dimensions      []Dimension        `json:"dimensions,omitempty"`
	Criteria        Criteria           `json:"criteria"`
	ResultURL       *string            `json:"result_url,omitempty"`
	AutomationRunID *string            `json:"automation_run_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

// Attachment is a file uploaded with a brief. Immutable after creation.
type Attachment struct {
	ID         uuid.UUID `json:"id"`
	SearchID   uuid.UUID `json:"search_id"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	FileSize   int64     `json:"file_size"`
	StorageKey string    `json:"storage_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// EventType tags an audit log entry.
type EventType string

const (
	EventFormSubmitted       EventType = "form_submitted"
	EventGradingConfirmed    EventType = "grading_confirmed"
	EventAutomationCompleted EventType = "automation_completed"
)

// Event is an append-only audit entry owned by a Search.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	SearchID  uuid.UUID       `json:"search_id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewEvent builds an event with a fresh id and the given payload snapshot.
func NewEvent(searchID uuid.UUID, eventType EventType, payload json.RawMessage) Event {
	return Event{
		ID:       uuid.New(),
		SearchID: searchID,
		Type:     eventType,
		Payload:  payload,
	}
}

// SearchDetail is the read model returned by GET /searches/{id}.
type SearchDetail struct {
	Search
	Attachments []Attachment `json:"attachments"`
	Events      []Event      `json:"events"`
}
