// Package lifecycle owns the status of a Search: the legal transitions, the
// guards on them and the side effects attached to each.
//
// Status only moves forward:
//
//	submitted -> grading_confirmed -> processing -> ready | failed
//
// ready and failed are sinks. The automation system may skip processing.
// There is no in-process locking; every transition is a compare-and-set on
// the current status in the record store, and re-delivered callbacks are
// recognised as duplicates and accepted without effect.
package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/grading"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/metrics"
	"github.com/jonathan/talent-search/internal/types"
)

// Update lists the fields a transition writes. Nil fields keep their stored value.
type Update struct {
	Status          types.Status
	Weights         map[string]float64
	Dimensions      []types.Dimension
	ResultURL       *string
	AutomationRunID *string
}

// Store is the record store contract the state machine needs.
type Store interface {
	// GetSearch returns nil, nil when the search does not exist.
	GetSearch(ctx context.Context, id uuid.UUID) (*types.Search, error)
	// TransitionWithEvent applies upd only if the stored status still equals
	// from, and appends ev in the same unit of work. It returns ErrStaleStatus
	// when the status no longer matches.
	TransitionWithEvent(ctx context.Context, id uuid.UUID, from types.Status, upd Update, ev types.Event) error
}

// Notifier tells the automation system that grading was confirmed. It must
// not block on delivery and must not report delivery failures.
type Notifier interface {
	Notify(ctx context.Context, search *types.Search)
}

// Outcome describes what ApplyCallback did.
type Outcome struct {
	SearchID uuid.UUID
	Previous types.Status
	Status   types.Status
	// Duplicate is set when the callback was accepted without effect.
	Duplicate bool
}

// CanTransition reports whether the state machine allows moving from one status to another.
func CanTransition(from, to types.Status) bool {
	switch from {
	case types.StatusSubmitted:
		return to == types.StatusGradingConfirmed
	case types.StatusGradingConfirmed:
		return to == types.StatusProcessing || to.IsTerminal()
	case types.StatusProcessing:
		return to.IsTerminal()
	default:
		return false
	}
}

// Machine drives search transitions.
type Machine struct {
	store    Store
	notifier Notifier
	log      logger.Logger
}

// New creates a state machine over store. notifier may be nil when outbound
// notifications are disabled.
func New(store Store, notifier Notifier, log logger.Logger) *Machine {
	if log == nil {
		log = logger.Nop()
	}
	return &Machine{store: store, notifier: notifier, log: log}
}

// ConfirmGrading validates the operator's weights and moves a submitted
// search to grading_confirmed. The automation system is notified only after
// the transition is persisted, and a failed notification never fails the call.
func (m *Machine) ConfirmGrading(ctx context.Context, id uuid.UUID, req types.ConfirmGradingRequest) (*types.Search, error) {
	if err := grading.Validate(req.Dimensions, req.Weights); err != nil {
		return nil, err
	}

	search, err := m.store.GetSearch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load search: %w", err)
	}
	if search == nil {
		return nil, &NotFoundError{ID: id}
	}
	if !CanTransition(search.Status, types.StatusGradingConfirmed) {
		return nil, &StateConflictError{ID: id, Current: search.Status, Attempted: types.StatusGradingConfirmed}
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal grading payload: %w", err)
	}

	upd := Update{
		Status:     types.StatusGradingConfirmed,
		Weights:    req.Weights,
		Dimensions: req.Dimensions,
	}
	ev := types.NewEvent(id, types.EventGradingConfirmed, payload)

	if err := m.store.TransitionWithEvent(ctx, id, search.Status, upd, ev); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return nil, m.conflictAfterRace(ctx, id, types.StatusGradingConfirmed)
		}
		return nil, fmt.Errorf("failed to confirm grading: %w", err)
	}

	previous := search.Status
	search.Status = types.StatusGradingConfirmed
	search.Weights = req.Weights
	search.Dimensions = req.Dimensions

	metrics.ObserveTransition(previous.String(), search.Status.String())
	logger.FromContext(ctx, m.log).Info("grading confirmed",
		logger.String("search_id", id.String()),
		logger.Int("dimensions", len(req.Dimensions)))

	if m.notifier != nil {
		m.notifier.Notify(ctx, search)
	}
	return search, nil
}

// conflictAfterRace re-reads the search after a lost compare-and-set so the
// error reports the status the winner left behind.
func (m *Machine) conflictAfterRace(ctx context.Context, id uuid.UUID, attempted types.Status) error {
	current, err := m.store.GetSearch(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload search: %w", err)
	}
	if current == nil {
		return &NotFoundError{ID: id}
	}
	return &StateConflictError{ID: id, Current: current.Status, Attempted: attempted}
}

// ApplyCallback applies a verified automation callback. Re-deliveries, and
// callbacks that arrive after the search has already moved past their
// target, are accepted as duplicates without mutating anything.
func (m *Machine) ApplyCallback(ctx context.Context, cb Callback) (Outcome, error) {
	id := cb.Meta().SearchID

	search, err := m.store.GetSearch(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load search: %w", err)
	}
	if search == nil {
		return Outcome{}, &NotFoundError{ID: id}
	}

	outcome, err := m.apply(ctx, search, cb)
	if !errors.Is(err, ErrStaleStatus) {
		return outcome, err
	}

	// Another delivery won the compare-and-set. Judge this one against what it left.
	search, err = m.store.GetSearch(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to reload search: %w", err)
	}
	if search == nil {
		return Outcome{}, &NotFoundError{ID: id}
	}
	outcome, err = m.apply(ctx, search, cb)
	if errors.Is(err, ErrStaleStatus) {
		return Outcome{}, &StateConflictError{ID: id, Current: search.Status, Attempted: cb.Target()}
	}
	return outcome, err
}

func (m *Machine) apply(ctx context.Context, search *types.Search, cb Callback) (Outcome, error) {
	meta := cb.Meta()
	target := cb.Target()
	outcome := Outcome{SearchID: search.ID, Previous: search.Status, Status: search.Status}

	log := logger.FromContext(ctx, m.log).With(
		logger.String("search_id", search.ID.String()),
		logger.String("from", search.Status.String()),
		logger.String("to", target.String()),
	)

	if search.Status.Rank() < types.StatusGradingConfirmed.Rank() {
		log.Warn("callback before grading was confirmed")
		return outcome, &StateConflictError{ID: search.ID, Current: search.Status, Attempted: target}
	}

	if !CanTransition(search.Status, target) {
		log.Info("duplicate callback ignored")
		metrics.ObserveDuplicate(search.Status.String())
		outcome.Duplicate = true
		return outcome, nil
	}

	upd := Update{Status: target}
	if meta.RunID != "" {
		runID := meta.RunID
		upd.AutomationRunID = &runID
	}
	if ready, ok := cb.(ReadyCallback); ok && ready.ResultURL != "" {
		resultURL := ready.ResultURL
		upd.ResultURL = &resultURL
	}

	ev := types.NewEvent(search.ID, types.EventAutomationCompleted, meta.Raw)
	if err := m.store.TransitionWithEvent(ctx, search.ID, search.Status, upd, ev); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return outcome, err
		}
		return outcome, fmt.Errorf("failed to apply callback: %w", err)
	}

	metrics.ObserveTransition(search.Status.String(), target.String())
	log.Info("search transitioned", logger.String("automation_run_id", meta.RunID))

	outcome.Status = target
	return outcome, nil
}
