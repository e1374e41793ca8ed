// Package webhook authenticates and applies status callbacks posted by the
// automation system.
package webhook

import (
	"context"
	"errors"
	"strings"

	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/metrics"
	"github.com/jonathan/talent-search/internal/schemas"
	"github.com/jonathan/talent-search/internal/signature"
	schemafiles "github.com/jonathan/talent-search/schemas"
)

// Transitioner applies a decoded callback to the record store.
type Transitioner interface {
	ApplyCallback(ctx context.Context, cb lifecycle.Callback) (lifecycle.Outcome, error)
}

// ReplayCache remembers deliveries that were already applied.
type ReplayCache interface {
	Seen(ctx context.Context, key string) (bool, error)
	Mark(ctx context.Context, key string) error
}

// Option configures a Handler.
type Option func(*Handler)

// WithReplayCache short-circuits re-deliveries of already applied callbacks.
func WithReplayCache(c ReplayCache) Option {
	return func(h *Handler) { h.replay = c }
}

// Handler verifies, decodes and applies callbacks.
type Handler struct {
	signer  *signature.Signer
	machine Transitioner
	replay  ReplayCache
	schema  *schemas.Schema
	log     logger.Logger
}

// NewHandler creates a Handler. A nil signer leaves the handler in the
// not-configured state: every callback is refused.
func NewHandler(signer *signature.Signer, machine Transitioner, log logger.Logger, opts ...Option) (*Handler, error) {
	if log == nil {
		log = logger.Nop()
	}
	schema, err := schemas.Load(schemafiles.Callback)
	if err != nil {
		return nil, err
	}
	h := &Handler{signer: signer, machine: machine, schema: schema, log: log}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle processes one delivery. raw must be the exact request body and
// sigHeader the value of the x-signature header. Nothing is parsed before the
// signature over raw has been verified.
func (h *Handler) Handle(ctx context.Context, raw []byte, sigHeader string) (lifecycle.Outcome, error) {
	if h.signer == nil {
		logger.FromContext(ctx, h.log).Error("webhook secret missing, refusing callback")
		metrics.ObserveRejection("not_configured")
		return lifecycle.Outcome{}, ErrNotConfigured
	}

	if !h.signer.Verify(raw, sigHeader) {
		logger.FromContext(ctx, h.log).Warn("callback signature rejected", logger.Int("bytes", len(raw)))
		metrics.ObserveRejection("signature")
		return lifecycle.Outcome{}, ErrAuthentication
	}

	if err := h.schema.Validate(raw); err != nil {
		var ve *schemas.ValidationError
		if errors.As(err, &ve) {
			metrics.ObserveRejection("payload")
			return lifecycle.Outcome{}, &PayloadError{Fields: ve.Errors}
		}
		return lifecycle.Outcome{}, err
	}

	cb, err := decode(raw)
	if err != nil {
		metrics.ObserveRejection("payload")
		return lifecycle.Outcome{}, err
	}
	meta := cb.Meta()

	key := replayKey(sigHeader)
	if h.seen(ctx, key) {
		logger.FromContext(ctx, h.log).Info("callback replay short-circuited",
			logger.String("search_id", meta.SearchID.String()),
			logger.String("status", cb.Target().String()))
		metrics.ObserveDuplicate(cb.Target().String())
		return lifecycle.Outcome{SearchID: meta.SearchID, Status: cb.Target(), Duplicate: true}, nil
	}

	outcome, err := h.machine.ApplyCallback(ctx, cb)
	if err != nil {
		switch {
		case errors.Is(err, lifecycle.ErrNotFound):
			metrics.ObserveRejection("not_found")
		case errors.Is(err, lifecycle.ErrStateConflict):
			metrics.ObserveRejection("conflict")
		}
		return outcome, err
	}

	h.mark(ctx, key)
	return outcome, nil
}

func replayKey(sigHeader string) string {
	return "callback:" + strings.TrimPrefix(sigHeader, signature.Prefix)
}

func (h *Handler) seen(ctx context.Context, key string) bool {
	if h.replay == nil {
		return false
	}
	seen, err := h.replay.Seen(ctx, key)
	if err != nil {
		logger.FromContext(ctx, h.log).Warn("replay cache lookup failed", logger.Error(err))
		return false
	}
	return seen
}

func (h *Handler) mark(ctx context.Context, key string) {
	if h.replay == nil {
		return
	}
	if err := h.replay.Mark(ctx, key); err != nil {
		logger.FromContext(ctx, h.log).Warn("replay cache write failed", logger.Error(err))
	}
}
