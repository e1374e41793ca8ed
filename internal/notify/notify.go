// Package notify delivers signed "grading confirmed" notifications to the
// automation system.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/metrics"
	"github.com/jonathan/talent-search/internal/signature"
	"github.com/jonathan/talent-search/internal/types"
)

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// DeliveryError reports a failed outbound notification.
type DeliveryError struct {
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("automation notification failed: %v", e.Err)
	}
	return fmt.Sprintf("automation notification failed: status %d", e.StatusCode)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Contact identifies the requester.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Payload is the body posted to the automation start endpoint.
type Payload struct {
	SearchID       string             `json:"search_id"`
	JobTitle       string             `json:"job_title"`
	JobDescription string             `json:"job_description"`
	Criteria       types.Criteria     `json:"criteria"`
	Weights        map[string]float64 `json:"weights"`
	Dimensions     []types.Dimension  `json:"dimensions"`
	Contact        Contact            `json:"contact"`
}

// NewPayload builds the notification body for a confirmed search.
func NewPayload(search *types.Search) Payload {
	return Payload{
		SearchID:       search.ID.String(),
		JobTitle:       search.Criteria.JobTitle,
		JobDescription: search.JobDescription,
		Criteria:       search.Criteria,
		Weights:        search.Weights,
		Dimensions:     search.Dimensions,
		Contact:        Contact{Name: search.ContactName, Email: search.ContactEmail},
	}
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithTimeout sets the per-delivery deadline.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) { n.timeout = d }
}

// Notifier posts signed notifications to a single endpoint.
type Notifier struct {
	url     string
	signer  *signature.Signer
	client  *http.Client
	timeout time.Duration
	log     logger.Logger
	wg      sync.WaitGroup
}

// New creates a Notifier for url. The signer's secret is the one shared with
// the automation system.
func New(url string, signer *signature.Signer, log logger.Logger, opts ...Option) *Notifier {
	if log == nil {
		log = logger.Nop()
	}
	n := &Notifier{
		url:     url,
		signer:  signer,
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		log:     log,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Send delivers the notification synchronously. The body is serialised once
// and the signature is computed over exactly those bytes.
func (n *Notifier) Send(ctx context.Context, search *types.Search) error {
	body, err := json.Marshal(NewPayload(search))
	if err != nil {
		return &DeliveryError{Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return &DeliveryError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signature.HeaderName, n.signer.Sign(body))

	resp, err := n.client.Do(req)
	if err != nil {
		return &DeliveryError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{StatusCode: resp.StatusCode}
	}
	return nil
}

// Notify delivers in the background. The delivery outlives the caller's
// request, has its own timeout, and its failure is logged and counted only.
func (n *Notifier) Notify(ctx context.Context, search *types.Search) {
	snapshot := *search
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		start := time.Now()
		if err := n.Send(ctx, &snapshot); err != nil {
			metrics.ObserveNotification("failed")
			n.log.Error("automation notification failed",
				logger.String("search_id", snapshot.ID.String()),
				logger.Error(err))
			return
		}
		metrics.ObserveNotification("delivered")
		n.log.Info("automation notified",
			logger.String("search_id", snapshot.ID.String()),
			logger.Duration("elapsed", time.Since(start)))
	}()
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

// Noop drops notifications. Used when the automation endpoint or the shared
// secret is not configured.
type Noop struct{}

// Notify does nothing.
func (Noop) Notify(context.Context, *types.Search) {}

// Wait returns immediately.
func (Noop) Wait() {}
