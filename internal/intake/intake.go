// Package intake turns a submitted brief into a Search record in the
// submitted state, with its attachments stored and an audit event appended.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jonathan/talent-search/internal/blob"
	"github.com/jonathan/talent-search/internal/grading"
	"github.com/jonathan/talent-search/internal/logger"
	"github.com/jonathan/talent-search/internal/types"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentUploads bounds parallel attachment uploads per brief.
const maxConcurrentUploads = 4

// Store is the record store contract intake needs.
type Store interface {
	CreateSearch(ctx context.Context, search *types.Search) error
	AddAttachment(ctx context.Context, a *types.Attachment) error
	AppendEvent(ctx context.Context, ev types.Event) error
}

// Upload is one file submitted with a brief.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Created is returned to the requester after a successful submission.
type Created struct {
	ID                uuid.UUID          `json:"id"`
	GradingSuggestion grading.Suggestion `json:"grading_suggestion"`
	Next              string             `json:"next"`
}

// InvalidBriefError reports the first brief field that failed validation.
type InvalidBriefError struct {
	Field string
	Rule  string
}

func (e *InvalidBriefError) Error() string {
	return fmt.Sprintf("invalid brief: %s failed %s", e.Field, e.Rule)
}

// Service creates searches from briefs.
type Service struct {
	store Store
	blobs blob.Store
	log   logger.Logger
}

// NewService creates an intake service.
func NewService(store Store, blobs blob.Store, log logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{store: store, blobs: blobs, log: log}
}

// Create validates and persists a brief. Empty uploads are skipped. Any
// upload failure fails the whole request; attachments that were already
// stored keep their rows.
func (s *Service) Create(ctx context.Context, req types.CreateSearchRequest, files []Upload) (*Created, error) {
	if err := req.Validate(); err != nil {
		return nil, briefError(err)
	}

	search := &types.Search{
		ID:             uuid.New(),
		Name:           strings.TrimSpace(req.Name),
		JobDescription: req.JobDescription,
		ContactName:    req.ContactName,
		ContactEmail:   req.ContactEmail,
		Comments:       req.Comments,
		Status:         types.StatusSubmitted,
		Criteria:       req.Criteria(),
	}
	if err := s.store.CreateSearch(ctx, search); err != nil {
		return nil, err
	}

	var uploads []Upload
	for _, f := range files {
		if f.Size > 0 {
			uploads = append(uploads, f)
		}
	}

	stored, err := s.upload(ctx, search.ID, uploads)
	if err != nil {
		s.log.Warn("brief upload failed",
			logger.String("search_id", search.ID.String()),
			logger.Int("attachments_stored", stored),
			logger.Error(err))
		return nil, err
	}

	payload, err := json.Marshal(map[string]int{"attachments": stored})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if err := s.store.AppendEvent(ctx, types.NewEvent(search.ID, types.EventFormSubmitted, payload)); err != nil {
		return nil, err
	}

	s.log.Info("brief submitted",
		logger.String("search_id", search.ID.String()),
		logger.Int("attachments", stored))

	return &Created{
		ID:                search.ID,
		GradingSuggestion: grading.Suggest(req.JobTitle, req.JobDescription),
		Next:              "/ai-search/grading?searchId=" + search.ID.String(),
	}, nil
}

// upload stores each file and records its Attachment row as soon as the
// object lands, so a later failure never leaves an unreferenced object
// behind. It returns how many attachments were recorded.
func (s *Service) upload(ctx context.Context, searchID uuid.UUID, files []Upload) (int, error) {
	var stored atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for _, f := range files {
		g.Go(func() error {
			key := blob.Key(searchID, f.FileName)
			if err := s.put(gctx, key, f); err != nil {
				return fmt.Errorf("failed to upload %s: %w", f.FileName, err)
			}
			a := &types.Attachment{
				ID:         uuid.New(),
				SearchID:   searchID,
				FileName:   f.FileName,
				MimeType:   f.ContentType,
				FileSize:   f.Size,
				StorageKey: key,
			}
			// The object exists now; record it even if a sibling upload already failed.
			if err := s.store.AddAttachment(context.WithoutCancel(gctx), a); err != nil {
				return fmt.Errorf("failed to record attachment %s: %w", f.FileName, err)
			}
			stored.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(stored.Load()), err
}

func (s *Service) put(ctx context.Context, key string, f Upload) error {
	r, err := f.Open()
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()
	return s.blobs.Put(ctx, key, f.ContentType, r)
}

func briefError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &InvalidBriefError{Field: jsonFieldName(verrs[0].Field()), Rule: verrs[0].Tag()}
	}
	return &InvalidBriefError{Field: "(body)", Rule: err.Error()}
}

// jsonFieldName maps a Go field name like ContactEmail to contact_email.
func jsonFieldName(goName string) string {
	var sb strings.Builder
	for i, r := range goName {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
