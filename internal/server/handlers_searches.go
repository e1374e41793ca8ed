package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/jonathan/talent-search/internal/intake"
	"github.com/jonathan/talent-search/internal/lifecycle"
	"github.com/jonathan/talent-search/internal/types"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// handleCreateSearch accepts a brief as a multipart form with optional
// attachments and creates the search in the submitted state.
func (s *Server) handleCreateSearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	err := r.ParseMultipartForm(multipartMemory)
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, tooLarge)
			return
		}
		s.writeError(w, r, &ErrValidation{Field: "body", Message: "invalid form data"})
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	form := func(key string) string { return strings.TrimSpace(r.FormValue(key)) }
	req := types.CreateSearchRequest{
		Name:               form("name"),
		JobTitle:           form("job_title"),
		JobDescription:     form("job_description"),
		Seniority:          form("seniority"),
		LocationPreference: form("location_preference"),
		EmploymentType:     form("employment_type"),
		MustHaveKeywords:   form("must_have_keywords"),
		NiceToHaveKeywords: form("nice_to_have_keywords"),
		BudgetSalaryRange:  form("budget_salary_range"),
		ContactName:        form("contact_name"),
		Company:            form("company"),
		ContactEmail:       form("contact_email"),
		Comments:           form("comments"),
	}

	created, err := s.deps.Intake.Create(r.Context(), req, uploadsFrom(r.MultipartForm))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, created)
}

// uploadsFrom collects the "attachments" file parts.
func uploadsFrom(mf *multipart.Form) []intake.Upload {
	if mf == nil {
		return nil
	}
	headers := mf.File["attachments"]
	uploads := make([]intake.Upload, 0, len(headers))
	for _, fh := range headers {
		uploads = append(uploads, intake.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open:        func() (io.ReadCloser, error) { return fh.Open() },
		})
	}
	return uploads
}

// handleGetSearch returns the search with its attachments and audit events.
func (s *Server) handleGetSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.searchID(w, r)
	if !ok {
		return
	}

	detail, err := s.deps.Searches.GetSearchDetail(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if detail == nil {
		s.writeError(w, r, &lifecycle.NotFoundError{ID: id})
		return
	}
	s.jsonResponse(w, http.StatusOK, detail)
}

// handleConfirmGrading records the operator's dimensions and weights.
func (s *Server) handleConfirmGrading(w http.ResponseWriter, r *http.Request) {
	id, ok := s.searchID(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.confirmSchema.Validate(raw); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req types.ConfirmGradingRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		s.writeError(w, r, &ErrValidation{Field: "body", Message: "invalid JSON"})
		return
	}
	if err := req.Validate(); err != nil {
		s.writeError(w, r, requestError(err))
		return
	}

	if _, err := s.deps.Grading.ConfirmGrading(r.Context(), id, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "ok",
		"next":   "/searches/" + id.String(),
	})
}

// requestError converts a validator failure into an ErrValidation naming the
// first offending field.
func requestError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return err
	}
	return &ErrValidation{Field: strings.ToLower(ve[0].Field()), Message: "failed " + ve[0].Tag()}
}

// searchID parses the {id} URL parameter, writing a 400 when it is not a UUID.
func (s *Server) searchID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, &ErrValidation{Field: "id", Message: "must be a UUID"})
		return uuid.Nil, false
	}
	return id, true
}
