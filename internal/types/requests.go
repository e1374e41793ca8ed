package types

import (
	"github.com/go-playground/validator/v10"
)

// CreateSearchRequest is the brief submitted by a requester.
type CreateSearchRequest struct {
	Name               string `json:"name" validate:"required,min=1"`
	JobTitle           string `json:"job_title" validate:"required,min=1"`
	JobDescription     string `json:"job_description" validate:"required,min=1"`
	Seniority          string `json:"seniority" validate:"required,min=1"`
	LocationPreference string `json:"location_preference,omitempty"`
	EmploymentType     string `json:"employment_type,omitempty"`
	MustHaveKeywords   string `json:"must_have_keywords,omitempty"`
	NiceToHaveKeywords string `json:"nice_to_have_keywords,omitempty"`
	BudgetSalaryRange  string `json:"budget_salary_range,omitempty"`
	ContactName        string `json:"contact_name" validate:"required,min=1"`
	Company            string `json:"company,omitempty"`
	ContactEmail       string `json:"contact_email" validate:"required,email"`
	Comments           string `json:"comments,omitempty"`
}

// Criteria extracts the structured brief fields stored alongside the search.
func (r *CreateSearchRequest) Criteria() Criteria {
	return Criteria{
		JobTitle:           r.JobTitle,
		Seniority:          r.Seniority,
		LocationPreference: r.LocationPreference,
		EmploymentType:     r.EmploymentType,
		MustHaveKeywords:   r.MustHaveKeywords,
		NiceToHaveKeywords: r.NiceToHaveKeywords,
		BudgetSalaryRange:  r.BudgetSalaryRange,
		Company:            r.Company,
	}
}

// Validate validates the CreateSearchRequest using the validator.
func (r *CreateSearchRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// ConfirmGradingRequest carries the operator-confirmed dimensions and weights.
type ConfirmGradingRequest struct {
	Dimensions []Dimension        `json:"dimensions" validate:"required,min=1,dive"`
	Weights    map[string]float64 `json:"weights" validate:"required,min=1"`
}

// Validate checks the request shape. Weight arithmetic is the grading package's job.
func (r *ConfirmGradingRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}
