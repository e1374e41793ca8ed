package grading

import "github.com/jonathan/talent-search/internal/types"

// Suggestion is a starting point the operator adjusts before confirming.
type Suggestion struct {
	Dimensions []types.Dimension  `json:"dimensions"`
	Weights    map[string]float64 `json:"weights"`
}

// Suggest returns the default recruiting template. The job title and
// description are accepted for API stability; the template does not vary yet.
func Suggest(_ string, _ string) Suggestion {
	return Suggestion{
		Dimensions: []types.Dimension{
			{
				Name:   "Role Fit & Experience",
				Reason: "Tenure in similar roles, relevant responsibilities, scale of past work.",
			},
			{
				Name:   "Technical / Hard Skills",
				Reason: "Stack/tools from the JD, depth, and recency of hands-on work.",
			},
			{
				Name:   "Domain & Industry",
				Reason: "Experience in the target industry, regulations, or product type.",
			},
			{
				Name:   "Communication & Team Fit",
				Reason: "Stakeholder comms, collaboration, leadership signals.",
			},
		},
		Weights: map[string]float64{
			"Role Fit & Experience":    35,
			"Technical / Hard Skills":  35,
			"Domain & Industry":        20,
			"Communication & Team Fit": 10,
		},
	}
}
