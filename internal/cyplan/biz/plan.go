package biz

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/utils/errors"
)

// MaxResponseChars bounds the length of a prompt answer.
const MaxResponseChars = 10000

// ResponseValidation is the verdict on a prompt answer.
type ResponseValidation struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// ValidateResponse checks that an answer is present, not blank and at most
// MaxResponseChars characters after trimming.
func ValidateResponse(value string) ResponseValidation {
	if value == "" {
		return ResponseValidation{Message: "Response value is required"}
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return ResponseValidation{Message: "Response cannot be empty"}
	}
	if utf8.RuneCountInString(value) > MaxResponseChars {
		return ResponseValidation{Message: "Response is too long (max 10000 characters)"}
	}
	return ResponseValidation{Valid: true, Message: "Response validated successfully"}
}

// PlanService creates plans, records answers and produces summaries.
type PlanService struct {
	plans      store.PlanStore
	ontology   store.OntologyStore
	summarizer *PlanSummarizer
}

// NewPlanService creates a PlanService.
func NewPlanService(plans store.PlanStore, ontology store.OntologyStore, summarizer *PlanSummarizer) *PlanService {
	return &PlanService{plans: plans, ontology: ontology, summarizer: summarizer}
}

// CreatePlan starts a plan for a known framework.
func (s *PlanService) CreatePlan(ctx context.Context, frameworkID, title string, userID *string) (*model.Plan, error) {
	if _, err := s.ontology.GetFramework(ctx, frameworkID); err != nil {
		if store.IsNotFound(err) {
			return nil, errors.ErrFrameworkNotFound.WithMessagef("Framework with ID %s not found.", frameworkID)
		}
		return nil, err
	}
	plan := &model.Plan{FrameworkID: frameworkID, Title: title, UserID: userID}
	if err := s.plans.CreatePlan(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Prompts lists a framework's prompts in order.
func (s *PlanService) Prompts(ctx context.Context, frameworkID string) ([]model.Prompt, error) {
	return s.plans.ListPrompts(ctx, frameworkID)
}

// SubmitResponse validates and stores the answer to a prompt of a plan.
func (s *PlanService) SubmitResponse(ctx context.Context, planID, promptID, answer string) (*model.Response, error) {
	if v := ValidateResponse(answer); !v.Valid {
		return nil, errors.ErrValidationFailed.WithMessage(v.Message)
	}
	if _, err := s.plans.GetPlan(ctx, planID); err != nil {
		if store.IsNotFound(err) {
			return nil, errors.ErrPlanNotFound.WithMessagef("Plan with ID %s not found.", planID)
		}
		return nil, err
	}
	resp := &model.Response{PlanID: planID, PromptID: promptID, Answer: strings.TrimSpace(answer)}
	if err := s.plans.SaveResponse(ctx, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Summarize generates and stores the plan summary.
func (s *PlanService) Summarize(ctx context.Context, planID string) (string, error) {
	return s.summarizer.GenerateAndSave(ctx, planID)
}

// Get returns a plan.
func (s *PlanService) Get(ctx context.Context, planID string) (*model.Plan, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if store.IsNotFound(err) {
		return nil, errors.ErrPlanNotFound.WithMessagef("Plan with ID %s not found.", planID)
	}
	return plan, err
}
