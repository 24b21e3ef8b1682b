package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/pkg/httputils"
)

// CreatePlanRequest is the body of POST /api/plans.
type CreatePlanRequest struct {
	FrameworkID string  `json:"frameworkId" validate:"required,notblank"`
	Title       string  `json:"title" validate:"max=255"`
	UserID      *string `json:"user_id,omitempty"`
}

// SubmitResponseRequest is the body of POST /api/plans/:id/responses.
type SubmitResponseRequest struct {
	PromptID string `json:"prompt_id" validate:"required,notblank"`
	Value    string `json:"value"`
}

// ValidateResponseRequest is the body of POST /api/responses/validate.
type ValidateResponseRequest struct {
	Value string `json:"value"`
}

// PlanHandler serves the plans an agent session works on.
type PlanHandler struct {
	plans *biz.PlanService
}

// NewPlanHandler creates a PlanHandler.
func NewPlanHandler(plans *biz.PlanService) *PlanHandler {
	return &PlanHandler{plans: plans}
}

// Create handles POST /api/plans.
func (h *PlanHandler) Create(c *gin.Context) {
	var req CreatePlanRequest
	if err := bindValid(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if req.Title == "" {
		req.Title = "Cybersecurity Plan"
	}
	plan, err := h.plans.CreatePlan(c.Request.Context(), req.FrameworkID, req.Title, req.UserID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteCreated(c, plan)
}

// Get handles GET /api/plans/:id.
func (h *PlanHandler) Get(c *gin.Context) {
	plan, err := h.plans.Get(c.Request.Context(), c.Param("id"))
	httputils.WriteResponse(c, err, plan)
}

// Prompts handles GET /api/frameworks/:id/prompts.
func (h *PlanHandler) Prompts(c *gin.Context) {
	prompts, err := h.plans.Prompts(c.Request.Context(), c.Param("id"))
	if prompts == nil {
		prompts = []model.Prompt{}
	}
	httputils.WriteResponse(c, err, gin.H{"framework_id": c.Param("id"), "prompts": prompts})
}

// SubmitResponse handles POST /api/plans/:id/responses.
func (h *PlanHandler) SubmitResponse(c *gin.Context) {
	var req SubmitResponseRequest
	if err := bindValid(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	resp, err := h.plans.SubmitResponse(c.Request.Context(), c.Param("id"), req.PromptID, req.Value)
	httputils.WriteResponse(c, err, resp)
}

// Summary handles POST /api/plans/:id/summary.
func (h *PlanHandler) Summary(c *gin.Context) {
	planID := c.Param("id")
	summary, err := h.plans.Summarize(c.Request.Context(), planID)
	httputils.WriteResponse(c, err, gin.H{"plan_id": planID, "summary": summary})
}

// ValidateResponse handles POST /api/responses/validate.
func (h *PlanHandler) ValidateResponse(c *gin.Context) {
	var req ValidateResponseRequest
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	httputils.WriteResponse(c, nil, biz.ValidateResponse(req.Value))
}
