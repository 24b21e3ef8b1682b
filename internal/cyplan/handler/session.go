package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/cyplan/internal/cyplan/agent"
	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/pkg/httputils"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

// LLMInfo names the configured chat backend.
type LLMInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// StartSessionRequest is the body of POST /api/sessions.
type StartSessionRequest struct {
	UserID *string `json:"user_id,omitempty"`
	PlanID *string `json:"plan_id,omitempty"`
}

// StartSessionResponse is the reply of POST /api/sessions.
type StartSessionResponse struct {
	Session *model.AgentSession `json:"session"`
	LLM     LLMInfo             `json:"llm"`
}

// SessionMessageRequest is the body of POST /api/sessions/:id/messages.
type SessionMessageRequest struct {
	Content string `json:"content"`
}

// SessionHandler serves the intent agent sessions.
type SessionHandler struct {
	agent *agent.FallbackAgent
	llm   LLMInfo
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(a *agent.FallbackAgent, info LLMInfo) *SessionHandler {
	return &SessionHandler{agent: a, llm: info}
}

// Start handles POST /api/sessions.
func (h *SessionHandler) Start(c *gin.Context) {
	var req StartSessionRequest
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	session, err := h.agent.StartSession(c.Request.Context(), req.UserID, req.PlanID)
	if err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, StartSessionResponse{Session: session, LLM: h.llm})
}

// Message handles POST /api/sessions/:id/messages.
func (h *SessionHandler) Message(c *gin.Context) {
	var req SessionMessageRequest
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteResponse(c, err, nil)
		return
	}
	if req.Content == "" {
		httputils.WriteResponse(c, errno.ErrInvalidParam.WithMessage("content is required"), nil)
		return
	}
	reply, err := h.agent.HandleMessage(c.Request.Context(), c.Param("id"), req.Content)
	httputils.WriteResponse(c, err, reply)
}

// History handles GET /api/sessions/:id/messages.
func (h *SessionHandler) History(c *gin.Context) {
	msgs, err := h.agent.History(c.Request.Context(), c.Param("id"))
	httputils.WriteResponse(c, err, msgs)
}
