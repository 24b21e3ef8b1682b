// Package handler provides the HTTP handlers of the CyPlan agent service.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/agent"
	"github.com/kart-io/cyplan/internal/pkg/httputils"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

// runConfig accepts the run settings either at the top level of config or
// under config.configurable, as chat SDKs send them.
type runConfig struct {
	agent.RunConfig
	Configurable *agent.RunConfig `json:"configurable,omitempty"`
}

func (c runConfig) resolve() agent.RunConfig {
	cfg := c.RunConfig
	if cc := c.Configurable; cc != nil {
		if cfg.UserID == "" {
			cfg.UserID = cc.UserID
		}
		if cfg.PlanID == nil {
			cfg.PlanID = cc.PlanID
		}
		if cfg.SessionID == "" {
			cfg.SessionID = cc.SessionID
		}
	}
	return cfg
}

// CreateThreadRequest is the body of POST /threads.
type CreateThreadRequest struct {
	Config   runConfig      `json:"config"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// ThreadResponse describes a thread.
type ThreadResponse struct {
	ThreadID  string           `json:"thread_id"`
	CreatedAt string           `json:"created_at"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Metadata  map[string]any   `json:"metadata"`
	Config    *agent.RunConfig `json:"config,omitempty"`
}

// SearchThreadsRequest is the body of POST /threads/search.
type SearchThreadsRequest struct {
	Metadata map[string]any `json:"metadata,omitempty"`
	Limit    int            `json:"limit"`
}

// RunRequest is the body of a thread run. Messages are read from
// input.messages, falling back to messages.
type RunRequest struct {
	Input *struct {
		Messages []agent.InputMessage `json:"messages"`
	} `json:"input,omitempty"`
	Messages    []agent.InputMessage `json:"messages,omitempty"`
	Config      runConfig            `json:"config"`
	AssistantID string               `json:"assistant_id,omitempty"`
	StreamMode  json.RawMessage      `json:"stream_mode,omitempty"`
}

func (r *RunRequest) messages() []agent.InputMessage {
	if r.Input != nil && len(r.Input.Messages) > 0 {
		return r.Input.Messages
	}
	return r.Messages
}

// ThreadHandler serves the streaming conversation API.
type ThreadHandler struct {
	conv *agent.Conversation
}

// NewThreadHandler creates a ThreadHandler.
func NewThreadHandler(conv *agent.Conversation) *ThreadHandler {
	return &ThreadHandler{conv: conv}
}

// bindOptional decodes the JSON body into v, accepting an empty body.
func bindOptional(c *gin.Context, v any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return errno.ErrBadRequest.WithCause(err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errno.ErrBadRequest.WithMessage("invalid JSON body: " + err.Error())
	}
	return nil
}

// CreateThread handles POST /threads.
func (h *ThreadHandler) CreateThread(c *gin.Context) {
	var req CreateThreadRequest
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteError(c, err)
		return
	}

	created, err := h.conv.CreateThread(c.Request.Context(), req.Config.resolve())
	if err != nil {
		logger.Errorw("create thread failed", "error", err)
		httputils.WriteError(c, err)
		return
	}
	resp := threadResponse(created.Thread.ID, created.Thread.CreatedAt.UTC().Format(timeLayout), "", req.Metadata)
	resp.Config = &created.Config
	c.JSON(http.StatusOK, resp)
}

// SearchThreads handles POST /threads/search.
func (h *ThreadHandler) SearchThreads(c *gin.Context) {
	req := SearchThreadsRequest{Limit: 100}
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteError(c, err)
		return
	}

	threads, err := h.conv.SearchThreads(c.Request.Context(), req.Limit)
	if err != nil {
		httputils.WriteError(c, err)
		return
	}
	out := make([]ThreadResponse, 0, len(threads))
	for _, t := range threads {
		out = append(out, threadResponse(t.ID, t.CreatedAt.UTC().Format(timeLayout), t.UpdatedAt.UTC().Format(timeLayout), nil))
	}
	c.JSON(http.StatusOK, out)
}

// History handles GET and POST /threads/:id/history.
func (h *ThreadHandler) History(c *gin.Context) {
	history, err := h.conv.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		httputils.WriteError(c, err)
		return
	}
	if history == nil {
		history = []agent.Checkpoint{}
	}
	c.JSON(http.StatusOK, history)
}

// Run handles POST /threads/:id/runs and /threads/:id/runs/stream. The
// reply is a server-sent event stream of values, updates, error and end
// frames.
func (h *ThreadHandler) Run(c *gin.Context) {
	var req RunRequest
	if err := bindOptional(c, &req); err != nil {
		httputils.WriteError(c, err)
		return
	}

	threadID := c.Param("id")
	msgs := agent.ConvertInput(req.messages())
	frames, err := h.conv.Run(c.Request.Context(), threadID, msgs, req.Config.resolve())
	if err != nil {
		if !errors.Is(err, errno.ErrEmptyMessages) {
			logger.Errorw("start thread run failed", "thread_id", threadID, "error", err)
		}
		httputils.WriteError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	for f := range frames {
		if err := writeFrame(c.Writer, f); err != nil {
			logger.Warnw("client went away during run", "thread_id", threadID, "error", err)
			// Keep draining so the run can persist its reply.
			for range frames {
			}
			return
		}
	}
}

// writeFrame writes one "event: <name>\ndata: <json>\n\n" frame and flushes it.
func writeFrame(w gin.ResponseWriter, f agent.Frame) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", f.Event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, data); err != nil {
		return err
	}
	w.Flush()
	return nil
}

const timeLayout = "2006-01-02T15:04:05.000000Z"

func threadResponse(id, created, updated string, metadata map[string]any) ThreadResponse {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return ThreadResponse{ThreadID: id, CreatedAt: created, UpdatedAt: updated, Metadata: metadata}
}
