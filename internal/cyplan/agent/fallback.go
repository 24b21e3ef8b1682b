package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/biz"
	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/internal/pkg/textutil"
	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
)

// Intent is what a session message asks the fallback agent to do.
type Intent string

const (
	IntentGenerateSummary Intent = "generate_summary"
	IntentFrameworkInfo   Intent = "framework_info"
	IntentRiskScore       Intent = "risk_score"
	IntentChat            Intent = "chat"
)

// DetectIntent classifies content. The first matching rule wins.
func DetectIntent(content string) Intent {
	c := strings.ToLower(content)
	switch {
	case strings.Contains(c, "generate") && strings.Contains(c, "summary"):
		return IntentGenerateSummary
	case strings.Contains(c, "framework"):
		return IntentFrameworkInfo
	case strings.Contains(c, "risk") || strings.Contains(c, "score"):
		return IntentRiskScore
	default:
		return IntentChat
	}
}

// Session replies.
const (
	replyNoPlan         = "No active plan is attached to this session. Create/attach a plan first."
	replySummarySaved   = "Generated the plan summary and saved it to your plan."
	replyNoThreats      = "No known threats detected from your input. Mention risks like phishing or data poisoning."
	replyRiskHeader     = "Risk scoring results:\n"
	replyFrameworkInfo  = "Framework info: %s - %s"
	frameworkUnknown    = "N/A"
	frameworkNoDescribe = "No description"
)

// riskHints map message fragments to seeded threat names, checked in order.
var riskHints = []struct{ hint, threat string }{
	{"phish", "Phishing leading to credential theft"},
	{"poison", "Data poisoning (ML)"},
}

// RiskScorer scores named threats.
type RiskScorer interface {
	Assess(ctx context.Context, inputs []biz.RiskInput) ([]biz.RiskAssessment, error)
}

// FallbackConfig tunes the fallback agent.
type FallbackConfig struct {
	HistoryWindow   int
	ContextChars    int
	Temperature     float64
	ModelTimeout    time.Duration
	UseVectorSearch bool
}

// DefaultFallbackConfig returns the settings used when none are configured.
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		HistoryWindow:   10,
		ContextChars:    2000,
		Temperature:     0.4,
		ModelTimeout:    90 * time.Second,
		UseVectorSearch: true,
	}
}

// Reply is the answer to a session message.
type Reply struct {
	Intent  Intent `json:"intent"`
	Message string `json:"message"`
}

// FallbackAgent answers session messages by keyword intent without tool
// calling. Every user message and reply is stored in the session.
type FallbackAgent struct {
	sessions   store.SessionStore
	plans      store.PlanStore
	ontology   store.OntologyStore
	summarizer Summarizer
	risk       RiskScorer
	knowledge  KnowledgeSource
	chat       llm.ChatProvider
	config     FallbackConfig
	metrics    *metrics.Metrics
}

// FallbackDeps are the collaborators of a FallbackAgent. Chat may be nil.
type FallbackDeps struct {
	Factory    store.Factory
	Summarizer Summarizer
	Risk       RiskScorer
	Knowledge  KnowledgeSource
	Chat       llm.ChatProvider
}

// NewFallbackAgent creates a FallbackAgent.
func NewFallbackAgent(deps FallbackDeps, config FallbackConfig) *FallbackAgent {
	def := DefaultFallbackConfig()
	if config.HistoryWindow <= 0 {
		config.HistoryWindow = def.HistoryWindow
	}
	if config.ContextChars <= 0 {
		config.ContextChars = def.ContextChars
	}
	if config.ModelTimeout <= 0 {
		config.ModelTimeout = def.ModelTimeout
	}
	return &FallbackAgent{
		sessions:   deps.Factory.Sessions(),
		plans:      deps.Factory.Plans(),
		ontology:   deps.Factory.Ontology(),
		summarizer: deps.Summarizer,
		risk:       deps.Risk,
		knowledge:  deps.Knowledge,
		chat:       deps.Chat,
		config:     config,
		metrics:    metrics.Default(),
	}
}

// StartSession creates a session and stores the greeting.
func (a *FallbackAgent) StartSession(ctx context.Context, userID, planID *string) (*model.AgentSession, error) {
	session := &model.AgentSession{UserID: userID, PlanID: planID}
	if err := a.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if err := a.remember(ctx, session.ID, model.RoleAssistant, Greeting); err != nil {
		return nil, err
	}
	logger.Infow("agent session started", "session_id", session.ID)
	return session, nil
}

// History returns the messages of a session in order.
func (a *FallbackAgent) History(ctx context.Context, sessionID string) ([]model.AgentMessage, error) {
	if _, err := a.session(ctx, sessionID); err != nil {
		return nil, err
	}
	return a.sessions.Messages(ctx, sessionID, 0)
}

// HandleMessage stores content, answers it and stores the answer.
func (a *FallbackAgent) HandleMessage(ctx context.Context, sessionID, content string) (*Reply, error) {
	session, err := a.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	history, err := a.sessions.Messages(ctx, sessionID, a.config.HistoryWindow)
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	if err := a.remember(ctx, sessionID, model.RoleUser, content); err != nil {
		return nil, err
	}

	intent := DetectIntent(content)
	var text string
	switch intent {
	case IntentGenerateSummary:
		text, err = a.generateSummary(ctx, session)
	case IntentFrameworkInfo:
		text, err = a.frameworkInfo(ctx, session)
	case IntentRiskScore:
		text, err = a.riskScore(ctx, content)
	default:
		text, err = a.chatReply(ctx, history, content)
	}
	if err != nil {
		return nil, err
	}

	if err := a.remember(ctx, sessionID, model.RoleAssistant, text); err != nil {
		return nil, err
	}
	return &Reply{Intent: intent, Message: text}, nil
}

func (a *FallbackAgent) session(ctx context.Context, sessionID string) (*model.AgentSession, error) {
	session, err := a.sessions.Get(ctx, sessionID)
	if store.IsNotFound(err) {
		return nil, errno.ErrSessionNotFound.WithMessagef("Session with ID %s not found.", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return session, nil
}

func (a *FallbackAgent) remember(ctx context.Context, sessionID, role, content string) error {
	msg := &model.AgentMessage{SessionID: sessionID, Role: role, Content: content}
	if err := a.sessions.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("store %s message: %w", role, err)
	}
	return nil
}

func (a *FallbackAgent) attachedPlan(ctx context.Context, session *model.AgentSession) (*model.Plan, error) {
	if session.PlanID == nil || *session.PlanID == "" {
		return nil, nil
	}
	plan, err := a.plans.GetPlan(ctx, *session.PlanID)
	if store.IsNotFound(err) {
		return nil, nil
	}
	return plan, err
}

func (a *FallbackAgent) generateSummary(ctx context.Context, session *model.AgentSession) (string, error) {
	plan, err := a.attachedPlan(ctx, session)
	if err != nil {
		return "", fmt.Errorf("load plan: %w", err)
	}
	if plan == nil || a.summarizer == nil {
		return replyNoPlan, nil
	}
	if _, err := a.summarizer.GenerateAndSave(ctx, plan.ID); err != nil {
		return "", errno.ErrSummaryFailed.WithCause(err)
	}
	return replySummarySaved, nil
}

func (a *FallbackAgent) frameworkInfo(ctx context.Context, session *model.AgentSession) (string, error) {
	name, desc := frameworkUnknown, frameworkNoDescribe

	plan, err := a.attachedPlan(ctx, session)
	if err != nil {
		return "", fmt.Errorf("load plan: %w", err)
	}
	if plan != nil {
		fw, err := a.ontology.GetFramework(ctx, plan.FrameworkID)
		switch {
		case err == nil:
			name = fw.Name
			if fw.Description != "" {
				desc = fw.Description
			}
		case !store.IsNotFound(err):
			return "", fmt.Errorf("load framework: %w", err)
		}
	}
	return fmt.Sprintf(replyFrameworkInfo, name, desc), nil
}

func (a *FallbackAgent) riskScore(ctx context.Context, content string) (string, error) {
	c := strings.ToLower(content)
	var inputs []biz.RiskInput
	for _, h := range riskHints {
		if strings.Contains(c, h.hint) {
			inputs = append(inputs, biz.RiskInput{Threat: h.threat})
		}
	}
	if len(inputs) == 0 || a.risk == nil {
		return replyNoThreats, nil
	}

	results, err := a.risk.Assess(ctx, inputs)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return replyNoThreats, nil
	}
	lines := make([]string, len(results))
	for i, r := range results {
		lines[i] = fmt.Sprintf("- %s: score %d", r.Threat, r.Score)
	}
	return replyRiskHeader + strings.Join(lines, "\n"), nil
}

func (a *FallbackAgent) chatReply(ctx context.Context, history []model.AgentMessage, question string) (string, error) {
	if a.chat == nil {
		return LLMNotConfigured, nil
	}

	var kb string
	if a.knowledge != nil {
		kb = textutil.TruncateString(a.knowledge.ContextForQuestion(ctx, question, a.config.UseVectorSearch), a.config.ContextChars)
	}

	msgs := make([]llm.Message, 0, len(history)+2)
	msgs = append(msgs, llm.SystemMessage(chatSystemPrompt+kb))
	for _, m := range history {
		if m.Role == model.RoleAssistant {
			msgs = append(msgs, llm.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, llm.UserMessage(m.Content))
		}
	}
	msgs = append(msgs, llm.UserMessage(question))

	callCtx, cancel := context.WithTimeout(ctx, a.config.ModelTimeout)
	defer cancel()

	start := time.Now()
	reply, err := a.chat.Chat(callCtx, msgs, llm.WithTemperature(a.config.Temperature))
	a.metrics.RecordModelCall("chat", time.Since(start), err)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return "", errno.ErrModelTimeout.WithCause(err)
		}
		return "", errno.ErrLLMUpstream.WithCause(err)
	}
	return reply, nil
}
