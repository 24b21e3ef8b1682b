package biz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/internal/pkg/textutil"
	"github.com/kart-io/cyplan/pkg/llm"
	"github.com/kart-io/cyplan/pkg/utils/errors"
)

const summarySystemPrompt = `You are an expert cybersecurity consultant specializing in comprehensive cybersecurity planning.
Your task is to generate a detailed, well-structured cybersecurity plan based on user responses to framework-specific prompts.
The plan should be professional, comprehensive, and include specific framework citations where applicable.
Format the plan with clear sections: Executive Summary, Scope, Risk Assessment, Controls Implementation, Monitoring, and Incident Response.`

const summaryUserPrompt = `Generate a comprehensive cybersecurity plan based on the following information:

Framework: %s (%s)
User Responses to Planning Prompts:
%s

Please create a detailed cybersecurity plan that:
1. Summarizes the key findings from the user's responses
2. Identifies risks and vulnerabilities mentioned
3. Recommends specific controls aligned with the %s framework
4. Includes framework citations (e.g., "Control A.8.1.1 from ISO 27001" or "NIST CSF Identify Function")
5. Provides actionable implementation guidance
6. Outlines monitoring and incident response procedures
7. Follows professional cybersecurity planning standards

Structure the plan with clear sections and subsections.`

const (
	notAnswered      = "Not answered"
	defaultFramework = "Selected Framework"
	timestampLayout  = "2006-01-02 15:04:05"
)

// citationKeywords maps response keywords to seeded threat names, checked in
// this order.
var citationKeywords = []struct{ keyword, threat string }{
	{"phishing", "Phishing leading to credential theft"},
	{"poison", "Data poisoning (ML)"},
	{"poisoning", "Data poisoning (ML)"},
}

// SummaryConfig configures plan summary generation.
type SummaryConfig struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// DefaultSummaryConfig returns the generation settings used for plan
// summaries.
func DefaultSummaryConfig() SummaryConfig {
	return SummaryConfig{Temperature: 0.7, MaxTokens: 3000, Timeout: 2 * time.Minute}
}

// PlanSummarizer writes plan summaries with the chat model, falling back to
// a deterministic template when no model is configured or generation fails.
type PlanSummarizer struct {
	plans    store.PlanStore
	ontology store.OntologyStore
	chat     llm.ChatProvider
	config   SummaryConfig
	metrics  *metrics.Metrics
}

// NewPlanSummarizer creates a summarizer. chat may be nil.
func NewPlanSummarizer(plans store.PlanStore, ontology store.OntologyStore, chat llm.ChatProvider, config SummaryConfig) *PlanSummarizer {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 3000
	}
	return &PlanSummarizer{
		plans:    plans,
		ontology: ontology,
		chat:     chat,
		config:   config,
		metrics:  metrics.Default(),
	}
}

type planInputs struct {
	plan      *model.Plan
	framework *model.Framework
	prompts   []model.Prompt
	responses []model.Response
}

func (in *planInputs) frameworkName() string {
	if in.framework == nil {
		return defaultFramework
	}
	return in.framework.Name
}

func (in *planInputs) frameworkType() string {
	if in.framework == nil {
		return ""
	}
	return in.framework.Type
}

// answers maps prompt ids to the latest response.
func (in *planInputs) answers() map[string]string {
	out := make(map[string]string, len(in.responses))
	for _, r := range in.responses {
		out[r.PromptID] = r.Answer
	}
	return out
}

func (s *PlanSummarizer) load(ctx context.Context, planID string) (*planInputs, error) {
	plan, err := s.plans.GetPlan(ctx, planID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, errors.ErrPlanNotFound.WithMessagef("Plan with ID %s not found.", planID)
		}
		return nil, err
	}
	in := &planInputs{plan: plan}

	fw, err := s.ontology.GetFramework(ctx, plan.FrameworkID)
	switch {
	case err == nil:
		in.framework = fw
		if in.prompts, err = s.plans.ListPrompts(ctx, fw.ID); err != nil {
			return nil, err
		}
	case !store.IsNotFound(err):
		return nil, err
	}

	if in.responses, err = s.plans.ListResponses(ctx, plan.ID); err != nil {
		return nil, err
	}
	return in, nil
}

// Generate returns the summary of a plan without saving it.
func (s *PlanSummarizer) Generate(ctx context.Context, planID string) (string, error) {
	in, err := s.load(ctx, planID)
	if err != nil {
		return "", err
	}
	if s.chat == nil {
		return s.fallback(in), nil
	}

	body, err := s.generate(ctx, in)
	if err != nil {
		logger.Warnw("plan summary generation failed, using fallback", "plan_id", planID, "error", err.Error())
		return s.fallback(in), nil
	}

	citations, err := s.citations(ctx, in)
	if err != nil {
		logger.Warnw("failed to build plan citations", "plan_id", planID, "error", err.Error())
	}

	name := in.frameworkName()
	return fmt.Sprintf("=== Cybersecurity Plan Summary ===\nFramework: %s\nGenerated: %s\n\n%s\n\n%s\n---\nThis plan was generated using CyPlanAI based on %s framework.",
		name, in.plan.CreatedAt.Format(timestampLayout), body, citations, name), nil
}

// GenerateAndSave generates a summary and stores it on the plan.
func (s *PlanSummarizer) GenerateAndSave(ctx context.Context, planID string) (string, error) {
	summary, err := s.Generate(ctx, planID)
	if err != nil {
		return "", err
	}
	if err := s.plans.UpdatePlanSummary(ctx, planID, summary); err != nil {
		if store.IsNotFound(err) {
			return "", errors.ErrPlanNotFound.WithMessagef("Plan with ID %s not found.", planID)
		}
		return "", errors.ErrSummaryFailed.WithCause(err)
	}
	logger.Infow("plan summary saved", "plan_id", planID, "length", len(summary))
	return summary, nil
}

func (s *PlanSummarizer) generate(ctx context.Context, in *planInputs) (string, error) {
	answers := in.answers()
	var sb strings.Builder
	for i, p := range in.prompts {
		answer, ok := answers[p.ID]
		if !ok {
			answer = notAnswered
		}
		fmt.Fprintf(&sb, "\n\nPrompt %d (%s):\n", i+1, p.Category)
		fmt.Fprintf(&sb, "Question: %s\n", p.Text)
		fmt.Fprintf(&sb, "Response: %s\n", answer)
	}

	name := in.frameworkName()
	prompt := fmt.Sprintf(summaryUserPrompt, name, in.frameworkType(), sb.String(), name)

	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}
	start := time.Now()
	out, err := s.chat.Generate(ctx, prompt, summarySystemPrompt,
		llm.WithTemperature(s.config.Temperature), llm.WithMaxTokens(s.config.MaxTokens))
	s.metrics.RecordModelCall("summary", time.Since(start), err)
	if err != nil {
		return "", err
	}
	return out, nil
}

// citations lists the controls mapped to threats inferred from response
// keywords.
func (s *PlanSummarizer) citations(ctx context.Context, in *planInputs) (string, error) {
	var selected []string
	seen := make(map[string]bool)
	for _, r := range in.responses {
		text := strings.ToLower(r.Answer)
		for _, ck := range citationKeywords {
			if !seen[ck.threat] && strings.Contains(text, ck.keyword) {
				seen[ck.threat] = true
				selected = append(selected, ck.threat)
			}
		}
	}
	if len(selected) == 0 {
		return "", nil
	}

	var sb strings.Builder
	n := 0
	for _, name := range selected {
		t, err := s.ontology.GetThreat(ctx, name)
		if store.IsNotFound(err) {
			continue
		}
		if err != nil {
			return "", err
		}
		mapped, err := s.ontology.MappingsForThreat(ctx, t.ID)
		if err != nil {
			return "", err
		}
		for _, m := range mapped {
			if n == 0 {
				sb.WriteString("\n=== Framework Citations (Ontology-Driven) ===\n")
			}
			n++
			fmt.Fprintf(&sb, "%d. Threat: %s → Control: %s - %s\n", n, t.Name, m.Control.Reference, m.Control.Title)
			if m.EvidenceHint != "" {
				fmt.Fprintf(&sb, "   Evidence: %s\n", m.EvidenceHint)
			}
		}
	}
	return sb.String(), nil
}

func (s *PlanSummarizer) fallback(in *planInputs) string {
	name := in.frameworkName()
	answers := in.answers()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Cybersecurity Plan Summary ===\nFramework: %s\nGenerated: %s\n\n", name, in.plan.CreatedAt.Format(timestampLayout))
	fmt.Fprintf(&sb, "=== Executive Summary ===\nThis cybersecurity plan has been developed based on the %s framework. \n", name)
	fmt.Fprintf(&sb, "The plan incorporates responses to %d planning prompts covering key cybersecurity domains.\n\n", len(in.prompts))
	sb.WriteString("=== Scope ===\nThe plan addresses cybersecurity planning for the organization based on the selected framework requirements.\n\n")
	sb.WriteString("=== Key Responses Summary ===\n")
	for i, p := range in.prompts {
		answer, ok := answers[p.ID]
		if !ok {
			answer = notAnswered
		}
		fmt.Fprintf(&sb, "\n%d. %s: %s...\n", i+1, p.Category, textutil.TruncateString(answer, 200))
	}
	fmt.Fprintf(&sb, "\n\n=== Controls Implementation ===\nBased on the %s framework, controls should be implemented according to the responses provided.\n\n", name)
	sb.WriteString("=== Monitoring ===\nRegular monitoring and review of the implemented controls is recommended.\n\n")
	sb.WriteString("=== Incident Response ===\nAn incident response plan should be developed and tested regularly.\n\n")
	fmt.Fprintf(&sb, "---\nThis plan was generated using CyPlanAI based on %s framework.\n", name)
	sb.WriteString("Note: For enhanced plan generation, configure an LLM provider in environment variables.\n")
	return sb.String()
}
