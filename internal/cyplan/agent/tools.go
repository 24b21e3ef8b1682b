package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kart-io/cyplan/pkg/llm"
	errno "github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/json"
)

// Tool names offered to the model.
const (
	ToolFrameworkInfo   = "get_framework_info"
	ToolSearchKnowledge = "search_knowledge_base"
	ToolPlanSummary     = "generate_plan_summary_tool"
	ToolRiskAssessment  = "get_risk_assessment"
)

// KnowledgeSource supplies retrieval context and framework descriptions.
type KnowledgeSource interface {
	ContextForQuestion(ctx context.Context, question string, useVector bool) string
	FrameworkInfo(ctx context.Context, id string) (string, error)
}

// Summarizer generates and stores plan summaries.
type Summarizer interface {
	GenerateAndSave(ctx context.Context, planID string) (string, error)
}

// RiskAssessor reports keyword-matched threats with their scores.
type RiskAssessor interface {
	AssessKeywords(ctx context.Context, keywords string) (string, error)
}

// Tool is a function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
	// ErrorPrefix precedes a Run error in the text returned to the model.
	ErrorPrefix string
	Run         func(ctx context.Context, args map[string]any) (string, error)
}

// Definition describes t to the model.
func (t Tool) Definition() llm.ToolDefinition {
	return llm.ToolDefinition{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
}

// Invoke decodes the JSON arguments and runs the tool. The returned text is
// always usable as a tool result; err reports whether the call failed.
func (t Tool) Invoke(ctx context.Context, arguments string) (string, error) {
	args := map[string]any{}
	if s := strings.TrimSpace(arguments); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			err = fmt.Errorf("invalid arguments: %w", err)
			return fmt.Sprintf("%s: %v", t.ErrorPrefix, err), err
		}
	}
	out, err := t.Run(ctx, args)
	if err != nil {
		return fmt.Sprintf("%s: %v", t.ErrorPrefix, err), err
	}
	return out, nil
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func stringSchema(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// ToolDeps are the services behind the agent tools. Summarizer and Risk may
// be nil; their tools then report an error.
type ToolDeps struct {
	Knowledge       KnowledgeSource
	Summarizer      Summarizer
	Risk            RiskAssessor
	UseVectorSearch bool
}

// NewTools returns the four agent tools.
func NewTools(deps ToolDeps) []Tool {
	return []Tool{
		{
			Name:        ToolFrameworkInfo,
			Description: "Get information about a cybersecurity framework. If no framework_id is provided, returns all frameworks.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"framework_id": stringSchema("Framework id, e.g. nist-csf-001"),
				},
			},
			ErrorPrefix: "Error getting framework info",
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				return deps.Knowledge.FrameworkInfo(ctx, stringArg(args, "framework_id"))
			},
		},
		{
			Name:        ToolSearchKnowledge,
			Description: "Search the knowledge base for cybersecurity frameworks, controls, and threats. Use this for any questions about cybersecurity standards, controls, or threats.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": stringSchema("Search query"),
				},
				"required": []string{"query"},
			},
			ErrorPrefix: "Error searching knowledge base",
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				return deps.Knowledge.ContextForQuestion(ctx, stringArg(args, "query"), deps.UseVectorSearch), nil
			},
		},
		{
			Name:        ToolPlanSummary,
			Description: "Generate a comprehensive summary for a cybersecurity plan. Requires a valid plan_id.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"plan_id": stringSchema("Plan id"),
				},
				"required": []string{"plan_id"},
			},
			ErrorPrefix: "Error generating summary",
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				if deps.Summarizer == nil {
					return "", errno.ErrSummaryFailed.WithMessage("plan summaries are unavailable")
				}
				planID := stringArg(args, "plan_id")
				summary, err := deps.Summarizer.GenerateAndSave(ctx, planID)
				if errors.Is(err, errno.ErrPlanNotFound) {
					return fmt.Sprintf("Plan with ID %s not found.", planID), nil
				}
				if err != nil {
					return "", err
				}
				return fmt.Sprintf("Plan summary generated successfully. Summary length: %d characters.", len([]rune(summary))), nil
			},
		},
		{
			Name:        ToolRiskAssessment,
			Description: "Assess risks based on keywords provided. Returns relevant threats and their risk scores.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"keywords": stringSchema("Threat keywords"),
				},
				"required": []string{"keywords"},
			},
			ErrorPrefix: "Error assessing risks",
			Run: func(ctx context.Context, args map[string]any) (string, error) {
				if deps.Risk == nil {
					return "", errno.ErrToolFailed.WithMessage("risk assessment is unavailable")
				}
				return deps.Risk.AssessKeywords(ctx, stringArg(args, "keywords"))
			},
		},
	}
}
