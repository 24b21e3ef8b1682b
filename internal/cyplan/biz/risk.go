package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/utils/errors"
	"github.com/kart-io/cyplan/pkg/utils/validator"
)

// Score returns likelihood times impact, each clamped to [1,5].
func Score(likelihood, impact int) int {
	return model.Clamp(likelihood) * model.Clamp(impact)
}

// RiskInput names a threat by id or exact name, with optional overrides of
// its stored likelihood and impact.
type RiskInput struct {
	Threat     string `json:"threat" validate:"required,notblank"`
	Likelihood *int   `json:"likelihood,omitempty"`
	Impact     *int   `json:"impact,omitempty"`
}

type riskRequest struct {
	Inputs []RiskInput `json:"threats" validate:"required,min=1,dive"`
}

// AssessedControl is a control recommended against an assessed threat.
type AssessedControl struct {
	Reference    string `json:"reference"`
	Title        string `json:"title"`
	Category     string `json:"category"`
	EvidenceHint string `json:"evidence_hint"`
}

// RiskAssessment is the scored result for one threat.
type RiskAssessment struct {
	ThreatID   string            `json:"threat_id"`
	Threat     string            `json:"threat"`
	Category   string            `json:"category"`
	Likelihood int               `json:"likelihood"`
	Impact     int               `json:"impact"`
	Score      int               `json:"score"`
	Controls   []AssessedControl `json:"controls"`
}

// RiskScorer scores threats from the ontology.
type RiskScorer struct {
	ontology store.OntologyStore
}

// NewRiskScorer creates a RiskScorer.
func NewRiskScorer(ontology store.OntologyStore) *RiskScorer {
	return &RiskScorer{ontology: ontology}
}

// Assess scores each input. Inputs naming an unknown threat are dropped.
func (r *RiskScorer) Assess(ctx context.Context, inputs []RiskInput) ([]RiskAssessment, error) {
	if err := validator.Struct(&riskRequest{Inputs: inputs}); err != nil {
		return nil, errors.ErrInvalidRiskInput.WithMessage(err.Error())
	}

	out := make([]RiskAssessment, 0, len(inputs))
	for _, in := range inputs {
		t, err := r.ontology.GetThreat(ctx, strings.TrimSpace(in.Threat))
		if store.IsNotFound(err) {
			logger.Debugw("risk input names unknown threat", "threat", in.Threat)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve threat %q: %w", in.Threat, err)
		}

		likelihood, impact := t.Likelihood, t.Impact
		if in.Likelihood != nil {
			likelihood = *in.Likelihood
		}
		if in.Impact != nil {
			impact = *in.Impact
		}
		likelihood, impact = model.Clamp(likelihood), model.Clamp(impact)

		mapped, err := r.ontology.MappingsForThreat(ctx, t.ID)
		if err != nil {
			return nil, fmt.Errorf("controls for %q: %w", t.Name, err)
		}
		controls := make([]AssessedControl, len(mapped))
		for n, m := range mapped {
			controls[n] = AssessedControl{
				Reference:    m.Control.Reference,
				Title:        m.Control.Title,
				Category:     m.Control.Category,
				EvidenceHint: m.EvidenceHint,
			}
		}

		out = append(out, RiskAssessment{
			ThreatID:   t.ID,
			Threat:     t.Name,
			Category:   t.Category,
			Likelihood: likelihood,
			Impact:     impact,
			Score:      likelihood * impact,
			Controls:   controls,
		})
	}
	return out, nil
}

// AssessKeywords reports the threats matching keywords with their risk
// scores, as text for the agent.
func (r *RiskScorer) AssessKeywords(ctx context.Context, keywords string) (string, error) {
	threats, err := r.ontology.SearchThreats(ctx, strings.ToLower(keywords))
	if err != nil {
		return "", err
	}
	if len(threats) == 0 {
		return fmt.Sprintf("No threats found matching: %s", keywords), nil
	}

	var sb strings.Builder
	sb.WriteString("Risk Assessment Results:\n")
	for _, t := range threats {
		l, i := model.Clamp(t.Likelihood), model.Clamp(t.Impact)
		fmt.Fprintf(&sb, "- %s (%s): Risk Score %d/25 (Likelihood: %d/5, Impact: %d/5)\n",
			t.Name, t.Category, l*i, l, i)
		fmt.Fprintf(&sb, "  Description: %s\n", orNA(t.Description))
	}
	return sb.String(), nil
}
