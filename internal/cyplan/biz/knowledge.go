package biz

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kart-io/logger"
	"go.opentelemetry.io/otel/attribute"

	"github.com/kart-io/cyplan/internal/cyplan/metrics"
	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/internal/pkg/textutil"
	"github.com/kart-io/cyplan/pkg/infra/tracing"
)

// Section headers of assembled contexts.
const (
	HeaderLibraryDocs      = "=== RELEVANT LIBRARY DOCUMENTATION ==="
	HeaderFrameworkKB      = "=== CYBERSECURITY FRAMEWORK KNOWLEDGE ==="
	HeaderFrameworkSummary = "=== CYBERSECURITY FRAMEWORK KNOWLEDGE (Summary) ==="

	NoContextFound = "No relevant context found."
	NoMatchesFound = "No specific matches found in knowledge base."
)

const (
	vectorTopK      = 3
	summaryMaxChars = 3000
)

// Keyword signals looked for in a lowercased question, in this order.
var (
	frameworkTerms = []string{"nist csf", "nist cs", "iso 27001", "iso27001", "nist ai rmf", "mitre atlas", "atlas"}
	threatTerms    = []string{"phishing", "poisoning", "adversarial", "attack", "threat", "risk", "vulnerability"}
	controlTerms   = []string{"control", "compliance", "audit", "access", "encryption", "monitoring"}
)

// QuestionKeywords returns the framework, threat and control terms that occur
// in question.
func QuestionKeywords(question string) []string {
	q := strings.ToLower(question)
	var out []string
	out = append(out, textutil.MatchTerms(q, frameworkTerms)...)
	out = append(out, textutil.MatchTerms(q, threatTerms)...)
	out = append(out, textutil.MatchTerms(q, controlTerms)...)
	return out
}

// KnowledgeEngine fuses the ontology and library documents into context
// text for the language model. Retrieval failures are logged and left out
// of the result.
type KnowledgeEngine struct {
	ontology store.OntologyStore
	index    store.VectorIndex
	cache    *ContextCache
	metrics  *metrics.Metrics

	unavailableOnce sync.Once
}

// NewKnowledgeEngine creates an engine. index and cache may be nil; without
// an index vector retrieval is skipped.
func NewKnowledgeEngine(ontology store.OntologyStore, index store.VectorIndex, cache *ContextCache) *KnowledgeEngine {
	return &KnowledgeEngine{
		ontology: ontology,
		index:    index,
		cache:    cache,
		metrics:  metrics.Default(),
	}
}

// VectorAvailable reports whether library documents can be searched.
func (e *KnowledgeEngine) VectorAvailable() bool {
	return e.index != nil
}

// ContextForQuestion assembles library documentation and ontology knowledge
// relevant to question. It never fails; when nothing is found it returns
// NoContextFound.
func (e *KnowledgeEngine) ContextForQuestion(ctx context.Context, question string, useVector bool) string {
	ctx, span := tracing.StartSpan(ctx, "knowledge.context",
		attribute.Bool("cyplan.use_vector", useVector))
	defer span.End()

	if cached, ok := e.cache.Get(ctx, question, useVector); ok {
		e.metrics.RecordContextCache(true)
		return cached
	}
	if e.cache.enabled() {
		e.metrics.RecordContextCache(false)
	}

	var parts []string
	complete := true
	if useVector {
		docs, ok := e.libraryContext(ctx, question)
		complete = complete && ok
		if docs != "" {
			parts = append(parts, HeaderLibraryDocs+"\n", docs)
		}
	}
	kb, ok := e.ontologyContext(ctx, question)
	complete = complete && ok
	if kb != "" {
		parts = append(parts, kb)
	}

	if len(parts) == 0 {
		return NoContextFound
	}
	out := strings.Join(parts, "\n")
	// A context missing a failed source must not outlive the failure.
	if complete {
		e.cache.Set(ctx, question, useVector, out)
	}
	return out
}

// InvalidateContext drops cached contexts after the indexed documents
// changed.
func (e *KnowledgeEngine) InvalidateContext(ctx context.Context) {
	e.cache.Invalidate(ctx)
}

// libraryContext returns the documents matching question and false when the
// search failed.
func (e *KnowledgeEngine) libraryContext(ctx context.Context, question string) (string, bool) {
	if e.index == nil {
		e.unavailableOnce.Do(func() {
			logger.Warnw("vector search unavailable, using ontology knowledge only")
		})
		return "", true
	}

	start := time.Now()
	hits, err := e.index.Search(ctx, question, vectorTopK, "")
	e.metrics.RecordRetrieval("vector", time.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		logger.Warnw("vector search failed", "error", err.Error())
		return "", false
	}

	var sb strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&sb, "[From %s/%s]\n%s\n\n", h.Library, h.Source, h.Content)
	}
	return sb.String(), true
}

func (e *KnowledgeEngine) ontologyContext(ctx context.Context, question string) (string, bool) {
	start := time.Now()
	keywords := QuestionKeywords(question)

	var (
		text string
		err  error
	)
	if len(keywords) > 0 {
		text, err = e.searchTerms(ctx, keywords)
		if err == nil {
			text = HeaderFrameworkKB + "\n\n" + text
		}
	} else {
		text, err = e.AllKnowledge(ctx)
		if err == nil {
			text = HeaderFrameworkSummary + "\n\n" + textutil.TruncateString(text, summaryMaxChars)
		}
	}
	e.metrics.RecordRetrieval("ontology", time.Since(start), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		logger.Warnw("ontology retrieval failed", "error", err.Error())
		return "", false
	}
	return text, true
}

// frameworkNames maps framework ids to names.
func (e *KnowledgeEngine) frameworkNames(ctx context.Context) (map[string]string, []model.Framework, error) {
	fws, err := e.ontology.ListFrameworks(ctx)
	if err != nil {
		return nil, nil, err
	}
	names := make(map[string]string, len(fws))
	for _, fw := range fws {
		names[fw.ID] = fw.Name
	}
	return names, fws, nil
}

func nameOr(names map[string]string, id string) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "Unknown"
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}

// AllKnowledge renders every framework, control and threat, with the
// controls recommended for each threat.
func (e *KnowledgeEngine) AllKnowledge(ctx context.Context) (string, error) {
	names, fws, err := e.frameworkNames(ctx)
	if err != nil {
		return "", err
	}
	controls, err := e.ontology.ListControls(ctx, "")
	if err != nil {
		return "", err
	}
	threats, err := e.ontology.ListThreats(ctx)
	if err != nil {
		return "", err
	}

	parts := []string{"=== CYBERSECURITY FRAMEWORKS ===\n"}
	for _, fw := range fws {
		parts = append(parts,
			fmt.Sprintf("Framework: %s (%s)\n", fw.Name, fw.Type),
			fmt.Sprintf("Description: %s\n", orNA(fw.Description)),
			fmt.Sprintf("Version: %s\n\n", orNA(fw.Version)),
		)
	}

	parts = append(parts, "=== CONTROLS ===\n")
	for _, c := range controls {
		parts = append(parts,
			fmt.Sprintf("Control: %s - %s\n", c.Reference, c.Title),
			fmt.Sprintf("Framework: %s\n", nameOr(names, c.FrameworkID)),
			fmt.Sprintf("Category: %s\n", orNA(c.Category)),
			fmt.Sprintf("Description: %s\n", orNA(c.Description)),
			fmt.Sprintf("Maturity/Cost: %d/5, Severity Mitigated: %d/5\n\n",
				model.Clamp(c.MaturityCost), model.Clamp(c.SeverityMitigated)),
		)
	}

	parts = append(parts, "=== THREAT LIBRARY ===\n")
	for _, t := range threats {
		parts = append(parts,
			fmt.Sprintf("Threat: %s\n", t.Name),
			fmt.Sprintf("Category: %s\n", orNA(t.Category)),
			fmt.Sprintf("Description: %s\n", orNA(t.Description)),
			fmt.Sprintf("Likelihood: %d/5, Impact: %d/5\n", model.Clamp(t.Likelihood), model.Clamp(t.Impact)),
		)
		mapped, err := e.ontology.MappingsForThreat(ctx, t.ID)
		if err != nil {
			return "", err
		}
		if len(mapped) > 0 {
			parts = append(parts, "Recommended Controls:\n")
			for _, m := range mapped {
				hint := m.EvidenceHint
				if hint == "" {
					hint = "See control description"
				}
				parts = append(parts, fmt.Sprintf("  - %s (%s): %s\n", m.Control.Reference, m.Control.Title, hint))
			}
		}
		parts = append(parts, "\n")
	}
	return strings.Join(parts, "\n"), nil
}

// SearchKnowledge returns the frameworks, controls and threats matching
// query, or NoMatchesFound.
func (e *KnowledgeEngine) SearchKnowledge(ctx context.Context, query string) (string, error) {
	return e.searchTerms(ctx, []string{query})
}

func (e *KnowledgeEngine) searchTerms(ctx context.Context, terms []string) (string, error) {
	res, err := e.ontology.SearchKeywords(ctx, terms)
	if err != nil {
		return "", err
	}
	if res.Empty() {
		return NoMatchesFound, nil
	}

	var names map[string]string
	if len(res.Controls) > 0 {
		if names, _, err = e.frameworkNames(ctx); err != nil {
			return "", err
		}
	}

	var parts []string
	if len(res.Frameworks) > 0 {
		parts = append(parts, "=== RELEVANT FRAMEWORKS ===\n")
		for _, fw := range res.Frameworks {
			parts = append(parts, fmt.Sprintf("%s: %s\n", fw.Name, fw.Description))
		}
	}
	if len(res.Controls) > 0 {
		parts = append(parts, "\n=== RELEVANT CONTROLS ===\n")
		for _, c := range res.Controls {
			parts = append(parts, fmt.Sprintf("%s (%s): %s\n", c.Reference, nameOr(names, c.FrameworkID), c.Title))
			if c.Description != "" {
				parts = append(parts, fmt.Sprintf("  %s\n", c.Description))
			}
		}
	}
	if len(res.Threats) > 0 {
		parts = append(parts, "\n=== RELEVANT THREATS ===\n")
		for _, t := range res.Threats {
			parts = append(parts, fmt.Sprintf("%s (%s): %s\n", t.Name, t.Category, t.Description))
		}
	}
	return strings.Join(parts, "\n"), nil
}

// FrameworkInfo describes one framework, or lists all of them when id is
// empty.
func (e *KnowledgeEngine) FrameworkInfo(ctx context.Context, id string) (string, error) {
	if id != "" {
		fw, err := e.ontology.GetFramework(ctx, id)
		if err != nil {
			if store.IsNotFound(err) {
				return fmt.Sprintf("Framework with ID %s not found.", id), nil
			}
			return "", err
		}
		return fmt.Sprintf("Framework: %s (%s)\nDescription: %s\nVersion: %s",
			fw.Name, fw.Type, fw.Description, fw.Version), nil
	}

	fws, err := e.ontology.ListFrameworks(ctx)
	if err != nil {
		return "", err
	}
	if len(fws) == 0 {
		return "No frameworks available.", nil
	}
	var sb strings.Builder
	sb.WriteString("Available Frameworks:\n")
	for _, fw := range fws {
		desc := fw.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&sb, "- %s (%s): %s\n", fw.Name, fw.Type, desc)
	}
	return sb.String(), nil
}
