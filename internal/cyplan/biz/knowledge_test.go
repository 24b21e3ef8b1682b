package biz

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/internal/cyplan/store"
	"github.com/kart-io/cyplan/pkg/utils/errors"
)

func TestQuestionKeywords(t *testing.T) {
	got := QuestionKeywords("How does NIST CSF handle Phishing and access CONTROL?")
	assert.Equal(t, []string{"nist csf", "nist cs", "phishing", "control", "access"}, got)
	assert.Empty(t, QuestionKeywords("hello there"))
}

func TestContextForQuestionKeywords(t *testing.T) {
	f := newSeededFactory(t)
	e := NewKnowledgeEngine(f.Ontology(), nil, nil)

	out := e.ContextForQuestion(context.Background(), "How do we stop phishing?", false)
	require.True(t, strings.HasPrefix(out, HeaderFrameworkKB+"\n\n"), out)
	assert.Contains(t, out, "=== RELEVANT THREATS ===")
	assert.Contains(t, out, "Phishing leading to credential theft (Social Engineering)")
	assert.NotContains(t, out, HeaderLibraryDocs)
}

func TestContextForQuestionSummary(t *testing.T) {
	f := newSeededFactory(t)
	e := NewKnowledgeEngine(f.Ontology(), nil, nil)

	out := e.ContextForQuestion(context.Background(), "hello there", false)
	require.True(t, strings.HasPrefix(out, HeaderFrameworkSummary+"\n\n"), out)
	body := strings.TrimPrefix(out, HeaderFrameworkSummary+"\n\n")
	assert.LessOrEqual(t, utf8.RuneCountInString(body), summaryMaxChars)
	assert.Contains(t, body, "=== CYBERSECURITY FRAMEWORKS ===")
}

func TestContextForQuestionWithLibraries(t *testing.T) {
	f := newSeededFactory(t)
	index := newFakeIndex()
	index.hits = []store.Hit{
		{Library: "policies", Source: "access.md", Content: "Admins use hardware keys."},
		{Library: "policies", Source: "vpn.md", Content: "VPN requires MFA."},
	}
	e := NewKnowledgeEngine(f.Ontology(), index, nil)

	out := e.ContextForQuestion(context.Background(), "access policy", true)
	require.True(t, strings.HasPrefix(out, HeaderLibraryDocs+"\n"), out)
	assert.Contains(t, out, "[From policies/access.md]\nAdmins use hardware keys.\n\n")
	assert.Contains(t, out, "[From policies/vpn.md]\nVPN requires MFA.\n\n")
	assert.Contains(t, out, HeaderFrameworkKB)
	assert.Less(t, strings.Index(out, HeaderLibraryDocs), strings.Index(out, HeaderFrameworkKB))

	out = e.ContextForQuestion(context.Background(), "access policy", false)
	assert.NotContains(t, out, HeaderLibraryDocs)
	assert.Equal(t, 1, index.searches)
}

func TestContextForQuestionSearchFailure(t *testing.T) {
	f := newSeededFactory(t)
	index := newFakeIndex()
	index.searchErr = errors.ErrLLMUpstream
	e := NewKnowledgeEngine(f.Ontology(), index, nil)

	out := e.ContextForQuestion(context.Background(), "phishing attack", true)
	assert.NotContains(t, out, HeaderLibraryDocs)
	assert.Contains(t, out, "Phishing leading to credential theft")
}

func TestContextForQuestionNilIndex(t *testing.T) {
	f := newSeededFactory(t)
	e := NewKnowledgeEngine(f.Ontology(), nil, nil)
	assert.False(t, e.VectorAvailable())

	out := e.ContextForQuestion(context.Background(), "ransomware", true)
	assert.NotContains(t, out, HeaderLibraryDocs)
	assert.NotEqual(t, NoContextFound, out)
}

// failingOntology fails every listing used by the summary path.
type failingOntology struct {
	store.OntologyStore
}

func (failingOntology) ListFrameworks(context.Context) ([]model.Framework, error) {
	return nil, errors.ErrInternal
}

func TestContextForQuestionNothingFound(t *testing.T) {
	e := NewKnowledgeEngine(failingOntology{}, nil, nil)
	assert.Equal(t, NoContextFound, e.ContextForQuestion(context.Background(), "hello", false))
}

func TestContextForQuestionCached(t *testing.T) {
	f := newSeededFactory(t)
	_, rdb := newTestRedis(t)
	index := newFakeIndex()
	index.hits = []store.Hit{{Library: "lib", Source: "a.txt", Content: "cached content"}}
	e := NewKnowledgeEngine(f.Ontology(), index, NewContextCache(rdb, ContextCacheConfig{Enabled: true}))
	ctx := context.Background()

	first := e.ContextForQuestion(ctx, "audit logging", true)
	index.hits = nil
	second := e.ContextForQuestion(ctx, "audit logging", true)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, index.searches)
}

func TestContextForQuestionSkipsCacheWhenSearchFails(t *testing.T) {
	f := newSeededFactory(t)
	mr, rdb := newTestRedis(t)
	index := newFakeIndex()
	index.searchErr = errors.ErrLLMUpstream
	e := NewKnowledgeEngine(f.Ontology(), index, NewContextCache(rdb, ContextCacheConfig{Enabled: true}))
	ctx := context.Background()

	degraded := e.ContextForQuestion(ctx, "audit logging", true)
	assert.NotContains(t, degraded, HeaderLibraryDocs)
	assert.Empty(t, mr.Keys())

	index.mu.Lock()
	index.searchErr = nil
	index.hits = []store.Hit{{Library: "lib", Source: "a.txt", Content: "fresh doc"}}
	index.mu.Unlock()

	recovered := e.ContextForQuestion(ctx, "audit logging", true)
	assert.Contains(t, recovered, "[From lib/a.txt]\nfresh doc")
	assert.Equal(t, 2, index.searches)
	assert.Len(t, mr.Keys(), 1)
}

func TestInvalidateContext(t *testing.T) {
	f := newSeededFactory(t)
	mr, rdb := newTestRedis(t)
	index := newFakeIndex()
	index.hits = []store.Hit{{Library: "lib", Source: "a.txt", Content: "old doc"}}
	e := NewKnowledgeEngine(f.Ontology(), index, NewContextCache(rdb, ContextCacheConfig{Enabled: true}))
	ctx := context.Background()

	e.ContextForQuestion(ctx, "audit logging", true)
	require.Len(t, mr.Keys(), 1)

	e.InvalidateContext(ctx)
	assert.Empty(t, mr.Keys())
	e.ContextForQuestion(ctx, "audit logging", true)
	assert.Equal(t, 2, index.searches)

	NewKnowledgeEngine(f.Ontology(), nil, nil).InvalidateContext(ctx)
}

func TestSearchKnowledge(t *testing.T) {
	f := newSeededFactory(t)
	e := NewKnowledgeEngine(f.Ontology(), nil, nil)
	ctx := context.Background()

	out, err := e.SearchKnowledge(ctx, "least privilege")
	require.NoError(t, err)
	assert.Contains(t, out, "=== RELEVANT CONTROLS ===")
	assert.Contains(t, out, "PR.AC-3 (NIST Cybersecurity Framework): Access control least privilege")
	assert.NotContains(t, out, "=== RELEVANT THREATS ===")

	out, err = e.SearchKnowledge(ctx, "zzz-no-such-term")
	require.NoError(t, err)
	assert.Equal(t, NoMatchesFound, out)
}

func TestAllKnowledge(t *testing.T) {
	f := newSeededFactory(t)
	e := NewKnowledgeEngine(f.Ontology(), nil, nil)

	out, err := e.AllKnowledge(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out, "Framework: MITRE ATLAS (MITRE_ATLAS)")
	assert.Contains(t, out, "Control: A.12.6.1 - Management of technical vulnerabilities")
	assert.Contains(t, out, "Maturity/Cost: 2/5, Severity Mitigated: 4/5")
	assert.Contains(t, out, "Recommended Controls:")
	assert.Contains(t, out, "  - PR.AC-3 (Access control least privilege): Access reviews, RBAC policy, privileged access approvals")
	assert.Less(t, strings.Index(out, "=== CONTROLS ==="), strings.Index(out, "=== THREAT LIBRARY ==="))
}

func TestFrameworkInfo(t *testing.T) {
	f := newSeededFactory(t)
	e := NewKnowledgeEngine(f.Ontology(), nil, nil)
	ctx := context.Background()

	out, err := e.FrameworkInfo(ctx, store.FrameworkIDNISTCSF)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Framework: NIST Cybersecurity Framework (NIST_CSF)\nDescription: "))
	assert.True(t, strings.HasSuffix(out, "Version: 1.1"))

	out, err = e.FrameworkInfo(ctx, "nope")
	require.NoError(t, err)
	assert.Equal(t, "Framework with ID nope not found.", out)

	out, err = e.FrameworkInfo(ctx, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Available Frameworks:\n- NIST Cybersecurity Framework (NIST_CSF): "))
	assert.Equal(t, 5, strings.Count(out, "\n"))
}
