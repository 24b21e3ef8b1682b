// Package store implements persistence for the CyPlan service: the security
// ontology, plans, agent sessions, chat threads and the document vector index.
package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/kart-io/cyplan/internal/cyplan/model"
)

// Factory defines the factory interface for creating stores.
type Factory interface {
	Ontology() OntologyStore
	Plans() PlanStore
	Sessions() SessionStore
	Threads() ThreadStore
	AutoMigrate(ctx context.Context) error
	DB() *gorm.DB
}

// OntologyStore reads frameworks, controls, threats and their mappings.
type OntologyStore interface {
	ListFrameworks(ctx context.Context) ([]model.Framework, error)
	GetFramework(ctx context.Context, id string) (*model.Framework, error)
	// ListControls lists controls ordered by framework id then reference.
	// An empty frameworkID lists every framework's controls.
	ListControls(ctx context.Context, frameworkID string) ([]model.Control, error)
	ListThreats(ctx context.Context) ([]model.Threat, error)
	// GetThreat resolves a threat by id or exact name.
	GetThreat(ctx context.Context, idOrName string) (*model.Threat, error)
	// MappingsForThreat returns mapped controls, skipping orphans and keeping duplicates.
	MappingsForThreat(ctx context.Context, threatID string) ([]model.MappedControl, error)
	SearchKeywords(ctx context.Context, terms []string) (*SearchResult, error)
	SearchThreats(ctx context.Context, keyword string) ([]model.Threat, error)
	Seed(ctx context.Context) (bool, error)
}

// PlanStore reads and updates plans, prompts and responses.
type PlanStore interface {
	CreatePlan(ctx context.Context, plan *model.Plan) error
	GetPlan(ctx context.Context, id string) (*model.Plan, error)
	ListPrompts(ctx context.Context, frameworkID string) ([]model.Prompt, error)
	ListResponses(ctx context.Context, planID string) ([]model.Response, error)
	SaveResponse(ctx context.Context, resp *model.Response) error
	// UpdatePlanSummary sets the summary without touching the status.
	UpdatePlanSummary(ctx context.Context, planID, summary string) error
}

// SessionStore persists intent-agent sessions and their messages.
type SessionStore interface {
	Create(ctx context.Context, session *model.AgentSession) error
	Get(ctx context.Context, id string) (*model.AgentSession, error)
	AppendMessage(ctx context.Context, msg *model.AgentMessage) error
	// Messages returns the most recent limit messages in chronological order.
	// limit <= 0 returns every message.
	Messages(ctx context.Context, sessionID string, limit int) ([]model.AgentMessage, error)
	LastMessage(ctx context.Context, sessionID, role string) (*model.AgentMessage, error)
}

// ThreadStore persists streaming chat threads and their messages.
type ThreadStore interface {
	// Ensure creates the thread when missing and sets its user when the stored
	// user is null. It never clears or replaces an existing user.
	Ensure(ctx context.Context, threadID string, userID *string) (*model.ChatThread, error)
	Get(ctx context.Context, threadID string) (*model.ChatThread, error)
	List(ctx context.Context, limit int) ([]model.ChatThread, error)
	AppendMessage(ctx context.Context, msg *model.ChatMessage) error
	Messages(ctx context.Context, threadID string) ([]model.ChatMessage, error)
	// LastMessage returns the newest message with role, or nil when none.
	LastMessage(ctx context.Context, threadID, role string) (*model.ChatMessage, error)
}

type datastore struct {
	db *gorm.DB
}

// NewFactory returns a Factory backed by db.
func NewFactory(db *gorm.DB) Factory {
	return &datastore{db: db}
}

func (ds *datastore) Ontology() OntologyStore { return newOntology(ds.db) }
func (ds *datastore) Plans() PlanStore       { return newPlans(ds.db) }
func (ds *datastore) Sessions() SessionStore { return newSessions(ds.db) }
func (ds *datastore) Threads() ThreadStore   { return newThreads(ds.db) }
func (ds *datastore) DB() *gorm.DB           { return ds.db }

// AutoMigrate migrates the database schema.
func (ds *datastore) AutoMigrate(ctx context.Context) error {
	return ds.db.WithContext(ctx).AutoMigrate(model.All()...)
}

// IsNotFound reports whether err means the requested row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
