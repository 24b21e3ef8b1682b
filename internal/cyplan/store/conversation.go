package store

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/pkg/utils/id"
)

type sessions struct {
	db *gorm.DB
}

func newSessions(db *gorm.DB) *sessions {
	return &sessions{db}
}

func (s *sessions) Create(ctx context.Context, session *model.AgentSession) error {
	if session.ID == "" {
		session.ID = id.NewULID()
	}
	return s.db.WithContext(ctx).Create(session).Error
}

func (s *sessions) Get(ctx context.Context, sessionID string) (*model.AgentSession, error) {
	var session model.AgentSession
	if err := s.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *sessions) AppendMessage(ctx context.Context, msg *model.AgentMessage) error {
	return s.db.WithContext(ctx).Create(msg).Error
}

func (s *sessions) Messages(ctx context.Context, sessionID string, limit int) ([]model.AgentMessage, error) {
	var out []model.AgentMessage
	q := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	reverse(out)
	return out, nil
}

func (s *sessions) LastMessage(ctx context.Context, sessionID, role string) (*model.AgentMessage, error) {
	var msg model.AgentMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND role = ?", sessionID, role).
		Order("created_at DESC").Order("id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

type threads struct {
	db *gorm.DB
}

func newThreads(db *gorm.DB) *threads {
	return &threads{db}
}

func (t *threads) Ensure(ctx context.Context, threadID string, userID *string) (*model.ChatThread, error) {
	db := t.db.WithContext(ctx)
	thread := model.ChatThread{ID: threadID, UserID: userID}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&thread).Error; err != nil {
		return nil, err
	}

	if userID != nil {
		// Only a null user is ever upgraded.
		err := db.Model(&model.ChatThread{}).
			Where("id = ? AND user_id IS NULL", threadID).
			Update("user_id", *userID).Error
		if err != nil {
			return nil, err
		}
	}
	return t.Get(ctx, threadID)
}

func (t *threads) Get(ctx context.Context, threadID string) (*model.ChatThread, error) {
	var thread model.ChatThread
	if err := t.db.WithContext(ctx).Where("id = ?", threadID).First(&thread).Error; err != nil {
		return nil, err
	}
	return &thread, nil
}

// List returns threads, most recently updated first.
func (t *threads) List(ctx context.Context, limit int) ([]model.ChatThread, error) {
	var out []model.ChatThread
	q := t.db.WithContext(ctx).Order("updated_at DESC").Order("id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// AppendMessage stores msg and bumps the thread's updated_at.
func (t *threads) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	return t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(msg).Error; err != nil {
			return err
		}
		return tx.Model(&model.ChatThread{}).
			Where("id = ?", msg.ThreadID).
			Update("updated_at", msg.CreatedAt).Error
	})
}

// Messages returns the thread's messages in insertion order.
func (t *threads) Messages(ctx context.Context, threadID string) ([]model.ChatMessage, error) {
	var out []model.ChatMessage
	err := t.db.WithContext(ctx).
		Where("thread_id = ?", threadID).
		Order("created_at").Order("id").
		Find(&out).Error
	return out, err
}

func (t *threads) LastMessage(ctx context.Context, threadID, role string) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	err := t.db.WithContext(ctx).
		Where("thread_id = ? AND role = ?", threadID, role).
		Order("created_at DESC").Order("id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
