package model

import (
	"time"

	"gorm.io/datatypes"
)

// Agent message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Chat thread message roles.
const (
	ChatRoleHuman = "human"
	ChatRoleAI    = "ai"
	ChatRoleTool  = "tool"
)

// AgentSession is a session of the intent-based agent.
type AgentSession struct {
	ID        string    `json:"session_id" gorm:"primaryKey;type:varchar(64)"`
	UserID    *string   `json:"user_id,omitempty" gorm:"type:varchar(64);index"`
	PlanID    *string   `json:"plan_id,omitempty" gorm:"type:varchar(64);index"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for AgentSession.
func (AgentSession) TableName() string {
	return "agent_sessions"
}

// AgentMessage is one message of an AgentSession. ID is the insertion order.
type AgentMessage struct {
	ID        uint64         `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID string         `json:"session_id" gorm:"type:varchar(64);index;not null"`
	Role      string         `json:"role" gorm:"type:varchar(20);not null"`
	Content   string         `json:"content" gorm:"type:text;not null"`
	ToolName  *string        `json:"tool_name,omitempty" gorm:"type:varchar(100)"`
	ToolCalls datatypes.JSON `json:"tool_calls,omitempty"`
	CreatedAt time.Time      `json:"timestamp" gorm:"index"`
}

// TableName specifies the table name for AgentMessage.
func (AgentMessage) TableName() string {
	return "agent_messages"
}

// ChatThread is a streaming conversation thread.
type ChatThread struct {
	ID        string    `json:"thread_id" gorm:"primaryKey;type:varchar(64)"`
	UserID    *string   `json:"user_id,omitempty" gorm:"type:varchar(64);index"`
	Title     string    `json:"title" gorm:"type:varchar(255)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for ChatThread.
func (ChatThread) TableName() string {
	return "chat_threads"
}

// ChatMessage is one message of a ChatThread. ID is the insertion order.
type ChatMessage struct {
	ID              uint64    `json:"id" gorm:"primaryKey;autoIncrement"`
	ThreadID        string    `json:"thread_id" gorm:"type:varchar(64);index;not null"`
	Role            string    `json:"role" gorm:"type:varchar(20);not null"`
	Content         string    `json:"content" gorm:"type:text;not null"`
	ClientMessageID *string   `json:"message_id,omitempty" gorm:"type:varchar(64)"`
	CreatedAt       time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for ChatMessage.
func (ChatMessage) TableName() string {
	return "chat_messages"
}
