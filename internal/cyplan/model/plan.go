package model

import "time"

// Plan statuses.
const (
	PlanDraft      = "draft"
	PlanInProgress = "in_progress"
	PlanCompleted  = "completed"
)

// Prompt is a framework-specific question answered while building a plan.
type Prompt struct {
	ID          string    `json:"prompt_id" gorm:"primaryKey;type:varchar(64)"`
	FrameworkID string    `json:"framework_id" gorm:"type:varchar(64);index;not null"`
	Text        string    `json:"text" gorm:"type:text;not null"`
	Category    string    `json:"category" gorm:"type:varchar(100);not null"`
	Order       int       `json:"order" gorm:"column:sort_order;default:0"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Prompt.
func (Prompt) TableName() string {
	return "prompts"
}

// Plan is a user's cybersecurity plan for one framework.
type Plan struct {
	ID          string     `json:"plan_id" gorm:"primaryKey;type:varchar(64)"`
	UserID      *string    `json:"user_id,omitempty" gorm:"type:varchar(64);index"`
	FrameworkID string     `json:"framework_id" gorm:"type:varchar(64);index;not null"`
	Title       string     `json:"title" gorm:"type:varchar(255)"`
	Status      string     `json:"status" gorm:"type:varchar(20);not null;default:'in_progress'"`
	Summary     string     `json:"summary" gorm:"type:text"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// TableName specifies the table name for Plan.
func (Plan) TableName() string {
	return "plans"
}

// Response is the answer given to a prompt within a plan.
type Response struct {
	ID        string    `json:"response_id" gorm:"primaryKey;type:varchar(64)"`
	PlanID    string    `json:"plan_id" gorm:"type:varchar(64);index;not null"`
	PromptID  string    `json:"prompt_id" gorm:"type:varchar(64);index;not null"`
	Answer    string    `json:"value" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"timestamp" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Response.
func (Response) TableName() string {
	return "responses"
}
