package store

import (
	"context"

	"gorm.io/gorm"

	"github.com/kart-io/cyplan/internal/cyplan/model"
	"github.com/kart-io/cyplan/pkg/utils/id"
)

type plans struct {
	db *gorm.DB
}

func newPlans(db *gorm.DB) *plans {
	return &plans{db}
}

// CreatePlan creates a plan, assigning an id and default status when unset.
func (p *plans) CreatePlan(ctx context.Context, plan *model.Plan) error {
	if plan.ID == "" {
		plan.ID = id.NewULID()
	}
	if plan.Status == "" {
		plan.Status = model.PlanInProgress
	}
	return p.db.WithContext(ctx).Create(plan).Error
}

func (p *plans) GetPlan(ctx context.Context, planID string) (*model.Plan, error) {
	var plan model.Plan
	if err := p.db.WithContext(ctx).Where("id = ?", planID).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// ListPrompts lists a framework's prompts by their display order.
func (p *plans) ListPrompts(ctx context.Context, frameworkID string) ([]model.Prompt, error) {
	var out []model.Prompt
	err := p.db.WithContext(ctx).
		Where("framework_id = ?", frameworkID).
		Order("sort_order").
		Find(&out).Error
	return out, err
}

func (p *plans) ListResponses(ctx context.Context, planID string) ([]model.Response, error) {
	var out []model.Response
	err := p.db.WithContext(ctx).
		Where("plan_id = ?", planID).
		Order("created_at").Order("id").
		Find(&out).Error
	return out, err
}

func (p *plans) SaveResponse(ctx context.Context, resp *model.Response) error {
	if resp.ID == "" {
		resp.ID = id.NewULID()
	}
	return p.db.WithContext(ctx).Create(resp).Error
}

func (p *plans) UpdatePlanSummary(ctx context.Context, planID, summary string) error {
	res := p.db.WithContext(ctx).
		Model(&model.Plan{}).
		Where("id = ?", planID).
		Update("summary", summary)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
