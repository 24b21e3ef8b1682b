package store

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/kart-io/cyplan/internal/cyplan/model"
)

// SearchResult holds the ontology rows matching a keyword search.
type SearchResult struct {
	Frameworks []model.Framework `json:"frameworks"`
	Controls   []model.Control   `json:"controls"`
	Threats    []model.Threat    `json:"threats"`
}

// Empty reports whether nothing matched.
func (r *SearchResult) Empty() bool {
	return r == nil || len(r.Frameworks)+len(r.Controls)+len(r.Threats) == 0
}

type ontology struct {
	db *gorm.DB
}

func newOntology(db *gorm.DB) *ontology {
	return &ontology{db}
}

// ListFrameworks lists frameworks in table order.
func (o *ontology) ListFrameworks(ctx context.Context) ([]model.Framework, error) {
	var out []model.Framework
	err := o.db.WithContext(ctx).Find(&out).Error
	return out, err
}

// GetFramework returns the framework with id, or gorm.ErrRecordNotFound.
func (o *ontology) GetFramework(ctx context.Context, id string) (*model.Framework, error) {
	var fw model.Framework
	if err := o.db.WithContext(ctx).Where("id = ?", id).First(&fw).Error; err != nil {
		return nil, err
	}
	return &fw, nil
}

func (o *ontology) ListControls(ctx context.Context, frameworkID string) ([]model.Control, error) {
	var out []model.Control
	q := o.db.WithContext(ctx).Order("framework_id").Order("reference")
	if frameworkID != "" {
		q = q.Where("framework_id = ?", frameworkID)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListThreats lists threats in table order.
func (o *ontology) ListThreats(ctx context.Context) ([]model.Threat, error) {
	var out []model.Threat
	err := o.db.WithContext(ctx).Find(&out).Error
	return out, err
}

func (o *ontology) GetThreat(ctx context.Context, idOrName string) (*model.Threat, error) {
	var t model.Threat
	err := o.db.WithContext(ctx).Where("id = ?", idOrName).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = o.db.WithContext(ctx).Where("name = ?", idOrName).First(&t).Error
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type mappedRow struct {
	model.Control
	EvidenceHint string
}

func (o *ontology) MappingsForThreat(ctx context.Context, threatID string) ([]model.MappedControl, error) {
	var rows []mappedRow
	err := o.db.WithContext(ctx).
		Table("control_mappings AS m").
		Select("c.*, m.evidence_hint").
		Joins("JOIN controls AS c ON c.id = m.control_id").
		Where("m.threat_id = ?", threatID).
		Order("m.id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]model.MappedControl, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.MappedControl{Control: r.Control, EvidenceHint: r.EvidenceHint})
	}
	return out, nil
}

// anyLike builds "(LOWER(c1) LIKE ? OR LOWER(c2) LIKE ? ...)" over every
// column and term pair.
func anyLike(columns []string, terms []string) (string, []any) {
	var clauses []string
	var args []any
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		pattern := "%" + term + "%"
		for _, col := range columns {
			clauses = append(clauses, "LOWER("+col+") LIKE ?")
			args = append(args, pattern)
		}
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return "(" + strings.Join(clauses, " OR ") + ")", args
}

// SearchKeywords matches any term, case-insensitively, as a substring of the
// searchable columns of frameworks, controls and threats.
func (o *ontology) SearchKeywords(ctx context.Context, terms []string) (*SearchResult, error) {
	res := &SearchResult{}

	where, args := anyLike([]string{"name", "description"}, terms)
	if where == "" {
		return res, nil
	}
	db := o.db.WithContext(ctx)
	if err := db.Where(where, args...).Find(&res.Frameworks).Error; err != nil {
		return nil, err
	}

	where, args = anyLike([]string{"title", "description", "reference", "category"}, terms)
	if err := db.Where(where, args...).Find(&res.Controls).Error; err != nil {
		return nil, err
	}

	where, args = anyLike([]string{"name", "description", "category"}, terms)
	if err := db.Where(where, args...).Find(&res.Threats).Error; err != nil {
		return nil, err
	}
	return res, nil
}

func (o *ontology) SearchThreats(ctx context.Context, keyword string) ([]model.Threat, error) {
	where, args := anyLike([]string{"name", "description", "category"}, []string{keyword})
	if where == "" {
		return nil, nil
	}
	var out []model.Threat
	err := o.db.WithContext(ctx).Where(where, args...).Find(&out).Error
	return out, err
}
