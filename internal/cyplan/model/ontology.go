// Package model defines the persistent entities of the CyPlan service.
package model

import "time"

// Framework types.
const (
	FrameworkNISTCSF    = "NIST_CSF"
	FrameworkISO27001   = "ISO_27001"
	FrameworkNISTAIRMF  = "NIST_AI_RMF"
	FrameworkMITREATLAS = "MITRE_ATLAS"
)

// Framework is a cybersecurity framework such as NIST CSF.
type Framework struct {
	ID          string    `json:"framework_id" gorm:"primaryKey;type:varchar(64)"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Type        string    `json:"type" gorm:"type:varchar(50);not null"`
	Description string    `json:"description" gorm:"type:text"`
	Version     string    `json:"version" gorm:"type:varchar(20)"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Framework.
func (Framework) TableName() string {
	return "frameworks"
}

// Control is a framework control, e.g. PR.AC-3 or A.9.2.1.
type Control struct {
	ID                string `json:"control_id" gorm:"primaryKey;type:varchar(64)"`
	FrameworkID       string `json:"framework_id" gorm:"type:varchar(64);index;not null"`
	Reference         string `json:"reference" gorm:"type:varchar(100);not null"`
	Title             string `json:"title" gorm:"type:varchar(255);not null"`
	Description       string `json:"description" gorm:"type:text"`
	Category          string `json:"category" gorm:"type:varchar(100)"`
	MaturityCost      int    `json:"maturity_cost" gorm:"default:2"`
	SeverityMitigated int    `json:"severity_mitigated" gorm:"default:3"`
}

// TableName specifies the table name for Control.
func (Control) TableName() string {
	return "controls"
}

// Threat is an entry of the threat library. Likelihood and Impact are 1..5.
type Threat struct {
	ID          string `json:"threat_id" gorm:"primaryKey;type:varchar(64)"`
	Name        string `json:"name" gorm:"type:varchar(200);uniqueIndex;not null"`
	Description string `json:"description" gorm:"type:text"`
	Category    string `json:"category" gorm:"type:varchar(100)"`
	Likelihood  int    `json:"likelihood" gorm:"default:2"`
	Impact      int    `json:"impact" gorm:"default:3"`
}

// TableName specifies the table name for Threat.
func (Threat) TableName() string {
	return "threats"
}

// ControlMapping links a threat to a mitigating control. Duplicate pairs are
// allowed and kept.
type ControlMapping struct {
	ID           string `json:"mapping_id" gorm:"primaryKey;type:varchar(64)"`
	ThreatID     string `json:"threat_id" gorm:"type:varchar(64);index;not null"`
	ControlID    string `json:"control_id" gorm:"type:varchar(64);index;not null"`
	EvidenceHint string `json:"evidence_hint" gorm:"type:text"`
}

// TableName specifies the table name for ControlMapping.
func (ControlMapping) TableName() string {
	return "control_mappings"
}

// MappedControl is a control reached through a ControlMapping.
type MappedControl struct {
	Control      Control `json:"control"`
	EvidenceHint string  `json:"evidence_hint"`
}

// Clamp limits v to [1,5].
func Clamp(v int) int {
	switch {
	case v < 1:
		return 1
	case v > 5:
		return 5
	default:
		return v
	}
}
