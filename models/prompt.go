package models

import (
	"time"

	"gorm.io/datatypes"
)

type PromptAuditAction string

const (
	PromptAuditTemplateCreated    PromptAuditAction = "template_created"
	PromptAuditTemplateUpdated    PromptAuditAction = "template_updated"
	PromptAuditVersionCreated     PromptAuditAction = "version_created"
	PromptAuditVersionActivated   PromptAuditAction = "version_activated"
	PromptAuditVersionDeactivated PromptAuditAction = "version_deactivated"
	PromptAuditRollback           PromptAuditAction = "rollback"
)

// Recognized prompt categories. Category is a free string; these are the
// values the engines look up by convention.
const (
	PromptCategoryQA      = "qa"
	PromptCategoryExplain = "explain"
	PromptCategorySetup   = "setup"
)

// PromptTemplate is a named family of prompt versions. VersionCount and
// ActiveVersion are denormalized counters maintained by the prompt service.
type PromptTemplate struct {
	ID            string    `json:"id" gorm:"type:varchar(64);primary_key"`
	Name          string    `json:"name" gorm:"type:varchar(255);not null;uniqueIndex"`
	Description   string    `json:"description" gorm:"type:text"`
	Category      string    `json:"category" gorm:"type:varchar(64)"`
	CreatedBy     string    `json:"created_by" gorm:"type:varchar(255);not null"`
	CreatedAt     time.Time `json:"created_at" gorm:"not null"`
	VersionCount  int       `json:"version_count" gorm:"not null;default:0"`
	ActiveVersion int       `json:"active_version" gorm:"not null;default:0"`
}

func (PromptTemplate) TableName() string {
	return "meepleai_prompt_templates"
}

// PromptVersion is immutable after creation; only IsActive may flip, and at
// most one version per template holds IsActive=true.
type PromptVersion struct {
	ID            string         `json:"id" gorm:"type:varchar(64);primary_key"`
	TemplateID    string         `json:"template_id" gorm:"type:varchar(64);not null;index"`
	VersionNumber int            `json:"version_number" gorm:"not null"`
	Content       string         `json:"content" gorm:"type:text;not null"`
	Metadata      datatypes.JSON `json:"metadata,omitempty" gorm:"type:jsonb"`
	IsActive      bool           `json:"is_active" gorm:"not null;default:false;index"`
	CreatedBy     string         `json:"created_by" gorm:"type:varchar(255);not null"`
	CreatedAt     time.Time      `json:"created_at" gorm:"not null"`
}

func (PromptVersion) TableName() string {
	return "meepleai_prompt_versions"
}

// PromptAudit is the append-only trail of every prompt mutation. Rows are
// written in the same transaction as the mutation they describe.
type PromptAudit struct {
	ID         string            `json:"id" gorm:"type:varchar(64);primary_key"`
	TemplateID string            `json:"template_id" gorm:"type:varchar(64);not null;index"`
	VersionID  *string           `json:"version_id,omitempty" gorm:"type:varchar(64)"`
	Action     PromptAuditAction `json:"action" gorm:"type:varchar(64);not null"`
	Actor      string            `json:"actor" gorm:"type:varchar(255);not null"`
	Details    string            `json:"details,omitempty" gorm:"type:text"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null"`
}

func (PromptAudit) TableName() string {
	return "meepleai_prompt_audits"
}

type CreatePromptTemplateRequest struct {
	Name           string `json:"name" validate:"required,min=1,max=255"`
	Description    string `json:"description" validate:"max=1000"`
	Category       string `json:"category"`
	InitialContent string `json:"initialContent" validate:"required,min=1"`
}

type CreatePromptVersionRequest struct {
	Content             string         `json:"content" validate:"required,min=1"`
	Metadata            map[string]any `json:"metadata,omitempty"`
	ActivateImmediately bool           `json:"activateImmediately"`
}

type ActivatePromptVersionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// PromptTemplateDetail bundles a template with its versions for read paths.
type PromptTemplateDetail struct {
	Template PromptTemplate  `json:"template"`
	Versions []PromptVersion `json:"versions"`
}
