package impl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/meepleai/meepleai-api/models"
	"github.com/meepleai/meepleai-api/services"
)

type promptServiceImpl struct {
	db    *gorm.DB
	cache services.CacheService

	maxSizeBytes int
	cacheTTL     time.Duration
	warmNames    []string

	// writeMu serializes version creation and activation so version numbers
	// stay dense and exactly one version is active at a time.
	writeMu sync.Mutex

	// warm holds the active content per template name for zero-latency
	// lookups on the hot path. Redis and the database back it up.
	warm   map[string]string
	warmMu sync.RWMutex
}

// NewPromptService creates the versioned prompt template manager.
func NewPromptService(db *gorm.DB, cache services.CacheService, maxSizeBytes int, cacheTTL time.Duration, warmNames []string) services.PromptService {
	return &promptServiceImpl{
		db:           db,
		cache:        cache,
		maxSizeBytes: maxSizeBytes,
		cacheTTL:     cacheTTL,
		warmNames:    warmNames,
		warm:         make(map[string]string),
	}
}

func (s *promptServiceImpl) CreateTemplate(ctx context.Context, req models.CreatePromptTemplateRequest, actor string) (*models.PromptTemplateDetail, error) {
	if len(req.InitialContent) > s.maxSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", services.ErrPromptTooLarge, len(req.InitialContent), s.maxSizeBytes)
	}

	// Slugs collide case-insensitively: "QA-Default" is the same template
	// as "qa-default".
	var existing models.PromptTemplate
	err := s.db.WithContext(ctx).Where("LOWER(name) = LOWER(?)", req.Name).First(&existing).Error
	if err == nil {
		return nil, fmt.Errorf("%w: %s", services.ErrDuplicateTemplateName, req.Name)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check template name: %w", err)
	}

	template := models.PromptTemplate{
		ID:            uuid.New().String(),
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
		VersionCount:  1,
		ActiveVersion: 1,
	}
	version := models.PromptVersion{
		ID:            uuid.New().String(),
		TemplateID:    template.ID,
		VersionNumber: 1,
		Content:       req.InitialContent,
		IsActive:      true,
		CreatedBy:     actor,
		CreatedAt:     time.Now().UTC(),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&template).Error; err != nil {
			return fmt.Errorf("failed to create template: %w", err)
		}
		if err := tx.Create(&version).Error; err != nil {
			return fmt.Errorf("failed to create initial version: %w", err)
		}
		if err := s.writeAudit(tx, template.ID, nil, models.PromptAuditTemplateCreated, actor, fmt.Sprintf("template %q created", template.Name)); err != nil {
			return err
		}
		if err := s.writeAudit(tx, template.ID, &version.ID, models.PromptAuditVersionCreated, actor, "version 1 created"); err != nil {
			return err
		}
		return s.writeAudit(tx, template.ID, &version.ID, models.PromptAuditVersionActivated, actor, "version 1 activated")
	})
	if err != nil {
		return nil, err
	}

	s.storeActiveContent(ctx, template.Name, version.Content)

	return &models.PromptTemplateDetail{
		Template: template,
		Versions: []models.PromptVersion{version},
	}, nil
}

func (s *promptServiceImpl) GetTemplate(ctx context.Context, templateID string) (*models.PromptTemplateDetail, error) {
	var template models.PromptTemplate
	if err := s.db.WithContext(ctx).Where("id = ?", templateID).First(&template).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, services.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	var versions []models.PromptVersion
	if err := s.db.WithContext(ctx).Where("template_id = ?", templateID).Order("version_number DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}

	return &models.PromptTemplateDetail{Template: template, Versions: versions}, nil
}

func (s *promptServiceImpl) ListTemplates(ctx context.Context, category string) ([]models.PromptTemplate, error) {
	query := s.db.WithContext(ctx).Model(&models.PromptTemplate{})
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var templates []models.PromptTemplate
	if err := query.Order("name ASC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

func (s *promptServiceImpl) CreateVersion(ctx context.Context, templateID string, req models.CreatePromptVersionRequest, actor string) (*models.PromptVersion, error) {
	if len(req.Content) > s.maxSizeBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", services.ErrPromptTooLarge, len(req.Content), s.maxSizeBytes)
	}

	var metadata datatypes.JSON
	if req.Metadata != nil {
		converted, err := models.ConvertToJSON(req.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode metadata: %w", err)
		}
		metadata = converted
	}

	var version models.PromptVersion
	var templateName string

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.PromptTemplate
		if err := tx.Where("id = ?", templateID).First(&template).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrTemplateNotFound
			}
			return fmt.Errorf("failed to lock template: %w", err)
		}
		templateName = template.Name

		version = models.PromptVersion{
			ID:            uuid.New().String(),
			TemplateID:    templateID,
			VersionNumber: template.VersionCount + 1,
			Content:       req.Content,
			Metadata:      metadata,
			IsActive:      false,
			CreatedBy:     actor,
			CreatedAt:     time.Now().UTC(),
		}
		if err := tx.Create(&version).Error; err != nil {
			return fmt.Errorf("failed to create version: %w", err)
		}
		if err := s.writeAudit(tx, templateID, &version.ID, models.PromptAuditVersionCreated, actor, fmt.Sprintf("version %d created", version.VersionNumber)); err != nil {
			return err
		}

		updates := map[string]any{"version_count": version.VersionNumber}
		if req.ActivateImmediately {
			if err := s.switchActive(tx, &template, &version, actor, ""); err != nil {
				return err
			}
			version.IsActive = true
			updates["active_version"] = version.VersionNumber
		}
		if err := tx.Model(&models.PromptTemplate{}).Where("id = ?", templateID).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update template counters: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if req.ActivateImmediately {
		s.storeActiveContent(ctx, templateName, version.Content)
	}
	return &version, nil
}

func (s *promptServiceImpl) ListVersions(ctx context.Context, templateID string) ([]models.PromptVersion, error) {
	if err := s.requireTemplate(ctx, templateID); err != nil {
		return nil, err
	}

	var versions []models.PromptVersion
	if err := s.db.WithContext(ctx).Where("template_id = ?", templateID).Order("version_number DESC").Find(&versions).Error; err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	return versions, nil
}

// ActivateVersion makes the given version the single active one. Activating
// a version older than the current active one is recorded as a rollback.
func (s *promptServiceImpl) ActivateVersion(ctx context.Context, templateID, versionID, actor, reason string) error {
	var templateName, content string

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var template models.PromptTemplate
		if err := tx.Where("id = ?", templateID).First(&template).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrTemplateNotFound
			}
			return fmt.Errorf("failed to lock template: %w", err)
		}
		templateName = template.Name

		var target models.PromptVersion
		if err := tx.Where("id = ? AND template_id = ?", versionID, templateID).First(&target).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return services.ErrVersionNotFound
			}
			return fmt.Errorf("failed to get version: %w", err)
		}
		if target.IsActive {
			// Already active, nothing to do.
			content = target.Content
			return nil
		}

		if err := s.switchActive(tx, &template, &target, actor, reason); err != nil {
			return err
		}
		if err := tx.Model(&models.PromptTemplate{}).Where("id = ?", templateID).Update("active_version", target.VersionNumber).Error; err != nil {
			return fmt.Errorf("failed to update active version: %w", err)
		}
		content = target.Content
		return nil
	})
	if err != nil {
		return err
	}

	s.storeActiveContent(ctx, templateName, content)
	return nil
}

// switchActive deactivates the current active version and activates target,
// writing the paired audit rows. Caller holds writeMu.
func (s *promptServiceImpl) switchActive(tx *gorm.DB, template *models.PromptTemplate, target *models.PromptVersion, actor, reason string) error {
	var current models.PromptVersion
	err := tx.Where("template_id = ? AND is_active = ?", template.ID, true).First(&current).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to find active version: %w", err)
	}

	if err == nil {
		if err := tx.Model(&models.PromptVersion{}).Where("id = ?", current.ID).Update("is_active", false).Error; err != nil {
			return fmt.Errorf("failed to deactivate version: %w", err)
		}
		if err := s.writeAudit(tx, template.ID, &current.ID, models.PromptAuditVersionDeactivated, actor, fmt.Sprintf("version %d deactivated", current.VersionNumber)); err != nil {
			return err
		}
	}

	if err := tx.Model(&models.PromptVersion{}).Where("id = ?", target.ID).Update("is_active", true).Error; err != nil {
		return fmt.Errorf("failed to activate version: %w", err)
	}

	action := models.PromptAuditVersionActivated
	details := fmt.Sprintf("version %d activated", target.VersionNumber)
	if current.ID != "" && target.VersionNumber < current.VersionNumber {
		action = models.PromptAuditRollback
		details = fmt.Sprintf("rolled back from version %d to %d", current.VersionNumber, target.VersionNumber)
	}
	if reason != "" {
		details = fmt.Sprintf("%s: %s", details, reason)
	}
	return s.writeAudit(tx, template.ID, &target.ID, action, actor, details)
}

func (s *promptServiceImpl) ListAudit(ctx context.Context, templateID string, limit int) ([]models.PromptAudit, error) {
	if err := s.requireTemplate(ctx, templateID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	var audits []models.PromptAudit
	if err := s.db.WithContext(ctx).Where("template_id = ?", templateID).Order("created_at DESC").Limit(limit).Find(&audits).Error; err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return audits, nil
}

// ActivePrompt resolves the active content for a template name. Lookup order
// is warm map, Redis, database; later tiers repopulate earlier ones.
func (s *promptServiceImpl) ActivePrompt(ctx context.Context, name string) (string, error) {
	s.warmMu.RLock()
	content, ok := s.warm[name]
	s.warmMu.RUnlock()
	if ok {
		return content, nil
	}

	if content, ok := s.cache.GetString(ctx, PromptCacheKey(name)); ok {
		s.warmMu.Lock()
		s.warm[name] = content
		s.warmMu.Unlock()
		return content, nil
	}

	var version models.PromptVersion
	err := s.db.WithContext(ctx).
		Joins("JOIN meepleai_prompt_templates ON meepleai_prompt_templates.id = meepleai_prompt_versions.template_id").
		Where("meepleai_prompt_templates.name = ? AND meepleai_prompt_versions.is_active = ?", name, true).
		First(&version).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: no active version for %q", services.ErrTemplateNotFound, name)
		}
		return "", fmt.Errorf("failed to load active prompt: %w", err)
	}

	s.storeActiveContent(ctx, name, version.Content)
	return version.Content, nil
}

func (s *promptServiceImpl) WarmCache(ctx context.Context) error {
	for _, name := range s.warmNames {
		if _, err := s.ActivePrompt(ctx, name); err != nil {
			log.Printf("prompt warm-up skipped %q: %v", name, err)
		}
	}
	return nil
}

func (s *promptServiceImpl) storeActiveContent(ctx context.Context, name, content string) {
	s.warmMu.Lock()
	s.warm[name] = content
	s.warmMu.Unlock()
	s.cache.SetString(ctx, PromptCacheKey(name), content, s.cacheTTL)
}

func (s *promptServiceImpl) requireTemplate(ctx context.Context, templateID string) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.PromptTemplate{}).Where("id = ?", templateID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to check template: %w", err)
	}
	if count == 0 {
		return services.ErrTemplateNotFound
	}
	return nil
}

func (s *promptServiceImpl) writeAudit(tx *gorm.DB, templateID string, versionID *string, action models.PromptAuditAction, actor, details string) error {
	audit := models.PromptAudit{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		VersionID:  versionID,
		Action:     action,
		Actor:      actor,
		Details:    details,
		CreatedAt:  time.Now().UTC(),
	}
	if err := tx.Create(&audit).Error; err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}
