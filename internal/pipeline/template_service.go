package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/errcode"
)

// TemplateService 管理可复用的阶段模板及其阶段定义。
type TemplateService struct {
	db *gorm.DB
}

// NewTemplateService 构造 TemplateService。
func NewTemplateService(db *gorm.DB) *TemplateService {
	return &TemplateService{db: db}
}

// TemplateInput 描述创建/更新模板的字段。
type TemplateInput struct {
	Name        string
	Description string
	IsDefault   bool
}

// StageInput 描述创建/更新阶段定义的字段。
type StageInput struct {
	Name               string
	Order              int
	Color              string
	PipelineTemplateID *uint
}

// CreateTemplate 创建模板。若设为默认，会在同一事务内清掉其他模板
// 的默认标记，保证全系统最多一个默认模板。
func (s *TemplateService) CreateTemplate(ctx context.Context, in TemplateInput) (*database.PipelineTemplate, error) {
	template := database.PipelineTemplate{
		Name:        in.Name,
		Description: in.Description,
		IsDefault:   in.IsDefault,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.IsDefault {
			if err := tx.Model(&database.PipelineTemplate{}).
				Where("is_default = ?", true).
				Update("is_default", false).Error; err != nil {
				return fmt.Errorf("clear default flag: %w", err)
			}
		}
		if err := tx.Create(&template).Error; err != nil {
			return fmt.Errorf("create template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// UpdateTemplate 更新模板字段，默认标记切换同样是原子操作。
func (s *TemplateService) UpdateTemplate(ctx context.Context, id uint, in TemplateInput) (*database.PipelineTemplate, error) {
	var template database.PipelineTemplate
	if err := s.db.WithContext(ctx).First(&template, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("pipeline template not found")
		}
		return nil, fmt.Errorf("query template: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.IsDefault {
			if err := tx.Model(&database.PipelineTemplate{}).
				Where("id <> ? AND is_default = ?", id, true).
				Update("is_default", false).Error; err != nil {
				return fmt.Errorf("clear default flag: %w", err)
			}
		}
		updates := map[string]any{
			"name":        in.Name,
			"description": in.Description,
			"is_default":  in.IsDefault,
		}
		if err := tx.Model(&template).Updates(updates).Error; err != nil {
			return fmt.Errorf("update template: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(&template, id).Error; err != nil {
		return nil, fmt.Errorf("reload template: %w", err)
	}
	return &template, nil
}

// DeleteTemplate 删除模板及其阶段定义。默认模板禁止删除，
// 需要先把默认标记转移到别的模板。
func (s *TemplateService) DeleteTemplate(ctx context.Context, id uint) error {
	var template database.PipelineTemplate
	if err := s.db.WithContext(ctx).First(&template, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errcode.NotFound("pipeline template not found")
		}
		return fmt.Errorf("query template: %w", err)
	}
	if template.IsDefault {
		return errcode.InvalidOperation("cannot delete default template")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("pipeline_template_id = ?", id).
			Delete(&database.PipelineStage{}).Error; err != nil {
			return fmt.Errorf("delete template stages: %w", err)
		}
		if err := tx.Delete(&template).Error; err != nil {
			return fmt.Errorf("delete template: %w", err)
		}
		return nil
	})
}

// ListTemplates 返回全部模板。
func (s *TemplateService) ListTemplates(ctx context.Context) ([]database.PipelineTemplate, error) {
	var templates []database.PipelineTemplate
	if err := s.db.WithContext(ctx).Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

// AddStage 新增阶段定义。指定模板时模板必须存在。
func (s *TemplateService) AddStage(ctx context.Context, in StageInput) (*database.PipelineStage, error) {
	if in.PipelineTemplateID != nil {
		var template database.PipelineTemplate
		if err := s.db.WithContext(ctx).First(&template, *in.PipelineTemplateID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, errcode.NotFound("pipeline template not found")
			}
			return nil, fmt.Errorf("query template: %w", err)
		}
	}

	stage := database.PipelineStage{
		Name:               in.Name,
		Order:              in.Order,
		Color:              in.Color,
		PipelineTemplateID: in.PipelineTemplateID,
	}
	if err := s.db.WithContext(ctx).Create(&stage).Error; err != nil {
		return nil, fmt.Errorf("create stage: %w", err)
	}
	return &stage, nil
}

// UpdateStage 更新阶段定义字段。
func (s *TemplateService) UpdateStage(ctx context.Context, id uint, in StageInput) (*database.PipelineStage, error) {
	var stage database.PipelineStage
	if err := s.db.WithContext(ctx).First(&stage, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("pipeline stage not found")
		}
		return nil, fmt.Errorf("query stage: %w", err)
	}

	updates := map[string]any{
		"name":        in.Name,
		"stage_order": in.Order,
		"color":       in.Color,
	}
	if err := s.db.WithContext(ctx).Model(&stage).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("update stage: %w", err)
	}
	return &stage, nil
}

// DeleteStage 删除阶段定义。系统预置的默认阶段受保护不可删除。
func (s *TemplateService) DeleteStage(ctx context.Context, id uint) error {
	var stage database.PipelineStage
	if err := s.db.WithContext(ctx).First(&stage, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errcode.NotFound("pipeline stage not found")
		}
		return fmt.Errorf("query stage: %w", err)
	}
	if stage.IsDefault {
		return errcode.InvalidOperation("cannot delete default stage")
	}

	if err := s.db.WithContext(ctx).Delete(&stage).Error; err != nil {
		return fmt.Errorf("delete stage: %w", err)
	}
	return nil
}

// ListStages 返回阶段定义，可按模板过滤，按顺序排序。
func (s *TemplateService) ListStages(ctx context.Context, templateID *uint) ([]database.PipelineStage, error) {
	query := s.db.WithContext(ctx).Model(&database.PipelineStage{})
	if templateID != nil {
		query = query.Where("pipeline_template_id = ?", *templateID)
	}

	var stages []database.PipelineStage
	if err := query.Order("stage_order").Find(&stages).Error; err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	return stages, nil
}

// DefaultTemplate 返回当前默认模板，不存在时返回 NotFound。
func (s *TemplateService) DefaultTemplate(ctx context.Context) (*database.PipelineTemplate, error) {
	var template database.PipelineTemplate
	err := s.db.WithContext(ctx).Where("is_default = ?", true).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("no default pipeline template")
		}
		return nil, fmt.Errorf("query default template: %w", err)
	}
	return &template, nil
}
