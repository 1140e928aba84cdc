package pipeline

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/errcode"
	"github.com/namishanaseem-clustox/ATS/internal/metrics"
)

// Migrator 在职位的有效阶段集合发生变化时，负责把在途申请
// 重新映射到新的阶段集合上。三个入口（同步模板、切换模板、
// 直接覆盖）共用同一套迁移算法。
type Migrator struct {
	db *gorm.DB
}

// NewMigrator 构造 Migrator。
func NewMigrator(db *gorm.DB) *Migrator {
	return &Migrator{db: db}
}

// Plan 描述一次阶段迁移：新的配置、兜底阶段与按名称建立的映射。
type Plan struct {
	NewConfig      []StageRef
	DefaultStageID string

	oldIDToName map[string]string
	newNameToID map[string]string
}

// BuildPlan 根据旧配置与新阶段集合计算迁移映射。
// 匹配按名称精确进行；重名时后者覆盖前者。
func BuildPlan(oldConfig, newStages []StageRef) Plan {
	oldIDToName := make(map[string]string, len(oldConfig))
	for _, ref := range oldConfig {
		oldIDToName[ref.ID] = ref.Name
	}

	newNameToID := make(map[string]string, len(newStages))
	for _, ref := range newStages {
		newNameToID[ref.Name] = ref.ID
	}

	defaultStageID := fallbackStageID
	if len(newStages) > 0 {
		defaultStageID = newStages[0].ID
	}

	return Plan{
		NewConfig:      newStages,
		DefaultStageID: defaultStageID,
		oldIDToName:    oldIDToName,
		newNameToID:    newNameToID,
	}
}

// Remap 返回某个申请在新配置下的阶段 ID。
// 旧阶段名在新集合中不存在时回落到入口阶段，不报错。
func (p Plan) Remap(currentStage string) string {
	oldName, ok := p.oldIDToName[currentStage]
	if !ok {
		return p.DefaultStageID
	}
	newID, ok := p.newNameToID[oldName]
	if !ok {
		return p.DefaultStageID
	}
	return newID
}

// Sync 重新应用职位已绑定的模板（刷新副本并迁移申请）。
func (m *Migrator) Sync(ctx context.Context, jobID uint) (*database.Job, error) {
	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.PipelineTemplateID == nil {
		return nil, errcode.InvalidOperation("job is not linked to a pipeline template")
	}

	stages, err := m.loadTemplateStages(ctx, *job.PipelineTemplateID)
	if err != nil {
		return nil, err
	}

	return m.apply(ctx, job, StageRefsFromRows(stages), job.PipelineTemplateID, false)
}

// SwitchTemplate 将职位绑定到另一个模板并迁移申请。
func (m *Migrator) SwitchTemplate(ctx context.Context, jobID, templateID uint) (*database.Job, error) {
	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	var template database.PipelineTemplate
	if err := m.db.WithContext(ctx).First(&template, templateID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("pipeline template not found")
		}
		return nil, fmt.Errorf("query template: %w", err)
	}

	stages, err := m.loadTemplateStages(ctx, template.ID)
	if err != nil {
		return nil, err
	}

	return m.apply(ctx, job, StageRefsFromRows(stages), &template.ID, true)
}

// Overwrite 用调用方给出的字面阶段列表覆盖职位配置。
// 与模板路径走同一迁移算法，申请不会指向悬空的阶段 ID。
func (m *Migrator) Overwrite(ctx context.Context, jobID uint, refs []StageRef) (*database.Job, error) {
	job, err := m.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	normalized, err := NormalizeStageList(refs)
	if err != nil {
		return nil, errcode.Wrap(errcode.KindInvalidOperation, "invalid stage list", err)
	}

	return m.apply(ctx, job, normalized, nil, false)
}

// apply 把“读旧配置 → 计算映射 → 写新配置并改写全部申请”作为
// 一个事务提交。pipeline_version 条件更新保证同一职位上的并发
// 迁移互相串行化：后写者会因版本不匹配而失败。
func (m *Migrator) apply(ctx context.Context, job *database.Job, newStages []StageRef, templateID *uint, setTemplate bool) (*database.Job, error) {
	oldConfig, err := DecodeConfig(job.PipelineConfig)
	if err != nil {
		return nil, err
	}

	plan := BuildPlan(oldConfig, newStages)
	encoded, err := EncodeConfig(plan.NewConfig)
	if err != nil {
		return nil, err
	}

	err = m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"pipeline_config":  encoded,
			"pipeline_version": job.PipelineVersion + 1,
		}
		if setTemplate {
			updates["pipeline_template_id"] = templateID
		}

		res := tx.Model(&database.Job{}).
			Where("id = ? AND pipeline_version = ?", job.ID, job.PipelineVersion).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update job pipeline: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errcode.InvalidState("pipeline was modified concurrently, retry")
		}

		var apps []database.JobApplication
		if err := tx.Where("job_id = ?", job.ID).Find(&apps).Error; err != nil {
			return fmt.Errorf("load applications: %w", err)
		}

		for _, app := range apps {
			next := plan.Remap(app.CurrentStage)
			if next == app.CurrentStage {
				continue
			}
			if err := tx.Model(&database.JobApplication{}).
				Where("id = ?", app.ID).
				Update("current_stage", next).Error; err != nil {
				return fmt.Errorf("remap application %d: %w", app.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.PipelineMigrationsTotal.Inc()

	var updated database.Job
	if err := m.db.WithContext(ctx).First(&updated, job.ID).Error; err != nil {
		return nil, fmt.Errorf("reload job: %w", err)
	}
	return &updated, nil
}

// Load 返回未删除的职位记录。
func (m *Migrator) Load(ctx context.Context, jobID uint) (*database.Job, error) {
	return m.loadJob(ctx, jobID)
}

func (m *Migrator) loadJob(ctx context.Context, jobID uint) (*database.Job, error) {
	var job database.Job
	err := m.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", jobID, false).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("job not found")
		}
		return nil, fmt.Errorf("query job: %w", err)
	}
	return &job, nil
}

func (m *Migrator) loadTemplateStages(ctx context.Context, templateID uint) ([]database.PipelineStage, error) {
	var stages []database.PipelineStage
	err := m.db.WithContext(ctx).
		Where("pipeline_template_id = ?", templateID).
		Order("stage_order").
		Find(&stages).Error
	if err != nil {
		return nil, fmt.Errorf("load template stages: %w", err)
	}
	return stages, nil
}
