package pipeline

import (
	"context"
	"fmt"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/errcode"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedTemplate(t *testing.T, db *gorm.DB, names ...string) *database.PipelineTemplate {
	t.Helper()
	template := database.PipelineTemplate{Name: "Engineering"}
	if err := db.Create(&template).Error; err != nil {
		t.Fatalf("create template: %v", err)
	}
	for i, name := range names {
		stage := database.PipelineStage{
			Name:               name,
			Order:              i,
			PipelineTemplateID: &template.ID,
		}
		if err := db.Create(&stage).Error; err != nil {
			t.Fatalf("create stage %q: %v", name, err)
		}
	}
	return &template
}

func seedJob(t *testing.T, db *gorm.DB, templateID *uint, stages []StageRef) *database.Job {
	t.Helper()
	config, err := EncodeConfig(stages)
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	job := &database.Job{
		Title:              "Backend Engineer",
		JobCode:            "JOB-001",
		DepartmentID:       1,
		Status:             database.JobPublished,
		PipelineConfig:     config,
		PipelineTemplateID: templateID,
	}
	if err := db.Create(job).Error; err != nil {
		t.Fatalf("create job: %v", err)
	}
	return job
}

func seedApplication(t *testing.T, db *gorm.DB, jobID uint, candidateID uint, stage string) *database.JobApplication {
	t.Helper()
	candidate := database.Candidate{FullName: fmt.Sprintf("Candidate %d", candidateID), Email: fmt.Sprintf("c%d@example.com", candidateID)}
	if err := db.Create(&candidate).Error; err != nil {
		t.Fatalf("create candidate: %v", err)
	}
	app := &database.JobApplication{
		CandidateID:  candidate.ID,
		JobID:        jobID,
		CurrentStage: stage,
	}
	if err := db.Create(app).Error; err != nil {
		t.Fatalf("create application: %v", err)
	}
	return app
}

// reloadApplication 每次用全新结构体查询，避免 gorm 把上一次的主键带进条件。
func reloadApplication(t *testing.T, db *gorm.DB, id uint) *database.JobApplication {
	t.Helper()
	var app database.JobApplication
	if err := db.First(&app, id).Error; err != nil {
		t.Fatalf("reload application %d: %v", id, err)
	}
	return &app
}

func TestBuildPlanRemap(t *testing.T) {
	oldConfig := []StageRef{
		{ID: "a", Name: "Applied", Order: 0},
		{ID: "b", Name: "Screen", Order: 1},
		{ID: "c", Name: "Offer", Order: 2},
	}

	tests := []struct {
		name      string
		newStages []StageRef
		current   string
		want      string
	}{
		{
			name: "same name keeps candidate in place",
			newStages: []StageRef{
				{ID: "x", Name: "Applied", Order: 0},
				{ID: "y", Name: "Screen", Order: 1},
			},
			current: "b",
			want:    "y",
		},
		{
			name: "renamed stage falls back to entry stage",
			newStages: []StageRef{
				{ID: "x", Name: "Applied", Order: 0},
				{ID: "y", Name: "Phone Screen", Order: 1},
			},
			current: "b",
			want:    "x",
		},
		{
			name: "unknown old stage falls back to entry stage",
			newStages: []StageRef{
				{ID: "x", Name: "Applied", Order: 0},
			},
			current: "ghost",
			want:    "x",
		},
		{
			name:      "empty new set falls back to builtin id",
			newStages: nil,
			current:   "a",
			want:      "new",
		},
		{
			name: "duplicate names resolve to the last entry",
			newStages: []StageRef{
				{ID: "x", Name: "Screen", Order: 0},
				{ID: "y", Name: "Screen", Order: 1},
			},
			current: "b",
			want:    "y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := BuildPlan(oldConfig, tt.newStages)
			if got := plan.Remap(tt.current); got != tt.want {
				t.Fatalf("Remap(%q) = %q, want %q", tt.current, got, tt.want)
			}
		})
	}
}

func TestSyncMigratesApplications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	template := seedTemplate(t, db, "Applied", "Screen", "Offer")
	var rows []database.PipelineStage
	if err := db.Where("pipeline_template_id = ?", template.ID).Order("stage_order").Find(&rows).Error; err != nil {
		t.Fatalf("load stages: %v", err)
	}
	initial := StageRefsFromRows(rows)

	job := seedJob(t, db, &template.ID, initial)
	appScreen := seedApplication(t, db, job.ID, 1, initial[1].ID)
	appOffer := seedApplication(t, db, job.ID, 2, initial[2].ID)

	// 改名 Screen → Phone Screen，候选人应回落到入口阶段。
	if err := db.Model(&database.PipelineStage{}).Where("id = ?", rows[1].ID).Update("name", "Phone Screen").Error; err != nil {
		t.Fatalf("rename stage: %v", err)
	}

	updated, err := NewMigrator(db).Sync(ctx, job.ID)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if updated.PipelineVersion != job.PipelineVersion+1 {
		t.Fatalf("pipeline version = %d, want %d", updated.PipelineVersion, job.PipelineVersion+1)
	}

	if got := reloadApplication(t, db, appScreen.ID); got.CurrentStage != initial[0].ID {
		t.Fatalf("renamed stage: application stage = %q, want entry stage %q", got.CurrentStage, initial[0].ID)
	}
	if got := reloadApplication(t, db, appOffer.ID); got.CurrentStage != initial[2].ID {
		t.Fatalf("unchanged stage: application stage = %q, want %q", got.CurrentStage, initial[2].ID)
	}

	// 模板行主键不变，重复同步不会再移动任何申请。
	if _, err := NewMigrator(db).Sync(ctx, job.ID); err != nil {
		t.Fatalf("second sync: %v", err)
	}
	if got := reloadApplication(t, db, appOffer.ID); got.CurrentStage != initial[2].ID {
		t.Fatalf("second sync moved application to %q", got.CurrentStage)
	}
}

func TestSyncRequiresLinkedTemplate(t *testing.T) {
	db := newTestDB(t)

	job := seedJob(t, db, nil, DefaultConfig())
	_, err := NewMigrator(db).Sync(context.Background(), job.ID)
	if !errcode.Is(err, errcode.KindInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
}

func TestSwitchTemplateMigratesByName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	source := seedTemplate(t, db, "Applied", "Screen")
	var sourceRows []database.PipelineStage
	if err := db.Where("pipeline_template_id = ?", source.ID).Order("stage_order").Find(&sourceRows).Error; err != nil {
		t.Fatalf("load stages: %v", err)
	}
	initial := StageRefsFromRows(sourceRows)

	target := seedTemplate(t, db, "Screen", "Onsite", "Offer")
	var targetRows []database.PipelineStage
	if err := db.Where("pipeline_template_id = ?", target.ID).Order("stage_order").Find(&targetRows).Error; err != nil {
		t.Fatalf("load stages: %v", err)
	}
	expected := StageRefsFromRows(targetRows)

	job := seedJob(t, db, &source.ID, initial)
	app := seedApplication(t, db, job.ID, 1, initial[1].ID)

	updated, err := NewMigrator(db).SwitchTemplate(ctx, job.ID, target.ID)
	if err != nil {
		t.Fatalf("switch template: %v", err)
	}
	if updated.PipelineTemplateID == nil || *updated.PipelineTemplateID != target.ID {
		t.Fatalf("job template = %v, want %d", updated.PipelineTemplateID, target.ID)
	}

	if got := reloadApplication(t, db, app.ID); got.CurrentStage != expected[0].ID {
		t.Fatalf("application stage = %q, want %q (Screen in target template)", got.CurrentStage, expected[0].ID)
	}
}

func TestSwitchTemplateNotFound(t *testing.T) {
	db := newTestDB(t)

	job := seedJob(t, db, nil, DefaultConfig())
	_, err := NewMigrator(db).SwitchTemplate(context.Background(), job.ID, 9999)
	if !errcode.Is(err, errcode.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOverwriteNeverLeavesDanglingStages(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	initial := []StageRef{
		{ID: "applied", Name: "Applied", Order: 0},
		{ID: "screen", Name: "Screen", Order: 1},
	}
	job := seedJob(t, db, nil, initial)
	seedApplication(t, db, job.ID, 1, "applied")
	seedApplication(t, db, job.ID, 2, "screen")

	updated, err := NewMigrator(db).Overwrite(ctx, job.ID, []StageRef{
		{Name: "Screen"},
		{Name: "Final"},
	})
	if err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	config, err := DecodeConfig(updated.PipelineConfig)
	if err != nil {
		t.Fatalf("decode config: %v", err)
	}
	valid := map[string]bool{}
	for _, ref := range config {
		if ref.ID == "" {
			t.Fatalf("normalized stage %q has empty id", ref.Name)
		}
		valid[ref.ID] = true
	}

	var apps []database.JobApplication
	if err := db.Where("job_id = ?", job.ID).Find(&apps).Error; err != nil {
		t.Fatalf("load applications: %v", err)
	}
	for _, app := range apps {
		if !valid[app.CurrentStage] {
			t.Fatalf("application %d points at dangling stage %q", app.ID, app.CurrentStage)
		}
	}
}

func TestOverwriteRejectsUnnamedStage(t *testing.T) {
	db := newTestDB(t)

	job := seedJob(t, db, nil, DefaultConfig())
	_, err := NewMigrator(db).Overwrite(context.Background(), job.ID, []StageRef{{ID: "x"}})
	if !errcode.Is(err, errcode.KindInvalidOperation) {
		t.Fatalf("expected invalid operation, got %v", err)
	}
}

func TestMigratorJobNotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := NewMigrator(db).Sync(context.Background(), 42)
	if !errcode.Is(err, errcode.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
