package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/namishanaseem-clustox/ATS/internal/pipeline"
)

func TestSyncJobPipelineWithoutTemplate(t *testing.T) {
	db := newTestDB(t)
	h := NewPipelineHandler(pipeline.NewTemplateService(db), pipeline.NewMigrator(db))
	job := seedJobWithDefaultPipeline(t, db)

	c, w := newJSONContext(t, http.MethodPost, "/v1/jobs/1/pipeline/sync", nil, jobParams(job))
	h.SyncJobPipeline(c)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d body=%s", w.Code, w.Body.String())
	}
}

func TestOverwriteJobPipelineMigratesApplications(t *testing.T) {
	db := newTestDB(t)
	h := NewPipelineHandler(pipeline.NewTemplateService(db), pipeline.NewMigrator(db))
	job := seedJobWithDefaultPipeline(t, db)

	body := map[string]any{
		"stages": []map[string]any{
			{"name": "New Candidates", "order": 0},
			{"name": "Final Interview", "order": 1},
		},
	}
	c, w := newJSONContext(t, http.MethodPut, "/v1/jobs/1/pipeline", body, jobParams(job))
	h.OverwriteJobPipeline(c)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d body=%s", w.Code, w.Body.String())
	}

	var resp jobPipelineResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(resp.Stages))
	}
	if resp.PipelineVersion != job.PipelineVersion+1 {
		t.Fatalf("pipeline version = %d, want %d", resp.PipelineVersion, job.PipelineVersion+1)
	}
	for _, stage := range resp.Stages {
		if stage.ID == "" {
			t.Fatalf("stage %q missing generated id", stage.Name)
		}
	}
}

func TestSwitchJobTemplateUnknownTemplate(t *testing.T) {
	db := newTestDB(t)
	h := NewPipelineHandler(pipeline.NewTemplateService(db), pipeline.NewMigrator(db))
	job := seedJobWithDefaultPipeline(t, db)

	c, w := newJSONContext(t, http.MethodPost, "/v1/jobs/1/pipeline/template",
		map[string]uint{"template_id": 9999}, jobParams(job))
	h.SwitchJobTemplate(c)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d body=%s", w.Code, w.Body.String())
	}
}
