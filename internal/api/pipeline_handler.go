package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/pipeline"
)

// PipelineHandler 负责流水线模板/阶段定义的管理接口，
// 以及职位流水线配置的同步和切换。
type PipelineHandler struct {
	templates *pipeline.TemplateService
	migrator  *pipeline.Migrator
}

func NewPipelineHandler(templates *pipeline.TemplateService, migrator *pipeline.Migrator) *PipelineHandler {
	return &PipelineHandler{templates: templates, migrator: migrator}
}

type templateRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	IsDefault   bool   `json:"is_default"`
}

type templateResponse struct {
	ID          uint            `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	IsDefault   bool            `json:"is_default"`
	Stages      []stageResponse `json:"stages,omitempty"`
}

type stageResponse struct {
	ID                 uint   `json:"id"`
	Name               string `json:"name"`
	Order              int    `json:"order"`
	Color              string `json:"color"`
	IsDefault          bool   `json:"is_default"`
	PipelineTemplateID *uint  `json:"pipeline_template_id,omitempty"`
}

func toTemplateResponse(t database.PipelineTemplate) templateResponse {
	resp := templateResponse{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		IsDefault:   t.IsDefault,
	}
	for _, stage := range t.Stages {
		resp.Stages = append(resp.Stages, toStageResponse(stage))
	}
	return resp
}

func toStageResponse(s database.PipelineStage) stageResponse {
	return stageResponse{
		ID:                 s.ID,
		Name:               s.Name,
		Order:              s.Order,
		Color:              s.Color,
		IsDefault:          s.IsDefault,
		PipelineTemplateID: s.PipelineTemplateID,
	}
}

// ListTemplates 返回全部模板及其阶段。
func (h *PipelineHandler) ListTemplates(c *gin.Context) {
	templates, err := h.templates.ListTemplates(c.Request.Context())
	if err != nil {
		DomainError(c, err, "failed to list templates")
		return
	}
	resp := make([]templateResponse, 0, len(templates))
	for _, t := range templates {
		resp = append(resp, toTemplateResponse(t))
	}
	c.JSON(http.StatusOK, resp)
}

// CreateTemplate 创建模板。
func (h *PipelineHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	template, err := h.templates.CreateTemplate(c.Request.Context(), pipeline.TemplateInput{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		DomainError(c, err, "failed to create template")
		return
	}
	c.JSON(http.StatusCreated, toTemplateResponse(*template))
}

// UpdateTemplate 更新模板元信息。
func (h *PipelineHandler) UpdateTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	template, err := h.templates.UpdateTemplate(c.Request.Context(), id, pipeline.TemplateInput{
		Name:        req.Name,
		Description: req.Description,
		IsDefault:   req.IsDefault,
	})
	if err != nil {
		DomainError(c, err, "failed to update template")
		return
	}
	c.JSON(http.StatusOK, toTemplateResponse(*template))
}

// DeleteTemplate 删除模板（默认模板除外）。
func (h *PipelineHandler) DeleteTemplate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.templates.DeleteTemplate(c.Request.Context(), id); err != nil {
		DomainError(c, err, "failed to delete template")
		return
	}
	c.Status(http.StatusNoContent)
}

type stageRequest struct {
	Name               string `json:"name" binding:"required"`
	Order              int    `json:"order"`
	Color              string `json:"color"`
	PipelineTemplateID *uint  `json:"pipeline_template_id"`
}

// ListStages 返回阶段定义，可按模板过滤（?template_id=N）。
func (h *PipelineHandler) ListStages(c *gin.Context) {
	var templateID *uint
	if raw := c.Query("template_id"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			BadRequest(c, "invalid template_id")
			return
		}
		id := uint(parsed)
		templateID = &id
	}
	stages, err := h.templates.ListStages(c.Request.Context(), templateID)
	if err != nil {
		DomainError(c, err, "failed to list stages")
		return
	}
	resp := make([]stageResponse, 0, len(stages))
	for _, s := range stages {
		resp = append(resp, toStageResponse(s))
	}
	c.JSON(http.StatusOK, resp)
}

// CreateStage 在模板下新增阶段定义。
func (h *PipelineHandler) CreateStage(c *gin.Context) {
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	stage, err := h.templates.AddStage(c.Request.Context(), pipeline.StageInput{
		Name:               req.Name,
		Order:              req.Order,
		Color:              req.Color,
		PipelineTemplateID: req.PipelineTemplateID,
	})
	if err != nil {
		DomainError(c, err, "failed to create stage")
		return
	}
	c.JSON(http.StatusCreated, toStageResponse(*stage))
}

// UpdateStage 修改阶段定义。此操作不影响已使用旧配置的职位，
// 直到该职位执行 sync。
func (h *PipelineHandler) UpdateStage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req stageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	stage, err := h.templates.UpdateStage(c.Request.Context(), id, pipeline.StageInput{
		Name:               req.Name,
		Order:              req.Order,
		Color:              req.Color,
		PipelineTemplateID: req.PipelineTemplateID,
	})
	if err != nil {
		DomainError(c, err, "failed to update stage")
		return
	}
	c.JSON(http.StatusOK, toStageResponse(*stage))
}

// DeleteStage 删除阶段定义（内置默认阶段除外）。
func (h *PipelineHandler) DeleteStage(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.templates.DeleteStage(c.Request.Context(), id); err != nil {
		DomainError(c, err, "failed to delete stage")
		return
	}
	c.Status(http.StatusNoContent)
}

type jobPipelineResponse struct {
	JobID              uint                `json:"job_id"`
	PipelineTemplateID *uint               `json:"pipeline_template_id,omitempty"`
	PipelineVersion    int                 `json:"pipeline_version"`
	Stages             []pipeline.StageRef `json:"stages"`
}

func toJobPipelineResponse(job *database.Job) (jobPipelineResponse, error) {
	stages, err := pipeline.DecodeConfig(job.PipelineConfig)
	if err != nil {
		return jobPipelineResponse{}, err
	}
	return jobPipelineResponse{
		JobID:              job.ID,
		PipelineTemplateID: job.PipelineTemplateID,
		PipelineVersion:    job.PipelineVersion,
		Stages:             stages,
	}, nil
}

// SyncJobPipeline 将职位流水线与其模板的当前阶段定义对齐，
// 并把在途申请迁移到同名阶段。
func (h *PipelineHandler) SyncJobPipeline(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.migrator.Sync(c.Request.Context(), jobID)
	if err != nil {
		DomainError(c, err, "failed to sync pipeline")
		return
	}
	resp, err := toJobPipelineResponse(job)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusOK, resp)
}

type switchTemplateRequest struct {
	TemplateID uint `json:"template_id" binding:"required"`
}

// SwitchJobTemplate 把职位切换到另一个模板并迁移在途申请。
func (h *PipelineHandler) SwitchJobTemplate(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req switchTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.migrator.SwitchTemplate(c.Request.Context(), jobID, req.TemplateID)
	if err != nil {
		DomainError(c, err, "failed to switch template")
		return
	}
	resp, err := toJobPipelineResponse(job)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusOK, resp)
}

type overwritePipelineRequest struct {
	Stages []pipeline.StageRef `json:"stages" binding:"required"`
}

// OverwriteJobPipeline 用调用方给出的阶段列表覆盖职位流水线，
// 同样走按名迁移逻辑。
func (h *PipelineHandler) OverwriteJobPipeline(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req overwritePipelineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	job, err := h.migrator.Overwrite(c.Request.Context(), jobID, req.Stages)
	if err != nil {
		DomainError(c, err, "failed to update pipeline")
		return
	}
	resp, err := toJobPipelineResponse(job)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetJobPipeline 返回职位当前流水线配置。
func (h *PipelineHandler) GetJobPipeline(c *gin.Context) {
	jobID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	job, err := h.migrator.Load(c.Request.Context(), jobID)
	if err != nil {
		DomainError(c, err, "failed to load job")
		return
	}
	resp, err := toJobPipelineResponse(job)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func parseIDParam(c *gin.Context, name string) (uint, bool) {
	raw := c.Param(name)
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || parsed == 0 {
		BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(parsed), true
}
