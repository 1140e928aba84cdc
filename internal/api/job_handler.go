package api

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/pipeline"
)

// JobHandler 管理职位与候选人申请。职位删除是软删除：
// 职位从列表和详情中消失，其申请保留在库中但不再通过接口提供。
type JobHandler struct {
	db        *gorm.DB
	templates *pipeline.TemplateService
}

func NewJobHandler(db *gorm.DB, templates *pipeline.TemplateService) *JobHandler {
	return &JobHandler{db: db, templates: templates}
}

const jobCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateJobCode 生成 JOB-{年份}-{4 位随机后缀} 形式的编号，
// 需求单转换出的职位除外（沿用 JOB-{需求单编号}）。
func generateJobCode() string {
	suffix := make([]byte, 4)
	for i := range suffix {
		suffix[i] = jobCodeCharset[rand.IntN(len(jobCodeCharset))]
	}
	return fmt.Sprintf("JOB-%d-%s", time.Now().Year(), suffix)
}

var jobStatuses = []string{
	database.JobDraft,
	database.JobPublished,
	database.JobArchived,
	database.JobClosed,
}

type createJobRequest struct {
	Title              string `json:"title" binding:"required"`
	DepartmentID       uint   `json:"department_id" binding:"required"`
	Location           string `json:"location"`
	EmploymentType     string `json:"employment_type"`
	HiringManagerID    *uint  `json:"hiring_manager_id"`
	PipelineTemplateID *uint  `json:"pipeline_template_id"`
}

type updateJobRequest struct {
	Title           *string `json:"title"`
	DepartmentID    *uint   `json:"department_id"`
	Location        *string `json:"location"`
	EmploymentType  *string `json:"employment_type"`
	Status          *string `json:"status"`
	HiringManagerID *uint   `json:"hiring_manager_id"`
}

type jobResponse struct {
	ID                 uint                `json:"id"`
	Title              string              `json:"title"`
	JobCode            string              `json:"job_code"`
	DepartmentID       uint                `json:"department_id"`
	Location           string              `json:"location"`
	EmploymentType     string              `json:"employment_type"`
	Status             string              `json:"status"`
	HiringManagerID    *uint               `json:"hiring_manager_id,omitempty"`
	PipelineTemplateID *uint               `json:"pipeline_template_id,omitempty"`
	PipelineVersion    int                 `json:"pipeline_version"`
	Stages             []pipeline.StageRef `json:"stages,omitempty"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

func toJobResponse(job *database.Job, withStages bool) (jobResponse, error) {
	resp := jobResponse{
		ID:                 job.ID,
		Title:              job.Title,
		JobCode:            job.JobCode,
		DepartmentID:       job.DepartmentID,
		Location:           job.Location,
		EmploymentType:     job.EmploymentType,
		Status:             job.Status,
		HiringManagerID:    job.HiringManagerID,
		PipelineTemplateID: job.PipelineTemplateID,
		PipelineVersion:    job.PipelineVersion,
		CreatedAt:          job.CreatedAt,
		UpdatedAt:          job.UpdatedAt,
	}
	if withStages {
		stages, err := pipeline.DecodeConfig(job.PipelineConfig)
		if err != nil {
			return jobResponse{}, err
		}
		resp.Stages = stages
	}
	return resp, nil
}

// Create 创建 Draft 职位。关联模板时以模板阶段初始化流水线，
// 否则使用内置默认流水线。
func (h *JobHandler) Create(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	stages := pipeline.DefaultConfig()
	if req.PipelineTemplateID != nil {
		rows, err := h.templates.ListStages(ctx, req.PipelineTemplateID)
		if err != nil {
			DomainError(c, err, "failed to load template stages")
			return
		}
		if len(rows) == 0 {
			BadRequest(c, "template has no stages")
			return
		}
		stages = pipeline.StageRefsFromRows(rows)
	}
	config, err := pipeline.EncodeConfig(stages)
	if err != nil {
		Internal(c, "failed to encode pipeline config")
		return
	}

	job := database.Job{
		Title:              req.Title,
		DepartmentID:       req.DepartmentID,
		Location:           req.Location,
		EmploymentType:     req.EmploymentType,
		Status:             database.JobDraft,
		HiringManagerID:    req.HiringManagerID,
		PipelineConfig:     config,
		PipelineTemplateID: req.PipelineTemplateID,
	}

	// 随机后缀可能撞上已有编号，靠唯一索引拦截后重试。
	for attempt := 0; attempt < 5; attempt++ {
		job.JobCode = generateJobCode()
		err = h.db.WithContext(ctx).Create(&job).Error
		if err == nil {
			break
		}
		if !isDuplicateKeyError(err) {
			Internal(c, "failed to create job")
			return
		}
	}
	if job.ID == 0 {
		Conflict(c, "failed to allocate job code")
		return
	}

	resp, err := toJobResponse(&job, true)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List 按状态过滤返回未删除的职位。
func (h *JobHandler) List(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context()).
		Where("is_deleted = ?", false).
		Order("id DESC")
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if raw := c.Query("department_id"); raw != "" {
		query = query.Where("department_id = ?", raw)
	}

	var jobs []database.Job
	if err := query.Find(&jobs).Error; err != nil {
		Internal(c, "failed to list jobs")
		return
	}
	resp := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		item, err := toJobResponse(&jobs[i], false)
		if err != nil {
			Internal(c, "failed to decode pipeline config")
			return
		}
		resp = append(resp, item)
	}
	c.JSON(http.StatusOK, resp)
}

// Get 返回职位详情及其流水线阶段。
func (h *JobHandler) Get(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	resp, err := toJobResponse(job, true)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Update 修改职位基础字段与状态。流水线改动走专门的 pipeline 接口。
func (h *JobHandler) Update(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	var req updateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	updates := map[string]any{}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.DepartmentID != nil {
		updates["department_id"] = *req.DepartmentID
	}
	if req.Location != nil {
		updates["location"] = *req.Location
	}
	if req.EmploymentType != nil {
		updates["employment_type"] = *req.EmploymentType
	}
	if req.HiringManagerID != nil {
		updates["hiring_manager_id"] = *req.HiringManagerID
	}
	if req.Status != nil {
		if !slices.Contains(jobStatuses, *req.Status) {
			BadRequest(c, "invalid status")
			return
		}
		updates["status"] = *req.Status
	}
	if len(updates) == 0 {
		BadRequest(c, "no fields to update")
		return
	}

	if err := h.db.WithContext(c.Request.Context()).Model(job).Updates(updates).Error; err != nil {
		Internal(c, "failed to update job")
		return
	}
	resp, err := toJobResponse(job, true)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Delete 软删除职位。
func (h *JobHandler) Delete(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	if err := h.db.WithContext(c.Request.Context()).Model(job).Update("is_deleted", true).Error; err != nil {
		Internal(c, "failed to delete job")
		return
	}
	c.Status(http.StatusNoContent)
}

// Clone 复制职位为新的 Draft，流水线配置一并带走，申请不复制。
func (h *JobHandler) Clone(c *gin.Context) {
	source, ok := h.loadJob(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	clone := database.Job{
		Title:              source.Title + " (Copy)",
		DepartmentID:       source.DepartmentID,
		Location:           source.Location,
		EmploymentType:     source.EmploymentType,
		Status:             database.JobDraft,
		HiringManagerID:    source.HiringManagerID,
		PipelineConfig:     source.PipelineConfig,
		PipelineTemplateID: source.PipelineTemplateID,
	}
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		clone.JobCode = generateJobCode()
		err = h.db.WithContext(ctx).Create(&clone).Error
		if err == nil {
			break
		}
		if !isDuplicateKeyError(err) {
			Internal(c, "failed to clone job")
			return
		}
	}
	if clone.ID == 0 {
		Conflict(c, "failed to allocate job code")
		return
	}

	resp, err := toJobResponse(&clone, true)
	if err != nil {
		Internal(c, "failed to decode pipeline config")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

type createApplicationRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required,email"`
	Phone    string `json:"phone"`
}

type applicationResponse struct {
	ID                uint      `json:"id"`
	CandidateID       uint      `json:"candidate_id"`
	FullName          string    `json:"full_name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone,omitempty"`
	CurrentStage      string    `json:"current_stage"`
	CurrentStageName  string    `json:"current_stage_name,omitempty"`
	ApplicationStatus string    `json:"application_status"`
	AppliedAt         time.Time `json:"applied_at"`
}

// CreateApplication 为职位登记候选人申请。候选人按邮箱复用档案，
// 申请落在流水线的第一个阶段。
func (h *JobHandler) CreateApplication(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	var req createApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	stages, err := pipeline.DecodeConfig(job.PipelineConfig)
	if err != nil || len(stages) == 0 {
		Internal(c, "job pipeline config is invalid")
		return
	}
	entryStage := stages[0]

	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var application database.JobApplication
	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate database.Candidate
		err := tx.Where("email = ?", email).First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			candidate = database.Candidate{FullName: req.FullName, Email: email, Phone: req.Phone}
			err = tx.Create(&candidate).Error
		}
		if err != nil {
			return err
		}

		application = database.JobApplication{
			CandidateID:  candidate.ID,
			JobID:        job.ID,
			CurrentStage: entryStage.ID,
		}
		if err := tx.Create(&application).Error; err != nil {
			return err
		}
		application.Candidate = candidate
		return nil
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			Conflict(c, "candidate already applied to this job")
			return
		}
		Internal(c, "failed to create application")
		return
	}

	c.JSON(http.StatusCreated, toApplicationResponse(application, stages))
}

// ListApplications 返回职位下的全部申请。
func (h *JobHandler) ListApplications(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	stages, err := pipeline.DecodeConfig(job.PipelineConfig)
	if err != nil {
		Internal(c, "job pipeline config is invalid")
		return
	}

	var applications []database.JobApplication
	err = h.db.WithContext(c.Request.Context()).
		Preload("Candidate").
		Where("job_id = ?", job.ID).
		Order("applied_at").
		Find(&applications).Error
	if err != nil {
		Internal(c, "failed to list applications")
		return
	}

	resp := make([]applicationResponse, 0, len(applications))
	for _, app := range applications {
		resp = append(resp, toApplicationResponse(app, stages))
	}
	c.JSON(http.StatusOK, resp)
}

type moveStageRequest struct {
	StageID string `json:"stage_id" binding:"required"`
}

// MoveApplicationStage 把申请移动到目标阶段。目标必须存在于
// 该职位当前的流水线配置中。
func (h *JobHandler) MoveApplicationStage(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}
	candidateID, ok := parseIDParam(c, "candidateID")
	if !ok {
		return
	}
	var req moveStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	stages, err := pipeline.DecodeConfig(job.PipelineConfig)
	if err != nil {
		Internal(c, "job pipeline config is invalid")
		return
	}
	idx := slices.IndexFunc(stages, func(s pipeline.StageRef) bool { return s.ID == req.StageID })
	if idx < 0 {
		BadRequest(c, "stage does not exist in job pipeline")
		return
	}

	ctx := c.Request.Context()
	var application database.JobApplication
	err = h.db.WithContext(ctx).
		Preload("Candidate").
		Where("job_id = ? AND candidate_id = ?", job.ID, candidateID).
		First(&application).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "application not found")
			return
		}
		Internal(c, "failed to load application")
		return
	}

	if err := h.db.WithContext(ctx).Model(&application).Update("current_stage", req.StageID).Error; err != nil {
		Internal(c, "failed to move application")
		return
	}
	application.CurrentStage = req.StageID
	c.JSON(http.StatusOK, toApplicationResponse(application, stages))
}

func toApplicationResponse(app database.JobApplication, stages []pipeline.StageRef) applicationResponse {
	resp := applicationResponse{
		ID:                app.ID,
		CandidateID:       app.CandidateID,
		FullName:          app.Candidate.FullName,
		Email:             app.Candidate.Email,
		Phone:             app.Candidate.Phone,
		CurrentStage:      app.CurrentStage,
		ApplicationStatus: app.ApplicationStatus,
		AppliedAt:         app.AppliedAt,
	}
	for _, stage := range stages {
		if stage.ID == app.CurrentStage {
			resp.CurrentStageName = stage.Name
			break
		}
	}
	return resp
}

func (h *JobHandler) loadJob(c *gin.Context) (*database.Job, bool) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return nil, false
	}
	var job database.Job
	err := h.db.WithContext(c.Request.Context()).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "job not found")
			return nil, false
		}
		Internal(c, "failed to load job")
		return nil, false
	}
	return &job, true
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
