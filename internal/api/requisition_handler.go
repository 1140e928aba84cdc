package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/namishanaseem-clustox/ATS/internal/api/middleware"
	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/requisition"
	"github.com/namishanaseem-clustox/ATS/internal/tasks"
)

// RequisitionHandler 暴露需求单的创建、查询与审批流转接口。
// 每次状态流转成功后向队列投递通知任务，由 worker 异步推送。
type RequisitionHandler struct {
	service     *requisition.Service
	asynqClient *asynq.Client
	logger      *slog.Logger
}

func NewRequisitionHandler(service *requisition.Service, asynqClient *asynq.Client, logger *slog.Logger) *RequisitionHandler {
	return &RequisitionHandler{service: service, asynqClient: asynqClient, logger: logger}
}

type createRequisitionRequest struct {
	JobTitle       string   `json:"job_title" binding:"required"`
	DepartmentID   uint     `json:"department_id" binding:"required"`
	Location       string   `json:"location"`
	EmploymentType string   `json:"employment_type"`
	MinSalary      *float64 `json:"min_salary"`
	MaxSalary      *float64 `json:"max_salary"`
	Currency       string   `json:"currency"`
	HasEquityBonus bool     `json:"has_equity_bonus"`
	BudgetCode     string   `json:"budget_code"`
	Justification  string   `json:"justification"`
}

type updateRequisitionRequest struct {
	JobTitle       *string  `json:"job_title"`
	DepartmentID   *uint    `json:"department_id"`
	Location       *string  `json:"location"`
	EmploymentType *string  `json:"employment_type"`
	MinSalary      *float64 `json:"min_salary"`
	MaxSalary      *float64 `json:"max_salary"`
	Currency       *string  `json:"currency"`
	HasEquityBonus *bool    `json:"has_equity_bonus"`
	BudgetCode     *string  `json:"budget_code"`
	Justification  *string  `json:"justification"`
}

type requisitionLogResponse struct {
	ID        uint      `json:"id"`
	UserID    uint      `json:"user_id"`
	Action    string    `json:"action"`
	Comments  string    `json:"comments"`
	CreatedAt time.Time `json:"created_at"`
}

type requisitionResponse struct {
	ID              uint                     `json:"id"`
	ReqCode         string                   `json:"req_code"`
	JobTitle        string                   `json:"job_title"`
	DepartmentID    uint                     `json:"department_id"`
	Location        string                   `json:"location"`
	EmploymentType  string                   `json:"employment_type"`
	MinSalary       *float64                 `json:"min_salary,omitempty"`
	MaxSalary       *float64                 `json:"max_salary,omitempty"`
	Currency        string                   `json:"currency,omitempty"`
	HasEquityBonus  bool                     `json:"has_equity_bonus"`
	BudgetCode      string                   `json:"budget_code,omitempty"`
	Justification   string                   `json:"justification,omitempty"`
	RejectionReason string                   `json:"rejection_reason,omitempty"`
	Status          string                   `json:"status"`
	HiringManagerID uint                     `json:"hiring_manager_id"`
	CreatedAt       time.Time                `json:"created_at"`
	UpdatedAt       time.Time                `json:"updated_at"`
	Logs            []requisitionLogResponse `json:"logs,omitempty"`
}

func toRequisitionResponse(r *database.JobRequisition) requisitionResponse {
	resp := requisitionResponse{
		ID:              r.ID,
		ReqCode:         r.ReqCode,
		JobTitle:        r.JobTitle,
		DepartmentID:    r.DepartmentID,
		Location:        r.Location,
		EmploymentType:  r.EmploymentType,
		MinSalary:       r.MinSalary,
		MaxSalary:       r.MaxSalary,
		Currency:        r.Currency,
		HasEquityBonus:  r.HasEquityBonus,
		BudgetCode:      r.BudgetCode,
		Justification:   r.Justification,
		RejectionReason: r.RejectionReason,
		Status:          r.Status,
		HiringManagerID: r.HiringManagerID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	for _, log := range r.Logs {
		resp.Logs = append(resp.Logs, requisitionLogResponse{
			ID:        log.ID,
			UserID:    log.UserID,
			Action:    log.Action,
			Comments:  log.Comments,
			CreatedAt: log.CreatedAt,
		})
	}
	return resp
}

// Create 创建 Draft 需求单。
func (h *RequisitionHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	var req createRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	created, err := h.service.Create(c.Request.Context(), actor, requisition.CreateInput{
		JobTitle:       req.JobTitle,
		DepartmentID:   req.DepartmentID,
		Location:       req.Location,
		EmploymentType: req.EmploymentType,
		MinSalary:      req.MinSalary,
		MaxSalary:      req.MaxSalary,
		Currency:       req.Currency,
		HasEquityBonus: req.HasEquityBonus,
		BudgetCode:     req.BudgetCode,
		Justification:  req.Justification,
	})
	if err != nil {
		DomainError(c, err, "failed to create requisition")
		return
	}
	c.JSON(http.StatusCreated, toRequisitionResponse(created))
}

// List 返回当前用户可见的需求单列表。
func (h *RequisitionHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	items, err := h.service.List(c.Request.Context(), actor)
	if err != nil {
		DomainError(c, err, "failed to list requisitions")
		return
	}
	resp := make([]requisitionResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toRequisitionResponse(&items[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// Get 返回需求单详情及审计日志。
func (h *RequisitionHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	item, err := h.service.Get(c.Request.Context(), actor, id)
	if err != nil {
		DomainError(c, err, "failed to load requisition")
		return
	}
	c.JSON(http.StatusOK, toRequisitionResponse(item))
}

// Update 编辑需求单字段。
func (h *RequisitionHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req updateRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	updated, err := h.service.Update(c.Request.Context(), actor, id, requisition.UpdateInput{
		JobTitle:       req.JobTitle,
		DepartmentID:   req.DepartmentID,
		Location:       req.Location,
		EmploymentType: req.EmploymentType,
		MinSalary:      req.MinSalary,
		MaxSalary:      req.MaxSalary,
		Currency:       req.Currency,
		HasEquityBonus: req.HasEquityBonus,
		BudgetCode:     req.BudgetCode,
		Justification:  req.Justification,
	})
	if err != nil {
		DomainError(c, err, "failed to update requisition")
		return
	}
	c.JSON(http.StatusOK, toRequisitionResponse(updated))
}

// Submit 提交 Draft 需求单进入审批流。
func (h *RequisitionHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	if err := h.service.Submit(c.Request.Context(), actor, id); err != nil {
		DomainError(c, err, "failed to submit requisition")
		return
	}
	h.enqueueNotify(c, id, string(requisition.ActionSubmit), actor.UserID)
	c.JSON(http.StatusOK, gin.H{"status": database.RequisitionPendingHR})
}

// Approve 按当前状态推进审批。
func (h *RequisitionHandler) Approve(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	status, err := h.service.Approve(c.Request.Context(), actor, id)
	if err != nil {
		DomainError(c, err, "failed to approve requisition")
		return
	}
	h.enqueueNotify(c, id, string(requisition.ActionApprove), actor.UserID)
	c.JSON(http.StatusOK, gin.H{"status": status})
}

type rejectRequisitionRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject 驳回需求单并退回 Draft。
func (h *RequisitionHandler) Reject(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	var req rejectRequisitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	if err := h.service.Reject(c.Request.Context(), actor, id, req.Reason); err != nil {
		DomainError(c, err, "failed to reject requisition")
		return
	}
	h.enqueueNotify(c, id, string(requisition.ActionReject), actor.UserID)
	c.JSON(http.StatusOK, gin.H{"status": database.RequisitionDraft})
}

// Convert 把 Open 需求单转换为职位草稿。
func (h *RequisitionHandler) Convert(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	jobID, err := h.service.Convert(c.Request.Context(), actor, id)
	if err != nil {
		DomainError(c, err, "failed to convert requisition")
		return
	}
	h.enqueueNotify(c, id, string(requisition.ActionConvert), actor.UserID)
	c.JSON(http.StatusOK, gin.H{"status": database.RequisitionFilled, "job_id": jobID})
}

// enqueueNotify 投递通知任务。失败只记日志，不影响主流程。
func (h *RequisitionHandler) enqueueNotify(c *gin.Context, requisitionID uint, action string, actorID uint) {
	if h.asynqClient == nil {
		return
	}
	task, err := tasks.NewRequisitionNotifyTask(requisitionID, action, actorID, middleware.GetCorrelationID(c))
	if err != nil {
		h.log(c).Error("build notify task failed", slog.Any("error", err))
		return
	}
	if _, err := h.asynqClient.EnqueueContext(c.Request.Context(), task); err != nil {
		h.log(c).Error("enqueue notify task failed",
			slog.Uint64("requisition_id", uint64(requisitionID)),
			slog.String("action", action),
			slog.Any("error", err),
		)
	}
}

func (h *RequisitionHandler) log(c *gin.Context) *slog.Logger {
	if logger := middleware.LoggerFromContext(c); logger != nil {
		return logger
	}
	if h.logger != nil {
		return h.logger
	}
	return slog.Default()
}
