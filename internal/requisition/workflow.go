package requisition

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/errcode"
	"github.com/namishanaseem-clustox/ATS/internal/metrics"
)

// Actor 描述执行流转的用户身份。
type Actor struct {
	UserID       uint
	Role         string
	DepartmentID *uint
}

// Action 是需求单状态机上的一个动作。
type Action string

const (
	ActionSubmit  Action = "submit"
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionConvert Action = "convert"
	ActionUpdate  Action = "update"
)

// allowedRoles 是可以接触需求单模块的全部角色。
var allowedRoles = []string{
	database.RoleOwner,
	database.RoleHR,
	database.RoleHiringManager,
}

// transition 是流转表中的一行：状态 × 动作 × 角色 → 新状态 + 日志文案。
// 角色检查集中在这里，端点不再各自散落 if/else。
type transition struct {
	from      string
	action    Action
	roles     []string
	to        string
	logAction string
}

var transitions = []transition{
	{
		from:      database.RequisitionDraft,
		action:    ActionSubmit,
		roles:     allowedRoles,
		to:        database.RequisitionPendingHR,
		logAction: "Submitted to HR",
	},
	{
		from:      database.RequisitionPendingHR,
		action:    ActionApprove,
		roles:     []string{database.RoleHR, database.RoleOwner},
		to:        database.RequisitionPendingOwner,
		logAction: "Approved by HR",
	},
	{
		from:      database.RequisitionPendingOwner,
		action:    ActionApprove,
		roles:     []string{database.RoleOwner},
		to:        database.RequisitionOpen,
		logAction: "Approved by Owner",
	},
	{
		from:      database.RequisitionPendingHR,
		action:    ActionReject,
		roles:     []string{database.RoleHR, database.RoleOwner},
		to:        database.RequisitionDraft,
		logAction: "Returned to Draft / Rejected",
	},
	{
		from:      database.RequisitionPendingOwner,
		action:    ActionReject,
		roles:     []string{database.RoleHR, database.RoleOwner},
		to:        database.RequisitionDraft,
		logAction: "Returned to Draft / Rejected",
	},
	{
		from:      database.RequisitionOpen,
		action:    ActionConvert,
		roles:     allowedRoles,
		to:        database.RequisitionFilled,
		logAction: "Converted to Job Posting",
	},
}

// resolve 在流转表中查找 (状态, 动作, 角色) 对应的行。
// 状态不允许该动作 → InvalidState；状态允许但角色不够 → Forbidden。
func resolve(from string, action Action, role string) (transition, error) {
	stateMatched := false
	for _, tr := range transitions {
		if tr.from != from || tr.action != action {
			continue
		}
		stateMatched = true
		if slices.Contains(tr.roles, role) {
			return tr, nil
		}
	}
	if stateMatched {
		return transition{}, errcode.Forbidden(
			fmt.Sprintf("role %s cannot %s a requisition in status %s", role, action, from))
	}
	return transition{}, errcode.InvalidState(
		fmt.Sprintf("cannot %s from status %s", action, from))
}

// Service 承载需求单审批工作流：校验流转、落状态、追加审计日志。
type Service struct {
	db *gorm.DB
}

// NewService 构造 Service。
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateInput 描述创建需求单的业务字段。
type CreateInput struct {
	JobTitle       string
	DepartmentID   uint
	Location       string
	EmploymentType string
	MinSalary      *float64
	MaxSalary      *float64
	Currency       string
	HasEquityBonus bool
	BudgetCode     string
	Justification  string
}

// UpdateInput 描述编辑需求单的可选字段，nil 表示不修改。
type UpdateInput struct {
	JobTitle       *string
	DepartmentID   *uint
	Location       *string
	EmploymentType *string
	MinSalary      *float64
	MaxSalary      *float64
	Currency       *string
	HasEquityBonus *bool
	BudgetCode     *string
	Justification  *string
}

// reqCodeAttempts 限制编号冲突时的重试次数。
const reqCodeAttempts = 5

// Create 创建 Draft 状态的需求单并生成 REQ-NNN 编号。
// 编号由当前总数推导，依赖唯一索引兜底并发冲突，冲突时顺延重试。
func (s *Service) Create(ctx context.Context, actor Actor, in CreateInput) (*database.JobRequisition, error) {
	if !slices.Contains(allowedRoles, actor.Role) {
		return nil, errcode.Forbidden("role cannot create requisitions")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&database.JobRequisition{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("count requisitions: %w", err)
	}

	currency := in.Currency
	if currency == "" {
		currency = "USD"
	}

	var created *database.JobRequisition
	for attempt := 0; attempt < reqCodeAttempts; attempt++ {
		req := database.JobRequisition{
			ReqCode:         fmt.Sprintf("REQ-%03d", count+int64(attempt)+1),
			JobTitle:        in.JobTitle,
			DepartmentID:    in.DepartmentID,
			Location:        in.Location,
			EmploymentType:  in.EmploymentType,
			MinSalary:       in.MinSalary,
			MaxSalary:       in.MaxSalary,
			Currency:        currency,
			HasEquityBonus:  in.HasEquityBonus,
			BudgetCode:      in.BudgetCode,
			Justification:   in.Justification,
			Status:          database.RequisitionDraft,
			HiringManagerID: actor.UserID,
		}

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&req).Error; err != nil {
				return err
			}
			return tx.Create(&database.RequisitionLog{
				JobRequisitionID: req.ID,
				UserID:           actor.UserID,
				Action:           "Created Requisition",
			}).Error
		})
		if err == nil {
			created = &req
			break
		}
		if !isDuplicateKey(err) {
			return nil, fmt.Errorf("create requisition: %w", err)
		}
	}
	if created == nil {
		return nil, fmt.Errorf("create requisition: req code collision persisted after %d attempts", reqCodeAttempts)
	}

	metrics.RequisitionTransitionsTotal.WithLabelValues("create").Inc()
	return created, nil
}

// Submit 把 Draft 需求单送审（Draft → Pending_HR）。
// 上一轮的驳回原因在此清空，原因本身保留在审计日志里。
func (s *Service) Submit(ctx context.Context, actor Actor, id uint) error {
	_, err := s.apply(ctx, actor, id, ActionSubmit, "")
	return err
}

// Approve 执行审批：Pending_HR → Pending_Owner（HR/Owner），
// Pending_Owner → Open（仅 Owner）。返回新状态。
func (s *Service) Approve(ctx context.Context, actor Actor, id uint) (string, error) {
	req, err := s.apply(ctx, actor, id, ActionApprove, "")
	if err != nil {
		return "", err
	}
	return req.Status, nil
}

// Reject 驳回待审的需求单回 Draft 并记录原因。
func (s *Service) Reject(ctx context.Context, actor Actor, id uint, reason string) error {
	_, err := s.apply(ctx, actor, id, ActionReject, reason)
	return err
}

// apply 执行一次表驱动的状态流转。状态变更、日志追加在同一事务内，
// 且更新以期望的旧状态为条件：并发流转只有一个能通过。
func (s *Service) apply(ctx context.Context, actor Actor, id uint, action Action, reason string) (*database.JobRequisition, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	tr, err := resolve(req.Status, action, actor.Role)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{"status": tr.to}
	logAction := tr.logAction
	switch action {
	case ActionSubmit:
		updates["rejection_reason"] = ""
	case ActionReject:
		updates["rejection_reason"] = reason
		logAction = fmt.Sprintf("%s - Reason: %s", tr.logAction, reason)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.JobRequisition{}).
			Where("id = ? AND status = ?", req.ID, req.Status).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update requisition: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errcode.InvalidState(
				fmt.Sprintf("requisition is no longer in status %s", req.Status))
		}
		return tx.Create(&database.RequisitionLog{
			JobRequisitionID: req.ID,
			UserID:           actor.UserID,
			Action:           logAction,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	metrics.RequisitionTransitionsTotal.WithLabelValues(string(action)).Inc()

	req.Status = tr.to
	return req, nil
}

// Update 编辑需求单内容。Draft 阶段创建者可改；
// 送审之后只有 HR/Owner 可以继续编辑。每次编辑都会落审计日志。
func (s *Service) Update(ctx context.Context, actor Actor, id uint, in UpdateInput) (*database.JobRequisition, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	escalated := actor.Role == database.RoleHR || actor.Role == database.RoleOwner
	if req.Status != database.RequisitionDraft && !escalated {
		return nil, errcode.InvalidState("cannot edit after submission unless HR or Owner")
	}

	updates := map[string]any{}
	if in.JobTitle != nil {
		updates["job_title"] = *in.JobTitle
	}
	if in.DepartmentID != nil {
		updates["department_id"] = *in.DepartmentID
	}
	if in.Location != nil {
		updates["location"] = *in.Location
	}
	if in.EmploymentType != nil {
		updates["employment_type"] = *in.EmploymentType
	}
	if in.MinSalary != nil {
		updates["min_salary"] = *in.MinSalary
	}
	if in.MaxSalary != nil {
		updates["max_salary"] = *in.MaxSalary
	}
	if in.Currency != nil {
		updates["currency"] = *in.Currency
	}
	if in.HasEquityBonus != nil {
		updates["has_equity_bonus"] = *in.HasEquityBonus
	}
	if in.BudgetCode != nil {
		updates["budget_code"] = *in.BudgetCode
	}
	if in.Justification != nil {
		updates["justification"] = *in.Justification
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := tx.Model(req).Updates(updates).Error; err != nil {
				return fmt.Errorf("update requisition: %w", err)
			}
		}
		return tx.Create(&database.RequisitionLog{
			JobRequisitionID: req.ID,
			UserID:           actor.UserID,
			Action:           "Updated Details",
		}).Error
	})
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).First(req, req.ID).Error; err != nil {
		return nil, fmt.Errorf("reload requisition: %w", err)
	}
	return req, nil
}

// List 返回按角色过滤后的需求单列表：Owner/HR 看到全部，
// Hiring Manager 只能看到本部门或自己发起的。
func (s *Service) List(ctx context.Context, actor Actor) ([]database.JobRequisition, error) {
	query := s.db.WithContext(ctx).Model(&database.JobRequisition{}).Order("created_at DESC")

	switch actor.Role {
	case database.RoleOwner, database.RoleHR:
	case database.RoleHiringManager:
		if actor.DepartmentID != nil {
			query = query.Where("department_id = ? OR hiring_manager_id = ?", *actor.DepartmentID, actor.UserID)
		} else {
			query = query.Where("hiring_manager_id = ?", actor.UserID)
		}
	default:
		return nil, errcode.Forbidden("role cannot list requisitions")
	}

	var reqs []database.JobRequisition
	if err := query.Find(&reqs).Error; err != nil {
		return nil, fmt.Errorf("list requisitions: %w", err)
	}
	return reqs, nil
}

// Get 返回单个需求单及其审计日志，对 Hiring Manager 做可见性检查。
func (s *Service) Get(ctx context.Context, actor Actor, id uint) (*database.JobRequisition, error) {
	var req database.JobRequisition
	err := s.db.WithContext(ctx).Preload("Logs").First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("requisition not found")
		}
		return nil, fmt.Errorf("query requisition: %w", err)
	}

	if actor.Role == database.RoleHiringManager {
		sameDept := actor.DepartmentID != nil && *actor.DepartmentID == req.DepartmentID
		if !sameDept && req.HiringManagerID != actor.UserID {
			return nil, errcode.Forbidden("not authorized to view this requisition")
		}
	}
	return &req, nil
}

func (s *Service) load(ctx context.Context, id uint) (*database.JobRequisition, error) {
	var req database.JobRequisition
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errcode.NotFound("requisition not found")
		}
		return nil, fmt.Errorf("query requisition: %w", err)
	}
	return &req, nil
}

// isDuplicateKey 兼容各方言的唯一约束冲突判断。
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, "duplicate key") ||
		strings.Contains(lower, "unique constraint")
}
