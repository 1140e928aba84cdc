package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 角色常量。Owner 拥有最高权限，HR 次之，HiringManager 仅能看到本部门数据。
const (
	RoleOwner         = "Owner"
	RoleHR            = "HR"
	RoleHiringManager = "Hiring_Manager"
)

// 需求单状态常量，状态只能沿 requisition 包定义的流转表移动。
const (
	RequisitionDraft        = "Draft"
	RequisitionPendingHR    = "Pending_HR"
	RequisitionPendingOwner = "Pending_Owner"
	RequisitionOpen         = "Open"
	RequisitionFilled       = "Filled"
	RequisitionCancelled    = "Cancelled"
)

// 职位状态常量。转换产生的职位总是从 Draft 开始。
const (
	JobDraft     = "Draft"
	JobPublished = "Published"
	JobArchived  = "Archived"
	JobClosed    = "Closed"
)

// User 表示系统中的账号信息。
type User struct {
	gorm.Model
	Username           string `gorm:"uniqueIndex;size:64"`
	PasswordHash       string `gorm:"size:255"`
	FullName           string `gorm:"size:128"`
	Role               string `gorm:"size:32;index"`
	DepartmentID       *uint  `gorm:"index"`
	MustChangePassword bool   `gorm:"default:false"`
}

// Department 仅承载可见性判断与需求单归属所需的最小字段。
type Department struct {
	gorm.Model
	Name string `gorm:"uniqueIndex;size:128"`
}

// PipelineTemplate 表示可复用的命名阶段集合。
// 全系统最多只有一个 IsDefault = true 的模板，切换默认必须原子完成。
type PipelineTemplate struct {
	gorm.Model
	Name        string          `gorm:"size:128"`
	Description string          `gorm:"size:512"`
	IsDefault   bool            `gorm:"default:false;index"`
	Stages      []PipelineStage `gorm:"constraint:OnDelete:CASCADE"`
}

// PipelineStage 表示模板内的一个阶段定义，Order 在同一模板内从 0 连续递增。
type PipelineStage struct {
	gorm.Model
	Name               string `gorm:"size:128"`
	Order              int    `gorm:"column:stage_order"`
	Color              string `gorm:"size:16"`
	IsDefault          bool   `gorm:"default:false"`
	PipelineTemplateID *uint  `gorm:"index"`
}

// Job 表示对外发布的职位。PipelineConfig 是阶段集合的反范式化副本，
// 是应用真正使用的事实来源；模板仅作为种子与再同步的依据。
// PipelineVersion 用于并发迁移的乐观校验。
type Job struct {
	gorm.Model
	Title              string         `gorm:"size:255;index"`
	JobCode            string         `gorm:"uniqueIndex;size:64"`
	DepartmentID       uint           `gorm:"index"`
	Location           string         `gorm:"size:128"`
	EmploymentType     string         `gorm:"size:32"`
	Status             string         `gorm:"size:32;default:Draft"`
	HiringManagerID    *uint          `gorm:"index"`
	PipelineConfig     datatypes.JSON `gorm:"type:jsonb"`
	PipelineTemplateID *uint          `gorm:"index"`
	PipelineVersion    int            `gorm:"default:0"`
	IsDeleted          bool           `gorm:"default:false;index"`
}

// Candidate 表示候选人档案。
type Candidate struct {
	gorm.Model
	FullName string `gorm:"size:128"`
	Email    string `gorm:"size:255;index"`
	Phone    string `gorm:"size:32"`
}

// JobApplication 表示候选人在某职位上的申请。
// CurrentStage 必须始终能在所属 Job 的 PipelineConfig 中找到对应条目。
type JobApplication struct {
	gorm.Model
	CandidateID       uint      `gorm:"index:idx_applications_job_candidate,unique"`
	JobID             uint      `gorm:"index:idx_applications_job_candidate,unique"`
	CurrentStage      string    `gorm:"size:64"`
	ApplicationStatus string    `gorm:"size:32;default:Active"`
	AppliedAt         time.Time `gorm:"autoCreateTime"`
	Candidate         Candidate `gorm:"constraint:OnDelete:CASCADE"`
	Job               Job       `gorm:"constraint:OnDelete:CASCADE"`
}

// JobRequisition 表示开设职位的申请，必须走完审批流才能转换为职位。
type JobRequisition struct {
	gorm.Model
	ReqCode         string  `gorm:"uniqueIndex;size:32"`
	JobTitle        string  `gorm:"size:255"`
	DepartmentID    uint    `gorm:"index"`
	Location        string  `gorm:"size:128"`
	EmploymentType  string  `gorm:"size:32"`
	MinSalary       *float64
	MaxSalary       *float64
	Currency        string           `gorm:"size:8;default:USD"`
	HasEquityBonus  bool             `gorm:"default:false"`
	BudgetCode      string           `gorm:"size:64"`
	Justification   string           `gorm:"size:2048"`
	RejectionReason string           `gorm:"size:2048"`
	Status          string           `gorm:"size:32;default:Draft;index"`
	HiringManagerID uint             `gorm:"index"`
	Logs            []RequisitionLog `gorm:"constraint:OnDelete:CASCADE"`
}

// RequisitionLog 是需求单的只追加审计日志，随需求单级联删除。
type RequisitionLog struct {
	gorm.Model
	JobRequisitionID uint   `gorm:"index"`
	UserID           uint   `gorm:"index"`
	Action           string `gorm:"size:512"`
	Comments         string `gorm:"size:2048"`
}

// AllModels 返回 AutoMigrate 所需的全部模型。
func AllModels() []any {
	return []any{
		&User{},
		&Department{},
		&PipelineTemplate{},
		&PipelineStage{},
		&Job{},
		&Candidate{},
		&JobApplication{},
		&JobRequisition{},
		&RequisitionLog{},
	}
}
