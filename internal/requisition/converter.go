package requisition

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/errcode"
	"github.com/namishanaseem-clustox/ATS/internal/metrics"
	"github.com/namishanaseem-clustox/ATS/internal/pipeline"
)

// Convert 把已批准（Open）的需求单物化为可发布的职位，并把需求单
// 标记为 Filled。单向操作，没有反向转换。
// 新职位总是 Draft 状态，职位编号为 JOB-{req_code}。
func (s *Service) Convert(ctx context.Context, actor Actor, id uint) (uint, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return 0, err
	}

	tr, err := resolve(req.Status, ActionConvert, actor.Role)
	if err != nil {
		return 0, err
	}

	config, err := pipeline.EncodeConfig(pipeline.DefaultConfig())
	if err != nil {
		return 0, err
	}

	hiringManagerID := req.HiringManagerID
	job := database.Job{
		Title:           req.JobTitle,
		JobCode:         "JOB-" + req.ReqCode,
		DepartmentID:    req.DepartmentID,
		Location:        req.Location,
		EmploymentType:  req.EmploymentType,
		Status:          database.JobDraft,
		HiringManagerID: &hiringManagerID,
		PipelineConfig:  config,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&database.JobRequisition{}).
			Where("id = ? AND status = ?", req.ID, req.Status).
			Update("status", tr.to)
		if res.Error != nil {
			return fmt.Errorf("mark requisition filled: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return errcode.InvalidState(
				fmt.Sprintf("requisition is no longer in status %s", req.Status))
		}

		if err := tx.Create(&job).Error; err != nil {
			return fmt.Errorf("create job from requisition: %w", err)
		}

		return tx.Create(&database.RequisitionLog{
			JobRequisitionID: req.ID,
			UserID:           actor.UserID,
			Action:           tr.logAction,
		}).Error
	})
	if err != nil {
		return 0, err
	}

	metrics.RequisitionTransitionsTotal.WithLabelValues(string(ActionConvert)).Inc()
	return job.ID, nil
}
