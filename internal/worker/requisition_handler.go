package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/tasks"
)

// RequisitionNotifyHandler 负责消费需求单流转通知任务，
// 把事件推送到相关用户的 Redis 通知频道。
type RequisitionNotifyHandler struct {
	db          *gorm.DB
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewRequisitionNotifyHandler 创建任务处理器。
func NewRequisitionNotifyHandler(db *gorm.DB, redisClient *redis.Client, logger *slog.Logger) *RequisitionNotifyHandler {
	return &RequisitionNotifyHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *RequisitionNotifyHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	log := h.logger

	var payload tasks.RequisitionNotifyPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		log.Error("unmarshal task payload failed", slog.Any("error", err))
		return err
	}

	log = log.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Int("requisition_id", int(payload.RequisitionID)),
		slog.String("action", payload.Action),
	)

	var req database.JobRequisition
	if err := h.db.WithContext(ctx).First(&req, payload.RequisitionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("requisition not found, skipping notification")
			return nil
		}
		log.Error("query requisition failed", slog.Any("error", err))
		return err
	}

	audience, err := h.resolveAudience(ctx, req, payload.ActorID)
	if err != nil {
		log.Error("resolve audience failed", slog.Any("error", err))
		return err
	}

	message := RequisitionNotifyMessage{
		Type:          "requisition_event",
		RequisitionID: req.ID,
		ReqCode:       req.ReqCode,
		JobTitle:      req.JobTitle,
		Status:        req.Status,
		Action:        payload.Action,
		CorrelationID: payload.CorrelationID,
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	for _, userID := range audience {
		channel := fmt.Sprintf("user_notify:%d", userID)
		if err := h.redisClient.Publish(ctx, channel, data).Err(); err != nil {
			log.Error("publish notification failed",
				slog.String("channel", channel),
				slog.Any("error", err))
			return err
		}
	}

	log.Info("requisition notification published", slog.Int("audience", len(audience)))
	return nil
}

// resolveAudience 返回应收到事件的用户：负责的 Hiring Manager
// 加上所有 HR/Owner，发起动作的人自己除外。
func (h *RequisitionNotifyHandler) resolveAudience(ctx context.Context, req database.JobRequisition, actorID uint) ([]uint, error) {
	var users []database.User
	err := h.db.WithContext(ctx).
		Where("role IN ?", []string{database.RoleHR, database.RoleOwner}).
		Or("id = ?", req.HiringManagerID).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	audience := make([]uint, 0, len(users))
	for _, u := range users {
		if u.ID == actorID {
			continue
		}
		audience = append(audience, u.ID)
	}
	return audience, nil
}
