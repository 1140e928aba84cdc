package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeRequisitionNotify = "requisition:notify"
)

// RequisitionNotifyPayload 描述需求单流转通知所需的最小信息。
type RequisitionNotifyPayload struct {
	RequisitionID uint   `json:"requisition_id"`
	Action        string `json:"action"`
	ActorID       uint   `json:"actor_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewRequisitionNotifyTask 构造一个需求单流转通知任务。
func NewRequisitionNotifyTask(requisitionID uint, action string, actorID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(RequisitionNotifyPayload{
		RequisitionID: requisitionID,
		Action:        action,
		ActorID:       actorID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRequisitionNotify, payload), nil
}
