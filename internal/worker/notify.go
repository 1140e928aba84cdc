package worker

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type RequisitionNotifyMessage struct {
	Type          string `json:"type"`
	RequisitionID uint   `json:"requisition_id"`
	ReqCode       string `json:"req_code"`
	JobTitle      string `json:"job_title"`
	Status        string `json:"status"`
	Action        string `json:"action"`
	CorrelationID string `json:"correlation_id"`
}
