package queue

import (
	"encoding/json"

	"github.com/parcelsync/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskShipmentNotification 发货/签收通知任务
	TaskShipmentNotification = constants.TaskShipmentNotification
	// TaskReconcileOrder 单笔订单对账任务
	TaskReconcileOrder = constants.TaskReconcileOrder
)

// ShipmentNotificationPayload 通知任务载荷，渲染后的消息随任务下发
type ShipmentNotificationPayload struct {
	OrderID uint   `json:"order_id"`
	OrderNo string `json:"order_no"`
	Kind    string `json:"kind"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

// ReconcileOrderPayload 单笔对账任务载荷
type ReconcileOrderPayload struct {
	OrderID uint `json:"order_id"`
}

// NewShipmentNotificationTask 创建通知任务
func NewShipmentNotificationTask(payload ShipmentNotificationPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskShipmentNotification, body), nil
}

// NewReconcileOrderTask 创建单笔对账任务
func NewReconcileOrderTask(payload ReconcileOrderPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReconcileOrder, body), nil
}
