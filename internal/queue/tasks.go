package queue

import (
	"encoding/json"

	"github.com/stockhold/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskSessionTimeoutCancel 会话超时取消任务
	TaskSessionTimeoutCancel = constants.TaskSessionTimeoutCancel
)

// SessionTimeoutCancelPayload 会话超时取消任务载荷
type SessionTimeoutCancelPayload struct {
	SessionID uint `json:"session_id"`
}

// NewSessionTimeoutCancelTask 创建会话超时取消任务
func NewSessionTimeoutCancelTask(payload SessionTimeoutCancelPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSessionTimeoutCancel, body), nil
}
