package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/provider"
	"github.com/stockhold/internal/queue"
	"github.com/stockhold/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskSessionTimeoutCancel, c.handleSessionTimeoutCancel)
}

func (c *Consumer) handleSessionTimeoutCancel(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_session_timeout_cancel_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.SessionTimeoutCancelPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_session_timeout_cancel_unmarshal_failed", "error", err)
		return err
	}
	if payload.SessionID == 0 {
		logger.Debugw("worker_session_timeout_cancel_skip_invalid_payload", "session_id", payload.SessionID)
		return nil
	}
	if c.CheckoutService == nil {
		logger.Warnw("worker_session_timeout_cancel_skip_service_nil", "session_id", payload.SessionID)
		return nil
	}
	if err := c.CheckoutService.CancelExpiredSession(ctx, payload.SessionID); err != nil {
		switch {
		case errors.Is(err, service.ErrSessionNotFound):
			logger.Debugw("worker_session_timeout_cancel_skip_session_not_found", "session_id", payload.SessionID)
			return nil
		case errors.Is(err, service.ErrSessionStateConflict):
			logger.Debugw("worker_session_timeout_cancel_skip_terminal", "session_id", payload.SessionID)
			return nil
		default:
			logger.Warnw("worker_session_timeout_cancel_failed", "session_id", payload.SessionID, "error", err)
			return err
		}
	}
	return nil
}
