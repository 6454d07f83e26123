package worker

import (
	"context"
	"errors"
	"time"

	"github.com/stockhold/internal/config"
	"github.com/stockhold/internal/constants"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/queue"

	"github.com/hibiken/asynq"
)

// Service 异步队列服务，附带过期清扫与对账两条定时循环
type Service struct {
	name     string
	server   *asynq.Server
	mux      *asynq.ServeMux
	consumer *Consumer

	sweepInterval     time.Duration
	reconcileInterval time.Duration
}

// NewService 创建异步队列服务
func NewService(cfg *config.QueueConfig, reservationCfg *config.ReservationConfig, reconcileCfg *config.ReconcileConfig, consumer *Consumer) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, errors.New("queue disabled")
	}
	if consumer == nil {
		return nil, errors.New("consumer is nil")
	}
	opt, serverCfg := queue.BuildServerConfig(cfg)
	server := asynq.NewServer(opt, serverCfg)
	mux := asynq.NewServeMux()
	consumer.Register(mux)

	sweepSeconds := constants.DefaultSweepIntervalSeconds
	if reservationCfg != nil && reservationCfg.SweepIntervalSeconds > 0 {
		sweepSeconds = reservationCfg.SweepIntervalSeconds
	}
	reconcileSeconds := constants.DefaultReconcileIntervalSecond
	if reconcileCfg != nil && reconcileCfg.IntervalSeconds > 0 {
		reconcileSeconds = reconcileCfg.IntervalSeconds
	}
	return &Service{
		name:              "worker",
		server:            server,
		mux:               mux,
		consumer:          consumer,
		sweepInterval:     time.Duration(sweepSeconds) * time.Second,
		reconcileInterval: time.Duration(reconcileSeconds) * time.Second,
	}, nil
}

// Name 服务名称
func (s *Service) Name() string {
	if s == nil || s.name == "" {
		return "worker"
	}
	return s.name
}

// Start 启动服务
func (s *Service) Start(ctx context.Context) error {
	if s == nil || s.server == nil || s.mux == nil {
		return errors.New("worker not initialized")
	}
	if s.consumer != nil && s.consumer.ReservationService != nil {
		go s.runSweepLoop(ctx)
	}
	if s.consumer != nil && s.consumer.ReconcileService != nil && s.consumer.PaymentStatusProvider != nil {
		go s.runReconcileLoop(ctx)
	}
	return s.server.Run(s.mux)
}

// Stop 停止服务
func (s *Service) Stop(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	_ = ctx
	s.server.Shutdown()
	return nil
}

// runSweepLoop 过期预占清扫循环。超时任务丢失或入队失败时由它兜底。
func (s *Service) runSweepLoop(ctx context.Context) {
	runOnce := func() {
		if _, err := s.consumer.ReservationService.SweepExpired(ctx); err != nil {
			logger.Warnw("worker_reservation_sweep_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// runReconcileLoop 滞留会话对账循环
func (s *Service) runReconcileLoop(ctx context.Context) {
	runOnce := func() {
		if _, err := s.consumer.ReconcileService.Run(ctx); err != nil {
			logger.Warnw("worker_reconcile_round_failed", "error", err)
		}
	}
	runOnce()

	ticker := time.NewTicker(s.reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
