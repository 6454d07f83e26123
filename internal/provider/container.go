package provider

import (
	"time"

	"github.com/stockhold/internal/cache"
	"github.com/stockhold/internal/config"
	"github.com/stockhold/internal/logger"
	"github.com/stockhold/internal/models"
	"github.com/stockhold/internal/payment"
	"github.com/stockhold/internal/queue"
	"github.com/stockhold/internal/repository"
	"github.com/stockhold/internal/service"
)

// Container 依赖注入容器
type Container struct {
	Config      *config.Config
	QueueClient *queue.Client

	// Repositories
	StockRepo        repository.StockRepository
	ReservationRepo  repository.ReservationRepository
	SessionRepo      repository.SessionRepository
	PaymentEventRepo repository.PaymentEventRepository

	// Collaborators
	PaymentStatusProvider payment.StatusProvider

	// Services
	CatalogService     *service.CatalogService
	LedgerService      *service.LedgerService
	ReservationService *service.ReservationService
	CheckoutService    *service.CheckoutService
	ReconcileService   *service.ReconcileService
}

// NewContainer 初始化容器
func NewContainer(cfg *config.Config) *Container {
	// 初始化缓存
	if err := cache.InitRedis(&cfg.Redis); err != nil {
		logger.Warnw("provider_init_redis_failed", "error", err)
	}

	// 初始化队列客户端
	var queueClient *queue.Client
	if cfg.Queue.Enabled {
		qc, err := queue.NewClient(&cfg.Queue)
		if err != nil {
			logger.Errorw("provider_init_queue_client_failed", "error", err)
		} else {
			queueClient = qc
		}
	}

	c := &Container{
		Config:      cfg,
		QueueClient: queueClient,
	}

	// 1. 初始化 Repositories
	c.initRepositories()

	// 2. 初始化 Services
	c.initServices()

	return c
}

func (c *Container) initRepositories() {
	db := models.DB
	c.StockRepo = repository.NewStockRepository(db)
	c.ReservationRepo = repository.NewReservationRepository(db)
	c.SessionRepo = repository.NewSessionRepository(db)
	c.PaymentEventRepo = repository.NewPaymentEventRepository(db)
}

func (c *Container) initServices() {
	if c.Config.Payment.BaseURL != "" {
		c.PaymentStatusProvider = payment.NewHTTPProvider(payment.HTTPProviderOptions{
			BaseURL:       c.Config.Payment.BaseURL,
			APIKey:        c.Config.Payment.APIKey,
			Timeout:       time.Duration(c.Config.Payment.TimeoutMS) * time.Millisecond,
			RatePerSecond: c.Config.Payment.RatePerSecond,
			RateBurst:     c.Config.Payment.RateBurst,
		})
	}

	c.CatalogService = service.NewCatalogService(c.StockRepo)
	c.LedgerService = service.NewLedgerService(c.StockRepo, c.ReservationRepo)
	c.ReservationService = service.NewReservationService(
		c.StockRepo,
		c.ReservationRepo,
		c.Config.Reservation.HoldTTLMinutes,
		c.Config.Reservation.SweepBatchSize,
	)
	c.CheckoutService = service.NewCheckoutService(
		c.SessionRepo,
		c.StockRepo,
		c.ReservationRepo,
		c.PaymentEventRepo,
		c.QueueClient,
		c.Config.Reservation.HoldTTLMinutes,
	)
	c.ReconcileService = service.NewReconcileService(
		c.SessionRepo,
		c.CheckoutService,
		c.PaymentStatusProvider,
		c.Config.Reconcile.LookbackMinutes,
		c.Config.Reconcile.HardDeadlineMinutes,
		c.Config.Reconcile.BatchSize,
	)
}
