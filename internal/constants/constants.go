package constants

// 结账会话状态常量
const (
	SessionStatusCreated         = "created"
	SessionStatusAwaitingPayment = "awaiting_payment"
	SessionStatusPaid            = "paid"
	SessionStatusCanceled        = "cancelled"
	SessionStatusExpired         = "expired"
)

// 预占单状态常量
const (
	ReservationStatusActive    = "active"
	ReservationStatusConfirmed = "confirmed"
	ReservationStatusReleased  = "released"
	ReservationStatusExpired   = "expired"
)

// 预占释放原因常量
const (
	ReleaseReasonCanceled  = "cancelled"
	ReleaseReasonExpired   = "expired"
	ReleaseReasonReconcile = "reconcile"
)

// 外部支付状态常量
const (
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
	PaymentStatusPending = "pending"
)

// 队列常量
const (
	QueueDefault             = "default"
	TaskSessionTimeoutCancel = "session:timeout_cancel"
)

// 默认配置常量
const (
	DefaultHoldTTLMinutes          = 15
	DefaultSweepIntervalSeconds    = 60
	DefaultReconcileIntervalSecond = 300
	DefaultLookbackMinutes         = 30
	DefaultHardDeadlineMinutes     = 120
)

// SiteCurrencyDefault 默认币种
const SiteCurrencyDefault = "CNY"
