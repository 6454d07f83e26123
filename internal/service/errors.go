package service

import "errors"

// 业务错误定义，handler 层据此映射响应码
var (
	ErrStockItemNotFound        = errors.New("stock item not found")
	ErrStockItemInactive        = errors.New("stock item inactive")
	ErrStockInsufficient        = errors.New("stock insufficient")
	ErrReservationNotFound      = errors.New("reservation not found")
	ErrReservationMismatch      = errors.New("reservation mismatch")
	ErrSessionNotFound          = errors.New("session not found")
	ErrSessionStateConflict     = errors.New("session state conflict")
	ErrInvalidParams            = errors.New("invalid params")
	ErrPaymentRefDuplicated     = errors.New("payment ref duplicated")
	ErrPaymentStatusUnavailable = errors.New("payment status unavailable")
)
