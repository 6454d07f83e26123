package public

import (
	"errors"

	handlershared "github.com/stockhold/internal/http/handlers/shared"
	"github.com/stockhold/internal/http/response"
	"github.com/stockhold/internal/service"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

// mappedHandlerError 定义业务错误到接口错误响应的映射关系。
type mappedHandlerError struct {
	target error
	code   int
	msg    string
}

func respondWithMappedError(c *gin.Context, err error, rules []mappedHandlerError, fallbackCode int, fallbackMsg string) {
	for _, rule := range rules {
		if errors.Is(err, rule.target) {
			respondError(c, rule.code, rule.msg, nil)
			return
		}
	}
	respondError(c, fallbackCode, fallbackMsg, err)
}

var checkoutErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: "invalid checkout items"},
	{target: service.ErrStockItemNotFound, code: response.CodeNotFound, msg: "sku not found"},
	{target: service.ErrStockItemInactive, code: response.CodeBadRequest, msg: "sku inactive"},
	{target: service.ErrStockInsufficient, code: response.CodeConflict, msg: "stock insufficient"},
}

var sessionErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: "invalid session no"},
	{target: service.ErrSessionNotFound, code: response.CodeNotFound, msg: "session not found"},
	{target: service.ErrSessionStateConflict, code: response.CodeConflict, msg: "session state conflict"},
}

var paymentWebhookErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: "invalid webhook payload"},
	{target: service.ErrSessionNotFound, code: response.CodeNotFound, msg: "session not found"},
	{target: service.ErrSessionStateConflict, code: response.CodeConflict, msg: "session state conflict"},
	{target: service.ErrPaymentRefDuplicated, code: response.CodeConflict, msg: "payment ref already used"},
	{target: service.ErrReservationMismatch, code: response.CodeConflict, msg: "reservation mismatch"},
}

var availabilityErrorRules = []mappedHandlerError{
	{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: "invalid sku"},
	{target: service.ErrStockItemNotFound, code: response.CodeNotFound, msg: "sku not found"},
}

func respondCheckoutError(c *gin.Context, err error) {
	respondWithMappedError(c, err, checkoutErrorRules, response.CodeInternal, "checkout failed")
}

func respondSessionError(c *gin.Context, err error) {
	respondWithMappedError(c, err, sessionErrorRules, response.CodeInternal, "session operation failed")
}

func respondPaymentWebhookError(c *gin.Context, err error) {
	respondWithMappedError(c, err, paymentWebhookErrorRules, response.CodeInternal, "payment webhook failed")
}

func respondAvailabilityError(c *gin.Context, err error) {
	respondWithMappedError(c, err, availabilityErrorRules, response.CodeInternal, "availability query failed")
}
