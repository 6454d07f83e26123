package public

import (
	"strings"

	"github.com/stockhold/internal/http/response"
	"github.com/stockhold/internal/service"

	"github.com/gin-gonic/gin"
)

// PaymentWebhookRequest 支付回调请求
type PaymentWebhookRequest struct {
	SessionNo  string `json:"session_no" binding:"required"`
	PaymentRef string `json:"payment_ref" binding:"required"`
	Status     string `json:"status" binding:"required"`
}

// PaymentWebhook 支付平台回调入口。
// paid 确认会话，failed 取消会话，其余状态忽略。
func (h *Handler) PaymentWebhook(c *gin.Context) {
	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Status)) {
	case "paid":
		session, err := h.CheckoutService.MarkPaid(c.Request.Context(), req.SessionNo, req.PaymentRef, "webhook")
		if err != nil {
			respondPaymentWebhookError(c, err)
			return
		}
		response.Success(c, session)
	case "failed":
		session, err := h.CheckoutService.Cancel(c.Request.Context(), req.SessionNo)
		if err != nil {
			respondPaymentWebhookError(c, err)
			return
		}
		response.Success(c, session)
	default:
		respondPaymentWebhookError(c, service.ErrInvalidParams)
	}
}
