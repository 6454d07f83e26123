package public

import (
	"github.com/stockhold/internal/http/response"
	"github.com/stockhold/internal/service"

	"github.com/gin-gonic/gin"
)

// CheckoutItemRequest 结账条目请求
type CheckoutItemRequest struct {
	SKU      string `json:"sku" binding:"required"`
	Quantity int    `json:"quantity" binding:"required"`
}

// StartCheckoutRequest 发起结账请求
type StartCheckoutRequest struct {
	Items []CheckoutItemRequest `json:"items" binding:"required"`
}

// StartCheckout 发起结账
func (h *Handler) StartCheckout(c *gin.Context) {
	var req StartCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}

	items := make([]service.CheckoutItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, service.CheckoutItemInput{
			SKU:      item.SKU,
			Quantity: item.Quantity,
		})
	}

	session, err := h.CheckoutService.StartCheckout(c.Request.Context(), service.StartCheckoutInput{
		Items: items,
	})
	if err != nil {
		respondCheckoutError(c, err)
		return
	}

	response.Success(c, session)
}

// GetSession 查询会话
func (h *Handler) GetSession(c *gin.Context) {
	session, err := h.CheckoutService.GetSession(c.Param("session_no"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	response.Success(c, session)
}

// CancelSession 主动取消会话
func (h *Handler) CancelSession(c *gin.Context) {
	session, err := h.CheckoutService.Cancel(c.Request.Context(), c.Param("session_no"))
	if err != nil {
		respondSessionError(c, err)
		return
	}
	response.Success(c, session)
}
