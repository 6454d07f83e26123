package public

import (
	"github.com/stockhold/internal/http/response"
	"github.com/stockhold/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// UpsertStockItemRequest SKU 建档请求
type UpsertStockItemRequest struct {
	SKU         string          `json:"sku" binding:"required"`
	ProductCode string          `json:"product_code"`
	SpecValue   string          `json:"spec_value"`
	StockTotal  int             `json:"stock_total"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Currency    string          `json:"currency"`
	IsActive    bool            `json:"is_active"`
}

// UpsertStockItem 创建或更新台账行（运维接口）
func (h *Handler) UpsertStockItem(c *gin.Context) {
	var req UpsertStockItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	item, err := h.CatalogService.UpsertStockItem(c.Request.Context(), service.UpsertStockItemInput{
		SKU:         req.SKU,
		ProductCode: req.ProductCode,
		SpecValue:   req.SpecValue,
		StockTotal:  req.StockTotal,
		UnitPrice:   req.UnitPrice,
		Currency:    req.Currency,
		IsActive:    req.IsActive,
	})
	if err != nil {
		respondWithMappedError(c, err, []mappedHandlerError{
			{target: service.ErrInvalidParams, code: response.CodeBadRequest, msg: "invalid stock item"},
		}, response.CodeInternal, "stock item upsert failed")
		return
	}
	response.Success(c, item)
}
