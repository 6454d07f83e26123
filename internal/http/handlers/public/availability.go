package public

import (
	"strings"

	"github.com/stockhold/internal/http/response"
	"github.com/stockhold/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAvailability 查询单个 SKU 可售量
func (h *Handler) GetAvailability(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		respondAvailabilityError(c, service.ErrInvalidParams)
		return
	}
	view, err := h.LedgerService.Availability(c.Request.Context(), sku)
	if err != nil {
		respondAvailabilityError(c, err)
		return
	}
	response.Success(c, view)
}

// BatchAvailabilityRequest 批量可售量查询请求
type BatchAvailabilityRequest struct {
	SKUs []string `json:"skus" binding:"required"`
}

// BatchAvailability 批量查询可售量
func (h *Handler) BatchAvailability(c *gin.Context) {
	var req BatchAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "bad request", err)
		return
	}
	views, err := h.LedgerService.AvailabilityBatch(req.SKUs)
	if err != nil {
		respondAvailabilityError(c, err)
		return
	}
	response.Success(c, views)
}

// RepairStock 修复 SKU 预占计数（运维接口）
func (h *Handler) RepairStock(c *gin.Context) {
	sku := strings.TrimSpace(c.Param("sku"))
	if sku == "" {
		respondAvailabilityError(c, service.ErrInvalidParams)
		return
	}
	corrected, err := h.LedgerService.Repair(c.Request.Context(), sku)
	if err != nil {
		respondAvailabilityError(c, err)
		return
	}
	response.Success(c, gin.H{"sku": sku, "reserved": corrected})
}
