package api

import (
	"net/http"

	"polimarket/internal/service"
	"polimarket/internal/store"

	"github.com/gin-gonic/gin"
)

type openSaleRequest struct {
	VendorID int64 `json:"vendor_id" binding:"required"`
	ClientID int64 `json:"client_id" binding:"required"`
}

// registerSale handles one-step sale registration
func (h *Handler) registerSale(c *gin.Context) {
	var req service.RegisterSaleRequest
	if !bindJSON(c, &req) {
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	sale, err := h.Sales.RegisterSale(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) openSale(c *gin.Context) {
	var req openSaleRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.Sales.OpenSale(c.Request.Context(), req.VendorID, req.ClientID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sale)
}

func (h *Handler) listSales(c *gin.Context) {
	vendorID, ok := queryID(c, "vendor_id")
	if !ok {
		return
	}
	clientID, ok := queryID(c, "client_id")
	if !ok {
		return
	}

	sales, err := h.Sales.ListSales(c.Request.Context(), store.SaleFilter{
		VendorID: vendorID,
		ClientID: clientID,
		Status:   c.Query("status"),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) getSale(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sale, err := h.Sales.GetSale(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) addLineItem(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.SaleItemRequest
	if !bindJSON(c, &req) {
		return
	}

	sale, err := h.Sales.AddLineItem(c.Request.Context(), id, req.ProductID, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) saleTotal(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	total, err := h.Sales.CalculateTotal(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sale_id": id,
		"total":   total,
	})
}

func (h *Handler) invoice(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	invoice, err := h.Sales.GenerateInvoice(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, invoice)
}

func (h *Handler) completeSale(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sale, err := h.Sales.CompleteSale(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}

func (h *Handler) cancelSale(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sale, err := h.Sales.CancelSale(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sale)
}
