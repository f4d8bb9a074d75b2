package api

import (
	"net/http"

	"polimarket/internal/service"

	"github.com/gin-gonic/gin"
)

type quantityRequest struct {
	Quantity int `json:"quantity" binding:"required"`
}

func (h *Handler) createProduct(c *gin.Context) {
	var req service.CreateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.Catalog.CreateProduct(c.Request.Context(), &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

// listProducts serves search (?q=), in-stock listing (?in_stock=true) or the full catalog
func (h *Handler) listProducts(c *gin.Context) {
	ctx := c.Request.Context()

	var err error
	var products interface{}
	switch {
	case c.Query("q") != "":
		products, err = h.Catalog.Search(ctx, c.Query("q"))
	case c.Query("in_stock") == "true":
		products, err = h.Stock.InStock(ctx)
	default:
		products, err = h.Catalog.ListProducts(ctx)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) getProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	product, err := h.Catalog.GetProduct(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.UpdateProductRequest
	if !bindJSON(c, &req) {
		return
	}

	product, err := h.Catalog.UpdateProduct(c.Request.Context(), id, &req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (h *Handler) deactivateProduct(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.Catalog.DeactivateProduct(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) productAvailability(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	quantity, ok := queryInt(c, "quantity", 1)
	if !ok {
		return
	}

	result, err := h.Stock.Availability(c.Request.Context(), id, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) productSubtotal(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	quantity, ok := queryInt(c, "quantity", 1)
	if !ok {
		return
	}

	subtotal, err := h.Catalog.Subtotal(c.Request.Context(), id, quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": id,
		"quantity":   quantity,
		"subtotal":   subtotal,
	})
}

func (h *Handler) restock(c *gin.Context) {
	id, ok := pathID(c, "productId")
	if !ok {
		return
	}
	var req quantityRequest
	if !bindJSON(c, &req) {
		return
	}

	available, err := h.Stock.Restock(c.Request.Context(), id, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": id,
		"available":  available,
	})
}

func (h *Handler) reserve(c *gin.Context) {
	id, ok := pathID(c, "productId")
	if !ok {
		return
	}
	var req quantityRequest
	if !bindJSON(c, &req) {
		return
	}

	remaining, err := h.Stock.Reserve(c.Request.Context(), id, req.Quantity)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product_id": id,
		"remaining":  remaining,
	})
}

func (h *Handler) lowStock(c *gin.Context) {
	threshold, ok := queryInt(c, "threshold", 0)
	if !ok {
		return
	}

	products, err := h.Stock.LowStock(c.Request.Context(), threshold)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}
