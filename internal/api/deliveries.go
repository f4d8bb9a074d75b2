package api

import (
	"net/http"

	"polimarket/internal/service"

	"github.com/gin-gonic/gin"
)

type scheduleRequest struct {
	SaleID int64 `json:"sale_id" binding:"required"`
}

type stateRequest struct {
	State string `json:"state" binding:"required"`
}

func (h *Handler) scheduleDelivery(c *gin.Context) {
	var req scheduleRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.Delivery.Schedule(c.Request.Context(), req.SaleID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (h *Handler) getDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	order, err := h.Delivery.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"delivery": order,
		"summary":  service.Summary(order),
	})
}

func (h *Handler) recordDelivery(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req stateRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := h.Delivery.RecordDelivery(c.Request.Context(), id, req.State)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) deliveryHistory(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	history, err := h.Delivery.TransitionHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, history)
}
