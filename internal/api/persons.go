package api

import (
	"net/http"

	"polimarket/internal/models"
	"polimarket/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	kindVendor = models.PersonKindVendor
	kindClient = models.PersonKindClient
)

type authorizeRequest struct {
	Code string `json:"code" binding:"required"`
}

func (h *Handler) createPerson(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req service.PersonRequest
		if !bindJSON(c, &req) {
			return
		}

		person, err := h.Persons.Create(c.Request.Context(), kind, &req)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, person)
	}
}

func (h *Handler) getPerson(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}

		person, err := h.Persons.Get(c.Request.Context(), kind, id)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, person)
	}
}

func (h *Handler) updatePerson(kind string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		var req service.PersonRequest
		if !bindJSON(c, &req) {
			return
		}

		person, err := h.Persons.Update(c.Request.Context(), kind, id, &req)
		if err != nil {
			h.writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, person)
	}
}

// listVendors returns authorization statuses; ?status=authorized|pending narrows the list
func (h *Handler) listVendors(c *gin.Context) {
	vendors, err := h.Auth.ListVendors(c.Request.Context(), c.Query("status"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, vendors)
}

func (h *Handler) authorizeVendor(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req authorizeRequest
	if !bindJSON(c, &req) {
		return
	}

	status, err := h.Auth.Authorize(c.Request.Context(), id, req.Code)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) authorizationStatus(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	status, err := h.Auth.Status(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) vendorSales(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sales, err := h.Persons.VendorSales(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

func (h *Handler) listClients(c *gin.Context) {
	clients, err := h.Persons.List(c.Request.Context(), kindClient, c.Query("active") == "true")
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, clients)
}

func (h *Handler) clientSales(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	sales, err := h.Persons.PurchaseHistory(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}
