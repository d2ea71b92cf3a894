package handler

import (
	"errors"
	"net/http"
	"strconv"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
	"parking_enforcement/internal/service"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	registry *service.RegistryService
}

func NewPaymentHandler(registry *service.RegistryService) *PaymentHandler {
	return &PaymentHandler{registry: registry}
}

// POST /payments
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var dto domain.CreatePaymentDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	payment, err := h.registry.CreatePayment(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrInvalidWindow) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "recording payment failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, payment)
}

// GET /payments/:id
func (h *PaymentHandler) GetPaymentByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	payment, err := h.registry.GetPaymentByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading payment failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payment)
}

// DELETE /payments/:id
func (h *PaymentHandler) DeletePayment(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment id"})
		return
	}
	if err := h.registry.DeletePayment(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deleting payment failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "payment deleted"})
}
