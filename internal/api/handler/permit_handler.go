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

type PermitHandler struct {
	registry *service.RegistryService
}

func NewPermitHandler(registry *service.RegistryService) *PermitHandler {
	return &PermitHandler{registry: registry}
}

// POST /permits
func (h *PermitHandler) CreatePermit(c *gin.Context) {
	var dto domain.CreatePermitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	permit, err := h.registry.CreatePermit(c.Request.Context(), dto)
	if err != nil {
		h.permitError(c, err, "creating permit failed")
		return
	}
	c.JSON(http.StatusCreated, permit)
}

// GET /permits/:id
func (h *PermitHandler) GetPermitByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permit id"})
		return
	}
	permit, err := h.registry.GetPermitByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "permit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading permit failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, permit)
}

// PUT /permits/:id
func (h *PermitHandler) UpdatePermit(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permit id"})
		return
	}
	var dto domain.CreatePermitDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	permit, err := h.registry.UpdatePermit(c.Request.Context(), id, dto)
	if err != nil {
		h.permitError(c, err, "updating permit failed")
		return
	}
	c.JSON(http.StatusOK, permit)
}

// DELETE /permits/:id
func (h *PermitHandler) DeletePermit(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid permit id"})
		return
	}
	if err := h.registry.DeletePermit(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "permit not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deleting permit failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "permit deleted"})
}

func (h *PermitHandler) permitError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrInvalidPermitType), errors.Is(err, service.ErrInvalidWindow):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "permit not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback, "details": err.Error()})
	}
}
