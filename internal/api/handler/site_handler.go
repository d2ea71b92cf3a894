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

type SiteHandler struct {
	registry *service.RegistryService
}

func NewSiteHandler(registry *service.RegistryService) *SiteHandler {
	return &SiteHandler{registry: registry}
}

// POST /sites
func (h *SiteHandler) CreateSite(c *gin.Context) {
	var dto domain.SiteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	site, err := h.registry.CreateSite(c.Request.Context(), dto)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEnforcementType) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if errors.Is(err, repository.ErrDuplicateEntry) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "creating site failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, site)
}

// GET /sites
func (h *SiteHandler) GetAllSites(c *gin.Context) {
	sites, err := h.registry.GetAllSites(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing sites failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sites)
}

// GET /sites/:id
func (h *SiteHandler) GetSiteByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site id"})
		return
	}
	site, err := h.registry.GetSiteByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading site failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, site)
}

// PUT /sites/:id
func (h *SiteHandler) UpdateSite(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site id"})
		return
	}
	var dto domain.SiteDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	site, err := h.registry.UpdateSite(c.Request.Context(), id, dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEnforcementType):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "updating site failed", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, site)
}

// DELETE /sites/:id
func (h *SiteHandler) DeleteSite(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site id"})
		return
	}
	if err := h.registry.DeleteSite(c.Request.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "site not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "deleting site failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "site deleted"})
}
