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

type SessionHandler struct {
	correlator *service.CorrelationService
	auditRepo  repository.AuditLogRepository
}

func NewSessionHandler(correlator *service.CorrelationService, auditRepo repository.AuditLogRepository) *SessionHandler {
	return &SessionHandler{correlator: correlator, auditRepo: auditRepo}
}

// GET /sessions
func (h *SessionHandler) FindSessions(c *gin.Context) {
	var filter domain.SessionFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return
	}
	sessions, err := h.correlator.FindSessions(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "searching sessions failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}

// GET /sessions/:id
func (h *SessionHandler) GetSessionByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	session, err := h.correlator.GetSessionByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading session failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, session)
}

// GET /sessions/:id/audit
func (h *SessionHandler) GetSessionAudit(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return
	}
	entries, err := h.auditRepo.FindByEntity(c.Request.Context(), "session", id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading audit trail failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GET /sites/:id/open-sessions
func (h *SessionHandler) GetOpenSessionsBySite(c *gin.Context) {
	siteID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid site id"})
		return
	}
	sessions, err := h.correlator.GetOpenSessionsBySite(c.Request.Context(), siteID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading open sessions failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sessions)
}
