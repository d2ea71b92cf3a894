package handler

import (
	"net/http"
	"strconv"
	"time"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/service"

	"github.com/gin-gonic/gin"
)

// AdminHandler exposes the maintenance sweeps that otherwise run on
// schedules, so operators can force a pass after backfilling evidence or
// fixing bad data.
type AdminHandler struct {
	reconciler *service.ReconciliationService
	reaper     *service.ReaperService
	staleAge   time.Duration
}

func NewAdminHandler(reconciler *service.ReconciliationService, reaper *service.ReaperService, staleAge time.Duration) *AdminHandler {
	return &AdminHandler{
		reconciler: reconciler,
		reaper:     reaper,
		staleAge:   staleAge,
	}
}

type reconcileRequestDTO struct {
	VRM    string `json:"vrm" binding:"required"`
	SiteID *int   `json:"site_id"`
}

// POST /admin/reconcile
func (h *AdminHandler) Reconcile(c *gin.Context) {
	var dto reconcileRequestDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if domain.NormalizeVRM(dto.VRM) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vrm is required"})
		return
	}
	result, err := h.reconciler.ReconcileForPermit(c.Request.Context(), dto.VRM, dto.SiteID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reconciliation failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /admin/evaluate-orphan-sessions
func (h *AdminHandler) EvaluateOrphanSessions(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}
	result, err := h.reconciler.EvaluateOrphanSessions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "orphan session sweep failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// POST /admin/reap-stale-sessions
func (h *AdminHandler) ReapStaleSessions(c *gin.Context) {
	olderThan := h.staleAge
	if raw := c.Query("older_than_hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil || hours <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid older_than_hours"})
			return
		}
		olderThan = time.Duration(hours) * time.Hour
	}
	result, err := h.reaper.ReapStale(c.Request.Context(), olderThan)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stale session sweep failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GET /admin/stale-session-stats
func (h *AdminHandler) StaleSessionStats(c *gin.Context) {
	stats, err := h.reaper.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading stale session stats failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
