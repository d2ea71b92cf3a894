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

type DecisionHandler struct {
	engine       *service.DecisionEngine
	decisionRepo repository.DecisionRepository
}

func NewDecisionHandler(engine *service.DecisionEngine, decisionRepo repository.DecisionRepository) *DecisionHandler {
	return &DecisionHandler{engine: engine, decisionRepo: decisionRepo}
}

// GET /decisions
func (h *DecisionHandler) FindDecisions(c *gin.Context) {
	var filter domain.DecisionFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filter: " + err.Error()})
		return
	}
	decisions, err := h.decisionRepo.Find(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "searching decisions failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, decisions)
}

// GET /decisions/:id
func (h *DecisionHandler) GetDecisionByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision id"})
		return
	}
	decision, err := h.decisionRepo.FindByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading decision failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// POST /decisions/:id/review
func (h *DecisionHandler) ReviewDecision(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid decision id"})
		return
	}
	var dto domain.ReviewDecisionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	decision, err := h.engine.ReviewDecision(c.Request.Context(), id, dto, actor(c))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "decision not found"})
		case errors.Is(err, service.ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "reviewing decision failed", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, decision)
}
