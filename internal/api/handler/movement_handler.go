package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"parking_enforcement/internal/api/middleware"
	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
	"parking_enforcement/internal/service"

	"github.com/gin-gonic/gin"
)

type MovementHandler struct {
	correlator  *service.CorrelationService
	corrections *service.CorrectionService
	validator   *service.PlateValidationService
}

func NewMovementHandler(correlator *service.CorrelationService, corrections *service.CorrectionService, validator *service.PlateValidationService) *MovementHandler {
	return &MovementHandler{
		correlator:  correlator,
		corrections: corrections,
		validator:   validator,
	}
}

// actor resolves the acting username from the auth middleware context.
func actor(c *gin.Context) string {
	if username, ok := c.Get(middleware.UsernameKey); ok {
		if s, ok := username.(string); ok && s != "" {
			return s
		}
	}
	return "unknown"
}

// POST /movements
func (h *MovementHandler) IngestMovement(c *gin.Context) {
	var dto domain.CreateMovementDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	movement, err := h.correlator.IngestMovement(c.Request.Context(), dto)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidVRM),
			errors.Is(err, service.ErrInvalidTimestamp),
			errors.Is(err, service.ErrInvalidDirection):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, repository.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "movement ingestion failed", "details": err.Error()})
		}
		return
	}
	c.JSON(http.StatusCreated, movement)
}

// GET /movements/:id
func (h *MovementHandler) GetMovementByID(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}
	movement, err := h.correlator.GetMovementByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "movement not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading movement failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, movement)
}

// POST /movements/:id/flip-direction
func (h *MovementHandler) FlipDirection(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}
	var dto domain.FlipDirectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	movement, err := h.corrections.FlipDirection(c.Request.Context(), id, actor(c), dto.Reprocess)
	if err != nil {
		h.correctionError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// PUT /movements/:id/direction
func (h *MovementHandler) SetDirection(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}
	var dto domain.SetDirectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	movement, err := h.corrections.SetDirection(c.Request.Context(), id, domain.MovementDirection(dto.Direction), actor(c), dto.Reprocess)
	if err != nil {
		h.correctionError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// POST /movements/:id/discard
func (h *MovementHandler) Discard(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}
	var dto domain.DiscardMovementDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	movement, err := h.corrections.Discard(c.Request.Context(), id, dto.Reason, actor(c))
	if err != nil {
		h.correctionError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// POST /movements/:id/restore
func (h *MovementHandler) Restore(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}
	movement, err := h.corrections.Restore(c.Request.Context(), id, actor(c))
	if err != nil {
		h.correctionError(c, err)
		return
	}
	c.JSON(http.StatusOK, movement)
}

// POST /movements/:id/validate-plate
// Accepts a multipart image upload and cross-checks the plate read.
func (h *MovementHandler) ValidatePlate(c *gin.Context) {
	if h.validator == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "plate validation is not configured"})
		return
	}
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid movement id"})
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing image file: " + err.Error()})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "opening upload failed", "details": err.Error()})
		return
	}
	defer file.Close()

	imageBytes, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reading upload failed", "details": err.Error()})
		return
	}

	result, err := h.validator.ValidateMovement(c.Request.Context(), id, imageBytes, actor(c))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "movement not found"})
			return
		}
		if errors.Is(err, service.ErrNoPlateDetected) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "plate validation failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *MovementHandler) correctionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "movement not found"})
	case errors.Is(err, service.ErrMovementDiscarded),
		errors.Is(err, service.ErrAlreadyDiscarded),
		errors.Is(err, service.ErrNotDiscarded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidDirection),
		errors.Is(err, service.ErrUnknownNotAllowed):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "movement correction failed", "details": err.Error()})
	}
}
