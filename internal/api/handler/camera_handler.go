package handler

import (
	"errors"
	"net/http"

	"parking_enforcement/internal/domain"
	"parking_enforcement/internal/repository"
	"parking_enforcement/internal/service"

	"github.com/gin-gonic/gin"
)

type CameraHandler struct {
	registry *service.RegistryService
}

func NewCameraHandler(registry *service.RegistryService) *CameraHandler {
	return &CameraHandler{registry: registry}
}

// PUT /cameras
func (h *CameraHandler) RegisterCamera(c *gin.Context) {
	var camera domain.Camera
	if err := c.ShouldBindJSON(&camera); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	if camera.CameraID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "camera_id is required"})
		return
	}
	registered, err := h.registry.RegisterCamera(c.Request.Context(), &camera)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registering camera failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, registered)
}

// GET /cameras
func (h *CameraHandler) GetAllCameras(c *gin.Context) {
	cameras, err := h.registry.GetAllCameras(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing cameras failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cameras)
}

// GET /cameras/:camera_id
func (h *CameraHandler) GetCameraByCameraID(c *gin.Context) {
	cameraID := c.Param("camera_id")
	camera, err := h.registry.GetCameraByCameraID(c.Request.Context(), cameraID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "loading camera failed", "details": err.Error()})
		return
	}
	c.JSON(http.StatusOK, camera)
}
