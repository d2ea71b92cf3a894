package api

import (
	"time"

	"parking_enforcement/internal/api/handler"
	"parking_enforcement/internal/api/middleware"
	"parking_enforcement/internal/repository"
	"parking_enforcement/internal/service"

	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	AuthService    *service.AuthService
	Correlator     *service.CorrelationService
	Corrections    *service.CorrectionService
	Engine         *service.DecisionEngine
	Registry       *service.RegistryService
	Reconciler     *service.ReconciliationService
	Reaper         *service.ReaperService
	PlateValidator *service.PlateValidationService
	DecisionRepo   repository.DecisionRepository
	AuditRepo      repository.AuditLogRepository
	AuthMw         *middleware.AuthMiddleware
	WSManager      *handler.WebSocketManager
	StaleAge       time.Duration
}

func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.Default()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	wsHandler := handler.NewWebSocketHandler(deps.WSManager)
	r.GET("/ws", wsHandler.HandleWebSocket)

	authHandler := handler.NewAuthHandler(deps.AuthService)
	authRoutes := r.Group("/auth")
	{
		authRoutes.POST("/register", authHandler.Register)
		authRoutes.POST("/login", authHandler.Login)
	}

	v1 := r.Group("/api/v1")
	v1.Use(deps.AuthMw.Authenticate())
	{
		movementH := handler.NewMovementHandler(deps.Correlator, deps.Corrections, deps.PlateValidator)
		movementRoutes := v1.Group("/movements")
		{
			movementRoutes.POST("", movementH.IngestMovement)
			movementRoutes.GET("/:id", movementH.GetMovementByID)

			correctionRoutes := movementRoutes.Group("")
			correctionRoutes.Use(deps.AuthMw.AuthorizeRole("admin", "operator"))
			{
				correctionRoutes.POST("/:id/flip-direction", movementH.FlipDirection)
				correctionRoutes.PUT("/:id/direction", movementH.SetDirection)
				correctionRoutes.POST("/:id/discard", movementH.Discard)
				correctionRoutes.POST("/:id/restore", movementH.Restore)
				correctionRoutes.POST("/:id/validate-plate", movementH.ValidatePlate)
			}
		}

		sessionH := handler.NewSessionHandler(deps.Correlator, deps.AuditRepo)
		sessionRoutes := v1.Group("/sessions")
		{
			sessionRoutes.GET("", sessionH.FindSessions)
			sessionRoutes.GET("/:id", sessionH.GetSessionByID)
			sessionRoutes.GET("/:id/audit", sessionH.GetSessionAudit)
		}

		decisionH := handler.NewDecisionHandler(deps.Engine, deps.DecisionRepo)
		decisionRoutes := v1.Group("/decisions")
		{
			decisionRoutes.GET("", decisionH.FindDecisions)
			decisionRoutes.GET("/:id", decisionH.GetDecisionByID)
			decisionRoutes.POST("/:id/review", deps.AuthMw.AuthorizeRole("admin", "operator"), decisionH.ReviewDecision)
		}

		siteH := handler.NewSiteHandler(deps.Registry)
		siteRoutes := v1.Group("/sites")
		{
			siteRoutes.POST("", deps.AuthMw.AuthorizeRole("admin"), siteH.CreateSite)
			siteRoutes.GET("", siteH.GetAllSites)
			siteRoutes.GET("/:id", siteH.GetSiteByID)
			siteRoutes.PUT("/:id", deps.AuthMw.AuthorizeRole("admin"), siteH.UpdateSite)
			siteRoutes.DELETE("/:id", deps.AuthMw.AuthorizeRole("admin"), siteH.DeleteSite)
			siteRoutes.GET("/:id/open-sessions", sessionH.GetOpenSessionsBySite)
		}

		permitH := handler.NewPermitHandler(deps.Registry)
		permitRoutes := v1.Group("/permits")
		permitRoutes.Use(deps.AuthMw.AuthorizeRole("admin", "operator"))
		{
			permitRoutes.POST("", permitH.CreatePermit)
			permitRoutes.GET("/:id", permitH.GetPermitByID)
			permitRoutes.PUT("/:id", permitH.UpdatePermit)
			permitRoutes.DELETE("/:id", permitH.DeletePermit)
		}

		paymentH := handler.NewPaymentHandler(deps.Registry)
		paymentRoutes := v1.Group("/payments")
		paymentRoutes.Use(deps.AuthMw.AuthorizeRole("admin", "operator"))
		{
			paymentRoutes.POST("", paymentH.CreatePayment)
			paymentRoutes.GET("/:id", paymentH.GetPaymentByID)
			paymentRoutes.DELETE("/:id", paymentH.DeletePayment)
		}

		cameraH := handler.NewCameraHandler(deps.Registry)
		cameraRoutes := v1.Group("/cameras")
		cameraRoutes.Use(deps.AuthMw.AuthorizeRole("admin"))
		{
			cameraRoutes.PUT("", cameraH.RegisterCamera)
			cameraRoutes.GET("", cameraH.GetAllCameras)
			cameraRoutes.GET("/:camera_id", cameraH.GetCameraByCameraID)
		}

		adminH := handler.NewAdminHandler(deps.Reconciler, deps.Reaper, deps.StaleAge)
		adminRoutes := v1.Group("/admin")
		adminRoutes.Use(deps.AuthMw.AuthorizeRole("admin"))
		{
			adminRoutes.POST("/reconcile", adminH.Reconcile)
			adminRoutes.POST("/evaluate-orphan-sessions", adminH.EvaluateOrphanSessions)
			adminRoutes.POST("/reap-stale-sessions", adminH.ReapStaleSessions)
			adminRoutes.GET("/stale-session-stats", adminH.StaleSessionStats)
		}
	}
	return r
}
