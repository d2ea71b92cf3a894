package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"parking_enforcement/internal/api"
	"parking_enforcement/internal/api/handler"
	"parking_enforcement/internal/api/middleware"
	"parking_enforcement/internal/config"
	"parking_enforcement/internal/ingest"
	"parking_enforcement/internal/repository/postgresql"
	"parking_enforcement/internal/service"

	awsgo_config "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

func main() {
	// 1. Load configuration
	cfg := config.Load()
	log.Println("Configuration loaded.")

	// 2. Database connection
	db, err := postgresql.NewDB(cfg)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Database connection established.")

	// 3. AWS SDK config
	awsSDKCfg, err := awsgo_config.LoadDefaultConfig(context.TODO(), awsgo_config.WithRegion(cfg.AWSRegion))
	if err != nil {
		log.Fatalf("Could not load AWS SDK config: %v", err)
	}
	log.Println("AWS SDK config loaded for region:", cfg.AWSRegion)

	// 4. AWS clients
	sqsClient := sqs.NewFromConfig(awsSDKCfg)
	rekognitionClient := rekognition.NewFromConfig(awsSDKCfg)

	// 5. Repositories
	userRepo := postgresql.NewPgUserRepository(db)
	movementRepo := postgresql.NewPgMovementRepository(db)
	sessionRepo := postgresql.NewPgSessionRepository(db)
	decisionRepo := postgresql.NewPgDecisionRepository(db)
	permitRepo := postgresql.NewPgPermitRepository(db)
	paymentRepo := postgresql.NewPgPaymentRepository(db)
	siteRepo := postgresql.NewPgSiteRepository(db)
	cameraRepo := postgresql.NewPgCameraRepository(db)
	auditRepo := postgresql.NewPgAuditLogRepository(db)

	// 6. WebSocket manager for the operator review console
	webSocketManager := handler.NewWebSocketManager()
	go webSocketManager.Start()
	log.Println("WebSocket manager started.")

	// 7. Services
	authService := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiration)
	engine := service.NewDecisionEngine(sessionRepo, decisionRepo, permitRepo, paymentRepo, siteRepo, auditRepo, webSocketManager)
	correlator := service.NewCorrelationService(movementRepo, sessionRepo, siteRepo, cameraRepo, auditRepo, engine)
	corrections := service.NewCorrectionService(movementRepo, sessionRepo, auditRepo, correlator)
	reconciler := service.NewReconciliationService(sessionRepo, decisionRepo, auditRepo, engine)
	registry := service.NewRegistryService(siteRepo, permitRepo, paymentRepo, cameraRepo, reconciler)
	reaper := service.NewReaperService(sessionRepo, auditRepo)
	plateValidator := service.NewPlateValidationService(rekognitionClient, corrections)

	// 8. Auth middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)

	// 9. SQS movement consumer
	var wg sync.WaitGroup
	backgroundCtx, cancelBackground := context.WithCancel(context.Background())

	if cfg.SQSMovementQueueURL == "" {
		log.Println("WARNING: SQS_MOVEMENT_QUEUE_URL is not configured. Queue ingestion disabled.")
	} else {
		sqsConsumer := ingest.NewSQSConsumer(sqsClient, cfg, correlator)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sqsConsumer.Start(backgroundCtx)
			log.Println("SQS consumer stopped.")
		}()
	}

	// 10. Stale session reaper
	wg.Add(1)
	go func() {
		defer wg.Done()
		reaper.Run(backgroundCtx, cfg.ReaperInterval, cfg.StaleAge)
	}()

	// 11. HTTP router and server
	router := api.SetupRouter(api.RouterDeps{
		AuthService:    authService,
		Correlator:     correlator,
		Corrections:    corrections,
		Engine:         engine,
		Registry:       registry,
		Reconciler:     reconciler,
		Reaper:         reaper,
		PlateValidator: plateValidator,
		DecisionRepo:   decisionRepo,
		AuditRepo:      auditRepo,
		AuthMw:         authMiddleware,
		WSManager:      webSocketManager,
		StaleAge:       cfg.StaleAge,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("Server listening on port %s", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancelBackground()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shut down: %v", err)
	}

	log.Println("Waiting for background workers to stop (up to 5 seconds)...")
	done := make(chan struct{})
	go func() {
		defer close(done)
		wg.Wait()
	}()
	select {
	case <-done:
		log.Println("Background workers stopped.")
	case <-time.After(5 * time.Second):
		log.Println("Background workers did not stop in time.")
	}

	log.Println("Server stopped.")
}
