package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"edistrict/certificate-portal/portal-backend/internal/applications"
	"edistrict/certificate-portal/portal-backend/internal/auth"
	"edistrict/certificate-portal/portal-backend/internal/certificates"
	"edistrict/certificate-portal/portal-backend/internal/config"
	"edistrict/certificate-portal/portal-backend/internal/documents"
	"edistrict/certificate-portal/portal-backend/internal/notifications"
	"edistrict/certificate-portal/portal-backend/internal/notifications/websocket"
	"edistrict/certificate-portal/portal-backend/internal/reports"
	"edistrict/certificate-portal/portal-backend/internal/settings"
	"edistrict/certificate-portal/portal-backend/pkg/pdf"
	"edistrict/certificate-portal/portal-backend/pkg/security"
	"edistrict/certificate-portal/portal-backend/pkg/storage"
	"edistrict/certificate-portal/portal-backend/pkg/workflows"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file found, relying on environment")
	}

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Connect to database
	dbURL := cfg.Database.GetDatabaseURL()
	logger.Info("Connecting to database",
		zap.String("host", cfg.Database.Host),
		zap.String("db_name", cfg.Database.DBName))
	db, err := sqlx.Connect("postgres", dbURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxConnections)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	gormDB, err := gorm.Open(gormpostgres.Open(dbURL), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to open notifications database", zap.Error(err))
	}

	ctx := context.Background()

	// Notification channels
	wsManager := websocket.NewManager(logger)
	var emailChannel notifications.EmailChannel = notifications.NoopEmailChannel{}
	if cfg.Notifications.EmailEnabled {
		emailChannel, err = notifications.NewSESEmailChannel(ctx, cfg.Notifications.AWSRegion, cfg.Notifications.EmailFrom)
		if err != nil {
			logger.Fatal("Failed to initialize email channel", zap.Error(err))
		}
	}
	var smsChannel notifications.SMSChannel = notifications.NoopSMSChannel{}
	if cfg.Notifications.SMSEnabled {
		smsChannel, err = notifications.NewSNSSMSChannel(ctx, cfg.Notifications.AWSRegion, cfg.Notifications.SMSSenderID)
		if err != nil {
			logger.Fatal("Failed to initialize SMS channel", zap.Error(err))
		}
	}
	notificationService, err := notifications.NewService(gormDB, emailChannel, smsChannel, wsManager, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notifications", zap.Error(err))
	}

	// Document blob store
	s3Client, err := storage.NewS3Client(ctx, storage.S3Options{
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
	})
	if err != nil {
		logger.Fatal("Failed to initialize blob storage", zap.Error(err))
	}

	// Workflow settings
	defaultTrack, err := workflows.ParseTrack(cfg.Workflow.DefaultTrack)
	if err != nil {
		logger.Fatal("Invalid default verification track", zap.Error(err))
	}
	settingsService := settings.NewService(settings.NewRepository(db), defaultTrack, logger)

	// Certificate issuance and verification
	signer := security.NewTokenSigner(cfg.Security.SignatureSecret)
	issuer := certificates.NewIssuer(signer)
	certStore := certificates.NewStore(db)

	// Application workflow engine
	applicationRepo := applications.NewRepository(db)
	applicationService := applications.NewService(
		applicationRepo, issuer, notificationService, settingsService,
		cfg.Workflow.StoreTimeout, logger)

	applicantSource := func(ctx context.Context, applicationID uuid.UUID) (certificates.ApplicantDetails, error) {
		app, err := applicationRepo.GetApplicationByID(ctx, applicationID)
		if err != nil {
			return certificates.ApplicantDetails{}, err
		}
		if app == nil {
			return certificates.ApplicantDetails{}, applications.ErrNotFound
		}
		return certificates.ApplicantDetails{
			FatherName: app.FatherName,
			Address:    app.Address,
			Purpose:    app.Purpose,
		}, nil
	}
	certificateService := certificates.NewService(certStore, issuer, pdf.NewGenerator(),
		applicantSource, cfg.Security.IssuingAuthority, logger)

	// Documents
	documentService := documents.NewService(documents.NewRepository(db), applicationRepo,
		s3Client, cfg.Storage.Bucket, logger)

	// Reporting
	reportService := reports.NewService(reports.NewRepository(db), logger)

	applicationHandler := applications.NewHandler(applicationService)
	certificateHandler := certificates.NewHandler(certificateService)
	documentHandler := documents.NewHandler(documentService)
	settingsHandler := settings.NewHandler(settingsService)
	reportHandler := reports.NewHandler(reportService)

	// Setup Router
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
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

	// Public routes: certificate verification needs no authentication.
	public := router.Group("/api/v1")
	{
		certificateHandler.RegisterPublicRoutes(public)
	}

	// Authenticated routes
	api := router.Group("/api/v1")
	api.Use(auth.Middleware(cfg.Security.JWTSecret))
	{
		applicationHandler.RegisterRoutes(api)
		certificateHandler.RegisterRoutes(api)
		documentHandler.RegisterRoutes(api)

		admin := api.Group("", auth.RequireRoles(workflows.RoleAdmin, workflows.RoleSDO))
		settingsHandler.RegisterRoutes(admin)

		officials := api.Group("", auth.RequireRoles(
			workflows.RoleAdmin, workflows.RoleSDO, workflows.RoleStaffOfficer))
		reportHandler.RegisterRoutes(officials)
	}

	// Live status updates
	router.GET("/ws", func(c *gin.Context) {
		wsManager.HandleConnection(c.Writer, c.Request)
	})

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.String("addr", srv.Addr))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exiting")
}
