package internal

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perkloop/pkg/cache"
	"perkloop/pkg/config"
	"perkloop/pkg/database"
	"perkloop/pkg/jwt"
	"perkloop/pkg/logger"
	"perkloop/pkg/middleware"
	"perkloop/pkg/queue"
	redemptionHTTP "perkloop/services/redemption/internal/controller/http"
	"perkloop/services/redemption/internal/repo/persistent"
	"perkloop/services/redemption/internal/usecase"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

type App struct {
	cfg         *config.Config
	log         *logger.Logger
	db          *gorm.DB
	redisClient *redis.Client
	queueClient *queue.Client
	jwtService  *jwt.Service
	sweeper     gocron.Scheduler
}

func NewApp(cfg *config.Config) (*App, error) {
	log := logger.New()

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		return nil, err
	}

	redisClient, err := cache.NewRedisClient(cfg)
	if err != nil {
		log.Error("Failed to connect to redis: %v (continuing without rate limiting)", err)
		redisClient = nil
	}

	queueClient, err := queue.NewRabbitMQClient(cfg, log)
	if err != nil {
		log.Error("Failed to connect to RabbitMQ: %v (continuing without queue)", err)
		queueClient = nil
	}

	return &App{
		cfg:         cfg,
		log:         log,
		db:          db,
		redisClient: redisClient,
		queueClient: queueClient,
		jwtService:  jwt.NewService(cfg.JWTSecret),
	}, nil
}

func (a *App) Run() error {
	// Initialize repositories
	redemptionRepo := persistent.NewRedemptionRepository(a.db)
	ledgerRepo := persistent.NewLedgerRepository(a.db)

	// Initialize use cases
	var publisher usecase.NotificationPublisher
	if a.queueClient != nil {
		publisher = a.queueClient
	}
	redemptionUseCase := usecase.NewRedemptionUseCase(
		redemptionRepo,
		ledgerRepo,
		publisher,
		a.cfg.RedemptionTTL,
		a.log,
	)

	// Daily sweep for stale pending redemptions
	sweeper, err := usecase.StartSweeper(redemptionUseCase, a.log, a.cfg.SweepHour)
	if err != nil {
		a.log.Error("Failed to start sweeper: %v", err)
		return err
	}
	a.sweeper = sweeper

	// Initialize HTTP handlers
	redemptionHandler := redemptionHTTP.NewRedemptionHandler(redemptionUseCase, a.log)

	// Setup router
	r := gin.Default()

	// CORS middleware
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * 3600,
	}))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(a.jwtService))
	if a.redisClient != nil {
		api.Use(middleware.RateLimitMiddleware(a.redisClient, 100, time.Minute))
	}

	{
		api.POST("/redemptions", redemptionHandler.CreateRedemption)
		api.GET("/redemptions", redemptionHandler.ListRedemptions)
		api.GET("/redemptions/:id", redemptionHandler.GetRedemption)
		api.GET("/redemptions/:id/hold", redemptionHandler.GetHold)
		api.POST("/redemptions/:id/process", redemptionHandler.ProcessRedemption)
		api.POST("/redemptions/:id/cancel", redemptionHandler.CancelRedemption)
		api.PATCH("/redemptions/:id/notes", redemptionHandler.UpdateNotes)
		api.GET("/seller/redemptions", redemptionHandler.ListSellerRedemptions)
		api.GET("/balance/:seller_id", redemptionHandler.GetBalance)
		api.GET("/transactions", redemptionHandler.GetTransactions)
	}

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + a.cfg.ServerPort,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		a.log.Info("Redemption service starting on port %s", a.cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Failed to start server: %v", err)
			panic(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	a.log.Info("Shutting down redemption service...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.sweeper != nil {
		if err := a.sweeper.Shutdown(); err != nil {
			a.log.Error("Error stopping sweeper: %v", err)
		}
	}

	if a.queueClient != nil {
		if err := a.queueClient.Close(); err != nil {
			a.log.Error("Error closing queue: %v", err)
		}
	}

	sqlDB, err := a.db.DB()
	if err == nil {
		if err := sqlDB.Close(); err != nil {
			a.log.Error("Error closing database: %v", err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Error("Error closing Redis: %v", err)
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		a.log.Error("Server forced to shutdown: %v", err)
		return err
	}

	a.log.Info("Redemption service exited")
	return nil
}
