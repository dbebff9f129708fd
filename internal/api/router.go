package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmagar/editcount/docs"
	"github.com/jmagar/editcount/internal/api/handlers"
	"github.com/jmagar/editcount/internal/api/middleware"
	"github.com/jmagar/editcount/internal/services"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

const Version = "1.0.0"

type RouterConfig struct {
	ScanService *services.ScanService
	Broadcaster *services.Broadcaster
	Logger      *zap.Logger

	Title string
	// JWTSecret enables bearer authentication on the scan control routes
	JWTSecret     string
	ScanRateLimit int
	Production    bool
}

// NewRouter wires every route. cleanup stops background helpers owned by the router.
func NewRouter(cfg RouterConfig) (router *gin.Engine, cleanup func()) {
	if cfg.Production {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.L()
	}
	if cfg.ScanRateLimit <= 0 {
		cfg.ScanRateLimit = 6
	}

	router = gin.New()

	dashboardHandler := handlers.NewDashboardHandler(cfg.ScanService, cfg.Broadcaster, cfg.Title, cfg.Logger)
	scanHandler := handlers.NewScanHandler(cfg.ScanService, cfg.Logger)
	limiter := middleware.NewRateLimiter(cfg.ScanRateLimit, time.Minute)

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler(cfg.Logger))
	router.Use(middleware.SecurityHeaders())

	router.GET("/", middleware.NoCache(), dashboardHandler.Index)
	router.GET("/health", middleware.HealthCheck(Version))

	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Version = Version
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/counts", middleware.NoCache(), dashboardHandler.GetCounts)
		v1.GET("/events", dashboardHandler.Events)
		v1.GET("/scans", middleware.Timeout(10*time.Second), scanHandler.ListScanRuns)

		scan := v1.Group("/scan")
		if cfg.JWTSecret != "" {
			scan.Use(middleware.JWTAuth(cfg.JWTSecret))
		}
		scan.Use(middleware.RateLimit(limiter))
		{
			scan.POST("", scanHandler.StartScan)
			scan.GET("/jobs", scanHandler.ListScanJobs)
			scan.GET("/:job_id", scanHandler.GetScanStatus)
			scan.DELETE("/:job_id", scanHandler.CancelScan)
		}
	}

	return router, limiter.Stop
}
