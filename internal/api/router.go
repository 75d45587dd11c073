package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"HustleCollector/internal/domain"
	"HustleCollector/internal/health"
	"HustleCollector/internal/metrics"
	"HustleCollector/internal/usecase"
)

// CaseService is the moderation and query surface the handlers need.
type CaseService interface {
	ListCases(ctx context.Context, q domain.CaseQuery) (usecase.CaseListing, error)
	GetCaseByID(ctx context.Context, id int64) (domain.Case, error)
	GetPublishedCaseByID(ctx context.Context, id int64) (domain.Case, error)
	BatchUpdatePublishStatus(ctx context.Context, ids []int64, approved bool) (int, error)
	ClearAllData(ctx context.Context) (int, error)
	CountCases(ctx context.Context) (int, error)
	BackfillSourceTypes(ctx context.Context) (int, error)
}

// RunController starts collection runs and reports their progress.
type RunController interface {
	Start(ctx context.Context, opts usecase.RunOptions) (string, error)
	Status(runID string) (domain.RunReport, bool)
}

// HealthChecker produces the health payload.
type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

// Deps wires the router to the application services.
type Deps struct {
	Cases        CaseService
	Runs         RunController
	Health       HealthChecker
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	QueryTimeout time.Duration
}

// NewRouter creates and configures the gin router.
func NewRouter(deps Deps) *gin.Engine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(recoveryMiddleware(logger))
	router.Use(loggingMiddleware(logger, deps.Metrics))
	router.Use(corsMiddleware())

	h := &handler{
		cases:   deps.Cases,
		runs:    deps.Runs,
		health:  deps.Health,
		logger:  logger,
		timeout: deps.QueryTimeout,
	}

	router.GET("/health", h.healthCheck)
	router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	public := router.Group("/api/cases")
	{
		public.GET("", h.listPublished)
		public.GET("/:id", h.getPublished)
	}

	admin := router.Group("/api/admin")
	{
		admin.GET("/cases", h.listAll)
		admin.GET("/cases/:id", h.getAny)
		admin.POST("/moderation", h.moderate)
		admin.POST("/collect", h.startCollection)
		admin.GET("/collect/:runId", h.collectionStatus)
		admin.GET("/count", h.count)
		admin.POST("/backfill", h.backfill)
	}

	return router
}

// recoveryMiddleware handles panics.
func recoveryMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("panic recovered", "error", err, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests and counts them per route.
func loggingMiddleware(logger *slog.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequest(c.Request.Method, route, status)

		level := slog.LevelInfo
		if status >= 400 {
			level = slog.LevelWarn
		}
		if status >= 500 {
			level = slog.LevelError
		}
		logger.Log(c.Request.Context(), level, "request completed",
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}

// corsMiddleware lets the moderation UI call the API from another origin.
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Authorization", "Content-Type"},
		MaxAge:          12 * time.Hour,
	})
}
