package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/handler"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Assessment    *handler.AssessmentHandler
	StudentPortal *handler.StudentPortalHandler
	Result        *handler.ResultHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(response.AccessLog(log))
	router.Use(metrics.MetricsMiddleware())
	router.Use(middleware.Brotli())

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.PrometheusHandler())

	// ─── 1. Student Group (JWT, Rate Limited) ──────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		limiter.Middleware(),
		middleware.RequireStudentJWT(authService),
	)
	{
		studentAPI.GET("/assessments", handlers.StudentPortal.ListAssessments)
		studentAPI.GET("/assessments/:assessment_id/paper",
			middleware.CacheControl("private", 60),
			handlers.StudentPortal.GetPaper,
		)
		studentAPI.GET("/attempts", handlers.StudentPortal.ListAttempts)
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		limiter.Middleware(),
		middleware.RequireStudentWSAuth(authService),
	)
	{
		ws.GET("/student/assessments/:assessment_id/take", handlers.WS.TakeAssessment)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(authService))
	{
		adminAPI.GET("/assessments",
			middleware.RequirePermission(model.PermissionAssessmentsRead),
			handlers.Assessment.ListAssessments,
		)
		adminAPI.POST("/assessments",
			middleware.RequirePermission(model.PermissionAssessmentsWrite),
			handlers.Assessment.CreateAssessment,
		)
		adminAPI.GET("/assessments/:assessment_id",
			middleware.RequirePermission(model.PermissionAssessmentsRead),
			handlers.Assessment.GetAssessment,
		)
		adminAPI.POST("/assessments/:assessment_id/publish",
			middleware.RequirePermission(model.PermissionAssessmentsPublish),
			handlers.Assessment.PublishAssessment,
		)

		results := adminAPI.Group("/assessments/:assessment_id/results")
		{
			results.GET("", middleware.RequirePermission(model.PermissionResultsRead), handlers.Result.ListResults)
			results.GET("/summary", middleware.RequirePermission(model.PermissionResultsRead), handlers.Result.GetSummary)
			results.GET("/export", middleware.RequirePermission(model.PermissionResultsExport), handlers.Result.ExportResults)
		}
	}

	return router
}
