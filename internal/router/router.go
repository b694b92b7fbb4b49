package router

import (
	"context"
	"net/http"
	"time"

	"github.com/examhall/examhall-backend/internal/config"
	"github.com/examhall/examhall-backend/internal/handler"
	"github.com/examhall/examhall-backend/internal/middleware"
	"github.com/examhall/examhall-backend/internal/model"
	"github.com/examhall/examhall-backend/internal/response"
	"github.com/examhall/examhall-backend/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth        *handler.AuthHandler
	Examinee    *handler.ExamineeHandler
	Exam        *handler.ExamHandler
	Leaderboard *handler.LeaderboardStreamHandler
	Admin       *handler.AdminHandler
	Monitor     *handler.MonitorHandler
	Dashboard   *handler.DashboardHandler
	System      *handler.SystemHandler
	Media       *handler.MediaHandler
	WS          *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// ctx bounds background work owned by middlewares such as the rate limiter.
func SetupRouter(
	ctx context.Context,
	authService *service.AuthService,
	handlers *Handlers,
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
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Request id, request-scoped logger and access log for every response.
	router.Use(response.RequestIDMiddleware(log))

	router.Use(middleware.Brotli())

	// Uploaded images get random names, so they can be cached forever.
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", cfg.UploadDir)
	}

	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireAuth := []gin.HandlerFunc{
		middleware.RequireJWT(authService),
		middleware.RejectRevoked(authService),
	}

	// ─── 1. Auth Group (Rate Limited) ──────────────────────────────────
	authLimiter := middleware.NewRateLimiter(ctx, cfg.AuthRateLimitPerMinute, time.Minute)

	auth := router.Group("/api/v1/auth")
	{
		auth.POST("/register", authLimiter.Middleware(), handlers.Auth.Register)
		auth.POST("/login", authLimiter.Middleware(), handlers.Auth.Login)

		auth.GET("/me", append(requireAuth, handlers.Auth.Me)...)
		auth.POST("/logout", append(requireAuth, handlers.Auth.Logout)...)
	}

	api := router.Group("/api/v1")
	api.Use(requireAuth...)

	// ─── 2. Examinee Routes ────────────────────────────────────────────
	take := middleware.RequirePermission(model.PermissionExamsTake)
	{
		api.GET("/exam/by-code", take, handlers.Examinee.ExamByCode)
		api.POST("/submit-exam", take, handlers.Examinee.SubmitExam)
		api.GET("/leaderboard", middleware.NoStore(), handlers.Examinee.Leaderboard)
		api.GET("/previous-attempts", take, middleware.NoStore(), handlers.Examinee.PreviousAttempts)
		api.GET("/previous-attempts/:attempt_id", take, middleware.NoStore(), handlers.Examinee.AttemptDetail)
		api.POST("/exams/:exam_id/start", take, handlers.Examinee.StartExam)
		api.GET("/exams/:exam_id/state", take, middleware.NoStore(), handlers.Examinee.ExamState)
	}

	// ─── 3. Examiner Routes ────────────────────────────────────────────
	api.GET("/my-exams",
		middleware.RequirePermission(model.PermissionExamsWriteOwn),
		handlers.Exam.MyExams,
	)

	examiner := api.Group("/examiner")
	examiner.Use(middleware.RequirePermission(model.PermissionExamsWriteOwn))
	{
		examiner.POST("/exams", handlers.Exam.CreateExam)
		examiner.GET("/exams/:exam_id", handlers.Exam.GetExam)
		examiner.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		examiner.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		examiner.GET("/exams/:exam_id/leaderboard", middleware.NoStore(), handlers.Exam.ExamLeaderboard)
		examiner.GET("/exams/:exam_id/leaderboard/live", handlers.Leaderboard.Stream)
		examiner.GET("/exams/:exam_id/sessions", middleware.NoStore(), handlers.Monitor.ExamSessions)

		examiner.POST("/media/upload",
			middleware.RequirePermission(model.PermissionMediaUpload),
			handlers.Media.UploadMedia,
		)
	}

	// ─── 4. Admin Group (RBAC) ─────────────────────────────────────────
	admin := api.Group("/admin")
	{
		admin.GET("/dashboard",
			middleware.RequirePermission(model.PermissionUsersRead),
			middleware.NoStore(),
			handlers.Dashboard.GetDashboardData,
		)
		admin.GET("/system/metrics",
			middleware.RequirePermission(model.PermissionUsersRead),
			handlers.System.SystemMetricsSSE,
		)
		admin.GET("/users",
			middleware.RequirePermission(model.PermissionUsersRead),
			handlers.Admin.ListUsers,
		)
		admin.DELETE("/users/:id",
			middleware.RequirePermission(model.PermissionUsersWrite),
			handlers.Admin.DeleteUser,
		)
		admin.GET("/exams",
			middleware.RequirePermission(model.PermissionExamsReadAll),
			handlers.Admin.ListExams,
		)
		admin.GET("/exams/:exam_id",
			middleware.RequirePermission(model.PermissionExamsReadAll),
			handlers.Admin.GetExam,
		)
		admin.DELETE("/exams/:exam_id",
			middleware.RequirePermission(model.PermissionExamsDeleteAll),
			handlers.Admin.DeleteExam,
		)
	}

	// ─── 5. WebSocket Group (token in query) ───────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(
		middleware.RequireWSAuth(authService),
		middleware.RejectRevoked(authService),
		middleware.RequirePermission(model.PermissionExamsTake),
	)
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	return router
}
