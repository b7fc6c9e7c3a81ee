package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hireHub/internal/api/middleware"
	"hireHub/internal/auth"
	"hireHub/internal/config"
	"hireHub/internal/hiring"
	"hireHub/internal/storage"
)

// 登录失败次数按 IP 每小时限流。
const loginRateLimitPerHour = 20

// RegisterRoutes 注册 API 路由，统一挂在 /hiring-management/api 前缀下。
func RegisterRoutes(
	router *gin.Engine,
	cfg *config.Config,
	db *gorm.DB,
	asynqClient *asynq.Client,
	authService *auth.AuthService,
	redisClient redis.UniversalClient,
	logger *slog.Logger,
	storageClient *storage.Client,
) {
	authHandler := NewAuthHandler(db, authService, redisClient, logger, loginRateLimitPerHour)
	jobHandler := NewJobHandler(db)
	candidateHandler := NewCandidateHandler(db, redisClient, storageClient, asynqClient, logger)
	activityHandler := NewActivityHandler(db)
	interviewHandler := NewInterviewHandler(db)
	checklistHandler := NewChecklistHandler(db)
	templateHandler := NewTemplateHandler(db)
	exportHandler := NewExportHandler(db)
	uploadHandler := NewUploadHandler(db, storageClient, asynqClient, redisClient, logger,
		cfg.Uploads.ClamdAddr, cfg.Uploads.MaxBytes, cfg.Uploads.MIMETypes())
	processHandler := NewProcessHandler(hiring.NewStore(db, logger), redisClient, logger)
	wsHandler := NewWsHandler(redisClient, authService, logger, cfg.API.Origins())

	authMiddleware := middleware.AuthMiddleware(authService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()

	base := router.Group("/hiring-management/api")
	{
		base.GET("/ws", wsHandler.HandleConnection)

		authGroup := base.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change-password", authMiddleware, authHandler.ChangePassword)
		}

		protected := base.Group("")
		protected.Use(authMiddleware, passwordGate)
		{
			jobs := protected.Group("/jobs")
			{
				jobs.POST("", jobHandler.CreateJob)
				jobs.GET("", jobHandler.ListJobs)
				jobs.GET("/:id", jobHandler.GetJob)
				jobs.PUT("/:id", jobHandler.UpdateJob)
				jobs.DELETE("/:id", jobHandler.DeleteJob)
			}

			candidates := protected.Group("/candidates")
			{
				candidates.POST("", candidateHandler.CreateCandidate)
				candidates.GET("", candidateHandler.ListCandidates)
				candidates.GET("/export", exportHandler.ExportCandidates)
				candidates.POST("/upload", uploadHandler.UploadCVs)
				candidates.GET("/:id", candidateHandler.GetCandidate)
				candidates.PUT("/:id", candidateHandler.UpdateCandidate)
				candidates.DELETE("/:id", candidateHandler.DeleteCandidate)
				candidates.PUT("/:id/stage", candidateHandler.MoveStage)
				candidates.GET("/:id/cv-link", candidateHandler.GetCVLink)
				candidates.POST("/:id/email", candidateHandler.SendEmail)
				candidates.GET("/:id/activities", activityHandler.ListActivities)
				candidates.POST("/:id/notes", activityHandler.CreateNote)
				candidates.POST("/:id/checklists", checklistHandler.InstantiateForCandidate)
				candidates.GET("/:id/checklists", checklistHandler.ListForCandidate)
			}

			process := protected.Group("/process")
			{
				process.POST("", processHandler.ProcessBatch)
				process.POST("/resolve", processHandler.ResolveDuplicates)
			}

			interviews := protected.Group("/interviews")
			{
				interviews.POST("", interviewHandler.CreateInterview)
				interviews.GET("", interviewHandler.ListInterviews)
				interviews.PUT("/:id", interviewHandler.UpdateInterview)
				interviews.DELETE("/:id", interviewHandler.DeleteInterview)
			}

			checklists := protected.Group("/checklists")
			{
				checklists.POST("/templates", checklistHandler.CreateTemplate)
				checklists.GET("/templates", checklistHandler.ListTemplates)
				checklists.DELETE("/templates/:id", checklistHandler.DeleteTemplate)
				checklists.PUT("/:id/items", checklistHandler.ToggleItem)
			}

			templates := protected.Group("/templates")
			{
				templates.POST("", templateHandler.CreateTemplate)
				templates.GET("", templateHandler.ListTemplates)
				templates.GET("/:id", templateHandler.GetTemplate)
				templates.PUT("/:id", templateHandler.UpdateTemplate)
				templates.DELETE("/:id", templateHandler.DeleteTemplate)
			}
		}
	}
}
