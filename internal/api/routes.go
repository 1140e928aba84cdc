package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/namishanaseem-clustox/ATS/internal/api/middleware"
	"github.com/namishanaseem-clustox/ATS/internal/auth"
	"github.com/namishanaseem-clustox/ATS/internal/database"
	"github.com/namishanaseem-clustox/ATS/internal/pipeline"
	"github.com/namishanaseem-clustox/ATS/internal/requisition"
)

// RouteDeps 汇总注册路由所需的依赖。
type RouteDeps struct {
	DB                    *gorm.DB
	AsynqClient           *asynq.Client
	AuthService           *auth.AuthService
	RedisClient           redis.UniversalClient
	Logger                *slog.Logger
	AllowedOrigins        []string
	LoginRateLimitPerHour int
	LoginLockThreshold    int
	LoginLockTTL          time.Duration
	CookieDomain          string
}

// RegisterRoutes 注册 API 路由，不包含 /api 前缀。
func RegisterRoutes(router *gin.Engine, deps RouteDeps) {
	templateService := pipeline.NewTemplateService(deps.DB)
	migrator := pipeline.NewMigrator(deps.DB)
	requisitionService := requisition.NewService(deps.DB)

	authHandler := NewAuthHandler(deps.DB, deps.AuthService, deps.RedisClient, deps.Logger,
		deps.LoginRateLimitPerHour, deps.LoginLockThreshold, deps.LoginLockTTL, deps.CookieDomain)
	pipelineHandler := NewPipelineHandler(templateService, migrator)
	jobHandler := NewJobHandler(deps.DB, templateService)
	requisitionHandler := NewRequisitionHandler(requisitionService, deps.AsynqClient, deps.Logger)
	wsHandler := NewWsHandler(deps.RedisClient, deps.AuthService, deps.Logger, deps.AllowedOrigins)

	authMiddleware := middleware.AuthMiddleware(deps.AuthService)
	passwordGate := middleware.RequirePasswordChangeCompletedMiddleware()
	staffOnly := middleware.RequireRoles(database.RoleOwner, database.RoleHR)
	anyStaff := middleware.RequireRoles(database.RoleOwner, database.RoleHR, database.RoleHiringManager)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
			authGroup.POST("/change_password", authMiddleware, authHandler.ChangePassword)
		}

		pipelineGroup := v1.Group("/pipeline")
		pipelineGroup.Use(authMiddleware, passwordGate)
		{
			pipelineGroup.GET("/templates", pipelineHandler.ListTemplates)
			pipelineGroup.POST("/templates", staffOnly, pipelineHandler.CreateTemplate)
			pipelineGroup.PUT("/templates/:id", staffOnly, pipelineHandler.UpdateTemplate)
			pipelineGroup.DELETE("/templates/:id", staffOnly, pipelineHandler.DeleteTemplate)

			pipelineGroup.GET("/stages", pipelineHandler.ListStages)
			pipelineGroup.POST("/stages", staffOnly, pipelineHandler.CreateStage)
			pipelineGroup.PUT("/stages/:id", staffOnly, pipelineHandler.UpdateStage)
			pipelineGroup.DELETE("/stages/:id", staffOnly, pipelineHandler.DeleteStage)
		}

		jobGroup := v1.Group("/jobs")
		jobGroup.Use(authMiddleware, passwordGate)
		{
			jobGroup.GET("", jobHandler.List)
			jobGroup.POST("", anyStaff, jobHandler.Create)
			jobGroup.GET("/:id", jobHandler.Get)
			jobGroup.PUT("/:id", anyStaff, jobHandler.Update)
			jobGroup.DELETE("/:id", staffOnly, jobHandler.Delete)
			jobGroup.POST("/:id/clone", anyStaff, jobHandler.Clone)

			jobGroup.GET("/:id/pipeline", pipelineHandler.GetJobPipeline)
			jobGroup.PUT("/:id/pipeline", anyStaff, pipelineHandler.OverwriteJobPipeline)
			jobGroup.POST("/:id/pipeline/sync", anyStaff, pipelineHandler.SyncJobPipeline)
			jobGroup.POST("/:id/pipeline/template", anyStaff, pipelineHandler.SwitchJobTemplate)

			jobGroup.GET("/:id/candidates", jobHandler.ListApplications)
			jobGroup.POST("/:id/candidates", anyStaff, jobHandler.CreateApplication)
			jobGroup.PUT("/:id/candidates/:candidateID/stage", anyStaff, jobHandler.MoveApplicationStage)
		}

		requisitionGroup := v1.Group("/requisitions")
		requisitionGroup.Use(authMiddleware, passwordGate)
		{
			requisitionGroup.GET("", requisitionHandler.List)
			requisitionGroup.POST("", requisitionHandler.Create)
			requisitionGroup.GET("/:id", requisitionHandler.Get)
			requisitionGroup.PUT("/:id", requisitionHandler.Update)
			requisitionGroup.POST("/:id/submit", requisitionHandler.Submit)
			requisitionGroup.POST("/:id/approve", requisitionHandler.Approve)
			requisitionGroup.POST("/:id/reject", requisitionHandler.Reject)
			requisitionGroup.POST("/:id/convert", requisitionHandler.Convert)
		}
	}
}
