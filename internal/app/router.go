package app

import (
	"docquiz_backend/docs"
	"docquiz_backend/internal/config"
	"docquiz_backend/internal/middleware"

	"docquiz_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg))
	{
		authGroup.GET("/me", c.auth.GetCurrentUser)

		// 文档
		authGroup.POST("/documents/upload", c.document.Upload)
		authGroup.GET("/documents", c.document.List)
		authGroup.GET("/documents/:id", c.document.Get)

		// 试卷与出题任务
		authGroup.POST("/quizzes/generate", c.quiz.Generate)
		authGroup.GET("/quizzes", c.quiz.List)
		authGroup.GET("/quizzes/:id", c.quiz.Get)
		authGroup.GET("/jobs/:id", c.quiz.JobStatus)

		// 作答
		authGroup.POST("/quizzes/:id/attempts", c.attempt.Start)
		authGroup.GET("/attempts", c.attempt.List)
		authGroup.GET("/attempts/:id", c.attempt.Get)
		authGroup.POST("/attempts/:id/submit", c.attempt.Submit)
	}
}
