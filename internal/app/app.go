package app

import (
	"context"
	"docquiz_backend/internal/config"
	"docquiz_backend/internal/controller"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/service"
	"docquiz_backend/internal/worker"
	"docquiz_backend/pkg/database"
	"docquiz_backend/pkg/logger"
	"docquiz_backend/pkg/monitoring"
	"docquiz_backend/pkg/queue"
	"docquiz_backend/pkg/security"
	"docquiz_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client
	Worker *worker.Pool
}

type repositories struct {
	user     *repository.UserRepository
	document *repository.DocumentRepository
	job      *repository.JobRepository
	quiz     *repository.QuizRepository
	attempt  *repository.AttemptRepository
}

type services struct {
	auth       *service.AuthService
	storage    *service.StorageService
	document   *service.DocumentService
	extraction *service.ExtractionService
	ai         *service.AIService
	quiz       *service.QuizService
	attempt    *service.AttemptService
}

type controllers struct {
	auth     *controller.AuthController
	document *controller.DocumentController
	quiz     *controller.QuizController
	attempt  *controller.AttemptController
	health   *controller.HealthController
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:     repository.NewUserRepository(db),
		document: repository.NewDocumentRepository(db),
		job:      repository.NewJobRepository(db),
		quiz:     repository.NewQuizRepository(db),
		attempt:  repository.NewAttemptRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, db *gorm.DB, jobQueue queue.Queue) *services {
	s := &services{}

	s.storage = service.NewStorageService(cfg)
	s.auth = service.NewAuthService(repos.user, cfg)
	s.document = service.NewDocumentService(repos.document, s.storage)
	s.extraction = service.NewExtractionService(repos.document, s.storage, service.PDFParser{})
	s.ai = service.NewAIService(cfg.AI)
	s.quiz = service.NewQuizService(repos.job, repos.quiz, repos.document, jobQueue, db)
	s.attempt = service.NewAttemptService(repos.attempt, repos.quiz, db)

	return s
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:     controller.NewAuthController(s.auth),
		document: controller.NewDocumentController(s.document, a.Config),
		quiz:     controller.NewQuizController(s.quiz),
		attempt:  controller.NewAttemptController(s.attempt),
		health:   controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())

	maxRequests := cfg.RateLimit.MaxRequests
	if maxRequests <= 0 {
		maxRequests = 100000
	}
	window := time.Duration(cfg.RateLimit.WindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Minute
	}
	router.Use(security.RateLimiter(maxRequests, window))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
		log.Fatalf("Failed to initialize database: %v", err)
	}

	rdb, err := database.InitRedis(&cfg.Redis)
	if err != nil {
		logger.Log.Fatal("Failed to initialize redis", zap.Error(err))
		log.Fatalf("Failed to initialize redis: %v", err)
	}

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
	}

	jobQueue := queue.NewRedisQueue(rdb, "generation")

	repos := app.initRepositories(db)
	services := app.initServices(repos, cfg, db, jobQueue)
	controllers := app.initControllers(services, db, rdb)

	// 出题任务消费者，和 HTTP 服务同进程运行
	app.Worker = worker.NewPool(
		cfg.Queue,
		jobQueue,
		repos.job,
		repos.quiz,
		repos.document,
		services.extraction,
		services.ai,
		db,
	)

	// 监控初始化
	monitoring.Init()

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()
	app.Router = router

	app.setupMiddlewares(router, cfg)

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("docquiz-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.RegisterShutdownHook(func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
			}
		})
	}

	app.registerRoutes(router, controllers, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	return app
}

var shutdownHooks []func()

func (a *App) RegisterShutdownHook(hook func()) {
	shutdownHooks = append(shutdownHooks, hook)
}

func (a *App) Run() {
	a.Worker.Start()

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: a.Router,
	}

	// 启动服务器
	go func() {
		log.Printf("Server running on port %s", a.Config.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// 先停 worker，等在途任务跑完再关 HTTP
	a.Worker.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	for _, hook := range shutdownHooks {
		hook()
	}

	log.Println("Server exiting")
}
