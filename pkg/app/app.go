// Package app 提供应用程序的初始化和配置功能.
package app

import (
	contextPkg "context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/yeisme/exambridge/pkg/configs"
	"github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/jobs"
	"github.com/yeisme/exambridge/pkg/internal/router"
	"github.com/yeisme/exambridge/pkg/internal/storage"
	"github.com/yeisme/exambridge/pkg/log"
	"github.com/yeisme/exambridge/pkg/metrics"
	"github.com/yeisme/exambridge/pkg/middleware"
	"github.com/yeisme/exambridge/pkg/scheduler"
	"github.com/yeisme/exambridge/pkg/tracing"
)

type App struct {
	Engine    *gin.Engine
	config    *configs.AppConfig
	scheduler *scheduler.Scheduler
}

func NewApp(configPath string) *App {
	// 初始化配置
	if err := configs.InitConfig(configPath); err != nil {
		fmt.Printf("Error initializing config: %v\n", err)
		os.Exit(1)
	}

	config := configs.GetConfig()
	if !config.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	// 初始化追踪
	if err := tracing.InitTracer(config.Tracing); err != nil {
		fmt.Printf("Error initializing tracing: %v\n", err)
		os.Exit(1)
	}

	// 初始化监控
	if err := metrics.InitMetrics(config.Metrics); err != nil {
		fmt.Printf("Error initializing metrics: %v\n", err)
		os.Exit(1)
	}

	ctx := contextPkg.Background()

	manager, err := storage.Init(ctx)
	if err != nil {
		fmt.Printf("Error initializing storage: %v\n", err)
		os.Exit(1)
	}

	ctx = context.WithStorageManager(ctx, manager)

	l := log.Logger()
	gin.DefaultWriter = log.NewGinWriter(l, zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(l, zerolog.ErrorLevel)

	// 后台定时任务：重试队列排空与滞留回收
	sched, err := scheduler.NewScheduler()
	if err != nil {
		fmt.Printf("Error initializing scheduler: %v\n", err)
		os.Exit(1)
	}

	if err := jobs.Register(sched, ctx); err != nil {
		fmt.Printf("Error registering jobs: %v\n", err)
		os.Exit(1)
	}

	engine.Use(
		gin.Recovery(),
		middleware.GinLoggerMiddleware(),
		middleware.CORSMiddleware(config.Server),
		middleware.GzipMiddleware(),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.RateLimitMiddleware(config.RateLimit),
		middleware.StorageMiddleware(manager),
		middleware.SchedulerMiddleware(sched),
	)

	if config.Metrics.Enabled {
		_ = metrics.StartMetricsServer(config.Metrics, engine)
	}

	router.RegisterRoutes(engine, config)

	return &App{
		Engine:    engine,
		config:    config,
		scheduler: sched,
	}
}

func (a *App) Run() error {
	a.scheduler.Start()
	defer func() { _ = a.scheduler.Shutdown() }()

	return a.Engine.Run(fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port))
}
