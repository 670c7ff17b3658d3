package app

import (
	"context"
	"exam_engine_backend/internal/config"
	"exam_engine_backend/internal/repository"
	"exam_engine_backend/internal/service"
	"exam_engine_backend/pkg/configwatcher"
	"exam_engine_backend/pkg/database"
	"exam_engine_backend/pkg/logger"
	"exam_engine_backend/pkg/monitoring"
	"exam_engine_backend/pkg/tracing"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// App wires the engine together. It deliberately has no HTTP routing layer;
// the embedding application decides how operations are exposed. The server
// it runs only serves metrics and health.
type App struct {
	Config *config.Config
	DB     *gorm.DB
	Redis  *redis.Client

	Exercises      *service.ExerciseService
	Templates      *service.EventTemplateService
	Events         *service.EventService
	Selection      *service.SelectionService
	Instances      *service.EventInstanceService
	Participations *service.ParticipationService
	Assessments    *service.AssessmentService
	Execution      *service.CodeExecutionService

	tracerProvider *sdktrace.TracerProvider
}

type repositories struct {
	exercise      *repository.ExerciseRepository
	event         *repository.EventRepository
	instance      *repository.EventInstanceRepository
	participation *repository.ParticipationRepository
}

func initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		exercise:      repository.NewExerciseRepository(db),
		event:         repository.NewEventRepository(db),
		instance:      repository.NewEventInstanceRepository(db),
		participation: repository.NewParticipationRepository(db),
	}
}

func (a *App) initServices(repos *repositories, cfg *config.Config, rdb *redis.Client) {
	a.Exercises = service.NewExerciseService(repos.exercise)
	a.Templates = service.NewEventTemplateService(repos.event)
	a.Events = service.NewEventService(repos.event)
	a.Selection = service.NewSelectionService(repos.exercise)
	a.Instances = service.NewEventInstanceService(repos.instance, repos.exercise, repos.event, a.Selection)
	a.Participations = service.NewParticipationService(repos.participation, repos.instance)
	a.Assessments = service.NewAssessmentService(repos.participation, repos.instance, rdb)

	runner := service.NewHTTPCodeRunner(cfg.Runner)
	a.Execution = service.NewCodeExecutionService(
		repos.participation,
		a.Participations,
		runner,
		executionLimiter(cfg.RateLimit),
	)
}

// executionLimiter converts the configured window into a token bucket.
func executionLimiter(cfg config.RateLimitConfig) *rate.Limiter {
	if cfg.MaxRequests <= 0 || cfg.WindowMinutes <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	perSecond := float64(cfg.MaxRequests) / (float64(cfg.WindowMinutes) * 60)
	return rate.NewLimiter(rate.Limit(perSecond), cfg.MaxRequests)
}

func NewApp(cfg *config.Config) *App {
	logger.InitLogger(cfg)

	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database, database.ShouldMigrate(cfg.Server.Mode, cfg.ForceMigrate))
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

	repos := initRepositories(db)
	app.initServices(repos, cfg, rdb)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("exam-engine", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			logger.Log.Fatal("Failed to initialize tracing", zap.Error(err))
		}
		app.tracerProvider = tp
	}

	return app
}

func (a *App) Run() {
	// 热加载仅覆盖可安全在线调整的配置项
	go configwatcher.WatchConfig("configs/config.yaml", a.Config, func(raw interface{}) {
		newCfg, ok := raw.(*config.Config)
		if !ok {
			return
		}
		a.Config.RateLimit = newCfg.RateLimit
		a.Execution.Limiter.SetLimit(executionLimiter(newCfg.RateLimit).Limit())
		logger.Log.Info("config reloaded", zap.Int("rateLimitMaxRequests", newCfg.RateLimit.MaxRequests))
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		sqlDB, err := a.DB.DB()
		if err != nil || sqlDB.PingContext(r.Context()) != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:    ":" + a.Config.Server.Port,
		Handler: mux,
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

	// 等待在途的代码执行作业落盘
	if a.Execution != nil {
		a.Execution.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	if a.tracerProvider != nil {
		if err := a.tracerProvider.Shutdown(ctx); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}

	log.Println("Server exiting")
}
