package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/uniplan/coresched/api/swagger"
	internalhandler "github.com/uniplan/coresched/internal/handler"
	internalmiddleware "github.com/uniplan/coresched/internal/middleware"
	"github.com/uniplan/coresched/internal/repository"
	"github.com/uniplan/coresched/internal/service"
	"github.com/uniplan/coresched/pkg/cache"
	"github.com/uniplan/coresched/pkg/config"
	"github.com/uniplan/coresched/pkg/database"
	"github.com/uniplan/coresched/pkg/jobs"
	"github.com/uniplan/coresched/pkg/logger"
	corsmiddleware "github.com/uniplan/coresched/pkg/middleware/cors"
	reqidmiddleware "github.com/uniplan/coresched/pkg/middleware/requestid"
)

// @title Uniplan Coresched API
// @version 0.1.0
// @description Timetable generation core: prerequisite validation, capacity analysis, and CP-SAT-style solve orchestration.
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	metricsSvc := service.NewMetricsService()
	metricsHandler := internalhandler.NewMetricsHandler(metricsSvc)

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to initialise database", "error", err)
	}
	defer db.Close()

	rdb, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("catalog cache disabled", "error", err)
		rdb = nil
	} else {
		defer rdb.Close()
	}

	snapshotRepo := repository.NewSnapshotRepository(db)
	cachedSnapshotRepo := repository.NewCachedSnapshotRepository(snapshotRepo, rdb)
	runRepo := repository.NewRunRepository(db)
	fixedEntryRepo := repository.NewFixedEntryRepository(db)
	specialAllotmentRepo := repository.NewSpecialAllotmentRepository(db)
	sectionBreakRepo := repository.NewSectionBreakRepository(db)

	queueCfg := jobs.QueueConfig{
		Workers:    cfg.Scheduler.AsyncSolveWorkers,
		BufferSize: cfg.Scheduler.AsyncSolveWorkers * 4,
		MaxRetries: 0,
		RetryDelay: 5 * time.Second,
		Logger:     logr,
	}

	// schedulerSvc is captured by the queue handler closure below and
	// assigned once NewCoreSchedulerService returns, breaking the
	// otherwise-circular dependency between the queue and its own handler.
	var schedulerSvc *service.CoreSchedulerService
	solveQueue := jobs.NewQueue("solve", func(ctx context.Context, job jobs.Job) error {
		return schedulerSvc.AsyncSolveHandler(ctx, job)
	}, queueCfg)

	schedulerSvc = service.NewCoreSchedulerService(service.Deps{
		Repos:             cachedSnapshotRepo,
		TrackSubjects:     cachedSnapshotRepo,
		Runs:              runRepo,
		FixedEntries:      fixedEntryRepo,
		SpecialAllotments: specialAllotmentRepo,
		SectionBreaks:     sectionBreakRepo,
		Queue:             solveQueue,
		Metrics:           metricsSvc,
		Logger:            logr,
	})

	queueCtx, cancelQueue := context.WithCancel(context.Background())
	solveQueue.Start(queueCtx)
	defer func() {
		cancelQueue()
		solveQueue.Stop()
	}()

	timetableHandler := internalhandler.NewTimetableHandler(schedulerSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	timetable := api.Group("/timetable")

	runs := timetable.Group("/runs")
	runs.POST("/generate", timetableHandler.Generate)
	runs.POST("/solve", timetableHandler.Solve)
	runs.POST("/solve-async", timetableHandler.SolveAsync)
	runs.GET("", timetableHandler.ListRuns)
	runs.GET("/:id/entries", timetableHandler.GetRunEntries)
	runs.GET("/:id/conflicts", timetableHandler.GetRunConflicts)

	fixedEntries := timetable.Group("/fixed-entries")
	fixedEntries.PUT("/:id", timetableHandler.UpsertFixedEntry)
	fixedEntries.DELETE("/:id", timetableHandler.DeleteFixedEntry)

	specialAllotments := timetable.Group("/special-allotments")
	specialAllotments.PUT("/:id", timetableHandler.UpsertSpecialAllotment)
	specialAllotments.DELETE("/:id", timetableHandler.DeleteSpecialAllotment)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
