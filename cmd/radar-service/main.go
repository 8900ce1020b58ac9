package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"radar-service/internal/cache"
	"radar-service/internal/config"
	"radar-service/internal/db"
	"radar-service/internal/ftp"
	httpapi "radar-service/internal/http"
	"radar-service/internal/ingest"
	"radar-service/internal/linkage"
	"radar-service/internal/publish"
	"radar-service/internal/repository"
	"radar-service/internal/scheduler"
	"radar-service/internal/service"
	"radar-service/internal/warmer"
)

func main() {
	cfg, err := config.Load(os.Getenv("RADAR_CONFIG_DIR"))
	if err != nil {
		l := zerolog.New(os.Stderr)
		l.Fatal().Err(err).Msg("load config")
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis connect")
	}

	amqpConn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("amqp connect")
	}
	defer amqpConn.Close()
	amqpCh, err := amqpConn.Channel()
	if err != nil {
		log.Fatal().Err(err).Msg("amqp channel")
	}
	if err := amqpCh.ExchangeDeclare(cfg.AMQP.Exchange, "topic", true, false, false, false, nil); err != nil {
		log.Fatal().Err(err).Msg("amqp exchange declare")
	}

	detectionRepo := repository.NewDetectionRepository(gdb)
	locationRepo := repository.NewLocationRepository(gdb)
	cacheStore := cache.NewStore(rdb, log.With().Str("component", "cache").Logger())

	publisher := publish.NewPublisher(
		amqpCh, cfg.AMQP.Exchange, cfg.AMQP.RoutingKey, cfg.Ingest.FreshnessWindow,
		log.With().Str("component", "publisher").Logger())

	synchronizer := ftp.NewSynchronizer(
		cfg.FTP, cfg.Ingest.WindowDays, nil,
		log.With().Str("component", "ftp").Logger())

	orchestrator := ingest.NewOrchestrator(
		synchronizer, locationRepo, detectionRepo, publisher,
		log.With().Str("component", "ingest").Logger())

	linkageJob := linkage.NewJob(
		detectionRepo, cfg.Linkage.BatchSize, cfg.Linkage.MaxIterations, cfg.Linkage.BatchPause,
		log.With().Str("component", "linkage").Logger())

	cacheWarmer := warmer.New(
		detectionRepo, cacheStore, cfg.Cache,
		log.With().Str("component", "warmer").Logger())

	sched := scheduler.New(cfg.Scheduler.Workers, log.With().Str("component", "scheduler").Logger())
	sched.Register(scheduler.Job{
		Name:       "ingestion-cycle",
		Interval:   cfg.Ingest.Interval,
		RunAtStart: true,
		Run:        orchestrator.RunCycle,
	})
	sched.Register(scheduler.Job{
		Name:     "location-linkage",
		Interval: cfg.Linkage.Interval,
		Run:      linkageJob.Run,
	})
	sched.Register(scheduler.Job{
		Name:       "filter-cache-warmup",
		Interval:   cfg.Cache.WarmupInterval,
		RunAtStart: true,
		Run:        cacheWarmer.Run,
	})
	sched.Register(scheduler.Job{
		Name:     "heartbeat",
		Interval: time.Minute,
		Run: func(context.Context) error {
			log.Debug().Msg("heartbeat")
			return nil
		},
	})
	sched.Start(ctx)

	radarService := service.NewRadarService(
		detectionRepo, locationRepo, cacheStore, cfg.Cache,
		log.With().Str("component", "service").Logger())

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpapi.CORSMiddleware(cfg.Server))

	handler := httpapi.NewHandler(radarService, cfg, log.With().Str("component", "http").Logger())
	handler.Register(engine, httpapi.JWTAuthMiddleware(cfg.Auth))

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: engine,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
	if !sched.Wait(60 * time.Second) {
		log.Warn().Msg("scheduler jobs did not finish before timeout")
	}
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close")
	}
	log.Info().Msg("stopped")
}
