package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"quizbattle/config"
	"quizbattle/internal/auth"
	"quizbattle/internal/game"
	"quizbattle/internal/handlers"
	"quizbattle/internal/logging"
	"quizbattle/internal/question"
	"quizbattle/internal/results"
	"quizbattle/internal/room"
	"quizbattle/internal/snapshot"
	ws "quizbattle/internal/websocket"
	"quizbattle/pkg/cache"
	"quizbattle/pkg/database"
	"quizbattle/pkg/messaging"
)

func main() {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	questionSource, pgClient := buildQuestionSource(cfg)
	if pgClient != nil {
		defer pgClient.Close()
	}

	snapshotStore, redisClient := buildSnapshotStore(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var publisher ws.ResultsPublisher
	mqClient, err := messaging.NewRabbitMQClient(&cfg.RabbitMQ)
	if err != nil {
		log.Warn().Err(err).Msg("rabbitmq unavailable, results publishing disabled")
	} else {
		defer mqClient.Close()
		publisher = results.NewPublisher(mqClient, cfg.RabbitMQ.Queue)
		log.Info().Str("queue", cfg.RabbitMQ.Queue).Msg("connected to rabbitmq")
	}

	var tokens *auth.TokenIssuer
	if cfg.Game.ResumeTokenSecret != "" {
		tokens = auth.NewTokenIssuer(cfg.Game.ResumeTokenSecret)
		log.Info().Msg("resume tokens enabled")
	}

	rooms := room.NewRegistry(cfg.Game.MaxPlayers, cfg.Game.MinPlayers)
	restoreRooms(rooms, snapshotStore)

	engine := game.NewEngine(questionSource, game.ScoringConfig{
		BaseScore:        cfg.Game.BaseScore,
		MaxTimeBonus:     cfg.Game.MaxTimeBonus,
		PerfectThreshold: cfg.Game.PerfectThreshold,
	}, cfg.Game.DefaultTimeLimit)

	hub := ws.NewHub(rooms, engine, snapshotStore, publisher, tokens, cfg.Game)
	go hub.Run()

	server := ws.NewServer(hub)
	go func() {
		addr := cfg.Server.WSHost + ":" + cfg.Server.WSPort
		if err := server.Listen(addr); err != nil {
			log.Fatal().Err(err).Msg("websocket server failed")
		}
	}()

	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	admin := handlers.NewAdminHandler(rooms, engine, snapshotStore, func() bool {
		return true
	})
	admin.RegisterRoutes(router)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Server.HTTPPort,
		Handler: router,
	}
	go func() {
		log.Info().Str("port", cfg.Server.HTTPPort).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpSrv.Shutdown(shutdownCtx)
	server.Close()
	hub.Stop()
	log.Info().Msg("stopped")
}

// buildQuestionSource prefers a local questions file when configured, then
// postgres, then the built-in fallback pool. Losing the database downgrades
// content, not availability.
func buildQuestionSource(cfg *config.Config) (question.Source, *database.PostgresClient) {
	if cfg.Game.QuestionsFile != "" {
		log.Info().Str("path", cfg.Game.QuestionsFile).Msg("loading questions from file")
		return question.NewFileSource(cfg.Game.QuestionsFile), nil
	}

	pgClient, err := database.NewPostgresClient(&cfg.DB)
	if err != nil {
		log.Warn().Err(err).Msg("postgres unavailable, using built-in questions")
		return question.NewStaticSource(question.FallbackQuestions()), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pgClient.InitSchema(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to initialize postgres schema")
	}

	log.Info().Msg("loading questions from postgres")
	return question.NewPostgresSource(pgClient.GetDB()), pgClient
}

func buildSnapshotStore(cfg *config.Config) (snapshot.Store, *cache.RedisClient) {
	if cfg.Game.SnapshotFile != "" {
		log.Info().Str("path", cfg.Game.SnapshotFile).Msg("persisting rooms to file")
		return snapshot.NewFileStore(cfg.Game.SnapshotFile), nil
	}

	redisClient, err := cache.NewRedisClient(&cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, room persistence disabled")
		return snapshot.NopStore{}, nil
	}
	log.Info().Msg("persisting rooms to redis")
	return snapshot.NewRedisStore(redisClient), redisClient
}

// restoreRooms reloads the room layout from the last snapshot. A missing or
// unreadable snapshot means a clean start, never a failed one.
func restoreRooms(rooms *room.Registry, store snapshot.Store) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := store.Load(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load room snapshot, starting clean")
		return
	}
	if snap == nil {
		return
	}
	rooms.Restore(snap)
	log.Info().Int("rooms", len(snap.Rooms)).Msg("restored rooms from snapshot")
}
