package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"dm-service/internal/config"
	"dm-service/internal/db"
	"dm-service/internal/delivery"
	"dm-service/internal/fanout"
	"dm-service/internal/handlers"
	"dm-service/internal/logger"
	"dm-service/internal/media"
	"dm-service/internal/middleware"
	"dm-service/internal/models"
	"dm-service/internal/observability"
	"dm-service/internal/presence"
	"dm-service/internal/rabbitmq"
	"dm-service/internal/repositories"
	"dm-service/internal/telemetry"
	"dm-service/internal/tracing"
	"dm-service/internal/unseen"
	"dm-service/internal/ws"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.TracingEnabled, cfg.TracingEndpoint, cfg.ServiceName, cfg.Environment, log)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()
	checks := st.checks

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, log)
	defer func() { _ = publisher.Close() }()
	log.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)),
	)
	events := telemetry.NewEventEmitter(publisher, cfg.ServiceName, cfg.Environment, log)

	var uploader media.Uploader
	if cfg.CloudinaryURL != "" {
		cld, err := media.NewCloudinaryUploader(cfg.CloudinaryURL, cfg.CloudinaryFolder, log)
		if err != nil {
			log.Warn("image uploads disabled", zap.Error(err))
		} else {
			uploader = cld
		}
	}

	registry := presence.NewRegistry()
	opts := []delivery.Option{
		delivery.WithParticipants(st.participants),
		delivery.WithEvents(events),
		delivery.WithLogger(log),
	}

	var bus *fanout.NATSBus
	if cfg.NATSURL != "" {
		bus, err = fanout.Connect(cfg.NATSURL, cfg.NATSSubject, log)
		if err != nil {
			log.Warn("cross-node fanout disabled", zap.Error(err))
		} else {
			opts = append(opts, delivery.WithBus(bus))
			checks = append(checks, handlers.ReadinessCheck{Name: "nats", Check: func(context.Context) error {
				if !bus.IsConnected() {
					return errors.New("not connected")
				}
				return nil
			}})
		}
	}

	pipeline := delivery.New(st.messages, registry, media.NewResolver(uploader), opts...)
	if bus != nil {
		if err := bus.Subscribe(pipeline.DeliverRemote); err != nil {
			return err
		}
		defer bus.Close()
		log.Info("cross-node fanout enabled", zap.String("node_id", bus.NodeID()), zap.String("subject", cfg.NATSSubject))
	}

	verifier := middleware.NewTokenVerifier(cfg.JWTSecret)
	conversations := handlers.NewConversationHandler(pipeline, st.participants, unseen.NewAggregator(st.messages), registry, log)
	wsHandler := ws.NewHandler(registry, ws.Settings{
		QueueSize:    cfg.PushQueueSize,
		PingInterval: cfg.PingInterval,
		PongWait:     cfg.PongWait,
		WriteWait:    cfg.WriteWait,
	}, events, log)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		otelgin.Middleware(cfg.ServiceName),
		observability.HTTPMetricsMiddleware(),
		cors.New(cors.Config{
			AllowOrigins:     cfg.AllowOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}),
	)

	handlers.RegisterHealthRoutes(router, checks...)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, events, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(verifier)
	api := router.Group("/", authMiddleware, middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	conversations.Register(api)
	router.GET("/ws", authMiddleware, wsHandler.Handle)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	registry.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown", zap.Error(err))
	}
	return nil
}

type stores struct {
	messages     repositories.MessageRepository
	participants repositories.ParticipantRepository
	checks       []handlers.ReadinessCheck
	close        func()
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverPostgres:
		database, err := db.Connect(cfg.DBDSN, log)
		if err != nil {
			return nil, err
		}
		return &stores{
			messages:     repositories.NewMessageRepo(database),
			participants: repositories.NewParticipantRepo(database),
			checks:       []handlers.ReadinessCheck{{Name: "postgres", Check: database.PingContext}},
			close:        func() { _ = database.Close() },
		}, nil

	case config.DriverMongo:
		client, database, err := db.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDB, log)
		if err != nil {
			return nil, err
		}
		return &stores{
			messages:     repositories.NewMongoMessageRepo(database),
			participants: repositories.NewMongoParticipantRepo(database),
			checks: []handlers.ReadinessCheck{{Name: "mongo", Check: func(ctx context.Context) error {
				return client.Ping(ctx, nil)
			}}},
			close: func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.DriverMemory:
		seed := parseParticipantSeed(cfg.SeedParticipants)
		log.Warn("using in-memory store; data is lost on restart", zap.Int("participants", len(seed)))
		return &stores{
			messages:     repositories.NewMemoryMessageRepo(),
			participants: repositories.NewMemoryParticipantRepo(seed...),
			close:        func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}

// parseParticipantSeed reads "id:Full Name,id:Full Name".
func parseParticipantSeed(raw string) []models.Participant {
	var out []models.Participant
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		id, name, found := strings.Cut(entry, ":")
		if !found {
			name = id
		}
		out = append(out, models.Participant{ID: strings.TrimSpace(id), FullName: strings.TrimSpace(name)})
	}
	return out
}
