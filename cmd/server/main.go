package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/config"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/conversation"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/database"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/events"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/idempotency"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/metrics"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository/memory"
	mongorepo "github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository/mongodb"
	postgresrepo "github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository/postgres"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/service"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/store"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/transport/http/handlers"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/transport/http/middleware"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/transport/ws"
	"github.com/Siddharthgautam09/SERVEPE-sub000/pkg/logger"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	shutdownTimeout = 15 * time.Second
	janitorInterval = time.Minute
)

type repositories struct {
	users    repository.UserRepository
	orders   repository.OrderRepository
	messages repository.MessageRepository
	close    func()
}

func main() {
	cfg := config.Load()

	logg, err := logger.New(logger.Config{Development: cfg.IsDevelopment(), Level: cfg.LogLevel})
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logg.Sync()

	if err := run(cfg, logg); err != nil {
		logg.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.Register(prometheus.DefaultRegisterer)

	// Repositories
	repos, err := openRepositories(ctx, cfg, logg)
	if err != nil {
		return err
	}
	defer repos.close()

	// Redis (optional)
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = database.ConnectRedis(ctx, cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		logg.Info("connected to redis")
	}

	// Services
	messageStore := store.New(repos.messages)
	resolver := conversation.NewResolver(repos.orders)
	assembler := service.NewAssembler(repos.users, repos.orders)

	authService := service.NewAuthService(repos.users, cfg.JWTSecret)
	messageService := service.NewMessageService(messageStore, resolver, repos.orders, assembler, logg)
	bridge := service.NewOrderEventBridge(repos.orders, messageStore, assembler, logg)

	if rdb != nil {
		messageService.SetIdempotencyStore(idempotency.NewRedisStore(rdb, cfg.IdempotencyTTL))
	} else {
		idem := idempotency.NewMemoryStore(cfg.IdempotencyTTL)
		go idem.RunJanitor(ctx, janitorInterval)
		messageService.SetIdempotencyStore(idem)
	}

	// WebSocket hub
	hub := ws.NewHub(logg)
	if rdb != nil {
		relay := ws.NewRedisRelay(rdb, ws.DefaultRelayChannel, hub, logg)
		hub.SetRelay(relay)
		go relay.Run(ctx)
	}
	go hub.Run(ctx)

	notifier := ws.NewHubNotifier(hub, logg)
	messageService.SetNotifier(notifier)
	bridge.SetNotifier(notifier)

	// Order events
	if len(cfg.KafkaBrokers) > 0 {
		consumer := events.NewOrderConsumer(cfg.KafkaBrokers, cfg.KafkaOrderTopic, cfg.KafkaGroupID, bridge, logg)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logg.Error("order consumer stopped", zap.Error(err))
			}
		}()
		logg.Info("consuming order events", zap.String("topic", cfg.KafkaOrderTopic))
	} else {
		logg.Warn("KAFKA_BROKERS not set, order acceptance messages are disabled")
	}

	// Routes
	messageHandler := handlers.NewMessageHandler(messageService, logg)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logg))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/ws", ws.ServeWS(hub, &ws.Options{
		Auth:           authService,
		Messages:       messageService,
		Rooms:          resolver,
		OriginPatterns: cfg.AllowedOrigins,
		SendRate:       cfg.WSSendRate,
		SendBurst:      cfg.WSSendBurst,
		MaxInFlight:    cfg.WSMaxInFlight,
		Log:            logg,
	}))

	r.Route("/api/v1/messages", func(r chi.Router) {
		r.Use(middleware.Auth(authService))
		messageHandler.Routes(r)
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logg.Info("starting server", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func openRepositories(ctx context.Context, cfg *config.Config, logg *zap.Logger) (*repositories, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		client, err := database.ConnectMongo(ctx, cfg)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB)
		messages := mongorepo.NewMessageRepo(db)
		if err := messages.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, fmt.Errorf("creating mongo indexes: %w", err)
		}
		logg.Info("connected to mongo", zap.String("database", cfg.MongoDB))
		return &repositories{
			users:    mongorepo.NewUserRepo(db),
			orders:   mongorepo.NewOrderRepo(db),
			messages: messages,
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	case config.DriverPostgres:
		pool, err := database.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		logg.Info("connected to database")
		return &repositories{
			users:    postgresrepo.NewUserRepo(pool),
			orders:   postgresrepo.NewOrderRepo(pool),
			messages: postgresrepo.NewMessageRepo(pool),
			close:    pool.Close,
		}, nil

	case config.DriverMemory:
		logg.Warn("using in-memory store, data is lost on restart")
		db := memory.NewStore()
		return &repositories{
			users:    db.Users(),
			orders:   db.Orders(),
			messages: db.Messages(),
			close:    func() {},
		}, nil

	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
}
