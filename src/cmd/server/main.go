package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx"

	"webinyframework/src/entity"
	"webinyframework/src/helper/env"
	webhttp "webinyframework/src/http"
	"webinyframework/src/infra/kafka"
	infraMongo "webinyframework/src/infra/mongo"
	"webinyframework/src/infra/redis"
	"webinyframework/src/library"
	"webinyframework/src/rest"
	"webinyframework/src/server"
	"webinyframework/src/servicemanager"
	"webinyframework/src/services/events"
)

func main() {
	log.SetOutput(os.Stdout)
	log.Println("Starting API server with Uber Fx...")

	app := fx.New(
		fx.Provide(
			newLogger,
			newMongoClient,
			newDatabase,
			newEntityManager,
			newRedisClient,
			newCache,
			newRateLimiter,
			newKafkaClient,
			newServiceManager,
			newRouter,
			newDispatcher,
			newServer,
		),

		fx.Invoke(registerEntityObservers, registerServerHooks),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	<-app.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}
}

func newLogger() *slog.Logger {
	logLevel := env.GetString("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func newMongoClient(lc fx.Lifecycle) (*mongo.Client, error) {
	uri := env.MustGetString("MONGO_URI")
	poolSize := env.GetInt("MONGO_POOL_SIZE", 50)
	timeout := env.GetDuration("MONGO_TIMEOUT", 5*time.Second)

	client, err := infraMongo.NewMongoClient(context.Background(), uri, uint64(poolSize), timeout)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Disconnect(ctx)
		},
	})
	return client, nil
}

func newDatabase(client *mongo.Client) *infraMongo.Database {
	return infraMongo.NewDatabase(client, env.GetString("MONGO_DATABASE", "webiny"))
}

func newEntityManager(logger *slog.Logger, database *infraMongo.Database) (*entity.Manager, error) {
	manager := entity.NewManager(logger, database)
	if err := library.Register(manager); err != nil {
		return nil, err
	}
	return manager, nil
}

func newRedisClient(lc fx.Lifecycle) *redis.RedisClient {
	redisHosts := env.MustGetString("REDIS_HOSTS")
	redisPoolSize := env.GetInt("REDIS_POOL_SIZE", 50)
	redisDefaultTTLSeconds := env.GetInt("REDIS_DEFAULT_TTL_SECONDS", 120)
	redisDefaultTTL := time.Duration(redisDefaultTTLSeconds) * time.Second

	client := redis.NewRedisClient(redisHosts, redisPoolSize, redisDefaultTTL)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client
}

func newCache(redisClient *redis.RedisClient) rest.Cache {
	return rest.NewRedisCache(redisClient)
}

// newRateLimiter returns nil when RATE_LIMIT_REQUESTS is zero, which disables limiting.
func newRateLimiter(redisClient *redis.RedisClient) rest.RateLimiter {
	limit := env.GetInt("RATE_LIMIT_REQUESTS", 300)
	if limit <= 0 {
		return nil
	}
	return rest.NewRedisRateLimiter(redisClient, limit, env.GetDuration("RATE_LIMIT_WINDOW", time.Minute))
}

// newKafkaClient returns nil without KAFKA_BROKERS, entity events then stay in process.
func newKafkaClient(lc fx.Lifecycle, logger *slog.Logger) (*kafka.KafkaClient, error) {
	brokers := env.GetString("KAFKA_BROKERS")
	if brokers == "" {
		return nil, nil
	}

	client, err := kafka.NewKafkaClient(logger, brokers, "", env.GetInt("KAFKA_BATCH_SIZE", 100))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	return client, nil
}

func newServiceManager(logger *slog.Logger, manager *entity.Manager) (*servicemanager.ServiceManager, error) {
	sm := servicemanager.New(logger)
	sm.RegisterInstance("EntityManager", manager)
	if err := sm.RegisterFactory("rest.EntityService", rest.NewEntityService); err != nil {
		return nil, err
	}

	config, err := servicemanager.LoadConfig(env.GetString("SERVICES_CONFIG", "config/services.yaml"))
	if err != nil {
		return nil, err
	}
	if err := sm.Load(config); err != nil {
		return nil, err
	}

	if ttl := env.GetString("REST_CACHE_TTL_SECONDS"); ttl != "" {
		sm.SetParameter("cache.ttl", env.GetInt("REST_CACHE_TTL_SECONDS"))
	}
	return sm, nil
}

func newRouter(logger *slog.Logger, sm *servicemanager.ServiceManager) (*rest.Router, error) {
	prefix, err := sm.Parameter("rest.prefix")
	if err != nil {
		return nil, err
	}
	api, err := sm.Parameter("rest.api")
	if err != nil {
		return nil, err
	}

	providers, err := sm.GetByTag("rest")
	if err != nil {
		return nil, err
	}

	router := rest.NewRouter(fmt.Sprint(prefix))
	if err := router.RegisterProviders(fmt.Sprint(api), providers); err != nil {
		return nil, err
	}
	logger.Info("REST services registered", "api", api, "services", len(providers))
	return router, nil
}

func newDispatcher(
	logger *slog.Logger,
	router *rest.Router,
	cache rest.Cache,
	limiter rest.RateLimiter,
) (*rest.Dispatcher, error) {
	proxies, err := webhttp.ParseTrustedProxies(env.GetString("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	return rest.NewDispatcher(logger, router, cache, limiter, proxies), nil
}

func newServer(
	logger *slog.Logger,
	router *rest.Router,
	dispatcher *rest.Dispatcher,
	database *infraMongo.Database,
	redisClient *redis.RedisClient,
) *server.Server {
	port := env.GetInt("SERVER_PORT", 8888)

	return server.NewServer(logger, port, router, dispatcher,
		server.HealthCheck{Name: "mongo", Check: database.HealthCheck},
		server.HealthCheck{Name: "redis", Check: redisClient.HealthCheck},
	)
}

// registerEntityObservers publishes entity events to Kafka when it is configured and
// invalidates the REST cache directly otherwise.
func registerEntityObservers(
	lc fx.Lifecycle,
	logger *slog.Logger,
	manager *entity.Manager,
	cache rest.Cache,
	kafkaClient *kafka.KafkaClient,
) {
	if kafkaClient == nil {
		manager.Observe(events.NewCacheInvalidationObserver(logger, cache))
		return
	}

	publisher := events.NewEntityEventPublisher(
		logger,
		kafkaClient,
		env.GetString("KAFKA_ENTITY_EVENTS_TOPIC", "entity-events"),
		env.GetInt("KAFKA_BATCH_SIZE", 100),
		env.GetDuration("KAFKA_FLUSH_INTERVAL", time.Second),
	)
	manager.Observe(publisher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				publisher.Run(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func registerServerHooks(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("Server failed", "error", err)
					_ = shutdowner.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("Server forced to shutdown", "error", err)
				return err
			}
			logger.Info("Server exited gracefully")
			return nil
		},
	})
}
