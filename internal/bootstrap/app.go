package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"streamchat/internal/config"
	mongoClient "streamchat/internal/platform/mongo"
	rabbitmqClient "streamchat/internal/platform/rabbitmq"
	redisClient "streamchat/internal/platform/redis"
	"streamchat/internal/store"
	"streamchat/internal/worker"
)

// App holds the process-wide singletons: constructed once at startup,
// read-only thereafter, released in reverse order on Close.
type App struct {
	Config      *config.Config
	Mongo       *mongo.Client
	Redis       *redis.Client
	MQConn      *amqp.Connection
	Store       *store.MongoStore
	UsageWorker *worker.UsageWorker

	StartedAt time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	mongoCli, err := mongoClient.New(ctx, cfg.Mongo.URI)
	if err != nil {
		return nil, err
	}

	redisCli, err := redisClient.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, err
	}

	mqConn, err := rabbitmqClient.New(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, err
	}

	conversationStore := store.NewMongoStore(mongoCli.Database(cfg.Mongo.DB))
	usageWorker := worker.NewUsageWorker(mqConn, conversationStore, cfg.RabbitMQ.UsageQueue)
	if err := usageWorker.Start(ctx); err != nil {
		return nil, fmt.Errorf("start usage worker failed: %w", err)
	}

	return &App{
		Config:      cfg,
		Mongo:       mongoCli,
		Redis:       redisCli,
		MQConn:      mqConn,
		Store:       conversationStore,
		UsageWorker: usageWorker,
		StartedAt:   time.Now(),
	}, nil
}

// HealthChecks reports reachability of the backing services.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	return map[string]func(ctx context.Context) error{
		"mongo": func(ctx context.Context) error {
			return a.Mongo.Ping(ctx, readpref.Primary())
		},
		"redis": func(ctx context.Context) error {
			return a.Redis.Ping(ctx).Err()
		},
		"rabbitmq": func(ctx context.Context) error {
			if a.MQConn.IsClosed() {
				return fmt.Errorf("rabbitmq connection closed")
			}
			return nil
		},
	}
}

func (a *App) Close() error {
	var closeErr error
	if a.UsageWorker != nil {
		a.UsageWorker.Close()
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Mongo != nil {
		if err := a.Mongo.Disconnect(context.Background()); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
