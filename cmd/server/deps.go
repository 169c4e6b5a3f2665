package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	actorservice "terraguard/internal/actor/service"
	actorstore "terraguard/internal/actor/store"
	"terraguard/internal/alert"
	"terraguard/internal/platform/config"
	"terraguard/internal/platform/kafka"
	"terraguard/internal/platform/postgres"
	"terraguard/internal/platform/redis"
	violationservice "terraguard/internal/violation/service"
	violationstore "terraguard/internal/violation/store"
	"terraguard/pkg/platform/tx"
)

const (
	alertTopicPartitions  = 3
	alertTopicReplication = 1
)

type stores struct {
	actors     actorservice.Store
	violations violationservice.Store
	tx         tx.Runner
	db         *sql.DB
}

func (s *stores) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// openStores selects the memory or Postgres backends. Postgres gets its schema
// applied before use.
func openStores(ctx context.Context, cfg config.Server, log *slog.Logger) (*stores, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		log.Info("using in-memory storage")
		return &stores{
			actors:     actorstore.NewInMemory(),
			violations: violationstore.NewInMemory(),
			tx:         tx.Direct{},
		}, nil
	case config.StoragePostgres:
		db, err := postgres.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		log.Info("using postgres storage", "driver", cfg.Database.Driver)
		return &stores{
			actors:     actorstore.NewPostgres(db),
			violations: violationstore.NewPostgres(db),
			tx:         tx.NewSQLRunner(db),
			db:         db,
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage)
	}
}

type alertSinks struct {
	fanout alert.Fanout
	redis  *redis.Client
	kafka  *kafka.Client
}

func (a *alertSinks) close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.kafka != nil {
		a.kafka.Close()
	}
}

// openAlertSinks always logs alerts and adds Redis and Kafka when they are
// configured.
func openAlertSinks(ctx context.Context, cfg config.Server, log *slog.Logger) (*alertSinks, error) {
	sinks := &alertSinks{fanout: alert.Fanout{alert.NewLogSink(log)}}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		sinks.redis = rc
		sinks.fanout = append(sinks.fanout, alert.NewRedisSink(rc, cfg.Redis.Channel))
		log.Info("redis alerts enabled", "channel", cfg.Redis.Channel)
	}

	kc, err := kafka.New(ctx, cfg.Kafka, log)
	if err != nil {
		sinks.close()
		return nil, err
	}
	if kc != nil {
		if err := kc.EnsureTopic(ctx, alertTopicPartitions, alertTopicReplication); err != nil {
			log.Warn("could not ensure alert topic", "topic", kc.Topic(), "error", err.Error())
		}
		sinks.kafka = kc
		sinks.fanout = append(sinks.fanout, alert.NewKafkaSink(kc, kc.Topic()))
		log.Info("kafka alerts enabled", "topic", kc.Topic())
	}
	return sinks, nil
}
