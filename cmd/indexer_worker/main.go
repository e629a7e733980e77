package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/usagelab/mobile-usage-api/config"
	userapp "github.com/usagelab/mobile-usage-api/internal/application"
	pginfra "github.com/usagelab/mobile-usage-api/internal/infrastructure/postgres"
	"github.com/usagelab/mobile-usage-api/pkg/helpers"
)

// The indexer worker consumes change events published by the API and keeps
// the Elasticsearch aggregate index in sync: created/updated users are
// re-read from Postgres and re-indexed, deleted users are removed.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName+"-indexer", cfg.Env)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQEventsQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}

	ctx := context.Background()

	pool, err := pginfra.NewPool(ctx, cfg.PostgresDSN(), pginfra.PoolOptions{
		MaxConns:    cfg.DBMaxConns,
		MinConns:    cfg.DBMinConns,
		MaxConnLife: cfg.DBMaxConnLife,
	})
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	es, err := helpers.NewESClient(cfg.ESAddrs(), cfg.ElasticsearchUser, cfg.ElasticsearchPass)
	if err != nil {
		log.Fatalf("failed to init elasticsearch client: %v", err)
	}

	repo := pginfra.NewUserRepository(pool, cfg.DBAcquireTimeout)
	svc := userapp.NewService(repo, nil, 0, logger, nil, es, cfg.ESUsersIndex, nil, "")

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("amqp dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("amqp channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	// Prefetch for fair dispatch across worker replicas.
	if err := ch.Qos(16, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	if _, err := ch.QueueDeclare(cfg.RabbitMQEventsQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitMQEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for msg := range msgs {
			var ev userapp.ChangeEvent
			if err := json.Unmarshal(msg.Body, &ev); err != nil {
				logger.WithError(err).Warn("bad event message")
				_ = msg.Nack(false, false)
				continue
			}

			c, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := handleEvent(c, svc, ev)
			cancel()
			if err != nil {
				logger.WithError(err).WithField("user_id", ev.UserID).Warn("event handling failed; requeueing")
				_ = msg.Nack(false, true)
				continue
			}
			_ = msg.Ack(false)
		}
		close(done)
	}()

	logger.Infof("indexer worker listening on queue=%s", cfg.RabbitMQEventsQueue)
	<-stop
	logger.Info("shutting down...")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
}

func handleEvent(ctx context.Context, svc *userapp.Service, ev userapp.ChangeEvent) error {
	switch ev.Action {
	case userapp.EventUserDeleted:
		return svc.RemoveUserIndex(ctx, ev.UserID)
	case userapp.EventUserCreated, userapp.EventUserUpdated:
		u, err := svc.GetUser(ctx, ev.UserID)
		if err != nil {
			// Deleted between publish and consume: drop the stale document.
			return svc.RemoveUserIndex(ctx, ev.UserID)
		}
		return svc.IndexUser(ctx, u)
	default:
		return nil
	}
}
