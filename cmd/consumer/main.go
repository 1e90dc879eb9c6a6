package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"profession-sync/broker"
	"profession-sync/config"
	"profession-sync/dispatch"
	"profession-sync/domain"
	"profession-sync/storage"
)

func main() {
	if config.Debug() {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("reconciliation consumer starting")

	cfg := config.LoadConsumer()
	if len(cfg.Brokers) == 0 {
		log.Fatal("missing KAFKA_BROKERS")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := storage.New(ctx, cfg.MongoURI, cfg.Database)
	cancel()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	var rc *redis.Client
	var cache *cacheUpdater
	var afterApply dispatch.OnHandled
	if cfg.RedisAddr != "" {
		rc = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		cache = newCacheUpdater(store, rc, cfg.CacheTTL)
		afterApply = newAfterApply(cache, rc, cfg.UpdateChannel)
	} else {
		log.Warn("REDIS_ADDR not set, cache refresh and update notifications disabled")
	}

	writer := broker.NewWriter(cfg.Brokers)
	dlq := broker.NewDLQ(writer)

	orch := domain.NewOrchestrator(store)
	router := dispatch.NewRouter(orch, dlq, afterApply)
	consumer := dispatch.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID, router)

	e := echo.New()
	e.HideBanner = true
	e.GET("/healthz", func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	go func() {
		if err := e.Start(cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("health server")
		}
	}()

	runCtx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- consumer.Run(runCtx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.WithField("signal", s.String()).Info("shutting down")
		stop()
		<-done
	case err := <-done:
		stop()
		if err != nil {
			log.WithError(err).Error("consume loop ended")
		}
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := consumer.Close(); err != nil {
		log.WithError(err).Error("close consumer")
	}
	if err := writer.Close(); err != nil {
		log.WithError(err).Error("close writer")
	}
	if rc != nil {
		if err := rc.Close(); err != nil {
			log.WithError(err).Error("close redis")
		}
	}
	if err := e.Shutdown(shutCtx); err != nil {
		log.WithError(err).Error("stop health server")
	}
	if err := store.Close(shutCtx); err != nil {
		log.WithError(err).Error("close storage")
	}
	log.Info("reconciliation consumer stopped")
}
