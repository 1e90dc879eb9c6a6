package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"profession-sync/broker"
	"profession-sync/config"
	"profession-sync/relay"
	"profession-sync/storage"
	"profession-sync/watcher"
)

func main() {
	if config.Debug() {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("change watcher starting")

	cfg := config.LoadWatcher()
	if len(cfg.Brokers) == 0 {
		log.Fatal("missing KAFKA_BROKERS")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	store, err := storage.New(ctx, cfg.MongoURI, cfg.Database)
	cancel()
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	writer := broker.NewWriter(cfg.Brokers)
	rl := relay.New(writer, cfg.Topic, cfg.BatchSize, cfg.FlushInterval)

	w := watcher.New(store.Database(), watcher.Options{
		Collections:       cfg.Collections,
		DeniedCollections: cfg.DeniedCollections,
	})

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
		done <- w.Start(runCtx, rl.HandleChange)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.WithField("signal", s.String()).Info("shutting down")
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("change stream ended")
		}
	}

	// Stream first, then the relay so the final flush covers everything the
	// stream delivered, then the rest.
	stop()
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Stop(shutCtx); err != nil {
		log.WithError(err).Error("close change stream")
	}
	if err := rl.Stop(shutCtx); err != nil {
		log.WithError(err).Error("final flush")
	}
	if err := writer.Close(); err != nil {
		log.WithError(err).Error("close writer")
	}
	if err := e.Shutdown(shutCtx); err != nil {
		log.WithError(err).Error("stop health server")
	}
	if err := store.Close(shutCtx); err != nil {
		log.WithError(err).Error("close storage")
	}
	log.Info("change watcher stopped")
}
