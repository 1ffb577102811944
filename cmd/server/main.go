package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Tyrowin/chatrelay/internal/logging"
	"github.com/Tyrowin/chatrelay/internal/server"
	"github.com/Tyrowin/chatrelay/internal/store"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	logger := logging.New()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}
	server.SetConfig(cfg)

	history := server.NewHistoryBuffer(cfg.MaxHistory)
	messages := openStore(logger, cfg, history)

	hub := server.NewHub(history, messages)
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Server failed: %v", err)
		}
	case sig := <-stop:
		logger.Infof("Received %s, shutting down", sig)
		if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
			logger.Errorf("HTTP shutdown: %v", err)
		}
		if err := hub.Shutdown(shutdownTimeout); err != nil {
			logger.Errorf("Hub shutdown: %v", err)
		}
	}

	closeStore(logger, messages)
}

// openStore connects the durable message store and preloads the history
// buffer from it. Persistence is optional: an empty MONGO_URI, or a store
// that cannot be reached, leaves the relay running memory-only.
func openStore(logger *zap.SugaredLogger, cfg *server.Config, history *server.HistoryBuffer) server.MessageStore {
	if cfg.Mongo.URI == "" {
		logger.Infof("MONGO_URI not set; running without persistence")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	messages, err := store.NewMongoStore(ctx, cfg.Mongo)
	if err != nil {
		logger.Warnf("MongoDB unavailable (%v); running without persistence", err)
		return nil
	}

	recent, err := messages.RecentMessages(ctx, cfg.MaxHistory)
	if err != nil {
		logger.Warnf("Could not preload history: %v", err)
		return messages
	}

	history.Preload(recent)
	logger.Infof("Preloaded %d messages from MongoDB", len(recent))
	return messages
}

func closeStore(logger *zap.SugaredLogger, messages server.MessageStore) {
	mongoStore, ok := messages.(*store.MongoStore)
	if !ok || mongoStore == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := mongoStore.Close(ctx); err != nil {
		logger.Errorf("Error closing MongoDB connection: %v", err)
	}
}
