package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tabularml/workbench/pkg/api"
	"github.com/tabularml/workbench/pkg/common/config"
	"github.com/tabularml/workbench/pkg/common/logger"
	"github.com/tabularml/workbench/pkg/dataset"
	"github.com/tabularml/workbench/pkg/session"
)

func main() {
	logger.Init()
	cfg := config.Load()

	registry, err := dataset.LoadRegistry(cfg.DatasetRegistryPath)
	if err != nil {
		logger.Log.WithError(err).Fatal("Failed to load dataset registry")
	}

	store := session.New(cfg.MaxSessions, cfg.SessionTTL)
	defer store.Teardown()

	service := api.NewServer(store, registry, cfg)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      service.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host": cfg.ServerHost,
			"port": cfg.ServerPort,
		}).Info("Workbench Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Workbench Service...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
	}

	logger.Log.Info("Workbench Service stopped")
}
