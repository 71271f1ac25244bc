package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/celerix-dev/celerix-vaults/internal/api"
	"github.com/celerix-dev/celerix-vaults/internal/config"
	"github.com/celerix-dev/celerix-vaults/internal/service"
)

func main() {
	fmt.Println("Starting Celerix Vaults Daemon...")

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := cfg.NewLogger()

	// 2. Start the engine
	svc, err := service.New(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to start vault engine")
	}
	owners, err := svc.Ops.ListOwners()
	if err != nil {
		log.WithError(err).Warn("Could not list existing vault files")
	}
	log.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"backups":  cfg.BackupsEnabled,
		"owners":   len(owners),
	}).Info("Engine started")

	// 3. Initialize HTTP admin API
	if log.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	h := &api.Handler{Vaults: svc.Ops}
	r := gin.New()
	r.Use(gin.Recovery())

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "PUT, OPTIONS, GET, DELETE")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	h.Register(r.Group("/api"))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API route not found"})
	})

	srv := &http.Server{Addr: ":" + cfg.HTTPPort, Handler: r}

	// 4. Start server
	go func() {
		log.WithField("port", cfg.HTTPPort).Info("HTTP admin API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("HTTP server failed")
		}
	}()

	// 5. Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutdown signal received. Finalizing disk writes...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("HTTP server did not shut down cleanly")
	}

	// Locking flushes every open vault before the pool drains.
	svc.Ops.SetLocked(true)
	svc.Close()
	log.Info("Persistence complete. Exiting.")
}
