package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ridesync/internal/config"
	"ridesync/internal/lifecycle"
	"ridesync/internal/location"
	"ridesync/internal/payments"
	"ridesync/internal/realtime"
	"ridesync/internal/resilience"
	"ridesync/pkg/logger"
	"ridesync/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&logger.Config{
		Level:  logger.LogLevel(cfg.App.LogLevel),
		Format: cfg.App.LogFormat,
		Output: "stdout",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	store, err := openStore(cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to open durable store")
	}
	defer store.Close()

	var provider resilience.ConnectivityProvider
	if cfg.Resilience.ConnectivityURL != "" {
		provider = resilience.NewHTTPProbe(cfg.Resilience.ConnectivityURL)
	} else {
		provider = resilience.NewManualProvider(true)
	}

	network, err := resilience.NewManager(cfg.Resilience, store, provider, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to init resilience manager")
	}
	network.Start()
	defer network.Stop()

	rt, err := realtime.NewManager(cfg.Realtime, store, nil, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to init realtime manager")
	}
	if err := rt.Connect(context.Background()); err != nil {
		log.WithError(err).Warn("Initial realtime connect failed, will retry on demand")
	}
	defer rt.Disconnect()

	machine := lifecycle.NewMachine(log, nil)

	ledger, err := payments.NewLedger(cfg.Policy, store, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to init idempotency ledger")
	}

	pruneCtx, stopPrune := context.WithCancel(context.Background())
	defer stopPrune()
	go pruneLoop(pruneCtx, ledger)

	var geo location.Geolocator
	if cfg.Location.GoogleAPIKey != "" {
		g, gerr := location.NewGoogleGeolocator(cfg.Location.GoogleAPIKey)
		if gerr != nil {
			log.WithError(gerr).Warn("Geolocation client unavailable, skipping network fallback")
		} else {
			geo = g
		}
	}
	locator := location.NewManager(cfg.Location, location.UnavailableProvider{}, geo, store, log)

	if config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"version": cfg.App.Version,
		})
	})

	router.GET("/status", func(c *gin.Context) {
		lastKnown, _ := locator.LastKnown()
		c.JSON(http.StatusOK, gin.H{
			"last_known_location": lastKnown,
			"network":        network.Status(),
			"offline_queue":  network.QueueDepth(),
			"circuits":       network.Circuits(),
			"realtime_state": rt.State(),
			"outbound_queue": rt.QueueDepth(),
			"driver_state":   machine.State(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port),
		Handler: router,
	}

	go func() {
		log.Infof("Listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Forced shutdown")
	}
}

func openStore(cfg *config.StorageConfig, log *logger.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case "redis":
		return storage.NewRedisStore(&storage.RedisConfig{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			DialTimeout:  cfg.RedisDialTimeout,
			ReadTimeout:  cfg.RedisReadTimeout,
			WriteTimeout: cfg.RedisWriteTimeout,
		})
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		badgerCfg := storage.DefaultBadgerConfig(cfg.BadgerPath)
		badgerCfg.SyncWrites = cfg.BadgerSyncWrites
		badgerCfg.GCInterval = cfg.BadgerGCInterval
		return storage.NewBadgerStore(badgerCfg, log)
	}
}

// pruneLoop expires old idempotency keys once an hour.
func pruneLoop(ctx context.Context, ledger *payments.Ledger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ledger.Prune(ctx, time.Now())
		}
	}
}
