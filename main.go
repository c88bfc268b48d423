package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"homecontrol/adb"
	"homecontrol/api"
	"homecontrol/config"
	"homecontrol/devices"
	"homecontrol/metrics"
	"homecontrol/service"
)

func main() {
	cfgPath := config.EnvOr("CONFIG_PATH", "config.yaml")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		bootLog := api.NewLogger("info")
		bootLog.Fatal().Err(err).Str("path", cfgPath).Msg("configuration load failed")
	}

	log := api.NewLogger(cfg.LogLevel)
	log.Info().Str("config", cfgPath).Int("tvs", len(cfg.TVDevices)).Msg("starting home control")

	m := metrics.New()

	var cacheDB *sql.DB
	if cfg.CachePath != "" {
		cacheDB, err = config.InitDatabase(cfg.CachePath)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.CachePath).Msg("app cache persistence disabled")
			cacheDB = nil
		}
	}

	deviceManager := service.NewDeviceManager(cfg.Devices(), log)
	conns := adb.NewConnManager(cfg.ADBPath, log)
	executor := adb.NewExecutor(cfg.ADBPath, log)
	appCache := service.NewAppCache(cfg.Tuning.AppCacheTTL, cacheDB, m, log)

	orch := service.NewOrchestrator(deviceManager, conns, executor, appCache, m, service.Options{
		RetryAttempts: cfg.Tuning.RetryAttempts,
		RetryBackoff:  cfg.Tuning.RetryBackoff,
		MaxQueueWait:  cfg.Tuning.MaxQueueWait,
		StatusTTL:     cfg.Tuning.StatusTTL,
	}, log)

	// Adapters for light-type devices register here; the vendor integration
	// lives outside this binary behind devices.Capability.
	bulbs := devices.NewRegistry()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewWebSocketHub(log)
	go hub.Run(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	handlers := api.NewHandlers(orch, bulbs, hub, log)
	api.SetupRoutes(router, handlers, m, hub)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if cacheDB != nil {
		_ = cacheDB.Close()
	}
	log.Info().Msg("stopped")
}
