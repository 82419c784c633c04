package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"goalrush/matchcore/internal/audit"
	"goalrush/matchcore/internal/broadcast"
	"goalrush/matchcore/internal/config"
	"goalrush/matchcore/internal/httpapi"
	"goalrush/matchcore/internal/logging"
	"goalrush/matchcore/internal/session"
	"goalrush/matchcore/internal/settle"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.L().Fatal("configuration invalid", logging.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		logging.L().Fatal("logger initialisation failed", logging.Error(err))
	}
	logging.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	broadcaster := broadcast.NewBroadcaster(cfg.OutboundQueue)
	settlement := settle.NewStream(settle.Config{})
	registry := session.NewRegistry(cfg, broadcaster, settlement, logger)

	var cleaner *audit.Cleaner
	if cfg.AuditDir != "" {
		cleaner = audit.NewCleaner(cfg.AuditDir, audit.RetentionPolicy{
			MaxBundles: cfg.AuditRetainBundles,
			MaxAge:     cfg.AuditRetainAge,
		}, logger)
		go cleaner.Run(ctx, time.Minute)
	}

	gateway, err := NewGateway(ctx, cfg, registry, broadcaster, logger)
	if err != nil {
		logger.Fatal("gateway initialisation failed", logging.Error(err))
	}
	settlementGateway := newSettlementGateway(ctx, cfg, settlement, logger)

	handlers := httpapi.NewHandlerSet(httpapi.Options{
		Logger:      logger,
		Readiness:   gateway,
		Sessions:    registry.Stats,
		Broadcast:   broadcaster.Stats,
		Aborter:     registry,
		AdminToken:  cfg.AdminToken,
		RateLimiter: httpapi.NewSlidingWindowLimiter(time.Minute, 5, nil),
		AuditStats: func() audit.StorageStats {
			if cleaner == nil {
				return audit.StorageStats{}
			}
			return cleaner.Stats()
		},
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gateway.ServeWS)
	mux.HandleFunc("/settlements", settlementGateway.ServeWS)
	handlers.Register(mux)

	server := &http.Server{
		Addr:              cfg.Address,
		Handler:           logging.HTTPTraceMiddleware(logger)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown requested")
		registry.Shutdown("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("match server listening", logging.String("address", cfg.Address))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server failed", logging.Error(err))
	}
	logger.Info("match server stopped")
}
