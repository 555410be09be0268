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
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ultravioletadao/x402-facilitator/internal/chain"
	"github.com/ultravioletadao/x402-facilitator/internal/config"
	"github.com/ultravioletadao/x402-facilitator/internal/facilitator"
	"github.com/ultravioletadao/x402-facilitator/internal/journal"
	"github.com/ultravioletadao/x402-facilitator/internal/payment"
	"github.com/ultravioletadao/x402-facilitator/internal/server"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync() //nolint:errcheck

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ── Settlement journal (optional) ─────────────────────────────────────────
	var recorder facilitator.Recorder
	var history server.History
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal("redis ping failed", zap.Error(err))
		}
		jrnl := journal.New(rdb, log)
		recorder = jrnl
		history = jrnl
	} else {
		log.Warn("REDIS_ADDR not set, settlement journal disabled")
	}

	// ── Chain providers ───────────────────────────────────────────────────────
	opts := chain.Options{
		CallTimeout:    cfg.RPC.CallTimeout(),
		ConfirmTimeout: cfg.RPC.ConfirmTimeout(),
	}
	providers := make([]*chain.Provider, 0, len(cfg.Networks))
	backends := make([]facilitator.ChainBackend, 0, len(cfg.Networks))
	for _, n := range cfg.Networks {
		p, err := chain.NewProvider(ctx, payment.Network(n.Name), n.RPCURL, cfg.Signer.PrivateKey, opts)
		if err != nil {
			log.Fatal("provider init failed", zap.String("network", n.Name), zap.Error(err))
		}
		log.Info("provider connected",
			zap.String("network", n.Name),
			zap.String("signer", p.SignerAddress().Hex()),
		)
		providers = append(providers, p)
		backends = append(backends, p)
	}

	registry := chain.NewRegistry(providers)
	defer registry.Close()
	go registry.RefreshLoop(ctx, cfg.RPC.HealthInterval(), log)

	// ── Engine ────────────────────────────────────────────────────────────────
	caps, err := cfg.ValueCaps()
	if err != nil {
		log.Fatal("invalid settlement caps", zap.Error(err))
	}
	engine := facilitator.NewEngine(facilitator.Config{
		Providers: backends,
		Health:    registry,
		Journal:   recorder,
		ClockSkew: cfg.Verify.ClockSkew(),
		ValueCaps: caps,
		Log:       log,
	})

	// ── HTTP server ───────────────────────────────────────────────────────────
	r := gin.New()
	r.Use(gin.Recovery())
	server.NewHandler(engine, history, log).Register(&r.RouterGroup)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Info("HTTP server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	log.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
}
