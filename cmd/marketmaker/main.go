// Command marketmaker runs one destination-venue FIX session quoting a
// single symbol: loads config, wires the Orchestrator, optionally starts
// the read-only dashboard HTTP surface, and waits for SIGINT/SIGTERM to
// drain and exit. Directly modeled on
// 0xtitan6-polymarket-mm/cmd/bot/main.go's
// config→logger→engine→signal-wait→graceful-stop sequence, generalized
// to this repo's FIX-session-plus-two-tier-storage topology.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/dundas/truex-mm/internal/config"
	"github.com/dundas/truex-mm/internal/httpapi"
	"github.com/dundas/truex-mm/internal/logging"
	"github.com/dundas/truex-mm/internal/orchestrator"
	"github.com/dundas/truex-mm/internal/sqltier"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("TRUEX_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	redisClient := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Error("redis ping failed", zap.Error(err))
		os.Exit(1)
	}

	var sqlTier *sqltier.Tier
	if cfg.SQL.DSN != "" {
		gormDB, err := gorm.Open(mysql.Open(cfg.SQL.DSN), &gorm.Config{})
		if err != nil {
			logger.Error("failed to open sql tier", zap.Error(err))
			os.Exit(1)
		}
		sqlTier, err = sqltier.New(gormDB)
		if err != nil {
			logger.Error("failed to migrate sql schema", zap.Error(err))
			os.Exit(1)
		}
	} else {
		logger.Warn("sql.dsn not configured, running without the durable SQL tier")
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	dial := func(ctx context.Context) (net.Conn, error) {
		addr := fmt.Sprintf("%s:%d", cfg.Fix.Host, cfg.Fix.Port)
		return dialer.DialContext(ctx, "tcp", addr)
	}

	orch, err := orchestrator.New(*cfg, logger, dial, redisClient, sqlTier)
	if err != nil {
		logger.Error("failed to build orchestrator", zap.Error(err))
		os.Exit(1)
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — destination FIX session will connect but placement is logged only")
	}

	ctx := context.Background()
	if err := orch.Start(ctx); err != nil {
		logger.Error("failed to start orchestrator", zap.Error(err))
		os.Exit(1)
	}

	var api *httpapi.Server
	if cfg.Dashboard.Enabled {
		api = httpapi.New(orch, logger)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Dashboard.Port)
			if err := api.Start(addr); err != nil {
				logger.Error("dashboard server failed", zap.Error(err))
			}
		}()
		logger.Info("dashboard started", zap.Int("port", cfg.Dashboard.Port))
	}

	logger.Info("market maker started",
		zap.String("session_id", cfg.SessionID),
		zap.String("symbol", cfg.Quote.Symbol),
		zap.Bool("dry_run", cfg.DryRun),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	if api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := api.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop dashboard", zap.Error(err))
		}
		cancel()
	}

	orch.Stop()
}
