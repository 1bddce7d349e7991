package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/accordsai/web4gateway/pkg/db"
	"github.com/accordsai/web4gateway/services/gateway/internal/chain"
	"github.com/accordsai/web4gateway/services/gateway/internal/config"
	"github.com/accordsai/web4gateway/services/gateway/internal/content"
	"github.com/accordsai/web4gateway/services/gateway/internal/contractid"
	"github.com/accordsai/web4gateway/services/gateway/internal/handler"
	"github.com/accordsai/web4gateway/services/gateway/internal/metrics"
	"github.com/accordsai/web4gateway/services/gateway/internal/routes"
	"github.com/accordsai/web4gateway/services/gateway/internal/write"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := newLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("gateway stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	m := metrics.New()
	c := m.InstrumentChain(newChainClient(cfg))

	table := routes.Chain{routes.StaticTable(cfg.PostRoutes)}
	if cfg.DatabaseURL != "" {
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		table = append(table, routes.NewPGTable(pool))
	}

	h := handler.New(handler.Deps{
		Config:    cfg,
		Chain:     c,
		Contracts: contractid.New(cfg.HostingSuffixes, cfg.DefaultContract, net.DefaultResolver, log.Named("contractid")),
		Content: content.NewResolver(c, content.Options{
			HTTP:     &http.Client{Timeout: cfg.UpstreamTimeout},
			Gateways: content.Gateways{Primary: cfg.NEARFSGatewayURL, Fallback: cfg.IPFSGatewayURL},
			MaxHops:  cfg.MaxPreloadHops,
			Metrics:  m,
			Log:      log.Named("content"),
		}),
		Writes:  write.NewDispatcher(c, cfg.Network.WalletURL, m, log.Named("write")),
		Routes:  table,
		Metrics: m,
		Log:     log.Named("http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("network", cfg.Network.NetworkID),
			zap.String("node_url", cfg.Network.NodeURL),
			zap.Bool("fast_near", cfg.FastNEARURL != ""),
			zap.String("default_contract", cfg.DefaultContract),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newChainClient prefers fast-near for view calls when it is configured.
func newChainClient(cfg *config.Config) chain.Client {
	rpc := chain.NewRPCClient(cfg.Network.NodeURL, cfg.AuthToken, cfg.UpstreamTimeout)
	if cfg.FastNEARURL == "" {
		return rpc
	}
	return chain.NewFastClient(cfg.FastNEARURL, rpc, cfg.UpstreamTimeout)
}

func newLogger(level, format string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = lvl
	return zc.Build()
}
