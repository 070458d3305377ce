package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pg-bridge/pgbridge/gateway"
	"github.com/pg-bridge/pgbridge/http"
	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/config"
	"github.com/pg-bridge/pgbridge/pkg/statistics"
)

const shutdownGrace = 5 * time.Second

// App ties the protocol gateway and the admin server together and
// owns their lifecycle.
type App struct {
	cfg   *config.BridgeCfg
	stats *statistics.BridgeStatistics

	gw    *gateway.Gateway
	admin *http.AdminServer
}

func NewApp(cfg *config.BridgeCfg) *App {
	stats := statistics.NewBridgeStatistics()
	a := &App{
		cfg:   cfg,
		stats: stats,
		gw:    gateway.NewGateway(cfg, stats),
	}
	if cfg.EnableHealth {
		a.admin = http.NewAdminServer(cfg.HealthPort, stats, func() bool { return true })
	}
	return a
}

// Run serves until SIGINT or SIGTERM, then shuts both servers down.
// The returned error is whatever made the gateway stop early.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)

	go func() {
		errCh <- a.ProcPG(ctx)
	}()
	if a.admin != nil {
		go func() {
			errCh <- a.ServHttp()
		}()
	}

	var runErr error
	select {
	case sig := <-sigCh:
		bridgelog.Zero.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			bridgelog.Zero.Error().Err(runErr).Msg("server failed")
		}
	}

	a.shutdown()
	return runErr
}

// ProcPG runs the wire-protocol listener.
func (a *App) ProcPG(ctx context.Context) error {
	return a.gw.ListenAndServe(ctx)
}

// ServHttp runs the admin endpoint.
func (a *App) ServHttp() error {
	return a.admin.ListenAndServe()
}

func (a *App) shutdown() {
	a.gw.Shutdown()
	if a.admin != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := a.admin.Shutdown(ctx); err != nil {
			bridgelog.Zero.Warn().Err(err).Msg("admin shutdown failed")
		}
	}
}
