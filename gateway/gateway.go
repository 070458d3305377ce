package gateway

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pg-bridge/pgbridge/pkg/bridgelog"
	"github.com/pg-bridge/pgbridge/pkg/catalog"
	"github.com/pg-bridge/pgbridge/pkg/config"
	"github.com/pg-bridge/pgbridge/pkg/dataapi"
	"github.com/pg-bridge/pgbridge/pkg/statistics"
	"github.com/pkg/errors"
)

const keepAlivePeriod = 60 * time.Second

// BackendFactory builds the backend client for one accepted
// connection. Swappable for tests.
type BackendFactory func(ctx context.Context) (Backend, error)

// Gateway accepts frontend connections and serves each one on its own
// goroutine until Shutdown.
type Gateway struct {
	cfg     *config.BridgeCfg
	stats   *statistics.BridgeStatistics
	newBack BackendFactory

	mu     sync.Mutex
	active map[string]*PsqlClient

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewGateway(cfg *config.BridgeCfg, stats *statistics.BridgeStatistics) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		stats:  stats,
		active: map[string]*PsqlClient{},
		stop:   make(chan struct{}),
	}
	g.newBack = func(ctx context.Context) (Backend, error) {
		return dataapi.NewClient(ctx, dataapi.Settings{
			ResourceArn:     cfg.ResourceArn,
			SecretArn:       cfg.SecretArn,
			Database:        cfg.Database,
			Region:          cfg.Region,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretAccessKey,
		})
	}
	return g
}

// WithBackendFactory overrides backend construction.
func (g *Gateway) WithBackendFactory(f BackendFactory) *Gateway {
	g.newBack = f
	return g
}

// ListenAndServe blocks accepting connections until Shutdown is
// called or the listener fails.
func (g *Gateway) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(g.cfg.Host, fmt.Sprintf("%d", g.cfg.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", addr)
	}
	bridgelog.Zero.Info().Str("addr", addr).Msg("gateway listening")
	return g.Serve(ctx, listener)
}

// Serve runs the accept loop over an existing listener.
func (g *Gateway) Serve(ctx context.Context, listener net.Listener) error {
	defer listener.Close()

	conns := make(chan net.Conn)
	accErr := make(chan error, 1)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				accErr <- err
				return
			}
			select {
			case conns <- conn:
			case <-g.stop:
				_ = conn.Close()
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-g.stop:
			return nil
		case err := <-accErr:
			select {
			case <-g.stop:
				return nil
			default:
			}
			return errors.Wrap(err, "accept")
		case conn := <-conns:
			g.serveConn(ctx, conn)
		}
	}
}

func (g *Gateway) serveConn(ctx context.Context, conn net.Conn) {
	if g.stats.ActiveConnections() >= int64(g.cfg.MaxConnections) {
		bridgelog.Zero.Warn().
			Str("remote", conn.RemoteAddr().String()).
			Msg("connection limit reached, refusing")
		_ = conn.Close()
		return
	}

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(keepAlivePeriod)
	}

	backend, err := g.newBack(ctx)
	if err != nil {
		bridgelog.Zero.Error().Err(err).Msg("backend client construction failed")
		g.stats.ErrorOccurred()
		_ = conn.Close()
		return
	}

	client := NewPsqlClient(conn, g.cfg.ServerVersion)
	g.register(client)
	g.stats.ConnectionOpened()
	bridgelog.Zero.Info().
		Str("client", client.ID()).
		Str("remote", client.RemoteAddr()).
		Msg("connection accepted")

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			g.unregister(client)
			g.stats.ConnectionClosed()
			bridgelog.Zero.Info().Str("client", client.ID()).Msg("connection closed")
		}()

		responder := &catalog.Responder{
			Database:      g.cfg.Database,
			ServerVersion: g.cfg.ServerVersion,
		}
		NewFrontend(client, backend, responder, g.stats).Run(ctx)
	}()
}

func (g *Gateway) register(c *PsqlClient) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.active[c.ID()] = c
}

func (g *Gateway) unregister(c *PsqlClient) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, c.ID())
}

// Shutdown stops accepting, force-closes every open connection and
// waits for their goroutines to drain.
func (g *Gateway) Shutdown() {
	g.stopOnce.Do(func() { close(g.stop) })

	g.mu.Lock()
	for _, c := range g.active {
		_ = c.Close()
	}
	g.mu.Unlock()

	g.wg.Wait()
	bridgelog.Zero.Info().Msg("gateway stopped")
}
