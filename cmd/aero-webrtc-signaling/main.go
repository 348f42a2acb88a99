package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/config"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/relay"
	"github.com/wilsonzlin/aero/proxy/webrtc-signaling/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting aero-webrtc-signaling",
		"listen_addr", cfg.ListenAddr,
		"public_base_url", cfg.PublicBaseURL,
		"mode", cfg.Mode,
		"auth_mode", cfg.AuthMode,
		"max_room_members", cfg.MaxRoomMembers,
		"disconnect_scope", cfg.DisconnectScope,
		"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
		"max_signaling_messages_per_second", cfg.MaxSignalingMessagesPerSecond,
		"turn_rest_enabled", cfg.TURNREST.Enabled(),
	)
	if err := cfg.ICEConfigError(); err != nil {
		logger.Error("invalid ICE server configuration; /readyz will report unready", "err", err)
	}
	logStartupSecurityWarnings(logger, cfg)

	commit, built := resolveBuildInfo(buildCommit, buildTime)
	srv, sig, err := newServers(cfg, logger, httpserver.BuildInfo{Commit: commit, BuildTime: built})
	if err != nil {
		logger.Error("failed to configure server", "err", err)
		os.Exit(2)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		_ = sig.Shutdown(context.Background())
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server exited", "err", err)
			os.Exit(1)
		}
		return
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// http.Server.Shutdown does not track hijacked connections, so the
	// WebSockets are closed separately.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "err", err)
	}
	if err := sig.Shutdown(shutdownCtx); err != nil {
		logger.Error("signaling shutdown incomplete", "err", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server exited after shutdown", "err", err)
		os.Exit(1)
	}
}

// newServers builds the HTTP server with the signaling endpoint mounted on its
// mux, behind the same middleware chain as every other route.
func newServers(cfg config.Config, logger *slog.Logger, build httpserver.BuildInfo) (*httpserver.Server, *signaling.Server, error) {
	turn, err := newTURNGenerator(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("configure TURN REST: %w", err)
	}
	authz, err := signaling.NewAuthAuthorizer(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("configure signaling auth: %w", err)
	}

	m := metrics.New()
	rooms := relay.New(cfg.RelayConfig(), logger, m)
	sig := signaling.NewServer(signaling.Config{
		Relay:                rooms,
		Logger:               logger,
		Authorizer:           authz,
		AllowedOrigins:       cfg.AllowedOrigins,
		AuthTimeout:          cfg.SignalingAuthTimeout,
		IdleTimeout:          cfg.SignalingWSIdleTimeout,
		PingInterval:         cfg.SignalingWSPingInterval,
		MaxMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SendQueueBytes:       cfg.SignalingSendQueueBytes,
		ConnectLimiter:       newConnectLimiter(cfg, m),
	})

	srv := httpserver.New(cfg, logger, build, httpserver.Options{
		Rooms:   rooms,
		Metrics: m,
		TURN:    turn,
	})
	sig.RegisterRoutes(srv.Mux())
	return srv, sig, nil
}

func newConnectLimiter(cfg config.Config, m *metrics.Metrics) *ratelimit.KeyedLimiter {
	if cfg.MaxConnectsPerIPPerSecond <= 0 {
		return nil
	}
	n := int64(cfg.MaxConnectsPerIPPerSecond)
	l := ratelimit.NewKeyedLimiter(ratelimit.RealClock{}, n, n, ratelimit.DefaultMaxKeys)
	l.OnEvict = func(string) { m.Inc(metrics.ConnectLimiterEvictions) }
	return l
}

func resolveBuildInfo(commit, buildTime string) (string, string) {
	// ldflags values win; the Go build info covers `go run` and dev builds.
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if commit == "" {
					commit = s.Value
				}
			case "vcs.time":
				if buildTime == "" {
					buildTime = s.Value
				}
			}
		}
	}
	return commit, buildTime
}
