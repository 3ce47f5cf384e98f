// Package app wires the compute gateway's services together: config,
// telemetry, platform connections, the Container Platform Client, the
// Preset and Compute Managers, the Authentication Core, the HTTP/WebSocket
// proxies, and the Gateway Front End, then runs the HTTP server until the
// context is canceled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/wisbric/compute-gateway/internal/auth"
	"github.com/wisbric/compute-gateway/internal/cluster"
	"github.com/wisbric/compute-gateway/internal/compute"
	"github.com/wisbric/compute-gateway/internal/config"
	"github.com/wisbric/compute-gateway/internal/gateway"
	"github.com/wisbric/compute-gateway/internal/httpserver"
	"github.com/wisbric/compute-gateway/internal/platform"
	"github.com/wisbric/compute-gateway/internal/preset"
	"github.com/wisbric/compute-gateway/internal/proxy"
	"github.com/wisbric/compute-gateway/internal/telemetry"
	"github.com/wisbric/compute-gateway/internal/version"
)

// ErrClusterUnavailable wraps any failure connecting to or health-checking
// the cluster, letting cmd/compute-gateway distinguish it from a plain
// config error for exit code purposes.
var ErrClusterUnavailable = errors.New("cluster unavailable")

// Run is the main application entry point: it connects to infrastructure,
// builds the service graph, and serves HTTP until ctx is canceled.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting compute gateway", "listen", cfg.ListenAddr())

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, "compute-gateway", version.Version)
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(shutdownCtx); err != nil {
			logger.Error("shutting down tracer", "error", err)
		}
	}()

	db, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Error("closing redis", "error", err)
		}
	}()

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	cpc, err := cluster.NewClient(cfg.ClusterKubeconfig, cfg.ClusterNamespace)
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w: %w", ErrClusterUnavailable, err)
	}
	if err := cpc.HealthCheck(ctx); err != nil {
		return fmt.Errorf("cluster connectivity check failed: %w: %w", ErrClusterUnavailable, err)
	}

	presetStore := preset.NewStore(db)
	computeSvc := compute.NewService(cpc, nil)
	presetSvc := preset.NewService(presetStore, computeSvc)
	computeSvc = compute.NewService(cpc, presetSvc)

	if err := presetSvc.InitializeDefaults(ctx, cfg.PresetsFile); err != nil {
		return fmt.Errorf("initializing default presets: %w", err)
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret, err = auth.GenerateDevSecret()
		if err != nil {
			return fmt.Errorf("generating dev token secret: %w", err)
		}
		logger.Warn("JWT_SECRET not set, using an auto-generated dev secret — tokens will not survive a restart")
	}
	tokenIssuer, err := auth.NewTokenIssuer(jwtSecret, cfg.Issuer)
	if err != nil {
		return fmt.Errorf("creating token issuer: %w", err)
	}

	authStore := auth.NewStore(db)
	authSvc := auth.NewService(authStore, tokenIssuer, logger, auth.Config{
		UserTokenTTL:    cfg.UserTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		APIKeyTokenTTL:  cfg.APIKeyTTL,
		EndUserTokenTTL: cfg.EndUserTTL,
	})
	loginLimiter := auth.NewRateLimiter(rdb, "login", cfg.LoginRateLimitMax, cfg.LoginRateLimitWindow)

	resolver := &computeResolver{computes: computeSvc, defaultPort: 8080}
	proxyCfg := proxy.Config{
		PreviewDomain:       cfg.PreviewDomain,
		DefaultDaemonPort:   8080,
		DialTimeout:         cfg.ProxyDialTimeout,
		UpstreamIdleTimeout: cfg.ProxyIdleConnTimeout,
	}
	httpProxy := proxy.NewHTTPProxy(resolver, proxyCfg, logger)
	tracker := proxy.NewTracker(cfg.EnableIdleTeardown, cfg.IdleTeardownDelay, func(computeID string) {
		if err := computeSvc.DeleteCompute(context.Background(), computeID); err != nil {
			logger.Error("idle teardown: deleting compute failed", "compute_id", computeID, "error", err)
			return
		}
		logger.Info("idle teardown: compute deleted", "compute_id", computeID)
	})
	wsProxy := proxy.NewWSProxy(resolver, proxyCfg, tracker, logger)

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	}, logger, db, rdb, metricsReg, auth.RequireAuth(authSvc))

	deps := gateway.Deps{
		Auth:      authSvc,
		AuthStore: authStore,
		Presets:   presetSvc,
		Computes:  computeSvc,
		Login:     loginLimiter,
		Logger:    logger,
	}
	gateway.MountPublicAuth(srv.Router, deps)
	gateway.Mount(srv.APIRouter, deps)

	dispatcher := gateway.NewDispatcher(cfg.PreviewDomain, srv, httpProxy, wsProxy)

	return serve(ctx, cfg, logger, dispatcher)
}

func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, handler http.Handler) error {
	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // streamed proxy responses and long-lived WS upgrades must not be cut off
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// computeResolver adapts compute.Service's pod lookup to the narrow view
// the HTTP/WebSocket proxies need.
type computeResolver struct {
	computes    *compute.Service
	defaultPort int32
}

func (r *computeResolver) GetPod(ctx context.Context, computeID string) (proxy.PodView, error) {
	pod, err := r.computes.GetPod(ctx, computeID)
	if err != nil {
		return proxy.PodView{}, err
	}
	return proxy.PodView{IP: pod.IP, Ready: pod.IsReady}, nil
}
