package cmd

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wisbric/compute-gateway/internal/app"
	"github.com/wisbric/compute-gateway/internal/config"
)

// splitListenAddr parses a "[host]:port" address as accepted by --listen.
// A bare ":443" yields host="" (leaving GATEWAY_HOST in place) and port=443.
func splitListenAddr(addr string) (host string, port int) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return "", 0
	}
	n, err := strconv.Atoi(p)
	if err != nil {
		return "", 0
	}
	return h, n
}

func isClusterUnavailable(err error) bool {
	return errors.Is(err, app.ErrClusterUnavailable)
}

// newServeCmd creates the Cobra command that starts the gateway.
func newServeCmd() *cobra.Command {
	var (
		listen         string
		previewDomain  string
		defaultPreset  string
		enableTeardown bool
		teardownDelay  time.Duration
		issuer         string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the compute gateway HTTP server",
		Long: `serve loads configuration from the environment, applies any flag
overrides, connects to Postgres, Redis, and the cluster, and then serves the
gateway's control-plane API and proxy traffic until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			applyFlagOverrides(cmd, cfg, listen, previewDomain, defaultPreset, enableTeardown, teardownDelay, issuer)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			return app.Run(ctx, cfg)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address to listen on, e.g. :443 (overrides GATEWAY_HOST/GATEWAY_PORT)")
	cmd.Flags().StringVar(&previewDomain, "preview-domain", "", "base domain computes are addressed under (overrides PREVIEW_DOMAIN)")
	cmd.Flags().StringVar(&defaultPreset, "default-preset", "", "stored as the config's default preset id (overrides DEFAULT_PRESET_ID); compute creation without a preset always uses default-development")
	cmd.Flags().BoolVar(&enableTeardown, "enable-teardown", true, "tear down computes after they go idle (overrides ENABLE_IDLE_TEARDOWN)")
	cmd.Flags().DurationVar(&teardownDelay, "teardown-delay", 0, "idle duration before teardown (overrides IDLE_TEARDOWN_DELAY)")
	cmd.Flags().StringVar(&issuer, "issuer", "", "issuer claim stamped into bearer tokens (overrides TOKEN_ISSUER)")

	return cmd
}

// applyFlagOverrides layers explicitly-set CLI flags over the env-sourced
// config. Flags not set on the command line are left to the environment,
// whatever their default value.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config, listen, previewDomain, defaultPreset string, enableTeardown bool, teardownDelay time.Duration, issuer string) {
	flags := cmd.Flags()

	if flags.Changed("listen") {
		host, port := splitListenAddr(listen)
		if host != "" {
			cfg.Host = host
		}
		if port != 0 {
			cfg.Port = port
		}
	}
	if flags.Changed("preview-domain") {
		cfg.PreviewDomain = previewDomain
	}
	if flags.Changed("default-preset") {
		cfg.DefaultPresetID = defaultPreset
	}
	if flags.Changed("enable-teardown") {
		cfg.EnableIdleTeardown = enableTeardown
	}
	if flags.Changed("teardown-delay") {
		cfg.IdleTeardownDelay = teardownDelay
	}
	if flags.Changed("issuer") {
		cfg.Issuer = issuer
	}
}
