// Package proxy bridges end-user traffic to the pod backing a compute: an
// HTTP reverse proxy (HP), a WebSocket proxy with connection tracking and
// idle-teardown (WP), and the pure host/path compute-id extractor (IE)
// both depend on.
package proxy

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/wisbric/compute-gateway/internal/apierr"
)

// ComputeResolver is the narrow view the proxy needs over the Compute
// Manager: resolving a compute id to its current pod state.
type ComputeResolver interface {
	GetPod(ctx context.Context, computeID string) (PodView, error)
}

// PodView is the subset of compute.Info/cluster.PodRecord the proxy acts
// on, kept local to avoid importing the compute package's full surface.
type PodView struct {
	IP    string
	Ready bool
}

// Config configures the HTTP and WebSocket proxies.
type Config struct {
	PreviewDomain      string
	DefaultDaemonPort  int32
	DialTimeout        time.Duration
	UpstreamIdleTimeout time.Duration
}

// HTTPProxy is the HTTP Proxy (HP): stateless, one in-flight request per
// goroutine, no shared mutable state beyond its fixed config.
type HTTPProxy struct {
	computes ComputeResolver
	cfg      Config
	logger   *slog.Logger
}

// NewHTTPProxy builds the HTTP Proxy.
func NewHTTPProxy(computes ComputeResolver, cfg Config, logger *slog.Logger) *HTTPProxy {
	return &HTTPProxy{computes: computes, cfg: cfg, logger: logger}
}

// ServeHTTP resolves the target compute, validates it is ready, and
// reverse-proxies the request to its daemon port.
func (p *HTTPProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	computeID := ExtractComputeID(r, p.cfg.PreviewDomain)
	if computeID == "" {
		apierr.RespondCode(w, apierr.CodeBadRequest, "missing compute ID")
		return
	}

	pod, err := p.computes.GetPod(r.Context(), computeID)
	if err != nil {
		apierr.RespondCode(w, apierr.CodeNotFound, "compute not found")
		return
	}
	if !pod.Ready || pod.IP == "" {
		apierr.RespondCode(w, apierr.CodeServiceUnavailable, "compute not ready")
		return
	}

	port := TargetPort(r, p.cfg.PreviewDomain, p.cfg.DefaultDaemonPort)
	target := &url.URL{Scheme: "http", Host: fmt.Sprintf("%s:%d", pod.IP, port)}

	reverseProxy := &httputil.ReverseProxy{
		Director: func(req *http.Request) {
			req.URL.Scheme = target.Scheme
			req.URL.Host = target.Host
			req.Host = target.Host
			req.Header.Set("X-Forwarded-Host", r.Host)
			req.Header.Set("X-Forwarded-Proto", schemeOf(r))
			req.Header.Set("X-Compute-ID", computeID)
		},
		Transport: &http.Transport{
			DialContext: (&net.Dialer{Timeout: p.cfg.DialTimeout}).DialContext,
			IdleConnTimeout: p.cfg.UpstreamIdleTimeout,
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			p.logger.Warn("proxy upstream error", "compute_id", computeID, "error", err)
			apierr.RespondCode(w, apierr.CodeUpstreamUnavail, "proxy error: "+err.Error())
		},
	}

	reverseProxy.ServeHTTP(w, r)
}

func schemeOf(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}
