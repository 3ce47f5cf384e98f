package gateway

import (
	"net/http"
	"strings"

	"github.com/wisbric/compute-gateway/internal/proxy"
)

// Dispatcher is the gateway's outermost handler. Every inbound request first
// passes through the Identity Extractor: a host or path that names a
// compute is end-user traffic and goes straight to the HTTP/WebSocket
// proxy, bypassing the control-plane API entirely; everything else is the
// gateway's own API, handled by api.
type Dispatcher struct {
	previewDomain string
	api           http.Handler
	httpProxy     *proxy.HTTPProxy
	wsProxy       *proxy.WSProxy
}

// NewDispatcher builds the Dispatcher. api serves every request that does
// not name a compute (health checks, /api/v1/*).
func NewDispatcher(previewDomain string, api http.Handler, httpProxy *proxy.HTTPProxy, wsProxy *proxy.WSProxy) *Dispatcher {
	return &Dispatcher{previewDomain: previewDomain, api: api, httpProxy: httpProxy, wsProxy: wsProxy}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if proxy.ExtractComputeID(r, d.previewDomain) == "" {
		d.api.ServeHTTP(w, r)
		return
	}

	if isWebSocketUpgrade(r) {
		d.wsProxy.ServeHTTP(w, r)
		return
	}
	d.httpProxy.ServeHTTP(w, r)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket") &&
		strings.Contains(strings.ToLower(r.Header.Get("Connection")), "upgrade")
}
