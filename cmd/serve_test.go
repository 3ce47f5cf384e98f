package cmd

import (
	"errors"
	"fmt"
	"testing"

	"github.com/wisbric/compute-gateway/internal/app"
)

func TestSplitListenAddr(t *testing.T) {
	tests := []struct {
		addr     string
		wantHost string
		wantPort int
	}{
		{":443", "", 443},
		{"0.0.0.0:8080", "0.0.0.0", 8080},
		{"not-an-addr", "", 0},
	}

	for _, tt := range tests {
		host, port := splitListenAddr(tt.addr)
		if host != tt.wantHost || port != tt.wantPort {
			t.Errorf("splitListenAddr(%q) = (%q, %d), want (%q, %d)", tt.addr, host, port, tt.wantHost, tt.wantPort)
		}
	}
}

func TestExitCodeFor(t *testing.T) {
	if got := exitCodeFor(fmt.Errorf("bad config")); got != ExitConfigError {
		t.Errorf("exitCodeFor(generic) = %d, want %d", got, ExitConfigError)
	}

	wrapped := fmt.Errorf("connecting to cluster: %w: %w", app.ErrClusterUnavailable, errors.New("dial tcp: timeout"))
	if got := exitCodeFor(wrapped); got != ExitClusterFailure {
		t.Errorf("exitCodeFor(cluster) = %d, want %d", got, ExitClusterFailure)
	}
}
