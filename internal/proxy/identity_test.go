package proxy

import (
	"net/http"
	"testing"
)

func TestExtractComputeID(t *testing.T) {
	const previewDomain = "preview.example.com"

	tests := []struct {
		name string
		host string
		path string
		want string
	}{
		{"port-prefixed host", "3000-abc123456789.preview.example.com", "/", "abc123456789"},
		{"bare host", "abc123456789.preview.example.com", "/", "abc123456789"},
		{"port-prefixed path", "gateway.internal", "/preview/3000-abc123456789", "abc123456789"},
		{"bare path", "gateway.internal", "/preview/abc123456789", "abc123456789"},
		{"hostname rule outranks path rule", "abc.preview.example.com", "/preview/other", "abc"},
		{"no match", "gateway.internal", "/api/v1/presets", ""},
		{"host outside preview domain ignored", "abc123456789.other.com", "/", ""},
		{"port prefix with empty id rejected", "3000-.preview.example.com", "/", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, "http://placeholder"+tt.path, nil)
			if err != nil {
				t.Fatalf("building request: %v", err)
			}
			req.Host = tt.host

			got := ExtractComputeID(req, previewDomain)
			if got != tt.want {
				t.Errorf("ExtractComputeID() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTargetPort_DefaultsWithoutPortPrefix(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://abc123456789.preview.example.com/", nil)
	req.Host = "abc123456789.preview.example.com"

	if got := TargetPort(req, "preview.example.com", 8080); got != 8080 {
		t.Errorf("TargetPort() = %d, want 8080", got)
	}
}

func TestTargetPort_UsesHostPortPrefix(t *testing.T) {
	req, _ := http.NewRequest(http.MethodGet, "http://3000-abc123456789.preview.example.com/", nil)
	req.Host = "3000-abc123456789.preview.example.com"

	if got := TargetPort(req, "preview.example.com", 8080); got != 3000 {
		t.Errorf("TargetPort() = %d, want 3000", got)
	}
}
