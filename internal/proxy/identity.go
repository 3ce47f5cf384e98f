package proxy

import (
	"net/http"
	"strings"
)

// ExtractComputeID is the Identity Extractor: a pure function resolving the
// target compute from an inbound request's host or path, with no I/O. Rules
// are evaluated in order; the first match wins. An empty result means "no
// compute referenced by this request".
func ExtractComputeID(r *http.Request, previewDomain string) string {
	host := hostOnly(r.Host)

	if previewDomain != "" {
		if id, ok := matchPortPrefixedHost(host, previewDomain); ok {
			return id
		}
		if id, ok := matchBareHost(host, previewDomain); ok {
			return id
		}
	}

	if id, ok := matchPortPrefixedPath(r.URL.Path); ok {
		return id
	}
	if id, ok := matchBarePath(r.URL.Path); ok {
		return id
	}

	return ""
}

// TargetPort resolves the upstream port for a proxied request: the port of a
// "<port>-<id>" host label or "/preview/<port>-<id>" path segment, checked
// in that order, else defaultPort.
func TargetPort(r *http.Request, previewDomain string, defaultPort int32) int32 {
	host := hostOnly(r.Host)
	if previewDomain != "" {
		if port, ok := portFromPortPrefixedHost(host, previewDomain); ok {
			return port
		}
	}
	if port, ok := portFromPortPrefixedPath(r.URL.Path); ok {
		return port
	}
	return defaultPort
}

func hostOnly(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 {
		return host[:idx]
	}
	return host
}

// matchPortPrefixedHost matches "<port>-<computeID>.<previewDomain>".
func matchPortPrefixedHost(host, previewDomain string) (string, bool) {
	suffix := "." + previewDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, suffix)
	port, id, ok := splitPortPrefix(label)
	if !ok || port == "" {
		return "", false
	}
	return id, true
}

func portFromPortPrefixedHost(host, previewDomain string) (int32, bool) {
	suffix := "." + previewDomain
	if !strings.HasSuffix(host, suffix) {
		return 0, false
	}
	label := strings.TrimSuffix(host, suffix)
	port, _, ok := splitPortPrefix(label)
	if !ok {
		return 0, false
	}
	return parsePort(port)
}

// matchBareHost matches "<computeID>.<previewDomain>".
func matchBareHost(host, previewDomain string) (string, bool) {
	suffix := "." + previewDomain
	if !strings.HasSuffix(host, suffix) {
		return "", false
	}
	label := strings.TrimSuffix(host, suffix)
	if label == "" || strings.Contains(label, ".") {
		return "", false
	}
	// "<digits>-" is a port prefix with an empty id, not a bare id.
	if port, id, found := strings.Cut(label, "-"); found && id == "" {
		if _, ok := parsePort(port); ok {
			return "", false
		}
	}
	return label, true
}

// matchPortPrefixedPath matches "/preview/<port>-<computeID>".
func matchPortPrefixedPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/preview/")
	if !ok {
		return "", false
	}
	rest = strings.SplitN(rest, "/", 2)[0]
	port, id, ok := splitPortPrefix(rest)
	if !ok || port == "" {
		return "", false
	}
	return id, true
}

func portFromPortPrefixedPath(path string) (int32, bool) {
	rest, ok := strings.CutPrefix(path, "/preview/")
	if !ok {
		return 0, false
	}
	rest = strings.SplitN(rest, "/", 2)[0]
	port, _, ok := splitPortPrefix(rest)
	if !ok {
		return 0, false
	}
	return parsePort(port)
}

// matchBarePath matches "/preview/<computeID>".
func matchBarePath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, "/preview/")
	if !ok {
		return "", false
	}
	rest = strings.SplitN(rest, "/", 2)[0]
	if rest == "" || strings.Contains(rest, ".") {
		return "", false
	}
	// A hyphen here is only ambiguous with the port-prefixed form when the
	// segment before it is all digits; matchPortPrefixedPath already
	// handles "<digits>-<id>" and runs first, and a bare "<digits>-" with an
	// empty id is rejected below — a hyphen elsewhere (or a non-numeric
	// prefix) is just part of the compute id.
	if _, _, ok := splitPortPrefix(rest); ok {
		return "", false
	}
	// "<digits>-" is a port prefix with an empty id, not a bare id.
	if port, id, found := strings.Cut(rest, "-"); found && id == "" {
		if _, ok := parsePort(port); ok {
			return "", false
		}
	}
	return rest, true
}

// splitPortPrefix splits a "<port>-<id>" label. The id segment must be
// non-empty and contain no dots; the port segment must be all digits.
func splitPortPrefix(label string) (port, id string, ok bool) {
	idx := strings.Index(label, "-")
	if idx <= 0 {
		return "", "", false
	}
	port = label[:idx]
	id = label[idx+1:]
	if id == "" || strings.Contains(id, ".") {
		return "", "", false
	}
	for _, c := range port {
		if c < '0' || c > '9' {
			return "", "", false
		}
	}
	return port, id, true
}

func parsePort(s string) (int32, bool) {
	var n int32
	if s == "" {
		return 0, false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int32(c-'0')
	}
	return n, true
}
