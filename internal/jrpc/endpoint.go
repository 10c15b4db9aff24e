package jrpc

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultScheme = "http"
	DefaultPort   = 14000
	DefaultPath   = "/api/v1"
)

var urlPattern = regexp.MustCompile(`(?i)^(?:(?:http|https)://)?(.+?)(?::(\d+))?(/.*)?$`)

// Endpoint is the address of a JSON-RPC service
type Endpoint struct {
	Scheme string
	Host   string
	Port   int
	Path   string
}

// NewEndpoint returns the management endpoint of host on the default scheme, port and path
func NewEndpoint(host string) Endpoint {
	return Endpoint{Scheme: DefaultScheme, Host: host, Port: DefaultPort, Path: DefaultPath}
}

// URL renders the endpoint with path, or the endpoint's own path when path is empty
func (e Endpoint) URL(path string) string {
	if path == "" {
		path = e.Path
	}
	return fmt.Sprintf("%s://%s%s", e.Scheme, net.JoinHostPort(e.Host, strconv.Itoa(e.Port)), path)
}

func (e Endpoint) String() string {
	return e.URL("")
}

// ParseURL splits raw into an endpoint. Schemes other than http/https fall back
// to http. A zero defaultPort means 443 for https and 80 otherwise.
func ParseURL(raw string, defaultPort int, defaultPath string) (Endpoint, error) {
	scheme := DefaultScheme
	lower := strings.ToLower(raw)
	if strings.HasPrefix(lower, "https://") {
		scheme = "https"
	}

	if defaultPort == 0 {
		defaultPort = 80
		if scheme == "https" {
			defaultPort = 443
		}
	}
	if defaultPath == "" {
		defaultPath = "/"
	}

	m := urlPattern.FindStringSubmatch(raw)
	if m == nil {
		return Endpoint{}, fmt.Errorf("invalid url %q", raw)
	}

	// Host holds a bare IPv6 address; URL adds the brackets back
	host := strings.TrimSuffix(strings.TrimPrefix(m[1], "["), "]")

	ep := Endpoint{Scheme: scheme, Host: host, Port: defaultPort, Path: defaultPath}
	if m[2] != "" {
		port, err := strconv.Atoi(m[2])
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid port in url %q: %w", raw, err)
		}
		ep.Port = port
	}
	if m[3] != "" {
		ep.Path = m[3]
	}

	return ep, nil
}
