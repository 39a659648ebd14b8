package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// listing every problem found.
//
// Credentials are not required here: the gateway checks for an API key and
// assistant ID when it starts, so the client can run from the same file.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateServer(cfg, ve)
	validateAssistant(cfg, ve)
	validateClient(cfg, ve)
	validateFunctions(cfg, ve)
	validateMCPServers(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateServer(cfg *Config, ve *ValidationError) {
	s := cfg.Server
	if s.Addr == "" {
		ve.Add("server.addr must not be empty")
	} else if _, _, err := net.SplitHostPort(s.Addr); err != nil {
		ve.Add("server.addr %q is not host:port: %v", s.Addr, err)
	}
	if s.StreamTimeout <= 0 {
		ve.Add("server.stream_timeout must be > 0")
	}
	if s.ReadHeaderTimeout < 0 {
		ve.Add("server.read_header_timeout must be >= 0")
	}
	if s.MaxBodyBytes <= 0 {
		ve.Add("server.max_body_bytes must be > 0")
	}
	if s.RateLimit.RequestsPerMin < 0 {
		ve.Add("server.rate_limit.requests_per_min must be >= 0")
	}
	if s.RateLimit.RequestsPerMin > 0 && s.RateLimit.Burst <= 0 {
		ve.Add("server.rate_limit.burst must be > 0 when rate limiting is enabled")
	}
	for _, p := range s.RateLimit.TrustedProxies {
		if net.ParseIP(p) == nil {
			ve.Add("server.rate_limit.trusted_proxies: %q is not an IP address", p)
		}
	}
	names := make(map[string]bool, len(s.AuthTokens))
	for i, tok := range s.AuthTokens {
		if tok.Token == "" {
			ve.Add("server.auth_tokens[%d].token must not be empty", i)
		}
		if tok.Name == "" {
			ve.Add("server.auth_tokens[%d].name must not be empty", i)
		} else if names[tok.Name] {
			ve.Add("server.auth_tokens: duplicate name %q", tok.Name)
		}
		names[tok.Name] = true
	}
}

func validateAssistant(cfg *Config, ve *ValidationError) {
	a := cfg.Assistant
	if a.BaseURL == "" {
		ve.Add("assistant.base_url must not be empty")
	} else if !isHTTPURL(a.BaseURL) {
		ve.Add("assistant.base_url %q must be an http(s) URL", a.BaseURL)
	}
	if a.ConnTimeout < 0 {
		ve.Add("assistant.conn_timeout must be >= 0")
	}
	if a.RespTimeout < 0 {
		ve.Add("assistant.resp_timeout must be >= 0")
	}
	if a.CircuitBreaker.Enabled && a.CircuitBreaker.Timeout < 0 {
		ve.Add("assistant.circuit_breaker.timeout must be >= 0")
	}
}

func validateClient(cfg *Config, ve *ValidationError) {
	c := cfg.Client
	if c.BaseURL == "" {
		ve.Add("client.base_url must not be empty")
	} else if !isHTTPURL(c.BaseURL) {
		ve.Add("client.base_url %q must be an http(s) URL", c.BaseURL)
	}
	switch c.Transport {
	case TransportSSE, TransportWebSocket:
	default:
		ve.Add("client.transport %q must be %q or %q", c.Transport, TransportSSE, TransportWebSocket)
	}
	if c.StallTimeout < 0 {
		ve.Add("client.stall_timeout must be >= 0")
	}
	if c.MaxConcurrency < 0 {
		ve.Add("client.max_concurrency must be >= 0")
	}
}

func validateFunctions(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool, len(cfg.Functions))
	for i, fn := range cfg.Functions {
		if fn.Name == "" {
			ve.Add("functions[%d].name must not be empty", i)
			continue
		}
		if seen[fn.Name] {
			ve.Add("functions: duplicate name %q", fn.Name)
		}
		seen[fn.Name] = true
	}
}

func validateMCPServers(cfg *Config, ve *ValidationError) {
	seen := make(map[string]bool, len(cfg.MCPServers))
	for i, srv := range cfg.MCPServers {
		if srv.Name == "" {
			ve.Add("mcp_servers[%d].name must not be empty", i)
		} else if seen[srv.Name] {
			ve.Add("mcp_servers: duplicate name %q", srv.Name)
		}
		seen[srv.Name] = true

		switch srv.Transport {
		case MCPTransportStdio:
			if srv.Command == "" {
				ve.Add("mcp_servers[%d].command is required for stdio", i)
			}
		case MCPTransportHTTP:
			if !strings.HasPrefix(srv.URL, "http://") && !strings.HasPrefix(srv.URL, "https://") {
				ve.Add("mcp_servers[%d].url %q must be an http(s) URL", i, srv.URL)
			}
		default:
			ve.Add("mcp_servers[%d].transport %q must be %q or %q", i, srv.Transport, MCPTransportStdio, MCPTransportHTTP)
		}
	}
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

func validateLogger(cfg *Config, ve *ValidationError) {
	if cfg.Logger.Level != "" && !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q must be one of debug, info, warn, error", cfg.Logger.Level)
	}
	switch strings.ToLower(cfg.Logger.Format) {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q must be text or json", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q must be noop or stdout", cfg.Tracer.Exporter)
	}
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
