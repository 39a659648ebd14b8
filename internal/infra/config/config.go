package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultGreeting is the assistant message shown before the user types.
const DefaultGreeting = "**Hey there! I'm your Ai compagnon ! 👋** No need to head to CHATGPT, you can ask your questions here "

// Config is the root configuration shared by the gateway and the chat client.
type Config struct {
	Includes  []string         `yaml:"includes,omitempty"`
	Server    ServerConfig     `yaml:"server"`
	Assistant AssistantConfig  `yaml:"assistant"`
	Client    ClientConfig     `yaml:"client"`
	Functions []FunctionConfig `yaml:"functions,omitempty"`
	// MCPServers supply further functions: every tool a server lists is
	// answered by calling that server.
	MCPServers []MCPServerConfig `yaml:"mcp_servers,omitempty"`
	Logger     LoggerConfig      `yaml:"logger"`
	Tracer     TracerConfig      `yaml:"tracer"`
}

// ServerConfig holds gateway HTTP settings.
type ServerConfig struct {
	Addr              string          `yaml:"addr"`
	StreamTimeout     time.Duration   `yaml:"stream_timeout"`
	ReadHeaderTimeout time.Duration   `yaml:"read_header_timeout"`
	MaxBodyBytes      int64           `yaml:"max_body_bytes"`
	RateLimit         RateLimitConfig `yaml:"rate_limit"`
	AuthTokens        []TokenConfig   `yaml:"auth_tokens,omitempty"`
	AllowedOrigins    []string        `yaml:"allowed_origins,omitempty"`
}

// RateLimitConfig holds per-IP token bucket settings. RequestsPerMin 0
// disables limiting.
type RateLimitConfig struct {
	RequestsPerMin int      `yaml:"requests_per_min"`
	Burst          int      `yaml:"burst"`
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
}

// TokenConfig holds a single gateway bearer token.
type TokenConfig struct {
	Name  string `yaml:"name"`
	Token string `yaml:"token"`
}

// AssistantConfig holds hosted assistant settings.
type AssistantConfig struct {
	APIKey         string               `yaml:"api_key"`
	AssistantID    string               `yaml:"assistant_id"`
	BaseURL        string               `yaml:"base_url"`
	ConnTimeout    time.Duration        `yaml:"conn_timeout"`
	RespTimeout    time.Duration        `yaml:"resp_timeout"`
	Pool           PoolConfig           `yaml:"pool"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for upstream calls.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ClientConfig holds chat client settings.
type ClientConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Transport      string        `yaml:"transport"` // "sse" or "websocket"
	Token          string        `yaml:"token"`
	StallTimeout   time.Duration `yaml:"stall_timeout"` // 0 disables the watchdog
	Greeting       string        `yaml:"greeting"`
	MaxConcurrency int           `yaml:"max_concurrency"`
}

// FunctionConfig declares a function the client answers with a fixed output.
// Parameters and OutputSchema are JSON Schemas written in YAML.
type FunctionConfig struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description,omitempty"`
	Parameters   map[string]any `yaml:"parameters,omitempty"`
	OutputSchema map[string]any `yaml:"output_schema,omitempty"`
	Output       string         `yaml:"output"`
}

// MCPServerConfig configures an MCP server connection.
type MCPServerConfig struct {
	Name      string            `yaml:"name"`
	Transport string            `yaml:"transport"` // "stdio" or "http"
	Command   string            `yaml:"command,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	// Prefix is prepended to every tool name from this server.
	Prefix string `yaml:"prefix,omitempty"`
}

// MCP server transports.
const (
	MCPTransportStdio = "stdio"
	MCPTransportHTTP  = "http"
)

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Transport names accepted by client.transport.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:              ":8080",
			StreamTimeout:     40 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
			MaxBodyBytes:      1 << 20,
			RateLimit: RateLimitConfig{
				RequestsPerMin: 120,
				Burst:          20,
			},
		},
		Assistant: AssistantConfig{
			BaseURL:     "https://api.openai.com/v1",
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Client: ClientConfig{
			BaseURL:   "http://localhost:8080",
			Transport: TransportSSE,
			Greeting:  DefaultGreeting,
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file is not an error: defaults plus environment are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}

	if data != nil {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		if err := validatePermissions(absPath); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
		if len(cfg.Includes) > 0 {
			if err := mergeIncludes(cfg, absPath); err != nil {
				return nil, err
			}
			// The main file wins over anything it includes.
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config (second pass): %w", err)
			}
			cfg.Includes = nil
		}
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv("LAWGGLE_CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps LAWGGLE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LAWGGLE_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("LAWGGLE_OPENAI_API_KEY"); v != "" {
		cfg.Assistant.APIKey = v
	}
	if v := os.Getenv("LAWGGLE_ASSISTANT_ID"); v != "" {
		cfg.Assistant.AssistantID = v
	}
	if v := os.Getenv("LAWGGLE_ASSISTANT_BASE_URL"); v != "" {
		cfg.Assistant.BaseURL = v
	}
	if v := os.Getenv("LAWGGLE_CLIENT_BASE_URL"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv("LAWGGLE_CLIENT_TRANSPORT"); v != "" {
		cfg.Client.Transport = strings.ToLower(v)
	}
	if v := os.Getenv("LAWGGLE_CLIENT_TOKEN"); v != "" {
		cfg.Client.Token = v
	}
	if v := os.Getenv("LAWGGLE_STALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.StallTimeout = d
		}
	}
	if v := os.Getenv("LAWGGLE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("LAWGGLE_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
	if v := os.Getenv("LAWGGLE_TRACER_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Tracer.Enabled = b
		}
	}
	if v := os.Getenv("LAWGGLE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
