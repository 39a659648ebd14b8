package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"lawggle-ai/internal/adapter/assistant"
	"lawggle-ai/internal/adapter/backend"
	"lawggle-ai/internal/adapter/functions"
	"lawggle-ai/internal/adapter/gateway"
	tuichat "lawggle-ai/internal/adapter/tui/chat"
	"lawggle-ai/internal/infra/config"
	"lawggle-ai/internal/infra/logger"
	"lawggle-ai/internal/infra/tracer"
	"lawggle-ai/internal/usecase/chat"
	"lawggle-ai/internal/usecase/eventbus"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// chatLogPath receives the chat client's logs when the config points them
// at the terminal the widget draws on.
const chatLogPath = "lawggle-chat.log"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "--help", "-h", "help":
		showUsage()
		return
	case "version", "--version":
		fmt.Println("lawggle " + version)
		return
	case "serve":
		err = withConfig(runServe)
	case "chat":
		err = withConfig(runChat)
	case "doctor":
		err = runDoctor(os.Stdout)
	case "config":
		err = runConfig(os.Args[2:], os.Stdin, os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'lawggle --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`lawggle - chat widget for a hosted AI assistant

USAGE:
    lawggle COMMAND [FLAGS]

COMMANDS:
    serve             Run the gateway in front of the hosted assistant
    chat              Open the terminal chat widget against a gateway
    doctor            Run health checks on your setup
    config encrypt    Encrypt a secret for config.yaml (reads LAWGGLE_CONFIG_KEY)
    version           Print the version

FLAGS:
    -h, --help         Show this help message
    --config PATH      Config file path (default: ./config.yaml)

CONFIGURATION:
    Config file: ./config.yaml, or LAWGGLE_CONFIG
    Environment: LAWGGLE_* variables override config

EXAMPLES:
    lawggle serve
    lawggle chat --config ~/.lawggle/config.yaml
    LAWGGLE_CONFIG_KEY=... lawggle config encrypt sk-...`)
}

// configPath resolves the config file: --config flag, then LAWGGLE_CONFIG,
// then ./config.yaml.
func configPath(args []string) string {
	for i, arg := range args {
		if arg == "--config" && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("LAWGGLE_CONFIG"); p != "" {
		return p
	}
	return "config.yaml"
}

// withConfig loads config, logger and tracer, then runs fn until SIGINT or
// SIGTERM.
func withConfig(fn func(ctx context.Context, cfg *config.Config, log *slog.Logger) error) error {
	cfg, err := config.Load(configPath(os.Args[2:]))
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if os.Args[1] == "chat" {
		redirectTerminalLogs(&cfg.Logger)
	}

	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tracerShutdown, err := tracer.Setup(ctx, "lawggle-ai", cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(context.WithoutCancel(ctx))

	return fn(ctx, cfg, log)
}

// redirectTerminalLogs moves stream logging to a file so it cannot draw
// over the widget.
func redirectTerminalLogs(cfg *config.LoggerConfig) {
	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
		cfg.Output = chatLogPath
	}
}

func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if cfg.Assistant.APIKey == "" || cfg.Assistant.AssistantID == "" {
		return errors.New("assistant.api_key and assistant.assistant_id are required to serve")
	}

	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()

	svc := assistant.New(cfg.Assistant, logger.Component(log, "assistant"))
	srv := gateway.NewServer(svc, bus, cfg.Server, logger.Component(log, "gateway"))

	log.Info("lawggle starting", "mode", "serve", "version", version,
		"auth_tokens", len(cfg.Server.AuthTokens), "tracing", cfg.Tracer.Enabled)
	return srv.Start(ctx)
}

func runChat(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	svc, err := backend.New(cfg.Client, logger.Component(log, "backend"))
	if err != nil {
		return err
	}
	registry, err := functions.FromConfig(cfg.Functions, logger.Component(log, "functions"))
	if err != nil {
		return fmt.Errorf("functions: %w", err)
	}
	mcp, err := functions.ConnectMCP(ctx, cfg.MCPServers, logger.Component(log, "mcp"))
	if err != nil {
		return err
	}
	defer mcp.Close()
	if _, err := mcp.Register(ctx, registry); err != nil {
		return err
	}

	bus := eventbus.New(logger.Component(log, "eventbus"))
	defer bus.Close()

	sess := chat.NewSession(svc, registry.Handle, bus, chat.Config{
		Greeting:       cfg.Client.Greeting,
		StallTimeout:   cfg.Client.StallTimeout,
		MaxConcurrency: cfg.Client.MaxConcurrency,
	}, logger.Component(log, "chat"))

	log.Info("lawggle starting", "mode", "chat", "version", version,
		"gateway", cfg.Client.BaseURL, "transport", cfg.Client.Transport,
		"functions", len(registry.Names()), "session_id", sess.ID())
	return tuichat.NewWidget(sess, bus, logger.Component(log, "tui")).Run(ctx)
}

// runConfig handles "config encrypt [VALUE]". Without VALUE the secret is
// read from the first line of stdin.
func runConfig(args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 || args[0] != "encrypt" {
		return errors.New("usage: lawggle config encrypt [VALUE]")
	}
	passphrase := os.Getenv("LAWGGLE_CONFIG_KEY")
	if passphrase == "" {
		return errors.New("LAWGGLE_CONFIG_KEY must be set")
	}

	var value string
	if len(args) > 1 {
		value = args[1]
	} else {
		data, err := io.ReadAll(io.LimitReader(stdin, 64<<10))
		if err != nil {
			return fmt.Errorf("read value: %w", err)
		}
		value, _, _ = strings.Cut(string(data), "\n")
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return errors.New("nothing to encrypt")
	}

	enc, err := config.EncryptValue(value, passphrase)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(stdout, config.EncryptedPrefix+enc)
	return err
}
