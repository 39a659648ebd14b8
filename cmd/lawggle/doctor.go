package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"lawggle-ai/internal/adapter/functions"
	"lawggle-ai/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

const checkTimeout = 10 * time.Second

// runDoctor executes all health checks and reports results to w.
func runDoctor(w io.Writer) error {
	cfgPath := configPath(os.Args[2:])
	cfg, cfgErr := config.Load(cfgPath)

	client := &http.Client{Timeout: checkTimeout}
	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Assistant credentials", Fn: checkAssistantCredentials},
		{Name: "Assistant connectivity", Fn: checkAssistantConnectivity(client)},
		{Name: "Gateway", Fn: checkGateway(client)},
		{Name: "Functions", Fn: checkFunctions},
		{Name: "MCP servers", Fn: checkMCPServers},
		{Name: "Stall watchdog", Fn: checkStallWatchdog},
	}

	fmt.Fprintln(w, "lawggle doctor")
	fmt.Fprintln(w, strings.Repeat("=", 50))
	fmt.Fprintln(w)

	pass, warn, fail := runChecks(w, cfg, checks)

	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.Repeat("-", 50))
	fmt.Fprintf(w, "Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		fmt.Fprintln(w, "\nFix the FAIL issues above before running lawggle.")
		return fmt.Errorf("%d check(s) failed", fail)
	}
	if warn > 0 {
		fmt.Fprintln(w, "\nlawggle should work, but consider addressing the warnings.")
	} else {
		fmt.Fprintln(w, "\nAll checks passed! lawggle is ready to run.")
	}
	return nil
}

// runChecks prints each result and returns the tallies.
func runChecks(w io.Writer, cfg *config.Config, checks []Check) (pass, warn, fail int) {
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Fprintf(w, "  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Fprintf(w, "      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}
	return pass, warn, fail
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports whether the config file exists and loads.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     "Check config.yaml syntax, permissions (no group/world write) and LAWGGLE_CONFIG_KEY",
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults and LAWGGLE_* variables", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkAssistantCredentials verifies what "serve" needs to reach the assistant.
func checkAssistantCredentials(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	var missing []string
	if cfg.Assistant.APIKey == "" {
		missing = append(missing, "assistant.api_key")
	}
	if cfg.Assistant.AssistantID == "" {
		missing = append(missing, "assistant.assistant_id")
	}
	if len(missing) > 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s not set; 'lawggle serve' will refuse to start", strings.Join(missing, ", ")),
			Fix:     "Set LAWGGLE_OPENAI_API_KEY and LAWGGLE_ASSISTANT_ID",
		}
	}
	return CheckResult{Status: StatusPass, Message: "api key and assistant id configured"}
}

// checkAssistantConnectivity fetches the configured assistant.
func checkAssistantConnectivity(client *http.Client) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
		}
		a := cfg.Assistant
		if a.APIKey == "" || a.AssistantID == "" {
			return CheckResult{Status: StatusWarn, Message: "skipped, assistant credentials not set"}
		}

		url := strings.TrimRight(a.BaseURL, "/") + "/assistants/" + a.AssistantID
		status, latency, err := httpStatus(client, url, map[string]string{
			"Authorization": "Bearer " + a.APIKey,
			"OpenAI-Beta":   "assistants=v2",
		})
		switch {
		case err != nil:
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot reach %s: %v", a.BaseURL, err),
				Fix:     "Check your internet connection and assistant.base_url",
			}
		case status == http.StatusUnauthorized:
			return CheckResult{Status: StatusFail, Message: "api key rejected", Fix: "Check assistant.api_key"}
		case status == http.StatusNotFound:
			return CheckResult{Status: StatusFail, Message: fmt.Sprintf("assistant %s not found", a.AssistantID), Fix: "Check assistant.assistant_id"}
		case status != http.StatusOK:
			return CheckResult{Status: StatusWarn, Message: fmt.Sprintf("assistant API answered %d", status)}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("assistant %s reachable (latency: %dms)", a.AssistantID, latency.Milliseconds()),
		}
	}
}

// checkGateway checks the gateway "chat" connects to.
func checkGateway(client *http.Client) func(*config.Config) CheckResult {
	return func(cfg *config.Config) CheckResult {
		if cfg == nil {
			return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
		}
		url := strings.TrimRight(cfg.Client.BaseURL, "/") + "/api/health"
		status, latency, err := httpStatus(client, url, nil)
		if err != nil || status != http.StatusOK {
			msg := fmt.Sprintf("gateway at %s not reachable", cfg.Client.BaseURL)
			if err == nil {
				msg = fmt.Sprintf("gateway at %s answered %d", cfg.Client.BaseURL, status)
			}
			return CheckResult{
				Status:  StatusWarn,
				Message: msg + "; 'lawggle chat' needs it",
				Fix:     "Start it with 'lawggle serve' or set client.base_url",
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("gateway reachable (latency: %dms)", latency.Milliseconds()),
		}
	}
}

// checkFunctions compiles the configured function schemas.
func checkFunctions(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	registry, err := functions.FromConfig(cfg.Functions, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Fix the JSON Schema under functions"}
	}
	names := registry.Names()
	if len(names) == 0 {
		return CheckResult{Status: StatusPass, Message: "no functions configured; tool calls are answered with empty output"}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d function(s): %s", len(names), strings.Join(names, ", "))}
}

// checkMCPServers connects to each MCP server and registers its tools.
func checkMCPServers(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if len(cfg.MCPServers) == 0 {
		return CheckResult{Status: StatusPass, Message: "none configured"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := functions.FromConfig(cfg.Functions, log)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Fix the functions section first"}
	}
	bridge, err := functions.ConnectMCP(ctx, cfg.MCPServers, log)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Check mcp_servers command, url and env"}
	}
	defer bridge.Close()

	n, err := bridge.Register(ctx, registry)
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error(), Fix: "Rename clashing functions or set mcp_servers[].prefix"}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("%d server(s), %d tool(s)", len(cfg.MCPServers), n)}
}

// checkStallWatchdog warns when a stalled stream would leave input disabled.
func checkStallWatchdog(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}
	if cfg.Client.StallTimeout <= 0 {
		return CheckResult{
			Status:  StatusWarn,
			Message: "disabled; a stream that stops mid-answer leaves the input disabled",
			Fix:     "Set client.stall_timeout (e.g. 60s)",
		}
	}
	return CheckResult{Status: StatusPass, Message: fmt.Sprintf("input re-enabled after %s of silence", cfg.Client.StallTimeout)}
}

func httpStatus(client *http.Client, url string, headers map[string]string) (int, time.Duration, error) {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, latency, err
	}
	resp.Body.Close()
	return resp.StatusCode, latency, nil
}
