package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"lawggle-ai/internal/domain"
	"lawggle-ai/internal/infra/config"
)

// mcpCallTimeout bounds a single MCP tool call.
const mcpCallTimeout = 30 * time.Second

// MCPBridge serves function calls from the tools of connected MCP servers.
type MCPBridge struct {
	servers []mcpServerConn
	logger  *slog.Logger
}

type mcpServerConn struct {
	name   string
	prefix string
	client mcpClient
}

// mcpClient is the part of the MCP client the bridge uses.
type mcpClient interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ConnectMCP connects to every configured server. No servers yields an
// empty bridge.
func ConnectMCP(ctx context.Context, servers []config.MCPServerConfig, logger *slog.Logger) (*MCPBridge, error) {
	b := &MCPBridge{logger: logger}
	for _, srv := range servers {
		c, err := connectMCP(ctx, srv)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("mcp server %q: %w", srv.Name, err)
		}
		logger.Info("mcp server connected", "name", srv.Name, "transport", srv.Transport)
		b.servers = append(b.servers, mcpServerConn{name: srv.Name, prefix: srv.Prefix, client: c})
	}
	return b, nil
}

func connectMCP(ctx context.Context, srv config.MCPServerConfig) (mcpClient, error) {
	var c *mcpclient.Client
	switch srv.Transport {
	case config.MCPTransportStdio:
		var err error
		c, err = mcpclient.NewStdioMCPClient(srv.Command, envSlice(srv.Env), srv.Args...)
		if err != nil {
			return nil, fmt.Errorf("create stdio client: %w", err)
		}
	case config.MCPTransportHTTP:
		t, err := transport.NewStreamableHTTP(srv.URL)
		if err != nil {
			return nil, fmt.Errorf("create http transport: %w", err)
		}
		c = mcpclient.NewClient(t)
		if err := c.Start(ctx); err != nil {
			return nil, fmt.Errorf("start http client: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported transport %q", domain.ErrInvalidInput, srv.Transport)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "lawggle", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		c.Close()
		return nil, domain.WrapOp("mcp.initialize", err)
	}
	return c, nil
}

// Register lists each server's tools and registers them in r under
// prefix + tool name. A server whose listing fails is skipped; it is an
// error only when every server fails.
func (b *MCPBridge) Register(ctx context.Context, r *Registry) (int, error) {
	var (
		errs      []string
		listed    int
		available int
	)
	for _, srv := range b.servers {
		result, err := srv.client.ListTools(ctx, mcp.ListToolsRequest{})
		if err != nil {
			b.logger.Warn("mcp tool discovery failed, skipping", "server", srv.name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", srv.name, err))
			continue
		}
		listed++

		for _, tool := range result.Tools {
			fn := &mcpFunction{server: srv.name, client: srv.client, tool: tool.Name, logger: b.logger}
			err := r.Register(Function{
				Name:        srv.prefix + sanitizeName(tool.Name),
				Description: tool.Description,
				Parameters:  inputSchema(tool),
				Handler:     fn.call,
			})
			if err != nil {
				return available, fmt.Errorf("mcp server %q: %w", srv.name, err)
			}
			available++
		}
		b.logger.Info("mcp tools registered", "server", srv.name, "count", len(result.Tools))
	}
	if listed == 0 && len(errs) > 0 {
		return 0, fmt.Errorf("all mcp servers failed discovery: %s", strings.Join(errs, "; "))
	}
	return available, nil
}

// Close shuts down every server connection.
func (b *MCPBridge) Close() {
	for _, srv := range b.servers {
		if err := srv.client.Close(); err != nil {
			b.logger.Warn("mcp server close error", "server", srv.name, "error", err)
		}
	}
}

// inputSchema converts the tool's input schema for argument validation.
// Tools that declare no properties accept any object.
func inputSchema(tool mcp.Tool) map[string]any {
	s := tool.InputSchema
	if s.Properties == nil && s.Required == nil {
		return nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

type mcpFunction struct {
	server string
	tool   string
	client mcpClient
	logger *slog.Logger
}

// call forwards the arguments to the server. Transport failures and tool
// errors come back as an error object so the run can carry on.
func (f *mcpFunction) call(ctx context.Context, args json.RawMessage) (string, error) {
	var in map[string]any
	if err := json.Unmarshal(args, &in); err != nil {
		return errorOutput("arguments must be a JSON object", err.Error()), nil
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = f.tool
	req.Params.Arguments = in

	callCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()

	f.logger.Debug("mcp tool call", "server", f.server, "tool", f.tool)
	result, err := f.client.CallTool(callCtx, req)
	if err != nil {
		f.logger.Warn("mcp tool call failed", "server", f.server, "tool", f.tool, "error", err)
		return errorOutput("mcp tool call failed", err.Error()), nil
	}

	text := mcpContent(result)
	if result.IsError {
		return errorOutput("mcp tool reported an error", text), nil
	}
	return text, nil
}

// mcpContent joins text parts; other content is included as JSON.
func mcpContent(result *mcp.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		switch v := c.(type) {
		case mcp.TextContent:
			parts = append(parts, v.Text)
		case *mcp.TextContent:
			parts = append(parts, v.Text)
		default:
			if data, err := json.Marshal(v); err == nil {
				parts = append(parts, string(data))
			}
		}
	}
	return strings.Join(parts, "\n")
}

// sanitizeName replaces characters the assistant does not accept in
// function names.
func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}
