package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/internal/util"
	"github.com/hupe1980/agentloop/logging"
)

// DefaultConfigPath is where the bridge looks for server definitions.
const DefaultConfigPath = "mcp_config.json"

// ServerConfig describes how to launch one MCP server over stdio.
type ServerConfig struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Config is the on-disk bridge configuration.
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// Options configure the bridge.
type Options struct {
	// ConfigPath is the config file location. Defaults to DefaultConfigPath.
	ConfigPath string

	// Logger receives bridge diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// request is a unit of work handed to the worker goroutine. The worker runs
// fn against the connections it owns; fn signals completion through its own
// reply channel.
type request func(ctx context.Context, conns map[string]*client.Client)

// Bridge manages MCP server connections behind a synchronous tool API.
//
// All connections live on one background worker goroutine started by New.
// ListTools and ExecuteTool wait for the startup gate, then hand a request to
// the worker and block on the reply. Without a config file no worker is
// started and the bridge degrades to a no-op.
type Bridge struct {
	logger logging.Logger

	// serverName prefixes tool names when exactly one server is configured.
	serverName string

	started  chan struct{}
	requests chan request
	quit     chan struct{}

	enabled bool
	servers map[string]ServerConfig
}

// New loads the configuration and, when servers are defined, launches the
// background worker. A missing or empty config file is not an error: the
// bridge starts disabled and reports no tools.
func New(optFns ...func(o *Options)) (*Bridge, error) {
	opts := Options{
		ConfigPath: DefaultConfigPath,
		Logger:     logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	b := &Bridge{
		logger:   opts.Logger,
		started:  make(chan struct{}),
		requests: make(chan request),
		quit:     make(chan struct{}),
	}

	var cfg Config

	found, err := util.ReadJSONFile(opts.ConfigPath, &cfg)
	if err != nil {
		return nil, fmt.Errorf("load mcp config: %w", err)
	}

	if !found || len(cfg.Servers) == 0 {
		// Nothing to connect to; open the gate so callers never block.
		close(b.started)
		return b, nil
	}

	b.enabled = true
	b.servers = cfg.Servers

	if len(cfg.Servers) == 1 {
		for name := range cfg.Servers {
			b.serverName = name
		}
	}

	go b.run()

	return b, nil
}

// run is the worker loop. It connects the configured servers, opens the
// startup gate and then serves requests until Close signals shutdown.
func (b *Bridge) run() {
	ctx := context.Background()
	conns := make(map[string]*client.Client)

	for name, server := range b.servers {
		conn, err := b.connect(ctx, name, server)
		if err != nil {
			b.logger.Error("mcp.connect.failed", "server", name, "error", err.Error())
			continue
		}
		conns[name] = conn
	}

	close(b.started)

	defer func() {
		for name, conn := range conns {
			if err := conn.Close(); err != nil {
				b.logger.Warn("mcp.close.failed", "server", name, "error", err.Error())
			}
		}
	}()

	for {
		select {
		case <-b.quit:
			return
		case req := <-b.requests:
			req(ctx, conns)
		}
	}
}

func (b *Bridge) connect(ctx context.Context, name string, server ServerConfig) (*client.Client, error) {
	env := make([]string, 0, len(server.Env))
	for k, v := range server.Env {
		env = append(env, k+"="+v)
	}

	conn, err := client.NewStdioMCPClient(server.Command, env, server.Args...)
	if err != nil {
		return nil, fmt.Errorf("start server %q: %w", name, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    "agentloop",
		Version: "1.0.0",
	}

	if _, err := conn.Initialize(ctx, initReq); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("initialize server %q: %w", name, err)
	}

	b.logger.Info("mcp.connected", "server", name)

	return conn, nil
}

// Enabled reports whether any server is configured.
func (b *Bridge) Enabled() bool { return b.enabled }

// Close shuts down the worker and its connections. Safe to call on a
// disabled bridge.
func (b *Bridge) Close() {
	if !b.enabled {
		return
	}
	close(b.quit)
}

// ListTools returns the schemas of every tool exposed by the connected
// servers. Tool names are prefixed with the server name so they stay unique
// across servers. The call blocks until the worker has finished starting up.
func (b *Bridge) ListTools(ctx context.Context) []core.ToolSchema {
	<-b.started

	if !b.enabled {
		return nil
	}

	reply := make(chan []core.ToolSchema, 1)

	req := func(ctx context.Context, conns map[string]*client.Client) {
		var schemas []core.ToolSchema

		names := make([]string, 0, len(conns))
		for name := range conns {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			result, err := conns[name].ListTools(ctx, mcp.ListToolsRequest{})
			if err != nil {
				b.logger.Error("mcp.list_tools.failed", "server", name, "error", err.Error())
				continue
			}

			for _, t := range result.Tools {
				schemas = append(schemas, core.ToolSchema{
					Name:        name + "_" + t.Name,
					Description: t.Description,
					Parameters: map[string]any{
						"type":       t.InputSchema.Type,
						"properties": t.InputSchema.Properties,
						"required":   t.InputSchema.Required,
					},
				})
			}
		}

		reply <- schemas
	}

	if !b.submit(ctx, req) {
		return nil
	}

	select {
	case <-ctx.Done():
		return nil
	case schemas := <-reply:
		return schemas
	}
}

// ExecuteTool runs the named tool on its server and returns the textual
// result. Failures are folded into the result string so the model sees them
// as tool output rather than aborting the conversation.
func (b *Bridge) ExecuteTool(ctx context.Context, name string, args map[string]any) string {
	if !b.enabled {
		return ""
	}

	<-b.started

	server, bareName := b.route(name)

	reply := make(chan string, 1)

	req := func(ctx context.Context, conns map[string]*client.Client) {
		defer func() {
			if r := recover(); r != nil {
				reply <- fmt.Sprintf("Error executing MCP tool '%s': %v", name, r)
			}
		}()

		conn, ok := conns[server]
		if !ok {
			reply <- fmt.Sprintf("Error executing MCP tool '%s': unknown server '%s'", name, server)
			return
		}

		callReq := mcp.CallToolRequest{}
		callReq.Params.Name = bareName
		callReq.Params.Arguments = args

		result, err := conn.CallTool(ctx, callReq)
		if err != nil {
			reply <- fmt.Sprintf("Error executing MCP tool '%s': %v", name, err)
			return
		}

		reply <- renderResult(result)
	}

	if !b.submit(ctx, req) {
		if err := ctx.Err(); err != nil {
			return fmt.Sprintf("Error executing MCP tool '%s': %v", name, err)
		}
		return fmt.Sprintf("Error executing MCP tool '%s': bridge shut down", name)
	}

	select {
	case <-ctx.Done():
		return fmt.Sprintf("Error executing MCP tool '%s': %v", name, ctx.Err())
	case out := <-reply:
		return out
	}
}

// submit hands a request to the worker, giving up when the context ends or
// the bridge shuts down.
func (b *Bridge) submit(ctx context.Context, req request) bool {
	select {
	case b.requests <- req:
		return true
	case <-b.quit:
		return false
	case <-ctx.Done():
		return false
	}
}

// route splits a prefixed tool name into server and bare tool name.
func (b *Bridge) route(name string) (server, bareName string) {
	if b.serverName != "" {
		return b.serverName, strings.TrimPrefix(name, b.serverName+"_")
	}

	for candidate := range b.servers {
		if rest, ok := strings.CutPrefix(name, candidate+"_"); ok {
			return candidate, rest
		}
	}

	return "", name
}

// renderResult flattens a tool call result into plain text.
func renderResult(result *mcp.CallToolResult) string {
	var sb strings.Builder

	for _, content := range result.Content {
		if text, ok := mcp.AsTextContent(content); ok {
			sb.WriteString(text.Text)
		}
	}

	return sb.String()
}
