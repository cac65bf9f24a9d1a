// Package agentloop provides a high-level façade over the agent runtime:
// gateway selection, tool registration, profile and session management.
// Most applications interact with this package by:
//  1. Creating an AgentLoop via New() with a gateway name and its settings
//  2. Registering tools and profiles
//  3. Creating agents and streaming or invoking conversations
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development; durable
// deployments supply file-backed stores and a structured logger.
package agentloop

import (
	"context"
	"fmt"
	"sort"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/engine"
	"github.com/hupe1980/agentloop/gateway"
	"github.com/hupe1980/agentloop/gateway/anthropic"
	"github.com/hupe1980/agentloop/gateway/deepseek"
	"github.com/hupe1980/agentloop/gateway/openai"
	"github.com/hupe1980/agentloop/gateway/openrouter"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/mcp"
	"github.com/hupe1980/agentloop/store"
	"github.com/hupe1980/agentloop/tool"
)

// gatewayFactories maps public gateway names to constructors. OpenAI
// doubles as the generic adapter for any compatible endpoint.
var gatewayFactories = map[string]func(logger logging.Logger) gateway.Gateway{
	"OpenAI": func(logger logging.Logger) gateway.Gateway {
		return openai.New(func(o *openai.Options) { o.Logger = logger })
	},
	"OpenRouter": func(logger logging.Logger) gateway.Gateway {
		return openrouter.New(func(o *openrouter.Options) { o.Logger = logger })
	},
	"DeepSeek": func(logger logging.Logger) gateway.Gateway {
		return deepseek.New(func(o *deepseek.Options) { o.Logger = logger })
	},
	"Anthropic": func(logger logging.Logger) gateway.Gateway {
		return anthropic.New(func(o *anthropic.Options) { o.Logger = logger })
	},
}

// GatewayNames lists the available gateway backends.
func GatewayNames() []string {
	names := make([]string, 0, len(gatewayFactories))
	for name := range gatewayFactories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewGateway constructs a gateway by name, falling back to the OpenAI
// adapter for unknown names so custom compatible endpoints keep working.
func NewGateway(name string, logger logging.Logger) gateway.Gateway {
	if factory, ok := gatewayFactories[name]; ok {
		return factory(logger)
	}
	return gatewayFactories["OpenAI"](logger)
}

// Options configure the runtime façade.
type Options struct {
	// Gateway overrides the named gateway with a custom implementation.
	Gateway gateway.Gateway

	// MCPConfigPath locates the MCP server configuration. Defaults to
	// mcp.DefaultConfigPath; servers are optional.
	MCPConfigPath string

	// Sessions persists conversations. Defaults to in-memory.
	Sessions store.SessionStore

	// Profiles persists agent configurations. Defaults to in-memory.
	Profiles store.ProfileStore

	// Logger receives runtime diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// AgentLoop is the high-level façade aggregating the engine, the gateway
// and the MCP bridge.
type AgentLoop struct {
	engine *engine.Engine
	gw     gateway.Gateway
	bridge *mcp.Bridge
}

// New builds the runtime: it constructs the named gateway, initializes it
// with the provided settings, starts the MCP bridge and loads persisted
// state.
func New(ctx context.Context, gatewayName string, setting gateway.Setting, optFns ...func(o *Options)) (*AgentLoop, error) {
	opts := Options{
		MCPConfigPath: mcp.DefaultConfigPath,
		Sessions:      store.NewInMemorySessionStore(),
		Profiles:      store.NewInMemoryProfileStore(),
		Logger:        logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	gw := opts.Gateway
	if gw == nil {
		gw = NewGateway(gatewayName, opts.Logger)
	}

	if err := gw.Init(setting); err != nil {
		return nil, fmt.Errorf("init gateway %s: %w", gw.Name(), err)
	}

	// Bind the backend name into every runtime log line when the caller
	// supplied a RuntimeLogger.
	logger := opts.Logger
	if rl, ok := logger.(*logging.RuntimeLogger); ok {
		logger = rl.WithContext("gateway", gw.Name())
	}

	bridge, err := mcp.New(func(o *mcp.Options) {
		o.ConfigPath = opts.MCPConfigPath
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	eng := engine.New(gw, func(o *engine.Options) {
		o.Bridge = bridge
		o.Sessions = opts.Sessions
		o.Profiles = opts.Profiles
		o.Logger = logger
	})

	if err := eng.Init(ctx); err != nil {
		bridge.Close()
		return nil, err
	}

	return &AgentLoop{engine: eng, gw: gw, bridge: bridge}, nil
}

// Engine exposes the underlying engine for advanced wiring.
func (l *AgentLoop) Engine() *engine.Engine { return l.engine }

// Close shuts down the MCP bridge.
func (l *AgentLoop) Close() { l.engine.Close() }

// RegisterTool adds a local or agent-backed tool.
func (l *AgentLoop) RegisterTool(t tool.Tool) { l.engine.RegisterTool(t) }

// CreateAgent builds an agent from a profile. Persistent agents survive
// restarts through the configured session store.
func (l *AgentLoop) CreateAgent(profile core.Profile, save bool) *agent.TaskAgent {
	return l.engine.CreateAgent(profile, save)
}

// ListModels returns the gateway's available model identifiers.
func (l *AgentLoop) ListModels(ctx context.Context) ([]string, error) {
	return l.engine.ListModels(ctx)
}
