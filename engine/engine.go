package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentloop/agent"
	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/gateway"
	"github.com/hupe1980/agentloop/logging"
	"github.com/hupe1980/agentloop/mcp"
	"github.com/hupe1980/agentloop/store"
	"github.com/hupe1980/agentloop/tool"
)

// DefaultProfile is the built-in agent configuration. It always exists and
// cannot be deleted or overwritten.
var DefaultProfile = core.Profile{
	Name:          "Chat assistant",
	Prompt:        "You are a helpful chat assistant who responds to users' questions",
	Tools:         []string{},
	MaxIterations: core.DefaultMaxIterations,
}

// Options configure the engine.
type Options struct {
	// Bridge connects MCP servers. A nil bridge disables MCP tools.
	Bridge *mcp.Bridge

	// Sessions persists conversation sessions. Defaults to in-memory.
	Sessions store.SessionStore

	// Profiles persists agent profiles. Defaults to in-memory.
	Profiles store.ProfileStore

	// Logger receives engine diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Engine is the runtime hub. It owns the tool registries, the profile and
// agent collections and the gateway connection, and implements the
// capability surface agents run against.
type Engine struct {
	gw     gateway.Gateway
	bridge *mcp.Bridge

	sessions store.SessionStore
	profiles store.ProfileStore
	logger   logging.Logger

	localTools *tool.Registry

	mu           sync.RWMutex
	localSchemas map[string]core.ToolSchema
	localOrder   []string
	mcpSchemas   map[string]core.ToolSchema
	mcpOrder     []string
	agentTools   map[string]*agent.Tool
	agentOrder   []string
	profileMap   map[string]core.Profile
	agents       map[string]*agent.TaskAgent
	models       []string
}

var _ agent.Engine = (*Engine)(nil)

// New creates an engine bound to a gateway. Call Init before use.
func New(gw gateway.Gateway, optFns ...func(o *Options)) *Engine {
	opts := Options{
		Sessions: store.NewInMemorySessionStore(),
		Profiles: store.NewInMemoryProfileStore(),
		Logger:   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Engine{
		gw:           gw,
		bridge:       opts.Bridge,
		sessions:     opts.Sessions,
		profiles:     opts.Profiles,
		logger:       opts.Logger,
		localTools:   tool.NewRegistry(),
		localSchemas: make(map[string]core.ToolSchema),
		mcpSchemas:   make(map[string]core.ToolSchema),
		agentTools:   make(map[string]*agent.Tool),
		profileMap:   make(map[string]core.Profile),
		agents:       make(map[string]*agent.TaskAgent),
	}
}

// Init discovers tools and loads persisted state. Order matters: local and
// MCP tool schemas first so rehydrated agents see the full tool surface,
// then profiles (the built-in default always present), then sessions.
func (e *Engine) Init(ctx context.Context) error {
	if rl, ok := e.logger.(*logging.RuntimeLogger); ok {
		defer rl.StartTimer("engine.init")()
	}

	e.loadLocalSchemas()

	if err := e.loadMCPSchemas(ctx); err != nil {
		return err
	}

	if err := e.loadProfiles(); err != nil {
		return err
	}

	return e.loadSessions()
}

func (e *Engine) loadLocalSchemas() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, t := range e.localTools.All() {
		e.registerLocalSchemaLocked(tool.Schema(t))
	}
}

func (e *Engine) loadMCPSchemas(ctx context.Context) error {
	if e.bridge == nil {
		return nil
	}

	schemas := e.bridge.ListTools(ctx)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, schema := range schemas {
		if _, exists := e.mcpSchemas[schema.Name]; !exists {
			e.mcpOrder = append(e.mcpOrder, schema.Name)
		}
		e.mcpSchemas[schema.Name] = schema
	}

	return nil
}

func (e *Engine) loadProfiles() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.profileMap[DefaultProfile.Name] = DefaultProfile

	profiles, err := e.profiles.LoadAll()
	if err != nil {
		return fmt.Errorf("load profiles: %w", err)
	}

	for _, profile := range profiles {
		e.profileMap[profile.Name] = profile
	}

	return nil
}

func (e *Engine) loadSessions() error {
	sessions, err := e.sessions.LoadAll()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	for _, session := range sessions {
		e.mu.RLock()
		profile, ok := e.profileMap[session.Profile]
		e.mu.RUnlock()

		if !ok {
			e.logger.Warn("engine.session.orphaned", "session_id", session.ID, "profile", session.Profile)
			continue
		}

		a := e.newAgent(profile, session, true)

		e.mu.Lock()
		e.agents[session.ID] = a
		e.mu.Unlock()
	}

	return nil
}

// Close releases the MCP bridge.
func (e *Engine) Close() {
	if e.bridge != nil {
		e.bridge.Close()
	}
}

// RegisterTool adds a tool to the engine. Agent-backed tools go into their
// own dispatch bucket; everything else registers as a local tool.
func (e *Engine) RegisterTool(t tool.Tool) {
	if agentTool, ok := t.(*agent.Tool); ok {
		e.mu.Lock()
		defer e.mu.Unlock()

		if _, exists := e.agentTools[agentTool.Name()]; !exists {
			e.agentOrder = append(e.agentOrder, agentTool.Name())
		}
		e.agentTools[agentTool.Name()] = agentTool
		return
	}

	e.localTools.Register(t)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.registerLocalSchemaLocked(tool.Schema(t))
}

func (e *Engine) registerLocalSchemaLocked(schema core.ToolSchema) {
	if _, exists := e.localSchemas[schema.Name]; !exists {
		e.localOrder = append(e.localOrder, schema.Name)
	}
	e.localSchemas[schema.Name] = schema
}

// LocalSchemas returns the registered local tool schemas.
func (e *Engine) LocalSchemas() []core.ToolSchema {
	e.mu.RLock()
	defer e.mu.RUnlock()

	schemas := make([]core.ToolSchema, 0, len(e.localOrder))
	for _, name := range e.localOrder {
		schemas = append(schemas, e.localSchemas[name])
	}
	return schemas
}

// MCPSchemas returns the discovered MCP tool schemas.
func (e *Engine) MCPSchemas() []core.ToolSchema {
	e.mu.RLock()
	defer e.mu.RUnlock()

	schemas := make([]core.ToolSchema, 0, len(e.mcpOrder))
	for _, name := range e.mcpOrder {
		schemas = append(schemas, e.mcpSchemas[name])
	}
	return schemas
}

// ToolSchemas returns the schemas the allow-list selects, local tools
// first, then MCP tools, then agent-backed tools. A nil list selects all.
func (e *Engine) ToolSchemas(tools []string) []core.ToolSchema {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var all []core.ToolSchema
	for _, name := range e.localOrder {
		all = append(all, e.localSchemas[name])
	}
	for _, name := range e.mcpOrder {
		all = append(all, e.mcpSchemas[name])
	}
	for _, name := range e.agentOrder {
		all = append(all, tool.Schema(e.agentTools[name]))
	}

	if tools == nil {
		return all
	}

	allowed := make(map[string]struct{}, len(tools))
	for _, name := range tools {
		allowed[name] = struct{}{}
	}

	var selected []core.ToolSchema
	for _, schema := range all {
		if _, ok := allowed[schema.Name]; ok {
			selected = append(selected, schema)
		}
	}
	return selected
}

// ExecuteTool dispatches one tool call by name: local tools first, then
// MCP tools, then agent-backed tools. Unknown names produce an empty
// result. Execution failures are folded into the result content so the
// model sees them as tool output.
func (e *Engine) ExecuteTool(ctx context.Context, call core.ToolCall) core.ToolResult {
	e.mu.RLock()
	_, isLocal := e.localSchemas[call.Name]
	_, isMCP := e.mcpSchemas[call.Name]
	agentTool, isAgent := e.agentTools[call.Name]
	e.mu.RUnlock()

	var content string

	switch {
	case isLocal:
		content = e.executeLocal(ctx, call)
	case isMCP:
		content = e.bridge.ExecuteTool(ctx, call.Name, call.Arguments)
	case isAgent:
		prompt, _ := call.Arguments["prompt"].(string)
		out, err := agentTool.Call(ctx, map[string]any{"prompt": prompt})
		if err != nil {
			content = fmt.Sprintf("Error executing tool [%s]: %v", call.Name, err)
		} else {
			content = out
		}
	default:
		content = ""
	}

	return core.ToolResult{
		ID:      call.ID,
		Name:    call.Name,
		Content: content,
		// TODO: IsError mirrors "any output produced", not an actual
		// failure signal; revisit once tool results carry an explicit
		// error flag end to end.
		IsError: content != "",
	}
}

// executeLocal runs a local tool, folding errors and panics into the result
// text so a misbehaving tool cannot take down the streaming loop.
func (e *Engine) executeLocal(ctx context.Context, call core.ToolCall) (content string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine.tool.panic", "tool", call.Name, "panic", fmt.Sprint(r))
			content = fmt.Sprintf("Error executing tool [%s]: %v", call.Name, r)
		}
	}()

	t, ok := e.localTools.Get(call.Name)
	if !ok {
		return fmt.Sprintf("Error: Tool [%s] not found", call.Name)
	}

	result, err := t.Call(ctx, call.Arguments)
	if err != nil {
		return fmt.Sprintf("Error executing tool [%s]: %v", call.Name, err)
	}
	return result
}

// Stream forwards the request to the gateway.
func (e *Engine) Stream(ctx context.Context, req core.Request) (<-chan core.Delta, <-chan error) {
	return e.gw.Stream(ctx, req)
}

// Invoke forwards a blocking request to the gateway.
func (e *Engine) Invoke(ctx context.Context, req core.Request) (*core.Response, error) {
	return e.gw.Invoke(ctx, req)
}

// ListModels returns the gateway's model identifiers, cached after the
// first successful call.
func (e *Engine) ListModels(ctx context.Context) ([]string, error) {
	e.mu.RLock()
	cached := e.models
	e.mu.RUnlock()

	if len(cached) > 0 {
		return cached, nil
	}

	models, err := e.gw.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.models = models
	e.mu.Unlock()

	return models, nil
}

// AddProfile stores a new profile. Returns false when the name is taken.
func (e *Engine) AddProfile(profile core.Profile) bool {
	e.mu.Lock()
	if _, exists := e.profileMap[profile.Name]; exists {
		e.mu.Unlock()
		return false
	}
	e.profileMap[profile.Name] = profile
	e.mu.Unlock()

	if err := e.profiles.Save(profile); err != nil {
		e.logger.Error("engine.profile.save_failed", "profile", profile.Name, "error", err.Error())
	}

	return true
}

// UpdateProfile replaces an existing profile. Returns false when the
// profile does not exist.
func (e *Engine) UpdateProfile(profile core.Profile) bool {
	e.mu.Lock()
	if _, exists := e.profileMap[profile.Name]; !exists {
		e.mu.Unlock()
		return false
	}
	e.profileMap[profile.Name] = profile
	e.mu.Unlock()

	if err := e.profiles.Save(profile); err != nil {
		e.logger.Error("engine.profile.save_failed", "profile", profile.Name, "error", err.Error())
	}

	return true
}

// DeleteProfile removes a profile. The built-in default cannot be deleted.
func (e *Engine) DeleteProfile(name string) bool {
	if name == DefaultProfile.Name {
		return false
	}

	e.mu.Lock()
	if _, exists := e.profileMap[name]; !exists {
		e.mu.Unlock()
		return false
	}
	delete(e.profileMap, name)
	e.mu.Unlock()

	if err := e.profiles.Delete(name); err != nil {
		e.logger.Error("engine.profile.delete_failed", "profile", name, "error", err.Error())
	}

	return true
}

// GetProfile returns a profile by name.
func (e *Engine) GetProfile(name string) (core.Profile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	profile, ok := e.profileMap[name]
	return profile, ok
}

// GetAllProfiles returns every known profile.
func (e *Engine) GetAllProfiles() []core.Profile {
	e.mu.RLock()
	defer e.mu.RUnlock()

	profiles := make([]core.Profile, 0, len(e.profileMap))
	for _, profile := range e.profileMap {
		profiles = append(profiles, profile)
	}
	return profiles
}

// CreateAgent builds a new agent with a fresh session. When save is true
// the session is persisted across restarts.
func (e *Engine) CreateAgent(profile core.Profile, save bool) *agent.TaskAgent {
	session := core.NewSession(profile.Name)
	a := e.newAgent(profile, session, save)

	e.mu.Lock()
	e.agents[session.ID] = a
	e.mu.Unlock()

	return a
}

func (e *Engine) newAgent(profile core.Profile, session *core.Session, save bool) *agent.TaskAgent {
	return agent.New(e, profile, session, save, func(o *agent.Options) {
		o.Store = e.sessions
		o.Logger = e.logger
	})
}

// DeleteAgent removes an agent and its persisted session.
func (e *Engine) DeleteAgent(sessionID string) bool {
	e.mu.Lock()
	_, exists := e.agents[sessionID]
	if exists {
		delete(e.agents, sessionID)
	}
	e.mu.Unlock()

	if !exists {
		return false
	}

	if err := e.sessions.Delete(sessionID); err != nil {
		e.logger.Error("engine.session.delete_failed", "session_id", sessionID, "error", err.Error())
	}

	return true
}

// GetAgent returns an agent by session id.
func (e *Engine) GetAgent(sessionID string) (*agent.TaskAgent, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	a, ok := e.agents[sessionID]
	return a, ok
}

// GetAllAgents returns every live agent.
func (e *Engine) GetAllAgents() []*agent.TaskAgent {
	e.mu.RLock()
	defer e.mu.RUnlock()

	agents := make([]*agent.TaskAgent, 0, len(e.agents))
	for _, a := range e.agents {
		agents = append(agents, a)
	}
	return agents
}
