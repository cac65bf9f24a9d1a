package logging

import (
	"time"

	"github.com/hupe1980/agentloop/core"
)

// Tracer records the lifecycle of one agent session: requests leaving for
// the model, deltas coming back, assistant turns completing and tool
// executions. It is a thin layer over Logger so the callback sites in the
// orchestration loop stay one-liners.
//
// When the underlying logger is a RuntimeLogger, model and tool calls are
// reported through its timed LogLLMCall/LogToolCall records with session
// context bound via WithSession; plain loggers get slog-style key-value
// lines.
type Tracer struct {
	logger      Logger
	runtime     *RuntimeLogger
	sessionID   string
	profileName string

	requestStart time.Time
	requestModel string
	tokens       int
	toolStart    time.Time
}

// NewTracer binds a tracer to a session. A nil logger disables tracing.
func NewTracer(logger Logger, sessionID, profileName string) *Tracer {
	if logger == nil {
		logger = NoOpLogger{}
	}

	t := &Tracer{logger: logger, sessionID: sessionID, profileName: profileName}

	if rl, ok := logger.(*RuntimeLogger); ok {
		t.runtime = rl.WithComponent("agent").WithSession(sessionID, profileName)
	}

	return t
}

func (t *Tracer) attrs(extra ...any) []any {
	base := []any{"session_id", t.sessionID, "profile", t.profileName}
	return append(base, extra...)
}

// RequestStart records a request being sent to the gateway and starts the
// latency clock for the turn.
func (t *Tracer) RequestStart(req core.Request) {
	t.requestStart = time.Now()
	t.requestModel = req.Model
	t.tokens = 0

	if t.runtime != nil {
		t.runtime.Info("LLM request started: model=%s messages=%d tools=%d",
			req.Model, len(req.Messages), len(req.ToolSchemas))
		return
	}

	t.logger.Info("llm.request.start", t.attrs(
		"model", req.Model,
		"messages", len(req.Messages),
		"tools", len(req.ToolSchemas),
	)...)
}

// DeltaReceived records one streamed delta and accumulates its token usage
// for the turn record. Logged at debug level since streams produce many of
// them.
func (t *Tracer) DeltaReceived(d core.Delta) {
	if d.Usage != nil {
		t.tokens += d.Usage.InputTokens + d.Usage.OutputTokens
	}

	if t.runtime != nil {
		t.runtime.Debug("LLM delta received: content_len=%d calls=%d finish_reason=%s",
			len(d.Content), len(d.Calls), string(d.FinishReason))
		return
	}

	t.logger.Debug("llm.delta.received", t.attrs(
		"content_len", len(d.Content),
		"calls", len(d.Calls),
		"finish_reason", string(d.FinishReason),
	)...)
}

// ResponseEnd records the completed assistant turn appended to the session,
// including latency and summed token usage.
func (t *Tracer) ResponseEnd(msg core.Message) {
	if t.runtime != nil {
		t.runtime.LogLLMCall(t.requestModel, t.tokens, time.Since(t.requestStart), true, nil)
		return
	}

	t.logger.Info("llm.response.end", t.attrs(
		"content_len", len(msg.Content),
		"tool_calls", len(msg.ToolCalls),
	)...)
}

// ToolStart records a tool about to execute and starts its latency clock.
func (t *Tracer) ToolStart(call core.ToolCall) {
	t.toolStart = time.Now()

	if t.runtime != nil {
		t.runtime.Info("Tool execution started: tool=%s call_id=%s", call.Name, call.ID)
		return
	}

	t.logger.Info("tool.execute.start", t.attrs("tool", call.Name, "call_id", call.ID)...)
}

// ToolEnd records a completed tool execution. The dispatch boundary folds
// failures into the result content, so completion is the only outcome
// observable here.
func (t *Tracer) ToolEnd(result core.ToolResult) {
	if t.runtime != nil {
		t.runtime.LogToolCall(result.Name, time.Since(t.toolStart), true, nil)
		return
	}

	t.logger.Info("tool.execute.end", t.attrs(
		"tool", result.Name,
		"call_id", result.ID,
		"is_error", result.IsError,
		"content_len", len(result.Content),
	)...)
}
