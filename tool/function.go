package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentloop/internal/util"
)

// FunctionTool is a generic adapter that exposes a plain Go function as a
// tool.
//
// Responsibilities:
//   - Holds an explicit JSON-Schema-like parameter schema
//   - Validates model supplied arguments against that schema before execution
//   - Normalizes error handling so callers receive *ToolError with consistent
//     codes:
//     VALIDATION_ERROR  -> schema / argument mismatch
//     EXECUTION_ERROR   -> underlying function returned an error (non-ToolError)
//     (custom codes preserved if the function returns *ToolError directly)
//
// A FunctionTool has no internal mutable state after construction and is safe
// for concurrent use by multiple goroutines.
type FunctionTool struct {
	// Tool identifier (snake_case recommended)
	name string
	// Human-readable description shown to models
	description string
	// JSON schema describing accepted arguments
	parameters map[string]any
	// User supplied implementation
	fn func(ctx context.Context, args map[string]any) (string, error)
}

// NewFunctionTool constructs a FunctionTool from explicit schema and function.
//
// Example:
//
//	echoTool := NewFunctionTool(
//	  "echo",
//	  "Echo the provided text",
//	  map[string]any{
//	    "type": "object",
//	    "properties": map[string]any{
//	      "text": map[string]any{"type": "string"},
//	    },
//	    "required": []string{"text"},
//	  },
//	  func(ctx context.Context, args map[string]any) (string, error) {
//	    return args["text"].(string), nil
//	  },
//	)
func NewFunctionTool(
	name, description string,
	parameters map[string]any,
	fn func(ctx context.Context, args map[string]any) (string, error),
) *FunctionTool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

// Name returns the unique tool name used in function call declarations and routing.
func (t *FunctionTool) Name() string { return t.name }

// Description returns the short natural language description exposed to models.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the JSON schema describing expected arguments.
func (t *FunctionTool) Parameters() map[string]any { return t.parameters }

// Call validates the provided args against the declared schema then invokes
// the underlying function. Validation or execution failures are wrapped (or
// passed through) as *ToolError for uniform downstream handling.
func (t *FunctionTool) Call(ctx context.Context, args map[string]any) (string, error) {
	if err := util.ValidateParameters(args, t.parameters); err != nil {
		return "", &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    "VALIDATION_ERROR",
			Details: err,
		}
	}

	result, err := t.fn(ctx, args)
	if err != nil {
		if toolErr, ok := err.(*ToolError); ok {
			return "", toolErr
		}

		return "", &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    "EXECUTION_ERROR",
		}
	}

	return result, nil
}
