// Package builtin ships a small set of ready-made tools for common agent
// needs: date/time lookups and basic web access.
package builtin

import (
	"context"
	"time"

	"github.com/hupe1980/agentloop/tool"
)

var noArgSchema = map[string]any{
	"type":       "object",
	"properties": map[string]any{},
}

// CurrentDate returns a tool reporting the current date as YYYY-MM-DD.
func CurrentDate() tool.Tool {
	return tool.NewFunctionTool(
		"current_date",
		"Get the current date string in YYYY-MM-DD format",
		noArgSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Format("2006-01-02"), nil
		},
	)
}

// CurrentTime returns a tool reporting the current time as HH:MM:SS.
func CurrentTime() tool.Tool {
	return tool.NewFunctionTool(
		"current_time",
		"Get the current time string in HH:MM:SS format",
		noArgSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Format("15:04:05"), nil
		},
	)
}

// CurrentDateTime returns a tool reporting the current date and time.
func CurrentDateTime() tool.Tool {
	return tool.NewFunctionTool(
		"current_datetime",
		"Get the current date and time string in YYYY-MM-DD HH:MM:SS format",
		noArgSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Format("2006-01-02 15:04:05"), nil
		},
	)
}

// DayOfWeek returns a tool reporting the current weekday name.
func DayOfWeek() tool.Tool {
	return tool.NewFunctionTool(
		"day_of_week",
		"Get the name of the current day of the week (for example: Monday)",
		noArgSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			return time.Now().Weekday().String(), nil
		},
	)
}

// DateTimeTools returns all date/time tools.
func DateTimeTools() []tool.Tool {
	return []tool.Tool{CurrentDate(), CurrentTime(), CurrentDateTime(), DayOfWeek()}
}
