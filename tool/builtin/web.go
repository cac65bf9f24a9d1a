package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/agentloop/tool"
)

var urlSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"url": map[string]any{
			"type":        "string",
			"description": "The URL to request",
		},
	},
	"required": []string{"url"},
}

// FetchHTML returns a tool that retrieves the raw body of a URL.
func FetchHTML() tool.Tool {
	client := &http.Client{Timeout: 10 * time.Second}

	return tool.NewFunctionTool(
		"fetch_html",
		"Fetch and return the HTML content of the given URL",
		urlSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			url, err := urlArg(args)
			if err != nil {
				return fmt.Sprintf("Error getting HTML: %v", err), nil
			}

			body, err := fetch(ctx, client, url)
			if err != nil {
				return fmt.Sprintf("Error getting HTML: %v", err), nil
			}
			return body, nil
		},
	)
}

// FetchJSON returns a tool that retrieves a URL and re-serializes its JSON
// body, reporting a parse failure as a plain message.
func FetchJSON() tool.Tool {
	client := &http.Client{Timeout: 10 * time.Second}

	return tool.NewFunctionTool(
		"fetch_json",
		"Fetch and parse JSON data from the given URL",
		urlSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			url, err := urlArg(args)
			if err != nil {
				return fmt.Sprintf("Error getting JSON: %v", err), nil
			}

			body, err := fetch(ctx, client, url)
			if err != nil {
				return fmt.Sprintf("Error getting JSON: %v", err), nil
			}

			var parsed any
			if err := json.Unmarshal([]byte(body), &parsed); err != nil {
				return "Failed to parse JSON, the response content may not be in valid JSON format", nil
			}

			normalized, err := json.Marshal(parsed)
			if err != nil {
				return fmt.Sprintf("Error getting JSON: %v", err), nil
			}
			return string(normalized), nil
		},
	)
}

// CheckLink returns a tool that reports the HTTP status of a URL using a
// HEAD request with redirects followed.
func CheckLink() tool.Tool {
	client := &http.Client{Timeout: 5 * time.Second}

	return tool.NewFunctionTool(
		"check_link",
		"Check the HTTP status of the given link",
		urlSchema,
		func(ctx context.Context, args map[string]any) (string, error) {
			url, err := urlArg(args)
			if err != nil {
				return fmt.Sprintf("Error checking link: %v", err), nil
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
			if err != nil {
				return fmt.Sprintf("Error checking link: %v", err), nil
			}

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Sprintf("Error checking link: %v", err), nil
			}
			defer resp.Body.Close()

			return fmt.Sprintf("Status code: %s", resp.Status), nil
		},
	)
}

// WebTools returns all web access tools.
func WebTools() []tool.Tool {
	return []tool.Tool{FetchHTML(), FetchJSON(), CheckLink()}
}

// urlArg extracts the url argument. Arguments originate from model output,
// so the assertion must be checked.
func urlArg(args map[string]any) (string, error) {
	url, ok := args["url"].(string)
	if !ok || url == "" {
		return "", fmt.Errorf("url must be a non-empty string")
	}
	return url, nil
}

func fetch(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
