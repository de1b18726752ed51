// Package memtools provides the MCP tool handlers for the memory layer.
//
// Each tool follows the same pattern:
// - A struct with its dependencies injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() processes the request and returns a result
//
// User mistakes (bad arguments, unknown IDs) come back as tool errors via
// mcp.NewToolResultError; only transport-level problems return a Go error.
package memtools

import (
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/memory"
)

// intArg extracts an integer argument from a tool request, returning
// defaultVal if the key is missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// floatArg extracts a float argument from a tool request.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

// stringListArg extracts a list argument given either as a JSON array or
// as a comma-separated string. Empty elements are skipped.
func stringListArg(req mcp.CallToolRequest, key string) []string {
	var out []string
	switch raw := req.GetArguments()[key].(type) {
	case []any:
		for _, v := range raw {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, strings.TrimSpace(s))
			}
		}
	case string:
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// dateArg parses a date argument, accepting a plain date or the store's
// timestamp formats. A zero time means absent or unparseable.
func dateArg(req mcp.CallToolRequest, key string) time.Time {
	s := req.GetString(key, "")
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	if t, ok := memory.ParseTime(s); ok {
		return t
	}
	return time.Time{}
}
