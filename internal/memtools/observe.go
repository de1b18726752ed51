package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/memory"
)

// ObserveTool handles the mem_observe MCP tool: capturing a tool-use
// record so sessions and conversations have searchable history.
type ObserveTool struct {
	store *memory.Store
}

// NewObserveTool creates an ObserveTool.
func NewObserveTool(store *memory.Store) *ObserveTool {
	return &ObserveTool{store: store}
}

// Definition returns the MCP tool definition for mem_observe.
func (t *ObserveTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_observe",
		mcp.WithDescription(
			"Record a tool-use observation in the current session: which tool ran, "+
				"what it did, and which files were involved.",
		),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Session this observation belongs to"),
		),
		mcp.WithString("tool_name",
			mcp.Required(),
			mcp.Description("Name of the tool that ran (Read, Edit, Bash, WebSearch, ...)"),
		),
		mcp.WithString("input_summary",
			mcp.Description("Short summary of the tool input"),
		),
		mcp.WithString("output_summary",
			mcp.Description("Short summary of the tool output"),
		),
		mcp.WithString("conversation_id",
			mcp.Description("Conversation segment, if one is open"),
		),
		mcp.WithString("project",
			mcp.Description("Project the work happened in"),
		),
		mcp.WithString("files",
			mcp.Description("Comma-separated files involved"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
	)
}

// Handle processes the mem_observe tool call.
func (t *ObserveTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID := strings.TrimSpace(req.GetString("session_id", ""))
	toolName := strings.TrimSpace(req.GetString("tool_name", ""))
	if sessionID == "" || toolName == "" {
		return mcp.NewToolResultError("'session_id' and 'tool_name' are required"), nil
	}

	project := req.GetString("project", "")
	if err := t.store.CreateSession(sessionID, project); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("session registration failed: %v", err)), nil
	}

	id, err := t.store.AddObservation(memory.AddObservationParams{
		SessionID:      sessionID,
		ConversationID: req.GetString("conversation_id", ""),
		ToolName:       toolName,
		InputSummary:   req.GetString("input_summary", ""),
		OutputSummary:  req.GetString("output_summary", ""),
		Project:        project,
		Files:          stringListArg(req, "files"),
		Tags:           stringListArg(req, "tags"),
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("observation capture failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Recorded observation %s.", id)), nil
}
