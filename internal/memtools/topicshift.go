package memtools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/recallhq/recall/internal/memory"
	"github.com/recallhq/recall/internal/thresholds"
	"github.com/recallhq/recall/internal/topicshift"
)

// TopicShiftTool handles the mem_topic_shift MCP tool: score a new user
// activity against recent session context and resolve the action.
type TopicShiftTool struct {
	store    *memory.Store
	detector *topicshift.Detector
	tuner    *thresholds.Tuner
}

// NewTopicShiftTool creates a TopicShiftTool.
func NewTopicShiftTool(store *memory.Store, detector *topicshift.Detector, tuner *thresholds.Tuner) *TopicShiftTool {
	return &TopicShiftTool{store: store, detector: detector, tuner: tuner}
}

// Definition returns the MCP tool definition for mem_topic_shift.
func (t *TopicShiftTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_topic_shift",
		mcp.WithDescription(
			"Score whether a new user activity starts a different topic than the recent "+
				"session context, and resolve the segmentation action (ignore, ask, trust) "+
				"from the project's adaptive thresholds.",
		),
		mcp.WithString("activity",
			mcp.Required(),
			mcp.Description("The new user prompt or activity text"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session whose recent observations form the context"),
		),
		mcp.WithString("project",
			mcp.Description("Project for context filtering and threshold lookup"),
		),
		mcp.WithString("current_topic",
			mcp.Description("Label of the topic currently in progress"),
		),
		mcp.WithNumber("context_size",
			mcp.Description("How many recent observations to consider (default: 20)"),
		),
	)
}

// Handle processes the mem_topic_shift tool call.
func (t *TopicShiftTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	activity := strings.TrimSpace(req.GetString("activity", ""))
	if activity == "" {
		return mcp.NewToolResultError("'activity' is required"), nil
	}

	project := req.GetString("project", "")
	recent, err := t.store.RecentObservations(
		req.GetString("session_id", ""), project, intArg(req, "context_size", 20),
	)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading context failed: %v", err)), nil
	}

	score := t.detector.ScoreShift(topicshift.Context{
		RecentObservations: recent,
		CurrentTopic:       req.GetString("current_topic", ""),
		NewActivity:        activity,
	})

	th, err := t.tuner.Get(project)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("loading thresholds failed: %v", err)), nil
	}
	action := topicshift.ActionFor(score.Score, th)

	var b strings.Builder
	fmt.Fprintf(&b, "Topic shift score: %.2f -> %s (ask >= %.2f, trust >= %.2f)\n",
		score.Score, action, th.AskThreshold, th.TrustThreshold)
	if score.NewTopic != "" {
		fmt.Fprintf(&b, "Suggested topic: %s\n", score.NewTopic)
	}
	fmt.Fprintf(&b, "\nSignals:\n")
	fmt.Fprintf(&b, "  file overlap:        %.2f\n", score.Signals.FileOverlap)
	fmt.Fprintf(&b, "  directory proximity: %.2f\n", score.Signals.DirectoryProximity)
	fmt.Fprintf(&b, "  time gap:            %.2f\n", score.Signals.TimeGap)
	fmt.Fprintf(&b, "  tool pattern:        %.2f\n", score.Signals.ToolPattern)
	fmt.Fprintf(&b, "  prompt structure:    %.2f\n", score.Signals.PromptStructure)
	return mcp.NewToolResultText(b.String()), nil
}

// TopicFeedbackTool handles the mem_topic_feedback MCP tool: outcome
// feedback that drives threshold recalibration.
type TopicFeedbackTool struct {
	tuner *thresholds.Tuner
}

// NewTopicFeedbackTool creates a TopicFeedbackTool.
func NewTopicFeedbackTool(tuner *thresholds.Tuner) *TopicFeedbackTool {
	return &TopicFeedbackTool{tuner: tuner}
}

// Definition returns the MCP tool definition for mem_topic_feedback.
func (t *TopicFeedbackTool) Definition() mcp.Tool {
	return mcp.NewTool("mem_topic_feedback",
		mcp.WithDescription(
			"Record the outcome of a topic-shift decision so the per-project thresholds "+
				"can adapt: an automatic segmentation, a user-reported false positive, or "+
				"a suggestion being shown or accepted.",
		),
		mcp.WithString("project",
			mcp.Required(),
			mcp.Description("Project whose thresholds to update"),
		),
		mcp.WithString("event",
			mcp.Required(),
			mcp.Description("One of: auto_stash, false_positive, suggestion_shown, suggestion_accepted"),
		),
	)
}

// Handle processes the mem_topic_feedback tool call.
func (t *TopicFeedbackTool) Handle(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	project := strings.TrimSpace(req.GetString("project", ""))
	if project == "" {
		return mcp.NewToolResultError("'project' is required"), nil
	}

	var th *memory.Thresholds
	var err error
	event := req.GetString("event", "")
	switch event {
	case "auto_stash":
		th, err = t.tuner.RecordAutoStash(project)
	case "false_positive":
		th, err = t.tuner.RecordFalsePositive(project)
	case "suggestion_shown":
		th, err = t.tuner.RecordSuggestionShown(project)
	case "suggestion_accepted":
		th, err = t.tuner.RecordSuggestionAccepted(project)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown event %q", event)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("recording feedback failed: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Recorded %s for %s. Thresholds now: ask %.2f, trust %.2f.",
		event, project, th.AskThreshold, th.TrustThreshold,
	)), nil
}
