// Package topicshift scores how likely a new user activity starts a new
// topic relative to recent session context. Five weighted signals feed a
// single 0-1 score; the three-tier action policy maps that score onto the
// per-project adaptive thresholds.
package topicshift

import (
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/recallhq/recall/internal/memory"
)

// Action is the policy outcome for a scored activity.
type Action string

const (
	// ActionIgnore means the activity continues the current topic.
	ActionIgnore Action = "ignore"
	// ActionAsk means a segmentation suggestion should be surfaced.
	ActionAsk Action = "ask"
	// ActionTrust means the conversation segments without asking.
	ActionTrust Action = "trust"
)

// Context is the input to a topic-shift scoring pass.
type Context struct {
	RecentObservations []memory.Observation
	CurrentTopic       string
	NewActivity        string
	// Now anchors the time-gap signal; zero means time.Now().
	Now time.Time
}

// Signals is the per-signal breakdown, each 0 (same topic) to 1
// (different topic).
type Signals struct {
	FileOverlap        float64 `json:"file_overlap"`
	DirectoryProximity float64 `json:"directory_proximity"`
	TimeGap            float64 `json:"time_gap"`
	ToolPattern        float64 `json:"tool_pattern"`
	PromptStructure    float64 `json:"prompt_structure"`
}

// Score is the result of scoring one activity.
type Score struct {
	Score    float64 `json:"score"`
	Signals  Signals `json:"signals"`
	NewTopic string  `json:"new_topic,omitempty"`
}

// Config holds signal weights and the heuristic constants. The tool
// pattern scores and the label cutoff are tunable rather than load
// bearing.
type Config struct {
	FileOverlapWeight   float64
	DirectoryWeight     float64
	TimeGapWeight       float64
	ToolPatternWeight   float64
	PromptWeight        float64
	CodeToResearchScore float64
	ResearchToCodeScore float64
	LabelMinScore       float64
}

// DefaultConfig returns the standard weights and constants.
func DefaultConfig() Config {
	return Config{
		FileOverlapWeight:   0.30,
		DirectoryWeight:     0.15,
		TimeGapWeight:       0.25,
		ToolPatternWeight:   0.15,
		PromptWeight:        0.15,
		CodeToResearchScore: 0.7,
		ResearchToCodeScore: 0.6,
		LabelMinScore:       0.35,
	}
}

// Detector scores topic shifts. Pure functions over the Context; no store
// access.
type Detector struct {
	cfg Config
}

// New creates a Detector.
func New(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

var (
	pathPattern = regexp.MustCompile(`(?:[\w.~-]+/)+[\w.-]+|\b[\w-]+\.(?:go|mod|ts|tsx|js|jsx|py|rs|java|rb|c|h|cpp|cs|md|json|yaml|yml|toml|sql|sh|css|html)\b`)
	urlPattern  = regexp.MustCompile(`https?://\S+|\bwww\.\S+`)
)

var searchIntentWords = []string{
	"search", "look up", "google", "research", "docs", "documentation",
	"find out", "read about",
}

var continuationMarkers = []string{
	"also", "and", "now", "next", "then", "ok", "okay", "great", "thanks",
	"please", "can you also",
}

var codeTools = map[string]bool{
	"Read": true, "Edit": true, "Write": true,
	"Bash": true, "Grep": true, "Glob": true,
}

var researchTools = map[string]bool{
	"WebFetch": true, "WebSearch": true,
}

// ScoreShift computes the weighted topic-shift score for a new activity
// against recent context. Scores near 0 mean the activity continues the
// current topic; near 1, a different one.
func (d *Detector) ScoreShift(ctx Context) Score {
	recentFiles := contextFiles(ctx.RecentObservations)
	activityFiles := extractPaths(ctx.NewActivity)

	sig := Signals{
		FileOverlap:        setDivergence(recentFiles, activityFiles),
		DirectoryProximity: setDivergence(dirsOf(recentFiles), dirsOf(activityFiles)),
		TimeGap:            d.timeGap(ctx),
		ToolPattern:        d.toolPattern(ctx.RecentObservations, ctx.NewActivity, activityFiles),
		PromptStructure:    promptStructure(ctx.NewActivity),
	}

	total := d.cfg.FileOverlapWeight*sig.FileOverlap +
		d.cfg.DirectoryWeight*sig.DirectoryProximity +
		d.cfg.TimeGapWeight*sig.TimeGap +
		d.cfg.ToolPatternWeight*sig.ToolPattern +
		d.cfg.PromptWeight*sig.PromptStructure

	result := Score{Score: total, Signals: sig}
	if total >= d.cfg.LabelMinScore {
		result.NewTopic = deriveLabel(ctx.NewActivity)
	}
	return result
}

// ActionFor maps a score onto the project's adaptive thresholds.
func ActionFor(score float64, th *memory.Thresholds) Action {
	switch {
	case score >= th.TrustThreshold:
		return ActionTrust
	case score >= th.AskThreshold:
		return ActionAsk
	default:
		return ActionIgnore
	}
}

// setDivergence scores how much the activity's set departs from the
// recent set: no members on either side is no signal (0), members on only
// one side is ambiguous (0.5), otherwise 1 - overlap/|activity|.
func setDivergence(recent, activity map[string]bool) float64 {
	if len(recent) == 0 && len(activity) == 0 {
		return 0
	}
	if len(recent) == 0 || len(activity) == 0 {
		return 0.5
	}
	overlap := 0
	for f := range activity {
		if recent[f] {
			overlap++
		}
	}
	return 1 - float64(overlap)/float64(len(activity))
}

func (d *Detector) timeGap(ctx Context) float64 {
	last, ok := lastObservationTime(ctx.RecentObservations)
	if !ok {
		return 0
	}
	now := ctx.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	gap := now.Sub(last)
	switch {
	case gap < 30*time.Second:
		return 0
	case gap < 2*time.Minute:
		return 0.1
	case gap < 5*time.Minute:
		return 0.25
	case gap < 10*time.Minute:
		return 0.5
	case gap < 30*time.Minute:
		return 0.75
	default:
		return 1.0
	}
}

func (d *Detector) toolPattern(recent []memory.Observation, activity string, activityFiles map[string]bool) float64 {
	var sawCode, sawResearch bool
	for _, o := range recent {
		if codeTools[o.ToolName] {
			sawCode = true
		}
		if researchTools[o.ToolName] {
			sawResearch = true
		}
	}
	if !sawCode && !sawResearch {
		return 0
	}

	research := hasResearchIntent(activity)
	hasFile := len(activityFiles) > 0

	if sawCode && !sawResearch && research && !hasFile {
		return d.cfg.CodeToResearchScore
	}
	if sawResearch && !sawCode && hasFile && !research {
		return d.cfg.ResearchToCodeScore
	}
	return 0
}

func promptStructure(activity string) float64 {
	words := strings.Fields(activity)
	switch {
	case len(words) < 8:
		return 0
	case len(words) < 20:
		return 0.15
	case len(words) < 50:
		return 0.3
	}
	if startsWithContinuation(activity) {
		return 0.1
	}
	return 0.5
}

func startsWithContinuation(activity string) bool {
	lower := strings.ToLower(strings.TrimSpace(activity))
	for _, m := range continuationMarkers {
		if lower == m || strings.HasPrefix(lower, m+" ") || strings.HasPrefix(lower, m+",") {
			return true
		}
	}
	return false
}

func hasResearchIntent(activity string) bool {
	if urlPattern.MatchString(activity) {
		return true
	}
	lower := strings.ToLower(activity)
	for _, w := range searchIntentWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// contextFiles collects files from recent observations, both the recorded
// file lists and any paths mentioned in the summaries.
func contextFiles(recent []memory.Observation) map[string]bool {
	files := make(map[string]bool)
	for _, o := range recent {
		for _, f := range o.Files {
			files[f] = true
		}
		for f := range extractPaths(o.InputSummary + " " + o.OutputSummary) {
			files[f] = true
		}
	}
	return files
}

func extractPaths(text string) map[string]bool {
	files := make(map[string]bool)
	for _, m := range pathPattern.FindAllString(text, -1) {
		files[strings.TrimRight(m, "/")] = true
	}
	return files
}

func dirsOf(files map[string]bool) map[string]bool {
	dirs := make(map[string]bool)
	for f := range files {
		if d := path.Dir(f); d != "." {
			dirs[d] = true
		}
	}
	return dirs
}

func lastObservationTime(recent []memory.Observation) (time.Time, bool) {
	var last time.Time
	found := false
	for _, o := range recent {
		if ts, ok := memory.ParseTime(o.CreatedAt); ok && ts.After(last) {
			last = ts
			found = true
		}
	}
	return last, found
}

// deriveLabel produces a short topic label: the last two path segments of
// the first referenced file, else the first six words of the activity
// capped at 40 characters.
func deriveLabel(activity string) string {
	if m := pathPattern.FindString(activity); m != "" {
		parts := strings.Split(strings.TrimRight(m, "/"), "/")
		if len(parts) >= 2 {
			return strings.Join(parts[len(parts)-2:], "/")
		}
		return parts[0]
	}

	words := strings.Fields(activity)
	if len(words) > 6 {
		words = words[:6]
	}
	label := strings.Join(words, " ")
	if len(label) > 40 {
		label = label[:40] + "..."
	}
	return label
}
