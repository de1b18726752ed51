// Package memory implements the persistent record store for Recall.
//
// It uses SQLite with FTS5 full-text search to persist observations,
// knowledge items, sessions and conversations from AI coding sessions,
// plus the knowledge-graph edge table and the per-project adaptive
// thresholds consumed by the topic-shift policy.
package memory

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// ─── Collection kinds ────────────────────────────────────────────────────────

// Collection kinds searched by the hybrid engine.
const (
	KindObservation  = "observation"
	KindKnowledge    = "knowledge"
	KindSession      = "session"
	KindConversation = "conversation"
)

// Kinds returns all searchable collection kinds.
func Kinds() []string {
	return []string{KindObservation, KindKnowledge, KindSession, KindConversation}
}

// Knowledge item types.
const (
	TypeFact       = "fact"
	TypeDecision   = "decision"
	TypePreference = "preference"
	TypePattern    = "pattern"
	TypeIssue      = "issue"
	TypeContext    = "context"
	TypeDiscovery  = "discovery"
)

// ValidKnowledgeType reports whether t is a recognized knowledge item type.
func ValidKnowledgeType(t string) bool {
	switch t {
	case TypeFact, TypeDecision, TypePreference, TypePattern, TypeIssue, TypeContext, TypeDiscovery:
		return true
	}
	return false
}

// Edge relationship types.
const (
	RelDerivesFrom = "derives_from"
	RelLeadsTo     = "leads_to"
	RelSupports    = "supports"
	RelContradicts = "contradicts"
	RelRefines     = "refines"
	RelSupersedes  = "supersedes"
)

// ValidRelationship reports whether r is a recognized edge relationship.
func ValidRelationship(r string) bool {
	switch r {
	case RelDerivesFrom, RelLeadsTo, RelSupports, RelContradicts, RelRefines, RelSupersedes:
		return true
	}
	return false
}

// ─── Types ───────────────────────────────────────────────────────────────────

// Session represents a coding session.
type Session struct {
	ID        string  `json:"id"`
	Project   string  `json:"project"`
	Summary   *string `json:"summary,omitempty"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
}

// Conversation represents one conversation segment within a session.
// Segments are opened when the topic-shift policy decides to cut.
type Conversation struct {
	ID        string  `json:"id"`
	SessionID string  `json:"session_id"`
	Title     string  `json:"title"`
	Summary   *string `json:"summary,omitempty"`
	Project   string  `json:"project,omitempty"`
	StartedAt string  `json:"started_at"`
	EndedAt   *string `json:"ended_at,omitempty"`
}

// Observation is a captured tool-use record. Written by the capture
// pipeline; read-only input to the retrieval core.
type Observation struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"session_id"`
	ConversationID string   `json:"conversation_id,omitempty"`
	ToolName       string   `json:"tool_name"`
	InputSummary   string   `json:"input_summary,omitempty"`
	OutputSummary  string   `json:"output_summary,omitempty"`
	Project        string   `json:"project,omitempty"`
	Files          []string `json:"files,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	CreatedAt      string   `json:"created_at"`
}

// KnowledgeItem is a durable saved piece of knowledge, independent of any
// single observation. Created on explicit save or by auto-discovery.
type KnowledgeItem struct {
	ID                   string   `json:"id"`
	Type                 string   `json:"type"`
	Content              string   `json:"content"`
	SourceObservationIDs []string `json:"source_observation_ids,omitempty"`
	SourceKnowledgeIDs   []string `json:"source_knowledge_ids,omitempty"`
	Project              string   `json:"project,omitempty"`
	Tags                 []string `json:"tags,omitempty"`
	Confidence           float64  `json:"confidence"`
	CreatedAt            string   `json:"created_at"`
	UpdatedAt            string   `json:"updated_at"`
}

// Edge is a directed, typed, weighted link between two knowledge items.
// from→to reads "from relates-to to": A derives_from B means B is a source of A.
type Edge struct {
	ID           string  `json:"id"`
	FromID       string  `json:"from_id"`
	ToID         string  `json:"to_id"`
	Relationship string  `json:"relationship"`
	Strength     float64 `json:"strength"`
	CreatedAt    string  `json:"created_at"`
}

// Thresholds holds the per-project adaptive decision boundaries for the
// topic-shift action policy, plus the feedback counters that drive
// recalibration.
type Thresholds struct {
	Project            string  `json:"project"`
	AskThreshold       float64 `json:"ask_threshold"`
	TrustThreshold     float64 `json:"trust_threshold"`
	AutoStashCount     int     `json:"auto_stash_count"`
	FalsePositiveCount int     `json:"false_positive_count"`
	SuggestionShown    int     `json:"suggestion_shown_count"`
	SuggestionAccepted int     `json:"suggestion_accepted_count"`
	UpdatedAt          string  `json:"updated_at"`
}

// Default topic-shift thresholds, applied on lazy creation.
const (
	DefaultAskThreshold   = 0.4
	DefaultTrustThreshold = 0.85
)

// TextHit is one full-text search hit. Rank comes straight from FTS5
// (BM25-style: lower/more negative is better).
type TextHit struct {
	Kind      string
	ID        string
	Snippet   string
	CreatedAt time.Time
	Project   string
	Tags      []string
	Rank      float64
}

// TextFilter narrows a full-text search.
type TextFilter struct {
	Project  string
	FromDate time.Time
	ToDate   time.Time
	Limit    int
}

// AddObservationParams holds the input for capturing a tool-use observation.
type AddObservationParams struct {
	ID             string
	SessionID      string
	ConversationID string
	ToolName       string
	InputSummary   string
	OutputSummary  string
	Project        string
	Files          []string
	Tags           []string
	CreatedAt      string // optional; defaults to now
}

// SaveKnowledgeParams holds the input for persisting a knowledge item.
type SaveKnowledgeParams struct {
	ID                   string // optional; generated when empty
	Type                 string
	Content              string
	SourceObservationIDs []string
	SourceKnowledgeIDs   []string
	Project              string
	Tags                 []string
	Confidence           float64
	CreatedAt            string // optional; defaults to now
}

// UpdateKnowledgeParams holds partial update fields for a knowledge item.
type UpdateKnowledgeParams struct {
	Content    *string
	Tags       *[]string
	Confidence *float64
}

// Stats holds aggregate store statistics.
type Stats struct {
	Sessions      int `json:"sessions"`
	Conversations int `json:"conversations"`
	Observations  int `json:"observations"`
	Knowledge     int `json:"knowledge"`
	Edges         int `json:"edges"`
	Embeddings    int `json:"embeddings"`
}

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds record store configuration.
type Config struct {
	DataDir          string
	MaxContentLength int
	MaxSearchResults int
	SnippetLength    int
}

// DefaultConfig returns the default configuration for the record store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:          filepath.Join(home, ".recall"),
		MaxContentLength: 4000,
		MaxSearchResults: 50,
		SnippetLength:    300,
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store is the persistent record store backed by SQLite + FTS5.
type Store struct {
	db  *sql.DB
	cfg Config
}

// New creates a new Store with the given configuration.
// It creates the data directory if needed, opens SQLite with WAL mode,
// and runs migrations.
func New(cfg Config) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("memory: create data dir: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, "recall.db")
	db, err := openDB("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("memory: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return nil, fmt.Errorf("memory: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, cfg: cfg}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memory: migration: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id         TEXT PRIMARY KEY,
			project    TEXT NOT NULL DEFAULT '',
			summary    TEXT,
			started_at TEXT NOT NULL DEFAULT (datetime('now')),
			ended_at   TEXT
		);

		CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			summary    TEXT,
			project    TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL DEFAULT (datetime('now')),
			ended_at   TEXT,
			FOREIGN KEY (session_id) REFERENCES sessions(id)
		);

		CREATE TABLE IF NOT EXISTS observations (
			id              TEXT PRIMARY KEY,
			session_id      TEXT NOT NULL,
			conversation_id TEXT,
			tool_name       TEXT NOT NULL,
			input_summary   TEXT NOT NULL DEFAULT '',
			output_summary  TEXT NOT NULL DEFAULT '',
			project         TEXT NOT NULL DEFAULT '',
			files           TEXT NOT NULL DEFAULT '[]',
			tags            TEXT NOT NULL DEFAULT '[]',
			created_at      TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_obs_session ON observations(session_id);
		CREATE INDEX IF NOT EXISTS idx_obs_project ON observations(project);
		CREATE INDEX IF NOT EXISTS idx_obs_created ON observations(created_at DESC);

		CREATE TABLE IF NOT EXISTS knowledge_items (
			id                     TEXT PRIMARY KEY,
			type                   TEXT NOT NULL,
			content                TEXT NOT NULL,
			source_observation_ids TEXT NOT NULL DEFAULT '[]',
			source_knowledge_ids   TEXT NOT NULL DEFAULT '[]',
			project                TEXT NOT NULL DEFAULT '',
			tags                   TEXT NOT NULL DEFAULT '[]',
			confidence             REAL NOT NULL DEFAULT 1.0,
			created_at             TEXT NOT NULL DEFAULT (datetime('now')),
			updated_at             TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_know_type    ON knowledge_items(type);
		CREATE INDEX IF NOT EXISTS idx_know_project ON knowledge_items(project);
		CREATE INDEX IF NOT EXISTS idx_know_created ON knowledge_items(created_at DESC);

		CREATE TABLE IF NOT EXISTS knowledge_edges (
			id           TEXT PRIMARY KEY,
			from_id      TEXT NOT NULL,
			to_id        TEXT NOT NULL,
			relationship TEXT NOT NULL,
			strength     REAL NOT NULL DEFAULT 1.0,
			created_at   TEXT NOT NULL DEFAULT (datetime('now')),
			FOREIGN KEY (from_id) REFERENCES knowledge_items(id) ON DELETE CASCADE,
			FOREIGN KEY (to_id)   REFERENCES knowledge_items(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_edge_from ON knowledge_edges(from_id);
		CREATE INDEX IF NOT EXISTS idx_edge_to   ON knowledge_edges(to_id);
		CREATE INDEX IF NOT EXISTS idx_edge_rel  ON knowledge_edges(relationship);

		CREATE TABLE IF NOT EXISTS adaptive_thresholds (
			project                   TEXT PRIMARY KEY,
			ask_threshold             REAL NOT NULL,
			trust_threshold           REAL NOT NULL,
			auto_stash_count          INTEGER NOT NULL DEFAULT 0,
			false_positive_count      INTEGER NOT NULL DEFAULT 0,
			suggestion_shown_count    INTEGER NOT NULL DEFAULT 0,
			suggestion_accepted_count INTEGER NOT NULL DEFAULT 0,
			updated_at                TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS embeddings (
			kind   TEXT NOT NULL,
			id     TEXT NOT NULL,
			dim    INTEGER NOT NULL,
			vector BLOB NOT NULL,
			PRIMARY KEY (kind, id)
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS observations_fts USING fts5(
			tool_name,
			input_summary,
			output_summary,
			project,
			tags,
			content='observations',
			content_rowid='rowid'
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS knowledge_fts USING fts5(
			type,
			content,
			project,
			tags,
			content='knowledge_items',
			content_rowid='rowid'
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS sessions_fts USING fts5(
			project,
			summary,
			content='sessions',
			content_rowid='rowid'
		);

		CREATE VIRTUAL TABLE IF NOT EXISTS conversations_fts USING fts5(
			title,
			summary,
			project,
			content='conversations',
			content_rowid='rowid'
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.migrateTriggers()
}

// migrateTriggers creates the FTS sync triggers once (idempotent).
func (s *Store) migrateTriggers() error {
	var name string
	err := s.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='trigger' AND name='obs_fts_insert'",
	).Scan(&name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	triggers := `
		CREATE TRIGGER obs_fts_insert AFTER INSERT ON observations BEGIN
			INSERT INTO observations_fts(rowid, tool_name, input_summary, output_summary, project, tags)
			VALUES (new.rowid, new.tool_name, new.input_summary, new.output_summary, new.project, new.tags);
		END;
		CREATE TRIGGER obs_fts_delete AFTER DELETE ON observations BEGIN
			INSERT INTO observations_fts(observations_fts, rowid, tool_name, input_summary, output_summary, project, tags)
			VALUES ('delete', old.rowid, old.tool_name, old.input_summary, old.output_summary, old.project, old.tags);
		END;

		CREATE TRIGGER know_fts_insert AFTER INSERT ON knowledge_items BEGIN
			INSERT INTO knowledge_fts(rowid, type, content, project, tags)
			VALUES (new.rowid, new.type, new.content, new.project, new.tags);
		END;
		CREATE TRIGGER know_fts_delete AFTER DELETE ON knowledge_items BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, type, content, project, tags)
			VALUES ('delete', old.rowid, old.type, old.content, old.project, old.tags);
		END;
		CREATE TRIGGER know_fts_update AFTER UPDATE ON knowledge_items BEGIN
			INSERT INTO knowledge_fts(knowledge_fts, rowid, type, content, project, tags)
			VALUES ('delete', old.rowid, old.type, old.content, old.project, old.tags);
			INSERT INTO knowledge_fts(rowid, type, content, project, tags)
			VALUES (new.rowid, new.type, new.content, new.project, new.tags);
		END;

		CREATE TRIGGER sess_fts_insert AFTER INSERT ON sessions BEGIN
			INSERT INTO sessions_fts(rowid, project, summary)
			VALUES (new.rowid, new.project, coalesce(new.summary, ''));
		END;
		CREATE TRIGGER sess_fts_delete AFTER DELETE ON sessions BEGIN
			INSERT INTO sessions_fts(sessions_fts, rowid, project, summary)
			VALUES ('delete', old.rowid, old.project, coalesce(old.summary, ''));
		END;
		CREATE TRIGGER sess_fts_update AFTER UPDATE ON sessions BEGIN
			INSERT INTO sessions_fts(sessions_fts, rowid, project, summary)
			VALUES ('delete', old.rowid, old.project, coalesce(old.summary, ''));
			INSERT INTO sessions_fts(rowid, project, summary)
			VALUES (new.rowid, new.project, coalesce(new.summary, ''));
		END;

		CREATE TRIGGER conv_fts_insert AFTER INSERT ON conversations BEGIN
			INSERT INTO conversations_fts(rowid, title, summary, project)
			VALUES (new.rowid, new.title, coalesce(new.summary, ''), new.project);
		END;
		CREATE TRIGGER conv_fts_delete AFTER DELETE ON conversations BEGIN
			INSERT INTO conversations_fts(conversations_fts, rowid, title, summary, project)
			VALUES ('delete', old.rowid, old.title, coalesce(old.summary, ''), old.project);
		END;
		CREATE TRIGGER conv_fts_update AFTER UPDATE ON conversations BEGIN
			INSERT INTO conversations_fts(conversations_fts, rowid, title, summary, project)
			VALUES ('delete', old.rowid, old.title, coalesce(old.summary, ''), old.project);
			INSERT INTO conversations_fts(rowid, title, summary, project)
			VALUES (new.rowid, new.title, coalesce(new.summary, ''), new.project);
		END;
	`
	_, err = s.db.Exec(triggers)
	return err
}

// ─── Sessions & conversations ────────────────────────────────────────────────

// CreateSession registers a new coding session.
func (s *Store) CreateSession(id, project string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO sessions (id, project) VALUES (?, ?)`,
		id, project,
	)
	if err != nil {
		return fmt.Errorf("memory: create session: %w", err)
	}
	return nil
}

// EndSession marks a session as completed with an optional summary.
func (s *Store) EndSession(id, summary string) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = datetime('now'), summary = ? WHERE id = ?`,
		nullableString(summary), id,
	)
	if err != nil {
		return fmt.Errorf("memory: end session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID, or (nil, nil) if it does not exist.
func (s *Store) GetSession(id string) (*Session, error) {
	row := s.db.QueryRow(
		`SELECT id, project, summary, started_at, ended_at FROM sessions WHERE id = ?`, id,
	)
	var sess Session
	err := row.Scan(&sess.ID, &sess.Project, &sess.Summary, &sess.StartedAt, &sess.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get session: %w", err)
	}
	return &sess, nil
}

// StartConversation opens a new conversation segment within a session.
func (s *Store) StartConversation(id, sessionID, title, project string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO conversations (id, session_id, title, project) VALUES (?, ?, ?, ?)`,
		id, sessionID, title, project,
	)
	if err != nil {
		return fmt.Errorf("memory: start conversation: %w", err)
	}
	return nil
}

// EndConversation closes a conversation segment with an optional summary.
func (s *Store) EndConversation(id, summary string) error {
	_, err := s.db.Exec(
		`UPDATE conversations SET ended_at = datetime('now'), summary = ? WHERE id = ?`,
		nullableString(summary), id,
	)
	if err != nil {
		return fmt.Errorf("memory: end conversation: %w", err)
	}
	return nil
}

// ─── Observations ────────────────────────────────────────────────────────────

// AddObservation captures a tool-use record.
func (s *Store) AddObservation(p AddObservationParams) (string, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := p.CreatedAt
	if createdAt == "" {
		createdAt = Now()
	}
	input := Truncate(p.InputSummary, s.cfg.MaxContentLength)
	output := Truncate(p.OutputSummary, s.cfg.MaxContentLength)

	_, err := s.db.Exec(
		`INSERT INTO observations
		 (id, session_id, conversation_id, tool_name, input_summary, output_summary, project, files, tags, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, p.SessionID, nullableString(p.ConversationID), p.ToolName,
		input, output, p.Project, marshalList(p.Files), marshalList(p.Tags), createdAt,
	)
	if err != nil {
		return "", fmt.Errorf("memory: add observation: %w", err)
	}
	return id, nil
}

// GetObservation retrieves a single observation by ID, or (nil, nil) if absent.
func (s *Store) GetObservation(id string) (*Observation, error) {
	row := s.db.QueryRow(
		`SELECT id, session_id, coalesce(conversation_id, ''), tool_name,
		        input_summary, output_summary, project, files, tags, created_at
		 FROM observations WHERE id = ?`, id,
	)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get observation: %w", err)
	}
	return o, nil
}

// RecentObservations returns the newest observations for a session,
// optionally narrowed to a project, newest first.
func (s *Store) RecentObservations(sessionID, project string, limit int) ([]Observation, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, session_id, coalesce(conversation_id, ''), tool_name,
		       input_summary, output_summary, project, files, tags, created_at
		FROM observations WHERE 1=1`
	args := []any{}
	if sessionID != "" {
		query += " AND session_id = ?"
		args = append(args, sessionID)
	}
	if project != "" {
		query += " AND project = ?"
		args = append(args, project)
	}
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: recent observations: %w", err)
	}
	defer rows.Close()

	var results []Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, fmt.Errorf("memory: recent observations: %w", err)
		}
		results = append(results, *o)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(row scanner) (*Observation, error) {
	var o Observation
	var files, tags string
	if err := row.Scan(
		&o.ID, &o.SessionID, &o.ConversationID, &o.ToolName,
		&o.InputSummary, &o.OutputSummary, &o.Project, &files, &tags, &o.CreatedAt,
	); err != nil {
		return nil, err
	}
	o.Files = unmarshalList(files)
	o.Tags = unmarshalList(tags)
	return &o, nil
}

// ─── Knowledge items ─────────────────────────────────────────────────────────

// SaveKnowledge persists a new knowledge item and returns it.
func (s *Store) SaveKnowledge(p SaveKnowledgeParams) (*KnowledgeItem, error) {
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := p.CreatedAt
	if createdAt == "" {
		createdAt = Now()
	}

	item := &KnowledgeItem{
		ID:                   id,
		Type:                 p.Type,
		Content:              Truncate(p.Content, s.cfg.MaxContentLength),
		SourceObservationIDs: p.SourceObservationIDs,
		SourceKnowledgeIDs:   p.SourceKnowledgeIDs,
		Project:              p.Project,
		Tags:                 p.Tags,
		Confidence:           clamp01(p.Confidence),
		CreatedAt:            createdAt,
		UpdatedAt:            createdAt,
	}

	_, err := s.db.Exec(
		`INSERT INTO knowledge_items
		 (id, type, content, source_observation_ids, source_knowledge_ids, project, tags, confidence, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.Type, item.Content,
		marshalList(item.SourceObservationIDs), marshalList(item.SourceKnowledgeIDs),
		item.Project, marshalList(item.Tags), item.Confidence, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: save knowledge: %w", err)
	}
	return item, nil
}

// GetKnowledge retrieves a knowledge item by ID, or (nil, nil) if absent.
func (s *Store) GetKnowledge(id string) (*KnowledgeItem, error) {
	row := s.db.QueryRow(
		`SELECT id, type, content, source_observation_ids, source_knowledge_ids,
		        project, tags, confidence, created_at, updated_at
		 FROM knowledge_items WHERE id = ?`, id,
	)
	item, err := scanKnowledge(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get knowledge: %w", err)
	}
	return item, nil
}

// UpdateKnowledge applies a partial update to a knowledge item and returns
// the updated record, or (nil, nil) if it does not exist.
func (s *Store) UpdateKnowledge(id string, p UpdateKnowledgeParams) (*KnowledgeItem, error) {
	item, err := s.GetKnowledge(id)
	if err != nil || item == nil {
		return nil, err
	}

	if p.Content != nil {
		item.Content = Truncate(*p.Content, s.cfg.MaxContentLength)
	}
	if p.Tags != nil {
		item.Tags = *p.Tags
	}
	if p.Confidence != nil {
		item.Confidence = clamp01(*p.Confidence)
	}
	item.UpdatedAt = Now()

	_, err = s.db.Exec(
		`UPDATE knowledge_items SET content = ?, tags = ?, confidence = ?, updated_at = ? WHERE id = ?`,
		item.Content, marshalList(item.Tags), item.Confidence, item.UpdatedAt, id,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: update knowledge: %w", err)
	}
	return item, nil
}

// DeleteKnowledge removes a knowledge item and cascades away its incident
// edges and embedding. Returns the number of edges removed.
func (s *Store) DeleteKnowledge(id string) (int, error) {
	edges, err := s.DeleteEdgesForNode(id)
	if err != nil {
		return 0, err
	}
	if _, err := s.db.Exec(`DELETE FROM knowledge_items WHERE id = ?`, id); err != nil {
		return edges, fmt.Errorf("memory: delete knowledge: %w", err)
	}
	if _, err := s.db.Exec(`DELETE FROM embeddings WHERE kind = ? AND id = ?`, KindKnowledge, id); err != nil {
		return edges, fmt.Errorf("memory: delete knowledge embedding: %w", err)
	}
	return edges, nil
}

func scanKnowledge(row scanner) (*KnowledgeItem, error) {
	var item KnowledgeItem
	var obsIDs, knowIDs, tags string
	if err := row.Scan(
		&item.ID, &item.Type, &item.Content, &obsIDs, &knowIDs,
		&item.Project, &tags, &item.Confidence, &item.CreatedAt, &item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	item.SourceObservationIDs = unmarshalList(obsIDs)
	item.SourceKnowledgeIDs = unmarshalList(knowIDs)
	item.Tags = unmarshalList(tags)
	return &item, nil
}

// ─── Edges ───────────────────────────────────────────────────────────────────

// InsertEdge creates a typed, weighted edge between two knowledge items.
// Duplicate edges between the same pair are permitted by design. Both
// endpoints must exist (enforced by foreign keys).
func (s *Store) InsertEdge(fromID, toID, relationship string, strength float64) (*Edge, error) {
	e := &Edge{
		ID:           uuid.NewString(),
		FromID:       fromID,
		ToID:         toID,
		Relationship: relationship,
		Strength:     clamp01(strength),
		CreatedAt:    Now(),
	}
	_, err := s.db.Exec(
		`INSERT INTO knowledge_edges (id, from_id, to_id, relationship, strength, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.FromID, e.ToID, e.Relationship, e.Strength, e.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: insert edge: %w", err)
	}
	return e, nil
}

// EdgesForNode returns all edges incident to a node (either endpoint),
// ordered by strength descending.
func (s *Store) EdgesForNode(id string) ([]Edge, error) {
	rows, err := s.db.Query(
		`SELECT id, from_id, to_id, relationship, strength, created_at
		 FROM knowledge_edges
		 WHERE from_id = ? OR to_id = ?
		 ORDER BY strength DESC, created_at ASC`,
		id, id,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: edges for node: %w", err)
	}
	defer rows.Close()

	var result []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.ID, &e.FromID, &e.ToID, &e.Relationship, &e.Strength, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("memory: edges for node: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteEdgesForNode removes every edge incident to a node and returns the
// count removed. Used when the node itself is deleted.
func (s *Store) DeleteEdgesForNode(id string) (int, error) {
	res, err := s.db.Exec(
		`DELETE FROM knowledge_edges WHERE from_id = ? OR to_id = ?`, id, id,
	)
	if err != nil {
		return 0, fmt.Errorf("memory: delete edges: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// CountEdges returns the total edge count, globally when id is empty or
// incident to the given node otherwise.
func (s *Store) CountEdges(id string) (int, error) {
	var n int
	var err error
	if id == "" {
		err = s.db.QueryRow(`SELECT COUNT(*) FROM knowledge_edges`).Scan(&n)
	} else {
		err = s.db.QueryRow(
			`SELECT COUNT(*) FROM knowledge_edges WHERE from_id = ? OR to_id = ?`, id, id,
		).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("memory: count edges: %w", err)
	}
	return n, nil
}

// ─── Full-text search ────────────────────────────────────────────────────────

// searchSpec maps a collection kind to its FTS table and base columns.
type searchSpec struct {
	fts     string
	base    string
	snippet string // expression producing the snippet text, b-aliased
	created string // timestamp column
	tags    string // tags column, empty when the collection has none
}

func specFor(kind string) (searchSpec, bool) {
	switch kind {
	case KindObservation:
		return searchSpec{
			fts: "observations_fts", base: "observations",
			snippet: "b.input_summary || ' ' || b.output_summary",
			created: "created_at", tags: "tags",
		}, true
	case KindKnowledge:
		return searchSpec{
			fts: "knowledge_fts", base: "knowledge_items",
			snippet: "b.content", created: "created_at", tags: "tags",
		}, true
	case KindSession:
		return searchSpec{
			fts: "sessions_fts", base: "sessions",
			snippet: "coalesce(b.summary, '')", created: "started_at",
		}, true
	case KindConversation:
		return searchSpec{
			fts: "conversations_fts", base: "conversations",
			snippet: "b.title || ' ' || coalesce(b.summary, '')", created: "started_at",
		}, true
	}
	return searchSpec{}, false
}

// SearchText performs an FTS5 search over one collection kind. The query
// must already be an FTS5 MATCH expression (callers sanitize). An empty
// query returns no hits.
func (s *Store) SearchText(kind, ftsQuery string, f TextFilter) ([]TextHit, error) {
	if strings.TrimSpace(ftsQuery) == "" {
		return nil, nil
	}
	spec, ok := specFor(kind)
	if !ok {
		return nil, fmt.Errorf("memory: search: unknown kind %q", kind)
	}

	limit := f.Limit
	if limit <= 0 || limit > s.cfg.MaxSearchResults {
		limit = s.cfg.MaxSearchResults
	}

	tagsCol := "''"
	if spec.tags != "" {
		tagsCol = "b." + spec.tags
	}

	query := fmt.Sprintf(`
		SELECT b.id, %s, b.project, %s, b.%s, fts.rank
		FROM %s fts
		JOIN %s b ON b.rowid = fts.rowid
		WHERE %s MATCH ?`,
		spec.snippet, tagsCol, spec.created,
		spec.fts, spec.base, spec.fts,
	)
	args := []any{ftsQuery}

	if f.Project != "" {
		query += " AND b.project = ?"
		args = append(args, f.Project)
	}
	if !f.FromDate.IsZero() {
		query += " AND datetime(b." + spec.created + ") >= datetime(?)"
		args = append(args, f.FromDate.UTC().Format(timeLayout))
	}
	if !f.ToDate.IsZero() {
		query += " AND datetime(b." + spec.created + ") <= datetime(?)"
		args = append(args, f.ToDate.UTC().Format(timeLayout))
	}

	query += " ORDER BY fts.rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("memory: search %s: %w", kind, err)
	}
	defer rows.Close()

	var hits []TextHit
	for rows.Next() {
		var h TextHit
		var snippet, tags, created string
		if err := rows.Scan(&h.ID, &snippet, &h.Project, &tags, &created, &h.Rank); err != nil {
			return nil, fmt.Errorf("memory: search %s: %w", kind, err)
		}
		h.Kind = kind
		h.Snippet = Truncate(strings.TrimSpace(snippet), s.cfg.SnippetLength)
		h.Tags = unmarshalList(tags)
		h.CreatedAt, _ = ParseTime(created)
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// ─── Thresholds ──────────────────────────────────────────────────────────────

// GetThresholds returns the adaptive thresholds for a project, creating the
// record lazily with defaults on first access.
func (s *Store) GetThresholds(project string) (*Thresholds, error) {
	row := s.db.QueryRow(
		`SELECT project, ask_threshold, trust_threshold,
		        auto_stash_count, false_positive_count,
		        suggestion_shown_count, suggestion_accepted_count, updated_at
		 FROM adaptive_thresholds WHERE project = ?`, project,
	)
	var t Thresholds
	err := row.Scan(
		&t.Project, &t.AskThreshold, &t.TrustThreshold,
		&t.AutoStashCount, &t.FalsePositiveCount,
		&t.SuggestionShown, &t.SuggestionAccepted, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		t = Thresholds{
			Project:        project,
			AskThreshold:   DefaultAskThreshold,
			TrustThreshold: DefaultTrustThreshold,
			UpdatedAt:      Now(),
		}
		if err := s.PutThresholds(&t); err != nil {
			return nil, err
		}
		return &t, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get thresholds: %w", err)
	}
	return &t, nil
}

// PutThresholds upserts the adaptive threshold record for a project.
func (s *Store) PutThresholds(t *Thresholds) error {
	_, err := s.db.Exec(
		`INSERT INTO adaptive_thresholds
		 (project, ask_threshold, trust_threshold, auto_stash_count, false_positive_count,
		  suggestion_shown_count, suggestion_accepted_count, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(project) DO UPDATE SET
		  ask_threshold = excluded.ask_threshold,
		  trust_threshold = excluded.trust_threshold,
		  auto_stash_count = excluded.auto_stash_count,
		  false_positive_count = excluded.false_positive_count,
		  suggestion_shown_count = excluded.suggestion_shown_count,
		  suggestion_accepted_count = excluded.suggestion_accepted_count,
		  updated_at = excluded.updated_at`,
		t.Project, t.AskThreshold, t.TrustThreshold,
		t.AutoStashCount, t.FalsePositiveCount,
		t.SuggestionShown, t.SuggestionAccepted, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("memory: put thresholds: %w", err)
	}
	return nil
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// GetStats returns aggregate store statistics.
func (s *Store) GetStats() (*Stats, error) {
	st := &Stats{}
	counts := []struct {
		table string
		dst   *int
	}{
		{"sessions", &st.Sessions},
		{"conversations", &st.Conversations},
		{"observations", &st.Observations},
		{"knowledge_items", &st.Knowledge},
		{"knowledge_edges", &st.Edges},
		{"embeddings", &st.Embeddings},
	}
	for _, c := range counts {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + c.table).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("memory: stats: %w", err)
		}
	}
	return st, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

const timeLayout = "2006-01-02 15:04:05"

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format(timeLayout)
}

// ParseTime parses a stored timestamp. Returns ok=false for empty or
// unparseable values.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Truncate shortens a string to max bytes with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func marshalList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func unmarshalList(s string) []string {
	if s == "" || s == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(s), &items); err != nil {
		return nil
	}
	return items
}
