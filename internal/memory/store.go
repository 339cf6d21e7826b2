// Package memory implements the Memory Provider: chunking, embedding,
// ingest, hybrid search with feedback, and pattern/solution linkage,
// backed by a pure-Go SQLite store.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/herr"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id TEXT PRIMARY KEY,
	root_path TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	repo_name TEXT,
	path TEXT NOT NULL,
	chunk_text TEXT NOT NULL,
	embedding BLOB NOT NULL,
	component TEXT,
	category TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	meta TEXT NOT NULL DEFAULT '{}',
	content_sha256 TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE(project_id, path, content_sha256)
);
CREATE INDEX IF NOT EXISTS idx_chunks_project ON chunks(project_id);

CREATE VIRTUAL TABLE IF NOT EXISTS chunks_fts USING fts5(
	chunk_id UNINDEXED, chunk_text, tokenize='porter'
);

CREATE TABLE IF NOT EXISTS feedback (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chunk_id TEXT NOT NULL,
	helpful INTEGER NOT NULL,
	context TEXT,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_chunk ON feedback(chunk_id);

CREATE TABLE IF NOT EXISTS dedupe_cache (
	project_id TEXT NOT NULL,
	sha256 TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	PRIMARY KEY (project_id, sha256)
);

CREATE TABLE IF NOT EXISTS solutions (
	id TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT,
	category TEXT NOT NULL,
	component TEXT,
	tags TEXT NOT NULL DEFAULT '[]',
	project_root TEXT,
	repo_name TEXT,
	package_manager TEXT,
	monorepo_tool TEXT,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	last_applied_at INTEGER,
	verified_on TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS signatures (
	id TEXT PRIMARY KEY,
	solution_id TEXT NOT NULL,
	text TEXT NOT NULL,
	regexes TEXT NOT NULL DEFAULT '[]',
	embedding BLOB NOT NULL,
	meta TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_signatures_solution ON signatures(solution_id);

CREATE TABLE IF NOT EXISTS steps (
	id TEXT PRIMARY KEY,
	solution_id TEXT NOT NULL,
	ord INTEGER NOT NULL,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	description TEXT,
	timeout_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_steps_solution ON steps(solution_id, ord);

CREATE TABLE IF NOT EXISTS checks (
	id TEXT PRIMARY KEY,
	solution_id TEXT NOT NULL,
	ord INTEGER NOT NULL,
	cmd TEXT NOT NULL,
	expect_substring TEXT,
	expect_exit_code INTEGER NOT NULL DEFAULT 0,
	timeout_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_checks_solution ON checks(solution_id, ord);

CREATE TABLE IF NOT EXISTS pattern_solution_links (
	pattern_tag TEXT NOT NULL,
	pattern_category TEXT NOT NULL,
	solution_id TEXT NOT NULL,
	success_count INTEGER NOT NULL DEFAULT 0,
	failure_count INTEGER NOT NULL DEFAULT 0,
	avg_helpful_ratio REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (pattern_tag, pattern_category, solution_id)
);

-- One row per distinct project that has ever recorded an application
-- outcome for a (pattern_tag, pattern_category, solution_id) link, so
-- golden_paths can report projects_count without inflating it on
-- repeated applications from the same project.
CREATE TABLE IF NOT EXISTS pattern_solution_projects (
	pattern_tag TEXT NOT NULL,
	pattern_category TEXT NOT NULL,
	solution_id TEXT NOT NULL,
	project_root TEXT NOT NULL,
	PRIMARY KEY (pattern_tag, pattern_category, solution_id, project_root)
);
`

// Store is the SQLite-backed Memory Provider persistence layer.
type Store struct {
	db     *sql.DB
	budget *embedclient.TokenBudget
}

// Open opens (and migrates) the SQLite database at dsn.
func Open(dsn string, budget *embedclient.TokenBudget) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, herr.Wrap(herr.ErrFatal, "memory", "open db", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers per process

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, herr.Wrap(herr.ErrFatal, "memory", "migrate schema", err)
	}
	if budget == nil {
		budget = embedclient.NewTokenBudget(0)
	}
	return &Store{db: db, budget: budget}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection so the Solution Registry can
// share the same SQLite file (and single-writer serialization) rather
// than opening a second handle onto it.
func (s *Store) DB() *sql.DB { return s.db }

// GetOrCreateProject resolves root's project row, creating it with
// label if absent.
func (s *Store) GetOrCreateProject(ctx context.Context, root, label string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE root_path = ?`, root).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", herr.Wrap(herr.ErrTransient, "memory", "lookup project", err)
	}

	id = newID("proj")
	now := time.Now().UnixMilli()
	if label == "" {
		label = root
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO projects (id, root_path, label, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, root, label, now, now)
	if err != nil {
		return "", herr.Wrap(herr.ErrTransient, "memory", "create project", err)
	}
	return id, nil
}

// ProjectSummary is returned by memory_projects().
type ProjectSummary struct {
	ID       string `json:"id"`
	RootPath string `json:"root_path"`
	Label    string `json:"label"`
	DocCount int    `json:"doc_count"`
}

// Projects lists every known project with its chunk count.
func (s *Store) Projects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.root_path, p.label, COUNT(c.id)
		FROM projects p LEFT JOIN chunks c ON c.project_id = p.id
		GROUP BY p.id ORDER BY p.root_path`)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "memory", "list projects", err)
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var p ProjectSummary
		if err := rows.Scan(&p.ID, &p.RootPath, &p.Label, &p.DocCount); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "memory", "scan project", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

var idCounter int64

func newID(prefix string) string {
	idCounter++
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), idCounter)
}
