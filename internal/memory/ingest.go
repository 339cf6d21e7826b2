package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/herr"
)

var (
	errMismatchedVectorCount = errors.New("memory: embed batch returned a different vector count than requested")
	errDimensionMismatch     = errors.New("memory: embedding dimension mismatch")
)

const dedupeCacheTTL = 48 * time.Hour

// componentPrefixes maps a path prefix to an inferred component label.
var componentPrefixes = []struct {
	prefix    string
	component string
}{
	{"internal/", "internal"},
	{"cmd/", "cmd"},
	{"logs/digests/", "digest"},
	{"docs/", "docs"},
}

func inferComponent(p string) string {
	for _, entry := range componentPrefixes {
		if strings.HasPrefix(p, entry.prefix) {
			return entry.component
		}
	}
	return "other"
}

func inferCategory(p, text string) string {
	if strings.Contains(text, "## DIGEST") || strings.Contains(text, "\"task_id\"") {
		return "decision"
	}
	switch path.Ext(p) {
	case ".md":
		return "doc"
	case ".go", ".ts", ".tsx", ".py", ".rs", ".java":
		return "code"
	default:
		return "other"
	}
}

// IngestResult is returned by Ingest.
type IngestResult struct {
	Chunks    int    `json:"chunks"`
	ProjectID string `json:"project_id"`
}

// IngestOptions lets the caller override inferred component/category
// and attach arbitrary metadata.
type IngestOptions struct {
	Label     string
	Component string
	Category  string
	Tags      []string
	Meta      map[string]any
}

// Ingest chunks, dedupes, embeds, and upserts text for path within
// root's project, per the single-transaction-per-document contract.
func (s *Store) Ingest(ctx context.Context, client embedclient.Client, root, pathInProject, text string, opts IngestOptions) (IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return IngestResult{Chunks: 0}, nil
	}

	projectID, err := s.GetOrCreateProject(ctx, root, opts.Label)
	if err != nil {
		return IngestResult{}, err
	}

	component := opts.Component
	if component == "" {
		component = inferComponent(pathInProject)
	}
	category := opts.Category
	if category == "" {
		category = inferCategory(pathInProject, text)
	}

	chunks, _ := ChunkText(text)
	if len(chunks) == 0 {
		return IngestResult{Chunks: 0, ProjectID: projectID}, nil
	}

	type pending struct {
		chunk Chunk
		sha   string
	}
	var survivors []pending
	for _, c := range chunks {
		sum := sha256.Sum256([]byte(c.Text))
		sha := hex.EncodeToString(sum[:])
		seen, err := s.dedupeSeen(ctx, projectID, sha)
		if err != nil {
			return IngestResult{}, err
		}
		if seen {
			continue
		}
		survivors = append(survivors, pending{chunk: c, sha: sha})
	}
	if len(survivors) == 0 {
		return IngestResult{Chunks: 0, ProjectID: projectID}, nil
	}

	texts := make([]string, len(survivors))
	for i, p := range survivors {
		texts[i] = p.chunk.Text
	}

	estTokens := 0
	for _, t := range texts {
		estTokens += embedclient.EstimateTokens(t)
	}
	if err := s.budget.Reserve(projectID, estTokens); err != nil {
		return IngestResult{}, herr.Wrap(herr.ErrTransient, "memory", "token budget", err)
	}

	vecs, err := client.EmbedBatch(ctx, texts)
	if err != nil {
		return IngestResult{}, err
	}
	if len(vecs) != len(survivors) {
		return IngestResult{}, herr.Wrap(herr.ErrFatal, "memory", "embed batch", errMismatchedVectorCount)
	}

	metaJSON, err := json.Marshal(opts.Meta)
	if err != nil {
		return IngestResult{}, herr.Wrap(herr.ErrFatal, "memory", "marshal meta", err)
	}
	tagsJSON, err := json.Marshal(opts.Tags)
	if err != nil {
		return IngestResult{}, herr.Wrap(herr.ErrFatal, "memory", "marshal tags", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return IngestResult{}, herr.Wrap(herr.ErrTransient, "memory", "begin tx", err)
	}
	defer tx.Rollback()

	now := time.Now().UnixMilli()
	inserted := 0
	for i, p := range survivors {
		if len(vecs[i]) != embedclient.Dim {
			return IngestResult{}, herr.Wrap(herr.ErrFatal, "memory", "dimension check", errDimensionMismatch)
		}
		id := newID("chunk")
		_, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (id, project_id, repo_name, path, chunk_text, embedding, component, category, tags, meta, content_sha256, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(project_id, path, content_sha256) DO UPDATE SET
				chunk_text=excluded.chunk_text, embedding=excluded.embedding, component=excluded.component,
				category=excluded.category, tags=excluded.tags, meta=excluded.meta, updated_at=excluded.updated_at`,
			id, projectID, "", pathInProject, p.chunk.Text, encodeVector(vecs[i]), component, category, string(tagsJSON), string(metaJSON), p.sha, now)
		if err != nil {
			return IngestResult{}, herr.Wrap(herr.ErrTransient, "memory", "upsert chunk", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts (chunk_id, chunk_text) VALUES (?, ?)`, id, p.chunk.Text); err != nil {
			return IngestResult{}, herr.Wrap(herr.ErrTransient, "memory", "index fts", err)
		}
		if err := s.markDedupeTx(ctx, tx, projectID, p.sha); err != nil {
			return IngestResult{}, err
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return IngestResult{}, herr.Wrap(herr.ErrTransient, "memory", "commit", err)
	}
	if inserted > 0 {
		sharedCache.clear()
	}
	return IngestResult{Chunks: inserted, ProjectID: projectID}, nil
}

func (s *Store) dedupeSeen(ctx context.Context, projectID, sha string) (bool, error) {
	var expiresAt int64
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM dedupe_cache WHERE project_id = ? AND sha256 = ?`, projectID, sha).Scan(&expiresAt)
	if err != nil {
		return false, nil
	}
	return time.Now().UnixMilli() < expiresAt, nil
}

func (s *Store) markDedupeTx(ctx context.Context, tx *sql.Tx, projectID, sha string) error {
	expiresAt := time.Now().Add(dedupeCacheTTL).UnixMilli()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dedupe_cache (project_id, sha256, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(project_id, sha256) DO UPDATE SET expires_at = excluded.expires_at`,
		projectID, sha, expiresAt)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "mark dedupe", err)
	}
	return nil
}
