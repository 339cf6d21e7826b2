package memory

import (
	"context"
	"database/sql"

	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/herr"
)

// Provider is the Memory Provider's full operation set: ingest, search,
// targeted deletion, index maintenance, project listing, and the
// feedback loop that ranks results by how often they've helped. Every
// caller (hooks, cmd/sentry, the admin CLI) should depend on this
// interface rather than *Store directly, the same way Search already
// takes an embedclient.Client instead of a concrete HTTP type.
type Provider interface {
	Ingest(ctx context.Context, client embedclient.Client, root, pathInProject, text string, opts IngestOptions) (IngestResult, error)
	Search(ctx context.Context, client embedclient.Client, params SearchParams, weights Weights, bonus OutcomeBonus) (SearchResponse, error)
	DeleteByPath(ctx context.Context, projectRoot, path string) error
	Reindex(ctx context.Context, projectRoot string) error
	Projects(ctx context.Context) ([]ProjectSummary, error)
	RecordFeedback(ctx context.Context, chunkID string, helpful bool, feedbackContext string) error
	TopHelpfulMemories(ctx context.Context, projectID string, limit, minVotes int) ([]HelpfulMemory, error)
}

var _ Provider = (*Store)(nil)

// projectIDForRoot looks up root's project id without creating it;
// DeleteByPath and Reindex are no-ops against a project that was never
// ingested into, not errors.
func (s *Store) projectIDForRoot(ctx context.Context, root string) (string, bool, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM projects WHERE root_path = ?`, root).Scan(&id)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, herr.Wrap(herr.ErrTransient, "memory", "lookup project", err)
	}
	return id, true, nil
}

// DeleteByPath removes every chunk ingested from path within root's
// project, along with its FTS5 index rows. Deleting an unknown
// project or path is a no-op.
func (s *Store) DeleteByPath(ctx context.Context, root, path string) error {
	projectID, ok, err := s.projectIDForRoot(ctx, root)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM chunks WHERE project_id = ? AND path = ?`, projectID, path)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "find chunks for delete", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return herr.Wrap(herr.ErrTransient, "memory", "scan chunk id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "find chunks for delete", err)
	}
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "begin delete", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, id); err != nil {
			return herr.Wrap(herr.ErrTransient, "memory", "delete fts row", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM feedback WHERE chunk_id = ?`, id); err != nil {
			return herr.Wrap(herr.ErrTransient, "memory", "delete feedback", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE project_id = ? AND path = ?`, projectID, path); err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "delete chunks", err)
	}
	if err := tx.Commit(); err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "commit delete", err)
	}
	sharedCache.clear()
	return nil
}

// Reindex rebuilds root's project's FTS5 index from the chunks already
// stored (and already embedded) for it, without re-embedding. This is
// the cheap half of "reindex": it repairs lexical search after a
// tokenizer change or index corruption; picking up a new embedding
// model requires re-ingesting the source text, which the Memory
// Provider doesn't retain once chunked.
func (s *Store) Reindex(ctx context.Context, root string) error {
	projectID, ok, err := s.projectIDForRoot(ctx, root)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "begin reindex", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id, chunk_text FROM chunks WHERE project_id = ?`, projectID)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "list chunks for reindex", err)
	}
	type row struct{ id, text string }
	var chunks []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.text); err != nil {
			rows.Close()
			return herr.Wrap(herr.ErrTransient, "memory", "scan chunk for reindex", err)
		}
		chunks = append(chunks, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "list chunks for reindex", err)
	}

	for _, c := range chunks {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks_fts WHERE chunk_id = ?`, c.id); err != nil {
			return herr.Wrap(herr.ErrTransient, "memory", "clear fts row", err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO chunks_fts (chunk_id, chunk_text) VALUES (?, ?)`, c.id, c.text); err != nil {
			return herr.Wrap(herr.ErrTransient, "memory", "rebuild fts row", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "commit reindex", err)
	}
	sharedCache.clear()
	return nil
}
