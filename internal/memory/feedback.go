package memory

import (
	"context"
	"time"

	"github.com/antigravity-dev/sentry/internal/herr"
)

// RecordFeedback records whether a previously surfaced chunk was
// helpful, invalidating the query cache since feedback_ratio affects
// ranking for every future search.
func (s *Store) RecordFeedback(ctx context.Context, chunkID string, helpful bool, feedbackContext string) error {
	val := 0
	if helpful {
		val = 1
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO feedback (chunk_id, helpful, context, created_at) VALUES (?, ?, ?, ?)`,
		chunkID, val, feedbackContext, time.Now().UnixMilli())
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "record feedback", err)
	}
	sharedCache.clear()
	return nil
}

// HelpfulMemory is one row of the top-helpful-memories report.
type HelpfulMemory struct {
	ChunkID       string  `json:"chunk_id"`
	Path          string  `json:"path"`
	Chunk         string  `json:"chunk"`
	HelpfulCount  int     `json:"helpful_count"`
	TotalCount    int     `json:"total_count"`
	HelpfulRatio  float64 `json:"helpful_ratio"`
}

// TopHelpfulMemories returns the chunks with the highest feedback
// ratio, requiring at least minVotes feedback entries so a single
// early vote doesn't dominate the ranking.
func (s *Store) TopHelpfulMemories(ctx context.Context, projectID string, limit, minVotes int) ([]HelpfulMemory, error) {
	if limit <= 0 {
		limit = 10
	}
	if minVotes <= 0 {
		minVotes = 1
	}

	query := `
		SELECT c.id, c.path, c.chunk_text, SUM(f.helpful), COUNT(*)
		FROM feedback f
		JOIN chunks c ON c.id = f.chunk_id`
	args := []any{}
	if projectID != "" {
		query += " WHERE c.project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY c.id HAVING COUNT(*) >= ? ORDER BY (CAST(SUM(f.helpful) AS REAL) / COUNT(*)) DESC LIMIT ?"
	args = append(args, minVotes, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "memory", "top helpful memories", err)
	}
	defer rows.Close()

	var out []HelpfulMemory
	for rows.Next() {
		var m HelpfulMemory
		if err := rows.Scan(&m.ChunkID, &m.Path, &m.Chunk, &m.HelpfulCount, &m.TotalCount); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "memory", "scan helpful memory", err)
		}
		if m.TotalCount > 0 {
			m.HelpfulRatio = float64(m.HelpfulCount) / float64(m.TotalCount)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
