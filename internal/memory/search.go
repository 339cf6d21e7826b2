package memory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/antigravity-dev/sentry/internal/embedclient"
)

const (
	maxK            = 20
	halfLifeDays    = 30.0
	queryCacheTTL   = 5 * time.Minute
)

// SearchParams is the input to Search.
type SearchParams struct {
	ProjectRoot string
	Query       string
	K           int
	Global      bool
	Component   string
	Category    string
	Tags        []string
}

// SearchResult is one ranked chunk returned to the caller.
type SearchResult struct {
	Path  string         `json:"path"`
	Chunk string         `json:"chunk"`
	Score float64        `json:"score"`
	Meta  map[string]any `json:"meta"`

	chunkID   string
	updatedAt int64
	vectorScore float64
}

// SearchResponse wraps the ranked results with totals.
type SearchResponse struct {
	Results   []SearchResult `json:"results"`
	Total     int            `json:"total"`
	ProjectID string         `json:"project_id,omitempty"`
}

type searchCacheEntry struct {
	expiresAt time.Time
	response  SearchResponse
}

type queryCache struct {
	mu      sync.Mutex
	entries map[string]searchCacheEntry
}

func newQueryCache() *queryCache {
	return &queryCache{entries: make(map[string]searchCacheEntry)}
}

func (c *queryCache) get(key string) (SearchResponse, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return SearchResponse{}, false
	}
	return e.response, true
}

func (c *queryCache) set(key string, resp SearchResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = searchCacheEntry{expiresAt: time.Now().Add(queryCacheTTL), response: resp}
}

// clear invalidates every cached query, used when feedback or new
// ingests change ranking inputs.
func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]searchCacheEntry)
}

// Weights are the combined-score coefficients from the ranking formula.
type Weights struct {
	Vector, BM25, Time, Feedback float64
}

// OutcomeBonus is applied on top of the combined score based on
// meta.outcome_status.
type OutcomeBonus struct {
	Success, Failure float64
}

var sharedCache = newQueryCache()

// Search executes hybrid vector + lexical + recency + feedback ranked
// search, scoped per params, applying the outcome bonus and tie-break
// rules before truncating to K.
func (s *Store) Search(ctx context.Context, client embedclient.Client, params SearchParams, weights Weights, bonus OutcomeBonus) (SearchResponse, error) {
	k := params.K
	if k <= 0 {
		k = 8
	}
	if k > maxK {
		k = maxK
	}

	cacheKey := cacheKeyFor(params, k)
	if resp, ok := sharedCache.get(cacheKey); ok {
		return resp, nil
	}

	var projectID string
	if params.ProjectRoot != "" && !params.Global {
		id, err := s.GetOrCreateProject(ctx, params.ProjectRoot, "")
		if err != nil {
			return SearchResponse{}, err
		}
		projectID = id
	}

	queryVec, err := client.Embed(ctx, params.Query)
	if err != nil {
		return SearchResponse{}, err
	}

	candidates, err := s.fetchCandidates(ctx, projectID, params, 2*k)
	if err != nil {
		return SearchResponse{}, err
	}

	now := time.Now()
	for i := range candidates {
		c := &candidates[i]
		c.vectorScore = cosineSimilarity(decodeVector(c.embedding), queryVec)
		bm25 := normalizeBM25(c.bm25Rank)
		timeDecay := math.Exp(-math.Ln2 / halfLifeDays * ageDays(c.updatedAtMillis, now))
		feedbackRatio := feedbackRatioFor(c.helpfulCount, c.totalFeedback)

		combined := weights.Vector*c.vectorScore + weights.BM25*bm25 + weights.Time*timeDecay + weights.Feedback*feedbackRatio
		outcome := outcomeBonusFor(c.meta, bonus)
		c.finalScore = combined + outcome
		c.outcomeBonus = outcome
		c.bm25Score = bm25
		c.timeScore = timeDecay
		c.feedbackScore = feedbackRatio
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.finalScore != b.finalScore {
			return a.finalScore > b.finalScore
		}
		if a.vectorScore != b.vectorScore {
			return a.vectorScore > b.vectorScore
		}
		if a.updatedAtMillis != b.updatedAtMillis {
			return a.updatedAtMillis > b.updatedAtMillis
		}
		return a.id < b.id
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}

	results := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		path := c.path
		if params.Global || params.ProjectRoot == "" {
			path = c.rootPath + "/" + c.path
		}
		meta := map[string]any{
			"vector_score":   c.vectorScore,
			"bm25_score":     c.bm25Score,
			"time_score":     c.timeScore,
			"feedback_score": c.feedbackScore,
			"outcome_bonus":  c.outcomeBonus,
			"chunk_id":       c.id,
		}
		results[i] = SearchResult{Path: path, Chunk: c.text, Score: c.finalScore, Meta: meta, chunkID: c.id}
	}

	resp := SearchResponse{Results: results, Total: len(results), ProjectID: projectID}
	sharedCache.set(cacheKey, resp)
	return resp, nil
}

func cacheKeyFor(params SearchParams, k int) string {
	raw, _ := json.Marshal(struct {
		Root      string
		Query     string
		K         int
		Global    bool
		Component string
		Category  string
		Tags      []string
	}{params.ProjectRoot, params.Query, k, params.Global, params.Component, params.Category, params.Tags})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

type candidateRow struct {
	id              string
	path            string
	rootPath        string
	text            string
	embedding       []byte
	meta            map[string]any
	updatedAtMillis int64
	bm25Rank        float64
	helpfulCount    int
	totalFeedback   int

	vectorScore, bm25Score, timeScore, feedbackScore, outcomeBonus, finalScore float64
}

func (s *Store) fetchCandidates(ctx context.Context, projectID string, params SearchParams, limit int) ([]candidateRow, error) {
	query := `
		SELECT c.id, c.path, p.root_path, c.chunk_text, c.embedding, c.meta, c.updated_at,
		       bm25(chunks_fts) as rank,
		       COALESCE(f.helpful_count, 0), COALESCE(f.total_count, 0)
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.chunk_id
		JOIN projects p ON p.id = c.project_id
		LEFT JOIN (
			SELECT chunk_id, SUM(helpful) AS helpful_count, COUNT(*) AS total_count
			FROM feedback GROUP BY chunk_id
		) f ON f.chunk_id = c.id
		WHERE chunks_fts MATCH ?`
	args := []any{ftsQuery(params.Query)}

	if projectID != "" {
		query += " AND c.project_id = ?"
		args = append(args, projectID)
	}
	if params.Component != "" {
		query += " AND c.component = ?"
		args = append(args, params.Component)
	}
	if params.Category != "" {
		query += " AND c.category = ?"
		args = append(args, params.Category)
	}
	query += " ORDER BY rank LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []candidateRow
	for rows.Next() {
		var c candidateRow
		var metaJSON string
		var tagsJSON sql.NullString
		if err := rows.Scan(&c.id, &c.path, &c.rootPath, &c.text, &c.embedding, &metaJSON, &c.updatedAtMillis, &c.bm25Rank, &c.helpfulCount, &c.totalFeedback); err != nil {
			return nil, err
		}
		_ = tagsJSON
		json.Unmarshal([]byte(metaJSON), &c.meta)
		if len(params.Tags) > 0 && !tagsOverlap(c.meta, params.Tags) {
			continue
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func tagsOverlap(meta map[string]any, want []string) bool {
	raw, ok := meta["tags"]
	if !ok {
		return false
	}
	items, ok := raw.([]any)
	if !ok {
		return false
	}
	wantSet := make(map[string]bool, len(want))
	for _, w := range want {
		wantSet[w] = true
	}
	for _, it := range items {
		if s, ok := it.(string); ok && wantSet[s] {
			return true
		}
	}
	return false
}

var ftsTokenSplit = regexp.MustCompile(`\s+`)

// ftsQuery turns a free-text query into an FTS5 MATCH expression that
// ranks on token overlap (bm25) rather than exact-phrase adjacency.
// Each word is quoted individually (so characters FTS5 treats as
// operators, like "-" or "*", are inert) and the words are joined with
// OR, so "flaky test retry" matches any chunk containing at least one
// of those tokens, ranked by how many it actually shares.
func ftsQuery(q string) string {
	fields := ftsTokenSplit.Split(strings.TrimSpace(q), -1)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if f == "" {
			continue
		}
		tokens = append(tokens, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	if len(tokens) == 0 {
		return `""`
	}
	return strings.Join(tokens, " OR ")
}

// normalizeBM25 maps SQLite's bm25() output (negative, more negative =
// better match) onto [0, 1) via |rank| / (1 + |rank|), so a better
// match scores higher.
func normalizeBM25(rank float64) float64 {
	score := math.Abs(rank) / (1 + math.Abs(rank))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func ageDays(updatedAtMillis int64, now time.Time) float64 {
	age := now.Sub(time.UnixMilli(updatedAtMillis))
	days := age.Hours() / 24
	if days < 0 {
		return 0
	}
	return days
}

func feedbackRatioFor(helpful, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(helpful) / float64(total)
}

func outcomeBonusFor(meta map[string]any, bonus OutcomeBonus) float64 {
	status, _ := meta["outcome_status"].(string)
	switch status {
	case "success":
		return bonus.Success
	case "failure":
		return bonus.Failure
	default:
		return 0
	}
}
