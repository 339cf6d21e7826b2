// Package api exposes the Memory Provider and Solution Registry RPC
// surface over HTTP+JSON, so the same calls the Hook Dispatcher makes
// in-process are reachable from external tooling (sentryctl, other
// host integrations) without a second protocol to maintain.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/antigravity-dev/sentry/internal/config"
	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/herr"
	"github.com/antigravity-dev/sentry/internal/memory"
	"github.com/antigravity-dev/sentry/internal/solutions"
)

// Server is the HTTP API server fronting the Memory Provider (C9) and
// Solution Registry (C11).
type Server struct {
	cfg        *config.Config
	memory     *memory.Store
	solutions  *solutions.Registry
	client     embedclient.Client
	logger     *slog.Logger
	startTime  time.Time
	httpServer *http.Server
	auth       *AuthMiddleware
}

// NewServer wires a Server against the shared Memory Provider store
// and Solution Registry (both backed by the same SQLite connection,
// see memory.Store.DB) and the embedding client used to vectorize
// queries.
func NewServer(cfg *config.Config, mem *memory.Store, sol *solutions.Registry, client embedclient.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		memory:    mem,
		solutions: sol,
		client:    client,
		logger:    logger,
		startTime: time.Now(),
		auth:      NewAuthMiddleware(cfg.API.AuthToken, logger),
	}
}

// Start begins listening on cfg.API.Addr. Blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.handleHealth)

	// Memory Provider (C9). memory_feedback mutates feedback/outcome
	// state and is gated; ingest/search/projects are not, matching the
	// read/write split specified for this RPC surface.
	mux.HandleFunc("/memory/ingest", s.handleMemoryIngest)
	mux.HandleFunc("/memory/search", s.handleMemorySearch)
	mux.HandleFunc("/memory/feedback", s.auth.RequireAuth(s.handleMemoryFeedback))
	mux.HandleFunc("/memory/projects", s.handleMemoryProjects)

	// Solution Registry (C11).
	mux.HandleFunc("/solutions/search", s.handleSolutionSearch)
	mux.HandleFunc("/solutions/", s.routeSolutionDetail)
	mux.HandleFunc("/solutions", s.auth.RequireAuth(s.handleSolutionUpsert))

	// Pattern detection, bridging Memory Provider patterns to the
	// Solution Registry's ranked candidates.
	mux.HandleFunc("/patterns/detect", s.handlePatternDetect)
	mux.HandleFunc("/patterns/solutions", s.handlePatternSolutions)
	mux.HandleFunc("/patterns/link", s.auth.RequireAuth(s.handlePatternLink))
	mux.HandleFunc("/golden-paths", s.handleGoldenPaths)

	s.httpServer = &http.Server{
		Addr:        s.cfg.API.Addr,
		Handler:     mux,
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.cfg.API.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

// writeError writes the spec's error envelope: {"error": {"kind", "message"}}.
func writeError(w http.ResponseWriter, code int, kind, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"kind": kind, "message": message},
	})
}

// writeErrFromCall maps a herr-wrapped error from the underlying store
// calls onto the error envelope, using herr.Kind to avoid every
// handler re-deriving the kind string by hand.
func writeErrFromCall(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, herr.Kind(err), err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"healthy":  true,
		"uptime_s": time.Since(s.startTime).Seconds(),
	})
}

// POST /memory/ingest {project_root, path, text, meta?} -> {chunks, project_id}
func (s *Server) handleMemoryIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "validation error", "POST required")
		return
	}
	var req struct {
		ProjectRoot string         `json:"project_root"`
		Path        string         `json:"path"`
		Text        string         `json:"text"`
		Meta        map[string]any `json:"meta"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}

	result, err := s.memory.Ingest(r.Context(), s.client, req.ProjectRoot, req.Path, req.Text, memory.IngestOptions{Meta: req.Meta})
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, map[string]any{"chunks": result.Chunks, "project_id": result.ProjectID})
}

// POST /memory/search {project_root|null, query, k, global, component?, category?, tags?}
func (s *Server) handleMemorySearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectRoot string   `json:"project_root"`
		Query       string   `json:"query"`
		K           int      `json:"k"`
		Global      bool     `json:"global"`
		Component   string   `json:"component"`
		Category    string   `json:"category"`
		Tags        []string `json:"tags"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}

	params := memory.SearchParams{
		ProjectRoot: req.ProjectRoot,
		Query:       req.Query,
		K:           req.K,
		Global:      req.Global,
		Component:   req.Component,
		Category:    req.Category,
		Tags:        req.Tags,
	}
	weights := memory.Weights{
		Vector:   s.cfg.Search.Weights.Vector,
		BM25:     s.cfg.Search.Weights.BM25,
		Time:     s.cfg.Search.Weights.Time,
		Feedback: s.cfg.Search.Weights.Feedback,
	}
	bonus := memory.OutcomeBonus{
		Success: s.cfg.Search.OutcomeBonus.Success,
		Failure: s.cfg.Search.OutcomeBonus.Failure,
	}

	resp, err := s.memory.Search(r.Context(), s.client, params, weights, bonus)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, resp)
}

// POST /memory/feedback {chunk_id, helpful, context?} -> {ok: true}
func (s *Server) handleMemoryFeedback(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChunkID string `json:"chunk_id"`
		Helpful bool   `json:"helpful"`
		Context string `json:"context"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	if err := s.memory.RecordFeedback(r.Context(), req.ChunkID, req.Helpful, req.Context); err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// GET /memory/projects -> [ {id, root_path, label, doc_count} ]
func (s *Server) handleMemoryProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.memory.Projects(r.Context())
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, projects)
}

// POST /solutions/search {error_message, filters?, limit=5} -> []SolutionMatch
func (s *Server) handleSolutionSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ErrorMessage string            `json:"error_message"`
		Filters      solutions.Filters `json:"filters"`
		Limit        int               `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	matches, err := s.solutions.FindSolutions(r.Context(), s.client, req.ErrorMessage, req.Filters, req.Limit)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, matches)
}

// routeSolutionDetail routes /solutions/{id}[/preview|/apply].
func (s *Server) routeSolutionDetail(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/solutions/")
	if path == "" {
		writeError(w, http.StatusBadRequest, "validation error", "solution id required")
		return
	}
	if strings.HasSuffix(path, "/preview") {
		s.handleSolutionPreview(w, r, strings.TrimSuffix(path, "/preview"))
		return
	}
	if strings.HasSuffix(path, "/apply") {
		s.auth.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
			s.handleSolutionApply(w, r, strings.TrimSuffix(path, "/apply"))
		})(w, r)
		return
	}
	s.handleSolutionGet(w, r, path)
}

// GET /solutions/{id} -> SolutionMatch (similarity unset; this is a
// direct lookup, not a ranked search result).
func (s *Server) handleSolutionGet(w http.ResponseWriter, r *http.Request, id string) {
	sol, err := s.solutions.GetSolution(r.Context(), id)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, solutions.SolutionMatch{Solution: sol})
}

// GET /solutions/{id}/preview?project_root=... -> { steps, checks }
// (dry-run: never executes anything).
func (s *Server) handleSolutionPreview(w http.ResponseWriter, r *http.Request, id string) {
	projectRoot := r.URL.Query().Get("project_root")
	preview, err := s.solutions.PreviewSolution(r.Context(), id, projectRoot)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, preview)
}

// POST /solutions/{id}/apply {success} -> {ok: true}
func (s *Server) handleSolutionApply(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Success bool `json:"success"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	if err := s.solutions.RecordApplication(r.Context(), id, req.Success); err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// POST /solutions {input: CreateInput} -> {id}
func (s *Server) handleSolutionUpsert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "validation error", "POST required")
		return
	}
	var req solutions.CreateInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	id, err := s.solutions.CreateSolution(r.Context(), s.client, req)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, map[string]string{"id": id})
}

// patternMatch is the composed result of matching a detected pattern
// against free-text query_text, surfaced by pattern_detect.
type patternMatch struct {
	PatternTag             string  `json:"pattern_tag"`
	PatternCategory        string  `json:"pattern_category"`
	MatchScore             float64 `json:"match_score"`
	SolutionCount          int     `json:"solution_count"`
	TopSolutionID          string  `json:"top_solution_id,omitempty"`
	TopSolutionTitle       string  `json:"top_solution_title,omitempty"`
	TopSolutionSuccessRate float64 `json:"top_solution_success_rate,omitempty"`
}

// POST /patterns/detect {query_text, limit=3} -> []patternMatch
//
// There is no free-text index over detected patterns, so match_score
// is a simple token-overlap score between query_text and the pattern's
// tag/category — patterns are short, stable labels ("flaky-test",
// "missing-import"), not prose, so word overlap is a reasonable proxy
// without standing up a second search index just for this endpoint.
func (s *Server) handlePatternDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QueryText string `json:"query_text"`
		Limit     int    `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 3
	}

	patterns, err := s.memory.DetectPatterns(r.Context())
	if err != nil {
		writeErrFromCall(w, err)
		return
	}

	queryTokens := tokenize(req.QueryText)
	matches := make([]patternMatch, 0, len(patterns))
	for _, p := range patterns {
		score := tokenOverlap(queryTokens, tokenize(p.Tag+" "+p.Category))
		if score < minPatternMatchScore {
			continue
		}
		top, err := s.memory.SolutionsForPattern(r.Context(), p.Tag, p.Category, 1)
		if err != nil {
			writeErrFromCall(w, err)
			return
		}
		m := patternMatch{
			PatternTag:      p.Tag,
			PatternCategory: p.Category,
			MatchScore:      score,
			SolutionCount:   len(top),
		}
		if len(top) > 0 {
			m.TopSolutionID = top[0].SolutionID
			m.TopSolutionTitle = top[0].Title
			m.TopSolutionSuccessRate = top[0].SuccessRate
		}
		matches = append(matches, m)
	}
	sortPatternMatches(matches)
	if len(matches) > req.Limit {
		matches = matches[:req.Limit]
	}
	writeJSON(w, matches)
}

// minPatternMatchScore is the normalized tag-overlap floor below which
// a pattern_detect candidate is rejected as noise (spec §4.7.6: "its
// normalized overlap with the current query's derived tag set >= 0.10").
const minPatternMatchScore = 0.10

func tokenize(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		out[f] = true
	}
	return out
}

func tokenOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matches := 0
	for tok := range b {
		if a[tok] {
			matches++
		}
	}
	return float64(matches) / float64(len(b))
}

func sortPatternMatches(m []patternMatch) {
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && m[j].MatchScore > m[j-1].MatchScore; j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

// POST /patterns/solutions {pattern_tag, pattern_category, limit=5} -> []SolutionForPattern
func (s *Server) handlePatternSolutions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatternTag      string `json:"pattern_tag"`
		PatternCategory string `json:"pattern_category"`
		Limit           int    `json:"limit"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 5
	}
	out, err := s.memory.SolutionsForPattern(r.Context(), req.PatternTag, req.PatternCategory, req.Limit)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, out)
}

// POST /patterns/link {pattern_tag, pattern_category, solution_id, project_root?, success, helpful_ratio?} -> {ok: true}
func (s *Server) handlePatternLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PatternTag      string  `json:"pattern_tag"`
		PatternCategory string  `json:"pattern_category"`
		SolutionID      string  `json:"solution_id"`
		ProjectRoot     string  `json:"project_root"`
		Success         bool    `json:"success"`
		HelpfulRatio    float64 `json:"helpful_ratio"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error", "malformed request body")
		return
	}
	if err := s.memory.LinkPatternToSolution(r.Context(), req.PatternTag, req.PatternCategory, req.SolutionID, req.ProjectRoot, req.Success, req.HelpfulRatio); err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, map[string]bool{"ok": true})
}

// GET /golden-paths?min_applications=3&limit=20
func (s *Server) handleGoldenPaths(w http.ResponseWriter, r *http.Request) {
	minApplications, _ := strconv.Atoi(r.URL.Query().Get("min_applications"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	paths, err := s.memory.GoldenPaths(r.Context(), minApplications, limit)
	if err != nil {
		writeErrFromCall(w, err)
		return
	}
	writeJSON(w, paths)
}
