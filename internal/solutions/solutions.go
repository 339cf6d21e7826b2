// Package solutions implements the Solution Registry: fixpack CRUD,
// error-signature matching, success-rate tracking, and parameter-free
// preview of remediation steps. It shares its SQLite database with the
// Memory Provider (solutions/signatures/steps/checks tables) but owns
// that slice of the schema exclusively.
package solutions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/antigravity-dev/sentry/internal/embedclient"
	"github.com/antigravity-dev/sentry/internal/herr"
	"github.com/antigravity-dev/sentry/internal/memory"
)

// Registry is the Solution Registry persistence layer.
type Registry struct {
	db *sql.DB
}

// New builds a Registry against db, which must already carry the
// solutions/signatures/steps/checks schema (migrated by memory.Open).
func New(db *sql.DB) *Registry {
	return &Registry{db: db}
}

// Step is one ordered remediation action in a solution.
type Step struct {
	Ord         int    `json:"ord"`
	Kind        string `json:"kind"`
	Payload     string `json:"payload"`
	Description string `json:"description,omitempty"`
	TimeoutMS   int    `json:"timeout_ms,omitempty"`
}

// Check is one ordered validation command run after applying steps.
type Check struct {
	Ord             int    `json:"ord"`
	Cmd             string `json:"cmd"`
	ExpectSubstring string `json:"expect_substring,omitempty"`
	ExpectExitCode  int    `json:"expect_exit_code"`
	TimeoutMS       int    `json:"timeout_ms,omitempty"`
}

// Solution is a reusable remediation template.
type Solution struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Category       string   `json:"category"`
	Component      string   `json:"component,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	ProjectRoot    string   `json:"project_root,omitempty"`
	RepoName       string   `json:"repo_name,omitempty"`
	PackageManager string   `json:"package_manager,omitempty"`
	MonorepoTool   string   `json:"monorepo_tool,omitempty"`
	SuccessCount   int      `json:"success_count"`
	FailureCount   int      `json:"failure_count"`
	LastAppliedAt  int64    `json:"last_applied_at,omitempty"`
	VerifiedOn     string   `json:"verified_on,omitempty"`
	Steps          []Step   `json:"steps,omitempty"`
	Checks         []Check  `json:"checks,omitempty"`
}

// SignatureInput is one error-signature to attach to a new solution.
type SignatureInput struct {
	Text    string   `json:"text"`
	Regexes []string `json:"regexes,omitempty"`
}

// CreateInput is the payload for CreateSolution.
type CreateInput struct {
	Title          string
	Description    string
	Category       string
	Component      string
	Tags           []string
	ProjectRoot    string
	RepoName       string
	PackageManager string
	MonorepoTool   string
	Signatures     []SignatureInput
	Steps          []Step
	Checks         []Check
}

// SolutionMatch is a ranked solution returned by FindSolutions or the
// pattern-linked ranking in the Memory Provider.
type SolutionMatch struct {
	Solution
	Similarity float64 `json:"similarity,omitempty"`
}

// Filters narrows FindSolutions candidates.
type Filters struct {
	ProjectRoot    string
	Category       string
	Component      string
	PackageManager string
	MonorepoTool   string
}

// CreateSolution atomically inserts a solution, its error signatures
// (each embedded at creation time), its ordered steps, and its ordered
// checks.
func (r *Registry) CreateSolution(ctx context.Context, client embedclient.Client, in CreateInput) (string, error) {
	if in.Title == "" || in.Category == "" {
		return "", herr.Wrap(herr.ErrFatal, "solutions", "validate", fmt.Errorf("title and category are required"))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", herr.Wrap(herr.ErrTransient, "solutions", "begin tx", err)
	}
	defer tx.Rollback()

	id := newID("sol")
	now := time.Now().UnixMilli()
	tagsJSON, _ := json.Marshal(in.Tags)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO solutions (id, title, description, category, component, tags, project_root, repo_name,
			package_manager, monorepo_tool, success_count, failure_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		id, in.Title, in.Description, in.Category, in.Component, string(tagsJSON), in.ProjectRoot, in.RepoName,
		in.PackageManager, in.MonorepoTool, now, now)
	if err != nil {
		return "", herr.Wrap(herr.ErrTransient, "solutions", "insert solution", err)
	}

	for _, sig := range in.Signatures {
		vec, err := client.Embed(ctx, sig.Text)
		if err != nil {
			return "", err
		}
		regexesJSON, _ := json.Marshal(sig.Regexes)
		sigID := newID("sig")
		_, err = tx.ExecContext(ctx, `
			INSERT INTO signatures (id, solution_id, text, regexes, embedding, meta) VALUES (?, ?, ?, ?, ?, '{}')`,
			sigID, id, sig.Text, string(regexesJSON), memory.EncodeVector(vec))
		if err != nil {
			return "", herr.Wrap(herr.ErrTransient, "solutions", "insert signature", err)
		}
	}

	for _, step := range in.Steps {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO steps (id, solution_id, ord, kind, payload, description, timeout_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID("step"), id, step.Ord, step.Kind, step.Payload, step.Description, step.TimeoutMS)
		if err != nil {
			return "", herr.Wrap(herr.ErrTransient, "solutions", "insert step", err)
		}
	}

	for _, check := range in.Checks {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO checks (id, solution_id, ord, cmd, expect_substring, expect_exit_code, timeout_ms) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newID("check"), id, check.Ord, check.Cmd, check.ExpectSubstring, check.ExpectExitCode, check.TimeoutMS)
		if err != nil {
			return "", herr.Wrap(herr.ErrTransient, "solutions", "insert check", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", herr.Wrap(herr.ErrTransient, "solutions", "commit", err)
	}
	return id, nil
}

// GetSolution returns a solution with its ordered steps and checks.
func (r *Registry) GetSolution(ctx context.Context, id string) (Solution, error) {
	sol, err := r.scanSolution(ctx, id)
	if err != nil {
		return Solution{}, err
	}
	sol.Steps, err = r.steps(ctx, id)
	if err != nil {
		return Solution{}, err
	}
	sol.Checks, err = r.checks(ctx, id)
	if err != nil {
		return Solution{}, err
	}
	return sol, nil
}

func (r *Registry) scanSolution(ctx context.Context, id string) (Solution, error) {
	var s Solution
	var tagsJSON string
	var lastApplied sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT id, title, description, category, component, tags, project_root, repo_name,
		       package_manager, monorepo_tool, success_count, failure_count, last_applied_at, verified_on
		FROM solutions WHERE id = ?`, id).Scan(
		&s.ID, &s.Title, &s.Description, &s.Category, &s.Component, &tagsJSON, &s.ProjectRoot, &s.RepoName,
		&s.PackageManager, &s.MonorepoTool, &s.SuccessCount, &s.FailureCount, &lastApplied, &s.VerifiedOn)
	if err == sql.ErrNoRows {
		return Solution{}, herr.Wrap(herr.ErrFatal, "solutions", "get solution", fmt.Errorf("solution %q not found", id))
	}
	if err != nil {
		return Solution{}, herr.Wrap(herr.ErrTransient, "solutions", "get solution", err)
	}
	if lastApplied.Valid {
		s.LastAppliedAt = lastApplied.Int64
	}
	json.Unmarshal([]byte(tagsJSON), &s.Tags)
	return s, nil
}

func (r *Registry) steps(ctx context.Context, solutionID string) ([]Step, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ord, kind, payload, description, timeout_ms FROM steps WHERE solution_id = ? ORDER BY ord`, solutionID)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "solutions", "list steps", err)
	}
	defer rows.Close()
	var out []Step
	for rows.Next() {
		var s Step
		if err := rows.Scan(&s.Ord, &s.Kind, &s.Payload, &s.Description, &s.TimeoutMS); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "solutions", "scan step", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Registry) checks(ctx context.Context, solutionID string) ([]Check, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ord, cmd, expect_substring, expect_exit_code, timeout_ms FROM checks WHERE solution_id = ? ORDER BY ord`, solutionID)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "solutions", "list checks", err)
	}
	defer rows.Close()
	var out []Check
	for rows.Next() {
		var c Check
		if err := rows.Scan(&c.Ord, &c.Cmd, &c.ExpectSubstring, &c.ExpectExitCode, &c.TimeoutMS); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "solutions", "scan check", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindSolutions embeds error_text, scores every signature by
// 1 - cosine_distance against the query vector, and returns the
// highest-similarity solutions after applying filters. Ties broken by
// success_count desc, then verified_on desc.
func (r *Registry) FindSolutions(ctx context.Context, client embedclient.Client, errorText string, filters Filters, limit int) ([]SolutionMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	queryVec, err := client.Embed(ctx, errorText)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT sig.solution_id, sig.embedding, sol.title, sol.description, sol.category, sol.component, sol.tags,
		       sol.project_root, sol.repo_name, sol.package_manager, sol.monorepo_tool,
		       sol.success_count, sol.failure_count, sol.last_applied_at, sol.verified_on
		FROM signatures sig
		JOIN solutions sol ON sol.id = sig.solution_id
		WHERE 1=1`
	var args []any
	if filters.Category != "" {
		query += " AND sol.category = ?"
		args = append(args, filters.Category)
	}
	if filters.Component != "" {
		query += " AND sol.component = ?"
		args = append(args, filters.Component)
	}
	if filters.PackageManager != "" {
		query += " AND sol.package_manager = ?"
		args = append(args, filters.PackageManager)
	}
	if filters.MonorepoTool != "" {
		query += " AND sol.monorepo_tool = ?"
		args = append(args, filters.MonorepoTool)
	}
	if filters.ProjectRoot != "" {
		query += " AND (sol.project_root IS NULL OR sol.project_root = '' OR sol.project_root = ?)"
		args = append(args, filters.ProjectRoot)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "solutions", "find solutions", err)
	}
	defer rows.Close()

	best := make(map[string]SolutionMatch)
	for rows.Next() {
		var solutionID string
		var embedding []byte
		var s Solution
		var tagsJSON string
		var lastApplied sql.NullInt64
		if err := rows.Scan(&solutionID, &embedding, &s.Title, &s.Description, &s.Category, &s.Component, &tagsJSON,
			&s.ProjectRoot, &s.RepoName, &s.PackageManager, &s.MonorepoTool, &s.SuccessCount, &s.FailureCount,
			&lastApplied, &s.VerifiedOn); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "solutions", "scan signature match", err)
		}
		s.ID = solutionID
		if lastApplied.Valid {
			s.LastAppliedAt = lastApplied.Int64
		}
		json.Unmarshal([]byte(tagsJSON), &s.Tags)

		sim := memory.CosineSimilarity(memory.DecodeVector(embedding), queryVec)
		if existing, ok := best[solutionID]; !ok || sim > existing.Similarity {
			best[solutionID] = SolutionMatch{Solution: s, Similarity: sim}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SolutionMatch, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	sortMatches(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortMatches(s []SolutionMatch) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j-1], s[j]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// less reports whether a ranks below b: lower similarity, then lower
// success_count, then older verified_on. sortMatches uses it to order
// matches best first.
func less(a, b SolutionMatch) bool {
	if a.Similarity != b.Similarity {
		return a.Similarity < b.Similarity
	}
	if a.SuccessCount != b.SuccessCount {
		return a.SuccessCount < b.SuccessCount
	}
	return a.VerifiedOn < b.VerifiedOn
}

// RecordApplication increments the solution's success or failure
// counter and stamps last_applied_at.
func (r *Registry) RecordApplication(ctx context.Context, id string, success bool) error {
	now := time.Now().UnixMilli()
	column := "failure_count"
	if success {
		column = "success_count"
	}
	res, err := r.db.ExecContext(ctx, fmt.Sprintf(`UPDATE solutions SET %s = %s + 1, last_applied_at = ?, updated_at = ? WHERE id = ?`, column, column),
		now, now, id)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "solutions", "record application", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "solutions", "record application", err)
	}
	if affected == 0 {
		return herr.Wrap(herr.ErrFatal, "solutions", "record application", fmt.Errorf("solution %q not found", id))
	}
	return nil
}

// Preview is the dry-run, parameter-substituted view of a solution's
// steps and checks. It never executes anything; the host applies them.
type Preview struct {
	Steps  []Step  `json:"steps"`
	Checks []Check `json:"checks"`
}

// PreviewSolution substitutes {{project_root}} into step payloads and
// check commands without running anything.
func (r *Registry) PreviewSolution(ctx context.Context, id, projectRoot string) (Preview, error) {
	steps, err := r.steps(ctx, id)
	if err != nil {
		return Preview{}, err
	}
	checks, err := r.checks(ctx, id)
	if err != nil {
		return Preview{}, err
	}
	for i := range steps {
		steps[i].Payload = substitute(steps[i].Payload, projectRoot)
	}
	for i := range checks {
		checks[i].Cmd = substitute(checks[i].Cmd, projectRoot)
	}
	return Preview{Steps: steps, Checks: checks}, nil
}

func substitute(s, projectRoot string) string {
	return strings.ReplaceAll(s, "{{project_root}}", projectRoot)
}

var idCounter int64

func newID(prefix string) string {
	idCounter++
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), idCounter)
}
