package memory

import (
	"context"

	"github.com/antigravity-dev/sentry/internal/herr"
)

// minApplicationsForPattern is how many times a (tag, category) pair
// must recur before it's surfaced as a detected pattern.
const minApplicationsForPattern = 3

// Pattern is a recurring (tag, category) combination with its linked
// solution outcomes.
type Pattern struct {
	Tag            string  `json:"tag"`
	Category       string  `json:"category"`
	Applications   int     `json:"applications"`
	SuccessRate    float64 `json:"success_rate"`
}

// DetectPatterns finds (pattern_tag, pattern_category) pairs with at
// least minApplicationsForPattern linked solution applications.
func (s *Store) DetectPatterns(ctx context.Context) ([]Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pattern_tag, pattern_category,
		       SUM(success_count) + SUM(failure_count) AS applications,
		       SUM(success_count), SUM(failure_count)
		FROM pattern_solution_links
		GROUP BY pattern_tag, pattern_category
		HAVING applications >= ?
		ORDER BY applications DESC`, minApplicationsForPattern)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "memory", "detect patterns", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var p Pattern
		var success, failure int
		if err := rows.Scan(&p.Tag, &p.Category, &p.Applications, &success, &failure); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "memory", "scan pattern", err)
		}
		if p.Applications > 0 {
			p.SuccessRate = float64(success) / float64(p.Applications)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SolutionForPattern is one ranked candidate returned by
// SolutionsForPattern.
type SolutionForPattern struct {
	SolutionID   string  `json:"solution_id"`
	Title        string  `json:"title"`
	Score        float64 `json:"score"`
	SuccessRate  float64 `json:"success_rate"`
	Applications int     `json:"applications"`
	HelpfulRatio float64 `json:"helpful_ratio"`
}

// SolutionsForPattern ranks solutions linked to tag/category by
// 0.60*pattern_success_rate + 0.30*min(1, applications/10) +
// 0.10*avg_helpful_ratio.
func (s *Store) SolutionsForPattern(ctx context.Context, tag, category string, limit int) ([]SolutionForPattern, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.solution_id, sol.title, l.success_count, l.failure_count, l.avg_helpful_ratio
		FROM pattern_solution_links l
		JOIN solutions sol ON sol.id = l.solution_id
		WHERE l.pattern_tag = ? AND l.pattern_category = ?`, tag, category)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "memory", "solutions for pattern", err)
	}
	defer rows.Close()

	var out []SolutionForPattern
	for rows.Next() {
		var r SolutionForPattern
		var success, failure int
		if err := rows.Scan(&r.SolutionID, &r.Title, &success, &failure, &r.HelpfulRatio); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "memory", "scan solution for pattern", err)
		}
		r.Applications = success + failure
		if r.Applications > 0 {
			r.SuccessRate = float64(success) / float64(r.Applications)
		}
		appFactor := float64(r.Applications) / 10
		if appFactor > 1 {
			appFactor = 1
		}
		r.Score = 0.60*r.SuccessRate + 0.30*appFactor + 0.10*r.HelpfulRatio
		out = append(out, r)
	}
	sortSolutionsByScore(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, rows.Err()
}

func sortSolutionsByScore(s []SolutionForPattern) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j].Score > s[j-1].Score; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// LinkPatternToSolution records (or updates) an application outcome
// linking a (tag, category) pattern to a solution. projectRoot, when
// non-empty, is recorded as one of the distinct projects that have
// applied this link, for golden_paths' projects_count.
func (s *Store) LinkPatternToSolution(ctx context.Context, tag, category, solutionID, projectRoot string, success bool, helpfulRatio float64) error {
	successInc, failureInc := 0, 0
	if success {
		successInc = 1
	} else {
		failureInc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pattern_solution_links (pattern_tag, pattern_category, solution_id, success_count, failure_count, avg_helpful_ratio)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_tag, pattern_category, solution_id) DO UPDATE SET
			success_count = success_count + excluded.success_count,
			failure_count = failure_count + excluded.failure_count,
			avg_helpful_ratio = (avg_helpful_ratio + excluded.avg_helpful_ratio) / 2`,
		tag, category, solutionID, successInc, failureInc, helpfulRatio)
	if err != nil {
		return herr.Wrap(herr.ErrTransient, "memory", "link pattern to solution", err)
	}

	if projectRoot != "" {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO pattern_solution_projects (pattern_tag, pattern_category, solution_id, project_root)
			VALUES (?, ?, ?, ?)`,
			tag, category, solutionID, projectRoot); err != nil {
			return herr.Wrap(herr.ErrTransient, "memory", "link pattern to solution project", err)
		}
	}

	sharedCache.clear()
	return nil
}

// GoldenPath is one pattern->solution link that has cleared the
// caller's applications floor.
type GoldenPath struct {
	Tag             string  `json:"pattern_tag"`
	Category        string  `json:"pattern_category"`
	SolutionID      string  `json:"solution_id"`
	Title           string  `json:"solution_title"`
	SuccessRate     float64 `json:"success_rate"`
	Applications    int     `json:"applications"`
	AvgHelpfulRatio float64 `json:"avg_helpful_ratio"`
	ProjectsCount   int     `json:"projects_count"`
}

// defaultGoldenPathMinApplications is used when the caller passes
// minApplications <= 0.
const defaultGoldenPathMinApplications = 3

// GoldenPaths returns (pattern -> solution) links with
// applications >= minApplications, ordered by success_rate desc, then
// applications desc, per spec's get_golden_paths(min_applications,
// limit). There is no success-rate floor; minApplications <= 0 uses
// defaultGoldenPathMinApplications (3).
func (s *Store) GoldenPaths(ctx context.Context, minApplications, limit int) ([]GoldenPath, error) {
	if minApplications <= 0 {
		minApplications = defaultGoldenPathMinApplications
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT l.pattern_tag, l.pattern_category, l.solution_id, sol.title,
		       l.success_count, l.failure_count, l.avg_helpful_ratio,
		       (SELECT COUNT(DISTINCT p.project_root) FROM pattern_solution_projects p
		        WHERE p.pattern_tag = l.pattern_tag AND p.pattern_category = l.pattern_category AND p.solution_id = l.solution_id) AS projects_count
		FROM pattern_solution_links l
		JOIN solutions sol ON sol.id = l.solution_id
		WHERE (l.success_count + l.failure_count) >= ?`, minApplications)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTransient, "memory", "golden paths", err)
	}
	defer rows.Close()

	var out []GoldenPath
	for rows.Next() {
		var gp GoldenPath
		var success, failure int
		if err := rows.Scan(&gp.Tag, &gp.Category, &gp.SolutionID, &gp.Title, &success, &failure, &gp.AvgHelpfulRatio, &gp.ProjectsCount); err != nil {
			return nil, herr.Wrap(herr.ErrTransient, "memory", "scan golden path", err)
		}
		gp.Applications = success + failure
		if gp.Applications > 0 {
			gp.SuccessRate = float64(success) / float64(gp.Applications)
		}
		out = append(out, gp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortGoldenPaths(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// sortGoldenPaths orders by success rate desc, then applications desc,
// matching get_golden_paths' documented tie-break.
func sortGoldenPaths(s []GoldenPath) {
	less := func(i, j int) bool {
		if s[i].SuccessRate != s[j].SuccessRate {
			return s[i].SuccessRate > s[j].SuccessRate
		}
		return s[i].Applications > s[j].Applications
	}
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(j, j-1); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
