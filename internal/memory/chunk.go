package memory

import (
	"regexp"
	"strings"
)

const (
	targetChunkChars  = 2400 // ~600 tokens
	overlapChars      = 300  // ~75 tokens
	maxConsecutiveBlankLines = 2
)

// Chunk is one piece of chunked text ready for embedding.
type Chunk struct {
	Text string
}

// ChunkStats summarizes a chunking pass.
type ChunkStats struct {
	TotalChars   int
	TotalChunks  int
	AvgChunkSize float64
}

var sentenceBoundary = regexp.MustCompile(`(?s)([.!?])\s+`)
var fence = regexp.MustCompile("(?s)```.*?```")

// ChunkText splits text into overlapping, sentence-aware chunks, treating
// fenced code blocks as atomic units that are never split mid-fence.
func ChunkText(text string) ([]Chunk, ChunkStats) {
	normalized := normalize(text)
	if normalized == "" {
		return nil, ChunkStats{}
	}
	if len(normalized) <= targetChunkChars {
		return []Chunk{{Text: normalized}}, ChunkStats{TotalChars: len(normalized), TotalChunks: 1, AvgChunkSize: float64(len(normalized))}
	}

	units := splitIntoUnits(normalized)

	var chunks []Chunk
	var cur strings.Builder
	for i := 0; i < len(units); i++ {
		unit := units[i]
		if cur.Len() > 0 && cur.Len()+len(unit) > targetChunkChars {
			chunks = append(chunks, Chunk{Text: strings.TrimSpace(cur.String())})
			overlap := tailOverlap(cur.String(), overlapChars)
			cur.Reset()
			cur.WriteString(overlap)
		}
		cur.WriteString(unit)
	}
	if strings.TrimSpace(cur.String()) != "" {
		chunks = append(chunks, Chunk{Text: strings.TrimSpace(cur.String())})
	}

	total := 0
	for _, c := range chunks {
		total += len(c.Text)
	}
	stats := ChunkStats{TotalChars: len(normalized), TotalChunks: len(chunks)}
	if len(chunks) > 0 {
		stats.AvgChunkSize = float64(total) / float64(len(chunks))
	}
	return chunks, stats
}

// normalize converts CRLF to LF, collapses runs of horizontal
// whitespace, and caps consecutive blank lines.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	var out []string
	blank := 0
	for _, line := range lines {
		trimmed := strings.TrimRight(collapseSpaces(line), " \t")
		if trimmed == "" {
			blank++
			if blank > maxConsecutiveBlankLines {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

var runsOfSpace = regexp.MustCompile(`[ \t]+`)

func collapseSpaces(line string) string {
	return runsOfSpace.ReplaceAllString(line, " ")
}

// splitIntoUnits splits normalized text into sentence-level units,
// preserving fenced code blocks as single atomic units regardless of
// their internal sentence punctuation.
func splitIntoUnits(text string) []string {
	var units []string
	rest := text
	for {
		loc := fence.FindStringIndex(rest)
		if loc == nil {
			units = append(units, splitSentences(rest)...)
			break
		}
		if loc[0] > 0 {
			units = append(units, splitSentences(rest[:loc[0]])...)
		}
		units = append(units, rest[loc[0]:loc[1]]+"\n")
		rest = rest[loc[1]:]
	}
	return units
}

func splitSentences(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := sentenceBoundary.Split(text, -1)
	seps := sentenceBoundary.FindAllString(text, -1)

	var out []string
	for i, p := range parts {
		s := p
		if i < len(seps) {
			s += seps[i]
		}
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// tailOverlap returns the trailing n characters of s, trimmed forward
// to just after the first space in that window so overlap doesn't
// start mid-word.
func tailOverlap(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	if idx := strings.IndexByte(s[start:], ' '); idx >= 0 {
		start += idx + 1
	}
	return s[start:]
}
