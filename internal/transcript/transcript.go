// Package transcript scans a JSON-lines conversation transcript for the
// latest fenced DIGEST block, tail-first under a byte and time budget.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/antigravity-dev/sentry/internal/herr"
)

const (
	// DefaultTailBytes is the size of the trailing window scanned first.
	DefaultTailBytes = 512 * 1024
	// DefaultMaxBytes bounds the full (from-the-beginning) pass; files
	// larger than this skip straight to tail-only results.
	DefaultMaxBytes = 64 * 1024 * 1024
)

// Options configures a Scan.
type Options struct {
	TailBytes     int64
	MaxBytes      int64
	FastOnly      bool
	TimeBudget    time.Duration // zero means unbounded
	InvalidDigest func(reason string)
}

func (o Options) tailBytes() int64 {
	if o.TailBytes > 0 {
		return o.TailBytes
	}
	return DefaultTailBytes
}

func (o Options) maxBytes() int64 {
	if o.MaxBytes > 0 {
		return o.MaxBytes
	}
	return DefaultMaxBytes
}

// fenceOpen matches the opening fence in any tolerated language-tag
// ordering: "```json DIGEST", "```DIGEST json", or bare "```DIGEST".
var fenceOpen = regexp.MustCompile("(?i)```\\s*(?:json\\s+digest|digest\\s+json|digest)\\b")
var fenceClose = regexp.MustCompile("```")

// Scan locates the latest DIGEST block in the transcript at path. It
// returns nil, nil when no DIGEST is found within the configured
// budgets; a TranscriptError is returned only when the file itself
// cannot be read.
func Scan(path string, opts Options) (json.RawMessage, error) {
	deadline := time.Time{}
	if opts.TimeBudget > 0 {
		deadline = time.Now().Add(opts.TimeBudget)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTranscript, "transcript", "stat", err)
	}

	tail, err := readTail(path, opts.tailBytes())
	if err != nil {
		return nil, herr.Wrap(herr.ErrTranscript, "transcript", "read tail", err)
	}
	if digest := latestDigestInWindow(tail, opts.InvalidDigest); digest != nil {
		return digest, nil
	}
	if pastDeadline(deadline) {
		return nil, nil
	}
	if opts.FastOnly || info.Size() > opts.maxBytes() {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, herr.Wrap(herr.ErrTranscript, "transcript", "read full", err)
	}
	if pastDeadline(deadline) {
		return nil, nil
	}
	return latestDigestInWindow(data, opts.InvalidDigest), nil
}

func pastDeadline(deadline time.Time) bool {
	return !deadline.IsZero() && time.Now().After(deadline)
}

// readTail returns the last n bytes of the file, aligned forward to the
// first line boundary so no partial JSON-lines record is included.
func readTail(path string, n int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	start := int64(0)
	if size > n {
		start = size - n
	}
	if _, err := f.Seek(start, 0); err != nil {
		return nil, err
	}
	buf := make([]byte, size-start)
	if _, err := readFull(f, buf); err != nil {
		return nil, err
	}
	if start == 0 {
		return buf, nil
	}
	if idx := bytes.IndexByte(buf, '\n'); idx >= 0 {
		return buf[idx+1:], nil
	}
	return buf, nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			if total == len(buf) {
				return total, nil
			}
			return total, err
		}
	}
	return total, nil
}

// latestDigestInWindow scans line-oriented transcript text for the last
// valid DIGEST fenced block across all message text fields, tolerating
// CRLF and multi-line JSON bodies.
func latestDigestInWindow(data []byte, onInvalid func(string)) json.RawMessage {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var latest json.RawMessage
	for scanner.Scan() {
		line := scanner.Text()
		text := messageText(line)
		if text == "" {
			continue
		}
		for _, raw := range extractFencedDigests(text) {
			var js json.RawMessage
			if err := json.Unmarshal([]byte(raw), &js); err != nil {
				if onInvalid != nil {
					onInvalid("invalid JSON in DIGEST fence: " + err.Error())
				}
				continue
			}
			latest = js
		}
	}
	return latest
}

// messageText extracts the textual payload from a JSON-lines transcript
// record. Non-JSON lines (or records without recognizable text fields)
// are scanned as-is so plain-text transcripts still work.
func messageText(line string) string {
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return ""
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return line
	}

	var b strings.Builder
	collectText(rec, &b)
	if b.Len() > 0 {
		return b.String()
	}
	return line
}

func collectText(v any, b *strings.Builder) {
	switch t := v.(type) {
	case string:
		b.WriteString(t)
		b.WriteByte('\n')
	case map[string]any:
		for _, key := range []string{"text", "content", "message", "body"} {
			if inner, ok := t[key]; ok {
				collectText(inner, b)
			}
		}
	case []any:
		for _, item := range t {
			collectText(item, b)
		}
	}
}

// extractFencedDigests finds every ```json DIGEST ... ``` block (under
// any tolerated tag ordering) within text, in order of appearance.
func extractFencedDigests(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	rest := text
	for {
		loc := fenceOpen.FindStringIndex(rest)
		if loc == nil {
			break
		}
		after := rest[loc[1]:]
		closeLoc := fenceClose.FindStringIndex(after)
		if closeLoc == nil {
			break
		}
		body := strings.TrimSpace(after[:closeLoc[0]])
		if body != "" {
			out = append(out, body)
		}
		rest = after[closeLoc[1]:]
	}
	return out
}
