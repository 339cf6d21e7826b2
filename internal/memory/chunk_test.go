package memory

import (
	"strings"
	"testing"
)

func TestChunkTextEmptyReturnsEmpty(t *testing.T) {
	chunks, stats := ChunkText("")
	if len(chunks) != 0 {
		t.Errorf("expected no chunks for empty input, got %d", len(chunks))
	}
	if stats.TotalChunks != 0 {
		t.Errorf("stats.TotalChunks = %d, want 0", stats.TotalChunks)
	}
}

func TestChunkTextShortInputSingleChunk(t *testing.T) {
	chunks, stats := ChunkText("a short paragraph.")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if stats.TotalChunks != 1 {
		t.Errorf("stats.TotalChunks = %d, want 1", stats.TotalChunks)
	}
}

func TestChunkTextNormalizesCRLF(t *testing.T) {
	chunks, _ := ChunkText("line one\r\nline two\r\n")
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if strings.Contains(chunks[0].Text, "\r") {
		t.Error("expected CRLF normalized to LF")
	}
}

func TestChunkTextCapsBlankLines(t *testing.T) {
	input := "a\n\n\n\n\nb"
	chunks, _ := ChunkText(input)
	if strings.Count(chunks[0].Text, "\n\n\n\n") > 0 {
		t.Errorf("expected at most 2 consecutive blank lines, got:\n%q", chunks[0].Text)
	}
}

func TestChunkTextSplitsLongInputWithOverlap(t *testing.T) {
	sentence := "This is a test sentence with some words in it. "
	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString(sentence)
	}
	chunks, stats := ChunkText(b.String())
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks for long input, got %d", len(chunks))
	}
	if stats.TotalChunks != len(chunks) {
		t.Errorf("stats.TotalChunks = %d, want %d", stats.TotalChunks, len(chunks))
	}
	sum := 0
	for _, c := range chunks {
		sum += len(c.Text)
	}
	if sum <= stats.TotalChars {
		t.Errorf("chunk lengths sum to %d, want more than the %d input chars when chunks overlap", sum, stats.TotalChars)
	}
}

func TestChunkTextPreservesFencedCodeBlocks(t *testing.T) {
	code := "```go\nfunc main() {\n  fmt.Println(\"hi. there. now.\")\n}\n```"
	filler := strings.Repeat("Filler sentence here. ", 150)
	input := filler + code + filler
	chunks, _ := ChunkText(input)

	joined := ""
	for _, c := range chunks {
		joined += c.Text
	}
	if !strings.Contains(joined, "func main()") {
		t.Error("expected fenced code block content preserved somewhere in chunks")
	}
}
