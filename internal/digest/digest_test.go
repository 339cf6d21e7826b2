package digest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sample = `{
  "agent": "IE",
  "task_id": "t1",
  "decisions": ["use sqlite"],
  "files": [{"path": "a.ts", "reason": "new"}],
  "contracts": [],
  "next": ["write tests"],
  "evidence": {"lint": "ok"},
  "custom_field": "kept"
}`

func TestParseValidates(t *testing.T) {
	d, err := Parse(json.RawMessage(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if d.Agent != "IE" || d.TaskID != "t1" {
		t.Fatalf("unexpected digest: %+v", d)
	}
	if len(d.Extra) != 1 {
		t.Errorf("Extra = %v, want custom_field preserved", d.Extra)
	}
}

func TestParseRejectsMissingAgent(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"task_id":"t1"}`))
	if err == nil {
		t.Fatal("expected error for missing agent")
	}
}

func TestParseRejectsMissingTaskID(t *testing.T) {
	_, err := Parse(json.RawMessage(`{"agent":"IE"}`))
	if err == nil {
		t.Fatal("expected error for missing task_id")
	}
}

func TestParseDefaultsAbsentLists(t *testing.T) {
	d, err := Parse(json.RawMessage(`{"agent":"IE","task_id":"t1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if d.Decisions == nil || d.Files == nil || d.Contracts == nil || d.Next == nil || d.Evidence == nil {
		t.Errorf("expected all list/map fields defaulted to empty, got %+v", d)
	}
}

func TestMarkdownFormat(t *testing.T) {
	d, err := Parse(json.RawMessage(sample))
	if err != nil {
		t.Fatal(err)
	}
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	md := Markdown(d, at)

	want := []string{
		"## DIGEST — 2026-01-02T03:04:05Z — agent=IE — task=t1",
		"### Decisions",
		"- use sqlite",
		"### Files",
		"- a.ts — new",
		"### Evidence",
		"- lint: ok",
	}
	for _, w := range want {
		if !strings.Contains(md, w) {
			t.Errorf("Markdown missing %q, got:\n%s", w, md)
		}
	}
}

func TestAppendNotesCreatesWithBanner(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NOTES.md")
	if err := AppendNotes(path, "## DIGEST one\n"); err != nil {
		t.Fatalf("AppendNotes: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(string(data), "# NOTES") {
		t.Errorf("expected banner prefix, got:\n%s", data)
	}
	if !strings.Contains(string(data), "## DIGEST one") {
		t.Error("expected appended content")
	}
}

func TestAppendNotesAppendsSubsequentEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "NOTES.md")
	if err := AppendNotes(path, "## DIGEST one\n"); err != nil {
		t.Fatal(err)
	}
	if err := AppendNotes(path, "## DIGEST two\n"); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "## DIGEST one") || !strings.Contains(string(data), "## DIGEST two") {
		t.Errorf("expected both entries present, got:\n%s", data)
	}
}

func TestDeriveWSITouches(t *testing.T) {
	d, _ := Parse(json.RawMessage(sample))
	touches := DeriveWSITouches(d)
	if len(touches) != 1 || touches[0].Path != "a.ts" || touches[0].Reason != "new" {
		t.Errorf("touches = %+v", touches)
	}
}

func TestBuildIngestJob(t *testing.T) {
	d, _ := Parse(json.RawMessage(sample))
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	job := BuildIngestJob("/proj", d, at)

	if job.Source != "digest" {
		t.Errorf("Source = %q", job.Source)
	}
	if !strings.HasPrefix(job.PathInProject, "logs/digests/t1-") {
		t.Errorf("PathInProject = %q", job.PathInProject)
	}
	if job.Meta["agent"] != "IE" {
		t.Errorf("Meta[agent] = %v", job.Meta["agent"])
	}
	if job.Meta["outcome_status"] != "success" {
		t.Errorf("Meta[outcome_status] = %v, want success (lint: ok)", job.Meta["outcome_status"])
	}
}
