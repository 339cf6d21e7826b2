package embedclient

import (
	"testing"
	"time"
)

func TestTokenBudgetReserveWithinCap(t *testing.T) {
	b := NewTokenBudget(1000)
	if err := b.Reserve("proj-a", 500); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if b.Used("proj-a") != 500 {
		t.Errorf("Used = %d, want 500", b.Used("proj-a"))
	}
}

func TestTokenBudgetRejectsOverCap(t *testing.T) {
	b := NewTokenBudget(1000)
	if err := b.Reserve("proj-a", 900); err != nil {
		t.Fatal(err)
	}
	if err := b.Reserve("proj-a", 200); err == nil {
		t.Fatal("expected error exceeding daily cap")
	}
}

func TestTokenBudgetZeroCapDisablesEnforcement(t *testing.T) {
	b := NewTokenBudget(0)
	if err := b.Reserve("proj-a", 1_000_000); err != nil {
		t.Fatalf("Reserve with cap=0 should never fail: %v", err)
	}
}

func TestTokenBudgetResetsAtMidnightUTC(t *testing.T) {
	b := NewTokenBudget(1000)
	fixed := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	if err := b.Reserve("proj-a", 900); err != nil {
		t.Fatal(err)
	}

	nextDay := fixed.Add(2 * time.Hour)
	b.now = func() time.Time { return nextDay }
	if err := b.Reserve("proj-a", 900); err != nil {
		t.Fatalf("expected budget reset after midnight UTC, got error: %v", err)
	}
}
