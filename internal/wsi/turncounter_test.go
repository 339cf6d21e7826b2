package wsi

import (
	"path/filepath"
	"testing"
)

func TestTurnCounterIncrementsMonotonically(t *testing.T) {
	tc := NewTurnCounter(filepath.Join(t.TempDir(), "turn_counter.json"))

	for i := 1; i <= 5; i++ {
		v, err := tc.Increment()
		if err != nil {
			t.Fatalf("Increment: %v", err)
		}
		if v != i {
			t.Fatalf("Increment() = %d, want %d", v, i)
		}
	}
}

func TestTurnCounterValueDefaultsToZero(t *testing.T) {
	tc := NewTurnCounter(filepath.Join(t.TempDir(), "turn_counter.json"))
	v, err := tc.Value()
	if err != nil {
		t.Fatalf("Value: %v", err)
	}
	if v != 0 {
		t.Fatalf("Value() = %d, want 0 for unwritten counter", v)
	}
}
