package policy

import "testing"

func TestPeriodicCheckpointFiresOnMultiple(t *testing.T) {
	r := &PeriodicCheckpointRule{Every: 5, Checkpoint: fakeCheckpointer{id: "ckpt-5"}}
	d, err := r.Evaluate(Event{TurnCounter: 10})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Warn {
		t.Fatalf("Verdict = %v, want Warn at multiple of Every", d.Verdict)
	}
}

func TestPeriodicCheckpointSkipsOffMultiple(t *testing.T) {
	r := &PeriodicCheckpointRule{Every: 5, Checkpoint: fakeCheckpointer{id: "ckpt-5"}}
	d, err := r.Evaluate(Event{TurnCounter: 7})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Allow {
		t.Fatalf("Verdict = %v, want Allow off multiple", d.Verdict)
	}
}

func TestPeriodicCheckpointDefaultEvery(t *testing.T) {
	r := &PeriodicCheckpointRule{Checkpoint: fakeCheckpointer{id: "ckpt-50"}}
	d, err := r.Evaluate(Event{TurnCounter: 50})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d.Verdict != Warn {
		t.Fatalf("Verdict = %v, want Warn at default Every=50", d.Verdict)
	}
}
