package policy

import "fmt"

// PeriodicCheckpointRule is R6: every N pre-tool events, requests a
// checkpoint regardless of what the event is.
type PeriodicCheckpointRule struct {
	Checkpoint Checkpointer
	Every      int // default 50
}

func (r *PeriodicCheckpointRule) ID() string    { return "R6" }
func (r *PeriodicCheckpointRule) Priority() int { return 10 }

func (r *PeriodicCheckpointRule) Evaluate(ev Event) (Decision, error) {
	every := r.Every
	if every <= 0 {
		every = 50
	}
	if ev.TurnCounter == 0 || ev.TurnCounter%every != 0 {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}
	if r.Checkpoint == nil {
		return Decision{Verdict: Allow, Rule: r.ID()}, nil
	}

	id, err := r.Checkpoint.Create("periodic")
	if err != nil {
		return Decision{Verdict: Allow, Rule: r.ID(), Message: fmt.Sprintf("periodic checkpoint failed: %v", err)}, nil
	}
	return Decision{Verdict: Warn, Rule: r.ID(), Message: fmt.Sprintf("periodic checkpoint created: %s", id)}, nil
}
