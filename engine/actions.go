package engine

import "fmt"

type PlayKind int

const (
	PLAY_TRAINER PlayKind = iota + 1
	PLAY_SET_ACTIVE
	PLAY_BENCH
	PLAY_EVOLVE_BENCH
	PLAY_EVOLVE_ACTIVE
)

func (k PlayKind) String() string {
	switch k {
	case PLAY_TRAINER:
		return "trainer"
	case PLAY_SET_ACTIVE:
		return "set active"
	case PLAY_BENCH:
		return "bench"
	case PLAY_EVOLVE_BENCH:
		return "evolve bench"
	case PLAY_EVOLVE_ACTIVE:
		return "evolve active"
	}

	return fmt.Sprintf("PlayKind(%d)", int(k))
}

func (k PlayKind) IsEvolve() bool {
	return k == PLAY_EVOLVE_BENCH || k == PLAY_EVOLVE_ACTIVE
}

// Candidate is one legal play proposed by the planner. Slot is the bench index
// for bench plays and bench evolutions, -1 otherwise.
type Candidate struct {
	Kind PlayKind
	Card HandCard
	Slot int
}

func (c Candidate) String() string {
	if c.Slot >= 0 {
		return fmt.Sprintf("%s %s -> slot %d", c.Kind, c.Card, c.Slot)
	}

	return fmt.Sprintf("%s %s", c.Kind, c.Card)
}

// Outcome is what the executor observed after attempting a candidate. The
// orchestrator applies it to GameState.
type Outcome struct {
	Candidate Candidate
	Success   bool
	// Cards the play is known to add to the hand (trainer draw effects)
	HandDelta int
	// Why the play was not confirmed, nil on success
	Reason error
}
