package liveness

import (
	crand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/rand"
)

// randSource yields the random values used to shuffle stage orderings.
// Tests substitute a deterministic implementation.
type randSource interface {
	// Intn returns a uniformly distributed value in [0, n).
	Intn(n int) int
}

// cryptoSeededRand builds a math/rand generator seeded from crypto/rand so
// stage orderings are not predictable across process restarts.
func cryptoSeededRand() (*rand.Rand, error) {
	var b [8]byte
	if _, err := crand.Read(b[:]); err != nil {
		return nil, fmt.Errorf("read random seed: %w", err)
	}
	seed := int64(binary.LittleEndian.Uint64(b[:]))
	return rand.New(rand.NewSource(seed)), nil
}

// NewStageOrder returns a fresh set of stages for the given pose ids in a
// uniformly random order. Every call yields an independent permutation via
// an unbiased Fisher-Yates shuffle; the multiset of ids is preserved.
func NewStageOrder(ids []StageID) ([]*Stage, error) {
	rng, err := cryptoSeededRand()
	if err != nil {
		return nil, err
	}
	return newStageOrder(ids, rng), nil
}

func newStageOrder(ids []StageID, rng randSource) []*Stage {
	stages := make([]*Stage, len(ids))
	for i, id := range ids {
		stages[i] = NewStage(id)
	}

	// Fisher-Yates, iterating from the tail so each position draws from the
	// unshuffled prefix exactly once.
	for i := len(stages) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		stages[i], stages[j] = stages[j], stages[i]
	}

	return stages
}

// AdvanceStages removes the completed head stage and returns the remainder
// with the new head reset to its initial state. It is a no-op on an empty
// sequence. The multiset of remaining stage ids is never altered beyond
// dropping the head.
func AdvanceStages(stages []*Stage) []*Stage {
	if len(stages) == 0 {
		return stages
	}

	rest := stages[1:]
	if len(rest) > 0 && rest[0].Status() != StageStatusCompleted {
		// The new head may carry errored state from a previous pass; make
		// sure it starts clean.
		_ = rest[0].Reset()
	}
	return rest
}
