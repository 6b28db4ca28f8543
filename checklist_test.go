package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func foundationHost(t *testing.T, foundation string, priority uint32) Candidate {
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network:    "udp",
		Address:    "192.168.1.2",
		Port:       1234,
		Component:  ComponentRTP,
		Foundation: foundation,
		Priority:   priority,
	})
	require.NoError(t, err)
	return c
}

func TestChecklistOrdering(t *testing.T) {
	cl := newChecklist(ComponentRTP)
	remote := foundationHost(t, "r", 50)

	low := newCandidatePair(foundationHost(t, "a", 1), remote, true)
	high := newCandidatePair(foundationHost(t, "b", 1000), remote, true)
	mid := newCandidatePair(foundationHost(t, "c", 500), remote, true)

	cl.addPair(low)
	cl.addPair(high)
	cl.addPair(mid)

	require.Len(t, cl.pairs, 3)
	assert.Same(t, high, cl.pairs[0])
	assert.Same(t, mid, cl.pairs[1])
	assert.Same(t, low, cl.pairs[2])
}

func TestChecklistFreezing(t *testing.T) {
	cl := newChecklist(ComponentRTP)
	remote := foundationHost(t, "r", 50)

	first := newCandidatePair(foundationHost(t, "f", 1000), remote, true)
	second := newCandidatePair(foundationHost(t, "f", 500), remote, true)
	other := newCandidatePair(foundationHost(t, "g", 400), remote, true)

	cl.addPair(first)
	cl.addPair(second)
	cl.addPair(other)

	// Only the leading pair of each foundation group starts Waiting
	assert.Equal(t, CandidatePairStateWaiting, first.state)
	assert.Equal(t, CandidatePairStateFrozen, second.state)
	assert.Equal(t, CandidatePairStateWaiting, other.state)

	assert.Same(t, first, cl.nextWaiting())

	// Once the leader settles, the next pair of its group thaws
	first.state = CandidatePairStateSucceeded
	cl.unfreeze(pairFoundation(first))
	assert.Equal(t, CandidatePairStateWaiting, second.state)
	assert.Same(t, second, cl.nextWaiting())
}

func TestChecklistSettledAndAllFailed(t *testing.T) {
	cl := newChecklist(ComponentRTP)
	assert.False(t, cl.settled())
	assert.False(t, cl.allFailed())

	remote := foundationHost(t, "r", 50)
	p := newCandidatePair(foundationHost(t, "a", 100), remote, true)
	q := newCandidatePair(foundationHost(t, "b", 200), remote, true)
	cl.addPair(p)
	cl.addPair(q)

	assert.False(t, cl.settled())

	p.state = CandidatePairStateFailed
	q.state = CandidatePairStateFailed
	assert.True(t, cl.settled())
	assert.True(t, cl.allFailed())

	q.state = CandidatePairStateSucceeded
	assert.True(t, cl.settled())
	assert.False(t, cl.allFailed())
}

func TestChecklistReviveOnNewPair(t *testing.T) {
	cl := newChecklist(ComponentRTP)
	remote := foundationHost(t, "r", 50)

	p := newCandidatePair(foundationHost(t, "a", 100), remote, true)
	cl.addPair(p)
	p.state = CandidatePairStateFailed
	cl.failed = true

	q := newCandidatePair(foundationHost(t, "b", 200), remote, true)
	cl.addPair(q)
	assert.False(t, cl.failed)
	assert.Equal(t, CandidatePairStateWaiting, q.state)
}

func TestChecklistHigherPriorityResolved(t *testing.T) {
	cl := newChecklist(ComponentRTP)
	remote := foundationHost(t, "r", 50)

	high := newCandidatePair(foundationHost(t, "a", 1000), remote, true)
	low := newCandidatePair(foundationHost(t, "b", 10), remote, true)
	cl.addPair(high)
	cl.addPair(low)

	low.state = CandidatePairStateSucceeded

	// The higher priority pair is still in flight, a nomination of low
	// could yet be beaten.
	assert.False(t, cl.higherPriorityResolved(low))

	high.state = CandidatePairStateFailed
	assert.True(t, cl.higherPriorityResolved(low))
	assert.True(t, cl.higherPriorityResolved(high))
}

func TestChecklistPrune(t *testing.T) {
	cl := newChecklist(ComponentRTP)
	remote := foundationHost(t, "r", 50)

	won := newCandidatePair(foundationHost(t, "a", 1000), remote, true)
	frozen := newCandidatePair(foundationHost(t, "a", 500), remote, true)
	failed := newCandidatePair(foundationHost(t, "b", 100), remote, true)
	cl.addPair(won)
	cl.addPair(frozen)
	cl.addPair(failed)

	won.state = CandidatePairStateSucceeded
	failed.state = CandidatePairStateFailed

	cl.prune()
	assert.Equal(t, []*candidatePair{won, failed}, cl.pairs)
}
