package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func prioritizedHost(t *testing.T, priority uint32) Candidate {
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network:   "udp",
		Address:   "192.168.1.2",
		Port:      1234,
		Component: ComponentRTP,
		Priority:  priority,
	})
	require.NoError(t, err)
	return c
}

func TestCandidatePairPriority(t *testing.T) {
	local := prioritizedHost(t, 100)
	remote := prioritizedHost(t, 200)

	// G is the controlling side, D the controlled one:
	// 2^32*MIN(G,D) + 2*MAX(G,D) + (G>D?1:0)
	controlling := newCandidatePair(local, remote, true)
	assert.Equal(t, uint64((1<<32)*100+2*200), controlling.Priority())

	controlled := newCandidatePair(local, remote, false)
	assert.Equal(t, uint64((1<<32)*100+2*200+1), controlled.Priority())
}

func TestCandidatePairPrioritySymmetric(t *testing.T) {
	// Both agents must compute the same priority for the same pair, so
	// their checklists order identically.
	a := prioritizedHost(t, 123456)
	b := prioritizedHost(t, 654321)

	left := newCandidatePair(a, b, true)
	right := newCandidatePair(b, a, false)
	assert.Equal(t, left.Priority(), right.Priority())
}

func TestCandidatePairEqual(t *testing.T) {
	local := prioritizedHost(t, 100)
	remote := prioritizedHost(t, 200)

	p := newCandidatePair(local, remote, true)
	q := newCandidatePair(local, remote, false)
	assert.True(t, p.Equal(q))
	assert.True(t, (*candidatePair)(nil).Equal(nil))
	assert.False(t, p.Equal(nil))
}

func TestCandidatePairInitialState(t *testing.T) {
	p := newCandidatePair(prioritizedHost(t, 100), prioritizedHost(t, 200), true)
	assert.Equal(t, CandidatePairStateFrozen, p.state)
	assert.False(t, p.resolved())

	p.state = CandidatePairStateSucceeded
	assert.True(t, p.resolved())
	p.state = CandidatePairStateFailed
	assert.True(t, p.resolved())
}
