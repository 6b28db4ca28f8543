package ice

import "fmt"

// CandidatePairState represent the ICE candidate pair state
type CandidatePairState int

const (
	// CandidatePairStateFrozen means a check for this pair hasn't been
	// performed, and it can't yet be performed until some other check
	// succeeds, allowing this pair to unfreeze
	CandidatePairStateFrozen CandidatePairState = iota + 1

	// CandidatePairStateWaiting means a check has not been performed for
	// this pair, and can be performed as soon as it is the highest-priority
	// Waiting pair on the check list
	CandidatePairStateWaiting

	// CandidatePairStateInProgress means a check has been sent for this pair,
	// but the transaction is in progress
	CandidatePairStateInProgress

	// CandidatePairStateFailed means a check for this pair was already done
	// and failed, either never producing any response or producing an
	// unrecoverable failure response
	CandidatePairStateFailed

	// CandidatePairStateSucceeded means a check for this pair was already
	// done and produced a successful result
	CandidatePairStateSucceeded
)

func (c CandidatePairState) String() string {
	switch c {
	case CandidatePairStateFrozen:
		return "frozen"
	case CandidatePairStateWaiting:
		return "waiting"
	case CandidatePairStateInProgress:
		return "in-progress"
	case CandidatePairStateFailed:
		return "failed"
	case CandidatePairStateSucceeded:
		return "succeeded"
	}
	return "Unknown candidate pair state"
}

func newCandidatePair(local, remote Candidate, controlling bool) *candidatePair {
	return &candidatePair{
		iceRoleControlling: controlling,
		remote:             remote,
		local:              local,
		state:              CandidatePairStateFrozen,
	}
}

// candidatePair represents a combination of a local and remote candidate
type candidatePair struct {
	iceRoleControlling  bool
	remote              Candidate
	local               Candidate
	bindingRequestCount uint16
	state               CandidatePairState
	nominated           bool
	nominateOnSuccess   bool
}

func (p *candidatePair) String() string {
	return fmt.Sprintf("prio %d (local, prio %d) %s <-> %s (remote, prio %d)",
		p.Priority(), p.local.Priority(), p.local, p.remote, p.remote.Priority())
}

func (p *candidatePair) Equal(other *candidatePair) bool {
	if p == nil && other == nil {
		return true
	}
	if p == nil || other == nil {
		return false
	}
	return p.local.Equal(other.local) && p.remote.Equal(other.remote)
}

// RFC 5245 - 5.7.2.  Computing Pair Priority and Ordering Pairs
// Let G be the priority for the candidate provided by the controlling
// agent.  Let D be the priority for the candidate provided by the
// controlled agent.
// pair priority = 2^32*MIN(G,D) + 2*MAX(G,D) + (G>D?1:0)
func (p *candidatePair) Priority() uint64 {
	var g uint64
	var d uint64
	if p.iceRoleControlling {
		g = uint64(p.local.Priority())
		d = uint64(p.remote.Priority())
	} else {
		g = uint64(p.remote.Priority())
		d = uint64(p.local.Priority())
	}

	// 1<<32 overflows uint32; and if both g and d are
	// maxUint32, this result would overflow uint64. But
	// candidate priorities are usually much smaller.
	min := min64(g, d)
	max := max64(g, d)
	cmp := uint64(0)
	if g > d {
		cmp = uint64(1)
	}
	return (1<<32)*min + 2*max + cmp
}

func (p *candidatePair) Write(b []byte) (int, error) {
	return p.local.writeTo(b, p.remote)
}

func (p *candidatePair) resolved() bool {
	return p.state == CandidatePairStateSucceeded || p.state == CandidatePairStateFailed
}

func min64(x, y uint64) uint64 {
	if x < y {
		return x
	}
	return y
}

func max64(x, y uint64) uint64 {
	if x > y {
		return x
	}
	return y
}
