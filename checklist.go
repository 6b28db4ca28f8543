package ice

import "sort"

// pairFoundation is the combined foundation of a candidate pair, used to
// group pairs for the RFC 8445 freezing rules.
func pairFoundation(p *candidatePair) string {
	return p.local.Foundation() + "/" + p.remote.Foundation()
}

// checklist is the ordered set of candidate pairs of one component.
type checklist struct {
	component uint16
	pairs     []*candidatePair
	concluded bool
	failed    bool
}

func newChecklist(component uint16) *checklist {
	return &checklist{component: component}
}

// addPair inserts p keeping the list ordered by descending pair priority.
// Equal priorities keep insertion order.
func (cl *checklist) addPair(p *candidatePair) {
	i := sort.Search(len(cl.pairs), func(i int) bool {
		return cl.pairs[i].Priority() < p.Priority()
	})
	cl.pairs = append(cl.pairs, nil)
	copy(cl.pairs[i+1:], cl.pairs[i:])
	cl.pairs[i] = p

	cl.setInitialState(p)
	if cl.failed {
		// A fresh pair revives a failed checklist.
		cl.failed = false
	}
}

// setInitialState applies the freezing rules: the first pair of each
// foundation group starts Waiting, the rest start Frozen until the
// leading pair settles.
func (cl *checklist) setInitialState(p *candidatePair) {
	foundation := pairFoundation(p)
	for _, other := range cl.pairs {
		if other == p {
			continue
		}
		if pairFoundation(other) == foundation && !other.resolved() {
			p.state = CandidatePairStateFrozen
			return
		}
	}
	p.state = CandidatePairStateWaiting
}

// nextWaiting returns the highest priority Waiting pair, if any.
func (cl *checklist) nextWaiting() *candidatePair {
	for _, p := range cl.pairs {
		if p.state == CandidatePairStateWaiting {
			return p
		}
	}
	return nil
}

// unfreeze promotes the next Frozen pair sharing foundation to Waiting.
// Called when a pair of that foundation group settles.
func (cl *checklist) unfreeze(foundation string) {
	for _, p := range cl.pairs {
		if p.state == CandidatePairStateFrozen && pairFoundation(p) == foundation {
			p.state = CandidatePairStateWaiting
			return
		}
	}
}

func (cl *checklist) findPair(local, remote Candidate) *candidatePair {
	for _, p := range cl.pairs {
		if p.local.Equal(local) && p.remote.Equal(remote) {
			return p
		}
	}
	return nil
}

// higherPriorityResolved reports whether every pair ordered above the
// given pair has reached Succeeded or Failed.
func (cl *checklist) higherPriorityResolved(sel *candidatePair) bool {
	for _, p := range cl.pairs {
		if p == sel || p.Priority() <= sel.Priority() {
			return true
		}
		if !p.resolved() {
			return false
		}
	}
	return true
}

// settled reports whether no pair of the checklist is still waiting for
// a check to start or finish.
func (cl *checklist) settled() bool {
	if len(cl.pairs) == 0 {
		return false
	}
	for _, p := range cl.pairs {
		if !p.resolved() {
			return false
		}
	}
	return true
}

func (cl *checklist) removePair(target *candidatePair) {
	for i, p := range cl.pairs {
		if p == target {
			cl.pairs = append(cl.pairs[:i], cl.pairs[i+1:]...)
			return
		}
	}
}

func (cl *checklist) allFailed() bool {
	if len(cl.pairs) == 0 {
		return false
	}
	for _, p := range cl.pairs {
		if p.state != CandidatePairStateFailed {
			return false
		}
	}
	return true
}

// prune removes pairs that will never be checked once the checklist has
// concluded for this component.
func (cl *checklist) prune() {
	keep := cl.pairs[:0]
	for _, p := range cl.pairs {
		if p.state == CandidatePairStateWaiting || p.state == CandidatePairStateFrozen {
			continue
		}
		keep = append(keep, p)
	}
	cl.pairs = keep
}
