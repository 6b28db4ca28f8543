package ice

import (
	"net"
	"time"

	"github.com/pion/stun"
)

// bindingTransaction is one in-flight STUN Binding Request. It keeps the
// encoded request so retransmissions reuse the same transaction ID.
type bindingTransaction struct {
	id             [stun.TransactionIDSize]byte
	pair           *candidatePair
	destination    net.Addr
	raw            []byte
	isUseCandidate bool
	generation     uint64
	tries          uint16
	rto            time.Duration
	timer          *time.Timer
}

// transactionManager tracks every outstanding binding request of the agent
// and drives their retransmission timers. All methods must be called with
// the agent lock held; timer callbacks re-enter through Agent.run.
type transactionManager struct {
	agent  *Agent
	byID   map[[stun.TransactionIDSize]byte]*bindingTransaction
	byPair map[*candidatePair]*bindingTransaction
}

func newTransactionManager(a *Agent) *transactionManager {
	return &transactionManager{
		agent:  a,
		byID:   make(map[[stun.TransactionIDSize]byte]*bindingTransaction),
		byPair: make(map[*candidatePair]*bindingTransaction),
	}
}

func (tm *transactionManager) outstanding() int {
	return len(tm.byID)
}

func (tm *transactionManager) inFlight(p *candidatePair) bool {
	_, ok := tm.byPair[p]
	return ok
}

// start transmits m on the pair and arms the first retransmission timer.
// A pair has at most one live transaction, callers must check inFlight.
func (tm *transactionManager) start(m *stun.Message, p *candidatePair) {
	t := &bindingTransaction{
		id:             m.TransactionID,
		pair:           p,
		destination:    p.remote.addr(),
		raw:            append([]byte{}, m.Raw...),
		isUseCandidate: m.Contains(stun.AttrUseCandidate),
		generation:     tm.agent.generation,
		tries:          1,
		rto:            tm.agent.checkInitialRTO,
	}

	tm.byID[t.id] = t
	tm.byPair[p] = t

	if _, err := p.local.writeTo(t.raw, p.remote); err != nil {
		tm.retire(t)
		tm.agent.handlePairFailed(p, err)
		return
	}
	p.bindingRequestCount++

	t.timer = time.AfterFunc(t.rto, func() { tm.handleTimeout(t) })
}

func (tm *transactionManager) handleTimeout(t *bindingTransaction) {
	if err := tm.agent.run(func(agent *Agent) {
		if t.generation != agent.generation {
			return
		}
		if cur, ok := tm.byID[t.id]; !ok || cur != t {
			return
		}

		if t.tries >= agent.maxBindingRequests {
			tm.retire(t)
			agent.handlePairFailed(t.pair, ErrConnectivityCheckTimeout)
			return
		}

		t.tries++
		t.rto *= 2
		if _, err := t.pair.local.writeTo(t.raw, t.pair.remote); err != nil {
			// A socket level failure counts the same as a timeout for
			// the affected pair.
			tm.retire(t)
			agent.handlePairFailed(t.pair, err)
			return
		}
		t.pair.bindingRequestCount++
		t.timer = time.AfterFunc(t.rto, func() { tm.handleTimeout(t) })
	}); err != nil {
		// Agent closed, nothing left to do.
		return
	}
}

// find returns the live transaction for id without retiring it.
func (tm *transactionManager) find(id [stun.TransactionIDSize]byte) (*bindingTransaction, bool) {
	t, ok := tm.byID[id]
	return t, ok
}

func (tm *transactionManager) retire(t *bindingTransaction) {
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(tm.byID, t.id)
	if cur, ok := tm.byPair[t.pair]; ok && cur == t {
		delete(tm.byPair, t.pair)
	}
}

func (tm *transactionManager) cancelAll() {
	for _, t := range tm.byID {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	tm.byID = make(map[[stun.TransactionIDSize]byte]*bindingTransaction)
	tm.byPair = make(map[*candidatePair]*bindingTransaction)
}
