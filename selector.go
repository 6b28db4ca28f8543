package ice

import (
	"net"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun"
)

type pairCandidateSelector interface {
	Start()
	ContactCandidates()
	PingCandidate(local, remote Candidate)
	HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr)
	HandleBindingRequest(m *stun.Message, local, remote Candidate)
}

type controllingSelector struct {
	startTime time.Time
	agent     *Agent
	log       logging.LeveledLogger
}

func (s *controllingSelector) Start() {
	s.startTime = time.Now()
}

func (s *controllingSelector) isNominatable(p *candidatePair) bool {
	switch {
	case p.local.Type() == CandidateTypeHost && time.Since(s.startTime) >= s.agent.hostAcceptanceMinWait:
		return true
	case p.local.Type() == CandidateTypeServerReflexive && time.Since(s.startTime) >= s.agent.srflxAcceptanceMinWait:
		return true
	case p.local.Type() == CandidateTypePeerReflexive && time.Since(s.startTime) >= s.agent.prflxAcceptanceMinWait:
		return true
	case p.local.Type() == CandidateTypeRelay && time.Since(s.startTime) >= s.agent.relayAcceptanceMinWait:
		return true
	}

	return false
}

func (s *controllingSelector) ContactCandidates() {
	for _, cl := range s.agent.checklists {
		if s.agent.selectedPairs[cl.component] != nil {
			continue
		}

		if time.Since(s.startTime) > s.agent.candidateSelectionTimeout {
			if best := s.agent.bestValidPair(cl.component); best != nil {
				s.log.Tracef("check timeout reached, nominating best valid pair")
				s.nominatePair(best)
			}
			continue
		}

		s.tryNominate(cl.component)
	}
}

// tryNominate nominates the best valid pair of the component once the
// checklist has settled, or the acceptance wait for its type elapsed.
func (s *controllingSelector) tryNominate(component uint16) {
	if s.agent.nomination != NominationRegular {
		return
	}
	if s.agent.selectedPairs[component] != nil {
		return
	}

	cl := s.agent.checklistFor(component)
	if cl == nil {
		return
	}
	best := s.agent.bestValidPair(component)
	if best == nil {
		return
	}

	if cl.settled() || s.isNominatable(best) {
		s.nominatePair(best)
	}
}

func (s *controllingSelector) nominatePair(p *candidatePair) {
	if s.agent.tm.inFlight(p) {
		return
	}

	// The success response to this check confirms the nomination
	msg, err := stun.Build(stun.BindingRequest, stun.TransactionID,
		stun.NewUsername(s.agent.remoteUfrag+":"+s.agent.localUfrag),
		UseCandidate(),
		AttrControlling(s.agent.tieBreaker),
		PriorityAttr(p.local.Priority()),
		stun.NewShortTermIntegrity(s.agent.remotePwd),
		stun.Fingerprint,
	)
	if err != nil {
		s.log.Error(err.Error())
		return
	}

	s.log.Tracef("nominating pair %s", p)
	s.agent.sendBindingRequest(msg, p.local, p.remote)
}

func (s *controllingSelector) PingCandidate(local, remote Candidate) {
	setters := []stun.Setter{
		stun.BindingRequest,
		stun.TransactionID,
		stun.NewUsername(s.agent.remoteUfrag + ":" + s.agent.localUfrag),
		AttrControlling(s.agent.tieBreaker),
		PriorityAttr(local.Priority()),
	}
	if s.agent.nomination == NominationAggressive {
		setters = append(setters, UseCandidate())
	}
	setters = append(setters,
		stun.NewShortTermIntegrity(s.agent.remotePwd),
		stun.Fingerprint,
	)

	msg, err := stun.Build(setters...)
	if err != nil {
		s.log.Error(err.Error())
		return
	}

	s.agent.sendBindingRequest(msg, local, remote)
}

func (s *controllingSelector) HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) {
	t, ok := s.agent.tm.find(m.TransactionID)
	if !ok {
		s.log.Warnf("discard message from (%s), unknown TransactionID 0x%x", remote, m.TransactionID)
		return
	}

	// Assert the response comes from the address the request was sent to
	if !addrEqual(t.destination, remoteAddr) {
		s.log.Debugf("discard message: transaction source and destination does not match expected(%s), actual(%s)", t.destination, remoteAddr)
		return
	}

	s.agent.tm.retire(t)

	p := t.pair
	p.state = CandidatePairStateSucceeded
	s.log.Tracef("Found valid candidate pair: %s", p)

	s.agent.discoverPeerReflexiveFromResponse(m, local)
	s.agent.handlePairSucceeded(p)

	if t.isUseCandidate {
		s.agent.setSelectedPair(p)
		return
	}

	s.tryNominate(p.local.Component())
}

func (s *controllingSelector) HandleBindingRequest(m *stun.Message, local, remote Candidate) {
	s.agent.sendBindingSuccess(m, local, remote)

	p := s.agent.findPair(local, remote)
	if p == nil {
		p = s.agent.addPair(local, remote)
	}

	if p.state != CandidatePairStateSucceeded {
		s.agent.queueTriggeredCheck(p)
	}
}

type controlledSelector struct {
	agent *Agent
	log   logging.LeveledLogger
}

func (s *controlledSelector) Start() {}

func (s *controlledSelector) ContactCandidates() {
	// The controlled agent waits for the peer to nominate
}

func (s *controlledSelector) PingCandidate(local, remote Candidate) {
	msg, err := stun.Build(stun.BindingRequest, stun.TransactionID,
		stun.NewUsername(s.agent.remoteUfrag+":"+s.agent.localUfrag),
		AttrControlled(s.agent.tieBreaker),
		PriorityAttr(local.Priority()),
		stun.NewShortTermIntegrity(s.agent.remotePwd),
		stun.Fingerprint,
	)
	if err != nil {
		s.log.Error(err.Error())
		return
	}

	s.agent.sendBindingRequest(msg, local, remote)
}

func (s *controlledSelector) HandleSuccessResponse(m *stun.Message, local, remote Candidate, remoteAddr net.Addr) {
	t, ok := s.agent.tm.find(m.TransactionID)
	if !ok {
		s.log.Warnf("discard message from (%s), unknown TransactionID 0x%x", remote, m.TransactionID)
		return
	}

	if !addrEqual(t.destination, remoteAddr) {
		s.log.Debugf("discard message: transaction source and destination does not match expected(%s), actual(%s)", t.destination, remoteAddr)
		return
	}

	s.agent.tm.retire(t)

	p := t.pair
	p.state = CandidatePairStateSucceeded
	s.log.Tracef("Found valid candidate pair: %s", p)

	s.agent.discoverPeerReflexiveFromResponse(m, local)
	s.agent.handlePairSucceeded(p)

	if p.nominateOnSuccess {
		p.nominateOnSuccess = false
		s.agent.setSelectedPair(p)
	}
}

func (s *controlledSelector) HandleBindingRequest(m *stun.Message, local, remote Candidate) {
	s.agent.sendBindingSuccess(m, local, remote)

	p := s.agent.findPair(local, remote)
	if p == nil {
		p = s.agent.addPair(local, remote)
	}

	useCandidate := UseCandidate().IsSet(m)
	switch {
	case useCandidate && p.state == CandidatePairStateSucceeded:
		// The peer nominated a pair we already validated
		s.agent.setSelectedPair(p)
	case useCandidate:
		// Keep the nomination until our own check on this pair succeeds
		p.nominateOnSuccess = true
		s.agent.queueTriggeredCheck(p)
	case p.state != CandidatePairStateSucceeded:
		s.agent.queueTriggeredCheck(p)
	}
}

// liteSelector degrades a selector to the lite mode: answer every check,
// never originate one.
type liteSelector struct {
	pairCandidateSelector
}

func (s *liteSelector) ContactCandidates() {}

func (s *liteSelector) PingCandidate(local, remote Candidate) {}
