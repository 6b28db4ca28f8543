package ice

import "time"

// CandidatePairStats contains ICE candidate pair statistics
type CandidatePairStats struct {
	// Timestamp is the timestamp associated with this object.
	Timestamp time.Time

	// LocalCandidateID is the ID of the local candidate
	LocalCandidateID string

	// RemoteCandidateID is the ID of the remote candidate
	RemoteCandidateID string

	// State represents the state of the checklist for the local and remote
	// candidates in a pair.
	State CandidatePairState

	// Nominated is true when this valid pair that should be used for media
	Nominated bool

	// BindingRequestsSent is the number of connectivity checks sent on the pair,
	// retransmissions included
	BindingRequestsSent uint16

	// LastRequestTimestamp represents the timestamp at which the last outbound
	// STUN request was sent on the local candidate of this pair
	LastRequestTimestamp time.Time

	// LastResponseTimestamp represents the timestamp at which the last inbound
	// traffic arrived on the remote candidate of this pair
	LastResponseTimestamp time.Time
}

// CandidateStats contains ICE candidate statistics related to the ICETransport objects.
type CandidateStats struct {
	// Timestamp is the timestamp associated with this object.
	Timestamp time.Time

	// ID is the candidate ID
	ID string

	// NetworkType represents the type of network interface used by the base of a
	// local candidate (the address the ICE agent sends from).
	NetworkType NetworkType

	// IP is the IP address of the candidate, allowing for IPv4 addresses and
	// IPv6 addresses, but fully qualified domain names (FQDNs) are not allowed.
	IP string

	// Port is the port number of the candidate.
	Port int

	// CandidateType is the type of candidate
	CandidateType CandidateType

	// Priority is the priority of the candidate
	Priority uint32

	// RelayProtocol is the protocol used by the endpoint to communicate with the
	// TURN server. Only present for local candidates.
	RelayProtocol string
}

// GetCandidatePairsStats returns a list of candidate pair stats
func (a *Agent) GetCandidatePairsStats() []CandidatePairStats {
	res := make(chan []CandidatePairStats, 1)
	err := a.run(func(agent *Agent) {
		var result []CandidatePairStats
		for _, cl := range agent.checklists {
			for _, p := range cl.pairs {
				result = append(result, CandidatePairStats{
					Timestamp:             time.Now(),
					LocalCandidateID:      p.local.ID(),
					RemoteCandidateID:     p.remote.ID(),
					State:                 p.state,
					Nominated:             p.nominated,
					BindingRequestsSent:   p.bindingRequestCount,
					LastRequestTimestamp:  p.local.LastSent(),
					LastResponseTimestamp: p.remote.LastReceived(),
				})
			}
		}
		res <- result
	})
	if err != nil {
		a.log.Errorf("error getting candidate pairs stats %v", err)
		return []CandidatePairStats{}
	}
	return <-res
}

// GetLocalCandidatesStats returns a list of local candidates stats
func (a *Agent) GetLocalCandidatesStats() []CandidateStats {
	res := make(chan []CandidateStats, 1)
	err := a.run(func(agent *Agent) {
		var result []CandidateStats
		for networkType, localCandidates := range agent.localCandidates {
			for _, c := range localCandidates {
				relayProtocol := ""
				if c.Type() == CandidateTypeRelay {
					relayProtocol = c.NetworkType().NetworkShort()
				}
				result = append(result, CandidateStats{
					Timestamp:     time.Now(),
					ID:            c.ID(),
					NetworkType:   networkType,
					IP:            c.Address(),
					Port:          c.Port(),
					CandidateType: c.Type(),
					Priority:      c.Priority(),
					RelayProtocol: relayProtocol,
				})
			}
		}
		res <- result
	})
	if err != nil {
		a.log.Errorf("error getting local candidates stats %v", err)
		return []CandidateStats{}
	}
	return <-res
}

// GetRemoteCandidatesStats returns a list of remote candidates stats
func (a *Agent) GetRemoteCandidatesStats() []CandidateStats {
	res := make(chan []CandidateStats, 1)
	err := a.run(func(agent *Agent) {
		var result []CandidateStats
		for networkType, remoteCandidates := range agent.remoteCandidates {
			for _, c := range remoteCandidates {
				result = append(result, CandidateStats{
					Timestamp:     time.Now(),
					ID:            c.ID(),
					NetworkType:   networkType,
					IP:            c.Address(),
					Port:          c.Port(),
					CandidateType: c.Type(),
					Priority:      c.Priority(),
				})
			}
		}
		res <- result
	})
	if err != nil {
		a.log.Errorf("error getting remote candidates stats %v", err)
		return []CandidateStats{}
	}
	return <-res
}
