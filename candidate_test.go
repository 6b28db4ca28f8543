package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hostCandidate(t *testing.T, ip string, port int) *CandidateHost {
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network:   "udp",
		Address:   ip,
		Port:      port,
		Component: ComponentRTP,
	})
	require.NoError(t, err)
	return c
}

func TestCandidatePriority(t *testing.T) {
	for _, test := range []struct {
		Candidate    Candidate
		WantPriority uint32
	}{
		{
			Candidate:    hostCandidate(t, "192.168.1.2", 1234),
			WantPriority: (1<<24)*126 + (1<<8)*65535 + 255,
		},
		{
			Candidate: func() Candidate {
				c, err := NewCandidatePeerReflexive(&CandidatePeerReflexiveConfig{
					Network:   "udp",
					Address:   "10.10.10.2",
					Port:      4321,
					Component: ComponentRTP,
					RelAddr:   "192.168.1.2",
					RelPort:   1234,
				})
				require.NoError(t, err)
				return c
			}(),
			WantPriority: (1<<24)*110 + (1<<8)*65535 + 255,
		},
		{
			Candidate: func() Candidate {
				c, err := NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
					Network:   "udp",
					Address:   "1.2.3.4",
					Port:      4321,
					Component: ComponentRTP,
					RelAddr:   "192.168.1.2",
					RelPort:   1234,
				})
				require.NoError(t, err)
				return c
			}(),
			WantPriority: (1<<24)*100 + (1<<8)*65535 + 255,
		},
		{
			Candidate: func() Candidate {
				c, err := NewCandidateRelay(&CandidateRelayConfig{
					Network:   "udp",
					Address:   "1.2.3.4",
					Port:      4321,
					Component: ComponentRTP,
					RelAddr:   "192.168.1.2",
					RelPort:   1234,
				})
				require.NoError(t, err)
				return c
			}(),
			WantPriority: (1<<8)*65535 + 255,
		},
	} {
		assert.Equal(t, test.WantPriority, test.Candidate.Priority())
	}
}

func TestCandidatePriorityOverride(t *testing.T) {
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network:   "udp",
		Address:   "192.168.1.2",
		Port:      1234,
		Component: ComponentRTP,
		Priority:  4242,
	})
	require.NoError(t, err)
	assert.Equal(t, uint32(4242), c.Priority())
}

func TestCandidateFoundation(t *testing.T) {
	// The port is not part of the foundation
	assert.Equal(t,
		hostCandidate(t, "1.2.3.4", 2500).Foundation(),
		hostCandidate(t, "1.2.3.4", 2501).Foundation())

	// Different address
	assert.NotEqual(t,
		hostCandidate(t, "1.2.3.4", 2500).Foundation(),
		hostCandidate(t, "1.2.3.5", 2500).Foundation())

	// Different type
	srflx, err := NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
		Network:   "udp",
		Address:   "1.2.3.4",
		Port:      2500,
		Component: ComponentRTP,
	})
	require.NoError(t, err)
	assert.NotEqual(t, hostCandidate(t, "1.2.3.4", 2500).Foundation(), srflx.Foundation())

	// Overridden foundation survives as-is
	c, err := NewCandidateHost(&CandidateHostConfig{
		Network:    "udp",
		Address:    "192.168.1.2",
		Port:       1234,
		Component:  ComponentRTP,
		Foundation: "12345",
	})
	require.NoError(t, err)
	assert.Equal(t, "12345", c.Foundation())
}

func TestCandidateTypePreference(t *testing.T) {
	assert.Equal(t, uint16(126), CandidateTypeHost.Preference())
	assert.Equal(t, uint16(110), CandidateTypePeerReflexive.Preference())
	assert.Equal(t, uint16(100), CandidateTypeServerReflexive.Preference())
	assert.Equal(t, uint16(0), CandidateTypeRelay.Preference())
	assert.Equal(t, uint16(0), CandidateTypeUnspecified.Preference())
}

func TestCandidateEqual(t *testing.T) {
	a := hostCandidate(t, "192.168.1.2", 1234)
	b := hostCandidate(t, "192.168.1.2", 1234)
	assert.True(t, a.Equal(b))

	c := hostCandidate(t, "192.168.1.2", 1235)
	assert.False(t, a.Equal(c))
}

func TestTCPTypeParse(t *testing.T) {
	assert.Equal(t, TCPTypeActive, NewTCPType("active"))
	assert.Equal(t, TCPTypePassive, NewTCPType("passive"))
	assert.Equal(t, TCPTypeSimultaneousOpen, NewTCPType("so"))
	assert.Equal(t, TCPTypeUnspecified, NewTCPType("something else"))
}
