package ice

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateMarshalRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"candidate:1299692247 1 udp 2122134271 10.0.75.1 53634 typ host",
		"candidate:1299692247 2 udp 2122134270 10.0.75.1 53635 typ host",
		"candidate:1052353102 1 udp 1686052607 1.2.3.4 46154 typ srflx raddr 0.0.0.0 rport 46154",
		"candidate:750159341 1 udp 110 10.0.0.1 5000 typ prflx raddr 10.0.0.5 rport 5001",
		"candidate:848194626 1 udp 16777215 50.0.0.1 5000 typ relay raddr 10.0.0.1 rport 5001",
		"candidate:fedc1234 1 udp 2122134271 fcd9:e3b8:12ce:9fc5:74a5:c6bb:d8b:e08a 53634 typ host",
	} {
		c, err := UnmarshalCandidate(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, raw, c.Marshal())
	}
}

func TestCandidateMarshalTCPType(t *testing.T) {
	raw := "candidate:1299692247 1 tcp 1675624447 10.0.75.1 9 typ host tcptype active"
	c, err := UnmarshalCandidate(raw)
	require.NoError(t, err)
	assert.Equal(t, TCPTypeActive, c.TCPType())
	assert.Equal(t, raw, c.Marshal())
}

func TestCandidateMarshalExtensionOrder(t *testing.T) {
	// rport/raddr may arrive in any order; serialization is canonical
	c, err := UnmarshalCandidate("candidate:1052353102 1 udp 1686052607 1.2.3.4 46154 typ srflx rport 46154 raddr 0.0.0.0")
	require.NoError(t, err)
	assert.Equal(t,
		"candidate:1052353102 1 udp 1686052607 1.2.3.4 46154 typ srflx raddr 0.0.0.0 rport 46154",
		c.Marshal())
}

func TestUnmarshalCandidateErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"candidate:",
		"candidate:1299692247 1 udp 2122134271 10.0.75.1", // too few fields
		"candidate:1299692247 NaN udp 2122134271 10.0.75.1 53634 typ host",
		"candidate:1299692247 1 udp NaN 10.0.75.1 53634 typ host",
		"candidate:1299692247 1 udp 2122134271 10.0.75.1 NaN typ host",
		"candidate:1299692247 1 udp 2122134271 10.0.75.1 53634 wrong host",
		"candidate:1052353102 1 udp 1686052607 1.2.3.4 46154 typ srflx raddr", // dangling extension
		"candidate:1052353102 1 udp 1686052607 1.2.3.4 46154 typ srflx raddr 0.0.0.0 rport NaN",
		"candidate:1052353102 1 udp 1686052607 1.2.3.4 46154 typ srflx unknowntoken value",
		"candidate:1299692247 1 tcp 1675624447 10.0.75.1 9 typ host tcptype wrong",
	} {
		_, err := UnmarshalCandidate(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrMalformedCandidate), raw)
	}

	_, err := UnmarshalCandidate("candidate:1299692247 1 udp 2122134271 10.0.75.1 53634 typ bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownCandidateType))
}
