package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalIPMapperValidation(t *testing.T) {
	// No IPs means no mapper
	m, err := newExternalIPMapper(CandidateTypeUnspecified, nil)
	assert.NoError(t, err)
	assert.Nil(t, m)

	m, err = newExternalIPMapper(CandidateTypeUnspecified, []string{"1.2.3.4"})
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, CandidateTypeHost, m.candidateType)

	m, err = newExternalIPMapper(CandidateTypeServerReflexive, []string{"1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, CandidateTypeServerReflexive, m.candidateType)

	for _, bad := range [][]string{
		{"bad.ip.address"},
		{"1.2.3.4/not-an-ip"},
		{"1.2.3.4/10.0.0.1/extra"},
		{"1.2.3.4/fe80::1"},      // family mismatch
		{"2001:db8::1/10.0.0.1"}, // family mismatch
		{"1.2.3.4", "5.6.7.8"},   // two sole IPv4 mappings
		{"1.2.3.4", "5.6.7.8/10.0.0.1"}, // sole plus per-IP
		{"1.2.3.4/10.0.0.1", "5.6.7.8/10.0.0.1"}, // duplicate local IP
	} {
		_, err = newExternalIPMapper(CandidateTypeUnspecified, bad)
		assert.Equal(t, ErrInvalidNAT1To1IPMapping, err, bad)
	}

	_, err = newExternalIPMapper(CandidateTypeRelay, []string{"1.2.3.4"})
	assert.Equal(t, ErrUnsupportedNAT1To1IPCandidateType, err)
}

func TestExternalIPMapperSoleMapping(t *testing.T) {
	m, err := newExternalIPMapper(CandidateTypeHost, []string{"1.2.3.4", "2001:db8::1"})
	require.NoError(t, err)

	extIP, err := m.findExternalIP("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", extIP.String())

	extIP, err = m.findExternalIP("10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", extIP.String())

	extIP, err = m.findExternalIP("fe80::1")
	require.NoError(t, err)
	assert.Equal(t, "2001:db8::1", extIP.String())
}

func TestExternalIPMapperPerIPMapping(t *testing.T) {
	m, err := newExternalIPMapper(CandidateTypeHost, []string{
		"1.2.3.4/10.0.0.1",
		"1.2.3.5/10.0.0.2",
	})
	require.NoError(t, err)

	extIP, err := m.findExternalIP("10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.4", extIP.String())

	extIP, err = m.findExternalIP("10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3.5", extIP.String())

	_, err = m.findExternalIP("10.0.0.3")
	assert.Equal(t, ErrExternalMappedIPNotFound, err)

	_, err = m.findExternalIP("not-an-ip")
	assert.Equal(t, ErrInvalidNAT1To1IPMapping, err)
}
