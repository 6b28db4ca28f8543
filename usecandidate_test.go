package ice

import (
	"testing"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseCandidateAttr(t *testing.T) {
	nominating, err := stun.Build(stun.BindingRequest, stun.TransactionID, UseCandidate())
	require.NoError(t, err)
	assert.True(t, UseCandidate().IsSet(nominating))

	plain, err := stun.Build(stun.BindingRequest, stun.TransactionID)
	require.NoError(t, err)
	assert.False(t, UseCandidate().IsSet(plain))
}
