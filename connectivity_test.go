package ice

import (
	"context"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/vnet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type virtualNet struct {
	wan  *vnet.Router
	net0 *vnet.Net
	net1 *vnet.Net
}

func buildVirtualNet(t *testing.T) *virtualNet {
	loggerFactory := logging.NewDefaultLoggerFactory()

	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "0.0.0.0/0",
		LoggerFactory: loggerFactory,
	})
	require.NoError(t, err)

	net0 := vnet.NewNet(&vnet.NetConfig{
		StaticIPs: []string{"192.168.0.1"},
	})
	require.NoError(t, wan.AddNet(net0))

	net1 := vnet.NewNet(&vnet.NetConfig{
		StaticIPs: []string{"192.168.0.2"},
	})
	require.NoError(t, wan.AddNet(net1))

	require.NoError(t, wan.Start())

	return &virtualNet{wan: wan, net0: net0, net1: net1}
}

func (v *virtualNet) close() {
	_ = v.wan.Stop()
}

func newVNetAgent(t *testing.T, n *vnet.Net, nomination NominationMode) *Agent {
	cfg := &AgentConfig{
		NetworkTypes:   []NetworkType{NetworkTypeUDP4},
		CandidateTypes: []CandidateType{CandidateTypeHost},
		Net:            n,
		Nomination:     nomination,
	}
	cfg.taskLoopInterval = 100 * time.Millisecond

	a, err := NewAgent(cfg)
	require.NoError(t, err)
	return a
}

func exchangeCandidates(t *testing.T, src, dst *Agent) {
	require.NoError(t, src.GatherCandidates())
	candidates, err := src.GetLocalCandidates()
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	for _, c := range candidates {
		// Round trip through the wire format, as signaling would
		parsed, err := UnmarshalCandidate(c.Marshal())
		require.NoError(t, err)
		require.NoError(t, dst.AddRemoteCandidate(parsed))
	}
}

func connectAgents(t *testing.T, aAgent, bAgent *Agent) (*Conn, *Conn) {
	aUfrag, aPwd := aAgent.GetLocalUserCredentials()
	bUfrag, bPwd := bAgent.GetLocalUserCredentials()

	exchangeCandidates(t, aAgent, bAgent)
	exchangeCandidates(t, bAgent, aAgent)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	accepted := make(chan *Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		conn, err := bAgent.Accept(ctx, aUfrag, aPwd)
		acceptErr <- err
		accepted <- conn
	}()

	aConn, err := aAgent.Dial(ctx, bUfrag, bPwd)
	require.NoError(t, err)
	require.NoError(t, <-acceptErr)
	bConn := <-accepted

	return aConn, bConn
}

func TestConnectivityVNet(t *testing.T) {
	v := buildVirtualNet(t)
	defer v.close()

	aAgent := newVNetAgent(t, v.net0, NominationRegular)
	bAgent := newVNetAgent(t, v.net1, NominationRegular)

	aConn, bConn := connectAgents(t, aAgent, bAgent)
	defer func() {
		require.NoError(t, aConn.Close())
		require.NoError(t, bConn.Close())
	}()

	// Both sides settled on a pair
	aLocal, aRemote, err := aAgent.GetSelectedCandidatePair(ComponentRTP)
	require.NoError(t, err)
	assert.Equal(t, "192.168.0.1", aLocal.Address())
	assert.Equal(t, "192.168.0.2", aRemote.Address())

	_, _, err = bAgent.GetSelectedCandidatePair(ComponentRTP)
	require.NoError(t, err)

	// Payload flows in both directions
	payload := []byte("hello from a")
	_, err = aConn.Write(payload)
	require.NoError(t, err)

	read := make(chan []byte, 1)
	go func() {
		buf := make([]byte, receiveMTU)
		n, readErr := bConn.Read(buf)
		assert.NoError(t, readErr)
		read <- buf[:n]
	}()

	select {
	case got := <-read:
		assert.Equal(t, payload, got)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for payload")
	}

	assert.Equal(t, uint64(len(payload)), aConn.BytesSent())

	stats := aAgent.GetCandidatePairsStats()
	require.NotEmpty(t, stats)
	nominated := false
	for _, s := range stats {
		if s.Nominated {
			nominated = true
		}
	}
	assert.True(t, nominated)
}

func TestConnectivityVNetAggressiveNomination(t *testing.T) {
	v := buildVirtualNet(t)
	defer v.close()

	aAgent := newVNetAgent(t, v.net0, NominationAggressive)
	bAgent := newVNetAgent(t, v.net1, NominationRegular)

	aConn, bConn := connectAgents(t, aAgent, bAgent)
	defer func() {
		require.NoError(t, aConn.Close())
		require.NoError(t, bConn.Close())
	}()

	_, _, err := aAgent.GetSelectedCandidatePair(ComponentRTP)
	require.NoError(t, err)
	_, _, err = bAgent.GetSelectedCandidatePair(ComponentRTP)
	require.NoError(t, err)
}

func TestConnectivityVNetKeepaliveLiveness(t *testing.T) {
	v := buildVirtualNet(t)
	defer v.close()

	keepalive := 50 * time.Millisecond

	newAgent := func(n *vnet.Net) *Agent {
		cfg := &AgentConfig{
			NetworkTypes:      []NetworkType{NetworkTypeUDP4},
			CandidateTypes:    []CandidateType{CandidateTypeHost},
			Net:               n,
			KeepaliveInterval: &keepalive,
		}
		cfg.taskLoopInterval = 50 * time.Millisecond
		a, err := NewAgent(cfg)
		require.NoError(t, err)
		return a
	}

	aAgent := newAgent(v.net0)
	bAgent := newAgent(v.net1)

	aConn, bConn := connectAgents(t, aAgent, bAgent)
	defer func() {
		require.NoError(t, aConn.Close())
		require.NoError(t, bConn.Close())
	}()

	// Binding indications keep refreshing the remote liveness on both
	// sides even without payload traffic.
	var before time.Time
	require.NoError(t, bAgent.run(func(agent *Agent) {
		p := agent.selectedPairs[ComponentRTP]
		require.NotNil(t, p)
		before = p.remote.LastReceived()
	}))

	time.Sleep(10 * keepalive)

	require.NoError(t, bAgent.run(func(agent *Agent) {
		p := agent.selectedPairs[ComponentRTP]
		require.NotNil(t, p)
		assert.True(t, p.remote.LastReceived().After(before))
	}))
}
