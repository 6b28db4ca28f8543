package ice

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/stun"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockConnClosed = errors.New("use of closed mock conn")

// mockPacketConn records writes and blocks reads until closed.
type mockPacketConn struct {
	written  int32
	mu       sync.Mutex
	payloads [][]byte
	closed   chan struct{}
}

func newMockPacketConn() *mockPacketConn {
	return &mockPacketConn{closed: make(chan struct{})}
}

func (m *mockPacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	<-m.closed
	return 0, nil, errMockConnClosed
}

func (m *mockPacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	atomic.AddInt32(&m.written, 1)
	m.mu.Lock()
	m.payloads = append(m.payloads, append([]byte{}, p...))
	m.mu.Unlock()
	return len(p), nil
}

func (m *mockPacketConn) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return nil
}

func (m *mockPacketConn) LocalAddr() net.Addr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 1234}
}

func (m *mockPacketConn) SetDeadline(t time.Time) error      { return nil }
func (m *mockPacketConn) SetReadDeadline(t time.Time) error  { return nil }
func (m *mockPacketConn) SetWriteDeadline(t time.Time) error { return nil }

func (m *mockPacketConn) writes() int32 {
	return atomic.LoadInt32(&m.written)
}

func (m *mockPacketConn) lastPayload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.payloads) == 0 {
		return nil
	}
	return m.payloads[len(m.payloads)-1]
}

func checkAgent(t *testing.T) *Agent {
	a, err := NewAgent(&AgentConfig{
		MulticastDNSMode: MulticastDNSModeDisabled,
	})
	require.NoError(t, err)
	return a
}

func startedPair(t *testing.T, a *Agent) (*candidatePair, *mockPacketConn) {
	local := hostCandidate(t, "192.168.1.2", 2000)
	remote := hostCandidate(t, "192.168.1.3", 3000)

	conn := newMockPacketConn()
	local.start(a, conn)

	return newCandidatePair(local, remote, true), conn
}

func bindingRequest(t *testing.T) *stun.Message {
	m, err := stun.Build(stun.BindingRequest, stun.TransactionID)
	require.NoError(t, err)
	return m
}

func TestTransactionStartTracksPair(t *testing.T) {
	a := checkAgent(t)
	defer func() {
		require.NoError(t, a.Close())
	}()

	p, conn := startedPair(t, a)
	defer func() {
		require.NoError(t, p.local.close())
	}()
	m := bindingRequest(t)

	require.NoError(t, a.run(func(agent *Agent) {
		agent.tm.start(m, p)

		assert.Equal(t, 1, agent.tm.outstanding())
		assert.True(t, agent.tm.inFlight(p))
		assert.Equal(t, uint16(1), p.bindingRequestCount)

		found, ok := agent.tm.find(m.TransactionID)
		require.True(t, ok)
		assert.Same(t, p, found.pair)
		assert.Equal(t, agent.checkInitialRTO, found.rto)
	}))

	assert.Equal(t, int32(1), conn.writes())
}

func TestTransactionRetireAndCancelAll(t *testing.T) {
	a := checkAgent(t)
	defer func() {
		require.NoError(t, a.Close())
	}()

	p, _ := startedPair(t, a)
	defer func() {
		require.NoError(t, p.local.close())
	}()
	q, _ := startedPair(t, a)
	defer func() {
		require.NoError(t, q.local.close())
	}()

	require.NoError(t, a.run(func(agent *Agent) {
		agent.tm.start(bindingRequest(t), p)
		agent.tm.start(bindingRequest(t), q)
		assert.Equal(t, 2, agent.tm.outstanding())

		tr, ok := agent.tm.byPair[p]
		require.True(t, ok)
		agent.tm.retire(tr)
		assert.Equal(t, 1, agent.tm.outstanding())
		assert.False(t, agent.tm.inFlight(p))
		assert.True(t, agent.tm.inFlight(q))

		agent.tm.cancelAll()
		assert.Equal(t, 0, agent.tm.outstanding())
		assert.False(t, agent.tm.inFlight(q))
	}))
}

func TestTransactionRetryExhaustionFailsPair(t *testing.T) {
	a := checkAgent(t)
	defer func() {
		require.NoError(t, a.Close())
	}()

	p, _ := startedPair(t, a)
	defer func() {
		require.NoError(t, p.local.close())
	}()

	var tr *bindingTransaction
	require.NoError(t, a.run(func(agent *Agent) {
		agent.tm.start(bindingRequest(t), p)
		tr = agent.tm.byPair[p]
		require.NotNil(t, tr)
		tr.timer.Stop()
		tr.tries = agent.maxBindingRequests
	}))

	// handleTimeout re-enters the agent loop on its own
	a.tm.handleTimeout(tr)

	require.NoError(t, a.run(func(agent *Agent) {
		assert.Equal(t, 0, agent.tm.outstanding())
		assert.False(t, agent.tm.inFlight(p))
		assert.Equal(t, CandidatePairStateFailed, p.state)
	}))
}

func TestTransactionRetransmitDoublesRTO(t *testing.T) {
	a := checkAgent(t)
	defer func() {
		require.NoError(t, a.Close())
	}()

	p, conn := startedPair(t, a)
	defer func() {
		require.NoError(t, p.local.close())
	}()

	var tr *bindingTransaction
	require.NoError(t, a.run(func(agent *Agent) {
		agent.tm.start(bindingRequest(t), p)
		tr = agent.tm.byPair[p]
		require.NotNil(t, tr)
		tr.timer.Stop()
	}))

	initialRTO := tr.rto
	a.tm.handleTimeout(tr)

	require.NoError(t, a.run(func(agent *Agent) {
		tr.timer.Stop()
		assert.Equal(t, uint16(2), tr.tries)
		assert.Equal(t, 2*initialRTO, tr.rto)
		assert.Equal(t, uint16(2), p.bindingRequestCount)
		assert.True(t, agent.tm.inFlight(p))
	}))

	assert.Equal(t, int32(2), conn.writes())
}

func TestTransactionStaleGenerationIgnored(t *testing.T) {
	a := checkAgent(t)
	defer func() {
		require.NoError(t, a.Close())
	}()

	p, _ := startedPair(t, a)
	defer func() {
		require.NoError(t, p.local.close())
	}()

	var tr *bindingTransaction
	require.NoError(t, a.run(func(agent *Agent) {
		agent.tm.start(bindingRequest(t), p)
		tr = agent.tm.byPair[p]
		require.NotNil(t, tr)
		tr.timer.Stop()
		agent.generation++
	}))

	a.tm.handleTimeout(tr)

	require.NoError(t, a.run(func(agent *Agent) {
		assert.Equal(t, uint16(1), tr.tries)
		assert.NotEqual(t, CandidatePairStateFailed, p.state)
	}))
}
