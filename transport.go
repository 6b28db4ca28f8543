package ice

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/pion/stun"
)

// Dial connects to the remote agent, acting as the controlling ice agent.
// Dial blocks until at least one ice candidate pair has successfully connected.
func (a *Agent) Dial(ctx context.Context, remoteUfrag, remotePwd string) (*Conn, error) {
	return a.connect(ctx, true, remoteUfrag, remotePwd)
}

// Accept connects to the remote agent, acting as the controlled ice agent.
// Accept blocks until at least one ice candidate pair has successfully connected.
func (a *Agent) Accept(ctx context.Context, remoteUfrag, remotePwd string) (*Conn, error) {
	return a.connect(ctx, false, remoteUfrag, remotePwd)
}

// Conn represents the ICE connection.
type Conn struct {
	bytesReceived uint64
	bytesSent     uint64
	agent         *Agent
}

func (a *Agent) connect(ctx context.Context, isControlling bool, remoteUfrag, remotePwd string) (*Conn, error) {
	if err := a.ok(); err != nil {
		return nil, err
	}
	if err := a.startConnectivityChecks(isControlling, remoteUfrag, remotePwd); err != nil {
		return nil, err
	}

	// Snapshot the channels of this generation, Restart replaces them.
	var onConnected, onFailed chan struct{}
	if err := a.run(func(agent *Agent) {
		onConnected = agent.onConnected
		onFailed = agent.onFailed
	}); err != nil {
		return nil, err
	}

	select {
	case <-a.done:
		return nil, a.getErr()
	case <-ctx.Done():
		return nil, ErrCanceledByCaller
	case <-onFailed:
		return nil, a.connectFailureReason()
	case <-onConnected:
	}

	return &Conn{agent: a}, nil
}

func (a *Agent) connectFailureReason() error {
	var reason error
	if err := a.run(func(agent *Agent) {
		reason = agent.failureReason
	}); err != nil {
		return err
	}
	if reason == nil {
		reason = ErrChecklistFailed
	}
	return reason
}

// Read implements the Conn Read method.
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.agent.ok(); err != nil {
		return 0, err
	}

	n, err := c.agent.buffer.Read(p)
	atomic.AddUint64(&c.bytesReceived, uint64(n))
	return n, err
}

// Write implements the Conn Write method.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.agent.ok(); err != nil {
		return 0, err
	}

	if stun.IsMessage(p) {
		return 0, errors.New("the ICE conn can't write STUN messages")
	}

	pair := c.agent.getDataPair()
	if pair == nil {
		if err := c.agent.run(func(agent *Agent) {
			pair = agent.bestValidPair(ComponentRTP)
		}); err != nil {
			return 0, err
		}
		if pair == nil {
			return 0, ErrNoCandidatePairs
		}
	}

	atomic.AddUint64(&c.bytesSent, uint64(len(p)))
	return pair.Write(p)
}

// Close implements the Conn Close method. It is used to close
// the connection. Any calls to Read and Write will be unblocked and return an error.
func (c *Conn) Close() error {
	return c.agent.Close()
}

// LocalAddr returns the local address of the current selected pair
// or nil if there is none.
func (c *Conn) LocalAddr() net.Addr {
	pair := c.agent.getDataPair()
	if pair == nil {
		return nil
	}
	return pair.local.addr()
}

// RemoteAddr returns the remote address of the current selected pair
// or nil if there is none.
func (c *Conn) RemoteAddr() net.Addr {
	pair := c.agent.getDataPair()
	if pair == nil {
		return nil
	}
	return pair.remote.addr()
}

// SetDeadline is a stub
func (c *Conn) SetDeadline(t time.Time) error {
	return nil
}

// SetReadDeadline is a stub
func (c *Conn) SetReadDeadline(t time.Time) error {
	return nil
}

// SetWriteDeadline is a stub
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return nil
}

// BytesSent returns the number of payload bytes sent over the selected pair
func (c *Conn) BytesSent() uint64 {
	return atomic.LoadUint64(&c.bytesSent)
}

// BytesReceived returns the number of payload bytes received
func (c *Conn) BytesReceived() uint64 {
	return atomic.LoadUint64(&c.bytesReceived)
}
