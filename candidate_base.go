package ice

import (
	"fmt"
	"hash/crc32"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/stun"
)

var foundationTable = crc32.MakeTable(crc32.Castagnoli)

type candidateBase struct {
	id            string
	networkType   NetworkType
	candidateType CandidateType
	tcpType       TCPType

	component      uint16
	address        string
	port           int
	relatedAddress *CandidateRelatedAddress

	// Set when the candidate was learned from the wire instead of being
	// gathered locally, so that re-serialization reproduces the input.
	foundationOverride string
	priorityOverride   uint32

	resolvedAddr *net.UDPAddr

	lastSent     atomic.Value
	lastReceived atomic.Value
	conn         net.PacketConn

	// Set when the candidate borrows the socket of its base candidate.
	// close must not tear the shared conn down.
	borrowedConn bool

	currAgent *Agent
	closeCh   chan struct{}
	closedCh  chan struct{}
}

// ID returns Candidate ID
func (c *candidateBase) ID() string {
	return c.id
}

// Address returns Candidate Address
func (c *candidateBase) Address() string {
	return c.address
}

// Port returns Candidate Port
func (c *candidateBase) Port() int {
	return c.port
}

// Type returns candidate type
func (c *candidateBase) Type() CandidateType {
	return c.candidateType
}

// TCPType returns candidate TCP type
func (c *candidateBase) TCPType() TCPType {
	return c.tcpType
}

// NetworkType returns candidate NetworkType
func (c *candidateBase) NetworkType() NetworkType {
	return c.networkType
}

// Component returns candidate component
func (c *candidateBase) Component() uint16 {
	return c.component
}

// LocalPreference returns the local preference for this candidate
func (c *candidateBase) LocalPreference() uint16 {
	return defaultLocalPreference
}

// RelatedAddress returns *CandidateRelatedAddress
func (c *candidateBase) RelatedAddress() *CandidateRelatedAddress {
	return c.relatedAddress
}

// Foundation returns the candidate foundation. Two candidates share a
// foundation when they have the same type, base address and transport,
// regardless of port.
func (c *candidateBase) Foundation() string {
	if c.foundationOverride != "" {
		return c.foundationOverride
	}

	checksum := crc32.Checksum([]byte(c.Type().String()+c.address+c.NetworkType().String()), foundationTable)
	return strconv.FormatUint(uint64(checksum), 10)
}

// start runs the candidate using the provided connection
func (c *candidateBase) start(a *Agent, conn net.PacketConn) {
	c.currAgent = a
	c.conn = conn
	c.closeCh = make(chan struct{})
	c.closedCh = make(chan struct{})

	go c.recvLoop()
}

func (c *candidateBase) recvLoop() {
	defer func() {
		close(c.closedCh)
	}()

	log := c.agent().log
	buffer := make([]byte, receiveMTU)
	for {
		n, srcAddr, err := c.conn.ReadFrom(buffer)
		if err != nil {
			return
		}

		handleInboundCandidateMsg(c, buffer[:n], srcAddr, log)
	}
}

func handleInboundCandidateMsg(c Candidate, buffer []byte, srcAddr net.Addr, log logging.LeveledLogger) {
	if stun.IsMessage(buffer) {
		m := &stun.Message{
			Raw: make([]byte, len(buffer)),
		}
		// Explicitly copy raw buffer so Message can own the memory.
		copy(m.Raw, buffer)
		if err := m.Decode(); err != nil {
			log.Warnf("Failed to handle decode ICE from %s to %s: %v", c.addr(), srcAddr, err)
			return
		}
		err := c.agent().run(func(agent *Agent) {
			agent.handleInbound(m, c, srcAddr)
		})
		if err != nil {
			log.Warnf("Failed to handle message: %v", err)
		}

		return
	}

	if !c.agent().validateNonSTUNTraffic(c, srcAddr) {
		log.Warnf("Discarded message from %s, not a valid remote candidate", c.addr())
		return
	}

	// NOTE This will return packetio.ErrFull if the buffer ever manages to fill up.
	if _, err := c.agent().buffer.Write(buffer); err != nil {
		log.Warnf("failed to write packet")
	}
}

// close stops the recvLoop
func (c *candidateBase) close() error {
	if c.borrowedConn {
		return nil
	}

	if c.conn != nil {
		// Unblock recvLoop
		close(c.closeCh)
		// Close the conn
		err := c.conn.Close()
		if err != nil {
			return err
		}

		// Wait until the recvLoop is closed
		<-c.closedCh
	}

	return nil
}

func (c *candidateBase) writeTo(raw []byte, dst Candidate) (int, error) {
	n, err := c.conn.WriteTo(raw, dst.addr())
	if err != nil {
		return n, fmt.Errorf("failed to send packet: %v", err)
	}
	c.seen(true)
	return n, nil
}

// Priority computes the priority for this ICE Candidate
func (c *candidateBase) Priority() uint32 {
	if c.priorityOverride != 0 {
		return c.priorityOverride
	}

	// The local preference MUST be an integer from 0 (lowest preference) to
	// 65535 (highest preference) inclusive.  When there is only a single IP
	// address, this value SHOULD be set to 65535.  If there are multiple
	// candidates for a particular component for a particular data stream
	// that have the same type, the local preference MUST be unique for each
	// one.
	return (1<<24)*uint32(c.Type().Preference()) +
		(1<<8)*uint32(c.LocalPreference()) +
		uint32(256-c.Component())
}

// Equal is used to compare two candidateBases
func (c *candidateBase) Equal(other Candidate) bool {
	return c.NetworkType() == other.NetworkType() &&
		c.Type() == other.Type() &&
		c.Address() == other.Address() &&
		c.Port() == other.Port() &&
		c.RelatedAddress().Equal(other.RelatedAddress())
}

// String makes the candidateBase printable
func (c *candidateBase) String() string {
	return fmt.Sprintf("%s %s:%d%s", c.Type(), c.Address(), c.Port(), c.relatedAddress)
}

// LastReceived returns a time.Time indicating the last time
// this candidate was received
func (c *candidateBase) LastReceived() time.Time {
	lastReceived := c.lastReceived.Load()
	if lastReceived == nil {
		return time.Time{}
	}
	return lastReceived.(time.Time)
}

func (c *candidateBase) setLastReceived(t time.Time) {
	c.lastReceived.Store(t)
}

// LastSent returns a time.Time indicating the last time
// this candidate was sent
func (c *candidateBase) LastSent() time.Time {
	lastSent := c.lastSent.Load()
	if lastSent == nil {
		return time.Time{}
	}
	return lastSent.(time.Time)
}

func (c *candidateBase) setLastSent(t time.Time) {
	c.lastSent.Store(t)
}

func (c *candidateBase) seen(outbound bool) {
	if outbound {
		c.setLastSent(time.Now())
	} else {
		c.setLastReceived(time.Now())
	}
}

func (c *candidateBase) addr() *net.UDPAddr {
	return c.resolvedAddr
}

func (c *candidateBase) agent() *Agent {
	return c.currAgent
}

// baseConn extracts the packet conn backing a local candidate.
func baseConn(c Candidate) net.PacketConn {
	switch t := c.(type) {
	case *CandidateHost:
		return t.conn
	case *CandidateServerReflexive:
		return t.conn
	case *CandidatePeerReflexive:
		return t.conn
	case *CandidateRelay:
		return t.conn
	}
	return nil
}

// Marshal returns the string representation of the ICECandidate
func (c *candidateBase) Marshal() string {
	val := fmt.Sprintf("candidate:%s %d %s %d %s %d typ %s",
		c.Foundation(),
		c.Component(),
		c.NetworkType().NetworkShort(),
		c.Priority(),
		c.Address(),
		c.Port(),
		c.Type())

	if r := c.RelatedAddress(); r != nil {
		val = fmt.Sprintf("%s raddr %s rport %d", val, r.Address, r.Port)
	}

	if c.tcpType != TCPTypeUnspecified {
		val = fmt.Sprintf("%s tcptype %s", val, c.tcpType)
	}

	return val
}

// UnmarshalCandidate creates a Candidate from its string representation
func UnmarshalCandidate(raw string) (Candidate, error) {
	split := strings.Fields(raw)
	if len(split) < 8 {
		return nil, fmt.Errorf("%w (%d): %s", ErrMalformedCandidate, len(split), raw)
	}

	foundation := strings.TrimPrefix(split[0], "candidate:")

	component, err := strconv.ParseUint(split[1], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w component: %v", ErrMalformedCandidate, err)
	}

	protocol := split[2]

	priority, err := strconv.ParseUint(split[3], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w priority: %v", ErrMalformedCandidate, err)
	}

	address := split[4]

	port, err := strconv.ParseUint(split[5], 10, 16)
	if err != nil {
		return nil, fmt.Errorf("%w port: %v", ErrMalformedCandidate, err)
	}

	if split[6] != "typ" {
		return nil, fmt.Errorf("%w: expected 'typ', got %q", ErrMalformedCandidate, split[6])
	}
	typ := split[7]

	var relAddr string
	var relPort int
	var tcpType TCPType

	for i := 8; i < len(split); i += 2 {
		if len(split) < i+2 {
			return nil, fmt.Errorf("%w: dangling extension token %q", ErrMalformedCandidate, split[i])
		}

		switch split[i] {
		case "raddr":
			relAddr = split[i+1]
		case "rport":
			rport, parseErr := strconv.ParseUint(split[i+1], 10, 16)
			if parseErr != nil {
				return nil, fmt.Errorf("%w rport: %v", ErrMalformedCandidate, parseErr)
			}
			relPort = int(rport)
		case "tcptype":
			tcpType = NewTCPType(split[i+1])
			if tcpType == TCPTypeUnspecified {
				return nil, fmt.Errorf("%w tcptype: %q", ErrMalformedCandidate, split[i+1])
			}
		default:
			return nil, fmt.Errorf("%w: unknown extension token %q", ErrMalformedCandidate, split[i])
		}
	}

	switch typ {
	case "host":
		return NewCandidateHost(&CandidateHostConfig{
			Network:    protocol,
			Address:    address,
			Port:       int(port),
			Component:  uint16(component),
			Foundation: foundation,
			Priority:   uint32(priority),
			TCPType:    tcpType,
		})

	case "srflx":
		return NewCandidateServerReflexive(&CandidateServerReflexiveConfig{
			Network:    protocol,
			Address:    address,
			Port:       int(port),
			Component:  uint16(component),
			Foundation: foundation,
			Priority:   uint32(priority),
			RelAddr:    relAddr,
			RelPort:    relPort,
			TCPType:    tcpType,
		})

	case "prflx":
		return NewCandidatePeerReflexive(&CandidatePeerReflexiveConfig{
			Network:    protocol,
			Address:    address,
			Port:       int(port),
			Component:  uint16(component),
			Foundation: foundation,
			Priority:   uint32(priority),
			RelAddr:    relAddr,
			RelPort:    relPort,
			TCPType:    tcpType,
		})

	case "relay":
		return NewCandidateRelay(&CandidateRelayConfig{
			Network:    protocol,
			Address:    address,
			Port:       int(port),
			Component:  uint16(component),
			Foundation: foundation,
			Priority:   uint32(priority),
			RelAddr:    relAddr,
			RelPort:    relPort,
		})
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCandidateType, typ)
}
