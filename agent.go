// Package ice implements the Interactive Connectivity Establishment (ICE)
// protocol defined in rfc8445
package ice

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mdns"
	"github.com/pion/stun"
	"github.com/pion/transport/packetio"
	"github.com/pion/transport/vnet"
)

type task struct {
	fn   func(*Agent)
	done chan struct{}
}

type eventKind int

const (
	eventConnectionStateChange eventKind = iota
	eventSelectedPairChange
	eventCandidate
)

// agentEvent is one queued handler invocation. Events fire in the order
// they were produced, exactly once each.
type agentEvent struct {
	kind      eventKind
	state     ConnectionState
	local     Candidate
	remote    Candidate
	candidate Candidate
}

// Agent represents the ICE agent
type Agent struct {
	chanTask chan task
	done     chan struct{}
	err      atomicError

	trickle bool
	lite    bool

	portmin uint16
	portmax uint16

	connectionState ConnectionState
	gatheringState  GatheringState

	haveStarted   bool
	isControlling bool
	tieBreaker    uint64

	nomination NominationMode

	localUfrag  string
	localPwd    string
	remoteUfrag string
	remotePwd   string

	// generation increments on Restart, responses and timers tagged with
	// an older generation are discarded
	generation uint64

	onConnected   chan struct{}
	onFailed      chan struct{}
	failureReason error

	mDNSMode MulticastDNSMode
	mDNSName string
	mDNSConn *mdns.Conn

	onConnectionStateChangeHdlr       atomic.Value // func(ConnectionState)
	onSelectedCandidatePairChangeHdlr atomic.Value // func(Candidate, Candidate)
	onCandidateHdlr                   atomic.Value // func(Candidate)

	eventsMu      sync.Mutex
	pendingEvents []agentEvent
	eventsSignal  chan struct{}

	localCandidates  map[NetworkType][]Candidate
	remoteCandidates map[NetworkType][]Candidate

	checklists []*checklist
	tm         *transactionManager

	triggeredQueue []*candidatePair

	selectedPairs map[uint16]*candidatePair
	dataPair      atomic.Value // *candidatePair of ComponentRTP

	selector pairCandidateSelector

	urls         []*URL
	networkTypes []NetworkType

	buffer *packetio.Buffer

	// checkStop tears down the check routine of the current generation
	checkStop chan struct{}

	forceCandidateContact chan bool

	maxBindingRequests        uint16
	checkInitialRTO           time.Duration
	pacingInterval            time.Duration
	maxOutstandingChecks      int
	candidateSelectionTimeout time.Duration
	hostAcceptanceMinWait     time.Duration
	srflxAcceptanceMinWait    time.Duration
	prflxAcceptanceMinWait    time.Duration
	relayAcceptanceMinWait    time.Duration
	connectionTimeout         time.Duration
	keepaliveInterval         time.Duration
	taskLoopInterval          time.Duration
	candidateTypes            []CandidateType
	reGatherOnRestart         bool

	extIPMapper *externalIPMapper

	interfaceFilter    func(string) bool
	insecureSkipVerify bool

	net *vnet.Net

	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger
}

// NewAgent creates an ICE Agent
func NewAgent(config *AgentConfig) (*Agent, error) {
	var err error
	if config.PortMax < config.PortMin {
		return nil, ErrPort
	}

	mDNSName := config.MulticastDNSHostName
	if mDNSName == "" {
		if mDNSName, err = generateMulticastDNSName(); err != nil {
			return nil, err
		}
	}

	if !strings.HasSuffix(mDNSName, ".local") || len(strings.Split(mDNSName, ".")) != 2 {
		return nil, ErrInvalidMulticastDNSHostName
	}

	mDNSMode := config.MulticastDNSMode
	if mDNSMode == 0 {
		mDNSMode = MulticastDNSModeQueryOnly
	}

	loggerFactory := config.LoggerFactory
	if loggerFactory == nil {
		loggerFactory = logging.NewDefaultLoggerFactory()
	}
	log := loggerFactory.NewLogger("ice")

	var mDNSConn *mdns.Conn
	mDNSConn, mDNSMode, err = createMulticastDNS(mDNSMode, mDNSName, log)
	// Opportunistic mDNS: If we can't open the connection, that's ok: we
	// can continue without it.
	if err != nil {
		log.Warnf("Failed to initialize mDNS %s: %v", mDNSName, err)
	}
	closeMDNSConn := func() {
		if mDNSConn != nil {
			if mdnsCloseErr := mDNSConn.Close(); mdnsCloseErr != nil {
				log.Warnf("Failed to close mDNS: %v", mdnsCloseErr)
			}
		}
	}

	localUfrag := config.LocalUfrag
	if localUfrag == "" {
		localUfrag = generateUFrag()
	}
	localPwd := config.LocalPwd
	if localPwd == "" {
		localPwd = generatePwd()
	}

	if len(localUfrag)*8 < 24 {
		closeMDNSConn()
		return nil, ErrLocalUfragInsufficientBits
	}
	if len(localPwd)*8 < 128 {
		closeMDNSConn()
		return nil, ErrLocalPwdInsufficientBits
	}

	a := &Agent{
		chanTask: make(chan task),
		done:     make(chan struct{}),

		onConnected:  make(chan struct{}),
		onFailed:     make(chan struct{}),
		eventsSignal: make(chan struct{}, 1),

		trickle: config.Trickle,
		lite:    config.Lite,

		portmin: config.PortMin,
		portmax: config.PortMax,

		connectionState: ConnectionStateNew,
		gatheringState:  GatheringStateNew,

		localUfrag: localUfrag,
		localPwd:   localPwd,

		tieBreaker: randUint64(),
		nomination: config.Nomination,

		localCandidates:  make(map[NetworkType][]Candidate),
		remoteCandidates: make(map[NetworkType][]Candidate),
		selectedPairs:    make(map[uint16]*candidatePair),

		urls:         config.Urls,
		networkTypes: config.NetworkTypes,

		reGatherOnRestart: config.ReGatherOnRestart,

		mDNSMode: mDNSMode,
		mDNSName: mDNSName,
		mDNSConn: mDNSConn,

		forceCandidateContact: make(chan bool, 1),

		buffer: packetio.NewBuffer(),

		interfaceFilter:    config.InterfaceFilter,
		insecureSkipVerify: config.InsecureSkipVerify,

		net: config.Net,

		loggerFactory: loggerFactory,
		log:           log,
	}
	a.tm = newTransactionManager(a)

	// Make sure the buffer doesn't grow indefinitely.
	// NOTE: We actually won't get anywhere close to this limit.
	// SRTP will constantly read from the endpoint and drop packets if it's full.
	a.buffer.SetLimitSize(maxBufferSize)

	if a.net == nil {
		a.net = vnet.NewNet(nil)
	} else if a.net.IsVirtual() {
		a.log.Warn("vnet is enabled")
		if a.mDNSMode != MulticastDNSModeDisabled {
			a.log.Warn("vnet does not support mDNS yet")
			a.mDNSMode = MulticastDNSModeDisabled
		}
	}

	a.initWithDefaults(config)

	if len(a.networkTypes) == 0 {
		a.networkTypes = supportedNetworkTypes
	}

	if a.lite && (len(a.candidateTypes) != 1 || a.candidateTypes[0] != CandidateTypeHost) {
		closeMDNSConn()
		return nil, ErrLiteUsingNonHostCandidates
	}

	if len(config.Urls) > 0 &&
		!containsCandidateType(CandidateTypeServerReflexive, a.candidateTypes) &&
		!containsCandidateType(CandidateTypeRelay, a.candidateTypes) {
		closeMDNSConn()
		return nil, ErrUselessUrlsProvided
	}

	if err = a.initExtIPMapping(config); err != nil {
		closeMDNSConn()
		return nil, err
	}

	go a.taskLoop()
	go a.eventLoop()

	return a, nil
}

// run serializes agent access, the function executes on the loop
// goroutine and run returns once it finished.
func (a *Agent) run(t func(*Agent)) error {
	if err := a.ok(); err != nil {
		return err
	}

	instance := task{fn: t, done: make(chan struct{})}
	select {
	case <-a.done:
		return a.getErr()
	case a.chanTask <- instance:
		<-instance.done
		return nil
	}
}

func (a *Agent) taskLoop() {
	for {
		select {
		case <-a.done:
			return
		case t := <-a.chanTask:
			t.fn(a)
			close(t.done)
		}
	}
}

func (a *Agent) ok() error {
	select {
	case <-a.done:
		return a.getErr()
	default:
	}
	return nil
}

func (a *Agent) getErr() error {
	if err := a.err.Load(); err != nil {
		return err
	}
	return ErrClosed
}

// eventLoop delivers queued events to the user supplied handlers, in
// order, outside of the agent loop so handlers may call back in.
func (a *Agent) eventLoop() {
	for {
		select {
		case <-a.eventsSignal:
			a.dispatchEvents()
		case <-a.done:
			a.dispatchEvents()
			return
		}
	}
}

func (a *Agent) pushEvent(e agentEvent) {
	a.eventsMu.Lock()
	a.pendingEvents = append(a.pendingEvents, e)
	a.eventsMu.Unlock()

	select {
	case a.eventsSignal <- struct{}{}:
	default:
	}
}

func (a *Agent) dispatchEvents() {
	for {
		a.eventsMu.Lock()
		events := a.pendingEvents
		a.pendingEvents = nil
		a.eventsMu.Unlock()

		if len(events) == 0 {
			return
		}

		for _, e := range events {
			switch e.kind {
			case eventConnectionStateChange:
				if h, ok := a.onConnectionStateChangeHdlr.Load().(func(ConnectionState)); ok && h != nil {
					h(e.state)
				}
			case eventSelectedPairChange:
				if h, ok := a.onSelectedCandidatePairChangeHdlr.Load().(func(Candidate, Candidate)); ok && h != nil {
					h(e.local, e.remote)
				}
			case eventCandidate:
				if h, ok := a.onCandidateHdlr.Load().(func(Candidate)); ok && h != nil {
					h(e.candidate)
				}
			}
		}
	}
}

// OnConnectionStateChange sets a handler that is fired when the connection state changes
func (a *Agent) OnConnectionStateChange(f func(ConnectionState)) error {
	a.onConnectionStateChangeHdlr.Store(f)
	return nil
}

// OnSelectedCandidatePairChange sets a handler that is fired when the final candidate
// pair is selected
func (a *Agent) OnSelectedCandidatePairChange(f func(Candidate, Candidate)) error {
	a.onSelectedCandidatePairChangeHdlr.Store(f)
	return nil
}

// OnCandidate sets a handler that is fired when new candidates gathered. When
// the gathering process complete the last candidate is nil.
func (a *Agent) OnCandidate(f func(Candidate)) error {
	a.onCandidateHdlr.Store(f)
	return nil
}

func (a *Agent) startConnectivityChecks(isControlling bool, remoteUfrag, remotePwd string) error {
	switch {
	case remoteUfrag == "":
		return ErrRemoteUfragEmpty
	case remotePwd == "":
		return ErrRemotePwdEmpty
	}

	a.log.Debugf("Started agent: isControlling? %t, remoteUfrag: %q, remotePwd: %q", isControlling, remoteUfrag, remotePwd)

	var startErr error
	if err := a.run(func(agent *Agent) {
		if agent.haveStarted {
			startErr = ErrMultipleStart
			return
		}
		agent.haveStarted = true

		agent.isControlling = isControlling
		agent.remoteUfrag = remoteUfrag
		agent.remotePwd = remotePwd

		// Pairs built before the roles were known carry a guess
		for _, cl := range agent.checklists {
			for _, p := range cl.pairs {
				p.iceRoleControlling = isControlling
			}
		}

		switch {
		case agent.lite:
			agent.selector = &liteSelector{pairCandidateSelector: &controlledSelector{
				agent: agent,
				log:   agent.log,
			}}
		case isControlling:
			agent.selector = &controllingSelector{agent: agent, log: agent.log}
		default:
			agent.selector = &controlledSelector{agent: agent, log: agent.log}
		}
		agent.selector.Start()

		agent.updateConnectionState(ConnectionStateConnecting)

		stop := make(chan struct{})
		agent.checkStop = stop
		go agent.connectivityChecks(stop)

		agent.requestConnectivityCheck()
	}); err != nil {
		return err
	}
	return startErr
}

// connectivityChecks paces ordinary checks at Ta and runs the slower
// bookkeeping pass on the task loop interval.
func (a *Agent) connectivityChecks(stop <-chan struct{}) {
	pacer := time.NewTicker(a.pacingInterval)
	bookkeeper := time.NewTicker(a.taskLoopInterval)
	defer pacer.Stop()
	defer bookkeeper.Stop()

	contact := func(fn func(*Agent)) bool {
		if err := a.run(fn); err != nil {
			a.log.Warnf("Failed to start connectivity checks: %v", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-a.forceCandidateContact:
			if !contact(func(agent *Agent) { agent.schedulePass() }) {
				return
			}
		case <-pacer.C:
			if !contact(func(agent *Agent) { agent.schedulePass() }) {
				return
			}
		case <-bookkeeper.C:
			if !contact(func(agent *Agent) { agent.taskLoopTick() }) {
				return
			}
		case <-stop:
			return
		case <-a.done:
			return
		}
	}
}

func (a *Agent) taskLoopTick() {
	if a.selector == nil {
		return
	}
	a.validateSelectedPairs()
	a.checkKeepalive()
	a.selector.ContactCandidates()
}

func (a *Agent) requestConnectivityCheck() {
	select {
	case a.forceCandidateContact <- true:
	default:
	}
}

// schedulePass starts at most one ordinary check: the highest priority
// Waiting pair across every checklist, respecting the outstanding cap.
func (a *Agent) schedulePass() {
	if a.selector == nil {
		return
	}

	a.drainTriggeredQueue()

	if a.tm.outstanding() >= a.maxOutstandingChecks {
		return
	}

	var next *candidatePair
	for _, cl := range a.checklists {
		if cl.concluded || cl.failed {
			continue
		}
		if p := cl.nextWaiting(); p != nil {
			if next == nil || p.Priority() > next.Priority() {
				next = p
			}
		}
	}
	if next == nil {
		return
	}
	a.startCheck(next)
}

// queueTriggeredCheck enqueues a check in response to an inbound binding
// request. Triggered checks jump the Waiting queue but still respect the
// outstanding cap.
func (a *Agent) queueTriggeredCheck(p *candidatePair) {
	if a.selector == nil {
		return
	}
	if a.tm.inFlight(p) {
		return
	}
	for _, queued := range a.triggeredQueue {
		if queued == p {
			return
		}
	}

	if p.state == CandidatePairStateFailed {
		// A request from the peer proves the path is alive after all
		p.state = CandidatePairStateWaiting
		p.bindingRequestCount = 0
	}

	a.triggeredQueue = append(a.triggeredQueue, p)
	a.drainTriggeredQueue()
}

func (a *Agent) drainTriggeredQueue() {
	for len(a.triggeredQueue) > 0 && a.tm.outstanding() < a.maxOutstandingChecks {
		p := a.triggeredQueue[0]
		a.triggeredQueue = a.triggeredQueue[1:]

		if p.state == CandidatePairStateSucceeded || a.tm.inFlight(p) {
			continue
		}
		a.startCheck(p)
	}
}

func (a *Agent) startCheck(p *candidatePair) {
	p.state = CandidatePairStateInProgress
	a.selector.PingCandidate(p.local, p.remote)
}

func (a *Agent) sendBindingRequest(m *stun.Message, local, remote Candidate) {
	p := a.findPair(local, remote)
	if p == nil {
		p = a.addPair(local, remote)
	}
	if a.tm.inFlight(p) {
		return
	}

	a.log.Tracef("ping STUN from %s to %s", local.String(), remote.String())
	a.tm.start(m, p)
}

func (a *Agent) sendBindingSuccess(m *stun.Message, local, remote Candidate) {
	base := remote
	if out, err := stun.Build(m, stun.BindingSuccess,
		&stun.XORMappedAddress{
			IP:   base.addr().IP,
			Port: base.addr().Port,
		},
		stun.NewShortTermIntegrity(a.localPwd),
		stun.Fingerprint,
	); err != nil {
		a.log.Warnf("Failed to handle inbound ICE from: %s to: %s error: %s", local, remote, err)
	} else {
		if _, err := local.writeTo(out.Raw, remote); err != nil {
			a.log.Warnf("failed to send STUN message: %v", err)
		}
	}
}

func (a *Agent) sendBindingIndication(local, remote Candidate) {
	msg, err := stun.Build(bindingIndication, stun.TransactionID, stun.Fingerprint)
	if err != nil {
		a.log.Error(err.Error())
		return
	}
	if _, err := local.writeTo(msg.Raw, remote); err != nil {
		a.log.Warnf("failed to send STUN message: %v", err)
	}
}

func (a *Agent) checkKeepalive() {
	if a.keepaliveInterval == 0 {
		return
	}
	for _, p := range a.selectedPairs {
		if time.Since(p.local.LastSent()) > a.keepaliveInterval {
			a.sendBindingIndication(p.local, p.remote)
		}
	}
}

// validateSelectedPairs transitions to Disconnected when the selected
// pairs stop carrying traffic, and back once traffic resumes. The
// selected pairs stay in place so recovery needs no new checks.
func (a *Agent) validateSelectedPairs() {
	if len(a.selectedPairs) == 0 || a.connectionTimeout == 0 {
		return
	}

	silent := false
	for _, p := range a.selectedPairs {
		if time.Since(p.remote.LastReceived()) > a.connectionTimeout {
			silent = true
			break
		}
	}

	switch {
	case silent && a.connectionState != ConnectionStateDisconnected:
		a.updateConnectionState(ConnectionStateDisconnected)
	case !silent && a.connectionState == ConnectionStateDisconnected:
		a.updateCompletedState()
	}
}

func (a *Agent) updateConnectionState(newState ConnectionState) {
	if a.connectionState == newState {
		return
	}
	a.log.Infof("Setting new connection state: %s", newState)
	a.connectionState = newState
	a.pushEvent(agentEvent{kind: eventConnectionStateChange, state: newState})
}

// updateCompletedState moves between Connected and Completed depending on
// whether every component checklist has concluded.
func (a *Agent) updateCompletedState() {
	switch a.connectionState {
	case ConnectionStateClosed, ConnectionStateFailed:
		return
	}
	if len(a.selectedPairs) == 0 {
		return
	}

	completed := true
	for _, cl := range a.checklists {
		if len(cl.pairs) == 0 {
			continue
		}
		if a.selectedPairs[cl.component] == nil || !cl.concluded {
			completed = false
			break
		}
	}

	if completed {
		a.updateConnectionState(ConnectionStateCompleted)
	} else {
		a.updateConnectionState(ConnectionStateConnected)
	}
}

// setSelectedPair installs p as the nominated pair of its component. A
// later nomination only replaces the current pair when it has a strictly
// higher pair priority.
func (a *Agent) setSelectedPair(p *candidatePair) {
	if p == nil {
		return
	}

	component := p.local.Component()
	if cur := a.selectedPairs[component]; cur != nil {
		if cur == p {
			return
		}
		if p.Priority() <= cur.Priority() {
			a.log.Tracef("ignoring nomination of %s, keeping %s", p.String(), cur.String())
			return
		}
		cur.nominated = false
	}

	a.log.Tracef("Set selected candidate pair: %s", p.String())
	p.nominated = true
	p.state = CandidatePairStateSucceeded
	a.selectedPairs[component] = p
	if component == ComponentRTP {
		a.dataPair.Store(p)
	}

	a.pushEvent(agentEvent{kind: eventSelectedPairChange, local: p.local, remote: p.remote})

	if cl := a.checklistFor(component); cl != nil {
		a.checkConclusion(cl)
	}
	a.updateCompletedState()

	select {
	case <-a.onConnected:
	default:
		close(a.onConnected)
	}
}

func (a *Agent) handlePairSucceeded(p *candidatePair) {
	if cl := a.checklistFor(p.local.Component()); cl != nil {
		cl.unfreeze(pairFoundation(p))
		a.checkConclusion(cl)
	}
	a.requestConnectivityCheck()
}

func (a *Agent) handlePairFailed(p *candidatePair, reason error) {
	a.log.Infof("candidate pair failed (%v): %s", reason, p.String())
	p.state = CandidatePairStateFailed

	if cl := a.checklistFor(p.local.Component()); cl != nil {
		cl.unfreeze(pairFoundation(p))
		a.checkConclusion(cl)
	}
	a.requestConnectivityCheck()
}

// checkConclusion concludes a checklist once its nominated pair can no
// longer be beaten, or fails it when every pair has failed unnominated.
func (a *Agent) checkConclusion(cl *checklist) {
	sel := a.selectedPairs[cl.component]

	if sel != nil && !cl.concluded && cl.higherPriorityResolved(sel) {
		cl.concluded = true
		cl.prune()
		a.updateCompletedState()
		return
	}

	if sel == nil && !cl.failed && cl.allFailed() {
		cl.failed = true
		a.checklistFailed()
	}
}

func (a *Agent) checklistFailed() {
	// A surviving component keeps the session alive
	for _, cl := range a.checklists {
		if len(cl.pairs) > 0 && !cl.failed {
			return
		}
	}

	a.failureReason = ErrChecklistFailed
	a.updateConnectionState(ConnectionStateFailed)
	select {
	case <-a.onFailed:
	default:
		close(a.onFailed)
	}
}

func (a *Agent) checklistFor(component uint16) *checklist {
	for _, cl := range a.checklists {
		if cl.component == component {
			return cl
		}
	}
	return nil
}

func (a *Agent) ensureChecklist(component uint16) *checklist {
	if cl := a.checklistFor(component); cl != nil {
		return cl
	}
	cl := newChecklist(component)
	a.checklists = append(a.checklists, cl)
	return cl
}

func (a *Agent) bestValidPair(component uint16) *candidatePair {
	cl := a.checklistFor(component)
	if cl == nil {
		return nil
	}
	for _, p := range cl.pairs {
		if p.state == CandidatePairStateSucceeded {
			return p
		}
	}
	return nil
}

// sameTuple reports whether two pairs collapse onto the same post
// mapping 5-tuple, which makes one of them redundant.
func sameTuple(x, y *candidatePair) bool {
	if x.local.addr() == nil || y.local.addr() == nil ||
		x.remote.addr() == nil || y.remote.addr() == nil {
		return false
	}
	return x.local.NetworkType() == y.local.NetworkType() &&
		addrEqual(x.local.addr(), y.local.addr()) &&
		addrEqual(x.remote.addr(), y.remote.addr())
}

func (a *Agent) addPair(local, remote Candidate) *candidatePair {
	p := newCandidatePair(local, remote, a.isControlling)
	cl := a.ensureChecklist(local.Component())

	for _, existing := range cl.pairs {
		if !sameTuple(existing, p) {
			continue
		}
		if existing.Priority() >= p.Priority() {
			return existing
		}
		cl.removePair(existing)
		break
	}

	cl.addPair(p)
	return p
}

func (a *Agent) findPair(local, remote Candidate) *candidatePair {
	cl := a.checklistFor(local.Component())
	if cl == nil {
		return nil
	}
	return cl.findPair(local, remote)
}

func (a *Agent) findRemoteCandidate(networkType NetworkType, addr net.Addr) Candidate {
	ip, port, err := addrIPAndPort(addr)
	if err != nil {
		return nil
	}

	for _, c := range a.remoteCandidates[networkType] {
		base := c.addr()
		if base != nil && base.IP.Equal(ip) && c.Port() == port {
			return c
		}
	}
	return nil
}

func (a *Agent) findLocalCandidate(networkType NetworkType, ip net.IP, port int) Candidate {
	for _, c := range a.localCandidates[networkType] {
		base := c.addr()
		if base != nil && base.IP.Equal(ip) && c.Port() == port {
			return c
		}
	}
	return nil
}

// discoverPeerReflexiveFromResponse surfaces the NAT mapping the peer
// saw us through as a local peer reflexive candidate.
func (a *Agent) discoverPeerReflexiveFromResponse(m *stun.Message, local Candidate) {
	var mapped stun.XORMappedAddress
	if err := mapped.GetFrom(m); err != nil {
		return
	}
	if local.Address() == mapped.IP.String() && local.Port() == mapped.Port {
		return
	}
	if a.findLocalCandidate(local.NetworkType(), mapped.IP, mapped.Port) != nil {
		return
	}

	prflx, err := NewCandidatePeerReflexive(&CandidatePeerReflexiveConfig{
		Network:   local.NetworkType().NetworkShort(),
		Address:   mapped.IP.String(),
		Port:      mapped.Port,
		Component: local.Component(),
		RelAddr:   local.Address(),
		RelPort:   local.Port(),
	})
	if err != nil {
		a.log.Warnf("Failed to create peer reflexive candidate: %v", err)
		return
	}

	// Borrow the socket of the base candidate, its recvLoop keeps
	// feeding us.
	prflx.currAgent = a
	prflx.conn = baseConn(local)
	prflx.borrowedConn = true

	a.localCandidates[prflx.NetworkType()] = append(a.localCandidates[prflx.NetworkType()], prflx)

	for _, remote := range a.remoteCandidates[prflx.NetworkType()] {
		a.addPair(prflx, remote)
	}

	a.pushEvent(agentEvent{kind: eventCandidate, candidate: prflx})
	a.requestConnectivityCheck()
}

func (a *Agent) handleInbound(m *stun.Message, local Candidate, remote net.Addr) {
	if m == nil || local == nil {
		return
	}

	if m.Type.Method != stun.MethodBinding ||
		!(m.Type.Class == stun.ClassSuccessResponse ||
			m.Type.Class == stun.ClassRequest ||
			m.Type.Class == stun.ClassIndication) {
		a.log.Tracef("unhandled STUN from %s to %s class(%s) method(%s)", remote, local, m.Type.Class, m.Type.Method)
		return
	}

	if a.isControlling {
		if m.Contains(stun.AttrICEControlling) {
			a.log.Debug("inbound isControlling && a.isControlling == true")
			return
		} else if m.Contains(stun.AttrUseCandidate) {
			a.log.Debug("useCandidate && a.isControlling == true")
			return
		}
	} else {
		if m.Contains(stun.AttrICEControlled) {
			a.log.Debug("inbound isControlled && a.isControlling == false")
			return
		}
	}

	remoteCandidate := a.findRemoteCandidate(local.NetworkType(), remote)

	switch m.Type.Class {
	case stun.ClassSuccessResponse:
		if err := assertInboundMessageIntegrity(m, []byte(a.remotePwd)); err != nil {
			a.log.Warnf("discard message from (%s), %v", remote, err)
			return
		}
		if remoteCandidate == nil {
			a.log.Warnf("discard success message from (%s), no such remote", remote)
			return
		}
		if a.selector != nil {
			a.selector.HandleSuccessResponse(m, local, remoteCandidate, remote)
		}

	case stun.ClassRequest:
		if err := assertInboundUsername(m, a.localUfrag+":"+a.remoteUfrag); err != nil {
			a.log.Warnf("discard message from (%s), %v", remote, err)
			return
		}
		if err := assertInboundMessageIntegrity(m, []byte(a.localPwd)); err != nil {
			a.log.Warnf("discard message from (%s), %v", remote, err)
			return
		}

		if remoteCandidate == nil {
			ip, port, networkType, ok := parseAddr(remote)
			if !ok {
				a.log.Errorf("Failed to parse remote net.Addr when creating remote prflx candidate")
				return
			}

			prflxCandidate, err := NewCandidatePeerReflexive(&CandidatePeerReflexiveConfig{
				Network:   networkType.NetworkShort(),
				Address:   ip.String(),
				Port:      port,
				Component: local.Component(),
			})
			if err != nil {
				a.log.Errorf("Failed to create new remote prflx candidate (%s)", err)
				return
			}
			a.addRemoteCandidate(prflxCandidate)
			remoteCandidate = prflxCandidate

			a.log.Debugf("adding a new peer-reflexive candidate: %s ", remote)
		}

		a.log.Tracef("inbound STUN (Request) from %s to %s", remote.String(), local.String())
		if a.selector != nil {
			a.selector.HandleBindingRequest(m, local, remoteCandidate)
		}
	}

	// Indications fall through, they only refresh liveness.
	if remoteCandidate != nil {
		remoteCandidate.seen(false)
	}
}

// validateNonSTUNTraffic processes non STUN traffic from a remote candidate,
// and returns true if it is an actual remote candidate
func (a *Agent) validateNonSTUNTraffic(local Candidate, remote net.Addr) bool {
	valid := false
	if err := a.run(func(agent *Agent) {
		remoteCandidate := agent.findRemoteCandidate(local.NetworkType(), remote)
		if remoteCandidate != nil {
			remoteCandidate.seen(false)
			valid = true
		}
	}); err != nil {
		a.log.Warnf("failed to validate remote candidate: %v", err)
	}
	return valid
}

// AddRemoteCandidate adds a new remote candidate
func (a *Agent) AddRemoteCandidate(c Candidate) error {
	if c == nil {
		return nil
	}

	// Cannot check addr equality until mDNS candidates are resolved
	if _, ok := c.(*CandidateHost); ok && strings.HasSuffix(c.Address(), ".local") {
		if a.mDNSMode == MulticastDNSModeDisabled {
			a.log.Warnf("remote mDNS candidate added, but mDNS is disabled: (%s)", c.Address())
			return nil
		}
		go a.resolveAndAddMulticastCandidate(c.(*CandidateHost))
		return nil
	}

	return a.run(func(agent *Agent) {
		agent.addRemoteCandidate(c)
	})
}

func (a *Agent) resolveAndAddMulticastCandidate(c *CandidateHost) {
	if a.mDNSConn == nil {
		return
	}

	_, src, err := a.mDNSConn.Query(context.TODO(), c.Address())
	if err != nil {
		a.log.Warnf("Failed to discover mDNS candidate %s: %v", c.Address(), err)
		return
	}

	ip, _, err := addrIPAndPort(src)
	if err != nil {
		a.log.Warnf("Failed to discover mDNS candidate %s: failed to parse IP", c.Address())
		return
	}

	if err = c.setIP(ip); err != nil {
		a.log.Warnf("Failed to discover mDNS candidate %s: %v", c.Address(), err)
		return
	}

	if err = a.run(func(agent *Agent) {
		agent.addRemoteCandidate(c)
	}); err != nil {
		a.log.Warnf("Failed to add mDNS candidate %s: %v", c.Address(), err)
	}
}

// addRemoteCandidate assumes you are holding the lock (must be execute using a.run)
func (a *Agent) addRemoteCandidate(c Candidate) {
	set := a.remoteCandidates[c.NetworkType()]
	for _, candidate := range set {
		if candidate.Equal(c) {
			return
		}
	}
	a.remoteCandidates[c.NetworkType()] = append(set, c)

	for _, localCandidate := range a.localCandidates[c.NetworkType()] {
		a.addPair(localCandidate, c)
	}
	a.requestConnectivityCheck()
}

// addCandidate assumes you are holding the lock (must be execute using a.run)
func (a *Agent) addCandidate(c Candidate, candidateConn net.PacketConn) {
	set := a.localCandidates[c.NetworkType()]
	for _, candidate := range set {
		if candidate.Equal(c) {
			a.log.Debugf("Ignore duplicate candidate: %s", c.String())
			if err := candidateConn.Close(); err != nil {
				a.log.Warnf("Failed to close duplicate candidate conn: %v", err)
			}
			return
		}
	}

	c.start(a, candidateConn)
	a.localCandidates[c.NetworkType()] = append(set, c)

	for _, remoteCandidate := range a.remoteCandidates[c.NetworkType()] {
		a.addPair(c, remoteCandidate)
	}

	a.requestConnectivityCheck()
	a.pushEvent(agentEvent{kind: eventCandidate, candidate: c})
}

// GetLocalCandidates returns the local candidates
func (a *Agent) GetLocalCandidates() ([]Candidate, error) {
	res := make(chan []Candidate, 1)
	err := a.run(func(agent *Agent) {
		var candidates []Candidate
		for _, set := range agent.localCandidates {
			candidates = append(candidates, set...)
		}
		res <- candidates
	})
	if err != nil {
		return nil, err
	}
	return <-res, nil
}

// GetRemoteCandidates returns the remote candidates the agent knows of
func (a *Agent) GetRemoteCandidates() ([]Candidate, error) {
	res := make(chan []Candidate, 1)
	err := a.run(func(agent *Agent) {
		var candidates []Candidate
		for _, set := range agent.remoteCandidates {
			candidates = append(candidates, set...)
		}
		res <- candidates
	})
	if err != nil {
		return nil, err
	}
	return <-res, nil
}

// GetLocalUserCredentials returns the local user credentials
func (a *Agent) GetLocalUserCredentials() (frag string, pwd string) {
	if err := a.run(func(agent *Agent) {
		frag = agent.localUfrag
		pwd = agent.localPwd
	}); err != nil {
		return a.localUfrag, a.localPwd
	}
	return frag, pwd
}

// GetSelectedCandidatePair returns the nominated pair of the component,
// or ErrNoCandidatePairs when none has been selected yet.
func (a *Agent) GetSelectedCandidatePair(component uint16) (local, remote Candidate, err error) {
	res := make(chan *candidatePair, 1)
	if runErr := a.run(func(agent *Agent) {
		res <- agent.selectedPairs[component]
	}); runErr != nil {
		return nil, nil, runErr
	}
	p := <-res
	if p == nil {
		return nil, nil, ErrNoCandidatePairs
	}
	return p.local, p.remote, nil
}

func (a *Agent) getDataPair() *candidatePair {
	p, _ := a.dataPair.Load().(*candidatePair)
	return p
}

// Restart starts the agent over with fresh credentials. Checks, pairs
// and remote candidates of the previous generation are discarded; local
// candidates are kept unless ReGatherOnRestart was set. Empty arguments
// mean freshly generated credentials.
func (a *Agent) Restart(ufrag, pwd string) error {
	if ufrag == "" {
		ufrag = generateUFrag()
	}
	if pwd == "" {
		pwd = generatePwd()
	}

	if len(ufrag)*8 < 24 {
		return ErrLocalUfragInsufficientBits
	}
	if len(pwd)*8 < 128 {
		return ErrLocalPwdInsufficientBits
	}

	var toClose []Candidate
	err := a.run(func(agent *Agent) {
		agent.generation++
		agent.tm.cancelAll()
		if agent.checkStop != nil {
			close(agent.checkStop)
			agent.checkStop = nil
		}
		agent.selector = nil
		agent.triggeredQueue = nil

		agent.localUfrag = ufrag
		agent.localPwd = pwd
		agent.remoteUfrag = ""
		agent.remotePwd = ""

		agent.remoteCandidates = make(map[NetworkType][]Candidate)
		agent.checklists = nil
		agent.selectedPairs = make(map[uint16]*candidatePair)
		agent.dataPair.Store((*candidatePair)(nil))

		agent.haveStarted = false
		agent.onConnected = make(chan struct{})
		agent.onFailed = make(chan struct{})
		agent.failureReason = nil

		if agent.reGatherOnRestart {
			for networkType, set := range agent.localCandidates {
				toClose = append(toClose, set...)
				delete(agent.localCandidates, networkType)
			}
			agent.gatheringState = GatheringStateNew
		}

		agent.updateConnectionState(ConnectionStateGathering)
	})
	if err != nil {
		if errors.Is(err, ErrClosed) {
			return ErrRestartWhenClosed
		}
		return err
	}

	// A recv loop being torn down may be re-entering run with inbound
	// traffic, so closing happens outside the task.
	for _, c := range toClose {
		if closeErr := c.close(); closeErr != nil {
			a.log.Warnf("Failed to close candidate %s: %v", c, closeErr)
		}
	}
	return nil
}

// Close cleans up the Agent. Closing an already closed agent is a
// no-op.
func (a *Agent) Close() error {
	err := a.run(func(agent *Agent) {
		agent.err.Store(ErrClosed)
		agent.updateConnectionState(ConnectionStateClosed)
		// Unblock run callers, candidate recv loops included, before
		// waiting for those loops to exit.
		close(agent.done)

		agent.tm.cancelAll()
		if agent.checkStop != nil {
			close(agent.checkStop)
			agent.checkStop = nil
		}

		for networkType, set := range agent.localCandidates {
			for _, c := range set {
				if err := c.close(); err != nil {
					agent.log.Warnf("Failed to close candidate %s: %v", c, err)
				}
			}
			delete(agent.localCandidates, networkType)
		}
		for networkType, set := range agent.remoteCandidates {
			for _, c := range set {
				if err := c.close(); err != nil {
					agent.log.Warnf("Failed to close candidate %s: %v", c, err)
				}
			}
			delete(agent.remoteCandidates, networkType)
		}

		if err := agent.buffer.Close(); err != nil {
			agent.log.Warnf("failed to close buffer: %v", err)
		}

		agent.closeMulticastConn()
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

func (a *Agent) closeMulticastConn() {
	if a.mDNSConn != nil {
		if err := a.mDNSConn.Close(); err != nil {
			a.log.Warnf("failed to close mDNS Conn: %v", err)
		}
		a.mDNSConn = nil
	}
}
