package tracker

import "sync"

// ConnState is the connectivity status exposed to the presentation layer.
type ConnState string

const (
	// ConnOnline means the network is reachable and refreshes succeed.
	ConnOnline ConnState = "online"
	// ConnOffline means the platform reported the network as unavailable.
	ConnOffline ConnState = "offline"
	// ConnReconnecting means the network came back and a confirming
	// refresh has not succeeded yet.
	ConnReconnecting ConnState = "reconnecting"
)

// Connectivity tracks network reachability for one open session. It is a
// pure state machine over two external boolean edges and one internal
// refresh success/failure signal; it holds no business data.
type Connectivity struct {
	mu    sync.Mutex
	state ConnState

	// onReconnect fires once per offline-to-online edge to request an
	// immediate out-of-cycle silent refresh.
	onReconnect func()
}

// NewConnectivity creates a monitor in the online state.
func NewConnectivity(onReconnect func()) *Connectivity {
	return &Connectivity{state: ConnOnline, onReconnect: onReconnect}
}

// State returns the current connectivity status.
func (c *Connectivity) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetNetworkAvailable feeds the external reachability signal.
func (c *Connectivity) SetNetworkAvailable(available bool) {
	c.mu.Lock()
	if !available {
		c.state = ConnOffline
		c.mu.Unlock()
		return
	}
	if c.state != ConnOffline {
		c.mu.Unlock()
		return
	}
	c.state = ConnReconnecting
	reconnect := c.onReconnect
	c.mu.Unlock()

	if reconnect != nil {
		reconnect()
	}
}

// ReportRefresh feeds the internal refresh outcome. A success confirms the
// link and moves to online; a failure while offline or reconnecting leaves
// the state unchanged so the indicator does not flap.
func (c *Connectivity) ReportRefresh(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ok {
		c.state = ConnOnline
	}
}
