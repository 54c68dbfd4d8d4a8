package base

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("transport")

var (
	metricUnmatchedFrames = metrics.GetOrCreateCounter("kvlink_unmatched_frames_total")
	metricConnFailures    = metrics.GetOrCreateCounter("kvlink_connection_failures_total")
)

// --------------------------------------------------------------------------
// Connection State
// --------------------------------------------------------------------------

// State is the lifecycle state of a Conn.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateDraining
	StateFailed
	StateClosed
)

// String returns the string representation of a State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDraining:
		return "draining"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// terminal reports whether no further state transitions are allowed.
func (s State) terminal() bool {
	return s == StateFailed || s == StateClosed
}

// --------------------------------------------------------------------------
// Pending entry
// --------------------------------------------------------------------------

// Pending is the connection-side view of an in-flight request. The
// dispatch package's completion handle implements it.
//
// Bind is called exactly once, after the correlation ID is assigned and
// before the frame is written. Complete and Fail together are called at
// most once per entry; implementations must tolerate (and ignore) a second
// resolution attempt.
type Pending interface {
	// Bind hands the entry its connection and correlation ID so the
	// caller can cancel it later.
	Bind(c *Conn, corrID uint64)
	// Complete resolves the entry with the backend's response payload.
	Complete(value []byte)
	// Fail resolves the entry with a terminal error.
	Fail(err error)
}

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// Conn is one multiplexed connection to one backend node. It is created by
// the pool via Dial and must not be copied.
type Conn struct {
	id       string // instance ID, used for log and metric labels
	node     string // node identity the pool routes by
	endpoint string
	conf     common.ClientConfig

	raw   net.Conn
	state atomic.Int32

	// Correlation ID -> pending entry. Mutated by exactly two actors:
	// Send/Abandon add and remove, the reader and teardown paths remove.
	pending    *xsync.MapOf[uint64, Pending]
	nextCorrID atomic.Uint64
	inFlight   atomic.Int64

	writeMu    sync.Mutex // serializes frame writes
	teardown   sync.Mutex // serializes fail/close transitions
	readerDone chan struct{}

	// onFailure is invoked once when the connection leaves Ready due to a
	// transport or protocol failure (not on user-initiated Close).
	onFailure func(c *Conn, err error)
}

// Dial establishes a connection to the endpoint using the given connector
// and starts the reader goroutine. The returned Conn is Ready.
func Dial(node, endpoint string, connector transport.IClientConnector, conf common.ClientConfig, onFailure func(*Conn, error)) (*Conn, error) {
	c := &Conn{
		id:         uuid.NewString(),
		node:       node,
		endpoint:   endpoint,
		conf:       conf,
		pending:    xsync.NewMapOf[uint64, Pending](),
		readerDone: make(chan struct{}),
		onFailure:  onFailure,
	}
	c.state.Store(int32(StateConnecting))

	timeout := time.Duration(conf.ConnectTimeoutSecond) * time.Second
	raw, err := connector.Connect(endpoint, timeout)
	if err != nil {
		c.state.Store(int32(StateFailed))
		return nil, common.WrapError(common.KindConnect, fmt.Sprintf("failed to connect to %s", endpoint), err)
	}

	// Apply socket level settings
	if err := connector.UpgradeConnection(raw, conf); err != nil {
		raw.Close()
		c.state.Store(int32(StateFailed))
		return nil, common.WrapError(common.KindConnect, fmt.Sprintf("failed to upgrade connection to %s", endpoint), err)
	}

	c.raw = raw
	c.state.Store(int32(StateReady))

	go c.readLoop()

	Logger.Infof("Connected to %s via %s (conn %s)", endpoint, connector.GetName(), c.id)
	return c, nil
}

// --------------------------------------------------------------------------
// Accessors
// --------------------------------------------------------------------------

// ID returns the connection instance ID.
func (c *Conn) ID() string { return c.id }

// Node returns the node identity this connection belongs to.
func (c *Conn) Node() string { return c.node }

// Endpoint returns the remote address.
func (c *Conn) Endpoint() string { return c.endpoint }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Ready reports whether new requests may be sent.
func (c *Conn) Ready() bool { return c.State() == StateReady }

// InFlight returns the number of requests awaiting a response.
func (c *Conn) InFlight() int64 { return c.inFlight.Load() }

// --------------------------------------------------------------------------
// Send path
// --------------------------------------------------------------------------

// Send assigns a fresh correlation ID to the payload, registers the pending
// entry and writes the frame. It returns as soon as the bytes are handed to
// the kernel and never waits for the response.
//
// Errors are returned synchronously and the entry is NOT resolved in that
// case: KindConnectionClosed when the connection is not ready,
// KindOverloaded when the in-flight cap is reached, KindWrite when writing
// the frame fails (which also tears the connection down).
func (c *Conn) Send(payload []byte, p Pending) (uint64, error) {
	if c.State() != StateReady {
		return 0, common.Errorf(common.KindConnectionClosed, "connection to %s is %s", c.endpoint, c.State())
	}

	// Backpressure: fail fast instead of queueing unboundedly
	if max := c.conf.Pool.MaxInFlight; max > 0 {
		if c.inFlight.Add(1) > int64(max) {
			c.inFlight.Add(-1)
			return 0, common.Errorf(common.KindOverloaded, "connection to %s has %d requests in flight", c.endpoint, max)
		}
	} else {
		c.inFlight.Add(1)
	}

	corrID := c.nextCorrID.Add(1)
	p.Bind(c, corrID)
	c.pending.Store(corrID, p)

	// The connection may have failed between the state check and the
	// registration; make sure the entry cannot be stranded.
	if c.State().terminal() {
		if _, loaded := c.pending.LoadAndDelete(corrID); loaded {
			c.release()
		}
		return 0, common.Errorf(common.KindConnectionClosed, "connection to %s is %s", c.endpoint, c.State())
	}

	c.writeMu.Lock()
	if t := c.conf.TimeoutSecond; t > 0 {
		_ = c.raw.SetWriteDeadline(time.Now().Add(time.Duration(t) * time.Second))
	}
	err := writeFrame(c.raw, corrID, payload)
	c.writeMu.Unlock()

	if err != nil {
		if _, loaded := c.pending.LoadAndDelete(corrID); loaded {
			c.release()
		}
		// A partial frame corrupts the stream for every other request
		c.fail(common.WrapError(common.KindConnectionClosed, fmt.Sprintf("write to %s failed", c.endpoint), err))
		return 0, common.WrapError(common.KindWrite, fmt.Sprintf("failed to write request to %s", c.endpoint), err)
	}

	return corrID, nil
}

// Abandon removes the pending entry for the given correlation ID, making a
// late response frame an unmatched one. It reports whether the entry was
// still registered; the caller owns its resolution in that case.
func (c *Conn) Abandon(corrID uint64) bool {
	if _, loaded := c.pending.LoadAndDelete(corrID); !loaded {
		return false
	}
	c.release()
	return true
}

// --------------------------------------------------------------------------
// Read path
// --------------------------------------------------------------------------

// readLoop reads response frames and resolves pending entries in decode
// order. It owns the connection's read side and exits exactly once.
func (c *Conn) readLoop() {
	defer close(c.readerDone)

	header := make([]byte, frameHeaderSize)
	for {
		corrID, payload, err := readFrame(c.raw, header)
		if err != nil {
			c.fail(c.classifyReadError(err))
			return
		}

		p, found := c.pending.LoadAndDelete(corrID)
		if !found {
			// Late frame for a cancelled or timed-out request, or a
			// backend bug. Either way it must not crash the reader.
			Logger.Warningf("Dropping unmatched response with correlation ID %d on %s", corrID, c.endpoint)
			metricUnmatchedFrames.Inc()
			continue
		}

		c.release()
		p.Complete(payload)
	}
}

// classifyReadError maps a read failure to the error every pending request
// on this connection resolves with.
func (c *Conn) classifyReadError(err error) error {
	if c.State().terminal() {
		// Teardown already in progress, the reader just observed it
		return common.NewError(common.KindConnectionClosed, "connection closed")
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return common.WrapError(common.KindConnectionClosed, fmt.Sprintf("connection to %s closed by backend", c.endpoint), err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return common.WrapError(common.KindConnectionClosed, fmt.Sprintf("connection to %s broken", c.endpoint), err)
	}
	return common.WrapError(common.KindProtocol, fmt.Sprintf("malformed frame from %s", c.endpoint), err)
}

// --------------------------------------------------------------------------
// Teardown
// --------------------------------------------------------------------------

// Close releases the transport and fails all outstanding requests with
// KindConnectionClosed. It is idempotent.
func (c *Conn) Close() error {
	if !c.transition(StateClosed) {
		return nil
	}
	err := c.raw.Close()
	c.failAll(common.NewError(common.KindConnectionClosed, "connection closed"))
	Logger.Infof("Closed connection to %s (conn %s)", c.endpoint, c.id)
	return err
}

// Drain stops accepting new requests and closes the connection once the
// last in-flight request resolved. New requests are rejected immediately.
func (c *Conn) Drain() {
	if !c.state.CompareAndSwap(int32(StateReady), int32(StateDraining)) {
		return
	}
	Logger.Infof("Draining connection to %s with %d requests in flight", c.endpoint, c.InFlight())
	c.maybeFinishDrain()
}

// fail transitions the connection to Failed, closes the transport, fails
// all outstanding requests and notifies the owner exactly once.
func (c *Conn) fail(cause error) {
	if !c.transition(StateFailed) {
		return
	}
	metricConnFailures.Inc()
	_ = c.raw.Close()
	c.failAll(cause)
	Logger.Errorf("Connection to %s failed: %v", c.endpoint, cause)
	if c.onFailure != nil {
		c.onFailure(c, cause)
	}
}

// transition moves to the target state unless a terminal state was reached
// first. The teardown mutex makes the check-and-swap atomic so fail and
// Close cannot both win.
func (c *Conn) transition(to State) bool {
	c.teardown.Lock()
	defer c.teardown.Unlock()

	if c.State().terminal() {
		return false
	}
	c.state.Store(int32(to))
	return true
}

// failAll resolves every still-mapped pending entry with the given error.
func (c *Conn) failAll(cause error) {
	c.pending.Range(func(corrID uint64, _ Pending) bool {
		if p, loaded := c.pending.LoadAndDelete(corrID); loaded {
			c.inFlight.Add(-1)
			p.Fail(cause)
		}
		return true
	})
}

// release decrements the in-flight counter and finishes a drain when the
// last request resolved.
func (c *Conn) release() {
	if c.inFlight.Add(-1) == 0 && c.State() == StateDraining {
		c.maybeFinishDrain()
	}
}

// maybeFinishDrain closes a draining connection once nothing is in flight.
func (c *Conn) maybeFinishDrain() {
	if c.InFlight() > 0 {
		return
	}
	if !c.transition(StateClosed) {
		return
	}
	_ = c.raw.Close()
	// No pending entries left by definition, but a racing Send may have
	// slipped one in before it observed the Draining state.
	c.failAll(common.NewError(common.KindConnectionClosed, "connection drained"))
	Logger.Infof("Drained connection to %s (conn %s)", c.endpoint, c.id)
}
