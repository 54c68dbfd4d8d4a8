package dispatch

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport/base"
)

const (
	statePending int32 = iota
	stateResolved
)

// Handle is the caller-visible completion slot of one request. It is
// written exactly once - with the response payload or with a terminal
// error - no matter how many of the resolution paths (response frame,
// connection teardown, timeout, cancellation) race for it.
//
// Callers wait on Done or block in Result; foreign callers instead supply
// a notify function and never touch a Go primitive.
type Handle struct {
	state atomic.Int32
	done  chan struct{}

	value []byte
	err   error

	// mu guards the binding and the deadline timer. Bind runs on the
	// submitting goroutine while Cancel, Connection and the timer callback
	// may read from any other.
	mu     sync.Mutex
	conn   *base.Conn
	corrID uint64
	timer  *time.Timer

	notify func(value []byte, err error)
}

// newHandle creates an unresolved handle. notify may be nil.
func newHandle(notify func(value []byte, err error)) *Handle {
	return &Handle{
		done:   make(chan struct{}),
		notify: notify,
	}
}

// --------------------------------------------------------------------------
// Pending interface (called by the connection layer)
// --------------------------------------------------------------------------

// Bind implements base.Pending.
func (h *Handle) Bind(c *base.Conn, corrID uint64) {
	h.mu.Lock()
	h.conn = c
	h.corrID = corrID
	h.mu.Unlock()
}

// binding returns the connection and correlation ID the request was bound
// to, or nil before Bind ran.
func (h *Handle) binding() (*base.Conn, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn, h.corrID
}

// Complete implements base.Pending.
func (h *Handle) Complete(value []byte) {
	h.resolve(value, nil)
}

// Fail implements base.Pending.
func (h *Handle) Fail(err error) {
	h.resolve(nil, err)
}

// --------------------------------------------------------------------------
// Caller API
// --------------------------------------------------------------------------

// Done is closed once the handle resolved.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Resolved reports whether the handle already resolved.
func (h *Handle) Resolved() bool {
	return h.state.Load() == stateResolved
}

// Result blocks until the handle resolves and returns the response payload
// or the terminal error.
func (h *Handle) Result() ([]byte, error) {
	<-h.done
	return h.value, h.err
}

// Connection returns the node identity the request was sent to, or ""
// before the request was bound to a connection.
func (h *Handle) Connection() string {
	c, _ := h.binding()
	if c == nil {
		return ""
	}
	return c.Node()
}

// Cancel resolves the handle with KindCancelled unless it already resolved.
// It removes the pending mapping so that a late response frame is discarded
// as unmatched; bytes already written are not unsent. Cancel never waits on
// the network.
func (h *Handle) Cancel() bool {
	if h.Resolved() {
		return false
	}
	if c, id := h.binding(); c != nil {
		c.Abandon(id)
	}
	return h.resolve(nil, common.NewError(common.KindCancelled, "request cancelled"))
}

// --------------------------------------------------------------------------
// Internal resolution
// --------------------------------------------------------------------------

// armTimeout installs the deadline timer. Called after the request was
// handed to the connection, so the timer can only ever fire on a bound
// handle and its Abandon always unmaps the pending entry. A response that
// beat the arming already resolved the handle; no timer is started then.
func (h *Handle) armTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Resolved() {
		return
	}
	h.timer = time.AfterFunc(d, h.expire)
}

// disarm stops the deadline timer once the handle resolved.
func (h *Handle) disarm() {
	h.mu.Lock()
	t := h.timer
	h.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

// expire is the deadline path: identical to cancellation except for the
// error kind.
func (h *Handle) expire() {
	if h.Resolved() {
		return
	}
	if c, id := h.binding(); c != nil {
		c.Abandon(id)
	}
	h.resolve(nil, common.NewError(common.KindTimeout, "request timed out"))
}

// resolve writes the slot exactly once. Losers of the race are ignored.
func (h *Handle) resolve(value []byte, err error) bool {
	if !h.state.CompareAndSwap(statePending, stateResolved) {
		return false
	}

	h.value = value
	h.err = err
	h.disarm()

	if err != nil {
		metrics.GetOrCreateCounter(fmt.Sprintf(`kvlink_request_failures_total{kind=%q}`, common.KindOf(err))).Inc()
	}

	close(h.done)

	if h.notify != nil {
		h.notify(value, err)
	}
	return true
}
