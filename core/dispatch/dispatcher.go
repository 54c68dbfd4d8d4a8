package dispatch

import (
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/router"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("dispatch")

var (
	metricRequests       = metrics.GetOrCreateCounter("kvlink_requests_total")
	metricSubmitRejected = metrics.GetOrCreateCounter("kvlink_submit_rejected_total")
)

// Request is one opaque unit of work for the dispatcher. The payload is
// pre-encoded by the caller (usually through the serializer package); the
// dispatcher never inspects it.
type Request struct {
	// Payload is the encoded request
	Payload []byte
	// Hint tells the router where the request wants to go
	Hint common.RouteHint
	// Notify, when set, is invoked exactly once on resolution. It runs on
	// the resolving goroutine and must return quickly; callers bridging
	// into foreign runtimes hand off to their own scheduler here.
	Notify func(value []byte, err error)
}

// Dispatcher multiplexes requests from concurrent callers over the pooled
// connections.
type Dispatcher struct {
	router *router.Router
	conf   common.ClientConfig
}

// New creates a dispatcher routing through the given router.
func New(r *router.Router, conf common.ClientConfig) *Dispatcher {
	return &Dispatcher{
		router: r,
		conf:   conf,
	}
}

// Submit routes and sends the request, returning its completion handle.
// It returns as soon as the request frame is handed to the transport and
// never waits for the response.
//
// Routing, backpressure and write failures are returned synchronously with
// a nil handle; the request is guaranteed not to be in flight in that case.
// A Notify callback fires for every request that reached a connection,
// including synchronously rejected ones, and never for routing failures.
func (d *Dispatcher) Submit(req Request) (*Handle, error) {
	conn, err := d.router.Select(req.Hint)
	if err != nil {
		metricSubmitRejected.Inc()
		return nil, err
	}

	h := newHandle(req.Notify)

	if _, err := conn.Send(req.Payload, h); err != nil {
		// Resolve the handle as well: the notify callback must fire
		// exactly once no matter which path rejected the request. The
		// CAS inside makes this a no-op when a racing teardown already
		// resolved it.
		h.Fail(err)
		metricSubmitRejected.Inc()
		Logger.Debugf("Submit to %s rejected: %v", conn.Endpoint(), err)
		return nil, err
	}

	// Arm the deadline only once the request is bound to the connection:
	// an expiring timer then always finds the pending entry and unmaps it,
	// keeping the in-flight accounting exact on a silent backend.
	if t := d.conf.TimeoutSecond; t > 0 {
		h.armTimeout(time.Duration(t) * time.Second)
	}

	metricRequests.Inc()
	return h, nil
}
