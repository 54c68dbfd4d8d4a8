package bridge

import (
	"strings"
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
	"github.com/kvlink/kvlink/client"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/serializer"
	"github.com/kvlink/kvlink/core/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("bridge")

var metricPanics = metrics.GetOrCreateCounter("kvlink_bridge_panics_total")

// SuccessFunc reports a completed request back to the foreign caller. The
// value is the raw response payload; ownership passes to the callback.
type SuccessFunc func(index uint64, value []byte)

// FailureFunc reports a failed request back to the foreign caller.
type FailureFunc func(index uint64, kind common.ErrKind, message string)

// Bridge exposes the client core to a foreign runtime. Requests are opaque
// byte payloads tagged with a caller-chosen baton index; resolutions come
// back through the registered callback pair, each index exactly once.
type Bridge struct {
	client    *client.Client
	onSuccess SuccessFunc
	onFailure FailureFunc
	closed    atomic.Bool
}

// InitLogging configures the log level of every core package and returns
// the level actually applied. An unknown level falls back to warn rather
// than erroring: the host runtime calls this once at startup and has no
// good way to handle a failure.
func InitLogging(level string) string {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		level = "warn"
	}
	common.InitLoggers(level)
	return level
}

// New connects the client core and registers the callback pair. Both
// callbacks must be non-nil and must not block: they run on the resolving
// goroutine and are expected to hand off to the host runtime immediately.
func New(conf common.ClientConfig, connector transport.IClientConnector, onSuccess SuccessFunc, onFailure FailureFunc) (*Bridge, error) {
	if onSuccess == nil || onFailure == nil {
		return nil, common.NewError(common.KindUnspecified, "bridge callbacks must be non-nil")
	}

	// The payloads crossing the bridge are pre-encoded by the caller, so
	// the serializer only backs the diagnostic helpers (Ping).
	c, err := client.New(conf, connector, serializer.NewBinarySerializer())
	if err != nil {
		return nil, err
	}

	return &Bridge{
		client:    c,
		onSuccess: onSuccess,
		onFailure: onFailure,
	}, nil
}

// --------------------------------------------------------------------------
// Foreign entry points
// --------------------------------------------------------------------------

// Dispatch submits one pre-encoded request. Whatever happens - response,
// connection loss, timeout, overload, routing failure, even a panic inside
// the core - exactly one of the two callbacks fires for the index.
//
// Dispatch itself returns immediately after the frame is handed to the
// transport and never blocks on the network.
func (b *Bridge) Dispatch(index uint64, payload []byte, hint common.RouteHint) {
	// The notify callback fires for every request that reached a
	// connection; routing failures are only visible in the Dispatch error
	// and a panic in neither. The flag arbitrates between all three paths
	// so the caller sees the index exactly once.
	reported := new(atomic.Bool)
	report := func(value []byte, err error) {
		if !reported.CompareAndSwap(false, true) {
			return
		}
		if err != nil {
			b.reportFailure(index, err)
			return
		}
		b.reportSuccess(index, value)
	}

	defer b.trap(index, reported)

	if b.closed.Load() {
		report(nil, common.NewError(common.KindConnectionClosed, "bridge is closed"))
		return
	}

	if _, err := b.client.Dispatch(payload, hint, report); err != nil {
		report(nil, err)
	}
}

// Ping probes an arbitrary ready connection, reporting through the
// callbacks like any other request.
func (b *Bridge) Ping(index uint64) {
	reported := new(atomic.Bool)
	defer b.trap(index, reported)

	if err := b.client.Ping(); err != nil {
		reported.Store(true)
		b.reportFailure(index, err)
		return
	}
	reported.Store(true)
	b.reportSuccess(index, nil)
}

// Close tears the client down. Outstanding requests resolve with
// KindConnectionClosed through the failure callback; further dispatches
// are rejected the same way.
func (b *Bridge) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	return b.client.Close()
}

// Client exposes the underlying client, mainly for diagnostics.
func (b *Bridge) Client() *client.Client {
	return b.client
}

// --------------------------------------------------------------------------
// Callback plumbing
// --------------------------------------------------------------------------

// reportSuccess invokes the success callback, shielding the core from a
// panicking host callback.
func (b *Bridge) reportSuccess(index uint64, value []byte) {
	defer b.recoverCallback(index, "success")
	b.onSuccess(index, value)
}

// reportFailure invokes the failure callback with the error's kind.
func (b *Bridge) reportFailure(index uint64, err error) {
	defer b.recoverCallback(index, "failure")
	b.onFailure(index, common.KindOf(err), err.Error())
}

// trap converts a panic escaping an entry point into a failure report,
// unless a callback already fired for the index. A panic must never unwind
// across the foreign boundary.
func (b *Bridge) trap(index uint64, reported *atomic.Bool) {
	r := recover()
	if r == nil {
		return
	}
	metricPanics.Inc()
	Logger.Errorf("recovered panic in bridge entry point (index %d): %v", index, r)

	if !reported.CompareAndSwap(false, true) {
		return
	}
	func() {
		defer b.recoverCallback(index, "failure")
		b.onFailure(index, common.KindUnspecified, "internal panic")
	}()
}

// recoverCallback swallows a panic raised by a host callback. There is
// nothing left to report to: the failure callback is the channel of last
// resort, so misbehavior is only logged.
func (b *Bridge) recoverCallback(index uint64, which string) {
	if r := recover(); r != nil {
		metricPanics.Inc()
		Logger.Errorf("recovered panic in %s callback (index %d): %v", which, index, r)
	}
}
