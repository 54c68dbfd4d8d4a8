package bridge

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/serializer"
	"github.com/kvlink/kvlink/core/stubnode"
	"github.com/kvlink/kvlink/core/transport/tcp"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

type resolution struct {
	index   uint64
	value   []byte
	kind    common.ErrKind
	message string
	failed  bool
}

// callbackRecorder collects callback invocations and counts them per index.
type callbackRecorder struct {
	mu     sync.Mutex
	counts map[uint64]int
	last   map[uint64]resolution
	fired  chan resolution
}

func newRecorder() *callbackRecorder {
	return &callbackRecorder{
		counts: make(map[uint64]int),
		last:   make(map[uint64]resolution),
		fired:  make(chan resolution, 64),
	}
}

func (r *callbackRecorder) success(index uint64, value []byte) {
	r.record(resolution{index: index, value: value})
}

func (r *callbackRecorder) failure(index uint64, kind common.ErrKind, message string) {
	r.record(resolution{index: index, kind: kind, message: message, failed: true})
}

func (r *callbackRecorder) record(res resolution) {
	r.mu.Lock()
	r.counts[res.index]++
	r.last[res.index] = res
	r.mu.Unlock()
	r.fired <- res
}

func (r *callbackRecorder) wait(t *testing.T, index uint64) resolution {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case res := <-r.fired:
			if res.index == index {
				return res
			}
		case <-deadline:
			t.Fatalf("no callback fired for index %d", index)
		}
	}
}

func (r *callbackRecorder) count(index uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[index]
}

// startStubNode runs an in-memory stub node on a free port.
func startStubNode(t *testing.T, ser serializer.ISerializer) string {
	t.Helper()

	conf := common.ServerConfig{
		Endpoint:          "127.0.0.1:0",
		TimeoutSecond:     5,
		BufferSize:        64 * 1024,
		MaxWorkersPerConn: 8,
	}

	node := stubnode.New(tcp.NewServerConnector(), ser, conf)
	go func() { _ = node.Listen(conf) }()
	t.Cleanup(func() { _ = node.Close() })

	deadline := time.After(5 * time.Second)
	for node.Server().Addr() == nil {
		select {
		case <-deadline:
			t.Fatal("stub node never started listening")
		case <-time.After(5 * time.Millisecond):
		}
	}
	return node.Server().Addr().String()
}

func bridgeConf(endpoints ...string) common.ClientConfig {
	return common.ClientConfig{
		TimeoutSecond:        5,
		ConnectTimeoutSecond: 2,
		Transport: common.ClientTransportConfig{
			Endpoints:              endpoints,
			ConnectionsPerEndpoint: 1,
		},
	}
}

// The bridge's client uses the binary serializer, so payloads crossing the
// boundary are binary-encoded messages.
func encodeRequest(t *testing.T, msg *common.Message) []byte {
	t.Helper()
	payload, err := serializer.NewBinarySerializer().Serialize(*msg)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	return payload
}

func decodeReply(t *testing.T, payload []byte) *common.Message {
	t.Helper()
	reply := &common.Message{}
	if err := serializer.NewBinarySerializer().Deserialize(payload, reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	return reply
}

func testBridge(t *testing.T, rec *callbackRecorder, endpoints ...string) *Bridge {
	t.Helper()
	b, err := New(bridgeConf(endpoints...), tcp.NewClientConnector(), rec.success, rec.failure)
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	return b
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestBridgeDispatchSuccess(t *testing.T) {
	addr := startStubNode(t, serializer.NewBinarySerializer())
	rec := newRecorder()
	b := testBridge(t, rec, addr)

	b.Dispatch(1, encodeRequest(t, common.NewSetRequest("k", []byte("v"))), common.RouteHint{Key: "k"})
	res := rec.wait(t, 1)
	if res.failed {
		t.Fatalf("set failed: %s", res.message)
	}

	b.Dispatch(2, encodeRequest(t, common.NewGetRequest("k")), common.RouteHint{Key: "k"})
	res = rec.wait(t, 2)
	if res.failed {
		t.Fatalf("get failed: %s", res.message)
	}
	reply := decodeReply(t, res.value)
	if !bytes.Equal(reply.Value, []byte("v")) {
		t.Errorf("expected value v, got %q", reply.Value)
	}

	if rec.count(1) != 1 || rec.count(2) != 1 {
		t.Errorf("expected exactly one callback per index, got %d and %d", rec.count(1), rec.count(2))
	}
}

func TestBridgeDispatchConcurrent(t *testing.T) {
	addr := startStubNode(t, serializer.NewBinarySerializer())
	rec := newRecorder()
	b := testBridge(t, rec, addr)

	const n = 32
	var wg sync.WaitGroup
	for i := uint64(1); i <= n; i++ {
		wg.Add(1)
		go func(index uint64) {
			defer wg.Done()
			b.Dispatch(index, encodeRequest(t, common.NewPingRequest()), common.RouteHint{})
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	deadline := time.After(10 * time.Second)
	for len(seen) < n {
		select {
		case res := <-rec.fired:
			if res.failed {
				t.Fatalf("index %d failed: %s", res.index, res.message)
			}
			if seen[res.index] {
				t.Fatalf("index %d reported twice", res.index)
			}
			seen[res.index] = true
		case <-deadline:
			t.Fatalf("only %d of %d callbacks fired", len(seen), n)
		}
	}
}

func TestBridgeRoutingFailureReported(t *testing.T) {
	addr := startStubNode(t, serializer.NewBinarySerializer())
	rec := newRecorder()
	b := testBridge(t, rec, addr)

	b.Dispatch(7, encodeRequest(t, common.NewPingRequest()), common.HintToNode("node-missing"))

	res := rec.wait(t, 7)
	if !res.failed {
		t.Fatal("expected the failure callback")
	}
	if res.kind != common.KindRouting {
		t.Errorf("expected KindRouting, got %s", res.kind)
	}
	if rec.count(7) != 1 {
		t.Errorf("expected exactly one callback, got %d", rec.count(7))
	}
}

func TestBridgeDispatchAfterClose(t *testing.T) {
	addr := startStubNode(t, serializer.NewBinarySerializer())
	rec := newRecorder()
	b := testBridge(t, rec, addr)

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	b.Dispatch(9, encodeRequest(t, common.NewPingRequest()), common.RouteHint{})
	res := rec.wait(t, 9)
	if !res.failed || res.kind != common.KindConnectionClosed {
		t.Errorf("expected KindConnectionClosed after close, got %+v", res)
	}

	// Close is idempotent
	if err := b.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestBridgePing(t *testing.T) {
	addr := startStubNode(t, serializer.NewBinarySerializer())
	rec := newRecorder()
	b := testBridge(t, rec, addr)

	b.Ping(11)
	res := rec.wait(t, 11)
	if res.failed {
		t.Fatalf("ping failed: %s", res.message)
	}
}

func TestBridgeSurvivesPanickingCallback(t *testing.T) {
	addr := startStubNode(t, serializer.NewBinarySerializer())

	var mu sync.Mutex
	calls := 0
	fired := make(chan struct{}, 8)

	b, err := New(bridgeConf(addr), tcp.NewClientConnector(),
		func(index uint64, value []byte) {
			mu.Lock()
			calls++
			mu.Unlock()
			fired <- struct{}{}
			panic("host callback misbehaves")
		},
		func(index uint64, kind common.ErrKind, message string) {
			fired <- struct{}{}
		},
	)
	if err != nil {
		t.Fatalf("failed to create bridge: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	// The panic in the success callback must not take anything down
	b.Dispatch(1, encodeRequest(t, common.NewPingRequest()), common.RouteHint{})
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}

	// And the bridge keeps working afterwards
	b.Dispatch(2, encodeRequest(t, common.NewPingRequest()), common.RouteHint{})
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("bridge stopped working after a callback panic")
	}

	mu.Lock()
	defer mu.Unlock()
	if calls != 2 {
		t.Errorf("expected 2 success callbacks, got %d", calls)
	}
}

func TestBridgeInitLogging(t *testing.T) {
	if got := InitLogging("debug"); got != "debug" {
		t.Errorf("expected level debug to be applied, got %q", got)
	}
	// Unknown levels fall back instead of panicking across the boundary
	if got := InitLogging("verbose"); got != "warn" {
		t.Errorf("expected fallback to warn, got %q", got)
	}
}
