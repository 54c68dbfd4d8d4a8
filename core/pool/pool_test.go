package pool

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport/base"
)

// --------------------------------------------------------------------------
// Test helpers
// --------------------------------------------------------------------------

// testConnector dials plain TCP without socket tuning.
type testConnector struct{}

func (testConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("tcp", endpoint, timeout)
}

func (testConnector) GetName() string { return "test" }

func (testConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

// startListener accepts connections and keeps them open without ever
// writing. Enough for pool-level tests, which never exchange frames.
func startListener(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				buf := make([]byte, 4096)
				for {
					if _, err := conn.Read(buf); err != nil {
						_ = conn.Close()
						return
					}
				}
			}()
		}
	}()

	return ln.Addr().String()
}

func poolConf(endpoints ...string) common.ClientConfig {
	return common.ClientConfig{
		ConnectTimeoutSecond: 2,
		Transport: common.ClientTransportConfig{
			Endpoints:              endpoints,
			ConnectionsPerEndpoint: 1,
		},
		Pool: common.PoolConfig{
			ReconnectBackoffMinMs: 5,
			ReconnectBackoffMaxMs: 50,
		},
	}
}

// waitReady polls until the node has a ready connection or the deadline
// passes.
func waitReady(t *testing.T, p *Pool, node string) *base.Conn {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if conn := p.Get(node); conn != nil {
			return conn
		}
		select {
		case <-deadline:
			t.Fatalf("node %s never became ready", node)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestPoolConnect(t *testing.T) {
	addrA := startListener(t)
	addrB := startListener(t)

	p := New(testConnector{}, poolConf(addrA, addrB))
	defer p.Close()

	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	nodes := p.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %v", nodes)
	}

	conns := p.ReadyConns()
	if len(conns) != 2 {
		t.Fatalf("expected 2 ready connections, got %d", len(conns))
	}
	// ReadyConns orders by node identity
	if conns[0].Node() > conns[1].Node() {
		t.Errorf("expected connections ordered by node, got %s before %s", conns[0].Node(), conns[1].Node())
	}

	for _, node := range nodes {
		conn := p.Get(node)
		if conn == nil || !conn.Ready() {
			t.Errorf("expected ready connection for node %s", node)
		}
	}
}

func TestPoolConnectPartialFailure(t *testing.T) {
	// One live endpoint, one dead one: Connect succeeds as long as a
	// single connection is established.
	live := startListener(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	dead := ln.Addr().String()
	_ = ln.Close()

	conf := poolConf(live, dead)
	conf.Pool.ReconnectMaxAttempts = 1
	p := New(testConnector{}, conf)
	defer p.Close()

	if err := p.Connect(); err != nil {
		t.Fatalf("Connect with one live endpoint failed: %v", err)
	}
	if conn := p.Get(live); conn == nil {
		t.Error("expected ready connection to the live endpoint")
	}
}

func TestPoolConnectAllDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	dead := ln.Addr().String()
	_ = ln.Close()

	conf := poolConf(dead)
	conf.Pool.ReconnectMaxAttempts = 1
	p := New(testConnector{}, conf)
	defer p.Close()

	if err := p.Connect(); !common.IsKind(err, common.KindConnect) {
		t.Fatalf("expected KindConnect when no endpoint is reachable, got %v", err)
	}
}

func TestPoolGetOrCreate(t *testing.T) {
	addr := startListener(t)

	p := New(testConnector{}, poolConf())
	defer p.Close()

	// Unknown node gets dialed lazily
	conn, err := p.GetOrCreate("node-x", addr)
	if err != nil {
		t.Fatalf("GetOrCreate failed: %v", err)
	}
	if conn.Node() != "node-x" {
		t.Errorf("expected node-x, got %s", conn.Node())
	}

	// Second call reuses the existing connection
	again, err := p.GetOrCreate("node-x", addr)
	if err != nil {
		t.Fatalf("second GetOrCreate failed: %v", err)
	}
	if again.ID() != conn.ID() {
		t.Error("expected GetOrCreate to reuse the established connection")
	}
}

func TestPoolMarkFailedReconnects(t *testing.T) {
	addr := startListener(t)

	p := New(testConnector{}, poolConf(addr))
	defer p.Close()

	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	old := p.Get(addr)
	if old == nil {
		t.Fatal("expected a ready connection")
	}

	p.MarkFailed(addr)
	if old.State() != base.StateClosed {
		t.Errorf("expected the old connection to be closed, got %s", old.State())
	}

	// The reconnect loop replaces the connection
	fresh := waitReady(t, p, addr)
	if fresh.ID() == old.ID() {
		t.Error("expected a fresh connection after MarkFailed")
	}
}

func TestPoolReconnectOnFailureHook(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	addr := ln.Addr().String()

	// Accept, then slam the first connection shut to trigger the failure
	// hook; keep later connections alive.
	first := true
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			if first {
				first = false
				_ = conn.Close()
				continue
			}
			go func() {
				buf := make([]byte, 4096)
				for {
					if _, err := conn.Read(buf); err != nil {
						_ = conn.Close()
						return
					}
				}
			}()
		}
	}()

	p := New(testConnector{}, poolConf(addr))
	defer p.Close()

	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// The first connection dies as soon as its reader notices; the pool
	// must replace it without intervention.
	deadline := time.After(5 * time.Second)
	for {
		conn := p.Get(addr)
		if conn != nil && conn.Ready() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("pool never recovered from the connection failure")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPoolDrainRemovesNode(t *testing.T) {
	addr := startListener(t)

	p := New(testConnector{}, poolConf(addr))
	defer p.Close()

	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	p.Drain(addr)

	if conn := p.Get(addr); conn != nil {
		t.Error("expected no connection for a drained node")
	}
	if nodes := p.Nodes(); len(nodes) != 0 {
		t.Errorf("expected the drained node to be removed, got %v", nodes)
	}
}

func TestPoolClose(t *testing.T) {
	addr := startListener(t)

	p := New(testConnector{}, poolConf(addr))
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	conn := p.Get(addr)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if conn.State() != base.StateClosed {
		t.Errorf("expected connections to be closed, got %s", conn.State())
	}
	if len(p.Nodes()) != 0 {
		t.Error("expected no nodes after close")
	}
	if err := p.AddNode("node-y", addr); !common.IsKind(err, common.KindConnect) {
		t.Errorf("expected AddNode on a closed pool to fail, got %v", err)
	}

	// Close is idempotent
	if err := p.Close(); err != nil {
		t.Errorf("second Close returned error: %v", err)
	}
}

func TestPoolCloseDuringReconnect(t *testing.T) {
	// Listener that hands every accepted connection to the test so it can
	// verify they all end up closed.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	accepted := make(chan net.Conn, 16)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}
	}()

	addr := ln.Addr().String()
	p := New(testConnector{}, poolConf(addr))
	if err := p.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}

	// Close while the reconnect loop may be mid-dial. A reconnect that
	// wins the race must not leave its fresh connection behind.
	p.MarkFailed(addr)
	time.Sleep(2 * time.Millisecond)
	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Close waits for the reconnect loop, so every connection the backend
	// ever saw reads EOF now. The client side never writes, so anything
	// else means a leaked connection.
	time.Sleep(50 * time.Millisecond)
	for {
		select {
		case conn := <-accepted:
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			if _, err := conn.Read(make([]byte, 1)); !errors.Is(err, io.EOF) {
				t.Errorf("expected EOF on the backend side, got %v", err)
			}
			_ = conn.Close()
		default:
			return
		}
	}
}
