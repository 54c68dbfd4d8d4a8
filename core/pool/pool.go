package pool

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport"
	"github.com/kvlink/kvlink/core/transport/base"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/singleflight"
)

var Logger = logger.GetLogger("pool")

var metricReconnects = metrics.GetOrCreateCounter("kvlink_reconnects_total")

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

// slot holds one connection of a node, replaced in place on reconnect.
type slot struct {
	conn         *base.Conn
	reconnecting atomic.Bool
}

// nodeEntry owns all connections of one backend node.
type nodeEntry struct {
	node     string
	endpoint string

	mu    sync.RWMutex // guards the conn pointers inside slots
	slots []*slot
	rr    atomic.Uint64 // round robin cursor over the slots
}

// readyConn returns a ready connection of this entry, preferring round
// robin over the slots, or nil when none is ready.
func (e *nodeEntry) readyConn() *base.Conn {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n := len(e.slots)
	if n == 0 {
		return nil
	}
	start := e.rr.Add(1)
	for i := 0; i < n; i++ {
		s := e.slots[(start+uint64(i))%uint64(n)]
		if s.conn != nil && s.conn.Ready() {
			return s.conn
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Pool
// --------------------------------------------------------------------------

// Pool owns the set of connections to all known backend nodes.
type Pool struct {
	connector transport.IClientConnector
	conf      common.ClientConfig

	entries   *xsync.MapOf[string, *nodeEntry]
	dialGroup singleflight.Group

	closed atomic.Bool
	stopCh chan struct{}
	wg     sync.WaitGroup // running reconnect loops
}

// New creates an empty pool. Nodes are added with AddNode or Connect.
func New(connector transport.IClientConnector, conf common.ClientConfig) *Pool {
	return &Pool{
		connector: connector,
		conf:      conf,
		entries:   xsync.NewMapOf[string, *nodeEntry](),
		stopCh:    make(chan struct{}),
	}
}

// Connect adds every configured endpoint as a node (node identity ==
// endpoint address) and dials its connections. Individual dial failures are
// logged and handed to the reconnect loop; only a completely unreachable
// topology is an error.
func (p *Pool) Connect() error {
	endpoints := p.conf.Transport.Endpoints
	if len(endpoints) == 0 {
		return fmt.Errorf("no endpoints provided")
	}

	for _, endpoint := range endpoints {
		if err := p.AddNode(endpoint, endpoint); err != nil {
			Logger.Warningf("Failed to connect to %s: %v", endpoint, err)
		}
	}

	if len(p.ReadyConns()) == 0 {
		return common.NewError(common.KindConnect, "failed to connect to any endpoint")
	}

	Logger.Infof("Connected to %d of %d endpoints using %s transport",
		len(p.ReadyConns()), len(endpoints), p.connector.GetName())

	return nil
}

// AddNode registers a node and dials its connections. Slots that fail to
// dial enter the reconnect loop. An error is returned when not a single
// connection could be established.
func (p *Pool) AddNode(node, endpoint string) error {
	if p.closed.Load() {
		return common.NewError(common.KindConnect, "pool is closed")
	}

	connsPerNode := 1
	if p.conf.Transport.ConnectionsPerEndpoint > 0 {
		connsPerNode = p.conf.Transport.ConnectionsPerEndpoint
	}

	entry := &nodeEntry{
		node:     node,
		endpoint: endpoint,
		slots:    make([]*slot, connsPerNode),
	}
	for i := range entry.slots {
		entry.slots[i] = &slot{}
	}

	actual, loaded := p.entries.LoadOrStore(node, entry)
	if loaded {
		// Node already known, nothing to dial
		return nil
	}

	ready := 0
	for i, s := range actual.slots {
		conn, err := base.Dial(node, endpoint, p.connector, p.conf, p.handleFailure)
		if err != nil {
			Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connsPerNode, err)
			p.scheduleReconnect(actual, s)
			continue
		}
		actual.mu.Lock()
		s.conn = conn
		actual.mu.Unlock()
		ready++
	}

	if ready == 0 {
		return common.Errorf(common.KindConnect, "failed to establish any connection to %s", endpoint)
	}
	return nil
}

// GetOrCreate returns a ready connection to the node, registering and
// dialing the node first when it is unknown. Concurrent calls for the same
// node share a single dial.
func (p *Pool) GetOrCreate(node, endpoint string) (*base.Conn, error) {
	if conn := p.Get(node); conn != nil {
		return conn, nil
	}

	_, err, _ := p.dialGroup.Do(node, func() (interface{}, error) {
		if _, known := p.entries.Load(node); known {
			return nil, nil
		}
		return nil, p.AddNode(node, endpoint)
	})
	if err != nil {
		return nil, err
	}

	conn := p.Get(node)
	if conn == nil {
		return nil, common.Errorf(common.KindRouting, "no ready connection to node %s", node)
	}
	return conn, nil
}

// Get returns a ready connection to the node, or nil.
func (p *Pool) Get(node string) *base.Conn {
	entry, ok := p.entries.Load(node)
	if !ok {
		return nil
	}
	return entry.readyConn()
}

// MarkFailed force-closes every connection of the node (failing its
// in-flight requests) and schedules reconnects.
func (p *Pool) MarkFailed(node string) {
	entry, ok := p.entries.Load(node)
	if !ok {
		return
	}

	entry.mu.Lock()
	conns := make([]*base.Conn, 0, len(entry.slots))
	for _, s := range entry.slots {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	entry.mu.Unlock()

	for _, conn := range conns {
		// Close fails the in-flight requests; the reconnect is
		// scheduled explicitly since Close does not notify.
		_ = conn.Close()
	}
	for _, s := range entry.slots {
		p.scheduleReconnect(entry, s)
	}
}

// Drain lets the node's connections finish their in-flight requests, then
// removes the node. New requests are not routed to it anymore.
func (p *Pool) Drain(node string) {
	entry, ok := p.entries.LoadAndDelete(node)
	if !ok {
		return
	}

	entry.mu.RLock()
	defer entry.mu.RUnlock()
	for _, s := range entry.slots {
		if s.conn != nil {
			s.conn.Drain()
		}
	}
}

// Nodes returns the known node identities in ascending order.
func (p *Pool) Nodes() []string {
	var nodes []string
	p.entries.Range(func(node string, _ *nodeEntry) bool {
		nodes = append(nodes, node)
		return true
	})
	sort.Strings(nodes)
	return nodes
}

// ReadyConns returns one ready connection per ready node, ordered by node
// identity so that tie-breaking stays deterministic.
func (p *Pool) ReadyConns() []*base.Conn {
	var conns []*base.Conn
	p.entries.Range(func(_ string, entry *nodeEntry) bool {
		if conn := entry.readyConn(); conn != nil {
			conns = append(conns, conn)
		}
		return true
	})
	sort.Slice(conns, func(i, j int) bool { return conns[i].Node() < conns[j].Node() })
	return conns
}

// Close tears down every connection and stops all reconnect loops.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.stopCh)

	p.entries.Range(func(node string, entry *nodeEntry) bool {
		entry.mu.Lock()
		for _, s := range entry.slots {
			if s.conn != nil {
				_ = s.conn.Close()
			}
		}
		entry.mu.Unlock()
		p.entries.Delete(node)
		return true
	})

	p.wg.Wait()
	return nil
}

// --------------------------------------------------------------------------
// Reconnect logic
// --------------------------------------------------------------------------

// handleFailure is installed as the failure hook of every dialed connection.
func (p *Pool) handleFailure(conn *base.Conn, cause error) {
	if p.closed.Load() {
		return
	}

	entry, ok := p.entries.Load(conn.Node())
	if !ok {
		return
	}

	entry.mu.RLock()
	var failed *slot
	for _, s := range entry.slots {
		if s.conn == conn {
			failed = s
			break
		}
	}
	entry.mu.RUnlock()

	if failed != nil {
		p.scheduleReconnect(entry, failed)
	}
}

// scheduleReconnect starts at most one reconnect loop per slot.
func (p *Pool) scheduleReconnect(entry *nodeEntry, s *slot) {
	if p.closed.Load() {
		return
	}
	if !s.reconnecting.CompareAndSwap(false, true) {
		return
	}

	p.wg.Add(1)
	go p.reconnectLoop(entry, s)
}

// reconnectLoop retries the slot's connection with exponential backoff
// until it succeeds, the attempt budget is exhausted or the pool closes.
func (p *Pool) reconnectLoop(entry *nodeEntry, s *slot) {
	defer p.wg.Done()
	defer s.reconnecting.Store(false)

	backoff := NewBackoff(p.conf)
	for {
		delay, ok := backoff.Next()
		if !ok {
			Logger.Errorf("Giving up on %s after %d reconnect attempts", entry.endpoint, backoff.Attempt())
			return
		}

		select {
		case <-p.stopCh:
			return
		case <-time.After(delay):
		}

		conn, err := base.Dial(entry.node, entry.endpoint, p.connector, p.conf, p.handleFailure)
		if err != nil {
			Logger.Debugf("Reconnect attempt %d to %s failed: %v", backoff.Attempt(), entry.endpoint, err)
			continue
		}

		entry.mu.Lock()
		if p.closed.Load() {
			// Close already swept this entry; a conn stored now would
			// never be torn down.
			entry.mu.Unlock()
			_ = conn.Close()
			return
		}
		s.conn = conn
		entry.mu.Unlock()

		metricReconnects.Inc()
		Logger.Infof("Reconnected to %s after %d attempts", entry.endpoint, backoff.Attempt())
		return
	}
}
