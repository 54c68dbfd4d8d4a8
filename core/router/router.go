package router

import (
	"sort"
	"sync/atomic"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/pool"
	"github.com/kvlink/kvlink/core/transport/base"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("router")

// Router picks the connection a request is dispatched over.
type Router struct {
	pool     *pool.Pool
	provider ITopologyProvider
	part     IPartitioner
	pref     common.ReplicaPreference

	rr        atomic.Uint64 // cursor for hint-less requests
	replicaRR atomic.Uint64 // cursor for round-robin replica reads
}

// New creates a router over the given pool and topology provider. A nil
// partitioner defaults to the CRC16 scheme.
func New(p *pool.Pool, provider ITopologyProvider, part IPartitioner, pref common.ReplicaPreference) *Router {
	if part == nil {
		part = NewCRC16Partitioner()
	}
	return &Router{
		pool:     p,
		provider: provider,
		part:     part,
		pref:     pref,
	}
}

// Select returns the connection the request should use, or a KindRouting
// error when no eligible connection exists.
func (r *Router) Select(hint common.RouteHint) (*base.Conn, error) {
	topo := r.provider.Topology()

	// Rule 1: explicit node hint
	if hint.Node != "" {
		conn, err := r.pool.GetOrCreate(hint.Node, topo.Address(hint.Node))
		if err != nil || !conn.Ready() {
			return nil, common.Errorf(common.KindRouting, "node %s has no ready connection", hint.Node)
		}
		return conn, nil
	}

	// Rule 2: key derived target
	if hint.Key != "" {
		return r.selectByKey(hint.Key, topo)
	}

	// Rule 3: any ready connection, round robin, ties by lowest node ID
	conns := r.pool.ReadyConns()
	if len(conns) == 0 {
		return nil, common.NewError(common.KindRouting, "no ready connections")
	}
	return conns[r.rr.Add(1)%uint64(len(conns))], nil
}

// Slot exposes the partitioner, mainly for diagnostics and tests.
func (r *Router) Slot(key string) uint16 {
	return r.part.Slot(key)
}

// selectByKey derives the slot and walks the slot's candidate nodes in
// preference order, returning the first one with a ready connection.
func (r *Router) selectByKey(key string, topo *Topology) (*base.Conn, error) {
	slot := r.part.Slot(key)
	sr := topo.Lookup(slot)
	if sr == nil {
		return nil, common.Errorf(common.KindRouting, "no node owns slot %d", slot)
	}

	for _, node := range r.candidates(sr) {
		conn, err := r.pool.GetOrCreate(node, topo.Address(node))
		if err != nil {
			Logger.Debugf("Candidate %s for slot %d not usable: %v", node, slot, err)
			continue
		}
		if conn.Ready() {
			return conn, nil
		}
	}

	return nil, common.Errorf(common.KindRouting, "no ready connection for slot %d", slot)
}

// candidates orders the slot's nodes according to the replica preference.
// Replicas are sorted by node ID first so that every ordering is
// deterministic.
func (r *Router) candidates(sr *SlotRange) []string {
	replicas := make([]string, len(sr.Replicas))
	copy(replicas, sr.Replicas)
	sort.Strings(replicas)

	switch r.pref {
	case common.PreferReplica:
		return append(replicas, sr.Primary)

	case common.RoundRobinReplicas:
		// Rotate over primary and replicas; the fallback order after the
		// rotation start keeps every node reachable.
		all := append(replicas, sr.Primary)
		sort.Strings(all)
		start := int(r.replicaRR.Add(1) % uint64(len(all)))
		rotated := make([]string, 0, len(all))
		for i := 0; i < len(all); i++ {
			rotated = append(rotated, all[(start+i)%len(all)])
		}
		return rotated

	default: // PrimaryOnly
		return []string{sr.Primary}
	}
}
