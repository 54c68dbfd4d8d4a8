package router

import (
	"sort"
	"sync/atomic"
)

// --------------------------------------------------------------------------
// Topology model
// --------------------------------------------------------------------------

// Role is the role of a node within its slot ranges.
type Role uint8

const (
	RolePrimary Role = iota
	RoleReplica
)

// String returns the string representation of a Role.
func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "primary"
	case RoleReplica:
		return "replica"
	default:
		return "unknown"
	}
}

// Node describes one backend node of the topology.
type Node struct {
	// ID is the node identity the pool routes by
	ID string
	// Address is the endpoint to dial
	Address string
	// Role of the node
	Role Role
	// PrimaryID names the primary a replica follows (empty for primaries)
	PrimaryID string
}

// SlotRange assigns a contiguous range of slots to a primary and its
// replicas. Start and End are inclusive.
type SlotRange struct {
	Start    uint16
	End      uint16
	Primary  string
	Replicas []string
}

// Topology is an immutable snapshot of the known nodes and slot
// assignments. Providers publish fresh snapshots instead of mutating.
type Topology struct {
	Nodes []Node
	Slots []SlotRange
}

// Lookup returns the slot range containing the slot, or nil.
func (t *Topology) Lookup(slot uint16) *SlotRange {
	for i := range t.Slots {
		if slot >= t.Slots[i].Start && slot <= t.Slots[i].End {
			return &t.Slots[i]
		}
	}
	return nil
}

// NodeByID returns the node with the given identity, or nil.
func (t *Topology) NodeByID(id string) *Node {
	for i := range t.Nodes {
		if t.Nodes[i].ID == id {
			return &t.Nodes[i]
		}
	}
	return nil
}

// Address resolves a node identity to its dial address. Unknown nodes fall
// back to the identity itself (static topologies use the address as ID).
func (t *Topology) Address(id string) string {
	if n := t.NodeByID(id); n != nil {
		return n.Address
	}
	return id
}

// --------------------------------------------------------------------------
// Topology provider
// --------------------------------------------------------------------------

// ITopologyProvider supplies the router with topology snapshots. Discovery
// protocols are store specific and live behind this interface.
type ITopologyProvider interface {
	// Topology returns the current snapshot. Must never return nil.
	Topology() *Topology
}

// StaticProvider serves a fixed topology, with the option to swap in a new
// snapshot atomically (readers never observe a half-updated topology).
type StaticProvider struct {
	topo atomic.Pointer[Topology]
}

// NewStaticProvider creates a provider serving the given snapshot.
func NewStaticProvider(topo *Topology) *StaticProvider {
	p := &StaticProvider{}
	p.topo.Store(topo)
	return p
}

// NewUniformProvider builds a topology that splits the slot space evenly
// over the given endpoints (all primaries, no replicas) and serves it. This
// is the default for clients configured with a plain endpoint list.
func NewUniformProvider(endpoints []string) *StaticProvider {
	nodes := make([]string, len(endpoints))
	copy(nodes, endpoints)
	sort.Strings(nodes)

	topo := &Topology{}
	n := len(nodes)
	if n > 0 {
		per := SlotCount / n
		for i, node := range nodes {
			start := uint16(i * per)
			end := uint16((i+1)*per - 1)
			if i == n-1 {
				end = SlotCount - 1
			}
			topo.Nodes = append(topo.Nodes, Node{ID: node, Address: node, Role: RolePrimary})
			topo.Slots = append(topo.Slots, SlotRange{Start: start, End: end, Primary: node})
		}
	}
	return NewStaticProvider(topo)
}

// Topology implements ITopologyProvider.
func (p *StaticProvider) Topology() *Topology {
	return p.topo.Load()
}

// Update atomically swaps the served snapshot.
func (p *StaticProvider) Update(topo *Topology) {
	p.topo.Store(topo)
}
