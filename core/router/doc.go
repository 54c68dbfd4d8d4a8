// Package router decides which connection a request is sent over.
//
// Selection rules, evaluated in order:
//
//  1. an explicit node hint routes to exactly that node, failing with a
//     routing error when it has no ready connection;
//
//  2. a key hint derives the target slot through the pluggable partitioner
//     (CRC16 over the hash-tag, 16384 slots by default) and picks a node
//     from the slot's replica set according to the configured replica read
//     preference;
//
//  3. without any hint the router round-robins over all ready connections.
//
// Ties are always broken by the lowest node identifier so that routing is
// deterministic and testable.
//
// The topology (nodes, roles, slot assignments) comes from a pluggable
// provider; a static provider that splits the slot space evenly over the
// configured endpoints is included. Topology discovery protocols are out
// of scope.
package router
