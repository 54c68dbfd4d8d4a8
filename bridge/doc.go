// Package bridge is the foreign-caller boundary of kvlink. A host runtime
// (through whatever native-interface glue it uses) registers a pair of
// callbacks and submits opaque request payloads tagged with a baton index;
// the bridge guarantees that for every accepted dispatch exactly one of the
// callbacks fires, carrying that index back so the caller can wake the
// right waiter.
//
// The core never learns the caller's concurrency model: callbacks run on
// the resolving goroutine and are expected to hand off to the host
// runtime's own scheduler immediately.
//
// Panics - in the callbacks or in the core - are caught at the boundary
// and reported through the failure callback instead of unwinding into the
// foreign stack.
package bridge
