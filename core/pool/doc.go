// Package pool implements the connection pool/manager of the kvlink core.
//
// The pool exclusively owns every connection: it dials them, tracks their
// liveness, replaces failed ones through a bounded exponential backoff
// reconnect loop and tears them down on shutdown. One or more connections
// are kept per backend node (replica reads, pipelining); the router only
// ever sees Ready connections.
//
// The node table is read by the router on every request and mutated only by
// the reconnect and drain logic, so reads take a shared lock and never
// observe a half-updated entry.
package pool
