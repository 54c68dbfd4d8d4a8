// Package base implements the transport-medium independent parts of the
// kvlink connection layer: the frame codec, the multiplexed Conn type and
// the stub node server.
//
// A Conn owns exactly one byte-stream connection to one backend node and
// multiplexes any number of logical requests over it. Each request frame
// carries a correlation ID that is unique among the connection's in-flight
// requests; a single reader goroutine decodes response frames in the order
// the bytes arrive and resolves the matching pending entries in exactly
// that order. Writes are serialized by a mutex, so requests sent over one
// connection reach the backend in submission order.
//
// Conn guarantees that every request registered with it resolves exactly
// once: with the backend's response, with a protocol error when the stream
// is corrupt, or with a connection-closed error when the connection is
// torn down while the request is still in flight.
package base
