// Package dispatch is the multiplexing core of kvlink. It accepts requests
// from any number of concurrent callers, routes each one to a connection,
// and hands back a completion handle that resolves exactly once with the
// correlated response, a failure or a cancellation.
//
// Per request, the lifecycle is
//
//	Submitted -> Sent -> AwaitingResponse -> Completed | Failed | Cancelled
//
// Submit never blocks on the network round trip: routing and backpressure
// problems are returned synchronously, everything later arrives through the
// handle. Responses decoded on one connection resolve handles in decode
// order; requests on different connections carry no relative ordering.
//
// Cancellation and timeouts are best effort and non-blocking: the pending
// mapping is removed so a late response is dropped as unmatched, but bytes
// already written are not unsent.
package dispatch
