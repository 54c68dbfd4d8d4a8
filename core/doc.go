// Package core contains the connection and dispatch engine of kvlink: an
// asynchronous, multiplexed request/response layer between a clustered
// key-value store and any number of concurrent callers.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities used across the system,
//     including the Message protocol, the error taxonomy, configuration
//     structures and logging.
//
//   - transport: Network communication abstractions with pluggable
//     connectors (TCP, Unix sockets), the frame codec and the multiplexed
//     connection type.
//
//   - pool: Connection ownership, liveness tracking and reconnection with
//     bounded exponential backoff.
//
//   - router: Connection selection by explicit node hint, key-derived slot
//     (with replica read preferences) or round robin.
//
//   - dispatch: The multiplexing dispatcher and the completion handles
//     callers wait on.
//
//   - serializer: Message serialization with multiple format options
//     (Binary, JSON, GOB) for converting between Message objects and the
//     opaque payloads the dispatcher carries.
//
//   - stubnode: A frame-speaking in-memory backend used by tests,
//     benchmarks and local development.
package core
