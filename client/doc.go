// Package client provides the high-level kvlink client API. It wires the
// core components together - pool, router, dispatcher, serializer - and
// exposes both an asynchronous handle-based interface and blocking
// convenience methods for the built-in request types.
//
// Foreign runtimes do not use this package directly; they go through the
// bridge package, which adds callback plumbing and panic isolation on top
// of the same dispatcher.
package client
