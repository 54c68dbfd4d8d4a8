// Package transport defines the pluggable connector interfaces of the
// kvlink connection layer. A connector knows how to establish (or listen
// for) byte-stream connections of one transport medium; everything above
// the raw net.Conn - framing, correlation, liveness - is implemented once
// in the base subpackage and shared by all media.
//
// The package is organized into several subpackages:
//
//   - base: the Conn type (one multiplexed connection to one backend node),
//     the frame codec and the stub node server used as a test and benchmark
//     backend.
//
//   - tcp: TCP connectors for clients and the stub server.
//
//   - unix: Unix domain socket connectors for clients and the stub server.
package transport
