// Package cmd implements the command-line interface for kvlink. It provides
// a hierarchical command structure for talking to a cluster as a client and
// for running local stub nodes.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations against a cluster (get, set, delete, etc.)
//   - stub: Command for running a local in-memory stub node
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See kvlink -help for a list of all commands.
package cmd
