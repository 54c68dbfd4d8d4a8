// Package stubnode provides a minimal in-memory backend node speaking the
// kvlink frame protocol. It exists so that the client core can be tested,
// benchmarked and demonstrated without a real store deployment; it is not a
// database.
package stubnode
