// Package serializer provides message serialization for the kvlink client
// core. It defines a common interface and multiple implementations for
// turning common.Message values into the opaque payload bytes the dispatcher
// carries, and back.
//
// Key Components:
//
//   - ISerializer: Core interface that all serializer implementations must
//     satisfy.
//
//   - binarySerializerImpl: Custom binary format optimized for speed and
//     space efficiency. Uses a flag-based approach to encode only present
//     fields, resulting in compact serialized data with minimal overhead.
//     Recommended for production use.
//
//   - jsonSerializerImpl: JSON encoding, useful for debugging or
//     interoperability with other systems, but with lower performance.
//
//   - gobSerializerImpl: Go's built-in gob encoding, offering good
//     compatibility with Go's type system but with larger serialized sizes.
//
// Thread Safety:
//
//	All serializer implementations are stateless and safe for concurrent use
//	across multiple goroutines without additional synchronization.
package serializer
