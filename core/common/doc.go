// Package common contains the shared building blocks of the kvlink core:
// the client configuration structures, the error taxonomy used across all
// core packages, the logging setup and the Message protocol that the
// serializer package encodes into the opaque payloads carried by the
// dispatcher.
//
// The package has no dependencies on other core packages so that every
// component (transport, pool, router, dispatch) can import it freely.
package common
