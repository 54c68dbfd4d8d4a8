// Package unix provides the Unix domain socket connectors for the kvlink
// connection layer. Useful when client and backend share a host.
package unix
