package transport

import (
	"net"
	"time"

	"github.com/kvlink/kvlink/core/common"
)

// --------------------------------------------------------------------------
// Client Connector
// --------------------------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to the given endpoint.
	// A timeout of 0 means no connect deadline.
	Connect(endpoint string, timeout time.Duration) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.ClientConfig) error
}

// --------------------------------------------------------------------------
// Server Connector
// --------------------------------------------------------------------------

// ServerHandleFunc is called by the stub node server for every decoded
// request frame. It receives the request payload and returns the response
// payload to be written back with the same correlation ID.
type ServerHandleFunc func(req []byte) (resp []byte)

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string
}
