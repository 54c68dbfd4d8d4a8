package tcp

import (
	"net"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport"
)

// serverConnector implements the IServerConnector interface for TCP sockets
type serverConnector struct{}

// NewServerConnector creates a new TCP server connector
func NewServerConnector() transport.IServerConnector {
	return &serverConnector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IServerConnector)
// --------------------------------------------------------------------------

func (s *serverConnector) GetName() string {
	return "tcp"
}

func (s *serverConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Endpoint)
}
