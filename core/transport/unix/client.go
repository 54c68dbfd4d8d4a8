package unix

import (
	"fmt"
	"net"
	"time"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport"
)

// clientConnector implements the IClientConnector interface for Unix sockets
type clientConnector struct{}

// NewClientConnector creates a new Unix socket client connector
func NewClientConnector() transport.IClientConnector {
	return &clientConnector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "unix"
}

func (c *clientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		return net.DialTimeout("unix", endpoint, timeout)
	}
	return net.Dial("unix", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return fmt.Errorf("expected *net.UnixConn, got %T", conn)
	}

	// Socket buffers (TCP options do not apply here)
	if size := config.Transport.ReadBufferSize; size > 0 {
		if err := unixConn.SetReadBuffer(size); err != nil {
			return fmt.Errorf("failed to set read buffer: %v", err)
		}
	}
	if size := config.Transport.WriteBufferSize; size > 0 {
		if err := unixConn.SetWriteBuffer(size); err != nil {
			return fmt.Errorf("failed to set write buffer: %v", err)
		}
	}

	return nil
}
