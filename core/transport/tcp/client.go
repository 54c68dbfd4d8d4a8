package tcp

import (
	"fmt"
	"net"
	"time"

	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/transport"
)

// clientConnector implements the IClientConnector interface for TCP sockets
type clientConnector struct{}

// NewClientConnector creates a new TCP client connector
func NewClientConnector() transport.IClientConnector {
	return &clientConnector{}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IClientConnector)
// --------------------------------------------------------------------------

func (c *clientConnector) GetName() string {
	return "tcp"
}

func (c *clientConnector) Connect(endpoint string, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		return net.DialTimeout("tcp", endpoint, timeout)
	}
	return net.Dial("tcp", endpoint)
}

func (c *clientConnector) UpgradeConnection(conn net.Conn, config common.ClientConfig) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return fmt.Errorf("expected *net.TCPConn, got %T", conn)
	}

	// Socket buffers
	if size := config.Transport.ReadBufferSize; size > 0 {
		if err := tcpConn.SetReadBuffer(size); err != nil {
			return fmt.Errorf("failed to set read buffer: %v", err)
		}
	}
	if size := config.Transport.WriteBufferSize; size > 0 {
		if err := tcpConn.SetWriteBuffer(size); err != nil {
			return fmt.Errorf("failed to set write buffer: %v", err)
		}
	}

	// TCP options
	if err := tcpConn.SetNoDelay(config.Transport.TCPNoDelay); err != nil {
		return fmt.Errorf("failed to set TCP_NODELAY: %v", err)
	}
	if sec := config.Transport.TCPKeepAliveSec; sec > 0 {
		if err := tcpConn.SetKeepAlive(true); err != nil {
			return fmt.Errorf("failed to enable keepalive: %v", err)
		}
		if err := tcpConn.SetKeepAlivePeriod(time.Duration(sec) * time.Second); err != nil {
			return fmt.Errorf("failed to set keepalive period: %v", err)
		}
	}
	if sec := config.Transport.TCPLingerSec; sec > 0 {
		if err := tcpConn.SetLinger(sec); err != nil {
			return fmt.Errorf("failed to set linger: %v", err)
		}
	}

	return nil
}
