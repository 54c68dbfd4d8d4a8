package common

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// --------------------------------------------------------------------------
// Replica read preference
// --------------------------------------------------------------------------

// ReplicaPreference controls which node of a slot's replica set a
// key-routed request may be sent to.
type ReplicaPreference uint8

const (
	// PrimaryOnly routes every key-derived request to the slot's primary.
	PrimaryOnly ReplicaPreference = iota
	// PreferReplica routes to a replica when one is ready, falling back
	// to the primary otherwise.
	PreferReplica
	// RoundRobinReplicas rotates over the primary and all ready replicas.
	RoundRobinReplicas
)

// String returns the string representation of a ReplicaPreference.
func (p ReplicaPreference) String() string {
	switch p {
	case PrimaryOnly:
		return "primary"
	case PreferReplica:
		return "prefer-replica"
	case RoundRobinReplicas:
		return "round-robin"
	default:
		return "unknown"
	}
}

// ParseReplicaPreference converts a string to a ReplicaPreference.
func ParseReplicaPreference(s string) (ReplicaPreference, error) {
	switch strings.ToLower(s) {
	case "", "primary":
		return PrimaryOnly, nil
	case "prefer-replica", "replica":
		return PreferReplica, nil
	case "round-robin", "roundrobin":
		return RoundRobinReplicas, nil
	default:
		return PrimaryOnly, fmt.Errorf("invalid replica preference: %s. must be one of primary, prefer-replica, round-robin", s)
	}
}

// --------------------------------------------------------------------------
// Socket level configuration
// --------------------------------------------------------------------------

// SocketConf holds buffer settings applied to every established connection.
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds TCP specific settings (ignored by other transports).
type TCPConf struct {
	TCPKeepAliveSec int
	TCPLingerSec    int
	TCPNoDelay      bool
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientTransportConfig configures the connection layer of the client.
type ClientTransportConfig struct {
	// Endpoints lists the addresses of the backend nodes
	Endpoints []string
	// ConnectionsPerEndpoint controls how many parallel connections are
	// kept per node (replica reads, pipelining). Defaults to 1.
	ConnectionsPerEndpoint int
	SocketConf
	TCPConf
}

// PoolConfig configures connection liveness management.
type PoolConfig struct {
	// MaxInFlight is the per-connection in-flight request cap. Submits
	// beyond it fail fast with KindOverloaded. 0 disables the cap.
	MaxInFlight int
	// ReconnectBackoffMinMs is the first reconnect delay.
	ReconnectBackoffMinMs int
	// ReconnectBackoffMaxMs caps the exponential backoff.
	ReconnectBackoffMaxMs int
	// ReconnectMaxAttempts bounds the reconnect loop, 0 retries forever.
	ReconnectMaxAttempts int
}

// ClientConfig holds all configuration parameters for the client core.
type ClientConfig struct {
	// Request timeout. 0 means requests wait indefinitely.
	TimeoutSecond int
	// Timeout for establishing a single connection.
	ConnectTimeoutSecond int
	// Replica read preference for key-routed requests.
	ReplicaReads ReplicaPreference

	Transport ClientTransportConfig
	Pool      PoolConfig

	// Logging configuration
	LogLevel string
}

// BackoffMin returns the configured minimum backoff with a sane default.
func (c *ClientConfig) BackoffMin() int {
	if c.Pool.ReconnectBackoffMinMs <= 0 {
		return 50
	}
	return c.Pool.ReconnectBackoffMinMs
}

// BackoffMax returns the configured maximum backoff with a sane default.
func (c *ClientConfig) BackoffMax() int {
	if c.Pool.ReconnectBackoffMaxMs <= 0 {
		return 5000
	}
	return c.Pool.ReconnectBackoffMaxMs
}

// String returns a formatted string representation of the configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General client settings
	addSection("Client Configuration")
	addField("Request Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Connect Timeout", fmt.Sprintf("%d sec", c.ConnectTimeoutSecond))
	addField("Replica Reads", c.ReplicaReads.String())
	addField("Log Level", c.LogLevel)

	// Pool settings
	addSection("Connection Pool")
	addField("Max In-Flight", strconv.Itoa(c.Pool.MaxInFlight))
	addField("Backoff Min", fmt.Sprintf("%d ms", c.BackoffMin()))
	addField("Backoff Max", fmt.Sprintf("%d ms", c.BackoffMax()))
	if c.Pool.ReconnectMaxAttempts > 0 {
		addField("Reconnect Attempts", strconv.Itoa(c.Pool.ReconnectMaxAttempts))
	} else {
		addField("Reconnect Attempts", "unlimited")
	}

	// Transport settings
	addSection("Transport")
	addField("Connections Per Endpoint", strconv.Itoa(int(math.Max(1, float64(c.Transport.ConnectionsPerEndpoint)))))

	// Endpoints
	addSection("Endpoints")
	for i, endpoint := range c.Transport.Endpoints {
		addField(strconv.Itoa(i), endpoint)
	}

	return sb.String()
}

// --------------------------------------------------------------------------
// Stub node server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds the configuration for the stub node server used as a
// local test and benchmark backend.
type ServerConfig struct {
	// Endpoint the server listens on
	Endpoint string
	// Read/write timeout for a single frame, 0 disables deadlines
	TimeoutSecond int
	// Size of the pooled read buffers in bytes
	BufferSize int
	// Maximum concurrent workers per accepted connection
	MaxWorkersPerConn int
	// Logging configuration
	LogLevel string
}
