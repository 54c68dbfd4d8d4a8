package util

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/serializer"
	"github.com/kvlink/kvlink/core/transport"
	"github.com/kvlink/kvlink/core/transport/tcp"
	"github.com/kvlink/kvlink/core/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClientFlags adds the common client connection flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("Per-request timeout in seconds (0 disables the deadline)"))

	key = "connect-timeout"
	cmd.PersistentFlags().Int(key, 5, WrapString("Dial timeout in seconds"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, "localhost:8080", WrapString("Comma-separated list of node endpoints to connect to"))

	key = "conn-per-endpoint"
	cmd.PersistentFlags().Int(key, 1, WrapString("Simultaneous connections per endpoint"))

	key = "max-in-flight"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum outstanding requests per connection before submissions are rejected as overloaded (0 = unlimited)"))

	key = "replica-reads"
	cmd.PersistentFlags().String(key, "primary", WrapString("Replica preference for key-routed requests (primary, prefer-replica, round-robin)"))

	key = "backoff-min"
	cmd.PersistentFlags().Int(key, 50, WrapString("Minimum reconnect backoff delay in milliseconds"))

	key = "backoff-max"
	cmd.PersistentFlags().Int(key, 5000, WrapString("Maximum reconnect backoff delay in milliseconds"))

	key = "reconnect-max-attempts"
	cmd.PersistentFlags().Int(key, 0, WrapString("Reconnect attempts per connection before it is given up (0 = unlimited)"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB)"))

	key = "tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval in seconds (only for tcp)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time in seconds (only for tcp)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("kvlink")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	pref, err := common.ParseReplicaPreference(viper.GetString("replica-reads"))
	if err != nil {
		return nil, err
	}

	conf := &common.ClientConfig{
		TimeoutSecond:        viper.GetInt("timeout"),
		ConnectTimeoutSecond: viper.GetInt("connect-timeout"),
		ReplicaReads:         pref,
		LogLevel:             viper.GetString("log-level"),
		Transport: common.ClientTransportConfig{
			Endpoints:              strings.Split(viper.GetString("endpoints"), ","),
			ConnectionsPerEndpoint: viper.GetInt("conn-per-endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("tcp-linger"),
				TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			},
		},
		Pool: common.PoolConfig{
			MaxInFlight:           viper.GetInt("max-in-flight"),
			ReconnectBackoffMinMs: viper.GetInt("backoff-min"),
			ReconnectBackoffMaxMs: viper.GetInt("backoff-max"),
			ReconnectMaxAttempts:  viper.GetInt("reconnect-max-attempts"),
		},
	}

	return conf, nil
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.ISerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	case "binary":
		return serializer.NewBinarySerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetClientConnector creates a client connector based on configuration
func GetClientConnector() (transport.IClientConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewClientConnector(), nil
	case "unix":
		return unix.NewClientConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// GetServerConnector creates a server connector based on configuration
func GetServerConnector() (transport.IServerConnector, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewServerConnector(), nil
	case "unix":
		return unix.NewServerConnector(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
