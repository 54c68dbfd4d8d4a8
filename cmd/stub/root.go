package stub

import (
	"github.com/kvlink/kvlink/cmd/util"
	"github.com/kvlink/kvlink/core/common"
	"github.com/kvlink/kvlink/core/stubnode"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	stubCmdConfig = &common.ServerConfig{}

	// StubCmd runs a single in-memory stub node. Useful for local testing
	// of the client without a real cluster.
	StubCmd = &cobra.Command{
		Use:     "stub",
		Short:   "Run a local in-memory stub node",
		Long:    `Run a single in-memory stub node serving the built-in request types. The configuration can be set via command line flags or environment variables. The format of the environment variables is KVLINK_<flag> (e.g. KVLINK_ENDPOINT=localhost:9000)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// add flags
	key := "endpoint"
	StubCmd.PersistentFlags().String(key, "0.0.0.0:8080", util.WrapString("The address on which the node will listen (e.g. localhost:8080, /tmp/kvlink.sock, ...)"))

	key = "timeout"
	StubCmd.PersistentFlags().Int(key, 10, util.WrapString("Read/write timeout per frame in seconds (0 disables deadlines)"))

	key = "buffer-size"
	StubCmd.PersistentFlags().Int(key, 64, util.WrapString("The size of the pooled read buffers (in KB)"))

	key = "max-workers"
	StubCmd.PersistentFlags().Int(key, 16, util.WrapString("Maximum concurrent workers per accepted connection"))

	key = "log-level"
	StubCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	stubCmdConfig.Endpoint = viper.GetString("endpoint")
	stubCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	stubCmdConfig.BufferSize = viper.GetInt("buffer-size") * 1024
	stubCmdConfig.MaxWorkersPerConn = viper.GetInt("max-workers")
	stubCmdConfig.LogLevel = viper.GetString("log-level")

	return nil
}

// run starts the stub node and blocks until it is closed
func run(_ *cobra.Command, _ []string) error {
	common.InitLoggers(stubCmdConfig.LogLevel)

	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	c, err := util.GetServerConnector()
	if err != nil {
		return err
	}

	node := stubnode.New(c, s, *stubCmdConfig)
	return node.Listen(*stubCmdConfig)
}
