package cmd

import (
	"fmt"
	"os"

	"github.com/kvlink/kvlink/cmd/kv"
	"github.com/kvlink/kvlink/cmd/stub"
	"github.com/kvlink/kvlink/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.1"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "kvlink",
		Short: "asynchronous client engine for clustered key-value stores",
		Long: fmt.Sprintf(`kvlink (v%s)

An asynchronous, multiplexed request-dispatch engine for clustered
key-value stores: pooled connections, slot-based routing and
correlation-id multiplexing behind a single client facade.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of kvlink",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("kvlink v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(kv.KeyValueCommands)
	RootCmd.AddCommand(stub.StubCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer to use (json, gob, binary)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
