package kv

import (
	"github.com/kvlink/kvlink/client"
	"github.com/kvlink/kvlink/cmd/util"
	"github.com/kvlink/kvlink/core/common"
	"github.com/spf13/cobra"
)

var (
	kvClient *client.Client

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:               "kv",
		Short:             "Perform key-value operations against a cluster",
		PersistentPreRunE: setupKVClient,
		PersistentPostRun: teardownKVClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common client flags to the KV command
	util.SetupClientFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(setCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(pingCmd)
	KeyValueCommands.AddCommand(slotCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupKVClient initializes the client
func setupKVClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	// Get client configuration components
	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	common.InitLoggers(config.LogLevel)

	// Get serializer and connector
	s, err := util.GetSerializer()
	if err != nil {
		return err
	}

	c, err := util.GetClientConnector()
	if err != nil {
		return err
	}

	// Create the client
	kvClient, err = client.New(*config, c, s)

	return err
}

// teardownKVClient closes the client after the command ran
func teardownKVClient(_ *cobra.Command, _ []string) {
	if kvClient != nil {
		_ = kvClient.Close()
	}
}
