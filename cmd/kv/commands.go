package kv

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value := args[1]
			if err := kvClient.Set(key, []byte(value)); err != nil {
				return err
			} else {
				fmt.Println("set successfully")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if resp, ok, err := kvClient.Get(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%v, resp=%s\n", key, ok, resp)
			}
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if existed, err := kvClient.Del(key); err != nil {
				return err
			} else {
				fmt.Printf("deleted successfully, existed=%t\n", existed)
			}
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if found, err := kvClient.Has(key); err != nil {
				return err
			} else {
				fmt.Printf("key=%s, found=%t\n", key, found)
			}
			return nil
		},
	}
	pingCmd = &cobra.Command{
		Use:   "ping [node]",
		Short: "Probes a node, or any ready connection when no node is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if len(args) == 1 {
				err = kvClient.PingNode(args[0])
			} else {
				err = kvClient.Ping()
			}
			if err != nil {
				return err
			}
			fmt.Println("pong")
			return nil
		},
	}
	slotCmd = &cobra.Command{
		Use:   "slot [key]",
		Short: "Prints the slot a key hashes to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			fmt.Printf("key=%s, slot=%d\n", key, kvClient.Router().Slot(key))
			return nil
		},
	}
)
