package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// accountCmd talks to the remote platform directly; nothing here touches
// the local mirror.
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Query the remote ad account directly",
}

var accountInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the remote ad account object",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemoteClient()
		if err != nil {
			return err
		}
		res, err := remote.AccountInfo(context.Background())
		if err != nil {
			return err
		}
		return printRaw(res.Body)
	},
}

var accountCampaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "List campaigns as the remote platform sees them",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemoteClient()
		if err != nil {
			return err
		}
		res, err := remote.ListRemoteCampaigns(context.Background())
		if err != nil {
			return err
		}
		return printRaw(res.Body)
	},
}

var accountAdSetsCmd = &cobra.Command{
	Use:   "ad-sets <campaign-remote-id>",
	Short: "List a campaign's ad sets as the remote platform sees them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remote, err := newRemoteClient()
		if err != nil {
			return err
		}
		res, err := remote.ListRemoteAdSets(context.Background(), args[0])
		if err != nil {
			return err
		}
		return printRaw(res.Body)
	},
}

func printRaw(body json.RawMessage) error {
	var pretty interface{}
	if err := json.Unmarshal(body, &pretty); err != nil {
		fmt.Println(string(body))
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.AddCommand(accountInfoCmd)
	accountCmd.AddCommand(accountCampaignsCmd)
	accountCmd.AddCommand(accountAdSetsCmd)
}
