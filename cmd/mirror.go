package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"metamirror/pkg/storage"
)

// kindBySegment maps the CLI/API resource names onto storage kinds.
var kindBySegment = map[string]storage.Kind{
	"campaigns": storage.KindCampaign,
	"ad-sets":   storage.KindAdSet,
	"ads":       storage.KindAd,
}

func listEntities(cmd *cobra.Command, kind storage.Kind) error {
	db, err := openMirror(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	status, _ := cmd.Flags().GetString("status")
	parent, _ := cmd.Flags().GetString("parent")
	asJSON, _ := cmd.Flags().GetBool("json")

	entities, err := db.List(context.Background(), storage.ListOptions{
		Kind:           kind,
		Status:         storage.Status(status),
		ParentRemoteID: parent,
	})
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entities)
	}

	if len(entities) == 0 {
		fmt.Println("No mirrored entities found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "REMOTE ID\tNAME\tSTATUS\tPARENT\tCREATED\t")
	for _, e := range entities {
		name, _ := e.Fields["name"].(string)
		if name == "" {
			name, _ = e.Fields["title"].(string)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
			e.RemoteID, name, e.Status, e.ParentRemoteID, e.CreatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func addListFlags(cmd *cobra.Command, parentUsage string) {
	cmd.Flags().String("status", "", "Filter by status (ACTIVE, PAUSED, DELETED, DRAFT, PENDING)")
	if parentUsage != "" {
		cmd.Flags().String("parent", "", parentUsage)
	}
	cmd.Flags().Bool("json", false, "Print raw JSON instead of a table")
}

var campaignsCmd = &cobra.Command{
	Use:   "campaigns",
	Short: "List mirrored campaigns",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEntities(cmd, storage.KindCampaign)
	},
}

var adsetsCmd = &cobra.Command{
	Use:   "ad-sets",
	Short: "List mirrored ad sets",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEntities(cmd, storage.KindAdSet)
	},
}

var adsCmd = &cobra.Command{
	Use:   "ads",
	Short: "List mirrored ads",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listEntities(cmd, storage.KindAd)
	},
}

// auditCmd prints the recorded action trail for a mirrored entity.
var auditCmd = &cobra.Command{
	Use:   "audit <campaigns|ad-sets|ads> <remote-id>",
	Short: "Show the audit trail of a mirrored entity",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, ok := kindBySegment[args[0]]
		if !ok {
			return fmt.Errorf("unknown entity kind %q (want campaigns, ad-sets or ads)", args[0])
		}

		db, err := openMirror(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		trail, err := db.ListAudit(context.Background(), kind, args[1])
		if err != nil {
			return err
		}
		if len(trail) == 0 {
			fmt.Println("No audit records.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "TIMESTAMP\tACTION\tSUCCESS\t")
		for _, rec := range trail {
			fmt.Fprintf(w, "%s\t%s\t%t\t\n", rec.Timestamp.Format("2006-01-02 15:04:05"), rec.Action, rec.Success)
		}
		return w.Flush()
	},
}

func init() {
	addListFlags(campaignsCmd, "")
	addListFlags(adsetsCmd, "Filter by parent campaign remote id")
	addListFlags(adsCmd, "Filter by parent ad set remote id")
	rootCmd.AddCommand(campaignsCmd)
	rootCmd.AddCommand(adsetsCmd)
	rootCmd.AddCommand(adsCmd)
	rootCmd.AddCommand(auditCmd)
}
