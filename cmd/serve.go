package cmd

import (
	"github.com/spf13/cobra"

	"metamirror/internal/server"
	"metamirror/pkg/engine"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metamirror HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		username, _ := cmd.Flags().GetString("username")
		password, _ := cmd.Flags().GetString("password")

		db, err := openMirror(cmd)
		if err != nil {
			return err
		}
		defer db.Close()

		remote, err := newRemoteClient()
		if err != nil {
			return err
		}

		srv := server.New(engine.New(db, remote), username, password)
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":8080", "HTTP listen address")
	serveCmd.Flags().String("username", "", "Basic auth username (empty disables auth)")
	serveCmd.Flags().String("password", "", "Basic auth password")
}
