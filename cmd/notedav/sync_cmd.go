package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newSyncCmd())
}

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a one-shot sync with the WebDAV server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			result := c.Engine().SyncNotes(cmd.Context())
			if !result.Success {
				fmt.Printf("%s: %s\n", red("SYNC FAILED"), result.ErrorMessage)
				os.Exit(1)
			}

			fmt.Printf("%s %d notes synced\n", green("OK"), result.SyncedCount)
			if result.HasConflicts() {
				fmt.Printf("%s %d notes are in conflict, resolve them in the editor\n", red("!!"), result.ConflictCount)
			}
			if result.HasServerDeletions() {
				fmt.Printf("   %d notes deleted on server\n", result.DeletedOnServerCount)
			}
			if result.InfoMessage != "" {
				fmt.Printf("   %s\n", result.InfoMessage)
			}
			return nil
		},
	}
}
