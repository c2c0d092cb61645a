package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/notedav/notedav/internal/client/notestore"
)

func init() {
	rootCmd.AddCommand(newStatusCmd())
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show local note store and sync status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			notes, err := c.Store().LoadAll()
			if err != nil {
				return err
			}

			var pending, conflicts int
			var lastUpdated int64
			for _, note := range notes {
				switch note.SyncStatus {
				case notestore.StatusConflict:
					conflicts++
				case notestore.StatusSynced:
				default:
					pending++
				}
				if note.UpdatedAt > lastUpdated {
					lastUpdated = note.UpdatedAt
				}
			}

			fmt.Printf("Data Dir:   %s\n", cyan(c.Config().DataDir))
			fmt.Printf("Server:     %s\n", cyan(c.Config().ServerURL))
			fmt.Printf("Notes:      %d\n", len(notes))
			if lastUpdated > 0 {
				fmt.Printf("Last Edit:  %s\n", humanize.Time(time.UnixMilli(lastUpdated)))
			}
			if pending > 0 {
				fmt.Printf("Pending:    %s\n", cyan(fmt.Sprintf("%d notes waiting for sync", pending)))
			}
			if conflicts > 0 {
				fmt.Printf("Conflicts:  %s\n", red(fmt.Sprintf("%d notes need resolution", conflicts)))
			}
			if tombstones := c.Engine().Tracker().Records(); len(tombstones) > 0 {
				fmt.Printf("Tombstones: %d\n", len(tombstones))
			}
			if pending == 0 && conflicts == 0 {
				fmt.Printf("Status:     %s\n", green("all notes synced"))
			}
			return nil
		},
	}
}
