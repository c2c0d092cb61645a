package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notedav/notedav/internal/client/sync"
)

func init() {
	rootCmd.AddCommand(newRestoreCmd())
}

func newRestoreCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Restore all notes from the WebDAV server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			result := c.Engine().RestoreFromServer(cmd.Context(), sync.RestoreMode(mode))
			if !result.Success {
				fmt.Printf("%s: %s\n", red("RESTORE FAILED"), result.ErrorMessage)
				os.Exit(1)
			}
			fmt.Printf("%s restored %d notes from %s\n", green("OK"), result.RestoredCount, cyan(c.Config().ServerURL))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(sync.RestoreMerge), "restore mode: merge or replace")
	return cmd
}
