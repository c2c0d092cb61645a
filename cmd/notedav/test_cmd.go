package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(newTestCmd())
}

func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the WebDAV server connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			result := c.Engine().TestConnection(cmd.Context())
			if !result.Success {
				fmt.Printf("%s: %s\n", red("CONNECTION FAILED"), result.ErrorMessage)
				os.Exit(1)
			}
			fmt.Printf("%s server reachable at %s\n", green("OK"), cyan(c.Config().ServerURL))
			return nil
		},
	}
}
