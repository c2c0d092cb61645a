package main

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/notedav/notedav/internal/client/sync"
)

func init() {
	rootCmd.AddCommand(newBackupCmd())
}

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Encrypted backup and restore of the local note store",
	}
	cmd.AddCommand(newBackupExportCmd(), newBackupImportCmd())
	return cmd
}

func newBackupExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Export all notes to an encrypted backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			password, err := readPassword(true)
			if err != nil {
				return err
			}

			count, err := c.ExportBackup(args[0], password)
			if err != nil {
				fmt.Printf("%s: %s\n", red("BACKUP FAILED"), err)
				os.Exit(1)
			}
			fmt.Printf("%s exported %d notes to %s\n", green("OK"), count, cyan(args[0]))
			return nil
		},
	}
}

func newBackupImportCmd() *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Restore notes from an encrypted backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true

			c, err := newClient()
			if err != nil {
				return err
			}
			defer c.Close()

			password, err := readPassword(false)
			if err != nil {
				return err
			}

			count, err := c.ImportBackup(args[0], password, sync.RestoreMode(mode))
			if err != nil {
				fmt.Printf("%s: %s\n", red("RESTORE FAILED"), err)
				os.Exit(1)
			}
			fmt.Printf("%s restored %d notes from %s\n", green("OK"), count, cyan(args[0]))
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", string(sync.RestoreMerge), "restore mode: merge or replace")
	return cmd
}

func readPassword(confirm bool) (string, error) {
	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("password must not be empty")
	}

	if confirm {
		fmt.Print("Confirm:  ")
		again, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if string(password) != string(again) {
			return "", fmt.Errorf("passwords do not match")
		}
	}
	return string(password), nil
}
