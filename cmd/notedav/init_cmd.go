package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notedav/notedav/internal/client/config"
)

func init() {
	rootCmd.AddCommand(newInitCmd())
}

func newInitCmd() *cobra.Command {
	var dataDir string
	var serverURL string
	var remotePath string
	var username string
	var password string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the NoteDAV configuration",
		// init must work without an existing config file
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			if cfg, err := config.LoadFromFile(config.DefaultConfigPath); err == nil {
				fmt.Println("NoteDAV already initialized")
				printConfig(cfg)
				os.Exit(0)
			}

			if serverURL == "" {
				fmt.Printf("%s: %s\n", red("ERROR"), "server-url is required")
				os.Exit(1)
			}
			if username == "" {
				fmt.Printf("%s: %s\n", red("ERROR"), "username is required")
				os.Exit(1)
			}

			cfg := &config.Config{
				DataDir:    dataDir,
				ServerURL:  serverURL,
				RemotePath: remotePath,
				Username:   username,
				Password:   password,
				DeviceID:   config.GenerateDeviceID(),
				Path:       config.DefaultConfigPath,
			}
			if err := cfg.Validate(); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}
			if err := cfg.Save(); err != nil {
				fmt.Printf("%s: %s\n", red("ERROR"), err)
				os.Exit(1)
			}

			fmt.Println("NoteDAV initialized")
			printConfig(cfg)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().StringVarP(&dataDir, "data-dir", "d", config.DefaultDataDir, "data directory")
	cmd.Flags().StringVarP(&serverURL, "server-url", "s", "", "WebDAV server URL")
	cmd.Flags().StringVarP(&remotePath, "remote-path", "r", config.DefaultRemotePath, "remote collection path")
	cmd.Flags().StringVarP(&username, "username", "u", "", "WebDAV username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "WebDAV password")

	return cmd
}

func printConfig(cfg *config.Config) {
	fmt.Printf("Config Path: %s\n", green(cfg.Path))
	fmt.Printf("Data Dir:    %s\n", cyan(cfg.DataDir))
	fmt.Printf("Server:      %s\n", cyan(cfg.ServerURL))
	fmt.Printf("Remote Path: %s\n", cyan(cfg.RemotePath))
	fmt.Printf("Device ID:   %s\n", cyan(cfg.DeviceID))
}
