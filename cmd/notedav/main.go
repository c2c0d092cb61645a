package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/notedav/notedav/internal/client"
	"github.com/notedav/notedav/internal/client/config"
	"github.com/notedav/notedav/internal/utils"
	"github.com/notedav/notedav/internal/version"
)

var (
	home, _        = os.UserHomeDir()
	configFileName = "config"
)

var (
	red   = color.New(color.FgHiRed, color.Bold).SprintFunc()
	green = color.New(color.FgHiGreen).SprintFunc()
	cyan  = color.New(color.FgHiCyan).SprintFunc()
)

var rootCmd = &cobra.Command{
	Use:     "notedav",
	Short:   "NoteDAV - offline-first notes synced over WebDAV",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := configFromViper()
		if err != nil {
			return err
		}

		cmd.SilenceUsage = true
		slog.Info("notedav", "version", version.Version, "revision", version.Revision, "build", version.BuildDate)

		c, err := client.New(cfg)
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		if err := c.Start(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("client start", "error", err)
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "NoteDAV config file")
	rootCmd.PersistentFlags().StringP("datadir", "d", config.DefaultDataDir, "NoteDAV data directory")
	rootCmd.PersistentFlags().StringP("server", "s", "", "WebDAV server URL")
	rootCmd.PersistentFlags().StringP("username", "u", "", "WebDAV username")
}

func main() {
	setupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupLogging() {
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelInfo,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})

	handlers := []slog.Handler{stdoutHandler}

	logFile := os.Getenv("NOTEDAV_LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(home, ".notedav", "notedav.log")
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err == nil {
		if file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
			handlers = append(handlers, slog.NewTextHandler(file, &slog.HandlerOptions{
				Level: slog.LevelDebug,
			}))
		}
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
}

func loadConfig(cmd *cobra.Command) error {
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".notedav"))
		viper.AddConfigPath(filepath.Join(home, ".config/notedav"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !enoent && !notFound {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("data_dir", cmd.Flags().Lookup("datadir"))
	viper.BindPFlag("server_url", cmd.Flags().Lookup("server"))
	viper.BindPFlag("username", cmd.Flags().Lookup("username"))

	viper.SetEnvPrefix("NOTEDAV")
	viper.AutomaticEnv()

	return nil
}

func configFromViper() (*config.Config, error) {
	cfg := &config.Config{
		Path:           viper.ConfigFileUsed(),
		DataDir:        viper.GetString("data_dir"),
		ServerURL:      viper.GetString("server_url"),
		RemotePath:     viper.GetString("remote_path"),
		Username:       viper.GetString("username"),
		Password:       viper.GetString("password"),
		DeviceID:       viper.GetString("device_id"),
		MaxParallel:    viper.GetInt("max_parallel"),
		RetryCount:     viper.GetInt("retry_count"),
		SyncInterval:   viper.GetString("sync_interval"),
		ExportMarkdown: viper.GetBool("export_markdown"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newClient() (*client.Client, error) {
	cfg, err := configFromViper()
	if err != nil {
		return nil, err
	}
	return client.New(cfg)
}
