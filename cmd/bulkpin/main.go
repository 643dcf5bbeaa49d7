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

	"github.com/openmined/bulkpin/internal/client"
	"github.com/openmined/bulkpin/internal/client/config"
	"github.com/openmined/bulkpin/internal/utils"
	"github.com/openmined/bulkpin/internal/version"
)

const configFileName = "config"

var rootCmd = &cobra.Command{
	Use:     "bulkpin",
	Short:   "Pin a whole remote drive folder for offline use",
	Version: version.Detailed(),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader()

		once, _ := cmd.Flags().GetBool("once")
		c, err := client.New(cfg, client.Options{ExitWhenDone: once})
		if err != nil {
			return err
		}

		defer slog.Info("Bye!")
		return c.Start(cmd.Context())
	},
}

func init() {
	addFlags(rootCmd)
}

func addFlags(cmd *cobra.Command) {
	cmd.Flags().SortFlags = false
	cmd.Flags().StringP("server", "s", config.DefaultServerURL, "drive service url")
	cmd.Flags().StringP("cachedir", "d", config.DefaultCacheDir, "local cache directory of the drive")
	cmd.Flags().StringP("root", "r", config.DefaultRoot, "remote folder to pin")
	cmd.Flags().Bool("dry-run", false, "list and check free space, but pin nothing")
	cmd.Flags().Bool("once", false, "exit when the run has finished")
	cmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "bulkpin config file")
	cmd.PersistentFlags().String("status-addr", config.DefaultStatusAddr, "address of the local status api")
}

func main() {
	logFile := config.DefaultLogFilePath
	if err := utils.EnsureParent(logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	fileHandler := slog.NewTextHandler(file, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(utils.NewMultiLogHandler(stdoutHandler, fileHandler)))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig merges the config file, flags and BULKPIN_ env vars, in
// increasing order of precedence.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if flag := cmd.Flag("config"); flag != nil && flag.Changed {
		viper.SetConfigFile(flag.Value.String())
	} else {
		viper.AddConfigPath(config.DefaultConfigDir)
		viper.AddConfigPath(filepath.Join(home(), ".config", "bulkpin"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		var notFound viper.ConfigFileNotFoundError
		if !enoent && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	bindFlag("server_url", cmd, "server")
	bindFlag("cache_dir", cmd, "cachedir")
	bindFlag("root", cmd, "root")
	bindFlag("dry_run", cmd, "dry-run")
	bindFlag("status_addr", cmd, "status-addr")

	viper.SetEnvPrefix("BULKPIN")
	viper.AutomaticEnv()

	return &config.Config{
		Path:            viper.ConfigFileUsed(),
		ServerURL:       viper.GetString("server_url"),
		AccessToken:     viper.GetString("access_token"),
		CacheDir:        viper.GetString("cache_dir"),
		Root:            viper.GetString("root"),
		StatusAddr:      viper.GetString("status_addr"),
		StatusToken:     viper.GetString("status_token"),
		IgnoreFile:      viper.GetString("ignore_file"),
		Ignore:          viper.GetStringSlice("ignore"),
		Include:         viper.GetStringSlice("include"),
		SpaceMargin:     viper.GetInt64("space_margin"),
		PageSize:        viper.GetInt("page_size"),
		MaxInflightPins: viper.GetInt("max_inflight_pins"),
		DryRun:          viper.GetBool("dry_run"),
	}, nil
}

func bindFlag(key string, cmd *cobra.Command, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		return
	}
	if err := viper.BindPFlag(key, flag); err != nil {
		slog.Warn("bind flag", "flag", name, "error", err)
	}
}

func home() string {
	dir, _ := os.UserHomeDir()
	return dir
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Print(bulkpinArt + "\n")
	fmt.Println(gray.Render(version.ShortWithApp()))
}
