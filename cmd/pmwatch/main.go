package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pmwatch/internal/app"
	"pmwatch/internal/config"
)

var cfgPath string

func main() {
	// Optional: secrets like the discord webhook live in .env locally.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "pmwatch",
		Short:         "Polymarket trade watcher and alert publisher",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", os.Getenv("CONFIG"), "path to config yaml")

	root.AddCommand(
		watchCommand("watch", "Poll trades and emit per-trade alerts continuously", app.ModeWatch),
		watchCommand("once", "Run one watcher cycle and print its alerts", app.ModeWatchOnce),
		publishCommand(),
		modeCommand("serve", "Run the publisher loop and serve the feed over HTTP", app.ModeServe),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "pmwatch: %v\n", err)
		os.Exit(1)
	}
}

func modeCommand(use, short string, mode app.Mode) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			return app.Run(cfg, mode)
		},
	}
}

// watchCommand wraps a watcher mode with the --format flag, which overrides
// notify.format from the config file.
func watchCommand(use, short string, mode app.Mode) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("format") {
				cfg.Notify.Format = format
				if err := cfg.Validate(); err != nil {
					return err
				}
			}
			return app.Run(cfg, mode)
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "alert output format: text or json")
	return cmd
}

func publishCommand() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Aggregate windows, gate signals, and regenerate the public feed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			mode := app.ModePublish
			if once {
				mode = app.ModePublishOnce
			}
			return app.Run(cfg, mode)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single publish cycle and exit")
	return cmd
}
