package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"mercator-hq/prism/pkg/cli"
	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/server"
	"mercator-hq/prism/pkg/telemetry/logging"
)

type runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	noWatch       bool
}

func newRunCmd(root *rootFlags) *cobra.Command {
	flags := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway",
		Long: `Start the gateway with the specified configuration.

The configuration file is watched; provider changes are applied without a
restart. Environment variables prefixed PRISM_ override file values.

Examples:
  # Start with the default config file
  prism run

  # Override the listen address
  prism run --listen 0.0.0.0:8080

  # Load and validate the config, then exit
  prism run --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, root, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.listenAddress, "listen", "l", "", "override listen address")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "validate config without starting the gateway")
	cmd.Flags().BoolVar(&flags.noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

func runServer(cmd *cobra.Command, root *rootFlags, flags *runFlags) error {
	if err := config.Initialize(root.configFile); err != nil {
		return cli.NewConfigError(root.configFile, err)
	}
	cfg := config.GetConfig()

	if flags.listenAddress != "" {
		cfg.Proxy.ListenAddress = flags.listenAddress
	}
	if flags.logLevel != "" {
		cfg.Telemetry.Logging.Level = flags.logLevel
	}

	if _, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging)); err != nil {
		return cli.NewConfigError(root.configFile, err)
	}

	if flags.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "configuration %s is valid (%d providers)\n", root.configFile, len(cfg.Providers))
		return nil
	}

	opts := server.Options{Info: buildInfo()}
	if !flags.noWatch {
		opts.ConfigPath = root.configFile
	}
	srv, err := server.New(cfg, opts)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	slog.Info("prism starting",
		"version", Version,
		"config", root.configFile,
		"providers", len(cfg.Providers),
		"strategy", cfg.Routing.Strategy,
	)

	ctx, stop := cli.SignalContext(cmd.Context())
	defer stop()
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}
