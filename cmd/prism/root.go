package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/prism/pkg/cli"
)

// rootFlags are shared by every subcommand.
type rootFlags struct {
	configFile string
	addr       string
	output     string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "prism",
		Short: "Prism - multi-dialect LLM gateway",
		Long: `Prism is an LLM gateway that accepts OpenAI, Anthropic and Gemini API
requests, routes them across a pool of upstream providers with health-aware
load balancing and failover, and answers in the caller's own dialect.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "prism.yaml", "config file path")
	root.PersistentFlags().StringVar(&flags.addr, "addr", envOr("PRISM_ADDR", "127.0.0.1:8080"), "management address of a running gateway")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "text", "output format: text, json, csv")

	root.AddCommand(
		newRunCmd(flags),
		newValidateCmd(flags),
		newProvidersCmd(flags),
		newDecisionsCmd(flags),
		newVersionCmd(),
		newCompletionCmd(root),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := newRootCmd().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return cli.ExitCode(err)
}

func (f *rootFlags) formatter() (cli.Formatter, error) {
	format, err := cli.ParseFormat(f.output)
	if err != nil {
		return nil, err
	}
	return cli.NewFormatter(format), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
