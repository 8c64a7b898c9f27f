package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/prism/pkg/cli"
	"mercator-hq/prism/pkg/proxy/handlers"
)

func newProvidersCmd(root *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List and manage the providers of a running gateway",
		Long: `Show the provider registry of a running gateway, or change it through
the management API. Changes made here last until the next restart or
config reload.

Examples:
  prism providers
  prism providers add --id local --client echo --model 'echo-*'
  prism providers add -f provider.json
  prism providers remove local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProviders(cmd, root, timeout)
		},
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "management request timeout")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List providers",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return listProviders(cmd, root, timeout)
			},
		},
		newProvidersAddCmd(root, &timeout),
		&cobra.Command{
			Use:     "remove <id>",
			Aliases: []string{"rm"},
			Short:   "Deregister a provider",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				c := cli.NewClient(root.addr, timeout)
				if err := c.Deregister(cmd.Context(), args[0]); err != nil {
					return cli.NewCommandError("providers remove", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "provider %s deregistered\n", args[0])
				return nil
			},
		},
	)
	return cmd
}

func listProviders(cmd *cobra.Command, root *rootFlags, timeout time.Duration) error {
	out, err := root.formatter()
	if err != nil {
		return err
	}
	views, err := cli.NewClient(root.addr, timeout).Providers(cmd.Context())
	if err != nil {
		return cli.NewCommandError("providers", err)
	}

	table := cli.Table{
		Headers: []string{"ID", "KIND", "ENABLED", "STATUS", "LATENCY", "IN-FLIGHT", "ERRORS", "LAST ERROR"},
		Raw:     views,
	}
	for _, v := range views {
		latency := "-"
		if v.LatencyMS != nil {
			latency = fmt.Sprintf("%.0fms", *v.LatencyMS)
		}
		table.Rows = append(table.Rows, []string{
			v.ID,
			string(v.Kind),
			strconv.FormatBool(v.Enabled),
			string(v.Status),
			latency,
			strconv.FormatInt(v.InFlight, 10),
			strconv.FormatInt(v.TotalErrors, 10),
			v.LastError,
		})
	}
	return out.FormatTo(cmd.OutOrStdout(), table)
}

type addFlags struct {
	file string
	req  handlers.ProviderRequest
}

func newProvidersAddCmd(root *rootFlags, timeout *time.Duration) *cobra.Command {
	flags := &addFlags{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register or replace a provider",
		Long: `Register a provider, replacing it when the id exists. The descriptor comes
from --file (JSON, "-" for stdin) or from flags. The API key may be given
through PRISM_PROVIDER_API_KEY instead of a flag.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.request()
			if err != nil {
				return err
			}
			view, err := cli.NewClient(root.addr, *timeout).Register(cmd.Context(), req)
			if err != nil {
				return cli.NewCommandError("providers add", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "provider %s registered (%s, %s)\n", view.ID, view.Kind, view.Status)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.file, "file", "f", "", "JSON descriptor file")
	f.StringVar(&flags.req.ID, "id", "", "provider id")
	f.StringVar(&flags.req.Kind, "kind", "", "adapter kind: rest, web, sdk")
	f.StringVar(&flags.req.Dialect, "dialect", "", "rest dialect: openai, anthropic, gemini")
	f.StringVar(&flags.req.BaseURL, "base-url", "", "upstream base URL")
	f.StringVar(&flags.req.Client, "client", "", "sdk client name")
	f.StringSliceVar(&flags.req.Models, "model", nil, "served model, repeatable; 'prefix*' matches by prefix")
	f.IntVar(&flags.req.Weight, "weight", 0, "weighted-random weight")
	f.StringVar(&flags.req.Timeout, "call-timeout", "", "non-streaming call timeout, e.g. 60s")
	f.StringVar(&flags.req.ChunkTimeout, "chunk-timeout", "", "per-chunk stream timeout, e.g. 30s")
	f.StringVar(&flags.req.ProbeModel, "probe-model", "", "model for one-token health probes")
	return cmd
}

func (f *addFlags) request() (handlers.ProviderRequest, error) {
	req := f.req
	if f.file != "" {
		var (
			data []byte
			err  error
		)
		if f.file == "-" {
			data, err = io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
		} else {
			data, err = os.ReadFile(f.file)
		}
		if err != nil {
			return req, err
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			return req, fmt.Errorf("invalid descriptor %s: %w", f.file, err)
		}
	}
	if req.APIKey == "" {
		req.APIKey = os.Getenv("PRISM_PROVIDER_API_KEY")
	}
	if strings.TrimSpace(req.ID) == "" {
		return req, fmt.Errorf("provider id is required (--id or \"id\" in --file)")
	}
	return req, nil
}
