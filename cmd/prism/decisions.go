package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/prism/pkg/audit"
	"mercator-hq/prism/pkg/cli"
	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/proxy/handlers"
	"mercator-hq/prism/pkg/routing"
)

type decisionsFlags struct {
	requestID string
	provider  string
	model     string
	state     string
	since     string
	until     string
	limit     int
	local     bool
	timeout   time.Duration
}

func newDecisionsCmd(root *rootFlags) *cobra.Command {
	flags := &decisionsFlags{}
	cmd := &cobra.Command{
		Use:   "decisions",
		Short: "Query the routing audit log",
		Long: `List recorded routing decisions, newest first. By default the running
gateway is asked; --local reads the audit database named in the config file
directly.

Examples:
  prism decisions --since 1h
  prism decisions --provider openai --state FAILED -o csv
  prism decisions --request-id 3f2a... --local`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return queryDecisions(cmd, root, flags)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.requestID, "request-id", "", "filter by request id")
	f.StringVar(&flags.provider, "provider", "", "filter by serving provider")
	f.StringVar(&flags.model, "model", "", "filter by requested model")
	f.StringVar(&flags.state, "state", "", "filter by final state: COMPLETE, FAILED")
	f.StringVar(&flags.since, "since", "", "RFC 3339 time or duration ago, e.g. 24h")
	f.StringVar(&flags.until, "until", "", "RFC 3339 time or duration ago")
	f.IntVar(&flags.limit, "limit", 50, "maximum records")
	f.BoolVar(&flags.local, "local", false, "read the audit database directly")
	f.DurationVar(&flags.timeout, "timeout", 10*time.Second, "management request timeout")
	return cmd
}

func queryDecisions(cmd *cobra.Command, root *rootFlags, flags *decisionsFlags) error {
	out, err := root.formatter()
	if err != nil {
		return err
	}

	var records []*audit.Record
	if flags.local {
		records, err = flags.queryLocal(cmd.Context(), root.configFile)
	} else {
		records, err = cli.NewClient(root.addr, flags.timeout).Decisions(cmd.Context(), flags.values())
	}
	if err != nil {
		return err
	}
	return writeDecisions(cmd.OutOrStdout(), out, records)
}

func (f *decisionsFlags) values() url.Values {
	q := url.Values{}
	for key, v := range map[string]string{
		"request_id": f.requestID,
		"provider":   f.provider,
		"model":      f.model,
		"state":      f.state,
		"since":      f.since,
		"until":      f.until,
	} {
		if v != "" {
			q.Set(key, v)
		}
	}
	if f.limit > 0 {
		q.Set("limit", strconv.Itoa(f.limit))
	}
	return q
}

func (f *decisionsFlags) queryLocal(ctx context.Context, configFile string) ([]*audit.Record, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(configFile)
	if err != nil {
		return nil, cli.NewConfigError(configFile, err)
	}
	if cfg.Audit.Driver == audit.DriverMemory {
		return nil, cli.NewCommandError("decisions", fmt.Errorf("the memory audit store can only be queried through a running gateway"))
	}

	now := time.Now()
	filter := audit.Filter{
		RequestID: f.requestID,
		Provider:  f.provider,
		Model:     f.model,
		State:     routing.State(f.state),
		Limit:     f.limit,
	}
	if filter.Since, err = handlers.ParseSince(f.since, now); err != nil {
		return nil, err
	}
	if filter.Until, err = handlers.ParseSince(f.until, now); err != nil {
		return nil, err
	}

	store, err := audit.Open(audit.StoreConfig{
		Driver:      cfg.Audit.Driver,
		Path:        cfg.Audit.Path,
		BusyTimeout: cfg.Audit.BusyTimeout,
	})
	if err != nil {
		return nil, cli.NewCommandError("decisions", err)
	}
	defer store.Close()

	records, err := store.Query(ctx, filter)
	if err != nil {
		return nil, cli.NewCommandError("decisions", err)
	}
	return records, nil
}

func writeDecisions(w io.Writer, out cli.Formatter, records []*audit.Record) error {
	if records == nil {
		records = []*audit.Record{}
	}
	table := cli.Table{
		Headers: []string{"TIME", "REQUEST", "DIALECT", "MODEL", "PROVIDER", "STATE", "ATTEMPTS", "DURATION"},
		Raw:     records,
	}
	for _, r := range records {
		attempts := (&routing.Decision{Attempts: r.Attempts}).AttemptsHeader()
		table.Rows = append(table.Rows, []string{
			r.Start.UTC().Format(time.RFC3339),
			r.RequestID,
			string(r.Dialect),
			r.Model,
			r.Provider,
			string(r.State),
			attempts,
			r.Duration.Round(time.Millisecond).String(),
		})
	}
	return out.FormatTo(w, table)
}
