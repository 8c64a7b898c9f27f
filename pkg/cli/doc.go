// Package cli holds helpers shared by the prism subcommands: exit codes and
// error types, table output in text, JSON or CSV, a client for the
// gateway's management API, and signal handling.
//
//	c := cli.NewClient("127.0.0.1:8080", 5*time.Second)
//	views, err := c.Providers(ctx)
//	if err != nil {
//		return cli.NewCommandError("providers", err)
//	}
//	return cli.NewFormatter(cli.FormatText).FormatTo(os.Stdout, table)
package cli
