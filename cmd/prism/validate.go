package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/prism/pkg/cli"
	"mercator-hq/prism/pkg/config"
	"mercator-hq/prism/pkg/providerfactory"
)

func newValidateCmd(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Load a configuration file with PRISM_ environment overrides, validate
every section and build each enabled provider's adapter without contacting
it. Exits 2 when the configuration is invalid.

Examples:
  prism validate --config /etc/prism/prism.yaml
  prism validate -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd, root)
		},
	}
}

func validateConfig(cmd *cobra.Command, root *rootFlags) error {
	out, err := root.formatter()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfigWithEnvOverrides(root.configFile)
	if err != nil {
		return cli.NewConfigError(root.configFile, err)
	}

	table := cli.Table{Headers: []string{"ID", "KIND", "DIALECT", "MODELS", "WEIGHT", "STATUS"}}
	var errs []error
	for _, d := range cfg.Descriptors() {
		d = providerfactory.Infer(d)
		status := "ok"
		p, err := providerfactory.NewProvider(d)
		if err != nil {
			status = "error: " + err.Error()
			errs = append(errs, err)
		} else {
			_ = p.Close()
		}
		models := "*"
		if len(d.Models) > 0 {
			models = strings.Join(d.Models, ",")
		}
		table.Rows = append(table.Rows, []string{
			d.ID, string(d.Kind), string(d.Dialect), models, strconv.Itoa(d.EffectiveWeight()), status,
		})
	}
	if err := out.FormatTo(cmd.OutOrStdout(), table); err != nil {
		return err
	}
	if len(errs) > 0 {
		return cli.NewConfigError(root.configFile, errors.Join(errs...))
	}

	if root.output == "" || root.output == string(cli.FormatText) {
		fmt.Fprintf(cmd.OutOrStdout(), "\nconfiguration valid: %d providers, strategy %s\n", len(table.Rows), cfg.Routing.Strategy)
	}
	return nil
}
