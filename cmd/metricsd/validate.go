package main

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/metricsd/internal/service"
	"github.com/fyrsmithlabs/metricsd/internal/validator"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateCmd validates an expression against a namespace
var validateCmd = &cobra.Command{
	Use:   "validate NAMESPACE EXPRESSION",
	Short: "Check that an expression only references registered metrics",
	Long: `Extract the metric names referenced by EXPRESSION and check each one
against the names registered for NAMESPACE. An empty namespace ("") uses
the default namespace.

Exits non-zero when the expression references unknown metrics or cannot
be parsed.

Examples:
  metricsd validate checkout 'cpu.usage + memory.total * 2'
  metricsd validate "" 'rate(http.requests[5m])'`,
	Args: cobra.ExactArgs(2),
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(ctx context.Context, svc *service.Service) error {
		res, err := svc.ValidateExpression(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
			return err
		}
		switch res.Status {
		case validator.StatusFailure:
			return fmt.Errorf("%s", res.Message)
		case validator.StatusParseError:
			return fmt.Errorf("expression could not be parsed: %s", res.Error)
		}
		return nil
	})
}
