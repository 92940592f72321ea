package main

import (
	"context"

	"github.com/fyrsmithlabs/metricsd/internal/service"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(namesCmd)
	namesCmd.AddCommand(namesSetCmd)
	namesCmd.AddCommand(namesGetCmd)
	namesCmd.AddCommand(namesAddCmd)
	namesCmd.AddCommand(namesCheckCmd)
}

// namesCmd is the parent command for namespace membership
var namesCmd = &cobra.Command{
	Use:   "names",
	Short: "Manage the metric names registered per namespace",
}

var namesSetCmd = &cobra.Command{
	Use:   "set NAMESPACE [NAME...]",
	Short: "Replace the names registered for a namespace",
	Long: `Atomically replace every name registered for NAMESPACE. With no names
the namespace is cleared.

Examples:
  metricsd names set checkout cpu.usage orders.total
  metricsd names set checkout`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			if err := svc.SetNames(ctx, args[0], args[1:]); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"namespace": args[0],
				"count":     len(args) - 1,
			})
		})
	},
}

var namesGetCmd = &cobra.Command{
	Use:   "get NAMESPACE",
	Short: "List the names registered for a namespace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			names, err := svc.GetNames(ctx, args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), names)
		})
	},
}

var namesAddCmd = &cobra.Command{
	Use:   "add NAMESPACE NAME",
	Short: "Register one name in a namespace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			return svc.AddName(ctx, args[0], args[1])
		})
	},
}

var namesCheckCmd = &cobra.Command{
	Use:   "check NAMESPACE NAME",
	Short: "Report whether a name is registered in a namespace",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withService(cmd, func(ctx context.Context, svc *service.Service) error {
			ok, err := svc.IsMember(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]bool{"member": ok})
		})
	},
}
