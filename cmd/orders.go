package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/export"
	"github.com/milestone-prints/raceday/internal/model"
	"github.com/milestone-prints/raceday/internal/status"
	"github.com/milestone-prints/raceday/internal/store"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Inspect and manage imported orders",
}

var (
	listStatus string
	listRace   string
	listLimit  int
)

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orders, optionally filtered by status or race",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		orders, err := env.Store.ListOrders(ctx, store.OrderFilter{
			Status:   model.OrderStatus(listStatus),
			RaceName: listRace,
			Limit:    listLimit,
		})
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ORDER\tSOURCE\tSTATUS\tDESIGN\tRACE\tYEAR\tRUNNER")
		for _, o := range orders {
			year, runner, design := "-", "-", "-"
			if o.RaceYear != nil {
				year = fmt.Sprintf("%d", *o.RaceYear)
			}
			if o.RunnerName != nil {
				runner = *o.RunnerName
			}
			if o.DesignStatus != nil {
				design = string(*o.DesignStatus)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
				o.OrderNumber, o.Source, o.Status, design, o.RaceName, year, runner)
		}
		return w.Flush()
	},
}

var ordersCompleteCmd = &cobra.Command{
	Use:   "complete <order-number>",
	Short: "Mark an order completed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrder(cmd, args[0], func(o *model.Order) error {
			return status.Complete(o, time.Now())
		})
	},
}

var ordersFlagCmd = &cobra.Command{
	Use:   "flag <order-number>",
	Short: "Flag an order for manual review",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrder(cmd, args[0], status.Flag)
	},
	Args: cobra.ExactArgs(1),
}

var (
	acceptName string
	acceptBib  string
	acceptTime string
)

var ordersAcceptCmd = &cobra.Command{
	Use:   "accept <order-number>",
	Short: "Accept a candidate from an ambiguous research result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summary, err := env.Orchestrator.AcceptMatch(ctx, args[0], model.CandidateMatch{
			Name: acceptName,
			Bib:  acceptBib,
			Time: acceptTime,
		})
		if err != nil {
			return err
		}

		zap.L().Info("candidate accepted",
			zap.String("order", summary.OrderNumber),
			zap.String("status", string(summary.OrderStatus)),
		)
		return nil
	},
}

var ordersDesignCmd = &cobra.Command{
	Use:   "design <order-number> <design-status>",
	Short: "Move an order's design workflow",
	Long:  "Valid design statuses: not_started, in_progress, concepts_done, in_revision, approved_by_customer, sent_to_production. Entering sent_to_production completes the order; leaving it reopens the order as pending.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withOrder(cmd, args[0], func(o *model.Order) error {
			return status.SetDesignStatus(o, model.DesignStatus(args[1]), time.Now())
		})
	},
}

var (
	exportOut    string
	exportStatus string
	exportRace   string
)

var ordersExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export orders with their research results to an xlsx report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		rows, err := export.CollectRows(ctx, env.Store, store.OrderFilter{
			Status:   model.OrderStatus(exportStatus),
			RaceName: exportRace,
		})
		if err != nil {
			return err
		}
		if err := export.WriteOrders(exportOut, rows); err != nil {
			return err
		}

		zap.L().Info("export written", zap.String("path", exportOut), zap.Int("rows", len(rows)))
		return nil
	},
}

// withOrder loads an order, applies a status-machine mutation and persists it.
func withOrder(cmd *cobra.Command, orderNumber string, fn func(*model.Order) error) error {
	ctx := cmd.Context()

	env, err := initApp(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	order, err := env.Store.GetOrder(ctx, orderNumber)
	if err != nil {
		return eris.Wrapf(err, "load order %s", orderNumber)
	}
	if err := fn(order); err != nil {
		return err
	}
	if err := env.Store.UpdateOrder(ctx, order); err != nil {
		return err
	}

	zap.L().Info("order updated",
		zap.String("order", order.OrderNumber),
		zap.String("status", string(order.Status)),
	)
	return nil
}

func init() {
	ordersListCmd.Flags().StringVar(&listStatus, "status", "", "filter by order status")
	ordersListCmd.Flags().StringVar(&listRace, "race", "", "filter by race name")
	ordersListCmd.Flags().IntVar(&listLimit, "limit", 0, "max rows")

	ordersAcceptCmd.Flags().StringVar(&acceptName, "name", "", "candidate runner name as listed by the provider")
	ordersAcceptCmd.Flags().StringVar(&acceptBib, "bib", "", "candidate bib number")
	ordersAcceptCmd.Flags().StringVar(&acceptTime, "time", "", "candidate official time, e.g. 3:10:00")
	_ = ordersAcceptCmd.MarkFlagRequired("name")

	ordersExportCmd.Flags().StringVar(&exportOut, "out", "orders.xlsx", "output xlsx path")
	ordersExportCmd.Flags().StringVar(&exportStatus, "status", "", "filter by order status")
	ordersExportCmd.Flags().StringVar(&exportRace, "race", "", "filter by race name")

	ordersCmd.AddCommand(ordersListCmd, ordersCompleteCmd, ordersFlagCmd, ordersAcceptCmd, ordersDesignCmd, ordersExportCmd)
	rootCmd.AddCommand(ordersCmd)
}
