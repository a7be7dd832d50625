package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var researchCmd = &cobra.Command{
	Use:   "research <order-number> [order-number...]",
	Short: "Research one or more orders against their venue result sources",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		summaries, err := env.Orchestrator.ResearchBatch(ctx, args)
		if err != nil {
			return err
		}

		for _, s := range summaries {
			zap.L().Info("research result",
				zap.String("order", s.OrderNumber),
				zap.String("outcome", string(s.Outcome)),
				zap.String("status", string(s.OrderStatus)),
				zap.String("notes", s.Notes),
			)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(researchCmd)
}
