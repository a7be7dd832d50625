package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/milestone-prints/raceday/internal/model"
)

var batchLimit int

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Research every order still awaiting results",
	Long:  "Finds pending and missing_year orders and researches them concurrently, deduplicating race-tier lookups across the batch.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		limit := batchLimit
		if limit <= 0 {
			limit = cfg.Batch.Limit
		}

		numbers, err := env.Orchestrator.Awaiting(ctx, limit)
		if err != nil {
			return err
		}
		if len(numbers) == 0 {
			zap.L().Info("no orders awaiting research")
			return nil
		}
		zap.L().Info("starting batch research", zap.Int("orders", len(numbers)))

		summaries, err := env.Orchestrator.ResearchBatch(ctx, numbers)
		if err != nil {
			return err
		}

		counts := map[model.ResearchStatus]int{}
		for _, s := range summaries {
			counts[s.Outcome]++
			zap.L().Info("research result",
				zap.String("order", s.OrderNumber),
				zap.String("outcome", string(s.Outcome)),
				zap.String("status", string(s.OrderStatus)),
				zap.String("notes", s.Notes),
			)
		}

		zap.L().Info("batch complete",
			zap.Int("total", len(summaries)),
			zap.Int("found", counts[model.ResearchFound]),
			zap.Int("ambiguous", counts[model.ResearchAmbiguous]),
			zap.Int("not_found", counts[model.ResearchNotFound]),
			zap.Int("errors", counts[model.ResearchError]),
		)
		return nil
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max orders per run (defaults to batch.limit from config)")
	rootCmd.AddCommand(batchCmd)
}
