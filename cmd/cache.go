package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cacheRace string
	cacheYear int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the race-tier cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Reset cached race resolutions so the next research re-fetches them",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		cleared, err := env.Store.ClearRaceCache(ctx, cacheRace, cacheYear)
		if err != nil {
			return err
		}

		zap.L().Info("race cache cleared",
			zap.Int("entries", cleared),
			zap.String("race", cacheRace),
			zap.Int("year", cacheYear),
		)
		return nil
	},
}

func init() {
	cacheClearCmd.Flags().StringVar(&cacheRace, "race", "", "limit to one race name (all races when empty)")
	cacheClearCmd.Flags().IntVar(&cacheYear, "year", 0, "limit to one year (all years when zero)")

	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
