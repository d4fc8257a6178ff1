package main

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var leaderboardFlags struct {
	date   string
	metric string
	limit  int
}

var leaderboardCmd = &cobra.Command{
	Use:   "leaderboard",
	Short: "Show the daily token leaderboard",
	Long: `按成本、tokens 或请求数列出某一天的令牌排行。

Examples:
  usagectl leaderboard
  usagectl leaderboard --date 2025-02-01 --type tokens --limit 20`,
	RunE: runLeaderboard,
}

func init() {
	rootCmd.AddCommand(leaderboardCmd)
	leaderboardCmd.Flags().StringVar(&leaderboardFlags.date, "date", "", "day in YYYY-MM-DD (default today)")
	leaderboardCmd.Flags().StringVar(&leaderboardFlags.metric, "type", "cost", "ranking metric: cost, tokens, requests")
	leaderboardCmd.Flags().IntVar(&leaderboardFlags.limit, "limit", 10, "number of entries")
}

func runLeaderboard(cmd *cobra.Command, _ []string) error {
	c, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	date := leaderboardFlags.date
	if date == "" {
		date = time.Now().In(c.Location).Format("2006-01-02")
	}

	ctx := cmd.Context()
	if err := c.PricingCache.Refresh(ctx); err != nil {
		c.Logger.Warn("刷新定价失败，使用缓存快照", zap.Error(err))
	}
	items, err := c.Leaderboard.Top(ctx, date, leaderboardFlags.metric, leaderboardFlags.limit)
	if err != nil {
		return err
	}
	return renderLeaderboard(cmd.OutOrStdout(), date, items)
}
