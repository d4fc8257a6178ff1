package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var reportFlags struct {
	date string
	send bool
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Preview or send the daily spend report",
	Long: `默认只打印日报卡片 JSON；加 --send 通过飞书 Webhook 发送。

Examples:
  usagectl report --date 2025-02-01
  usagectl report --date 2025-02-01 --send`,
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringVar(&reportFlags.date, "date", "", "day in YYYY-MM-DD (default today)")
	reportCmd.Flags().BoolVar(&reportFlags.send, "send", false, "send to the configured webhook")
}

func runReport(cmd *cobra.Command, _ []string) error {
	c, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	date := reportFlags.date
	if date == "" {
		date = time.Now().In(c.Location).Format("2006-01-02")
	}

	out := cmd.OutOrStdout()
	if !reportFlags.send {
		payload, err := c.Report.Preview(cmd.Context(), date)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(payload)
	}

	if !c.Report.Configured() {
		return errors.New("FEISHU_WEBHOOK_URL 未配置")
	}
	result := c.Report.SendDailyReport(cmd.Context(), date)
	if err := renderResult(out, result); err != nil {
		return err
	}
	if !result.Success && result.Reason == "" {
		return fmt.Errorf("日报发送失败: %s", result.Error)
	}
	return nil
}
