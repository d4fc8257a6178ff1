package main

import (
	"os"

	"usagehub/internal/prices"

	"github.com/spf13/cobra"
)

var pricesFlags struct {
	file   string
	remote bool
}

var pricesCmd = &cobra.Command{
	Use:   "prices",
	Short: "Manage the manual price document",
}

var pricesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List manual prices",
	RunE:  runPricesList,
}

var pricesReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Compare a remote price list with the local document",
	Long: `只读对账：列出价格不一致的模型与本地缺失的模型，不修改价格文档。

Examples:
  # 本地 JSON 文件（数组或 {"data": [...]}）
  usagectl prices reconcile --file remote.json

  # 拉取 models.dev 目录
  usagectl prices reconcile --remote`,
	RunE: runPricesReconcile,
}

func init() {
	rootCmd.AddCommand(pricesCmd)
	pricesCmd.AddCommand(pricesListCmd, pricesReconcileCmd)
	pricesReconcileCmd.Flags().StringVarP(&pricesFlags.file, "file", "f", "", "remote price list JSON file")
	pricesReconcileCmd.Flags().BoolVar(&pricesFlags.remote, "remote", false, "fetch the public models catalog")
	pricesReconcileCmd.MarkFlagsMutuallyExclusive("file", "remote")
	pricesReconcileCmd.MarkFlagsOneRequired("file", "remote")
}

func runPricesList(cmd *cobra.Command, _ []string) error {
	c, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	doc, err := c.PriceStore.Get(cmd.Context())
	if err != nil {
		return err
	}
	return renderPrices(cmd.OutOrStdout(), doc)
}

func runPricesReconcile(cmd *cobra.Command, _ []string) error {
	c, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	var remote []prices.RemoteEntry
	if pricesFlags.remote {
		doc, err := c.Catalog.Fetch(ctx)
		if err != nil {
			return err
		}
		remote = prices.EntriesFromDocument(doc)
	} else {
		data, err := os.ReadFile(pricesFlags.file)
		if err != nil {
			return err
		}
		if remote, err = prices.ParseRemote(data); err != nil {
			return err
		}
	}

	local, err := c.PriceStore.Get(ctx)
	if err != nil {
		return err
	}
	return renderReconcile(cmd.OutOrStdout(), prices.Reconcile(local, remote))
}
