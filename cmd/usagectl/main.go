// Command usagectl 在终端查看排行榜、预览或发送日报、管理价格文档
package main

import (
	"fmt"
	"os"
	_ "time/tzdata"

	"usagehub/api"
	"usagehub/internal/config"
	"usagehub/internal/infra"
	"usagehub/internal/logger"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootFlags struct {
	env        string
	configPath string
	logLevel   string
}

var rootCmd = &cobra.Command{
	Use:   "usagectl",
	Short: "usagehub command line tools",
	Long: `usagectl 直接读取日志库，复用服务端的定价与聚合逻辑。

Examples:
  # 昨日成本排行榜
  usagectl leaderboard --date 2025-02-01

  # 预览日报但不发送
  usagectl report --date 2025-02-01

  # 与本地 JSON 价格列表对账
  usagectl prices reconcile --file remote.json`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootFlags.env, "env", "", "config environment (default $APP_ENV or dev)")
	rootCmd.PersistentFlags().StringVarP(&rootFlags.configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&rootFlags.logLevel, "log-level", "warn", "log level")
}

func main() {
	_ = godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap 加载配置并组装服务；命令行下日报总是同步发送
func bootstrap() (*api.AppContainer, func(), error) {
	env := rootFlags.env
	if env == "" {
		env = os.Getenv("APP_ENV")
	}
	if env == "" {
		env = "dev"
	}

	cfg, err := config.Load(env, rootFlags.configPath)
	if err != nil {
		return nil, nil, err
	}
	cfg.Worker.Enabled = false

	if err := logger.Init(rootFlags.logLevel, "console", "stderr"); err != nil {
		return nil, nil, fmt.Errorf("初始化日志失败: %w", err)
	}

	db, err := infra.InitDatabase(&cfg.Database, rootFlags.logLevel)
	if err != nil {
		return nil, nil, err
	}
	container, err := api.InitContainer(db, cfg, logger.Get())
	if err != nil {
		_ = infra.CloseDatabase()
		return nil, nil, err
	}

	cleanup := func() {
		container.Close()
		_ = infra.CloseDatabase()
		_ = logger.Sync()
	}
	return container, cleanup, nil
}
