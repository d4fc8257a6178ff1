package api

import (
	"context"
	"fmt"
	"time"

	pricesHandlers "usagehub/api/handlers/prices"
	reportHandlers "usagehub/api/handlers/report"
	usageHandlers "usagehub/api/handlers/usage"
	"usagehub/internal/aggregation"
	"usagehub/internal/analytics"
	"usagehub/internal/config"
	"usagehub/internal/identity"
	"usagehub/internal/infra"
	"usagehub/internal/infra/queue"
	"usagehub/internal/leaderboard"
	"usagehub/internal/middleware"
	"usagehub/internal/modelalias"
	"usagehub/internal/notification"
	"usagehub/internal/prices"
	"usagehub/internal/pricing"
	"usagehub/internal/report"
	"usagehub/internal/usage"
	"usagehub/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AppContainer 应用依赖容器
type AppContainer struct {
	// 基础设施
	DB          *gorm.DB
	Config      *config.Config
	Logger      *zap.Logger
	Location    *time.Location
	RedisClient redis.UniversalClient
	QueueClient queue.Client

	// 定价与聚合
	Repository   *usage.Repository
	PricingCache *pricing.ConfigCache
	Engine       *aggregation.Engine
	Aliases      modelalias.Map

	// 查询服务
	Resolver    *identity.Resolver
	Analytics   *analytics.Service
	Leaderboard *leaderboard.Service

	// 价格文档
	PriceStore *prices.Store
	Catalog    *prices.CatalogClient

	// 日报
	Report       *report.Service
	Dispatcher   *report.Dispatcher
	Scheduler    *report.Scheduler
	WorkerServer *worker.Server

	RateLimiter *middleware.RateLimiter
}

// Handlers HTTP 处理器集合
type Handlers struct {
	Usage  *usageHandlers.Handler
	Prices *pricesHandlers.Handler
	// Report 未配置 Webhook 时为 nil
	Report *reportHandlers.Handler
}

// InitContainer 初始化应用容器
func InitContainer(db *gorm.DB, cfg *config.Config, log *zap.Logger) (*AppContainer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	loc, err := cfg.Report.Location()
	if err != nil {
		return nil, err
	}

	c := &AppContainer{DB: db, Config: cfg, Logger: log, Location: loc}

	if err := c.initRedis(cfg); err != nil {
		return nil, err
	}
	if err := c.initCoreServices(db, cfg); err != nil {
		return nil, err
	}
	if err := c.initPrices(db, cfg); err != nil {
		return nil, err
	}
	if err := c.initReport(cfg); err != nil {
		return nil, err
	}
	c.initWorker(cfg)

	c.RateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.Server.RateLimitRPS,
		BurstSize:         cfg.Server.RateLimitBurst,
	})
	return c, nil
}

// InitHandlers 初始化所有 Handlers
func (c *AppContainer) InitHandlers() *Handlers {
	h := &Handlers{
		Usage:  usageHandlers.NewHandler(c.Analytics, c.Leaderboard, c.Resolver),
		Prices: pricesHandlers.NewHandler(c.PriceStore, c.Catalog),
	}
	if c.Report.Configured() {
		h.Report = reportHandlers.NewHandler(c.Report)
	}
	return h
}

// Close 按依赖逆序释放资源；价格写队列会先清空
func (c *AppContainer) Close() {
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.PriceStore != nil {
		c.PriceStore.Close()
	}
	if c.QueueClient != nil {
		if err := c.QueueClient.Close(); err != nil {
			c.Logger.Warn("关闭队列客户端失败", zap.Error(err))
		}
	}
	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("关闭 Redis 失败", zap.Error(err))
		}
	}
}

// initRedis 只有价格文档存 Redis 或启用 Worker 时才需要 Redis
func (c *AppContainer) initRedis(cfg *config.Config) error {
	needRedis := cfg.Prices.Backend == "redis"
	if !needRedis && !cfg.Worker.Enabled {
		return nil
	}

	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	if cfg.Worker.Enabled {
		c.QueueClient = queue.NewClient(cfg.Redis)
	}
	if !needRedis {
		return nil
	}

	client, err := infra.InitRedis(context.Background(), &cfg.Redis)
	if err != nil {
		return fmt.Errorf("价格文档使用 Redis 存储但连接失败: %w", err)
	}
	c.RedisClient = client
	c.Logger.Info("Redis 连接成功", zap.String("mode", cfg.Redis.Mode))
	return nil
}

func (c *AppContainer) initCoreServices(db *gorm.DB, cfg *config.Config) error {
	c.Repository = usage.NewRepository(db, c.Location, cfg.Database.QueryTimeout)
	c.PricingCache = pricing.NewConfigCache(
		pricing.NewOptionsSource(db),
		cfg.Pricing.RefreshTTL,
		cfg.Pricing.RefreshTimeout,
		c.Logger.Named("pricing"),
	)
	c.Engine = aggregation.NewEngine(newCalculator(cfg.Pricing))

	aliases, err := modelalias.Load(cfg.Models.AliasFile)
	if err != nil {
		return err
	}
	c.Aliases = aliases

	c.Resolver = identity.NewResolver(
		identity.NewGormStore(db),
		c.Repository,
		cfg.Identity.SecretPrefix,
		cfg.Identity.LookupTimeout,
	)
	c.Leaderboard = leaderboard.NewService(c.Repository, c.PricingCache, c.Engine, c.Location, leaderboard.Options{
		TTL:          cfg.Leaderboard.TTL,
		MaxEntries:   cfg.Leaderboard.MaxEntries,
		DefaultLimit: cfg.Leaderboard.DefaultLimit,
		MaxLimit:     cfg.Leaderboard.MaxLimit,
	})
	return nil
}

func (c *AppContainer) initPrices(db *gorm.DB, cfg *config.Config) error {
	var backend prices.Backend
	switch cfg.Prices.Backend {
	case "", "file":
		backend = prices.NewFileBackend(cfg.Prices.FilePath)
	case "redis":
		backend = prices.NewRedisBackend(c.RedisClient, cfg.Prices.RedisKey)
	case "database":
		dbBackend := prices.NewDatabaseBackend(db, cfg.Prices.DocumentName)
		if err := dbBackend.Migrate(context.Background()); err != nil {
			return err
		}
		backend = dbBackend
	default:
		return fmt.Errorf("不支持的价格存储: %s (可选: file, redis, database)", cfg.Prices.Backend)
	}

	c.PriceStore = prices.NewStore(backend, cfg.Prices.QueueSize, cfg.Prices.WriteTimeout, c.Logger.Named("prices"))
	c.Catalog = prices.NewCatalogClient(cfg.Prices.RemoteURL, cfg.Prices.RemoteTimeout)
	c.Analytics = analytics.NewService(c.Repository, c.PricingCache, c.Engine, c.PriceStore,
		c.Aliases.Normalize, c.Location, c.Logger.Named("analytics"))
	return nil
}

func (c *AppContainer) initReport(cfg *config.Config) error {
	builder := report.NewBuilder(c.Engine.Calculator(), report.Options{
		Threshold:       cfg.Report.Threshold,
		MaxIdentities:   cfg.Report.MaxIdentities,
		MaxModels:       cfg.Report.MaxModels,
		MaxPayloadBytes: cfg.Report.MaxPayloadBytes,
	}, c.Aliases.Normalize)

	var transport notification.Transport
	if cfg.Report.WebhookURL != "" {
		transport = notification.NewFeishuClient(cfg.Report.WebhookURL, cfg.Report.WebhookSecret,
			cfg.Report.SendTimeout, c.Logger.Named("feishu"))
	}
	log := c.Logger.Named("report")
	c.Report = report.NewService(c.Repository, c.PricingCache, c.Engine, builder, transport, c.Location, log)
	c.Dispatcher = report.NewDispatcher(c.Report, c.QueueClient, log)

	if !c.Report.Configured() {
		log.Info("日报已禁用: FEISHU_WEBHOOK_URL 未配置")
		return nil
	}
	scheduler, err := report.NewScheduler(cfg.Report.Cron, c.Location, c.Dispatcher.Dispatch, log)
	if err != nil {
		return err
	}
	c.Scheduler = scheduler
	return nil
}

func (c *AppContainer) initWorker(cfg *config.Config) {
	if !cfg.Worker.Enabled {
		return
	}
	c.WorkerServer = worker.NewServer(cfg.Redis, cfg.Worker, c.Report, c.Logger.Named("worker"))
}

// newCalculator 未配置的参数使用默认值
func newCalculator(cfg config.PricingConfig) *pricing.Calculator {
	calc := pricing.NewCalculator()
	if cfg.BaseUnit > 0 {
		calc.BaseUnit = cfg.BaseUnit
	}
	if cfg.DefaultRatio > 0 {
		calc.DefaultRatio = cfg.DefaultRatio
	}
	if cfg.DefaultCompletionRatio > 0 {
		calc.DefaultCompletionRatio = cfg.DefaultCompletionRatio
	}
	if cfg.ExchangeRate > 0 {
		calc.ExchangeRate = cfg.ExchangeRate
	}
	return calc
}
