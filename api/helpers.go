package api

import (
	"net"
	"os"
	"strconv"
	"strings"

	"usagehub/internal/config"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// ReadinessResponse 就绪检查响应
type ReadinessResponse struct {
	Status   string `json:"status"`
	Reason   string `json:"reason,omitempty"`
	Database string `json:"database,omitempty"`
}

// HealthCheck 健康检查
// @Summary 服务健康检查
// @Description 返回基础健康状态，可供监控探针使用
// @Tags System
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, HealthResponse{Status: "healthy", Service: "usagehub"})
	}
}

// ReadinessCheck 就绪检查
// @Summary 服务就绪检查
// @Description 包含日志库连通性结果，用于判断可接收请求
// @Tags System
// @Produce json
// @Success 200 {object} ReadinessResponse
// @Failure 503 {object} ReadinessResponse
// @Router /ready [get]
func ReadinessCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil {
			c.JSON(503, ReadinessResponse{Status: "not_ready", Reason: "database connection error"})
			return
		}
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			c.JSON(503, ReadinessResponse{Status: "not_ready", Reason: "database ping failed"})
			return
		}
		c.JSON(200, ReadinessResponse{Status: "ready", Database: "connected"})
	}
}

// --- 环境变量辅助函数 ---

// getEnvList 读取逗号分隔的环境变量列表
func getEnvList(key string) []string {
	return parseAddrList(os.Getenv(key))
}

// defaultIfEmpty 返回非空列表或默认值
func defaultIfEmpty(list []string, def []string) []string {
	if len(list) == 0 {
		return def
	}
	return list
}

// --- Redis 配置辅助函数 ---

// normalizeRedisConfig 归一化 Redis 配置，未配置主机时回退到 REDIS_ADDR 与地址列表环境变量
func normalizeRedisConfig(cfg config.RedisConfig) config.RedisConfig {
	resolved := cfg
	resolved.Host = strings.TrimSpace(resolved.Host)
	resolved.Mode = strings.TrimSpace(strings.ToLower(resolved.Mode))
	if resolved.Mode == "" {
		resolved.Mode = "standalone"
	}

	// 单节点模式配置：REDIS_ADDR 只覆盖未显式配置的地址
	if addr := strings.TrimSpace(os.Getenv("REDIS_ADDR")); addr != "" && (resolved.Host == "" || resolved.Host == "localhost") {
		host, port := parseRedisAddr(addr)
		if host != "" {
			resolved.Host = host
		}
		if port > 0 {
			resolved.Port = port
		}
	}
	if resolved.Host == "" {
		resolved.Host = "localhost"
	}
	if resolved.Port == 0 {
		resolved.Port = 6379
	}

	// 哨兵与集群地址可由环境变量补齐
	if resolved.Mode == "sentinel" && len(resolved.SentinelAddrs) == 0 {
		resolved.SentinelAddrs = getEnvList("APP_REDIS_SENTINEL_ADDRS")
	}
	if resolved.Mode == "cluster" && len(resolved.ClusterAddrs) == 0 {
		resolved.ClusterAddrs = getEnvList("APP_REDIS_CLUSTER_ADDRS")
	}
	return resolved
}

// parseAddrList 解析逗号分隔的列表
func parseAddrList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// parseRedisAddr 解析 host:port
func parseRedisAddr(addr string) (string, int) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.TrimSpace(addr), 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, 0
	}
	return host, port
}
