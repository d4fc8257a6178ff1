// Package usagetest 提供 new-api 日志库的内存 sqlite 测试夹具
package usagetest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var seq atomic.Int64

// Shanghai 测试统一使用的时区（UTC+8）
var Shanghai = time.FixedZone("Asia/Shanghai", 8*3600)

const schema = `
CREATE TABLE logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	type INTEGER NOT NULL DEFAULT 2,
	created_at BIGINT NOT NULL,
	token_id INTEGER NOT NULL DEFAULT 0,
	token_name TEXT NOT NULL DEFAULT '',
	model_name TEXT NOT NULL DEFAULT '',
	prompt_tokens INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	channel_id INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE tokens (
	id INTEGER PRIMARY KEY,
	"key" TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT ''
);
CREATE TABLE options (
	"key" TEXT PRIMARY KEY,
	value TEXT
);
CREATE TABLE channels (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	models TEXT NOT NULL DEFAULT '',
	status INTEGER NOT NULL DEFAULT 1
);`

// Log logs 表一行
type Log struct {
	Type             int
	CreatedAt        int64
	TokenID          int
	TokenName        string
	ModelName        string
	PromptTokens     int
	CompletionTokens int
	ChannelID        int
}

// Open 创建独立的内存库并建表
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:usagehub_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range strings.Split(schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			require.NoError(t, db.Exec(stmt).Error)
		}
	}
	return db
}

// At 上海时区的时间点（Unix 秒）
func At(date string, hour, minute int) int64 {
	day, err := time.ParseInLocation("2006-01-02", date, Shanghai)
	if err != nil {
		panic(err)
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute).Unix()
}

// InsertLogs 写入日志行，Type 为 0 时按消费日志处理
func InsertLogs(t *testing.T, db *gorm.DB, logs ...Log) {
	t.Helper()
	for _, l := range logs {
		if l.Type == 0 {
			l.Type = 2
		}
		err := db.Exec(`INSERT INTO logs (type, created_at, token_id, token_name, model_name, prompt_tokens, completion_tokens, channel_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			l.Type, l.CreatedAt, l.TokenID, l.TokenName, l.ModelName, l.PromptTokens, l.CompletionTokens, l.ChannelID).Error
		require.NoError(t, err)
	}
}

// InsertToken 写入令牌
func InsertToken(t *testing.T, db *gorm.DB, id int, key, name string) {
	t.Helper()
	require.NoError(t, db.Exec(`INSERT INTO tokens (id, "key", name) VALUES (?, ?, ?)`, id, key, name).Error)
}

// InsertOption 写入 options 键值
func InsertOption(t *testing.T, db *gorm.DB, key, value string) {
	t.Helper()
	require.NoError(t, db.Exec(`INSERT INTO options ("key", value) VALUES (?, ?)`, key, value).Error)
}

// InsertChannel 写入渠道
func InsertChannel(t *testing.T, db *gorm.DB, id int, name, models string, status int) {
	t.Helper()
	require.NoError(t, db.Exec(`INSERT INTO channels (id, name, models, status) VALUES (?, ?, ?, ?)`, id, name, models, status).Error)
}
