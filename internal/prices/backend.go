package prices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Backend 价格文档持久化存储，仅支持整文档读写
type Backend interface {
	// Load 读取文档，不存在时返回 ErrDocumentNotFound
	Load(ctx context.Context) (Document, error)
	// Save 整体替换文档
	Save(ctx context.Context, doc Document) error
}

// FileBackend 本地 JSON 文件存储
type FileBackend struct {
	path string
}

// NewFileBackend 创建文件存储
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Load 读取 JSON 文件
func (b *FileBackend) Load(ctx context.Context) (Document, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("读取价格文件失败: %w", err)
	}
	return decode(data)
}

// Save 写入临时文件后原子重命名
func (b *FileBackend) Save(ctx context.Context, doc Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化价格文档失败: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("创建价格文件目录失败: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("写入价格文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("写入价格文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		return fmt.Errorf("替换价格文件失败: %w", err)
	}
	return nil
}

// RedisBackend 将文档存为单个 Redis 键
type RedisBackend struct {
	client redis.UniversalClient
	key    string
}

// NewRedisBackend 创建 Redis 存储
func NewRedisBackend(client redis.UniversalClient, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

// Load 读取 Redis 键
func (b *RedisBackend) Load(ctx context.Context) (Document, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("读取 Redis 价格文档失败: %w", err)
	}
	return decode(data)
}

// Save 覆盖 Redis 键
func (b *RedisBackend) Save(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化价格文档失败: %w", err)
	}
	if err := b.client.Set(ctx, b.key, data, 0).Err(); err != nil {
		return fmt.Errorf("写入 Redis 价格文档失败: %w", err)
	}
	return nil
}

// PriceDocument 数据库中的价格文档行
type PriceDocument struct {
	Name      string         `gorm:"primaryKey;size:128"`
	Content   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName 表名
func (PriceDocument) TableName() string {
	return "price_documents"
}

// DatabaseBackend 以 JSON 列存储文档
type DatabaseBackend struct {
	db   *gorm.DB
	name string
}

// NewDatabaseBackend 创建数据库存储，需先调用 Migrate
func NewDatabaseBackend(db *gorm.DB, name string) *DatabaseBackend {
	return &DatabaseBackend{db: db, name: name}
}

// Migrate 创建 price_documents 表
func (b *DatabaseBackend) Migrate(ctx context.Context) error {
	if err := b.db.WithContext(ctx).AutoMigrate(&PriceDocument{}); err != nil {
		return fmt.Errorf("迁移价格文档表失败: %w", err)
	}
	return nil
}

// Load 读取文档行
func (b *DatabaseBackend) Load(ctx context.Context) (Document, error) {
	var rows []PriceDocument
	if err := b.db.WithContext(ctx).Where("name = ?", b.name).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("读取价格文档失败: %w", err)
	}
	if len(rows) == 0 {
		return nil, ErrDocumentNotFound
	}
	return decode(rows[0].Content)
}

// Save 按名称 upsert 文档行
func (b *DatabaseBackend) Save(ctx context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化价格文档失败: %w", err)
	}
	row := PriceDocument{Name: b.name, Content: datatypes.JSON(data), UpdatedAt: time.Now()}
	err = b.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("写入价格文档失败: %w", err)
	}
	return nil
}

func decode(data []byte) (Document, error) {
	doc := Document{}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析价格文档失败: %w", err)
	}
	return doc, nil
}
