package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joya-checkout/internal/config"

	"github.com/redis/go-redis/v9"
)

var redisClient *redis.Client
var redisPrefix string
var redisEnabled bool

// InitRedis 初始化 Redis 客户端
func InitRedis(cfg *config.RedisConfig) error {
	if cfg == nil || !cfg.Enabled {
		redisEnabled = false
		return nil
	}
	redisClient = redis.NewClient(buildOptions(cfg))
	redisPrefix = normalizePrefix(cfg.Prefix)
	redisEnabled = true
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return redisEnabled && redisClient != nil
}

// Client 获取 Redis 客户端
func Client() *redis.Client {
	if !Enabled() {
		return nil
	}
	return redisClient
}

// Close 关闭客户端
func Close() error {
	if redisClient == nil {
		return nil
	}
	return redisClient.Close()
}

// SnapshotStore 基于 Redis 的购物车快照存储
type SnapshotStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSnapshotStore 创建快照存储；ttl<=0 表示不过期
func NewSnapshotStore(client *redis.Client, prefix string, ttl time.Duration) (*SnapshotStore, error) {
	if client == nil {
		return nil, errors.New("redis client is nil")
	}
	return &SnapshotStore{
		client: client,
		prefix: normalizePrefix(prefix),
		ttl:    ttl,
	}, nil
}

// Load 读取快照，不存在时返回 nil
func (s *SnapshotStore) Load(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, s.buildKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get snapshot failed: %w", err)
	}
	return val, nil
}

// Save 写入快照
func (s *SnapshotStore) Save(ctx context.Context, key string, payload []byte) error {
	if err := s.client.Set(ctx, s.buildKey(key), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot failed: %w", err)
	}
	return nil
}

// Delete 删除快照
func (s *SnapshotStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.buildKey(key)).Err()
}

func (s *SnapshotStore) buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return s.prefix + ":cart"
	}
	return fmt.Sprintf("%s:cart:%s", s.prefix, trimmed)
}

func buildOptions(cfg *config.RedisConfig) *redis.Options {
	addr := strings.TrimSpace(cfg.Host)
	if addr == "" {
		addr = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%d", addr, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "joya"
	}
	return prefix
}
