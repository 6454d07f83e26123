package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stockhold/internal/config"

	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "sh"

var (
	client    *redis.Client
	keyPrefix string
	active    bool
)

// InitRedis 初始化 Redis 客户端。未启用时所有缓存操作都是空操作，
// 可售量读取直接落库。
func InitRedis(cfg *config.RedisConfig) error {
	active = false
	if cfg == nil || !cfg.Enabled {
		return nil
	}

	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 6379
	}
	keyPrefix = strings.TrimSpace(cfg.Prefix)
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	client = redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", host, port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	active = true
	return nil
}

// Enabled 判断缓存是否启用
func Enabled() bool {
	return active && client != nil
}

// Client 获取 Redis 客户端（限流中间件等直接使用）
func Client() *redis.Client {
	if !Enabled() {
		return nil
	}
	return client
}

// GetJSON 读取 JSON 缓存，返回是否命中
func GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !Enabled() {
		return false, nil
	}
	val, err := client.Get(ctx, buildKey(key)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON 写入 JSON 缓存
func SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !Enabled() {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return client.Set(ctx, buildKey(key), payload, ttl).Err()
}

// Del 删除缓存（台账变更后的失效入口）
func Del(ctx context.Context, key string) error {
	if !Enabled() {
		return nil
	}
	return client.Del(ctx, buildKey(key)).Err()
}

func buildKey(key string) string {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return keyPrefix
	}
	return keyPrefix + ":" + trimmed
}
