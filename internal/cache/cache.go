package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	yolov8 "github.com/getcharzp/go-yolov8"
	"github.com/getcharzp/go-yolov8/internal/config"
	"github.com/getcharzp/go-yolov8/internal/util"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "yolov8:det:"

// Key 缓存键，由图片 MD5 和配置指纹组成
func Key(data []byte, fingerprint string) string {
	return keyPrefix + util.BytesMD5(data) + ":" + fingerprint
}

// Fingerprint 影响检测结果的配置项摘要，阈值或输入尺寸变化后旧缓存自然失效
func Fingerprint(cfg yolov8.Config) string {
	s := fmt.Sprintf("%g|%g|%g|%dx%d|%s",
		cfg.ConfThreshold, cfg.NMSThreshold, cfg.ScoreThreshold,
		cfg.InputWidth, cfg.InputHeight, cfg.ModelPath)
	return util.BytesMD5([]byte(s))[:12]
}

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg *config.RedisConfig) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get 读取检测结果，未命中返回 false 和 nil 错误
func (c *RedisCache) Get(ctx context.Context, key string) ([]yolov8.Detection, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var dets []yolov8.Detection
	if err := json.Unmarshal(data, &dets); err != nil {
		return nil, false, fmt.Errorf("缓存数据损坏 %s: %w", key, err)
	}
	return dets, true, nil
}

// Set 写入检测结果，空结果同样缓存
func (c *RedisCache) Set(ctx context.Context, key string, dets []yolov8.Detection) error {
	if dets == nil {
		dets = []yolov8.Detection{}
	}
	data, err := json.Marshal(dets)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// NopCache 未启用 Redis 时使用，永远未命中
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]yolov8.Detection, bool, error) {
	return nil, false, nil
}

func (NopCache) Set(context.Context, string, []yolov8.Detection) error { return nil }

func (NopCache) Close() error { return nil }
