package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type RedisClient struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisClient(addr, password string, db int, log *zap.Logger) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	log.Info("Redis connected successfully", zap.String("addr", addr))

	return NewFromClient(rdb, log), nil
}

func NewFromClient(rdb *redis.Client, log *zap.Logger) *RedisClient {
	return &RedisClient{client: rdb, log: log}
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

// Блокировки обработки колбэков
func (r *RedisClient) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, lockKey(key), "1", ttl).Result()
}

func (r *RedisClient) Release(ctx context.Context, key string) error {
	return r.client.Del(ctx, lockKey(key)).Err()
}

func lockKey(key string) string {
	return fmt.Sprintf("lock:%s", key)
}

// Курсор синхронизации выписки
func (r *RedisClient) SetLastSync(ctx context.Context, job string, at time.Time) error {
	return r.client.Set(ctx, fmt.Sprintf("sync:%s", job), at.UTC().Format(time.RFC3339), 0).Err()
}

// LastSync нулевое время, если курсора ещё нет.
func (r *RedisClient) LastSync(ctx context.Context, job string) (time.Time, error) {
	v, err := r.client.Get(ctx, fmt.Sprintf("sync:%s", job)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, v)
}
