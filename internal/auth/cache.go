package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "taskengine:auth:token:"

// RedisClient подмножество клиента Redis для кеша
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Cache кеш проверенных токенов
type Cache struct {
	client RedisClient
	ttl    time.Duration
}

// NewCache создает кеш токенов
func NewCache(client RedisClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get возвращает оператора по токену, nil если записи нет
func (c *Cache) Get(ctx context.Context, token string) (*Operator, error) {
	data, err := c.client.Get(ctx, tokenKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operator from cache: %w", err)
	}

	op, err := operatorFromJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode cached operator: %w", err)
	}
	return op, nil
}

// Set сохраняет оператора на время ttl
func (c *Cache) Set(ctx context.Context, token string, op *Operator) error {
	data, err := op.toJSON()
	if err != nil {
		return fmt.Errorf("failed to encode operator: %w", err)
	}
	if err := c.client.Set(ctx, tokenKey(token), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache operator: %w", err)
	}
	return nil
}

// Delete удаляет токен из кеша
func (c *Cache) Delete(ctx context.Context, token string) error {
	if err := c.client.Del(ctx, tokenKey(token)).Err(); err != nil {
		return fmt.Errorf("failed to delete operator from cache: %w", err)
	}
	return nil
}

// токен в ключе не хранится
func tokenKey(token string) string {
	hash := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%s%x", tokenKeyPrefix, hash[:16])
}
