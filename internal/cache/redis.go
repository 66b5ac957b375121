package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"breathing-analytics/internal/models"
)

// ErrNotFound результат анализа отсутствует или истек
var ErrNotFound = errors.New("analysis not found")

const recentSessionsKey = "analysis_sessions"

// RedisCache хранилище результатов анализа в Redis
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache создает новый Redis кэш
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     20,
		MinIdleConns: 2,
		MaxRetries:   3,
	})

	// Проверяем подключение
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient оборачивает готовый клиент
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func analysisKey(sessionID string) string {
	return fmt.Sprintf("analysis:%s", sessionID)
}

// StoreAnalysis сохраняет результат анализа и добавляет сессию в список последних
func (r *RedisCache) StoreAnalysis(ctx context.Context, result models.AnalysisResult) error {
	data, err := msgpack.Marshal(&result)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis: %w", err)
	}

	key := analysisKey(result.SessionID)
	score := float64(result.AnalyzedAt.UnixMilli())

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, key, data, r.ttl)
	pipe.ZAdd(ctx, recentSessionsKey, redis.Z{Score: score, Member: result.SessionID})
	// Убираем из списка сессии старше срока хранения
	pipe.ZRemRangeByScore(ctx, recentSessionsKey, "-inf",
		fmt.Sprintf("(%d", result.AnalyzedAt.Add(-r.ttl).UnixMilli()))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store analysis: %w", err)
	}
	return nil
}

// GetAnalysis возвращает сохраненный результат анализа
func (r *RedisCache) GetAnalysis(ctx context.Context, sessionID string) (models.AnalysisResult, error) {
	var result models.AnalysisResult

	data, err := r.client.Get(ctx, analysisKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, ErrNotFound
	}
	if err != nil {
		return result, fmt.Errorf("failed to get analysis: %w", err)
	}

	if err := msgpack.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal analysis: %w", err)
	}
	return result, nil
}

// RecentSessions получает последние проанализированные сессии, новые первыми
func (r *RedisCache) RecentSessions(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return []string{}, nil
	}

	results, err := r.client.ZRevRange(ctx, recentSessionsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get sessions: %w", err)
	}
	return results, nil
}

// Ping проверяет доступность Redis
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает соединение с Redis
func (r *RedisCache) Close() error {
	return r.client.Close()
}

// GetStats возвращает статистику Redis
func (r *RedisCache) GetStats() map[string]interface{} {
	stats := r.client.PoolStats()

	return map[string]interface{}{
		"hits":        stats.Hits,
		"misses":      stats.Misses,
		"timeouts":    stats.Timeouts,
		"total_conns": stats.TotalConns,
		"idle_conns":  stats.IdleConns,
		"stale_conns": stats.StaleConns,
	}
}
