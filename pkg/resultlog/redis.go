// Package resultlog публикует терминальные исходы запросов в Redis:
// внешние инструменты (мониторинг, оркестрация отчетов) могут опрашивать
// последнее состояние или подписываться на события.
package resultlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// QueryResult представляет исход одного запроса, публикуемый в Redis.
//
// Redis-ключи:
//
//	SET  dbcopilot:query:<id>:state  <JSON>  EX <ttl>  — для опроса (polling)
//	PUB  dbcopilot:queries                             — для подписки (pub/sub)
type QueryResult struct {
	QueryID    string    `json:"query_id"`
	Status     string    `json:"status"` // "success" | "canceled" | "error"
	FinishedAt time.Time `json:"finished_at"`
	DurationMs float64   `json:"duration_ms"`
	TotalRows  int64     `json:"total_rows"`
	Error      *string   `json:"error,omitempty"`
}

// Config - настройки подключения к Redis.
type Config struct {
	Address  string
	Password string
	DB       int
	TTL      int // секунд жизни state-ключа
}

// eventChannel - общий pub/sub канал всех запросов.
const eventChannel = "dbcopilot:queries"

// RedisPublisher публикует исходы запросов в Redis.
type RedisPublisher struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPublisher создает publisher на основе конфигурации.
func NewRedisPublisher(cfg Config) *RedisPublisher {
	if cfg.TTL <= 0 {
		cfg.TTL = 3600
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &RedisPublisher{
		client: client,
		ttl:    time.Duration(cfg.TTL) * time.Second,
	}
}

// Publish публикует исход запроса:
//   - SET dbcopilot:query:<id>:state <JSON> EX <ttl>
//   - PUBLISH dbcopilot:queries <JSON>
func (p *RedisPublisher) Publish(ctx context.Context, result QueryResult) error {
	if result.FinishedAt.IsZero() {
		result.FinishedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	stateKey := fmt.Sprintf("dbcopilot:query:%s:state", result.QueryID)

	if err := p.client.Set(ctx, stateKey, payload, p.ttl).Err(); err != nil {
		return fmt.Errorf("redis SET failed: %w", err)
	}
	if err := p.client.Publish(ctx, eventChannel, payload).Err(); err != nil {
		return fmt.Errorf("redis PUBLISH failed: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis.
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
