// Package publish pushes score updates to external consumers.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"readiness/internal/config"
	"readiness/internal/orchestrator"
	"readiness/internal/score"
)

// Redis publishes every update on a channel and keeps the latest update per
// score type under "<channel>:latest:<type>" for consumers that poll.
type Redis struct {
	client    *redis.Client
	channel   string
	latestTTL time.Duration
	log       *zap.Logger
}

// NewRedis creates a publisher over an existing client
func NewRedis(client *redis.Client, channel string, latestTTL time.Duration, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	return &Redis{
		client:    client,
		channel:   channel,
		latestTTL: latestTTL,
		log:       log.Named("redis"),
	}
}

// DialRedis connects to the configured server and checks it answers
func DialRedis(ctx context.Context, cfg config.PublishConfig, log *zap.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis %s: %w", cfg.RedisAddr, err)
	}
	return NewRedis(client, cfg.RedisChannel, cfg.RedisLatestTTL, log), nil
}

// LatestKey returns the key holding the latest update for t
func (r *Redis) LatestKey(t score.Type) string {
	return r.channel + ":latest:" + string(t)
}

// Name implements orchestrator.Subscriber
func (r *Redis) Name() string { return "redis" }

// OnScore implements orchestrator.Subscriber
func (r *Redis) OnScore(ctx context.Context, u orchestrator.Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encoding update: %w", err)
	}

	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.LatestKey(u.Type), payload, r.latestTTL)
		pipe.Publish(ctx, r.channel, payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publishing %s update: %w", u.Type, err)
	}
	r.log.Debug("published update", zap.String("type", string(u.Type)), zap.String("day", u.Day))
	return nil
}

// Close closes the client
func (r *Redis) Close() error {
	return r.client.Close()
}
