package output

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/sohell-ranaa/ssh-guardian-2.0-sub001/internal/domain"
)

// RedisPublisher pushes scored events to a Redis pub/sub channel for
// downstream responders (ban workers, dashboards) and keeps the latest
// alert per source address in a TTL'd key so a dashboard can show current
// offenders without replaying the stream.
type RedisPublisher struct {
	client   *redis.Client
	channel  string
	alertTTL time.Duration
}

type RedisConfig struct {
	URL      string
	Channel  string
	AlertTTL time.Duration
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      "redis://localhost:6379/0",
		Channel:  "sshguardian:alerts",
		AlertTTL: time.Hour,
	}
}

// NewRedisPublisher connects and verifies the server is reachable before
// returning. A publisher is an alert path: failing fast at startup beats
// discovering a dead connection during an attack.
func NewRedisPublisher(ctx context.Context, config RedisConfig) (*RedisPublisher, error) {
	opt, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if config.Channel == "" {
		config.Channel = "sshguardian:alerts"
	}
	if config.AlertTTL <= 0 {
		config.AlertTTL = time.Hour
	}

	log.Info().Str("channel", config.Channel).Msg("Redis alert publisher connected")

	return &RedisPublisher{
		client:   client,
		channel:  config.Channel,
		alertTTL: config.AlertTTL,
	}, nil
}

// Send publishes the scored event and refreshes the per-address latest
// alert key in one round trip.
func (p *RedisPublisher) Send(ctx context.Context, se *domain.ScoredEvent) error {
	payload, err := se.ToJSON()
	if err != nil {
		return err
	}

	key := fmt.Sprintf("sshguardian:last_alert:%s", se.Event.SourceIP)

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.channel, payload)
	pipe.SetEx(ctx, key, payload, p.alertTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Flush is a no-op; publishes are not buffered.
func (p *RedisPublisher) Flush() error {
	return nil
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// Ping reports whether the server is still reachable.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
