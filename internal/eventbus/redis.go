/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ErrCircuitOpen is returned while a publisher is backing off after
// repeated failures.
var ErrCircuitOpen = errors.New("publisher circuit open")

// RedisConfig contains Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel prefixes the event type to form the pub/sub channel.
	Channel string

	PoolSize     int
	MinIdleConns int

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Circuit breaker
	MaxFailures   int
	CheckInterval time.Duration
}

// DefaultRedisConfig returns default Redis configuration.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		Channel:       DefaultPrefix,
		PoolSize:      4,
		MinIdleConns:  1,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxFailures:   5,
		CheckInterval: 30 * time.Second,
	}
}

// breaker stops calls after maxFails consecutive failures and lets one
// through again once interval has passed.
type breaker struct {
	mu        sync.Mutex
	failCount int
	maxFails  int
	interval  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

func newBreaker(maxFails int, interval time.Duration) *breaker {
	if maxFails < 1 {
		maxFails = 1
	}
	return &breaker{maxFails: maxFails, interval: interval, now: time.Now}
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failCount < b.maxFails {
		return true
	}
	return b.now().Sub(b.openedAt) >= b.interval
}

// record returns true when this result tripped the breaker.
func (b *breaker) record(err error) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err == nil {
		b.failCount = 0
		return false
	}
	b.failCount++
	if b.failCount >= b.maxFails {
		tripped := b.failCount == b.maxFails
		b.openedAt = b.now()
		return tripped
	}
	return false
}

// RedisPublisher publishes events on Redis pub/sub channels named
// "<channel>.<event type>".
type RedisPublisher struct {
	client  *redis.Client
	channel string
	breaker *breaker
	logger  zerolog.Logger
}

// NewRedisPublisher connects to Redis. A failed ping is reported but the
// publisher is still returned; the breaker handles an absent server.
func NewRedisPublisher(ctx context.Context, cfg RedisConfig, logger zerolog.Logger) (*RedisPublisher, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address not set")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	rp := &RedisPublisher{
		client:  client,
		channel: cfg.Channel,
		breaker: newBreaker(cfg.MaxFailures, cfg.CheckInterval),
		logger:  logger.With().Str("publisher", "redis").Logger(),
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		rp.logger.Warn().Err(err).Str("addr", cfg.Addr).Msg("redis not reachable yet")
	} else {
		rp.logger.Info().Str("addr", cfg.Addr).Msg("redis event publisher connected")
	}
	return rp, nil
}

func (rp *RedisPublisher) Name() string { return "redis" }

// Publish sends data to the channel for eventType.
func (rp *RedisPublisher) Publish(ctx context.Context, eventType string, data []byte) error {
	if !rp.breaker.allow() {
		return ErrCircuitOpen
	}
	channel := subjectFor(rp.channel, eventType)
	err := rp.client.Publish(ctx, channel, data).Err()
	if rp.breaker.record(err) {
		rp.logger.Warn().Err(err).Msg("redis failure threshold reached, backing off")
	}
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", channel, err)
	}
	return nil
}

// Close closes the Redis client.
func (rp *RedisPublisher) Close() error {
	return rp.client.Close()
}
