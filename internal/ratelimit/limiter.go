// Package ratelimit tracks failed login attempts per identifier and enforces a
// temporary lockout over a sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status reports the lockout state for an identifier.
type Status struct {
	Locked           bool
	RemainingMinutes int
}

// Limiter records attempts in a per-identifier Redis sorted set scored by unix
// time. Only the windowed aggregate is ever read back.
type Limiter struct {
	client    *redis.Client
	window    time.Duration
	threshold int
	now       func() time.Time
}

func New(client *redis.Client, window time.Duration, threshold int) *Limiter {
	if window <= 0 {
		window = 15 * time.Minute
	}
	if threshold <= 0 {
		threshold = 5
	}
	return &Limiter{
		client:    client,
		window:    window,
		threshold: threshold,
		now:       time.Now,
	}
}

func (l *Limiter) key(identifier string) string {
	return "login_attempts:" + identifier
}

// RecordAttempt appends an attempt. A successful attempt clears the failure
// window, so a legitimate login immediately unlocks the identifier.
func (l *Limiter) RecordAttempt(ctx context.Context, identifier, sourceAddr string, success bool) error {
	key := l.key(identifier)
	if success {
		if err := l.client.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("clear attempts: %w", err)
		}
		return nil
	}

	now := l.now()
	member := fmt.Sprintf("%d:%s", now.UnixNano(), sourceAddr)
	pipe := l.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.Unix()), Member: member})
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-l.window).Unix(), 10))
	pipe.Expire(ctx, key, l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// Check evaluates the sliding window. When the failure count reaches the
// threshold, the lock expires when the oldest qualifying failure ages out.
func (l *Limiter) Check(ctx context.Context, identifier string) (Status, error) {
	key := l.key(identifier)
	now := l.now()
	cutoff := strconv.FormatInt(now.Add(-l.window).Unix(), 10)

	if err := l.client.ZRemRangeByScore(ctx, key, "0", cutoff).Err(); err != nil {
		return Status{}, fmt.Errorf("prune attempts: %w", err)
	}

	count, err := l.client.ZCard(ctx, key).Result()
	if err != nil {
		return Status{}, fmt.Errorf("count attempts: %w", err)
	}
	if int(count) < l.threshold {
		return Status{}, nil
	}

	oldest, err := l.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil {
		return Status{}, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(oldest) == 0 {
		return Status{}, nil
	}

	unlockAt := time.Unix(int64(oldest[0].Score), 0).Add(l.window)
	remaining := unlockAt.Sub(now)
	if remaining <= 0 {
		return Status{}, nil
	}

	minutes := int(remaining / time.Minute)
	if remaining%time.Minute > 0 {
		minutes++
	}
	return Status{Locked: true, RemainingMinutes: minutes}, nil
}
