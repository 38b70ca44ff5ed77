// Package otpstore keeps one-time codes and per-email send counters in Redis.
//
// Codes live under otp:<email> with a TTL; counters live under
// otp_attempts:<email> and never expire on their own.
package otpstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/dmitrijs2005/linksphere/internal/common"
	"github.com/redis/go-redis/v9"
)

const (
	codePrefix     = "otp:"
	attemptsPrefix = "otp_attempts:"
)

func codeKey(email string) string     { return codePrefix + email }
func attemptsKey(email string) string { return attemptsPrefix + email }

type Store struct {
	rdb redis.Cmdable
}

func New(rdb redis.Cmdable) *Store {
	return &Store{rdb: rdb}
}

// NewClient builds a client from a redis:// URL.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

// SetCode overwrites any previous code for email.
func (s *Store) SetCode(ctx context.Context, email, code string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, codeKey(email), code, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// GetCode returns common.ErrNotFound for a missing or expired code.
func (s *Store) GetCode(ctx context.Context, email string) (string, error) {
	code, err := s.rdb.Get(ctx, codeKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("redis get: %w", err)
	}
	return code, nil
}

func (s *Store) DeleteCode(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, codeKey(email)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Attempts reads the send counter; a missing key counts as zero.
func (s *Store) Attempts(ctx context.Context, email string) (int64, error) {
	v, err := s.rdb.Get(ctx, attemptsKey(email)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis get: %w", err)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("attempts counter %q: %w", v, err)
	}
	return n, nil
}

func (s *Store) IncrAttempts(ctx context.Context, email string) (int64, error) {
	n, err := s.rdb.Incr(ctx, attemptsKey(email)).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	return n, nil
}

// DecrAttempts hands back a slot taken by IncrAttempts.
func (s *Store) DecrAttempts(ctx context.Context, email string) error {
	if err := s.rdb.Decr(ctx, attemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("redis decr: %w", err)
	}
	return nil
}

// Reset drops both the code and the counter. Missing keys are fine.
func (s *Store) Reset(ctx context.Context, email string) error {
	if err := s.rdb.Del(ctx, codeKey(email), attemptsKey(email)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
