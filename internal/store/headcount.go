package store

import (
	"context"
	"errors"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Headcount tracks how many participants are currently checked in per seminar.
type Headcount struct {
	client *redis.Client
	prefix string
}

// NewHeadcount builds a tracker storing counters under prefix:<seminar>.
func NewHeadcount(client *redis.Client, prefix string) *Headcount {
	if prefix == "" {
		prefix = "attendance:headcount"
	}
	return &Headcount{client: client, prefix: prefix}
}

func (h *Headcount) key(seminarID string) string {
	return h.prefix + ":" + seminarID
}

// Arrive increments the seminar's counter.
func (h *Headcount) Arrive(ctx context.Context, seminarID string) (int64, error) {
	return h.client.Incr(ctx, h.key(seminarID)).Result()
}

// Leave decrements the counter, never letting it go below zero.
func (h *Headcount) Leave(ctx context.Context, seminarID string) (int64, error) {
	n, err := h.client.Decr(ctx, h.key(seminarID)).Result()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		if err := h.client.Set(ctx, h.key(seminarID), 0, 0).Err(); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return n, nil
}

// Current returns the counter, zero when unset.
func (h *Headcount) Current(ctx context.Context, seminarID string) (int64, error) {
	v, err := h.client.Get(ctx, h.key(seminarID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}
