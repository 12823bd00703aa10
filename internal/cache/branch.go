// Package cache fronts read-mostly lookups with Redis.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"appointment-booking-api/internal/logging"
	"appointment-booking-api/internal/model"
)

const branchesKey = "appointments:branches:v1"

type BranchCache struct {
	rdb *redis.Client
	ttl time.Duration
	log logrus.FieldLogger
}

// Dial parses a redis:// URL and checks the server answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewBranchCache(rdb *redis.Client, ttl time.Duration, log logrus.FieldLogger) *BranchCache {
	if log == nil {
		log = logging.Discard()
	}
	return &BranchCache{rdb: rdb, ttl: ttl, log: log}
}

func (c *BranchCache) GetBranches(ctx context.Context) ([]model.Branch, bool) {
	raw, err := c.rdb.Get(ctx, branchesKey).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		logging.WithContext(ctx, c.log).WithError(err).Warn("branch cache read failed")
		return nil, false
	}
	var out []model.Branch
	if err := json.Unmarshal(raw, &out); err != nil {
		logging.WithContext(ctx, c.log).WithError(err).Warn("branch cache entry corrupt")
		return nil, false
	}
	return out, true
}

func (c *BranchCache) SetBranches(ctx context.Context, branches []model.Branch) error {
	raw, err := json.Marshal(branches)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, branchesKey, raw, c.ttl).Err()
}

// Invalidate drops the cached list, e.g. after reseeding.
func (c *BranchCache) Invalidate(ctx context.Context) error {
	return c.rdb.Del(ctx, branchesKey).Err()
}
