package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mariks1/unipeople-notify/internal/model"
)

const (
	employeeKeyPrefix = "unread:emp:"
	roleKeyPrefix     = "unread:role:"
)

// UnreadCache is a read-through cache over the unread counters. Personal and
// role rows are disjoint, so an identity's total is the exact sum of its
// employee key and role keys. A nil client degrades to a pass-through cache.
type UnreadCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewUnreadCache(rdb *redis.Client, ttl time.Duration) *UnreadCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &UnreadCache{rdb: rdb, ttl: ttl}
}

func (c *UnreadCache) get(ctx context.Context, key string) (int64, bool) {
	if c == nil || c.rdb == nil {
		return 0, false
	}
	v, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *UnreadCache) set(ctx context.Context, key string, n int64) {
	if c == nil || c.rdb == nil {
		return
	}
	// best-effort; a failed SET just means the next read hits the DB
	_ = c.rdb.Set(ctx, key, strconv.FormatInt(n, 10), c.ttl).Err()
}

func (c *UnreadCache) GetEmployee(ctx context.Context, employeeID string) (int64, bool) {
	return c.get(ctx, employeeKeyPrefix+employeeID)
}

func (c *UnreadCache) SetEmployee(ctx context.Context, employeeID string, n int64) {
	c.set(ctx, employeeKeyPrefix+employeeID, n)
}

func (c *UnreadCache) GetRole(ctx context.Context, role string) (int64, bool) {
	return c.get(ctx, roleKeyPrefix+role)
}

func (c *UnreadCache) SetRole(ctx context.Context, role string, n int64) {
	c.set(ctx, roleKeyPrefix+role, n)
}

// Invalidate drops the counter keys touched by a fan-out or mutation.
func (c *UnreadCache) Invalidate(ctx context.Context, recipients ...model.Recipient) {
	if c == nil || c.rdb == nil || len(recipients) == 0 {
		return
	}
	keys := make([]string, 0, len(recipients))
	for _, r := range recipients {
		if r.IsRole() {
			keys = append(keys, roleKeyPrefix+r.Role())
		} else {
			keys = append(keys, employeeKeyPrefix+r.EmployeeID())
		}
	}
	_ = c.rdb.Del(ctx, keys...).Err()
}

// InvalidateIdentity drops every key an identity's total is built from.
func (c *UnreadCache) InvalidateIdentity(ctx context.Context, id model.Identity) {
	recs := make([]model.Recipient, 0, 1+len(id.Roles))
	if id.EmployeeID != "" {
		recs = append(recs, model.EmployeeRecipient(id.EmployeeID))
	}
	for _, role := range id.Roles {
		recs = append(recs, model.RoleRecipient(role))
	}
	c.Invalidate(ctx, recs...)
}
