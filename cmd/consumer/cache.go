package main

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"profession-sync/domain"
)

const profileCachePrefix = "fp:"

type profileStore interface {
	FindProfileTouching(ctx context.Context, id primitive.ObjectID) (*domain.Profile, error)
}

type cachedProfile struct {
	Version  int             `json:"version"`
	CachedAt time.Time       `json:"cachedAt"`
	Profile  json.RawMessage `json:"profile"`
}

// cacheUpdater keeps a redis copy of the projection document the directory
// API serves. Every cache failure is logged and swallowed; the projection
// in Mongo stays the source of truth.
type cacheUpdater struct {
	store profileStore
	redis *redis.Client
	ttl   time.Duration
	now   func() time.Time
}

func newCacheUpdater(store profileStore, rc *redis.Client, ttl time.Duration) *cacheUpdater {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &cacheUpdater{store: store, redis: rc, ttl: ttl, now: time.Now}
}

func cacheKey(id primitive.ObjectID) string {
	return profileCachePrefix + id.Hex()
}

// RefreshProfile re-reads the profile touched by the given document id and
// rewrites its cache entry. A profile that no longer exists evicts the
// entry keyed by the same id; the only way a profile disappears is the
// owning user's deletion, where the two ids coincide.
func (c *cacheUpdater) RefreshProfile(ctx context.Context, id primitive.ObjectID) {
	if c == nil || c.redis == nil || c.store == nil {
		return
	}
	p, err := c.store.FindProfileTouching(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		if err := c.redis.Del(ctx, cacheKey(id)).Err(); err != nil {
			log.WithError(err).WithField("id", id.Hex()).Error("evict profile cache entry")
		}
		return
	}
	if err != nil {
		log.WithError(err).WithField("id", id.Hex()).Error("load profile for cache")
		return
	}

	doc, err := bson.MarshalExtJSON(p, false, false)
	if err != nil {
		log.WithError(err).WithField("id", id.Hex()).Error("encode profile cache payload")
		return
	}
	payload := cachedProfile{Version: 1, CachedAt: c.now().UTC(), Profile: doc}
	data, err := sonic.Marshal(payload)
	if err != nil {
		log.WithError(err).WithField("id", id.Hex()).Error("marshal profile cache payload")
		return
	}
	if err := c.redis.Set(ctx, cacheKey(p.ID), data, c.ttl).Err(); err != nil {
		log.WithError(err).WithField("id", p.ID.Hex()).Error("store profile cache entry")
	}
}
