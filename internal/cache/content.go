// Package cache fronts the content store with a Redis read-through cache of
// exam configuration, sections and questions.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/config"
	"github.com/stemsi/exstem-engine/internal/model"
)

// ContentLoader is the backing store the cache reads through to.
type ContentLoader interface {
	GetContent(ctx context.Context, examID uuid.UUID) (*model.ExamContent, error)
}

// ContentCache serves exam content from Redis and falls back to the loader on a
// miss, a corrupt entry, or an unavailable Redis.
type ContentCache struct {
	loader ContentLoader
	rdb    *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

// NewContentCache creates a ContentCache. A nil rdb disables caching.
func NewContentCache(loader ContentLoader, rdb *redis.Client, ttl time.Duration, log zerolog.Logger) *ContentCache {
	return &ContentCache{
		loader: loader,
		rdb:    rdb,
		ttl:    ttl,
		log:    log.With().Str("component", "content_cache").Logger(),
	}
}

// GetContent returns the content of an exam.
func (c *ContentCache) GetContent(ctx context.Context, examID uuid.UUID) (*model.ExamContent, error) {
	if c.rdb == nil {
		return c.loader.GetContent(ctx, examID)
	}

	key := config.CacheKey.ExamContentKey(examID)
	data, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var content model.ExamContent
		if jerr := json.Unmarshal(data, &content); jerr == nil {
			return &content, nil
		}
		c.log.Warn().Str("exam_id", examID.String()).Msg("Corrupt content cache entry, reloading")
	case errors.Is(err, redis.Nil):
	default:
		c.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Content cache read failed")
	}

	content, err := c.loader.GetContent(ctx, examID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, content)
	return content, nil
}

func (c *ContentCache) store(ctx context.Context, content *model.ExamContent) {
	data, err := json.Marshal(content)
	if err != nil {
		c.log.Error().Err(err).Str("exam_id", content.Exam.ID.String()).Msg("Failed to encode exam content")
		return
	}
	if err := c.rdb.Set(ctx, config.CacheKey.ExamContentKey(content.Exam.ID), data, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Str("exam_id", content.Exam.ID.String()).Msg("Content cache write failed")
	}
}

// Invalidate drops the cached content of an exam.
func (c *ContentCache) Invalidate(ctx context.Context, examID uuid.UUID) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Del(ctx, config.CacheKey.ExamContentKey(examID)).Err()
}

// Prewarm loads the given exams into the cache and returns how many succeeded.
func (c *ContentCache) Prewarm(ctx context.Context, examIDs []uuid.UUID) int {
	if c.rdb == nil {
		return 0
	}
	warmed := 0
	for _, id := range examIDs {
		content, err := c.loader.GetContent(ctx, id)
		if err != nil {
			c.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to prewarm exam")
			continue
		}
		c.store(ctx, content)
		warmed++
	}
	c.log.Info().Int("warmed", warmed).Int("total", len(examIDs)).Msg("Content cache prewarm complete")
	return warmed
}
