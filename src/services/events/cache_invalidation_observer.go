package events

import (
	"context"
	"log/slog"

	"webinyframework/src/entity"
)

type TagInvalidator interface {
	InvalidateTags(ctx context.Context, tags ...string) error
}

// CacheInvalidationObserver drops cached responses tagged with the class of a changed entity.
// It serves single process deployments, otherwise the entity events consumer does this.
type CacheInvalidationObserver struct {
	logger *slog.Logger
	cache  TagInvalidator
}

func NewCacheInvalidationObserver(logger *slog.Logger, cache TagInvalidator) *CacheInvalidationObserver {
	return &CacheInvalidationObserver{logger: logger, cache: cache}
}

func (o *CacheInvalidationObserver) OnEntityEvent(ctx context.Context, event entity.Event) {
	if err := o.cache.InvalidateTags(ctx, event.Class); err != nil {
		o.logger.Warn("Failed to invalidate cache", "class", event.Class, "error", err)
	}
}
