package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidateAttemptCache drops the attempt detail and every cached list of its owner
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, userID string) {
	if attemptID != 0 {
		SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	}
	if userID != "" {
		SafeInvalidatePattern(ctx, cm.Attempt, fmt.Sprintf("user:%s:*", userID))
	}
}
