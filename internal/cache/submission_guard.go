package cache

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SubmissionGuard serialises grading submissions per (user, year, section).
// A held guard spans the retake check and the attempt insert.
type SubmissionGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewSubmissionGuard(client *redis.Client, ttl time.Duration) *SubmissionGuard {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &SubmissionGuard{client: client, prefix: "guard:grade:", ttl: ttl}
}

// Enabled reports whether a Redis client backs the guard.
func (g *SubmissionGuard) Enabled() bool {
	return g != nil && g.client != nil
}

func (g *SubmissionGuard) key(userID, year, section string) string {
	return fmt.Sprintf("%s%s:%s:%s", g.prefix, userID, year, section)
}

// Acquire takes the guard. ok is false when another submission holds it.
// Without Redis it always succeeds and release is a no-op.
func (g *SubmissionGuard) Acquire(ctx context.Context, userID, year, section string) (release func(), ok bool, err error) {
	if !g.Enabled() {
		return func() {}, true, nil
	}

	key := g.key(userID, year, section)
	token := uuid.NewString()

	acquired, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return func() {}, false, fmt.Errorf("submission guard: %w", err)
	}
	if !acquired {
		return func() {}, false, nil
	}

	release = func() {
		// release must outlive a cancelled request context
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, g.client, []string{key}, token).Err(); err != nil {
			slog.WarnContext(ctx, "Failed to release submission guard, held until TTL",
				"error", err,
				"key", key,
				"ttl", g.ttl)
		}
	}
	return release, true, nil
}
