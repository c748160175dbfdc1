package ratelimit

import "context"

// RateLimiter caps outbound sends per delivery channel. Wait blocks until
// a slot opens or the context is done.
type RateLimiter interface {
	Allow(ctx context.Context, channel string) (bool, error)
	Wait(ctx context.Context, channel string) error
}
