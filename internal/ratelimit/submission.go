package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/smallbiznis/revenuepulse/internal/config"
)

const keySubmitOwner = "revenuepulse:submit:owner:%s"

var ErrLimiterUnavailable = errors.New("rate_limiter_unavailable")

type SubmissionLimiterParams struct {
	fx.In

	Config config.Config
	Client *redis.Client `optional:"true"`
}

// SubmissionLimiter caps how often one owner may enqueue jobs. A disabled
// limiter allows everything.
type SubmissionLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewSubmissionLimiter(p SubmissionLimiterParams) (*SubmissionLimiter, error) {
	limitCfg := p.Config.SubmitRate
	if !limitCfg.Enabled {
		return &SubmissionLimiter{}, nil
	}
	if p.Client == nil {
		return nil, errors.New("submission rate limit requires REDIS_URL")
	}
	if limitCfg.PerMinute <= 0 || limitCfg.Burst <= 0 {
		return nil, errors.New("submission rate limit must be positive")
	}

	return &SubmissionLimiter{
		enabled: true,
		bucket:  NewTokenBucket(p.Client),
		rate:    limitCfg.PerMinute / 60,
		burst:   limitCfg.Burst,
	}, nil
}

func (l *SubmissionLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *SubmissionLimiter) AllowOwner(ctx context.Context, ownerID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keySubmitOwner, strings.TrimSpace(ownerID)), l.rate, l.burst)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return res, nil
}
