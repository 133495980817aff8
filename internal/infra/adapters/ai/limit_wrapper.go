package ai

import (
	"context"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/ports/adapter"
	"freelance-apply-pipeline/internal/infra/redis"
)

// callLimiter is the slice of the redis rate limiter the wrapper needs.
type callLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ adapter.AIService = (*limitedAI)(nil)

type limitedAI struct {
	inner     adapter.AIService
	provider  string
	sem       chan struct{}
	limiter   callLimiter
	perMinute int
}

// NewLimitedAI caps in-flight calls to the inner service and, when a limiter
// is supplied, enforces a per-minute budget shared across replicas.
func NewLimitedAI(inner adapter.AIService, provider string, maxConcurrent int, limiter callLimiter, perMinute int) adapter.AIService {
	if maxConcurrent <= 0 && (limiter == nil || perMinute <= 0) {
		return inner
	}
	var sem chan struct{}
	if maxConcurrent > 0 {
		sem = make(chan struct{}, maxConcurrent)
	}
	return &limitedAI{
		inner:     inner,
		provider:  provider,
		sem:       sem,
		limiter:   limiter,
		perMinute: perMinute,
	}
}

func (l *limitedAI) Chat(ctx context.Context, messages []adapter.Message) (string, error) {
	if l.limiter != nil && l.perMinute > 0 {
		ok, err := l.limiter.Allow(ctx, redis.AICallKey(l.provider), l.perMinute, time.Minute)
		if err != nil {
			return "", err
		}
		if !ok {
			return "", domain.ErrRateLimited
		}
	}
	if l.sem != nil {
		select {
		case l.sem <- struct{}{}:
			defer func() { <-l.sem }()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return l.inner.Chat(ctx, messages)
}
