package ratelimit

import (
	"context"
	"fmt"
)

// RedeemLimiter throttles public coupon redemption per client address. It
// is advisory only: when Redis is absent or failing the request proceeds,
// because redemption correctness is carried by the store's conditioned
// increment, not by this limiter.
type RedeemLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewRedeemLimiter(bucket *TokenBucket) *RedeemLimiter {
	if bucket == nil {
		return nil
	}
	return &RedeemLimiter{
		bucket: bucket,
		rate:   0.5,
		burst:  5,
	}
}

func (l *RedeemLimiter) Allow(ctx context.Context, clientAddr string) bool {
	if l == nil || l.bucket == nil {
		return true
	}
	result, err := l.bucket.Allow(ctx, fmt.Sprintf("ratelimit:redeem:%s", clientAddr), l.rate, l.burst)
	if err != nil {
		return true
	}
	return result.Allowed
}
