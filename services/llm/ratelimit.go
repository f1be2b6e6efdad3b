// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// rateLimited spaces out Chat calls to a provider.
type rateLimited struct {
	Provider
	limiter *rate.Limiter
}

// WithRateLimit wraps p so that at most perMinute Chat calls start per
// minute. perMinute <= 0 returns p unchanged.
func WithRateLimit(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	interval := time.Minute / time.Duration(perMinute)
	return &rateLimited{Provider: p, limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (r *rateLimited) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: waiting for rate limit: %w", r.Name(), err)
	}
	return r.Provider.Chat(ctx, req)
}
