// Package middleware provides the pipeline's built-in middleware:
// panic recovery, per-address rate limiting, and structured access logging.
package middleware

import (
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/time/rate"

	"corehttpd/pkg/env"
	"corehttpd/pkg/httpwire"
	"corehttpd/pkg/pipeline"
)

// Recover returns middleware that turns a panic in the successor chain into
// a 500 response instead of letting it escape to the worker's top level.
// If sentry-go has been initialized (see initSentry in cmd/corehttpd), the panic is also
// reported there before being converted.
func Recover(logger *slog.Logger) pipeline.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next pipeline.Handler) pipeline.Handler {
		return func(e env.Env) (resp env.Response) {
			defer func() {
				if r := recover(); r != nil {
					sentry.CurrentHub().Recover(r)
					logger.Error("middleware: recovered panic", "panic", r, "path", e.GetString(env.KeyPathInfo))
					h := env.NewHeader()
					h.Set("Connection", "close")
					resp = env.Response{
						Status:  500,
						Headers: h,
						Body:    env.BufferBody([]byte(httpwire.ReasonPhrase(500))),
					}
				}
			}()
			return next(e)
		}
	}
}

// limiterPool hands out one token-bucket limiter per remote address,
// created lazily and kept for the life of the worker process.
type limiterPool struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func newLimiterPool(rps float64, burst int) *limiterPool {
	return &limiterPool{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.limiters[key]
	if !ok {
		l = rate.NewLimiter(p.rps, p.burst)
		p.limiters[key] = l
	}
	return l
}

// RateLimit returns middleware that rejects requests over rps/burst with a
// 429, keyed by REMOTE_ADDR. A rps of 0 disables limiting.
func RateLimit(rps float64, burst int) pipeline.Middleware {
	if rps <= 0 {
		return func(next pipeline.Handler) pipeline.Handler { return next }
	}
	pool := newLimiterPool(rps, burst)
	return func(next pipeline.Handler) pipeline.Handler {
		return func(e env.Env) env.Response {
			key := e.GetString(env.KeyRemoteAddr)
			if !pool.get(key).Allow() {
				h := env.NewHeader()
				h.Set("Retry-After", "1")
				return env.Response{
					Status:  429,
					Headers: h,
					Body:    env.BufferBody([]byte(httpwire.ReasonPhrase(429))),
				}
			}
			return next(e)
		}
	}
}

// AccessLog returns middleware that logs one structured line per request
// after the successor returns: method, path, remote address, status, and
// latency.
func AccessLog(logger *slog.Logger) pipeline.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next pipeline.Handler) pipeline.Handler {
		return func(e env.Env) env.Response {
			start := time.Now()
			resp := next(e)
			logger.Info("request",
				"method", e.GetString(env.KeyRequestMethod),
				"path", e.GetString(env.KeyPathInfo),
				"remote_addr", e.GetString(env.KeyRemoteAddr),
				"status", resp.Status,
				"duration", time.Since(start),
			)
			return resp
		}
	}
}
