package router

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	logx "remindbot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

const (
	slowCommand    = 750 * time.Millisecond
	throttledUsers = 4096
)

func reqLog(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}

// WithTimeout bounds a handler; d <= 0 leaves it unbounded.
func WithTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// Recover turns a handler panic into an error.
func Recover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					reqLog(log, req).Error("command panicked", logx.Any("panic", r), logx.Stack())
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

// LogCommands writes one line per handled command: warn on failure, info
// when slow, debug otherwise.
func LogCommands(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			began := time.Now()
			err := next(ctx, req)
			took := time.Since(began)

			l := reqLog(log, req).With(
				logx.String("cmd", req.Command),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Int64("from_id", req.Msg.FromID),
				logx.Duration("dur", took),
			)
			switch {
			case err != nil:
				l.Warn("command failed", logx.Err(err))
			case took >= slowCommand:
				l.Info("command handled")
			default:
				l.Debug("command handled")
			}
			return err
		}
	}
}

// ThrottleUsers gives every sender a token bucket of perSec with the given
// burst. Over-limit commands go to onLimited instead of next. Buckets of
// users idle for ttl are forgotten. perSec <= 0 disables throttling.
func ThrottleUsers(perSec float64, burst int, ttl time.Duration, onLimited HandlerFunc) Middleware {
	if perSec <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }
	}
	buckets := expirable.NewLRU[int64, *rate.Limiter](throttledUsers, nil, ttl)
	bucket := func(uid int64) *rate.Limiter {
		if lim, ok := buckets.Get(uid); ok {
			return lim
		}
		lim := rate.NewLimiter(rate.Limit(perSec), max(1, burst))
		buckets.Add(uid, lim)
		return lim
	}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if bucket(req.Msg.FromID).Allow() {
				return next(ctx, req)
			}
			if onLimited != nil {
				return onLimited(ctx, req)
			}
			return nil
		}
	}
}
