package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"hrpayroll/internal/transport/http/api"
	"hrpayroll/internal/transport/http/shared"
)

type RateLimitKeyFunc func(r *http.Request) string

type RateLimitOption func(*keyedLimiter)

func WithKeyFunc(fn RateLimitKeyFunc) RateLimitOption {
	return func(kl *keyedLimiter) {
		if fn != nil {
			kl.keyFn = fn
		}
	}
}

// keyedLimiter keeps one token bucket per caller. A bucket holds limit tokens
// and refills completely over window.
type keyedLimiter struct {
	limit  int
	window time.Duration
	every  rate.Limit
	keyFn  RateLimitKeyFunc

	mu         sync.Mutex
	buckets    map[string]*rate.Limiter
	lastPruned time.Time
}

func newKeyedLimiter(limit int, window time.Duration, keyFn RateLimitKeyFunc) *keyedLimiter {
	if keyFn == nil {
		keyFn = actorOrIPKey
	}
	kl := &keyedLimiter{limit: limit, window: window, keyFn: keyFn, buckets: map[string]*rate.Limiter{}}
	if limit > 0 && window > 0 {
		kl.every = rate.Every(window / time.Duration(limit))
	}
	return kl
}

func RateLimit(limit int, window time.Duration, opts ...RateLimitOption) func(http.Handler) http.Handler {
	kl := newKeyedLimiter(limit, window, actorOrIPKey)
	for _, opt := range opts {
		opt(kl)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if kl.allow(w, r) {
				next.ServeHTTP(w, r)
			}
		})
	}
}

// SensitiveMutationRateLimit applies tighter per-actor budgets to calls that
// consume sequence numbers, reach the tax authority or touch signing keys.
func SensitiveMutationRateLimit(baseLimit int, window time.Duration) func(http.Handler) http.Handler {
	credentialByIP := newKeyedLimiter(max(baseLimit/4, 1), window, shared.ClientIP)
	credentialByActor := newKeyedLimiter(max(baseLimit/4, 1), window, actorOrIPKey)
	mutationByActor := newKeyedLimiter(max(baseLimit/2, 1), window, actorOrIPKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch sensitiveRateScope(r) {
			case sensitiveScopeCredential:
				if !credentialByIP.allow(w, r) || !credentialByActor.allow(w, r) {
					return
				}
			case sensitiveScopeActor:
				if !mutationByActor.allow(w, r) {
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func actorOrIPKey(r *http.Request) string {
	if user, ok := GetUser(r.Context()); ok && user.UserID != "" {
		return "user:" + user.TenantID + ":" + user.UserID
	}
	return shared.ClientIP(r)
}

func (kl *keyedLimiter) bucket(key string, now time.Time) *rate.Limiter {
	kl.mu.Lock()
	defer kl.mu.Unlock()

	if now.Sub(kl.lastPruned) > kl.window {
		// Full buckets carry no state worth keeping.
		for k, b := range kl.buckets {
			if b.TokensAt(now) >= float64(kl.limit) {
				delete(kl.buckets, k)
			}
		}
		kl.lastPruned = now
	}
	b, ok := kl.buckets[key]
	if !ok {
		b = rate.NewLimiter(kl.every, kl.limit)
		kl.buckets[key] = b
	}
	return b
}

// allow spends one token for the caller, or writes a 429 and returns false.
func (kl *keyedLimiter) allow(w http.ResponseWriter, r *http.Request) bool {
	if kl.limit <= 0 || kl.every == 0 {
		return true
	}
	key := kl.keyFn(r)
	if key == "" {
		key = shared.ClientIP(r)
	}
	now := time.Now()
	b := kl.bucket(key, now)

	res := b.ReserveN(now, 1)
	delay := res.DelayFrom(now)
	if delay > 0 {
		res.CancelAt(now)
	}
	tokens := b.TokensAt(now)

	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(kl.limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(int(tokens), 0)))
	w.Header().Set("X-RateLimit-Reset", strconv.Itoa(kl.secondsUntilFull(tokens)))

	if delay <= 0 {
		return true
	}
	w.Header().Set("Retry-After", strconv.Itoa(max(int(math.Ceil(delay.Seconds())), 1)))
	slog.Warn("rate limit exceeded",
		"key", key,
		"path", r.URL.Path,
		"method", r.Method,
		"limit", kl.limit,
		"windowSec", int(kl.window.Seconds()),
	)
	api.Fail(w, http.StatusTooManyRequests, "rate_limited", "too many requests", GetRequestID(r.Context()))
	return false
}

func (kl *keyedLimiter) secondsUntilFull(tokens float64) int {
	missing := float64(kl.limit) - tokens
	if missing <= 0 {
		return 0
	}
	return int(math.Ceil(missing / float64(kl.every)))
}

type sensitiveScope string

const (
	sensitiveScopeNone       sensitiveScope = ""
	sensitiveScopeCredential sensitiveScope = "credential"
	sensitiveScopeActor      sensitiveScope = "actor"
)

var sensitiveSuffixes = map[string]sensitiveScope{
	"/sign":     sensitiveScopeCredential,
	"/generate": sensitiveScopeActor,
	"/transmit": sensitiveScopeActor,
}

func sensitiveRateScope(r *http.Request) sensitiveScope {
	if r == nil || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		return sensitiveScopeNone
	}
	path, ok := strings.CutPrefix(r.URL.Path, "/api/v1/payroll/electronic/")
	if !ok {
		return sensitiveScopeNone
	}
	switch path {
	case "credentials":
		return sensitiveScopeCredential
	case "retry/run":
		return sensitiveScopeActor
	}
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		return sensitiveSuffixes[path[i:]]
	}
	return sensitiveScopeNone
}
