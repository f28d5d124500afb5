package httpx

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/slogx"
	"golang.org/x/time/rate"
)

// Limit is a token bucket: Requests tokens refill over Window and at most
// Burst can be spent at once.
type Limit struct {
	Requests int
	Window   time.Duration
	Burst    int
}

func (l Limit) perSecond() rate.Limit {
	return rate.Limit(float64(l.Requests) / l.Window.Seconds())
}

// Route profiles of the development backend. Each can be overridden with
// RATELIMIT_<NAME>_REQUESTS, RATELIMIT_<NAME>_WINDOW_SEC and
// RATELIMIT_<NAME>_BURST, which the e2e suite uses to relax them.
var (
	// StrictLimit guards login and register against credential stuffing.
	StrictLimit = LimitFromEnv("STRICT", Limit{Requests: 10, Window: time.Minute, Burst: 5})

	// ModerateLimit applies to refresh, logout and authenticated routes.
	ModerateLimit = LimitFromEnv("MODERATE", Limit{Requests: 60, Window: time.Minute, Burst: 20})
)

// LimitFromEnv returns def with any valid RATELIMIT_<name>_* overrides
// applied. Values that are not positive integers are ignored.
func LimitFromEnv(name string, def Limit) Limit {
	prefix := "RATELIMIT_" + name + "_"
	if n, ok := positiveEnv(prefix + "REQUESTS"); ok {
		def.Requests = n
	}
	if n, ok := positiveEnv(prefix + "WINDOW_SEC"); ok {
		def.Window = time.Duration(n) * time.Second
	}
	if n, ok := positiveEnv(prefix + "BURST"); ok {
		def.Burst = n
	}
	return def
}

func positiveEnv(key string) (int, bool) {
	n, err := strconv.Atoi(os.Getenv(key))
	return n, err == nil && n > 0
}

// RateLimitByIP limits each client address.
func RateLimitByIP(l Limit) Middleware {
	return limitBy(l, ClientIP)
}

// RateLimitByUser limits each authenticated subject, falling back to the
// client address for anonymous requests. Mount it after AuthnMiddleware.
func RateLimitByUser(l Limit) Middleware {
	return limitBy(l, func(r *http.Request) string {
		if id := UserIDFromContext(r.Context()); id != "" {
			return "user:" + id
		}
		return ClientIP(r)
	})
}

// RateLimitByIPAndJSONField limits each client address and value of a
// top-level JSON body field together, e.g. login attempts per IP and email.
// A body without the field is limited by address alone.
func RateLimitByIPAndJSONField(l Limit, field string) Middleware {
	return limitBy(l, func(r *http.Request) string {
		ip := ClientIP(r)
		if v := peekJSONField(r, field); v != "" {
			return ip + ":" + v
		}
		return ip
	})
}

// ClientIP returns the first X-Forwarded-For hop, else X-Real-IP, else the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// maxPeekBody caps how much of a body peekJSONField reads.
const maxPeekBody = 64 << 10

// peekJSONField reads a string field from the JSON body, lower-cased and
// trimmed, and puts the body back for the handler.
func peekJSONField(r *http.Request, field string) string {
	if r.Body == nil {
		return ""
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBody))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var fields map[string]json.RawMessage
	if json.Unmarshal(body, &fields) != nil {
		return ""
	}
	var v string
	if json.Unmarshal(fields[field], &v) != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(v))
}

func limitBy(l Limit, key func(*http.Request) string) Middleware {
	b := newBuckets(l)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k == "" {
				next.ServeHTTP(w, r)
				return
			}

			wait, ok := b.take(k, time.Now())
			if ok {
				next.ServeHTTP(w, r)
				return
			}

			retryAfter := int(math.Max(1, math.Ceil(wait.Seconds())))
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.Requests))
			w.Header().Set("X-RateLimit-Window", l.Window.String())

			slogx.FromContext(r.Context()).Warn("rate limit exceeded",
				"key", k,
				"path", r.URL.Path,
				"retry_after", retryAfter,
			)
			WriteError(w, http.StatusTooManyRequests, "too many requests, please try again later")
		})
	}
}

// bucketIdle is how long an unused bucket is kept.
const bucketIdle = 10 * time.Minute

type bucket struct {
	limiter *rate.Limiter
	seen    time.Time
}

// buckets holds one limiter per key and drops idle ones as it goes.
type buckets struct {
	limit rate.Limit
	burst int

	mu    sync.Mutex
	byKey map[string]*bucket
	swept time.Time
}

func newBuckets(l Limit) *buckets {
	return &buckets{
		limit: l.perSecond(),
		burst: l.Burst,
		byKey: map[string]*bucket{},
		swept: time.Now(),
	}
}

// take spends a token for key. When none is available it reports how long
// until one is.
func (b *buckets) take(key string, now time.Time) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Sub(b.swept) > bucketIdle {
		for k, e := range b.byKey {
			if now.Sub(e.seen) > bucketIdle {
				delete(b.byKey, k)
			}
		}
		b.swept = now
	}

	e, ok := b.byKey[key]
	if !ok {
		e = &bucket{limiter: rate.NewLimiter(b.limit, b.burst)}
		b.byKey[key] = e
	}
	e.seen = now

	if e.limiter.AllowN(now, 1) {
		return 0, true
	}
	r := e.limiter.ReserveN(now, 1)
	defer r.CancelAt(now)
	return r.DelayFrom(now), false
}
