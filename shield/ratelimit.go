package shield

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/ebookimport/kit"
)

// RateLimitSchema creates the rules table and seeds the import endpoint,
// where each call parses a whole book.
const RateLimitSchema = `
CREATE TABLE IF NOT EXISTS rate_limits (
    endpoint    TEXT PRIMARY KEY,
    per_minute  INTEGER NOT NULL,
    burst       INTEGER NOT NULL DEFAULT 1,
    enabled     INTEGER NOT NULL DEFAULT 1
);
INSERT OR IGNORE INTO rate_limits (endpoint, per_minute, burst) VALUES ('POST /v1/import', 30, 10);
`

// InitRateLimits applies RateLimitSchema to db.
func InitRateLimits(db *sql.DB) error {
	if _, err := db.Exec(RateLimitSchema); err != nil {
		return fmt.Errorf("shield: rate limit schema: %w", err)
	}
	return nil
}

// Rule is a token bucket refilled at PerMinute tokens per minute and
// holding at most Burst tokens.
type Rule struct {
	PerMinute int
	Burst     int
}

func (r Rule) perSecond() float64 { return float64(r.PerMinute) / 60 }

func (r Rule) capacity() float64 { return float64(max(r.Burst, 1)) }

type tokenBucket struct {
	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// idleBucketTTL is how long an untouched bucket survives garbage collection.
const idleBucketTTL = 10 * time.Minute

// RateLimiter throttles each caller per endpoint ("METHOD /path"). The
// caller is the authenticated user when known, the client IP otherwise.
// Endpoints without an enabled rule are not limited.
type RateLimiter struct {
	db      *sql.DB
	mu      sync.RWMutex
	rules   map[string]Rule
	buckets sync.Map // caller|endpoint -> *tokenBucket
	now     func() time.Time
}

// NewRateLimiter loads the rules from the rate_limits table of db.
func NewRateLimiter(db *sql.DB) *RateLimiter {
	rl := &RateLimiter{db: db, rules: map[string]Rule{}, now: time.Now}
	if err := rl.Reload(context.Background()); err != nil {
		slog.Warn("ratelimit: initial load", "error", err)
	}
	return rl
}

// StartReloader re-reads rules every 30s and drops idle buckets every 5min
// until ctx is done.
func (rl *RateLimiter) StartReloader(ctx context.Context) {
	go func() {
		reload := time.NewTicker(30 * time.Second)
		gc := time.NewTicker(5 * time.Minute)
		defer reload.Stop()
		defer gc.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-reload.C:
				if err := rl.Reload(ctx); err != nil {
					slog.Warn("ratelimit: reload", "error", err)
				}
			case <-gc.C:
				rl.dropIdle()
			}
		}
	}()
}

// Reload replaces the rules with the enabled rows of rate_limits. The
// previous rules stay in force when the table cannot be read.
func (rl *RateLimiter) Reload(ctx context.Context) error {
	rows, err := rl.db.QueryContext(ctx,
		`SELECT endpoint, per_minute, burst FROM rate_limits WHERE enabled = 1 AND per_minute > 0`)
	if err != nil {
		return err
	}
	defer rows.Close()

	rules := map[string]Rule{}
	for rows.Next() {
		var endpoint string
		var r Rule
		if err := rows.Scan(&endpoint, &r.PerMinute, &r.Burst); err != nil {
			return err
		}
		rules[endpoint] = r
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rl.mu.Lock()
	rl.rules = rules
	rl.mu.Unlock()
	return nil
}

func (rl *RateLimiter) dropIdle() {
	cutoff := rl.now().Add(-idleBucketTTL)
	rl.buckets.Range(func(key, value any) bool {
		b := value.(*tokenBucket)
		b.mu.Lock()
		idle := b.last.Before(cutoff)
		b.mu.Unlock()
		if idle {
			rl.buckets.Delete(key)
		}
		return true
	})
}

// take consumes one token. When none is left it reports how long until
// the next one is available.
func (rl *RateLimiter) take(caller, endpoint string) (bool, time.Duration) {
	rl.mu.RLock()
	rule, ok := rl.rules[endpoint]
	rl.mu.RUnlock()
	if !ok {
		return true, 0
	}

	now := rl.now()
	v, _ := rl.buckets.LoadOrStore(caller+"|"+endpoint, &tokenBucket{tokens: rule.capacity(), last: now})
	b := v.(*tokenBucket)

	b.mu.Lock()
	defer b.mu.Unlock()
	elapsed := now.Sub(b.last).Seconds()
	b.tokens = math.Min(rule.capacity(), b.tokens+elapsed*rule.perSecond())
	b.last = now
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	wait := (1 - b.tokens) / rule.perSecond()
	return false, time.Duration(wait * float64(time.Second))
}

// Middleware answers 429 with Retry-After once the caller's bucket is empty.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := r.Method + " " + r.URL.Path
		caller := kit.GetUserID(r.Context())
		if caller == "" {
			caller = ExtractIP(r)
		}

		ok, wait := rl.take(caller, endpoint)
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		GetLogger(r.Context()).Warn("rate limited", "caller", caller, "endpoint", endpoint, "retry_in", wait)
		w.Header().Set("Retry-After", strconv.Itoa(max(int(math.Ceil(wait.Seconds())), 1)))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
	})
}

// ExtractIP returns the first X-Forwarded-For hop, or the host of
// RemoteAddr.
func ExtractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
