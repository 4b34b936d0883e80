package ratelimit

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/keithlinneman/sopranos-api/internal/apierr"
	"github.com/keithlinneman/sopranos-api/internal/httpmw"
	"github.com/keithlinneman/sopranos-api/internal/log"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest counted request leaves the
	// window. Zero when allowed.
	RetryAfter time.Duration
}

// clientWindow is the timestamps of admitted requests for one client, oldest first.
type clientWindow struct {
	mu       sync.Mutex
	hits     []time.Time
	lastSeen time.Time
	// window is the length the hits were last admitted under; the janitor
	// prunes with it rather than the default
	window time.Duration
	// denied is set on the first rejection and cleared on the next admission
	denied bool
	// evicted is set by the janitor, callers holding a stale pointer must re-fetch
	evicted bool
}

// Limiter holds per-client windows.
type Limiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow

	limit  int
	window time.Duration
	ttl    time.Duration
	now    func() time.Time

	// OnFirstDenied is called once when a client starts being rejected.
	OnFirstDenied func(client string)
	// OnDenied is called on every rejection.
	OnDenied func(client string)

	errs    *apierr.Writer
	summary rate.Sometimes
}

type Option func(*Limiter)

// WithLimit sets the default number of requests admitted per window.
func WithLimit(n int) Option {
	return func(l *Limiter) { l.limit = n }
}

// WithWindow sets the default window length.
func WithWindow(d time.Duration) Option {
	return func(l *Limiter) { l.window = d }
}

// WithTTL controls how long an idle client with an empty window is kept
// before the janitor drops it. Zero disables the janitor.
func WithTTL(d time.Duration) Option {
	return func(l *Limiter) { l.ttl = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithOnFirstDenied sets a callback for the first rejection in a run, used for logging.
func WithOnFirstDenied(fn func(client string)) Option {
	return func(l *Limiter) { l.OnFirstDenied = fn }
}

// WithOnDenied sets a callback for every rejection, used for counters.
func WithOnDenied(fn func(client string)) Option {
	return func(l *Limiter) { l.OnDenied = fn }
}

// WithErrorWriter sets the writer used to report rejections from Middleware.
func WithErrorWriter(w *apierr.Writer) Option {
	return func(l *Limiter) { l.errs = w }
}

// WithSummaryInterval sets how often Middleware logs that it is rejecting traffic.
func WithSummaryInterval(d time.Duration) Option {
	return func(l *Limiter) { l.summary = rate.Sometimes{First: 1, Interval: d} }
}

// New creates a Limiter. The janitor goroutine stops when ctx is done.
func New(ctx context.Context, opts ...Option) *Limiter {
	l := &Limiter{
		clients: make(map[string]*clientWindow),
		limit:   100,
		window:  time.Minute,
		ttl:     5 * time.Minute,
		now:     time.Now,
		summary: rate.Sometimes{First: 1, Interval: 30 * time.Second},
	}
	for _, o := range opts {
		o(l)
	}
	if l.errs == nil {
		l.errs = apierr.NewWriter(nil)
	}
	if l.ttl > 0 {
		go l.janitor(ctx)
	}
	return l
}

// Limit returns the configured default limit.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the configured default window.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow is Admit with the configured limit and window.
func (l *Limiter) Allow(client string) Decision {
	return l.Admit(client, l.limit, l.window)
}

// Admit decides whether client may make another request within window.
// An empty client is one shared bucket. limit <= 0 rejects everything.
func (l *Limiter) Admit(client string, limit int, window time.Duration) Decision {
	for {
		cw := l.get(client)
		d, ok := l.admit(cw, client, limit, window)
		if ok {
			return d
		}
	}
}

func (l *Limiter) get(client string) *clientWindow {
	l.mu.Lock()
	defer l.mu.Unlock()
	cw, ok := l.clients[client]
	if !ok {
		cw = &clientWindow{}
		l.clients[client] = cw
	}
	return cw
}

// admit runs prune-check-append under the client's lock. ok is false when
// the window was evicted between lookup and lock.
func (l *Limiter) admit(cw *clientWindow, client string, limit int, window time.Duration) (Decision, bool) {
	cw.mu.Lock()
	if cw.evicted {
		cw.mu.Unlock()
		return Decision{}, false
	}

	now := l.now()
	cw.lastSeen = now
	cw.window = window
	cw.prune(now, window)

	if limit <= 0 || len(cw.hits) >= limit {
		retry := window
		if len(cw.hits) > 0 {
			retry = cw.hits[0].Add(window).Sub(now)
		}
		first := !cw.denied
		cw.denied = true
		cw.mu.Unlock()

		// hooks run outside the lock, they may log or touch metrics
		if first && l.OnFirstDenied != nil {
			l.OnFirstDenied(client)
		}
		if l.OnDenied != nil {
			l.OnDenied(client)
		}
		return Decision{Limit: max(limit, 0), RetryAfter: retry}, true
	}

	cw.hits = append(cw.hits, now)
	cw.denied = false
	remaining := limit - len(cw.hits)
	cw.mu.Unlock()

	return Decision{Allowed: true, Limit: limit, Remaining: remaining}, true
}

// prune drops hits with now - t >= window.
func (cw *clientWindow) prune(now time.Time, window time.Duration) {
	i := 0
	for i < len(cw.hits) && now.Sub(cw.hits[i]) >= window {
		i++
	}
	if i > 0 {
		cw.hits = append(cw.hits[:0], cw.hits[i:]...)
	}
}

// Len returns the number of tracked clients.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

const minSweepInterval = time.Millisecond

// janitor drops clients whose window has drained and who have been idle for ttl.
func (l *Limiter) janitor(ctx context.Context) {
	ticker := time.NewTicker(max(l.ttl/2, minSweepInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.sweep(l.now())
		}
	}
}

func (l *Limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for client, cw := range l.clients {
		cw.mu.Lock()
		window := cw.window
		if window <= 0 {
			window = l.window
		}
		cw.prune(now, window)
		if len(cw.hits) == 0 && now.Sub(cw.lastSeen) > l.ttl {
			cw.evicted = true
			delete(l.clients, client)
		}
		cw.mu.Unlock()
	}
}

// Middleware rejects requests over the per-client limit with 429 and
// {"message": "Rate limit exceeded"}. The client is the IP resolved by
// httpmw.ClientIP.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		client := httpmw.ClientIPFromContext(ctx)
		d := l.Allow(client)

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			h.Set("Retry-After", strconv.Itoa(retrySeconds(d.RetryAfter)))
			l.summary.Do(func() {
				log.FromContext(ctx).Warn(ctx, "rate limiter rejecting requests",
					"tracked_clients", l.Len(),
					"limit", l.limit,
					"window", l.window.String(),
				)
			})
			l.errs.Write(ctx, w, apierr.RateLimited(apierr.Compact()))
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retrySeconds rounds up to whole seconds, minimum 1.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
