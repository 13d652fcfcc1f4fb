package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tbourn/go-location-backend/internal/ratelimit"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (s *stepClock) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t
}

func (s *stepClock) Advance(d time.Duration) {
	s.mu.Lock()
	s.t = s.t.Add(d)
	s.mu.Unlock()
}

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:1234"
	c.Request = req

	kf := KeyByUserOrIP()
	if got := kf(c); got != "ip:203.0.113.7" {
		t.Fatalf("ip key = %q", got)
	}
	c.Set(userIDKey, "u1")
	if got := kf(c); got != "user:u1" {
		t.Fatalf("user key = %q", got)
	}
	c.Set(userIDKey, 42)
	if got := kf(c); got != "ip:203.0.113.7" {
		t.Fatalf("wrong-type user id must fall back to ip, got %q", got)
	}
}

func TestIsRateBypass(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if IsRateBypass(c) {
		t.Fatalf("expected false by default")
	}
	c.Set(ctxKeyRateBypass, true)
	if !IsRateBypass(c) {
		t.Fatalf("expected true when set")
	}
	c.Set(ctxKeyRateBypass, "yes")
	if IsRateBypass(c) {
		t.Fatalf("non-bool must read as false")
	}
}

func newThrottledRouter(l *ratelimit.Limiter, p ratelimit.Policy, pre ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Identity())
	r.Use(pre...)
	r.Use(Throttle(l, "geocode", p, nil))
	r.GET("/geocode", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestThrottle_HeadersRejectionAndRecovery(t *testing.T) {
	clk := &stepClock{t: time.Unix(1_700_000_000, 0)}
	l := ratelimit.New(ratelimit.WithClock(clk.Now))
	r := newThrottledRouter(l, ratelimit.Policy{Window: 60 * time.Second, Max: 10})

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/geocode", nil)
		req.Header.Set(HeaderUserID, user)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	baseRejected := testutil.ToFloat64(throttleDecisions.WithLabelValues("geocode", "rejected"))
	wantReset := strconv.FormatInt(clk.Now().Add(60*time.Second).Unix(), 10)

	for i := 1; i <= 10; i++ {
		w := do("u1")
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, w.Code)
		}
		if got := w.Header().Get(HeaderRateRemaining); got != strconv.Itoa(10-i) {
			t.Fatalf("request %d: remaining = %s; want %d", i, got, 10-i)
		}
		if w.Header().Get(HeaderRateLimit) != "10" || w.Header().Get(HeaderRateReset) != wantReset {
			t.Fatalf("request %d: unexpected headers %v", i, w.Header())
		}
	}

	clk.Advance(500 * time.Millisecond)
	w := do("u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("11th request: status %d; want 429", w.Code)
	}
	// 59.5s left rounds up.
	if got := w.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("Retry-After = %q; want 60", got)
	}
	if w.Header().Get(HeaderRateRemaining) != "0" {
		t.Fatalf("remaining on rejection = %q", w.Header().Get(HeaderRateRemaining))
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON body: %v", err)
	}
	if body["code"] != "too_many_requests" || body["request_id"] == "" {
		t.Fatalf("unexpected JSON body: %v", body)
	}
	if got := testutil.ToFloat64(throttleDecisions.WithLabelValues("geocode", "rejected")); got != baseRejected+1 {
		t.Fatalf("rejected counter = %v; want %v", got, baseRejected+1)
	}

	// Another caller has its own budget.
	if w := do("u2"); w.Code != http.StatusOK {
		t.Fatalf("independent identity throttled: %d", w.Code)
	}

	// A new window starts once the old one has ended.
	clk.Advance(59500 * time.Millisecond)
	w = do("u1")
	if w.Code != http.StatusOK || w.Header().Get(HeaderRateRemaining) != "9" {
		t.Fatalf("after window: status %d remaining %s", w.Code, w.Header().Get(HeaderRateRemaining))
	}
}

func TestThrottle_PoliciesShareLimiterWithoutInterference(t *testing.T) {
	gin.SetMode(gin.TestMode)
	l := ratelimit.New()
	one := ratelimit.Policy{Window: time.Minute, Max: 1}

	r := gin.New()
	r.GET("/a", Throttle(l, "a", one, nil), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/b", Throttle(l, "b", one, nil), func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, p := range []string{"/a", "/b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, p, nil))
		if w.Code != http.StatusOK {
			t.Fatalf("first %s: %d", p, w.Code)
		}
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/a", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second /a: %d; want 429", w.Code)
	}
}

func TestThrottle_BypassConsumesNoBudget(t *testing.T) {
	l := ratelimit.New()
	p := ratelimit.Policy{Window: time.Minute, Max: 1}
	bypass := func(c *gin.Context) { c.Set(ctxKeyRateBypass, true); c.Next() }
	r := newThrottledRouter(l, p, bypass)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/geocode", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("bypassed request %d: %d", i, w.Code)
		}
		if w.Header().Get(HeaderRateLimit) != "" {
			t.Fatalf("bypassed requests carry no budget headers")
		}
	}
	if l.Len() != 0 {
		t.Fatalf("bypass must not create counters, have %d", l.Len())
	}
}

func TestCeilHelpers(t *testing.T) {
	if ceilSeconds(0) != 1 || ceilSeconds(time.Millisecond) != 1 || ceilSeconds(2*time.Second) != 2 || ceilSeconds(2001*time.Millisecond) != 3 {
		t.Fatalf("ceilSeconds rounding wrong")
	}
	base := time.Unix(100, 0)
	if ceilUnix(base) != 100 || ceilUnix(base.Add(time.Nanosecond)) != 101 {
		t.Fatalf("ceilUnix rounding wrong")
	}
}
