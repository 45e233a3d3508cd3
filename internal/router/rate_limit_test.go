package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestKeyBySession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/checkout/pay", nil)
	c.Request.RemoteAddr = "1.2.3.4:5678"

	if key := KeyBySession(c); key != "1.2.3.4" {
		t.Fatalf("key want 1.2.3.4 got %s", key)
	}
	c.Set(sessionIDKey, "s1")
	if key := KeyBySession(c); key != "sid|s1" {
		t.Fatalf("key want sid|s1 got %s", key)
	}
}

func TestRateLimitMiddlewareWithoutClient(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimitMiddleware(nil, RateLimitRule{WindowSeconds: 60, MaxRequests: 1}, KeyBySession))
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status want 200 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok":true`) {
		t.Fatalf("expected handler response body, got %s", w.Body.String())
	}
}

func TestRateLimitRuleHelpers(t *testing.T) {
	rule := RateLimitRule{Prefix: "joya:rate:pay", WindowSeconds: 60, MaxRequests: 10, Message: "wait %d s"}
	if got := rule.key("sid|s1"); got != "joya:rate:pay:sid|s1" {
		t.Fatalf("unexpected key: %s", got)
	}
	if got := (RateLimitRule{}).key("1.2.3.4"); got != "1.2.3.4" {
		t.Fatalf("key without prefix want raw got %s", got)
	}
	cases := []struct {
		ttl  int64
		want int
	}{
		{ttl: 42, want: 42},
		{ttl: -1, want: 60},
		{ttl: 0, want: 60},
	}
	for _, tc := range cases {
		if got := rule.retryAfter(tc.ttl); got != tc.want {
			t.Fatalf("retryAfter(%d) want %d got %d", tc.ttl, tc.want, got)
		}
	}
	if got := (RateLimitRule{}).retryAfter(-2); got != 1 {
		t.Fatalf("retryAfter floor want 1 got %d", got)
	}
	if got := rule.message(42); got != "wait 42 s" {
		t.Fatalf("unexpected message: %s", got)
	}
	if got := (RateLimitRule{}).message(5); !strings.Contains(got, "5 seconds") {
		t.Fatalf("unexpected default message: %s", got)
	}
	if (RateLimitRule{WindowSeconds: 60}).enabled() {
		t.Fatalf("rule without max requests must be disabled")
	}
}
