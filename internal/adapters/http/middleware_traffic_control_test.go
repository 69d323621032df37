package httpadapter

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kirillkom/glossary-rag-gateway/internal/config"
)

func TestRateLimitRejectsBeyondBurst(t *testing.T) {
	handler := newTestHandler(config.Config{
		APIRateLimitRPS:   0.5,
		APIRateLimitBurst: 2,
	}, &glossaryServiceFake{}, &answerServiceFake{})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/glossaries", nil))
		codes = append(codes, last.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("expected 200, 200, 429, got %v", codes)
	}
	if got := last.Header().Get("Retry-After"); got != "2" {
		t.Fatalf("expected Retry-After 2 at 0.5 rps, got %q", got)
	}
	if got := decodeDetail(t, last); got != "Rate limit exceeded. Retry later." {
		t.Fatalf("unexpected detail %q", got)
	}
}

func TestBackpressureSheds503WhileSlotIsHeld(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	firstCode := make(chan int, 1)
	var rejections []string

	slow := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusNoContent)
	})
	handler := backpressureMiddleware(slow, 1, 20*time.Millisecond, func(reason string) {
		rejections = append(rejections, reason)
	})

	go func() {
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/rag/answer", nil))
		firstCode <- res.Code
	}()
	<-entered

	shed := httptest.NewRecorder()
	handler.ServeHTTP(shed, httptest.NewRequest(http.MethodPost, "/rag/answer", nil))
	if shed.Code != http.StatusServiceUnavailable || shed.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 503 with Retry-After 1, got %d %q", shed.Code, shed.Header().Get("Retry-After"))
	}
	if got := decodeDetail(t, shed); got != "Server is busy. Retry later." {
		t.Fatalf("unexpected detail %q", got)
	}
	if len(rejections) != 1 || rejections[0] != "backpressure" {
		t.Fatalf("expected one backpressure rejection, got %v", rejections)
	}

	close(release)
	select {
	case code := <-firstCode:
		if code != http.StatusNoContent {
			t.Fatalf("held request expected 204, got %d", code)
		}
	case <-time.After(time.Second):
		t.Fatalf("held request never completed")
	}
}

func TestAuthMiddlewareRequiresBearerKey(t *testing.T) {
	handler := newTestHandler(config.Config{APIKey: "secret-key"}, &glossaryServiceFake{}, &answerServiceFake{})

	cases := []struct {
		path   string
		header string
		status int
	}{
		{"/glossaries", "", http.StatusUnauthorized},
		{"/glossaries", "Bearer wrong", http.StatusUnauthorized},
		{"/glossaries", "Bearer secret-key", http.StatusOK},
		{"/healthz", "", http.StatusOK},
		{"/metrics", "", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		if res.Code != tc.status {
			t.Fatalf("%s with %q: expected %d, got %d", tc.path, tc.header, tc.status, res.Code)
		}
	}
}

func TestCORSPreflightForAllowedOrigin(t *testing.T) {
	handler := newTestHandler(config.Config{
		APIKey:             "secret-key",
		CORSAllowedOrigins: []string{"https://app.example"},
	}, &glossaryServiceFake{}, &answerServiceFake{})

	req := httptest.NewRequest(http.MethodOptions, "/rag/answer", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Fatalf("expected allowed origin header, got %q", got)
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	cases := map[float64]string{0: "1", 0.2: "1", 1: "1", 1.01: "2", 2.5: "3"}
	for in, want := range cases {
		if got := retryAfterSeconds(in); got != want {
			t.Fatalf("retryAfterSeconds(%v) = %q, want %q", in, got, want)
		}
	}
}
