package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return fmt.Sprintf("payout:rate_limit:%s", scope)
}

const testAddress = "0x1111111111111111111111111111111111111111"

func submitBody() string {
	return fmt.Sprintf(`{"amount":"5","destinationAddress":"%s"}`, testAddress)
}

func TestIntakeRateLimitAllowsUnderLimit(t *testing.T) {
	store := newFakeRateStore()
	policy := NewIntakeRateLimitPolicy(time.Minute, 2, 2)
	handler := IntakeRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		if !strings.Contains(string(body), testAddress) {
			t.Fatalf("body not restored for handler: %s", string(body))
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(submitBody()))
	req.RemoteAddr = "1.2.3.4:5678"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestIntakeRateLimitAddressLimitTriggers(t *testing.T) {
	store := newFakeRateStore()
	policy := NewIntakeRateLimitPolicy(time.Minute, 0, 2)
	handler := IntakeRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(submitBody()))
		req.RemoteAddr = "1.2.3.4:5678"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if i < 2 {
			if rec.Code != http.StatusOK {
				t.Fatalf("expected success before limit, got %d", rec.Code)
			}
			continue
		}
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected 429, got %d", rec.Code)
		}
		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		if payload.Error.Code != string(pkgerrors.CodeRateLimit) {
			t.Fatalf("unexpected error code %s", payload.Error.Code)
		}
	}
}

func TestIntakeRateLimitIPLimitTriggers(t *testing.T) {
	store := newFakeRateStore()
	policy := NewIntakeRateLimitPolicy(time.Minute, 1, 0)
	handler := IntakeRateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(submitBody()))
	first.RemoteAddr = "9.9.9.9:1111"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request allowed, got %d", rec.Code)
	}

	second := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(submitBody()))
	second.RemoteAddr = "9.9.9.9:2222"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for same ip, got %d", rec.Code)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(submitBody()))
	other.RemoteAddr = "8.8.8.8:3333"
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected different ip allowed, got %d", rec.Code)
	}
}

func TestIntakeRateLimitDisabledPolicyPassesThrough(t *testing.T) {
	handler := IntakeRateLimit(IntakeRateLimitPolicy{}, newFakeRateStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payouts", strings.NewReader(submitBody()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestClientIPPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:80"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(req); got != "203.0.113.9" {
		t.Fatalf("unexpected ip %s", got)
	}
}
