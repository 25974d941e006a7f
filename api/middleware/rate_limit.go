package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dfaith-labs/payout-service/api/responses"
	pkgerrors "github.com/dfaith-labs/payout-service/pkg/errors"
	"github.com/dfaith-labs/payout-service/pkg/logger"
)

type rateLimiterStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	RateLimitKey(string) string
}

// IntakeRateLimitPolicy defines the throttling parameters for the payout
// submission surface.
type IntakeRateLimitPolicy struct {
	window       time.Duration
	ipLimit      int
	addressLimit int
}

// NewIntakeRateLimitPolicy builds a policy with the supplied window and limits.
func NewIntakeRateLimitPolicy(window time.Duration, ipLimit, addressLimit int) IntakeRateLimitPolicy {
	return IntakeRateLimitPolicy{
		window:       window,
		ipLimit:      ipLimit,
		addressLimit: addressLimit,
	}
}

func (p IntakeRateLimitPolicy) enabled() bool {
	return p.window > 0 && (p.ipLimit > 0 || p.addressLimit > 0)
}

// IntakeRateLimit enforces per-IP and per-destination-address counters on
// payout submissions. The body is restored after address extraction so the
// handler can decode it again.
func IntakeRateLimit(policy IntakeRateLimitPolicy, store rateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			ip := clientIP(r)
			if policy.ipLimit > 0 && ip != "" {
				key := store.RateLimitKey(fmt.Sprintf("intake:ip:%s", ip))
				allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.ipLimit))
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if !allowed {
					respondRateLimited(ctx, logg, w, policy, "ip", count, policy.ipLimit)
					return
				}
			}

			if policy.addressLimit > 0 {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))

				address := strings.ToLower(strings.TrimSpace(extractAddress(body)))
				if address != "" {
					key := store.RateLimitKey(fmt.Sprintf("intake:address:%s", address))
					allowed, count, err := allow(ctx, store, key, policy.window, int64(policy.addressLimit))
					if err != nil {
						responses.WriteError(ctx, nil, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
						return
					}
					if !allowed {
						respondRateLimited(ctx, logg, w, policy, "address", count, policy.addressLimit)
						return
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func allow(ctx context.Context, store rateLimiterStore, key string, window time.Duration, limit int64) (bool, int64, error) {
	count, err := store.IncrWithTTL(ctx, key, window)
	if err != nil {
		return false, 0, err
	}
	return count <= limit, count, nil
}

func respondRateLimited(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, policy IntakeRateLimitPolicy, scope string, count int64, limit int) {
	if logg != nil {
		logCtx := logg.WithFields(ctx, map[string]any{
			"scope":          scope,
			"attempts":       count,
			"limit":          limit,
			"window_seconds": int(policy.window.Seconds()),
		})
		logg.Warn(logCtx, "payouts.rate_limit.blocked")
	}
	responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}

func extractAddress(payload []byte) string {
	var body struct {
		DestinationAddress string `json:"destinationAddress"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return ""
	}
	return body.DestinationAddress
}
