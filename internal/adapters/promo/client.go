// internal/adapters/promo/client.go
package promo

import (
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"casa_booking/internal/adapters/observability"
	"casa_booking/internal/domain"
)

// Client talks to the promotions service that owns coupons.
type Client struct {
	base string
	hc   *http.Client
	key  string
	rl   *rate.Limiter
	cb   *gobreaker.CircuitBreaker
}

var _ domain.CouponValidator = (*Client)(nil)

func New(base, key string, rps int) (*Client, error) {
	if base == "" {
		return nil, fmt.Errorf("promo base URL is required")
	}
	if rps <= 0 {
		rps = 5
	}
	return &Client{
		base: strings.TrimRight(base, "/"),
		hc:   &http.Client{Timeout: 5 * time.Second},
		key:  key,
		rl:   rate.NewLimiter(rate.Limit(rps), rps),
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "promo",
			Timeout: 30 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 5
			},
			// A coupon the service rejects is an answer, not an outage.
			IsSuccessful: func(err error) bool {
				var de *domain.Error
				return err == nil || errors.As(err, &de)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
			},
		}),
	}, nil
}

// ---- Public API ----

type validateRequest struct {
	Code     string          `json:"code"`
	Nights   int             `json:"nights"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

// ValidateCoupon asks the service whether code applies to a stay. Rejections come
// back as the matching COUPON_* error.
func (c *Client) ValidateCoupon(ctx context.Context, code string, nights int, subtotal decimal.Decimal) (domain.CouponResult, error) {
	var out domain.CouponResult
	err := c.call(ctx, http.MethodPost, "/coupons/validate", validateRequest{Code: code, Nights: nights, Subtotal: subtotal}, &out)
	if err != nil {
		return domain.CouponResult{}, err
	}
	if out.CouponID == "" {
		return domain.CouponResult{}, fmt.Errorf("promo: validation response without couponId")
	}
	return out, nil
}

// RedeemCoupon records one use of the coupon.
func (c *Client) RedeemCoupon(ctx context.Context, couponID string) error {
	return c.call(ctx, http.MethodPost, "/coupons/"+url.PathEscape(couponID)+"/redeem", nil, nil)
}

// ---- Internals ----

// ErrUnavailable wraps failures that exhausted retries or hit an open breaker.
var ErrUnavailable = errors.New("promo: service unavailable")

// rejection is the service's error body.
type rejection struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var couponCodes = map[string]domain.Code{
	string(domain.CodeCouponNotFound):  domain.CodeCouponNotFound,
	string(domain.CodeCouponInactive):  domain.CodeCouponInactive,
	string(domain.CodeCouponExpired):   domain.CodeCouponExpired,
	string(domain.CodeCouponExhausted): domain.CodeCouponExhausted,
	string(domain.CodeCouponMinNights): domain.CodeCouponMinNights,
	string(domain.CodeCouponMinAmount): domain.CodeCouponMinAmount,
}

func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.do(ctx, method, path, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}

// do performs a request with client-side rate limiting, retries, and JSON decode into out.
// Retries on 429 and transient 5xx, honoring Retry-After when provided.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if err := c.rl.Wait(ctx); err != nil {
		return err
	}
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}

	var lastErr error
	for i := 0; i < 4; i++ {
		// build a fresh request each attempt
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		if c.key != "" {
			req.Header.Set("X-API-Key", c.key)
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("User-Agent", "casa-booking/1.0")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			observability.ObserveExternal("promo", endpointLabel(path), 0, time.Since(start))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			if i < 3 && sleepCtx(ctx, backoff(i)) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
		}
		observability.ObserveExternal("promo", endpointLabel(path), resp.StatusCode, time.Since(start))

		switch {
		case resp.StatusCode == http.StatusNoContent:
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			return nil

		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			defer resp.Body.Close()
			if out == nil {
				_, _ = io.Copy(io.Discard, resp.Body)
				return nil
			}
			return json.NewDecoder(resp.Body).Decode(out)

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			// Prefer server-provided Retry-After; otherwise exponential backoff.
			wait := retryAfter(resp)
			resp.Body.Close()
			if wait == 0 {
				wait = backoff(i)
			}
			lastErr = fmt.Errorf("remote %d", resp.StatusCode)
			if i < 3 && sleepCtx(ctx, wait) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)

		default:
			b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
			return rejectionError(resp.StatusCode, b)
		}
	}

	return fmt.Errorf("%w: %v", ErrUnavailable, lastErr)
}

// rejectionError maps a 4xx onto the coupon taxonomy; anything else stays untyped.
func rejectionError(status int, body []byte) error {
	var rj rejection
	_ = json.Unmarshal(body, &rj)
	if code, ok := couponCodes[rj.Code]; ok {
		return domain.Errorf(code, "%s", rj.Message)
	}
	if status == http.StatusNotFound {
		return domain.Errorf(domain.CodeCouponNotFound, "coupon not found")
	}
	return fmt.Errorf("promo: bad status %d: %s", status, strings.TrimSpace(string(body)))
}

// endpointLabel keeps coupon ids out of metric labels.
func endpointLabel(path string) string {
	if strings.HasSuffix(path, "/redeem") {
		return "/coupons/{id}/redeem"
	}
	return path
}

// sleepCtx waits for d or returns early if ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryAfter parses Retry-After header (seconds or HTTP-date). Returns 0 if absent/invalid.
func retryAfter(resp *http.Response) time.Duration {
	h := resp.Header.Get("Retry-After")
	if h == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(h)); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(h); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// backoff returns an exponential delay (200ms, 400ms, 800ms...) with up to +50% jitter.
func backoff(i int) time.Duration {
	base := time.Duration(1<<i) * 200 * time.Millisecond
	var b [1]byte
	if _, err := crand.Read(b[:]); err != nil {
		return base
	}
	f := float64(b[0]) / 255.0
	j := time.Duration(0.5 * f * float64(base))
	return base + j
}
