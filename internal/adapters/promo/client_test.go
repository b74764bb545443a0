package promo_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"casa_booking/internal/adapters/promo"
	"casa_booking/internal/domain"
)

func TestClient_Validate_RetriesThenSuccess(t *testing.T) {
	var hits int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/coupons/validate" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		switch atomic.AddInt32(&hits, 1) {
		case 1, 2:
			// two transient failures
			w.WriteHeader(503)
		default:
			var in struct {
				Code     string          `json:"code"`
				Nights   int             `json:"nights"`
				Subtotal decimal.Decimal `json:"subtotal"`
			}
			_ = json.NewDecoder(r.Body).Decode(&in)
			if in.Code != "SAVE10" || in.Nights != 3 {
				t.Errorf("unexpected body: %+v", in)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"couponId": "c1", "code": "SAVE10", "discountType": "PERCENTAGE",
				"discountValue": "10", "discountAmount": in.Subtotal.Div(decimal.NewFromInt(10)).String(),
			})
		}
	}))
	defer ts.Close()

	cl, err := promo.New(ts.URL, "test-key", 100) // high RPS for tests
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got, err := cl.ValidateCoupon(ctx, "SAVE10", 3, decimal.NewFromInt(150))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.CouponID != "c1" || !got.DiscountAmount.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("unexpected result: %+v", got)
	}
	if atomic.LoadInt32(&hits) < 3 {
		t.Fatalf("expected at least 3 calls due to retries, got %d", hits)
	}
}

func TestClient_Validate_RejectionCodes(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"COUPON_MIN_NIGHTS","message":"needs 5 nights"}`))
	}))
	defer ts.Close()

	cl, err := promo.New(ts.URL, "", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	// Rejections must not count as failures: well past the trip threshold the
	// breaker still lets requests through.
	for i := 0; i < 8; i++ {
		_, err = cl.ValidateCoupon(context.Background(), "LONGSTAY", 2, decimal.NewFromInt(100))
		if !errors.Is(err, domain.ErrCouponMinNights) {
			t.Fatalf("attempt %d: expected COUPON_MIN_NIGHTS, got %v", i, err)
		}
	}
}

func TestClient_Validate_404(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	cl, err := promo.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = cl.ValidateCoupon(ctx, "NOPE", 1, decimal.NewFromInt(10))
	if !errors.Is(err, domain.ErrCouponNotFound) {
		t.Fatalf("expected COUPON_NOT_FOUND for 404, got %v", err)
	}
}

func TestClient_Redeem(t *testing.T) {
	var path atomic.Value
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path.Store(r.URL.Path)
		if r.Header.Get("X-API-Key") != "test-key" {
			t.Errorf("missing api key header")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	cl, err := promo.New(ts.URL, "test-key", 100)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := cl.RedeemCoupon(context.Background(), "c1"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := path.Load(); got != "/coupons/c1/redeem" {
		t.Fatalf("unexpected path %v", got)
	}
}

func TestNew_RequiresBase(t *testing.T) {
	if _, err := promo.New("", "k", 1); err == nil {
		t.Fatalf("expected error for empty base URL")
	}
}
