package httpserver

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"casa_booking/internal/app"
	"casa_booking/internal/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct turns validator failures into one VALIDATION error naming every field.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return domain.Errorf(domain.CodeValidation, "%v", err)
	}
	msgs := make([]string, 0, len(ves))
	for _, fe := range ves {
		msg := fe.Namespace()
		if i := strings.Index(msg, "."); i >= 0 {
			msg = msg[i+1:]
		}
		msg += " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return domain.Errorf(domain.CodeValidation, "%s", strings.Join(msgs, "; "))
}

type searchParams struct {
	CheckIn       string `json:"checkIn" validate:"required"`
	CheckOut      string `json:"checkOut" validate:"required"`
	OccupancyType string `json:"occupancyType" validate:"required,oneof=single double unit"`
	Guests        int    `json:"guests" validate:"min=0,max=100"`
	HasAC         *bool  `json:"hasAC"`
	PricingTier   string `json:"pricingTier" validate:"omitempty,oneof=STANDARD CORPORATE SEASONAL"`
}

func (p searchParams) toQuery() (app.SearchQuery, error) {
	dr, err := domain.ParseDateRange(p.CheckIn, p.CheckOut)
	if err != nil {
		return app.SearchQuery{}, err
	}
	return app.SearchQuery{
		Range:         dr,
		OccupancyType: app.OccupancyType(p.OccupancyType),
		Guests:        p.Guests,
		HasAC:         p.HasAC,
		PricingTier:   domain.PricingTier(p.PricingTier),
	}, nil
}

type targetRequest struct {
	TargetType string `json:"targetType" validate:"required,oneof=ROOM UNIT"`
	TargetID   string `json:"targetId" validate:"required,max=64"`
}

func (t targetRequest) target() domain.Target {
	return domain.Target{Type: domain.TargetType(t.TargetType), ID: t.TargetID}
}

type lockRequest struct {
	targetRequest
	CheckIn  string `json:"checkIn" validate:"required"`
	CheckOut string `json:"checkOut" validate:"required"`
}

type bookingRequest struct {
	SessionKeys []string        `json:"sessionKeys" validate:"required,min=1,max=10,dive,required,max=64"`
	Items       []targetRequest `json:"items" validate:"required,min=1,max=10,dive"`
	CheckIn     string          `json:"checkIn" validate:"required"`
	CheckOut    string          `json:"checkOut" validate:"required"`
	Guests      int             `json:"guests" validate:"required,min=1,max=100"`
	CouponCode  string          `json:"couponCode" validate:"omitempty,max=50"`
	Notes       *string         `json:"notes" validate:"omitempty,max=500"`
	PricingTier string          `json:"pricingTier" validate:"omitempty,oneof=STANDARD CORPORATE SEASONAL"`
}

func (b bookingRequest) toInput() (app.CreateBookingInput, error) {
	dr, err := domain.ParseDateRange(b.CheckIn, b.CheckOut)
	if err != nil {
		return app.CreateBookingInput{}, err
	}
	items := make([]domain.Target, len(b.Items))
	for i, it := range b.Items {
		items[i] = it.target()
	}
	return app.CreateBookingInput{
		SessionKeys: b.SessionKeys,
		Items:       items,
		Range:       dr,
		Guests:      b.Guests,
		CouponCode:  b.CouponCode,
		Notes:       b.Notes,
		PricingTier: domain.PricingTier(b.PricingTier),
	}, nil
}

// Cancellation is not offered here; it goes through the cancel route.
type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED CHECKED_IN CHECKED_OUT"`
}
