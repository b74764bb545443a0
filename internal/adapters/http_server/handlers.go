// internal/adapters/http_server/handlers.go
package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"casa_booking/internal/adapters/observability"
	"casa_booking/internal/app"
	"casa_booking/internal/domain"
)

const (
	headerUserID      = "X-User-ID"
	headerUserRole    = "X-User-Role"
	headerIdempotency = "Idempotency-Key"

	codeUnauthorized = "UNAUTHORIZED"
	codeRateLimited  = "RATE_LIMITED"

	maxBodyBytes = 1 << 20
)

type Handlers struct {
	Search   *app.SearchService
	Locks    *app.LockManager
	Bookings *app.BookingService
	Queries  *app.QueryService

	// LockLimiter throttles lock acquisition per client; nil disables it.
	LockLimiter *ClientLimiter
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Get("/v1/availability", h.search)

	s.mux.Group(func(r chi.Router) {
		if h.LockLimiter != nil {
			r.Use(h.LockLimiter.Middleware)
		}
		r.Post("/v1/locks", h.acquireLock)
	})
	s.mux.Delete("/v1/locks/{sessionKey}", h.releaseLock)

	s.mux.Post("/v1/bookings", h.createBooking)
	s.mux.Get("/v1/bookings", h.listBookings)
	s.mux.Get("/v1/bookings/{id}", h.getBooking)
	s.mux.Post("/v1/bookings/{id}/cancel", h.cancelBooking)
	s.mux.Patch("/v1/bookings/{id}/status", h.updateStatus)
}

/********** responses **********/

func writeProblem(w http.ResponseWriter, status int, title, code, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail, Code: code}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound, domain.CodeCouponNotFound:
		return http.StatusNotFound
	case domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeConflict, domain.CodeAlreadyLocked:
		return http.StatusConflict
	case domain.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

// writeError maps a core failure onto problem+json. Untyped errors are logged and
// reported as INTERNAL without their text.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	detail := "internal error"
	var de *domain.Error
	if errors.As(err, &de) {
		detail = de.Message
	}
	if code == domain.CodeInternal {
		log.Error().Err(err).Str("route", routeOf(r)).Msg("request failed")
		detail = "internal error"
	}
	writeProblem(w, status, http.StatusText(status), string(code), detail)
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.CodeOf(err))
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal response")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", string(domain.CodeInternal), "internal error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

/********** request plumbing **********/

type identity struct {
	UserID string
	Role   domain.Role
}

// identify reads the caller from the gateway-supplied identity headers.
func identify(r *http.Request) (identity, error) {
	id := identity{UserID: strings.TrimSpace(r.Header.Get(headerUserID)), Role: domain.RoleGuest}
	if id.UserID == "" {
		return identity{}, errUnauthorized
	}
	if role := strings.ToUpper(strings.TrimSpace(r.Header.Get(headerUserRole))); role != "" {
		switch domain.Role(role) {
		case domain.RoleGuest, domain.RoleStaff, domain.RoleManager, domain.RoleAdmin:
			id.Role = domain.Role(role)
		default:
			return identity{}, domain.Errorf(domain.CodeValidation, "unknown role %q", role)
		}
	}
	return id, nil
}

var errUnauthorized = errors.New("missing " + headerUserID)

func writeIdentityError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnauthorized) {
		writeProblem(w, http.StatusUnauthorized, "Unauthorized", codeUnauthorized, "identify the caller with "+headerUserID)
		return
	}
	writeError(w, r, err)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return domain.Errorf(domain.CodeValidation, "invalid JSON body: %v", err)
	}
	return validateStruct(dst)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, domain.Errorf(domain.CodeValidation, "%s must be an integer", key)
	}
	return n, nil
}

/********** availability **********/

func (h *Handlers) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	guests, err := queryInt(r, "guests", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	p := searchParams{
		CheckIn:       q.Get("checkIn"),
		CheckOut:      q.Get("checkOut"),
		OccupancyType: strings.ToLower(q.Get("occupancyType")),
		Guests:        guests,
		PricingTier:   strings.ToUpper(q.Get("pricingTier")),
	}
	if v := q.Get("hasAC"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, domain.Errorf(domain.CodeValidation, "hasAC must be true or false"))
			return
		}
		p.HasAC = &b
	}
	if err := validateStruct(&p); err != nil {
		writeError(w, r, err)
		return
	}
	sq, err := p.toQuery()
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.Search.Search(r.Context(), sq)
	observability.ObserveOp("search", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

/********** locks **********/

func (h *Handlers) acquireLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	dr, err := domain.ParseDateRange(req.CheckIn, req.CheckOut)
	if err != nil {
		writeError(w, r, err)
		return
	}

	lock, err := h.Locks.Acquire(r.Context(), req.target(), dr)
	observability.ObserveOp("lock_acquire", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lock)
}

func (h *Handlers) releaseLock(w http.ResponseWriter, r *http.Request) {
	err := h.Locks.Release(r.Context(), chi.URLParam(r, "sessionKey"))
	observability.ObserveOp("lock_release", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

/********** bookings **********/

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	var req bookingRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, r, err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get(headerIdempotency))

	b, err := h.Bookings.CreateBooking(r.Context(), who.UserID, in)
	observability.ObserveOp("booking_create", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	b, err := h.Queries.GetBooking(r.Context(), chi.URLParam(r, "id"), who.UserID, who.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}

	etag, body := calcETagAndBody(b)
	// If client already has this version, short-circuit.
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write getBooking body")
	}
}

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	page, err := queryInt(r, "page", 1)
	if err != nil {
		writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := domain.BookingsQuery{UserID: who.UserID, Page: page, Limit: limit}
	if s := r.URL.Query().Get("status"); s != "" {
		st := domain.BookingStatus(strings.ToUpper(s))
		q.Status = &st
	}

	out, err := h.Queries.ListUserBookings(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	b, err := h.Bookings.CancelBooking(r.Context(), chi.URLParam(r, "id"), who.UserID, who.Role)
	observability.ObserveOp("booking_cancel", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// updateStatus drives the staff workflow; cancellation has its own route.
func (h *Handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	who, err := identify(r)
	if err != nil {
		writeIdentityError(w, r, err)
		return
	}
	if !who.Role.Elevated() {
		writeError(w, r, domain.Errorf(domain.CodeForbidden, "staff role required"))
		return
	}
	var req statusRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	b, err := h.Bookings.UpdateStatus(r.Context(), chi.URLParam(r, "id"), domain.BookingStatus(req.Status))
	observability.ObserveOp("booking_status", outcome(err))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}
