package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"aparthotel/internal/app"
	"aparthotel/internal/domain"
)

type Handlers struct {
	Apartments   *app.ApartmentService
	Availability *app.AvailabilityResolver
	Bookings     *app.BookingService
	Rates        *app.RateService
	Blocks       *app.BlockService
	Integrations *app.IntegrationService
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	s.mux.Route("/v1", func(r chi.Router) {
		r.Route("/apartments", func(r chi.Router) {
			r.Get("/", h.listApartments)
			r.Post("/", h.createApartment)
			r.Route("/{slug}", func(r chi.Router) {
				r.Get("/", h.getApartment)
				r.Put("/", h.updateApartment)
				r.Post("/deactivate", h.deactivateApartment)
				r.Get("/availability", h.availability)
				r.Get("/quote", h.quote)
				r.Get("/bookings", h.listBookings)
				r.Get("/blocks", h.listBlocks)
				r.Post("/blocks", h.addBlock)
				r.Get("/rates", h.listRates)
				r.Post("/rates", h.createRate)
				r.Post("/rates/copy", h.copyRates)
			})
		})
		r.Put("/rates/{id}", h.updateRate)
		r.Delete("/rates/{id}", h.deleteRate)
		r.Delete("/blocks/{id}", h.deleteBlock)

		r.Post("/bookings", h.createBooking)
		r.Route("/bookings/{id}", func(r chi.Router) {
			r.Get("/", h.getBooking)
			r.Post("/reschedule", h.reschedule)
			r.Post("/cancel", h.cancelBooking)
			r.Post("/confirm", h.confirmPending)
		})

		r.Get("/integrations", h.listIntegrations)
		r.Post("/integrations", h.createIntegration)
		r.Route("/integrations/{id}", func(r chi.Router) {
			r.Get("/", h.getIntegration)
			r.Put("/", h.updateIntegration)
			r.Delete("/", h.deleteIntegration)
			r.Post("/sync", h.syncIntegration)
		})
	})
}

// ---- plumbing ----

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps domain outcomes to HTTP statuses. Only unexpected
// failures are logged; business outcomes are the caller's answer.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var fe *domain.FetchError
	var pe *domain.ParseError
	switch {
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Dates Unavailable", err.Error())
	case errors.Is(err, domain.ErrDuplicateSeasonalRate):
		writeProblem(w, http.StatusConflict, "Duplicate Seasonal Rate", err.Error())
	case errors.Is(err, domain.ErrBookingState):
		writeProblem(w, http.StatusConflict, "Invalid Booking State", err.Error())
	case errors.Is(err, domain.ErrSyncInProgress):
		writeProblem(w, http.StatusConflict, "Sync In Progress", err.Error())
	case errors.Is(err, domain.ErrIntegrationChanged):
		writeProblem(w, http.StatusConflict, "Integration Changed", err.Error())
	case errors.Is(err, domain.ErrInactive):
		writeProblem(w, http.StatusConflict, "Inactive", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrOwnership):
		writeProblem(w, http.StatusForbidden, "Owned By Channel", err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInvalidRange):
		writeProblem(w, http.StatusBadRequest, "Invalid Input", err.Error())
	case errors.As(err, &fe):
		writeProblem(w, http.StatusBadGateway, "Calendar Fetch Failed", err.Error())
	case errors.As(err, &pe):
		writeProblem(w, http.StatusUnprocessableEntity, "Calendar Unreadable", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	return `W/"` + hex.EncodeToString(sum[:]) + `"`, body
}

// writeJSON sends v; GET responses carry an ETag and honor If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	etag, body := calcETagAndBody(v)
	if r.Method == http.MethodGet && etag != "" {
		if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
			w.Header().Set("ETag", etag)
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write response body")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", "request body must be valid JSON")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Input", describe(err))
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id must be a positive number")
		return 0, false
	}
	return id, true
}

func parseRange(start, end string) (domain.DateRange, error) {
	s, err := domain.ParseDate(start)
	if err != nil {
		return domain.DateRange{}, err
	}
	e, err := domain.ParseDate(end)
	if err != nil {
		return domain.DateRange{}, err
	}
	return domain.NewDateRange(s, e)
}

// rangeQuery reads a range from the query string; both bounds required.
func rangeQuery(r *http.Request, startKey, endKey string) (domain.DateRange, error) {
	q := r.URL.Query()
	return parseRange(q.Get(startKey), q.Get(endKey))
}

// ---- apartment types ----

func (h *Handlers) listApartments(w http.ResponseWriter, r *http.Request) {
	list, err := h.Apartments.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]apartmentDTO, 0, len(list))
	for _, a := range list {
		out = append(out, toApartment(a))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) createApartment(w http.ResponseWriter, r *http.Request) {
	var in apartmentDTO
	if !decode(w, r, &in) {
		return
	}
	a, err := h.Apartments.Create(r.Context(), domain.ApartmentType{Slug: in.Slug, Name: in.Name, BasePrice: in.BasePrice, Capacity: in.Capacity})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toApartment(a))
}

func (h *Handlers) getApartment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Apartments.Get(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toApartment(a))
}

func (h *Handlers) updateApartment(w http.ResponseWriter, r *http.Request) {
	var in apartmentDTO
	if !decode(w, r, &in) {
		return
	}
	a, err := h.Apartments.Update(r.Context(), domain.ApartmentType{
		Slug: chi.URLParam(r, "slug"), Name: in.Name, BasePrice: in.BasePrice, Capacity: in.Capacity, Active: in.Active,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toApartment(a))
}

func (h *Handlers) deactivateApartment(w http.ResponseWriter, r *http.Request) {
	a, err := h.Apartments.Deactivate(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toApartment(a))
}

// ---- availability and quotes ----

func (h *Handlers) availability(w http.ResponseWriter, r *http.Request) {
	rg, err := rangeQuery(r, "check_in", "check_out")
	if err != nil {
		writeError(w, r, err)
		return
	}
	slug := chi.URLParam(r, "slug")
	if _, err := h.Apartments.Get(r.Context(), slug); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := h.Availability.IsAvailable(r.Context(), slug, rg, 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// availability changes with every booking; never let clients cache it
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"apartment_type": slug, "check_in": date(rg.Start), "check_out": date(rg.End), "available": ok,
	})
}

func (h *Handlers) quote(w http.ResponseWriter, r *http.Request) {
	rg, err := rangeQuery(r, "check_in", "check_out")
	if err != nil {
		writeError(w, r, err)
		return
	}
	q, err := h.Bookings.Quote(r.Context(), chi.URLParam(r, "slug"), rg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(toQuote(q))
}

// ---- bookings ----

func (h *Handlers) createBooking(w http.ResponseWriter, r *http.Request) {
	var in bookingRequestDTO
	if !decode(w, r, &in) {
		return
	}
	rg, err := parseRange(in.CheckIn, in.CheckOut)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.Bookings.ConfirmBooking(r.Context(), domain.BookingRequest{
		ApartmentType: in.ApartmentType,
		Range:         rg,
		Guests:        in.Guests,
		Guest:         domain.Guest{Name: strings.TrimSpace(in.Guest.Name), Email: in.Guest.Email, Phone: in.Guest.Phone},
		PayLater:      in.PayLater,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toBooking(b))
}

func (h *Handlers) getBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	b, err := h.Bookings.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBooking(b))
}

func (h *Handlers) listBookings(w http.ResponseWriter, r *http.Request) {
	rg, err := rangeQuery(r, "from", "to")
	if err != nil {
		writeError(w, r, err)
		return
	}
	list, err := h.Bookings.ListBookings(r.Context(), chi.URLParam(r, "slug"), rg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]bookingDTO, 0, len(list))
	for _, b := range list {
		out = append(out, toBooking(b))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *Handlers) reschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var in struct {
		CheckIn string `json:"check_in" validate:"required,datetime=2006-01-02"`
	}
	if !decode(w, r, &in) {
		return
	}
	start, err := domain.ParseDate(in.CheckIn)
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := h.Bookings.Reschedule(r.Context(), id, start)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBooking(b))
}

func (h *Handlers) cancelBooking(w http.ResponseWriter, r *http.Request) {
	h.bookingTransition(w, r, h.Bookings.CancelBooking)
}

func (h *Handlers) confirmPending(w http.ResponseWriter, r *http.Request) {
	h.bookingTransition(w, r, h.Bookings.ConfirmPending)
}

func (h *Handlers) bookingTransition(w http.ResponseWriter, r *http.Request, fn func(context.Context, int64) (domain.Booking, error)) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	b, err := fn(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toBooking(b))
}
