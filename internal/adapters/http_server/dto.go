package httpserver

import (
	"time"

	"aparthotel/internal/domain"
)

// Dates travel as YYYY-MM-DD; amounts in minor currency units.

type apartmentDTO struct {
	Slug      string `json:"slug" validate:"max=64"`
	Name      string `json:"name" validate:"max=200"`
	BasePrice int64  `json:"base_price"`
	Capacity  int    `json:"capacity"`
	Active    bool   `json:"active"`
}

func toApartment(a domain.ApartmentType) apartmentDTO {
	return apartmentDTO{Slug: a.Slug, Name: a.Name, BasePrice: a.BasePrice, Capacity: a.Capacity, Active: a.Active}
}

type rateDTO struct {
	ID            int64  `json:"id"`
	ApartmentType string `json:"apartment_type"`
	Year          int    `json:"year" validate:"gte=2000,lte=9999"`
	Month         int    `json:"month" validate:"gte=1,lte=12"`
	Price         int64  `json:"price" validate:"gt=0"`
	Active        bool   `json:"active"`
}

func toRate(r domain.SeasonalRate) rateDTO {
	return rateDTO{ID: r.ID, ApartmentType: r.ApartmentType, Year: r.Year, Month: int(r.Month), Price: r.Price, Active: r.Active}
}

type guestDTO struct {
	Name  string `json:"name" validate:"required,max=200"`
	Email string `json:"email,omitempty" validate:"omitempty,email,max=254"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

type bookingRequestDTO struct {
	ApartmentType string   `json:"apartment_type" validate:"required,max=64"`
	CheckIn       string   `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut      string   `json:"check_out" validate:"required,datetime=2006-01-02"`
	Guests        int      `json:"guests" validate:"gte=1"`
	Guest         guestDTO `json:"guest"`
	PayLater      bool     `json:"pay_later"`
}

type bookingDTO struct {
	ID            int64    `json:"id"`
	Reference     string   `json:"reference"`
	ApartmentType string   `json:"apartment_type"`
	CheckIn       string   `json:"check_in"`
	CheckOut      string   `json:"check_out"`
	Nights        int      `json:"nights"`
	Guests        int      `json:"guests"`
	Guest         guestDTO `json:"guest"`
	Status        string   `json:"status"`
	TotalPrice    int64    `json:"total_price"`
}

func toBooking(b domain.Booking) bookingDTO {
	return bookingDTO{
		ID:            b.ID,
		Reference:     b.Reference,
		ApartmentType: b.ApartmentType,
		CheckIn:       date(b.Range.Start),
		CheckOut:      date(b.Range.End),
		Nights:        b.Range.Nights(),
		Guests:        b.Guests,
		Guest:         guestDTO{Name: b.Guest.Name, Email: b.Guest.Email, Phone: b.Guest.Phone},
		Status:        string(b.Status),
		TotalPrice:    b.TotalPrice,
	}
}

type nightDTO struct {
	Date  string `json:"date"`
	Price int64  `json:"price"`
}

type quoteDTO struct {
	ApartmentType string     `json:"apartment_type"`
	CheckIn       string     `json:"check_in"`
	CheckOut      string     `json:"check_out"`
	Available     bool       `json:"available"`
	Nights        []nightDTO `json:"nights"`
	Total         int64      `json:"total"`
}

func toQuote(q domain.Quote) quoteDTO {
	out := quoteDTO{
		ApartmentType: q.ApartmentType,
		CheckIn:       date(q.Range.Start),
		CheckOut:      date(q.Range.End),
		Available:     q.Available,
		Nights:        make([]nightDTO, 0, len(q.Nights)),
		Total:         q.Total,
	}
	for _, n := range q.Nights {
		out.Nights = append(out.Nights, nightDTO{Date: date(n.Date), Price: n.Price})
	}
	return out
}

type blockDTO struct {
	ID            int64   `json:"id"`
	ApartmentType string  `json:"apartment_type"`
	Start         string  `json:"start"`
	End           string  `json:"end"`
	Source        string  `json:"source"`
	ExternalID    *string `json:"external_id,omitempty"`
	IntegrationID *int64  `json:"integration_id,omitempty"`
	Reason        *string `json:"reason,omitempty"`
}

func toBlock(b domain.BlockedRange) blockDTO {
	return blockDTO{
		ID:            b.ID,
		ApartmentType: b.ApartmentType,
		Start:         date(b.Range.Start),
		End:           date(b.Range.End),
		Source:        b.Source,
		ExternalID:    b.ExternalID,
		IntegrationID: b.IntegrationID,
		Reason:        b.Reason,
	}
}

type integrationDTO struct {
	ID            int64      `json:"id"`
	Channel       string     `json:"channel"`
	ApartmentType string     `json:"apartment_type"`
	URL           string     `json:"url"`
	Active        bool       `json:"active"`
	LastSyncedAt  *time.Time `json:"last_synced_at,omitempty"`
	LastSyncError *string    `json:"last_sync_error,omitempty"`
}

func toIntegration(c domain.ChannelIntegration) integrationDTO {
	return integrationDTO{
		ID:            c.ID,
		Channel:       c.Channel,
		ApartmentType: c.ApartmentType,
		URL:           c.URL,
		Active:        c.Active,
		LastSyncedAt:  c.LastSyncedAt,
		LastSyncError: c.LastSyncError,
	}
}

type conflictDTO struct {
	ExternalID       string `json:"external_id"`
	BookingID        int64  `json:"booking_id"`
	BookingReference string `json:"booking_reference"`
	Start            string `json:"start"`
	End              string `json:"end"`
}

type syncResultDTO struct {
	IntegrationID    int64         `json:"integration_id"`
	Added            int           `json:"added"`
	Updated          int           `json:"updated"`
	Removed          int           `json:"removed"`
	FutureEventCount int           `json:"future_event_count"`
	Skipped          int           `json:"skipped"`
	Conflicts        []conflictDTO `json:"conflicts"`
	SyncedAt         time.Time     `json:"synced_at"`
}

func toSyncResult(r domain.SyncResult) syncResultDTO {
	out := syncResultDTO{
		IntegrationID:    r.IntegrationID,
		Added:            r.Added,
		Updated:          r.Updated,
		Removed:          r.Removed,
		FutureEventCount: r.FutureEventCount,
		Skipped:          r.Skipped,
		Conflicts:        make([]conflictDTO, 0, len(r.Conflicts)),
		SyncedAt:         r.SyncedAt,
	}
	for _, c := range r.Conflicts {
		out.Conflicts = append(out.Conflicts, conflictDTO{
			ExternalID:       c.ExternalID,
			BookingID:        c.BookingID,
			BookingReference: c.BookingReference,
			Start:            date(c.Range.Start),
			End:              date(c.Range.End),
		})
	}
	return out
}

func date(t time.Time) string { return t.Format(domain.DateLayout) }
