package domain

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ChannelIntegration configures one external calendar feed. LastSyncedAt and
// LastSyncError are written by the sync engine only.
type ChannelIntegration struct {
	ID            int64
	Channel       string
	ApartmentType string
	URL           string
	Active        bool
	LastSyncedAt  *time.Time
	LastSyncError *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (c ChannelIntegration) Validate() error {
	ch := strings.TrimSpace(c.Channel)
	switch {
	case ch == "":
		return fmt.Errorf("%w: channel name is required", ErrInvalidInput)
	case strings.EqualFold(ch, SourceManual):
		return fmt.Errorf("%w: channel name %q is reserved", ErrInvalidInput, SourceManual)
	case c.ApartmentType == "":
		return fmt.Errorf("%w: apartment type is required", ErrInvalidInput)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: calendar url must be an absolute http(s) url", ErrInvalidInput)
	}
	return nil
}

// CalendarEvent is one busy interval read from a channel feed.
type CalendarEvent struct {
	ExternalID string
	Summary    string
	Range      DateRange
}

type CalendarFeed struct {
	Events  []CalendarEvent
	Skipped int // malformed events left out of Events
}

// SyncConflict is a channel block overlapping an occupying direct booking.
// Both records are kept; staff resolve it by hand.
type SyncConflict struct {
	ExternalID       string
	BookingID        int64
	BookingReference string
	Range            DateRange
}

type SyncResult struct {
	IntegrationID    int64
	Added            int
	Updated          int
	Removed          int
	FutureEventCount int
	Skipped          int
	Conflicts        []SyncConflict
	SyncedAt         time.Time
}
