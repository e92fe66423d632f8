package ical

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"

	"aparthotel/internal/domain"
)

var (
	errNotCalendar = errors.New("document is not an iCalendar feed")
	errTruncated   = errors.New("calendar ends before END:VCALENDAR")
)

// Parse reads busy intervals out of an iCalendar document. The whole
// document fails with *domain.ParseError when it is not a calendar or is
// cut off, since a partial feed would make the missing events look cancelled.
// Events that cannot be read are skipped and counted.
func Parse(body []byte) (domain.CalendarFeed, error) {
	body = bytes.TrimPrefix(body, []byte("\xef\xbb\xbf"))
	if !bytes.Contains(body, []byte("BEGIN:VCALENDAR")) {
		return domain.CalendarFeed{}, &domain.ParseError{Err: errNotCalendar}
	}
	if !bytes.HasSuffix(bytes.TrimSpace(body), []byte("END:VCALENDAR")) {
		return domain.CalendarFeed{}, &domain.ParseError{Err: errTruncated}
	}
	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return domain.CalendarFeed{}, &domain.ParseError{Err: err}
	}

	var feed domain.CalendarFeed
	for _, ev := range cal.Events() {
		if ev == nil {
			feed.Skipped++
			continue
		}
		if v := prop(ev, ics.ComponentPropertyStatus); strings.EqualFold(v, "CANCELLED") {
			continue
		}
		e, err := toEvent(ev)
		if err != nil {
			feed.Skipped++
			continue
		}
		feed.Events = append(feed.Events, e)
	}
	return feed, nil
}

func toEvent(ev *ics.VEvent) (domain.CalendarEvent, error) {
	start, err := parseDay(prop(ev, ics.ComponentPropertyDtStart))
	if err != nil {
		return domain.CalendarEvent{}, fmt.Errorf("DTSTART: %w", err)
	}
	end := start.AddDate(0, 0, 1)
	if raw := prop(ev, ics.ComponentPropertyDtEnd); raw != "" {
		if end, err = parseDay(raw); err != nil {
			return domain.CalendarEvent{}, fmt.Errorf("DTEND: %w", err)
		}
	} else if raw := prop(ev, ics.ComponentProperty(ics.PropertyDuration)); raw != "" {
		if days, ok := durationDays(raw); ok {
			end = start.AddDate(0, 0, days)
		}
	}
	// a same-day or inverted event still occupies its start night
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	summary := prop(ev, ics.ComponentPropertySummary)
	r := domain.DateRange{Start: start, End: end}

	id := strings.TrimSpace(prop(ev, ics.ComponentPropertyUniqueId))
	if id == "" {
		// stable across fetches so re-syncs stay idempotent
		sum := sha1.Sum([]byte(r.String() + "|" + summary))
		id = "sha1:" + hex.EncodeToString(sum[:])
	}
	return domain.CalendarEvent{ExternalID: id, Summary: summary, Range: r}, nil
}

func prop(ev *ics.VEvent, p ics.ComponentProperty) string {
	if v := ev.GetProperty(p); v != nil {
		return strings.TrimSpace(v.Value)
	}
	return ""
}

// parseDay takes the calendar date of a DATE or DATE-TIME value. Channel
// feeds describe whole nights, so the time of day is dropped.
func parseDay(v string) (time.Time, error) {
	if len(v) < 8 {
		return time.Time{}, fmt.Errorf("malformed date %q", v)
	}
	return time.Parse("20060102", v[:8])
}

var durationRe = regexp.MustCompile(`^P(?:(\d+)W)?(?:(\d+)D)?`)

// durationDays reads the whole-day part of an RFC 5545 duration.
func durationDays(v string) (int, bool) {
	m := durationRe.FindStringSubmatch(strings.ToUpper(v))
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, false
	}
	days := 0
	if m[1] != "" {
		w, _ := strconv.Atoi(m[1])
		days += 7 * w
	}
	if m[2] != "" {
		d, _ := strconv.Atoi(m[2])
		days += d
	}
	return days, true
}
