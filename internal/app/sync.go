package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"aparthotel/internal/adapters/observability"
	"aparthotel/internal/domain"
)

// SyncEngine mirrors a channel calendar into the blocks owned by one
// integration. It never reads or writes manual rows or rows of another
// integration, and it never cancels a booking.
type SyncEngine struct {
	store   domain.Store
	source  domain.CalendarSource
	locker  domain.Locker
	pub     domain.EventPublisher
	lockTTL time.Duration
	opts    options
}

func NewSyncEngine(s domain.Store, src domain.CalendarSource, l domain.Locker, pub domain.EventPublisher, lockTTL time.Duration, opts ...Option) *SyncEngine {
	return &SyncEngine{store: s, source: src, locker: l, pub: pub, lockTTL: lockTTL, opts: buildOptions(opts)}
}

func syncLockKey(integrationID int64) string {
	return fmt.Sprintf("sync:integration:%d", integrationID)
}

// Sync runs one reconciliation pass. A run already in flight for the same
// integration makes this call return ErrSyncInProgress without doing work.
// Fetch and parse failures are recorded on the integration and returned as
// *domain.FetchError / *domain.ParseError; blocks are left untouched then.
func (e *SyncEngine) Sync(ctx context.Context, integrationID int64) (domain.SyncResult, error) {
	in, err := e.store.GetIntegration(ctx, integrationID)
	if err != nil {
		return domain.SyncResult{}, err
	}
	if !in.Active {
		return domain.SyncResult{}, fmt.Errorf("integration %d: %w", in.ID, domain.ErrInactive)
	}
	release, err := e.locker.TryLock(ctx, syncLockKey(in.ID), e.lockTTL)
	if err != nil {
		observability.ObserveSync(in.Channel, outcome(err), 0)
		return domain.SyncResult{}, err
	}
	defer release()

	start := time.Now()
	res, err := e.run(ctx, in)
	observability.ObserveSync(in.Channel, outcome(err), time.Since(start))
	return res, err
}

func (e *SyncEngine) run(ctx context.Context, in domain.ChannelIntegration) (domain.SyncResult, error) {
	res := domain.SyncResult{IntegrationID: in.ID}

	// The fetch happens outside any apartment unit: a slow feed must not
	// hold up bookings.
	feed, err := e.source.FetchCalendar(ctx, in.URL)
	if err != nil {
		e.recordFailure(ctx, in, err)
		return res, err
	}

	today := domain.Day(e.opts.now())
	future, byID := futureEvents(feed.Events, today)
	res.FutureEventCount = len(future)
	res.Skipped = feed.Skipped

	err = e.store.Atomically(ctx, in.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		res.Added, res.Updated, res.Removed, res.Conflicts = 0, 0, 0, nil
		// Staff edits take the same apartment unit; the feed we hold is only
		// good for the integration as it was when fetched.
		if err := unchanged(ctx, repo, in); err != nil {
			return err
		}
		owned, err := repo.ListOwnedBlocks(ctx, in.ID)
		if err != nil {
			return err
		}
		present := make(map[string]struct{}, len(owned))
		for _, b := range owned {
			if b.ExternalID == nil {
				continue
			}
			if b.ApartmentType != in.ApartmentType {
				// left behind by a move to another apartment type
				if err := repo.DeleteBlock(ctx, b.ID); err != nil {
					return err
				}
				res.Removed++
				continue
			}
			ev, ok := byID[*b.ExternalID]
			if !ok {
				// Rows that already ended are history, not stale.
				if b.Range.End.Before(today) {
					continue
				}
				if err := repo.DeleteBlock(ctx, b.ID); err != nil {
					return err
				}
				res.Removed++
				continue
			}
			present[ev.ExternalID] = struct{}{}
			if !b.Range.Equal(ev.Range) {
				if err := repo.UpdateBlockRange(ctx, b.ID, ev.Range); err != nil {
					return err
				}
				res.Updated++
			}
		}
		for _, ev := range future {
			if _, ok := present[ev.ExternalID]; ok {
				continue
			}
			ext, owner := ev.ExternalID, in.ID
			b := domain.BlockedRange{
				ApartmentType: in.ApartmentType,
				Range:         ev.Range,
				Source:        in.Channel,
				ExternalID:    &ext,
				IntegrationID: &owner,
			}
			if err := repo.InsertBlock(ctx, &b); err != nil {
				return err
			}
			res.Added++
		}
		for _, ev := range future {
			bookings, err := repo.ListBookings(ctx, domain.BookingQuery{ApartmentType: in.ApartmentType, Within: ev.Range, OccupyingOnly: true})
			if err != nil {
				return err
			}
			for _, b := range bookings {
				res.Conflicts = append(res.Conflicts, domain.SyncConflict{
					ExternalID:       ev.ExternalID,
					BookingID:        b.ID,
					BookingReference: b.Reference,
					Range:            ev.Range,
				})
			}
		}
		return nil
	})
	if errors.Is(err, domain.ErrIntegrationChanged) {
		log.Info().Int64("integration_id", in.ID).Str("channel", in.Channel).Msg("integration changed during sync; result dropped")
		return domain.SyncResult{IntegrationID: in.ID}, err
	}
	if err != nil {
		e.recordFailure(ctx, in, err)
		return domain.SyncResult{IntegrationID: in.ID}, err
	}

	now := e.opts.now()
	if err := e.store.MarkSynced(ctx, in.ID, now); err != nil {
		return res, err
	}
	res.SyncedAt = now.UTC()

	for _, c := range res.Conflicts {
		log.Warn().
			Int64("integration_id", in.ID).
			Str("channel", in.Channel).
			Str("external_id", c.ExternalID).
			Int64("booking_id", c.BookingID).
			Str("range", c.Range.String()).
			Msg("channel block overlaps direct booking; needs review")
		publish(ctx, e.pub, domain.Event{
			Type:          domain.EventChannelConflict,
			ApartmentType: in.ApartmentType,
			BookingID:     c.BookingID,
			Reference:     c.BookingReference,
			Range:         c.Range,
			IntegrationID: in.ID,
			ExternalID:    c.ExternalID,
			At:            res.SyncedAt,
		})
	}
	log.Info().
		Int64("integration_id", in.ID).
		Str("channel", in.Channel).
		Int("added", res.Added).
		Int("updated", res.Updated).
		Int("removed", res.Removed).
		Int("future_events", res.FutureEventCount).
		Int("skipped", res.Skipped).
		Msg("channel sync ok")
	return res, nil
}

func (e *SyncEngine) recordFailure(ctx context.Context, in domain.ChannelIntegration, cause error) {
	log.Warn().Err(cause).Int64("integration_id", in.ID).Str("channel", in.Channel).Msg("channel sync failed")
	// The caller's context may be the reason we failed.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.store.MarkSyncFailed(wctx, in.ID, cause.Error()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error().Err(err).Int64("integration_id", in.ID).Msg("record sync error failed")
	}
}

// unchanged re-reads the integration inside the apartment unit and fails
// with ErrIntegrationChanged when it was removed, deactivated or pointed
// elsewhere since the fetch.
func unchanged(ctx context.Context, repo domain.Repository, in domain.ChannelIntegration) error {
	cur, err := repo.GetIntegration(ctx, in.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("integration %d removed: %w", in.ID, domain.ErrIntegrationChanged)
	}
	if err != nil {
		return err
	}
	if !cur.Active || cur.ApartmentType != in.ApartmentType || cur.Channel != in.Channel || cur.URL != in.URL {
		return fmt.Errorf("integration %d: %w", in.ID, domain.ErrIntegrationChanged)
	}
	return nil
}

// futureEvents keeps events ending today or later, first occurrence per
// external id, in feed order.
func futureEvents(events []domain.CalendarEvent, today time.Time) ([]domain.CalendarEvent, map[string]domain.CalendarEvent) {
	byID := make(map[string]domain.CalendarEvent, len(events))
	out := make([]domain.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if ev.Range.End.Before(today) {
			continue
		}
		if _, dup := byID[ev.ExternalID]; dup {
			continue
		}
		byID[ev.ExternalID] = ev
		out = append(out, ev)
	}
	return out, byID
}
