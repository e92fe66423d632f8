package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"aparthotel/internal/domain"
)

const (
	errDupEntry = 1062
	errNoParent = 1452
)

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valDate(t time.Time) any { return t.Format(domain.DateLayout) }

func isDuplicate(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errDupEntry
}

func isMissingParent(err error) bool {
	var me *mysqldrv.MySQLError
	return errors.As(err, &me) && me.Number == errNoParent
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo implements domain.Repository on top of a connection or a transaction.
type Repo struct{ q querier }

func New(db *sql.DB) *Repo { return &Repo{q: db} }

var _ domain.Repository = (*Repo)(nil)

// expectRow turns "no row matched" into ErrNotFound.
func (r *Repo) expectRow(ctx context.Context, res sql.Result, probe string, key any, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var one int
	err = r.q.QueryRowContext(ctx, probe, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

func notFound(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, domain.ErrNotFound)
	}
	return err
}

// ---- apartment types ----

type scanner interface{ Scan(dest ...any) error }

func scanApartment(s scanner) (domain.ApartmentType, error) {
	var a domain.ApartmentType
	err := s.Scan(&a.Slug, &a.Name, &a.BasePrice, &a.Capacity, &a.Active, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *Repo) GetApartmentType(ctx context.Context, slug string) (domain.ApartmentType, error) {
	a, err := scanApartment(r.q.QueryRowContext(ctx, selectApartmentSQL, slug))
	if err != nil {
		return domain.ApartmentType{}, notFound(err, fmt.Sprintf("apartment type %q", slug))
	}
	return a, nil
}

func (r *Repo) ListApartmentTypes(ctx context.Context) ([]domain.ApartmentType, error) {
	rows, err := r.q.QueryContext(ctx, listApartmentsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ApartmentType
	for rows.Next() {
		a, err := scanApartment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *Repo) CreateApartmentType(ctx context.Context, a domain.ApartmentType) error {
	_, err := r.q.ExecContext(ctx, insertApartmentSQL, a.Slug, a.Name, a.BasePrice, a.Capacity, a.Active)
	if isDuplicate(err) {
		return fmt.Errorf("%w: apartment type %q already exists", domain.ErrInvalidInput, a.Slug)
	}
	return err
}

func (r *Repo) UpdateApartmentType(ctx context.Context, a domain.ApartmentType) error {
	res, err := r.q.ExecContext(ctx, updateApartmentSQL, a.Name, a.BasePrice, a.Capacity, a.Active, a.Slug)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, apartmentExistsSQL, a.Slug, fmt.Sprintf("apartment type %q", a.Slug))
}

// ---- seasonal rates ----

func scanRate(s scanner) (domain.SeasonalRate, error) {
	var (
		rt    domain.SeasonalRate
		month int
	)
	err := s.Scan(&rt.ID, &rt.ApartmentType, &rt.Year, &month, &rt.Price, &rt.Active)
	rt.Month = time.Month(month)
	return rt, err
}

func (r *Repo) GetSeasonalRate(ctx context.Context, id int64) (domain.SeasonalRate, error) {
	rt, err := scanRate(r.q.QueryRowContext(ctx, selectRateSQL, id))
	if err != nil {
		return domain.SeasonalRate{}, notFound(err, fmt.Sprintf("seasonal rate %d", id))
	}
	return rt, nil
}

func (r *Repo) FindActiveSeasonalRate(ctx context.Context, apartmentType string, year int, month time.Month) (domain.SeasonalRate, error) {
	rt, err := scanRate(r.q.QueryRowContext(ctx, findActiveRateSQL, apartmentType, year, int(month)))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SeasonalRate{}, domain.ErrNotFound
	}
	return rt, err
}

func (r *Repo) ListSeasonalRates(ctx context.Context, apartmentType string, year int) ([]domain.SeasonalRate, error) {
	rows, err := r.q.QueryContext(ctx, listRatesSQL, apartmentType, year, year)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.SeasonalRate
	for rows.Next() {
		rt, err := scanRate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *Repo) InsertSeasonalRate(ctx context.Context, rt *domain.SeasonalRate) error {
	res, err := r.q.ExecContext(ctx, insertRateSQL, rt.ApartmentType, rt.Year, int(rt.Month), rt.Price, rt.Active)
	if isDuplicate(err) {
		return domain.ErrDuplicateSeasonalRate
	}
	if err != nil {
		return err
	}
	rt.ID, err = res.LastInsertId()
	return err
}

func (r *Repo) UpdateSeasonalRate(ctx context.Context, rt domain.SeasonalRate) error {
	res, err := r.q.ExecContext(ctx, updateRateSQL, rt.Price, rt.Active, rt.ID)
	if isDuplicate(err) {
		return domain.ErrDuplicateSeasonalRate
	}
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, rateExistsSQL, rt.ID, fmt.Sprintf("seasonal rate %d", rt.ID))
}

func (r *Repo) UpsertSeasonalRate(ctx context.Context, rt *domain.SeasonalRate) error {
	res, err := r.q.ExecContext(ctx, upsertRateSQL, rt.ApartmentType, rt.Year, int(rt.Month), rt.Price)
	if err != nil {
		return err
	}
	rt.Active = true
	rt.ID, err = res.LastInsertId()
	return err
}

func (r *Repo) DeleteSeasonalRate(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, deleteRateSQL, id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, rateExistsSQL, id, fmt.Sprintf("seasonal rate %d", id))
}

// ---- bookings ----

func scanBooking(s scanner) (domain.Booking, error) {
	var (
		b      domain.Booking
		status string
	)
	err := s.Scan(&b.ID, &b.Reference, &b.ApartmentType, &b.Range.Start, &b.Range.End, &b.Guests,
		&b.Guest.Name, &b.Guest.Email, &b.Guest.Phone, &status, &b.TotalPrice, &b.CreatedAt, &b.UpdatedAt)
	b.Status = domain.BookingStatus(status)
	b.Range.Start, b.Range.End = domain.Day(b.Range.Start), domain.Day(b.Range.End)
	return b, err
}

func (r *Repo) GetBooking(ctx context.Context, id int64) (domain.Booking, error) {
	b, err := scanBooking(r.q.QueryRowContext(ctx, selectBookingSQL, id))
	if err != nil {
		return domain.Booking{}, notFound(err, fmt.Sprintf("booking %d", id))
	}
	return b, nil
}

func (r *Repo) ListBookings(ctx context.Context, q domain.BookingQuery) ([]domain.Booking, error) {
	query := listBookingsSQL
	if q.OccupyingOnly {
		query += occupyingFilter
	}
	rows, err := r.q.QueryContext(ctx, query+bookingOrder, q.ApartmentType, valDate(q.Within.End), valDate(q.Within.Start))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) InsertBooking(ctx context.Context, b *domain.Booking) error {
	res, err := r.q.ExecContext(ctx, insertBookingSQL,
		b.Reference,
		b.ApartmentType,
		valDate(b.Range.Start),
		valDate(b.Range.End),
		b.Guests,
		b.Guest.Name,
		b.Guest.Email,
		b.Guest.Phone,
		string(b.Status),
		b.TotalPrice,
	)
	if err != nil {
		return err
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	return nil
}

func (r *Repo) UpdateBookingRange(ctx context.Context, id int64, rg domain.DateRange) error {
	res, err := r.q.ExecContext(ctx, updateBookingRangeSQL, valDate(rg.Start), valDate(rg.End), id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, bookingExistsSQL, id, fmt.Sprintf("booking %d", id))
}

func (r *Repo) UpdateBookingStatus(ctx context.Context, id int64, s domain.BookingStatus) error {
	res, err := r.q.ExecContext(ctx, updateBookingStatusSQL, string(s), id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, bookingExistsSQL, id, fmt.Sprintf("booking %d", id))
}

// ---- blocked ranges ----

func scanBlock(s scanner) (domain.BlockedRange, error) {
	var (
		b      domain.BlockedRange
		extID  sql.NullString
		owner  sql.NullInt64
		reason sql.NullString
	)
	err := s.Scan(&b.ID, &b.ApartmentType, &b.Range.Start, &b.Range.End, &b.Source, &extID, &owner, &reason, &b.CreatedAt)
	if extID.Valid {
		b.ExternalID = &extID.String
	}
	if owner.Valid {
		b.IntegrationID = &owner.Int64
	}
	if reason.Valid {
		b.Reason = &reason.String
	}
	b.Range.Start, b.Range.End = domain.Day(b.Range.Start), domain.Day(b.Range.End)
	return b, err
}

func (r *Repo) collectBlocks(ctx context.Context, query string, args ...any) ([]domain.BlockedRange, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.BlockedRange
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) GetBlock(ctx context.Context, id int64) (domain.BlockedRange, error) {
	b, err := scanBlock(r.q.QueryRowContext(ctx, selectBlockSQL, id))
	if err != nil {
		return domain.BlockedRange{}, notFound(err, fmt.Sprintf("blocked range %d", id))
	}
	return b, nil
}

func (r *Repo) ListBlocks(ctx context.Context, apartmentType string, within *domain.DateRange) ([]domain.BlockedRange, error) {
	if within == nil {
		return r.collectBlocks(ctx, listBlocksSQL+blockOrder, apartmentType)
	}
	return r.collectBlocks(ctx, listBlocksSQL+blocksWithinFilter+blockOrder,
		apartmentType, valDate(within.End), valDate(within.Start))
}

func (r *Repo) ListOwnedBlocks(ctx context.Context, integrationID int64) ([]domain.BlockedRange, error) {
	return r.collectBlocks(ctx, listOwnedBlocksSQL, integrationID)
}

func (r *Repo) InsertBlock(ctx context.Context, b *domain.BlockedRange) error {
	res, err := r.q.ExecContext(ctx, insertBlockSQL,
		b.ApartmentType,
		valDate(b.Range.Start),
		valDate(b.Range.End),
		b.Source,
		valStr(b.ExternalID),
		valInt64(b.IntegrationID),
		valStr(b.Reason),
	)
	if isDuplicate(err) {
		return fmt.Errorf("external id already imported: %w", domain.ErrConflict)
	}
	if isMissingParent(err) {
		return fmt.Errorf("blocked range owner: %w", domain.ErrNotFound)
	}
	if err != nil {
		return err
	}
	if b.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	b.CreatedAt = time.Now().UTC()
	return nil
}

func (r *Repo) UpdateBlockRange(ctx context.Context, id int64, rg domain.DateRange) error {
	res, err := r.q.ExecContext(ctx, updateBlockRangeSQL, valDate(rg.Start), valDate(rg.End), id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, blockExistsSQL, id, fmt.Sprintf("blocked range %d", id))
}

func (r *Repo) DeleteBlock(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, deleteBlockSQL, id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, blockExistsSQL, id, fmt.Sprintf("blocked range %d", id))
}

// ---- channel integrations ----

func scanIntegration(s scanner) (domain.ChannelIntegration, error) {
	var (
		c       domain.ChannelIntegration
		synced  sql.NullTime
		syncErr sql.NullString
	)
	err := s.Scan(&c.ID, &c.Channel, &c.ApartmentType, &c.URL, &c.Active, &synced, &syncErr, &c.CreatedAt, &c.UpdatedAt)
	if synced.Valid {
		t := synced.Time.UTC()
		c.LastSyncedAt = &t
	}
	if syncErr.Valid {
		c.LastSyncError = &syncErr.String
	}
	return c, err
}

func (r *Repo) GetIntegration(ctx context.Context, id int64) (domain.ChannelIntegration, error) {
	c, err := scanIntegration(r.q.QueryRowContext(ctx, selectIntegrationSQL, id))
	if err != nil {
		return domain.ChannelIntegration{}, notFound(err, fmt.Sprintf("integration %d", id))
	}
	return c, nil
}

func (r *Repo) ListIntegrations(ctx context.Context, activeOnly bool) ([]domain.ChannelIntegration, error) {
	rows, err := r.q.QueryContext(ctx, listIntegrationsSQL, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.ChannelIntegration
	for rows.Next() {
		c, err := scanIntegration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repo) CreateIntegration(ctx context.Context, c *domain.ChannelIntegration) error {
	res, err := r.q.ExecContext(ctx, insertIntegrationSQL, c.Channel, c.ApartmentType, c.URL, c.Active)
	if err != nil {
		return err
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	c.LastSyncedAt, c.LastSyncError = nil, nil
	return nil
}

func (r *Repo) UpdateIntegration(ctx context.Context, c domain.ChannelIntegration) error {
	res, err := r.q.ExecContext(ctx, updateIntegrationSQL, c.Channel, c.ApartmentType, c.URL, c.Active, c.ID)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, integrationExistsSQL, c.ID, fmt.Sprintf("integration %d", c.ID))
}

func (r *Repo) DeleteIntegration(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, deleteIntegrationSQL, id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, integrationExistsSQL, id, fmt.Sprintf("integration %d", id))
}

func (r *Repo) MarkSynced(ctx context.Context, id int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, markSyncedSQL, at.UTC(), id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, integrationExistsSQL, id, fmt.Sprintf("integration %d", id))
}

func (r *Repo) MarkSyncFailed(ctx context.Context, id int64, errText string) error {
	res, err := r.q.ExecContext(ctx, markSyncFailedSQL, errText, id)
	if err != nil {
		return err
	}
	return r.expectRow(ctx, res, integrationExistsSQL, id, fmt.Sprintf("integration %d", id))
}
