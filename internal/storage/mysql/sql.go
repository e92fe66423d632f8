package mysql

// -----------------------------------------------------------------------------
// APARTMENT TYPES
// -----------------------------------------------------------------------------

const apartmentCols = `slug, name, base_price, capacity, active, created_at, updated_at`

const selectApartmentSQL = `SELECT ` + apartmentCols + ` FROM apartment_types WHERE slug = ?`

const listApartmentsSQL = `SELECT ` + apartmentCols + ` FROM apartment_types ORDER BY slug`

const insertApartmentSQL = `
INSERT INTO apartment_types (slug, name, base_price, capacity, active)
VALUES (?, ?, ?, ?, ?)
`

const updateApartmentSQL = `
UPDATE apartment_types
   SET name = ?, base_price = ?, capacity = ?, active = ?
 WHERE slug = ?
`

// lockApartmentSQL is the per-apartment serialization point: every unit of
// work for one apartment type holds this row lock until commit.
const lockApartmentSQL = `SELECT slug FROM apartment_types WHERE slug = ? FOR UPDATE`

// -----------------------------------------------------------------------------
// SEASONAL RATES
// -----------------------------------------------------------------------------

const rateCols = `id, apartment_type, year, month, price, active`

const selectRateSQL = `SELECT ` + rateCols + ` FROM seasonal_rates WHERE id = ?`

const findActiveRateSQL = `
SELECT ` + rateCols + `
  FROM seasonal_rates
 WHERE apartment_type = ? AND year = ? AND month = ? AND active = TRUE
`

const listRatesSQL = `
SELECT ` + rateCols + `
  FROM seasonal_rates
 WHERE apartment_type = ? AND (? = 0 OR year = ?)
 ORDER BY year, month, id
`

const insertRateSQL = `
INSERT INTO seasonal_rates (apartment_type, year, month, price, active)
VALUES (?, ?, ?, ?, ?)
`

// upsertRateSQL reconciles on the active-row unique key; LAST_INSERT_ID(id)
// makes LastInsertId report the existing row on update.
const upsertRateSQL = `
INSERT INTO seasonal_rates (apartment_type, year, month, price, active)
VALUES (?, ?, ?, ?, TRUE)
ON DUPLICATE KEY UPDATE
  price = VALUES(price),
  id    = LAST_INSERT_ID(id)
`

const updateRateSQL = `UPDATE seasonal_rates SET price = ?, active = ? WHERE id = ?`

const deleteRateSQL = `DELETE FROM seasonal_rates WHERE id = ?`

// -----------------------------------------------------------------------------
// BOOKINGS
// -----------------------------------------------------------------------------

const bookingCols = `id, reference, apartment_type, check_in, check_out, guests,
       guest_name, guest_email, guest_phone, status, total_price, created_at, updated_at`

const selectBookingSQL = `SELECT ` + bookingCols + ` FROM bookings WHERE id = ?`

// Half-open overlap: check_in < end AND start < check_out.
const listBookingsSQL = `
SELECT ` + bookingCols + `
  FROM bookings
 WHERE apartment_type = ? AND check_in < ? AND check_out > ?
`

const occupyingFilter = ` AND status IN ('pending', 'confirmed')`

const bookingOrder = ` ORDER BY check_in, id`

const insertBookingSQL = `
INSERT INTO bookings
  (reference, apartment_type, check_in, check_out, guests, guest_name, guest_email, guest_phone, status, total_price)
VALUES
  (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const updateBookingRangeSQL = `UPDATE bookings SET check_in = ?, check_out = ? WHERE id = ?`

const updateBookingStatusSQL = `UPDATE bookings SET status = ? WHERE id = ?`

// -----------------------------------------------------------------------------
// BLOCKED RANGES
// -----------------------------------------------------------------------------

const blockCols = `id, apartment_type, start_date, end_date, source, external_id, integration_id, reason, created_at`

const selectBlockSQL = `SELECT ` + blockCols + ` FROM blocked_ranges WHERE id = ?`

const listBlocksSQL = `SELECT ` + blockCols + ` FROM blocked_ranges WHERE apartment_type = ?`

const blocksWithinFilter = ` AND start_date < ? AND end_date > ?`

const blockOrder = ` ORDER BY start_date, id`

const listOwnedBlocksSQL = `SELECT ` + blockCols + ` FROM blocked_ranges WHERE integration_id = ?` + blockOrder

const insertBlockSQL = `
INSERT INTO blocked_ranges
  (apartment_type, start_date, end_date, source, external_id, integration_id, reason)
VALUES
  (?, ?, ?, ?, ?, ?, ?)
`

const updateBlockRangeSQL = `UPDATE blocked_ranges SET start_date = ?, end_date = ? WHERE id = ?`

const deleteBlockSQL = `DELETE FROM blocked_ranges WHERE id = ?`

// -----------------------------------------------------------------------------
// CHANNEL INTEGRATIONS
// -----------------------------------------------------------------------------

const integrationCols = `id, channel, apartment_type, url, active, last_synced_at, last_sync_error, created_at, updated_at`

const selectIntegrationSQL = `SELECT ` + integrationCols + ` FROM channel_integrations WHERE id = ?`

const listIntegrationsSQL = `
SELECT ` + integrationCols + `
  FROM channel_integrations
 WHERE (? = FALSE OR active = TRUE)
 ORDER BY id
`

const insertIntegrationSQL = `
INSERT INTO channel_integrations (channel, apartment_type, url, active)
VALUES (?, ?, ?, ?)
`

// Staff edits never touch the sync bookkeeping columns.
const updateIntegrationSQL = `
UPDATE channel_integrations
   SET channel = ?, apartment_type = ?, url = ?, active = ?, updated_at = CURRENT_TIMESTAMP
 WHERE id = ?
`

// Owned blocks go with it through ON DELETE CASCADE.
const deleteIntegrationSQL = `DELETE FROM channel_integrations WHERE id = ?`

const markSyncedSQL = `UPDATE channel_integrations SET last_synced_at = ?, last_sync_error = NULL WHERE id = ?`

const markSyncFailedSQL = `UPDATE channel_integrations SET last_sync_error = ? WHERE id = ?`

// -----------------------------------------------------------------------------
// EXISTENCE PROBES (UPDATE reports 0 rows when nothing changed)
// -----------------------------------------------------------------------------

const (
	apartmentExistsSQL   = `SELECT 1 FROM apartment_types WHERE slug = ?`
	rateExistsSQL        = `SELECT 1 FROM seasonal_rates WHERE id = ?`
	bookingExistsSQL     = `SELECT 1 FROM bookings WHERE id = ?`
	blockExistsSQL       = `SELECT 1 FROM blocked_ranges WHERE id = ?`
	integrationExistsSQL = `SELECT 1 FROM channel_integrations WHERE id = ?`
)
