package domain

import "time"

// SourceManual tags blocks entered by staff. Any other source is a channel name.
const SourceManual = "manual"

// BlockedRange is a non-bookable interval. Channel rows carry ExternalID and
// IntegrationID and belong to that integration's sync pass alone.
type BlockedRange struct {
	ID            int64
	ApartmentType string
	Range         DateRange
	Source        string
	ExternalID    *string
	IntegrationID *int64
	Reason        *string
	CreatedAt     time.Time
}

func (b BlockedRange) IsManual() bool { return b.Source == SourceManual }

// OwnedBy reports whether the row belongs to the given integration.
func (b BlockedRange) OwnedBy(integrationID int64) bool {
	return b.IntegrationID != nil && *b.IntegrationID == integrationID
}
