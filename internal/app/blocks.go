package app

import (
	"context"
	"strings"

	"aparthotel/internal/domain"
)

// BlockService administers manually entered blocked ranges.
type BlockService struct {
	store domain.Store
}

func NewBlockService(s domain.Store) *BlockService {
	return &BlockService{store: s}
}

// AddManualBlock performs no overlap check: staff may stack blocks or block
// dates a booking already holds.
func (s *BlockService) AddManualBlock(ctx context.Context, apt string, r domain.DateRange, reason string) (domain.BlockedRange, error) {
	if err := r.Validate(); err != nil {
		return domain.BlockedRange{}, err
	}
	b := domain.BlockedRange{ApartmentType: apt, Range: r, Source: domain.SourceManual}
	if reason = strings.TrimSpace(reason); reason != "" {
		b.Reason = &reason
	}
	err := s.store.Atomically(ctx, apt, func(ctx context.Context, repo domain.Repository) error {
		return repo.InsertBlock(ctx, &b)
	})
	if err != nil {
		return domain.BlockedRange{}, err
	}
	return b, nil
}

// DeleteManualBlock refuses channel rows with ErrOwnership; only the owning
// integration's sync pass removes those.
func (s *BlockService) DeleteManualBlock(ctx context.Context, id int64) error {
	b, err := s.store.GetBlock(ctx, id)
	if err != nil {
		return err
	}
	if !b.IsManual() {
		return domain.ErrOwnership
	}
	return s.store.Atomically(ctx, b.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		return repo.DeleteBlock(ctx, id)
	})
}

func (s *BlockService) ListBlocks(ctx context.Context, apt string, within *domain.DateRange) ([]domain.BlockedRange, error) {
	if within != nil {
		if err := within.Validate(); err != nil {
			return nil, err
		}
	}
	if _, err := s.store.GetApartmentType(ctx, apt); err != nil {
		return nil, err
	}
	return s.store.ListBlocks(ctx, apt, within)
}
