package app

import (
	"context"
	"strings"

	"aparthotel/internal/domain"
)

// ApartmentService administers apartment types. There is no delete:
// deactivated types keep their bookings, rates and blocks.
type ApartmentService struct {
	store domain.Store
}

func NewApartmentService(s domain.Store) *ApartmentService {
	return &ApartmentService{store: s}
}

func (s *ApartmentService) Create(ctx context.Context, a domain.ApartmentType) (domain.ApartmentType, error) {
	a.Slug = strings.TrimSpace(a.Slug)
	a.Active = true
	if err := a.Validate(); err != nil {
		return domain.ApartmentType{}, err
	}
	if err := s.store.CreateApartmentType(ctx, a); err != nil {
		return domain.ApartmentType{}, err
	}
	return s.store.GetApartmentType(ctx, a.Slug)
}

func (s *ApartmentService) Update(ctx context.Context, a domain.ApartmentType) (domain.ApartmentType, error) {
	if err := a.Validate(); err != nil {
		return domain.ApartmentType{}, err
	}
	err := s.store.Atomically(ctx, a.Slug, func(ctx context.Context, repo domain.Repository) error {
		return repo.UpdateApartmentType(ctx, a)
	})
	if err != nil {
		return domain.ApartmentType{}, err
	}
	return s.store.GetApartmentType(ctx, a.Slug)
}

func (s *ApartmentService) Deactivate(ctx context.Context, slug string) (domain.ApartmentType, error) {
	err := s.store.Atomically(ctx, slug, func(ctx context.Context, repo domain.Repository) error {
		a, err := repo.GetApartmentType(ctx, slug)
		if err != nil {
			return err
		}
		a.Active = false
		return repo.UpdateApartmentType(ctx, a)
	})
	if err != nil {
		return domain.ApartmentType{}, err
	}
	return s.store.GetApartmentType(ctx, slug)
}

func (s *ApartmentService) Get(ctx context.Context, slug string) (domain.ApartmentType, error) {
	return s.store.GetApartmentType(ctx, slug)
}

func (s *ApartmentService) List(ctx context.Context) ([]domain.ApartmentType, error) {
	return s.store.ListApartmentTypes(ctx)
}
