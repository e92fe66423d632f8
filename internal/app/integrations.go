package app

import (
	"context"
	"strings"

	"aparthotel/internal/domain"
)

type IntegrationService struct {
	store  domain.Store
	engine *SyncEngine
}

func NewIntegrationService(s domain.Store, engine *SyncEngine) *IntegrationService {
	return &IntegrationService{store: s, engine: engine}
}

func (s *IntegrationService) Create(ctx context.Context, c domain.ChannelIntegration) (domain.ChannelIntegration, error) {
	c.Channel = strings.TrimSpace(c.Channel)
	if err := c.Validate(); err != nil {
		return domain.ChannelIntegration{}, err
	}
	if _, err := s.store.GetApartmentType(ctx, c.ApartmentType); err != nil {
		return domain.ChannelIntegration{}, err
	}
	if err := s.store.CreateIntegration(ctx, &c); err != nil {
		return domain.ChannelIntegration{}, err
	}
	return c, nil
}

// Update edits staff-owned fields. Moving an integration to another
// apartment type drops the blocks it imported for the old one; the next
// sync re-imports them under the new type.
func (s *IntegrationService) Update(ctx context.Context, c domain.ChannelIntegration) (domain.ChannelIntegration, error) {
	c.Channel = strings.TrimSpace(c.Channel)
	if err := c.Validate(); err != nil {
		return domain.ChannelIntegration{}, err
	}
	cur, err := s.store.GetIntegration(ctx, c.ID)
	if err != nil {
		return domain.ChannelIntegration{}, err
	}
	if _, err := s.store.GetApartmentType(ctx, c.ApartmentType); err != nil {
		return domain.ChannelIntegration{}, err
	}
	err = s.store.Atomically(ctx, cur.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		if cur.ApartmentType != c.ApartmentType || cur.Channel != c.Channel {
			owned, err := repo.ListOwnedBlocks(ctx, cur.ID)
			if err != nil {
				return err
			}
			for _, b := range owned {
				if err := repo.DeleteBlock(ctx, b.ID); err != nil {
					return err
				}
			}
		}
		return repo.UpdateIntegration(ctx, c)
	})
	if err != nil {
		return domain.ChannelIntegration{}, err
	}
	return s.store.GetIntegration(ctx, c.ID)
}

// Delete removes the integration together with the blocks it owns.
func (s *IntegrationService) Delete(ctx context.Context, id int64) error {
	cur, err := s.store.GetIntegration(ctx, id)
	if err != nil {
		return err
	}
	return s.store.Atomically(ctx, cur.ApartmentType, func(ctx context.Context, repo domain.Repository) error {
		return repo.DeleteIntegration(ctx, id)
	})
}

func (s *IntegrationService) Get(ctx context.Context, id int64) (domain.ChannelIntegration, error) {
	return s.store.GetIntegration(ctx, id)
}

func (s *IntegrationService) List(ctx context.Context) ([]domain.ChannelIntegration, error) {
	return s.store.ListIntegrations(ctx, false)
}

func (s *IntegrationService) TriggerSync(ctx context.Context, id int64) (domain.SyncResult, error) {
	return s.engine.Sync(ctx, id)
}
