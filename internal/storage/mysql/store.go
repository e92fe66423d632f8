package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"aparthotel/internal/domain"
)

// Store adds per-apartment units of work to Repo. A unit is a READ COMMITTED
// transaction that first locks the apartment_types row, so units for the
// same apartment type run one after another while the rest proceed.
type Store struct {
	*Repo
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{Repo: New(db), db: db}
}

var _ domain.Store = (*Store)(nil)

func (s *Store) Atomically(ctx context.Context, apartmentType string, fn func(ctx context.Context, r domain.Repository) error) (err error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				log.Error().Err(rbErr).Str("apartment_type", apartmentType).Msg("rollback failed")
			}
		}
	}()

	var slug string
	if err = tx.QueryRowContext(ctx, lockApartmentSQL, apartmentType).Scan(&slug); err != nil {
		return notFound(err, fmt.Sprintf("apartment type %q", apartmentType))
	}
	if err = fn(ctx, &Repo{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}
