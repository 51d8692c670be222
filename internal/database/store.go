package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

// Store implements store.Store on Postgres.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the domain taxonomy. Constraint and
// data errors are permanent; everything else (connection loss,
// serialization failures, timeouts) may succeed on retry.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "22", "23":
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return models.Transient(op, err)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
