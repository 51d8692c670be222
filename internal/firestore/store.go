// Package firestore implements store.Store on Cloud Firestore. Each bin
// has an alertState/{binId} document that every alert write touches, so
// Firestore's optimistic transactions serialize writers per bin.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	fs "cloud.google.com/go/firestore"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"smartbin-backend/internal/logger"
	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

const (
	colBins       = "bins"
	colReadings   = "readings"
	colAlerts     = "alerts"
	colAlertState = "alertState"
	colSummaries  = "summaries"
	colUsers      = "users"

	// Firestore rejects batches and transactions above 500 writes.
	maxWrites = 500
)

// Store is a Firestore-backed store.Store.
type Store struct {
	client *fs.Client
	log    zerolog.Logger
}

var _ store.Store = (*Store)(nil)

func New(client *fs.Client) *Store {
	return &Store{client: client, log: logger.WithComponent("firestore")}
}

func (s *Store) Close() error {
	return s.client.Close()
}

// classify maps gRPC status codes onto the domain taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrNotFound) || errors.Is(err, models.ErrValidation) ||
		errors.Is(err, models.ErrInvariantViolation) || errors.Is(err, models.ErrTransientStore) {
		return err
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s: %w", op, models.ErrNotFound)
	case codes.InvalidArgument, codes.FailedPrecondition, codes.AlreadyExists, codes.PermissionDenied:
		return fmt.Errorf("%s: %w", op, err)
	}
	return models.Transient(op, err)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// collect drains an iterator into typed values.
func collect[T any](it *fs.DocumentIterator) ([]T, error) {
	defer it.Stop()
	out := []T{}
	for {
		doc, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		var v T
		if err := doc.DataTo(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
}

// ========== Bins ==========

func (s *Store) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	snap, err := s.client.Collection(colBins).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, models.NotFound("bin", id)
	}
	if err != nil {
		return nil, classify("get bin", err)
	}
	var bin models.Bin
	if err := snap.DataTo(&bin); err != nil {
		return nil, fmt.Errorf("decode bin %s: %w", id, err)
	}
	return &bin, nil
}

func (s *Store) ListBins(ctx context.Context) ([]models.Bin, error) {
	bins, err := collect[models.Bin](s.client.Collection(colBins).Documents(ctx))
	if err != nil {
		return nil, classify("list bins", err)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].ID < bins[j].ID })
	return bins, nil
}

func (s *Store) ListActiveBins(ctx context.Context) ([]models.Bin, error) {
	q := s.client.Collection(colBins).Where("active", "==", true)
	bins, err := collect[models.Bin](q.Documents(ctx))
	if err != nil {
		return nil, classify("list active bins", err)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].ID < bins[j].ID })
	return bins, nil
}

func (s *Store) UpsertBin(ctx context.Context, bin *models.Bin) error {
	ref := s.client.Collection(colBins).Doc(bin.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && !isNotFound(err) {
			return err
		}
		if snap != nil && snap.Exists() {
			var existing models.Bin
			if err := snap.DataTo(&existing); err == nil && existing.CreatedAt != 0 {
				bin.CreatedAt = existing.CreatedAt
			}
		}
		return tx.Set(ref, bin)
	})
	return classify("upsert bin", err)
}

// ========== Users ==========

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	snap, err := s.client.Collection(colUsers).Doc(id).Get(ctx)
	if isNotFound(err) {
		return nil, models.NotFound("user", id)
	}
	if err != nil {
		return nil, classify("get user", err)
	}
	var u models.User
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	q := s.client.Collection(colUsers).Where("email", "==", normalizeEmail(email)).Limit(1)
	users, err := collect[models.User](q.Documents(ctx))
	if err != nil {
		return nil, classify("get user by email", err)
	}
	if len(users) == 0 {
		return nil, models.NotFound("user", email)
	}
	return &users[0], nil
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	u.Email = normalizeEmail(u.Email)
	q := s.client.Collection(colUsers).Where("email", "==", u.Email).Limit(1)
	ref := s.client.Collection(colUsers).Doc(u.ID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *fs.Transaction) error {
		existing, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return &models.ValidationError{Field: "email", Reason: "email already registered"}
		}
		return tx.Create(ref, u)
	})
	return classify("create user", err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
