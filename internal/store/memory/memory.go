// Package memory is an in-process Store used by tests, the standalone
// simulator and single-node deployments without a database.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"smartbin-backend/internal/models"
	"smartbin-backend/internal/store"
)

type alertRecord struct {
	alert models.Alert
	seq   int64
}

// Store keeps everything in maps guarded by one RWMutex. Reconcile
// additionally holds a per-bin mutex for the whole read-modify-write.
type Store struct {
	mu        sync.RWMutex
	bins      map[string]models.Bin
	readings  []models.Reading
	readingIx map[string]int
	alerts    map[string]*alertRecord
	summaries []models.Summary
	users     map[string]models.User
	seq       int64

	binLocksMu sync.Mutex
	binLocks   map[string]*sync.Mutex
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		bins:      make(map[string]models.Bin),
		readingIx: make(map[string]int),
		alerts:    make(map[string]*alertRecord),
		users:     make(map[string]models.User),
		binLocks:  make(map[string]*sync.Mutex),
	}
}

func (s *Store) Close() error { return nil }

// ========== Bins ==========

func (s *Store) GetBin(ctx context.Context, id string) (*models.Bin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bin, ok := s.bins[id]
	if !ok {
		return nil, models.NotFound("bin", id)
	}
	return &bin, nil
}

func (s *Store) ListBins(ctx context.Context) ([]models.Bin, error) {
	return s.listBins(false), nil
}

func (s *Store) ListActiveBins(ctx context.Context) ([]models.Bin, error) {
	return s.listBins(true), nil
}

func (s *Store) listBins(activeOnly bool) []models.Bin {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bins := make([]models.Bin, 0, len(s.bins))
	for _, b := range s.bins {
		if activeOnly && !b.Active {
			continue
		}
		bins = append(bins, b)
	}
	sort.Slice(bins, func(i, j int) bool { return bins[i].ID < bins[j].ID })
	return bins
}

func (s *Store) UpsertBin(ctx context.Context, bin *models.Bin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.bins[bin.ID]; ok && existing.CreatedAt != 0 {
		bin.CreatedAt = existing.CreatedAt
	}
	s.bins[bin.ID] = *bin
	return nil
}

// ========== Readings ==========

func (s *Store) InsertReading(ctx context.Context, r *models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertReadingLocked(*r)
	return nil
}

func (s *Store) InsertReadings(ctx context.Context, rs []models.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rs {
		s.insertReadingLocked(r)
	}
	return nil
}

func (s *Store) insertReadingLocked(r models.Reading) {
	if idx, ok := s.readingIx[r.ID]; ok {
		s.readings[idx] = r
		return
	}
	s.readingIx[r.ID] = len(s.readings)
	s.readings = append(s.readings, r)
}

func (s *Store) SetPercentFull(ctx context.Context, readingID string, percentFull int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.readingIx[readingID]
	if !ok {
		return models.NotFound("reading", readingID)
	}
	pct := percentFull
	s.readings[idx].PercentFull = &pct
	return nil
}

// GetReading is a test helper.
func (s *Store) GetReading(id string) (models.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.readingIx[id]
	if !ok {
		return models.Reading{}, false
	}
	return s.readings[idx], true
}

func (s *Store) ReadingsInWindow(ctx context.Context, binID string, from, to int64) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reading
	for _, r := range s.readings {
		if r.BinID == binID && r.TS >= from && r.TS < to {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS < out[j].TS })
	return out, nil
}

func (s *Store) ListReadings(ctx context.Context, binID string, limit int) ([]models.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Reading
	for i := len(s.readings) - 1; i >= 0; i-- {
		if s.readings[i].BinID == binID {
			out = append(out, s.readings[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS > out[j].TS })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) LatestReading(ctx context.Context, binID string) (*models.Reading, error) {
	readings, err := s.ListReadings(ctx, binID, 1)
	if err != nil {
		return nil, err
	}
	if len(readings) == 0 {
		return nil, nil
	}
	return &readings[0], nil
}

func (s *Store) SumWeightSince(ctx context.Context, since int64) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total float64
	for _, r := range s.readings {
		if r.TS >= since {
			total += r.WeightKg
		}
	}
	return total, nil
}

// ========== Summaries ==========

func (s *Store) SaveSummaries(ctx context.Context, summaries []models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries = append(s.summaries, summaries...)
	return nil
}

func (s *Store) ListSummaries(ctx context.Context, binID string, limit int) ([]models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Summary
	for i := len(s.summaries) - 1; i >= 0; i-- {
		if binID == "" || s.summaries[i].BinID == binID {
			out = append(out, s.summaries[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WeekStart > out[j].WeekStart })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ========== Users ==========

func (s *Store) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, models.NotFound("user", id)
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, models.NotFound("user", email)
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return &models.ValidationError{Field: "email", Reason: "email already registered"}
		}
	}
	s.users[u.ID] = *u
	return nil
}
