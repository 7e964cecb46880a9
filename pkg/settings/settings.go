package settings

import (
	"fmt"
	"sync"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/observable"
	"github.com/payback159/raidsplit/pkg/storage"
)

// Patch is a partial settings update; nil fields are left unchanged
type Patch struct {
	NumberOfSplits  *int
	HealersPerSplit *int
}

// IntPtr is a convenience for building patches
func IntPtr(v int) *int {
	return &v
}

// Store holds the operator's split settings and persists every change
type Store struct {
	mu      sync.RWMutex
	current models.Settings
	persist storage.Store
	subject observable.Subject[models.Settings]
}

// NewStore creates a settings store backed by persist, restoring any
// previously saved settings. Missing or invalid saved settings fall back
// to the defaults.
func NewStore(persist storage.Store) *Store {
	s := &Store{
		current: models.DefaultSettings(),
		persist: persist,
	}
	s.restore()
	return s
}

func (s *Store) restore() {
	if s.persist == nil {
		return
	}

	var saved models.Settings
	ok, err := storage.GetJSON(s.persist, storage.KeySettings, &saved)
	if err != nil {
		logging.LogWarn("Saved settings unreadable, using defaults", "error", err)
		return
	}
	if !ok {
		return
	}

	if problems := Validate(Patch{
		NumberOfSplits:  &saved.NumberOfSplits,
		HealersPerSplit: &saved.HealersPerSplit,
	}); len(problems) > 0 {
		logging.LogWarn("Saved settings out of range, using defaults",
			"number_of_splits", saved.NumberOfSplits,
			"healers_per_split", saved.HealersPerSplit,
			"problems", problems)
		return
	}
	s.current = saved
}

// Get returns the current settings
func (s *Store) Get() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Validate checks a patch against the allowed ranges and returns one
// human-readable problem per invalid field
func Validate(p Patch) []string {
	var problems []string
	if p.NumberOfSplits != nil {
		n := *p.NumberOfSplits
		if n < models.MinSplits || n > models.MaxSplits {
			problems = append(problems, fmt.Sprintf("Number of splits must be between %d and %d (got %d)",
				models.MinSplits, models.MaxSplits, n))
		}
	}
	if p.HealersPerSplit != nil {
		n := *p.HealersPerSplit
		if n < models.MinHealers || n > models.MaxHealers {
			problems = append(problems, fmt.Sprintf("Healers per split must be between %d and %d (got %d)",
				models.MinHealers, models.MaxHealers, n))
		}
	}
	return problems
}

// Update validates p, merges it into the current settings, persists and
// notifies subscribers. On validation failure nothing changes and the
// problems are returned.
func (s *Store) Update(p Patch) (bool, []string) {
	if problems := Validate(p); len(problems) > 0 {
		logging.LogWarn("Settings update rejected", "problems", problems)
		return false, problems
	}

	s.mu.Lock()
	next := s.current
	if p.NumberOfSplits != nil {
		next.NumberOfSplits = *p.NumberOfSplits
	}
	if p.HealersPerSplit != nil {
		next.HealersPerSplit = *p.HealersPerSplit
	}
	s.current = next
	// persisted under the lock so the saved value follows update order
	s.save(next)
	s.mu.Unlock()

	logging.LogStoreUpdate("settings", "update",
		"number_of_splits", next.NumberOfSplits,
		"healers_per_split", next.HealersPerSplit)
	s.subject.Notify(next)
	return true, nil
}

// Reset restores the default settings
func (s *Store) Reset() {
	defaults := models.DefaultSettings()

	s.mu.Lock()
	s.current = defaults
	s.save(defaults)
	s.mu.Unlock()

	logging.LogStoreUpdate("settings", "reset")
	s.subject.Notify(defaults)
}

// Subscribe registers fn for every successful change and returns its
// unsubscribe function
func (s *Store) Subscribe(fn func(models.Settings)) func() {
	return s.subject.Subscribe(fn)
}

func (s *Store) save(v models.Settings) {
	if s.persist == nil {
		return
	}
	if err := storage.SetJSON(s.persist, storage.KeySettings, v); err != nil {
		// The in-memory value stays authoritative for this session.
		logging.LogError("Failed to persist settings", err)
	}
}
