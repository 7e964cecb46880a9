// Package generation holds the per-session state machine around the
// backend's split generation endpoint.
package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/observable"
)

// Phase is the lifecycle position of a generation
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// ErrInFlight is logged when a generation is requested while one is running
var ErrInFlight = errors.New("generation already in progress")

// State is an immutable snapshot of the store
type State struct {
	Phase           Phase          `json:"phase"`
	Groups          []models.Group `json:"groups"`
	LastError       string         `json:"lastError,omitempty"`
	LastGeneratedAt time.Time      `json:"lastGeneratedAt,omitzero"`
	// HasGenerated reports a successful generation since the last clear
	HasGenerated bool `json:"hasGenerated"`
	// Sequence increases with every successful generation
	Sequence uint64 `json:"sequence"`
	// Version increases with every state change. Listeners may receive
	// snapshots out of order and should drop ones older than the last seen.
	Version uint64 `json:"version"`
}

// IsGenerating reports whether a request is outstanding
func (s State) IsGenerating() bool {
	return s.Phase == PhaseGenerating
}

// Splitter partitions the roster into groups
type Splitter interface {
	GenerateSplits(ctx context.Context, req models.SplitRequest) ([]models.Group, error)
}

// SettingsSource supplies the split parameters at request time
type SettingsSource interface {
	Get() models.Settings
}

// LockSource supplies the character locks at request time
type LockSource interface {
	CharacterLocks() []models.CharacterLock
}

// Store drives generation requests and publishes every state change
type Store struct {
	mu    sync.Mutex
	state State
	// pending is set while a backend call runs, even one abandoned by
	// ClearGroups; only the call's own completion resets it
	pending bool
	epoch   uint64

	splitter Splitter
	settings SettingsSource
	locks    LockSource
	now      func() time.Time

	subject observable.Subject[State]
}

// NewStore creates an idle store. locks may be nil when no lock map exists.
func NewStore(splitter Splitter, settings SettingsSource, locks LockSource) *Store {
	return &Store{
		state:    State{Phase: PhaseIdle},
		splitter: splitter,
		settings: settings,
		locks:    locks,
		now:      time.Now,
	}
}

// State returns a snapshot of the current state
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Busy reports whether a backend call is outstanding, including one whose
// result will be discarded
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

func (s *Store) snapshotLocked() State {
	st := s.state
	st.Groups = append([]models.Group(nil), s.state.Groups...)
	return st
}

// Subscribe registers fn for every state change and returns its
// unsubscribe function
func (s *Store) Subscribe(fn func(State)) func() {
	return s.subject.Subscribe(fn)
}

// GenerateGroups requests a new split from the backend. It returns false
// without contacting the backend while a request is in flight (also after
// ClearGroups abandoned it), and
// false when the request fails or was overtaken by ClearGroups. On failure
// the previous groups are kept.
func (s *Store) GenerateGroups(ctx context.Context) bool {
	s.mu.Lock()
	if s.pending {
		s.mu.Unlock()
		logging.LogDebug("Generation request ignored", "reason", ErrInFlight.Error())
		return false
	}
	s.pending = true
	epoch := s.epoch
	s.state.Phase = PhaseGenerating
	s.state.LastError = ""
	s.state.Version++
	started := s.snapshotLocked()
	s.mu.Unlock()

	s.subject.Notify(started)

	req := s.buildRequest()
	start := time.Now()
	groups, err := s.call(ctx, req)
	duration := time.Since(start)

	s.mu.Lock()
	s.pending = false
	if epoch != s.epoch {
		s.mu.Unlock()
		logging.LogInfo("Discarding generation result after clear",
			"duration_ms", duration.Milliseconds(),
			"failed", err != nil)
		return false
	}
	s.state.Version++
	if err != nil {
		s.state.Phase = PhaseFailed
		s.state.LastError = err.Error()
	} else {
		s.state.Phase = PhaseSucceeded
		s.state.Groups = groups
		s.state.LastGeneratedAt = s.now()
		s.state.HasGenerated = true
		s.state.Sequence++
	}
	settled := s.snapshotLocked()
	s.mu.Unlock()

	if err != nil {
		logging.LogGeneration(req.NumGroups, req.HealersPerGroup, len(req.CharacterLocks), 0, duration, false,
			"error", err.Error())
	} else {
		logging.LogGeneration(req.NumGroups, req.HealersPerGroup, len(req.CharacterLocks), len(groups), duration, true,
			"sequence", settled.Sequence)
	}

	s.subject.Notify(settled)
	return err == nil
}

// ClearGroups resets the store to idle. A request still in flight is
// abandoned and its result ignored when it arrives; no new request starts
// until it has returned.
func (s *Store) ClearGroups() {
	s.mu.Lock()
	abandoned := s.pending
	s.epoch++
	s.state = State{Phase: PhaseIdle, Sequence: s.state.Sequence, Version: s.state.Version + 1}
	cleared := s.snapshotLocked()
	s.mu.Unlock()

	logging.LogStoreUpdate("generation", "clear", "abandoned_request", abandoned)
	s.subject.Notify(cleared)
}

// RegenerateGroups clears and generates again. It refuses while a request
// is in flight so the running request is not abandoned by accident.
func (s *Store) RegenerateGroups(ctx context.Context) bool {
	if s.Busy() {
		logging.LogDebug("Regeneration request ignored", "reason", ErrInFlight.Error())
		return false
	}

	s.ClearGroups()
	return s.GenerateGroups(ctx)
}

func (s *Store) buildRequest() models.SplitRequest {
	settings := models.DefaultSettings()
	if s.settings != nil {
		settings = s.settings.Get()
	}
	locks := []models.CharacterLock{}
	if s.locks != nil {
		if l := s.locks.CharacterLocks(); l != nil {
			locks = l
		}
	}
	return models.SplitRequest{
		NumGroups:       settings.NumberOfSplits,
		HealersPerGroup: settings.HealersPerSplit,
		GroupSize:       models.GroupSize,
		CharacterLocks:  locks,
	}
}

// call invokes the splitter and turns a panic into an error
func (s *Store) call(ctx context.Context, req models.SplitRequest) (groups []models.Group, err error) {
	if s.splitter == nil {
		return nil, errors.New("no splitter configured")
	}
	defer func() {
		if r := recover(); r != nil {
			logging.LogCritical("Splitter panicked", fmt.Errorf("%v", r))
			groups, err = nil, fmt.Errorf("unexpected error while generating splits: %v", r)
		}
	}()

	groups, err = s.splitter.GenerateSplits(ctx, req)
	if err != nil {
		return nil, err
	}
	if groups == nil {
		groups = []models.Group{}
	}
	return groups, nil
}
