// Package app wires one browser session's stores, views, live channel and
// exporter together.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/payback159/raidsplit/pkg/backend"
	"github.com/payback159/raidsplit/pkg/calculator"
	"github.com/payback159/raidsplit/pkg/export"
	"github.com/payback159/raidsplit/pkg/generation"
	"github.com/payback159/raidsplit/pkg/live"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/security"
	"github.com/payback159/raidsplit/pkg/settings"
	"github.com/payback159/raidsplit/pkg/storage"
	"github.com/payback159/raidsplit/pkg/views"
)

const (
	genericFailure = "Something went wrong. Please try again."

	// activityPersistInterval throttles how often activity pings are saved
	activityPersistInterval = time.Minute
	// IdleAfter is how long without activity a session counts as idle
	IdleAfter = 15 * time.Minute
)

var (
	ErrUnexpected       = errors.New("unexpected error")
	ErrUnknownGroup     = errors.New("unknown group")
	ErrUnknownCharacter = errors.New("character not in group")
)

// Backend is everything a session needs from the splitter service
type Backend interface {
	generation.Splitter
	views.StatsFetcher
	views.PlayersFetcher
	Stats(ctx context.Context) (models.RosterSummary, error)
	DBStatus(ctx context.Context) (models.BackendStatus, error)
	Seed(ctx context.Context, kind backend.SeedKind) (string, error)
}

// AppState is the snapshot saved under storage.KeyAppState
type AppState struct {
	Settings        models.Settings `json:"settings"`
	LastActivity    time.Time       `json:"lastActivity"`
	ExpandedPlayers []string        `json:"expandedPlayers"`
}

// Shell owns every component of one browser session
type Shell struct {
	Settings      *settings.Store
	Generation    *generation.Store
	Groups        *views.RosterGroupsView
	SettingsModal *views.SettingsModalView
	Details       *views.SplitDetailsModalView
	Sidebar       *views.PlayerSidebarView
	Toasts        *views.Toasts
	Hub           *live.Hub
	Exporter      *export.Exporter

	persist storage.Store
	backend Backend
	now     func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	mu            sync.Mutex
	lastActivity  time.Time
	lastPersisted time.Time
	visible       bool
	welcomeSeen   bool
	statsExpanded bool
	lastPhase     generation.Phase
	closed        bool
	unsubscribe   []func()
}

// New builds a session shell and restores its saved client state from
// persist
func New(persist storage.Store, b Backend) *Shell {
	if persist == nil {
		persist = storage.NewMemory()
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Shell{
		persist:   persist,
		backend:   b,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
		visible:   true,
		lastPhase: generation.PhaseIdle,
	}

	s.Toasts = views.NewToasts()
	s.Settings = settings.NewStore(persist)
	s.Groups = views.NewRosterGroupsView()
	s.Generation = generation.NewStore(b, s.Settings, s.Groups)
	s.SettingsModal = views.NewSettingsModalView(s.Settings)
	s.Details = views.NewSplitDetailsModalView(b, s.Toasts)
	s.Sidebar = views.NewPlayerSidebarView(b, s.Toasts)
	s.Hub = live.NewHub()
	s.Exporter = export.NewExporter(s.Hub, s.Toasts)

	s.restore()

	s.unsubscribe = append(s.unsubscribe,
		s.Generation.Subscribe(s.onGeneration),
		s.Settings.Subscribe(s.onSettings),
		s.Toasts.Subscribe(func(m models.Message) {
			s.Hub.Broadcast(live.EventToast, m)
		}),
	)
	s.Hub.OnMessage(s.HandleInbound)

	return s
}

func (s *Shell) restore() {
	var st AppState
	ok, err := storage.GetJSON(s.persist, storage.KeyAppState, &st)
	if err != nil {
		logging.LogWarn("Saved app state unreadable, starting fresh", "error", err)
	}
	if ok {
		s.Sidebar.SetExpanded(st.ExpandedPlayers)
		s.lastActivity = st.LastActivity
	}
	if s.lastActivity.IsZero() {
		s.lastActivity = s.now()
	}

	var seen bool
	if _, err := storage.GetJSON(s.persist, storage.KeyWelcomeSeen, &seen); err != nil {
		logging.LogWarn("Saved welcome flag unreadable", "error", err)
	}
	s.welcomeSeen = seen

	var expanded bool
	if _, err := storage.GetJSON(s.persist, storage.KeyStatsExpanded, &expanded); err != nil {
		logging.LogWarn("Saved stats panel flag unreadable", "error", err)
	}
	s.statsExpanded = expanded
}

func (s *Shell) onGeneration(st generation.State) {
	if !s.Groups.Render(st) {
		return
	}

	s.mu.Lock()
	prev := s.lastPhase
	s.lastPhase = st.Phase
	s.mu.Unlock()

	if prev == generation.PhaseGenerating {
		switch st.Phase {
		case generation.PhaseSucceeded:
			s.Toasts.Success(fmt.Sprintf("Generated %d groups", len(st.Groups)))
		case generation.PhaseFailed:
			s.Toasts.Error("Generation failed: " + st.LastError)
		}
	}
	s.Hub.Broadcast(live.EventGeneration, s.Groups.Snapshot())
}

func (s *Shell) onSettings(v models.Settings) {
	s.saveAppState()
	s.Hub.Broadcast(live.EventSettings, v)
}

// AppState returns the snapshot that is persisted for this session
func (s *Shell) AppState() AppState {
	s.mu.Lock()
	last := s.lastActivity
	s.mu.Unlock()
	return AppState{
		Settings:        s.Settings.Get(),
		LastActivity:    last,
		ExpandedPlayers: s.Sidebar.ExpandedPlayers(),
	}
}

func (s *Shell) saveAppState() {
	st := s.AppState()
	if err := storage.SetJSON(s.persist, storage.KeyAppState, st); err != nil {
		logging.LogError("Failed to persist app state", err)
		return
	}
	s.mu.Lock()
	s.lastPersisted = s.now()
	s.mu.Unlock()
}

// Guard runs fn as a last-resort boundary. Returned errors and panics are
// logged and shown as a generic error toast.
func (s *Shell) Guard(op string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogCritical("Recovered from panic", fmt.Errorf("%v", r), "operation", op)
			s.Toasts.Error(genericFailure)
			err = fmt.Errorf("%s: %w", op, ErrUnexpected)
		}
	}()

	if err := fn(); err != nil {
		s.ReportUnexpected(op, err)
		return err
	}
	return nil
}

// ReportUnexpected logs err and shows the generic error toast
func (s *Shell) ReportUnexpected(op string, err error) {
	logging.LogError("Operation failed", err, "operation", op)
	s.Toasts.Error(genericFailure)
}

// StartGeneration runs a generation in the background so the loading
// state is visible to the browser. It returns false when a generation is
// already running or the session is closed.
func (s *Shell) StartGeneration() bool {
	return s.startJob("generate", s.Generation.GenerateGroups)
}

// StartRegeneration clears the groups and generates again in the background
func (s *Shell) StartRegeneration() bool {
	return s.startJob("regenerate", s.Generation.RegenerateGroups)
}

func (s *Shell) startJob(op string, run func(context.Context) bool) bool {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed || s.Generation.Busy() {
		return false
	}

	s.Touch()
	s.jobs.Add(1)
	go func() {
		defer s.jobs.Done()
		_ = s.Guard(op, func() error {
			run(s.ctx)
			return nil
		})
	}()
	return true
}

// Wait blocks until background generations have finished
func (s *Shell) Wait() {
	s.jobs.Wait()
}

// ClearGroups returns to the welcome panel
func (s *Shell) ClearGroups() {
	s.Touch()
	s.Generation.ClearGroups()
}

// ToggleLock locks or unlocks a character shown in groupID. It returns the
// new lock state.
func (s *Shell) ToggleLock(name string, groupID int) (bool, error) {
	if err := security.ValidateCharacterName(name); err != nil {
		return false, err
	}
	group, ok := s.findGroup(groupID)
	if !ok {
		logging.LogWarn("Lock toggle for unknown group", "group_id", groupID)
		return false, ErrUnknownGroup
	}
	found := false
	for _, ch := range group.Characters {
		if ch.Name == name {
			found = true
			break
		}
	}
	if !found {
		logging.LogWarn("Lock toggle for character outside group", "group_id", groupID)
		return false, ErrUnknownCharacter
	}

	s.Touch()
	locked := s.Groups.ToggleCharacterLock(name, groupID)
	s.Hub.Broadcast(live.EventLocks, s.Groups.Snapshot())
	return locked, nil
}

// ClearLocks drops every lock without regenerating
func (s *Shell) ClearLocks() int {
	s.Touch()
	n := s.Groups.ClearAllLocks()
	s.Hub.Broadcast(live.EventLocks, s.Groups.Snapshot())
	return n
}

func (s *Shell) findGroup(groupID int) (models.Group, bool) {
	for _, g := range s.Generation.State().Groups {
		if g.GroupID == groupID {
			return g, true
		}
	}
	return models.Group{}, false
}

// OpenDetails opens the split details dialog for a displayed group. Unknown
// group ids are logged and ignored.
func (s *Shell) OpenDetails(ctx context.Context, groupID int) error {
	st := s.Generation.State()
	group, ok := s.findGroup(groupID)
	if !ok {
		logging.LogWarn("Split details requested for unknown group", "group_id", groupID)
		return ErrUnknownGroup
	}
	s.Touch()
	if err := s.Details.Open(ctx, group, len(st.Groups)); err != nil {
		return err
	}
	s.broadcastModal(s.Details.Modal)
	return nil
}

// OpenSettings shows the settings dialog
func (s *Shell) OpenSettings() {
	s.SettingsModal.Open()
	s.broadcastModal(s.SettingsModal.Modal)
}

// SubmitSettings applies p through the settings dialog
func (s *Shell) SubmitSettings(p settings.Patch) bool {
	s.Touch()
	ok := s.SettingsModal.Submit(p)
	if ok {
		s.Toasts.Success("Settings saved")
		s.broadcastModal(s.SettingsModal.Modal)
	}
	return ok
}

// ResetSettings restores the default settings
func (s *Shell) ResetSettings() {
	s.Touch()
	s.Settings.Reset()
	s.Toasts.Info("Settings reset to defaults")
}

// OpenSidebar shows the player sidebar, loading the players first
func (s *Shell) OpenSidebar(ctx context.Context) error {
	s.Touch()
	if err := s.Sidebar.Load(ctx); err != nil {
		return err
	}
	s.Sidebar.Open()
	s.broadcastModal(s.Sidebar.Modal)
	return nil
}

// TogglePlayer expands or collapses a sidebar entry and saves the choice
func (s *Shell) TogglePlayer(playerID string) bool {
	expanded := s.Sidebar.ToggleExpanded(playerID)
	s.Touch()
	s.saveAppState()
	return expanded
}

// Export copies the displayed groups to the browser's clipboard
func (s *Shell) Export(ctx context.Context, format export.Format) bool {
	s.Touch()
	return s.Exporter.ExportToClipboard(ctx, s.Generation.State().Groups, format)
}

// HandleKey closes the open dialogs on Escape and reports whether any
// closed
func (s *Shell) HandleKey(key string) bool {
	closed := false
	for _, m := range s.modals() {
		if m.HandleKey(key) {
			closed = true
			s.broadcastModal(m)
		}
	}
	return closed
}

// HandleClickOutside closes the named dialog after a click outside it
func (s *Shell) HandleClickOutside(name string) bool {
	for _, m := range s.modals() {
		if m.Name() == name && m.HandleClickOutside() {
			s.broadcastModal(m)
			return true
		}
	}
	return false
}

func (s *Shell) modals() []*views.Modal {
	return []*views.Modal{s.Details.Modal, s.SettingsModal.Modal, s.Sidebar.Modal}
}

func (s *Shell) broadcastModal(m *views.Modal) {
	s.Hub.Broadcast(live.EventModal, map[string]any{"name": m.Name(), "open": m.IsOpen()})
}

// HandleInbound processes a message from the live channel
func (s *Shell) HandleInbound(in live.Inbound) {
	switch in.Type {
	case live.InboundHello, live.InboundActivity:
		s.Touch()
	case live.InboundKey:
		s.HandleKey(in.Key)
	case live.InboundClickOutside:
		s.HandleClickOutside(in.Modal)
	case live.InboundVisibility:
		if in.Visible != nil {
			s.SetVisible(*in.Visible)
		}
	default:
		logging.LogDebug("Ignoring live message", "type", in.Type)
	}
}

// Touch records operator activity. The saved snapshot is refreshed at
// most once per activityPersistInterval.
func (s *Shell) Touch() {
	now := s.now()
	s.mu.Lock()
	s.lastActivity = now
	stale := now.Sub(s.lastPersisted) >= activityPersistInterval
	s.mu.Unlock()

	if stale {
		s.saveAppState()
	}
}

// SetVisible records whether the console tab is in the foreground
func (s *Shell) SetVisible(visible bool) {
	s.mu.Lock()
	changed := s.visible != visible
	s.visible = visible
	s.mu.Unlock()

	if changed {
		logging.LogDebug("Console visibility changed", "visible", visible)
	}
	if visible {
		s.Touch()
	}
}

// Visible reports whether the console tab was last seen in the foreground
func (s *Shell) Visible() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visible
}

// LastActivity returns the time of the last operator activity
func (s *Shell) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Idle reports whether the operator has been inactive for IdleAfter
func (s *Shell) Idle() bool {
	return s.now().Sub(s.LastActivity()) >= IdleAfter
}

// DismissWelcome remembers that the operator has seen the welcome panel
func (s *Shell) DismissWelcome() {
	s.mu.Lock()
	s.welcomeSeen = true
	s.mu.Unlock()
	if err := storage.SetJSON(s.persist, storage.KeyWelcomeSeen, true); err != nil {
		logging.LogError("Failed to persist welcome flag", err)
	}
}

// WelcomeSeen reports whether the welcome panel was dismissed
func (s *Shell) WelcomeSeen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.welcomeSeen
}

// ToggleStats expands or collapses the roster stats panel and returns the
// new state
func (s *Shell) ToggleStats() bool {
	s.mu.Lock()
	s.statsExpanded = !s.statsExpanded
	expanded := s.statsExpanded
	s.mu.Unlock()

	if err := storage.SetJSON(s.persist, storage.KeyStatsExpanded, expanded); err != nil {
		logging.LogError("Failed to persist stats panel flag", err)
	}
	return expanded
}

// StatsExpanded reports whether the roster stats panel is expanded
func (s *Shell) StatsExpanded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statsExpanded
}

// Diagnostics is the data of the backend diagnostics panel
type Diagnostics struct {
	Summary    *models.RosterSummary `json:"summary,omitempty"`
	Status     *models.BackendStatus `json:"status,omitempty"`
	SummaryErr string                `json:"summaryError,omitempty"`
	StatusErr  string                `json:"statusError,omitempty"`
}

// Diagnostics loads the roster summary and the backend's database status.
// Failures are reported in the result, not as toasts.
func (s *Shell) Diagnostics(ctx context.Context) Diagnostics {
	var d Diagnostics
	if sum, err := s.backend.Stats(ctx); err != nil {
		d.SummaryErr = err.Error()
	} else {
		d.Summary = &sum
	}
	if st, err := s.backend.DBStatus(ctx); err != nil {
		d.StatusErr = err.Error()
	} else {
		d.Status = &st
	}
	return d
}

// Seed asks the backend to seed its roster and reports the outcome as a
// toast
func (s *Shell) Seed(ctx context.Context, kind backend.SeedKind) bool {
	s.Touch()
	msg, err := s.backend.Seed(ctx, kind)
	if err != nil {
		logging.LogError("Roster seeding failed", err, "kind", string(kind))
		s.Toasts.Error(fmt.Sprintf("Seeding %s failed: %v", kind, err))
		return false
	}
	logging.LogInfo("Roster seeded", "kind", string(kind))
	if msg == "" {
		msg = fmt.Sprintf("Seeding %s finished", kind)
	}
	s.Toasts.Success(msg)
	return true
}

// Page is everything the console renders for one session
type Page struct {
	Groups          views.GroupsSnapshot     `json:"groups"`
	Settings        views.SettingsForm       `json:"settings"`
	Details         *calculator.SplitDetails `json:"details,omitempty"`
	Sidebar         views.SidebarSnapshot    `json:"sidebar"`
	Toasts          []models.Message         `json:"toasts"`
	Generating      bool                     `json:"generating"`
	LastGeneratedAt time.Time                `json:"lastGeneratedAt,omitzero"`
	WelcomeSeen     bool                     `json:"welcomeSeen"`
	StatsExpanded   bool                     `json:"statsExpanded"`
}

// Page returns the current view-models of the session
func (s *Shell) Page() Page {
	st := s.Generation.State()
	p := Page{
		Groups:          s.Groups.Snapshot(),
		Settings:        s.SettingsModal.Form(),
		Sidebar:         s.Sidebar.Snapshot(),
		Toasts:          s.Toasts.Active(),
		Generating:      st.IsGenerating(),
		LastGeneratedAt: st.LastGeneratedAt,
		WelcomeSeen:     s.WelcomeSeen(),
		StatsExpanded:   s.StatsExpanded(),
	}
	if d, ok := s.Details.Details(); ok {
		p.Details = &d
	}
	return p
}

// Close stops background work and disconnects the browser. Saved client
// state is kept.
func (s *Shell) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	s.cancel()
	for _, fn := range unsubscribe {
		fn()
	}
	s.Hub.Close()
}

// Closed reports whether Close was called
func (s *Shell) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
