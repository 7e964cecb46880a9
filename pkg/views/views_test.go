package views

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/payback159/raidsplit/pkg/generation"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/settings"
	"github.com/payback159/raidsplit/pkg/storage"
)

func init() {
	logging.InitLogger()
}

func succeeded(seq uint64, groups ...models.Group) generation.State {
	return generation.State{Phase: generation.PhaseSucceeded, Groups: groups, HasGenerated: true, Sequence: seq}
}

func names(cards []CharacterCard) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Name
	}
	return out
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- View states ---

func TestRender_SelectsExactlyOnePanel(t *testing.T) {
	v := NewRosterGroupsView()
	if v.Snapshot().State != ViewWelcome {
		t.Errorf("new view should show welcome, got %s", v.Snapshot().State)
	}

	tests := []struct {
		state generation.State
		want  ViewState
	}{
		{generation.State{Phase: generation.PhaseGenerating}, ViewLoading},
		{generation.State{Phase: generation.PhaseFailed, LastError: "boom"}, ViewError},
		{succeeded(1, models.Group{GroupID: 1}), ViewPopulated},
		{generation.State{Phase: generation.PhaseIdle}, ViewWelcome},
	}
	for _, tt := range tests {
		v.Render(tt.state)
		if got := v.Snapshot().State; got != tt.want {
			t.Errorf("phase %s: want %s, got %s", tt.state.Phase, tt.want, got)
		}
	}

	v.Render(generation.State{Phase: generation.PhaseFailed, LastError: "boom"})
	if v.Snapshot().Error != "boom" {
		t.Errorf("error view should carry the message, got %q", v.Snapshot().Error)
	}
}

func TestRender_ThreeGroupsThreeBlocks(t *testing.T) {
	v := NewRosterGroupsView()
	v.Render(succeeded(1,
		models.Group{GroupID: 1, Characters: []models.Character{{Name: "A"}, {Name: "B"}}},
		models.Group{GroupID: 2},
		models.Group{GroupID: 3},
	))

	snap := v.Snapshot()
	if len(snap.Groups) != 3 {
		t.Fatalf("want 3 blocks, got %d", len(snap.Groups))
	}
	if snap.Groups[0].MemberCount != 2 || snap.Groups[0].HeaderColor == "" {
		t.Errorf("unexpected first block: %+v", snap.Groups[0])
	}
}

func TestRender_RebuildsOnlyOnNewSequence(t *testing.T) {
	v := NewRosterGroupsView()
	v.Render(succeeded(1, models.Group{GroupID: 1}))
	v.Render(succeeded(1, models.Group{GroupID: 1}, models.Group{GroupID: 2}))
	if len(v.Snapshot().Groups) != 1 {
		t.Error("same sequence must not rebuild")
	}

	v.Render(succeeded(2, models.Group{GroupID: 7}, models.Group{GroupID: 8}))
	snap := v.Snapshot()
	if len(snap.Groups) != 2 || snap.Groups[0].GroupID != 7 {
		t.Errorf("new sequence should replace blocks, got %+v", snap.Groups)
	}
}

// --- Sorting ---

func TestRender_LockedFirstRegardlessOfInputOrder(t *testing.T) {
	a := models.Character{Name: "A", RoleRaid: models.RoleRDPS, RoleGroup: models.PriorityMain}
	b := models.Character{Name: "B", RoleRaid: models.RoleTank, RoleGroup: models.PriorityAlt}

	for _, order := range [][]models.Character{{a, b}, {b, a}} {
		v := NewRosterGroupsView()
		v.ToggleCharacterLock("B", 1)
		v.Render(succeeded(1, models.Group{GroupID: 1, Characters: order}))

		got := names(v.Snapshot().Groups[0].Cards)
		if !equalNames(got, []string{"B", "A"}) {
			t.Errorf("want [B A], got %v", got)
		}
	}
}

func TestSortCards_RoleThenPriority(t *testing.T) {
	cards := []CharacterCard{
		{Name: "unknown", RoleRaid: "bard", RoleGroup: models.PriorityMain},
		{Name: "rdps-alt", RoleRaid: models.RoleRDPS, RoleGroup: models.PriorityAlt},
		{Name: "rdps-main", RoleRaid: models.RoleRDPS, RoleGroup: models.PriorityMain},
		{Name: "healer", RoleRaid: models.RoleHealer, RoleGroup: models.PriorityInactive},
		{Name: "mdps", RoleRaid: models.RoleMDPS, RoleGroup: "mystery"},
		{Name: "tank", RoleRaid: models.RoleTank, RoleGroup: models.PriorityHelper},
		{Name: "locked-rdps", RoleRaid: models.RoleRDPS, Locked: true},
	}
	SortCards(cards)

	want := []string{"locked-rdps", "tank", "healer", "mdps", "rdps-main", "rdps-alt", "unknown"}
	if got := names(cards); !equalNames(got, want) {
		t.Errorf("want %v, got %v", want, got)
	}
}

func TestSortCards_StableForEqualCards(t *testing.T) {
	cards := []CharacterCard{
		{Name: "x1", RoleRaid: models.RoleMDPS, RoleGroup: models.PriorityMain},
		{Name: "x2", RoleRaid: models.RoleMDPS, RoleGroup: models.PriorityMain},
		{Name: "x3", RoleRaid: models.RoleMDPS, RoleGroup: models.PriorityMain},
	}
	SortCards(cards)
	if got := names(cards); !equalNames(got, []string{"x1", "x2", "x3"}) {
		t.Errorf("equal cards should keep their order, got %v", got)
	}
}

// --- Locks ---

func TestToggleCharacterLock_RoundTrip(t *testing.T) {
	v := NewRosterGroupsView()
	v.ToggleCharacterLock("Ann", 2)
	before := v.CharacterLocks()

	if !v.ToggleCharacterLock("Bob", 1) {
		t.Error("first toggle should lock")
	}
	if v.ToggleCharacterLock("Bob", 1) {
		t.Error("second toggle should unlock")
	}

	after := v.CharacterLocks()
	if len(after) != len(before) || after[0] != before[0] {
		t.Errorf("lock map not restored: before %v after %v", before, after)
	}
}

func TestCharacterLocks_InsertionOrder(t *testing.T) {
	v := NewRosterGroupsView()
	v.ToggleCharacterLock("C", 3)
	v.ToggleCharacterLock("A", 1)
	v.ToggleCharacterLock("B", 2)

	locks := v.CharacterLocks()
	want := []models.CharacterLock{{CharacterName: "C", GroupID: 3}, {CharacterName: "A", GroupID: 1}, {CharacterName: "B", GroupID: 2}}
	for i := range want {
		if locks[i] != want[i] {
			t.Errorf("lock %d: want %+v, got %+v", i, want[i], locks[i])
		}
	}
}

func TestToggleCharacterLock_ResortsOnlyAffectedGroup(t *testing.T) {
	g1 := models.Group{GroupID: 1, Characters: []models.Character{
		{Name: "t1", RoleRaid: models.RoleTank},
		{Name: "r1", RoleRaid: models.RoleRDPS},
	}}
	g2 := models.Group{GroupID: 2, Characters: []models.Character{
		{Name: "t2", RoleRaid: models.RoleTank},
		{Name: "r2", RoleRaid: models.RoleRDPS},
	}}
	v := NewRosterGroupsView()
	v.Render(succeeded(1, g1, g2))

	if !v.ToggleCharacterLock("r1", 1) {
		t.Fatal("expected lock")
	}
	snap := v.Snapshot()
	if got := names(snap.Groups[0].Cards); !equalNames(got, []string{"r1", "t1"}) {
		t.Errorf("group 1: want [r1 t1], got %v", got)
	}
	if !snap.Groups[0].Cards[0].Locked {
		t.Error("r1 card should show locked")
	}
	if got := names(snap.Groups[1].Cards); !equalNames(got, []string{"t2", "r2"}) {
		t.Errorf("group 2 must be untouched, got %v", got)
	}
}

func TestClearAllLocks_ResetsCardsWithoutResort(t *testing.T) {
	g := models.Group{GroupID: 1, Characters: []models.Character{
		{Name: "t1", RoleRaid: models.RoleTank},
		{Name: "r1", RoleRaid: models.RoleRDPS},
	}}
	v := NewRosterGroupsView()
	v.Render(succeeded(1, g))
	v.ToggleCharacterLock("r1", 1)

	if n := v.ClearAllLocks(); n != 1 {
		t.Errorf("want 1 removed, got %d", n)
	}
	snap := v.Snapshot()
	if len(snap.Locks) != 0 || v.IsLocked("r1") {
		t.Error("locks should be empty")
	}
	if got := names(snap.Groups[0].Cards); !equalNames(got, []string{"r1", "t1"}) {
		t.Errorf("clear must not re-sort, got %v", got)
	}
	for _, c := range snap.Groups[0].Cards {
		if c.Locked {
			t.Errorf("card %s still locked", c.Name)
		}
	}
}

func TestLocksSurviveRegeneration(t *testing.T) {
	v := NewRosterGroupsView()
	v.ToggleCharacterLock("A", 1)
	v.Render(succeeded(1, models.Group{GroupID: 1, Characters: []models.Character{{Name: "A"}}}))
	v.Render(generation.State{Phase: generation.PhaseIdle})
	v.Render(succeeded(2, models.Group{GroupID: 1, Characters: []models.Character{{Name: "A"}}}))

	if !v.Snapshot().Groups[0].Cards[0].Locked {
		t.Error("locked character should render locked after regeneration")
	}
}

func TestRender_IgnoresOlderSnapshot(t *testing.T) {
	v := NewRosterGroupsView()

	late := succeeded(1, models.Group{GroupID: 1, Characters: []models.Character{{Name: "A"}}})
	late.Version = 2
	cleared := generation.State{Phase: generation.PhaseIdle, Sequence: 1, Version: 3}

	if !v.Render(cleared) {
		t.Fatal("newer snapshot should render")
	}
	if v.Render(late) {
		t.Error("older snapshot should be ignored")
	}
	if snap := v.Snapshot(); snap.State != ViewWelcome || len(snap.Groups) != 0 {
		t.Errorf("view should stay on the cleared state, got %s with %d groups", snap.State, len(snap.Groups))
	}
}

// --- Modal ---

func TestModal_EscapeAndClickOutside(t *testing.T) {
	m := NewModal("test")
	if m.HandleKey(KeyEscape) {
		t.Error("Escape on a closed modal should do nothing")
	}

	m.Open()
	if m.HandleKey("Enter") || !m.IsOpen() {
		t.Error("other keys must not close the modal")
	}
	if !m.HandleKey(KeyEscape) || m.IsOpen() {
		t.Error("Escape should close an open modal")
	}

	m.Open()
	if !m.HandleClickOutside() || m.IsOpen() {
		t.Error("click outside should close an open modal")
	}
	if m.HandleClickOutside() {
		t.Error("click outside a closed modal should report false")
	}
}

// --- Settings modal ---

func TestSettingsModal_SubmitKeepsOpenOnProblems(t *testing.T) {
	v := NewSettingsModalView(settings.NewStore(storage.NewMemory()))
	v.Open()

	if v.Submit(settings.Patch{NumberOfSplits: settings.IntPtr(6)}) {
		t.Fatal("invalid patch should be rejected")
	}
	form := v.Form()
	if !form.Open || len(form.Problems) != 1 {
		t.Errorf("dialog should stay open with one problem: %+v", form)
	}

	if !v.Submit(settings.Patch{NumberOfSplits: settings.IntPtr(4)}) {
		t.Fatal("valid patch should be accepted")
	}
	form = v.Form()
	if form.Open || form.Current.NumberOfSplits != 4 || len(form.Problems) != 0 {
		t.Errorf("unexpected form after success: %+v", form)
	}
	if len(form.SplitOptions) != 4 || form.SplitOptions[0] != 2 || len(form.HealerOptions) != 8 {
		t.Errorf("unexpected options: %v / %v", form.SplitOptions, form.HealerOptions)
	}
}

// --- Split details modal ---

type fakeStats struct {
	stats models.RosterStats
	err   error
	calls int
}

func (f *fakeStats) RosterStats(context.Context) (models.RosterStats, error) {
	f.calls++
	return f.stats, f.err
}

func TestSplitDetails_FetchesOnEveryOpen(t *testing.T) {
	fs := &fakeStats{stats: models.RosterStats{Mains: models.MainsStats{
		Armor: map[string]int{"plate": 10},
	}}}
	v := NewSplitDetailsModalView(fs, NewToasts())
	group := models.Group{GroupID: 1, ArmorDistributionMains: map[string]int{"plate": 3}}

	if err := v.Open(context.Background(), group, 3); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	d, ok := v.Details()
	if !ok || d.Armor[0].ExpectedDisplay() != "3.33" || d.Armor[0].Actual != 3 {
		t.Errorf("unexpected details: %+v", d)
	}

	v.Close()
	if _, ok := v.Details(); ok {
		t.Error("closed dialog should expose no details")
	}
	_ = v.Open(context.Background(), group, 3)
	if fs.calls != 2 {
		t.Errorf("stats should be fetched on every open, got %d calls", fs.calls)
	}
}

func TestSplitDetails_FetchFailureStaysClosed(t *testing.T) {
	toasts := NewToasts()
	v := NewSplitDetailsModalView(&fakeStats{err: errors.New("offline")}, toasts)

	if err := v.Open(context.Background(), models.Group{GroupID: 1}, 2); err == nil {
		t.Fatal("expected error")
	}
	if v.IsOpen() {
		t.Error("dialog should stay closed")
	}
	active := toasts.Active()
	if len(active) != 1 || active[0].Type != models.MessageError {
		t.Errorf("want one error toast, got %+v", active)
	}
}

// --- Sidebar ---

type fakePlayers struct {
	list models.PlayerList
	err  error
}

func (f fakePlayers) Players(context.Context) (models.PlayerList, error) {
	return f.list, f.err
}

func samplePlayers() models.PlayerList {
	return models.PlayerList{Players: []models.Player{
		{ID: "p1", DisplayName: "Alex Thunder", DiscordTag: "AlexThunder#1234",
			Characters: []models.PlayerCharacter{{Name: "Thundra"}, {Name: "Stormcall"}}},
		{ID: "p2", DisplayName: "Sam Shadow", DiscordTag: "samsh#0001",
			Characters: []models.PlayerCharacter{{Name: "Nachtmahr"}}},
		{ID: "p3", DisplayName: "Straße", DiscordTag: "strasse#7",
			Characters: []models.PlayerCharacter{{Name: "Öl"}}},
	}}
}

func visibleIDs(s SidebarSnapshot) []string {
	var out []string
	for _, r := range s.Rows {
		if !r.Hidden {
			out = append(out, r.Player.ID)
		}
	}
	return out
}

func TestSidebar_FilterHidesButKeepsRows(t *testing.T) {
	v := NewPlayerSidebarView(fakePlayers{list: samplePlayers()}, nil)
	if err := v.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"p1", "p2", "p3"}},
		{"thunder", []string{"p1"}},   // display name, different case
		{"SAMSH", []string{"p2"}},     // discord tag
		{"nacht", []string{"p2"}},     // character name
		{"storm", []string{"p1"}},     // second character
		{"STRASSE", []string{"p3"}},   // case folding of ß
		{"öl", []string{"p3"}},        // non-ASCII character name
		{"nobody", nil},
	}
	for _, tt := range tests {
		n := v.Filter(tt.query)
		snap := v.Snapshot()
		if len(snap.Rows) != 3 {
			t.Errorf("%q: rows must not be removed, got %d", tt.query, len(snap.Rows))
		}
		got := visibleIDs(snap)
		if !equalNames(got, tt.want) || n != len(tt.want) {
			t.Errorf("%q: want %v, got %v (count %d)", tt.query, tt.want, got, n)
		}
	}
}

func TestSidebar_FilterSurvivesReload(t *testing.T) {
	v := NewPlayerSidebarView(fakePlayers{list: samplePlayers()}, nil)
	v.Filter("sam")
	_ = v.Load(context.Background())

	if got := visibleIDs(v.Snapshot()); !equalNames(got, []string{"p2"}) {
		t.Errorf("filter should apply to freshly loaded rows, got %v", got)
	}
}

func TestSidebar_ExpandedState(t *testing.T) {
	v := NewPlayerSidebarView(fakePlayers{list: samplePlayers()}, nil)
	v.SetExpanded([]string{"p3"})
	_ = v.Load(context.Background())

	if !v.ToggleExpanded("p1") {
		t.Error("toggle should expand")
	}
	if got := v.ExpandedPlayers(); !equalNames(got, []string{"p1", "p3"}) {
		t.Errorf("want [p1 p3], got %v", got)
	}
	if v.ToggleExpanded("p1") {
		t.Error("second toggle should collapse")
	}
	rows := v.Snapshot().Rows
	if rows[0].Expanded || !rows[2].Expanded {
		t.Errorf("unexpected rows: %+v", rows)
	}
}

func TestSidebar_LoadFailureToasts(t *testing.T) {
	toasts := NewToasts()
	v := NewPlayerSidebarView(fakePlayers{err: errors.New("down")}, toasts)
	if err := v.Load(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(toasts.Active()) != 1 {
		t.Error("want one error toast")
	}
}

// --- Toasts ---

func TestToasts_DefaultDurations(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	toasts := NewToasts()
	toasts.now = func() time.Time { return base }

	s := toasts.Success("saved")
	e := toasts.Error("failed")
	i := toasts.Info("fyi")

	if s.ExpiresAt.Sub(base) != 3000*time.Millisecond {
		t.Errorf("success duration: got %v", s.ExpiresAt.Sub(base))
	}
	if e.ExpiresAt.Sub(base) != 5000*time.Millisecond {
		t.Errorf("error duration: got %v", e.ExpiresAt.Sub(base))
	}
	if i.ExpiresAt.Sub(base) != 3000*time.Millisecond {
		t.Errorf("info duration: got %v", i.ExpiresAt.Sub(base))
	}
	if s.ID == "" || s.ID == e.ID {
		t.Error("toasts need distinct ids")
	}
}

func TestToasts_ExpiryAndDismiss(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	toasts := NewToasts()
	toasts.now = func() time.Time { return now }

	toasts.Success("a")
	e := toasts.Error("b")
	toasts.Info("c")

	now = now.Add(4 * time.Second)
	active := toasts.Active()
	if len(active) != 1 || active[0].ID != e.ID {
		t.Fatalf("only the error toast should remain, got %+v", active)
	}

	if !toasts.Dismiss(e.ID) || toasts.Dismiss(e.ID) {
		t.Error("dismiss should succeed exactly once")
	}
	if len(toasts.Active()) != 0 {
		t.Error("queue should be empty")
	}
}

func TestToasts_Subscribe(t *testing.T) {
	toasts := NewToasts()
	var got []models.Message
	unsubscribe := toasts.Subscribe(func(m models.Message) { got = append(got, m) })
	toasts.Info("one")
	unsubscribe()
	toasts.Info("two")

	if len(got) != 1 || got[0].Text != "one" {
		t.Errorf("unexpected notifications: %+v", got)
	}
}
