package generation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

func init() {
	logging.InitLogger()
}

// fakeSplitter records requests and answers from a queue of results.
// When gate is non-nil every call waits for a value on it first.
type fakeSplitter struct {
	mu       sync.Mutex
	requests []models.SplitRequest
	results  []fakeResult
	gate     chan struct{}
	entered  chan struct{}
}

type fakeResult struct {
	groups []models.Group
	err    error
	panic  any
}

func (f *fakeSplitter) GenerateSplits(ctx context.Context, req models.SplitRequest) ([]models.Group, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	var res fakeResult
	if len(f.results) > 0 {
		res = f.results[0]
		f.results = f.results[1:]
	}
	f.mu.Unlock()

	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
	if res.panic != nil {
		panic(res.panic)
	}
	return res.groups, res.err
}

func (f *fakeSplitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fixedSettings models.Settings

func (s fixedSettings) Get() models.Settings { return models.Settings(s) }

type fixedLocks []models.CharacterLock

func (l fixedLocks) CharacterLocks() []models.CharacterLock { return l }

func threeGroups() []models.Group {
	return []models.Group{
		{GroupID: 1, Characters: []models.Character{{Name: "A"}}},
		{GroupID: 2, Characters: []models.Character{{Name: "B"}}},
		{GroupID: 3, Characters: []models.Character{{Name: "C"}}},
	}
}

// --- Happy path ---

func TestGenerateGroups_Success(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}}}
	store := NewStore(sp, fixedSettings{NumberOfSplits: 3, HealersPerSplit: 5},
		fixedLocks{{CharacterName: "Bob", GroupID: 2}})

	var phases []Phase
	store.Subscribe(func(s State) { phases = append(phases, s.Phase) })

	if !store.GenerateGroups(context.Background()) {
		t.Fatal("GenerateGroups should succeed")
	}

	if len(phases) != 2 || phases[0] != PhaseGenerating || phases[1] != PhaseSucceeded {
		t.Errorf("want [generating succeeded], got %v", phases)
	}

	st := store.State()
	if len(st.Groups) != 3 || !st.HasGenerated || st.Sequence != 1 || st.LastGeneratedAt.IsZero() {
		t.Errorf("unexpected state: %+v", st)
	}

	req := sp.requests[0]
	if req.NumGroups != 3 || req.HealersPerGroup != 5 || req.GroupSize != 30 {
		t.Errorf("unexpected request: %+v", req)
	}
	if len(req.CharacterLocks) != 1 || req.CharacterLocks[0] != (models.CharacterLock{CharacterName: "Bob", GroupID: 2}) {
		t.Errorf("locks not forwarded: %+v", req.CharacterLocks)
	}
}

func TestGenerateGroups_NilLocksSendsEmptyList(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)
	store.GenerateGroups(context.Background())

	if sp.requests[0].CharacterLocks == nil {
		t.Error("character_locks should be an empty list, not null")
	}
}

// --- Failure handling ---

func TestGenerateGroups_FailureKeepsPriorGroups(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{
		{groups: threeGroups()},
		{err: errors.New("backend exploded")},
	}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	store.GenerateGroups(context.Background())
	if store.GenerateGroups(context.Background()) {
		t.Fatal("second generation should fail")
	}

	st := store.State()
	if st.Phase != PhaseFailed || st.LastError != "backend exploded" {
		t.Errorf("unexpected state: %+v", st)
	}
	if len(st.Groups) != 3 || st.Groups[0].Characters[0].Name != "A" {
		t.Errorf("prior groups should be retained, got %+v", st.Groups)
	}
	if !st.HasGenerated || st.Sequence != 1 {
		t.Errorf("failure must not bump the sequence: %+v", st)
	}
}

func TestGenerateGroups_ErrorClearedOnNextStart(t *testing.T) {
	sp := &fakeSplitter{
		results: []fakeResult{{err: errors.New("first")}, {groups: threeGroups()}},
	}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)
	store.GenerateGroups(context.Background())

	var atStart State
	first := true
	store.Subscribe(func(s State) {
		if first {
			atStart = s
			first = false
		}
	})
	store.GenerateGroups(context.Background())

	if atStart.Phase != PhaseGenerating || atStart.LastError != "" {
		t.Errorf("error should be cleared when generation starts: %+v", atStart)
	}
}

func TestGenerateGroups_PanicBecomesFailure(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{panic: "nil map"}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	if store.GenerateGroups(context.Background()) {
		t.Fatal("panicking splitter should fail the generation")
	}
	st := store.State()
	if st.Phase != PhaseFailed || st.LastError == "" {
		t.Errorf("unexpected state: %+v", st)
	}
	// the guard must be released
	if !store.GenerateGroups(context.Background()) || sp.calls() != 2 {
		t.Error("store should accept a new request after a panic")
	}
}

// --- Concurrency guard ---

func TestGenerateGroups_RejectsWhileInFlight(t *testing.T) {
	sp := &fakeSplitter{
		results: []fakeResult{{groups: threeGroups()}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	done := make(chan bool)
	go func() { done <- store.GenerateGroups(context.Background()) }()
	<-sp.entered

	if store.GenerateGroups(context.Background()) {
		t.Error("second call while in flight should return false")
	}
	if store.RegenerateGroups(context.Background()) {
		t.Error("regenerate while in flight should return false")
	}
	if !store.State().IsGenerating() {
		t.Error("state should still be generating")
	}

	close(sp.gate)
	if !<-done {
		t.Error("first call should succeed")
	}
	if sp.calls() != 1 {
		t.Errorf("want exactly 1 backend call, got %d", sp.calls())
	}
}

func TestClearGroups_DiscardsStaleResponse(t *testing.T) {
	sp := &fakeSplitter{
		results: []fakeResult{{groups: threeGroups()}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	done := make(chan bool)
	go func() { done <- store.GenerateGroups(context.Background()) }()
	<-sp.entered

	store.ClearGroups()
	close(sp.gate)

	select {
	case ok := <-done:
		if ok {
			t.Error("stale generation should report false")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("generation did not return")
	}

	st := store.State()
	if st.Phase != PhaseIdle || len(st.Groups) != 0 || st.HasGenerated {
		t.Errorf("stale response must not be applied: %+v", st)
	}
}

func TestClearGroups_KeepsSingleRequestInFlight(t *testing.T) {
	sp := &fakeSplitter{
		results: []fakeResult{{groups: threeGroups()}, {groups: threeGroups()}},
		gate:    make(chan struct{}),
		entered: make(chan struct{}, 2),
	}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	done := make(chan bool)
	go func() { done <- store.GenerateGroups(context.Background()) }()
	<-sp.entered

	store.ClearGroups()
	if !store.Busy() {
		t.Error("abandoned request should still count as in flight")
	}
	if store.GenerateGroups(context.Background()) {
		t.Error("generation must not start while the abandoned request runs")
	}
	if store.RegenerateGroups(context.Background()) {
		t.Error("regeneration must not start while the abandoned request runs")
	}
	if n := sp.calls(); n != 1 {
		t.Fatalf("want 1 backend call while the first is running, got %d", n)
	}

	close(sp.gate)
	<-done
	if store.Busy() {
		t.Fatal("completion of the abandoned request should release the guard")
	}

	if !store.GenerateGroups(context.Background()) {
		t.Fatal("generation should start once the abandoned request returned")
	}
	if n := sp.calls(); n != 2 {
		t.Errorf("want 2 backend calls, got %d", n)
	}
}

func TestState_VersionIncreasesWithEveryChange(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}, {err: errors.New("x")}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	var versions []uint64
	store.Subscribe(func(st State) { versions = append(versions, st.Version) })

	store.GenerateGroups(context.Background())
	store.GenerateGroups(context.Background())
	store.ClearGroups()

	if len(versions) != 5 {
		t.Fatalf("want 5 notifications, got %d", len(versions))
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("versions not increasing: %v", versions)
		}
	}
	if store.State().Version != versions[len(versions)-1] {
		t.Errorf("State should carry the latest version")
	}
}

// --- Clear and regenerate ---

func TestClearGroups_ResetsFromAnyState(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}, {err: errors.New("x")}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	store.GenerateGroups(context.Background())
	store.GenerateGroups(context.Background())
	store.ClearGroups()

	st := store.State()
	if st.Phase != PhaseIdle || len(st.Groups) != 0 || st.LastError != "" || st.HasGenerated {
		t.Errorf("unexpected state after clear: %+v", st)
	}

	store.ClearGroups()
	if store.State().Phase != PhaseIdle {
		t.Error("clear from idle should stay idle")
	}
}

func TestRegenerateGroups(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}, {groups: threeGroups()[:2]}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)
	store.GenerateGroups(context.Background())

	var phases []Phase
	store.Subscribe(func(s State) { phases = append(phases, s.Phase) })

	if !store.RegenerateGroups(context.Background()) {
		t.Fatal("regenerate should succeed")
	}
	want := []Phase{PhaseIdle, PhaseGenerating, PhaseSucceeded}
	if len(phases) != len(want) {
		t.Fatalf("want %v, got %v", want, phases)
	}
	for i := range want {
		if phases[i] != want[i] {
			t.Errorf("phase %d: want %s, got %s", i, want[i], phases[i])
		}
	}
	if st := store.State(); len(st.Groups) != 2 || st.Sequence != 2 {
		t.Errorf("unexpected state: %+v", st)
	}
}

func TestState_ReturnsCopy(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)
	store.GenerateGroups(context.Background())

	st := store.State()
	st.Groups[0] = models.Group{GroupID: 99}
	if store.State().Groups[0].GroupID != 1 {
		t.Error("State should not expose internal slices")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	sp := &fakeSplitter{results: []fakeResult{{groups: threeGroups()}}}
	store := NewStore(sp, fixedSettings(models.DefaultSettings()), nil)

	calls := 0
	unsubscribe := store.Subscribe(func(State) { calls++ })
	unsubscribe()
	store.GenerateGroups(context.Background())

	if calls != 0 {
		t.Errorf("unsubscribed listener called %d times", calls)
	}
}
