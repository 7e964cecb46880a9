// Package views holds the typed view-models behind the console's pages:
// the roster groups, the two modals, the player sidebar and toasts.
package views

import (
	"sort"
	"sync"

	"github.com/payback159/raidsplit/pkg/calculator"
	"github.com/payback159/raidsplit/pkg/generation"
	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// ViewState selects which of the four group panels is shown
type ViewState string

const (
	ViewLoading   ViewState = "loading"
	ViewWelcome   ViewState = "welcome"
	ViewError     ViewState = "error"
	ViewPopulated ViewState = "populated"
)

// CharacterCard is the view-model of one character in a group
type CharacterCard struct {
	Name      string
	ClassName string
	SpecName  string
	RoleRaid  string
	RoleGroup string
	Color     string
	GroupID   int
	Locked    bool
}

// GroupBlock is the view-model of one rendered group
type GroupBlock struct {
	GroupID     int
	MemberCount int
	HeaderColor string
	Summary     calculator.GroupSummary
	Cards       []CharacterCard
}

// GroupsSnapshot is a copy of everything the groups panel shows
type GroupsSnapshot struct {
	State  ViewState
	Error  string
	Groups []GroupBlock
	Locks  []models.CharacterLock
}

// RosterGroupsView owns the character lock map and the rendered groups
type RosterGroupsView struct {
	mu sync.Mutex

	locks     map[string]int
	lockOrder []string

	state       ViewState
	errMsg      string
	blocks      []GroupBlock
	renderedSeq uint64
	renderedVer uint64
}

// NewRosterGroupsView creates a view showing the welcome panel
func NewRosterGroupsView() *RosterGroupsView {
	return &RosterGroupsView{
		locks: make(map[string]int),
		state: ViewWelcome,
	}
}

// Render selects the panel for st and rebuilds the group blocks when st
// carries a generation that has not been rendered yet. Snapshots older
// than the last rendered one are ignored and Render returns false.
func (v *RosterGroupsView) Render(st generation.State) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if st.Version < v.renderedVer {
		logging.LogDebug("Stale generation snapshot ignored",
			"version", st.Version,
			"rendered_version", v.renderedVer)
		return false
	}
	v.renderedVer = st.Version

	switch st.Phase {
	case generation.PhaseGenerating:
		v.state = ViewLoading
	case generation.PhaseFailed:
		v.state = ViewError
		v.errMsg = st.LastError
	case generation.PhaseSucceeded:
		v.state = ViewPopulated
		v.errMsg = ""
		if st.Sequence != v.renderedSeq || v.blocks == nil {
			v.rebuildLocked(st.Groups)
			v.renderedSeq = st.Sequence
		}
	default:
		v.state = ViewWelcome
		v.errMsg = ""
		v.blocks = nil
	}
	return true
}

func (v *RosterGroupsView) rebuildLocked(groups []models.Group) {
	blocks := make([]GroupBlock, 0, len(groups))
	for i, g := range groups {
		block := GroupBlock{
			GroupID:     g.GroupID,
			MemberCount: len(g.Characters),
			HeaderColor: models.GroupHeaderColor(i),
			Summary:     calculator.Summarize(g),
			Cards:       make([]CharacterCard, 0, len(g.Characters)),
		}
		for _, ch := range g.Characters {
			_, locked := v.locks[ch.Name]
			block.Cards = append(block.Cards, CharacterCard{
				Name:      ch.Name,
				ClassName: ch.ClassName,
				SpecName:  ch.SpecName,
				RoleRaid:  ch.RoleRaid,
				RoleGroup: ch.RoleGroup,
				Color:     models.ClassColor(ch.ClassName),
				GroupID:   g.GroupID,
				Locked:    locked,
			})
		}
		SortCards(block.Cards)
		blocks = append(blocks, block)
	}
	v.blocks = blocks
	logging.LogDebug("Groups rendered", "groups", len(blocks), "locks", len(v.locks))
}

// SortCards orders cards in place: locked first, then by role rank, then
// by priority rank. Equal cards keep their relative order.
func SortCards(cards []CharacterCard) {
	sort.SliceStable(cards, func(i, j int) bool {
		a, b := cards[i], cards[j]
		if a.Locked != b.Locked {
			return a.Locked
		}
		if ra, rb := models.RoleRank(a.RoleRaid), models.RoleRank(b.RoleRaid); ra != rb {
			return ra < rb
		}
		return models.PriorityRank(a.RoleGroup) < models.PriorityRank(b.RoleGroup)
	})
}

// ToggleCharacterLock locks name to groupID, or unlocks it if it is
// already locked, and re-sorts the cards of that group only. It returns
// the new lock state.
func (v *RosterGroupsView) ToggleCharacterLock(name string, groupID int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, wasLocked := v.locks[name]
	if wasLocked {
		delete(v.locks, name)
		for i, n := range v.lockOrder {
			if n == name {
				v.lockOrder = append(v.lockOrder[:i], v.lockOrder[i+1:]...)
				break
			}
		}
	} else {
		v.locks[name] = groupID
		v.lockOrder = append(v.lockOrder, name)
	}
	locked := !wasLocked

	for i := range v.blocks {
		if v.blocks[i].GroupID != groupID {
			continue
		}
		for j := range v.blocks[i].Cards {
			if v.blocks[i].Cards[j].Name == name {
				v.blocks[i].Cards[j].Locked = locked
			}
		}
		SortCards(v.blocks[i].Cards)
	}

	logging.LogStoreUpdate("locks", "toggle",
		"character", name,
		"group_id", groupID,
		"locked", locked)
	return locked
}

// CharacterLocks returns the lock map as pairs in insertion order
func (v *RosterGroupsView) CharacterLocks() []models.CharacterLock {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.locksLocked()
}

func (v *RosterGroupsView) locksLocked() []models.CharacterLock {
	out := make([]models.CharacterLock, 0, len(v.lockOrder))
	for _, name := range v.lockOrder {
		out = append(out, models.CharacterLock{CharacterName: name, GroupID: v.locks[name]})
	}
	return out
}

// IsLocked reports whether name is locked to a group
func (v *RosterGroupsView) IsLocked(name string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.locks[name]
	return ok
}

// ClearAllLocks empties the lock map and shows every card unlocked. Card
// order is left as it is.
func (v *RosterGroupsView) ClearAllLocks() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.locks)
	v.locks = make(map[string]int)
	v.lockOrder = nil
	for i := range v.blocks {
		for j := range v.blocks[i].Cards {
			v.blocks[i].Cards[j].Locked = false
		}
	}
	logging.LogStoreUpdate("locks", "clear", "removed", n)
	return n
}

// Snapshot returns a copy of the view for rendering
func (v *RosterGroupsView) Snapshot() GroupsSnapshot {
	v.mu.Lock()
	defer v.mu.Unlock()

	blocks := make([]GroupBlock, len(v.blocks))
	for i, b := range v.blocks {
		b.Cards = append([]CharacterCard(nil), b.Cards...)
		blocks[i] = b
	}
	return GroupsSnapshot{
		State:  v.state,
		Error:  v.errMsg,
		Groups: blocks,
		Locks:  v.locksLocked(),
	}
}
