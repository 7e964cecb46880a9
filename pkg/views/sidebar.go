package views

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
	"github.com/payback159/raidsplit/pkg/security"
)

// PlayersFetcher loads the roster's players
type PlayersFetcher interface {
	Players(ctx context.Context) (models.PlayerList, error)
}

// PlayerRow is the view-model of one sidebar entry
type PlayerRow struct {
	Player   models.Player
	Hidden   bool
	Expanded bool
}

// SidebarSnapshot is a copy of everything the sidebar shows
type SidebarSnapshot struct {
	Open    bool
	Query   string
	Rows    []PlayerRow
	Visible int
	Loaded  bool
}

// PlayerSidebarView lists players and filters them by a search string
type PlayerSidebarView struct {
	*Modal
	players PlayersFetcher
	toasts  *Toasts

	mu       sync.Mutex
	rows     []PlayerRow
	query    string
	expanded map[string]bool
	loaded   bool
}

// NewPlayerSidebarView creates a closed, empty sidebar
func NewPlayerSidebarView(players PlayersFetcher, toasts *Toasts) *PlayerSidebarView {
	return &PlayerSidebarView{
		Modal:    NewModal("player-sidebar"),
		players:  players,
		toasts:   toasts,
		expanded: make(map[string]bool),
	}
}

// Load fetches the players and reapplies the current filter
func (v *PlayerSidebarView) Load(ctx context.Context) error {
	list, err := v.players.Players(ctx)
	if err != nil {
		logging.LogError("Failed to load players", err)
		if v.toasts != nil {
			v.toasts.Error("Could not load players: " + err.Error())
		}
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	v.rows = make([]PlayerRow, 0, len(list.Players))
	for _, p := range list.Players {
		v.rows = append(v.rows, PlayerRow{Player: p, Expanded: v.expanded[p.ID]})
	}
	v.loaded = true
	v.applyFilterLocked()

	logging.LogDebug("Players loaded", "players", len(list.Players), "characters", list.TotalCharacters)
	return nil
}

// Filter hides every row that does not contain query, ignoring case, in
// the player's name, discord tag or one of their character names. Rows are
// never removed. An empty query shows every row.
func (v *PlayerSidebarView) Filter(query string) int {
	query = security.SanitizeQuery(query)

	v.mu.Lock()
	defer v.mu.Unlock()

	v.query = query
	return v.applyFilterLocked()
}

func (v *PlayerSidebarView) applyFilterLocked() int {
	fold := cases.Fold()
	needle := fold.String(v.query)

	visible := 0
	for i := range v.rows {
		v.rows[i].Hidden = needle != "" && !matchesPlayer(fold, v.rows[i].Player, needle)
		if !v.rows[i].Hidden {
			visible++
		}
	}
	return visible
}

func matchesPlayer(fold cases.Caser, p models.Player, needle string) bool {
	if strings.Contains(fold.String(p.DisplayName), needle) ||
		strings.Contains(fold.String(p.DiscordTag), needle) {
		return true
	}
	for _, ch := range p.Characters {
		if strings.Contains(fold.String(ch.Name), needle) {
			return true
		}
	}
	return false
}

// ToggleExpanded flips a player's expanded state and returns the new state
func (v *PlayerSidebarView) ToggleExpanded(playerID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := !v.expanded[playerID]
	if now {
		v.expanded[playerID] = true
	} else {
		delete(v.expanded, playerID)
	}
	for i := range v.rows {
		if v.rows[i].Player.ID == playerID {
			v.rows[i].Expanded = now
		}
	}
	return now
}

// ExpandedPlayers returns the ids of the expanded players
func (v *PlayerSidebarView) ExpandedPlayers() []string {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([]string, 0, len(v.expanded))
	for id := range v.expanded {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// SetExpanded replaces the expanded set, used when restoring saved state
func (v *PlayerSidebarView) SetExpanded(ids []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.expanded = make(map[string]bool, len(ids))
	for _, id := range ids {
		v.expanded[id] = true
	}
	for i := range v.rows {
		v.rows[i].Expanded = v.expanded[v.rows[i].Player.ID]
	}
}

// Snapshot returns a copy of the sidebar for rendering
func (v *PlayerSidebarView) Snapshot() SidebarSnapshot {
	open := v.IsOpen()

	v.mu.Lock()
	defer v.mu.Unlock()

	rows := append([]PlayerRow(nil), v.rows...)
	visible := 0
	for _, r := range rows {
		if !r.Hidden {
			visible++
		}
	}
	return SidebarSnapshot{
		Open:    open,
		Query:   v.query,
		Rows:    rows,
		Visible: visible,
		Loaded:  v.loaded,
	}
}
