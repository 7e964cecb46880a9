package calculator

import (
	"math"
	"testing"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

func TestMain(m *testing.M) {
	logging.InitLogger()
	m.Run()
}

// --- HalfSplit ---

func TestHalfSplit(t *testing.T) {
	tests := []struct {
		n    int
		want int
	}{
		{0, 0}, {-1, 0}, {1, 1}, {2, 1}, {3, 2}, {29, 15}, {30, 15},
	}
	for _, tt := range tests {
		if got := HalfSplit(tt.n); got != tt.want {
			t.Errorf("HalfSplit(%d): want %d, got %d", tt.n, tt.want, got)
		}
	}
}

// --- Composition and summary ---

func sampleGroup() models.Group {
	return models.Group{
		GroupID:    1,
		MainsCount: 2,
		Tanks:      9, Healers: 9, DPS: 9, // ignored when characters are present
		Characters: []models.Character{
			{Name: "A", RoleRaid: models.RoleTank, Buffs: []string{"battle_shout"}},
			{Name: "B", RoleRaid: models.RoleHealer, Buffs: []string{"power_word_fortitude", "battle_shout"}},
			{Name: "C", RoleRaid: models.RoleMDPS, Buffs: []string{"not_a_buff"}},
			{Name: "D", RoleRaid: models.RoleRDPS},
			{Name: "E", RoleRaid: "bard"},
		},
		ArmorDistributionMains: map[string]int{"plate": 1, "cloth": 1},
		TierDistributionMains:  map[string]int{"Zenith": 1, "Venerated": 1},
	}
}

func TestCompositionOf(t *testing.T) {
	c := CompositionOf(sampleGroup())
	if c.String() != "1/1/3" {
		t.Errorf("want 1/1/3, got %s", c)
	}

	empty := models.Group{Tanks: 2, Healers: 5, DPS: 23}
	if got := CompositionOf(empty).String(); got != "2/5/23" {
		t.Errorf("backend tallies should be used for empty groups, got %s", got)
	}
}

func TestBuffsCovered_CountsDistinctKnownBuffs(t *testing.T) {
	if got := BuffsCovered(sampleGroup()); got != 2 {
		t.Errorf("want 2 distinct buffs, got %d", got)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleGroup())
	if s.BuffCoverage() != "2/11" {
		t.Errorf("buff coverage: want 2/11, got %s", s.BuffCoverage())
	}
	if s.ArmorLine() != "1/0/0/1" {
		t.Errorf("armor line: want 1/0/0/1, got %s", s.ArmorLine())
	}
	if s.TierLine() != "1/0/0/1" {
		t.Errorf("tier line: want 1/0/0/1, got %s", s.TierLine())
	}
	if s.Mains != 2 {
		t.Errorf("mains: want 2, got %d", s.Mains)
	}
}

// --- Expected values ---

func TestExpectedPerGroup(t *testing.T) {
	if got := ExpectedPerGroup(10, 3); math.Abs(got-3.3333) > 1e-3 {
		t.Errorf("want ~3.33, got %f", got)
	}
	if got := ExpectedPerGroup(10, 0); got != 0 {
		t.Errorf("zero groups should yield 0, got %f", got)
	}
	if FormatExpected(ExpectedPerGroup(10, 3)) != "3.33" {
		t.Errorf("unexpected display %s", FormatExpected(ExpectedPerGroup(10, 3)))
	}
	if FormatExpected(ExpectedPerGroup(9, 3)) != "3.00" {
		t.Errorf("unexpected display %s", FormatExpected(ExpectedPerGroup(9, 3)))
	}
}

func TestCompareWithRoster(t *testing.T) {
	stats := models.RosterStats{
		Mains: models.MainsStats{
			Armor:  map[string]int{"plate": 8, "mail": 7, "leather": 6, "cloth": 9},
			Tokens: map[string]int{"Zenith": 7, "Dreadful": 8, "Mystic": 9, "Venerated": 6},
		},
		All: models.AllStats{RaidBuffs: map[string]int{"battle_shout": 4}},
	}

	d := CompareWithRoster(sampleGroup(), stats, 3)

	if len(d.Armor) != 4 || len(d.Tier) != 4 {
		t.Fatalf("want 4 armor and 4 tier rows, got %d/%d", len(d.Armor), len(d.Tier))
	}
	if d.Armor[0].Label != "Plate" || d.Armor[0].ExpectedDisplay() != "2.67" || d.Armor[0].Actual != 1 {
		t.Errorf("unexpected plate row: %+v", d.Armor[0])
	}
	if d.Armor[3].ExpectedDisplay() != "3.00" {
		t.Errorf("cloth expected: want 3.00, got %s", d.Armor[3].ExpectedDisplay())
	}
	if d.Tier[2].Label != "Mystic" || d.Tier[2].ExpectedDisplay() != "3.00" {
		t.Errorf("unexpected mystic row: %+v", d.Tier[2])
	}
	if d.Armor[0].Deviation() != -1.67 {
		t.Errorf("plate deviation: want -1.67, got %v", d.Armor[0].Deviation())
	}

	if len(d.Buffs) != models.DefaultRaidBuffTotal {
		t.Fatalf("want %d buff rows, got %d", models.DefaultRaidBuffTotal, len(d.Buffs))
	}
	for _, b := range d.Buffs {
		if b.Buff == "battle_shout" && (!b.InGroup || b.Providers != 4) {
			t.Errorf("unexpected battle_shout row: %+v", b)
		}
		if b.Buff == "skyfury" && b.InGroup {
			t.Error("skyfury should not be provided")
		}
	}
}
