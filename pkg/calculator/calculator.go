package calculator

import (
	"fmt"
	"math"
	"strings"

	"github.com/payback159/raidsplit/pkg/logging"
	"github.com/payback159/raidsplit/pkg/models"
)

// Composition counts a group's characters per raid role
type Composition struct {
	Tanks   int
	Healers int
	DPS     int
}

// String renders the composition as T/H/D
func (c Composition) String() string {
	return fmt.Sprintf("%d/%d/%d", c.Tanks, c.Healers, c.DPS)
}

// GroupSummary holds the per-group figures shown under each group and in
// the HTML export
type GroupSummary struct {
	Composition  Composition
	Mains        int
	BuffsCovered int
	BuffsTotal   int
	Armor        []int // ordered as models.ArmorTypes
	Tier         []int // ordered as models.TierTokens
}

// BuffCoverage renders the buff coverage as X/Total
func (s GroupSummary) BuffCoverage() string {
	return fmt.Sprintf("%d/%d", s.BuffsCovered, s.BuffsTotal)
}

// ArmorLine renders the armor counts as Plate/Mail/Leather/Cloth
func (s GroupSummary) ArmorLine() string {
	return joinCounts(s.Armor)
}

// TierLine renders the tier counts as Zenith/Dreadful/Mystic/Venerated
func (s GroupSummary) TierLine() string {
	return joinCounts(s.Tier)
}

func joinCounts(counts []int) string {
	parts := make([]string, len(counts))
	for i, c := range counts {
		parts[i] = fmt.Sprint(c)
	}
	return strings.Join(parts, "/")
}

// HalfSplit returns the number of rows needed to show n characters in two
// columns, the first column taking the extra one
func HalfSplit(n int) int {
	if n <= 0 {
		return 0
	}
	return (n + 1) / 2
}

// CompositionOf counts roles from the group's characters. The backend's
// own tallies are used when the character list is empty.
func CompositionOf(g models.Group) Composition {
	if len(g.Characters) == 0 {
		return Composition{Tanks: g.Tanks, Healers: g.Healers, DPS: g.DPS}
	}
	var c Composition
	for _, ch := range g.Characters {
		switch ch.RoleRaid {
		case models.RoleTank:
			c.Tanks++
		case models.RoleHealer:
			c.Healers++
		default:
			c.DPS++
		}
	}
	return c
}

// BuffsCovered counts the distinct known raid buffs provided by the group
func BuffsCovered(g models.Group) int {
	known := make(map[string]bool, len(models.RaidBuffs))
	for _, b := range models.RaidBuffs {
		known[b] = true
	}
	seen := make(map[string]bool)
	for _, ch := range g.Characters {
		for _, b := range ch.Buffs {
			if known[b] {
				seen[b] = true
			}
		}
	}
	return len(seen)
}

// Summarize computes the summary figures for one group
func Summarize(g models.Group) GroupSummary {
	s := GroupSummary{
		Composition:  CompositionOf(g),
		Mains:        g.MainsCount,
		BuffsCovered: BuffsCovered(g),
		BuffsTotal:   models.DefaultRaidBuffTotal,
		Armor:        make([]int, len(models.ArmorTypes)),
		Tier:         make([]int, len(models.TierTokens)),
	}
	for i, a := range models.ArmorTypes {
		s.Armor[i] = g.ArmorDistributionMains[a.Key]
	}
	for i, t := range models.TierTokens {
		s.Tier[i] = g.TierDistributionMains[t]
	}
	return s
}

// ExpectedPerGroup divides a roster-wide count evenly across numGroups
func ExpectedPerGroup(total, numGroups int) float64 {
	if numGroups <= 0 {
		return 0
	}
	return float64(total) / float64(numGroups)
}

// FormatExpected renders an expected value with two decimals
func FormatExpected(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// Comparison is one row of the split details table
type Comparison struct {
	Label    string
	Actual   int
	Total    int
	Expected float64
}

// Deviation is the difference between actual and expected, rounded to two
// decimals
func (c Comparison) Deviation() float64 {
	return math.Round((float64(c.Actual)-c.Expected)*100) / 100
}

// ExpectedDisplay renders the expected value with two decimals
func (c Comparison) ExpectedDisplay() string {
	return FormatExpected(c.Expected)
}

// BuffAvailability is one row of the roster buff coverage list
type BuffAvailability struct {
	Buff      string
	Providers int
	InGroup   bool
}

// SplitDetails is everything the split details modal shows for one group
type SplitDetails struct {
	GroupID   int
	NumGroups int
	Armor     []Comparison
	Tier      []Comparison
	Buffs     []BuffAvailability
}

// CompareWithRoster sets a group's main armor and tier counts against the
// roster-wide main counts divided by numGroups
func CompareWithRoster(g models.Group, stats models.RosterStats, numGroups int) SplitDetails {
	d := SplitDetails{GroupID: g.GroupID, NumGroups: numGroups}

	for _, a := range models.ArmorTypes {
		total := stats.Mains.Armor[a.Key]
		d.Armor = append(d.Armor, Comparison{
			Label:    a.Label,
			Actual:   g.ArmorDistributionMains[a.Key],
			Total:    total,
			Expected: ExpectedPerGroup(total, numGroups),
		})
	}
	for _, t := range models.TierTokens {
		total := stats.Mains.Tokens[t]
		d.Tier = append(d.Tier, Comparison{
			Label:    t,
			Actual:   g.TierDistributionMains[t],
			Total:    total,
			Expected: ExpectedPerGroup(total, numGroups),
		})
	}

	provided := make(map[string]bool)
	for _, ch := range g.Characters {
		for _, b := range ch.Buffs {
			provided[b] = true
		}
	}
	for _, b := range models.RaidBuffs {
		d.Buffs = append(d.Buffs, BuffAvailability{
			Buff:      b,
			Providers: stats.All.RaidBuffs[b],
			InGroup:   provided[b],
		})
	}

	logging.LogDebug("Split details computed",
		"group_id", g.GroupID,
		"num_groups", numGroups,
		"roster_mains", stats.RoleGroups.Main)

	return d
}
