package models

// Raid roles as reported in Character.RoleRaid
const (
	RoleTank   = "tank"
	RoleHealer = "healer"
	RoleMDPS   = "mdps"
	RoleRDPS   = "rdps"
)

// Priority buckets as reported in Character.RoleGroup
const (
	PriorityMain     = "main"
	PriorityAlt      = "alt"
	PriorityHelper   = "helper"
	PriorityInactive = "inactive"
)

var roleRanks = map[string]int{
	RoleTank:   1,
	RoleHealer: 2,
	RoleMDPS:   3,
	RoleRDPS:   4,
}

var priorityRanks = map[string]int{
	PriorityMain:     1,
	PriorityAlt:      2,
	PriorityHelper:   3,
	PriorityInactive: 4,
}

// RoleRank orders raid roles; unknown roles rank last
func RoleRank(role string) int {
	if r, ok := roleRanks[role]; ok {
		return r
	}
	return 5
}

// PriorityRank orders priority buckets; unknown buckets rank last
func PriorityRank(group string) int {
	if r, ok := priorityRanks[group]; ok {
		return r
	}
	return 5
}

// ArmorTypes lists armor types in display order with their backend keys
var ArmorTypes = []struct {
	Key   string
	Label string
}{
	{"plate", "Plate"},
	{"mail", "Mail"},
	{"leather", "Leather"},
	{"cloth", "Cloth"},
}

// TierTokens lists tier token names in display order
var TierTokens = []string{"Zenith", "Dreadful", "Mystic", "Venerated"}

// RaidBuffs is the static list of raid buff identifiers known to the backend
var RaidBuffs = []string{
	"arcane_intellect",
	"battle_shout",
	"mark_of_the_wild",
	"power_word_fortitude",
	"mystic_touch",
	"chaos_brand",
	"hunters_mark",
	"atrophic_poison",
	"windfury_totem",
	"blessing_of_the_bronze",
	"skyfury",
}

// DefaultRaidBuffTotal is the denominator of buff coverage summaries
const DefaultRaidBuffTotal = 11

// UnknownClassColor is used for classes missing from ClassColors
const UnknownClassColor = "#9D9D9D"

// ClassColors maps class display names to their cell background color
var ClassColors = map[string]string{
	"Death Knight": "#C41E3A",
	"Demon Hunter": "#A330C9",
	"Druid":        "#FF7C0A",
	"Evoker":       "#33937F",
	"Hunter":       "#AAD372",
	"Mage":         "#3FC7EB",
	"Monk":         "#00FF98",
	"Paladin":      "#F48CBA",
	"Priest":       "#FFFFFF",
	"Rogue":        "#FFF468",
	"Shaman":       "#0070DD",
	"Warlock":      "#8788EE",
	"Warrior":      "#C69B6D",
}

// ClassColor returns the display color for a class name
func ClassColor(className string) string {
	if c, ok := ClassColors[className]; ok {
		return c
	}
	return UnknownClassColor
}

// GroupHeaderColors are cycled through for group header cells
var GroupHeaderColors = []string{"#4A6FA5", "#6B8E23", "#B8860B", "#8B4513", "#6A5ACD"}

// GroupHeaderColor returns the header color for the i-th group (zero based)
func GroupHeaderColor(i int) string {
	if i < 0 {
		i = -i
	}
	return GroupHeaderColors[i%len(GroupHeaderColors)]
}
