package models

import "time"

// Character is one playable character as returned by the splitter backend
type Character struct {
	Name      string   `json:"name"`
	ClassName string   `json:"class_name"`
	SpecName  string   `json:"spec_name"`
	RoleRaid  string   `json:"role_raid"`
	RoleGroup string   `json:"role_group"`
	ArmorType string   `json:"armor_type,omitempty"`
	TierToken string   `json:"tier_token,omitempty"`
	Buffs     []string `json:"buffs"`
}

// Group is one raid split produced by the backend
type Group struct {
	GroupID                int            `json:"group_id"`
	TotalMembers           int            `json:"total_members"`
	Characters             []Character    `json:"characters"`
	Tanks                  int            `json:"tanks"`
	Healers                int            `json:"healers"`
	DPS                    int            `json:"dps"`
	MainsCount             int            `json:"mains_count"`
	ArmorDistributionMains map[string]int `json:"armor_distribution_mains"`
	TierDistributionMains  map[string]int `json:"tier_distribution_mains"`
}

// CharacterLock pins a character to a group for the next generation
type CharacterLock struct {
	CharacterName string `json:"characterName"`
	GroupID       int    `json:"groupId"`
}

// Settings holds the operator's split parameters
type Settings struct {
	NumberOfSplits  int `json:"numberOfSplits"`
	HealersPerSplit int `json:"healersPerSplit"`
}

// SplitRequest is the body of POST /api/generate-splits
type SplitRequest struct {
	NumGroups       int             `json:"num_groups"`
	HealersPerGroup int             `json:"healers_per_group"`
	GroupSize       int             `json:"group_size"`
	CharacterLocks  []CharacterLock `json:"character_locks"`
}

// SplitResponse is the body returned by POST /api/generate-splits
type SplitResponse struct {
	Success bool    `json:"success"`
	Groups  []Group `json:"groups"`
	Error   string  `json:"error,omitempty"`
}

// RosterStats is the body of GET /api/roster-stats
type RosterStats struct {
	RoleGroups RoleGroupCounts `json:"roleGroups"`
	Mains      MainsStats      `json:"mains"`
	All        AllStats        `json:"all"`
}

// RoleGroupCounts counts characters per priority bucket
type RoleGroupCounts struct {
	Main   int `json:"main"`
	Alt    int `json:"alt"`
	Helper int `json:"helper"`
}

// MainsStats holds roster-wide distributions over main characters
type MainsStats struct {
	Tokens map[string]int `json:"tokens"`
	Armor  map[string]int `json:"armor"`
}

// AllStats holds roster-wide distributions over all characters
type AllStats struct {
	RaidBuffs map[string]int `json:"raidBuffs"`
}

// Player is one roster member with their characters, from GET /api/players
type Player struct {
	ID          string            `json:"_id"`
	DisplayName string            `json:"displayName"`
	DiscordTag  string            `json:"discordTag"`
	Characters  []PlayerCharacter `json:"characters"`
}

// PlayerCharacter is the character projection used by the players endpoint
type PlayerCharacter struct {
	Name      string `json:"name"`
	Group     string `json:"group"`
	ClassName string `json:"class_name"`
	SpecName  string `json:"spec_name"`
	RoleRaid  string `json:"role_raid"`
}

// PlayerList is the body of GET /api/players
type PlayerList struct {
	Players         []Player `json:"players"`
	TotalCharacters int      `json:"total_characters"`
}

// Distribution is one aggregated bucket of GET /api/stats
type Distribution struct {
	Key   string `json:"_id"`
	Count int    `json:"count"`
}

// RosterSummary is the body of GET /api/stats
type RosterSummary struct {
	TotalPlayers      int            `json:"total_players"`
	TotalCharacters   int            `json:"total_characters"`
	RoleDistribution  []Distribution `json:"role_distribution"`
	ClassDistribution []Distribution `json:"class_distribution"`
}

// BackendStatus is the body of GET /api/db-status
type BackendStatus struct {
	Status      string         `json:"status"`
	Collections map[string]int `json:"collections,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// MessageType defines the type of message (success, error, info)
type MessageType string

const (
	MessageSuccess MessageType = "success"
	MessageError   MessageType = "error"
	MessageInfo    MessageType = "info"
)

// Message represents a user feedback message
type Message struct {
	ID        string
	Type      MessageType
	Text      string
	ExpiresAt time.Time
}

// Default toast lifetimes per message type
const (
	SuccessDuration = 3000 * time.Millisecond
	ErrorDuration   = 5000 * time.Millisecond
	InfoDuration    = 3000 * time.Millisecond
)

// Split parameter bounds and defaults
const (
	MinSplits              = 2
	MaxSplits              = 5
	MinHealers             = 1
	MaxHealers             = 8
	DefaultNumberOfSplits  = 3
	DefaultHealersPerSplit = 5

	// GroupSize is forwarded unconditionally with every generation request
	GroupSize = 30
)

// DefaultSettings returns the settings used before the operator changes anything
func DefaultSettings() Settings {
	return Settings{
		NumberOfSplits:  DefaultNumberOfSplits,
		HealersPerSplit: DefaultHealersPerSplit,
	}
}

// Constants for security limits
const (
	MaxNameLength  = 200
	MaxQueryLength = 100
	SessionTimeout = 24 * 60 * 60 // 24 hours in seconds
	RateLimit      = 10           // requests per minute
	RateBurst      = 20           // burst capacity
)
