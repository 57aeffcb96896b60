package domain

import (
	"time"
)

// RecentCardWindow bounds how many recently shown card ids are kept on the
// player state. The selector uses the window for anti-repetition.
const RecentCardWindow = 5

// IncomeStream is a per-turn money addition created by a card consequence.
// RemainingTurns == nil means the stream never expires. StartsAfter delays the
// first payout by that many turns.
type IncomeStream struct {
	ID             string `json:"id"`
	Amount         int64  `json:"amount"`
	Description    string `json:"description"`
	RemainingTurns *int   `json:"remaining_turns,omitempty"`
	StartsAfter    int    `json:"starts_after,omitempty"`
}

// Debt is a per-turn money obligation with a fixed remaining duration.
type Debt struct {
	ID             string `json:"id"`
	Principal      int64  `json:"principal"`
	TotalRepayable int64  `json:"total_repayable"`
	TurnsRemaining int    `json:"turns_remaining"`
	TurnPayment    int64  `json:"turn_payment"`
	CreditorNPCID  string `json:"creditor_npc_id,omitempty"`
}

// EffectKind enumerates the temporary effect kinds. Only money multipliers
// currently feed into the turn-end computation.
type EffectKind string

const (
	EffectMoneyMultiplier EffectKind = "money_multiplier"
	EffectReputationBoost EffectKind = "reputation_boost"
	EffectCostReduction   EffectKind = "cost_reduction"
	EffectRiskModifier    EffectKind = "risk_modifier"
)

// TemporaryEffect is a time-boxed modifier applied during turn processing.
type TemporaryEffect struct {
	ID             string     `json:"id"`
	Kind           EffectKind `json:"kind"`
	Value          float64    `json:"value"`
	TurnsRemaining int        `json:"turns_remaining"`
	Description    string     `json:"description"`
}

// DelayedEvent schedules a specific card to surface after a countdown.
type DelayedEvent struct {
	CardID         string `json:"card_id"`
	TurnsRemaining int    `json:"turns_remaining"`
}

// GameState is the mutable per-player record. Created on first session,
// mutated every turn, never deleted.
type GameState struct {
	PlayerID         int64             `json:"player_id"`
	Money            int64             `json:"money"`
	Reputation       int               `json:"reputation"` // clamped to [-100, 100]
	Turn             int               `json:"turn"`
	Incomes          []IncomeStream    `json:"incomes"`
	Debts            []Debt            `json:"debts"`
	Effects          []TemporaryEffect `json:"effects"`
	Relationships    map[string]int    `json:"relationships"` // npc id -> score
	Flags            []string          `json:"flags"`
	RecentCards      []string          `json:"recent_cards"` // newest last, max RecentCardWindow
	DelayedEvents    []DelayedEvent    `json:"delayed_events"`
	PendingCards     []string          `json:"pending_cards"` // delayed cards now due, surfaced before selection
	LastPlayedAt     time.Time         `json:"last_played_at"`
	TotalPlaySeconds int64             `json:"total_play_seconds"`
}

// NewGameState builds the initial state for a player from the game config.
func NewGameState(playerID int64, cfg *GameConfig) *GameState {
	return &GameState{
		PlayerID:      playerID,
		Money:         cfg.StartingMoney,
		Reputation:    cfg.StartingReputation,
		Turn:          1,
		Relationships: make(map[string]int),
		Flags:         []string{},
		RecentCards:   []string{},
		LastPlayedAt:  time.Now().UTC(),
	}
}

// Clone returns a deep copy. The engine's transforms never mutate their input.
func (s *GameState) Clone() *GameState {
	out := *s
	out.Incomes = append([]IncomeStream(nil), s.Incomes...)
	out.Debts = append([]Debt(nil), s.Debts...)
	out.Effects = append([]TemporaryEffect(nil), s.Effects...)
	out.Flags = append([]string(nil), s.Flags...)
	out.RecentCards = append([]string(nil), s.RecentCards...)
	out.DelayedEvents = append([]DelayedEvent(nil), s.DelayedEvents...)
	out.PendingCards = append([]string(nil), s.PendingCards...)
	out.Relationships = make(map[string]int, len(s.Relationships))
	for k, v := range s.Relationships {
		out.Relationships[k] = v
	}
	return &out
}

// HasFlag reports whether the flag is present on the state.
func (s *GameState) HasFlag(flag string) bool {
	for _, f := range s.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// RecordRecentCard appends the card id to the recency window, dropping the
// oldest entry when the window is full.
func (s *GameState) RecordRecentCard(cardID string) {
	s.RecentCards = append(s.RecentCards, cardID)
	if len(s.RecentCards) > RecentCardWindow {
		s.RecentCards = s.RecentCards[len(s.RecentCards)-RecentCardWindow:]
	}
}

// ClampReputation keeps reputation within its documented bounds.
func ClampReputation(rep int) int {
	if rep < -100 {
		return -100
	}
	if rep > 100 {
		return 100
	}
	return rep
}
