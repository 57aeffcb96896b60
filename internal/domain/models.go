package domain

import (
	"time"
)

// CardPriority classifies a card's selection precedence. Lower wins.
type CardPriority int

const (
	PriorityCritical CardPriority = 1 // always selected when present
	PriorityRisk     CardPriority = 2 // shown with a reputation-dependent probability
	PriorityStory    CardPriority = 3
	PriorityNormal   CardPriority = 4
)

// OptionsPerCard is the fixed number of player-facing options every card carries.
const OptionsPerCard = 4

// Requirements bounds a card's eligibility against the player state.
// A nil field means unconstrained on that axis.
type Requirements struct {
	MinMoney        *int64   `json:"min_money,omitempty"`
	MaxMoney        *int64   `json:"max_money,omitempty"`
	MinReputation   *int     `json:"min_reputation,omitempty"`
	MaxReputation   *int     `json:"max_reputation,omitempty"`
	MinTurn         *int     `json:"min_turn,omitempty"`
	RequiredFlags   []string `json:"required_flags,omitempty"`
	RelationshipNPC string   `json:"relationship_npc,omitempty"`
	MinRelationship *int     `json:"min_relationship,omitempty"`
}

// Consequences describes everything a chosen option applies to the player state.
type Consequences struct {
	MoneyDelta        int64             `json:"money_delta,omitempty"`
	ReputationDelta   int               `json:"reputation_delta,omitempty"`
	RelationshipDelta int               `json:"relationship_delta,omitempty"`
	NewIncomes        []IncomeStream    `json:"new_incomes,omitempty"`
	NewDebts          []Debt            `json:"new_debts,omitempty"`
	NewEffects        []TemporaryEffect `json:"new_effects,omitempty"`
	NewFlags          []string          `json:"new_flags,omitempty"`
	DelayedCard       *DelayedEvent     `json:"delayed_card,omitempty"`
}

// Option is one of the four choices presented on a card.
type Option struct {
	Text         string       `json:"text"`
	Consequences Consequences `json:"consequences"`
}

// Card is an immutable content unit once published.
type Card struct {
	ID        string       `json:"id"`
	Priority  CardPriority `json:"priority"`
	Type      string       `json:"type"`
	Tags      []string     `json:"tags,omitempty"`
	NPCID     string       `json:"npc_id"`
	Text      string       `json:"text"`
	Requires  Requirements `json:"requires"`
	Options   []Option     `json:"options"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// NPC is a character entity referenced by cards. Immutable during gameplay,
// mutable only through the admin tool.
type NPC struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Class       string            `json:"class"`
	Wealth      int               `json:"wealth"`      // 1..5
	Reliability int               `json:"reliability"` // 0..100
	Portraits   map[string]string `json:"portraits,omitempty"` // mood -> image reference
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// GameConfig holds the tunable gameplay constants. Stored as a single document,
// editable from the admin panel.
type GameConfig struct {
	StartingMoney      int64  `json:"starting_money"`
	StartingReputation int    `json:"starting_reputation"`
	BaseTurnIncome     int64  `json:"base_turn_income"`
	BaseTurnCost       int64  `json:"base_turn_cost"`
	Version            string `json:"version"`
}

// Validate checks the authoring-side invariants before a card reaches storage.
// The read path stays permissive (see catalog.Index); this is the strict gate.
func (c *Card) Validate() error {
	if c.ID == "" {
		return ErrInvalidInput
	}
	if c.Priority < PriorityCritical || c.Priority > PriorityNormal {
		return ErrInvalidInput
	}
	if c.NPCID == "" {
		return ErrInvalidInput
	}
	if len(c.Options) != OptionsPerCard {
		return ErrCardOptionCount
	}
	return nil
}
