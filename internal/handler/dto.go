package handler

import (
	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
	"tavern-server/internal/engine"
)

// SessionResponse is returned by the session endpoint.
type SessionResponse struct {
	State   *domain.GameState `json:"state"`
	Created bool              `json:"created"`
}

// CardResponse carries the selected card together with its NPC so the client
// renders without a second round trip.
type CardResponse struct {
	Card *domain.Card `json:"card"`
	NPC  *domain.NPC  `json:"npc"`
}

func newCardResponse(ic *catalog.IndexedCard) CardResponse {
	return CardResponse{Card: ic.Card, NPC: ic.NPC}
}

// ChoiceRequest selects an option on the current card.
type ChoiceRequest struct {
	CardID      string `json:"card_id" binding:"required"`
	OptionIndex *int   `json:"option_index" binding:"required"`
}

// ChoiceResponse returns the state after a choice was applied.
type ChoiceResponse struct {
	State *domain.GameState `json:"state"`
}

// TurnSummaryResponse mirrors engine.TurnSummary for the wire.
type TurnSummaryResponse struct {
	IncomeTotal  int64    `json:"income_total"`
	DebtPayments int64    `json:"debt_payments"`
	Multiplier   float64  `json:"multiplier"`
	MoneyDelta   int64    `json:"money_delta"`
	ExpiredDebts []string `json:"expired_debts,omitempty"`
	DueCardIDs   []string `json:"due_card_ids,omitempty"`
}

// EndTurnResponse returns the advanced state plus what the turn did.
type EndTurnResponse struct {
	State    *domain.GameState   `json:"state"`
	Summary  TurnSummaryResponse `json:"summary"`
	GameOver bool                `json:"game_over"`
}

func newTurnSummaryResponse(sum engine.TurnSummary) TurnSummaryResponse {
	return TurnSummaryResponse{
		IncomeTotal:  sum.IncomeTotal,
		DebtPayments: sum.DebtPayments,
		Multiplier:   sum.Multiplier,
		MoneyDelta:   sum.MoneyDelta,
		ExpiredDebts: sum.ExpiredDebts,
		DueCardIDs:   sum.DueCardIDs,
	}
}

// RebuildResponse reports the outcome of an admin-triggered index rebuild.
type RebuildResponse struct {
	Indexed    int      `json:"indexed"`
	Dropped    int      `json:"dropped"`
	DroppedIDs []string `json:"dropped_ids,omitempty"`
}
