package engine

import (
	"math"

	"go.uber.org/zap"

	"tavern-server/internal/domain"
)

// TurnSummary reports what a turn-end application did, for the caller's UI
// and for surfacing delayed cards that became due.
type TurnSummary struct {
	IncomeTotal  int64
	DebtPayments int64
	Multiplier   float64
	MoneyDelta   int64
	ExpiredDebts []string
	DueCardIDs   []string
}

// Processor applies the pure per-turn state transforms. All methods treat the
// input state as a value and return a new one. The base per-turn constants
// come from the game config, passed per call because the admin panel can
// change them at runtime.
type Processor struct {
	logger *zap.Logger
}

// NewProcessor creates a turn processor.
func NewProcessor(logger *zap.Logger) *Processor {
	return &Processor{logger: logger.Named("TurnProcessor")}
}

// ProcessTurnEnd advances recurring income, debt payments and effect decay by
// one turn. It does not increment the turn counter; that belongs to choice
// processing. The input state is not mutated.
func (p *Processor) ProcessTurnEnd(state *domain.GameState, cfg *domain.GameConfig) (*domain.GameState, TurnSummary) {
	next := state.Clone()
	var sum TurnSummary
	sum.Multiplier = 1.0

	// Recurring income. Streams still in their activation delay tick down
	// without paying; expiring streams pay their final turn before removal.
	incomes := next.Incomes[:0]
	for i := range next.Incomes {
		stream := next.Incomes[i]
		if stream.StartsAfter > 0 {
			stream.StartsAfter--
			incomes = append(incomes, stream)
			continue
		}
		sum.IncomeTotal += stream.Amount
		if stream.RemainingTurns != nil {
			remaining := *stream.RemainingTurns - 1
			if remaining <= 0 {
				continue
			}
			stream.RemainingTurns = &remaining
		}
		incomes = append(incomes, stream)
	}
	next.Incomes = incomes

	// Debts: fixed payment every turn, removed once fully paid.
	debts := next.Debts[:0]
	for i := range next.Debts {
		debt := next.Debts[i]
		sum.DebtPayments += debt.TurnPayment
		debt.TurnsRemaining--
		if debt.TurnsRemaining <= 0 {
			sum.ExpiredDebts = append(sum.ExpiredDebts, debt.ID)
			continue
		}
		debts = append(debts, debt)
	}
	next.Debts = debts

	// Temporary effects. Only money multipliers feed into the aggregate;
	// the other kinds decay without affecting this computation.
	effects := next.Effects[:0]
	for i := range next.Effects {
		effect := next.Effects[i]
		if effect.Kind == domain.EffectMoneyMultiplier {
			sum.Multiplier *= effect.Value
		}
		effect.TurnsRemaining--
		if effect.TurnsRemaining <= 0 {
			continue
		}
		effects = append(effects, effect)
	}
	next.Effects = effects

	// Delayed cards tick down at turn end; due ids are reported to the caller.
	events := next.DelayedEvents[:0]
	for i := range next.DelayedEvents {
		ev := next.DelayedEvents[i]
		ev.TurnsRemaining--
		if ev.TurnsRemaining <= 0 {
			sum.DueCardIDs = append(sum.DueCardIDs, ev.CardID)
			continue
		}
		events = append(events, ev)
	}
	next.DelayedEvents = events

	net := float64(cfg.BaseTurnIncome+sum.IncomeTotal-cfg.BaseTurnCost-sum.DebtPayments) * sum.Multiplier
	sum.MoneyDelta = int64(math.Round(net))
	next.Money += sum.MoneyDelta

	// Bound the recency window; choice processing appends to it unboundedly
	// within a round.
	if len(next.RecentCards) > domain.RecentCardWindow {
		next.RecentCards = next.RecentCards[len(next.RecentCards)-domain.RecentCardWindow:]
	}

	p.logger.Debug("Turn end processed",
		zap.Int64("playerID", state.PlayerID),
		zap.Int64("income", sum.IncomeTotal),
		zap.Int64("debtPayments", sum.DebtPayments),
		zap.Float64("multiplier", sum.Multiplier),
		zap.Int64("moneyDelta", sum.MoneyDelta))
	return next, sum
}

// ApplyChoice applies a selected option's consequences. Distinct from turn-end
// processing: both run per round, choice first. The input state is not mutated.
func (p *Processor) ApplyChoice(state *domain.GameState, card *domain.Card, optionIndex int) (*domain.GameState, error) {
	if optionIndex < 0 || optionIndex >= len(card.Options) {
		return nil, domain.ErrInvalidOption
	}
	next := state.Clone()
	c := card.Options[optionIndex].Consequences

	next.Money += AdjustedMoneyDelta(c.MoneyDelta, state.Reputation)
	next.Reputation = domain.ClampReputation(next.Reputation + c.ReputationDelta)
	if c.RelationshipDelta != 0 && card.NPCID != "" {
		next.Relationships[card.NPCID] += c.RelationshipDelta
	}

	next.Incomes = append(next.Incomes, c.NewIncomes...)
	next.Debts = append(next.Debts, c.NewDebts...)
	next.Effects = append(next.Effects, c.NewEffects...)
	next.Flags = append(next.Flags, c.NewFlags...)
	if c.DelayedCard != nil {
		next.DelayedEvents = append(next.DelayedEvents, *c.DelayedCard)
	}

	next.RecordRecentCard(card.ID)
	next.Turn++
	return next, nil
}

// AdjustedMoneyDelta scales an option's money delta by the reputation-dependent
// price curve: buying is more expensive at low reputation, selling is worth
// more at high reputation. Gains use the cost table mirrored around zero.
func AdjustedMoneyDelta(delta int64, reputation int) int64 {
	if delta == 0 {
		return 0
	}
	rep := reputation
	if delta > 0 {
		rep = -rep
	}
	mult := costMultiplier(rep)
	return int64(math.Round(float64(delta) * mult))
}

func costMultiplier(reputation int) float64 {
	switch {
	case reputation <= -100:
		return 2.5
	case reputation <= -50:
		return 2.0
	case reputation <= 0:
		return 1.5
	case reputation >= 100:
		return 0.5
	case reputation >= 50:
		return 0.75
	default:
		return 1.0
	}
}
