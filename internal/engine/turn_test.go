package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
)

func intp(v int) *int { return &v }

func testConfig() *domain.GameConfig {
	return &domain.GameConfig{
		StartingMoney:      10000,
		StartingReputation: 0,
		BaseTurnIncome:     1000,
		BaseTurnCost:       800,
		Version:            "test",
	}
}

func TestProcessTurnEnd(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	cfg := testConfig()

	t.Run("applies base income and cost", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, int64(200), sum.MoneyDelta)
		assert.Equal(t, int64(10200), next.Money)
		assert.Equal(t, 1.0, sum.Multiplier)
	})

	t.Run("does not advance the turn counter", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		next, _ := p.ProcessTurnEnd(state, cfg)
		assert.Equal(t, state.Turn, next.Turn)
	})

	t.Run("does not mutate the input state", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Incomes = []domain.IncomeStream{{ID: "rent", Amount: 500, RemainingTurns: intp(1)}}
		state.Debts = []domain.Debt{{ID: "loan", TurnPayment: 100, TurnsRemaining: 3}}

		p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, int64(10000), state.Money)
		require.Len(t, state.Incomes, 1)
		assert.Equal(t, 1, *state.Incomes[0].RemainingTurns)
		assert.Equal(t, 3, state.Debts[0].TurnsRemaining)
	})

	t.Run("expiring income pays its final turn before removal", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Incomes = []domain.IncomeStream{
			{ID: "gig", Amount: 300, RemainingTurns: intp(1)},
			{ID: "rent", Amount: 500},
		}

		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, int64(800), sum.IncomeTotal)
		require.Len(t, next.Incomes, 1)
		assert.Equal(t, "rent", next.Incomes[0].ID)
		assert.Nil(t, next.Incomes[0].RemainingTurns)
	})

	t.Run("delayed income ticks its activation delay without paying", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Incomes = []domain.IncomeStream{{ID: "deal", Amount: 400, StartsAfter: 2}}

		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, int64(0), sum.IncomeTotal)
		require.Len(t, next.Incomes, 1)
		assert.Equal(t, 1, next.Incomes[0].StartsAfter)
	})

	t.Run("debt pays each turn and expires when fully paid", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Debts = []domain.Debt{
			{ID: "loan", TurnPayment: 250, TurnsRemaining: 1},
			{ID: "mortgage", TurnPayment: 100, TurnsRemaining: 10},
		}

		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, int64(350), sum.DebtPayments)
		assert.Equal(t, []string{"loan"}, sum.ExpiredDebts)
		require.Len(t, next.Debts, 1)
		assert.Equal(t, 9, next.Debts[0].TurnsRemaining)
	})

	t.Run("money multiplier effect scales the net delta", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Effects = []domain.TemporaryEffect{
			{ID: "festival", Kind: domain.EffectMoneyMultiplier, Value: 2.0, TurnsRemaining: 1},
		}

		next, sum := p.ProcessTurnEnd(state, cfg)

		// The effect counts on its final turn, then decays away.
		assert.Equal(t, 2.0, sum.Multiplier)
		assert.Equal(t, int64(400), sum.MoneyDelta)
		assert.Empty(t, next.Effects)
	})

	t.Run("non-multiplier effects decay without changing money", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Effects = []domain.TemporaryEffect{
			{ID: "charm", Kind: domain.EffectReputationBoost, Value: 5, TurnsRemaining: 2},
		}

		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, 1.0, sum.Multiplier)
		require.Len(t, next.Effects, 1)
		assert.Equal(t, 1, next.Effects[0].TurnsRemaining)
	})

	t.Run("delayed events tick down and report due cards", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.DelayedEvents = []domain.DelayedEvent{
			{CardID: "debt_collector", TurnsRemaining: 1},
			{CardID: "festival_invite", TurnsRemaining: 3},
		}

		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, []string{"debt_collector"}, sum.DueCardIDs)
		require.Len(t, next.DelayedEvents, 1)
		assert.Equal(t, 2, next.DelayedEvents[0].TurnsRemaining)
	})

	t.Run("negative net delta can push money below zero", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		state.Money = 100
		state.Debts = []domain.Debt{{ID: "loan", TurnPayment: 5000, TurnsRemaining: 4}}

		next, sum := p.ProcessTurnEnd(state, cfg)

		assert.Equal(t, int64(-4800), sum.MoneyDelta)
		assert.Less(t, next.Money, int64(0))
	})
}

func TestApplyChoice(t *testing.T) {
	p := NewProcessor(zap.NewNop())
	cfg := testConfig()

	card := &domain.Card{
		ID:       "bribe",
		Priority: domain.PriorityNormal,
		NPCID:    "guard",
		Options: []domain.Option{
			{Consequences: domain.Consequences{MoneyDelta: -1000, ReputationDelta: 5}},
			{Consequences: domain.Consequences{
				RelationshipDelta: 2,
				NewFlags:          []string{"bribed_guard"},
				NewDebts:          []domain.Debt{{ID: "favor", TurnPayment: 50, TurnsRemaining: 4}},
			}},
			{Consequences: domain.Consequences{DelayedCard: &domain.DelayedEvent{CardID: "guard_returns", TurnsRemaining: 3}}},
			{Consequences: domain.Consequences{ReputationDelta: -250}},
		},
	}

	t.Run("rejects an out of range option", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		_, err := p.ApplyChoice(state, card, 4)
		assert.ErrorIs(t, err, domain.ErrInvalidOption)
		_, err = p.ApplyChoice(state, card, -1)
		assert.ErrorIs(t, err, domain.ErrInvalidOption)
	})

	t.Run("applies money and reputation and advances the turn", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		next, err := p.ApplyChoice(state, card, 0)
		require.NoError(t, err)

		// Reputation 0 puts the cost multiplier at 1.5.
		assert.Equal(t, int64(8500), next.Money)
		assert.Equal(t, 5, next.Reputation)
		assert.Equal(t, 2, next.Turn)
		assert.Equal(t, []string{"bribe"}, next.RecentCards)
		assert.Equal(t, 1, state.Turn, "input state must not be mutated")
	})

	t.Run("appends relationships flags and debts", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		next, err := p.ApplyChoice(state, card, 1)
		require.NoError(t, err)

		assert.Equal(t, 2, next.Relationships["guard"])
		assert.True(t, next.HasFlag("bribed_guard"))
		require.Len(t, next.Debts, 1)
		assert.Equal(t, "favor", next.Debts[0].ID)
	})

	t.Run("schedules a delayed card", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		next, err := p.ApplyChoice(state, card, 2)
		require.NoError(t, err)

		require.Len(t, next.DelayedEvents, 1)
		assert.Equal(t, "guard_returns", next.DelayedEvents[0].CardID)
		assert.Equal(t, 3, next.DelayedEvents[0].TurnsRemaining)
	})

	t.Run("clamps reputation", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		next, err := p.ApplyChoice(state, card, 3)
		require.NoError(t, err)
		assert.Equal(t, -100, next.Reputation)
	})

	t.Run("recency window stays bounded", func(t *testing.T) {
		state := domain.NewGameState(1, cfg)
		var err error
		for i := 0; i < domain.RecentCardWindow+3; i++ {
			state, err = p.ApplyChoice(state, card, 1)
			require.NoError(t, err)
		}
		assert.Len(t, state.RecentCards, domain.RecentCardWindow)
	})
}

func TestAdjustedMoneyDelta(t *testing.T) {
	tests := []struct {
		name       string
		delta      int64
		reputation int
		want       int64
	}{
		{"cost at rock-bottom reputation", -1000, -100, -2500},
		{"cost at bad reputation", -1000, -50, -2000},
		{"cost at neutral reputation", -1000, 0, -1500},
		{"cost at mid reputation", -1000, 25, -1000},
		{"cost at good reputation", -1000, 60, -750},
		{"cost at pristine reputation", -1000, 100, -500},
		{"gain at pristine reputation", 1000, 100, 2500},
		{"gain at good reputation", 1000, 60, 2000},
		{"gain at neutral reputation", 1000, 0, 1500},
		{"gain at bad reputation", 1000, -60, 750},
		{"gain at rock-bottom reputation", 1000, -100, 500},
		{"zero delta unaffected", 0, -100, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, AdjustedMoneyDelta(tc.delta, tc.reputation))
		})
	}
}
