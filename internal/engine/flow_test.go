package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
)

// Full round against a real index: eligibility scan, selection, turn end.
func TestSelectionAndTurnFlow(t *testing.T) {
	log := zap.NewNop()
	minMoney := int64(5000)
	cards := []*domain.Card{
		{ID: "c1", Priority: domain.PriorityCritical, NPCID: "a1", Options: make([]domain.Option, domain.OptionsPerCard)},
		{ID: "c2", Priority: domain.PriorityNormal, NPCID: "a1",
			Requires: domain.Requirements{MinMoney: &minMoney},
			Options:  make([]domain.Option, domain.OptionsPerCard)},
	}
	npcs := []*domain.NPC{{ID: "a1", Name: "Trader", Wealth: 3, Reliability: 50}}

	idx := catalog.NewIndex(log)
	report := idx.Build(cards, npcs)
	require.Equal(t, 2, report.Indexed)

	state := &domain.GameState{
		PlayerID:      1,
		Money:         10000,
		Reputation:    0,
		Turn:          1,
		Relationships: map[string]int{},
	}

	eligible := idx.AvailableCards(state)
	require.Len(t, eligible, 2)

	selector := NewSelector(rand.New(rand.NewSource(1)), log)
	picked := selector.Pick(state, eligible)
	require.NotNil(t, picked)
	assert.Equal(t, "c1", picked.Card.ID, "the critical card wins deterministically")

	next, sum := NewProcessor(log).ProcessTurnEnd(state, &domain.GameConfig{
		BaseTurnIncome: 1000,
		BaseTurnCost:   800,
	})
	assert.Equal(t, int64(200), sum.MoneyDelta)
	assert.Equal(t, int64(10200), next.Money)
}

// Recency exclusion with a two-card pool: one recent entry is not enough to
// trigger relaxation, so the other card must be served.
func TestSelectionFlowRecencyExclusion(t *testing.T) {
	log := zap.NewNop()
	cards := []*domain.Card{
		{ID: "c1", Priority: domain.PriorityNormal, NPCID: "a1", Options: make([]domain.Option, domain.OptionsPerCard)},
		{ID: "c2", Priority: domain.PriorityNormal, NPCID: "a1", Options: make([]domain.Option, domain.OptionsPerCard)},
	}
	npcs := []*domain.NPC{{ID: "a1", Name: "Trader", Wealth: 3, Reliability: 50}}

	idx := catalog.NewIndex(log)
	idx.Build(cards, npcs)

	state := &domain.GameState{
		PlayerID:      1,
		Money:         1000,
		Turn:          2,
		RecentCards:   []string{"c1"},
		Relationships: map[string]int{},
	}

	selector := NewSelector(rand.New(rand.NewSource(1)), log)
	for i := 0; i < 50; i++ {
		picked := selector.Pick(state, idx.AvailableCards(state))
		require.NotNil(t, picked)
		assert.Equal(t, "c2", picked.Card.ID)
	}
}
