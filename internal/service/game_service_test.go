package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tavern-server/internal/cache"
	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
	"tavern-server/internal/engine"
	"tavern-server/internal/interfaces"
)

// In-memory fakes over the repository interfaces.

type fakeStateRepo struct {
	mu     sync.Mutex
	states map[int64]*domain.GameState
}

func newFakeStateRepo() *fakeStateRepo {
	return &fakeStateRepo{states: make(map[int64]*domain.GameState)}
}

func (f *fakeStateRepo) Get(_ context.Context, _ interfaces.DBTX, playerID int64) (*domain.GameState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.states[playerID]
	if !ok {
		return nil, domain.ErrStateNotFound
	}
	return s.Clone(), nil
}

func (f *fakeStateRepo) Upsert(_ context.Context, _ interfaces.DBTX, state *domain.GameState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states[state.PlayerID] = state.Clone()
	return nil
}

func (f *fakeStateRepo) snapshot(playerID int64) *domain.GameState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.states[playerID]; ok {
		return s.Clone()
	}
	return nil
}

type fakeCardRepo struct {
	mu    sync.Mutex
	cards []*domain.Card
}

func (f *fakeCardRepo) GetAll(context.Context, interfaces.DBTX) ([]*domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Card(nil), f.cards...), nil
}
func (f *fakeCardRepo) GetByID(_ context.Context, _ interfaces.DBTX, id string) (*domain.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.cards {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, domain.ErrCardNotFound
}
func (f *fakeCardRepo) Create(_ context.Context, _ interfaces.DBTX, card *domain.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cards = append(f.cards, card)
	return nil
}
func (f *fakeCardRepo) Update(_ context.Context, _ interfaces.DBTX, card *domain.Card) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.cards {
		if c.ID == card.ID {
			f.cards[i] = card
			return nil
		}
	}
	return domain.ErrCardNotFound
}
func (f *fakeCardRepo) Delete(_ context.Context, _ interfaces.DBTX, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, c := range f.cards {
		if c.ID == id {
			f.cards = append(f.cards[:i], f.cards[i+1:]...)
			return nil
		}
	}
	return domain.ErrCardNotFound
}

type fakeNPCRepo struct{ npcs []*domain.NPC }

func (f *fakeNPCRepo) GetAll(context.Context, interfaces.DBTX) ([]*domain.NPC, error) {
	return f.npcs, nil
}
func (f *fakeNPCRepo) GetByID(_ context.Context, _ interfaces.DBTX, id string) (*domain.NPC, error) {
	for _, n := range f.npcs {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, domain.ErrNPCNotFound
}
func (f *fakeNPCRepo) Create(context.Context, interfaces.DBTX, *domain.NPC) error { return nil }
func (f *fakeNPCRepo) Update(context.Context, interfaces.DBTX, *domain.NPC) error { return nil }
func (f *fakeNPCRepo) Delete(context.Context, interfaces.DBTX, string) error      { return nil }

type fakeConfigRepo struct{ cfg *domain.GameConfig }

func (f *fakeConfigRepo) Get(context.Context, interfaces.DBTX) (*domain.GameConfig, error) {
	if f.cfg == nil {
		// Wrapped, so callers comparing the sentinel by equality would break.
		return nil, fmt.Errorf("get game config: %w", domain.ErrConfigNotInitialized)
	}
	return f.cfg, nil
}
func (f *fakeConfigRepo) Upsert(_ context.Context, _ interfaces.DBTX, cfg *domain.GameConfig) error {
	f.cfg = cfg
	return nil
}

type nullDurable struct{}

func (nullDurable) Get(context.Context, string) ([]byte, error) { return nil, cache.ErrMiss }
func (nullDurable) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}
func (nullDurable) Del(context.Context, ...string) error { return nil }

type gameFixture struct {
	svc    *GameService
	states *fakeStateRepo
	index  *catalog.Index
}

func newGameFixture(t *testing.T, cards []*domain.Card, npcs []*domain.NPC, seed int64) *gameFixture {
	t.Helper()
	log := zap.NewNop()

	catalogCache := cache.NewCatalogCache(
		cache.NewMemoryStore(), nullDurable{}, nil,
		&fakeCardRepo{cards: cards},
		&fakeNPCRepo{npcs: npcs},
		&fakeConfigRepo{cfg: &domain.GameConfig{
			StartingMoney:      10000,
			StartingReputation: 0,
			BaseTurnIncome:     1000,
			BaseTurnCost:       800,
			Version:            "test",
		}},
		log,
	)

	index := catalog.NewIndex(log)
	allCards, err := catalogCache.Cards(context.Background())
	require.NoError(t, err)
	allNPCs, err := catalogCache.NPCs(context.Background())
	require.NoError(t, err)
	index.Build(allCards, allNPCs)

	selector := engine.NewSelector(rand.New(rand.NewSource(seed)), log)
	processor := engine.NewProcessor(log)
	prefetcher := engine.NewPrefetcher(index, processor, log)
	states := newFakeStateRepo()

	return &gameFixture{
		svc:    NewGameService(nil, states, catalogCache, index, selector, processor, prefetcher, log),
		states: states,
		index:  index,
	}
}

func gameNPC() *domain.NPC {
	return &domain.NPC{ID: "innkeeper", Name: "Innkeeper", Class: "merchant", Wealth: 3, Reliability: 80}
}

func gameCard(id string, priority domain.CardPriority) *domain.Card {
	card := &domain.Card{
		ID:       id,
		Priority: priority,
		NPCID:    "innkeeper",
		Text:     "text",
		Options:  make([]domain.Option, domain.OptionsPerCard),
	}
	card.Options[0].Consequences = domain.Consequences{MoneyDelta: -100}
	return card
}

func TestGameServiceStartSession(t *testing.T) {
	fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
	ctx := context.Background()

	state, created, err := fx.svc.StartSession(ctx, 42)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, int64(42), state.PlayerID)
	assert.Equal(t, int64(10000), state.Money)
	assert.Equal(t, 1, state.Turn)

	// The creating write is synchronous; a second call finds the state.
	again, created, err := fx.svc.StartSession(ctx, 42)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, state.PlayerID, again.PlayerID)
}

func TestGameServiceNextCard(t *testing.T) {
	ctx := context.Background()

	t.Run("serves an eligible card", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		ic, err := fx.svc.NextCard(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "c1", ic.Card.ID)
		assert.Equal(t, "innkeeper", ic.NPC.ID)
	})

	t.Run("due delayed cards surface before selection", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{
			gameCard("regular", domain.PriorityCritical),
			gameCard("collector", domain.PriorityNormal),
		}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		state := fx.states.snapshot(42)
		state.PendingCards = []string{"collector"}
		require.NoError(t, fx.states.Upsert(ctx, nil, state))

		ic, err := fx.svc.NextCard(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "collector", ic.Card.ID)

		// The pending entry is consumed.
		require.Eventually(t, func() bool {
			return len(fx.states.snapshot(42).PendingCards) == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("vanished pending cards are drained and persisted", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		state := fx.states.snapshot(42)
		state.PendingCards = []string{"deleted-a", "deleted-b"}
		require.NoError(t, fx.states.Upsert(ctx, nil, state))

		ic, err := fx.svc.NextCard(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "c1", ic.Card.ID)

		// The dead ids must not survive to be re-scanned on the next call.
		require.Eventually(t, func() bool {
			return len(fx.states.snapshot(42).PendingCards) == 0
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("returns the sentinel when nothing is eligible", func(t *testing.T) {
		rich := gameCard("rich", domain.PriorityNormal)
		minMoney := int64(1000000)
		rich.Requires.MinMoney = &minMoney
		fx := newGameFixture(t, []*domain.Card{rich}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		_, err = fx.svc.NextCard(ctx, 42)
		assert.ErrorIs(t, err, domain.ErrNoEligibleCards)
	})

	t.Run("unknown player propagates not found", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, err := fx.svc.NextCard(ctx, 7)
		assert.ErrorIs(t, err, domain.ErrStateNotFound)
	})
}

func TestGameServiceMakeChoice(t *testing.T) {
	ctx := context.Background()

	t.Run("applies the option and persists in the background", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		next, err := fx.svc.MakeChoice(ctx, 42, "c1", 0)
		require.NoError(t, err)

		// -100 at neutral reputation costs 150.
		assert.Equal(t, int64(9850), next.Money)
		assert.Equal(t, 2, next.Turn)
		assert.Equal(t, []string{"c1"}, next.RecentCards)

		require.Eventually(t, func() bool {
			return fx.states.snapshot(42).Turn == 2
		}, time.Second, 10*time.Millisecond)
	})

	t.Run("rejects an unknown card", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		_, err = fx.svc.MakeChoice(ctx, 42, "ghost", 0)
		assert.ErrorIs(t, err, domain.ErrCardNotFound)
	})

	t.Run("rejects an out of range option", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		_, err = fx.svc.MakeChoice(ctx, 42, "c1", 9)
		assert.ErrorIs(t, err, domain.ErrInvalidOption)
	})
}

func TestGameServiceEndTurn(t *testing.T) {
	ctx := context.Background()

	t.Run("advances money and reports the summary", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		result, err := fx.svc.EndTurn(ctx, 42)
		require.NoError(t, err)

		assert.Equal(t, int64(200), result.Summary.MoneyDelta)
		assert.Equal(t, int64(10200), result.State.Money)
		assert.False(t, result.GameOver)
	})

	t.Run("negative money means game over", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{gameCard("c1", domain.PriorityNormal)}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		state := fx.states.snapshot(42)
		state.Money = 100
		state.Debts = []domain.Debt{{ID: "loan", TurnPayment: 5000, TurnsRemaining: 3}}
		require.NoError(t, fx.states.Upsert(ctx, nil, state))

		result, err := fx.svc.EndTurn(ctx, 42)
		require.NoError(t, err)
		assert.True(t, result.GameOver)
		assert.Less(t, result.State.Money, int64(0))
	})

	t.Run("due delayed cards land in the pending queue", func(t *testing.T) {
		fx := newGameFixture(t, []*domain.Card{
			gameCard("c1", domain.PriorityNormal),
			gameCard("collector", domain.PriorityNormal),
		}, []*domain.NPC{gameNPC()}, 1)
		_, _, err := fx.svc.StartSession(ctx, 42)
		require.NoError(t, err)

		state := fx.states.snapshot(42)
		state.DelayedEvents = []domain.DelayedEvent{{CardID: "collector", TurnsRemaining: 1}}
		require.NoError(t, fx.states.Upsert(ctx, nil, state))

		result, err := fx.svc.EndTurn(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, []string{"collector"}, result.Summary.DueCardIDs)
		assert.Equal(t, []string{"collector"}, result.State.PendingCards)

		// Wait out the background persist before reading back.
		require.Eventually(t, func() bool {
			return len(fx.states.snapshot(42).PendingCards) == 1
		}, time.Second, 10*time.Millisecond)

		ic, err := fx.svc.NextCard(ctx, 42)
		require.NoError(t, err)
		assert.Equal(t, "collector", ic.Card.ID)
	})
}

func TestTouchPlayTime(t *testing.T) {
	t.Run("accrues gap below idle cutoff", func(t *testing.T) {
		s := &domain.GameState{LastPlayedAt: time.Now().UTC().Add(-30 * time.Second)}
		touchPlayTime(s)
		assert.InDelta(t, 30, s.TotalPlaySeconds, 2)
		assert.WithinDuration(t, time.Now().UTC(), s.LastPlayedAt, time.Second)
	})

	t.Run("long idle gap counts as away time", func(t *testing.T) {
		s := &domain.GameState{LastPlayedAt: time.Now().UTC().Add(-2 * time.Hour)}
		touchPlayTime(s)
		assert.Zero(t, s.TotalPlaySeconds)
		assert.WithinDuration(t, time.Now().UTC(), s.LastPlayedAt, time.Second)
	})
}
