package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tavern-server/internal/cache"
	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
	"tavern-server/internal/engine"
	"tavern-server/internal/interfaces"
)

const persistTimeout = 5 * time.Second

// Gaps longer than this between actions count as the player being away,
// not as play time.
const playTimeIdleCutoff = 5 * time.Minute

// TurnResult is what one turn-end application produced, for the handler layer.
type TurnResult struct {
	State    *domain.GameState
	Summary  engine.TurnSummary
	GameOver bool
}

// GameService orchestrates one player's round: pick a card, apply the chosen
// option, advance the turn. All gameplay computation runs synchronously
// against the in-memory index; only state persistence touches I/O, and state
// writes are optimistic fire-and-forget.
type GameService struct {
	db         interfaces.DBTX
	states     interfaces.PlayerStateRepository
	cache      *cache.CatalogCache
	index      *catalog.Index
	selector   *engine.Selector
	processor  *engine.Processor
	prefetcher *engine.Prefetcher
	logger     *zap.Logger
}

// NewGameService creates the gameplay orchestrator.
func NewGameService(
	db interfaces.DBTX,
	states interfaces.PlayerStateRepository,
	catalogCache *cache.CatalogCache,
	index *catalog.Index,
	selector *engine.Selector,
	processor *engine.Processor,
	prefetcher *engine.Prefetcher,
	logger *zap.Logger,
) *GameService {
	return &GameService{
		db:         db,
		states:     states,
		cache:      catalogCache,
		index:      index,
		selector:   selector,
		processor:  processor,
		prefetcher: prefetcher,
		logger:     logger.Named("GameService"),
	}
}

// StartSession returns the player's state, creating it from the game config
// defaults on first contact. Creation is persisted synchronously; everything
// downstream may rely on the row existing.
func (s *GameService) StartSession(ctx context.Context, playerID int64) (*domain.GameState, bool, error) {
	state, err := s.states.Get(ctx, s.db, playerID)
	if err == nil {
		return state, false, nil
	}
	if !errors.Is(err, domain.ErrStateNotFound) {
		return nil, false, err
	}

	cfg, err := s.cache.Config(ctx)
	if err != nil {
		return nil, false, err
	}
	state = domain.NewGameState(playerID, cfg)
	if err := s.states.Upsert(ctx, s.db, state); err != nil {
		return nil, false, err
	}
	s.logger.Info("Created new player state", zap.Int64("playerID", playerID))
	return state, true, nil
}

// NextCard picks the card to present this round. A delayed card that became
// due always surfaces first; otherwise the selector runs over the eligible
// pool, short-circuiting through the prefetcher's staged set when possible.
// Returns domain.ErrNoEligibleCards when nothing can be shown.
func (s *GameService) NextCard(ctx context.Context, playerID int64) (*catalog.IndexedCard, error) {
	log := s.logger.With(zap.Int64("playerID", playerID))

	state, err := s.states.Get(ctx, s.db, playerID)
	if err != nil {
		return nil, err
	}

	// Due delayed cards bypass selection entirely.
	if len(state.PendingCards) > 0 {
		for len(state.PendingCards) > 0 {
			id := state.PendingCards[0]
			state.PendingCards = state.PendingCards[1:]
			if ic := s.index.Card(id); ic != nil {
				s.persistAsync(state)
				log.Debug("Serving due delayed card", zap.String("cardID", id))
				return ic, nil
			}
			// The delayed card vanished from the catalog; drop it and move on.
			log.Warn("Due delayed card missing from index, skipping", zap.String("cardID", id))
		}
		// Every due id was gone. Persist the drain so the dead ids are not
		// re-scanned on the next call.
		s.persistAsync(state)
	}

	eligible := s.index.AvailableCards(state)
	if len(eligible) == 0 {
		log.Warn("No eligible cards for player state", zap.Int("turn", state.Turn))
		return nil, domain.ErrNoEligibleCards
	}

	picked := s.selector.Pick(state, eligible)
	if picked == nil {
		return nil, domain.ErrNoEligibleCards
	}
	if staged := s.prefetcher.Prefetched(picked.Card.ID); staged != nil {
		log.Debug("Prefetch hit", zap.String("cardID", picked.Card.ID))
		picked = staged
	}
	return picked, nil
}

// MakeChoice applies the selected option's consequences, persists the new
// state fire-and-forget, and kicks a prefetch run for the next round.
func (s *GameService) MakeChoice(ctx context.Context, playerID int64, cardID string, optionIndex int) (*domain.GameState, error) {
	state, err := s.states.Get(ctx, s.db, playerID)
	if err != nil {
		return nil, err
	}
	ic := s.index.Card(cardID)
	if ic == nil {
		return nil, domain.ErrCardNotFound
	}

	next, err := s.processor.ApplyChoice(state, ic.Card, optionIndex)
	if err != nil {
		return nil, err
	}
	touchPlayTime(next)

	s.persistAsync(next)
	s.prefetchAsync(ctx, next, cardID)
	return next, nil
}

// EndTurn applies the turn-end transform. Money going negative means game
// over for this player; the already-advanced state is still persisted.
func (s *GameService) EndTurn(ctx context.Context, playerID int64) (*TurnResult, error) {
	state, err := s.states.Get(ctx, s.db, playerID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.cache.Config(ctx)
	if err != nil {
		return nil, err
	}

	next, sum := s.processor.ProcessTurnEnd(state, cfg)
	next.PendingCards = append(next.PendingCards, sum.DueCardIDs...)
	touchPlayTime(next)

	s.persistAsync(next)
	s.prefetchAsync(ctx, next, "")

	return &TurnResult{
		State:    next,
		Summary:  sum,
		GameOver: next.Money < 0,
	}, nil
}

// touchPlayTime accrues elapsed session time onto the state and stamps the
// action. Time since the previous action counts only below the idle cutoff.
func touchPlayTime(state *domain.GameState) {
	now := time.Now().UTC()
	if elapsed := now.Sub(state.LastPlayedAt); elapsed > 0 && elapsed <= playTimeIdleCutoff {
		state.TotalPlaySeconds += int64(elapsed.Seconds())
	}
	state.LastPlayedAt = now
}

// persistAsync writes the state in the background. Failures are logged only:
// the player-visible state has already advanced optimistically and is not
// rolled back.
func (s *GameService) persistAsync(state *domain.GameState) {
	snapshot := state.Clone()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := s.states.Upsert(ctx, s.db, snapshot); err != nil {
			s.logger.Error("Fire-and-forget state write failed",
				zap.Int64("playerID", snapshot.PlayerID), zap.Error(err))
		}
	}()
}

func (s *GameService) prefetchAsync(ctx context.Context, state *domain.GameState, currentCardID string) {
	cfg, err := s.cache.Config(ctx)
	if err != nil {
		// Prefetching is best effort; the next NextCard call selects live.
		s.logger.Debug("Skipping prefetch, config unavailable", zap.Error(err))
		return
	}
	snapshot := state.Clone()
	go s.prefetcher.Run(snapshot, currentCardID, cfg)
}
