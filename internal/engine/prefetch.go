package engine

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
)

// PrefetchCap bounds how many candidates a single prefetch run stages.
const PrefetchCap = 10

// Prefetcher hides selection latency by speculatively computing likely next
// cards against the already-built catalog index. Everything here is pure
// in-memory computation; no I/O happens during a run.
type Prefetcher struct {
	index     *catalog.Index
	processor *Processor
	logger    *zap.Logger

	inFlight atomic.Bool
	mu       sync.RWMutex
	staged   map[string]*catalog.IndexedCard
}

// NewPrefetcher creates a prefetcher over the index and turn processor.
func NewPrefetcher(index *catalog.Index, processor *Processor, logger *zap.Logger) *Prefetcher {
	return &Prefetcher{
		index:     index,
		processor: processor,
		logger:    logger.Named("Prefetcher"),
		staged:    make(map[string]*catalog.IndexedCard),
	}
}

// Run simulates one turn-end against the current state, collects the eligible
// pool that would result, and stages up to PrefetchCap candidates walking
// priority tiers 1 to 4. A run fully replaces the prior staged set.
// Overlapping calls are no-ops.
func (p *Prefetcher) Run(state *domain.GameState, currentCardID string, cfg *domain.GameConfig) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return
	}
	defer p.inFlight.Store(false)

	predicted, _ := p.processor.ProcessTurnEnd(state, cfg)
	if currentCardID != "" {
		predicted.RecordRecentCard(currentCardID)
	}

	eligible := p.index.AvailableCards(predicted)
	pool := excludeRecent(eligible, predicted.RecentCards)

	staged := make(map[string]*catalog.IndexedCard, PrefetchCap)
	for tier := domain.PriorityCritical; tier <= domain.PriorityNormal && len(staged) < PrefetchCap; tier++ {
		for _, ic := range byPriority(pool, tier) {
			if len(staged) >= PrefetchCap {
				break
			}
			staged[ic.Card.ID] = ic
		}
	}

	p.mu.Lock()
	p.staged = staged
	p.mu.Unlock()

	p.logger.Debug("Prefetch run completed",
		zap.Int64("playerID", state.PlayerID),
		zap.Int("eligible", len(eligible)),
		zap.Int("staged", len(staged)))
}

// Prefetched returns the staged card by id, or nil when it was not staged.
func (p *Prefetcher) Prefetched(id string) *catalog.IndexedCard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.staged[id]
}

// All returns every staged card.
func (p *Prefetcher) All() []*catalog.IndexedCard {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*catalog.IndexedCard, 0, len(p.staged))
	for _, ic := range p.staged {
		out = append(out, ic)
	}
	return out
}

// Clear drops the staged set, used when the catalog is rebuilt.
func (p *Prefetcher) Clear() {
	p.mu.Lock()
	p.staged = make(map[string]*catalog.IndexedCard)
	p.mu.Unlock()
}
