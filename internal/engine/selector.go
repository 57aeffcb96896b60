package engine

import (
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"tavern-server/internal/catalog"
	"tavern-server/internal/domain"
)

// riskChance maps current reputation to the probability of surfacing a
// priority-2 ("risk") card. Game balance depends on these exact breakpoints.
func riskChance(reputation int) float64 {
	switch {
	case reputation <= -100:
		return 0.95
	case reputation <= -75:
		return 0.70
	case reputation <= -50:
		return 0.50
	case reputation <= -25:
		return 0.30
	case reputation <= 0:
		return 0.20
	case reputation <= 25:
		return 0.15
	case reputation <= 50:
		return 0.10
	case reputation <= 75:
		return 0.05
	default:
		return 0.02
	}
}

// storyChance is the fixed probability of surfacing an eligible priority-3 card.
const storyChance = 0.70

// Selector picks the next card to present from a pool of eligible cards,
// applying tiered priority, randomized tie-breaking and anti-repetition.
// The random source is injected so tests can seed it; rand.Rand is not safe
// for concurrent use, so every draw goes through the mutex.
type Selector struct {
	mu     sync.Mutex
	rng    *rand.Rand
	logger *zap.Logger
}

// NewSelector creates a selector around the given random source.
func NewSelector(rng *rand.Rand, logger *zap.Logger) *Selector {
	return &Selector{rng: rng, logger: logger.Named("Selector")}
}

// Pick returns the next card, or nil when the eligible pool is empty.
// The tier ladder runs in a fixed order; the first tier that yields a
// candidate wins.
func (s *Selector) Pick(state *domain.GameState, eligible []*catalog.IndexedCard) *catalog.IndexedCard {
	if len(eligible) == 0 {
		return nil
	}

	// Anti-repetition: exclude everything in the recency window, relaxing the
	// window when it would starve the pool.
	pool := excludeRecent(eligible, state.RecentCards)
	if len(pool) < 3 && len(state.RecentCards) > 2 {
		relaxed := state.RecentCards[len(state.RecentCards)-2:]
		pool = excludeRecent(eligible, relaxed)
	}
	if len(pool) == 0 {
		pool = eligible
	}

	// Tier 1: critical cards always win when present.
	if critical := byPriority(pool, domain.PriorityCritical); len(critical) > 0 {
		return s.uniform(critical)
	}

	// Tier 2: risk roll against the reputation step table.
	if risk := byPriority(pool, domain.PriorityRisk); len(risk) > 0 {
		if s.roll() < riskChance(state.Reputation) {
			return s.uniform(risk)
		}
	}

	// Tier 3: story cards, re-checking required flags, with a fixed chance.
	if story := withFlagsSatisfied(byPriority(pool, domain.PriorityStory), state); len(story) > 0 {
		if s.roll() < storyChance {
			return s.uniform(story)
		}
	}

	// Tier 4: normal cards.
	if normal := byPriority(pool, domain.PriorityNormal); len(normal) > 0 {
		return s.uniform(normal)
	}

	// Fallback: anything of priority >= 3 from the filtered pool, then
	// anything eligible at all, ignoring recency.
	for _, ic := range pool {
		if ic.Card.Priority >= domain.PriorityStory {
			return ic
		}
	}
	s.logger.Debug("Selector fell through to the unfiltered eligible pool",
		zap.Int("eligible", len(eligible)))
	return s.uniform(eligible)
}

func (s *Selector) roll() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *Selector) uniform(pool []*catalog.IndexedCard) *catalog.IndexedCard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pool[s.rng.Intn(len(pool))]
}

func excludeRecent(pool []*catalog.IndexedCard, recent []string) []*catalog.IndexedCard {
	if len(recent) == 0 {
		return pool
	}
	seen := make(map[string]struct{}, len(recent))
	for _, id := range recent {
		seen[id] = struct{}{}
	}
	out := make([]*catalog.IndexedCard, 0, len(pool))
	for _, ic := range pool {
		if _, ok := seen[ic.Card.ID]; !ok {
			out = append(out, ic)
		}
	}
	return out
}

func byPriority(pool []*catalog.IndexedCard, p domain.CardPriority) []*catalog.IndexedCard {
	var out []*catalog.IndexedCard
	for _, ic := range pool {
		if ic.Card.Priority == p {
			out = append(out, ic)
		}
	}
	return out
}

func withFlagsSatisfied(pool []*catalog.IndexedCard, state *domain.GameState) []*catalog.IndexedCard {
	var out []*catalog.IndexedCard
	for _, ic := range pool {
		ok := true
		for _, f := range ic.RequiredFlags {
			if !state.HasFlag(f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, ic)
		}
	}
	return out
}
