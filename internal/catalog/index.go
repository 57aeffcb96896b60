package catalog

import (
	"math"
	"sync"

	"go.uber.org/zap"

	"tavern-server/internal/domain"
)

// IndexedCard is a denormalized view of a card joined with its NPC, with the
// requirement bounds unpacked into primitive fields. Built once per catalog
// load, never persisted.
type IndexedCard struct {
	Card *domain.Card
	NPC  *domain.NPC

	MinMoney        int64
	MaxMoney        int64
	MinReputation   int
	MaxReputation   int
	MinTurn         int
	RequiredFlags   []string
	RelationshipNPC string
	MinRelationship int
	hasRelationship bool
}

// BuildReport describes what a Build call kept and what it dropped. Cards
// referencing a missing NPC are dropped rather than rejected; the caller
// decides whether that is worth alerting on.
type BuildReport struct {
	Indexed    int
	Dropped    int
	DroppedIDs []string
}

// indexData is one immutable generation of the lookup structures. Build
// assembles a fresh one and swaps it in; readers never see a partial rebuild.
type indexData struct {
	byID       map[string]*IndexedCard
	byPriority map[domain.CardPriority][]*IndexedCard
	byNPC      map[string][]*IndexedCard
	all        []*IndexedCard
}

func newIndexData() *indexData {
	return &indexData{
		byID:       make(map[string]*IndexedCard),
		byPriority: make(map[domain.CardPriority][]*IndexedCard),
		byNPC:      make(map[string][]*IndexedCard),
	}
}

// Index holds the in-memory lookup structures over the full card catalog.
// It is rebuilt wholesale; Build fully replaces any prior state. Safe for
// concurrent use: request goroutines query it while the admin write path and
// the catalog-event consumer rebuild it.
type Index struct {
	mu     sync.RWMutex
	data   *indexData
	logger *zap.Logger
}

// NewIndex creates an empty catalog index.
func NewIndex(logger *zap.Logger) *Index {
	return &Index{data: newIndexData(), logger: logger.Named("CatalogIndex")}
}

// Build joins each card to its NPC and populates every lookup structure.
// Idempotent: calling again with the same input yields identical query results.
func (idx *Index) Build(cards []*domain.Card, npcs []*domain.NPC) BuildReport {
	npcByID := make(map[string]*domain.NPC, len(npcs))
	for _, n := range npcs {
		npcByID[n.ID] = n
	}

	data := newIndexData()
	var report BuildReport
	for _, c := range cards {
		npc, ok := npcByID[c.NPCID]
		if !ok {
			report.Dropped++
			report.DroppedIDs = append(report.DroppedIDs, c.ID)
			continue
		}
		ic := unpack(c, npc)
		data.byID[c.ID] = ic
		data.byPriority[c.Priority] = append(data.byPriority[c.Priority], ic)
		data.byNPC[c.NPCID] = append(data.byNPC[c.NPCID], ic)
		data.all = append(data.all, ic)
	}
	report.Indexed = len(data.all)

	idx.mu.Lock()
	idx.data = data
	idx.mu.Unlock()

	if report.Dropped > 0 {
		idx.logger.Warn("Dropped cards with unresolvable NPC references during index build",
			zap.Int("dropped", report.Dropped),
			zap.Strings("cardIDs", report.DroppedIDs))
	}
	idx.logger.Info("Catalog index built",
		zap.Int("indexed", report.Indexed),
		zap.Int("dropped", report.Dropped))
	return report
}

// Clear resets every structure to empty.
func (idx *Index) Clear() {
	idx.mu.Lock()
	idx.data = newIndexData()
	idx.mu.Unlock()
}

func (idx *Index) snapshot() *indexData {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.data
}

// Len returns the number of indexed cards.
func (idx *Index) Len() int { return len(idx.snapshot().all) }

// Card returns the indexed card by id, or nil on miss.
func (idx *Index) Card(id string) *IndexedCard { return idx.snapshot().byID[id] }

// CardsByNPC returns every indexed card referencing the NPC. Empty on miss.
func (idx *Index) CardsByNPC(npcID string) []*IndexedCard { return idx.snapshot().byNPC[npcID] }

// CardsByPriority returns every indexed card in the priority tier. Empty on miss.
func (idx *Index) CardsByPriority(p domain.CardPriority) []*IndexedCard {
	return idx.snapshot().byPriority[p]
}

// AvailableCards returns every indexed card whose unpacked bounds are satisfied
// by the state. Full scan with short-circuit predicate evaluation; catalog
// sizes are in the thousands, so no secondary indexing is needed and no I/O
// happens here.
func (idx *Index) AvailableCards(state *domain.GameState) []*IndexedCard {
	data := idx.snapshot()
	out := make([]*IndexedCard, 0, len(data.all))
	for _, ic := range data.all {
		if ic.Eligible(state) {
			out = append(out, ic)
		}
	}
	return out
}

// Eligible is the pure eligibility predicate: every bound must hold
// simultaneously, and an unset bound is unconstrained.
func (ic *IndexedCard) Eligible(state *domain.GameState) bool {
	if state.Money < ic.MinMoney || state.Money > ic.MaxMoney {
		return false
	}
	if state.Reputation < ic.MinReputation || state.Reputation > ic.MaxReputation {
		return false
	}
	if state.Turn < ic.MinTurn {
		return false
	}
	for _, f := range ic.RequiredFlags {
		if !state.HasFlag(f) {
			return false
		}
	}
	if ic.hasRelationship {
		// An absent relationship counts as 0.
		if state.Relationships[ic.RelationshipNPC] < ic.MinRelationship {
			return false
		}
	}
	return true
}

func unpack(c *domain.Card, npc *domain.NPC) *IndexedCard {
	ic := &IndexedCard{
		Card:          c,
		NPC:           npc,
		MinMoney:      0,
		MaxMoney:      math.MaxInt64,
		MinReputation: math.MinInt32,
		MaxReputation: math.MaxInt32,
		MinTurn:       0,
		RequiredFlags: c.Requires.RequiredFlags,
	}
	r := c.Requires
	if r.MinMoney != nil {
		ic.MinMoney = *r.MinMoney
	}
	if r.MaxMoney != nil {
		ic.MaxMoney = *r.MaxMoney
	}
	if r.MinReputation != nil {
		ic.MinReputation = *r.MinReputation
	}
	if r.MaxReputation != nil {
		ic.MaxReputation = *r.MaxReputation
	}
	if r.MinTurn != nil {
		ic.MinTurn = *r.MinTurn
	}
	if r.RelationshipNPC != "" && r.MinRelationship != nil {
		ic.RelationshipNPC = r.RelationshipNPC
		ic.MinRelationship = *r.MinRelationship
		ic.hasRelationship = true
	}
	return ic
}
