package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tavern-server/internal/domain"
	"tavern-server/internal/interfaces"
)

// TTLs per data class. Catalog data changes rarely and only through the admin
// tool; config changes somewhat more often. Player state is never cached here.
const (
	CatalogTTL = 24 * time.Hour
	ConfigTTL  = time.Hour
)

// Stable cache keys. Write paths must delete both the aggregate key and the
// per-entity key; there is no dependency tracking beyond that.
const (
	keyAllCards = "cards:all"
	keyAllNPCs  = "npcs:all"
	keyConfig   = "config"
)

func cardKey(id string) string { return "card:" + id }
func npcKey(id string) string  { return "npc:" + id }

// CatalogCache is the layered read-through cache in front of the persistence
// layer: in-memory map, then Redis, then Postgres as the source of truth.
// Postgres errors propagate; Redis errors are logged and swallowed, because
// the cache is an optimization, never a hard dependency for correctness.
type CatalogCache struct {
	memory  *MemoryStore
	durable DurableStore
	db      interfaces.DBTX
	cards   interfaces.CardRepository
	npcs    interfaces.NPCRepository
	config  interfaces.ConfigRepository
	logger  *zap.Logger
}

// NewCatalogCache wires the three layers together.
func NewCatalogCache(
	memory *MemoryStore,
	durable DurableStore,
	db interfaces.DBTX,
	cards interfaces.CardRepository,
	npcs interfaces.NPCRepository,
	config interfaces.ConfigRepository,
	logger *zap.Logger,
) *CatalogCache {
	return &CatalogCache{
		memory:  memory,
		durable: durable,
		db:      db,
		cards:   cards,
		npcs:    npcs,
		config:  config,
		logger:  logger.Named("CatalogCache"),
	}
}

// Cards returns the full card catalog, reading through the layers in order.
func (c *CatalogCache) Cards(ctx context.Context) ([]*domain.Card, error) {
	if v, ok := c.memory.Get(keyAllCards); ok {
		return v.([]*domain.Card), nil
	}

	var cached []*domain.Card
	if c.fromDurable(ctx, keyAllCards, &cached) {
		c.memory.Set(keyAllCards, cached, CatalogTTL)
		return cached, nil
	}

	cards, err := c.cards.GetAll(ctx, c.db)
	if err != nil {
		return nil, err
	}
	c.memory.Set(keyAllCards, cards, CatalogTTL)
	c.toDurable(ctx, keyAllCards, cards, CatalogTTL)
	return cards, nil
}

// NPCs returns every actor record, reading through the layers in order.
func (c *CatalogCache) NPCs(ctx context.Context) ([]*domain.NPC, error) {
	if v, ok := c.memory.Get(keyAllNPCs); ok {
		return v.([]*domain.NPC), nil
	}

	var cached []*domain.NPC
	if c.fromDurable(ctx, keyAllNPCs, &cached) {
		c.memory.Set(keyAllNPCs, cached, CatalogTTL)
		return cached, nil
	}

	npcs, err := c.npcs.GetAll(ctx, c.db)
	if err != nil {
		return nil, err
	}
	c.memory.Set(keyAllNPCs, npcs, CatalogTTL)
	c.toDurable(ctx, keyAllNPCs, npcs, CatalogTTL)
	return npcs, nil
}

// Config returns the game config. domain.ErrConfigNotInitialized propagates
// so the caller can seed a default; it is never cached.
func (c *CatalogCache) Config(ctx context.Context) (*domain.GameConfig, error) {
	if v, ok := c.memory.Get(keyConfig); ok {
		return v.(*domain.GameConfig), nil
	}

	var cached domain.GameConfig
	if c.fromDurable(ctx, keyConfig, &cached) {
		c.memory.Set(keyConfig, &cached, ConfigTTL)
		return &cached, nil
	}

	cfg, err := c.config.Get(ctx, c.db)
	if err != nil {
		return nil, err
	}
	c.memory.Set(keyConfig, cfg, ConfigTTL)
	c.toDurable(ctx, keyConfig, cfg, ConfigTTL)
	return cfg, nil
}

// CardByID returns a single card through the cache layers.
func (c *CatalogCache) CardByID(ctx context.Context, id string) (*domain.Card, error) {
	key := cardKey(id)
	if v, ok := c.memory.Get(key); ok {
		return v.(*domain.Card), nil
	}

	var cached domain.Card
	if c.fromDurable(ctx, key, &cached) {
		c.memory.Set(key, &cached, CatalogTTL)
		return &cached, nil
	}

	card, err := c.cards.GetByID(ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	c.memory.Set(key, card, CatalogTTL)
	c.toDurable(ctx, key, card, CatalogTTL)
	return card, nil
}

// NPCByID returns a single actor record through the cache layers.
func (c *CatalogCache) NPCByID(ctx context.Context, id string) (*domain.NPC, error) {
	key := npcKey(id)
	if v, ok := c.memory.Get(key); ok {
		return v.(*domain.NPC), nil
	}

	var cached domain.NPC
	if c.fromDurable(ctx, key, &cached) {
		c.memory.Set(key, &cached, CatalogTTL)
		return &cached, nil
	}

	npc, err := c.npcs.GetByID(ctx, c.db, id)
	if err != nil {
		return nil, err
	}
	c.memory.Set(key, npc, CatalogTTL)
	c.toDurable(ctx, key, npc, CatalogTTL)
	return npc, nil
}

// InvalidateCard drops the aggregate catalog key and the card's own key in
// both layers. Invalidation is manual and coarse by design.
func (c *CatalogCache) InvalidateCard(ctx context.Context, id string) {
	c.memory.Delete(keyAllCards)
	c.memory.Delete(cardKey(id))
	if err := c.durable.Del(ctx, keyAllCards, cardKey(id)); err != nil {
		c.logger.Warn("Failed to invalidate card keys in durable cache", zap.String("cardID", id), zap.Error(err))
	}
}

// InvalidateNPC drops the aggregate actor key and the actor's own key.
func (c *CatalogCache) InvalidateNPC(ctx context.Context, id string) {
	c.memory.Delete(keyAllNPCs)
	c.memory.Delete(npcKey(id))
	if err := c.durable.Del(ctx, keyAllNPCs, npcKey(id)); err != nil {
		c.logger.Warn("Failed to invalidate npc keys in durable cache", zap.String("npcID", id), zap.Error(err))
	}
}

// InvalidateConfig drops the config key.
func (c *CatalogCache) InvalidateConfig(ctx context.Context) {
	c.memory.Delete(keyConfig)
	if err := c.durable.Del(ctx, keyConfig); err != nil {
		c.logger.Warn("Failed to invalidate config key in durable cache", zap.Error(err))
	}
}

// InvalidateAll drops everything cached, used when a catalog event does not
// carry enough detail for targeted invalidation.
func (c *CatalogCache) InvalidateAll(ctx context.Context) {
	c.memory.Clear()
	if err := c.durable.Del(ctx, keyAllCards, keyAllNPCs, keyConfig); err != nil {
		c.logger.Warn("Failed to invalidate aggregate keys in durable cache", zap.Error(err))
	}
}

// fromDurable tries the second layer, reporting success only on a clean hit.
// Any durable-layer failure is logged and treated as a miss.
func (c *CatalogCache) fromDurable(ctx context.Context, key string, out any) bool {
	raw, err := c.durable.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.logger.Warn("Durable cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("Durable cache entry corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CatalogCache) toDurable(ctx context.Context, key string, value any, ttl time.Duration) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Failed to marshal value for durable cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.durable.Set(ctx, key, raw, ttl); err != nil {
		c.logger.Warn(fmt.Sprintf("Durable cache write failed for %s", key), zap.Error(err))
	}
}
