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

// DefaultGameConfig seeds a fresh deployment so the game is playable before
// an admin ever touches the config screen.
var DefaultGameConfig = domain.GameConfig{
	StartingMoney:      10000,
	StartingReputation: 0,
	BaseTurnIncome:     1000,
	BaseTurnCost:       800,
	Version:            "default",
}

// CatalogService owns the authoring write path: card/actor/config mutations,
// cache invalidation, index rebuilds and catalog-changed events. Every
// successful write invalidates the affected cache keys and rebuilds the index
// before the next selection call can observe stale content.
type CatalogService struct {
	db         interfaces.DBTX
	cards      interfaces.CardRepository
	npcs       interfaces.NPCRepository
	config     interfaces.ConfigRepository
	cache      *cache.CatalogCache
	index      *catalog.Index
	prefetcher *engine.Prefetcher
	publisher  interfaces.CatalogEventPublisher
	logger     *zap.Logger
}

// NewCatalogService creates the authoring-side service.
func NewCatalogService(
	db interfaces.DBTX,
	cards interfaces.CardRepository,
	npcs interfaces.NPCRepository,
	config interfaces.ConfigRepository,
	catalogCache *cache.CatalogCache,
	index *catalog.Index,
	prefetcher *engine.Prefetcher,
	publisher interfaces.CatalogEventPublisher,
	logger *zap.Logger,
) *CatalogService {
	return &CatalogService{
		db:         db,
		cards:      cards,
		npcs:       npcs,
		config:     config,
		cache:      catalogCache,
		index:      index,
		prefetcher: prefetcher,
		publisher:  publisher,
		logger:     logger.Named("CatalogService"),
	}
}

// RebuildIndex reloads the catalog through the cache and rebuilds the
// in-memory index wholesale. The prefetcher's staged set is dropped since it
// points at the old indexed views.
func (s *CatalogService) RebuildIndex(ctx context.Context) (catalog.BuildReport, error) {
	cards, err := s.cache.Cards(ctx)
	if err != nil {
		return catalog.BuildReport{}, err
	}
	npcs, err := s.cache.NPCs(ctx)
	if err != nil {
		return catalog.BuildReport{}, err
	}
	report := s.index.Build(cards, npcs)
	s.prefetcher.Clear()
	return report, nil
}

// EnsureConfig seeds the default game config when none has been written yet.
// Called once at startup.
func (s *CatalogService) EnsureConfig(ctx context.Context) (*domain.GameConfig, error) {
	cfg, err := s.config.Get(ctx, s.db)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, domain.ErrConfigNotInitialized) {
		return nil, err
	}
	seeded := DefaultGameConfig
	if err := s.config.Upsert(ctx, s.db, &seeded); err != nil {
		return nil, err
	}
	s.logger.Info("Seeded default game config")
	return &seeded, nil
}

// ListCards returns the full catalog for the admin tables.
func (s *CatalogService) ListCards(ctx context.Context) ([]*domain.Card, error) {
	return s.cache.Cards(ctx)
}

// GetCard returns a single card.
func (s *CatalogService) GetCard(ctx context.Context, id string) (*domain.Card, error) {
	return s.cache.CardByID(ctx, id)
}

// CreateCard validates and stores a new card. Validation is strict here, in
// contrast to the permissive read path.
func (s *CatalogService) CreateCard(ctx context.Context, card *domain.Card) error {
	if err := s.validateCard(ctx, card); err != nil {
		return err
	}
	if err := s.cards.Create(ctx, s.db, card); err != nil {
		return err
	}
	s.afterCatalogWrite(ctx, domain.EntityCard, card.ID, domain.ActionCreated)
	return nil
}

// UpdateCard validates and replaces an existing card.
func (s *CatalogService) UpdateCard(ctx context.Context, card *domain.Card) error {
	if err := s.validateCard(ctx, card); err != nil {
		return err
	}
	if err := s.cards.Update(ctx, s.db, card); err != nil {
		return err
	}
	s.afterCatalogWrite(ctx, domain.EntityCard, card.ID, domain.ActionUpdated)
	return nil
}

// DeleteCard removes a card from the catalog.
func (s *CatalogService) DeleteCard(ctx context.Context, id string) error {
	if err := s.cards.Delete(ctx, s.db, id); err != nil {
		return err
	}
	s.afterCatalogWrite(ctx, domain.EntityCard, id, domain.ActionDeleted)
	return nil
}

// ListNPCs returns every actor record.
func (s *CatalogService) ListNPCs(ctx context.Context) ([]*domain.NPC, error) {
	return s.cache.NPCs(ctx)
}

// GetNPC returns a single actor record.
func (s *CatalogService) GetNPC(ctx context.Context, id string) (*domain.NPC, error) {
	return s.cache.NPCByID(ctx, id)
}

// CreateNPC stores a new actor record.
func (s *CatalogService) CreateNPC(ctx context.Context, npc *domain.NPC) error {
	if npc.ID == "" || npc.Wealth < 1 || npc.Wealth > 5 || npc.Reliability < 0 || npc.Reliability > 100 {
		return domain.ErrInvalidInput
	}
	if err := s.npcs.Create(ctx, s.db, npc); err != nil {
		return err
	}
	s.afterNPCWrite(ctx, npc.ID, domain.ActionCreated)
	return nil
}

// UpdateNPC replaces an existing actor record.
func (s *CatalogService) UpdateNPC(ctx context.Context, npc *domain.NPC) error {
	if npc.Wealth < 1 || npc.Wealth > 5 || npc.Reliability < 0 || npc.Reliability > 100 {
		return domain.ErrInvalidInput
	}
	if err := s.npcs.Update(ctx, s.db, npc); err != nil {
		return err
	}
	s.afterNPCWrite(ctx, npc.ID, domain.ActionUpdated)
	return nil
}

// DeleteNPC removes an actor. Cards referencing it become orphans and get
// dropped (and reported) at the next index rebuild.
func (s *CatalogService) DeleteNPC(ctx context.Context, id string) error {
	if err := s.npcs.Delete(ctx, s.db, id); err != nil {
		return err
	}
	s.afterNPCWrite(ctx, id, domain.ActionDeleted)
	return nil
}

// GetConfig returns the game config.
func (s *CatalogService) GetConfig(ctx context.Context) (*domain.GameConfig, error) {
	return s.cache.Config(ctx)
}

// UpdateConfig replaces the game config.
func (s *CatalogService) UpdateConfig(ctx context.Context, cfg *domain.GameConfig) error {
	if err := s.config.Upsert(ctx, s.db, cfg); err != nil {
		return err
	}
	s.cache.InvalidateConfig(ctx)
	s.publish(ctx, domain.CatalogEvent{
		Entity:     domain.EntityConfig,
		EntityID:   cfg.Version,
		Action:     domain.ActionUpdated,
		OccurredAt: time.Now().UTC(),
	})
	return nil
}

func (s *CatalogService) validateCard(ctx context.Context, card *domain.Card) error {
	if err := card.Validate(); err != nil {
		return err
	}
	if _, err := s.cache.NPCByID(ctx, card.NPCID); err != nil {
		if errors.Is(err, domain.ErrNPCNotFound) {
			return domain.ErrUnknownNPC
		}
		return err
	}
	return nil
}

func (s *CatalogService) afterCatalogWrite(ctx context.Context, entity domain.CatalogEntity, id string, action domain.CatalogAction) {
	s.cache.InvalidateCard(ctx, id)
	if report, err := s.RebuildIndex(ctx); err != nil {
		s.logger.Error("Index rebuild after catalog write failed", zap.Error(err))
	} else if report.Dropped > 0 {
		s.logger.Warn("Index rebuild dropped cards", zap.Int("dropped", report.Dropped))
	}
	s.publish(ctx, domain.CatalogEvent{
		Entity:     entity,
		EntityID:   id,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	})
}

func (s *CatalogService) afterNPCWrite(ctx context.Context, id string, action domain.CatalogAction) {
	s.cache.InvalidateNPC(ctx, id)
	if _, err := s.RebuildIndex(ctx); err != nil {
		s.logger.Error("Index rebuild after npc write failed", zap.Error(err))
	}
	s.publish(ctx, domain.CatalogEvent{
		Entity:     domain.EntityNPC,
		EntityID:   id,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	})
}

// publish is best effort: a lost event only delays other instances until
// their TTLs expire.
func (s *CatalogService) publish(ctx context.Context, event domain.CatalogEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishCatalogChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish catalog event",
			zap.String("entity", string(event.Entity)),
			zap.String("entityID", event.EntityID),
			zap.Error(err))
	}
}
