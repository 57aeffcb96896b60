package interfaces

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"tavern-server/internal/domain"
)

// DBTX abstracts over *pgxpool.Pool and pgx.Tx so repositories can run inside
// or outside a transaction. Compatible with pgxscan.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CardRepository persists the card catalog.
type CardRepository interface {
	GetAll(ctx context.Context, querier DBTX) ([]*domain.Card, error)
	GetByID(ctx context.Context, querier DBTX, id string) (*domain.Card, error)
	Create(ctx context.Context, querier DBTX, card *domain.Card) error
	Update(ctx context.Context, querier DBTX, card *domain.Card) error
	Delete(ctx context.Context, querier DBTX, id string) error
}

// NPCRepository persists the actor records referenced by cards.
type NPCRepository interface {
	GetAll(ctx context.Context, querier DBTX) ([]*domain.NPC, error)
	GetByID(ctx context.Context, querier DBTX, id string) (*domain.NPC, error)
	Create(ctx context.Context, querier DBTX, npc *domain.NPC) error
	Update(ctx context.Context, querier DBTX, npc *domain.NPC) error
	Delete(ctx context.Context, querier DBTX, id string) error
}

// ConfigRepository persists the single game config document.
// Get returns domain.ErrConfigNotInitialized when no config has been written.
type ConfigRepository interface {
	Get(ctx context.Context, querier DBTX) (*domain.GameConfig, error)
	Upsert(ctx context.Context, querier DBTX, cfg *domain.GameConfig) error
}

// PlayerStateRepository persists per-player game state documents keyed by
// Telegram user id.
type PlayerStateRepository interface {
	Get(ctx context.Context, querier DBTX, playerID int64) (*domain.GameState, error)
	Upsert(ctx context.Context, querier DBTX, state *domain.GameState) error
}

// CatalogEventPublisher announces catalog mutations so every instance can
// invalidate its cache and rebuild its index.
type CatalogEventPublisher interface {
	PublishCatalogChanged(ctx context.Context, event domain.CatalogEvent) error
}
