package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
	"tavern-server/internal/interfaces"
)

// The game config is a single document row; gameConfigKey is its fixed key.
const gameConfigKey = "game_config"

const (
	getConfigQuery    = `SELECT value FROM configs WHERE key = $1`
	upsertConfigQuery = `
        INSERT INTO configs (key, value)
        VALUES ($1, $2)
        ON CONFLICT (key) DO UPDATE SET
            value = EXCLUDED.value,
            updated_at = NOW()
    `
)

var _ interfaces.ConfigRepository = (*pgConfigRepository)(nil)

type pgConfigRepository struct {
	logger *zap.Logger
}

// NewPgConfigRepository creates a Postgres-backed ConfigRepository.
func NewPgConfigRepository(logger *zap.Logger) interfaces.ConfigRepository {
	return &pgConfigRepository{logger: logger.Named("ConfigRepo")}
}

// Get returns the game config, or domain.ErrConfigNotInitialized when it has
// never been written. The caller is expected to seed a default.
func (r *pgConfigRepository) Get(ctx context.Context, querier interfaces.DBTX) (*domain.GameConfig, error) {
	var value json.RawMessage
	if err := pgxscan.Get(ctx, querier, &value, getConfigQuery, gameConfigKey); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Warn("Game config not initialized")
			return nil, domain.ErrConfigNotInitialized
		}
		r.logger.Error("Error selecting game config", zap.Error(err))
		return nil, fmt.Errorf("failed to select game config: %w", err)
	}
	var cfg domain.GameConfig
	if err := json.Unmarshal(value, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal game config: %w", err)
	}
	return &cfg, nil
}

func (r *pgConfigRepository) Upsert(ctx context.Context, querier interfaces.DBTX, cfg *domain.GameConfig) error {
	value, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal game config: %w", err)
	}
	if _, err := querier.Exec(ctx, upsertConfigQuery, gameConfigKey, value); err != nil {
		r.logger.Error("Error upserting game config", zap.Error(err))
		return fmt.Errorf("failed to upsert game config: %w", err)
	}
	r.logger.Info("Game config upserted", zap.String("version", cfg.Version))
	return nil
}
