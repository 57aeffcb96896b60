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

const (
	getPlayerStateQuery    = `SELECT state FROM player_states WHERE player_id = $1`
	upsertPlayerStateQuery = `
        INSERT INTO player_states (player_id, state)
        VALUES ($1, $2)
        ON CONFLICT (player_id) DO UPDATE SET
            state = EXCLUDED.state,
            updated_at = NOW()
    `
)

var _ interfaces.PlayerStateRepository = (*pgPlayerStateRepository)(nil)

// pgPlayerStateRepository stores the full GameState as a JSONB document keyed
// by the player's Telegram id. Last write wins; there is no multi-device
// concurrency control, which is an accepted limitation.
type pgPlayerStateRepository struct {
	logger *zap.Logger
}

// NewPgPlayerStateRepository creates a Postgres-backed PlayerStateRepository.
func NewPgPlayerStateRepository(logger *zap.Logger) interfaces.PlayerStateRepository {
	return &pgPlayerStateRepository{logger: logger.Named("PlayerStateRepo")}
}

func (r *pgPlayerStateRepository) Get(ctx context.Context, querier interfaces.DBTX, playerID int64) (*domain.GameState, error) {
	var raw json.RawMessage
	if err := pgxscan.Get(ctx, querier, &raw, getPlayerStateQuery, playerID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrStateNotFound
		}
		r.logger.Error("Error selecting player state", zap.Int64("playerID", playerID), zap.Error(err))
		return nil, fmt.Errorf("failed to select state for player %d: %w", playerID, err)
	}
	var state domain.GameState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for player %d: %w", playerID, err)
	}
	if state.Relationships == nil {
		state.Relationships = make(map[string]int)
	}
	return &state, nil
}

func (r *pgPlayerStateRepository) Upsert(ctx context.Context, querier interfaces.DBTX, state *domain.GameState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state for player %d: %w", state.PlayerID, err)
	}
	if _, err := querier.Exec(ctx, upsertPlayerStateQuery, state.PlayerID, raw); err != nil {
		r.logger.Error("Error upserting player state", zap.Int64("playerID", state.PlayerID), zap.Error(err))
		return fmt.Errorf("failed to upsert state for player %d: %w", state.PlayerID, err)
	}
	return nil
}
