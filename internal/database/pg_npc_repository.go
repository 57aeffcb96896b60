package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"tavern-server/internal/domain"
	"tavern-server/internal/interfaces"
)

const (
	getAllNPCsQuery = `SELECT id, name, class, wealth, reliability, portraits, created_at, updated_at FROM npcs ORDER BY id`
	getNPCByIDQuery = `SELECT id, name, class, wealth, reliability, portraits, created_at, updated_at FROM npcs WHERE id = $1`
	insertNPCQuery  = `INSERT INTO npcs (id, name, class, wealth, reliability, portraits) VALUES ($1, $2, $3, $4, $5, $6)`
	updateNPCQuery  = `UPDATE npcs SET name = $2, class = $3, wealth = $4, reliability = $5, portraits = $6, updated_at = NOW() WHERE id = $1`
	deleteNPCQuery  = `DELETE FROM npcs WHERE id = $1`
)

type npcRow struct {
	ID          string          `db:"id"`
	Name        string          `db:"name"`
	Class       string          `db:"class"`
	Wealth      int             `db:"wealth"`
	Reliability int             `db:"reliability"`
	Portraits   json.RawMessage `db:"portraits"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

var _ interfaces.NPCRepository = (*pgNPCRepository)(nil)

type pgNPCRepository struct {
	logger *zap.Logger
}

// NewPgNPCRepository creates a Postgres-backed NPCRepository.
func NewPgNPCRepository(logger *zap.Logger) interfaces.NPCRepository {
	return &pgNPCRepository{logger: logger.Named("NPCRepo")}
}

func (r *pgNPCRepository) GetAll(ctx context.Context, querier interfaces.DBTX) ([]*domain.NPC, error) {
	var rows []npcRow
	if err := pgxscan.Select(ctx, querier, &rows, getAllNPCsQuery); err != nil {
		r.logger.Error("Error selecting all npcs", zap.Error(err))
		return nil, fmt.Errorf("failed to select all npcs: %w", err)
	}
	npcs := make([]*domain.NPC, 0, len(rows))
	for i := range rows {
		npc, err := rows[i].toDomain()
		if err != nil {
			r.logger.Error("Skipping npc with corrupt portraits payload", zap.String("npcID", rows[i].ID), zap.Error(err))
			continue
		}
		npcs = append(npcs, npc)
	}
	return npcs, nil
}

func (r *pgNPCRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id string) (*domain.NPC, error) {
	var row npcRow
	if err := pgxscan.Get(ctx, querier, &row, getNPCByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNPCNotFound
		}
		r.logger.Error("Error selecting npc by id", zap.String("npcID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to select npc %s: %w", id, err)
	}
	return row.toDomain()
}

func (r *pgNPCRepository) Create(ctx context.Context, querier interfaces.DBTX, npc *domain.NPC) error {
	portraits, err := json.Marshal(npc.Portraits)
	if err != nil {
		return fmt.Errorf("failed to marshal portraits for npc %s: %w", npc.ID, err)
	}
	if _, err := querier.Exec(ctx, insertNPCQuery, npc.ID, npc.Name, npc.Class, npc.Wealth, npc.Reliability, portraits); err != nil {
		r.logger.Error("Error inserting npc", zap.String("npcID", npc.ID), zap.Error(err))
		return fmt.Errorf("failed to insert npc %s: %w", npc.ID, err)
	}
	return nil
}

func (r *pgNPCRepository) Update(ctx context.Context, querier interfaces.DBTX, npc *domain.NPC) error {
	portraits, err := json.Marshal(npc.Portraits)
	if err != nil {
		return fmt.Errorf("failed to marshal portraits for npc %s: %w", npc.ID, err)
	}
	tag, err := querier.Exec(ctx, updateNPCQuery, npc.ID, npc.Name, npc.Class, npc.Wealth, npc.Reliability, portraits)
	if err != nil {
		r.logger.Error("Error updating npc", zap.String("npcID", npc.ID), zap.Error(err))
		return fmt.Errorf("failed to update npc %s: %w", npc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNPCNotFound
	}
	return nil
}

func (r *pgNPCRepository) Delete(ctx context.Context, querier interfaces.DBTX, id string) error {
	tag, err := querier.Exec(ctx, deleteNPCQuery, id)
	if err != nil {
		r.logger.Error("Error deleting npc", zap.String("npcID", id), zap.Error(err))
		return fmt.Errorf("failed to delete npc %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNPCNotFound
	}
	return nil
}

func (row *npcRow) toDomain() (*domain.NPC, error) {
	npc := &domain.NPC{
		ID:          row.ID,
		Name:        row.Name,
		Class:       row.Class,
		Wealth:      row.Wealth,
		Reliability: row.Reliability,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if len(row.Portraits) > 0 && string(row.Portraits) != "null" {
		if err := json.Unmarshal(row.Portraits, &npc.Portraits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal portraits for npc %s: %w", row.ID, err)
		}
	}
	return npc, nil
}
