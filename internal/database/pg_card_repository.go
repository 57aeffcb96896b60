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
	getAllCardsQuery = `SELECT id, priority, card_type, npc_id, payload, created_at, updated_at FROM cards ORDER BY id`
	getCardByIDQuery = `SELECT id, priority, card_type, npc_id, payload, created_at, updated_at FROM cards WHERE id = $1`
	insertCardQuery  = `INSERT INTO cards (id, priority, card_type, npc_id, payload) VALUES ($1, $2, $3, $4, $5)`
	updateCardQuery  = `UPDATE cards SET priority = $2, card_type = $3, npc_id = $4, payload = $5, updated_at = NOW() WHERE id = $1`
	deleteCardQuery  = `DELETE FROM cards WHERE id = $1`
)

// cardRow mirrors the cards table. The gameplay payload (text, tags,
// requirements, options) lives in a JSONB column; scalar columns exist for the
// admin panel's filtering and listing.
type cardRow struct {
	ID        string          `db:"id"`
	Priority  int             `db:"priority"`
	CardType  string          `db:"card_type"`
	NPCID     string          `db:"npc_id"`
	Payload   json.RawMessage `db:"payload"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

type cardPayload struct {
	Text     string              `json:"text"`
	Tags     []string            `json:"tags,omitempty"`
	Requires domain.Requirements `json:"requires"`
	Options  []domain.Option     `json:"options"`
}

var _ interfaces.CardRepository = (*pgCardRepository)(nil)

type pgCardRepository struct {
	logger *zap.Logger
}

// NewPgCardRepository creates a Postgres-backed CardRepository.
func NewPgCardRepository(logger *zap.Logger) interfaces.CardRepository {
	return &pgCardRepository{logger: logger.Named("CardRepo")}
}

func (r *pgCardRepository) GetAll(ctx context.Context, querier interfaces.DBTX) ([]*domain.Card, error) {
	var rows []cardRow
	if err := pgxscan.Select(ctx, querier, &rows, getAllCardsQuery); err != nil {
		r.logger.Error("Error selecting all cards", zap.Error(err))
		return nil, fmt.Errorf("failed to select all cards: %w", err)
	}
	cards := make([]*domain.Card, 0, len(rows))
	for i := range rows {
		card, err := rows[i].toDomain()
		if err != nil {
			// A corrupt payload should not take the whole catalog down.
			r.logger.Error("Skipping card with corrupt payload", zap.String("cardID", rows[i].ID), zap.Error(err))
			continue
		}
		cards = append(cards, card)
	}
	return cards, nil
}

func (r *pgCardRepository) GetByID(ctx context.Context, querier interfaces.DBTX, id string) (*domain.Card, error) {
	var row cardRow
	if err := pgxscan.Get(ctx, querier, &row, getCardByIDQuery, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCardNotFound
		}
		r.logger.Error("Error selecting card by id", zap.String("cardID", id), zap.Error(err))
		return nil, fmt.Errorf("failed to select card %s: %w", id, err)
	}
	return row.toDomain()
}

func (r *pgCardRepository) Create(ctx context.Context, querier interfaces.DBTX, card *domain.Card) error {
	payload, err := marshalCardPayload(card)
	if err != nil {
		return err
	}
	if _, err := querier.Exec(ctx, insertCardQuery, card.ID, int(card.Priority), card.Type, card.NPCID, payload); err != nil {
		r.logger.Error("Error inserting card", zap.String("cardID", card.ID), zap.Error(err))
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

func (r *pgCardRepository) Update(ctx context.Context, querier interfaces.DBTX, card *domain.Card) error {
	payload, err := marshalCardPayload(card)
	if err != nil {
		return err
	}
	tag, err := querier.Exec(ctx, updateCardQuery, card.ID, int(card.Priority), card.Type, card.NPCID, payload)
	if err != nil {
		r.logger.Error("Error updating card", zap.String("cardID", card.ID), zap.Error(err))
		return fmt.Errorf("failed to update card %s: %w", card.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCardNotFound
	}
	return nil
}

func (r *pgCardRepository) Delete(ctx context.Context, querier interfaces.DBTX, id string) error {
	tag, err := querier.Exec(ctx, deleteCardQuery, id)
	if err != nil {
		r.logger.Error("Error deleting card", zap.String("cardID", id), zap.Error(err))
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCardNotFound
	}
	return nil
}

func (row *cardRow) toDomain() (*domain.Card, error) {
	var p cardPayload
	if err := json.Unmarshal(row.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal card payload for %s: %w", row.ID, err)
	}
	return &domain.Card{
		ID:        row.ID,
		Priority:  domain.CardPriority(row.Priority),
		Type:      row.CardType,
		Tags:      p.Tags,
		NPCID:     row.NPCID,
		Text:      p.Text,
		Requires:  p.Requires,
		Options:   p.Options,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func marshalCardPayload(card *domain.Card) (json.RawMessage, error) {
	payload, err := json.Marshal(cardPayload{
		Text:     card.Text,
		Tags:     card.Tags,
		Requires: card.Requires,
		Options:  card.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal card payload for %s: %w", card.ID, err)
	}
	return payload, nil
}
