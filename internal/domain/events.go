package domain

import "time"

// CatalogEntity names the kind of record a catalog mutation touched.
type CatalogEntity string

const (
	EntityCard   CatalogEntity = "card"
	EntityNPC    CatalogEntity = "npc"
	EntityConfig CatalogEntity = "config"
)

// CatalogAction names what the admin tool did to the record.
type CatalogAction string

const (
	ActionCreated CatalogAction = "created"
	ActionUpdated CatalogAction = "updated"
	ActionDeleted CatalogAction = "deleted"
)

// CatalogEvent is published after every successful catalog write so running
// instances invalidate their caches and rebuild their indexes before the next
// selection call.
type CatalogEvent struct {
	Entity     CatalogEntity `json:"entity"`
	EntityID   string        `json:"entity_id"`
	Action     CatalogAction `json:"action"`
	OccurredAt time.Time     `json:"occurred_at"`
}
