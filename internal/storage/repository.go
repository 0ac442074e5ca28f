package storage

import (
	"context"
	"errors"
	"time"

	"chainhook-relay/internal/models"
)

// ErrNotFound is returned when no retained event matches a lookup
var ErrNotFound = errors.New("event not found")

// Repository defines the interface for all event storage operations
type Repository interface {
	// Chain Events
	// ApplyDelivery tags events of rolledBack transactions and then appends
	// events as one atomic change. It returns the number of events tagged.
	ApplyDelivery(ctx context.Context, rolledBack []string, events []models.ChainEvent, at time.Time) (int, error)
	SaveEvents(ctx context.Context, events []models.ChainEvent) error
	MarkRolledBack(ctx context.Context, txIDs []string, at time.Time) (int, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.ChainEvent, int, error)
	GetEventByTxID(ctx context.Context, txID string) (*models.ChainEvent, error)
	CountEvents(ctx context.Context) (int, error)

	// Health & Maintenance
	Name() string
	Ping(ctx context.Context) error
	Close() error
}
