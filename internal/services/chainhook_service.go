package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chainhook-relay/internal/chainhook"
	"chainhook-relay/internal/metrics"
	"chainhook-relay/internal/storage"
)

// IngestResult summarizes one processed delivery
type IngestResult struct {
	EventsIngested   int
	Rollbacks        int
	RolledBackTagged int
	ProcessedAt      time.Time
}

// ChainhookService turns chainhook deliveries into stored events
type ChainhookService struct {
	repository storage.Repository
	now        func() time.Time
}

// NewChainhookService creates a new ChainhookService instance
func NewChainhookService(repository storage.Repository) *ChainhookService {
	return &ChainhookService{
		repository: repository,
		now:        time.Now,
	}
}

// Process extracts contract calls from the apply set, tags events of
// rolled-back transactions and appends the new events in one repository
// call. Nothing is written when the payload fails validation or the store
// rejects the delivery.
func (s *ChainhookService) Process(ctx context.Context, payload *chainhook.Payload) (*IngestResult, error) {
	processedAt := s.now().UTC()

	extraction, err := chainhook.Extract(payload, processedAt)
	if err != nil {
		return nil, err
	}

	// Tags land before the append so a transaction that is rolled back and
	// re-applied in the same delivery keeps its fresh event applied.
	tagged, err := s.repository.ApplyDelivery(ctx, extraction.RolledBackTxIDs, extraction.Events, processedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to store delivery: %w", err)
	}

	result := &IngestResult{
		EventsIngested:   len(extraction.Events),
		Rollbacks:        extraction.Rollbacks,
		RolledBackTagged: tagged,
		ProcessedAt:      processedAt,
	}

	if extraction.Rollbacks > 0 {
		metrics.RollbackTransactions.Add(float64(extraction.Rollbacks))
		metrics.RollbackEventsTagged.Add(float64(tagged))
		slog.Warn("Rollback detected",
			"transactions", extraction.Rollbacks,
			"events_tagged", tagged,
		)
	}

	if extraction.SkippedOperations > 0 {
		metrics.OperationsSkipped.Add(float64(extraction.SkippedOperations))
	}
	metrics.EventsIngested.Add(float64(result.EventsIngested))
	for _, event := range extraction.Events {
		slog.Info("Marketplace event stored",
			"tx_hash", event.TxID,
			"contract_id", event.Contract,
			"function", event.Function,
		)
	}

	slog.Debug("Chainhook delivery processed",
		"apply", len(payload.Apply),
		"events_count", result.EventsIngested,
		"skipped_operations", extraction.SkippedOperations,
		"rollbacks", result.Rollbacks,
	)

	return result, nil
}

// Name returns the service name
func (s *ChainhookService) Name() string {
	return "ChainhookService"
}
