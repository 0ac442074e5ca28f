package chainhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chainhook-relay/internal/models"

	"github.com/google/uuid"
)

// ErrMalformedPayload is returned when a delivery is missing required fields
var ErrMalformedPayload = errors.New("malformed chainhook payload")

// Extraction is the normalized result of one delivery
type Extraction struct {
	Events            []models.ChainEvent
	RolledBackTxIDs   []string
	Rollbacks         int
	SkippedOperations int
}

// Extract converts every contract call in the apply set into a ChainEvent.
// The whole payload is validated before anything is returned, so a caller that
// appends only on success never stores part of a malformed delivery.
func Extract(payload *Payload, receivedAt time.Time) (*Extraction, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}

	result := &Extraction{}
	receivedAt = receivedAt.UTC()

	for i, tx := range payload.Apply {
		hash := tx.TransactionIdentifier.Hash
		if hash == "" {
			return nil, fmt.Errorf("%w: apply[%d] has no transaction hash", ErrMalformedPayload, i)
		}
		if tx.Operations == nil {
			return nil, fmt.Errorf("%w: apply[%d] (%s) has no operations", ErrMalformedPayload, i, hash)
		}

		for j, op := range tx.Operations {
			call, ok := op.Body.(*ContractCall)
			if !ok {
				result.SkippedOperations++
				continue
			}
			if call.ContractIdentifier == "" || call.FunctionName == "" {
				return nil, fmt.Errorf("%w: apply[%d].operations[%d] contract call lacks contract or function",
					ErrMalformedPayload, i, j)
			}

			args := call.FunctionArgs
			if args == nil {
				args = []json.RawMessage{}
			}

			result.Events = append(result.Events, models.ChainEvent{
				ID:        uuid.NewString(),
				TxID:      hash,
				Contract:  call.ContractIdentifier,
				Function:  call.FunctionName,
				Args:      args,
				Timestamp: receivedAt,
				Status:    models.StatusApplied,
			})
		}
	}

	// Rollback entries without a hash still count, there is just nothing to tag.
	result.Rollbacks = len(payload.Rollback)
	for _, tx := range payload.Rollback {
		if hash := tx.TransactionIdentifier.Hash; hash != "" {
			result.RolledBackTxIDs = append(result.RolledBackTxIDs, hash)
		}
	}

	return result, nil
}
