package chainhook

import (
	"encoding/json"
	"fmt"
)

// Operation kinds understood by the extractor
const (
	KindContractCall = "contract_call"
)

// Payload is a single chainhook delivery
type Payload struct {
	Apply    []Transaction `json:"apply"`
	Rollback []Transaction `json:"rollback"`
}

// Transaction is one applied or rolled-back transaction
type Transaction struct {
	TransactionIdentifier TransactionIdentifier `json:"transaction_identifier"`
	Operations            []Operation           `json:"operations"`
}

// TransactionIdentifier carries the transaction hash
type TransactionIdentifier struct {
	Hash string `json:"hash"`
}

// OperationBody is implemented by every decoded operation variant
type OperationBody interface {
	Kind() string
}

// ContractCall is an on-chain function invocation targeting a contract
type ContractCall struct {
	ContractIdentifier string            `json:"contract_identifier"`
	FunctionName       string            `json:"function_name"`
	FunctionArgs       []json.RawMessage `json:"function_args"`
}

func (c *ContractCall) Kind() string { return KindContractCall }

// UnknownOperation holds any operation kind the extractor does not handle
type UnknownOperation struct {
	Name string
}

func (u *UnknownOperation) Kind() string { return u.Name }

// Operation is a tagged union over operation kinds, keyed by the "operation" field
type Operation struct {
	Body OperationBody
}

// UnmarshalJSON dispatches on the operation kind
func (o *Operation) UnmarshalJSON(data []byte) error {
	var head struct {
		Operation string `json:"operation"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return fmt.Errorf("failed to decode operation: %w", err)
	}

	switch head.Operation {
	case KindContractCall:
		var call ContractCall
		if err := json.Unmarshal(data, &call); err != nil {
			return fmt.Errorf("failed to decode contract_call: %w", err)
		}
		o.Body = &call
	default:
		o.Body = &UnknownOperation{Name: head.Operation}
	}
	return nil
}

// Decode parses a raw chainhook body
func Decode(body []byte) (*Payload, error) {
	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return &payload, nil
}
