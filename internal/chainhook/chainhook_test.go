package chainhook

import (
	"errors"
	"testing"
	"time"

	"chainhook-relay/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePayload = `{
	"apply": [
		{
			"transaction_identifier": {"hash": "0xAA"},
			"operations": [
				{"operation": "contract_call", "contract_identifier": "SP000.stack-mart", "function_name": "create-listing", "function_args": [{"repr": "u100"}, "\"nft\""]},
				{"operation": "stx_transfer", "amount": "10"},
				{"operation": "contract_call", "contract_identifier": "SP000.stack-mart", "function_name": "buy-listing"}
			]
		},
		{
			"transaction_identifier": {"hash": "0xBB"},
			"operations": [
				{"operation": "contract_call", "contract_identifier": "SP000.escrow", "function_name": "confirm-delivery", "function_args": []}
			]
		}
	],
	"rollback": [
		{"transaction_identifier": {"hash": "0x99"}, "operations": []},
		{"transaction_identifier": {}}
	]
}`

func TestDecodeTaggedOperations(t *testing.T) {
	payload, err := Decode([]byte(samplePayload))
	require.NoError(t, err)
	require.Len(t, payload.Apply, 2)

	ops := payload.Apply[0].Operations
	require.Len(t, ops, 3)

	call, ok := ops[0].Body.(*ContractCall)
	require.True(t, ok)
	assert.Equal(t, "SP000.stack-mart", call.ContractIdentifier)
	assert.Equal(t, "create-listing", call.FunctionName)
	assert.Len(t, call.FunctionArgs, 2)
	assert.JSONEq(t, `{"repr":"u100"}`, string(call.FunctionArgs[0]))

	unknown, ok := ops[1].Body.(*UnknownOperation)
	require.True(t, ok)
	assert.Equal(t, "stx_transfer", unknown.Kind())
}

func TestDecodeRejectsInvalidJSON(t *testing.T) {
	_, err := Decode([]byte(`{"apply": [`))
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = Decode([]byte(`{"apply": {"not": "a list"}}`))
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestExtract(t *testing.T) {
	payload, err := Decode([]byte(samplePayload))
	require.NoError(t, err)

	receivedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600))
	result, err := Extract(payload, receivedAt)
	require.NoError(t, err)

	require.Len(t, result.Events, 3)
	assert.Equal(t, 1, result.SkippedOperations)
	assert.Equal(t, 2, result.Rollbacks)
	assert.Equal(t, []string{"0x99"}, result.RolledBackTxIDs)

	// Order follows the payload
	assert.Equal(t, "create-listing", result.Events[0].Function)
	assert.Equal(t, "buy-listing", result.Events[1].Function)
	assert.Equal(t, "confirm-delivery", result.Events[2].Function)
	assert.Equal(t, "0xBB", result.Events[2].TxID)

	for _, event := range result.Events {
		assert.NotEmpty(t, event.ID)
		assert.Equal(t, models.StatusApplied, event.Status)
		assert.Equal(t, time.UTC, event.Timestamp.Location())
		assert.True(t, event.Timestamp.Equal(receivedAt))
		assert.NotNil(t, event.Args)
	}
	assert.NotEqual(t, result.Events[0].ID, result.Events[1].ID)
}

func TestExtractMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing hash", `{"apply":[{"transaction_identifier":{},"operations":[]}]}`},
		{"missing operations", `{"apply":[{"transaction_identifier":{"hash":"0x1"}}]}`},
		{"null operations", `{"apply":[{"transaction_identifier":{"hash":"0x1"},"operations":null}]}`},
		{"call without function", `{"apply":[{"transaction_identifier":{"hash":"0x1"},"operations":[{"operation":"contract_call","contract_identifier":"SP000.stack-mart"}]}]}`},
		{"bad call after good one", `{"apply":[
			{"transaction_identifier":{"hash":"0x1"},"operations":[{"operation":"contract_call","contract_identifier":"A","function_name":"f"}]},
			{"transaction_identifier":{"hash":""},"operations":[]}
		]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := Decode([]byte(tt.body))
			require.NoError(t, err)

			result, err := Extract(payload, time.Now())
			assert.True(t, errors.Is(err, ErrMalformedPayload), "got %v", err)
			assert.Nil(t, result)
		})
	}
}

func TestExtractEmptyPayload(t *testing.T) {
	payload, err := Decode([]byte(`{}`))
	require.NoError(t, err)

	result, err := Extract(payload, time.Now())
	require.NoError(t, err)
	assert.Empty(t, result.Events)
	assert.Zero(t, result.Rollbacks)

	_, err = Extract(nil, time.Now())
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestVerifier(t *testing.T) {
	body := []byte(`{"apply":[],"rollback":[]}`)
	verifier := NewVerifier("s3cret")
	require.True(t, verifier.Enabled())

	good := verifier.Sign(body)
	assert.Len(t, good, 64)
	assert.True(t, verifier.Verify(body, good))
	assert.True(t, verifier.Verify(body, " "+good+"\n"), "surrounding whitespace is tolerated")

	assert.False(t, verifier.Verify(body, ""), "missing signature")
	assert.False(t, verifier.Verify(body, "zz-not-hex"))
	assert.False(t, verifier.Verify(body, NewVerifier("other").Sign(body)), "wrong secret")
	assert.False(t, verifier.Verify([]byte(`{"apply": [],"rollback":[]}`), good), "signature covers exact bytes")
	assert.False(t, verifier.Verify(body, good[:32]), "truncated signature")
}

func TestVerifierDisabled(t *testing.T) {
	verifier := NewVerifier("")
	assert.False(t, verifier.Enabled())
	assert.True(t, verifier.Verify([]byte("anything"), ""))
}
