package near_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

const zeroHash = "11111111111111111111111111111111"

func TestParseAccountID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{name: "named account", input: "alice.near"},
		{name: "sub account", input: "sbt.honeybot.near"},
		{name: "separators", input: "a-b_c.near"},
		{name: "implicit account", input: "98793cd91a3f870fb126f66285808c7e094afcfc4eda8a970f6648cdf0dbd6de"},
		{name: "eth implicit account", input: "0x06012c8cf97bead5deae237070f9587f8e7a266d"},
		{name: "too short", input: "a", wantErr: true},
		{name: "too long", input: "a123456789012345678901234567890123456789012345678901234567890123456789", wantErr: true},
		{name: "uppercase", input: "Alice.near", wantErr: true},
		{name: "leading dot", input: ".near", wantErr: true},
		{name: "double separator", input: "a--b.near", wantErr: true},
		{name: "trailing separator", input: "alice_.near", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := near.ParseAccountID(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, near.ErrInvalidAccountID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.input, id.String())
		})
	}
}

func TestCryptoHash_TextRoundTrip(t *testing.T) {
	h := near.MustParseCryptoHash("9yN1e3Gq2Hbxsx3L7sCzRWnhZyvEs4ktDG1Gxi9ggE5m")
	text, err := h.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "9yN1e3Gq2Hbxsx3L7sCzRWnhZyvEs4ktDG1Gxi9ggE5m", string(text))

	zero := near.MustParseCryptoHash(zeroHash)
	assert.True(t, zero.IsZero())
}

func TestParseCryptoHash_Invalid(t *testing.T) {
	_, err := near.ParseCryptoHash("0OIl")
	assert.ErrorIs(t, err, near.ErrInvalidHash)

	_, err = near.ParseCryptoHash("2g")
	assert.ErrorIs(t, err, near.ErrInvalidHash, "short hashes are rejected")
}

func TestExecutionStatus_Unmarshal(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantKind    near.StatusKind
		wantSuccess bool
		wantErr     bool
	}{
		{name: "success value", input: `{"SuccessValue":"eyJ0b3RhbCI6MX0="}`, wantKind: near.StatusSuccessValue, wantSuccess: true},
		{name: "success receipt", input: `{"SuccessReceiptId":"` + zeroHash + `"}`, wantKind: near.StatusSuccessReceiptID, wantSuccess: true},
		{name: "failure", input: `{"Failure":{"ActionError":{"index":0}}}`, wantKind: near.StatusFailure},
		{name: "unknown string", input: `"Unknown"`, wantKind: near.StatusUnknown},
		{name: "unexpected string", input: `"Pending"`, wantErr: true},
		{name: "unexpected variant", input: `{"Pending":null}`, wantErr: true},
		{name: "two variants", input: `{"SuccessValue":"","Failure":{}}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var status near.ExecutionStatus
			err := json.Unmarshal([]byte(tt.input), &status)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, status.Kind)
			assert.Equal(t, tt.wantSuccess, status.IsSuccess())
		})
	}
}

func TestDecodeStreamerMessage(t *testing.T) {
	payload := `{
		"block": {"author": "node0", "header": {"height": 124099141, "hash": "` + zeroHash + `", "prev_hash": "` + zeroHash + `", "timestamp": 1722000000000000000, "timestamp_nanosec": "1722000000000000000"}},
		"shards": [{
			"shard_id": 3,
			"receipt_execution_outcomes": [{
				"execution_outcome": {"id": "` + zeroHash + `", "outcome": {"logs": ["hello"], "receipt_ids": [], "executor_id": "a.near", "status": {"SuccessValue": ""}}},
				"receipt": {"receipt_id": "` + zeroHash + `", "predecessor_id": "b.near", "receiver_id": "a.near"},
				"tx_hash": "` + zeroHash + `"
			}]
		}]
	}`

	msg, err := near.DecodeStreamerMessage([]byte(payload))
	require.NoError(t, err)
	assert.Equal(t, uint64(124099141), msg.Block.Header.Height)
	assert.Equal(t, uint64(1722000000000000000), msg.Block.Header.TimestampNanosec)
	require.Len(t, msg.Shards, 1)
	require.Len(t, msg.Shards[0].ReceiptExecutionOutcomes, 1)

	reo := msg.Shards[0].ReceiptExecutionOutcomes[0]
	assert.Equal(t, []string{"hello"}, reo.ExecutionOutcome.Outcome.Logs)
	assert.Equal(t, near.AccountID("a.near"), reo.Receipt.ReceiverID)
	assert.Equal(t, near.AccountID("b.near"), reo.Receipt.PredecessorID)
	require.NotNil(t, reo.TxHash)
	assert.True(t, reo.ExecutionOutcome.Outcome.Status.IsSuccess())
}

func TestDecodeStreamerMessage_MalformedAccount(t *testing.T) {
	payload := `{
		"block": {"header": {"height": 1, "hash": "` + zeroHash + `", "prev_hash": "` + zeroHash + `", "timestamp_nanosec": "1"}},
		"shards": [{"shard_id": 0, "receipt_execution_outcomes": [{
			"execution_outcome": {"id": "` + zeroHash + `", "outcome": {"logs": [], "receipt_ids": [], "executor_id": "a.near", "status": "Unknown"}},
			"receipt": {"receipt_id": "` + zeroHash + `", "predecessor_id": "NOT VALID", "receiver_id": "a.near"},
			"tx_hash": null
		}]}]
	}`

	_, err := near.DecodeStreamerMessage([]byte(payload))
	assert.ErrorIs(t, err, near.ErrInvalidAccountID)
}
