package near

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// StreamerMessage is one block as delivered by the block feed, in the
// neardata JSON layout. Only the fields the indexer reads are decoded.
type StreamerMessage struct {
	Block  BlockView `json:"block"`
	Shards []Shard   `json:"shards"`
}

// BlockView wraps the block header.
type BlockView struct {
	Author AccountID   `json:"author,omitempty"`
	Header BlockHeader `json:"header"`
}

// BlockHeader carries the block position and time.
type BlockHeader struct {
	Height           uint64     `json:"height"`
	Hash             CryptoHash `json:"hash"`
	PrevHash         CryptoHash `json:"prev_hash"`
	TimestampNanosec uint64     `json:"timestamp_nanosec,string"`
}

// Shard holds the receipts executed on one shard of the block.
type Shard struct {
	ShardID                  uint64                    `json:"shard_id"`
	ReceiptExecutionOutcomes []ReceiptExecutionOutcome `json:"receipt_execution_outcomes"`
}

// ReceiptExecutionOutcome pairs a receipt with the outcome of executing it.
// TxHash is the hash of the transaction the receipt descends from; the feed
// leaves it null when it could not be resolved.
type ReceiptExecutionOutcome struct {
	ExecutionOutcome ExecutionOutcomeWithID `json:"execution_outcome"`
	Receipt          Receipt                `json:"receipt"`
	TxHash           *CryptoHash            `json:"tx_hash"`
}

// ExecutionOutcomeWithID is the outcome together with the receipt id it
// belongs to.
type ExecutionOutcomeWithID struct {
	ID      CryptoHash       `json:"id"`
	Outcome ExecutionOutcome `json:"outcome"`
}

// ExecutionOutcome is the local result of executing one receipt.
type ExecutionOutcome struct {
	Logs       []string        `json:"logs"`
	ReceiptIDs []CryptoHash    `json:"receipt_ids"`
	ExecutorID AccountID       `json:"executor_id"`
	Status     ExecutionStatus `json:"status"`
}

// Receipt is the subset of a receipt needed to build event envelopes.
type Receipt struct {
	ReceiptID     CryptoHash `json:"receipt_id"`
	PredecessorID AccountID  `json:"predecessor_id"`
	ReceiverID    AccountID  `json:"receiver_id"`
}

// StatusKind enumerates execution outcome statuses.
type StatusKind int

const (
	StatusUnknown StatusKind = iota
	StatusFailure
	StatusSuccessValue
	StatusSuccessReceiptID
)

func (k StatusKind) String() string {
	switch k {
	case StatusFailure:
		return "Failure"
	case StatusSuccessValue:
		return "SuccessValue"
	case StatusSuccessReceiptID:
		return "SuccessReceiptId"
	default:
		return "Unknown"
	}
}

// ExecutionStatus is the status of one receipt's own execution. It is encoded
// either as the string "Unknown" or as a single-key object such as
// {"SuccessValue": ""} or {"Failure": {...}}.
type ExecutionStatus struct {
	Kind    StatusKind
	Failure json.RawMessage
}

// IsSuccess reports whether the receipt itself executed successfully. It does
// not look at receipts spawned by this one.
func (s ExecutionStatus) IsSuccess() bool {
	return s.Kind == StatusSuccessValue || s.Kind == StatusSuccessReceiptID
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ExecutionStatus) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var name string
		if err := json.Unmarshal(data, &name); err != nil {
			return err
		}
		if name != "Unknown" {
			return fmt.Errorf("unexpected execution status %q", name)
		}
		*s = ExecutionStatus{Kind: StatusUnknown}
		return nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("failed to decode execution status: %w", err)
	}
	if len(obj) != 1 {
		return fmt.Errorf("execution status must have exactly one variant, got %d", len(obj))
	}
	for key, value := range obj {
		switch key {
		case "SuccessValue":
			*s = ExecutionStatus{Kind: StatusSuccessValue}
		case "SuccessReceiptId":
			*s = ExecutionStatus{Kind: StatusSuccessReceiptID}
		case "Failure":
			*s = ExecutionStatus{Kind: StatusFailure, Failure: value}
		case "Unknown":
			*s = ExecutionStatus{Kind: StatusUnknown}
		default:
			return fmt.Errorf("unexpected execution status %q", key)
		}
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Success payloads are not retained,
// so they encode as empty values.
func (s ExecutionStatus) MarshalJSON() ([]byte, error) {
	switch s.Kind {
	case StatusSuccessValue:
		return []byte(`{"SuccessValue":""}`), nil
	case StatusSuccessReceiptID:
		return json.Marshal(map[string]CryptoHash{"SuccessReceiptId": {}})
	case StatusFailure:
		failure := s.Failure
		if len(failure) == 0 {
			failure = json.RawMessage("{}")
		}
		return json.Marshal(map[string]json.RawMessage{"Failure": failure})
	default:
		return []byte(`"Unknown"`), nil
	}
}

// DecodeStreamerMessage decodes one feed payload. Malformed identifiers in the
// payload are reported as errors.
func DecodeStreamerMessage(data []byte) (*StreamerMessage, error) {
	var msg StreamerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode streamer message: %w", err)
	}
	return &msg, nil
}
