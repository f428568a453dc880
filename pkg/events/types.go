package events

import (
	"encoding/json"

	"github.com/web3ekko/ekko-log-indexer/pkg/near"
)

// Stream identifiers. Testnet streams carry an extra network suffix, see
// StreamName.
const (
	TextLogEventID     = "log_text"
	StandardEventLogID = "log_nep297"
)

// StreamName returns the stream an event kind is published to, with the
// optional network suffix appended as "<id>_<suffix>".
func StreamName(id, suffix string) string {
	if suffix == "" {
		return id
	}
	return id + "_" + suffix
}

// Envelope holds the provenance shared by every event derived from one log
// line. Both records built from the same line copy the same Envelope value.
type Envelope struct {
	BlockHeight           uint64          `json:"block_height"`
	BlockTimestampNanosec uint64          `json:"block_timestamp_nanosec"`
	TransactionID         near.CryptoHash `json:"transaction_id"`
	ReceiptID             near.CryptoHash `json:"receipt_id"`
	AccountID             near.AccountID  `json:"account_id"`
	PredecessorID         near.AccountID  `json:"predecessor_id"`
}

// TextLogEvent is a raw log line emitted by a contract, unmodified.
type TextLogEvent struct {
	Envelope
	LogText string `json:"log_text"`
}

// StandardEventLog is a log line that carried a structured NEP-297 event.
// EventData is nil when the event had no data field or it was null.
type StandardEventLog struct {
	Envelope
	EventStandard string          `json:"event_standard"`
	EventVersion  string          `json:"event_version"`
	EventEvent    string          `json:"event_event"`
	EventData     json.RawMessage `json:"event_data,omitempty"`
}

// NewStandardEventLog builds the structured sibling of a text event.
func NewStandardEventLog(env Envelope, data *EventLogData) StandardEventLog {
	return StandardEventLog{
		Envelope:      env,
		EventStandard: data.Standard,
		EventVersion:  data.Version,
		EventEvent:    data.Event,
		EventData:     data.Data,
	}
}
