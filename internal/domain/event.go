package domain

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// EventType identifies one of the tokenization event variants emitted by the
// upstream protocol.
type EventType string

const (
	EventNameTokenMinted            EventType = "NAME_TOKEN_MINTED"
	EventNameTokenTransferred       EventType = "NAME_TOKEN_TRANSFERRED"
	EventNameTokenRenewed           EventType = "NAME_TOKEN_RENEWED"
	EventNameTokenBurned            EventType = "NAME_TOKEN_BURNED"
	EventNameTokenLockStatusChanged EventType = "NAME_TOKEN_LOCK_STATUS_CHANGED"
	EventNameTokenMetadataUpdated   EventType = "NAME_TOKEN_METADATA_UPDATED"
)

// KnownEventTypes lists every event type this indexer dispatches to a handler.
var KnownEventTypes = []EventType{
	EventNameTokenMinted,
	EventNameTokenTransferred,
	EventNameTokenRenewed,
	EventNameTokenBurned,
	EventNameTokenLockStatusChanged,
	EventNameTokenMetadataUpdated,
}

// IsKnown reports whether t is one of the closed set of dispatchable types.
func (t EventType) IsKnown() bool {
	for _, known := range KnownEventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ProcessingStatus tracks the business-dispatch lifecycle of a stored event.
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusProcessed ProcessingStatus = "processed"
	StatusFailed    ProcessingStatus = "failed"
)

// RawEvent is a tokenization event as delivered by the upstream poll API.
// IDs are source-assigned and non-strictly-increasing across polls; UniqueID
// is the global dedup key.
type RawEvent struct {
	ID            int64           `json:"id"`
	UniqueID      string          `json:"uniqueId"`
	Type          EventType       `json:"type"`
	Name          string          `json:"name"`
	TokenID       string          `json:"tokenId"`
	NetworkID     string          `json:"networkId"`
	Finalized     bool            `json:"finalized"`
	TxHash        string          `json:"txHash"`
	BlockNumber   int64           `json:"blockNumber"`
	LogIndex      int             `json:"logIndex"`
	CorrelationID string          `json:"correlationId,omitempty"`
	RelayID       string          `json:"relayId,omitempty"`
	Payload       json.RawMessage `json:"data,omitempty"`
}

// DecodedPayload decodes the raw payload into its typed variant.
func (e RawEvent) DecodedPayload() (Payload, error) {
	return DecodePayload(e.Type, e.Payload)
}

// StoredRecord is a RawEvent plus the persistence lifecycle fields maintained
// by the event store.
type StoredRecord struct {
	RawEvent
	CreatedAt      time.Time        `json:"created_at"`
	ProcessedAt    *time.Time       `json:"processed_at,omitempty"`
	AcknowledgedAt *time.Time       `json:"acknowledged_at,omitempty"`
	Status         ProcessingStatus `json:"processing_status"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	RetryCount     int              `json:"retry_count"`
}

// Cursor is the singleton ingestion progress pointer.
type Cursor struct {
	LastAcknowledgedID int64     `json:"last_acknowledged_id"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ChainID extracts the numeric chain id from a compound network id such as
// "eip155:1". A network id with no second segment yields ok=false, never an
// error.
func ChainID(networkID string) (id int64, ok bool) {
	_, rest, found := strings.Cut(networkID, ":")
	if !found || rest == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
