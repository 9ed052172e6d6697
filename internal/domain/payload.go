package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Payload is the closed sum type over the per-event-type payload variants.
// Unrecognized types decode to UnknownPayload so that new upstream variants
// degrade gracefully instead of failing ingestion.
type Payload interface {
	payloadType() EventType
}

// MintedPayload carries the initial ownership details of a newly tokenized name.
type MintedPayload struct {
	Owner     string    `json:"owner"`
	SLD       string    `json:"sld"`
	TLD       string    `json:"tld"`
	ExpiresAt time.Time `json:"expirationDate"`
}

// TransferredPayload records an ownership change.
type TransferredPayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RenewedPayload records an expiry extension.
type RenewedPayload struct {
	ExpiresAt time.Time `json:"expirationDate"`
}

// BurnedPayload records the terminal removal of a token.
type BurnedPayload struct {
	Owner string `json:"owner"`
}

// LockStatusChangedPayload records a transfer-lock toggle.
type LockStatusChangedPayload struct {
	Locked bool `json:"isTransferLocked"`
}

// MetadataUpdatedPayload records a token URI change.
type MetadataUpdatedPayload struct {
	URI string `json:"tokenUri"`
}

// UnknownPayload preserves the raw body of an unrecognized event type.
type UnknownPayload struct {
	Type EventType
	Raw  json.RawMessage
}

func (MintedPayload) payloadType() EventType            { return EventNameTokenMinted }
func (TransferredPayload) payloadType() EventType       { return EventNameTokenTransferred }
func (RenewedPayload) payloadType() EventType           { return EventNameTokenRenewed }
func (BurnedPayload) payloadType() EventType            { return EventNameTokenBurned }
func (LockStatusChangedPayload) payloadType() EventType { return EventNameTokenLockStatusChanged }
func (MetadataUpdatedPayload) payloadType() EventType   { return EventNameTokenMetadataUpdated }
func (p UnknownPayload) payloadType() EventType         { return p.Type }

// DecodePayload unmarshals raw into the variant matching t. A nil raw body
// yields the zero value of the variant.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	decode := func(v Payload) (Payload, error) {
		if len(raw) == 0 {
			return v, nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", t, err)
		}
		return v, nil
	}

	switch t {
	case EventNameTokenMinted:
		return decode(&MintedPayload{})
	case EventNameTokenTransferred:
		return decode(&TransferredPayload{})
	case EventNameTokenRenewed:
		return decode(&RenewedPayload{})
	case EventNameTokenBurned:
		return decode(&BurnedPayload{})
	case EventNameTokenLockStatusChanged:
		return decode(&LockStatusChangedPayload{})
	case EventNameTokenMetadataUpdated:
		return decode(&MetadataUpdatedPayload{})
	default:
		return &UnknownPayload{Type: t, Raw: raw}, nil
	}
}
