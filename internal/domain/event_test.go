package domain

import (
	"encoding/json"
	"testing"
)

func TestChainID(t *testing.T) {
	tests := []struct {
		name      string
		networkID string
		wantID    int64
		wantOK    bool
	}{
		{"mainnet", "eip155:1", 1, true},
		{"testnet", "eip155:11155111", 11155111, true},
		{"no separator", "eip155", 0, false},
		{"empty second segment", "eip155:", 0, false},
		{"non-numeric second segment", "cosmos:cosmoshub-4", 0, false},
		{"empty", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, ok := ChainID(tt.networkID)
			if ok != tt.wantOK {
				t.Fatalf("ChainID(%q) ok = %v, want %v", tt.networkID, ok, tt.wantOK)
			}
			if id != tt.wantID {
				t.Errorf("ChainID(%q) = %d, want %d", tt.networkID, id, tt.wantID)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	t.Run("minted", func(t *testing.T) {
		raw := json.RawMessage(`{"owner":"0xabc","sld":"example","tld":"core"}`)
		p, err := DecodePayload(EventNameTokenMinted, raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		minted, ok := p.(*MintedPayload)
		if !ok {
			t.Fatalf("expected *MintedPayload, got %T", p)
		}
		if minted.Owner != "0xabc" || minted.SLD != "example" || minted.TLD != "core" {
			t.Errorf("unexpected decoded payload: %+v", minted)
		}
	})

	t.Run("transferred", func(t *testing.T) {
		raw := json.RawMessage(`{"from":"0xaaa","to":"0xbbb"}`)
		p, err := DecodePayload(EventNameTokenTransferred, raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		transferred, ok := p.(*TransferredPayload)
		if !ok {
			t.Fatalf("expected *TransferredPayload, got %T", p)
		}
		if transferred.From != "0xaaa" || transferred.To != "0xbbb" {
			t.Errorf("unexpected decoded payload: %+v", transferred)
		}
	})

	t.Run("lock status", func(t *testing.T) {
		raw := json.RawMessage(`{"isTransferLocked":true}`)
		p, err := DecodePayload(EventNameTokenLockStatusChanged, raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		lock, ok := p.(*LockStatusChangedPayload)
		if !ok {
			t.Fatalf("expected *LockStatusChangedPayload, got %T", p)
		}
		if !lock.Locked {
			t.Error("expected Locked to be true")
		}
	})

	t.Run("unknown type falls back", func(t *testing.T) {
		raw := json.RawMessage(`{"anything":1}`)
		p, err := DecodePayload(EventType("NAME_TOKEN_SOMETHING_NEW"), raw)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		unknown, ok := p.(*UnknownPayload)
		if !ok {
			t.Fatalf("expected *UnknownPayload, got %T", p)
		}
		if string(unknown.Raw) != string(raw) {
			t.Error("expected raw payload to be preserved")
		}
	})

	t.Run("empty payload yields zero value", func(t *testing.T) {
		p, err := DecodePayload(EventNameTokenBurned, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if _, ok := p.(*BurnedPayload); !ok {
			t.Fatalf("expected *BurnedPayload, got %T", p)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		if _, err := DecodePayload(EventNameTokenMinted, json.RawMessage(`{`)); err == nil {
			t.Fatal("expected an error, got nil")
		}
	})
}

func TestEventTypeIsKnown(t *testing.T) {
	for _, known := range KnownEventTypes {
		if !known.IsKnown() {
			t.Errorf("expected %s to be known", known)
		}
	}
	if EventType("NAME_TOKEN_UNHEARD_OF").IsKnown() {
		t.Error("expected unrecognized type to be unknown")
	}
}
