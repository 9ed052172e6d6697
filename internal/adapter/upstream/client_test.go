package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/user/name-indexer/internal/domain"
)

func TestClient_Poll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/poll" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Api-Key") != "secret" {
			t.Errorf("expected api key header, got %q", r.Header.Get("Api-Key"))
		}
		q := r.URL.Query()
		if q.Get("after") != "100" {
			t.Errorf("expected after=100, got %s", q.Get("after"))
		}
		if q.Get("limit") != "50" {
			t.Errorf("expected limit=50, got %s", q.Get("limit"))
		}
		if q.Get("finalizedOnly") != "true" {
			t.Errorf("expected finalizedOnly=true, got %s", q.Get("finalizedOnly"))
		}
		if types := q["eventType"]; len(types) != 2 {
			t.Errorf("expected 2 eventType params, got %v", types)
		}

		json.NewEncoder(w).Encode(domain.PollResponse{
			Events: []domain.RawEvent{
				{ID: 101, UniqueID: "u-101", Type: domain.EventNameTokenMinted, Name: "example.core"},
			},
			LastID:        101,
			HasMoreEvents: true,
		})
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret"})
	resp, err := client.Poll(context.Background(), domain.PollRequest{
		AfterID:       100,
		Limit:         50,
		EventTypes:    []domain.EventType{domain.EventNameTokenMinted, domain.EventNameTokenBurned},
		FinalizedOnly: true,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].UniqueID != "u-101" {
		t.Errorf("unexpected events: %+v", resp.Events)
	}
	if resp.LastID != 101 || !resp.HasMoreEvents {
		t.Errorf("unexpected response meta: lastID=%d hasMore=%v", resp.LastID, resp.HasMoreEvents)
	}
}

func TestClient_Acknowledge(t *testing.T) {
	var gotBody map[string]int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/poll/ack" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret"})
	if err := client.Acknowledge(context.Background(), 250); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotBody["lastId"] != 250 {
		t.Errorf("expected lastId 250, got %v", gotBody)
	}
}

func TestClient_Reset(t *testing.T) {
	var gotBody map[string]int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/poll/reset" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret"})
	if err := client.Reset(context.Background(), 500); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if gotBody["eventId"] != 500 {
		t.Errorf("expected eventId 500, got %v", gotBody)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(Config{BaseURL: server.URL, APIKey: "secret"})
	if _, err := client.Poll(context.Background(), domain.PollRequest{}); err == nil {
		t.Fatal("expected an error, got nil")
	}
	if err := client.Acknowledge(context.Background(), 1); err == nil {
		t.Fatal("expected an error, got nil")
	}
}
