package mocks

import (
	"context"
	"sync"

	"github.com/user/name-indexer/internal/domain"
)

// MockEventRepository is an in-memory implementation of
// domain.EventRepository and domain.CursorRepository for testing. It mirrors
// the store's dedup and cursor-clamping semantics.
type MockEventRepository struct {
	mu      sync.Mutex
	records map[string]*domain.StoredRecord
	order   []string

	Cursor          int64
	ProcessedIDs    []int64
	FailedIDs       []int64
	FailedMessages  []string
	InsertBatchErr  error
	InsertErr       error
	FindErr         error
	MarkErr         error
	CursorReadErr   error
	CursorUpdateErr error
	StatsErr        error
}

func NewMockEventRepository() *MockEventRepository {
	return &MockEventRepository{records: map[string]*domain.StoredRecord{}}
}

func (m *MockEventRepository) Insert(ctx context.Context, event domain.RawEvent) (*domain.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return nil, m.InsertErr
	}
	if existing, ok := m.records[event.UniqueID]; ok {
		existing.Payload = event.Payload
		existing.Finalized = event.Finalized
		copied := *existing
		return &copied, nil
	}
	rec := &domain.StoredRecord{RawEvent: event, Status: domain.StatusPending}
	m.records[event.UniqueID] = rec
	m.order = append(m.order, event.UniqueID)
	copied := *rec
	return &copied, nil
}

func (m *MockEventRepository) InsertBatch(ctx context.Context, events []domain.RawEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertBatchErr != nil {
		return 0, m.InsertBatchErr
	}
	inserted := 0
	for _, event := range events {
		if _, ok := m.records[event.UniqueID]; ok {
			continue
		}
		m.records[event.UniqueID] = &domain.StoredRecord{RawEvent: event, Status: domain.StatusPending}
		m.order = append(m.order, event.UniqueID)
		inserted++
	}
	return inserted, nil
}

func (m *MockEventRepository) Find(ctx context.Context, filter domain.EventFilter) ([]domain.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	var out []domain.StoredRecord
	// Newest first, matching the store's event_id DESC ordering.
	for i := len(m.order) - 1; i >= 0; i-- {
		rec := m.records[m.order[i]]
		if filter.Type != "" && rec.Type != filter.Type {
			continue
		}
		if filter.Name != "" && rec.Name != filter.Name {
			continue
		}
		if filter.TokenID != "" && rec.TokenID != filter.TokenID {
			continue
		}
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		if filter.FromID != 0 && rec.ID < filter.FromID {
			continue
		}
		if filter.ToID != 0 && rec.ID > filter.ToID {
			continue
		}
		out = append(out, *rec)
	}
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockEventRepository) FindByUniqueID(ctx context.Context, uniqueID string) (*domain.StoredRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FindErr != nil {
		return nil, m.FindErr
	}
	rec, ok := m.records[uniqueID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (m *MockEventRepository) MarkProcessed(ctx context.Context, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.ProcessedIDs = append(m.ProcessedIDs, eventID)
	for _, rec := range m.records {
		if rec.ID == eventID {
			rec.Status = domain.StatusProcessed
		}
	}
	return nil
}

func (m *MockEventRepository) MarkFailed(ctx context.Context, eventID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.FailedIDs = append(m.FailedIDs, eventID)
	m.FailedMessages = append(m.FailedMessages, message)
	for _, rec := range m.records {
		if rec.ID == eventID {
			rec.Status = domain.StatusFailed
			rec.ErrorMessage = message
			rec.RetryCount++
		}
	}
	return nil
}

func (m *MockEventRepository) Stats(ctx context.Context) (*domain.EventStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.StatsErr != nil {
		return nil, m.StatsErr
	}
	stats := &domain.EventStats{
		ByType:   map[domain.EventType]int64{},
		ByStatus: map[domain.ProcessingStatus]int64{},
	}
	for _, rec := range m.records {
		stats.Total++
		stats.ByType[rec.Type]++
		stats.ByStatus[rec.Status]++
	}
	return stats, nil
}

func (m *MockEventRepository) LastAcknowledgedID(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CursorReadErr != nil {
		return 0, m.CursorReadErr
	}
	return m.Cursor, nil
}

func (m *MockEventRepository) UpdateLastAcknowledgedID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CursorUpdateErr != nil {
		return m.CursorUpdateErr
	}
	if id > m.Cursor {
		m.Cursor = id
	}
	return nil
}

func (m *MockEventRepository) ResetLastAcknowledgedID(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CursorUpdateErr != nil {
		return m.CursorUpdateErr
	}
	m.Cursor = id
	return nil
}

// StoredCount returns the number of distinct rows held by the mock.
func (m *MockEventRepository) StoredCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// MockUpstreamClient is a scriptable implementation of domain.UpstreamClient.
// Poll responses are consumed in order; once exhausted it serves empty polls.
type MockUpstreamClient struct {
	mu            sync.Mutex
	PollResponses []*domain.PollResponse
	PollErr       error
	AckErr        error
	ResetErr      error

	PollRequests []domain.PollRequest
	AckedIDs     []int64
	ResetIDs     []int64
}

func (m *MockUpstreamClient) Poll(ctx context.Context, req domain.PollRequest) (*domain.PollResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PollRequests = append(m.PollRequests, req)
	if m.PollErr != nil {
		return nil, m.PollErr
	}
	if len(m.PollResponses) == 0 {
		return &domain.PollResponse{}, nil
	}
	resp := m.PollResponses[0]
	m.PollResponses = m.PollResponses[1:]
	return resp, nil
}

func (m *MockUpstreamClient) Acknowledge(ctx context.Context, lastID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AckErr != nil {
		return m.AckErr
	}
	m.AckedIDs = append(m.AckedIDs, lastID)
	return nil
}

func (m *MockUpstreamClient) Reset(ctx context.Context, eventID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResetErr != nil {
		return m.ResetErr
	}
	m.ResetIDs = append(m.ResetIDs, eventID)
	return nil
}

// PollCount returns how many Poll calls the mock has served.
func (m *MockUpstreamClient) PollCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.PollRequests)
}

// Requests returns a copy of the recorded poll requests.
func (m *MockUpstreamClient) Requests() []domain.PollRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PollRequest, len(m.PollRequests))
	copy(out, m.PollRequests)
	return out
}

// MockDedupCache is a map-backed domain.DedupCache.
type MockDedupCache struct {
	mu   sync.Mutex
	seen map[string]bool
}

func NewMockDedupCache() *MockDedupCache {
	return &MockDedupCache{seen: map[string]bool{}}
}

func (m *MockDedupCache) Seen(ctx context.Context, uniqueID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[uniqueID]
}

func (m *MockDedupCache) Remember(ctx context.Context, uniqueIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range uniqueIDs {
		m.seen[id] = true
	}
}
