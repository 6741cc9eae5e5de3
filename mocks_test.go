package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// MockUserStore implements UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) FindOne(ctx context.Context, criteria Criteria) (*User, error) {
	args := m.Called(ctx, criteria)
	user, _ := args.Get(0).(*User)
	return user, args.Error(1)
}

func (m *MockUserStore) Create(ctx context.Context, record *User, criteria ...repository.InsertCriteria) (*User, error) {
	args := m.Called(ctx, record)
	if fn, ok := args.Get(0).(func(context.Context, *User) *User); ok {
		return fn(ctx, record), args.Error(1)
	}
	user, _ := args.Get(0).(*User)
	return user, args.Error(1)
}

func (m *MockUserStore) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*User)
	return user, args.Error(1)
}

func (m *MockUserStore) LinkIdentity(ctx context.Context, userID uuid.UUID, strategy, subject string) error {
	args := m.Called(ctx, userID, strategy, subject)
	return args.Error(0)
}

// memVaultStore is an in memory VaultStore
type memVaultStore struct {
	mu      sync.Mutex
	entries map[uuid.UUID]bool
	tokens  map[string]*TokenRecord
	puts    int
}

func newMemVaultStore() *memVaultStore {
	return &memVaultStore{
		entries: map[uuid.UUID]bool{},
		tokens:  map[string]*TokenRecord{},
	}
}

func (s *memVaultStore) HasEntry(ctx context.Context, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[userID], nil
}

func (s *memVaultStore) EnsureEntry(ctx context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[userID] = true
	return nil
}

func (s *memVaultStore) GetTokens(ctx context.Context, userID uuid.UUID, strategy string) (*TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.tokens[userID.String()+":"+strategy]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	out := *record
	return &out, nil
}

func (s *memVaultStore) PutTokens(ctx context.Context, record *TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[record.UserID] = true
	out := *record
	s.tokens[record.UserID.String()+":"+record.Strategy] = &out
	s.puts++
	return nil
}

// memoryHandoffCache is an in memory HandoffCache
type memoryHandoffCache struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
}

func newMemoryHandoffCache() *memoryHandoffCache {
	return &memoryHandoffCache{
		values: map[string][]byte{},
		ttls:   map[string]time.Duration{},
	}
}

func (c *memoryHandoffCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = append([]byte(nil), value...)
	c.ttls[key] = ttl
	return nil
}

func (c *memoryHandoffCache) Take(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.values[key]
	delete(c.values, key)
	return value, ok, nil
}

// stubConnectionStore keeps connection requests by token
type stubConnectionStore struct {
	requests map[string]*ConnectionRequest
	created  []*ConnectionRequest
}

func (s *stubConnectionStore) Create(ctx context.Context, record *ConnectionRequest, criteria ...repository.InsertCriteria) (*ConnectionRequest, error) {
	if s.requests == nil {
		s.requests = map[string]*ConnectionRequest{}
	}
	s.requests[record.Token] = record
	s.created = append(s.created, record)
	return record, nil
}

func (s *stubConnectionStore) Consume(ctx context.Context, token string, now time.Time) (*ConnectionRequest, error) {
	request, ok := s.requests[token]
	if !ok || request.ConsumedAt != nil || !now.Before(request.ExpiresAt) {
		return nil, ErrConnectionInvalid
	}
	request.ConsumedAt = &now
	return request, nil
}

// stubDocumentStore resolves documents by cross locale id and locale
type stubDocumentStore struct {
	docs []*Document
	err  error
}

func (s *stubDocumentStore) FindByCrossLocaleID(ctx context.Context, crossLocaleID, locale string) (*Document, error) {
	if s.err != nil {
		return nil, s.err
	}
	for _, doc := range s.docs {
		if doc.CrossLocaleID == crossLocaleID && doc.Locale == locale {
			return doc, nil
		}
	}
	return nil, repository.NewRecordNotFound()
}

type captureNotifier struct {
	notices []ConnectionNotice
	err     error
}

func (n *captureNotifier) NotifyConnectionRequest(ctx context.Context, notice ConnectionNotice) error {
	n.notices = append(n.notices, notice)
	return n.err
}

type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens *Tokens
	err    error
	delay  time.Duration
}

func (r *stubRefresher) Refresh(ctx context.Context, strategy, refreshToken string) (*Tokens, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.err != nil {
		return nil, r.err
	}
	out := *r.tokens
	return &out, nil
}

func (r *stubRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
