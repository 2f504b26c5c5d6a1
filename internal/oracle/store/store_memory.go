package store

import (
	"context"
	"iter"
	"maps"
	"sync"

	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
)

// InMemoryStore keeps both registries in maps guarded by one lock, which is
// what makes RunInTx atomic for concurrent readers.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[domain.AccountID]models.VerificationRequest
	bindings map[domain.AccountID]models.IdentityBinding
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		requests: make(map[domain.AccountID]models.VerificationRequest),
		bindings: make(map[domain.AccountID]models.IdentityBinding),
	}
}

func (s *InMemoryStore) Submit(_ context.Context, req models.VerificationRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.Requester] = req
	return nil
}

func (s *InMemoryStore) Contains(_ context.Context, requester domain.AccountID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.requests[requester]
	return ok, nil
}

func (s *InMemoryStore) Get(_ context.Context, requester domain.AccountID) (*models.VerificationRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if req, ok := s.requests[requester]; ok {
		return &req, nil
	}
	return nil, ErrNotFound
}

func (s *InMemoryStore) Remove(_ context.Context, requester domain.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, requester)
	return nil
}

// IteratePending copies the registry under the read lock and yields from the
// copy, so iteration never holds the lock while the caller does I/O.
func (s *InMemoryStore) IteratePending(ctx context.Context) iter.Seq2[models.VerificationRequest, error] {
	s.mu.RLock()
	snapshot := make([]models.VerificationRequest, 0, len(s.requests))
	for _, req := range s.requests {
		snapshot = append(snapshot, req)
	}
	s.mu.RUnlock()
	return yieldAll(ctx, snapshot)
}

func (s *InMemoryStore) Bind(_ context.Context, binding models.IdentityBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bindings[binding.Requester] = binding
	return nil
}

func (s *InMemoryStore) Lookup(_ context.Context, requester domain.AccountID) (*models.IdentityBinding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if binding, ok := s.bindings[requester]; ok {
		return &binding, nil
	}
	return nil, ErrNotFound
}

// RunInTx holds the write lock for the whole of fn and stages writes in an
// overlay that is merged only when fn succeeds.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		base:     s,
		requests: make(map[domain.AccountID]models.VerificationRequest),
		removed:  make(map[domain.AccountID]struct{}),
		bindings: make(map[domain.AccountID]models.IdentityBinding),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for account := range tx.removed {
		delete(s.requests, account)
	}
	maps.Copy(s.requests, tx.requests)
	maps.Copy(s.bindings, tx.bindings)
	return nil
}

// memoryTx reads through to base, whose lock is already held by RunInTx.
type memoryTx struct {
	base     *InMemoryStore
	requests map[domain.AccountID]models.VerificationRequest
	removed  map[domain.AccountID]struct{}
	bindings map[domain.AccountID]models.IdentityBinding
}

func (t *memoryTx) Submit(_ context.Context, req models.VerificationRequest) error {
	t.requests[req.Requester] = req
	delete(t.removed, req.Requester)
	return nil
}

func (t *memoryTx) Contains(ctx context.Context, requester domain.AccountID) (bool, error) {
	req, err := t.Get(ctx, requester)
	return req != nil, ignoreNotFound(err)
}

func (t *memoryTx) Get(_ context.Context, requester domain.AccountID) (*models.VerificationRequest, error) {
	if req, ok := t.requests[requester]; ok {
		return &req, nil
	}
	if _, gone := t.removed[requester]; gone {
		return nil, ErrNotFound
	}
	if req, ok := t.base.requests[requester]; ok {
		return &req, nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) Remove(_ context.Context, requester domain.AccountID) error {
	delete(t.requests, requester)
	t.removed[requester] = struct{}{}
	return nil
}

func (t *memoryTx) IteratePending(ctx context.Context) iter.Seq2[models.VerificationRequest, error] {
	snapshot := make([]models.VerificationRequest, 0, len(t.base.requests)+len(t.requests))
	for account, req := range t.base.requests {
		if _, gone := t.removed[account]; gone {
			continue
		}
		if _, staged := t.requests[account]; staged {
			continue
		}
		snapshot = append(snapshot, req)
	}
	for _, req := range t.requests {
		snapshot = append(snapshot, req)
	}
	return yieldAll(ctx, snapshot)
}

func (t *memoryTx) Bind(_ context.Context, binding models.IdentityBinding) error {
	t.bindings[binding.Requester] = binding
	return nil
}

func (t *memoryTx) Lookup(_ context.Context, requester domain.AccountID) (*models.IdentityBinding, error) {
	if binding, ok := t.bindings[requester]; ok {
		return &binding, nil
	}
	if binding, ok := t.base.bindings[requester]; ok {
		return &binding, nil
	}
	return nil, ErrNotFound
}

func (t *memoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

func yieldAll(ctx context.Context, snapshot []models.VerificationRequest) iter.Seq2[models.VerificationRequest, error] {
	return func(yield func(models.VerificationRequest, error) bool) {
		for _, req := range snapshot {
			if err := ctx.Err(); err != nil {
				yield(models.VerificationRequest{}, err)
				return
			}
			if !yield(req, nil) {
				return
			}
		}
	}
}
