package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	"idoracle/internal/oracle/models"
	"idoracle/pkg/domain"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	alice domain.AccountID
	bob   domain.AccountID
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.alice = domain.AccountIDFromSeed("alice")
	s.bob = domain.AccountIDFromSeed("bob")
}

func (s *InMemoryStoreSuite) request(account domain.AccountID, resource string) models.VerificationRequest {
	return models.VerificationRequest{Requester: account, ResourceID: domain.MustResourceID(resource)}
}

func (s *InMemoryStoreSuite) TestSubmit() {
	ctx := context.Background()

	s.Run("later submission overwrites the pending request", func() {
		s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-1")))
		s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-2")))

		req, err := s.store.Get(ctx, s.alice)
		s.Require().NoError(err)
		s.Equal("gist-2", req.ResourceID.String())

		var pending []models.VerificationRequest
		for req, err := range s.store.IteratePending(ctx) {
			s.Require().NoError(err)
			pending = append(pending, req)
		}
		s.Len(pending, 1)
	})
}

func (s *InMemoryStoreSuite) TestRemove() {
	ctx := context.Background()
	s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-1")))

	s.Run("remove is idempotent", func() {
		s.Require().NoError(s.store.Remove(ctx, s.alice))
		s.Require().NoError(s.store.Remove(ctx, s.alice))

		ok, err := s.store.Contains(ctx, s.alice)
		s.Require().NoError(err)
		s.False(ok)

		_, err = s.store.Get(ctx, s.alice)
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestIteratePendingIsASnapshot() {
	ctx := context.Background()
	s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-1")))
	s.Require().NoError(s.store.Submit(ctx, s.request(s.bob, "gist-2")))

	seen := map[domain.AccountID]bool{}
	for req, err := range s.store.IteratePending(ctx) {
		s.Require().NoError(err)
		seen[req.Requester] = true
		// Mutating mid-iteration must not break or deadlock the iterator.
		s.Require().NoError(s.store.Remove(ctx, s.alice))
		s.Require().NoError(s.store.Remove(ctx, s.bob))
	}
	s.Len(seen, 2)
}

func (s *InMemoryStoreSuite) TestIteratePendingStopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-1")))
	cancel()

	for _, err := range s.store.IteratePending(ctx) {
		s.ErrorIs(err, context.Canceled)
	}
}

func (s *InMemoryStoreSuite) TestBindAndLookup() {
	ctx := context.Background()

	_, err := s.store.Lookup(ctx, s.alice)
	s.ErrorIs(err, ErrNotFound)

	s.Require().NoError(s.store.Bind(ctx, models.IdentityBinding{Requester: s.alice, Username: "alice_gh"}))
	s.Require().NoError(s.store.Bind(ctx, models.IdentityBinding{Requester: s.alice, Username: "alice_new"}))

	binding, err := s.store.Lookup(ctx, s.alice)
	s.Require().NoError(err)
	s.Equal(domain.Username("alice_new"), binding.Username)
}

func (s *InMemoryStoreSuite) TestRunInTx() {
	ctx := context.Background()

	s.Run("commit applies remove and bind together", func() {
		s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-1")))

		err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			if err := tx.Remove(ctx, s.alice); err != nil {
				return err
			}
			ok, err := tx.Contains(ctx, s.alice)
			s.Require().NoError(err)
			s.False(ok, "tx must observe its own remove")
			return tx.Bind(ctx, models.IdentityBinding{Requester: s.alice, Username: "alice_gh"})
		})
		s.Require().NoError(err)

		ok, err := s.store.Contains(ctx, s.alice)
		s.Require().NoError(err)
		s.False(ok)
		binding, err := s.store.Lookup(ctx, s.alice)
		s.Require().NoError(err)
		s.Equal(domain.Username("alice_gh"), binding.Username)
	})

	s.Run("error discards every staged write", func() {
		s.Require().NoError(s.store.Submit(ctx, s.request(s.bob, "gist-9")))
		boom := errors.New("boom")

		err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
			s.Require().NoError(tx.Remove(ctx, s.bob))
			s.Require().NoError(tx.Bind(ctx, models.IdentityBinding{Requester: s.bob, Username: "bob_gh"}))
			return boom
		})
		s.ErrorIs(err, boom)

		ok, err := s.store.Contains(ctx, s.bob)
		s.Require().NoError(err)
		s.True(ok)
		_, err = s.store.Lookup(ctx, s.bob)
		s.ErrorIs(err, ErrNotFound)
	})
}

// TestRunInTx_NoIntermediateState checks that concurrent readers never see an
// account with both a pending request and the binding it resolves into, nor
// with neither.
func (s *InMemoryStoreSuite) TestRunInTx_NoIntermediateState() {
	ctx := context.Background()
	s.Require().NoError(s.store.Submit(ctx, s.request(s.alice, "gist-1")))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	violations := make(chan string, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			_ = s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
				pending, _ := tx.Contains(ctx, s.alice)
				_, err := tx.Lookup(ctx, s.alice)
				bound := err == nil
				if pending == bound {
					select {
					case violations <- "pending and bound must be mutually exclusive":
					default:
					}
				}
				return nil
			})
		}
	}()

	err := s.store.RunInTx(ctx, func(ctx context.Context, tx Store) error {
		if err := tx.Remove(ctx, s.alice); err != nil {
			return err
		}
		return tx.Bind(ctx, models.IdentityBinding{Requester: s.alice, Username: "alice_gh"})
	})
	s.Require().NoError(err)
	close(stop)
	wg.Wait()

	select {
	case msg := <-violations:
		s.Fail(msg)
	default:
	}
}
