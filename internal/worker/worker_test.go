package worker

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"idoracle/internal/evidence/gist"
	"idoracle/internal/oracle/models"
	"idoracle/internal/oracle/store"
	"idoracle/internal/pool"
	"idoracle/internal/worker/mocks"
	"idoracle/pkg/domain"
)

type WorkerSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	fetcher   *mocks.MockFetcher
	parser    *mocks.MockParser
	submitter *mocks.MockSubmitter
	store     *store.InMemoryStore
	worker    *Worker
	alice     domain.AccountID
	bob       domain.AccountID
}

func TestWorkerSuite(t *testing.T) {
	suite.Run(t, new(WorkerSuite))
}

func (s *WorkerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.parser = mocks.NewMockParser(s.ctrl)
	s.submitter = mocks.NewMockSubmitter(s.ctrl)
	s.store = store.NewInMemory()
	s.alice = domain.AccountIDFromSeed("alice")
	s.bob = domain.AccountIDFromSeed("bob")

	var err error
	s.worker, err = New(s.store, s.fetcher, s.parser, s.submitter,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithConcurrency(2),
	)
	s.Require().NoError(err)
}

func (s *WorkerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *WorkerSuite) pending(account domain.AccountID, resource string) domain.ResourceID {
	id := domain.MustResourceID(resource)
	s.Require().NoError(s.store.Submit(context.Background(), models.VerificationRequest{Requester: account, ResourceID: id}))
	return id
}

func (s *WorkerSuite) expectVerified(account domain.AccountID, id domain.ResourceID, login string) {
	raw := []byte(login + "-raw")
	s.fetcher.EXPECT().Fetch(gomock.Any(), id).Return(raw, nil)
	s.parser.EXPECT().Parse(raw).Return(gist.Gist{Filename: account.String(), Owner: domain.Username(login)}, nil)
}

func (s *WorkerSuite) TestNew() {
	s.Run("nil collaborators are rejected", func() {
		_, err := New(nil, s.fetcher, s.parser, s.submitter)
		s.ErrorContains(err, "pending reader is required")
		_, err = New(s.store, nil, s.parser, s.submitter)
		s.ErrorContains(err, "fetcher is required")
		_, err = New(s.store, s.fetcher, nil, s.submitter)
		s.ErrorContains(err, "parser is required")
		_, err = New(s.store, s.fetcher, s.parser, nil)
		s.ErrorContains(err, "submitter is required")
	})
}

func (s *WorkerSuite) TestVerifiedRequestIsSubmitted() {
	id := s.pending(s.alice, "gist-1")
	s.expectVerified(s.alice, id, "alice_gh")
	s.submitter.EXPECT().
		SubmitUnsigned(gomock.Any(), models.RespondVerification{Account: s.alice, Username: "alice_gh"}).
		Return(nil)

	report := s.worker.RunRound(context.Background(), 9)
	s.Equal(uint64(9), report.Height)
	s.Equal(1, report.Pending)
	s.Equal(1, report.Submitted)
	s.Zero(report.Failed())
	s.Require().Len(report.Outcomes, 1)
	s.Equal(domain.Username("alice_gh"), report.Outcomes[0].Username)
}

func (s *WorkerSuite) TestFetchFailureDoesNotBlockOtherRequests() {
	aliceID := s.pending(s.alice, "gist-a")
	bobID := s.pending(s.bob, "gist-b")

	s.fetcher.EXPECT().Fetch(gomock.Any(), aliceID).Return(nil, &gist.FetchError{Kind: gist.FetchNetwork})
	s.expectVerified(s.bob, bobID, "bob_gh")
	s.submitter.EXPECT().
		SubmitUnsigned(gomock.Any(), models.RespondVerification{Account: s.bob, Username: "bob_gh"}).
		Return(nil)

	report := s.worker.RunRound(context.Background(), 1)
	s.Equal(1, report.Submitted)
	s.Equal(map[FailureKind]int{FailureFetch: 1}, report.Failures)

	ok, err := s.store.Contains(context.Background(), s.alice)
	s.Require().NoError(err)
	s.True(ok, "worker never removes requests")
}

func (s *WorkerSuite) TestParseFailure() {
	id := s.pending(s.alice, "gist-1")
	s.fetcher.EXPECT().Fetch(gomock.Any(), id).Return([]byte("garbage"), nil)
	s.parser.EXPECT().Parse([]byte("garbage")).Return(gist.Gist{}, &gist.ParseError{Kind: gist.ParseMalformed})

	report := s.worker.RunRound(context.Background(), 1)
	s.Equal(map[FailureKind]int{FailureParse: 1}, report.Failures)
	var pe *gist.ParseError
	s.True(errors.As(report.Outcomes[0].Err, &pe))
}

func (s *WorkerSuite) TestProofMismatchSubmitsNothing() {
	id := s.pending(s.alice, "gist-1")
	s.fetcher.EXPECT().Fetch(gomock.Any(), id).Return([]byte("raw"), nil)
	s.parser.EXPECT().Parse([]byte("raw")).Return(gist.Gist{Filename: s.bob.String(), Owner: "alice_gh"}, nil)

	report := s.worker.RunRound(context.Background(), 1)
	s.Zero(report.Submitted)
	s.Equal(map[FailureKind]int{FailureProofMismatch: 1}, report.Failures)
	s.ErrorIs(report.Outcomes[0].Err, ErrProofMismatch)
}

type recordingInvalidator struct {
	ids []domain.ResourceID
	err error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, id domain.ResourceID) error {
	r.ids = append(r.ids, id)
	return r.err
}

func (s *WorkerSuite) TestRejectedContentIsInvalidated() {
	inv := &recordingInvalidator{}
	w, err := New(s.store, s.fetcher, s.parser, s.submitter, WithInvalidator(inv))
	s.Require().NoError(err)

	s.Run("proof mismatch", func() {
		inv.ids = nil
		id := s.pending(s.alice, "gist-1")
		s.fetcher.EXPECT().Fetch(gomock.Any(), id).Return([]byte("raw"), nil)
		s.parser.EXPECT().Parse([]byte("raw")).Return(gist.Gist{Filename: "notes.md", Owner: "alice_gh"}, nil)

		report := w.RunRound(context.Background(), 1)
		s.Equal(map[FailureKind]int{FailureProofMismatch: 1}, report.Failures)
		s.Equal([]domain.ResourceID{id}, inv.ids)
	})

	s.Run("parse failure, even when eviction fails", func() {
		inv.ids, inv.err = nil, errors.New("cache down")
		id := s.pending(s.alice, "gist-2")
		s.fetcher.EXPECT().Fetch(gomock.Any(), id).Return([]byte("garbage"), nil)
		s.parser.EXPECT().Parse([]byte("garbage")).Return(gist.Gist{}, &gist.ParseError{Kind: gist.ParseMalformed})

		report := w.RunRound(context.Background(), 2)
		s.Equal(map[FailureKind]int{FailureParse: 1}, report.Failures)
		s.Equal([]domain.ResourceID{id}, inv.ids)
	})

	s.Run("fetch failures and verified content are kept", func() {
		inv.ids, inv.err = nil, nil
		id := s.pending(s.alice, "gist-3")
		s.expectVerified(s.alice, id, "alice_gh")
		s.submitter.EXPECT().SubmitUnsigned(gomock.Any(), gomock.Any()).Return(nil)

		w.RunRound(context.Background(), 3)
		s.Empty(inv.ids)
	})
}

func (s *WorkerSuite) TestSubmissionFailureIsContained() {
	aliceID := s.pending(s.alice, "gist-a")
	bobID := s.pending(s.bob, "gist-b")
	s.expectVerified(s.alice, aliceID, "alice_gh")
	s.expectVerified(s.bob, bobID, "bob_gh")
	s.submitter.EXPECT().
		SubmitUnsigned(gomock.Any(), models.RespondVerification{Account: s.alice, Username: "alice_gh"}).
		Return(pool.ErrAlreadyPresent)
	s.submitter.EXPECT().
		SubmitUnsigned(gomock.Any(), models.RespondVerification{Account: s.bob, Username: "bob_gh"}).
		Return(nil)

	report := s.worker.RunRound(context.Background(), 1)
	s.Equal(1, report.Submitted)
	s.Equal(map[FailureKind]int{FailureSubmission: 1}, report.Failures)
}

func (s *WorkerSuite) TestSnapshotErrorKeepsWhatWasRead() {
	pending := mocks.NewMockPendingReader(s.ctrl)
	first := models.VerificationRequest{Requester: s.alice, ResourceID: domain.MustResourceID("gist-1")}
	boom := errors.New("registry unavailable")
	pending.EXPECT().IteratePending(gomock.Any()).Return(iter.Seq2[models.VerificationRequest, error](
		func(yield func(models.VerificationRequest, error) bool) {
			if !yield(first, nil) {
				return
			}
			yield(models.VerificationRequest{}, boom)
		}))

	w, err := New(pending, s.fetcher, s.parser, s.submitter)
	s.Require().NoError(err)
	s.fetcher.EXPECT().Fetch(gomock.Any(), first.ResourceID).Return(nil, &gist.FetchError{Kind: gist.FetchTimeout})

	report := w.RunRound(context.Background(), 1)
	s.ErrorIs(report.SnapshotErr, boom)
	s.Equal(1, report.Pending)
	s.Equal(1, report.Failures[FailureFetch])
}

func (s *WorkerSuite) TestOnBlockSkipsWhileARoundIsRunning() {
	id := s.pending(s.alice, "gist-1")
	release := make(chan struct{})
	started := make(chan struct{})
	s.fetcher.EXPECT().Fetch(gomock.Any(), id).DoAndReturn(func(context.Context, domain.ResourceID) ([]byte, error) {
		close(started)
		<-release
		return nil, &gist.FetchError{Kind: gist.FetchTimeout}
	})

	s.True(s.worker.OnBlock(context.Background(), 1))
	<-started
	s.False(s.worker.OnBlock(context.Background(), 2))

	close(release)
	s.worker.Wait()

	s.Eventually(func() bool { return !s.worker.busy.Load() }, time.Second, time.Millisecond)
}

func TestReportFailed(t *testing.T) {
	r := newReport(1)
	r.add(Outcome{Submitted: true})
	r.add(Outcome{Failure: FailureFetch})
	r.add(Outcome{Failure: FailureFetch})
	r.add(Outcome{Failure: FailureProofMismatch})
	if r.Submitted != 1 || r.Failed() != 3 {
		t.Fatalf("submitted=%d failed=%d", r.Submitted, r.Failed())
	}
}
