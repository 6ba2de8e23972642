package initializer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"certportal/internal/navigation"
	"certportal/internal/session/initializer/mocks"
	"certportal/internal/session/models"
	"certportal/internal/session/store"
	"certportal/internal/storage/local"
	"certportal/internal/storage/transient"
	dErrors "certportal/pkg/domain-errors"
	"certportal/pkg/testutil"
)

var kim = models.User{Email: "kim@totaro.kr", Name: "kim", UserID: 7, Role: models.RoleUser}

type InitializerSuite struct {
	suite.Suite
	ctx      context.Context
	ctrl     *gomock.Controller
	fetcher  *mocks.MockFetcher
	notifier *mocks.MockNotifier
	local    *local.Store
	store    *store.Store
	nav      *navigation.Router
	logger   *slog.Logger
}

func TestInitializerSuite(t *testing.T) {
	suite.Run(t, new(InitializerSuite))
}

func (s *InitializerSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.fetcher = mocks.NewMockFetcher(s.ctrl)
	s.notifier = mocks.NewMockNotifier(s.ctrl)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := local.Open(s.ctx, local.MemoryDSN)
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = db.Close() })
	s.local = db
	s.store = nil
	s.navigateTo("/")
}

func (s *InitializerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *InitializerSuite) navigateTo(target string) {
	nav, err := navigation.New(target)
	s.Require().NoError(err)
	s.nav = nav
}

// persistSession writes a logged-in snapshot as a previous process would have.
func (s *InitializerSuite) persistSession(u models.User) {
	raw, err := store.EncodeSnapshot(models.AuthState{User: &u, IsLoggedIn: true, IsHydrated: true})
	s.Require().NoError(err)
	s.Require().NoError(s.local.Set(s.ctx, store.SnapshotKey, raw))
}

func (s *InitializerSuite) newInitializer(opts ...Option) *Initializer {
	if s.store == nil {
		s.store = store.Open(s.ctx, s.local, transient.New(), s.logger)
	}
	return New(s.store, s.fetcher, s.nav, s.notifier, s.logger, opts...)
}

func (s *InitializerSuite) wait(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.FailNow("reconciliation did not finish")
	}
}

func (s *InitializerSuite) assertLoggedOutAndChecked() {
	snap := s.store.Snapshot()
	s.False(snap.IsLoggedIn)
	s.Nil(snap.User)
	s.True(snap.IsAuthChecked)
}

func (s *InitializerSuite) TestNoSnapshotSkipsNetwork() {
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))

	s.assertLoggedOutAndChecked()
	s.Equal(PhaseDone, si.Phase())
}

func (s *InitializerSuite) TestSentinelSnapshotSkipsNetwork() {
	s.Require().NoError(s.local.Set(s.ctx, store.SnapshotKey, store.EmptySnapshot))
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))

	s.assertLoggedOutAndChecked()
}

func (s *InitializerSuite) TestRestoredSessionConfirmed() {
	s.persistSession(kim)
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		Return(&models.CurrentUser{Email: "kim@totaro.kr", ID: 7, Role: models.RoleUser}, nil).
		Times(1)
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))

	snap := s.store.Snapshot()
	s.True(snap.IsLoggedIn)
	s.True(snap.IsAuthChecked)
	s.Equal(kim, *snap.User)
	s.False(s.store.SessionRestored())

	s.wait(si.Start(s.ctx))
	s.wait(si.Start(s.ctx))
	s.Equal(PhaseDone, si.Phase())
}

func (s *InitializerSuite) TestRestoredSessionRejected() {
	s.persistSession(kim)
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "session rejected"))
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))

	s.assertLoggedOutAndChecked()
	raw, err := s.local.Get(s.ctx, store.SnapshotKey)
	s.Require().NoError(err)
	s.Nil(raw)
}

func (s *InitializerSuite) TestFailsClosed() {
	cases := map[string]error{
		"forbidden":   dErrors.New(dErrors.CodeForbidden, "forbidden"),
		"timeout":     dErrors.New(dErrors.CodeTimeout, "timed out"),
		"unavailable": dErrors.New(dErrors.CodeUnavailable, "backend unavailable: 502"),
		"malformed":   dErrors.New(dErrors.CodeMalformedRemote, "not json"),
		"plain error": errors.New("connection reset"),
		"no user":     nil,
	}
	for name, fetchErr := range cases {
		s.Run(name, func() {
			s.SetupTest()
			s.persistSession(kim)
			s.fetcher.EXPECT().CurrentUser(gomock.Any()).Return(nil, fetchErr)
			si := s.newInitializer()

			s.wait(si.Start(s.ctx))

			s.assertLoggedOutAndChecked()
			s.Equal(PhaseDone, si.Phase())
		})
	}
}

func (s *InitializerSuite) TestConcurrentStartsShareOneCall() {
	s.persistSession(kim)
	release := make(chan struct{})
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		DoAndReturn(func(context.Context) (*models.CurrentUser, error) {
			<-release
			return &models.CurrentUser{Email: "kim@totaro.kr", ID: 7, Role: models.RoleUser}, nil
		}).
		Times(1)
	si := s.newInitializer()

	handles := make([]<-chan struct{}, 50)
	res := testutil.RunConcurrent(len(handles), func(idx int) error {
		handles[idx] = si.Start(s.ctx)
		return nil
	})
	s.Equal(int32(50), res.Successes)
	s.Equal(PhaseInFlight, si.Phase())
	s.False(s.store.Snapshot().IsAuthChecked)

	close(release)
	for _, h := range handles {
		s.wait(h)
	}
	s.True(s.store.Snapshot().IsLoggedIn)
	s.True(s.store.Snapshot().IsAuthChecked)
}

func (s *InitializerSuite) TestWaitsForHydration() {
	s.persistSession(kim)
	s.store = store.Open(s.ctx, s.local, transient.New(), s.logger)
	gate := &hydrationGate{Store: s.store}
	si := New(gate, s.fetcher, s.nav, s.notifier, s.logger)

	s.wait(si.Start(s.ctx))
	s.Equal(PhaseUnstarted, si.Phase())
	s.False(s.store.Snapshot().IsAuthChecked)

	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		Return(&models.CurrentUser{Email: "kim@totaro.kr", ID: 7, Role: models.RoleUser}, nil)
	gate.hydrated = true
	s.wait(si.Start(s.ctx))
	s.True(s.store.Snapshot().IsAuthChecked)
}

func (s *InitializerSuite) TestLoginRouteDefers() {
	s.persistSession(kim)
	s.navigateTo("/login")
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))
	s.Equal(PhaseUnstarted, si.Phase())
	s.False(s.store.Snapshot().IsAuthChecked)

	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		Return(&models.CurrentUser{Email: "kim@totaro.kr", ID: 7, Role: models.RoleUser}, nil)
	s.Require().NoError(s.nav.Push("/certificates"))
	s.wait(si.Start(s.ctx))
	s.True(s.store.Snapshot().IsAuthChecked)
}

func (s *InitializerSuite) TestSessionConfirmedInProcess() {
	si := s.newInitializer()
	s.store.Login(s.ctx, kim)

	s.wait(si.Start(s.ctx))

	s.True(s.store.Snapshot().IsAuthChecked)
	s.True(s.store.Snapshot().IsLoggedIn)
	s.Equal(PhaseDone, si.Phase())
}

func (s *InitializerSuite) TestSettledLoggedOutStaysQuiet() {
	si := s.newInitializer()
	s.store.MarkAuthChecked()

	s.wait(si.Start(s.ctx))

	s.Equal(PhaseDone, si.Phase())
	s.assertLoggedOutAndChecked()
}

func (s *InitializerSuite) TestOAuthMarkerWelcomesOnce() {
	s.persistSession(kim)
	s.navigateTo("/?success=true&tab=certs")
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		Return(&models.CurrentUser{Email: "kim@totaro.kr", ID: 7, Role: models.RoleUser}, nil)
	s.notifier.EXPECT().Success("Welcome, kim!").Times(1)
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))
	s.wait(si.Start(s.ctx))

	s.Equal("/?tab=certs", s.nav.Current().String())
	s.Zero(s.nav.Depth(), "marker is stripped without a history entry")
}

func (s *InitializerSuite) TestOAuthMarkerIgnoredWhenRejected() {
	s.persistSession(kim)
	s.navigateTo("/?success=true")
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "session rejected"))
	si := s.newInitializer()

	s.wait(si.Start(s.ctx))

	s.assertLoggedOutAndChecked()
	s.Equal("true", s.nav.Current().Query().Get(OAuthSuccessParam))
}

func (s *InitializerSuite) TestLogoutDuringReconcileWins() {
	s.persistSession(kim)
	entered := make(chan struct{})
	release := make(chan struct{})
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		DoAndReturn(func(context.Context) (*models.CurrentUser, error) {
			close(entered)
			<-release
			return &models.CurrentUser{Email: "kim@totaro.kr", ID: 7, Role: models.RoleUser}, nil
		})
	si := s.newInitializer()

	done := si.Start(s.ctx)
	<-entered
	s.store.Logout(s.ctx)
	close(release)
	s.wait(done)

	s.assertLoggedOutAndChecked()
	raw, err := s.local.Get(s.ctx, store.SnapshotKey)
	s.Require().NoError(err)
	s.Nil(raw, "stale reconciliation must not persist a session")
}

func (s *InitializerSuite) TestTimeoutResolvesLoggedOut() {
	s.persistSession(kim)
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		DoAndReturn(func(ctx context.Context) (*models.CurrentUser, error) {
			<-ctx.Done()
			return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeTimeout, "timed out")
		})
	si := s.newInitializer(WithTimeout(20 * time.Millisecond))

	s.wait(si.Start(s.ctx))

	s.assertLoggedOutAndChecked()
}

func (s *InitializerSuite) TestRunReturnsWhenCallerGivesUp() {
	s.persistSession(kim)
	release := make(chan struct{})
	s.fetcher.EXPECT().CurrentUser(gomock.Any()).
		DoAndReturn(func(context.Context) (*models.CurrentUser, error) {
			<-release
			return nil, dErrors.New(dErrors.CodeUnauthorized, "session rejected")
		})
	si := s.newInitializer()

	ctx, cancel := context.WithTimeout(s.ctx, 20*time.Millisecond)
	defer cancel()
	snap, err := si.Run(ctx)
	s.ErrorIs(err, context.DeadlineExceeded)
	s.False(snap.IsAuthChecked)

	close(release)
	state, err := si.Run(s.ctx)
	s.Require().NoError(err)
	s.True(state.IsAuthChecked)
	s.False(state.IsLoggedIn)
}

func (s *InitializerSuite) TestRecorderSeesOutcomes() {
	rec := &fakeRecorder{}
	si := s.newInitializer(WithRecorder(rec))

	s.wait(si.Start(s.ctx))
	s.wait(si.Start(s.ctx))

	s.Equal([]Outcome{OutcomeEmptySnapshot, OutcomeAlreadyDone}, rec.outcomes)
}

func (s *InitializerSuite) TestPhaseString() {
	s.Equal("unstarted", PhaseUnstarted.String())
	s.Equal("in_flight", PhaseInFlight.String())
	s.Equal("done", PhaseDone.String())
	s.Equal("phase(9)", Phase(9).String())
}

// hydrationGate hides the store's hydration until the test flips it.
type hydrationGate struct {
	*store.Store
	hydrated bool
}

func (g *hydrationGate) Snapshot() models.AuthState {
	snap := g.Store.Snapshot()
	snap.IsHydrated = g.hydrated
	return snap
}

type fakeRecorder struct {
	outcomes []Outcome
}

func (r *fakeRecorder) Observe(o Outcome)             { r.outcomes = append(r.outcomes, o) }
func (r *fakeRecorder) ObserveDuration(time.Duration) {}
