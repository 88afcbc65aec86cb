package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// --- Mock implementations ---

type fakeGlucoseSession struct {
	mu sync.Mutex

	ensureErr error
	authErr   error

	history    []model.Reading
	historyErr error

	state    *model.UserState
	stateErr error

	authCalls   int
	logoutCalls int
	forgetCalls int
}

func (f *fakeGlucoseSession) Authenticate(_ context.Context, _, _ string, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authCalls++
	return f.authErr
}

func (f *fakeGlucoseSession) EnsureValid(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ensureErr
}

func (f *fakeGlucoseSession) FetchUserState(_ context.Context) (*model.UserState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stateErr != nil {
		return nil, f.stateErr
	}
	return f.state, nil
}

func (f *fakeGlucoseSession) FetchHistory(_ context.Context) ([]model.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

func (f *fakeGlucoseSession) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutCalls++
}

func (f *fakeGlucoseSession) ForgetCredentials(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forgetCalls++
	return nil
}

type fakeReadingStore struct {
	mu       sync.Mutex
	replaced [][]model.Reading
	appended []model.Reading
	stored   []model.Reading
	listErr  error
	pruned   []time.Time
}

func (f *fakeReadingStore) ReplaceHistory(_ context.Context, readings []model.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, readings)
	return nil
}

func (f *fakeReadingStore) Append(_ context.Context, r model.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, r)
	return nil
}

func (f *fakeReadingStore) ListSince(_ context.Context, _ time.Time) ([]model.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.stored, nil
}

func (f *fakeReadingStore) Prune(_ context.Context, before time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned = append(f.pruned, before)
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	published []model.Reading
	err       error
}

func (f *fakePublisher) Publish(r model.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, r)
	return nil
}

func (f *fakePublisher) Close() {}

type fakeBroadcaster struct {
	mu       sync.Mutex
	messages []model.Reading
}

func (f *fakeBroadcaster) Broadcast(r model.Reading) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, r)
}

func newTestPoll(sess *fakeGlucoseSession) (*PollService, *fakeReadingStore, *fakePublisher, *fakeBroadcaster, *fakeClock) {
	store := &fakeReadingStore{}
	pub := &fakePublisher{}
	bc := &fakeBroadcaster{}
	svc := NewPollService(sess, store, pub, bc, time.Minute, 5*time.Second, 24*time.Hour)
	clock := &fakeClock{t: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)}
	svc.now = clock.Now
	return svc, store, pub, bc, clock
}

func connectedState(value int, trend model.SymbolicTrend) *model.UserState {
	return &model.UserState{UserID: "42", CurrentGlucose: intPtr(value), Trend: trend, TransmitterConnected: true}
}

// --- Tests ---

func TestSilentLogin_SeedsHistoryAndPollsImmediately(t *testing.T) {
	base := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	sess := &fakeGlucoseSession{
		history: []model.Reading{
			{Timestamp: base, Value: 100, Trend: model.TrendStable},
			{Timestamp: base.Add(10 * time.Minute), Value: 108, Trend: model.TrendStable},
		},
		state: connectedState(115, model.SymbolicRising),
	}
	svc, store, _, _, _ := newTestPoll(sess)

	svc.silentLogin(context.Background())

	assert.Equal(t, StateRunning, svc.State())
	require.Len(t, store.replaced, 1)
	assert.Len(t, store.replaced[0], 2)

	// The immediate poll appended the current value after the history.
	readings := svc.Readings()
	require.Len(t, readings, 3)
	assert.Equal(t, 115, readings[2].Value)
	assert.Equal(t, model.TrendRising, readings[2].Trend)
}

func TestRestoreWindow_SeedsFromStore(t *testing.T) {
	sess := &fakeGlucoseSession{ensureErr: driven.ErrNoCredentials}
	svc, store, _, _, clock := newTestPoll(sess)
	store.stored = []model.Reading{
		{Timestamp: clock.Now().Add(-2 * time.Hour), Value: 95, Trend: model.TrendStable},
		{Timestamp: clock.Now().Add(-time.Hour), Value: 112, Trend: model.TrendRising},
	}

	svc.restoreWindow(context.Background())

	readings := svc.Readings()
	require.Len(t, readings, 2)
	assert.Equal(t, 95, readings[0].Value)
	assert.Equal(t, 112, readings[1].Value)
}

func TestRestoreWindow_StoreErrorLeavesWindowEmpty(t *testing.T) {
	sess := &fakeGlucoseSession{}
	svc, store, _, _, _ := newTestPoll(sess)
	store.listErr = errors.New("disk gone")

	svc.restoreWindow(context.Background())

	assert.Empty(t, svc.Readings())
}

func TestTick_PrunesBeyondHistoryWindow(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(105, model.SymbolicFlat)}
	svc, store, _, _, clock := newTestPoll(sess)
	svc.setState(StateRunning)

	svc.tick(context.Background())

	require.Len(t, store.pruned, 1)
	assert.Equal(t, clock.Now().Add(-24*time.Hour), store.pruned[0])
}

func TestSilentLogin_NoCredentialsStaysUnauthenticated(t *testing.T) {
	sess := &fakeGlucoseSession{ensureErr: driven.ErrNoCredentials}
	svc, _, _, _, _ := newTestPoll(sess)

	svc.silentLogin(context.Background())

	assert.Equal(t, StateUnauthenticated, svc.State())
	assert.Equal(t, 0, sess.forgetCalls)
}

func TestSilentLogin_RejectedCredentialsAreCleared(t *testing.T) {
	sess := &fakeGlucoseSession{ensureErr: &driven.AuthError{StatusCode: 401, Message: "bad credentials"}}
	svc, _, _, _, _ := newTestPoll(sess)

	svc.silentLogin(context.Background())

	assert.Equal(t, StateUnauthenticated, svc.State())
	assert.Equal(t, 1, sess.forgetCalls)
}

func TestSilentLogin_NetworkErrorKeepsCredentials(t *testing.T) {
	sess := &fakeGlucoseSession{ensureErr: errors.New("connection refused")}
	svc, _, _, _, _ := newTestPoll(sess)

	svc.silentLogin(context.Background())

	assert.Equal(t, StateUnauthenticated, svc.State())
	assert.Equal(t, 0, sess.forgetCalls)
}

func TestHandleLogin_FailureReturnsErrorForForm(t *testing.T) {
	authErr := &driven.AuthError{StatusCode: 401, Message: "bad credentials"}
	sess := &fakeGlucoseSession{authErr: authErr}
	svc, _, _, _, _ := newTestPoll(sess)

	err := svc.handleLogin(context.Background(), loginRequest{username: "alice", password: "wrong"})

	var ae *driven.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StateUnauthenticated, svc.State())
}

func TestHandleLogin_SuccessEntersRunning(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(105, model.SymbolicFlat)}
	svc, _, _, _, _ := newTestPoll(sess)

	err := svc.handleLogin(context.Background(), loginRequest{username: "alice", password: "secret", remember: true})

	require.NoError(t, err)
	assert.Equal(t, 1, sess.authCalls)
	assert.Equal(t, StateRunning, svc.State())
}

func TestTick_FansOutReading(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(142, model.SymbolicFallingFast)}
	svc, store, pub, bc, clock := newTestPoll(sess)
	svc.setState(StateRunning)

	svc.tick(context.Background())

	require.Len(t, store.appended, 1)
	assert.Equal(t, 142, store.appended[0].Value)
	assert.Equal(t, model.TrendFalling, store.appended[0].Trend)
	assert.Equal(t, clock.Now(), store.appended[0].Timestamp)

	require.Len(t, bc.messages, 1)
	require.Len(t, pub.published, 1)

	latest := svc.Latest()
	require.NotNil(t, latest)
	assert.Equal(t, 142, latest.Value)

	state := svc.UserState()
	require.NotNil(t, state)
	assert.True(t, state.TransmitterConnected)
}

func TestTick_NilCurrentGlucoseIsNoOp(t *testing.T) {
	sess := &fakeGlucoseSession{state: &model.UserState{UserID: "42", Trend: model.SymbolicStale}}
	svc, store, pub, bc, _ := newTestPoll(sess)
	svc.setState(StateRunning)

	svc.tick(context.Background())

	assert.Equal(t, StateRunning, svc.State())
	assert.Empty(t, store.appended)
	assert.Empty(t, pub.published)
	assert.Empty(t, bc.messages)
	assert.Nil(t, svc.Latest())

	// The state snapshot still refreshes so the panel can show the
	// disconnected transmitter.
	require.NotNil(t, svc.UserState())
}

func TestTick_SkippedWhileUnauthenticated(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(105, model.SymbolicFlat)}
	svc, store, _, _, _ := newTestPoll(sess)

	svc.tick(context.Background())

	assert.Empty(t, store.appended)
	assert.Nil(t, svc.UserState())
}

func TestTick_ErrorDisplayedThenExpires(t *testing.T) {
	sess := &fakeGlucoseSession{stateErr: &driven.FetchError{Endpoint: "patients", StatusCode: 500, Message: "boom"}}
	svc, _, _, _, clock := newTestPoll(sess)
	svc.setState(StateRunning)

	svc.tick(context.Background())

	assert.Equal(t, StateErrorDisplayed, svc.State())
	require.Error(t, svc.LastError())

	clock.Advance(6 * time.Second)
	assert.Equal(t, StateRunning, svc.State())
	assert.NoError(t, svc.LastError())
}

func TestTick_RecoveryClearsError(t *testing.T) {
	sess := &fakeGlucoseSession{stateErr: errors.New("timeout")}
	svc, _, _, _, _ := newTestPoll(sess)
	svc.setState(StateRunning)

	svc.tick(context.Background())
	assert.Equal(t, StateErrorDisplayed, svc.State())

	sess.mu.Lock()
	sess.stateErr = nil
	sess.state = connectedState(110, model.SymbolicFlat)
	sess.mu.Unlock()

	svc.tick(context.Background())
	assert.Equal(t, StateRunning, svc.State())
	assert.NoError(t, svc.LastError())
}

func TestTick_PublishFailureDoesNotAbort(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(105, model.SymbolicFlat)}
	svc, store, pub, bc, _ := newTestPoll(sess)
	pub.err = errors.New("broker down")
	svc.setState(StateRunning)

	svc.tick(context.Background())

	assert.Equal(t, StateRunning, svc.State())
	require.Len(t, store.appended, 1)
	require.Len(t, bc.messages, 1)
}

func TestHandleLogout_ForgetClearsCredentials(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(105, model.SymbolicFlat)}
	svc, _, _, _, _ := newTestPoll(sess)
	svc.setState(StateRunning)
	svc.tick(context.Background())

	require.NoError(t, svc.handleLogout(context.Background(), logoutRequest{forget: true}))

	assert.Equal(t, StateUnauthenticated, svc.State())
	assert.Equal(t, 1, sess.logoutCalls)
	assert.Equal(t, 1, sess.forgetCalls)
	assert.Empty(t, svc.Readings())
	assert.Nil(t, svc.UserState())
}

func TestHandleLogout_WithoutForgetKeepsStore(t *testing.T) {
	sess := &fakeGlucoseSession{}
	svc, _, _, _, _ := newTestPoll(sess)

	require.NoError(t, svc.handleLogout(context.Background(), logoutRequest{}))

	assert.Equal(t, 1, sess.logoutCalls)
	assert.Equal(t, 0, sess.forgetCalls)
}

func TestStart_LoginThroughLoopAndShutdownLogsOut(t *testing.T) {
	sess := &fakeGlucoseSession{
		ensureErr: driven.ErrNoCredentials,
		state:     connectedState(105, model.SymbolicFlat),
	}
	svc, _, _, _, _ := newTestPoll(sess)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.Start(ctx)
		close(stopped)
	}()

	require.NoError(t, svc.Login(ctx, "alice", "secret", false))
	assert.Equal(t, StateRunning, svc.State())

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("poll loop did not stop")
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	assert.Equal(t, 1, sess.logoutCalls)
}

func TestWindowBoundedUnderSustainedTicks(t *testing.T) {
	sess := &fakeGlucoseSession{state: connectedState(105, model.SymbolicFlat)}
	svc, _, _, _, clock := newTestPoll(sess)
	svc.setState(StateRunning)

	for i := 0; i < model.WindowCapacity+10; i++ {
		svc.tick(context.Background())
		clock.Advance(time.Minute)
	}

	assert.Len(t, svc.Readings(), model.WindowCapacity)
}
