package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// PollState is the poll controller's user-visible state.
type PollState string

const (
	StateUnauthenticated PollState = "unauthenticated"
	StateAuthenticating  PollState = "authenticating"
	StateRunning         PollState = "running"
	StateErrorDisplayed  PollState = "error"
)

// GlucoseSession is the slice of SessionService the poll controller needs.
type GlucoseSession interface {
	Authenticate(ctx context.Context, username, password string, remember bool) error
	EnsureValid(ctx context.Context) error
	FetchUserState(ctx context.Context) (*model.UserState, error)
	FetchHistory(ctx context.Context) ([]model.Reading, error)
	Logout()
	ForgetCredentials(ctx context.Context) error
}

// LiveBroadcaster pushes new readings to connected dashboard clients.
type LiveBroadcaster interface {
	Broadcast(r model.Reading)
}

// loginRequest represents a login submitted through the web or API surface.
type loginRequest struct {
	username string
	password string
	remember bool
	done     chan error
}

// logoutRequest represents an explicit logout. forget additionally clears
// persisted credentials.
type logoutRequest struct {
	forget bool
	done   chan error
}

// PollService orchestrates the glucose polling loop: silent login at
// startup, history seeding, a fixed-interval current-value poll, and
// fan-out to store, websocket clients, and the optional publisher.
//
// All session mutation runs on the loop goroutine, so ticks and logins never
// overlap. Handlers interact through the request channels and the snapshot
// accessors.
type PollService struct {
	sess        GlucoseSession
	store       driven.ReadingStore
	publisher   driven.ReadingPublisher
	broadcaster LiveBroadcaster

	interval     time.Duration
	errorDisplay time.Duration
	history      time.Duration
	now          func() time.Time

	loginCh  chan loginRequest
	logoutCh chan logoutRequest

	mu        sync.RWMutex
	state     PollState
	lastErr   error
	errUntil  time.Time
	window    *model.ReadingWindow
	userState *model.UserState
}

// NewPollService creates a PollService. publisher and broadcaster may be nil
// when the corresponding output is disabled.
func NewPollService(
	sess GlucoseSession,
	store driven.ReadingStore,
	publisher driven.ReadingPublisher,
	broadcaster LiveBroadcaster,
	interval time.Duration,
	errorDisplay time.Duration,
	historyWindow time.Duration,
) *PollService {
	return &PollService{
		sess:         sess,
		store:        store,
		publisher:    publisher,
		broadcaster:  broadcaster,
		interval:     interval,
		errorDisplay: errorDisplay,
		history:      historyWindow,
		now:          time.Now,
		loginCh:      make(chan loginRequest),
		logoutCh:     make(chan logoutRequest),
		state:        StateUnauthenticated,
		window:       model.NewReadingWindow(model.WindowCapacity),
	}
}

// Start runs the polling loop. It restores the reading window from the
// store, attempts a silent login from seeded or persisted credentials, then
// polls on the configured interval and serves login/logout requests. Start
// blocks until the context is canceled.
func (s *PollService) Start(ctx context.Context) {
	s.restoreWindow(ctx)
	s.silentLogin(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.sess.Logout()
			slog.Info("poll service stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		case req := <-s.loginCh:
			req.done <- s.handleLogin(ctx, req)
		case req := <-s.logoutCh:
			req.done <- s.handleLogout(ctx, req)
		}
	}
}

// Login authenticates through the poll loop, so the attempt is serialized
// with ticks. It blocks until the login completes or the context is
// canceled. The returned error is the vendor rejection for the form to show.
func (s *PollService) Login(ctx context.Context, username, password string, remember bool) error {
	done := make(chan error, 1)
	req := loginRequest{username: username, password: password, remember: remember, done: done}

	select {
	case s.loginCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Logout ends the session. When forget is set, persisted credentials are
// cleared as well.
func (s *PollService) Logout(ctx context.Context, forget bool) error {
	done := make(chan error, 1)
	req := logoutRequest{forget: forget, done: done}

	select {
	case s.logoutCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// restoreWindow seeds the live window from persisted readings, so the chart
// has data before the first fetch completes. A fresh history fetch replaces
// the restored readings once the session is up.
func (s *PollService) restoreWindow(ctx context.Context) {
	stored, err := s.store.ListSince(ctx, s.now().Add(-s.history))
	if err != nil {
		slog.Error("failed to load persisted readings", "error", err)
		return
	}
	if len(stored) == 0 {
		return
	}

	s.mu.Lock()
	s.window.Replace(stored)
	s.mu.Unlock()

	slog.Info("reading window restored", "readings", len(stored))
}

// silentLogin tries to establish a session without user interaction. A
// vendor rejection invalidates the persisted credentials, so they are
// cleared; missing credentials just leave the login form up.
func (s *PollService) silentLogin(ctx context.Context) {
	err := s.sess.EnsureValid(ctx)
	if err == nil {
		slog.Info("silent login succeeded")
		s.enterRunning(ctx)
		return
	}

	if errors.Is(err, driven.ErrNoCredentials) {
		slog.Info("no saved credentials, waiting for login")
		return
	}

	var authErr *driven.AuthError
	if errors.As(err, &authErr) {
		slog.Warn("saved credentials rejected, clearing them", "status", authErr.StatusCode)
		if err := s.sess.ForgetCredentials(ctx); err != nil {
			slog.Error("failed to clear rejected credentials", "error", err)
		}
		return
	}

	slog.Error("silent login failed", "error", err)
}

func (s *PollService) handleLogin(ctx context.Context, req loginRequest) error {
	s.setState(StateAuthenticating)

	if err := s.sess.Authenticate(ctx, req.username, req.password, req.remember); err != nil {
		slog.Warn("login failed", "username", req.username, "error", err)
		s.setState(StateUnauthenticated)
		return err
	}

	slog.Info("login succeeded", "username", req.username)
	s.enterRunning(ctx)
	return nil
}

func (s *PollService) handleLogout(ctx context.Context, req logoutRequest) error {
	s.sess.Logout()

	s.mu.Lock()
	s.state = StateUnauthenticated
	s.lastErr = nil
	s.window = model.NewReadingWindow(model.WindowCapacity)
	s.userState = nil
	s.mu.Unlock()

	if req.forget {
		if err := s.sess.ForgetCredentials(ctx); err != nil {
			slog.Error("failed to clear persisted credentials", "error", err)
		}
	}

	slog.Info("logged out", "forget", req.forget)
	return nil
}

// enterRunning seeds the reading window from a fresh history fetch, replaces
// the persisted history, and runs an immediate poll so the dashboard shows a
// current value without waiting for the first tick.
func (s *PollService) enterRunning(ctx context.Context) {
	s.setState(StateRunning)

	history, err := s.sess.FetchHistory(ctx)
	if err != nil {
		slog.Error("history fetch failed", "error", err)
		s.enterError(err)
		return
	}

	s.mu.Lock()
	s.window.Replace(history)
	s.mu.Unlock()

	if err := s.store.ReplaceHistory(ctx, history); err != nil {
		slog.Error("failed to persist history", "error", err)
	}

	slog.Info("history seeded", "readings", len(history))

	s.tick(ctx)
}

// tick polls the current user state and fans the reading out. Failures put
// the loop into the error state; the ticker keeps running regardless.
func (s *PollService) tick(ctx context.Context) {
	switch s.State() {
	case StateRunning, StateErrorDisplayed:
	default:
		return
	}

	state, err := s.sess.FetchUserState(ctx)
	if err != nil {
		slog.Error("poll tick failed", "error", err)
		s.enterError(err)
		return
	}

	s.mu.Lock()
	s.userState = state
	s.state = StateRunning
	s.lastErr = nil
	s.mu.Unlock()

	reading := ReadingFromState(state, s.now())
	if reading == nil {
		slog.Debug("no current glucose value", "transmitter_connected", state.TransmitterConnected)
		return
	}

	s.mu.Lock()
	s.window.Append(*reading)
	s.mu.Unlock()

	if err := s.store.Append(ctx, *reading); err != nil {
		slog.Error("failed to persist reading", "error", err)
	}
	if err := s.store.Prune(ctx, s.now().Add(-s.history)); err != nil {
		slog.Error("failed to prune old readings", "error", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(*reading)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(*reading); err != nil {
			slog.Error("failed to publish reading", "error", err)
		}
	}

	slog.Debug("reading polled",
		"value", reading.Value,
		"trend", string(reading.Trend),
		"zone", string(model.Categorize(reading.Value)),
	)
}

// enterError records a failed cycle. The error is shown for the configured
// display duration and then expires lazily via State and LastError.
func (s *PollService) enterError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateErrorDisplayed
	s.lastErr = err
	s.errUntil = s.now().Add(s.errorDisplay)
}

func (s *PollService) setState(state PollState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	if state != StateErrorDisplayed {
		s.lastErr = nil
	}
}

// State returns the current controller state. An expired error display
// reads as running again.
func (s *PollService) State() PollState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state == StateErrorDisplayed && !s.now().Before(s.errUntil) {
		return StateRunning
	}
	return s.state
}

// LastError returns the error currently being displayed, or nil once the
// display window has passed.
func (s *PollService) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateErrorDisplayed || !s.now().Before(s.errUntil) {
		return nil
	}
	return s.lastErr
}

// Readings returns a copy of the live reading window, oldest first.
func (s *PollService) Readings() []model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.Snapshot()
}

// Latest returns the newest reading in the window, or nil when empty.
func (s *PollService) Latest() *model.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.window.Latest()
}

// UserState returns the most recent patient state, or nil before the first
// successful poll.
func (s *PollService) UserState() *model.UserState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userState
}

// ReadingFromState converts a polled user state into a reading stamped at
// the given instant, or nil when the vendor reports no current value.
func ReadingFromState(state *model.UserState, now time.Time) *model.Reading {
	if state == nil || state.CurrentGlucose == nil {
		return nil
	}
	return &model.Reading{
		Timestamp: now,
		Value:     *state.CurrentGlucose,
		Trend:     state.Trend.Collapse(),
	}
}
