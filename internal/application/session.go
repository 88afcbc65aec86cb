// Package application contains use-case orchestration services.
package application

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

const (
	// tokenSafetyMargin is subtracted from the server-reported token
	// lifetime so we refresh before the vendor actually rejects us.
	tokenSafetyMargin = 60 * time.Second

	// defaultExpiresIn is assumed when the token response omits a
	// lifetime. Matches the vendor's observed 12-hour tokens.
	defaultExpiresIn = 43200
)

// SessionService owns the authenticated vendor session: token lifecycle,
// credential persistence, and the fetch operations that need a bearer token.
// All session state lives behind the mutex; there are no package-level
// globals.
type SessionService struct {
	api           driven.GlucoseAPI
	credStore     driven.CredentialStore
	historyWindow time.Duration
	now           func() time.Time

	mu      sync.Mutex
	session model.Session
}

// NewSessionService creates a SessionService. historyWindow is how far back
// FetchHistory reaches, typically 24 hours.
func NewSessionService(api driven.GlucoseAPI, credStore driven.CredentialStore, historyWindow time.Duration) *SessionService {
	return &SessionService{
		api:           api,
		credStore:     credStore,
		historyWindow: historyWindow,
		now:           time.Now,
	}
}

// SeedCredentials plants in-memory credentials without contacting the
// vendor. Used for environment-supplied bootstrap credentials; the next
// EnsureValid performs the actual login.
func (s *SessionService) SeedCredentials(username, password string, remember bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Creds = &model.Credentials{Username: username, Password: password}
	s.session.Remember = remember
}

// Authenticate performs a fresh login with the given credentials. On success
// the credentials are kept in memory for silent refresh; they are persisted
// only when remember is set, otherwise any previously persisted pair is
// cleared. Persistence failures are logged, not surfaced.
func (s *SessionService) Authenticate(ctx context.Context, username, password string, remember bool) error {
	token, err := s.api.Login(ctx, username, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.session = model.Session{
		Token:    token.AccessToken,
		Expiry:   s.expiry(token),
		Creds:    &model.Credentials{Username: username, Password: password},
		Remember: remember,
	}
	s.mu.Unlock()

	if remember {
		if err := s.credStore.Save(ctx, username, password); err != nil {
			slog.Error("failed to persist credentials", "error", err)
		}
	} else {
		if err := s.credStore.Clear(ctx); err != nil {
			slog.Error("failed to clear persisted credentials", "error", err)
		}
	}

	return nil
}

// EnsureValid guarantees an unexpired token, re-authenticating at most once
// from in-memory credentials or, failing that, the credential store. Returns
// driven.ErrNoCredentials when neither source has a usable pair.
func (s *SessionService) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureValidLocked(ctx)
}

func (s *SessionService) ensureValidLocked(ctx context.Context) error {
	if s.session.Valid(s.now()) {
		return nil
	}

	creds := s.session.Creds
	remember := s.session.Remember
	if creds == nil {
		stored, err := s.credStore.Load(ctx)
		if err != nil {
			slog.Error("failed to load persisted credentials", "error", err)
		}
		if stored == nil {
			return driven.ErrNoCredentials
		}
		creds = &model.Credentials{Username: stored.Username, Password: stored.Password}
		remember = true
	}

	token, err := s.api.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		return err
	}

	userID := s.session.UserID
	s.session = model.Session{
		Token:    token.AccessToken,
		Expiry:   s.expiry(token),
		UserID:   userID,
		Creds:    creds,
		Remember: remember,
	}

	return nil
}

// expiry computes the moment the token stops being usable, applying the
// safety margin.
func (s *SessionService) expiry(token model.Token) time.Time {
	lifetime := token.ExpiresIn
	if lifetime <= 0 {
		lifetime = defaultExpiresIn
	}
	return s.now().Add(time.Duration(lifetime)*time.Second - tokenSafetyMargin)
}

// bearer ensures a valid token and returns it.
func (s *SessionService) bearer(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureValidLocked(ctx); err != nil {
		return "", err
	}
	return s.session.Token, nil
}

// FetchUserState returns the current state of the primary followed patient
// and caches its user ID for subsequent history fetches.
func (s *SessionService) FetchUserState(ctx context.Context) (*model.UserState, error) {
	token, err := s.bearer(ctx)
	if err != nil {
		return nil, err
	}

	states, err := s.api.FetchPatientList(ctx, token)
	if err != nil {
		return nil, err
	}
	if len(states) == 0 {
		return nil, fmt.Errorf("patient list is empty: account follows no patients")
	}

	state := states[0]
	s.mu.Lock()
	s.session.UserID = state.UserID
	s.mu.Unlock()

	return &state, nil
}

// FetchHistory fetches the configured window of sensor events for the
// followed patient and returns the glucose readings, oldest first.
func (s *SessionService) FetchHistory(ctx context.Context) ([]model.Reading, error) {
	token, err := s.bearer(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	userID := s.session.UserID
	s.mu.Unlock()

	if userID == "" {
		if _, err := s.FetchUserState(ctx); err != nil {
			return nil, err
		}
		s.mu.Lock()
		userID = s.session.UserID
		s.mu.Unlock()
	}

	end := s.now()
	events, err := s.api.FetchSensorEvents(ctx, token, userID, end.Add(-s.historyWindow), end)
	if err != nil {
		return nil, err
	}

	return ReadingsFromEvents(events), nil
}

// FetchLatest returns the followed patient's current reading stamped with
// the fetch time, or nil when the vendor reports no current value.
func (s *SessionService) FetchLatest(ctx context.Context) (*model.Reading, error) {
	state, err := s.FetchUserState(ctx)
	if err != nil {
		return nil, err
	}
	return ReadingFromState(state, s.now()), nil
}

// Logout discards the in-memory session. Persisted credentials are untouched.
func (s *SessionService) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Clear()
}

// ForgetCredentials removes persisted credentials. In-memory session state is
// untouched; pair with Logout for a full sign-out.
func (s *SessionService) ForgetCredentials(ctx context.Context) error {
	return s.credStore.Clear(ctx)
}

// ReadingsFromEvents filters sensor events down to glucose measurements and
// returns them as readings ordered ascending by timestamp. Events carry no
// trend of their own; historical readings are flagged stable.
func ReadingsFromEvents(events []model.SensorEvent) []model.Reading {
	readings := make([]model.Reading, 0, len(events))
	for _, e := range events {
		if !e.IsGlucose() {
			continue
		}
		readings = append(readings, model.Reading{
			Timestamp: e.EventDate,
			Value:     int(e.Value),
			Trend:     model.TrendStable,
		})
	}

	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})

	return readings
}
