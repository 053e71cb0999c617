package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// AuthService owns the client's login state. It keeps the session in
// memory and in the SessionStore, logs the user out when the session
// expires, and announces every change on AuthStatus and UserNames.
type AuthService struct {
	client *Client
	store  SessionStore
	nav    Navigator
	clock  Clock
	logger *slog.Logger

	mu            sync.Mutex
	token         string
	authenticated bool
	userID        string
	userName      string
	expiresAt     time.Time
	timer         Timer
	timerGen      uint64

	status    Bus[bool]
	userNames Bus[string]
}

func NewAuthService(client *Client, store SessionStore, nav Navigator, clock Clock, logger *slog.Logger) *AuthService {
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		client: client,
		store:  store,
		nav:    nav,
		clock:  clock,
		logger: logger,
	}
}

// CreateUser registers a new account. Failure is reported as an
// unauthenticated status, never to the caller.
func (s *AuthService) CreateUser(ctx context.Context, email, password, fullName string) {
	req := signupRequest{Email: email, Password: password, FullName: fullName}
	if err := s.client.doJSON(ctx, http.MethodPost, "/user/signup", nil, req, nil); err != nil {
		s.logger.Info("signup failed", "email", email, "error", err)
		s.status.Publish(false)
		return
	}

	s.logger.Info("signed up", "email", email)
	s.nav.Navigate(routeHome)
}

// Login authenticates against the backend and starts a session that ends
// after the expiresIn the backend returns. Failure is reported as an
// unauthenticated status.
func (s *AuthService) Login(ctx context.Context, email, password string) {
	var resp loginResponse
	req := loginRequest{Email: email, Password: password}
	if err := s.client.doJSON(ctx, http.MethodPost, "/user/login", nil, req, &resp); err != nil {
		s.logger.Info("login failed", "email", email, "error", err)
		s.status.Publish(false)
		return
	}
	if resp.Token == "" {
		return
	}

	expiresIn := time.Duration(resp.ExpiresIn * float64(time.Second))
	session := Session{
		Token:     resp.Token,
		ExpiresAt: s.clock.Now().Add(expiresIn),
		UserID:    resp.UserID,
		UserName:  resp.FullName,
	}

	s.mu.Lock()
	s.setSessionLocked(session)
	s.scheduleLocked(expiresIn)
	s.mu.Unlock()

	s.status.Publish(true)
	s.userNames.Publish(session.UserName)

	if err := s.store.Save(session); err != nil {
		s.logger.Error("saving session", "error", err)
	}

	s.logger.Info("logged in", "user_id", session.UserID, "expires_at", session.ExpiresAt)
	s.nav.Navigate(routeHome)
}

// AutoAuthUser restores a stored session that has not yet expired. An
// expired session is left in the store.
func (s *AuthService) AutoAuthUser() {
	session, err := s.store.Load()
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			s.logger.Warn("loading stored session", "error", err)
		}
		return
	}

	remaining := session.ExpiresAt.Sub(s.clock.Now())
	if remaining <= 0 {
		s.logger.Debug("stored session expired", "expires_at", session.ExpiresAt)
		return
	}

	s.mu.Lock()
	s.setSessionLocked(*session)
	s.scheduleLocked(remaining)
	s.mu.Unlock()

	s.status.Publish(true)
	s.userNames.Publish(session.UserName)
	s.logger.Info("restored session", "user_id", session.UserID, "remaining", remaining)
}

// Logout ends the session. Calling it with no session is harmless.
func (s *AuthService) Logout() {
	s.mu.Lock()
	s.token = ""
	s.authenticated = false
	s.userID = ""
	s.userName = ""
	s.expiresAt = time.Time{}
	s.cancelTimerLocked()
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		s.logger.Error("clearing session", "error", err)
	}

	s.status.Publish(false)
	s.userNames.Publish("")
	s.nav.Navigate(routeHome)
}

func (s *AuthService) setSessionLocked(session Session) {
	s.token = session.Token
	s.authenticated = true
	s.userID = session.UserID
	s.userName = session.UserName
	s.expiresAt = session.ExpiresAt
}

// scheduleLocked replaces any pending expiry with one d from now.
func (s *AuthService) scheduleLocked(d time.Duration) {
	s.cancelTimerLocked()
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(d, func() { s.expire(gen) })
}

func (s *AuthService) cancelTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	// A callback already past Stop sees a newer generation and does nothing.
	s.timerGen++
}

func (s *AuthService) expire(gen uint64) {
	s.mu.Lock()
	stale := gen != s.timerGen
	s.mu.Unlock()
	if stale {
		return
	}

	s.logger.Info("session expired")
	s.Logout()
}

func (s *AuthService) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated
}

func (s *AuthService) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *AuthService) UserName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userName
}

func (s *AuthService) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// ExpiresAt is zero when there is no session.
func (s *AuthService) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

func (s *AuthService) AuthStatus() *Bus[bool] {
	return &s.status
}

func (s *AuthService) UserNames() *Bus[string] {
	return &s.userNames
}
