package store

import (
	"context"
	"log/slog"
	"sync"

	"github.com/robfarr/markpilot/internal/client"
	"github.com/robfarr/markpilot/internal/models"
)

// AuthAPI is the slice of the backend client the auth store needs. The
// session accessors let the store seed and capture the cookie that every
// other call rides on.
type AuthAPI interface {
	Login(ctx context.Context, creds client.Credentials) (*models.User, error)
	Signup(ctx context.Context, input client.SignupInput) (*models.User, error)
	Logout(ctx context.Context) error
	CurrentUser(ctx context.Context) (*models.User, error)
	SetSession(cookie string)
	Session() string
}

// AuthStore holds the session user and authentication flag. The local cache
// only primes the UI; the server-set cookie is the authority, so Verify
// clears the cache whenever the backend rejects the session.
type AuthStore struct {
	api    AuthAPI
	db     *DB
	logger *slog.Logger

	mu         sync.Mutex
	session    models.AuthSession
	rehydrated bool
}

// NewAuthStore creates an auth store backed by db (nil db disables
// persistence, used by tests).
func NewAuthStore(api AuthAPI, db *DB, logger *slog.Logger) *AuthStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthStore{api: api, db: db, logger: logger}
}

// Rehydrate restores the persisted session and seeds the client's cookie.
// Must run before anything that depends on authentication state, including
// the realtime connector.
func (s *AuthStore) Rehydrate() {
	defer func() {
		s.mu.Lock()
		s.rehydrated = true
		s.mu.Unlock()
	}()

	if s.db == nil {
		return
	}
	var sess models.AuthSession
	ok, err := s.db.Get(keyAuthSession, &sess)
	if err != nil {
		s.logger.Warn("auth session rehydration failed", "error", err)
		return
	}
	if !ok {
		return
	}
	s.mu.Lock()
	s.session = sess
	s.mu.Unlock()
	if sess.Cookie != "" {
		s.api.SetSession(sess.Cookie)
	}
}

// Rehydrated reports whether persisted state has finished loading.
func (s *AuthStore) Rehydrated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rehydrated
}

// Login authenticates and caches the resulting session.
func (s *AuthStore) Login(ctx context.Context, creds client.Credentials) (*models.User, error) {
	user, err := s.api.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	s.setSession(user)
	return user, nil
}

// Signup creates an account and caches the resulting session.
func (s *AuthStore) Signup(ctx context.Context, input client.SignupInput) (*models.User, error) {
	user, err := s.api.Signup(ctx, input)
	if err != nil {
		return nil, err
	}
	s.setSession(user)
	return user, nil
}

// Logout invalidates the server session and clears the local cache even if
// the server call fails.
func (s *AuthStore) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	s.clearSession()
	return err
}

// Verify asks the backend who the session belongs to. A rejection clears the
// local cache regardless of what was persisted.
func (s *AuthStore) Verify(ctx context.Context) (*models.User, error) {
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		if !client.IsUnreachable(err) {
			s.logger.Info("session no longer valid, clearing local cache")
			s.clearSession()
		}
		return nil, err
	}
	if user == nil {
		s.clearSession()
		return nil, nil
	}
	s.setSession(user)
	return user, nil
}

// Authenticated reports the cached authentication flag.
func (s *AuthStore) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.Authenticated
}

// User returns the cached session user, nil when logged out.
func (s *AuthStore) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session.User
}

func (s *AuthStore) setSession(user *models.User) {
	s.mu.Lock()
	s.session = models.AuthSession{
		User:          user,
		Authenticated: true,
		Cookie:        s.api.Session(),
	}
	s.mu.Unlock()
	s.persist()
}

func (s *AuthStore) clearSession() {
	s.mu.Lock()
	s.session = models.AuthSession{}
	s.mu.Unlock()
	s.api.SetSession("")
	if s.db != nil {
		if err := s.db.Delete(keyAuthSession); err != nil {
			s.logger.Warn("auth session delete failed", "error", err)
		}
	}
}

func (s *AuthStore) persist() {
	if s.db == nil {
		return
	}
	s.mu.Lock()
	sess := s.session
	s.mu.Unlock()
	if err := s.db.Put(keyAuthSession, sess); err != nil {
		s.logger.Warn("auth session persistence failed", "error", err)
	}
}
