package account

import (
	"errors"
	"fmt"
	"time"

	"bookstall/internal/ratelimit"
	"bookstall/pkg/auth"
	"bookstall/pkg/domain"
	"bookstall/pkg/status"
	"bookstall/pkg/store"
	"bookstall/pkg/token"
)

// Manager handles registration and session lifecycle. It holds no state of
// its own; every check-then-write runs inside one storage transaction.
type Manager struct {
	store   store.Store
	tokens  *token.Service
	limiter *ratelimit.FixedWindowLimiter
}

type Option func(*Manager)

// WithLoginLimiter throttles login attempts per user id. Over-quota attempts
// report the same authorization failure as bad credentials.
func WithLoginLimiter(l *ratelimit.FixedWindowLimiter) Option {
	return func(m *Manager) {
		m.limiter = l
	}
}

// NewManager wires the account manager.
func NewManager(st store.Store, tokens *token.Service, opts ...Option) *Manager {
	m := &Manager{store: st, tokens: tokens}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// newTerminal generates a session terminal label.
func newTerminal() string {
	return fmt.Sprintf("terminal_%d", time.Now().UnixNano())
}

// Register creates a user with a fresh session and zero balance.
func (m *Manager) Register(userID, password string) (err error) {
	defer status.Recover(&err)

	hash, err := auth.HashPassword(password)
	if err != nil {
		return status.Internal(err)
	}
	terminal := newTerminal()
	tok, err := m.tokens.Issue(userID, terminal)
	if err != nil {
		return status.Internal(err)
	}
	return m.store.WithinTx(func(tx store.Store) error {
		exists, err := tx.UserExists(userID)
		if err != nil {
			return status.StorageFault(err)
		}
		if exists {
			return status.ExistUser(userID)
		}
		now := time.Now().UTC()
		user := domain.User{
			ID:           userID,
			PasswordHash: hash,
			Balance:      0,
			Token:        tok,
			Terminal:     terminal,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateUser(user); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return status.ExistUser(userID)
			}
			return status.StorageFault(err)
		}
		return nil
	})
}

// CheckPassword verifies the stored credential. Unknown user and wrong
// password are reported identically.
func (m *Manager) CheckPassword(userID, password string) (err error) {
	defer status.Recover(&err)
	return checkPassword(m.store, userID, password)
}

func checkPassword(tx store.Store, userID, password string) error {
	user, ok, err := tx.GetUser(userID)
	if err != nil {
		return status.StorageFault(err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return status.Authorization()
	}
	return nil
}

// CheckToken verifies that the presented token is the user's current,
// fresh session token.
func (m *Manager) CheckToken(userID, presented string) (err error) {
	defer status.Recover(&err)
	return m.checkToken(m.store, userID, presented)
}

func (m *Manager) checkToken(tx store.Store, userID, presented string) error {
	user, ok, err := tx.GetUser(userID)
	if err != nil {
		return status.StorageFault(err)
	}
	if !ok || !m.tokens.Validate(userID, presented, user.Token) {
		return status.Authorization()
	}
	return nil
}

// Login verifies the password and binds a new session to the terminal,
// invalidating any previously issued token.
func (m *Manager) Login(userID, password, terminal string) (tok string, err error) {
	defer status.Recover(&err)

	if m.limiter != nil && !m.limiter.Allow(userID) {
		return "", status.Authorization()
	}
	tok, err = m.tokens.Issue(userID, terminal)
	if err != nil {
		return "", status.Internal(err)
	}
	err = m.store.WithinTx(func(tx store.Store) error {
		if err := checkPassword(tx, userID, password); err != nil {
			return err
		}
		rows, err := tx.SetUserSession(userID, tok, terminal)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.Authorization()
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return tok, nil
}

// Logout revokes the session by rotating the stored token to a fresh one
// bound to a generated terminal, which is never handed out.
func (m *Manager) Logout(userID, presented string) (err error) {
	defer status.Recover(&err)

	terminal := newTerminal()
	dummy, err := m.tokens.Issue(userID, terminal)
	if err != nil {
		return status.Internal(err)
	}
	return m.store.WithinTx(func(tx store.Store) error {
		if err := m.checkToken(tx, userID, presented); err != nil {
			return err
		}
		rows, err := tx.SetUserSession(userID, dummy, terminal)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.Authorization()
		}
		return nil
	})
}

// ChangePassword updates the credential and rotates the session, forcing
// re-login everywhere.
func (m *Manager) ChangePassword(userID, oldPassword, newPassword string) (err error) {
	defer status.Recover(&err)

	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return status.Internal(err)
	}
	terminal := newTerminal()
	tok, err := m.tokens.Issue(userID, terminal)
	if err != nil {
		return status.Internal(err)
	}
	return m.store.WithinTx(func(tx store.Store) error {
		if err := checkPassword(tx, userID, oldPassword); err != nil {
			return err
		}
		rows, err := tx.SetUserCredentials(userID, hash, tok, terminal)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows == 0 {
			return status.Authorization()
		}
		return nil
	})
}

// Unregister deletes the account after verifying the password. A delete that
// affects no rows means the user vanished concurrently and is reported as an
// authorization failure, matching the uniform policy.
func (m *Manager) Unregister(userID, password string) (err error) {
	defer status.Recover(&err)

	return m.store.WithinTx(func(tx store.Store) error {
		if err := checkPassword(tx, userID, password); err != nil {
			return err
		}
		rows, err := tx.DeleteUser(userID)
		if err != nil {
			return status.StorageFault(err)
		}
		if rows != 1 {
			return status.Authorization()
		}
		return nil
	})
}
