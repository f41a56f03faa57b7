// Package registry persists user accounts as a JSON array on disk.
// The file is the source of truth: every mutation rewrites the whole
// array, matching the external format consumed by other tooling.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Sentinel errors translated into AuthError frames by the session.
var (
	ErrUserNotFound  = errors.New("user not found")
	ErrWrongPassword = errors.New("wrong password")
	ErrUserExists    = errors.New("user already exists")
)

// User is one persisted account. Password holds a bcrypt hash, never
// the plaintext token.
type User struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	LastVisit int64  `json:"last_visit"`
}

// Store reads and rewrites the registry file under a single lock.
// A username set is kept in memory so presence checks made on the
// message path never touch the disk.
type Store struct {
	path string

	mu    sync.Mutex
	names map[string]struct{}
}

// Open prepares a registry at path. A missing file is a valid empty
// registry (first boot); a malformed one fails fast.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create registry directory: %w", err)
		}
	}

	st := &Store{path: path}
	st.mu.Lock()
	users, err := st.loadLocked()
	st.mu.Unlock()
	if err != nil {
		return nil, err
	}
	slog.Info("user registry opened", "path", path, "users", len(users))
	return st, nil
}

// Load returns every persisted account.
func (s *Store) Load() ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Append rewrites the registry with record added at the end. The
// caller owns uniqueness; Register is the checked path.
func (s *Store) Append(record User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return err
	}
	return s.saveLocked(append(users, record))
}

// UpdateLastVisit stamps username's last_visit and rewrites the file.
func (s *Store) UpdateLastVisit(username string, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return err
	}
	for i := range users {
		if users[i].Username == username {
			users[i].LastVisit = t.Unix()
			return s.saveLocked(users)
		}
	}
	return ErrUserNotFound
}

// Backup writes a copy of the registry array to outPath.
func (s *Store) Backup(outPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o600); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}
	return nil
}

// Register creates a new account, hashing the password before it is
// written out.
func (s *Store) Register(username, password string, now time.Time) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.Username == username {
			return User{}, ErrUserExists
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	user := User{Username: username, Password: string(hash), LastVisit: now.Unix()}
	if err := s.saveLocked(append(users, user)); err != nil {
		return User{}, err
	}
	slog.Info("user registered", "user", username)
	return user, nil
}

// Authenticate verifies a login and stamps last_visit on success.
func (s *Store) Authenticate(username, password string, now time.Time) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadLocked()
	if err != nil {
		return User{}, err
	}
	for i, u := range users {
		if u.Username != username {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(password)) != nil {
			return User{}, ErrWrongPassword
		}
		users[i].LastVisit = now.Unix()
		if err := s.saveLocked(users); err != nil {
			return User{}, err
		}
		slog.Debug("user authenticated", "user", username)
		return users[i], nil
	}
	return User{}, ErrUserNotFound
}

// Exists reports whether a username is registered. It answers from
// the in-memory set so private-message routing never blocks on I/O.
func (s *Store) Exists(username string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.names == nil {
		if _, err := s.loadLocked(); err != nil {
			slog.Error("registry reload failed", "err", err)
			return false
		}
	}
	_, ok := s.names[username]
	return ok
}

// Count returns the number of registered accounts.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

func (s *Store) loadLocked() ([]User, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.names = map[string]struct{}{}
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	s.rebuildNames(users)
	return users, nil
}

func (s *Store) saveLocked(users []User) error {
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	s.rebuildNames(users)
	return nil
}

func (s *Store) rebuildNames(users []User) {
	s.names = make(map[string]struct{}, len(users))
	for _, u := range users {
		s.names[u.Username] = struct{}{}
	}
}
