package apiclient

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// SessionContext holds the signed-in user's token, profile and working role.
// It is created explicitly and passed to a Client by reference; all methods
// are safe for concurrent use.
type SessionContext struct {
	mu    sync.RWMutex
	token string
	user  *model.User
	role  model.WorkingRole
}

// NewSessionContext returns an empty, signed-out session.
func NewSessionContext() *SessionContext {
	return &SessionContext{}
}

// Token returns the bearer token, or "" when signed out.
func (s *SessionContext) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the signed-in user, or nil.
func (s *SessionContext) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Role returns the working role chosen for this session.
func (s *SessionContext) Role() model.WorkingRole {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Authenticated reports whether a token is present.
func (s *SessionContext) Authenticated() bool {
	return s.Token() != ""
}

// SetAuth stores the token and user returned by login or registration.
func (s *SessionContext) SetAuth(token string, user model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = &user
}

// SetRole switches the working role.
func (s *SessionContext) SetRole(role model.WorkingRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// Clear signs the session out.
func (s *SessionContext) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	s.role = ""
}

// ────────────────────────────────────────────────────────────────────────────
// Profile persistence
// ────────────────────────────────────────────────────────────────────────────

// Profile is the on-disk form of a session plus the server it belongs to.
type Profile struct {
	Server string            `yaml:"server"`
	Token  string            `yaml:"token,omitempty"`
	Role   model.WorkingRole `yaml:"role,omitempty"`
	User   *ProfileUser      `yaml:"user,omitempty"`
}

// ProfileUser is the subset of the user kept in a profile.
type ProfileUser struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Email string     `yaml:"email"`
	Role  model.Role `yaml:"role"`
}

// DefaultProfilePath returns ~/.config/examctl/session.yaml (or the
// platform equivalent).
func DefaultProfilePath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config dir: %w", err)
	}
	return filepath.Join(dir, "examctl", "session.yaml"), nil
}

// LoadProfile reads a profile. A missing file yields an empty profile.
func LoadProfile(path string) (*Profile, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}

	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse profile %s: %w", path, err)
	}
	return &p, nil
}

// Save writes the profile with owner-only permissions.
func (p *Profile) Save(path string) error {
	raw, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Session builds a SessionContext from the profile.
func (p *Profile) Session() *SessionContext {
	s := NewSessionContext()
	s.role = p.Role
	if p.Token == "" || p.User == nil {
		return s
	}

	id, err := uuid.Parse(p.User.ID)
	if err != nil {
		// A profile with a broken user id is treated as signed out.
		return s
	}
	s.token = p.Token
	s.user = &model.User{ID: id, Name: p.User.Name, Email: p.User.Email, Role: p.User.Role}
	return s
}

// Capture copies the session state into the profile.
func (p *Profile) Capture(s *SessionContext) {
	p.Token = s.Token()
	p.Role = s.Role()
	p.User = nil
	if u := s.User(); u != nil {
		p.User = &ProfileUser{ID: u.ID.String(), Name: u.Name, Email: u.Email, Role: u.Role}
	}
}
