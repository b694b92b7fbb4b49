package apiclient

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/google/uuid"
)

func TestSessionContextLifecycle(t *testing.T) {
	s := NewSessionContext()
	if s.Authenticated() || s.User() != nil || s.Role() != "" {
		t.Fatal("new session is not empty")
	}

	user := model.User{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", Role: model.RoleUser}
	s.SetAuth("tok", user)
	s.SetRole(model.WorkingRoleExaminee)

	if !s.Authenticated() || s.Token() != "tok" || s.Role() != model.WorkingRoleExaminee {
		t.Fatalf("session = %q/%q", s.Token(), s.Role())
	}

	got := s.User()
	got.Name = "changed"
	if s.User().Name != "Ana" {
		t.Fatal("User() exposed internal state")
	}

	s.Clear()
	if s.Authenticated() || s.User() != nil || s.Role() != "" {
		t.Fatal("Clear left state behind")
	}
}

func TestSessionContextConcurrentAccess(t *testing.T) {
	s := NewSessionContext()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s.SetAuth("tok", model.User{ID: uuid.New()})
			s.SetRole(model.WorkingRoleExaminer)
		}()
		go func() {
			defer wg.Done()
			_ = s.Token()
			_ = s.User()
			_ = s.Authenticated()
		}()
	}
	wg.Wait()
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "examctl", "session.yaml")

	empty, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile missing file: %v", err)
	}
	if empty.Session().Authenticated() {
		t.Fatal("empty profile produced an authenticated session")
	}

	s := NewSessionContext()
	user := model.User{ID: uuid.New(), Name: "Ana", Email: "ana@example.com", Role: model.RoleAdmin}
	s.SetAuth("tok", user)
	s.SetRole(model.WorkingRoleExaminer)

	p := &Profile{Server: "http://localhost:8080/api/v1"}
	p.Capture(s)
	if err := p.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("profile perm = %o, want 600", perm)
	}

	loaded, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("LoadProfile: %v", err)
	}
	if loaded.Server != p.Server {
		t.Fatalf("server = %q", loaded.Server)
	}

	restored := loaded.Session()
	if restored.Token() != "tok" || restored.Role() != model.WorkingRoleExaminer {
		t.Fatalf("restored = %q/%q", restored.Token(), restored.Role())
	}
	if u := restored.User(); u == nil || u.ID != user.ID || u.Role != model.RoleAdmin {
		t.Fatalf("restored user = %+v", u)
	}
}

func TestProfileWithBrokenUserIsSignedOut(t *testing.T) {
	p := &Profile{Token: "tok", User: &ProfileUser{ID: "not-a-uuid"}}
	if p.Session().Authenticated() {
		t.Fatal("broken profile should be signed out")
	}
}

func TestLoadProfileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.yaml")
	if err := os.WriteFile(path, []byte("server: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProfile(path); err == nil {
		t.Fatal("expected parse error")
	}
}
