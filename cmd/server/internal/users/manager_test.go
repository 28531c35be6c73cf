package users

import (
	"errors"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir(), []byte("0123456789abcdef0123456789abcdef"), 15*time.Minute, 720*time.Hour)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	return m
}

func TestCreateAndAuthenticate(t *testing.T) {
	m := newTestManager(t)

	u, err := m.CreateUser("alice", "s3cret", []string{ScopeDocRead, ScopeDocWrite, "bogus.scope"})
	if err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}
	if len(u.Scopes) != 2 {
		t.Errorf("expected unknown scopes to be dropped, got %v", u.Scopes)
	}

	if _, err := m.CreateUser("alice", "other", nil); !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}

	if _, err := m.Authenticate("alice", "s3cret"); err != nil {
		t.Errorf("Authenticate failed: %v", err)
	}
	if _, err := m.Authenticate("alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := m.Authenticate("nobody", "s3cret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestTokenPairRoundTrip(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateUser("bob", "pw", []string{ScopeDocWrite}); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	pair, err := m.GenerateTokenPair("bob")
	if err != nil {
		t.Fatalf("GenerateTokenPair returned error: %v", err)
	}

	claims, err := m.ParseAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ParseAccessToken returned error: %v", err)
	}
	if claims.Username != "bob" {
		t.Errorf("expected username bob, got %s", claims.Username)
	}
	if !HasScope(claims.Scopes, ScopeDocWrite) {
		t.Errorf("expected doc.write scope in claims, got %v", claims.Scopes)
	}

	// a refresh token must not pass access validation
	if _, err := m.ParseAccessToken(pair.RefreshToken); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType, got %v", err)
	}

	// and an access token must not be exchangeable
	if _, err := m.RefreshTokenPair(pair.AccessToken); !errors.Is(err, ErrWrongTokenType) {
		t.Errorf("expected ErrWrongTokenType, got %v", err)
	}

	renewed, err := m.RefreshTokenPair(pair.RefreshToken)
	if err != nil {
		t.Fatalf("RefreshTokenPair returned error: %v", err)
	}
	if _, err := m.ParseAccessToken(renewed.AccessToken); err != nil {
		t.Errorf("renewed access token did not validate: %v", err)
	}
}

func TestExpiredAccessToken(t *testing.T) {
	m, err := NewManager(t.TempDir(), []byte("0123456789abcdef0123456789abcdef"), time.Nanosecond, time.Hour)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if _, err := m.CreateUser("carol", "pw", nil); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	pair, err := m.GenerateTokenPair("carol")
	if err != nil {
		t.Fatalf("GenerateTokenPair returned error: %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := m.ParseAccessToken(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	// the refresh token is still good and yields a fresh pair
	if _, err := m.RefreshTokenPair(pair.RefreshToken); err != nil {
		t.Errorf("RefreshTokenPair returned error: %v", err)
	}
}

func TestPersistenceAcrossManagers(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir, []byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	if _, err := m1.CreateUser("dave", "pw", []string{ScopeProjectRead}); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	m2, err := NewManager(dir, []byte("0123456789abcdef0123456789abcdef"), time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewManager returned error: %v", err)
	}
	u, ok := m2.GetUser("dave")
	if !ok {
		t.Fatalf("user dave not found after reload")
	}
	if u.Password != "" {
		t.Errorf("GetUser leaked the password hash")
	}
}

func TestChangePassword(t *testing.T) {
	m := newTestManager(t)
	if _, err := m.CreateUser("erin", "old", nil); err != nil {
		t.Fatalf("CreateUser returned error: %v", err)
	}

	if err := m.ChangePassword("erin", "wrong", "new"); err == nil {
		t.Fatalf("expected error for wrong old password")
	}
	if err := m.ChangePassword("erin", "old", "new"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := m.Authenticate("erin", "new"); err != nil {
		t.Errorf("Authenticate with new password failed: %v", err)
	}
}
