package users

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Scope definitions
const (
	ScopeProjectRead  = "project.read"
	ScopeProjectWrite = "project.write"
	ScopeDocRead      = "doc.read"
	ScopeDocWrite     = "doc.write"
	ScopeUserManage   = "user.manage"
)

var allScopes = []string{
	ScopeProjectRead, ScopeProjectWrite,
	ScopeDocRead, ScopeDocWrite,
	ScopeUserManage,
}

// Token types carried in JWT claims. A refresh token can only be exchanged
// for a new token pair; it is never accepted on the API or the realtime
// handshake.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrInvalidToken       = errors.New("invalid token")
	ErrWrongTokenType     = errors.New("wrong token type")
	ErrUserExists         = errors.New("user exists")
	ErrUserNotFound       = errors.New("user not found")
)

// User is the stored account record. Password holds a bcrypt hash.
type User struct {
	Username  string    `json:"username"`
	Password  string    `json:"password_hash"`
	Scopes    []string  `json:"scopes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Claims are the custom JWT claims for both access and refresh tokens.
type Claims struct {
	Username  string   `json:"username"`
	Scopes    []string `json:"scopes"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenPair is the result of a login or a refresh exchange.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Manager owns the user store and JWT issuance.
// Users are kept in a JSON file under the store directory.
type Manager struct {
	mu         sync.RWMutex
	users      map[string]*User
	secretKey  []byte
	storePath  string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a manager; secret signs all JWTs.
func NewManager(storeDir string, secret []byte, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("secret key required")
	}
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	m := &Manager{
		users:      map[string]*User{},
		secretKey:  secret,
		storePath:  filepath.Join(storeDir, "users.json"),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func hashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func checkPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// load reads the user file; a missing file means first run.
func (m *Manager) load() error {
	b, err := os.ReadFile(m.storePath)
	if err != nil {
		return nil // first run
	}
	var arr []*User
	if err := json.Unmarshal(b, &arr); err != nil {
		return err
	}
	for _, u := range arr {
		m.users[u.Username] = u
	}
	return nil
}

// save writes the full user set to disk.
func (m *Manager) save() error {
	arr := []*User{}
	for _, u := range m.users {
		arr = append(arr, u)
	}
	b, _ := json.MarshalIndent(arr, "", "  ")
	if err := os.MkdirAll(filepath.Dir(m.storePath), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.storePath, b, 0644)
}

// EnsureDefaultAdmin creates the admin account when the store is empty.
func (m *Manager) EnsureDefaultAdmin(defaultPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) > 0 {
		return nil
	}
	hash, err := hashPassword(defaultPassword)
	if err != nil {
		return err
	}
	now := time.Now()
	m.users["admin"] = &User{Username: "admin", Password: hash, Scopes: allScopes, CreatedAt: now, UpdatedAt: now}
	return m.save()
}

// CreateUser creates a user; usernames are unique.
func (m *Manager) CreateUser(username, password string, scopes []string) (*User, error) {
	if username == "" {
		return nil, errors.New("username required")
	}
	if password == "" {
		return nil, errors.New("password required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[username]; exists {
		return nil, ErrUserExists
	}
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	u := &User{Username: username, Password: hash, Scopes: dedupScopes(scopes), CreatedAt: now, UpdatedAt: now}
	m.users[username] = u
	return u, m.save()
}

// GetUser returns a copy of the user with the password hash stripped.
func (m *Manager) GetUser(username string) (*User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, false
	}
	copyU := *u
	copyU.Password = ""
	return &copyU, true
}

// ListUsers returns all users with password hashes stripped.
func (m *Manager) ListUsers() []*User {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*User{}
	for _, u := range m.users {
		cpy := *u
		cpy.Password = ""
		out = append(out, &cpy)
	}
	return out
}

// UpdateUser replaces a user's scopes.
func (m *Manager) UpdateUser(username string, scopes []string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	u.Scopes = dedupScopes(scopes)
	u.UpdatedAt = time.Now()
	if err := m.save(); err != nil {
		return nil, err
	}
	cpy := *u
	cpy.Password = ""
	return &cpy, nil
}

// DeleteUser removes a user.
func (m *Manager) DeleteUser(username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[username]; !ok {
		return ErrUserNotFound
	}
	delete(m.users, username)
	return m.save()
}

// ChangePassword verifies the old password before setting the new one.
func (m *Manager) ChangePassword(username, oldPassword, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[username]
	if !ok {
		return ErrUserNotFound
	}
	if !checkPassword(u.Password, oldPassword) {
		return ErrInvalidCredentials
	}
	hash, err := hashPassword(newPassword)
	if err != nil {
		return err
	}
	u.Password = hash
	u.UpdatedAt = time.Now()
	return m.save()
}

// Authenticate checks the username/password pair.
func (m *Manager) Authenticate(username, password string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[username]
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !checkPassword(u.Password, password) {
		return nil, ErrInvalidCredentials
	}
	cpy := *u
	cpy.Password = ""
	return &cpy, nil
}

// GenerateTokenPair issues a short-lived access token and a long-lived
// refresh token for the user.
func (m *Manager) GenerateTokenPair(username string) (*TokenPair, error) {
	m.mu.RLock()
	u, ok := m.users[username]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrUserNotFound
	}

	access, err := m.signToken(u, TokenTypeAccess, m.accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := m.signToken(u, TokenTypeRefresh, m.refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *Manager) signToken(u *User, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:  u.Username,
		Scopes:    u.Scopes,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(m.secretKey)
}

// RefreshTokenPair exchanges a valid refresh token for a new token pair.
// Scopes are re-read from the store so revocations take effect on renewal.
func (m *Manager) RefreshTokenPair(refreshToken string) (*TokenPair, error) {
	claims, err := m.parseToken(refreshToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeRefresh {
		return nil, ErrWrongTokenType
	}
	return m.GenerateTokenPair(claims.Username)
}

// ParseAccessToken validates an access token and returns its claims.
// An expired token maps to ErrTokenExpired so callers can distinguish
// the renewal case from other failures.
func (m *Manager) ParseAccessToken(tokenStr string) (*Claims, error) {
	claims, err := m.parseToken(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != TokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func (m *Manager) parseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) { return m.secretKey, nil })
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, err
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// HasScope reports whether the scope list contains required.
func HasScope(scopes []string, required string) bool {
	for _, s := range scopes {
		if s == required {
			return true
		}
	}
	return false
}

// dedupScopes removes duplicates and unknown scopes.
func dedupScopes(in []string) []string {
	m := map[string]struct{}{}
	valid := map[string]struct{}{}
	for _, s := range allScopes {
		valid[s] = struct{}{}
	}
	out := []string{}
	for _, s := range in {
		if _, ok := valid[s]; ok {
			if _, seen := m[s]; !seen {
				m[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	return out
}
