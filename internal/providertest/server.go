// Package providertest runs an in-process identity provider and a protected
// resource server for tests and local tools.
package providertest

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/authsession/claims"
	"github.com/MrEthical07/authsession/identity"
	"github.com/MrEthical07/authsession/jwt"
	"github.com/MrEthical07/authsession/middleware"
	"github.com/gorilla/mux"
)

// Secret signs every token the server issues.
const Secret = "providertest-secret-providertest"

// User is an account known to the server. Password is only read when the
// user is registered; the server keeps an argon2id hash of it.
type User struct {
	ID       int64
	Username string
	Password string
	Email    string
	FullName string
	Role     string

	passwordHash string
}

// Server is a fake identity provider. Resource endpoints live under /api and
// only accept access tokens the server issued and has not expired.
type Server struct {
	*httptest.Server

	manager *jwt.Manager

	mu          sync.Mutex
	users       map[string]*User
	nextID      int64
	refresh     map[string]string // refresh token -> username
	active      map[string]bool   // live access tokens
	accessTTL   time.Duration
	rotate      bool
	bare        bool
	noRefresh   bool
	failRefresh int
	refreshHook func()

	logins    atomic.Int64
	signups   atomic.Int64
	refreshes atomic.Int64
	resources atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithUser registers u. A zero ID is assigned.
func WithUser(u User) Option {
	return func(s *Server) {
		s.addLocked(u)
	}
}

// WithAccessTTL sets the lifetime of issued access tokens. Non-positive
// issues tokens without exp.
func WithAccessTTL(d time.Duration) Option {
	return func(s *Server) {
		s.accessTTL = d
	}
}

// New starts a Server. Alice (id 7, password secret1) is always registered.
func New(opts ...Option) *Server {
	m, err := jwt.NewManager(jwt.Config{SigningMethod: jwt.MethodHS256, PrivateKey: []byte(Secret)})
	if err != nil {
		panic(err)
	}

	s := &Server{
		manager:   m,
		users:     make(map[string]*User),
		nextID:    100,
		refresh:   make(map[string]string),
		active:    make(map[string]bool),
		accessTTL: 15 * time.Minute,
	}
	s.addLocked(User{ID: 7, Username: "alice", Password: "secret1", Email: "alice@example.com", FullName: "Alice", Role: "user"})
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() *mux.Router {
	router := mux.NewRouter()

	auth := router.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	auth.HandleFunc("/signup", s.handleSignup).Methods(http.MethodPost)
	auth.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(s.countResource)
	api.Use(middleware.Guard(s.Decoder()))
	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/echo", s.handleEcho).Methods(http.MethodPost, http.MethodPut)

	return router
}

// Decoder verifies tokens issued by this server and rejects access tokens
// that were expired with ExpireAccessTokens.
func (s *Server) Decoder() claims.DecodeFunc {
	verify := s.manager.Decoder()
	return func(token string) (claims.Identity, error) {
		s.mu.Lock()
		live := s.active[token]
		s.mu.Unlock()
		if !live {
			return claims.Identity{}, claims.ErrDecode
		}
		return verify(token)
	}
}

// Manager returns the token issuer.
func (s *Server) Manager() *jwt.Manager {
	return s.manager
}

func (s *Server) Logins() int64       { return s.logins.Load() }
func (s *Server) Signups() int64      { return s.signups.Load() }
func (s *Server) Refreshes() int64    { return s.refreshes.Load() }
func (s *Server) ResourceHits() int64 { return s.resources.Load() }

// ExpireAccessTokens makes every access token issued so far fail with 401.
func (s *Server) ExpireAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = make(map[string]bool)
}

// RevokeRefreshTokens makes every refresh token issued so far unusable.
func (s *Server) RevokeRefreshTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh = make(map[string]string)
}

// SetRotateRefresh makes refresh responses carry a new refresh token.
func (s *Server) SetRotateRefresh(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotate = on
}

// SetBareTokens makes login and refresh answer with a bare JSON string.
func (s *Server) SetBareTokens(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bare = on
}

// SetIssueRefreshTokens controls whether login issues a refresh token.
func (s *Server) SetIssueRefreshTokens(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noRefresh = !on
}

// SetRefreshFailure makes refresh answer with status. Zero restores normal
// behavior.
func (s *Server) SetRefreshFailure(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = status
}

// SetRefreshHook runs fn inside every refresh request before it is answered.
func (s *Server) SetRefreshHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshHook = fn
}

// SetAccessTTL changes the lifetime of access tokens issued from now on.
func (s *Server) SetAccessTTL(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessTTL = d
}

// IssueAccess mints a live access token for username.
func (s *Server) IssueAccess(username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return "", identity.ErrInvalidCredentials
	}
	return s.issueLocked(u)
}

// IssueRefresh mints a live refresh token for username.
func (s *Server) IssueRefresh(username string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := randomToken()
	s.refresh[rt] = username
	return rt
}

func (s *Server) addLocked(u User) {
	if u.ID == 0 {
		s.nextID++
		u.ID = s.nextID
	}
	if u.Role == "" {
		u.Role = claims.DefaultRole
	}
	hash, err := hashPassword(u.Password)
	if err != nil {
		panic(err)
	}
	u.Password, u.passwordHash = "", hash
	s.users[u.Username] = &u
}

func (s *Server) issueLocked(u *User) (string, error) {
	tok, err := s.manager.IssueAccess(jwt.Principal{
		Subject:  u.ID,
		Username: u.Username,
		Email:    u.Email,
		FullName: u.FullName,
		Role:     u.Role,
	}, s.accessTTL)
	if err != nil {
		return "", err
	}
	s.active[tok] = true
	return tok, nil
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	s.logins.Add(1)
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed form")
		return
	}

	s.mu.Lock()
	u, ok := s.users[r.PostForm.Get("username")]
	var hash string
	if ok {
		hash = u.passwordHash
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	if match, err := verifyPassword(r.PostForm.Get("password"), hash); err != nil || !match {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	s.mu.Lock()
	access, err := s.issueLocked(u)
	if err != nil {
		s.mu.Unlock()
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}
	tok := identity.Token{AccessToken: access, TokenType: "bearer"}
	if !s.noRefresh {
		tok.RefreshToken = randomToken()
		s.refresh[tok.RefreshToken] = u.Username
	}
	bare := s.bare
	s.mu.Unlock()

	writeToken(w, tok, bare)
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	s.signups.Add(1)
	var p identity.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "malformed body")
		return
	}

	s.mu.Lock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, p.Email) {
			s.mu.Unlock()
			writeDetail(w, http.StatusBadRequest, "email already registered")
			return
		}
	}
	if _, ok := s.users[p.Username]; ok {
		s.mu.Unlock()
		writeDetail(w, http.StatusBadRequest, "username already taken")
		return
	}
	s.addLocked(User{Username: p.Username, Password: p.Password, Email: p.Email, FullName: p.FullName})
	u := *s.users[p.Username]
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "User created successfully",
		"data": identity.User{
			ID:        u.ID,
			Username:  u.Username,
			Email:     u.Email,
			FullName:  u.FullName,
			Role:      u.Role,
			IsActive:  true,
			CreatedAt: time.Now().UTC().Format(time.RFC3339),
		},
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.refreshes.Add(1)

	s.mu.Lock()
	hook := s.refreshHook
	s.mu.Unlock()
	if hook != nil {
		hook()
	}

	rt := r.Header.Get(identity.RefreshTokenHeader)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRefresh != 0 {
		writeDetail(w, s.failRefresh, "refresh unavailable")
		return
	}
	username, ok := s.refresh[rt]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	u, ok := s.users[username]
	if !ok {
		writeDetail(w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}
	access, err := s.issueLocked(u)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, err.Error())
		return
	}

	tok := identity.Token{AccessToken: access, TokenType: "bearer"}
	if s.rotate {
		delete(s.refresh, rt)
		tok.RefreshToken = randomToken()
		s.refresh[tok.RefreshToken] = username
	}
	writeToken(w, tok, s.bare && !s.rotate)
}

func (s *Server) countResource(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.resources.Add(1)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, _ := middleware.IdentityFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"subject":  ident.SubjectID,
		"username": ident.Username,
		"email":    ident.Email,
		"role":     ident.Role,
	})
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, r.Body)
}

func writeToken(w http.ResponseWriter, tok identity.Token, bare bool) {
	if bare {
		writeJSON(w, http.StatusOK, tok.AccessToken)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func randomToken() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
