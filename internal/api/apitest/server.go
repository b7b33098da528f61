// Package apitest runs an in-process capability registry for tests. It
// speaks both contract profiles and enforces the registry's own role rules.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"

	"github.com/felixgeelhaar/capboard/internal/api"
)

// Route keys accepted by Hits, FailNext and LastHeader.
const (
	RouteTokenForm  = "POST /token"
	RouteTokenJSON  = "POST /auth/login"
	RouteMe         = "GET /auth/me"
	RouteList       = "GET /capabilities"
	RouteRegister   = "POST /capabilities/{name}/register"
	RouteUnregister = "DELETE /capabilities/{name}/unregister"
)

var signingKey = []byte("apitest-signing-key")

// User is an account known to the fake registry.
type User struct {
	Email    string
	Password string
	Role     string
	FullName string
	Market   string
}

// Server is a fake registry backed by httptest.Server.
type Server struct {
	*httptest.Server
	Profile api.Profile

	mu       sync.Mutex
	users    map[string]User
	tokens   map[string]string
	catalog  []api.Capability
	hits     map[string]int
	failures map[string][]int
	headers  map[string]http.Header
	gate     chan struct{}
	seq      int
}

// NewServer starts a fake registry for profile and closes it when t ends.
func NewServer(t testing.TB, profile api.Profile) *Server {
	t.Helper()

	s := &Server{
		Profile:  profile,
		users:    make(map[string]User),
		tokens:   make(map[string]string),
		catalog:  DefaultCatalog(),
		hits:     make(map[string]int),
		failures: make(map[string][]int),
		headers:  make(map[string]http.Header),
	}
	for _, u := range DefaultUsers(profile) {
		s.users[u.Email] = u
	}

	r := mux.NewRouter().UseEncodedPath()
	if profile == api.ProfileFlat {
		r.HandleFunc("/auth/login", s.route(RouteTokenJSON, s.handleLoginJSON)).Methods(http.MethodPost)
	} else {
		r.HandleFunc("/token", s.route(RouteTokenForm, s.handleLoginForm)).Methods(http.MethodPost)
	}
	r.HandleFunc("/auth/me", s.route(RouteMe, s.authenticated(s.handleMe))).Methods(http.MethodGet)
	r.HandleFunc("/capabilities", s.route(RouteList, s.authenticated(s.handleList))).Methods(http.MethodGet)
	r.HandleFunc("/capabilities/{name}/register", s.route(RouteRegister, s.authenticated(s.handleRegister))).Methods(http.MethodPost)
	r.HandleFunc("/capabilities/{name}/unregister", s.route(RouteUnregister, s.authenticated(s.handleUnregister))).Methods(http.MethodDelete)

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// DefaultUsers returns the seeded accounts of a profile.
func DefaultUsers(profile api.Profile) []User {
	if profile == api.ProfileFlat {
		return []User{
			{Email: "admin@example.com", Password: "admin123", Role: "admin", FullName: "System Administrator"},
			{Email: "alice.smith@example.com", Password: "consultant123", Role: "consultant", FullName: "Alice Smith"},
			{Email: "guest@example.com", Password: "guest123", Role: "readonly", FullName: "Guest User"},
		}
	}
	return []User{
		{Email: "partner@example.com", Password: "partner123", Role: "partner", FullName: "Pat Partner", Market: "Seattle"},
		{Email: "director@example.com", Password: "director123", Role: "managing_director", FullName: "Dana Director", Market: "Chicago"},
		{Email: "manager@example.com", Password: "manager123", Role: "senior_manager", FullName: "Morgan Manager", Market: "Chicago"},
		{Email: "consultant@example.com", Password: "consultant123", Role: "consultant", FullName: "Casey Consultant", Market: "Dallas"},
		{Email: "viewer@example.com", Password: "viewer123", Role: "viewer", FullName: "Val Viewer", Market: "Dallas"},
	}
}

// DefaultCatalog returns the seeded catalog. Its order is deliberately not
// alphabetical.
func DefaultCatalog() []api.Capability {
	return []api.Capability{
		{
			Name:              "Cloud Architecture",
			Description:       "Design and implement scalable cloud solutions",
			PracticeArea:      "Technology",
			SkillLevels:       []string{"Emerging", "Proficient", "Advanced", "Expert"},
			Certifications:    []string{"AWS Solutions Architect"},
			IndustryVerticals: []string{"Healthcare", "Financial Services", "Retail"},
			Capacity:          40,
			Consultants:       []string{"alice.smith@example.com", "bob.johnson@example.com"},
		},
		{
			Name:              "Data Analytics",
			Description:       "Data analysis, visualization, and machine learning",
			PracticeArea:      "Technology",
			IndustryVerticals: []string{"Retail", "Manufacturing"},
			Capacity:          35.5,
			Consultants:       []string{"emma.davis@example.com"},
		},
		{
			Name:              "UX/UI Design",
			Description:       "User experience design and <b>digital</b> product innovation",
			PracticeArea:      "Technology",
			IndustryVerticals: []string{"Retail", "Technology"},
			Capacity:          30,
			Consultants:       []string{},
		},
		{
			Name:              "Agile Coaching",
			Description:       "Agile transformation and team coaching",
			PracticeArea:      "Operations",
			IndustryVerticals: []string{"Technology"},
			Capacity:          20,
			Consultants:       []string{"consultant@example.com"},
		},
	}
}

// NewClient returns an unauthenticated client for the server with fast retries.
func (s *Server) NewClient(t testing.TB, opts ...api.Option) *api.Client {
	t.Helper()
	c, err := api.NewClient(api.Config{
		BaseURL:      s.URL,
		Profile:      s.Profile,
		Timeout:      5 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
	}, opts...)
	if err != nil {
		t.Fatalf("apitest: new client: %v", err)
	}
	return c
}

// IssueToken mints a valid token for email without a login round trip.
func (s *Server) IssueToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.issueLocked(s.users[email])
}

// Revoke makes token invalid; subsequent requests with it get 401.
func (s *Server) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// RevokeAll invalidates every issued token.
func (s *Server) RevokeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]string)
}

// FailNext makes the next len(statuses) requests on route answer with the
// given statuses before the handler runs.
func (s *Server) FailNext(route string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], statuses...)
}

// Hits returns how many requests reached route, failures included.
func (s *Server) Hits(route string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[route]
}

// TotalHits returns the number of requests across all routes.
func (s *Server) TotalHits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.hits {
		n += h
	}
	return n
}

// LastHeader returns the headers of the latest request on route.
func (s *Server) LastHeader(route string) http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[route].Clone()
}

// Consultants returns the current registrations of a capability.
func (s *Server) Consultants(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.catalog {
		if c.Name == name {
			return slices.Clone(c.Consultants)
		}
	}
	return nil
}

// HoldList blocks list requests until the returned release func is called.
// Requests are counted before they block and authenticated after.
func (s *Server) HoldList() (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gate = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.gate = nil
			s.mu.Unlock()
			close(gate)
		})
	}
}

func (s *Server) route(key string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[key]++
		s.headers[key] = r.Header.Clone()
		var status int
		if q := s.failures[key]; len(q) > 0 {
			status, s.failures[key] = q[0], q[1:]
		}
		var gate chan struct{}
		if key == RouteList {
			gate = s.gate
		}
		s.mu.Unlock()

		if gate != nil {
			<-gate
		}

		if status != 0 {
			writeDetail(w, status, fmt.Sprintf("injected %d", status))
			return
		}
		next(w, r)
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, user User)

func (s *Server) authenticated(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		s.mu.Lock()
		email, known := s.tokens[token]
		user := s.users[email]
		s.mu.Unlock()

		if !ok || !known {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next(w, r, user)
	}
}

func (s *Server) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid form")
		return
	}
	s.login(w, r.PostForm.Get("username"), r.PostForm.Get("password"))
}

func (s *Server) handleLoginJSON(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	s.login(w, body.Email, body.Password)
}

func (s *Server) login(w http.ResponseWriter, email, password string) {
	s.mu.Lock()
	user, ok := s.users[email]
	if !ok || user.Password != password {
		s.mu.Unlock()
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeDetail(w, http.StatusUnauthorized, "Incorrect email or password")
		return
	}
	token := s.issueLocked(user)
	s.mu.Unlock()

	if s.Profile == api.ProfileFlat {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token": token,
			"token_type":   "bearer",
			"user_email":   user.Email,
			"user_role":    user.Role,
			"full_name":    user.FullName,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"token_type":   "bearer",
		"user": map[string]any{
			"email":     user.Email,
			"role":      user.Role,
			"full_name": user.FullName,
			"market":    user.Market,
		},
	})
}

func (s *Server) issueLocked(user User) string {
	claims := jwt.MapClaims{
		"sub":  user.Email,
		"role": user.Role,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(8 * time.Hour).Unix(),
		"jti":  fmt.Sprintf("%d", s.seq),
	}
	s.seq++
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	if err != nil {
		panic(err)
	}
	s.tokens[token] = user.Email
	return token
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request, user User) {
	writeJSON(w, http.StatusOK, map[string]any{
		"email":     user.Email,
		"role":      user.Role,
		"full_name": user.FullName,
		"market":    user.Market,
	})
}

func (s *Server) handleList(w http.ResponseWriter, _ *http.Request, _ User) {
	s.mu.Lock()
	catalog := api.NewCatalog(s.catalog...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, catalog)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, user User) {
	name := capabilityName(r)
	email := r.URL.Query().Get("email")
	if s.Profile == api.ProfileFlat {
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
			return
		}
		email = body.Email
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(name)
	if idx < 0 {
		writeDetail(w, http.StatusNotFound, "Capability not found")
		return
	}

	switch {
	case user.Role == "consultant":
		if email != user.Email {
			writeDetail(w, http.StatusForbidden, "Consultants can only register themselves")
			return
		}
	case !s.isAdministrator(user.Role):
		if s.Profile == api.ProfileFlat {
			writeDetail(w, http.StatusForbidden, "Access denied. Required roles: admin, consultant")
		} else {
			writeDetail(w, http.StatusForbidden, "Insufficient permissions to register consultants")
		}
		return
	}

	if slices.Contains(s.catalog[idx].Consultants, email) {
		writeDetail(w, http.StatusBadRequest, "Consultant is already registered for this capability")
		return
	}
	s.catalog[idx].Consultants = append(s.catalog[idx].Consultants, email)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":       fmt.Sprintf("Registered %s for %s", email, name),
		"registered_by": user.Email,
	})
}

func (s *Server) handleUnregister(w http.ResponseWriter, r *http.Request, user User) {
	name := capabilityName(r)
	email := r.URL.Query().Get("email")

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isAdministrator(user.Role) {
		if s.Profile == api.ProfileFlat {
			writeDetail(w, http.StatusForbidden, "Admin access required")
		} else {
			writeDetail(w, http.StatusForbidden, "Only Senior Managers and above can unregister consultants")
		}
		return
	}

	idx := s.indexLocked(name)
	if idx < 0 {
		writeDetail(w, http.StatusNotFound, "Capability not found")
		return
	}
	pos := slices.Index(s.catalog[idx].Consultants, email)
	if pos < 0 {
		writeDetail(w, http.StatusBadRequest, "Consultant is not registered for this capability")
		return
	}
	s.catalog[idx].Consultants = slices.Delete(s.catalog[idx].Consultants, pos, pos+1)

	writeJSON(w, http.StatusOK, map[string]string{
		"message":         fmt.Sprintf("Unregistered %s from %s", email, name),
		"unregistered_by": user.Email,
	})
}

func (s *Server) isAdministrator(role string) bool {
	if s.Profile == api.ProfileFlat {
		return role == "admin"
	}
	switch role {
	case "partner", "managing_director", "senior_manager":
		return true
	}
	return false
}

func (s *Server) indexLocked(name string) int {
	for i, c := range s.catalog {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// capabilityName undoes the path escaping kept by UseEncodedPath.
func capabilityName(r *http.Request) string {
	raw := mux.Vars(r)["name"]
	name, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return name
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
