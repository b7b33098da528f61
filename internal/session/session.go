// Package session owns the registry session: the bearer token, the user it
// belongs to, and the Unauthenticated/Authenticated state machine around
// them.
package session

import (
	"context"
	"net/http"
	"slices"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/log"
	"github.com/felixgeelhaar/capboard/internal/metrics"
	"github.com/felixgeelhaar/capboard/internal/telemetry"
)

// State is the authentication state of a Controller.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Reason says why a transition happened.
type Reason string

const (
	ReasonBootstrap Reason = "bootstrap"
	ReasonLogin     Reason = "login"
	ReasonLogout    Reason = "logout"
	ReasonExpired   Reason = "expired"
)

// Session is an authenticated identity. Values handed out by a Controller
// are copies.
type Session struct {
	Token string
	User  api.User
}

// Transition is delivered to listeners after every state change.
type Transition struct {
	From       State
	To         State
	Reason     Reason
	Session    *Session // nil when To is Unauthenticated
	Generation uint64
}

// Listener observes transitions. Listeners run synchronously, in
// registration order, and must not call Login, Logout or Bootstrap.
type Listener func(Transition)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithMetrics records transitions in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// Controller is the single owner of session state.
//
// Every transition bumps a generation counter. Work started under one
// generation (an in-flight request, a catalog refresh) can compare it
// against Generation to detect that the session changed underneath it.
type Controller struct {
	store   Store
	client  *api.Client
	authed  *api.Client
	logger  *log.Logger
	metrics *metrics.Metrics

	// transMu serializes transitions together with their notification so
	// listeners see them in order.
	transMu sync.Mutex

	mu      sync.RWMutex
	state   State
	current *Session
	gen     uint64

	lmu       sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewController creates a controller that logs in through client and
// persists to store. It starts Unauthenticated; call Bootstrap to restore a
// stored session.
func NewController(store Store, client *api.Client, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		client:    client,
		logger:    log.Discard(),
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.authed = client.WithAuth(func(next http.RoundTripper) http.RoundTripper {
		return NewTransport(c, next)
	})
	return c
}

// Client returns the API client whose calls carry this session's token.
func (c *Controller) Client() *api.Client {
	return c.authed
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Generation returns the current session generation.
func (c *Controller) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Current returns a copy of the active session.
func (c *Controller) Current() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return Session{}, false
	}
	return *c.current, true
}

// snapshot returns what the transport needs under one lock.
func (c *Controller) snapshot() (token string, gen uint64, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != Authenticated || c.current == nil {
		return "", c.gen, false
	}
	return c.current.Token, c.gen, true
}

// OnChange registers l and returns a function that removes it.
func (c *Controller) OnChange(l Listener) (remove func()) {
	c.lmu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	c.lmu.Unlock()

	return func() {
		c.lmu.Lock()
		delete(c.listeners, id)
		c.lmu.Unlock()
	}
}

// Bootstrap restores a stored session. A complete record authenticates
// without contacting the registry; anything else leaves the controller
// Unauthenticated and the store empty.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	rec, err := c.store.Load(ctx)
	if err != nil {
		c.logger.WithError(err).Warn("discarding unreadable session store")
		return c.store.Clear(ctx)
	}

	if !rec.Complete() {
		if !rec.Empty() {
			c.logger.Warn("discarding incomplete session store")
			return c.store.Clear(ctx)
		}
		return nil
	}

	c.transition(&Session{
		Token: rec.Token,
		User: api.User{
			Email:    rec.UserEmail,
			Role:     rec.UserRole,
			FullName: rec.UserName,
		},
	}, ReasonBootstrap)
	return nil
}

// Login exchanges credentials for a session. Any failure, including a
// registry that cannot be reached, is reported as invalid credentials and
// leaves the state unchanged.
func (c *Controller) Login(ctx context.Context, email, password string) (*Session, error) {
	ctx, span := telemetry.StartOperationSpan(ctx, "session", "login",
		attribute.String("profile", c.client.Profile().String()))
	defer span.End()

	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		err := errors.NewInputMissingError("Email and password are required")
		telemetry.RecordError(span, err)
		return nil, err
	}

	res, err := c.client.Login(ctx, email, password)
	if err == nil && (res.AccessToken == "" || res.User.Email == "" || res.User.Role == "") {
		err = errors.New(errors.ErrCodeDecode, "login response is missing the token or user")
	}
	if err != nil {
		c.logger.WithContext(ctx).Debug("login failed", "error", err)
		cerr := errors.NewInvalidCredentialsError(err)
		c.metrics.RecordError("session", cerr)
		telemetry.RecordError(span, cerr)
		return nil, cerr
	}

	s := &Session{Token: res.AccessToken, User: res.User}

	c.transMu.Lock()
	defer c.transMu.Unlock()

	if err := c.store.Save(ctx, Record{
		Token:     s.Token,
		UserEmail: s.User.Email,
		UserRole:  s.User.Role,
		UserName:  s.User.FullName,
	}); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	c.transition(s, ReasonLogin)
	telemetry.RecordSuccess(span, attribute.String("role", s.User.Role))
	c.logger.WithContext(ctx).Info("logged in", "email", s.User.Email, "role", s.User.Role)

	out := *s
	return &out, nil
}

// Logout clears the store and ends the session. The store is cleared even
// when no session is active.
func (c *Controller) Logout(ctx context.Context) error {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	err := c.store.Clear(ctx)
	if c.State() == Authenticated {
		c.transition(nil, ReasonLogout)
	}
	return err
}

// Whoami asks the registry who the current token belongs to.
func (c *Controller) Whoami(ctx context.Context) (*api.User, error) {
	u, err := c.authed.Me(ctx)
	if err != nil {
		return nil, api.Translate("load your profile", err)
	}
	return u, nil
}

// expire tears down the session started in generation gen. It is a no-op
// when that session is already gone, which makes concurrent 401s collapse
// into one teardown.
func (c *Controller) expire(gen uint64) bool {
	c.transMu.Lock()
	defer c.transMu.Unlock()

	c.mu.RLock()
	stale := c.gen != gen || c.state != Authenticated
	c.mu.RUnlock()
	if stale {
		return false
	}

	if err := c.store.Clear(context.Background()); err != nil {
		c.logger.WithError(err).Warn("failed to clear expired session")
	}
	c.transition(nil, ReasonExpired)
	c.logger.Info("session expired")
	return true
}

// transition swaps the session and notifies listeners. Callers hold transMu.
func (c *Controller) transition(s *Session, reason Reason) {
	to := Unauthenticated
	if s != nil {
		to = Authenticated
	}

	c.mu.Lock()
	from := c.state
	c.state = to
	c.current = s
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	c.metrics.RecordTransition(to.String(), string(reason), to == Authenticated)
	c.logger.Debug("session transition", "from", from, "to", to, "reason", reason, "generation", gen)

	t := Transition{From: from, To: to, Reason: reason, Generation: gen}
	if s != nil {
		cp := *s
		t.Session = &cp
	}

	c.lmu.Lock()
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	ls := make([]Listener, 0, len(ids))
	for _, id := range ids {
		ls = append(ls, c.listeners[id])
	}
	c.lmu.Unlock()

	for _, l := range ls {
		l(t)
	}
}
