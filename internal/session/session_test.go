package session_test

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/api/apitest"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/session"
)

type recorder struct {
	mu  sync.Mutex
	all []session.Transition
}

func (r *recorder) listen(t session.Transition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all = append(r.all, t)
}

func (r *recorder) reasons() []session.Reason {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.Reason, 0, len(r.all))
	for _, t := range r.all {
		out = append(out, t.Reason)
	}
	return out
}

func newController(t *testing.T, profile api.Profile, store session.Store) (*apitest.Server, *session.Controller, *recorder) {
	t.Helper()
	srv := apitest.NewServer(t, profile)
	ctrl := session.NewController(store, srv.NewClient(t))
	rec := &recorder{}
	ctrl.OnChange(rec.listen)
	return srv, ctrl, rec
}

func TestBootstrapCompleteRecord(t *testing.T) {
	store := session.NewMemoryStore(session.Record{
		Token:     "stored-token",
		UserEmail: "manager@example.com",
		UserRole:  "senior_manager",
		UserName:  "Morgan Manager",
	})
	srv, ctrl, rec := newController(t, api.ProfileHierarchy, store)

	require.NoError(t, ctrl.Bootstrap(context.Background()))

	assert.Equal(t, session.Authenticated, ctrl.State())
	s, ok := ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, "stored-token", s.Token)
	assert.Equal(t, "senior_manager", s.User.Role)
	assert.Equal(t, "Morgan Manager", s.User.FullName)
	assert.Equal(t, []session.Reason{session.ReasonBootstrap}, rec.reasons())
	assert.Zero(t, srv.TotalHits(), "bootstrap never contacts the registry")
}

func TestBootstrapPartialRecordIsWiped(t *testing.T) {
	store := session.NewMemoryStore(session.Record{Token: "orphan", UserName: "Someone"})
	_, ctrl, rec := newController(t, api.ProfileHierarchy, store)

	require.NoError(t, ctrl.Bootstrap(context.Background()))

	assert.Equal(t, session.Unauthenticated, ctrl.State())
	r, _ := store.Load(context.Background())
	assert.True(t, r.Empty())
	assert.Empty(t, rec.reasons())
}

func TestBootstrapCorruptFileIsWiped(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o600))

	_, ctrl, _ := newController(t, api.ProfileHierarchy, session.NewFileStore(path))
	require.NoError(t, ctrl.Bootstrap(context.Background()))

	assert.Equal(t, session.Unauthenticated, ctrl.State())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLoginPersistsFourKeys(t *testing.T) {
	for _, tc := range []struct {
		profile  api.Profile
		email    string
		password string
		role     string
	}{
		{api.ProfileHierarchy, "consultant@example.com", "consultant123", "consultant"},
		{api.ProfileFlat, "admin@example.com", "admin123", "admin"},
	} {
		t.Run(string(tc.profile), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "session.json")
			store := session.NewFileStore(path)
			_, ctrl, rec := newController(t, tc.profile, store)

			s, err := ctrl.Login(context.Background(), " "+tc.email+" ", tc.password)
			require.NoError(t, err)
			assert.Equal(t, tc.role, s.User.Role)
			assert.Equal(t, session.Authenticated, ctrl.State())
			assert.Equal(t, []session.Reason{session.ReasonLogin}, rec.reasons())

			r, err := store.Load(context.Background())
			require.NoError(t, err)
			assert.Equal(t, s.Token, r.Token)
			assert.Equal(t, tc.email, r.UserEmail)
			assert.Equal(t, tc.role, r.UserRole)
			assert.NotEmpty(t, r.UserName)
		})
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	store := session.NewMemoryStore()
	srv, ctrl, rec := newController(t, api.ProfileHierarchy, store)
	ctx := context.Background()

	_, errWrongPassword := ctrl.Login(ctx, "manager@example.com", "nope")
	_, errUnknownUser := ctrl.Login(ctx, "nobody@example.com", "nope")

	for _, err := range []error{errWrongPassword, errUnknownUser} {
		require.Error(t, err)
		assert.ErrorIs(t, err, errors.ErrInvalidCredentials)
		assert.Equal(t, "Invalid email or password", errors.UserMessage(err))
	}

	srv.Close()
	_, errDown := ctrl.Login(ctx, "manager@example.com", "manager123")
	assert.ErrorIs(t, errDown, errors.ErrInvalidCredentials)

	assert.Equal(t, session.Unauthenticated, ctrl.State())
	assert.Empty(t, rec.reasons())
	r, _ := store.Load(ctx)
	assert.True(t, r.Empty())
}

func TestLoginRequiresInput(t *testing.T) {
	srv, ctrl, _ := newController(t, api.ProfileHierarchy, session.NewMemoryStore())

	_, err := ctrl.Login(context.Background(), "  ", "x")
	assert.Equal(t, errors.ErrCodeInputMissing, errors.CodeOf(err))
	assert.Zero(t, srv.TotalHits())
}

func TestLoginFailureKeepsExistingSession(t *testing.T) {
	_, ctrl, _ := newController(t, api.ProfileHierarchy, session.NewMemoryStore())
	ctx := context.Background()

	first, err := ctrl.Login(ctx, "viewer@example.com", "viewer123")
	require.NoError(t, err)

	_, err = ctrl.Login(ctx, "partner@example.com", "wrong")
	require.Error(t, err)

	s, ok := ctrl.Current()
	require.True(t, ok)
	assert.Equal(t, first.Token, s.Token)
}

func TestLogout(t *testing.T) {
	store := session.NewMemoryStore()
	_, ctrl, rec := newController(t, api.ProfileHierarchy, store)
	ctx := context.Background()

	_, err := ctrl.Login(ctx, "viewer@example.com", "viewer123")
	require.NoError(t, err)
	gen := ctrl.Generation()

	require.NoError(t, ctrl.Logout(ctx))
	assert.Equal(t, session.Unauthenticated, ctrl.State())
	assert.Greater(t, ctrl.Generation(), gen)
	_, ok := ctrl.Current()
	assert.False(t, ok)
	r, _ := store.Load(ctx)
	assert.True(t, r.Empty())

	assert.Equal(t, []session.Reason{session.ReasonLogin, session.ReasonLogout}, rec.reasons())
}

func TestLogoutWithoutSessionStillClears(t *testing.T) {
	store := session.NewMemoryStore(session.Record{Token: "left", UserEmail: "x@example.com", UserRole: "viewer"})
	_, ctrl, rec := newController(t, api.ProfileHierarchy, store)

	require.NoError(t, ctrl.Logout(context.Background()))

	r, _ := store.Load(context.Background())
	assert.True(t, r.Empty())
	assert.Empty(t, rec.reasons(), "no transition without a session")
}

func TestOnChangeRemove(t *testing.T) {
	srv := apitest.NewServer(t, api.ProfileHierarchy)
	ctrl := session.NewController(session.NewMemoryStore(), srv.NewClient(t))

	calls := 0
	remove := ctrl.OnChange(func(session.Transition) { calls++ })
	_, err := ctrl.Login(context.Background(), "viewer@example.com", "viewer123")
	require.NoError(t, err)
	remove()
	require.NoError(t, ctrl.Logout(context.Background()))

	assert.Equal(t, 1, calls)
}

func TestTransportRefusesWithoutSession(t *testing.T) {
	srv, ctrl, _ := newController(t, api.ProfileHierarchy, session.NewMemoryStore())

	_, err := ctrl.Client().ListCapabilities(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrNotAuthenticated)
	assert.Zero(t, srv.TotalHits())
}

func TestTransportAttachesBearer(t *testing.T) {
	srv, ctrl, _ := newController(t, api.ProfileHierarchy, session.NewMemoryStore())
	s, err := ctrl.Login(context.Background(), "viewer@example.com", "viewer123")
	require.NoError(t, err)

	_, err = ctrl.Client().ListCapabilities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+s.Token, srv.LastHeader(apitest.RouteList).Get("Authorization"))
}

func TestConcurrentUnauthorizedTearsDownOnce(t *testing.T) {
	store := session.NewMemoryStore()
	srv, ctrl, rec := newController(t, api.ProfileHierarchy, store)
	ctx := context.Background()

	_, err := ctrl.Login(ctx, "manager@example.com", "manager123")
	require.NoError(t, err)
	srv.RevokeAll()

	const n = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = ctrl.Client().ListCapabilities(ctx)
		}(i)
	}
	close(start)
	wg.Wait()

	for _, err := range errs {
		require.Error(t, err)
		unauthorized := api.IsUnauthorized(err)
		refused := errors.CodeOf(err) == errors.ErrCodeNotAuthenticated
		assert.True(t, unauthorized || refused, "unexpected error: %v", err)
	}

	assert.Equal(t, []session.Reason{session.ReasonLogin, session.ReasonExpired}, rec.reasons())
	assert.Equal(t, session.Unauthenticated, ctrl.State())
	r, _ := store.Load(ctx)
	assert.True(t, r.Empty())
}

func TestLateUnauthorizedDoesNotEndNewSession(t *testing.T) {
	srv, ctrl, rec := newController(t, api.ProfileHierarchy, session.NewMemoryStore())
	ctx := context.Background()

	old, err := ctrl.Login(ctx, "viewer@example.com", "viewer123")
	require.NoError(t, err)

	release := srv.HoldList()
	done := make(chan error, 1)
	go func() {
		_, err := ctrl.Client().ListCapabilities(ctx)
		done <- err
	}()

	require.Eventually(t, func() bool { return srv.Hits(apitest.RouteList) == 1 }, 2*time.Second, 5*time.Millisecond)

	// A new login happens while the old request is still in flight, then
	// the old token is revoked so that request comes back 401.
	_, err = ctrl.Login(ctx, "partner@example.com", "partner123")
	require.NoError(t, err)
	srv.Revoke(old.Token)
	release()

	err = <-done
	assert.True(t, api.IsUnauthorized(err))

	assert.Equal(t, session.Authenticated, ctrl.State())
	s, _ := ctrl.Current()
	assert.Equal(t, "partner@example.com", s.User.Email)
	assert.Equal(t, []session.Reason{session.ReasonLogin, session.ReasonLogin}, rec.reasons())
}

func TestWhoami(t *testing.T) {
	srv, ctrl, rec := newController(t, api.ProfileFlat, session.NewMemoryStore())
	ctx := context.Background()

	_, err := ctrl.Login(ctx, "alice.smith@example.com", "consultant123")
	require.NoError(t, err)

	u, err := ctrl.Whoami(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice.smith@example.com", u.Email)
	assert.Equal(t, "consultant", u.Role)

	srv.RevokeAll()
	_, err = ctrl.Whoami(ctx)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.Equal(t, []session.Reason{session.ReasonLogin, session.ReasonExpired}, rec.reasons())
}

func TestPeekClaims(t *testing.T) {
	srv := apitest.NewServer(t, api.ProfileHierarchy)

	c, err := session.PeekClaims(srv.IssueToken("director@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "director@example.com", c.Subject)
	assert.Equal(t, "managing_director", c.Role)
	assert.False(t, c.Expired(time.Now()))
	assert.True(t, c.Expired(c.ExpiresAt.Add(time.Second)))

	_, err = session.PeekClaims("not-a-jwt")
	assert.Error(t, err)
}

var _ http.RoundTripper = (*session.Transport)(nil)
