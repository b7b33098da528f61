package catalog_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/api/apitest"
	"github.com/felixgeelhaar/capboard/internal/authz"
	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/session"
)

type fixture struct {
	srv      *apitest.Server
	sessions *session.Controller
	renderer *catalog.Renderer
}

func setup(t *testing.T, email, password string) *fixture {
	t.Helper()
	srv := apitest.NewServer(t, api.ProfileHierarchy)
	sessions := session.NewController(session.NewMemoryStore(), srv.NewClient(t))
	engine, err := authz.ForProfile(authz.ProfileHierarchy)
	require.NoError(t, err)

	r := catalog.NewRenderer(sessions, engine)
	t.Cleanup(r.Close)

	if email != "" {
		_, err := sessions.Login(context.Background(), email, password)
		require.NoError(t, err)
	}
	return &fixture{srv: srv, sessions: sessions, renderer: r}
}

func TestRefresh(t *testing.T) {
	f := setup(t, "manager@example.com", "manager123")

	var mu sync.Mutex
	var changes int
	f.renderer.OnChange(func(catalog.View) {
		mu.Lock()
		changes++
		mu.Unlock()
	})

	v, err := f.renderer.Refresh(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(v.Cards))
	for _, c := range v.Cards {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Cloud Architecture", "Data Analytics", "UX/UI Design", "Agile Coaching"}, names)
	assert.Equal(t, v, f.renderer.View())

	card, ok := f.renderer.Lookup("Cloud Architecture")
	require.True(t, ok)
	require.NotEmpty(t, card.Consultants)
	assert.True(t, card.Consultants[0].CanUnregister)

	mu.Lock()
	assert.Equal(t, 1, changes)
	mu.Unlock()
}

func TestRefreshReplacesWholeView(t *testing.T) {
	f := setup(t, "partner@example.com", "partner123")
	ctx := context.Background()

	_, err := f.renderer.Refresh(ctx)
	require.NoError(t, err)

	_, err = f.sessions.Client().Unregister(ctx, "Agile Coaching", "consultant@example.com")
	require.NoError(t, err)

	v, err := f.renderer.Refresh(ctx)
	require.NoError(t, err)
	card, _ := v.Lookup("Agile Coaching")
	assert.Empty(t, card.Consultants)
}

func TestRefreshFailureShowsNotice(t *testing.T) {
	f := setup(t, "viewer@example.com", "viewer123")

	f.srv.FailNext(apitest.RouteList, 500, 500, 500)
	v, err := f.renderer.Refresh(context.Background())

	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeBackendRejected, errors.CodeOf(err))
	assert.True(t, v.Failed())
	assert.Equal(t, catalog.FailedNotice, v.Notice)
	assert.Empty(t, v.Cards)
	assert.Equal(t, v, f.renderer.View())
}

func TestRefreshWithoutSession(t *testing.T) {
	f := setup(t, "", "")

	_, err := f.renderer.Refresh(context.Background())
	assert.ErrorIs(t, err, errors.ErrNotAuthenticated)
	assert.Zero(t, f.srv.TotalHits())
	assert.True(t, f.renderer.View().Empty())
}

func TestLogoutEmptiesView(t *testing.T) {
	f := setup(t, "viewer@example.com", "viewer123")
	ctx := context.Background()

	_, err := f.renderer.Refresh(ctx)
	require.NoError(t, err)
	require.False(t, f.renderer.View().Empty())

	require.NoError(t, f.sessions.Logout(ctx))
	assert.True(t, f.renderer.View().Empty())
}

func TestUnauthorizedEmptiesView(t *testing.T) {
	f := setup(t, "viewer@example.com", "viewer123")
	ctx := context.Background()

	_, err := f.renderer.Refresh(ctx)
	require.NoError(t, err)

	f.srv.RevokeAll()
	_, err = f.renderer.Refresh(ctx)
	assert.ErrorIs(t, err, errors.ErrSessionExpired)
	assert.True(t, f.renderer.View().Empty(), "no notice either: the session is gone")
	assert.Equal(t, session.Unauthenticated, f.sessions.State())
}

func TestRefreshResolvingAfterLogoutIsDiscarded(t *testing.T) {
	f := setup(t, "viewer@example.com", "viewer123")
	ctx := context.Background()

	release := f.srv.HoldList()
	done := make(chan error, 1)
	go func() {
		_, err := f.renderer.Refresh(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return f.srv.Hits(apitest.RouteList) == 1 }, 2*time.Second, 5*time.Millisecond)

	// Logging out does not revoke the token server-side, so the held
	// request still succeeds.
	require.NoError(t, f.sessions.Logout(ctx))
	release()

	err := <-done
	assert.ErrorIs(t, err, catalog.ErrStale)
	assert.True(t, f.renderer.View().Empty())
}

func TestLastResponseToResolveWins(t *testing.T) {
	gate := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if n == 1 {
			<-gate
			_, _ = io.WriteString(w, `{"Slow": {"description": "", "practice_area": "", "industry_verticals": [], "capacity": 1, "consultants": []}}`)
			return
		}
		_, _ = io.WriteString(w, `{"Fast": {"description": "", "practice_area": "", "industry_verticals": [], "capacity": 2, "consultants": []}}`)
	}))
	defer backend.Close()

	client, err := api.NewClient(api.Config{BaseURL: backend.URL})
	require.NoError(t, err)
	sessions := session.NewController(session.NewMemoryStore(session.Record{
		Token: "t", UserEmail: "viewer@example.com", UserRole: "viewer",
	}), client)
	require.NoError(t, sessions.Bootstrap(context.Background()))

	engine, _ := authz.ForProfile(authz.ProfileHierarchy)
	r := catalog.NewRenderer(sessions, engine)
	defer r.Close()

	done := make(chan error, 1)
	go func() {
		_, err := r.Refresh(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 2*time.Second, 5*time.Millisecond)

	v, err := r.Refresh(context.Background())
	require.NoError(t, err)
	_, ok := v.Lookup("Fast")
	require.True(t, ok)

	close(gate)
	require.NoError(t, <-done)

	_, ok = r.Lookup("Slow")
	assert.True(t, ok, "the refresh that resolved last is shown")
	_, ok = r.Lookup("Fast")
	assert.False(t, ok)
}

func TestRefreshHonoursViewPolicy(t *testing.T) {
	srv := apitest.NewServer(t, api.ProfileHierarchy)
	sessions := session.NewController(session.NewMemoryStore(), srv.NewClient(t))
	_, err := sessions.Login(context.Background(), "viewer@example.com", "viewer123")
	require.NoError(t, err)

	set := authz.HierarchyPolicySet()
	set.Policies = append(set.Policies, authz.NewPolicyBuilder("Blackout").
		WithID("blackout").
		WithEffect(authz.EffectDeny).
		ForRoles(authz.RoleViewer).
		OnActions(authz.ActionView).
		Build())
	r := catalog.NewRenderer(sessions, authz.NewEngine(set))
	defer r.Close()

	_, err = r.Refresh(context.Background())
	assert.ErrorIs(t, err, errors.ErrRoleDenied)
	assert.Equal(t, "Your role does not permit viewing capabilities", errors.UserMessage(err))
	assert.Zero(t, srv.Hits(apitest.RouteList))
}
