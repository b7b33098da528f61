// Package catalog loads the capability catalog and turns it into views that
// carry the current user's affordances.
package catalog

import (
	"context"
	stderrors "errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/authz"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/log"
	"github.com/felixgeelhaar/capboard/internal/metrics"
	"github.com/felixgeelhaar/capboard/internal/session"
	"github.com/felixgeelhaar/capboard/internal/telemetry"
)

// Refresh results recorded in metrics.
const (
	resultSuccess   = metrics.OutcomeSuccess
	resultFailure   = "failure"
	resultDiscarded = "discarded"
)

// ErrStale is returned by Refresh when the session changed while the
// catalog was loading. The loaded data is dropped.
var ErrStale = stderrors.New("session changed while loading capabilities")

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithLogger sets the renderer's logger.
func WithLogger(l *log.Logger) RendererOption {
	return func(r *Renderer) {
		r.logger = l
	}
}

// WithMetrics records refreshes in m.
func WithMetrics(m *metrics.Metrics) RendererOption {
	return func(r *Renderer) {
		r.metrics = m
	}
}

// Renderer holds the current catalog view.
//
// Refreshes may overlap; the last one to finish wins. A refresh that
// finishes after the session changed is dropped, and leaving the
// Authenticated state empties the view.
type Renderer struct {
	sessions *session.Controller
	engine   *authz.Engine
	logger   *log.Logger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	view     View
	onChange func(View)

	unsubscribe func()
}

// NewRenderer creates a renderer for the sessions' authenticated client.
func NewRenderer(sessions *session.Controller, engine *authz.Engine, opts ...RendererOption) *Renderer {
	r := &Renderer{
		sessions: sessions,
		engine:   engine,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.unsubscribe = sessions.OnChange(r.sessionChanged)
	return r
}

// Close detaches the renderer from the session controller.
func (r *Renderer) Close() {
	r.unsubscribe()
}

// OnChange sets the callback run after every view replacement.
func (r *Renderer) OnChange(f func(View)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = f
}

// View returns the current view.
func (r *Renderer) View() View {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// Lookup finds a card in the current view.
func (r *Renderer) Lookup(name string) (Card, bool) {
	return r.View().Lookup(name)
}

// Refresh fetches the whole catalog and replaces the view. On failure the
// view becomes the FailedNotice and the translated error is returned.
func (r *Renderer) Refresh(ctx context.Context) (View, error) {
	ctx, span := telemetry.StartOperationSpan(ctx, "catalog", "refresh")
	defer span.End()

	gen := r.sessions.Generation()
	s, ok := r.sessions.Current()
	if !ok {
		err := errors.NewNotAuthenticatedError()
		telemetry.RecordError(span, err)
		return View{}, err
	}
	if d := r.engine.CanView(authz.Role(s.User.Role)); !d.Allowed {
		err := errors.NewRoleDeniedError(d.Reason)
		telemetry.RecordError(span, err)
		return View{}, err
	}

	c, err := r.sessions.Client().ListCapabilities(ctx)

	var next View
	if err == nil {
		next = BuildView(c, s, r.engine)
	} else {
		err = api.Translate("load capabilities", err)
		next = View{Notice: FailedNotice, Role: s.User.Role}
	}

	if !r.replace(gen, next) {
		r.metrics.RecordRefresh(resultDiscarded, 0)
		r.logger.WithContext(ctx).Debug("discarding catalog from an earlier session")
		if err == nil {
			err = ErrStale
		}
		telemetry.RecordError(span, err)
		return r.View(), err
	}

	if err != nil {
		r.metrics.RecordRefresh(resultFailure, 0)
		r.metrics.RecordError("catalog", err)
		r.logger.WithContext(ctx).WithError(err).Warn("failed to load capabilities")
		telemetry.RecordError(span, err)
		return next, err
	}

	r.metrics.RecordRefresh(resultSuccess, len(next.Cards))
	telemetry.RecordSuccess(span, attribute.Int("capabilities", len(next.Cards)))
	return next, nil
}

// replace installs v if the session is still the one of generation gen.
func (r *Renderer) replace(gen uint64, v View) bool {
	r.mu.Lock()
	if r.sessions.Generation() != gen {
		r.mu.Unlock()
		return false
	}
	r.view = v
	cb := r.onChange
	r.mu.Unlock()

	if cb != nil {
		cb(v)
	}
	return true
}

func (r *Renderer) sessionChanged(t session.Transition) {
	r.mu.Lock()
	r.view = View{}
	cb := r.onChange
	r.mu.Unlock()

	if t.To == session.Unauthenticated {
		r.metrics.ClearCatalog()
	}
	if cb != nil {
		cb(View{})
	}
}
