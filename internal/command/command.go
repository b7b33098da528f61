// Package command runs register and unregister requests on behalf of the
// signed-in user and reports each outcome as one feedback message.
package command

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/authz"
	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/log"
	"github.com/felixgeelhaar/capboard/internal/metrics"
	"github.com/felixgeelhaar/capboard/internal/session"
	"github.com/felixgeelhaar/capboard/internal/telemetry"
)

// Actions, as recorded in metrics and spans.
const (
	ActionRegister   = "register"
	ActionUnregister = "unregister"
)

// Refresher reloads the catalog after a successful change.
type Refresher interface {
	Refresh(ctx context.Context) (catalog.View, error)
}

// ConfirmFunc asks the user to confirm an unregister. Returning false
// cancels it.
type ConfirmFunc func(ctx context.Context, capability, email string) (bool, error)

// Option configures a Commander.
type Option func(*Commander)

// WithConfirm sets the confirmation step that runs before every unregister.
func WithConfirm(f ConfirmFunc) Option {
	return func(c *Commander) {
		c.confirm = f
	}
}

// WithLogger sets the commander's logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Commander) {
		c.logger = l
	}
}

// WithMetrics records outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Commander) {
		c.metrics = m
	}
}

// Commander submits catalog changes.
//
// Every call that is not cancelled posts exactly one message to the board
// and returns it. Role checks run locally first; a call they reject never
// reaches the registry.
type Commander struct {
	sessions *session.Controller
	engine   *authz.Engine
	catalog  Refresher
	board    *feedback.Board
	confirm  ConfirmFunc
	logger   *log.Logger
	metrics  *metrics.Metrics
}

// New creates a commander.
func New(sessions *session.Controller, engine *authz.Engine, refresher Refresher, board *feedback.Board, opts ...Option) *Commander {
	c := &Commander{
		sessions: sessions,
		engine:   engine,
		catalog:  refresher,
		board:    board,
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// With returns a copy of c with opts applied.
func (c *Commander) With(opts ...Option) *Commander {
	cp := *c
	for _, opt := range opts {
		opt(&cp)
	}
	return &cp
}

// Register adds email to capability.
func (c *Commander) Register(ctx context.Context, email, capability string) (feedback.Message, error) {
	ctx, span := telemetry.StartOperationSpan(ctx, "command", ActionRegister,
		attribute.String("capability", capability))
	defer span.End()

	email, capability = strings.TrimSpace(email), strings.TrimSpace(capability)

	s, err := c.precheck(email, capability)
	if err == nil {
		err = c.registerDenial(s, email)
	}
	if err != nil {
		return c.fail(ctx, span, ActionRegister, err)
	}

	res, err := c.sessions.Client().Register(ctx, capability, email)
	if err != nil {
		return c.fail(ctx, span, ActionRegister, c.translate(ActionRegister, err))
	}

	text := res.Message
	if text == "" {
		text = fmt.Sprintf("Registered %s for %s", email, capability)
	}
	return c.succeed(ctx, span, ActionRegister, text)
}

// Unregister removes email from capability. When a confirmation step is
// configured and declines, nothing is sent or posted and ErrCancelled is
// returned.
func (c *Commander) Unregister(ctx context.Context, email, capability string) (feedback.Message, error) {
	ctx, span := telemetry.StartOperationSpan(ctx, "command", ActionUnregister,
		attribute.String("capability", capability))
	defer span.End()

	email, capability = strings.TrimSpace(email), strings.TrimSpace(capability)

	s, err := c.precheck(email, capability)
	if err == nil {
		err = c.unregisterDenial(s)
	}
	if err != nil {
		return c.fail(ctx, span, ActionUnregister, err)
	}

	if c.confirm != nil {
		ok, cerr := c.confirm(ctx, capability, email)
		if cerr != nil || !ok {
			c.metrics.RecordMutation(ActionUnregister, metrics.OutcomeCancelled)
			span.SetAttributes(attribute.Bool("cancelled", true))
			if cerr != nil {
				return feedback.Message{}, errors.Wrap(errors.ErrCodeCancelled, "Cancelled", cerr)
			}
			return feedback.Message{}, errors.ErrCancelled
		}
	}

	res, err := c.sessions.Client().Unregister(ctx, capability, email)
	if err != nil {
		return c.fail(ctx, span, ActionUnregister, c.translate(ActionUnregister, err))
	}

	text := res.Message
	if text == "" {
		text = fmt.Sprintf("Unregistered %s from %s", email, capability)
	}
	return c.succeed(ctx, span, ActionUnregister, text)
}

// CheckRegister runs the local role check of Register for email without
// sending or posting anything. Callers use it before spending a request on
// choosing the capability.
func (c *Commander) CheckRegister(email string) error {
	s, ok := c.sessions.Current()
	if !ok {
		return errors.NewNotAuthenticatedError()
	}
	return c.registerDenial(s, strings.TrimSpace(email))
}

// CheckUnregister is CheckRegister for Unregister.
func (c *Commander) CheckUnregister() error {
	s, ok := c.sessions.Current()
	if !ok {
		return errors.NewNotAuthenticatedError()
	}
	return c.unregisterDenial(s)
}

func (c *Commander) registerDenial(s session.Session, email string) error {
	d := c.engine.CanRegister(authz.Role(s.User.Role), s.User.Email, email)
	switch {
	case d.Allowed:
		return nil
	case d.SelfOnly:
		return errors.NewSelfServiceOnlyError()
	default:
		return errors.NewRoleDeniedError(d.Reason)
	}
}

func (c *Commander) unregisterDenial(s session.Session) error {
	if d := c.engine.CanUnregister(authz.Role(s.User.Role)); !d.Allowed {
		return errors.NewRoleDeniedError(d.Reason)
	}
	return nil
}

// precheck validates input and returns the active session.
func (c *Commander) precheck(email, capability string) (session.Session, error) {
	if email == "" || capability == "" {
		return session.Session{}, errors.NewInputMissingError("Email and capability are required")
	}
	s, ok := c.sessions.Current()
	if !ok {
		return session.Session{}, errors.NewNotAuthenticatedError()
	}
	return s, nil
}

// translate maps a client error to what the user sees. A request refused
// because the session vanished mid-call counts as expiry.
func (c *Commander) translate(action string, err error) error {
	if errors.CodeOf(err) == errors.ErrCodeNotAuthenticated {
		return errors.NewSessionExpiredError(err)
	}
	return api.Translate(action, err)
}

func (c *Commander) succeed(ctx context.Context, span trace.Span, action, text string) (feedback.Message, error) {
	msg := feedback.Success(text)
	c.board.Post(msg)
	c.metrics.RecordMutation(action, metrics.OutcomeSuccess)
	telemetry.RecordSuccess(span)
	c.logger.WithContext(ctx).Info(action+" succeeded", "message", text)

	if _, err := c.catalog.Refresh(ctx); err != nil {
		c.logger.WithContext(ctx).WithError(err).Debug("refresh after " + action + " failed")
	}
	return msg, nil
}

func (c *Commander) fail(ctx context.Context, span trace.Span, action string, err error) (feedback.Message, error) {
	msg := feedback.Error(errors.UserMessage(err))
	c.board.Post(msg)
	c.metrics.RecordMutation(action, outcome(err))
	c.metrics.RecordError("command", err)
	telemetry.RecordError(span, err)
	c.logger.WithContext(ctx).WithError(err).Info(action + " failed")
	return msg, err
}

func outcome(err error) string {
	switch errors.CodeOf(err) {
	case errors.ErrCodeSelfServiceOnly, errors.ErrCodeRoleDenied:
		return metrics.OutcomeDenied
	case errors.ErrCodeTransport:
		return metrics.OutcomeTransport
	case errors.ErrCodeSessionExpired, errors.ErrCodeNotAuthenticated:
		return metrics.OutcomeExpired
	case errors.ErrCodeInputMissing:
		return metrics.OutcomeInvalid
	case errors.ErrCodeCancelled:
		return metrics.OutcomeCancelled
	default:
		return metrics.OutcomeRejected
	}
}
