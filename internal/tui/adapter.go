package tui

import (
	"context"
	stderrors "errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/session"
)

// Adapter forwards component callbacks into a running program.
type Adapter struct {
	deps    Deps
	program *tea.Program
	detach  []func()
}

// NewAdapter creates a program for deps. Extra options are appended to the
// defaults (alternate screen, bound to ctx).
func NewAdapter(ctx context.Context, deps Deps, opts ...tea.ProgramOption) *Adapter {
	base := []tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}
	return &Adapter{
		deps:    deps,
		program: tea.NewProgram(NewModel(ctx, deps), append(base, opts...)...),
	}
}

// attach subscribes to the session, the renderer and the board. Callbacks
// block until the program has read the message, which keeps their order.
func (a *Adapter) attach() {
	p := a.program
	a.detach = append(a.detach, a.deps.Sessions.OnChange(func(t session.Transition) {
		p.Send(SessionMsg{Transition: t})
	}))

	a.deps.Renderer.OnChange(func(v catalog.View) {
		p.Send(ViewMsg{View: v})
	})
	a.detach = append(a.detach, func() { a.deps.Renderer.OnChange(nil) })

	a.deps.Board.OnChange(func(m feedback.Message) {
		p.Send(FeedbackMsg{Message: m})
	})
	a.detach = append(a.detach, func() { a.deps.Board.OnChange(nil) })
}

// Run blocks until the user quits or ctx is cancelled.
func (a *Adapter) Run() error {
	a.attach()
	defer func() {
		for _, d := range a.detach {
			d()
		}
		a.detach = nil
	}()

	_, err := a.program.Run()
	switch {
	case err == nil:
		return nil
	case stderrors.Is(err, tea.ErrProgramKilled), stderrors.Is(err, context.Canceled):
		return errors.Wrap(errors.ErrCodeCancelled, "Interrupted", err)
	default:
		return err
	}
}

// Run starts the terminal UI for deps and blocks until it exits.
func Run(ctx context.Context, deps Deps, opts ...tea.ProgramOption) error {
	return NewAdapter(ctx, deps, opts...).Run()
}
