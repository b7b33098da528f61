package tui

import (
	"context"
	stderrors "errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/command"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/session"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

// Screen is the part of the UI currently shown.
type Screen int

const (
	// ScreenLogin asks for credentials.
	ScreenLogin Screen = iota
	// ScreenCatalog lists the capabilities.
	ScreenCatalog
	// ScreenRegister picks a capability and an email to register.
	ScreenRegister
	// ScreenConfirm asks before removing a consultant.
	ScreenConfirm
	// ScreenHelp lists every key binding.
	ScreenHelp
)

// Deps are the components the model drives.
type Deps struct {
	Sessions  *session.Controller
	Renderer  *catalog.Renderer
	Commander *command.Commander
	Board     *feedback.Board
	Styles    ux.Styles
}

// pending is the unregistration awaiting confirmation.
type pending struct {
	capability string
	email      string
}

// Model is the bubbletea model of the capability board.
type Model struct {
	ctx  context.Context
	deps Deps

	keys    keyMap
	help    help.Model
	spinner spinner.Model

	screen   Screen
	width    int
	height   int
	quitting bool

	// Login form
	email    textinput.Model
	password textinput.Model
	loginErr string

	// Session seen by the UI
	current session.Session
	authed  bool
	gen     uint64

	// Catalog
	view       catalog.View
	card       int
	consultant int // -1 when no consultant is selected
	loading    bool

	// Register form
	option   int
	regEmail textinput.Model

	confirm pending
	busy    bool
	message feedback.Message
}

// NewModel creates the model. ctx bounds every request the UI makes.
func NewModel(ctx context.Context, deps Deps) Model {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = "Email:    "
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = "Password: "
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	reg := textinput.New()
	reg.Prompt = "Email: "
	reg.CharLimit = 254

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctx:        ctx,
		deps:       deps,
		keys:       defaultKeyMap(),
		help:       help.New(),
		spinner:    sp,
		screen:     ScreenLogin,
		email:      email,
		password:   password,
		regEmail:   reg,
		consultant: -1,
	}
}

// Init implements tea.Model. A session restored before the program started
// shows the catalog straight away.
func (m Model) Init() tea.Cmd {
	if s, ok := m.deps.Sessions.Current(); ok {
		return func() tea.Msg {
			return SessionMsg{Transition: session.Transition{
				From:       session.Unauthenticated,
				To:         session.Authenticated,
				Reason:     session.ReasonBootstrap,
				Session:    &s,
				Generation: m.deps.Sessions.Generation(),
			}}
		}
	}
	return textinput.Blink
}

// Screen returns the screen being shown.
func (m Model) Screen() Screen {
	return m.screen
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
		return m.handleKey(msg)

	case spinner.TickMsg:
		if !m.loading && !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SessionMsg:
		return m.applyTransition(msg.Transition)

	case ViewMsg:
		m.setView(msg.View)
		return m, nil

	case FeedbackMsg:
		m.message = msg.Message
		return m, nil

	case loginDoneMsg:
		m.busy = false
		if msg.err != nil {
			m.loginErr = errors.UserMessage(msg.err)
			m.password.SetValue("")
			return m, nil
		}
		// The transition normally arrives first; catch up if it has not.
		if gen := m.deps.Sessions.Generation(); gen != m.gen {
			if s, ok := m.deps.Sessions.Current(); ok {
				return m.applyTransition(session.Transition{
					From:       session.Unauthenticated,
					To:         session.Authenticated,
					Reason:     session.ReasonLogin,
					Session:    &s,
					Generation: gen,
				})
			}
		}
		return m, nil

	case refreshDoneMsg:
		m.loading = false
		if stderrors.Is(msg.err, catalog.ErrStale) {
			return m, nil
		}
		if m.authed {
			m.setView(msg.view)
		}
		return m, nil

	case commandDoneMsg:
		// The board owns the message and its dismissal; FeedbackMsg alone
		// changes m.message.
		m.busy = false
		if m.authed {
			m.setView(m.deps.Renderer.View())
			m.screen = ScreenCatalog
		}
		return m, nil

	case logoutDoneMsg:
		m.busy = false
		return m, nil
	}

	return m.updateInputs(msg)
}

// applyTransition resets everything tied to the previous session.
func (m Model) applyTransition(t session.Transition) (tea.Model, tea.Cmd) {
	m.gen = t.Generation
	m.view = catalog.View{}
	m.card, m.consultant, m.option = 0, -1, 0
	m.confirm = pending{}
	m.busy = false

	if t.To == session.Authenticated && t.Session != nil {
		m.current = *t.Session
		m.authed = true
		m.loginErr = ""
		m.password.SetValue("")
		m.screen = ScreenCatalog
		m.loading = true
		return m, tea.Batch(m.refresh(), m.spinner.Tick)
	}

	m.current = session.Session{}
	m.authed = false
	m.loading = false
	m.screen = ScreenLogin
	m.loginErr = ""
	if t.Reason == session.ReasonExpired {
		m.loginErr = errors.ErrSessionExpired.Message
	}
	m.password.SetValue("")
	m.password.Blur()
	return m, m.email.Focus()
}

func (m *Model) setView(v catalog.View) {
	m.view = v
	if m.card >= len(v.Cards) {
		m.card = max(len(v.Cards)-1, 0)
	}
	m.consultant = -1
	if m.option >= len(v.Options) {
		m.option = 0
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.screen {
	case ScreenLogin:
		return m.loginKey(msg)
	case ScreenRegister:
		return m.registerKey(msg)
	case ScreenConfirm:
		return m.confirmKey(msg)
	case ScreenHelp:
		if key.Matches(msg, m.keys.Quit) && msg.String() == "q" {
			m.quitting = true
			return m, tea.Quit
		}
		m.screen = ScreenCatalog
		return m, nil
	default:
		return m.catalogKey(msg)
	}
}

func (m Model) loginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.quitting = true
		return m, tea.Quit
	case "tab", "shift+tab", "up", "down":
		return m.toggleLoginFocus()
	case "enter":
		if m.email.Focused() {
			return m.toggleLoginFocus()
		}
		if m.busy {
			return m, nil
		}
		m.busy = true
		m.loginErr = ""
		return m, tea.Batch(m.login(m.email.Value(), m.password.Value()), m.spinner.Tick)
	}
	return m.updateInputs(msg)
}

func (m Model) toggleLoginFocus() (tea.Model, tea.Cmd) {
	if m.email.Focused() {
		m.email.Blur()
		return m, m.password.Focus()
	}
	m.password.Blur()
	return m, m.email.Focus()
}

func (m Model) catalogKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.screen = ScreenHelp
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.card > 0 {
			m.card--
			m.consultant = -1
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.card < len(m.view.Cards)-1 {
			m.card++
			m.consultant = -1
		}
		return m, nil

	case key.Matches(msg, m.keys.Next):
		card, ok := m.selectedCard()
		if !ok || len(card.Consultants) == 0 {
			return m, nil
		}
		m.consultant = (m.consultant + 1) % len(card.Consultants)
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		if m.loading {
			return m, nil
		}
		m.loading = true
		return m, tea.Batch(m.refresh(), m.spinner.Tick)

	case key.Matches(msg, m.keys.Register):
		if !m.view.CanRegister || len(m.view.Options) == 0 || m.busy {
			return m, nil
		}
		m.screen = ScreenRegister
		m.option = m.card
		if m.option >= len(m.view.Options) {
			m.option = 0
		}
		m.regEmail.SetValue("")
		if m.view.SelfOnly {
			m.regEmail.SetValue(m.current.User.Email)
		}
		return m, m.regEmail.Focus()

	case key.Matches(msg, m.keys.Unregister):
		card, ok := m.selectedCard()
		if !ok || m.consultant < 0 || m.consultant >= len(card.Consultants) || m.busy {
			return m, nil
		}
		c := card.Consultants[m.consultant]
		if !c.CanUnregister {
			return m, nil
		}
		m.confirm = pending{capability: card.Name, email: c.Email}
		m.screen = ScreenConfirm
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		if m.busy {
			return m, nil
		}
		m.busy = true
		return m, m.logout()
	}
	return m, nil
}

func (m Model) registerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.regEmail.Blur()
		m.screen = ScreenCatalog
		return m, nil
	case "up":
		if m.option > 0 {
			m.option--
		}
		return m, nil
	case "down":
		if m.option < len(m.view.Options)-1 {
			m.option++
		}
		return m, nil
	case "enter":
		if m.busy || m.option >= len(m.view.Options) {
			return m, nil
		}
		m.busy = true
		m.regEmail.Blur()
		capability := m.view.Options[m.option].Value
		return m, tea.Batch(m.register(m.regEmail.Value(), capability), m.spinner.Tick)
	}
	return m.updateInputs(msg)
}

func (m Model) confirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		p := m.confirm
		m.confirm = pending{}
		m.busy = true
		return m, tea.Batch(m.unregister(p.email, p.capability), m.spinner.Tick)
	case "n", "N", "esc":
		m.confirm = pending{}
		m.screen = ScreenCatalog
		return m, nil
	}
	return m, nil
}

// updateInputs forwards everything else to the focused text input.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.screen {
	case ScreenLogin:
		if m.email.Focused() {
			m.email, cmd = m.email.Update(msg)
		} else {
			m.password, cmd = m.password.Update(msg)
		}
	case ScreenRegister:
		m.regEmail, cmd = m.regEmail.Update(msg)
	}
	return m, cmd
}

func (m Model) selectedCard() (catalog.Card, bool) {
	if m.card < 0 || m.card >= len(m.view.Cards) {
		return catalog.Card{}, false
	}
	return m.view.Cards[m.card], true
}

func (m Model) login(email, password string) tea.Cmd {
	ctx, sessions := m.ctx, m.deps.Sessions
	return func() tea.Msg {
		_, err := sessions.Login(ctx, email, password)
		return loginDoneMsg{err: err}
	}
}

func (m Model) logout() tea.Cmd {
	ctx, sessions := m.ctx, m.deps.Sessions
	return func() tea.Msg {
		return logoutDoneMsg{err: sessions.Logout(ctx)}
	}
}

func (m Model) refresh() tea.Cmd {
	ctx, renderer := m.ctx, m.deps.Renderer
	return func() tea.Msg {
		v, err := renderer.Refresh(ctx)
		return refreshDoneMsg{view: v, err: err}
	}
}

func (m Model) register(email, capability string) tea.Cmd {
	ctx, commander := m.ctx, m.deps.Commander
	return func() tea.Msg {
		_, _ = commander.Register(ctx, email, capability)
		return commandDoneMsg{}
	}
}

func (m Model) unregister(email, capability string) tea.Cmd {
	ctx, commander := m.ctx, m.deps.Commander
	return func() tea.Msg {
		_, _ = commander.Unregister(ctx, email, capability)
		return commandDoneMsg{}
	}
}
