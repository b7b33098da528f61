package tui

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.screen {
	case ScreenLogin:
		body = m.renderLogin()
	case ScreenRegister:
		body = m.renderRegister()
	case ScreenConfirm:
		body = m.renderConfirm()
	case ScreenHelp:
		body = m.renderHelp()
	default:
		body = m.renderCatalog()
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	b.WriteString(body)
	if fb := m.renderFeedback(); fb != "" {
		b.WriteString("\n\n")
		b.WriteString(fb)
	}
	return b.String()
}

func (m Model) renderHeader() string {
	st := m.deps.Styles
	title := st.Title.Render("Capability Board")
	if !m.authed {
		return title
	}

	u := m.current.User
	who := ux.Sanitize(u.Email)
	if u.FullName != "" {
		who = ux.Sanitize(u.FullName) + " <" + who + ">"
	}
	return title + "  " + st.Muted.Render(who) + " " + st.Badge.Render(ux.Sanitize(u.Role))
}

func (m Model) renderLogin() string {
	st := m.deps.Styles
	var b strings.Builder

	b.WriteString(st.Subtitle.Render("Sign in to the capability registry"))
	b.WriteString("\n\n")
	b.WriteString(m.email.View())
	b.WriteString("\n")
	b.WriteString(m.password.View())
	b.WriteString("\n")

	if m.busy {
		b.WriteString("\n" + m.spinner.View() + " Signing in...")
	}
	if m.loginErr != "" {
		b.WriteString("\n" + st.Error.Render(m.loginErr))
	}

	b.WriteString("\n")
	b.WriteString(st.Help.Render("tab switch field • enter submit • esc quit"))
	return b.String()
}

func (m Model) renderCatalog() string {
	st := m.deps.Styles
	var b strings.Builder

	switch {
	case m.view.Failed():
		b.WriteString(st.Error.Render(m.view.Notice))
	case len(m.view.Cards) == 0 && m.loading:
		b.WriteString(m.spinner.View() + " Loading capabilities...")
	case len(m.view.Cards) == 0:
		b.WriteString(st.Muted.Render("No capabilities."))
	default:
		for i := range m.view.Cards {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(m.renderCard(i))
		}
		if m.loading {
			b.WriteString("\n" + m.spinner.View() + " Refreshing...")
		}
	}

	b.WriteString("\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// renderCard renders card i with the consultant cursor on the selected card.
func (m Model) renderCard(i int) string {
	card := m.view.Cards[i]
	selected := i == m.card
	if selected && m.consultant >= 0 {
		marked := card
		marked.Consultants = append(marked.Consultants[:0:0], card.Consultants...)
		c := marked.Consultants[m.consultant]
		c.Email = "▶ " + c.Email
		marked.Consultants[m.consultant] = c
		card = marked
	}
	return ux.RenderCard(card, m.deps.Styles, selected)
}

func (m Model) renderRegister() string {
	st := m.deps.Styles
	var b strings.Builder

	b.WriteString(st.Subtitle.Render("Register a consultant"))
	b.WriteString("\n\n")
	b.WriteString(st.Label.Render("Capability"))
	b.WriteString("\n")
	for i, opt := range m.view.Options {
		cursor := "  "
		if i == m.option {
			cursor = "> "
		}
		b.WriteString(cursor + ux.Sanitize(opt.Label) + "\n")
	}
	b.WriteString("\n")
	b.WriteString(m.regEmail.View())
	b.WriteString("\n")
	if m.view.SelfOnly {
		b.WriteString(st.Muted.Render("You can only register yourself."))
		b.WriteString("\n")
	}
	if m.busy {
		b.WriteString(m.spinner.View() + " Registering...\n")
	}
	b.WriteString(st.Help.Render("↑/↓ capability • enter register • esc back"))
	return b.String()
}

func (m Model) renderConfirm() string {
	st := m.deps.Styles
	if m.busy {
		return m.spinner.View() + " Unregistering..."
	}
	q := fmt.Sprintf("Unregister %s from %s?", ux.Sanitize(m.confirm.email), ux.Sanitize(m.confirm.capability))
	return st.Warning.Render(q) + "\n" + st.Help.Render("y confirm • n cancel")
}

func (m Model) renderHelp() string {
	h := m.help
	h.ShowAll = true
	return m.deps.Styles.Subtitle.Render("Keys") + "\n\n" + h.View(m.keys) + "\n\n" +
		m.deps.Styles.Help.Render("press any key to go back")
}

func (m Model) renderFeedback() string {
	if m.message.IsZero() {
		return ""
	}
	st := m.deps.Styles
	text := ux.Sanitize(m.message.Text)
	if m.message.Kind == feedback.KindError {
		return st.Error.Render("✗ " + text)
	}
	return st.Success.Render("✓ " + text)
}
