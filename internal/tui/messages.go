package tui

import (
	"github.com/felixgeelhaar/capboard/internal/catalog"
	"github.com/felixgeelhaar/capboard/internal/feedback"
	"github.com/felixgeelhaar/capboard/internal/session"
)

// SessionMsg carries a session transition into the program.
type SessionMsg struct {
	Transition session.Transition
}

// ViewMsg carries a replaced catalog view into the program.
type ViewMsg struct {
	View catalog.View
}

// FeedbackMsg carries the notification area's new content. A zero Message
// means it was dismissed.
type FeedbackMsg struct {
	Message feedback.Message
}

type loginDoneMsg struct {
	err error
}

type refreshDoneMsg struct {
	view catalog.View
	err  error
}

// commandDoneMsg follows a register or unregister. The outcome itself
// arrives as a FeedbackMsg.
type commandDoneMsg struct{}

type logoutDoneMsg struct {
	err error
}
