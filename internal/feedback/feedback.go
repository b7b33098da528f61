// Package feedback holds the single transient message shown after a
// command: the latest one wins and each is dismissed after a delay.
package feedback

import (
	"sync"
	"time"
)

// DefaultDismissAfter is how long a message stays visible.
const DefaultDismissAfter = 5 * time.Second

// Kind classifies a message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Message is one piece of user feedback.
type Message struct {
	Text string
	Kind Kind
}

// Success returns a success message.
func Success(text string) Message {
	return Message{Text: text, Kind: KindSuccess}
}

// Error returns an error message.
func Error(text string) Message {
	return Message{Text: text, Kind: KindError}
}

// IsZero reports whether m is the empty message.
func (m Message) IsZero() bool {
	return m == Message{}
}

// Timer is the part of *time.Timer the board needs.
type Timer interface {
	Stop() bool
}

// Option configures a Board.
type Option func(*Board)

// WithDismissAfter sets the display duration. Zero or negative keeps
// messages until the next Post or Clear.
func WithDismissAfter(d time.Duration) Option {
	return func(b *Board) {
		b.dismissAfter = d
	}
}

// WithAfterFunc replaces time.AfterFunc, for tests.
func WithAfterFunc(f func(time.Duration, func()) Timer) Option {
	return func(b *Board) {
		b.afterFunc = f
	}
}

// Board holds the visible message.
type Board struct {
	dismissAfter time.Duration
	afterFunc    func(time.Duration, func()) Timer

	mu       sync.Mutex
	current  Message
	seq      uint64
	timer    Timer
	onChange func(Message)
}

// NewBoard creates an empty board.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		dismissAfter: DefaultDismissAfter,
		afterFunc: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnChange sets the callback run after every change, including dismissal.
// It replaces any previous callback.
func (b *Board) OnChange(f func(Message)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = f
}

// Post replaces the visible message and restarts the dismiss timer.
func (b *Board) Post(m Message) {
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.current = m
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if b.dismissAfter > 0 {
		b.timer = b.afterFunc(b.dismissAfter, func() { b.dismiss(seq) })
	}
	cb := b.onChange
	b.mu.Unlock()

	if cb != nil {
		cb(m)
	}
}

// Clear removes the visible message immediately.
func (b *Board) Clear() {
	b.mu.Lock()
	b.seq++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	changed := !b.current.IsZero()
	b.current = Message{}
	cb := b.onChange
	b.mu.Unlock()

	if changed && cb != nil {
		cb(Message{})
	}
}

// Current returns the visible message, or the zero Message.
func (b *Board) Current() Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// dismiss clears the message posted as seq. A timer that lost the race
// against a newer Post finds a different seq and does nothing.
func (b *Board) dismiss(seq uint64) {
	b.mu.Lock()
	if b.seq != seq {
		b.mu.Unlock()
		return
	}
	b.current = Message{}
	b.timer = nil
	cb := b.onChange
	b.mu.Unlock()

	if cb != nil {
		cb(Message{})
	}
}
