package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the catalog screen bindings and feeds the help bar.
type keyMap struct {
	Up         key.Binding
	Down       key.Binding
	Next       key.Binding
	Refresh    key.Binding
	Register   key.Binding
	Unregister key.Binding
	Logout     key.Binding
	Help       key.Binding
	Quit       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next"),
		),
		Next: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "select consultant"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Register: key.NewBinding(
			key.WithKeys("a"),
			key.WithHelp("a", "register"),
		),
		Unregister: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "unregister"),
		),
		Logout: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "log out"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Register, k.Unregister, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Next},
		{k.Refresh, k.Register, k.Unregister},
		{k.Logout, k.Help, k.Quit},
	}
}
