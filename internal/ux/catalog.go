package ux

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/felixgeelhaar/capboard/internal/catalog"
)

// CatalogText renders a catalog view for the text formatter.
type CatalogText struct {
	View catalog.View
}

// WriteText implements Texter.
func (c CatalogText) WriteText(w io.Writer, st Styles) error {
	_, err := io.WriteString(w, RenderCatalog(c.View, st))
	return err
}

// CardText renders a single card for the text formatter.
type CardText struct {
	Card catalog.Card
}

// WriteText implements Texter.
func (c CardText) WriteText(w io.Writer, st Styles) error {
	_, err := fmt.Fprintln(w, RenderCard(c.Card, st, false))
	return err
}

// RenderCatalog renders every card in order. A failed view renders its
// notice and nothing else.
func RenderCatalog(v catalog.View, st Styles) string {
	if v.Failed() {
		return st.Error.Render(v.Notice) + "\n"
	}
	if len(v.Cards) == 0 {
		return st.Muted.Render("No capabilities.") + "\n"
	}

	var b strings.Builder
	for i, card := range v.Cards {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(RenderCard(card, st, false))
		b.WriteString("\n")
	}
	return b.String()
}

// RenderCard renders one capability. Every server-supplied string passes
// through Sanitize.
func RenderCard(c catalog.Card, st Styles, selected bool) string {
	var b strings.Builder

	b.WriteString(st.Title.Render(Sanitize(c.Name)))
	if c.PracticeArea != "" {
		b.WriteString("  ")
		b.WriteString(st.Badge.Render(Sanitize(c.PracticeArea)))
	}
	b.WriteString("\n")

	if c.Description != "" {
		b.WriteString(st.Subtitle.Render(Sanitize(c.Description)))
		b.WriteString("\n")
	}

	field := func(label string, values []string) {
		if len(values) == 0 {
			return
		}
		b.WriteString(st.Label.Render(label+": ") + strings.Join(SanitizeAll(values), ", "))
		b.WriteString("\n")
	}
	field("Skill levels", c.SkillLevels)
	field("Certifications", c.Certifications)
	field("Industries", c.IndustryVerticals)

	b.WriteString(st.Label.Render("Capacity: ") + FormatCapacity(c.Capacity))
	b.WriteString("\n")

	b.WriteString(st.Label.Render(fmt.Sprintf("Consultants (%d):", len(c.Consultants))))
	if len(c.Consultants) == 0 {
		b.WriteString(" " + st.Muted.Render("none"))
	}
	for _, cons := range c.Consultants {
		b.WriteString("\n  - " + Sanitize(cons.Email))
		if cons.CanUnregister {
			b.WriteString(" " + st.Muted.Render("(removable)"))
		}
	}

	box := st.Card
	if selected {
		box = st.Selected
	}
	return box.Render(b.String())
}

// FormatCapacity prints a capacity without trailing zeros: 40, 35.5.
func FormatCapacity(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
