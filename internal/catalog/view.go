package catalog

import (
	"slices"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/authz"
	"github.com/felixgeelhaar/capboard/internal/session"
)

// FailedNotice replaces the catalog when it cannot be loaded.
const FailedNotice = "Failed to load capabilities. Please try again later."

// Consultant is one registration on a card.
type Consultant struct {
	Email string `json:"email" yaml:"email"`
	// CanUnregister drives whether a remove affordance is offered. It is
	// advisory; the registry decides.
	CanUnregister bool `json:"can_unregister" yaml:"can_unregister"`
}

// Card is the rendered form of one capability.
type Card struct {
	Name              string       `json:"name" yaml:"name"`
	Description       string       `json:"description" yaml:"description"`
	PracticeArea      string       `json:"practice_area" yaml:"practice_area"`
	SkillLevels       []string     `json:"skill_levels,omitempty" yaml:"skill_levels,omitempty"`
	Certifications    []string     `json:"certifications,omitempty" yaml:"certifications,omitempty"`
	IndustryVerticals []string     `json:"industry_verticals" yaml:"industry_verticals"`
	Capacity          float64      `json:"capacity" yaml:"capacity"`
	Consultants       []Consultant `json:"consultants" yaml:"consultants"`
}

// Option is an entry of the capability selector.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label" yaml:"label"`
}

// View is an immutable snapshot of what the catalog screen shows. Views are
// only ever replaced, never patched.
type View struct {
	Cards   []Card   `json:"cards" yaml:"cards"`
	Options []Option `json:"options" yaml:"options"`

	// Notice is set instead of Cards when loading failed.
	Notice string `json:"notice,omitempty" yaml:"notice,omitempty"`

	Role string `json:"role,omitempty" yaml:"role,omitempty"`
	// CanRegister is true when the role may register someone; SelfOnly
	// narrows that to the user's own email.
	CanRegister bool `json:"can_register" yaml:"can_register"`
	SelfOnly    bool `json:"self_only,omitempty" yaml:"self_only,omitempty"`
}

// Empty reports whether the view shows nothing at all.
func (v View) Empty() bool {
	return len(v.Cards) == 0 && v.Notice == ""
}

// Failed reports whether the view is the load-failure notice.
func (v View) Failed() bool {
	return v.Notice != ""
}

// BuildView derives the view for a catalog as seen by s. It does not
// modify its inputs and returns slices it alone owns.
func BuildView(c *api.Catalog, s session.Session, engine *authz.Engine) View {
	role := authz.Role(s.User.Role)
	canUnregister := engine.CanUnregister(role).Allowed

	v := View{
		Cards:   make([]Card, 0, c.Len()),
		Options: make([]Option, 0, c.Len()),
		Role:    s.User.Role,
	}

	if d := engine.Evaluate(role, authz.ActionRegisterAny); d.Allowed {
		v.CanRegister = true
	} else if d := engine.Evaluate(role, authz.ActionRegisterSelf); d.Allowed {
		v.CanRegister = true
		v.SelfOnly = true
	}

	for _, capability := range c.All() {
		card := Card{
			Name:              capability.Name,
			Description:       capability.Description,
			PracticeArea:      capability.PracticeArea,
			SkillLevels:       slices.Clone(capability.SkillLevels),
			Certifications:    slices.Clone(capability.Certifications),
			IndustryVerticals: slices.Clone(capability.IndustryVerticals),
			Capacity:          capability.Capacity,
			Consultants:       make([]Consultant, 0, len(capability.Consultants)),
		}
		if card.IndustryVerticals == nil {
			card.IndustryVerticals = []string{}
		}
		for _, email := range capability.Consultants {
			card.Consultants = append(card.Consultants, Consultant{Email: email, CanUnregister: canUnregister})
		}

		v.Cards = append(v.Cards, card)
		v.Options = append(v.Options, Option{Value: capability.Name, Label: capability.Name})
	}
	return v
}

// Lookup returns the card named name.
func (v View) Lookup(name string) (Card, bool) {
	for _, c := range v.Cards {
		if c.Name == name {
			return c, true
		}
	}
	return Card{}, false
}
