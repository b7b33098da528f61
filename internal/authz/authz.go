// Package authz decides, on the client, which capability actions a role may
// attempt. Decisions are advisory: the registry re-checks every mutation.
package authz

import (
	"fmt"
	"strings"
	"time"
)

// Effect represents the effect of a policy decision (allow or deny).
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Role is a registry role name as issued by the backend.
type Role string

// Roles of the hierarchy profile, most senior first.
const (
	RolePartner          Role = "partner"
	RoleManagingDirector Role = "managing_director"
	RoleSeniorManager    Role = "senior_manager"
	RoleConsultant       Role = "consultant"
	RoleViewer           Role = "viewer"
)

// Roles of the flat profile.
const (
	RoleAdmin    Role = "admin"
	RoleReadonly Role = "readonly"
)

// Action is a capability operation a role may attempt.
type Action string

const (
	ActionView         Action = "capability:view"
	ActionRegisterAny  Action = "capability:register"
	ActionRegisterSelf Action = "capability:register_self"
	ActionUnregister   Action = "capability:unregister"
)

// Policy grants or denies a set of actions to a set of roles.
type Policy struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Effect      Effect   `json:"effect"`
	Roles       []Role   `json:"roles"`
	Actions     []Action `json:"actions"` // "capability:*" style wildcards allowed
	Enabled     bool     `json:"enabled"`
}

// Decision represents the result of an authorization evaluation.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason"`
	PolicyIDs []string  `json:"policy_ids"`
	SelfOnly  bool      `json:"self_only,omitempty"` // denied only because the target is someone else
	Timestamp time.Time `json:"timestamp"`
}

// PolicySet is everything the engine needs for one backend profile.
type PolicySet struct {
	Profile  string
	Roles    []Role // most senior first
	Policies []*Policy
	// Denials holds the user-facing message for a denied action.
	Denials map[Action]string
}

// Engine evaluates role/action requests against a PolicySet.
// It is immutable after construction and safe for concurrent use.
type Engine struct {
	set   PolicySet
	known map[Role]bool
}

// NewEngine creates an engine for the given policy set.
func NewEngine(set PolicySet) *Engine {
	known := make(map[Role]bool, len(set.Roles))
	for _, r := range set.Roles {
		known[r] = true
	}
	return &Engine{set: set, known: known}
}

// ForProfile returns the engine for a named backend profile.
func ForProfile(profile string) (*Engine, error) {
	switch profile {
	case ProfileHierarchy:
		return NewEngine(HierarchyPolicySet()), nil
	case ProfileFlat:
		return NewEngine(FlatPolicySet()), nil
	default:
		return nil, fmt.Errorf("unknown authorization profile %q", profile)
	}
}

// Profile returns the profile name the engine was built for.
func (e *Engine) Profile() string {
	return e.set.Profile
}

// Roles returns the profile's roles, most senior first.
func (e *Engine) Roles() []Role {
	out := make([]Role, len(e.set.Roles))
	copy(out, e.set.Roles)
	return out
}

// Known reports whether role belongs to the profile.
func (e *Engine) Known(role Role) bool {
	return e.known[role]
}

// Evaluate decides whether role may perform action.
//
// Explicit deny wins, then any matching allow; otherwise the decision is the
// default deny. Unknown roles match no policy and are therefore denied.
func (e *Engine) Evaluate(role Role, action Action) Decision {
	decision := Decision{
		Allowed:   false,
		Reason:    "no matching policy found (default deny)",
		PolicyIDs: []string{},
		Timestamp: time.Now(),
	}

	var denyPolicies, allowPolicies []string
	for _, policy := range e.set.Policies {
		if !policy.Enabled || !roleMatches(policy.Roles, role) || !actionMatches(policy.Actions, action) {
			continue
		}
		switch policy.Effect {
		case EffectDeny:
			denyPolicies = append(denyPolicies, policy.ID)
		case EffectAllow:
			allowPolicies = append(allowPolicies, policy.ID)
		}
	}

	if len(denyPolicies) > 0 {
		decision.Reason = "access explicitly denied by policy"
		decision.PolicyIDs = denyPolicies
		return decision
	}
	if len(allowPolicies) > 0 {
		decision.Allowed = true
		decision.Reason = "access granted by policy"
		decision.PolicyIDs = allowPolicies
	}
	return decision
}

// CanView reports whether role may see the catalog.
func (e *Engine) CanView(role Role) Decision {
	return e.withDenial(e.Evaluate(role, ActionView), ActionView)
}

// CanRegister decides whether a user with role and email actorEmail may
// register targetEmail. Self-service roles may only register themselves.
func (e *Engine) CanRegister(role Role, actorEmail, targetEmail string) Decision {
	if d := e.Evaluate(role, ActionRegisterAny); d.Allowed {
		return d
	}

	self := e.Evaluate(role, ActionRegisterSelf)
	if !self.Allowed {
		return e.withDenial(self, ActionRegisterAny)
	}
	if SameEmail(actorEmail, targetEmail) {
		return self
	}

	self.Allowed = false
	self.SelfOnly = true
	return e.withDenial(self, ActionRegisterSelf)
}

// CanUnregister reports whether role may remove any consultant.
func (e *Engine) CanUnregister(role Role) Decision {
	return e.withDenial(e.Evaluate(role, ActionUnregister), ActionUnregister)
}

func (e *Engine) withDenial(d Decision, action Action) Decision {
	if d.Allowed {
		return d
	}
	if msg, ok := e.set.Denials[action]; ok {
		d.Reason = msg
	}
	return d
}

// SameEmail compares addresses the way the registry stores them: trimmed
// and case-insensitive.
func SameEmail(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func roleMatches(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == "*" || r == role {
			return true
		}
	}
	return false
}

// actionMatches supports exact matches, "*" and prefix wildcards like "capability:*".
func actionMatches(policyActions []Action, requested Action) bool {
	for _, action := range policyActions {
		if action == "*" || action == requested {
			return true
		}
		if prefix, ok := strings.CutSuffix(string(action), "*"); ok && strings.HasPrefix(string(requested), prefix) {
			return true
		}
	}
	return false
}
