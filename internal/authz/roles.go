package authz

// Profile names. They match the api.profile configuration values.
const (
	ProfileHierarchy = "hierarchy"
	ProfileFlat      = "flat"
)

// PolicyBuilder provides a fluent API for building authorization policies.
type PolicyBuilder struct {
	policy *Policy
}

// NewPolicyBuilder creates a new policy builder.
func NewPolicyBuilder(name string) *PolicyBuilder {
	return &PolicyBuilder{
		policy: &Policy{
			Name:    name,
			Effect:  EffectAllow,
			Roles:   []Role{},
			Actions: []Action{},
			Enabled: true,
		},
	}
}

// WithID sets the policy ID.
func (b *PolicyBuilder) WithID(id string) *PolicyBuilder {
	b.policy.ID = id
	return b
}

// WithDescription sets the policy description.
func (b *PolicyBuilder) WithDescription(description string) *PolicyBuilder {
	b.policy.Description = description
	return b
}

// WithEffect sets the policy effect (allow or deny).
func (b *PolicyBuilder) WithEffect(effect Effect) *PolicyBuilder {
	b.policy.Effect = effect
	return b
}

// ForRoles adds roles the policy applies to.
func (b *PolicyBuilder) ForRoles(roles ...Role) *PolicyBuilder {
	b.policy.Roles = append(b.policy.Roles, roles...)
	return b
}

// OnActions adds actions to the policy.
func (b *PolicyBuilder) OnActions(actions ...Action) *PolicyBuilder {
	b.policy.Actions = append(b.policy.Actions, actions...)
	return b
}

// Build returns the constructed policy.
func (b *PolicyBuilder) Build() *Policy {
	return b.policy
}

// HierarchyPolicySet is the five-level seniority model. Senior managers and
// above administer registrations, consultants register themselves and
// viewers only browse.
func HierarchyPolicySet() PolicySet {
	managers := []Role{RolePartner, RoleManagingDirector, RoleSeniorManager}

	return PolicySet{
		Profile: ProfileHierarchy,
		Roles:   []Role{RolePartner, RoleManagingDirector, RoleSeniorManager, RoleConsultant, RoleViewer},
		Policies: []*Policy{
			NewPolicyBuilder("Catalog Viewers").
				WithID("hierarchy-view").
				WithDescription("Every authenticated user may browse the catalog").
				ForRoles("*").
				OnActions(ActionView).
				Build(),
			NewPolicyBuilder("Registration Administrators").
				WithID("hierarchy-manage").
				WithDescription("Senior managers and above may register and unregister anyone").
				ForRoles(managers...).
				OnActions(ActionRegisterAny, ActionUnregister).
				Build(),
			NewPolicyBuilder("Self Registration").
				WithID("hierarchy-self").
				WithDescription("Consultants may register themselves").
				ForRoles(RoleConsultant).
				OnActions(ActionRegisterSelf).
				Build(),
			NewPolicyBuilder("Read Only").
				WithID("hierarchy-readonly").
				WithDescription("Viewers never change registrations").
				WithEffect(EffectDeny).
				ForRoles(RoleViewer).
				OnActions(ActionRegisterAny, ActionRegisterSelf, ActionUnregister).
				Build(),
		},
		Denials: map[Action]string{
			ActionView:         "Your role does not permit viewing capabilities",
			ActionRegisterAny:  "Insufficient permissions to register consultants",
			ActionRegisterSelf: "Consultants can only register themselves",
			ActionUnregister:   "Only Senior Managers and above can unregister consultants",
		},
	}
}

// FlatPolicySet is the three-role model: admins administer, consultants
// register themselves, readonly users browse.
func FlatPolicySet() PolicySet {
	return PolicySet{
		Profile: ProfileFlat,
		Roles:   []Role{RoleAdmin, RoleConsultant, RoleReadonly},
		Policies: []*Policy{
			NewPolicyBuilder("Catalog Viewers").
				WithID("flat-view").
				WithDescription("Every authenticated user may browse the catalog").
				ForRoles("*").
				OnActions(ActionView).
				Build(),
			NewPolicyBuilder("Administrators").
				WithID("flat-admin").
				WithDescription("Admins may perform every capability action").
				ForRoles(RoleAdmin).
				OnActions("capability:*").
				Build(),
			NewPolicyBuilder("Self Registration").
				WithID("flat-self").
				WithDescription("Consultants may register themselves").
				ForRoles(RoleConsultant).
				OnActions(ActionRegisterSelf).
				Build(),
			NewPolicyBuilder("Read Only").
				WithID("flat-readonly").
				WithDescription("Readonly users never change registrations").
				WithEffect(EffectDeny).
				ForRoles(RoleReadonly).
				OnActions(ActionRegisterAny, ActionRegisterSelf, ActionUnregister).
				Build(),
		},
		Denials: map[Action]string{
			ActionView:         "Your role does not permit viewing capabilities",
			ActionRegisterAny:  "Access denied. Required roles: admin, consultant",
			ActionRegisterSelf: "Consultants can only register themselves",
			ActionUnregister:   "Admin access required",
		},
	}
}
