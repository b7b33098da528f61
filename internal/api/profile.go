package api

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/capboard/internal/authz"
)

// Profile selects which of the two registry contracts the client speaks.
type Profile string

const (
	// ProfileHierarchy is the OAuth2 form login backend with five seniority roles.
	ProfileHierarchy Profile = authz.ProfileHierarchy
	// ProfileFlat is the JSON login backend with admin/consultant/readonly roles.
	ProfileFlat Profile = authz.ProfileFlat
)

// Profiles lists the supported profiles, default first.
func Profiles() []Profile {
	return []Profile{ProfileHierarchy, ProfileFlat}
}

// ParseProfile validates a configured profile name. Empty selects the default.
func ParseProfile(s string) (Profile, error) {
	switch Profile(strings.ToLower(strings.TrimSpace(s))) {
	case "", ProfileHierarchy:
		return ProfileHierarchy, nil
	case ProfileFlat:
		return ProfileFlat, nil
	default:
		return "", fmt.Errorf("unknown api profile %q (want hierarchy or flat)", s)
	}
}

// LoginPath returns the token endpoint of the profile.
func (p Profile) LoginPath() string {
	if p == ProfileFlat {
		return "/auth/login"
	}
	return "/token"
}

// RegisterUsesBody reports whether register sends the email as a JSON body
// rather than a query parameter.
func (p Profile) RegisterUsesBody() bool {
	return p == ProfileFlat
}

func (p Profile) String() string {
	return string(p)
}
