package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/authz"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/session"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the session and who the registry thinks you are",
		Long: `Display the registry you are pointed at, the stored session and the
token's expiry. Unless --offline is given the registry is asked to confirm
the session; a rejected token ends it.

Examples:
  # Text report
  capboard status

  # Output as JSON for scripting
  capboard status --format json

  # Do not contact the registry
  capboard status --offline`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	cmd.Flags().String("format", "text", "output format: text, json, yaml")
	cmd.Flags().Bool("offline", false, "skip asking the registry")
	return cmd
}

// StatusReport is what 'capboard status' prints.
type StatusReport struct {
	APIURL      string       `json:"api_url" yaml:"api_url"`
	Profile     string       `json:"profile" yaml:"profile"`
	SessionFile string       `json:"session_file" yaml:"session_file"`
	State       string       `json:"state" yaml:"state"`
	User        *api.User    `json:"user,omitempty" yaml:"user,omitempty"`
	Token       *TokenStatus `json:"token,omitempty" yaml:"token,omitempty"`
	// Verified is set when the registry accepted the token just now.
	Verified bool     `json:"verified" yaml:"verified"`
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TokenStatus is read from the token without verifying it.
type TokenStatus struct {
	Subject   string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Expired   bool       `json:"expired" yaml:"expired"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	out, err := cc.Formatter()
	if err != nil {
		return err
	}

	ctx, a, err := cc.OpenApp(ctx)
	if err != nil {
		return err
	}

	report := &StatusReport{
		APIURL:      a.Client.BaseURL(),
		Profile:     a.Client.Profile().String(),
		SessionFile: a.Config.Session.Path,
		State:       a.Sessions.State().String(),
	}

	s, ok := a.Sessions.Current()
	if !ok {
		return out.Format(report)
	}

	u := s.User
	report.User = &u
	if role := authz.Role(u.Role); !a.Engine.Known(role) {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"Role %q is not part of the %s profile (%s); browsing only",
			ux.Sanitize(u.Role), a.Engine.Profile(), joinRoles(a.Engine.Roles())))
	}
	report.Token = tokenStatus(s.Token, time.Now())
	if report.Token == nil {
		report.Warnings = append(report.Warnings, "The stored token is not a JWT; expiry is unknown")
	}

	offline, _ := cmd.Flags().GetBool("offline")
	if offline {
		return out.Format(report)
	}

	me, err := a.Sessions.Whoami(ctx)
	switch {
	case err == nil:
		report.Verified = true
		report.User = me
	case errors.CodeOf(err) == errors.ErrCodeSessionExpired:
		report.State = a.Sessions.State().String()
		report.User = nil
		report.Token = nil
		report.Warnings = append(report.Warnings, errors.UserMessage(err))
	default:
		report.Warnings = append(report.Warnings, errors.UserMessage(err))
	}
	return out.Format(report)
}

func joinRoles(roles []authz.Role) string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return strings.Join(names, ", ")
}

// tokenStatus peeks at token. It returns nil when the token cannot be read.
func tokenStatus(token string, now time.Time) *TokenStatus {
	claims, err := session.PeekClaims(token)
	if err != nil {
		return nil
	}
	ts := &TokenStatus{Subject: claims.Subject, Expired: claims.Expired(now)}
	if !claims.ExpiresAt.IsZero() {
		exp := claims.ExpiresAt
		ts.ExpiresAt = &exp
	}
	return ts
}

// WriteText implements ux.Texter.
func (r *StatusReport) WriteText(w io.Writer, st ux.Styles) error {
	row := func(label, value string) {
		fmt.Fprintf(w, "%s %s\n", st.Label.Render(fmt.Sprintf("%-9s", label+":")), value)
	}

	row("Registry", fmt.Sprintf("%s (%s)", r.APIURL, r.Profile))
	row("Session", r.State)
	if r.User != nil {
		row("User", displayUser(*r.User))
		row("Role", ux.Sanitize(r.User.Role))
		if r.User.Market != "" {
			row("Market", ux.Sanitize(r.User.Market))
		}
	}
	if r.Token != nil {
		switch {
		case r.Token.ExpiresAt == nil:
			row("Token", "no expiry")
		case r.Token.Expired:
			row("Token", st.Warning.Render("expired "+r.Token.ExpiresAt.Local().Format(time.RFC1123)))
		default:
			row("Token", "expires "+r.Token.ExpiresAt.Local().Format(time.RFC1123))
		}
	}
	if r.User != nil {
		verified := st.Muted.Render("not checked")
		if r.Verified {
			verified = st.Success.Render("yes")
		}
		row("Verified", verified)
	}
	for _, warning := range r.Warnings {
		fmt.Fprintln(w, st.Warning.Render("! "+warning))
	}
	if r.User == nil {
		fmt.Fprintln(w, st.Muted.Render("Run 'capboard login' to start a session."))
	}
	return nil
}
