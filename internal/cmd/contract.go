package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/capboard/internal/api"
	"github.com/felixgeelhaar/capboard/internal/contract"
	"github.com/felixgeelhaar/capboard/internal/errors"
	"github.com/felixgeelhaar/capboard/internal/ux"
)

func newContractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "contract",
		Short: "Inspect the registry API contract",
		Long: `capboard carries an OpenAPI description of each registry profile. With
api.strict_contract enabled every response is checked against it and
mismatches are logged and counted.

Examples:
  # Operations the hierarchy profile documents
  capboard contract endpoints

  # The flat profile, as JSON
  capboard contract endpoints --profile flat --format json`,
	}

	endpoints := &cobra.Command{
		Use:   "endpoints",
		Short: "List the documented operations",
		Args:  cobra.NoArgs,
		RunE:  runContractEndpoints,
	}
	endpoints.Flags().String("format", "text", "output format: text, json, yaml")

	cmd.AddCommand(endpoints)
	return cmd
}

// ContractReport lists the operations of one contract document.
type ContractReport struct {
	Profile   string              `json:"profile" yaml:"profile"`
	Version   string              `json:"version" yaml:"version"`
	Endpoints []contract.Endpoint `json:"endpoints" yaml:"endpoints"`
}

func runContractEndpoints(cmd *cobra.Command, args []string) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	out, err := cc.Formatter()
	if err != nil {
		return err
	}

	loaded, err := cc.LoadConfig()
	if err != nil {
		return err
	}
	profile, err := api.ParseProfile(loaded.API.Profile)
	if err != nil {
		return errors.NewConfigInvalidError("api.profile", loaded.API.Profile, profileNames())
	}

	doc, err := contract.Load(profile.String(), loaded.API.URL)
	if err != nil {
		return errors.Wrap(errors.ErrCodeConfigInvalid, "failed to load the registry contract", err)
	}

	return out.Format(&ContractReport{
		Profile:   doc.Profile(),
		Version:   doc.Version(),
		Endpoints: doc.Endpoints(),
	})
}

// WriteText implements ux.Texter.
func (r *ContractReport) WriteText(w io.Writer, st ux.Styles) error {
	fmt.Fprintln(w, st.Title.Render(fmt.Sprintf("Registry contract %s (%s profile)", r.Version, r.Profile)))
	for _, e := range r.Endpoints {
		line := fmt.Sprintf("%-7s %-45s", e.Method, e.Path)
		if e.Summary != "" {
			line += " " + st.Muted.Render(e.Summary)
		}
		fmt.Fprintln(w, line)
	}
	return nil
}
