package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goAuthz/permission"
)

type evaluateOptions struct {
	rolesFile string
	role      string
	resource  string
	action    string
	scope     string
	inactive  bool
}

func newEvaluateCommand() *cobra.Command {
	var opts evaluateOptions

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Check one request against a YAML role table without any backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			table, err := loadRolesFile(opts.rolesFile)
			if err != nil {
				return err
			}
			return runEvaluate(cmd.OutOrStdout(), table, opts)
		},
	}

	cmd.Flags().StringVar(&opts.rolesFile, "roles", "roles.yaml", "YAML role table.")
	cmd.Flags().StringVar(&opts.role, "role", "", "Role of the actor being checked.")
	cmd.Flags().StringVar(&opts.resource, "resource", "", "Resource being accessed.")
	cmd.Flags().StringVar(&opts.action, "action", "", "Action being performed.")
	cmd.Flags().StringVar(&opts.scope, "scope", "", "Optional permission scope.")
	cmd.Flags().BoolVar(&opts.inactive, "inactive", false, "Evaluate as an inactive actor.")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("resource")
	_ = cmd.MarkFlagRequired("action")
	return cmd
}

func runEvaluate(w io.Writer, table *permission.Table, opts evaluateOptions) error {
	role, err := permission.ParseRole(opts.role)
	if err != nil {
		return fmt.Errorf("%w: %q", err, opts.role)
	}

	actor := permission.Actor{ID: "cli", Role: role, IsActive: !opts.inactive}
	d := table.Explain(actor, opts.resource, opts.action, opts.scope)

	verdict := "deny"
	if d.Allowed {
		verdict = "allow"
	}
	_, err = fmt.Fprintf(w, "%s rule=%s", verdict, d.Rule)
	if err != nil {
		return err
	}
	if d.Allowed {
		_, err = fmt.Fprintf(w, " grant=%s", d.Grant)
		if err != nil {
			return err
		}
	}
	_, err = fmt.Fprintln(w)
	return err
}
