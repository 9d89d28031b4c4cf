package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/jrsteele09/go-auth-gateway/access"
	"github.com/jrsteele09/go-auth-gateway/internal/config"
	"github.com/jrsteele09/go-auth-gateway/routes"
	"github.com/jrsteele09/go-auth-gateway/users"
	"github.com/spf13/cobra"
)

func classifyCmd() *cobra.Command {
	var (
		role       string
		mfaState   string
		policyFile string
	)

	cmd := &cobra.Command{
		Use:   "classify <path>...",
		Short: "Show how the edge treats paths",
		Long: `Print the route class of each path and the decision the access gate
makes for a caller. Without --role the caller has no session.

Examples:
  gateway classify /panel /api/tasks /docs
  gateway classify --role user --mfa pending /panel/api
  gateway classify --role operator /panel/management`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := syntheticUser(role, mfaState)
			if err != nil {
				return err
			}

			c := config.New()
			policy := access.DefaultPolicy()
			if setup := c.GetMFASetupPath(); setup != "" {
				policy.MFASetupPath = setup
			}
			gate := access.NewGate(access.WithPolicy(policy))
			if policyFile == "" {
				policyFile = c.GetPolicyFile()
			}
			if policyFile != "" {
				if err := gate.LoadPolicyFile(policyFile); err != nil {
					return err
				}
			}
			return printDecisions(cmd.OutOrStdout(), gate, user, args)
		},
	}

	cmd.Flags().StringVarP(&role, "role", "r", "", "Caller role (guest, user, operator, admin); empty means no session")
	cmd.Flags().StringVar(&mfaState, "mfa", "enabled", "Caller MFA state: enabled, pending or none")
	cmd.Flags().StringVarP(&policyFile, "policy", "p", "", "Policy file (default POLICY_FILE)")

	return cmd
}

func syntheticUser(role, mfaState string) (*users.User, error) {
	if role == "" {
		return nil, nil
	}
	r, ok := users.ParseRole(role)
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	u := &users.User{ID: "cli", Username: "cli", Role: r}
	switch mfaState {
	case "enabled":
		u.MFAEnabled = true
	case "pending":
		u.MFAPending = true
	case "none":
	default:
		return nil, fmt.Errorf("unknown mfa state %q", mfaState)
	}
	return u, nil
}

func printDecisions(out io.Writer, gate *access.Gate, user *users.User, paths []string) error {
	if out == nil {
		out = os.Stdout
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tCLASS\tDECISION\tREDIRECT")
	for _, path := range paths {
		class := routes.Classify(path)
		decision := "allowed"
		redirect := ""
		if class != routes.Public {
			var d access.Decision
			if user == nil {
				d = gate.DenyUnauthenticated(path)
			} else {
				d = gate.Decide(user, path)
			}
			if !d.Allowed {
				decision = string(d.Reason)
				if d.MFALocked {
					decision = "mfa_locked"
				}
				redirect = d.Redirect
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", path, class, decision, redirect)
	}
	return tw.Flush()
}
