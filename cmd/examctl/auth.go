package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/examhall/examhall-backend/internal/model"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session in the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			password, err := a.promptPassword("Password")
			if err != nil {
				return err
			}

			resp, err := a.client.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			a.defaultRole()
			if err := a.save(); err != nil {
				return err
			}
			a.printf("Signed in as %s <%s> (%s role)\n", resp.User.Name, resp.User.Email, a.client.Session().Role())
			return nil
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newRegisterCmd(a *app) *cobra.Command {
	var name, email string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if name == "" {
				if name, err = a.prompt("Name"); err != nil {
					return err
				}
			}
			if email == "" {
				if email, err = a.prompt("Email"); err != nil {
					return err
				}
			}
			password, err := a.promptPassword("Password")
			if err != nil {
				return err
			}
			confirm, err := a.promptPassword("Repeat password")
			if err != nil {
				return err
			}
			if password != confirm {
				return errors.New("passwords do not match")
			}

			resp, err := a.client.Register(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			a.defaultRole()
			if err := a.save(); err != nil {
				return err
			}
			a.printf("Welcome, %s. You are signed in with the %s role.\n", resp.User.Name, a.client.Session().Role())
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "name", "n", "", "display name")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the token and clear the profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.client.Session().Authenticated() {
				a.printf("Not signed in.\n")
				return nil
			}
			// The local session is cleared even when revocation fails.
			logoutErr := a.client.Logout(cmd.Context())
			if err := a.save(); err != nil {
				return err
			}
			if logoutErr != nil {
				a.log.Warn().Err(logoutErr).Msg("Server-side logout failed")
				a.printf("Signed out locally; the server could not be told (%s).\n", describe(logoutErr))
				return nil
			}
			a.printf("Signed out.\n")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			me, err := a.client.Me(cmd.Context())
			if err != nil {
				return err
			}
			a.printf("%s <%s>\n", me.User.Name, me.User.Email)
			a.printf("  account role: %s\n", me.User.Role)
			a.printf("  working role: %s\n", a.client.Session().Role())
			a.printf("  permissions:  %s\n", strings.Join(me.Permissions, ", "))
			return nil
		},
	}
}

func newRoleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "role [examiner|examinee]",
		Short:     "Show or switch the working role",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{string(model.WorkingRoleExaminer), string(model.WorkingRoleExaminee)},
		RunE: func(_ *cobra.Command, args []string) error {
			s := a.client.Session()
			if len(args) == 0 {
				if s.Role() == "" {
					a.printf("No working role set.\n")
					return nil
				}
				a.printf("%s\n", s.Role())
				return nil
			}

			role, err := parseRole(args[0])
			if err != nil {
				return err
			}
			s.SetRole(role)
			if err := a.save(); err != nil {
				return err
			}
			a.printf("Working role is now %s.\n", role)
			return nil
		},
	}
}

func parseRole(s string) (model.WorkingRole, error) {
	switch role := model.WorkingRole(strings.ToLower(strings.TrimSpace(s))); role {
	case model.WorkingRoleExaminer, model.WorkingRoleExaminee:
		return role, nil
	default:
		return "", fmt.Errorf("unknown role %q (want examiner or examinee)", s)
	}
}

// defaultRole starts new sessions as examinee unless a role was chosen
// before.
func (a *app) defaultRole() {
	if s := a.client.Session(); s.Role() == "" {
		s.SetRole(model.WorkingRoleExaminee)
	}
}
