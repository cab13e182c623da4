package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/pkg/session"
)

// deferredNavigator lets the follow navigator be built after the
// application whose HTTP client it borrows.
type deferredNavigator struct {
	session.Navigator
}

func (d *deferredNavigator) Navigate(ctx context.Context, url string) error {
	return d.Navigator.Navigate(ctx, url)
}

func printStatus(w io.Writer, ctrl *session.Controller) {
	fmt.Fprintf(w, "state: %s\n", ctrl.State())
	if u := ctrl.CurrentUser(); u != nil {
		fmt.Fprintf(w, "user: %s <%s>\n", u.DisplayName(), u.Email)
		if u.Tenant != "" {
			fmt.Fprintf(w, "tenant: %s\n", u.Tenant)
		}
		if len(u.Roles) > 0 {
			fmt.Fprintf(w, "roles: %s\n", strings.Join(u.Roles, ", "))
		}
	}
}

func (c *cli) loginCmd() *cobra.Command {
	var email, returnTo string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Start a sign-in for an email address",
		Long:  `Looks up the organization for the email and sends you to its identity provider. With --follow the redirect is completed against the backend and the session is established immediately.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			if returnTo == "" {
				returnTo = application.Config().ReturnTo
			}

			res, err := application.Controller.Login(cmd.Context(), email, returnTo)
			if err != nil {
				return err
			}
			if res.Tenant != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "signing in to %s\n", res.Tenant)
			}
			if !c.follow {
				return nil
			}

			if _, err := application.Init(cmd.Context()); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), application.Controller)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "work email address")
	cmd.Flags().StringVar(&returnTo, "return-to", "", "where to land after signing in")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func (c *cli) statusCmd() *cobra.Command {
	var metrics, validate bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether you are signed in",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			if _, err := application.Init(cmd.Context()); err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), application.Controller)

			if validate {
				_, ok, err := application.Controller.Validate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "backend accepts session: %t\n", ok)
			}

			if metrics {
				lines, err := application.Metrics()
				if err != nil {
					return err
				}
				for _, l := range lines {
					fmt.Fprintln(cmd.OutOrStdout(), l)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&metrics, "metrics", false, "print session counters")
	cmd.Flags().BoolVar(&validate, "validate", false, "ask the backend whether the session is still accepted")
	return cmd
}

func (c *cli) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Renew the session credentials",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			if _, err := application.Init(cmd.Context()); err != nil {
				return err
			}
			if err := application.Controller.RefreshSession(cmd.Context()); err != nil {
				printStatus(cmd.OutOrStdout(), application.Controller)
				return err
			}
			printStatus(cmd.OutOrStdout(), application.Controller)
			return nil
		},
	}
}

func (c *cli) logoutCmd() *cobra.Command {
	var complete bool

	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			mode := session.LogoutLocal
			if complete {
				mode = session.LogoutComplete
			}
			if _, err := application.Init(cmd.Context()); err != nil {
				return err
			}
			if err := application.Controller.Logout(cmd.Context(), mode); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signed out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&complete, "complete", false, "also end the identity provider session")
	return cmd
}

func (c *cli) callCmd() *cobra.Command {
	var method string

	cmd := &cobra.Command{
		Use:   "call <path>",
		Short: "Call the application API with the current session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer c.close()

			if _, err := application.Init(cmd.Context()); err != nil {
				return err
			}

			req, err := application.Gateway.NewRequest(cmd.Context(), strings.ToUpper(method), args[0], nil)
			if err != nil {
				return err
			}
			resp, err := application.Controller.Do(cmd.Context(), req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			fmt.Fprintln(cmd.OutOrStdout(), resp.Status)
			if _, err := io.Copy(cmd.OutOrStdout(), resp.Body); err != nil {
				return err
			}
			if resp.StatusCode >= http.StatusBadRequest {
				return fmt.Errorf("%s %s: %s", strings.ToUpper(method), args[0], resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	return cmd
}
