package main

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/internal/app"
	"github.com/aussiebroadwan/tabsession/internal/config"
)

// cli carries state shared by the subcommands.
type cli struct {
	follow bool

	app *app.Application
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "tabsession",
		Short:         "Multi-tenant sign-in session client",
		Long:          `Sign in through your organization's identity provider and call APIs with the resulting session. Configuration is read from TABSESSION_* environment variables, see "tabsession env".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       app.BuildVersion,
	}
	root.PersistentFlags().BoolVar(&c.follow, "follow", false, "follow login and logout redirects against the backend instead of printing them")

	root.AddCommand(
		c.loginCmd(),
		c.statusCmd(),
		c.refreshCmd(),
		c.logoutCmd(),
		c.callCmd(),
		devbackendCmd(),
		envCmd(),
	)
	return root
}

// open loads configuration and wires the application for one command.
func (c *cli) open(cmd *cobra.Command) (*app.Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	var nav *deferredNavigator
	opts := app.Options{Out: cmd.OutOrStdout(), LogOutput: cmd.ErrOrStderr()}
	if c.follow {
		nav = &deferredNavigator{}
		opts.Navigator = nav
	}

	application, err := app.New(cfg, opts)
	if err != nil {
		return nil, err
	}

	if nav != nil {
		nav.Navigator, err = app.FollowNavigator(application.HTTPClient(), cfg.BackendURL, cmd.OutOrStdout())
		if err != nil {
			_ = application.Close()
			return nil, err
		}
	}

	c.app = application
	return application, nil
}

func (c *cli) close() {
	if c.app != nil {
		_ = c.app.Close()
		c.app = nil
	}
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables tabsession reads",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return config.Usage()
		},
	}
}
