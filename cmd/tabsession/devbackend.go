package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabsession/internal/app"
	"github.com/aussiebroadwan/tabsession/internal/devbackend"
	"github.com/aussiebroadwan/tabsession/pkg/slogx"
)

func devbackendCmd() *cobra.Command {
	var (
		port    int
		tenants []string
		level   string
	)

	cmd := &cobra.Command{
		Use:   "devbackend",
		Short: "Run a local identity-and-session backend for development",
		Long:  `Serves the login, token, refresh, validate, current user and logout endpoints with locally signed credentials. Tenants are given as domain=Company or domain=Company=https://idp/authorize.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := devbackend.DefaultConfig()
			if len(tenants) > 0 {
				cfg.Tenants = cfg.Tenants[:0]
				for _, raw := range tenants {
					t, err := parseTenant(raw)
					if err != nil {
						return err
					}
					cfg.Tenants = append(cfg.Tenants, t)
				}
			}

			logger := slogx.New(slogx.Config{
				Service: "tabsession-devbackend",
				Version: app.BuildVersion,
				Env:     "dev",
				Level:   level,
				Format:  "text",
				Output:  cmd.ErrOrStderr(),
			})

			srv, err := app.NewDevServer(fmt.Sprintf(":%d", port), cfg, logger)
			if err != nil {
				return err
			}
			return srv.Run(cmd.Context(), 10*time.Second, nil)
		},
	}
	cmd.Flags().IntVar(&port, "port", 8080, "listen port")
	cmd.Flags().StringSliceVar(&tenants, "tenant", nil, "tenant as domain=Company[=authURL], repeatable")
	cmd.Flags().StringVar(&level, "log-level", "info", "log level")
	return cmd
}

func parseTenant(raw string) (devbackend.Tenant, error) {
	parts := strings.SplitN(raw, "=", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return devbackend.Tenant{}, fmt.Errorf("invalid tenant %q, want domain=Company[=authURL]", raw)
	}

	t := devbackend.Tenant{Domain: parts[0], Company: parts[1]}
	if len(parts) == 3 {
		t.AuthURL = parts[2]
	}
	return t, nil
}
