package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cobytes/scanOrchestratorGo/internal/auth"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func (c *cli) newTokenCmd() *cobra.Command {
	var (
		owner    string
		roles    []string
		ttl      time.Duration
		issuer   string
		audience []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an owner token with the server's signing secret",
		Long: `token signs a bearer token locally. The secret must match the server's
CSO_AUTH_SECRET; it is read from --secret or from that variable.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := c.v.GetString("secret")
			if secret == "" {
				return fmt.Errorf("no signing secret, pass --secret or set CSO_AUTH_SECRET")
			}

			log := logrus.New()
			log.SetOutput(io.Discard)
			cfg := auth.DefaultJWTConfig()
			cfg.Secret = secret
			cfg.AccessTokenTTL = ttl
			if issuer != "" {
				cfg.Issuer = issuer
			}
			if len(audience) > 0 {
				cfg.Audience = audience
			}

			token, err := auth.NewJWTService(cfg, log).GenerateToken(owner, roles)
			if err != nil {
				return fmt.Errorf("failed to mint token: %w", err)
			}
			if c.jsonOutput() {
				return c.printJSON(token)
			}
			fmt.Fprintln(c.out, token.AccessToken)
			fmt.Fprintf(c.errOut, "owner=%s roles=%s expires=%s\n",
				owner, strings.Join(roles, ","), token.ExpiresAt.Local().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("secret", "", "HMAC signing secret")
	_ = c.v.BindPFlag("secret", cmd.Flags().Lookup("secret"))
	_ = c.v.BindEnv("secret", "CSO_AUTH_SECRET")

	cmd.Flags().StringVar(&owner, "owner", "", "Owner id carried by the token")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "Roles, e.g. admin")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	cmd.Flags().StringVar(&issuer, "issuer", "", "Issuer claim (default matches the server)")
	cmd.Flags().StringSliceVar(&audience, "audience", nil, "Audience claim (default matches the server)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}
