package main

import (
	"fmt"

	"github.com/cobytes/scanOrchestratorGo/internal/config"
	"github.com/spf13/cobra"
)

func (c *cli) newEncryptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encrypt <value>",
		Short: "Encrypt a secret for the server's config file",
		Long: `encrypt seals a value with the server's encryption key. The output carries
the "enc:" prefix and can replace database.password, auth.secret,
provider.api_key or events.postgres_dsn when security.encryption_enabled is on.`,
		Example: `  scanctl encrypt --key "$CSO_SECURITY_ENCRYPTION_KEY" s3cr3t`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := c.v.GetString("encryption_key")
			if key == "" {
				return fmt.Errorf("no encryption key, pass --key or set CSO_SECURITY_ENCRYPTION_KEY")
			}
			sealed, err := config.EncryptSecret(key, args[0])
			if err != nil {
				return fmt.Errorf("failed to encrypt value: %w", err)
			}
			fmt.Fprintln(c.out, sealed)
			return nil
		},
	}
	cmd.Flags().String("key", "", "Encryption passphrase")
	_ = c.v.BindPFlag("encryption_key", cmd.Flags().Lookup("key"))
	_ = c.v.BindEnv("encryption_key", "CSO_SECURITY_ENCRYPTION_KEY")
	return cmd
}
