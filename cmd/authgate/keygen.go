package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"authgate/cmd/internal/auth/session"
	"authgate/cmd/security/token"
)

func keygenCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate secrets for a new deployment",
		Long: `Print a fresh PASETO v4 signing key for AUTHGATE_PASETO_V4_SECRET_KEY_HEX.

With --all, also print random values for AUTHGATE_TOKEN_HMAC_KEY and
AUTHGATE_OAUTH_STATE_KEY in dotenv form.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if !all {
				fmt.Fprintln(out, session.NewSecretKeyHex())
				return nil
			}

			fmt.Fprintf(out, "AUTHGATE_PASETO_V4_SECRET_KEY_HEX=%s\n", session.NewSecretKeyHex())
			for _, key := range []string{token.HMACEnvKey, "AUTHGATE_OAUTH_STATE_KEY"} {
				v, err := token.NewOpaque(32)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "%s=%s\n", key, v)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "print every deployment secret as KEY=value lines")
	return cmd
}
