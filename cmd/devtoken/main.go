// devtoken mints a dashboard access token from the local RSA key pair.
package main

import (
	"fmt"
	"os"
	"strings"

	"qrloop-service/internal/config"
	"qrloop-service/internal/pkg/jwt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		identity int64
		roles    string
	)

	cmd := &cobra.Command{
		Use:   "devtoken",
		Short: "Sign an access token for local dashboard and websocket testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			cfg := config.Load()

			manager, err := jwt.LoadAndBuild(cfg.JWT)
			if err != nil {
				return fmt.Errorf("failed to load keys: %w", err)
			}

			token, jti, err := manager.Generator.GenerateAccessToken(identity, splitRoles(roles))
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "jti=%s ttl=%s\n", jti, cfg.JWT.TTL)
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().Int64Var(&identity, "identity", 1, "identity id placed in the token")
	cmd.Flags().StringVar(&roles, "roles", "owner", "comma separated roles")
	return cmd
}

func splitRoles(raw string) []string {
	var out []string
	for _, r := range strings.Split(raw, ",") {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	return out
}
