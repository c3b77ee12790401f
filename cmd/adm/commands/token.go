package commands

import (
	"fmt"
	"strconv"
	"time"

	"examprep/internal/config"
	"examprep/internal/middleware"
	"examprep/internal/observability"
	contextutils "examprep/internal/utils"

	"github.com/spf13/cobra"
)

// TokenCommands returns the bearer token commands
func TokenCommands(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "Bearer token commands",
	}
	tokenCmd.AddCommand(mintCmd(cfg, logger))
	return tokenCmd
}

func mintCmd(cfg *config.Config, logger *observability.Logger) *cobra.Command {
	var (
		username string
		lifetime time.Duration
	)

	cmd := &cobra.Command{
		Use:   "mint <user-id>",
		Short: "Mint a signed bearer token for a user id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.Atoi(args[0])
			if err != nil || userID <= 0 {
				return contextutils.NewErrorf(contextutils.ErrInvalidInput, "invalid user id %q", args[0])
			}
			token, err := middleware.MintToken(cfg.Server.JWTSecret, userID, username, lifetime)
			if err != nil {
				return err
			}
			logger.Info(cmd.Context(), "Minted bearer token", map[string]interface{}{
				"user_id":  userID,
				"lifetime": lifetime.String(),
			})
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username claim to embed")
	cmd.Flags().DurationVar(&lifetime, "lifetime", config.TokenLifetime, "token lifetime")

	return cmd
}
