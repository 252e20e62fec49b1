package revoke

import (
	"fmt"

	"github.com/passgate/passgate/api"
	"github.com/spf13/cobra"
)

var (
	flagToken      string
	flagOwnerID    string
	flagCredential string

	RevokeCmd = &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a token before its expiration",
		RunE:  run,
	}
)

func init() {
	RevokeCmd.Flags().StringVar(&flagToken, "token", "", "Token to revoke")
	RevokeCmd.Flags().StringVar(&flagOwnerID, "owner-id", "", "Owner partition holding the token")
	RevokeCmd.Flags().StringVar(&flagCredential, "credential", "", "Bearer credential (or PASSGATE_CREDENTIAL)")
}

func run(cmd *cobra.Command, args []string) error {
	client, err := api.NewClient(nil)
	if err != nil {
		return err
	}
	if flagCredential != "" {
		client.SetCredential(flagCredential)
	}

	result, err := client.Revoke(cmd.Context(), &api.RevokeRequest{
		Token:   flagToken,
		OwnerID: flagOwnerID,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token revoked at %s\n", result.RevokedAt)
	return nil
}
