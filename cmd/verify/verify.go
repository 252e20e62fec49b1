package verify

import (
	"fmt"

	"github.com/passgate/passgate/api"
	"github.com/spf13/cobra"
)

var (
	flagToken    string
	flagOwnerID  string
	flagRedirect string

	VerifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Check a token against a running passgate server",
		RunE:  run,
	}
)

func init() {
	VerifyCmd.Flags().StringVar(&flagToken, "token", "", "Token to verify")
	VerifyCmd.Flags().StringVar(&flagOwnerID, "owner-id", "", "Owner partition holding the token")
	VerifyCmd.Flags().StringVar(&flagRedirect, "redirect", "", "Requested redirect destination (optional)")
}

func run(cmd *cobra.Command, args []string) error {
	client, err := api.NewClient(nil)
	if err != nil {
		return err
	}

	result, err := client.Verify(cmd.Context(), &api.VerifyRequest{
		Token:       flagToken,
		OwnerID:     flagOwnerID,
		RedirectURL: flagRedirect,
	})
	if err != nil {
		return err
	}

	if !result.Success {
		return fmt.Errorf("token rejected: %s (%s)", result.ErrorCode, result.Message)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Token verified\n")
	fmt.Fprintf(cmd.OutOrStdout(), "  owner:             %s\n", result.OwnerID)
	fmt.Fprintf(cmd.OutOrStdout(), "  target:            %s\n", result.TargetURL)
	fmt.Fprintf(cmd.OutOrStdout(), "  remaining minutes: %d\n", result.RemainingMinutes)
	return nil
}
