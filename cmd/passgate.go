package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/passgate/passgate/cmd/revoke"
	"github.com/passgate/passgate/cmd/server"
	"github.com/passgate/passgate/cmd/verify"
	"github.com/spf13/cobra"
)

var passgateCmd = &cobra.Command{
	Use:   "passgate",
	Short: "Passgate is a verification and revocation gate for short-lived access tokens",
	Long: `Passgate sits between token issuance and the destinations tokens unlock.
It verifies capability tokens minted by an external issuer, resolves the
redirect destination against an origin allow-list, and lets operators revoke
tokens before they expire.`,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := passgateCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	passgateCmd.AddCommand(server.ServerCmd)
	passgateCmd.AddCommand(verify.VerifyCmd)
	passgateCmd.AddCommand(revoke.RevokeCmd)
}
