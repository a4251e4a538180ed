package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

func newCanonicalCommand() *cobra.Command {
	var delivery deliveryFlags

	cmd := &cobra.Command{
		Use:   "canonical --transmission-id <id> --transmission-time <time> --webhook-id <id> --body <file>",
		Short: "Print the string PayPal signs for a delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := delivery.readBody(cmd)
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			fmt.Fprintln(cmd.OutOrStdout(), paypal.CanonicalMessage(delivery.params(), body, delivery.webhookID))
			return nil
		},
	}
	delivery.register(cmd, false)

	return cmd
}
