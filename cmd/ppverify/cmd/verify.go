package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitshopapp/paypal-webhooks/internal/observability"
	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

func newVerifyCommand() *cobra.Command {
	var (
		delivery deliveryFlags
		certURL  string
		certFile string
		origins  []string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "verify --transmission-id <id> --transmission-time <time> --transmission-sig <sig> --webhook-id <id> --body <file> (--cert-url <url> | --cert-file <pem>)",
		Short: "Verify the signature of a captured webhook delivery",
		Long: `The verify command recomputes the string PayPal signs for a delivery and checks
the transmission signature against the signing certificate. It prints "valid" or
"invalid". Any other failure is reported on stderr with exit status 2.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := delivery.readBody(cmd)
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			params := delivery.params()
			logger := commandLogger(cmd)

			var valid bool
			if certFile != "" {
				data, err := os.ReadFile(certFile)
				if err != nil {
					return &ExitError{Code: ExitFailure, Err: fmt.Errorf("failed to read certificate: %w", err)}
				}
				key, err := paypal.ParseCertificatePEM(data)
				if err != nil {
					return verificationFailure(err)
				}
				valid, err = paypal.VerifySignature(params, body, delivery.webhookID, key)
				if err != nil {
					return verificationFailure(err)
				}
			} else {
				verifier, err := paypal.New(paypal.Config{
					HTTPClient:     observability.NewHTTPClient(timeout),
					AllowedOrigins: origins,
					CacheSize:      1,
					Logger:         logger,
				})
				if err != nil {
					return &ExitError{Code: ExitFailure, Err: err}
				}
				valid, err = verifier.Verify(cmd.Context(), params, certURL, body, delivery.webhookID)
				if err != nil {
					return verificationFailure(err)
				}
			}

			if !valid {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return &ExitError{Code: ExitInvalid}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}

	delivery.register(cmd, true)
	flags := cmd.Flags()
	flags.StringVar(&certURL, "cert-url", "", "Value of the paypal-cert-url header")
	flags.StringVar(&certFile, "cert-file", "", "Path to a PEM certificate to verify against instead of fetching one")
	flags.StringSliceVar(&origins, "allow-origin", paypal.DefaultCertificateOrigins(), "Origins certificates may be fetched from")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "Certificate fetch timeout")
	cmd.MarkFlagsMutuallyExclusive("cert-url", "cert-file")
	cmd.MarkFlagsOneRequired("cert-url", "cert-file")

	return cmd
}

func verificationFailure(err error) error {
	if stage, ok := paypal.StageOf(err); ok {
		err = fmt.Errorf("%s: %w", stage, err)
	}
	return &ExitError{Code: ExitFailure, Err: err}
}
