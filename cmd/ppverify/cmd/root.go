package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/gitshopapp/paypal-webhooks/internal/paypal"
)

// Process exit codes.
const (
	ExitValid   = 0
	ExitInvalid = 1
	ExitFailure = 2
)

// ExitError carries the exit code a command finished with. Err is nil when
// the outcome was already reported on stdout.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewRootCommand assembles ppverify and its subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "ppverify",
		Short: "Verify PayPal webhook transmission signatures",
		Long: `ppverify checks a captured PayPal webhook delivery against the transmission
headers PayPal sent with it. The signing certificate is fetched from PayPal or
read from a local PEM file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().BoolP("verbose", "v", false, "Log certificate fetches and verification steps to stderr")

	root.AddCommand(newVerifyCommand())
	root.AddCommand(newCanonicalCommand())
	return root
}

// deliveryFlags are the transmission headers and body shared by subcommands.
type deliveryFlags struct {
	transmissionID   string
	transmissionTime string
	transmissionSig  string
	authAlgo         string
	webhookID        string
	bodyPath         string
}

func (f *deliveryFlags) register(cmd *cobra.Command, withSignature bool) {
	flags := cmd.Flags()
	flags.StringVar(&f.transmissionID, "transmission-id", "", "Value of the paypal-transmission-id header (required)")
	flags.StringVar(&f.transmissionTime, "transmission-time", "", "Value of the paypal-transmission-time header (required)")
	flags.StringVar(&f.webhookID, "webhook-id", "", "Webhook id the delivery was sent to (required)")
	flags.StringVar(&f.bodyPath, "body", "", "Path to the raw request body, or - for stdin (required)")
	_ = cmd.MarkFlagRequired("transmission-id")
	_ = cmd.MarkFlagRequired("transmission-time")
	_ = cmd.MarkFlagRequired("webhook-id")
	_ = cmd.MarkFlagRequired("body")

	if withSignature {
		flags.StringVar(&f.transmissionSig, "transmission-sig", "", "Value of the paypal-transmission-sig header (required)")
		flags.StringVar(&f.authAlgo, "auth-algo", paypal.AuthAlgoSHA256WithRSA, "Value of the paypal-auth-algo header")
		_ = cmd.MarkFlagRequired("transmission-sig")
	}
}

func (f *deliveryFlags) params() paypal.WebhookParams {
	return paypal.WebhookParams{
		TransmissionID:   f.transmissionID,
		TransmissionTime: f.transmissionTime,
		TransmissionSig:  f.transmissionSig,
		AuthAlgo:         f.authAlgo,
	}
}

// readBody returns the exact bytes of the body file. The checksum covers
// these bytes, so nothing is trimmed.
func (f *deliveryFlags) readBody(cmd *cobra.Command) ([]byte, error) {
	if f.bodyPath == "-" {
		body, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read body from stdin: %w", err)
		}
		return body, nil
	}
	body, err := os.ReadFile(f.bodyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

func commandLogger(cmd *cobra.Command) *slog.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(tint.NewHandler(cmd.ErrOrStderr(), &tint.Options{Level: slog.LevelDebug}))
}
