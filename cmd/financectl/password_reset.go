package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/straye-as/finance-dashboard/internal/workflow"
)

func newPasswordResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password-reset",
		Short: "Reset a forgotten password with a one-time code sent by email",
		Long: `Resetting a password takes three steps: request a code, verify it, then set the new
password with the same code. Each step is a separate invocation; nothing is kept
between them, so pass the same --email every time.`,
	}

	var email string
	cmd.PersistentFlags().StringVar(&email, "email", "", "email address of the account")
	_ = cmd.MarkPersistentFlagRequired("email")

	request := &cobra.Command{
		Use:   "request",
		Short: "Send a reset code to the account's email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			addr := normalizeEmail(email)
			if err := e.client.RequestPasswordReset(ctx, addr); err != nil {
				return err
			}
			return e.out.message("A reset code was sent to %s", addr)
		},
	}

	var code string
	verify := &cobra.Command{
		Use:   "verify",
		Short: "Check a reset code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			otp, err := workflow.ValidateOTPCode(code)
			if err != nil {
				return err
			}
			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := e.client.VerifyPasswordResetCode(ctx, normalizeEmail(email), otp); err != nil {
				return err
			}
			return e.out.message("Code verified. Run password-reset complete with the same code to set a new password.")
		},
	}
	verify.Flags().StringVar(&code, "code", "", "the 6-digit code from the email")

	var password, confirmation string
	complete := &cobra.Command{
		Use:   "complete",
		Short: "Set the new password",
		Example: `  FINANCECTL_NEW_PASSWORD='s3cret-pass' financectl password-reset complete \
    --email kari@example.com --code 123456`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv("FINANCECTL_NEW_PASSWORD")
			}
			if confirmation == "" {
				confirmation = password
			}
			otp, err := workflow.ValidateOTPCode(code)
			if err != nil {
				return err
			}
			if err := workflow.ValidateNewPassword(password, confirmation); err != nil {
				return err
			}
			e, err := newEnv(cmd, false)
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()

			if err := e.client.ResetPassword(ctx, normalizeEmail(email), otp, password, confirmation); err != nil {
				return err
			}
			return e.out.message("Password changed. You can now sign in with the new password.")
		},
	}
	complete.Flags().StringVar(&code, "code", "", "the verified 6-digit code")
	complete.Flags().StringVar(&password, "password", "", "new password, or set FINANCECTL_NEW_PASSWORD")
	complete.Flags().StringVar(&confirmation, "confirm", "", "repeat of the new password; defaults to --password")

	cmd.AddCommand(request, verify, complete)
	return cmd
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
