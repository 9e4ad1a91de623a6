package cli

import (
	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/pkg/session"
)

func (c *CLI) registerCmd() *cobra.Command {
	var in session.RegisterInput

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		Long: `Create an account. The backend emails a verification code; confirm it
with ` + "`iotrac verify-email`" + ` before signing in.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if in.Password == "" {
				if in.Password, err = c.readSecret("Password: "); err != nil {
					return err
				}
				if in.ConfirmPassword, err = c.readSecret("Confirm password: "); err != nil {
					return err
				}
			}

			msg, err := c.session().Register(cmd.Context(), in)
			if err != nil {
				return err
			}
			c.printer.Success("%s", msg)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Email, "email", "", "email address")
	f.StringVar(&in.FullName, "full-name", "", "full name")
	f.StringVar(&in.Phone, "phone", "", "phone number")
	f.StringVarP(&in.Password, "password", "p", "", "password (prompted when omitted)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("full-name")
	return cmd
}

func (c *CLI) verifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-email <email> <code>",
		Short: "Confirm an email address with the code from registration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := c.session().VerifyEmail(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			c.printer.Success("%s", msg)
			return nil
		},
	}
}

func (c *CLI) resendVerifyEmailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resend-verify-email <email>",
		Short: "Send a new email verification code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := c.session().ResendVerifyEmail(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c.printer.Success("%s", msg)
			return nil
		},
	}
}
