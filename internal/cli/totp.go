package cli

import (
	"github.com/spf13/cobra"
)

func (c *CLI) totpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Enrol an authenticator app",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "setup",
		Short: "Start enrolment and print the provisioning URI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			setup, err := c.session().SetupTOTP(cmd.Context())
			if err != nil {
				return err
			}

			if err := c.printer.Properties(setup,
				[2]string{"Issuer", setup.Issuer},
				[2]string{"Account", setup.Account},
				[2]string{"Secret", setup.Secret},
				[2]string{"URI", setup.ProvisioningURI},
			); err != nil {
				return err
			}
			c.printer.Info("Add the URI or secret to your authenticator, then run `iotrac totp verify <code>`.")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "verify <code>",
		Short: "Finish enrolment with a code from the authenticator",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			res, err := c.session().VerifyTOTP(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			c.printer.Success("Authenticator enrolled for %s.", res.User.Email)
			return nil
		},
	})

	return cmd
}
