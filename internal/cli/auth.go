package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/internal/format"
	"github.com/aussiebroadwan/iotrac/pkg/session"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

func (c *CLI) loginCmd() *cobra.Command {
	var password string

	cmd := &cobra.Command{
		Use:   "login <email>",
		Short: "Sign in with email and password",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			email := args[0]
			if password == "" {
				var err error
				if password, err = c.readSecret("Password: "); err != nil {
					return err
				}
			}

			res, err := c.session().Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			switch r := res.(type) {
			case session.LoginSecondFactor:
				if err := c.savePending(pendingChallenge{
					Email:     email,
					TempToken: r.TempToken,
					Channel:   r.Channel,
					CreatedAt: time.Now().UTC(),
				}); err != nil {
					return err
				}
				c.printer.Info("%s", r.Message)
				c.printer.Info("Run `iotrac verify-2fa <code>` to finish signing in.")
			case session.LoginAuthenticated:
				c.clearPending()
				c.signedIn(r)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	return cmd
}

func (c *CLI) signedIn(r session.LoginAuthenticated) {
	c.printer.Success("Signed in as %s (%s).", r.User.Email, r.User.Role)
	if r.NeedsTOTPSetup {
		c.printer.Info("An authenticator app is required. Run `iotrac totp setup`.")
	}
}

func (c *CLI) verify2FACmd() *cobra.Command {
	var temp string

	cmd := &cobra.Command{
		Use:   "verify-2fa <code>",
		Short: "Finish signing in with the emailed or authenticator code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.tempToken(temp)
			if err != nil {
				return err
			}

			res, err := c.session().Verify2FA(cmd.Context(), args[0], token)
			if err != nil {
				return err
			}
			c.clearPending()
			c.signedIn(res)
			return nil
		},
	}
	cmd.Flags().StringVar(&temp, "temp-token", "", "challenge token (defaults to the one saved by login)")
	return cmd
}

func (c *CLI) resend2FACmd() *cobra.Command {
	var temp string

	cmd := &cobra.Command{
		Use:   "resend-2fa",
		Short: "Send a new second-factor code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := c.tempToken(temp)
			if err != nil {
				return err
			}
			msg, err := c.session().Resend2FA(cmd.Context(), token)
			if err != nil {
				return err
			}
			c.printer.Success("%s", msg)
			return nil
		},
	}
	cmd.Flags().StringVar(&temp, "temp-token", "", "challenge token (defaults to the one saved by login)")
	return cmd
}

func (c *CLI) logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the saved credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c.clearPending()
			if err := c.session().Logout(cmd.Context()); err != nil {
				return err
			}
			c.printer.Success("Signed out.")
			return nil
		},
	}
}

func (c *CLI) whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			user, err := c.session().Me(cmd.Context())
			if err != nil {
				return err
			}
			return c.printUser(user)
		},
	}
}

func (c *CLI) printUser(u tokenstore.User) error {
	phone := u.Phone
	if phone == "" {
		phone = "-"
	}
	return c.printer.Properties(u,
		[2]string{"ID", format.Int64(u.ID)},
		[2]string{"Email", u.Email},
		[2]string{"Name", u.FullName},
		[2]string{"Role", string(u.Role)},
		[2]string{"Phone", phone},
		[2]string{"Email 2FA", c.printer.Bool(u.TwoFAEnabled)},
		[2]string{"Authenticator", c.printer.Bool(u.TOTPEnabled)},
	)
}

func (c *CLI) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Exchange the refresh token for a new token pair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			if !c.session().RefreshAuthToken(cmd.Context()) {
				return session.ErrNotSignedIn
			}
			c.printer.Success("Session refreshed.")
			return nil
		},
	}
}
