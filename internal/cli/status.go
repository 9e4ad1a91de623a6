package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
	"github.com/aussiebroadwan/iotrac/pkg/poller"
)

type statusReport struct {
	pairs [][2]string
	data  map[string]any
}

func (c *CLI) statusReport(ctx context.Context, signedIn bool) (statusReport, error) {
	snap := c.session().Snapshot()

	root, err := c.app.Service().Root(ctx)
	if err != nil {
		return statusReport{}, err
	}

	account := "not signed in"
	if snap.IsAuthenticated && snap.User != nil {
		account = snap.User.Email
	}
	r := statusReport{
		pairs: [][2]string{
			{"Backend", c.app.Config().APIURL},
			{"Service", root.Message},
			{"Version", root.Version},
			{"Account", account},
			{"Session", snap.State.String()},
		},
		data: map[string]any{"backend": root, "session": snap.State.String(), "account": account},
	}

	if signedIn {
		prot, err := c.app.Service().ProtectionStatus(ctx)
		if err != nil {
			return statusReport{}, err
		}
		r.pairs = append(r.pairs, [2]string{"Protection", c.printer.Bool(prot.ProtectionEnabled)})
		r.data["protection"] = prot.ProtectionEnabled
	}
	return r, nil
}

func (c *CLI) statusCmd() *cobra.Command {
	var watchStatus bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show backend reachability, session and protection state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			signedIn := c.session().Snapshot().IsAuthenticated

			if watchStatus {
				return watch(cmd.Context(), c, watchSpec[statusReport]{
					name:        "connection",
					interval:    c.app.Config().Poll.Connection,
					fallback:    poller.ConnectionInterval,
					needSession: signedIn,
					fetch: func(ctx context.Context) (statusReport, error) {
						return c.statusReport(ctx, signedIn)
					},
					render: func(r statusReport) (bool, error) {
						return true, c.printer.Properties(r.data, r.pairs...)
					},
				})
			}

			r, err := c.statusReport(cmd.Context(), signedIn)
			if err != nil {
				return err
			}
			return c.printer.Properties(r.data, r.pairs...)
		},
	}
	cmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "keep checking the backend until interrupted")
	return cmd
}

func (c *CLI) printProtection(res iotrac.ProtectionStatus) error {
	return c.printer.Properties(res,
		[2]string{"Protection", c.printer.Bool(res.ProtectionEnabled)},
		[2]string{"Checked", formatTime(res.Timestamp)},
	)
}

func (c *CLI) protectionCmd() *cobra.Command {
	var watchProtection bool

	cmd := &cobra.Command{
		Use:   "protection",
		Short: "Show or toggle global protection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}

			if watchProtection {
				// Compare on the flag alone; the timestamp moves on every check.
				var last *bool
				return watch(cmd.Context(), c, watchSpec[iotrac.ProtectionStatus]{
					name:        "protection",
					interval:    c.app.Config().Poll.Protection,
					fallback:    poller.ProtectionInterval,
					needSession: true,
					fetch:       c.app.Service().ProtectionStatus,
					render: func(res iotrac.ProtectionStatus) (bool, error) {
						if last != nil && *last == res.ProtectionEnabled {
							return false, nil
						}
						enabled := res.ProtectionEnabled
						last = &enabled
						return true, c.printProtection(res)
					},
				})
			}

			res, err := c.app.Service().ProtectionStatus(cmd.Context())
			if err != nil {
				return err
			}
			return c.printProtection(res)
		},
	}
	cmd.Flags().BoolVarP(&watchProtection, "watch", "w", false, "keep polling and print when protection changes")

	cmd.AddCommand(&cobra.Command{
		Use:   "toggle",
		Short: "Flip global protection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			res, err := c.app.Service().ToggleProtection(cmd.Context())
			if err != nil {
				return err
			}
			c.printer.Success("%s", res.Message)
			return c.printer.Properties(res, [2]string{"Protection", c.printer.Bool(res.ProtectionEnabled)})
		},
	})
	return cmd
}
