package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/internal/format"
)

func (c *CLI) askCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask the security assistant",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reply, err := c.app.Assistant().Ask(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if c.printer.Format() != format.Table {
				return c.printer.Properties(reply)
			}
			_, err = c.stdout.Write([]byte(reply.Text + "\n"))
			return err
		},
	}
}
