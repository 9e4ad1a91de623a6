package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/internal/format"
	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
)

func (c *CLI) commandCmd() *cobra.Command {
	var params []string

	cmd := &cobra.Command{
		Use:   "command <device-id> <command>",
		Short: "Send a command to a device",
		Long:  "Send a command to a device. Known commands: " + strings.Join(commandNames(), ", ") + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			id, err := parseDeviceID(args[0])
			if err != nil {
				return err
			}
			parsed, err := parseParams(params)
			if err != nil {
				return err
			}

			res, err := c.app.Service().SendCommand(cmd.Context(), iotrac.CommandRequest{
				DeviceID: id,
				Command:  iotrac.Command(args[1]),
				Params:   parsed,
			})
			if err != nil {
				return err
			}

			if res.Success {
				c.printer.Success("%s", res.Message)
			} else {
				c.printer.Warning("%s", res.Message)
			}
			return c.printer.Properties(res,
				[2]string{"Device", format.Int64(res.DeviceID)},
				[2]string{"Command", string(res.Command)},
				[2]string{"Protection", c.printer.Bool(res.ProtectionEnabled)},
				[2]string{"Time", formatTime(res.Timestamp)},
			)
		},
	}
	cmd.Flags().StringArrayVar(&params, "param", nil, "command parameter as key=value (repeatable)")
	return cmd
}

// parseParams turns key=value pairs into a params map. Numbers and
// booleans keep their JSON type.
func parseParams(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", kv)
		}
		switch {
		case value == "true" || value == "false":
			out[key] = value == "true"
		default:
			if n, err := strconv.ParseFloat(value, 64); err == nil {
				out[key] = n
			} else {
				out[key] = value
			}
		}
	}
	return out, nil
}

func commandNames() []string {
	names := make([]string, 0, len(iotrac.Commands))
	for _, c := range iotrac.Commands {
		names = append(names, string(c))
	}
	return names
}
