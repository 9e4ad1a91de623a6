package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/internal/format"
	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
	"github.com/aussiebroadwan/iotrac/pkg/poller"
)

func parseDeviceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", iotrac.ErrInvalidDeviceID, s)
	}
	return id, nil
}

func formatTime(t iotrac.Timestamp) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}

func (c *CLI) deviceRows(devices []iotrac.Device) [][]string {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			format.Int64(d.ID),
			d.DeviceType.Label(),
			d.IPAddress,
			c.printer.Bool(d.ProtectionEnabled),
			formatTime(d.RegisteredAt),
		})
	}
	return rows
}

var deviceHeader = []string{"ID", "Type", "IP Address", "Protection", "Registered"}

func (c *CLI) devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device", "dev"},
		Short:   "Manage registered devices",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.setup(cmd, args); err != nil {
				return err
			}
			if err := c.requireSession(); err != nil {
				return errors.Join(err, c.closeApp())
			}
			return nil
		},
	}

	var watchList bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List registered devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if watchList {
				return c.watchDevices(cmd.Context())
			}
			devices, err := c.app.Service().Devices(cmd.Context())
			if err != nil {
				return err
			}
			return c.printDevices(devices)
		},
	}
	list.Flags().BoolVarP(&watchList, "watch", "w", false, "keep polling and reprint when the list changes")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Show one device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDeviceID(args[0])
			if err != nil {
				return err
			}
			d, err := c.app.Service().Device(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printer.Print(format.Tabular{Header: deviceHeader, Rows: c.deviceRows([]iotrac.Device{d}), Data: d})
		},
	})

	var (
		deviceType string
		ip         string
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Register a device",
		Long:  "Register a device. Known types: " + strings.Join(deviceTypeNames(), ", ") + ".",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.app.Service().RegisterDevice(cmd.Context(), iotrac.DeviceRegister{
				DeviceType: iotrac.DeviceType(deviceType),
				IPAddress:  ip,
			})
			if err != nil {
				return err
			}
			c.printer.Success("Registered %s at %s as device %d.", d.DeviceType.Label(), d.IPAddress, d.ID)
			return c.printer.Print(format.Tabular{Header: deviceHeader, Rows: c.deviceRows([]iotrac.Device{d}), Data: d})
		},
	}
	add.Flags().StringVar(&deviceType, "type", "", "device type")
	add.Flags().StringVar(&ip, "ip", "", "device IP address")
	_ = add.MarkFlagRequired("type")
	_ = add.MarkFlagRequired("ip")
	cmd.AddCommand(add)

	cmd.AddCommand(&cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a device",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDeviceID(args[0])
			if err != nil {
				return err
			}
			res, err := c.app.Service().DeleteDevice(cmd.Context(), id)
			if err != nil {
				return err
			}
			c.printer.Success("%s", res.Message)
			return nil
		},
	})

	var toggle bool
	protect := &cobra.Command{
		Use:   "protect <id>",
		Short: "Show or toggle a device's protection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseDeviceID(args[0])
			if err != nil {
				return err
			}

			if toggle {
				res, err := c.app.Service().ToggleDeviceProtection(cmd.Context(), id)
				if err != nil {
					return err
				}
				c.printer.Success("%s", res.Message)
				return c.printer.Properties(res,
					[2]string{"Device", format.Int64(res.DeviceID)},
					[2]string{"Protection", c.printer.Bool(res.ProtectionEnabled)},
				)
			}

			res, err := c.app.Service().DeviceProtection(cmd.Context(), id)
			if err != nil {
				return err
			}
			return c.printer.Properties(res,
				[2]string{"Device", format.Int64(res.DeviceID)},
				[2]string{"Protection", c.printer.Bool(res.ProtectionEnabled)},
				[2]string{"Checked", formatTime(res.Timestamp)},
			)
		},
	}
	protect.Flags().BoolVar(&toggle, "toggle", false, "flip the device's protection")
	cmd.AddCommand(protect)

	return cmd
}

func (c *CLI) printDevices(devices []iotrac.Device) error {
	return c.printer.Print(format.Tabular{Header: deviceHeader, Rows: c.deviceRows(devices), Data: devices})
}

// watchDevices reprints the device list whenever it changes.
func (c *CLI) watchDevices(ctx context.Context) error {
	return watch(ctx, c, watchSpec[[]iotrac.Device]{
		name:        "devices",
		interval:    c.app.Config().Poll.Devices,
		fallback:    poller.DevicesInterval,
		needSession: true,
		fetch:       c.app.Service().Devices,
		render: func(devices []iotrac.Device) (bool, error) {
			return true, c.printDevices(devices)
		},
	})
}

func deviceTypeNames() []string {
	names := make([]string, 0, len(iotrac.DeviceTypes))
	for _, t := range iotrac.DeviceTypes {
		names = append(names, string(t))
	}
	return names
}
