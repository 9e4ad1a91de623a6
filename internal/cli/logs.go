package cli

import (
	"cmp"
	"context"
	"slices"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/internal/format"
	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
	"github.com/aussiebroadwan/iotrac/pkg/poller"
)

type logsOptions struct {
	limit  int
	filter string
	status string
	watch  bool
}

func (c *CLI) logsCmd() *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show device activity logs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.requireSession(); err != nil {
				return err
			}
			if opts.watch {
				return c.watchLogs(cmd.Context(), opts)
			}

			logs, err := c.app.Service().Logs(cmd.Context(), opts.limit)
			if err != nil {
				return err
			}
			return c.printLogs(iotrac.FilterLogs(logs, opts.filter, opts.status))
		},
	}

	f := cmd.Flags()
	f.IntVarP(&opts.limit, "limit", "n", iotrac.DefaultLogLimit, "number of entries to fetch")
	f.StringVar(&opts.filter, "filter", "", "only entries whose command, type or IP contains this text")
	f.StringVar(&opts.status, "status", "", "only entries with this status (success, blocked, error, warning, info)")
	f.BoolVarP(&opts.watch, "watch", "w", false, "keep polling and print new entries")
	return cmd
}

func (c *CLI) printLogs(logs []iotrac.LogEntry) error {
	rows := make([][]string, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []string{
			format.Int64(l.ID),
			formatTime(l.Timestamp),
			format.Int64(l.DeviceID),
			l.DeviceType.Label(),
			l.IPAddress,
			l.Command,
			c.printer.Status(l.Status),
		})
	}
	return c.printer.Print(format.Tabular{
		Header: []string{"ID", "Time", "Device", "Type", "IP Address", "Command", "Status"},
		Rows:   rows,
		Data:   logs,
	})
}

// watchLogs prints the current page, then only entries newer than the
// newest one already shown, until interrupted.
func (c *CLI) watchLogs(ctx context.Context, opts logsOptions) error {
	var lastID int64
	return watch(ctx, c, watchSpec[[]iotrac.LogEntry]{
		name:        "logs",
		interval:    c.app.Config().Poll.Logs,
		fallback:    poller.LogsInterval,
		needSession: true,
		fetch: func(ctx context.Context) ([]iotrac.LogEntry, error) {
			return c.app.Service().Logs(ctx, opts.limit)
		},
		render: func(logs []iotrac.LogEntry) (bool, error) {
			fresh := newerThan(iotrac.FilterLogs(logs, opts.filter, opts.status), lastID)
			if len(fresh) == 0 {
				return false, nil
			}
			lastID = fresh[0].ID
			return true, c.printLogs(fresh)
		},
	})
}

// newerThan keeps entries with an ID above last, newest first.
func newerThan(logs []iotrac.LogEntry, last int64) []iotrac.LogEntry {
	out := make([]iotrac.LogEntry, 0, len(logs))
	for _, l := range logs {
		if l.ID > last {
			out = append(out, l)
		}
	}
	slices.SortFunc(out, func(a, b iotrac.LogEntry) int { return cmp.Compare(b.ID, a.ID) })
	return out
}
