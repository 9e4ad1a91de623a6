// Package cli implements the iotrac command line.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/iotrac/internal/app"
	"github.com/aussiebroadwan/iotrac/internal/format"
	"github.com/aussiebroadwan/iotrac/pkg/session"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
)

// ErrNotSignedIn is returned by commands that need a session.
var ErrNotSignedIn = errors.New("not signed in, run `iotrac login` first")

type CLI struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	lines  *bufio.Reader

	cfgFile string
	apiURL  string
	output  string
	debug   bool
	noColor bool

	app     *app.Application
	printer *format.Printer
}

type Option func(*CLI)

// WithIO replaces the process's standard streams.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(c *CLI) {
		c.stdin, c.stdout, c.stderr = in, out, errOut
	}
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	c := &CLI{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	for _, opt := range opts {
		opt(c)
	}

	root := &cobra.Command{
		Use:   "iotrac",
		Short: "IOTRAC command-line client",
		Long: `iotrac signs in to an IOTRAC backend and manages the IoT devices it
protects: registration, protection toggles, commands and activity logs.`,
		Version:           app.BuildVersion,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
	}
	root.SetIn(c.stdin)
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default is $HOME/.iotrac.yaml)")
	flags.StringVar(&c.apiURL, "api-url", "", "backend base URL (overrides config)")
	flags.StringVarP(&c.output, "output", "o", "", "output format (table, json, yaml)")
	flags.BoolVar(&c.debug, "debug", false, "enable debug logging")
	flags.BoolVar(&c.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		c.loginCmd(),
		c.verify2FACmd(),
		c.resend2FACmd(),
		c.totpCmd(),
		c.registerCmd(),
		c.verifyEmailCmd(),
		c.resendVerifyEmailCmd(),
		c.logoutCmd(),
		c.whoamiCmd(),
		c.refreshCmd(),
		c.statusCmd(),
		c.protectionCmd(),
		c.devicesCmd(),
		c.logsCmd(),
		c.commandCmd(),
		c.askCmd(),
	)
	c.closeAfterRun(root)
	return root
}

// closeAfterRun wraps every RunE so the application is closed whether or
// not the command fails. Cobra skips post-run hooks after an error.
func (c *CLI) closeAfterRun(cmd *cobra.Command) {
	if run := cmd.RunE; run != nil {
		cmd.RunE = func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args)
			return errors.Join(err, c.closeApp())
		}
	}
	for _, sub := range cmd.Commands() {
		c.closeAfterRun(sub)
	}
}

func (c *CLI) closeApp() error {
	if c.app == nil {
		return nil
	}
	err := c.app.Close()
	c.app = nil
	return err
}

// Execute runs the CLI against the process's arguments and streams.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	cfg, err := app.LoadConfig(c.cfgFile)
	if err != nil {
		return err
	}
	if c.apiURL != "" {
		cfg.APIURL = c.apiURL
	}
	if c.output != "" {
		cfg.Output = c.output
	}
	if c.debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.printer, err = format.NewPrinter(c.stdout, c.stderr, cfg.Output, !c.noColor && isTerminal(c.stdout))
	if err != nil {
		return err
	}

	logger := slogx.New(slogx.Config{
		Service: "iotrac",
		Version: app.BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		Output:  c.stderr,
	})

	c.app, err = app.New(cmd.Context(), cfg, app.WithLogger(logger))
	return err
}

func (c *CLI) session() *session.Session { return c.app.Session() }

// requireSession fails unless a saved login was restored.
func (c *CLI) requireSession() error {
	if !c.session().Snapshot().IsAuthenticated {
		return ErrNotSignedIn
	}
	return nil
}

// Describe turns an error into the line shown to the user.
func Describe(err error) string {
	var f *session.Failure
	if errors.As(err, &f) {
		if f.Kind == session.FailLocal && len(f.Fields) > 1 {
			msg := f.Message
			for field, m := range f.Fields {
				if m != f.Message {
					msg += fmt.Sprintf("; %s: %s", field, m)
				}
			}
			return msg
		}
		return f.Message
	}
	return err.Error()
}
