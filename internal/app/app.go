package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/iotrac/pkg/apiclient"
	"github.com/aussiebroadwan/iotrac/pkg/assistant"
	"github.com/aussiebroadwan/iotrac/pkg/iotrac"
	"github.com/aussiebroadwan/iotrac/pkg/session"
	"github.com/aussiebroadwan/iotrac/pkg/slogx"
	"github.com/aussiebroadwan/iotrac/pkg/tokenstore"
)

// BuildVersion is overridden at build time with -ldflags.
var BuildVersion = "v0.1.0"

// Application owns the client's long-lived objects. Everything that needs
// the session gets it from here.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store     tokenstore.Store
	client    *apiclient.Client
	session   *session.Session
	service   *iotrac.Service
	assistant *assistant.Assistant
}

type Option func(*Application)

// WithLogger replaces the logger built from the config.
func WithLogger(l *slog.Logger) Option { return func(a *Application) { a.logger = l } }

// WithStore replaces the configured credential store.
func WithStore(s tokenstore.Store) Option { return func(a *Application) { a.store = s } }

// New wires the store, HTTP client, session and services, then restores any
// saved login.
func New(ctx context.Context, cfg Config, opts ...Option) (*Application, error) {
	a := &Application{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}

	if a.logger == nil {
		a.logger = slogx.New(slogx.Config{
			Service: "iotrac",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
			Output:  os.Stderr,
		})
	}

	if a.store == nil {
		store, err := openStore(cfg, a.logger)
		if err != nil {
			return nil, err
		}
		a.store = store
	}

	a.client = apiclient.New(cfg.APIURL,
		apiclient.WithTimeout(cfg.Timeout),
		apiclient.WithLogger(a.logger),
	)

	a.session = session.New(a.client, a.store,
		session.WithLogger(a.logger),
		session.WithResendLimit(cfg.ResendInterval, 1),
		session.WithRequireTOTP(cfg.RequireTOTP),
	)
	a.service = iotrac.NewService(a.client)
	a.assistant = assistant.New(a.client, assistant.WithLogger(a.logger))

	if err := a.session.LoadPersisted(ctx); err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	a.logger.Debug("application ready",
		"api_url", cfg.APIURL,
		"authenticated", a.session.Snapshot().IsAuthenticated,
	)
	return a, nil
}

func (a *Application) Config() Config                  { return a.cfg }
func (a *Application) Logger() *slog.Logger            { return a.logger }
func (a *Application) Client() *apiclient.Client       { return a.client }
func (a *Application) Session() *session.Session       { return a.session }
func (a *Application) Service() *iotrac.Service        { return a.service }
func (a *Application) Assistant() *assistant.Assistant { return a.assistant }
func (a *Application) Store() tokenstore.Store         { return a.store }

// Close releases the credential store.
func (a *Application) Close() error {
	if err := a.store.Close(); err != nil {
		a.logger.Error("error closing credential store", "error", err)
		return err
	}
	return nil
}
