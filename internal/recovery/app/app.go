// Package app wires the recovery flow from a configuration snapshot: SDK
// client, software authenticator, policy and flow controller.
package app

import (
	"fmt"
	"log/slog"

	"github.com/openclave/reclaim/internal/recovery/flow"
	"github.com/openclave/reclaim/pkg/recoverysdk"
	"github.com/openclave/reclaim/pkg/slogx"
	"github.com/openclave/reclaim/pkg/softtoken"
)

// BuildVersion should be set at build time via ldflags. Later problem
const BuildVersion = "v0.1.0"

// Application holds one wired recovery flow and its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	client *recoverysdk.Client
	vault  *softtoken.Vault

	controller *flow.Controller
}

// New builds the application. Navigate, when non-nil, receives the redirect
// target after a successful flow.
func New(cfg Config, navigate func(uri string)) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "reclaim",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	client := recoverysdk.NewClient(cfg.ServerURL)
	session := client.NewSession(cfg.IdentityID, cfg.MagicLinkID, cfg.CSRFToken)

	vault, err := softtoken.OpenVault(cfg.VaultFile)
	if err != nil {
		return nil, fmt.Errorf("open credential vault: %w", err)
	}

	token, err := softtoken.New(softtoken.Config{
		Origin:       cfg.Origin,
		MasterSecret: cfg.MasterSecret,
		Vault:        vault,
	})
	if err != nil {
		_ = vault.Close()
		return nil, fmt.Errorf("init authenticator: %w", err)
	}

	variant, linkRedirect := flow.ParseVariant(cfg.LinkUsage)

	controller := flow.New(flow.Config{
		Session:          session,
		Authenticator:    token,
		Policy:           cfg.Policy.Policy(),
		Variant:          variant,
		MFAEnabled:       cfg.MFAEnabled,
		FallbackRedirect: linkRedirect,
		Navigate:         navigate,
		Logger:           logger,
	})

	logger.Info("recovery flow initialized",
		"flow_id", controller.FlowID().String(),
		"variant", string(variant),
		"mfa", cfg.MFAEnabled,
	)

	return &Application{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		vault:      vault,
		controller: controller,
	}, nil
}

// Controller returns the wired flow controller.
func (a *Application) Controller() *flow.Controller { return a.controller }

// Client returns the underlying SDK client, e.g. for the event stream.
func (a *Application) Client() *recoverysdk.Client { return a.client }

// Logger returns the application logger.
func (a *Application) Logger() *slog.Logger { return a.logger }

// Close releases the credential vault.
func (a *Application) Close() error {
	return a.vault.Close()
}
