// Package flow implements the top-level controller of the account-recovery
// ceremony: a finite state machine that owns the session context, selects the
// active flow variant and sequences form validation, the password policy, the
// step-up MFA gate, the authenticator ceremony and the network boundary.
//
// The controller runs on a single logical thread. Every derived value is a
// pure function of the current state; there is no implicit recomputation.
package flow

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/openclave/reclaim/internal/recovery/ceremony"
	"github.com/openclave/reclaim/internal/recovery/mfa"
	"github.com/openclave/reclaim/pkg/idx"
	"github.com/openclave/reclaim/pkg/policyx"
	"github.com/openclave/reclaim/pkg/recoverysdk"
	"github.com/openclave/reclaim/pkg/slogx"
)

// State is the controller's position in the flow.
type State string

const (
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateSubmitting   State = "submitting"
	StateAwaitingMFA  State = "awaiting_mfa_assertion"
	StateFinalizing   State = "finalizing"
	StateSuccess      State = "success"
	StateFailed       State = "failed"
)

// Variant selects which of the three flows is active.
type Variant string

const (
	VariantNewAccountPasskey  Variant = "new_account_passkey"
	VariantNewAccountPassword Variant = "new_account_password"
	VariantPasswordReset      Variant = "password_reset"
)

// AccountType is the user's credential choice for a new account.
type AccountType string

const (
	AccountTypePasskey  AccountType = "passkey"
	AccountTypePassword AccountType = "password"
)

const (
	// RedirectDelay is the fixed pause between reaching Success and the
	// navigation away from the flow.
	RedirectDelay = 5 * time.Second

	// DefaultLandingURI is the navigation target when neither the server
	// nor the magic link supplied one.
	DefaultLandingURI = "/auth/v1/account"
)

// ParseVariant maps a magic-link usage string (e.g. "new_user",
// "password_reset$/app") onto the initial flow variant and the optional
// redirect target embedded after the '$' separator. Unknown usages fall back
// to the password-reset flow.
func ParseVariant(usage string) (Variant, string) {
	kind, redirect, _ := strings.Cut(usage, "$")

	switch kind {
	case "new_user", "new_account":
		// New accounts start on the passkey choice; the user may switch.
		return VariantNewAccountPasskey, redirect
	default:
		return VariantPasswordReset, redirect
	}
}

// Config is the one-shot immutable snapshot a controller is constructed
// from. There is no live reload; the controller owns its configuration for
// its whole lifetime.
type Config struct {
	Session       *recoverysdk.Session
	Authenticator ceremony.Authenticator
	Policy        policyx.Policy
	Variant       Variant

	// MFAEnabled gates the password reset behind a step-up assertion.
	MFAEnabled bool

	// FallbackRedirect overrides DefaultLandingURI when the server response
	// carries no Location header (e.g. a redirect embedded in the link).
	FallbackRedirect string

	// Navigate is invoked with the redirect target RedirectDelay after
	// Success. Optional.
	Navigate func(uri string)

	Logger *slog.Logger
}

// Controller drives one recovery flow instance. It is not safe for
// concurrent use; all calls must come from the same goroutine, matching the
// single-threaded interaction model it serves.
type Controller struct {
	id      idx.ID
	session *recoverysdk.Session
	auth    ceremony.Authenticator
	gate    *mfa.Gate
	policy  policyx.Policy
	logger  *slog.Logger

	variant  Variant
	started  Variant // variant the flow was configured with
	fallback string
	navigate func(uri string)
	schedule func(d time.Duration, f func())

	state       State
	form        FormState
	loading     bool
	lastErr     *Error
	fatal       bool
	redirectURI string
}

// New builds a controller from the initial configuration snapshot and moves
// it to Ready.
func New(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Controller{
		id:      idx.New(),
		session: cfg.Session,
		auth:    cfg.Authenticator,
		policy:  cfg.Policy,
		logger:  logger,
		variant: cfg.Variant,
		started: cfg.Variant,
		gate: &mfa.Gate{
			Session:       cfg.Session,
			Authenticator: cfg.Authenticator,
			Enabled:       cfg.MFAEnabled,
		},
		fallback: cfg.FallbackRedirect,
		navigate: cfg.Navigate,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		state:    StateInitializing,
	}

	c.state = StateReady
	return c
}

// FlowID identifies this flow instance in logs.
func (c *Controller) FlowID() idx.ID { return c.id }

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// Variant returns the currently active flow variant.
func (c *Controller) Variant() Variant { return c.variant }

// Form returns a copy of the current form state.
func (c *Controller) Form() FormState { return c.form }

// Loading reports whether a submission span is in flight. The submit control
// stays disabled while it is.
func (c *Controller) Loading() bool { return c.loading }

// LastError returns the error of the most recent attempt, or nil. It is
// replaced on every new attempt.
func (c *Controller) LastError() *Error { return c.lastErr }

// CanSubmit reports whether a new submission attempt may start.
func (c *Controller) CanSubmit() bool {
	return !c.loading && !c.fatal && (c.state == StateReady || c.state == StateFailed)
}

// RedirectTarget returns the post-success navigation target. Only meaningful
// in Success.
func (c *Controller) RedirectTarget() string {
	if c.redirectURI != "" {
		return c.redirectURI
	}
	if c.fallback != "" {
		return c.fallback
	}
	return DefaultLandingURI
}

// SetAccountType switches the credential choice for a new-account flow and
// unconditionally resets the form state. It is a no-op for flows that did
// not start as new-account, and while a submission is in flight.
func (c *Controller) SetAccountType(choice AccountType) {
	if c.loading || c.started == VariantPasswordReset {
		return
	}
	if c.state != StateReady && c.state != StateFailed {
		return
	}

	switch choice {
	case AccountTypePasskey:
		c.variant = VariantNewAccountPasskey
	case AccountTypePassword:
		c.variant = VariantNewAccountPassword
	default:
		return
	}

	c.form = FormState{}
	c.lastErr = nil
}

// SetPasskeyName updates the passkey label field.
func (c *Controller) SetPasskeyName(name string) {
	if c.editable() {
		c.form.PasskeyName = name
	}
}

// SetPassword updates the password field.
func (c *Controller) SetPassword(password string) {
	if c.editable() {
		c.form.Password = password
	}
}

// SetPasswordConfirm updates the confirmation field.
func (c *Controller) SetPasswordConfirm(password string) {
	if c.editable() {
		c.form.PasswordConfirm = password
	}
}

// SuggestPassword fills both password fields with a fresh policy-conforming
// random password and returns it for display.
func (c *Controller) SuggestPassword() (string, error) {
	if !c.editable() {
		return "", nil
	}
	password, err := policyx.Generate(c.policy)
	if err != nil {
		return "", err
	}
	c.form.Password = password
	c.form.PasswordConfirm = password
	return password, nil
}

func (c *Controller) editable() bool {
	return !c.loading && c.state != StateSuccess
}

// Submit runs one submission attempt to completion. Schema validation is
// synchronous; on failure the controller stays in Ready and nothing reaches
// the network. All other failures land in Failed with the classified error
// retained for display. Success clears the form and schedules the redirect.
//
// Submit refuses re-entrant calls for the whole Submitting..Finalizing span.
func (c *Controller) Submit(ctx context.Context) *Error {
	if !c.CanSubmit() {
		return c.lastErr
	}

	ctx = slogx.WithFlowID(slogx.WithContext(ctx, c.logger), c.id.String())
	c.lastErr = nil

	if fields := validateSchema(c.form, c.variant); fields != nil {
		c.state = StateReady
		c.lastErr = &Error{
			Class:   ClassValidation,
			Message: "please correct the highlighted fields",
			Fields:  fields,
		}
		return c.lastErr
	}

	c.loading = true
	// The loading indicator is cleared on every exit path.
	defer func() { c.loading = false }()

	c.state = StateSubmitting

	var err error
	if c.variant == VariantNewAccountPasskey {
		err = c.submitPasskey(ctx)
	} else {
		err = c.submitPassword(ctx)
	}

	if err != nil {
		c.lastErr = classify(err)
		c.fatal = c.lastErr.Fatal()
		c.state = StateFailed
		c.logger.Warn("submission attempt failed",
			"flow_id", c.id.String(),
			"class", string(c.lastErr.Class),
			"fatal", c.fatal,
		)
		return c.lastErr
	}

	// Form state never survives a successful terminal transition.
	c.form = FormState{}
	c.state = StateSuccess
	c.scheduleRedirect()

	c.logger.Info("recovery flow completed",
		"flow_id", c.id.String(),
		"variant", string(c.variant),
		"redirect", c.RedirectTarget(),
	)
	return nil
}

// submitPasskey runs the enrollment leg: fresh envelope, creation ceremony,
// finish call. Each envelope is consumed at most once.
func (c *Controller) submitPasskey(ctx context.Context) error {
	challenge, err := c.session.StartRegistration(ctx, c.form.PasskeyName)
	if err != nil {
		return err
	}

	response, err := ceremony.RunCreate(ctx, c.auth, challenge)
	if err != nil {
		return err
	}

	c.state = StateFinalizing
	return c.session.FinishRegistration(ctx, c.form.PasskeyName, response)
}

// submitPassword runs the password-set/reset leg, passing the step-up MFA
// gate first when it is active. The gated reset is never attempted before
// the assertion sub-flow has completed.
func (c *Controller) submitPassword(ctx context.Context) error {
	if err := checkPassword(c.form, c.policy); err != nil {
		return err
	}

	if c.gate.Enabled {
		c.state = StateAwaitingMFA
	}
	mfaCode, _, err := c.gate.Require(ctx, mfa.PurposePasswordReset)
	if err != nil {
		return err
	}

	c.state = StateFinalizing
	redirect, err := c.session.ResetPassword(ctx, c.form.Password, mfaCode)
	if err != nil {
		return err
	}

	c.redirectURI = redirect
	return nil
}

func (c *Controller) scheduleRedirect() {
	if c.navigate == nil {
		return
	}
	target := c.RedirectTarget()
	c.schedule(RedirectDelay, func() { c.navigate(target) })
}
