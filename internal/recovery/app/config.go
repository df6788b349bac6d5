package app

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/openclave/reclaim/pkg/policyx"
)

// Config is the process configuration, loaded once at startup from the
// environment. The magic-link fields arrive out of band (the link the user
// clicked) and scope everything the process may do.
type Config struct {
	ServerURL string `env:"RECLAIM_SERVER_URL" envDefault:"http://localhost:8080"`

	// Origin is the web origin the software authenticator acts for. It must
	// match the relying party id the server issues challenges under.
	Origin string `env:"RECLAIM_ORIGIN" envDefault:"http://localhost:8080"`

	IdentityID  string `env:"RECLAIM_IDENTITY_ID"`
	MagicLinkID string `env:"RECLAIM_MAGIC_LINK_ID"`
	CSRFToken   string `env:"RECLAIM_CSRF_TOKEN"`

	// LinkUsage is the magic link's usage string, e.g. "new_user" or
	// "password_reset$/app". It selects the flow variant.
	LinkUsage string `env:"RECLAIM_LINK_USAGE" envDefault:"password_reset"`

	MFAEnabled bool `env:"RECLAIM_MFA_ENABLED" envDefault:"false"`

	VaultFile    string `env:"RECLAIM_VAULT_FILE" envDefault:"reclaim.db"`
	MasterSecret string `env:"RECLAIM_MASTER_SECRET"`

	Policy PolicyConfig `envPrefix:"RECLAIM_POLICY_"`

	Env       string `env:"ENV" envDefault:"dev"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
}

// PolicyConfig mirrors the server's password policy. A zero count disables
// the corresponding requirement.
type PolicyConfig struct {
	LengthMin        int `env:"LENGTH_MIN" envDefault:"14"`
	LengthMax        int `env:"LENGTH_MAX" envDefault:"128"`
	IncludeLowerCase int `env:"INCLUDE_LOWERCASE" envDefault:"1"`
	IncludeUpperCase int `env:"INCLUDE_UPPERCASE" envDefault:"1"`
	IncludeDigits    int `env:"INCLUDE_DIGITS" envDefault:"1"`
	IncludeSpecial   int `env:"INCLUDE_SPECIAL" envDefault:"1"`
	NotRecentlyUsed  int `env:"NOT_RECENTLY_USED" envDefault:"0"`
}

// Policy converts the snapshot into the validator's form.
func (p PolicyConfig) Policy() policyx.Policy {
	return policyx.Policy{
		LengthMin:        p.LengthMin,
		LengthMax:        p.LengthMax,
		IncludeLowerCase: p.IncludeLowerCase,
		IncludeUpperCase: p.IncludeUpperCase,
		IncludeDigits:    p.IncludeDigits,
		IncludeSpecial:   p.IncludeSpecial,
		NotRecentlyUsed:  p.NotRecentlyUsed,
	}
}

// LoadConfig parses the environment and checks the fields the flow cannot
// run without.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.IdentityID == "" {
		return errors.New("RECLAIM_IDENTITY_ID is required")
	}
	if c.MagicLinkID == "" {
		return errors.New("RECLAIM_MAGIC_LINK_ID is required")
	}
	if c.CSRFToken == "" {
		return errors.New("RECLAIM_CSRF_TOKEN is required")
	}
	return nil
}
