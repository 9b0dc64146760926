package identity

import (
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// AppConfig is the env-driven Config implementation. All values have
// workable defaults so an embedded instance boots with zero settings.
type AppConfig struct {
	BaseURL               string        `env:"IDENTITY_BASE_URL" envDefault:"http://localhost:3000"`
	Issuer                string        `env:"IDENTITY_ISSUER" envDefault:"go-identity"`
	TokenExpiration       int           `env:"IDENTITY_TOKEN_EXPIRATION" envDefault:"24"`
	AuthorizationCodeTTL  time.Duration `env:"IDENTITY_AUTH_CODE_TTL" envDefault:"10m"`
	ConsentTransactionTTL time.Duration `env:"IDENTITY_CONSENT_TX_TTL" envDefault:"5m"`
	SessionTTL            time.Duration `env:"IDENTITY_SESSION_TTL" envDefault:"24h"`
}

var _ Config = (*AppConfig)(nil)

// LoadConfig reads configuration from the environment.
func LoadConfig() (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to parse environment configuration")
	}
	return cfg, nil
}

func (c *AppConfig) GetBaseURL() string                      { return c.BaseURL }
func (c *AppConfig) GetIssuer() string                       { return c.Issuer }
func (c *AppConfig) GetTokenExpiration() int                 { return c.TokenExpiration }
func (c *AppConfig) GetAuthorizationCodeTTL() time.Duration  { return c.AuthorizationCodeTTL }
func (c *AppConfig) GetConsentTransactionTTL() time.Duration { return c.ConsentTransactionTTL }
func (c *AppConfig) GetSessionTTL() time.Duration            { return c.SessionTTL }
