package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flowgate-labs/flowgate-go/internal/platform/env"
)

var ErrUnauthenticated = errors.New("unauthenticated")

const (
	ModeDev  = "dev"
	ModeOIDC = "oidc"
)

type Authenticator interface {
	Authenticate(ctx context.Context, r *http.Request) (Identity, error)
}

type Config struct {
	Mode string

	DevSubject string
	DevEmail   string

	OIDCIssuerURL string
	OIDCClientID  string
	EmailClaim    string
	GroupsClaim   string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:          strings.ToLower(strings.TrimSpace(env.String("FLOWGATE_AUTH_MODE", ModeDev))),
		DevSubject:    env.String("FLOWGATE_AUTH_DEV_SUBJECT", "dev-user"),
		DevEmail:      env.String("FLOWGATE_AUTH_DEV_EMAIL", "dev@localhost"),
		OIDCIssuerURL: env.String("FLOWGATE_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("FLOWGATE_OIDC_CLIENT_ID", ""),
		EmailClaim:    env.String("FLOWGATE_OIDC_EMAIL_CLAIM", "email"),
		GroupsClaim:   env.String("FLOWGATE_OIDC_GROUPS_CLAIM", "groups"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("FLOWGATE_AUTH_DEV_SUBJECT is required in dev mode")
		}
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("FLOWGATE_OIDC_ISSUER_URL is required in oidc mode")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("FLOWGATE_OIDC_CLIENT_ID is required in oidc mode")
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Mode)
	}
	return nil
}

func NewAuthenticator(ctx context.Context, cfg Config) (Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Mode {
	case ModeDev:
		return NewDevAuthenticator(cfg), nil
	case ModeOIDC:
		return NewOIDCAuthenticator(ctx, cfg)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}
