package auth

import (
	"context"
	"net/http"
	"strings"
)

// DevAuthenticator serves local development: a fixed identity, overridable
// per request through the X-Flowgate-User header.
type DevAuthenticator struct {
	identity Identity
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{
		identity: Identity{
			Subject: cfg.DevSubject,
			Email:   cfg.DevEmail,
		},
	}
}

func (a *DevAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	if subject := strings.TrimSpace(r.Header.Get("X-Flowgate-User")); subject != "" {
		return Identity{Subject: subject}, nil
	}
	return a.identity, nil
}
