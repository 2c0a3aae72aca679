// Package auth supplies the bearer credential used by every protected
// provider call. The credential itself comes from an external identity
// provider; this package only holds it and refuses to hand out tokens
// that are absent or past their expiry claim.
package auth

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/payflow-hq/payflow/pkg/payerr"
)

// TokenProvider supplies a bearer credential for provider calls.
type TokenProvider interface {
	// Token returns the current bearer token, or an AuthRequired error
	// when no usable credential is available.
	Token() (string, error)
}

// BearerProvider holds a JWT bearer credential set by the surrounding
// application after authentication.
type BearerProvider struct {
	mu    sync.RWMutex
	token string
	// exp is the token's expiry claim, zero when the token carries none.
	exp time.Time
	now func() time.Time
}

var _ TokenProvider = (*BearerProvider)(nil)

// NewBearerProvider creates an empty provider. Token returns AuthRequired
// until SetToken is called with a usable credential.
func NewBearerProvider() *BearerProvider {
	return &BearerProvider{now: time.Now}
}

// SetToken installs a new bearer token. The expiry claim is extracted
// without signature verification; verification is the identity provider's
// job, this side only needs to know when to stop using the token.
func (p *BearerProvider) SetToken(token string) error {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	var exp time.Time
	if _, _, err := parser.ParseUnverified(token, claims); err == nil {
		if expClaim, err := claims.GetExpirationTime(); err == nil && expClaim != nil {
			exp = expClaim.Time
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = token
	p.exp = exp
	return nil
}

// Clear drops the held credential.
func (p *BearerProvider) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.exp = time.Time{}
}

// Token returns the held credential if it is present and not expired.
func (p *BearerProvider) Token() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.token == "" {
		return "", payerr.AuthRequired("no auth credential available")
	}
	if !p.exp.IsZero() && !p.now().Before(p.exp) {
		return "", payerr.AuthRequired("auth credential expired")
	}
	return p.token, nil
}

// StaticTokenProvider always returns the same token. Intended for tests.
type StaticTokenProvider string

func (s StaticTokenProvider) Token() (string, error) {
	if s == "" {
		return "", payerr.AuthRequired("no auth credential available")
	}
	return string(s), nil
}
