package hellomom

import (
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials holds the bearer token for the signed-in user. It is set at
// login and cleared at logout, and is shared by every request the client
// makes. The zero value is an empty holder ready to use.
type Credentials struct {
	mu    sync.RWMutex
	token string
	now   func() time.Time
}

// NewCredentials returns an empty credential holder.
func NewCredentials() *Credentials {
	return &Credentials{now: time.Now}
}

// Set stores token, replacing any previous one.
func (c *Credentials) Set(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Clear forgets the stored token.
func (c *Credentials) Clear() {
	c.Set("")
}

// Token returns the stored token, or "" if none is set or the token is a JWT
// whose exp claim has passed. Tokens that are not JWTs are returned as-is;
// the server decides whether to accept them.
func (c *Credentials) Token() string {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	if token == "" {
		return ""
	}
	if exp, ok := expiry(token); ok && !c.clock().Before(exp) {
		return ""
	}
	return token
}

func (c *Credentials) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Subject returns the sub claim of the stored token, if it is a JWT that
// carries one.
func (c *Credentials) Subject() string {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	claims, ok := parseClaims(token)
	if !ok {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

// The client cannot verify the server's signature, so claims are only read.
func parseClaims(token string) (jwt.MapClaims, bool) {
	if token == "" {
		return nil, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	return claims, ok
}

func expiry(token string) (time.Time, bool) {
	claims, ok := parseClaims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
