// Package session tracks who is signed in on this installation. The rest of
// the app only cares about two things: the current user id (empty when signed
// out) and the moment the session appears or disappears, which drives the
// sync scheduler.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("session token invalid")
	ErrTokenExpired = errors.New("session token expired")
)

// Change is delivered to subscribers when the session appears or disappears.
type Change struct {
	UserID  string
	Present bool
}

// Provider holds the current session and fans out presence changes.
type Provider struct {
	mu     sync.RWMutex
	token  string
	userID string
	subs   []chan Change

	now func() time.Time
}

func NewProvider() *Provider {
	return &Provider{now: time.Now}
}

// SignIn installs a platform-issued token. The token's signature is checked
// by the platform on every request; locally it is only read for identity and
// expiry.
func (p *Provider) SignIn(token string) error {
	userID, err := p.userIDFromToken(token)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.token = token
	p.userID = userID
	subs := append([]chan Change(nil), p.subs...)
	p.mu.Unlock()

	notify(subs, Change{UserID: userID, Present: true})
	return nil
}

func (p *Provider) SignOut() {
	p.mu.Lock()
	userID := p.userID
	p.token = ""
	p.userID = ""
	subs := append([]chan Change(nil), p.subs...)
	p.mu.Unlock()

	if userID != "" {
		notify(subs, Change{UserID: userID, Present: false})
	}
}

// UserID returns the signed-in user id, or "" when signed out.
func (p *Provider) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

// Token returns the raw bearer token for outgoing requests.
func (p *Provider) Token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.token
}

// Subscribe returns a channel receiving presence changes. The channel is
// buffered; a subscriber that falls behind loses intermediate transitions but
// always sees the latest one queued.
func (p *Provider) Subscribe() <-chan Change {
	ch := make(chan Change, 4)
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

func notify(subs []chan Change, c Change) {
	for _, ch := range subs {
		select {
		case ch <- c:
			continue
		default:
		}
		// Full buffer: drop the oldest queued change so the subscriber
		// still ends on the latest presence state.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- c:
		default:
		}
	}
}

func (p *Provider) userIDFromToken(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		if exp.Before(p.now()) {
			return "", ErrTokenExpired
		}
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return sub, nil
}
