package vault

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/systmms/vaultcache/internal/logging"
)

// RenewBuffer is how close to expiry a token must be before Renew acts.
const RenewBuffer = 5 * time.Minute

// State is the token lifecycle as observed at a given instant
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateExpiringSoon
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateExpiringSoon:
		return "expiring-soon"
	case StateExpired:
		return "expired"
	default:
		return "unauthenticated"
	}
}

// Credential is a token and its lease
type Credential struct {
	Token     string
	ExpiresAt time.Time
	Renewable bool
}

// Valid reports whether the credential can be used at now
func (c Credential) Valid(now time.Time) bool {
	return c.Token != "" && now.Before(c.ExpiresAt)
}

// RenewOutcome reports what Renew did. Renew never fails the caller.
type RenewOutcome int

const (
	RenewSkipped RenewOutcome = iota
	RenewSucceeded
	RenewFailed
)

func (o RenewOutcome) String() string {
	switch o {
	case RenewSucceeded:
		return "ok"
	case RenewFailed:
		return "failed"
	default:
		return "skipped"
	}
}

// Session owns the AppRole credential of one store connection. Login replaces
// the credential wholesale, renewal extends it, and it becomes invalid only
// by time passing.
type Session struct {
	api       *api.Client
	authMount string
	logger    *logging.Logger
	now       func() time.Time

	mu   sync.RWMutex
	cred Credential
}

// Authenticate exchanges an AppRole role_id/secret_id pair for a token.
// On failure the previous credential, if any, is left as it was.
func (s *Session) Authenticate(ctx context.Context, roleID, secretID string) error {
	login, err := s.api.Clone()
	if err != nil {
		return &AuthError{Op: "login", Err: err}
	}
	login.ClearToken()

	secret, err := login.Logical().WriteWithContext(ctx, "auth/"+s.authMount+"/login", map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	})
	if err != nil {
		return &AuthError{Op: "login", StatusCode: StatusCode(err), Err: err}
	}
	if secret == nil || secret.Auth == nil || secret.Auth.ClientToken == "" {
		return &AuthError{Op: "login", Message: "no token in login response"}
	}

	cred := Credential{
		Token:     secret.Auth.ClientToken,
		ExpiresAt: s.now().Add(time.Duration(secret.Auth.LeaseDuration) * time.Second),
		Renewable: secret.Auth.Renewable,
	}

	s.mu.Lock()
	s.cred = cred
	s.api.SetToken(cred.Token)
	s.mu.Unlock()

	s.logger.Debug("logged in via %s, token %s valid until %s", s.authMount, logging.Secret(cred.Token), cred.ExpiresAt.Format(time.RFC3339))
	return nil
}

// State evaluates the lifecycle state at the current instant
func (s *Session) State() State {
	now := s.now()
	cred := s.Credential()

	switch {
	case cred.Token == "":
		return StateUnauthenticated
	case !cred.Valid(now):
		return StateExpired
	case cred.ExpiresAt.Sub(now) <= RenewBuffer:
		return StateExpiringSoon
	default:
		return StateAuthenticated
	}
}

// IsAuthenticated is true while a token exists and has not expired
func (s *Session) IsAuthenticated() bool {
	st := s.State()
	return st == StateAuthenticated || st == StateExpiringSoon
}

// IsExpiringSoon is true once the remaining lease is within RenewBuffer
func (s *Session) IsExpiringSoon() bool {
	return s.State() == StateExpiringSoon
}

// Renew extends the token lease when it is about to expire. It is best
// effort: a failed renewal is logged and the current credential is kept
// until it expires, at which point the manager logs in again.
func (s *Session) Renew(ctx context.Context) RenewOutcome {
	if !s.IsExpiringSoon() {
		return RenewSkipped
	}
	if !s.Credential().Renewable {
		s.logger.Debug("token is not renewable, waiting for expiry")
		return RenewSkipped
	}

	secret, err := s.api.Auth().Token().RenewSelfWithContext(ctx, 0)
	if err != nil {
		s.logger.Warn("token renewal failed, keeping current token: %v", err)
		return RenewFailed
	}
	if secret == nil || secret.Auth == nil {
		s.logger.Warn("token renewal returned no auth data, keeping current token")
		return RenewFailed
	}

	now := s.now()
	s.mu.Lock()
	if tok := secret.Auth.ClientToken; tok != "" && tok != s.cred.Token {
		s.cred.Token = tok
		s.api.SetToken(tok)
	}
	s.cred.ExpiresAt = now.Add(time.Duration(secret.Auth.LeaseDuration) * time.Second)
	s.cred.Renewable = secret.Auth.Renewable
	expires := s.cred.ExpiresAt
	s.mu.Unlock()

	s.logger.Debug("token renewed until %s", expires.Format(time.RFC3339))
	return RenewSucceeded
}

// Credential returns a copy of the current credential
func (s *Session) Credential() Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// ExpiresAt is the zero time when unauthenticated
func (s *Session) ExpiresAt() time.Time {
	return s.Credential().ExpiresAt
}

// Close forgets the credential
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = Credential{}
	s.api.ClearToken()
}

// Token is empty when unauthenticated
func (s *Session) Token() string {
	return s.Credential().Token
}

// Renewable reports whether the store marked the token renewable
func (s *Session) Renewable() bool {
	return s.Credential().Renewable
}
