package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boongle/internal/domain"
)

var (
	ErrMissingSecret = errors.New("identity: signing secret is not configured")
	ErrInvalidToken  = errors.New("identity: invalid access token")
)

// Claims are the access token claims the hosted auth service issues.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Options configures a Provider.
type Options struct {
	Secret string
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	Now    func() time.Time
	Logger zerolog.Logger
}

type subscriber struct {
	id int
	fn func(*domain.Session)
}

// Provider verifies HS256 access tokens and holds the one signed-in session.
// Subscribers hear about every sign-in, sign-out and expiry.
type Provider struct {
	secret []byte
	issuer string
	now    func() time.Time
	logger zerolog.Logger

	mu      sync.Mutex
	session *domain.Session
	subs    []subscriber
	nextID  int
}

func New(opts Options) (*Provider, error) {
	secret := strings.TrimSpace(opts.Secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Provider{
		secret: []byte(secret),
		issuer: strings.TrimSpace(opts.Issuer),
		now:    now,
		logger: opts.Logger,
	}, nil
}

// Issue signs a token for userID. The local API and CLIs use it where no
// hosted auth service is around.
func (p *Provider) Issue(userID, email string, ttl time.Duration) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errors.New("identity: user id is required")
	}
	if ttl <= 0 {
		return "", errors.New("identity: ttl must be greater than zero")
	}
	now := p.now()
	claims := Claims{
		Email: strings.TrimSpace(email),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("identity: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and claims and returns the session it
// describes. It does not change the held session.
func (p *Provider) Verify(token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(p.now),
		jwt.WithExpirationRequired(),
	}
	if p.issuer != "" {
		opts = append(opts, jwt.WithIssuer(p.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: subject missing", ErrInvalidToken)
	}
	return &domain.Session{
		UserID:      claims.Subject,
		Email:       claims.Email,
		AccessToken: token,
		ExpiresAt:   claims.ExpiresAt.Time.UTC(),
	}, nil
}

// SignIn verifies token, makes it the held session and notifies subscribers.
func (p *Provider) SignIn(ctx context.Context, token string) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	session, err := p.Verify(token)
	if err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	p.mu.Lock()
	p.session = session
	subs := p.snapshotLocked()
	p.mu.Unlock()

	p.logger.Info().Str("user_id", session.UserID).Msg("identity: signed in")
	notify(subs, session)
	return cloneSession(session), nil
}

// CurrentSession returns the held session, or nil when signed out. An expired
// session is dropped and subscribers are told.
func (p *Provider) CurrentSession(ctx context.Context) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.AuthError{Err: err}
	}
	p.mu.Lock()
	session := p.session
	if session == nil {
		p.mu.Unlock()
		return nil, nil
	}
	if !session.ExpiresAt.IsZero() && !p.now().Before(session.ExpiresAt) {
		p.session = nil
		subs := p.snapshotLocked()
		p.mu.Unlock()
		p.logger.Info().Str("user_id", session.UserID).Msg("identity: session expired")
		notify(subs, nil)
		return nil, nil
	}
	p.mu.Unlock()
	return cloneSession(session), nil
}

// Subscribe registers fn for session changes. The returned func removes it.
func (p *Provider) Subscribe(fn func(*domain.Session)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscriber{id: id, fn: fn})
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, sub := range p.subs {
			if sub.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// SignOut drops the held session and notifies subscribers.
func (p *Provider) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &domain.AuthError{Err: err}
	}
	p.mu.Lock()
	had := p.session != nil
	p.session = nil
	subs := p.snapshotLocked()
	p.mu.Unlock()

	if had {
		p.logger.Info().Msg("identity: signed out")
	}
	notify(subs, nil)
	return nil
}

func (p *Provider) snapshotLocked() []func(*domain.Session) {
	fns := make([]func(*domain.Session), len(p.subs))
	for i, sub := range p.subs {
		fns[i] = sub.fn
	}
	return fns
}

func notify(subs []func(*domain.Session), session *domain.Session) {
	for _, fn := range subs {
		fn(cloneSession(session))
	}
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

var _ domain.IdentityProvider = (*Provider)(nil)
