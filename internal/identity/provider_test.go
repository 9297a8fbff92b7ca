package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"boongle/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func newTestProvider(t *testing.T, issuer string) (*Provider, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	p, err := New(Options{Secret: "test-secret", Issuer: issuer, Now: clock.now, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return p, clock
}

func TestNewRequiresSecret(t *testing.T) {
	if _, err := New(Options{Secret: "  "}); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	p, clock := newTestProvider(t, "boongle")
	token, err := p.Issue("user-1", "a@example.com", time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	session, err := p.Verify(token)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if session.UserID != "user-1" || session.Email != "a@example.com" {
		t.Fatalf("unexpected session %+v", session)
	}
	if !session.ExpiresAt.Equal(clock.t.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", session.ExpiresAt)
	}
	if session.AccessToken != token {
		t.Fatal("expected access token to be kept")
	}
}

func TestVerifyRejects(t *testing.T) {
	p, clock := newTestProvider(t, "boongle")
	other, _ := newTestProvider(t, "someone-else")

	expired, _ := p.Issue("user-1", "", time.Minute)
	foreign, _ := other.Issue("user-1", "", time.Hour)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "boongle", Subject: "user-1"},
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "boongle", ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour))},
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	wrongKey, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "boongle", Subject: "user-1", ExpiresAt: jwt.NewNumericDate(clock.t.Add(time.Hour))},
	}).SignedString([]byte("other-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	clock.t = clock.t.Add(2 * time.Minute)

	cases := map[string]string{
		"empty":     "",
		"garbage":   "not-a-token",
		"expired":   expired,
		"issuer":    foreign,
		"no expiry": noExp,
		"no sub":    noSub,
		"wrong key": wrongKey,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := p.Verify(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestSignInNotifiesSubscribers(t *testing.T) {
	p, _ := newTestProvider(t, "")
	var seen []*domain.Session
	unsubscribe := p.Subscribe(func(s *domain.Session) { seen = append(seen, s) })

	token, _ := p.Issue("user-1", "a@example.com", time.Hour)
	if _, err := p.SignIn(context.Background(), token); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if _, err := p.SignIn(context.Background(), token); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	if err := p.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut error: %v", err)
	}

	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	if seen[0] == nil || seen[0].UserID != "user-1" || seen[1] == nil {
		t.Fatalf("expected sign-in notifications, got %+v", seen)
	}
	if seen[2] != nil {
		t.Fatalf("expected nil on sign-out, got %+v", seen[2])
	}

	unsubscribe()
	_, _ = p.SignIn(context.Background(), token)
	if len(seen) != 3 {
		t.Fatalf("expected no notification after unsubscribe, got %d", len(seen))
	}
}

func TestSignInInvalidTokenIsAuthError(t *testing.T) {
	p, _ := newTestProvider(t, "")
	_, err := p.SignIn(context.Background(), "bogus")
	var authErr *domain.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	current, err := p.CurrentSession(context.Background())
	if err != nil || current != nil {
		t.Fatalf("expected no session, got %+v, %v", current, err)
	}
}

func TestCurrentSessionExpires(t *testing.T) {
	p, clock := newTestProvider(t, "")
	var notified int
	var last *domain.Session
	p.Subscribe(func(s *domain.Session) { notified++; last = s })

	token, _ := p.Issue("user-1", "", time.Minute)
	if _, err := p.SignIn(context.Background(), token); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
	current, err := p.CurrentSession(context.Background())
	if err != nil || current == nil || current.UserID != "user-1" {
		t.Fatalf("expected session, got %+v, %v", current, err)
	}

	clock.t = clock.t.Add(time.Minute)
	current, err = p.CurrentSession(context.Background())
	if err != nil || current != nil {
		t.Fatalf("expected expired session to be dropped, got %+v, %v", current, err)
	}
	if notified != 2 || last != nil {
		t.Fatalf("expected sign-out notification on expiry, got %d %+v", notified, last)
	}
}

func TestSignOutCancelledContext(t *testing.T) {
	p, _ := newTestProvider(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var authErr *domain.AuthError
	if err := p.SignOut(ctx); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}
