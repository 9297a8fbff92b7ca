// Package session owns the application state of the signed-in user: the
// session, the reconciled profile, the artifacts of the latest request and
// the credential flag the UI needs to enable generation.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/internal/generation"
)

// Status is the coordinator's view of the identity provider.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusSignedOut Status = "signed_out"
	StatusSignedIn  Status = "signed_in"
)

const (
	DefaultFallbackRetryInterval = 30 * time.Second
	DefaultLoadTimeout           = 15 * time.Second
)

// State is a snapshot of the application state.
type State struct {
	Status        Status            `json:"status"`
	Session       *domain.Session   `json:"session,omitempty"`
	Profile       *domain.Profile   `json:"profile,omitempty"`
	Fallback      bool              `json:"fallback"`
	Warning       string            `json:"warning,omitempty"`
	HasCredential bool              `json:"has_credential"`
	RequestID     string            `json:"request_id,omitempty"`
	Artifacts     []domain.Artifact `json:"-"`
}

// Options wires a Coordinator.
type Options struct {
	Identity     domain.IdentityProvider
	Ledger       *entitlement.Ledger
	Orchestrator *generation.Orchestrator
	Credentials  domain.CredentialStore
	Logger       zerolog.Logger

	// FallbackRetryInterval spaces out fetch retries while the held profile
	// is a local fallback.
	FallbackRetryInterval time.Duration
	// LoadTimeout bounds profile loads triggered by session notifications.
	LoadTimeout time.Duration
}

// Coordinator is the single owner of application state. User operations run
// one at a time; State may be read concurrently.
type Coordinator struct {
	identity      domain.IdentityProvider
	ledger        *entitlement.Ledger
	orchestrator  *generation.Orchestrator
	credentials   domain.CredentialStore
	logger        zerolog.Logger
	retryInterval time.Duration
	loadTimeout   time.Duration

	opMu sync.Mutex

	mu          sync.RWMutex
	state       State
	lastRetry   time.Time
	unsubscribe func()
}

func New(opts Options) *Coordinator {
	retry := opts.FallbackRetryInterval
	if retry <= 0 {
		retry = DefaultFallbackRetryInterval
	}
	timeout := opts.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	return &Coordinator{
		identity:      opts.Identity,
		ledger:        opts.Ledger,
		orchestrator:  opts.Orchestrator,
		credentials:   opts.Credentials,
		logger:        opts.Logger,
		retryInterval: retry,
		loadTimeout:   timeout,
		state:         State{Status: StatusUnknown},
	}
}

// Start resolves the initial session, loads the stored credential and
// subscribes to session changes. It leaves the Unknown state exactly once.
func (c *Coordinator) Start(ctx context.Context) error {
	if c.credentials != nil {
		value, err := c.credentials.Get(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Msg("session: could not read stored credential")
		}
		c.setHasCredential(strings.TrimSpace(value) != "")
	}

	current, err := c.identity.CurrentSession(ctx)
	if err != nil {
		return asAuthError(err)
	}
	c.apply(ctx, current)

	unsubscribe := c.identity.Subscribe(c.HandleSessionChange)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
	return nil
}

// Stop detaches from the identity provider.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
}

// HandleSessionChange reacts to an identity provider notification.
func (c *Coordinator) HandleSessionChange(s *domain.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), c.loadTimeout)
	defer cancel()
	c.apply(ctx, s)
}

func (c *Coordinator) apply(ctx context.Context, s *domain.Session) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if s == nil {
		c.mu.Lock()
		wasSignedIn := c.state.Status == StatusSignedIn
		c.clearLocked()
		c.mu.Unlock()
		if wasSignedIn {
			c.logger.Info().Msg("session: signed out")
		}
		return
	}

	c.mu.Lock()
	same := c.state.Status == StatusSignedIn && c.state.Session != nil &&
		c.state.Session.UserID == s.UserID && c.state.Profile != nil
	if same {
		// Token refresh for the same user: keep the profile.
		c.state.Session = s
		c.state.Profile = withSessionEmail(c.state.Profile, s)
		c.mu.Unlock()
		return
	}
	if c.state.Session != nil && c.state.Session.UserID != s.UserID {
		c.clearLocked()
	}
	c.state.Status = StatusSignedIn
	c.state.Session = s
	c.mu.Unlock()

	if err := c.load(ctx, s); err != nil {
		c.logger.Error().Err(err).Str("user_id", s.UserID).Msg("session: profile load failed")
	}
}

// load fetches and reconciles the profile for s. Callers hold opMu.
func (c *Coordinator) load(ctx context.Context, s *domain.Session) error {
	p, err := c.ledger.Load(ctx, s.UserID)
	switch {
	case err == nil:
		c.mu.Lock()
		c.state.Profile = withSessionEmail(p, s)
		c.state.Fallback = false
		c.state.Warning = ""
		c.mu.Unlock()
		return nil
	case errors.Is(err, domain.ErrProfileNotFound):
		now := c.ledger.Now()
		fallback := entitlement.Fallback(s.UserID, s.Email, now)
		c.mu.Lock()
		c.state.Profile = &fallback
		c.state.Fallback = true
		c.state.Warning = domain.Describe(err).Message
		c.lastRetry = now
		c.mu.Unlock()
		c.logger.Warn().Str("user_id", s.UserID).Msg("session: profile missing, using local fallback")
		return nil
	default:
		c.mu.Lock()
		c.state.Warning = domain.Describe(err).Message
		c.mu.Unlock()
		return err
	}
}

// retryFallback replaces a fallback profile with the stored record once it
// exists, trying at most once per retry interval. Callers hold opMu.
func (c *Coordinator) retryFallback(ctx context.Context) {
	c.mu.RLock()
	fallback := c.state.Fallback
	s := c.state.Session
	due := !c.ledger.Now().Before(c.lastRetry.Add(c.retryInterval))
	c.mu.RUnlock()
	if !fallback || s == nil || !due {
		return
	}

	p, err := c.ledger.Load(ctx, s.UserID)
	now := c.ledger.Now()
	if err != nil {
		c.mu.Lock()
		c.lastRetry = now
		c.mu.Unlock()
		if !errors.Is(err, domain.ErrProfileNotFound) {
			c.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("session: fallback retry failed")
		}
		return
	}
	c.mu.Lock()
	c.state.Profile = withSessionEmail(p, s)
	c.state.Fallback = false
	c.state.Warning = ""
	c.lastRetry = now
	c.mu.Unlock()
	c.logger.Info().Str("user_id", s.UserID).Msg("session: stored profile replaced local fallback")
}

// reconcileHeld applies a due daily or monthly reset to the held profile.
// A stored profile is reloaded through the ledger so the reset is persisted;
// a fallback profile is reset locally. Callers hold opMu.
func (c *Coordinator) reconcileHeld(ctx context.Context) {
	s, p, fallback := c.snapshot()
	if s == nil || p == nil {
		return
	}
	next, changed := entitlement.Reconcile(*p, c.ledger.Now())
	if !changed {
		return
	}
	if !fallback {
		stored, err := c.ledger.Load(ctx, s.UserID)
		if err != nil {
			c.logger.Warn().Err(err).Str("user_id", s.UserID).Msg("session: could not persist reset, using local reset")
		} else {
			next = *stored
		}
	}
	c.mu.Lock()
	if c.state.Session != nil && c.state.Session.UserID == s.UserID {
		c.state.Profile = withSessionEmail(&next, c.state.Session)
	}
	c.mu.Unlock()
}

// Refresh reloads the profile of the signed-in user. While the held profile
// is a fallback the reload follows the retry interval.
func (c *Coordinator) Refresh(ctx context.Context) (State, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	s, _, fallback := c.snapshot()
	if s == nil {
		return c.State(), domain.ErrNotAuthenticated
	}
	if fallback {
		c.retryFallback(ctx)
		return c.State(), nil
	}
	err := c.load(ctx, s)
	return c.State(), err
}

// Generate runs one generation for the signed-in user and keeps its
// artifacts as the current request's result.
func (c *Coordinator) Generate(ctx context.Context, prompt string) (*generation.Result, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.retryFallback(ctx)
	c.reconcileHeld(ctx)
	s, p, fallback := c.snapshot()

	// A store failure only matters once a session exists; the orchestrator
	// reports the missing session first.
	credential, err := c.credential(ctx)
	if err != nil && s != nil && p != nil {
		return nil, err
	}

	res, err := c.orchestrator.Generate(ctx, generation.Request{
		Prompt:     prompt,
		Session:    s,
		Profile:    p,
		Credential: credential,
		LocalOnly:  fallback,
	})
	if err != nil {
		if !isPrecondition(err) {
			c.mu.Lock()
			c.state.Artifacts = nil
			c.state.RequestID = ""
			c.mu.Unlock()
		}
		return nil, err
	}

	c.mu.Lock()
	if c.state.Session != nil && c.state.Session.UserID == s.UserID {
		c.state.Artifacts = res.Artifacts
		c.state.RequestID = res.RequestID
		c.state.Profile = withSessionEmail(res.Profile, c.state.Session)
		c.state.Warning = strings.Join(res.Warnings, " ")
	}
	c.mu.Unlock()
	return res, nil
}

// ClaimPlan switches the signed-in user's plan. A fallback profile is
// switched locally and reported in the warning.
func (c *Coordinator) ClaimPlan(ctx context.Context, plan domain.Plan) (*domain.Profile, error) {
	if !plan.Valid() {
		return nil, domain.ErrInvalidPlan
	}
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.retryFallback(ctx)
	c.reconcileHeld(ctx)
	s, p, fallback := c.snapshot()
	if s == nil || p == nil {
		return nil, domain.ErrNotAuthenticated
	}

	if fallback {
		next, err := entitlement.ApplyPlanClaim(*p, plan, c.ledger.Now())
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.state.Profile = &next
		c.state.Warning = "Your plan was changed on this device only because your profile could not be loaded from the server."
		c.mu.Unlock()
		return cloneProfile(&next), nil
	}

	stored, err := c.ledger.Claim(ctx, s.UserID, plan)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.state.Profile = withSessionEmail(stored, s)
	c.state.Warning = ""
	profile := cloneProfile(c.state.Profile)
	c.mu.Unlock()
	c.logger.Info().Str("user_id", s.UserID).Str("plan", string(plan)).Msg("session: plan claimed")
	return profile, nil
}

// ClaimCode claims the plan unlocked by code.
func (c *Coordinator) ClaimCode(ctx context.Context, code string) (*domain.Profile, error) {
	plan, err := entitlement.PlanForClaimCode(code)
	if err != nil {
		return nil, err
	}
	return c.ClaimPlan(ctx, plan)
}

// SignOut asks the identity provider to end the session. State is cleared
// by the resulting notification.
func (c *Coordinator) SignOut(ctx context.Context) error {
	if err := c.identity.SignOut(ctx); err != nil {
		return asAuthError(err)
	}
	return nil
}

// SetCredential stores the backend credential.
func (c *Coordinator) SetCredential(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.ErrMissingCredential
	}
	if err := c.credentials.Set(ctx, value); err != nil {
		return err
	}
	c.setHasCredential(true)
	return nil
}

// State returns a copy of the current application state.
func (c *Coordinator) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := c.state
	st.Session = cloneSession(c.state.Session)
	st.Profile = c.current(c.state.Profile)
	st.Artifacts = append([]domain.Artifact(nil), c.state.Artifacts...)
	return st
}

// Artifacts returns the artifacts of the most recent request.
func (c *Coordinator) Artifacts() []domain.Artifact {
	return c.State().Artifacts
}

// Artifact returns one artifact of the most recent request by id.
func (c *Coordinator) Artifact(id string) (domain.Artifact, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.state.Artifacts {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Artifact{}, domain.ErrNotFound
}

// Display returns the entitlement display for the held profile.
func (c *Coordinator) Display() entitlement.Display {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return entitlement.Describe(c.current(c.state.Profile), c.state.Status == StatusSignedIn)
}

// GenerationDisabled reports whether the prompt form should be disabled: no
// session, no credential, or no generations left.
func (c *Coordinator) GenerationDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.Status != StatusSignedIn ||
		!c.state.HasCredential ||
		!entitlement.CanGenerate(c.current(c.state.Profile))
}

// current returns a copy of p with any due reset applied.
func (c *Coordinator) current(p *domain.Profile) *domain.Profile {
	if p == nil {
		return nil
	}
	next, _ := entitlement.Reconcile(*p, c.ledger.Now())
	return &next
}

func (c *Coordinator) credential(ctx context.Context) (string, error) {
	if c.credentials == nil {
		return "", nil
	}
	value, err := c.credentials.Get(ctx)
	if err != nil {
		return "", err
	}
	value = strings.TrimSpace(value)
	c.setHasCredential(value != "")
	return value, nil
}

func (c *Coordinator) setHasCredential(has bool) {
	c.mu.Lock()
	c.state.HasCredential = has
	c.mu.Unlock()
}

func (c *Coordinator) snapshot() (*domain.Session, *domain.Profile, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state.Status != StatusSignedIn {
		return nil, nil, false
	}
	return cloneSession(c.state.Session), cloneProfile(c.state.Profile), c.state.Fallback
}

func (c *Coordinator) clearLocked() {
	c.state = State{Status: StatusSignedOut, HasCredential: c.state.HasCredential}
	c.lastRetry = time.Time{}
}

func isPrecondition(err error) bool {
	return errors.Is(err, domain.ErrNotAuthenticated) ||
		errors.Is(err, domain.ErrMissingCredential) ||
		errors.Is(err, domain.ErrEmptyPrompt) ||
		errors.Is(err, domain.ErrQuotaExceeded)
}

func asAuthError(err error) error {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		return err
	}
	return &domain.AuthError{Err: err}
}

func withSessionEmail(p *domain.Profile, s *domain.Session) *domain.Profile {
	if p == nil {
		return nil
	}
	out := *p
	if s != nil && strings.TrimSpace(s.Email) != "" {
		out.Email = s.Email
	}
	return &out
}

func cloneProfile(p *domain.Profile) *domain.Profile {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

func cloneSession(s *domain.Session) *domain.Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
