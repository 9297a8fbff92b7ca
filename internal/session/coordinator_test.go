package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"boongle/internal/adapter/repo"
	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/internal/generation"
	"boongle/internal/identity"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

type stubBackend struct {
	calls int
	err   error
}

func (b *stubBackend) Generate(ctx context.Context, prompt string, count int, credential string) ([]domain.ImagePayload, error) {
	b.calls++
	if b.err != nil {
		return nil, b.err
	}
	out := make([]domain.ImagePayload, count)
	for i := range out {
		out[i] = domain.ImagePayload{Data: []byte("img"), MediaType: "image/png"}
	}
	return out, nil
}

type memCredentials struct {
	value string
	err   error
}

func (m *memCredentials) Get(ctx context.Context) (string, error) { return m.value, m.err }

func (m *memCredentials) Set(ctx context.Context, value string) error {
	m.value = value
	return nil
}

// failingStore serves profiles from memory until fetchErr is set.
type failingStore struct {
	*repo.ProfileRepositoryMemory
	fetchErr error
}

func (s *failingStore) Fetch(ctx context.Context, userID string) (*domain.Profile, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.ProfileRepositoryMemory.Fetch(ctx, userID)
}

type harness struct {
	clock    *fakeClock
	mem      *repo.ProfileRepositoryMemory
	store    *failingStore
	identity *identity.Provider
	backend  *stubBackend
	creds    *memCredentials
	coord    *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)}
	idp, err := identity.New(identity.Options{Secret: "test-secret", Now: clock.Now, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("identity.New error: %v", err)
	}
	mem := repo.NewProfileRepositoryMemory()
	store := &failingStore{ProfileRepositoryMemory: mem}
	backend := &stubBackend{}
	creds := &memCredentials{value: "key"}
	ledger := entitlement.NewLedger(store, clock, zerolog.Nop())
	coord := New(Options{
		Identity:              idp,
		Ledger:                ledger,
		Orchestrator:          generation.NewOrchestrator(backend, ledger, clock, zerolog.Nop()),
		Credentials:           creds,
		Logger:                zerolog.Nop(),
		FallbackRetryInterval: time.Minute,
	})
	if err := coord.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	t.Cleanup(coord.Stop)
	return &harness{clock: clock, mem: mem, store: store, identity: idp, backend: backend, creds: creds, coord: coord}
}

func (h *harness) signIn(t *testing.T, userID, email string) {
	t.Helper()
	token, err := h.identity.Issue(userID, email, time.Hour)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := h.identity.SignIn(context.Background(), token); err != nil {
		t.Fatalf("SignIn error: %v", err)
	}
}

func TestStartSignedOut(t *testing.T) {
	h := newHarness(t)
	st := h.coord.State()
	if st.Status != StatusSignedOut {
		t.Fatalf("expected signed out, got %s", st.Status)
	}
	if !st.HasCredential {
		t.Fatal("expected stored credential to be detected")
	}
	if !h.coord.GenerationDisabled() {
		t.Fatal("generation must be disabled without a session")
	}
	if got := h.coord.Display().Text; got != "Log in to see your generations." {
		t.Fatalf("unexpected display %q", got)
	}
}

func TestSignInLoadsAndReconcilesProfile(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", Email: "old@example.com", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 0, LastFreeResetDate: "2024-01-01"})

	h.signIn(t, "u1", "new@example.com")

	st := h.coord.State()
	if st.Status != StatusSignedIn || st.Fallback {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.Profile.Email != "new@example.com" {
		t.Fatalf("session email should win, got %q", st.Profile.Email)
	}
	if st.Profile.FreeGenerationsLeft != entitlement.FreeAllotment || st.Profile.LastFreeResetDate != "2024-01-02" {
		t.Fatalf("expected daily reset, got %+v", st.Profile)
	}
	if h.coord.GenerationDisabled() {
		t.Fatal("generation should be enabled")
	}
}

func TestSameUserNotificationKeepsProfile(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 3, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")

	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 1, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")

	if got := h.coord.State().Profile.FreeGenerationsLeft; got != 3 {
		t.Fatalf("token refresh must not refetch, got %d left", got)
	}

	st, err := h.coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if st.Profile.FreeGenerationsLeft != 1 {
		t.Fatalf("Refresh should reload, got %d", st.Profile.FreeGenerationsLeft)
	}
}

func TestMissingProfileFallsBackAndRetries(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "u1", "a@example.com")

	st := h.coord.State()
	if !st.Fallback {
		t.Fatal("expected fallback profile")
	}
	if !strings.Contains(st.Warning, "Using default values") {
		t.Fatalf("unexpected warning %q", st.Warning)
	}
	if st.Profile.ActivePlan != domain.PlanFree || st.Profile.FreeGenerationsLeft != entitlement.FreeAllotment {
		t.Fatalf("unexpected fallback %+v", st.Profile)
	}

	res, err := h.coord.Generate(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Profile.FreeGenerationsLeft != entitlement.FreeAllotment-1 {
		t.Fatalf("expected local decrement, got %+v", res.Profile)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("expected local-only warning")
	}

	// The record appears, but the retry interval has not passed yet.
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanPro, ProGenerationsLeft: 100, LastProResetMonth: "2024-01"})
	if _, err := h.coord.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if !h.coord.State().Fallback {
		t.Fatal("retry must wait for the interval")
	}

	h.clock.t = h.clock.t.Add(2 * time.Minute)
	st, err = h.coord.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh error: %v", err)
	}
	if st.Fallback || st.Profile.ActivePlan != domain.PlanPro || st.Warning != "" {
		t.Fatalf("expected stored profile to replace fallback, got %+v", st)
	}
	if st.Profile.Email != "a@example.com" {
		t.Fatalf("session email should be applied, got %q", st.Profile.Email)
	}
}

func TestGenerateKeepsArtifacts(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanPremium})
	h.signIn(t, "u1", "a@example.com")

	res, err := h.coord.Generate(context.Background(), "two dogs")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if len(res.Artifacts) != entitlement.PremiumVariants {
		t.Fatalf("expected %d artifacts, got %d", entitlement.PremiumVariants, len(res.Artifacts))
	}
	st := h.coord.State()
	if st.RequestID != res.RequestID || len(st.Artifacts) != 2 {
		t.Fatalf("state not updated: %+v", st)
	}
	a, err := h.coord.Artifact(res.Artifacts[1].ID)
	if err != nil {
		t.Fatalf("Artifact error: %v", err)
	}
	if a.Index != 1 {
		t.Fatalf("wrong artifact %+v", a)
	}
	if _, err := h.coord.Artifact("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// A rejected prompt leaves the previous result in place.
	if _, err := h.coord.Generate(context.Background(), "   "); !errors.Is(err, domain.ErrEmptyPrompt) {
		t.Fatalf("expected ErrEmptyPrompt, got %v", err)
	}
	if len(h.coord.Artifacts()) != 2 {
		t.Fatal("precondition failure must keep artifacts")
	}

	// A failed backend call clears it.
	h.backend.err = errors.New("boom")
	if _, err := h.coord.Generate(context.Background(), "again"); err == nil {
		t.Fatal("expected backend error")
	}
	if len(h.coord.Artifacts()) != 0 {
		t.Fatal("backend failure must clear artifacts")
	}
}

func TestGenerateRequiresCredential(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 5, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")
	h.creds.value = ""

	if _, err := h.coord.Generate(context.Background(), "a cat"); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if h.backend.calls != 0 {
		t.Fatal("backend must not be called")
	}
	if !h.coord.GenerationDisabled() {
		t.Fatal("generation should be disabled without a credential")
	}

	if err := h.coord.SetCredential(context.Background(), "  "); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if err := h.coord.SetCredential(context.Background(), " new-key "); err != nil {
		t.Fatalf("SetCredential error: %v", err)
	}
	if h.creds.value != "new-key" || h.coord.GenerationDisabled() {
		t.Fatalf("credential not applied: %q", h.creds.value)
	}
}

func TestClaimCode(t *testing.T) {
	h := newHarness(t)
	if _, err := h.coord.ClaimCode(context.Background(), "6464"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 0, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")

	if _, err := h.coord.ClaimCode(context.Background(), "0000"); !errors.Is(err, domain.ErrInvalidClaimCode) {
		t.Fatalf("expected ErrInvalidClaimCode, got %v", err)
	}
	p, err := h.coord.ClaimCode(context.Background(), "6464")
	if err != nil {
		t.Fatalf("ClaimCode error: %v", err)
	}
	if p.ActivePlan != domain.PlanPro || p.ProGenerationsLeft != entitlement.ProAllotment || p.LastProResetMonth != "2024-01" {
		t.Fatalf("unexpected profile %+v", p)
	}
	stored, _ := h.mem.Fetch(context.Background(), "u1")
	if stored.ActivePlan != domain.PlanPro {
		t.Fatalf("claim not persisted: %+v", stored)
	}
	if got := h.coord.Display().Text; !strings.Contains(got, "175") {
		t.Fatalf("unexpected display %q", got)
	}
}

func TestClaimOnFallbackIsLocal(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "u1", "a@example.com")

	p, err := h.coord.ClaimPlan(context.Background(), domain.PlanPremium)
	if err != nil {
		t.Fatalf("ClaimPlan error: %v", err)
	}
	if p.ActivePlan != domain.PlanPremium {
		t.Fatalf("unexpected profile %+v", p)
	}
	if _, err := h.mem.Fetch(context.Background(), "u1"); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("fallback claim must not write, got %v", err)
	}
	if h.coord.State().Warning == "" {
		t.Fatal("expected local-only warning")
	}
}

func TestSignOutClearsState(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanPremium})
	h.signIn(t, "u1", "a@example.com")
	if _, err := h.coord.Generate(context.Background(), "a cat"); err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	if err := h.coord.SignOut(context.Background()); err != nil {
		t.Fatalf("SignOut error: %v", err)
	}
	st := h.coord.State()
	if st.Status != StatusSignedOut || st.Profile != nil || st.Session != nil || len(st.Artifacts) != 0 {
		t.Fatalf("state not cleared: %+v", st)
	}
	if !st.HasCredential {
		t.Fatal("credential flag should survive sign-out")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var authErr *domain.AuthError
	if err := h.coord.SignOut(ctx); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
}

func TestSwitchingUsersDropsPreviousArtifacts(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanPremium})
	h.mem.Put(domain.Profile{ID: "u2", ActivePlan: domain.PlanPremium})
	h.signIn(t, "u1", "a@example.com")
	if _, err := h.coord.Generate(context.Background(), "a cat"); err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	h.signIn(t, "u2", "b@example.com")
	st := h.coord.State()
	if st.Session.UserID != "u2" || st.Profile.ID != "u2" {
		t.Fatalf("unexpected state %+v", st)
	}
	if len(st.Artifacts) != 0 {
		t.Fatal("artifacts of the previous user must be dropped")
	}
}

func TestNewDayResetsHeldProfile(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 0, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")
	if !h.coord.GenerationDisabled() {
		t.Fatal("no generations left today")
	}

	h.clock.t = h.clock.t.Add(24 * time.Hour)

	if h.coord.GenerationDisabled() {
		t.Fatal("a new day must enable generation")
	}
	if got := h.coord.Display().Text; got != "5 generations left today" {
		t.Fatalf("unexpected display %q", got)
	}
	if got := h.coord.State().Profile.FreeGenerationsLeft; got != entitlement.FreeAllotment {
		t.Fatalf("state should show the reset allowance, got %d", got)
	}

	res, err := h.coord.Generate(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if h.backend.calls != 1 {
		t.Fatalf("expected one backend call, got %d", h.backend.calls)
	}
	if res.Profile.FreeGenerationsLeft != entitlement.FreeAllotment-1 {
		t.Fatalf("expected reset then debit, got %+v", res.Profile)
	}
	stored, _ := h.mem.Fetch(context.Background(), "u1")
	if stored.LastFreeResetDate != "2024-01-03" || stored.FreeGenerationsLeft != entitlement.FreeAllotment-1 {
		t.Fatalf("reset not persisted: %+v", stored)
	}
}

func TestNewMonthResetsFallbackLocally(t *testing.T) {
	h := newHarness(t)
	h.signIn(t, "u1", "a@example.com")
	if _, err := h.coord.ClaimPlan(context.Background(), domain.PlanPro); err != nil {
		t.Fatalf("ClaimPlan error: %v", err)
	}

	h.clock.t = time.Date(2024, 2, 1, 8, 0, 0, 0, time.UTC)

	res, err := h.coord.Generate(context.Background(), "a cat")
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	if res.Profile.LastProResetMonth != "2024-02" || res.Profile.ProGenerationsLeft != entitlement.ProAllotment-1 {
		t.Fatalf("expected monthly reset then local debit, got %+v", res.Profile)
	}
	if !h.coord.State().Fallback {
		t.Fatal("profile should still be a fallback")
	}
}

func TestRefreshStoreErrorKeepsState(t *testing.T) {
	h := newHarness(t)
	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 3, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")
	before := h.coord.State().Profile

	h.store.fetchErr = &domain.StoreError{Op: "fetch", Err: errors.New("connection reset")}
	st, err := h.coord.Refresh(context.Background())
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError, got %v", err)
	}
	if st.Fallback {
		t.Fatal("a store error must not switch to the fallback profile")
	}
	if *st.Profile != *before {
		t.Fatalf("profile changed: got %+v want %+v", st.Profile, before)
	}
	if st.Status != StatusSignedIn {
		t.Fatalf("expected to stay signed in, got %s", st.Status)
	}
}

func TestGenerateSignedOutWinsOverCredentialError(t *testing.T) {
	h := newHarness(t)
	h.creds.err = &domain.StoreError{Op: "credential", Err: errors.New("disk gone")}

	if _, err := h.coord.Generate(context.Background(), "a cat"); !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}

	h.mem.Put(domain.Profile{ID: "u1", ActivePlan: domain.PlanFree, FreeGenerationsLeft: 3, LastFreeResetDate: "2024-01-02"})
	h.signIn(t, "u1", "a@example.com")
	var storeErr *domain.StoreError
	if _, err := h.coord.Generate(context.Background(), "a cat"); !errors.As(err, &storeErr) {
		t.Fatalf("expected StoreError once signed in, got %v", err)
	}
	if h.backend.calls != 0 {
		t.Fatal("backend must not be called")
	}
}
