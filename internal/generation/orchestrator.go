package generation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"boongle/internal/domain"
	"boongle/internal/entitlement"
	"boongle/internal/ids"
	"boongle/internal/obs"
	"boongle/internal/providers/image"
)

// Outcome labels for the generation counter.
const (
	OutcomeSuccess          = "success"
	OutcomeNotAuthenticated = "not_authenticated"
	OutcomeNoCredential     = "missing_credential"
	OutcomeEmptyPrompt      = "empty_prompt"
	OutcomeQuotaExceeded    = "quota_exceeded"
	OutcomeNoResults        = "no_results"
	OutcomeBackendError     = "backend_error"
	OutcomeBackendAuth      = "backend_credential"
	OutcomeCancelled        = "cancelled"
)

const defaultMediaType = "image/jpeg"

// Debiter commits one generation against the stored profile.
type Debiter interface {
	Debit(ctx context.Context, userID string) (*domain.Profile, error)
}

// Request is one generation attempt.
type Request struct {
	Prompt     string
	Session    *domain.Session
	Profile    *domain.Profile
	Credential string
	// LocalOnly marks a profile that has no stored record yet. Its debit is
	// applied to the returned profile only.
	LocalOnly bool
}

// Result carries the artifacts of a successful generation and the profile as
// it stands after the debit.
type Result struct {
	RequestID string            `json:"request_id"`
	Artifacts []domain.Artifact `json:"artifacts"`
	Profile   *domain.Profile   `json:"profile"`
	Warnings  []string          `json:"warnings,omitempty"`
}

// Orchestrator runs one generation: preconditions, backend call, artifact
// naming and the single post-success debit.
type Orchestrator struct {
	backend domain.ImageBackend
	ledger  Debiter
	clock   domain.Clock
	logger  zerolog.Logger
}

func NewOrchestrator(backend domain.ImageBackend, ledger Debiter, clock domain.Clock, logger zerolog.Logger) *Orchestrator {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Orchestrator{backend: backend, ledger: ledger, clock: clock, logger: logger}
}

// Generate checks the preconditions in order, calls the backend, and debits
// exactly once after the backend produced at least one image. A failed debit
// never discards artifacts; it is reported in Result.Warnings.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	if req.Profile != nil {
		// The quota decision and the local decrement must see today's counters.
		reconciled, _ := entitlement.Reconcile(*req.Profile, o.clock.Now())
		req.Profile = &reconciled
	}
	plan := planOf(req.Profile)
	if err := o.precheck(req); err != nil {
		obs.ObserveGeneration(plan, outcomeOf(err))
		return nil, err
	}
	prompt := strings.TrimSpace(req.Prompt)
	count := entitlement.Variants(req.Profile.ActivePlan)

	requestID := ids.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = ids.WithRequestID(ctx, requestID)
	}
	log := o.logger.With().
		Str("request_id", requestID).
		Str("user_id", req.Session.UserID).
		Str("plan", string(plan)).
		Logger()

	start := time.Now()
	payloads, err := o.backend.Generate(ctx, prompt, count, strings.TrimSpace(req.Credential))
	obs.ObserveBackendLatency(plan, time.Since(start))
	if err != nil {
		err = image.Classify(err)
		obs.ObserveGeneration(plan, outcomeOf(err))
		log.Warn().Err(err).Msg("generation: backend call failed")
		return nil, err
	}
	if len(payloads) == 0 {
		obs.ObserveGeneration(plan, OutcomeNoResults)
		log.Warn().Int("requested", count).Msg("generation: backend returned no images")
		return nil, domain.ErrNoResultsReturned
	}

	result := &Result{
		RequestID: requestID,
		Artifacts: o.artifacts(prompt, payloads, count),
		Profile:   req.Profile,
	}
	o.debit(ctx, req, result, log)

	obs.ObserveGeneration(plan, OutcomeSuccess)
	log.Info().
		Int("artifacts", len(result.Artifacts)).
		Int("warnings", len(result.Warnings)).
		Msg("generation: completed")
	return result, nil
}

func (o *Orchestrator) precheck(req Request) error {
	switch {
	case req.Session == nil || req.Profile == nil:
		return domain.ErrNotAuthenticated
	case strings.TrimSpace(req.Credential) == "":
		return domain.ErrMissingCredential
	case strings.TrimSpace(req.Prompt) == "":
		return domain.ErrEmptyPrompt
	case !entitlement.CanGenerate(req.Profile):
		return domain.ErrQuotaExceeded
	}
	return nil
}

// artifacts names each payload after the requested variant count, so a short
// response from the backend keeps the variant suffix.
func (o *Orchestrator) artifacts(prompt string, payloads []domain.ImagePayload, count int) []domain.Artifact {
	createdAt := o.clock.Now()
	out := make([]domain.Artifact, 0, len(payloads))
	for i, payload := range payloads {
		mediaType := strings.TrimSpace(payload.MediaType)
		if mediaType == "" {
			mediaType = defaultMediaType
		}
		out = append(out, domain.Artifact{
			ID:        ids.NewAt(createdAt),
			Data:      payload.Data,
			Prompt:    prompt,
			FileName:  FileName(prompt, createdAt, i, count, mediaType),
			MediaType: mediaType,
			Index:     i,
			CreatedAt: createdAt,
		})
	}
	return out
}

func (o *Orchestrator) debit(ctx context.Context, req Request, result *Result, log zerolog.Logger) {
	if req.Profile.ActivePlan == domain.PlanPremium {
		return
	}
	if req.LocalOnly {
		result.Profile = decrementLocal(req.Profile)
		result.Warnings = append(result.Warnings, "Your usage was counted on this device only because your profile could not be loaded from the server.")
		return
	}

	stored, err := o.ledger.Debit(ctx, req.Session.UserID)
	if err != nil {
		log.Error().Err(err).Msg("generation: debit failed after images were produced")
		result.Profile = decrementLocal(req.Profile)
		result.Warnings = append(result.Warnings, "Images were generated, but your usage could not be saved: "+domain.Describe(err).Message)
		return
	}
	result.Profile = stored
}

func decrementLocal(p *domain.Profile) *domain.Profile {
	next, _ := entitlement.Decrement(*p)
	return &next
}

func planOf(p *domain.Profile) domain.Plan {
	if p == nil {
		return "none"
	}
	return p.ActivePlan
}

func outcomeOf(err error) string {
	var backendErr *domain.BackendError
	switch {
	case errors.Is(err, domain.ErrNotAuthenticated):
		return OutcomeNotAuthenticated
	case errors.Is(err, domain.ErrMissingCredential):
		return OutcomeNoCredential
	case errors.Is(err, domain.ErrEmptyPrompt):
		return OutcomeEmptyPrompt
	case errors.Is(err, domain.ErrQuotaExceeded):
		return OutcomeQuotaExceeded
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCancelled
	case errors.As(err, &backendErr) && backendErr.Credential:
		return OutcomeBackendAuth
	}
	return OutcomeBackendError
}
