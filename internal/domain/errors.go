package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrMissingCredential = errors.New("missing credential")
	ErrEmptyPrompt       = errors.New("empty prompt")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrNoResultsReturned = errors.New("no results returned")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrVersionConflict   = errors.New("profile version conflict")
	ErrQuotaRace         = errors.New("quota depleted by a concurrent update")
	ErrInvalidPlan       = errors.New("invalid plan")
	ErrInvalidClaimCode  = errors.New("invalid claim code")
)

// BackendError wraps a failure reported by the generation backend.
type BackendError struct {
	// Credential is set when the failure points at a missing or rejected credential.
	Credential bool
	Status     int
	Code       string
	Err        error
}

func (e *BackendError) Error() string {
	if e.Err == nil {
		return "generation backend error"
	}
	return e.Err.Error()
}

func (e *BackendError) Unwrap() error { return e.Err }

// StoreError wraps a profile store failure other than not-found or conflict.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("profile store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// AuthError carries an identity provider failure verbatim.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return "authentication failed"
	}
	return e.Err.Error()
}

func (e *AuthError) Unwrap() error { return e.Err }

// Action tells the UI which flow an error should open.
type Action string

const (
	ActionNone          Action = ""
	ActionSignIn        Action = "sign_in"
	ActionSetCredential Action = "set_credential"
	ActionUpgrade       Action = "upgrade_plan"
	ActionRetry         Action = "retry"
)

// Problem is the user-facing rendition of an error.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Action  Action `json:"action,omitempty"`
}

// Describe maps every error kind to a distinct, actionable message.
func Describe(err error) Problem {
	var (
		backendErr *BackendError
		storeErr   *StoreError
		authErr    *AuthError
	)
	switch {
	case err == nil:
		return Problem{}
	case errors.Is(err, ErrNotAuthenticated):
		return Problem{Code: "not_authenticated", Message: "You must be logged in to generate images.", Action: ActionSignIn}
	case errors.Is(err, ErrMissingCredential):
		return Problem{Code: "missing_credential", Message: "Your API key is not set. Please set your API key to generate images.", Action: ActionSetCredential}
	case errors.Is(err, ErrEmptyPrompt):
		return Problem{Code: "empty_prompt", Message: "Prompt cannot be empty."}
	case errors.Is(err, ErrQuotaExceeded):
		return Problem{Code: "quota_exceeded", Message: "You have reached your generation limit for this plan.", Action: ActionUpgrade}
	case errors.Is(err, ErrQuotaRace):
		return Problem{Code: "quota_race", Message: "Your remaining generations changed on another device. Please try again.", Action: ActionRetry}
	case errors.Is(err, ErrVersionConflict):
		return Problem{Code: "version_conflict", Message: "Your profile was updated elsewhere. Please try again.", Action: ActionRetry}
	case errors.Is(err, ErrNoResultsReturned):
		return Problem{Code: "no_results", Message: "Failed to generate image(s). No image data received from API.", Action: ActionRetry}
	case errors.As(err, &backendErr):
		if backendErr.Credential {
			return Problem{Code: "backend_credential", Message: "Your API key was rejected: " + backendErr.Error(), Action: ActionSetCredential}
		}
		return Problem{Code: "backend_error", Message: backendErr.Error(), Action: ActionRetry}
	case errors.Is(err, ErrProfileNotFound):
		return Problem{Code: "profile_not_found", Message: "Could not load your profile from the server. Using default values. Some features might be limited.", Action: ActionRetry}
	case errors.As(err, &storeErr):
		return Problem{Code: "store_error", Message: "Could not reach the profile service: " + storeErr.Error(), Action: ActionRetry}
	case errors.As(err, &authErr):
		return Problem{Code: "auth_error", Message: authErr.Error(), Action: ActionSignIn}
	case errors.Is(err, ErrInvalidPlan):
		return Problem{Code: "invalid_plan", Message: "Unknown plan."}
	case errors.Is(err, ErrInvalidClaimCode):
		return Problem{Code: "invalid_claim_code", Message: "Invalid claim code. Please try again."}
	case errors.Is(err, ErrNotFound):
		return Problem{Code: "not_found", Message: "Not found."}
	default:
		return Problem{Code: "internal", Message: err.Error()}
	}
}
