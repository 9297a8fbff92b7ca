package image

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"boongle/internal/domain"
	"boongle/internal/providers/genai"
)

var credentialCodes = map[string]struct{}{
	"api_key_invalid":   {},
	"invalid_api_key":   {},
	"permission_denied": {},
	"unauthenticated":   {},
}

// Classify turns a provider failure into a domain.BackendError, flagging the
// ones caused by a missing or rejected credential. Context errors pass
// through untouched.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var backendErr *domain.BackendError
	if errors.As(err, &backendErr) {
		return backendErr
	}

	out := &domain.BackendError{Err: err}
	var (
		geminiErr *genai.APIError
		openaiErr *openai.APIError
		reqErr    *openai.RequestError
	)
	switch {
	case errors.Is(err, genai.ErrMissingAPIKey), errors.Is(err, domain.ErrMissingCredential):
		out.Credential = true
		return out
	case errors.As(err, &geminiErr):
		out.Status = geminiErr.Status
		out.Code = geminiErr.Code
	case errors.As(err, &openaiErr):
		out.Status = openaiErr.HTTPStatusCode
		if openaiErr.Code != nil {
			out.Code = fmt.Sprint(openaiErr.Code)
		}
	case errors.As(err, &reqErr):
		out.Status = reqErr.HTTPStatusCode
	}
	out.Credential = isCredentialFailure(out.Status, out.Code, err.Error())
	return out
}

func isCredentialFailure(status int, code, message string) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	if _, ok := credentialCodes[strings.ToLower(code)]; ok {
		return true
	}
	return strings.Contains(strings.ToLower(message), "api key")
}
