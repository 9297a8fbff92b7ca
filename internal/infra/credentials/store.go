package credentials

import (
	"context"
	"errors"
	"strings"

	"boongle/internal/domain"
	"boongle/internal/infra"
	"boongle/internal/sqlinline"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ErrEmptyCredential rejects blank credentials on Set.
var ErrEmptyCredential = errors.New("credentials: api key is required")

// Store keeps the backend credential for one provider in integration_tokens.
type Store struct {
	sql      infra.SQLExecutor
	provider string
}

// NewStore returns a Store for provider (gemini when empty).
func NewStore(sql infra.SQLExecutor, provider string) *Store {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = ProviderGemini
	}
	return &Store{sql: sql, provider: provider}
}

// Provider returns the provider the store is scoped to.
func (s *Store) Provider() string {
	return s.provider
}

// Get returns the stored credential, or "" when none is stored.
func (s *Store) Get(ctx context.Context) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, s.provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// Set trims and stores value.
func (s *Store) Set(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyCredential
	}
	_, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, s.provider, value)
	return err
}

var _ domain.CredentialStore = (*Store)(nil)
