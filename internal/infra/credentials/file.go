package credentials

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"boongle/internal/domain"
	"boongle/internal/storage"
)

// FileStore keeps the credential in a private file under the state directory.
type FileStore struct {
	files *storage.FileStore
	key   string
}

// NewFileStore stores the provider's credential at <state>/credentials/<provider>.key.
func NewFileStore(files *storage.FileStore, provider string) *FileStore {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = ProviderGemini
	}
	return &FileStore{files: files, key: "credentials/" + provider + ".key"}
}

// Get returns the stored credential, or "" when the file does not exist.
func (s *FileStore) Get(ctx context.Context) (string, error) {
	data, err := s.files.Read(ctx, s.key)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// Set trims and writes value with owner-only permissions.
func (s *FileStore) Set(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmptyCredential
	}
	_, err := s.files.WritePrivate(ctx, s.key, []byte(value))
	return err
}

var _ domain.CredentialStore = (*FileStore)(nil)
