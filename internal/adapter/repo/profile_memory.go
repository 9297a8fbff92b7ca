package repo

import (
	"context"
	"strings"
	"sync"
	"time"

	"boongle/internal/domain"
)

// ProfileRepositoryMemory implements domain.ProfileStore in process memory.
// It backs local mode and tests.
type ProfileRepositoryMemory struct {
	mu       sync.Mutex
	profiles map[string]domain.Profile
	now      func() time.Time
}

// NewProfileRepositoryMemory creates an empty in-memory store.
func NewProfileRepositoryMemory() *ProfileRepositoryMemory {
	return &ProfileRepositoryMemory{
		profiles: make(map[string]domain.Profile),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Put stores p as-is, replacing any existing record.
func (r *ProfileRepositoryMemory) Put(p domain.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	r.profiles[p.ID] = p
}

// Ensure creates a FREE record for userID when none exists, the way the
// hosted store's sign-up trigger does.
func (r *ProfileRepositoryMemory) Ensure(userID, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[userID]; ok {
		return
	}
	// Stale stamps: the first load runs the reset and fills the counters.
	r.profiles[userID] = domain.Profile{
		ID:         userID,
		Email:      email,
		ActivePlan: domain.PlanFree,
		Version:    1,
		UpdatedAt:  r.now(),
	}
}

// Fetch returns a copy of the record for userID.
func (r *ProfileRepositoryMemory) Fetch(ctx context.Context, userID string) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "fetch", Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[strings.TrimSpace(userID)]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return &p, nil
}

// Update applies patch atomically, honouring patch.IfVersion.
func (r *ProfileRepositoryMemory) Update(ctx context.Context, userID string, patch domain.ProfilePatch) (*domain.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, &domain.StoreError{Op: "update", Err: err}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[strings.TrimSpace(userID)]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	if patch.IfVersion != nil && *patch.IfVersion != p.Version {
		return nil, domain.ErrVersionConflict
	}
	if patch.Empty() {
		return &p, nil
	}
	p = patch.Apply(p)
	p.Version++
	p.UpdatedAt = r.now()
	r.profiles[p.ID] = p
	return &p, nil
}

var _ domain.ProfileStore = (*ProfileRepositoryMemory)(nil)
