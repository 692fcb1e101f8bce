package repo

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alltowndelivery/platform/domains/tenants/be/service"
)

// MemoryRepository is the process-local, non-durable tenant backend used when
// the durable backend is unreachable. Writes accepted here are lost on
// restart; that trade-off is owned by the failover layer.
type MemoryRepository struct {
	mu       sync.RWMutex
	byID     map[uuid.UUID]service.Tenant
	settings map[uuid.UUID][]byte
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:     make(map[uuid.UUID]service.Tenant),
		settings: make(map[uuid.UUID][]byte),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.domainTaken(t.ID, t.Subdomain, t.CustomDomain) {
		return service.Tenant{}, service.ErrDomainConflict
	}

	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	r.byID[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Get(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	return t, nil
}

func (r *MemoryRepository) Update(ctx context.Context, t service.Tenant) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[t.ID]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	if r.domainTaken(t.ID, t.Subdomain, t.CustomDomain) {
		return service.Tenant{}, service.ErrDomainConflict
	}

	t.CreatedAt = current.CreatedAt
	t.Active = current.Active
	t.UpdatedAt = time.Now().UTC()
	r.byID[t.ID] = t
	return t, nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, id uuid.UUID) (service.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.byID[id]
	if !ok {
		return service.Tenant{}, service.ErrNotFound
	}
	t.Active = false
	t.UpdatedAt = time.Now().UTC()
	r.byID[id] = t
	return t, nil
}

func (r *MemoryRepository) List(ctx context.Context, limit, offset int) ([]service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]service.Tenant, 0, len(r.byID))
	for _, t := range r.byID {
		if t.Active {
			items = append(items, t)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })

	if limit <= 0 {
		limit = 50
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end], nil
}

func (r *MemoryRepository) FindBySubdomain(ctx context.Context, subdomain string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.Subdomain != nil && strings.EqualFold(*t.Subdomain, subdomain) {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (r *MemoryRepository) FindByCustomDomain(ctx context.Context, domain string) (service.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, t := range r.byID {
		if t.CustomDomain != nil && strings.EqualFold(*t.CustomDomain, domain) {
			return t, nil
		}
	}
	return service.Tenant{}, service.ErrNotFound
}

func (r *MemoryRepository) GetSettings(ctx context.Context, tenantID uuid.UUID) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.settings[tenantID]
	if !ok {
		return nil, service.ErrNotFound
	}
	return doc, nil
}

func (r *MemoryRepository) PutSettings(ctx context.Context, tenantID uuid.UUID, document []byte) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := make([]byte, len(document))
	copy(stored, document)
	r.settings[tenantID] = stored
	return stored, nil
}

// domainTaken reports whether another tenant already owns either host key.
// Caller must hold the lock.
func (r *MemoryRepository) domainTaken(self uuid.UUID, subdomain, customDomain *string) bool {
	for id, t := range r.byID {
		if id == self {
			continue
		}
		if subdomain != nil && t.Subdomain != nil && strings.EqualFold(*t.Subdomain, *subdomain) {
			return true
		}
		if customDomain != nil && t.CustomDomain != nil && strings.EqualFold(*t.CustomDomain, *customDomain) {
			return true
		}
	}
	return false
}

// Ensure interface compliance.
var (
	_ service.Repository         = (*MemoryRepository)(nil)
	_ service.SettingsRepository = (*MemoryRepository)(nil)
)
