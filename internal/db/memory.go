package db

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/google/uuid"
)

// MemoryAccounts is an in-memory AccountRepository. One mutex guards the map;
// WithTransaction holds it for the whole callback and applies staged writes
// only when the callback succeeds.
type MemoryAccounts struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[uuid.UUID]*models.Account)}
}

func (m *MemoryAccounts) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(m.accounts[id]), nil
}

func (m *MemoryAccounts) GetByDocument(ctx context.Context, document string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(findByDocument(m.accounts, nil, document)), nil
}

func (m *MemoryAccounts) GetAllByFilter(ctx context.Context, name, document string) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return filterAccounts(m.accounts, name, document), nil
}

func (m *MemoryAccounts) Create(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if findByDocument(m.accounts, nil, account.Document()) != nil {
		return models.ErrDuplicateDocument
	}
	m.accounts[account.ID()] = cloneAccount(account)
	return nil
}

func (m *MemoryAccounts) Update(ctx context.Context, account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID()]; !ok {
		return errAccountMissing(account.ID())
	}
	m.accounts[account.ID()] = cloneAccount(account)
	return nil
}

func (m *MemoryAccounts) WithTransaction(ctx context.Context, fn func(repo models.AccountRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryAccountsTx{base: m.accounts, staged: make(map[uuid.UUID]*models.Account)}
	if err := fn(tx); err != nil {
		return err
	}
	for id, a := range tx.staged {
		m.accounts[id] = a
	}
	return nil
}

// memoryAccountsTx runs with the parent's mutex already held.
type memoryAccountsTx struct {
	base   map[uuid.UUID]*models.Account
	staged map[uuid.UUID]*models.Account
}

func (t *memoryAccountsTx) lookup(id uuid.UUID) *models.Account {
	if a, ok := t.staged[id]; ok {
		return a
	}
	return t.base[id]
}

func (t *memoryAccountsTx) merged() map[uuid.UUID]*models.Account {
	all := make(map[uuid.UUID]*models.Account, len(t.base)+len(t.staged))
	for id, a := range t.base {
		all[id] = a
	}
	for id, a := range t.staged {
		all[id] = a
	}
	return all
}

func (t *memoryAccountsTx) GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	return cloneAccount(t.lookup(id)), nil
}

func (t *memoryAccountsTx) GetByDocument(ctx context.Context, document string) (*models.Account, error) {
	return cloneAccount(findByDocument(t.base, t.staged, document)), nil
}

func (t *memoryAccountsTx) GetAllByFilter(ctx context.Context, name, document string) ([]*models.Account, error) {
	return filterAccounts(t.merged(), name, document), nil
}

func (t *memoryAccountsTx) Create(ctx context.Context, account *models.Account) error {
	if findByDocument(t.base, t.staged, account.Document()) != nil {
		return models.ErrDuplicateDocument
	}
	t.staged[account.ID()] = cloneAccount(account)
	return nil
}

func (t *memoryAccountsTx) Update(ctx context.Context, account *models.Account) error {
	if t.lookup(account.ID()) == nil {
		return errAccountMissing(account.ID())
	}
	t.staged[account.ID()] = cloneAccount(account)
	return nil
}

func (t *memoryAccountsTx) WithTransaction(ctx context.Context, fn func(repo models.AccountRepository) error) error {
	return fn(t)
}

// findByDocument looks in staged first so a staged write shadows the base copy.
func findByDocument(base, staged map[uuid.UUID]*models.Account, document string) *models.Account {
	for _, a := range staged {
		if a.Document() == document {
			return a
		}
	}
	for id, a := range base {
		if _, shadowed := staged[id]; shadowed {
			continue
		}
		if a.Document() == document {
			return a
		}
	}
	return nil
}

func filterAccounts(accounts map[uuid.UUID]*models.Account, name, document string) []*models.Account {
	name = strings.ToLower(strings.TrimSpace(name))
	document = strings.TrimSpace(document)

	out := make([]*models.Account, 0, len(accounts))
	for _, a := range accounts {
		if name != "" && !strings.Contains(strings.ToLower(a.Name()), name) {
			continue
		}
		if document != "" && a.Document() != document {
			continue
		}
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt().Equal(out[j].CreatedAt()) {
			return out[i].ID().String() < out[j].ID().String()
		}
		return out[i].CreatedAt().Before(out[j].CreatedAt())
	})
	return out
}

func cloneAccount(a *models.Account) *models.Account {
	if a == nil {
		return nil
	}
	return models.RestoreAccount(a.ID(), a.Name(), a.Document(), a.Balance(), a.CreatedAt(), a.IsActive())
}

// MemoryHistories is an in-memory AccountHistoryStore.
type MemoryHistories struct {
	mu        sync.Mutex
	histories []*models.AccountHistory
}

func NewMemoryHistories() *MemoryHistories {
	return &MemoryHistories{}
}

func (m *MemoryHistories) Create(ctx context.Context, history *models.AccountHistory) error {
	if !history.IsValid() {
		return models.ErrInvalidHistory
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append(m.histories, cloneHistory(history))
	return nil
}

func (m *MemoryHistories) GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*models.AccountHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.AccountHistory, 0)
	for i := len(m.histories) - 1; i >= 0; i-- {
		if m.histories[i].AccountID() == accountID {
			out = append(out, cloneHistory(m.histories[i]))
		}
	}
	return page(out, limit, offset), nil
}

func cloneHistory(h *models.AccountHistory) *models.AccountHistory {
	return models.RestoreAccountHistory(h.ID(), h.AccountID(), h.Document(), h.Action(), h.ResponsibleUser(), h.ActionDate())
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
