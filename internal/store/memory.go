// AngelaMos | 2026
// memory.go

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carterperez-dev/n8n-mcp-gateway/internal/core"
)

// MemoryStore is a process-local Store for tests and single-process
// development. Values are copied in and out so callers never share state.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]User
	connections map[string]Connection
	apiKeys     map[string]APIKey
	plans       map[string]Plan
	usageLogs   []UsageLog
	monthly     map[string]UsageMonthly
}

func NewMemoryStore() *MemoryStore {
	m := &MemoryStore{
		users:       make(map[string]User),
		connections: make(map[string]Connection),
		apiKeys:     make(map[string]APIKey),
		plans:       make(map[string]Plan),
		monthly:     make(map[string]UsageMonthly),
	}
	for _, p := range DefaultPlans {
		m.plans[p.ID] = p
	}
	return m
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) CreateUser(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.ID == u.ID || existing.Email == u.Email {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
		if u.HasOAuth() && existing.HasOAuth() &&
			*existing.OAuthProvider == *u.OAuthProvider &&
			*existing.OAuthID == *u.OAuthID {
			return fmt.Errorf("create user: %w", core.ErrDuplicateKey)
		}
	}

	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if u.PlanID == "" {
		u.PlanID = DefaultPlanID
	}
	m.users[u.ID] = *u
	return nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, fmt.Errorf("get user: %w", core.ErrNotFound)
	}
	return &u, nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user by email: %w", core.ErrNotFound)
}

func (m *MemoryStore) GetUserByOAuth(_ context.Context, provider, oauthID string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, u := range m.users {
		if u.HasOAuth() && *u.OAuthProvider == provider && *u.OAuthID == oauthID {
			return &u, nil
		}
	}
	return nil, fmt.Errorf("get user by oauth: %w", core.ErrNotFound)
}

func (m *MemoryStore) updateUser(id string, fn func(u *User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return fmt.Errorf("update user: %w", core.ErrNotFound)
	}
	fn(&u)
	u.UpdatedAt = time.Now().UTC()
	m.users[id] = u
	return nil
}

func (m *MemoryStore) UpdateUserPassword(_ context.Context, id, passwordHash string) error {
	return m.updateUser(id, func(u *User) { u.PasswordHash = &passwordHash })
}

func (m *MemoryStore) UpdateUserPlan(_ context.Context, id, planID string) error {
	return m.updateUser(id, func(u *User) { u.PlanID = planID })
}

func (m *MemoryStore) SetUserTOTP(_ context.Context, id string, secret *string, enabled bool) error {
	return m.updateUser(id, func(u *User) {
		u.TOTPSecret = secret
		u.TOTPEnabled = enabled
	})
}

func (m *MemoryStore) DeleteUser(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[id]; !ok {
		return fmt.Errorf("delete user: %w", core.ErrNotFound)
	}
	delete(m.users, id)

	for cid, c := range m.connections {
		if c.UserID == id {
			delete(m.connections, cid)
		}
	}
	for kid, k := range m.apiKeys {
		if k.UserID == id {
			delete(m.apiKeys, kid)
		}
	}
	for key, u := range m.monthly {
		if u.UserID == id {
			delete(m.monthly, key)
		}
	}
	kept := m.usageLogs[:0]
	for _, l := range m.usageLogs {
		if l.UserID != id {
			kept = append(kept, l)
		}
	}
	m.usageLogs = kept
	return nil
}

func (m *MemoryStore) CountUsers(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *MemoryStore) CreateConnection(_ context.Context, c *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.insertConnection(c)
}

func (m *MemoryStore) CreateConnectionWithinLimit(_ context.Context, c *Connection, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, existing := range m.connections {
		if existing.UserID == c.UserID {
			n++
		}
	}
	if n >= limit {
		return fmt.Errorf("create connection: %w", core.ErrConnectionLimit)
	}
	return m.insertConnection(c)
}

// insertConnection requires m.mu held for writing.
func (m *MemoryStore) insertConnection(c *Connection) error {
	if _, ok := m.users[c.UserID]; !ok {
		return fmt.Errorf("create connection: %w", core.ErrNotFound)
	}
	if _, ok := m.connections[c.ID]; ok {
		return fmt.Errorf("create connection: %w", core.ErrDuplicateKey)
	}

	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	if c.Status == "" {
		c.Status = ConnectionStatusUntested
	}
	m.connections[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetConnection(_ context.Context, id string) (*Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.connections[id]
	if !ok {
		return nil, fmt.Errorf("get connection: %w", core.ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryStore) ListConnections(_ context.Context, userID string) ([]Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Connection, 0)
	for _, c := range m.connections {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) UpdateConnection(_ context.Context, c *Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.connections[c.ID]
	if !ok {
		return fmt.Errorf("update connection: %w", core.ErrNotFound)
	}
	existing.Name = c.Name
	existing.N8NURL = c.N8NURL
	existing.N8NAPIKeyEncrypted = c.N8NAPIKeyEncrypted
	existing.Status = c.Status
	existing.UpdatedAt = time.Now().UTC()
	c.UpdatedAt = existing.UpdatedAt
	m.connections[c.ID] = existing
	return nil
}

func (m *MemoryStore) UpdateConnectionStatus(_ context.Context, id, status string, testedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.connections[id]
	if !ok {
		return fmt.Errorf("update connection status: %w", core.ErrNotFound)
	}
	t := testedAt.UTC()
	c.Status = status
	c.LastTestedAt = &t
	c.UpdatedAt = time.Now().UTC()
	m.connections[id] = c
	return nil
}

func (m *MemoryStore) DeleteConnection(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[id]; !ok {
		return fmt.Errorf("delete connection: %w", core.ErrNotFound)
	}
	delete(m.connections, id)

	for kid, k := range m.apiKeys {
		if k.ConnectionID != nil && *k.ConnectionID == id {
			k.ConnectionID = nil
			m.apiKeys[kid] = k
		}
	}
	return nil
}

func (m *MemoryStore) CreateAPIKey(_ context.Context, k *APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.apiKeys {
		if existing.ID == k.ID || existing.KeyPrefix == k.KeyPrefix {
			return fmt.Errorf("create api key: %w", core.ErrDuplicateKey)
		}
	}

	k.CreatedAt = time.Now().UTC()
	if k.Status == "" {
		k.Status = APIKeyStatusActive
	}
	if k.Scopes == "" {
		k.Scopes = "[]"
	}
	m.apiKeys[k.ID] = *k
	return nil
}

func (m *MemoryStore) GetAPIKey(_ context.Context, id string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k, ok := m.apiKeys[id]
	if !ok {
		return nil, fmt.Errorf("get api key: %w", core.ErrNotFound)
	}
	return &k, nil
}

func (m *MemoryStore) GetAPIKeyByPrefix(_ context.Context, prefix string) (*APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range m.apiKeys {
		if k.KeyPrefix == prefix {
			return &k, nil
		}
	}
	return nil, fmt.Errorf("get api key by prefix: %w", core.ErrNotFound)
}

func (m *MemoryStore) ListAPIKeys(_ context.Context, userID string) ([]APIKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]APIKey, 0)
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryStore) updateAPIKey(id string, fn func(k *APIKey)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k, ok := m.apiKeys[id]
	if !ok {
		return fmt.Errorf("update api key: %w", core.ErrNotFound)
	}
	fn(&k)
	m.apiKeys[id] = k
	return nil
}

func (m *MemoryStore) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	t := at.UTC()
	return m.updateAPIKey(id, func(k *APIKey) { k.LastUsedAt = &t })
}

func (m *MemoryStore) RevokeAPIKey(_ context.Context, id string) error {
	return m.updateAPIKey(id, func(k *APIKey) { k.Status = APIKeyStatusRevoked })
}

func (m *MemoryStore) DeleteAPIKey(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apiKeys[id]; !ok {
		return fmt.Errorf("delete api key: %w", core.ErrNotFound)
	}
	delete(m.apiKeys, id)
	return nil
}

func (m *MemoryStore) GetPlan(_ context.Context, id string) (*Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.plans[id]
	if !ok {
		return nil, fmt.Errorf("get plan: %w", core.ErrNotFound)
	}
	return &p, nil
}

func (m *MemoryStore) ListPlans(context.Context) ([]Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Plan, 0, len(m.plans))
	for _, p := range m.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceCents < out[j].PriceCents })
	return out, nil
}

// PutPlan adds or replaces a plan.
func (m *MemoryStore) PutPlan(p Plan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[p.ID] = p
}

func (m *MemoryStore) InsertUsageLog(_ context.Context, l *UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	m.usageLogs = append(m.usageLogs, *l)
	return nil
}

func (m *MemoryStore) IncrementMonthlyUsage(_ context.Context, userID, yearMonth string, success bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := userID + "|" + yearMonth
	row := m.monthly[key]
	row.UserID, row.YearMonth = userID, yearMonth
	row.RequestCount++
	if success {
		row.SuccessCount++
	} else {
		row.ErrorCount++
	}
	m.monthly[key] = row
	return nil
}

func (m *MemoryStore) GetMonthlyUsage(_ context.Context, userID, yearMonth string) (*UsageMonthly, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.monthly[userID+"|"+yearMonth]
	if !ok {
		return &UsageMonthly{UserID: userID, YearMonth: yearMonth}, nil
	}
	return &row, nil
}

func (m *MemoryStore) CountUsageSince(_ context.Context, userID string, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, l := range m.usageLogs {
		if l.UserID == userID && !l.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) ListRecentUsage(_ context.Context, userID string, limit int) ([]UsageLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]UsageLog, 0)
	for i := len(m.usageLogs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.usageLogs[i].UserID == userID {
			out = append(out, m.usageLogs[i])
		}
	}
	return out, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*SQLStore)(nil)
)
