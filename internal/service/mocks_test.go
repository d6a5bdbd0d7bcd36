package service

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/secure-auth-api/internal/models"
)

// In-memory repository fakes shared by the service tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	repo := &memUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
		repo.users[u.ID] = u
	}
	return repo
}

func (m *memUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memUserRepo) Create(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	copied := *user
	m.users[user.ID] = &copied
	return nil
}

func (m *memUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

func (m *memUserRepo) UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (m *memUserRepo) MarkEmailVerified(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.EmailVerified = true
	}
	return nil
}

func (m *memUserRepo) IncrementFailedAttempts(ctx context.Context, id string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, sql.ErrNoRows
	}
	u.FailedAttempts++
	return u.FailedAttempts, nil
}

func (m *memUserRepo) ResetFailedAttempts(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.FailedAttempts = 0
	}
	return nil
}

func (m *memUserRepo) SetLocked(ctx context.Context, id string, locked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.Locked = locked
	}
	return nil
}

func (m *memUserRepo) SetMFAEnabled(ctx context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		u.MFAEnabled = enabled
	}
	return nil
}

func (m *memUserRepo) CountByStatus(ctx context.Context) (int, int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var total, active, locked int
	for _, u := range m.users {
		total++
		if u.Active {
			active++
		}
		if u.Locked {
			locked++
		}
	}
	return total, active, locked, nil
}

type memDeviceRepo struct {
	mu       sync.Mutex
	devices  map[string]*models.Device
	settings map[string]*models.DeviceTrustSettings
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{
		devices:  make(map[string]*models.Device),
		settings: make(map[string]*models.DeviceTrustSettings),
	}
}

func (m *memDeviceRepo) FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range m.devices {
		if d.UserID == userID && d.Fingerprint == fingerprint {
			copied := *d
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memDeviceRepo) FindByID(ctx context.Context, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memDeviceRepo) Create(ctx context.Context, device *models.Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	copied := *device
	m.devices[device.ID] = &copied
	return nil
}

func (m *memDeviceRepo) UpdateTrustState(ctx context.Context, id string, from, to models.DeviceTrustState) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok || d.TrustState != from {
		return false, nil
	}
	d.TrustState = to
	return true, nil
}

func (m *memDeviceRepo) TouchLastSeen(ctx context.Context, id string, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.LastSeenAt = ts
	}
	return nil
}

func (m *memDeviceRepo) ListByUser(ctx context.Context, userID string) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Device
	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memDeviceRepo) ListByUserAndState(ctx context.Context, userID string, state models.DeviceTrustState) ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Device
	for _, d := range m.devices {
		if d.UserID == userID && d.TrustState == state {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memDeviceRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, d := range m.devices {
		if d.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *memDeviceRepo) CountByState(ctx context.Context) (map[models.DeviceTrustState]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[models.DeviceTrustState]int)
	for _, d := range m.devices {
		counts[d.TrustState]++
	}
	return counts, nil
}

func (m *memDeviceRepo) GetTrustSettings(ctx context.Context, userID string) (*models.DeviceTrustSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.settings[userID]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memDeviceRepo) UpsertTrustSettings(ctx context.Context, settings *models.DeviceTrustSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *settings
	m.settings[settings.UserID] = &copied
	return nil
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*models.Session)}
}

func (m *memSessionRepo) Create(ctx context.Context, session *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *memSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *memSessionRepo) ListActiveByUser(ctx context.Context, userID string) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	var out []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID && !s.Revoked && now.Before(s.ExpiresAt) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionRepo) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok && !s.Revoked {
		s.Revoked = true
		s.RevokedAt = &revokedAt
	}
	return nil
}

func (m *memSessionRepo) RevokeAllByUser(ctx context.Context, userID, exceptID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.ID != exceptID && !s.Revoked {
			s.Revoked = true
			s.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memSessionRepo) CountActive(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	count := 0
	for _, s := range m.sessions {
		if !s.Revoked && now.Before(s.ExpiresAt) {
			count++
		}
	}
	return count, nil
}

type memTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]*models.RefreshToken
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: make(map[string]*models.RefreshToken)}
}

func (m *memTokenRepo) Create(ctx context.Context, token *models.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	copied := *token
	m.tokens[token.ID] = &copied
	return nil
}

func (m *memTokenRepo) FindByHash(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			copied := *t
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *memTokenRepo) Consume(ctx context.Context, id string, consumedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	if !ok || t.ConsumedAt != nil || t.Revoked {
		return false, nil
	}
	t.ConsumedAt = &consumedAt
	return true, nil
}

func (m *memTokenRepo) RevokeChain(ctx context.Context, chainID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.ChainID == chainID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memTokenRepo) RevokeBySession(ctx context.Context, sessionID string, revokedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.tokens {
		if t.SessionID == sessionID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *memTokenRepo) activeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, t := range m.tokens {
		if t.ConsumedAt == nil && !t.Revoked {
			count++
		}
	}
	return count
}

type memChallengeRepo struct {
	mu         sync.Mutex
	challenges map[string]*models.Challenge
}

func newMemChallengeRepo() *memChallengeRepo {
	return &memChallengeRepo{challenges: make(map[string]*models.Challenge)}
}

func (m *memChallengeRepo) Create(ctx context.Context, challenge *models.Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *challenge
	m.challenges[challenge.Token] = &copied
	return nil
}

func (m *memChallengeRepo) FindByToken(ctx context.Context, token string, purpose models.ChallengePurpose) (*models.Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[token]
	if !ok || c.Purpose != purpose {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (m *memChallengeRepo) IncrementAttempts(ctx context.Context, token string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[token]
	if !ok {
		return 0, sql.ErrNoRows
	}
	c.Attempts++
	return c.Attempts, nil
}

func (m *memChallengeRepo) Consume(ctx context.Context, token string, consumedAt time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.challenges[token]
	if !ok || c.ConsumedAt != nil {
		return false, nil
	}
	c.ConsumedAt = &consumedAt
	return true, nil
}

func (m *memChallengeRepo) InvalidateByUser(ctx context.Context, userID string, purpose models.ChallengePurpose, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.challenges {
		if c.UserID == userID && c.Purpose == purpose && c.ConsumedAt == nil {
			c.ConsumedAt = &ts
		}
	}
	return nil
}

type memAuditRepo struct {
	mu     sync.Mutex
	events []models.SecurityEvent
}

func (m *memAuditRepo) Append(ctx context.Context, event *models.SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memAuditRepo) RecentHighRisk(ctx context.Context, since time.Time) ([]models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SecurityEvent
	for _, e := range m.events {
		if e.HighRisk && !e.CreatedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memAuditRepo) CountSince(ctx context.Context, since time.Time) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range m.events {
		if !e.CreatedAt.Before(since) {
			counts[e.Action+":"+e.Outcome]++
		}
	}
	return counts, nil
}

func (m *memAuditRepo) hasEvent(action, outcome string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.Action == action && e.Outcome == outcome {
			return true
		}
	}
	return false
}
