// Package conversation keeps the bounded per-conversation turn history in
// the durable cache, with an in-process map as fail-open fallback.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tuannvm/workitem-qa/internal/cache"
	log "github.com/tuannvm/workitem-qa/internal/logging"
	"github.com/tuannvm/workitem-qa/internal/models"
)

var (
	// ErrNotFound is returned for unknown or expired conversation ids.
	ErrNotFound = errors.New("conversation not found")
	// ErrOwnershipMismatch is returned when a caller uses another user's
	// conversation.
	ErrOwnershipMismatch = errors.New("conversation belongs to another user")
)

// MaxTurnItems bounds the work items stored with each turn.
const MaxTurnItems = 25

const lockStripes = 64

type localEntry struct {
	conv    models.ConversationContext
	expires time.Time
}

// Manager stores conversations. It is safe for concurrent use.
type Manager struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time

	mu    sync.RWMutex
	local map[string]localEntry

	// serializes writes per conversation; ids hash onto a fixed stripe set
	locks [lockStripes]sync.Mutex
}

// NewManager creates a manager. store may be nil, in which case only the
// in-process tier is used.
func NewManager(store cache.Store, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{
		store: store,
		ttl:   ttl,
		now:   time.Now,
		local: make(map[string]localEntry),
	}
}

// WithClock replaces the time source. Tests use it.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

func key(conversationID string) string {
	return cache.Key("conversation", cache.Fingerprint(conversationID))
}

// Create starts a new conversation owned by userID.
func (m *Manager) Create(ctx context.Context, userID string) (*models.ConversationContext, error) {
	now := m.now()
	conv := &models.ConversationContext{
		ConversationID: uuid.NewString(),
		UserID:         userID,
		Turns:          []models.ConversationTurn{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	m.save(ctx, conv)
	log.Debugf("Created conversation %s for user %s", conv.ConversationID, userID)
	return conv, nil
}

// Get loads a conversation, checking the durable tier first.
func (m *Manager) Get(ctx context.Context, conversationID string) (*models.ConversationContext, error) {
	if m.store != nil {
		var conv models.ConversationContext
		err := cache.GetJSON(ctx, m.store, key(conversationID), &conv)
		if err == nil {
			return &conv, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Warnf("Conversation store read failed, using local copy: %v", err)
		}
	}

	m.mu.RLock()
	entry, ok := m.local[conversationID]
	m.mu.RUnlock()
	if !ok || m.now().After(entry.expires) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, conversationID)
	}
	conv := entry.conv
	return &conv, nil
}

// GetOrCreate returns the conversation for conversationID, or a new one when
// the id is empty. Unknown ids and foreign conversations are errors.
func (m *Manager) GetOrCreate(ctx context.Context, conversationID, userID string) (*models.ConversationContext, error) {
	if conversationID == "" {
		return m.Create(ctx, userID)
	}
	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != "" && userID != "" && conv.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrOwnershipMismatch, conversationID)
	}
	return conv, nil
}

// AddTurn appends turn, evicting the oldest turns beyond models.MaxTurns, and
// persists the whole conversation in one write.
func (m *Manager) AddTurn(ctx context.Context, conversationID string, turn models.ConversationTurn) (*models.ConversationContext, error) {
	unlock := m.lock(conversationID)
	defer unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.now()
	}
	if turn.ItemCount < len(turn.WorkItems) {
		turn.ItemCount = len(turn.WorkItems)
	}
	if len(turn.WorkItems) > MaxTurnItems {
		turn.WorkItems = turn.WorkItems[:MaxTurnItems]
	}
	conv.Turns = append(conv.Turns, turn)
	if over := len(conv.Turns) - models.MaxTurns; over > 0 {
		conv.Turns = append([]models.ConversationTurn(nil), conv.Turns[over:]...)
	}
	conv.UpdatedAt = m.now()
	m.save(ctx, conv)
	return conv, nil
}

// GetRecentTurns returns the last n turns of a conversation.
func (m *Manager) GetRecentTurns(ctx context.Context, conversationID string, n int) ([]models.ConversationTurn, error) {
	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return RecentTurns(conv, n), nil
}

// HasRecentSimilarQuery reports whether the conversation saw an equivalent
// intent within window.
func (m *Manager) HasRecentSimilarQuery(ctx context.Context, conversationID string, in models.Intent, window time.Duration) bool {
	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return false
	}
	_, ok := FindSimilar(conv, in, window, m.now())
	return ok
}

// SetGlobalFilters stores filters applied to every later query.
func (m *Manager) SetGlobalFilters(ctx context.Context, conversationID string, filters *models.Filters) error {
	unlock := m.lock(conversationID)
	defer unlock()

	conv, err := m.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	conv.GlobalFilters = filters
	conv.UpdatedAt = m.now()
	m.save(ctx, conv)
	return nil
}

// Clear removes a conversation from both tiers.
func (m *Manager) Clear(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	delete(m.local, conversationID)
	m.mu.Unlock()
	if m.store == nil {
		return nil
	}
	if err := m.store.Delete(ctx, key(conversationID)); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// save writes the durable tier, falling back to the local map when the
// store is unavailable.
func (m *Manager) save(ctx context.Context, conv *models.ConversationContext) {
	if m.store != nil {
		err := cache.SetJSON(ctx, m.store, key(conv.ConversationID), conv, m.ttl)
		if err == nil {
			m.mu.Lock()
			delete(m.local, conv.ConversationID)
			m.mu.Unlock()
			return
		}
		log.Warnf("Conversation store write failed, keeping %s in process: %v", conv.ConversationID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local[conv.ConversationID] = localEntry{conv: *conv, expires: m.now().Add(m.ttl)}
	m.evictExpiredLocked()
}

func (m *Manager) evictExpiredLocked() {
	now := m.now()
	for id, e := range m.local {
		if now.After(e.expires) {
			delete(m.local, id)
		}
	}
}

func (m *Manager) lock(conversationID string) func() {
	mu := &m.locks[stripe(conversationID)]
	mu.Lock()
	return mu.Unlock
}

func stripe(conversationID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(conversationID))
	return h.Sum32() % lockStripes
}
