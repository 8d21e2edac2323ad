package assistant

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"dorian/pkg/ai"
)

// DefaultSessionID is used when the caller does not name a conversation.
// Every such caller shares one history.
const DefaultSessionID = "default"

const (
	defaultSessionTTL     = time.Hour
	sessionCleanupPeriod  = 10 * time.Minute
	defaultSessionHistory = 20
)

// chatHandle is one conversation. turnMu keeps turns of the same session
// from interleaving, including the rate-limit retry.
type chatHandle struct {
	turnMu sync.Mutex
	chat   *ai.ChatSession
}

// SessionRegistry maps session ids to chat handles. Entries idle for
// longer than the TTL are evicted.
type SessionRegistry struct {
	mu       sync.Mutex
	items    *cache.Cache
	gen      ai.ChatGenerator
	maxTurns int
}

// NewSessionRegistry creates a registry whose sessions talk to gen.
// ttl <= 0 uses one hour; maxTurns <= 0 keeps the last 20 exchanges.
func NewSessionRegistry(gen ai.ChatGenerator, ttl time.Duration, maxTurns int) *SessionRegistry {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	cleanup := sessionCleanupPeriod
	if ttl < cleanup {
		cleanup = ttl
	}
	if maxTurns <= 0 {
		maxTurns = defaultSessionHistory
	}
	return &SessionRegistry{
		items:    cache.New(ttl, cleanup),
		gen:      gen,
		maxTurns: maxTurns,
	}
}

// get returns the handle for id, creating it on first use. Each access
// renews the entry's expiry.
func (r *SessionRegistry) get(id string) *chatHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := r.items.Get(id); ok {
		h := v.(*chatHandle)
		r.items.SetDefault(id, h)
		return h
	}
	h := &chatHandle{chat: ai.NewChatSession(r.gen, baseInstruction, r.maxTurns)}
	r.items.SetDefault(id, h)
	return h
}

// Len returns the number of live sessions.
func (r *SessionRegistry) Len() int {
	return r.items.ItemCount()
}
