package web

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/vitrine-shop/vitrine/internal/app"
)

const (
	sessionName  = "vitrine_session"
	sessionIDKey = "sid"

	// sessionIdleTimeout drops view state nobody has touched for this long.
	sessionIdleTimeout = 12 * time.Hour

	// maxSessions bounds the controllers held in memory; the least recently
	// used one is dropped to make room.
	maxSessions = 1000
)

type sessionEntry struct {
	ctrl     *app.Controller
	lastSeen time.Time
}

// sessionManager maps the signed session cookie to one view-state
// controller per browser. View state lives only in memory and is rebuilt
// from the backend for a new session.
type sessionManager struct {
	store         sessions.Store
	newController func() *app.Controller
	logger        *slog.Logger

	mu      sync.Mutex
	entries map[string]*sessionEntry
	limit   int
	now     func() time.Time
}

func newSessionManager(store sessions.Store, newController func() *app.Controller, logger *slog.Logger) *sessionManager {
	return &sessionManager{
		store:         store,
		newController: newController,
		logger:        logger,
		entries:       make(map[string]*sessionEntry),
		limit:         maxSessions,
		now:           time.Now,
	}
}

// newCookieStore builds the signed cookie store. An empty key gets a random
// one, so sessions do not survive a restart.
func newCookieStore(key string, secure bool) *sessions.CookieStore {
	secret := []byte(key)
	if len(secret) == 0 {
		secret = []byte(uuid.NewString() + uuid.NewString())
	}
	store := sessions.NewCookieStore(secret)
	store.Options.HttpOnly = true
	store.Options.Secure = secure
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Path = "/"
	store.Options.MaxAge = int(sessionIdleTimeout / time.Second)
	return store
}

// lookup returns the controller of the caller's live session, if any.
func (m *sessionManager) lookup(r *http.Request) (*app.Controller, bool) {
	sess, _ := m.store.Get(r, sessionName)
	id, _ := sess.Values[sessionIDKey].(string)
	if id == "" {
		return nil, false
	}

	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictLocked(now)
	entry, ok := m.entries[id]
	if !ok {
		return nil, false
	}
	entry.lastSeen = now
	return entry.ctrl, true
}

// transient returns a controller loaded from the backend that belongs to no
// session. Anonymous page views render from it so they hold no memory.
func (m *sessionManager) transient(ctx context.Context, deepLink string) *app.Controller {
	ctrl := m.newController()
	// Load failures are recorded in the view state.
	_ = ctrl.Load(ctx, deepLink)
	return ctrl
}

// controller returns the caller's controller, starting a session when there
// is none. A new session's controller is loaded from the backend with
// deepLink as the requested item.
func (m *sessionManager) controller(w http.ResponseWriter, r *http.Request, deepLink string) (*app.Controller, error) {
	if ctrl, ok := m.lookup(r); ok {
		return ctrl, nil
	}

	// A cookie that fails verification yields a new empty session.
	sess, _ := m.store.Get(r, sessionName)
	id := uuid.NewString()
	entry := &sessionEntry{ctrl: m.newController(), lastSeen: m.now()}

	m.mu.Lock()
	for m.limit > 0 && len(m.entries) >= m.limit {
		m.evictOldestLocked()
	}
	m.entries[id] = entry
	m.mu.Unlock()

	sess.Values[sessionIDKey] = id
	if err := sess.Save(r, w); err != nil {
		return nil, err
	}
	m.logger.Debug("session started", "session", id)

	_ = entry.ctrl.Load(r.Context(), deepLink)
	return entry.ctrl, nil
}

// evictOldestLocked drops the least recently used session. Callers hold m.mu.
func (m *sessionManager) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, entry := range m.entries {
		if oldestID == "" || entry.lastSeen.Before(oldest) {
			oldestID, oldest = id, entry.lastSeen
		}
	}
	delete(m.entries, oldestID)
	m.logger.Debug("session evicted", "session", oldestID)
}

// evictLocked drops idle sessions. Callers hold m.mu.
func (m *sessionManager) evictLocked(now time.Time) {
	for id, entry := range m.entries {
		if now.Sub(entry.lastSeen) > sessionIdleTimeout {
			delete(m.entries, id)
		}
	}
}

// count returns the number of live sessions.
func (m *sessionManager) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
