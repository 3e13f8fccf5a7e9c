package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"resumerag/internal/domain"
	"resumerag/internal/logging"
	"resumerag/internal/metrics"
	"resumerag/internal/spool"
)

const (
	DefaultTTL                = 30 * time.Minute
	DefaultSweepInterval      = 60 * time.Second
	DefaultTombstoneRetention = 24 * time.Hour
)

// Removal reasons reported in logs and metrics.
const (
	ReasonTTL      = "ttl"
	ReasonExplicit = "explicit"
	ReasonShutdown = "shutdown"
)

// Option configures a Manager.
type Option func(*Manager)

func WithTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.ttl = d
		}
	}
}

func WithSweepInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.sweepInterval = d
		}
	}
}

func WithTombstoneRetention(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.tombstoneRetention = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithSpool keeps a copy of each uploaded document for the life of its session.
func WithSpool(s *spool.Spool) Option {
	return func(m *Manager) { m.spool = s }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l arbor.ILogger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Manager is the only component that creates, touches or destroys sessions.
type Manager struct {
	ingester           Ingester
	ttl                time.Duration
	sweepInterval      time.Duration
	tombstoneRetention time.Duration
	now                func() time.Time
	spool              *spool.Spool
	metrics            *metrics.Metrics
	logger             arbor.ILogger

	mu         sync.RWMutex
	sessions   map[string]*Session
	tombstones map[string]time.Time

	cronMu sync.Mutex
	cron   *cron.Cron
}

func NewManager(ingester Ingester, opts ...Option) *Manager {
	m := &Manager{
		ingester:           ingester,
		ttl:                DefaultTTL,
		sweepInterval:      DefaultSweepInterval,
		tombstoneRetention: DefaultTombstoneRetention,
		now:                time.Now,
		logger:             logging.Discard(),
		sessions:           make(map[string]*Session),
		tombstones:         make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TTL returns the inactivity period after which sessions expire.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Create ingests doc and registers a new active session. Nothing is registered on failure.
func (m *Manager) Create(ctx context.Context, doc domain.Document) (Info, error) {
	id := uuid.NewString()
	if m.spool != nil {
		if _, err := m.spool.Put(ctx, id, doc.Data); err != nil {
			m.metrics.IngestionDone(domain.CodeOf(err))
			return Info{}, err
		}
	}

	idx, pages, err := m.ingester.Ingest(ctx, doc.Data)
	if err != nil {
		m.discardSpool(id)
		m.metrics.IngestionDone(domain.CodeOf(err))
		m.logger.Warn().Str("document", doc.Name).Str("code", domain.CodeOf(err)).Err(err).Msg("Ingestion rejected")
		return Info{}, err
	}

	now := m.now()
	s := &Session{id: id, createdAt: now, ttl: m.ttl, pages: pages, index: idx, name: doc.Name}
	s.touch(now)

	m.mu.Lock()
	m.sessions[id] = s
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.IngestionDone("ok")
	m.metrics.SetSessionsActive(count)
	m.logger.Info().
		Str("session_id", id).
		Str("document", doc.Name).
		Int("pages", s.PageCount()).
		Int("chunks", s.ChunkCount()).
		Msg("Session created")
	return s.Info(), nil
}

// lookup resolves id in the registry without touching it.
func (m *Manager) lookup(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	_, dead := m.tombstones[id]
	m.mu.RUnlock()
	if !ok {
		if dead {
			return nil, fmt.Errorf("%w: %s", domain.ErrSessionExpired, id)
		}
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	return s, nil
}

// Get returns the active session for id without refreshing it.
func (m *Manager) Get(id string) (*Session, error) {
	s, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if s.expired(m.now()) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionExpired, id)
	}
	return s, nil
}

// View runs fn against the session while holding its read lock, so the session cannot be
// destroyed underneath it. The access time is left unchanged.
func (m *Manager) View(id string, fn func(*Session) error) error {
	s, err := m.lookup(id)
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.destroyed || s.expired(m.now()) {
		return fmt.Errorf("%w: %s", domain.ErrSessionExpired, id)
	}
	return fn(s)
}

// Use is View followed by a refresh of the access time when fn succeeds.
func (m *Manager) Use(id string, fn func(*Session) error) error {
	return m.View(id, func(s *Session) error {
		if err := fn(s); err != nil {
			return err
		}
		s.touch(m.now())
		return nil
	})
}

// Touch refreshes the access time of an active session.
func (m *Manager) Touch(id string) error {
	return m.Use(id, func(*Session) error { return nil })
}

// Status reports the state of id, refreshing it when active.
func (m *Manager) Status(id string) State {
	err := m.Touch(id)
	switch {
	case err == nil:
		return StateActive
	case errors.Is(err, domain.ErrSessionExpired):
		return StateExpired
	default:
		return StateNotFound
	}
}

// Destroy releases the session's index and spooled document. Unknown or already
// destroyed ids are a no-op.
func (m *Manager) Destroy(id string) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	m.remove(s, ReasonExplicit, false)
}

// remove destroys s under its write lock, waiting for in-flight readers. With onlyIfExpired
// set, a session touched since it was selected is left alone. It reports whether s was removed.
func (m *Manager) remove(s *Session, reason string, onlyIfExpired bool) bool {
	s.mu.Lock()
	if s.destroyed || (onlyIfExpired && !s.expired(m.now())) {
		s.mu.Unlock()
		return false
	}
	s.destroyed = true
	closeErr := s.index.Close()
	s.mu.Unlock()

	m.discardSpool(s.id)

	m.mu.Lock()
	if m.sessions[s.id] == s {
		delete(m.sessions, s.id)
	}
	m.tombstones[s.id] = m.now()
	count := len(m.sessions)
	m.mu.Unlock()

	m.metrics.SessionRemoved(reason)
	m.metrics.SetSessionsActive(count)
	ev := m.logger.Info()
	if closeErr != nil {
		ev = m.logger.Warn().Err(closeErr)
	}
	ev.Str("session_id", s.id).Str("reason", reason).Msg("Session destroyed")
	return true
}

func (m *Manager) discardSpool(id string) {
	if m.spool == nil {
		return
	}
	if err := m.spool.Remove(context.Background(), id); err != nil {
		m.logger.Warn().Str("session_id", id).Err(err).Msg("Failed to remove spooled document")
	}
}

// Sweep destroys every session whose TTL has elapsed and prunes old tombstones.
// It returns the number of sessions removed.
func (m *Manager) Sweep() int {
	now := m.now()
	var candidates []*Session
	m.mu.Lock()
	for _, s := range m.sessions {
		if s.expired(now) {
			candidates = append(candidates, s)
		}
	}
	pruned := 0
	for id, at := range m.tombstones {
		if now.Sub(at) > m.tombstoneRetention {
			delete(m.tombstones, id)
			pruned++
		}
	}
	m.mu.Unlock()

	removed := 0
	for _, s := range candidates {
		if m.remove(s, ReasonTTL, true) {
			removed++
		}
	}
	if removed > 0 || pruned > 0 {
		m.logger.Info().Int("expired", removed).Int("tombstones_pruned", pruned).Int("active", m.Count()).Msg("Session sweep completed")
	}
	return removed
}

// Count returns the number of registered sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Start runs Sweep every sweep interval until Stop is called or ctx is done.
func (m *Manager) Start(ctx context.Context) error {
	m.cronMu.Lock()
	defer m.cronMu.Unlock()
	if m.cron != nil {
		return nil
	}
	c := cron.New()
	schedule := fmt.Sprintf("@every %s", m.sweepInterval)
	if _, err := c.AddFunc(schedule, func() { m.Sweep() }); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()
	m.cron = c
	m.logger.Info().Str("interval", m.sweepInterval.String()).Str("ttl", m.ttl.String()).Msg("Session sweeper started")
	go func() {
		<-ctx.Done()
		m.Stop()
	}()
	return nil
}

// Stop halts the sweeper and waits for a running sweep to finish.
func (m *Manager) Stop() {
	m.cronMu.Lock()
	c := m.cron
	m.cron = nil
	m.cronMu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	m.logger.Info().Msg("Session sweeper stopped")
}

// Close stops the sweeper and destroys every session.
func (m *Manager) Close() {
	m.Stop()
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()
	for _, s := range all {
		m.remove(s, ReasonShutdown, false)
	}
}
