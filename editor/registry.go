package editor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"

	"pixelart-server/core"
	"pixelart-server/grid"
)

const (
	DefaultMaxSessions = 1000
	DefaultIdleTimeout = 24 * time.Hour
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many sessions")
	ErrGridMismatch    = errors.New("grid does not match the canvas")
)

// Registry owns the live editing sessions. Sessions idle for longer than
// the idle timeout are evicted; at most maxSessions are kept.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	config   core.CanvasConfig
	notifier Notifier

	maxSessions int
	idleTimeout time.Duration
}

type Option func(*Registry)

// WithMaxSessions caps the number of live sessions. n <= 0 removes the cap.
func WithMaxSessions(n int) Option {
	return func(r *Registry) { r.maxSessions = n }
}

// WithIdleTimeout sets how long a session may go without events before it
// is evicted. d <= 0 disables eviction.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTimeout = d }
}

func NewRegistry(cfg core.CanvasConfig, opts ...Option) *Registry {
	r := &Registry{
		sessions:    make(map[string]*Session),
		config:      cfg,
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetNotifier installs the notifier handed to sessions created afterwards.
func (r *Registry) SetNotifier(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifier = n
}

func (r *Registry) Config() core.CanvasConfig {
	return r.config
}

// Create opens a session on a blank canvas.
func (r *Registry) Create() (*Session, error) {
	cells := r.config.Cells()
	return r.add(grid.NewBlank(cells, cells, r.config.Background))
}

// CreateFrom opens a session whose initial snapshot is g, e.g. a draft
// kept by the client. g must have the canvas dimensions.
func (r *Registry) CreateFrom(g grid.Grid) (*Session, error) {
	cells := r.config.Cells()
	if g.Cols() != cells || g.Rows() != cells {
		return nil, fmt.Errorf("%w: got %dx%d, want %dx%d", ErrGridMismatch, g.Cols(), g.Rows(), cells, cells)
	}
	return r.add(g)
}

func (r *Registry) add(initial grid.Grid) (*Session, error) {
	id := ulid.Make().String()

	r.mu.Lock()
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.evictLocked(time.Now())
	}
	if r.maxSessions > 0 && len(r.sessions) >= r.maxSessions {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManySessions, r.maxSessions)
	}
	s := newSession(id, r.config, initial, r.notifier)
	r.sessions[id] = s
	r.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": id,
		"cells":      r.config.Cells(),
	}).Info("Session created")
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

func (r *Registry) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	logrus.WithField("session_id", id).Info("Session closed")
	return nil
}

// EvictIdle closes every session whose last event is older than the idle
// timeout at now. It returns the number of sessions closed.
func (r *Registry) EvictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.evictLocked(now)
}

func (r *Registry) evictLocked(now time.Time) int {
	if r.idleTimeout <= 0 {
		return 0
	}
	evicted := 0
	for id, s := range r.sessions {
		state := s.State()
		if now.Sub(state.UpdatedAt) <= r.idleTimeout {
			continue
		}
		delete(r.sessions, id)
		evicted++
		logrus.WithFields(logrus.Fields{
			"session_id": id,
			"age":        now.Sub(state.CreatedAt).Round(time.Second),
			"history":    state.Length,
		}).Info("Idle session evicted")
	}
	return evicted
}

// Run evicts idle sessions every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := r.EvictIdle(now); n > 0 {
				logrus.WithField("remaining", r.Count()).Debugf("Evicted %d idle sessions", n)
			}
		}
	}
}

// List returns the IDs of all live sessions, oldest first.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
