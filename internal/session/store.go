// Package session keeps a bounded, expiring registry of session working
// directories.
//
// The map is guarded by a single mutex that is held only around metadata
// reads and mutations, and around the rename that retires a cleared
// directory. Directory creation, recursive removal, subscriber fan-out and
// lifecycle hooks run outside it, so slow filesystem work for one session
// never blocks callers working on another.
package session

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"code-sandbox/internal/runner"
)

const (
	// DefaultTTL is how long an untouched session survives.
	DefaultTTL = 3600 * time.Second
	// DefaultMaxSessions bounds the registry; creating beyond it evicts the
	// least recently accessed sessions.
	DefaultMaxSessions = 100
	// DefaultPrefix names session directories <prefix>-<id>.
	DefaultPrefix = "mcp-session"

	defaultEventCapacity    = 1000
	defaultSubscriberBufCap = 100
)

var (
	// ErrNotFound is returned for unknown or expired session ids.
	ErrNotFound = errors.New("session not found")
	// ErrInvalidID is returned for ids that cannot name a directory.
	ErrInvalidID = errors.New("invalid session id")
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// Logger receives best-effort cleanup failures.
type Logger interface {
	Printf(format string, args ...any)
}

// Hook observes session lifecycle changes. Hooks run outside the store lock.
type Hook func(Session)

// Store owns session records and their directories. The zero value is not
// usable; construct with NewStore.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*record
	seq      uint64

	baseDir     string
	prefix      string
	ttl         time.Duration
	maxSessions int
	eventCap    int
	now         func() time.Time
	onCreate    Hook
	onRemove    Hook
	logger      Logger
}

type record struct {
	session Session
	seq     uint64
	events  *RingBuffer[Event]

	subMu       sync.RWMutex
	subscribers map[string]chan Event
}

// Option configures a Store.
type Option func(*Store)

// WithBaseDir sets the parent directory of session directories.
func WithBaseDir(dir string) Option {
	return func(s *Store) {
		if dir != "" {
			s.baseDir = dir
		}
	}
}

// WithPrefix sets the directory name prefix.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the idle expiry.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithMaxSessions sets the capacity.
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithEventCapacity sets how many events are kept per session.
func WithEventCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.eventCap = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithHooks registers lifecycle observers. Either may be nil.
func WithHooks(onCreate, onRemove Hook) Option {
	return func(s *Store) {
		s.onCreate = onCreate
		s.onRemove = onRemove
	}
}

// WithLogger replaces the standard logger.
func WithLogger(l Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]*record),
		baseDir:     os.TempDir(),
		prefix:      DefaultPrefix,
		ttl:         DefaultTTL,
		maxSessions: DefaultMaxSessions,
		eventCap:    defaultEventCapacity,
		now:         time.Now,
		logger:      log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewID returns a random 16 hex character session id.
func NewID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// Dir returns the directory a session with id lives in.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.baseDir, s.prefix+"-"+id)
}

// Create registers a session and creates its directory tree. An empty id
// generates one. Creating an existing id returns it unchanged. Expired
// sessions are removed and, at capacity, the least recently accessed are
// evicted first.
func (s *Store) Create(id string) (string, error) {
	if id != "" && !validID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	s.expire()
	s.enforceLimit()

	if id == "" {
		id = NewID()
	}

	s.mu.Lock()
	_, exists := s.sessions[id]
	s.mu.Unlock()
	if exists {
		return id, nil
	}

	dir := s.Dir(id)
	for _, sub := range []string{"data", "output"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create session directory: %w", err)
		}
	}

	now := s.now()
	s.mu.Lock()
	if _, exists := s.sessions[id]; exists {
		// Lost a race with a concurrent Create of the same id.
		s.mu.Unlock()
		return id, nil
	}
	s.seq++
	rec := &record{
		session: Session{
			ID:             id,
			Dir:            dir,
			CreatedAt:      now,
			LastAccessedAt: now,
		},
		seq:         s.seq,
		events:      NewRingBuffer[Event](s.eventCap),
		subscribers: make(map[string]chan Event),
	}
	s.sessions[id] = rec
	snapshot := rec.session
	s.mu.Unlock()

	if s.onCreate != nil {
		s.onCreate(snapshot)
	}
	return id, nil
}

// GetOrCreate returns the session with id, creating it when absent. An empty
// id creates a session with a generated id.
func (s *Store) GetOrCreate(id string) (Session, error) {
	if id != "" {
		if sess, err := s.Get(id); err == nil {
			return sess, nil
		}
	}
	id, err := s.Create(id)
	if err != nil {
		return Session{}, err
	}
	return s.Get(id)
}

// Get returns the session with id and marks it accessed. Expired sessions
// are removed and reported as ErrNotFound.
func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	if s.expired(rec, now) {
		s.mu.Unlock()
		s.Clear(id)
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.touch(rec, now)
	snapshot := rec.session
	s.mu.Unlock()
	return snapshot, nil
}

// IncrementExecutions bumps the execution count and returns the new value.
func (s *Store) IncrementExecutions(id string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	rec.session.ExecutionCount++
	s.touch(rec, s.now())
	return rec.session.ExecutionCount, nil
}

// Clear removes a session and its directory. It reports whether the session
// existed. Directory removal failures are logged, not returned.
//
// The directory is moved aside under the lock, so a Create of the same id
// that runs after the record is gone always builds a fresh directory that
// the removal cannot touch.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.sessions, id)
	doomed, err := s.tombstone(rec.session.Dir)
	s.mu.Unlock()

	rec.closeSubscribers()
	if err == nil && doomed != "" {
		err = os.RemoveAll(doomed)
	}
	if err != nil {
		s.logger.Printf("session %s: remove directory: %v", id, err)
	}
	if s.onRemove != nil {
		s.onRemove(rec.session)
	}
	return true
}

// tombstone renames dir to a hidden sibling and returns the new path, or ""
// when dir is already gone. When the rename fails dir is removed in place.
// Callers hold s.mu.
func (s *Store) tombstone(dir string) (string, error) {
	doomed := filepath.Join(filepath.Dir(dir), ".removed-"+filepath.Base(dir)+"-"+NewID())
	err := os.Rename(dir, doomed)
	switch {
	case err == nil:
		return doomed, nil
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	default:
		return "", os.RemoveAll(dir)
	}
}

// ClearAll removes every session and returns how many there were.
func (s *Store) ClearAll() int {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	n := 0
	for _, id := range ids {
		if s.Clear(id) {
			n++
		}
	}
	return n
}

// List removes expired sessions and returns the rest, oldest first.
func (s *Store) List() []Info {
	s.expire()

	s.mu.Lock()
	now := s.now()
	recs := s.sortedLocked(func(a, b *record) bool { return a.seq < b.seq })
	out := make([]Info, 0, len(recs))
	for _, rec := range recs {
		out = append(out, Info{
			ID:             rec.session.ID,
			CreatedAt:      rec.session.CreatedAt,
			LastAccessedAt: rec.session.LastAccessedAt,
			ExecutionCount: rec.session.ExecutionCount,
			Expired:        s.expired(rec, now),
		})
	}
	s.mu.Unlock()
	return out
}

// Len returns the number of registered sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Close removes every session directory.
func (s *Store) Close() error {
	s.ClearAll()
	return nil
}

// RecordEvent appends an execution event to the session's buffer and fans it
// out to subscribers. Unknown sessions are ignored.
func (s *Store) RecordEvent(id string, e runner.Event) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	rec.publish(Event{SessionID: id, Event: e, Timestamp: s.now().UTC()})
}

// Events returns the buffered events of a session, oldest first.
func (s *Store) Events(id string) ([]Event, error) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.events.ReadAll(), nil
}

// Subscribe returns a channel of future events for a session together with
// the events buffered so far. The channel is closed when the subscriber is
// removed or the session is cleared. Slow subscribers drop events.
func (s *Store) Subscribe(id string) (string, <-chan Event, []Event, error) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return "", nil, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	subID := uuid.New().String()
	ch := make(chan Event, defaultSubscriberBufCap)

	rec.subMu.Lock()
	backlog := rec.events.ReadAll()
	rec.subscribers[subID] = ch
	rec.subMu.Unlock()

	return subID, ch, backlog, nil
}

// Unsubscribe removes a subscriber.
func (s *Store) Unsubscribe(id, subID string) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return
	}

	rec.subMu.Lock()
	if ch, exists := rec.subscribers[subID]; exists {
		close(ch)
		delete(rec.subscribers, subID)
	}
	rec.subMu.Unlock()
}

// publish buffers e and sends it to every subscriber. Holding subMu across
// both keeps Subscribe from seeing an event in the backlog and on the channel.
func (r *record) publish(e Event) {
	r.subMu.RLock()
	defer r.subMu.RUnlock()

	r.events.Write(e)
	for _, ch := range r.subscribers {
		select {
		case ch <- e:
		default:
			// Subscriber channel full, drop the event.
		}
	}
}

func (r *record) closeSubscribers() {
	r.subMu.Lock()
	defer r.subMu.Unlock()
	for subID, ch := range r.subscribers {
		close(ch)
		delete(r.subscribers, subID)
	}
}

// touch advances LastAccessedAt, never moving it backwards.
func (s *Store) touch(rec *record, now time.Time) {
	if now.After(rec.session.LastAccessedAt) {
		rec.session.LastAccessedAt = now
	}
}

func (s *Store) expired(rec *record, now time.Time) bool {
	return now.Sub(rec.session.LastAccessedAt) > s.ttl
}

// expire removes sessions idle for longer than the TTL.
func (s *Store) expire() {
	s.mu.Lock()
	now := s.now()
	var ids []string
	for id, rec := range s.sessions {
		if s.expired(rec, now) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Clear(id)
	}
}

// enforceLimit evicts the least recently accessed sessions so that one more
// fits under the capacity.
func (s *Store) enforceLimit() {
	s.mu.Lock()
	if len(s.sessions) < s.maxSessions {
		s.mu.Unlock()
		return
	}
	recs := s.sortedLocked(func(a, b *record) bool {
		if !a.session.LastAccessedAt.Equal(b.session.LastAccessedAt) {
			return a.session.LastAccessedAt.Before(b.session.LastAccessedAt)
		}
		return a.seq < b.seq
	})
	n := len(recs) - s.maxSessions + 1
	ids := make([]string, 0, n)
	for _, rec := range recs[:n] {
		ids = append(ids, rec.session.ID)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Clear(id)
	}
}

func (s *Store) sortedLocked(less func(a, b *record) bool) []*record {
	recs := make([]*record, 0, len(s.sessions))
	for _, rec := range s.sessions {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return less(recs[i], recs[j]) })
	return recs
}
