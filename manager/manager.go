// Package manager wires caches, the scheduler, and persistence stores into
// one lifecycle: registered caches get periodic expiry sweeps, optional
// snapshot autosave, read-through loading, and an orderly shutdown.
package manager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/krisalay/chronocache"
	"github.com/krisalay/chronocache/persist"
	"github.com/krisalay/chronocache/scheduler"
	"github.com/krisalay/chronocache/types"
)

const (
	// DefaultCleanupInterval is how often the shared sweep task reclaims
	// expired entries from every registered cache.
	DefaultCleanupInterval = time.Minute

	// DefaultSaveBuffer bounds how many save requests may be pending before
	// SaveNow starts dropping them.
	DefaultSaveBuffer = 64
)

/*
Manager owns a scheduler and a set of named caches. One sweep task per
manager reclaims expired entries across all of them; caches registered with
a store additionally get snapshot restore on registration, periodic
autosave, and a final save on Close.
*/
type Manager struct {
	id   string
	base *logrus.Logger
	log  *logrus.Entry

	queue     *scheduler.Queue
	ownsQueue bool

	cleanupInterval time.Duration
	cleanupTaskID   string

	mu     sync.Mutex
	caches map[string]*binding
	closed bool

	group singleflight.Group

	saves chan saveReq
	wg    sync.WaitGroup
}

// binding is one registered cache plus its persistence wiring.
type binding struct {
	name           string
	cache          *chronocache.Cache
	store          types.Store
	autosave       time.Duration
	autosaveTaskID string
	restored       int

	// saveMu serializes snapshot writes for this cache. retired marks the
	// binding as past its final save; later saves become no-ops so a
	// straggling autosave cannot overwrite the shutdown snapshot with the
	// empty state of a destroyed cache.
	saveMu       sync.Mutex
	retired      bool
	lastSave     time.Time
	saveFailures uint64
}

type saveReq struct {
	b      *binding
	reason string
}

// Option configures a Manager at construction.
type Option func(*Manager)

// WithScheduler runs the manager's tasks on an externally owned queue.
// Close removes the manager's tasks from it but leaves it running.
func WithScheduler(q *scheduler.Queue) Option {
	return func(m *Manager) {
		if q != nil {
			m.queue = q
			m.ownsQueue = false
		}
	}
}

// WithLogger routes the manager's logging through l.
func WithLogger(l *logrus.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.base = l
			m.log = l.WithField("component", "manager")
		}
	}
}

// WithCleanupInterval sets how often registered caches are swept for
// expired entries. Zero disables the sweep task.
func WithCleanupInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d >= 0 {
			m.cleanupInterval = d
		}
	}
}

// New constructs a Manager and starts its save worker. Without
// WithScheduler it builds and owns a queue of its own.
func New(opts ...Option) *Manager {
	base := logrus.StandardLogger()
	m := &Manager{
		id:              uuid.NewString(),
		base:            base,
		log:             base.WithField("component", "manager"),
		cleanupInterval: DefaultCleanupInterval,
		caches:          make(map[string]*binding),
		saves:           make(chan saveReq, DefaultSaveBuffer),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.queue == nil {
		m.queue = scheduler.New(scheduler.WithLogger(m.base))
		m.ownsQueue = true
	}

	if m.cleanupInterval > 0 {
		m.cleanupTaskID = "cleanup:" + m.id
		_ = m.queue.AddTask(m.cleanupTaskID, m.sweep, m.cleanupInterval, scheduler.WithPriority(1))
	}

	m.wg.Add(1)
	go m.saveWorker()

	m.log.WithField("id", m.id).Debug("manager started")
	return m
}

var (
	defaultOnce sync.Once
	defaultMgr  *Manager
)

// Default returns the process-wide manager, constructing it with default
// options on first use.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultMgr = New()
	})
	return defaultMgr
}

// RegisterOption configures one cache registration.
type RegisterOption func(*binding)

// WithStore attaches a persistence store: a prior snapshot is restored on
// registration and a final snapshot is written on Close.
func WithStore(s types.Store) RegisterOption {
	return func(b *binding) {
		b.store = s
	}
}

// WithAutosaveInterval writes a snapshot every d. Requires WithStore.
// Zero (the default) disables autosave.
func WithAutosaveInterval(d time.Duration) RegisterOption {
	return func(b *binding) {
		if d > 0 {
			b.autosave = d
		}
	}
}

/*
Register adds c under name. With a store attached, any prior snapshot is
loaded first (entries past their expiry are dropped), then the autosave
task is scheduled if an interval was given. The manager does not take
ownership of the cache until Close, which destroys all registered caches.
*/
func (m *Manager) Register(name string, c *chronocache.Cache, opts ...RegisterOption) error {
	if name == "" {
		return ErrEmptyName
	}
	if c == nil {
		return ErrNilCache
	}

	b := &binding{name: name, cache: c}
	for _, opt := range opts {
		opt(b)
	}
	if b.autosave > 0 && b.store == nil {
		return errors.Wrap(ErrNoStore, "autosave")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if _, dup := m.caches[name]; dup {
		return errors.Wrapf(ErrDuplicateName, "%q", name)
	}

	if b.store != nil {
		m.restore(b)
		if b.autosave > 0 {
			b.autosaveTaskID = "autosave:" + name
			_ = m.queue.AddTask(b.autosaveTaskID, func(ctx context.Context) error {
				m.performSave(b, "autosave")
				return nil
			}, b.autosave, scheduler.WithPriority(5))
		}
	}

	m.caches[name] = b
	m.log.WithFields(logrus.Fields{
		"cache":      name,
		"persistent": b.store != nil,
	}).Info("cache registered")
	return nil
}

/*
Deregister removes the named cache from the manager: its autosave task is
withdrawn and, when a store is attached, a final snapshot is written. The
cache itself is handed back alive; the caller decides when to destroy it.
*/
func (m *Manager) Deregister(name string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	b, ok := m.caches[name]
	if !ok {
		m.mu.Unlock()
		return errors.Wrapf(ErrUnknownCache, "%q", name)
	}
	delete(m.caches, name)
	m.mu.Unlock()

	if b.autosaveTaskID != "" {
		m.queue.RemoveTask(b.autosaveTaskID)
	}
	if b.store != nil {
		b.saveMu.Lock()
		m.saveLocked(b, "deregister")
		b.retired = true
		b.saveMu.Unlock()
	}
	m.log.WithField("cache", name).Info("cache deregistered")
	return nil
}

// Cache returns the cache registered under name.
func (m *Manager) Cache(name string) (*chronocache.Cache, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.caches[name]
	if !ok {
		return nil, false
	}
	return b.cache, true
}

// Names returns the registered cache names in no particular order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.caches))
	for name := range m.caches {
		names = append(names, name)
	}
	return names
}

// Scheduler exposes the queue the manager schedules on, for health reports
// and for registering application tasks beside the manager's own.
func (m *Manager) Scheduler() *scheduler.Queue {
	return m.queue
}

// CacheInfo describes one registration.
type CacheInfo struct {
	Name         string
	Persistent   bool
	Autosave     time.Duration
	Restored     int // entries installed from the snapshot at registration
	LastSave     time.Time
	SaveFailures uint64
}

// Info returns registration details for the named cache.
func (m *Manager) Info(name string) (CacheInfo, bool) {
	m.mu.Lock()
	b, ok := m.caches[name]
	m.mu.Unlock()
	if !ok {
		return CacheInfo{}, false
	}

	info := CacheInfo{
		Name:       b.name,
		Persistent: b.store != nil,
		Autosave:   b.autosave,
		Restored:   b.restored,
	}
	b.saveMu.Lock()
	info.LastSave = b.lastSave
	info.SaveFailures = b.saveFailures
	b.saveMu.Unlock()
	return info, true
}

/*
GetOrLoad reads key from the named cache, invoking loader on a miss and
caching its result with the given ttl (SetWithTTL conventions, so
NoExpiration stores forever). Concurrent misses of the same key share a
single loader call.

A loader returning a nil value is not cached: nil reads back as a miss, so
the next call loads again.
*/
func (m *Manager) GetOrLoad(name, key string, ttl time.Duration, loader func() (any, error)) (any, error) {
	m.mu.Lock()
	b, ok := m.caches[name]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, errors.Wrapf(ErrUnknownCache, "%q", name)
	}

	v, err := b.cache.Get(key)
	if err != nil {
		return nil, err
	}
	if v != nil {
		return v, nil
	}

	v, err, _ = m.group.Do(name+"\x00"+key, func() (any, error) {
		// An earlier flight may have filled the key while we queued.
		if v, err := b.cache.Get(key); err == nil && v != nil {
			return v, nil
		}
		loaded, err := loader()
		if err != nil {
			return nil, errors.Wrapf(err, "load %q", key)
		}
		if loaded == nil {
			return nil, nil
		}
		if err := b.cache.SetWithTTL(key, loaded, ttl); err != nil {
			return nil, err
		}
		return loaded, nil
	})
	return v, err
}

/*
SaveNow requests a snapshot of the named cache. The write happens on the
save worker; under pressure the request is dropped, since any later save
captures at least the same state. Close drains whatever is still queued.
*/
func (m *Manager) SaveNow(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	b, ok := m.caches[name]
	if !ok {
		return errors.Wrapf(ErrUnknownCache, "%q", name)
	}
	if b.store == nil {
		return errors.Wrapf(ErrNoStore, "%q", name)
	}

	select {
	case m.saves <- saveReq{b: b, reason: "request"}:
	default:
		m.log.WithField("cache", name).Debug("save request dropped, queue full")
	}
	return nil
}

/*
Close shuts the manager down: scheduling stops (an owned queue is closed,
an external one just loses the manager's tasks), queued save requests are
drained, every persistent cache gets a final snapshot, and all registered
caches are destroyed. Close is idempotent.
*/
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	bindings := make([]*binding, 0, len(m.caches))
	for _, b := range m.caches {
		bindings = append(bindings, b)
	}
	close(m.saves)
	m.mu.Unlock()

	if m.ownsQueue {
		m.queue.Close()
	} else {
		if m.cleanupTaskID != "" {
			m.queue.RemoveTask(m.cleanupTaskID)
		}
		for _, b := range bindings {
			if b.autosaveTaskID != "" {
				m.queue.RemoveTask(b.autosaveTaskID)
			}
		}
	}

	m.wg.Wait()

	for _, b := range bindings {
		b.saveMu.Lock()
		if b.store != nil {
			m.saveLocked(b, "shutdown")
		}
		b.retired = true
		b.saveMu.Unlock()
	}
	for _, b := range bindings {
		b.cache.Destroy()
	}
	m.log.Info("manager closed")
}

// sweep is the shared cleanup task body: reclaim expired entries from every
// registered cache.
func (m *Manager) sweep(ctx context.Context) error {
	m.mu.Lock()
	bindings := make([]*binding, 0, len(m.caches))
	for _, b := range m.caches {
		bindings = append(bindings, b)
	}
	m.mu.Unlock()

	for _, b := range bindings {
		if n := b.cache.Cleanup(); n > 0 {
			m.log.WithFields(logrus.Fields{
				"cache":     b.name,
				"reclaimed": n,
			}).Debug("swept expired entries")
		}
	}
	return nil
}

func (m *Manager) saveWorker() {
	defer m.wg.Done()
	for req := range m.saves {
		m.performSave(req.b, req.reason)
	}
}

func (m *Manager) performSave(b *binding, reason string) {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()
	if b.retired {
		return
	}
	m.saveLocked(b, reason)
}

// saveLocked writes one snapshot. Failures are logged and counted, never
// propagated: a cache with a broken store keeps serving reads and writes.
func (m *Manager) saveLocked(b *binding, reason string) {
	entries := b.cache.Dump()
	p, err := persist.EncodeEntries(entries)
	if err == nil {
		err = b.store.Save(p)
	}
	if err != nil {
		b.saveFailures++
		m.log.WithError(err).WithFields(logrus.Fields{
			"cache":  b.name,
			"reason": reason,
		}).Warn("snapshot save failed")
		return
	}

	b.lastSave = time.Now()
	m.log.WithFields(logrus.Fields{
		"cache":   b.name,
		"entries": len(entries),
		"reason":  reason,
	}).Debug("snapshot saved")
}

// restore loads the prior snapshot into a freshly registered cache. Any
// failure degrades to a cold start.
func (m *Manager) restore(b *binding) {
	p, err := b.store.Load()
	if err != nil {
		m.log.WithError(err).WithField("cache", b.name).Warn("snapshot load failed, starting cold")
		return
	}
	if p == nil {
		return
	}

	entries, err := persist.DecodeEntries(p)
	if err != nil {
		m.log.WithError(err).WithField("cache", b.name).Warn("snapshot decode failed, starting cold")
		return
	}

	b.restored = b.cache.Restore(entries)
	m.log.WithFields(logrus.Fields{
		"cache":    b.name,
		"restored": b.restored,
		"saved_at": p.SavedAt,
	}).Info("snapshot restored")
}
