// Package scheduler provides connectivity tracking and sync triggers.
//
// The Monitor owns the online/offline signal; the Scheduler turns
// connectivity edges, a periodic timer and a read-only pending-count
// refresh tick into calls on the sync engine. Every trigger funnels
// through the engine's TriggerSync, so all paths share its mutual
// exclusion guarantee.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/kurniadi/farmnexus/internal/logging"
	syncpkg "github.com/kurniadi/farmnexus/internal/sync"
)

// Monitor tracks connectivity and notifies on transitions. It
// implements sync.ConnectivityProbe.
type Monitor struct {
	mu        sync.RWMutex
	online    bool
	callbacks []func(online bool)
}

// NewMonitor creates a Monitor. Connectivity is assumed until the
// platform reports otherwise.
func NewMonitor() *Monitor {
	return &Monitor{online: true}
}

// IsOnline reports current connectivity.
func (m *Monitor) IsOnline() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.online
}

// OnTransition registers a callback invoked on every online/offline
// edge. Registration happens at startup, before SetOnline is called.
func (m *Monitor) OnTransition(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// SetOnline records a connectivity change and fires transition
// callbacks on edges. Repeated reports of the same state are ignored.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	callbacks := make([]func(bool), len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.mu.Unlock()

	logging.Info("Connectivity changed", map[string]interface{}{
		"online": online,
	})

	for _, fn := range callbacks {
		fn(online)
	}
}

// Config holds scheduler timing configuration.
type Config struct {
	SyncInterval    time.Duration // how often to run a full cycle when online
	RefreshInterval time.Duration // how often to refresh the pending count (read-only)
}

// DefaultConfig returns the default scheduler timings.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:    15 * time.Minute,
		RefreshInterval: 30 * time.Second,
	}
}

// Scheduler drives the sync engine from timers and connectivity edges.
type Scheduler struct {
	engine          syncpkg.Syncer
	monitor         *Monitor
	syncInterval    time.Duration
	refreshInterval time.Duration
	onPendingCount  func(pending int)

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// New creates a Scheduler. onPendingCount receives the refreshed
// pending count each refresh tick and may be nil.
func New(engine syncpkg.Syncer, monitor *Monitor, config *Config, onPendingCount func(pending int)) *Scheduler {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scheduler{
		engine:          engine,
		monitor:         monitor,
		syncInterval:    config.SyncInterval,
		refreshInterval: config.RefreshInterval,
		onPendingCount:  onPendingCount,
		stopCh:          make(chan struct{}),
	}
}

// Start begins the background loops and hooks the connectivity edge
// trigger. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	// Offline-to-online transitions trigger a sync immediately; edits
	// made while disconnected should not wait for the next timer tick.
	s.monitor.OnTransition(func(online bool) {
		if !online {
			return
		}
		go s.engine.TriggerSync(ctx)
	})

	s.wg.Add(2)
	go s.syncLoop(ctx)
	go s.refreshLoop(ctx)

	logging.Info("Sync scheduler started", map[string]interface{}{
		"sync_interval":    s.syncInterval.String(),
		"refresh_interval": s.refreshInterval.String(),
	})
}

// Stop stops the background loops gracefully.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()

	logging.Info("Sync scheduler stopped", nil)
}

// IsRunning reports whether the scheduler loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TriggerNow requests an immediate cycle (user-initiated or background
// platform hook). The engine's own gate decides whether it runs.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	go s.engine.TriggerSync(ctx)
}

// syncLoop runs periodic sync cycles while online.
func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if !s.monitor.IsOnline() {
				continue
			}
			s.engine.TriggerSync(ctx)
		}
	}
}

// refreshLoop periodically re-reads the pending count. This is a
// read-only tick; it never starts a sync cycle.
func (s *Scheduler) refreshLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			pending, err := s.engine.PendingCount()
			if err != nil {
				logging.Error("Failed to refresh pending count", err, nil)
				continue
			}
			if s.onPendingCount != nil {
				s.onPendingCount(pending)
			}
		}
	}
}
