package blogsync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const networkStateKey = "network_state"

// ConnectivitySource is the platform connectivity API as seen by the monitor.
type ConnectivitySource interface {
	State(ctx context.Context) (ConnectivityState, error)
	OnChange(fn func(ConnectivityState)) (unsubscribe func())
}

// NetworkOptions configures the NetworkMonitor.
type NetworkOptions struct {
	Logger  *zap.Logger
	Metrics *Metrics
	// OnPersisted is called from the background writer after each snapshot
	// write attempt.
	OnPersisted func(ConnectivityState, error)
	Now         func() time.Time
}

// NetworkMonitor is the single source of truth for connectivity.
type NetworkMonitor struct {
	source      ConnectivitySource
	storage     Storage
	log         *zap.Logger
	metrics     *Metrics
	onPersisted func(ConnectivityState, error)
	now         func() time.Time

	mu          sync.RWMutex
	state       ConnectivityState
	initialized bool
	destroyed   bool
	unsubscribe func()

	listeners   *listenerSet[ConnectivityState]
	persistCh   chan ConnectivityState
	persistDone chan struct{}
}

// NewNetworkMonitor creates a monitor over source. storage may be nil, in
// which case snapshots are not persisted.
func NewNetworkMonitor(source ConnectivitySource, storage Storage, opts *NetworkOptions) *NetworkMonitor {
	m := &NetworkMonitor{
		source:  source,
		storage: storage,
		log:     zap.NewNop(),
		now:     time.Now,
		state:   OfflineConnectivity(),
	}
	if opts != nil {
		if opts.Logger != nil {
			m.log = opts.Logger
		}
		if opts.Now != nil {
			m.now = opts.Now
		}
		m.metrics = opts.Metrics
		m.onPersisted = opts.OnPersisted
	}
	m.log = m.log.With(zap.String("module", "network"))
	m.listeners = newListenerSet[ConnectivityState](m.log)
	return m
}

// Init restores the last persisted snapshot, subscribes to the source and
// queries its current state.
func (m *NetworkMonitor) Init(ctx context.Context) error {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return ErrDestroyed
	}
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	if cached, ok := m.loadSnapshot(); ok {
		m.state = cached
	}
	m.persistCh = make(chan ConnectivityState, 1)
	m.persistDone = make(chan struct{})
	m.mu.Unlock()

	go m.persistLoop()

	if m.source == nil {
		return nil
	}
	unsubscribe := m.subscribeSource()
	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.mu.Unlock()

	state, err := m.querySource(ctx)
	if err != nil {
		m.log.Warn("connectivity source failed; assuming offline", zap.Error(err))
		state = OfflineConnectivity()
	}
	m.update(state)
	return nil
}

// Destroy detaches from the source and flushes the pending snapshot write.
func (m *NetworkMonitor) Destroy() {
	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.destroyed = true
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	done := m.persistDone
	if m.persistCh != nil {
		close(m.persistCh)
	}
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if done != nil {
		<-done
	}
	m.listeners.clear()
}

// CurrentState returns the last known snapshot.
func (m *NetworkMonitor) CurrentState() ConnectivityState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsOffline is shorthand for CurrentState().IsOffline().
func (m *NetworkMonitor) IsOffline() bool {
	return m.CurrentState().IsOffline()
}

// Subscribe registers fn for every connectivity change.
func (m *NetworkMonitor) Subscribe(fn func(ConnectivityState)) (unsubscribe func()) {
	return m.listeners.add(fn)
}

func (m *NetworkMonitor) update(state ConnectivityState) {
	if state.ObservedAt.IsZero() {
		state.ObservedAt = m.now()
	}
	if state.TransportType == "" {
		state.TransportType = TransportUnknown
	}

	m.mu.Lock()
	if m.destroyed {
		m.mu.Unlock()
		return
	}
	m.state = state
	if m.persistCh != nil {
		// Latest snapshot wins; a stale queued one is replaced.
		select {
		case <-m.persistCh:
		default:
		}
		select {
		case m.persistCh <- state:
		default:
		}
	}
	m.mu.Unlock()

	m.metrics.online(!state.IsOffline())
	m.log.Debug("connectivity changed",
		zap.Bool("connected", state.Connected),
		zap.Bool("internet_reachable", state.InternetReachable),
		zap.String("transport", string(state.TransportType)))
	m.listeners.publish(state)
}

func (m *NetworkMonitor) subscribeSource() (unsubscribe func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("connectivity source subscribe panicked", zap.Any("panic", r))
			unsubscribe = nil
		}
	}()
	return m.source.OnChange(func(s ConnectivityState) { m.update(s) })
}

func (m *NetworkMonitor) querySource(ctx context.Context) (state ConnectivityState, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("connectivity source panicked: %v", r)
		}
	}()
	return m.source.State(ctx)
}

func (m *NetworkMonitor) persistLoop() {
	defer close(m.persistDone)
	for state := range m.persistCh {
		err := m.persistSnapshot(state)
		if err != nil {
			m.log.Warn("persist connectivity snapshot", zap.Error(err))
		}
		if m.onPersisted != nil {
			m.onPersisted(state, err)
		}
	}
}

func (m *NetworkMonitor) persistSnapshot(state ConnectivityState) error {
	if m.storage == nil {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return m.storage.Set(networkStateKey, data)
}

func (m *NetworkMonitor) loadSnapshot() (ConnectivityState, bool) {
	if m.storage == nil {
		return ConnectivityState{}, false
	}
	data, ok, err := m.storage.Get(networkStateKey)
	if err != nil {
		m.log.Warn("load connectivity snapshot", zap.Error(err))
		return ConnectivityState{}, false
	}
	if !ok {
		return ConnectivityState{}, false
	}
	var state ConnectivityState
	if err := json.Unmarshal(data, &state); err != nil {
		m.log.Warn("decode connectivity snapshot", zap.Error(err))
		return ConnectivityState{}, false
	}
	return state, true
}

// ============================================================================
// ManualSource
// ============================================================================

// ManualSource is a ConnectivitySource driven by explicit calls, used by
// platform bridges that receive OS callbacks and by tests.
type ManualSource struct {
	mu        sync.RWMutex
	state     ConnectivityState
	err       error
	listeners *listenerSet[ConnectivityState]
}

// NewManualSource creates a source reporting initial until changed.
func NewManualSource(initial ConnectivityState) *ManualSource {
	return &ManualSource{
		state:     initial,
		listeners: newListenerSet[ConnectivityState](zap.NewNop()),
	}
}

// Online returns a reachable snapshot over transport.
func Online(transport TransportType) ConnectivityState {
	return ConnectivityState{Connected: true, InternetReachable: true, TransportType: transport}
}

func (s *ManualSource) State(ctx context.Context) (ConnectivityState, error) {
	if err := ctx.Err(); err != nil {
		return ConnectivityState{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.err != nil {
		return ConnectivityState{}, s.err
	}
	return s.state, nil
}

func (s *ManualSource) OnChange(fn func(ConnectivityState)) func() {
	return s.listeners.add(fn)
}

// Set records state and notifies subscribers, like an OS callback would.
func (s *ManualSource) Set(state ConnectivityState) {
	s.mu.Lock()
	s.state = state
	s.err = nil
	s.mu.Unlock()
	s.listeners.publish(state)
}

// SetOnline is Set(Online(transport)).
func (s *ManualSource) SetOnline(transport TransportType) { s.Set(Online(transport)) }

// SetOffline is Set(OfflineConnectivity()).
func (s *ManualSource) SetOffline() { s.Set(OfflineConnectivity()) }

// Fail makes State return err until the next Set.
func (s *ManualSource) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}
