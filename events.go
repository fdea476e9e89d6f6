package blogsync

import (
	"sync"

	"go.uber.org/zap"
)

// ============================================================================
// Snapshot listeners
// ============================================================================

// listenerSet delivers full snapshots of T to every registered listener. A
// panicking listener is logged and does not affect the others.
type listenerSet[T any] struct {
	mu        sync.RWMutex
	nextID    uint64
	listeners map[uint64]func(T)
	log       *zap.Logger
}

func newListenerSet[T any](log *zap.Logger) *listenerSet[T] {
	return &listenerSet[T]{listeners: make(map[uint64]func(T)), log: log}
}

func (l *listenerSet[T]) add(fn func(T)) (unsubscribe func()) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.listeners[id] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.listeners, id)
			l.mu.Unlock()
		})
	}
}

func (l *listenerSet[T]) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.listeners)
}

func (l *listenerSet[T]) publish(v T) {
	l.mu.RLock()
	fns := make([]func(T), 0, len(l.listeners))
	for _, fn := range l.listeners {
		fns = append(fns, fn)
	}
	l.mu.RUnlock()

	for _, fn := range fns {
		l.call(fn, v)
	}
}

func (l *listenerSet[T]) call(fn func(T), v T) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("listener panicked", zap.Any("panic", r))
		}
	}()
	fn(v)
}

func (l *listenerSet[T]) clear() {
	l.mu.Lock()
	l.listeners = make(map[uint64]func(T))
	l.mu.Unlock()
}

// ============================================================================
// Named events
// ============================================================================

// Event names emitted by the OfflineCoordinator.
const (
	EventNetworkOnline   = "network.online"
	EventNetworkOffline  = "network.offline"
	EventSyncStart       = "sync.start"
	EventSyncComplete    = "sync.complete"
	EventDraftSynced     = "draft.synced"
	EventDraftFailed     = "draft.failed"
	EventActionConfirmed = "action.confirmed"
	EventActionFailed    = "action.failed"
	EventActionDropped   = "action.dropped"
)

// OfflineEventHandler handles coordinator lifecycle events.
type OfflineEventHandler func(event string, payload any)

type offlineEmitter struct {
	mu        sync.RWMutex
	listeners map[string][]OfflineEventHandler
	log       *zap.Logger
}

func newOfflineEmitter(log *zap.Logger) offlineEmitter {
	return offlineEmitter{listeners: make(map[string][]OfflineEventHandler), log: log}
}

// On registers a handler for a named event.
func (e *offlineEmitter) On(event string, handler OfflineEventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[event] = append(e.listeners[event], handler)
}

func (e *offlineEmitter) emit(event string, payload any) {
	e.mu.RLock()
	handlers := append([]OfflineEventHandler(nil), e.listeners[event]...)
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.log.Error("event handler panicked", zap.String("event", event), zap.Any("panic", r))
				}
			}()
			h(event, payload)
		}()
	}
}

func (e *offlineEmitter) removeAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = make(map[string][]OfflineEventHandler)
}
