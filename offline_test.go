package blogsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Sekunev/BE-WORKSHOP-sub000/store/badgerstore"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubMonitor is a ConnectivityMonitor whose changes are driven by the test.
type stubMonitor struct {
	mu        sync.Mutex
	state     ConnectivityState
	listeners *listenerSet[ConnectivityState]
}

func newStubMonitor(online bool) *stubMonitor {
	m := &stubMonitor{state: OfflineConnectivity(), listeners: newListenerSet[ConnectivityState](zap.NewNop())}
	if online {
		m.state = Online(TransportWiFi)
	}
	return m
}

func (m *stubMonitor) CurrentState() ConnectivityState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stubMonitor) Subscribe(fn func(ConnectivityState)) func() { return m.listeners.add(fn) }

func (m *stubMonitor) set(s ConnectivityState) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	m.listeners.publish(s)
}

func (m *stubMonitor) goOnline()  { m.set(Online(TransportWiFi)) }
func (m *stubMonitor) goOffline() { m.set(OfflineConnectivity()) }

type coordinatorFixture struct {
	c       *OfflineCoordinator
	monitor *stubMonitor
	remote  *fakeRemote
	storage Storage
	clock   *fakeClock
	reports chan SyncReport
}

func newCoordinator(t *testing.T, storage Storage, online bool, opts *OfflineOptions) *coordinatorFixture {
	t.Helper()
	f := &coordinatorFixture{
		monitor: newStubMonitor(online),
		remote:  newFakeRemote(),
		storage: storage,
		clock:   newFakeClock(),
		reports: make(chan SyncReport, 16),
	}
	if opts == nil {
		opts = &OfflineOptions{}
	}
	opts.Now = f.clock.Now
	c, err := NewOfflineCoordinator(storage, f.monitor, f.remote, opts)
	require.NoError(t, err)
	require.NoError(t, c.Init(context.Background()))
	t.Cleanup(c.Destroy)
	c.On(EventSyncComplete, func(_ string, payload any) {
		f.reports <- payload.(SyncReport)
	})
	f.c = c
	return f
}

// reconnect flips the monitor online and waits for the automatic pass.
func (f *coordinatorFixture) reconnect(t *testing.T) SyncReport {
	t.Helper()
	f.monitor.goOnline()
	report := waitFor(t, f.reports)
	f.c.autoSync.Wait()
	return report
}

func (f *coordinatorFixture) persistedDrafts(t *testing.T) []Draft {
	t.Helper()
	raw, ok, err := f.storage.Get(draftBlogsKey)
	require.NoError(t, err)
	require.True(t, ok)
	var drafts []Draft
	require.NoError(t, json.Unmarshal(raw, &drafts))
	return drafts
}

func (f *coordinatorFixture) persistedActions(t *testing.T) []PendingAction {
	t.Helper()
	raw, ok, err := f.storage.Get(offlineActionsKey)
	require.NoError(t, err)
	require.True(t, ok)
	var actions []PendingAction
	require.NoError(t, json.Unmarshal(raw, &actions))
	return actions
}

func countEvents(c *OfflineCoordinator, event string) func() int {
	var mu sync.Mutex
	n := 0
	c.On(event, func(string, any) {
		mu.Lock()
		n++
		mu.Unlock()
	})
	return func() int {
		mu.Lock()
		defer mu.Unlock()
		return n
	}
}

// ============================================================================
// Sync passes
// ============================================================================

func TestQueuedActionIsReplayedOnReconnect(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)

	id, err := f.c.QueueAction(ActionCreateBlog, map[string]string{"title": "Offline post"})
	require.NoError(t, err)
	require.NotEmpty(t, id)
	require.Len(t, f.persistedActions(t), 1)

	f.clock.Advance(time.Minute)
	report := f.reconnect(t)
	require.Equal(t, 1, report.ActionsConfirmed)
	require.False(t, report.Aborted)

	state := f.c.GetOfflineState()
	require.False(t, state.IsOffline)
	require.Empty(t, state.PendingActions)
	require.True(t, state.LastSyncTime.Equal(f.clock.Now()))
	require.Empty(t, f.persistedActions(t))

	raw, ok, err := f.storage.Get(lastSyncTimeKey)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1772366460000", string(raw))

	calls := f.remote.actionCalls()
	require.Len(t, calls, 1)
	require.Equal(t, ActionCreateBlog, calls[0].Type)
	require.JSONEq(t, `{"title":"Offline post"}`, string(calls[0].Payload))

	// A manual pass afterwards has nothing left to do.
	report, err = f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Equal(t, SyncReport{Duration: report.Duration}, report)
	require.Len(t, f.remote.actionCalls(), 1)
}

func TestSyncIsSkippedWhileOffline(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)
	starts := countEvents(f.c, EventSyncStart)

	_, err := f.c.QueueAction(ActionLikeBlog, map[string]string{"id": "b1"})
	require.NoError(t, err)

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.True(t, report.Skipped)
	require.Zero(t, starts())
	require.Empty(t, f.remote.actionCalls())
	require.Len(t, f.c.GetOfflineState().PendingActions, 1)
	require.True(t, f.c.GetOfflineState().LastSyncTime.IsZero())
}

func TestDraftOutcomesArePersisted(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)

	first, err := f.c.SaveDraft(BlogContent{Title: "one"}, "")
	require.NoError(t, err)
	second, err := f.c.SaveDraft(BlogContent{Title: "two"}, "")
	require.NoError(t, err)
	for _, d := range f.persistedDrafts(t) {
		require.Equal(t, SyncPending, d.SyncStatus)
		require.True(t, d.IsOfflineOriginated)
	}

	f.remote.draftErr = func(d Draft) error {
		if d.ID == first {
			return errors.New("connection reset")
		}
		return nil
	}
	synced := countEvents(f.c, EventDraftSynced)
	failed := countEvents(f.c, EventDraftFailed)

	report := f.reconnect(t)
	require.Equal(t, 1, report.DraftsSynced)
	require.Equal(t, 1, report.DraftsFailed)
	require.Equal(t, 1, synced())
	require.Equal(t, 1, failed())

	statuses := map[string]Draft{}
	for _, d := range f.persistedDrafts(t) {
		statuses[d.ID] = d
	}
	require.Equal(t, SyncFailed, statuses[first].SyncStatus)
	require.True(t, statuses[first].IsOfflineOriginated)
	require.Equal(t, SyncSynced, statuses[second].SyncStatus)
	require.False(t, statuses[second].IsOfflineOriginated)

	for _, d := range f.remote.draftCalls() {
		require.Equal(t, SyncSyncing, d.SyncStatus)
	}
	require.Equal(t, 1, f.c.GetSyncStatus().PendingDrafts)

	// Failed drafts are retried by the next pass.
	f.remote.mu.Lock()
	f.remote.draftErr = nil
	f.remote.mu.Unlock()
	report, err = f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.DraftsSynced)
	got, ok := f.c.GetDraft(first)
	require.True(t, ok)
	require.Equal(t, SyncSynced, got.SyncStatus)
}

func TestSaveDraftWhileOnlineIsSynced(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), true, nil)

	id, err := f.c.SaveDraft(BlogContent{Title: "live", Tags: []string{"go"}}, "")
	require.NoError(t, err)
	d, ok := f.c.GetDraft(id)
	require.True(t, ok)
	require.Equal(t, SyncSynced, d.SyncStatus)
	require.False(t, d.IsOfflineOriginated)
	require.True(t, d.LastModified.Equal(f.clock.Now()))

	f.clock.Advance(time.Second)
	same, err := f.c.SaveDraft(BlogContent{Title: "edited"}, id)
	require.NoError(t, err)
	require.Equal(t, id, same)
	require.Len(t, f.c.GetOfflineState().Drafts, 1)
	d, _ = f.c.GetDraft(id)
	require.Equal(t, "edited", d.Fields.Title)

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Zero(t, report.DraftsSynced)
	require.Empty(t, f.remote.draftCalls())
}

func TestDraftEditedDuringUploadStaysPending(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)
	id, err := f.c.SaveDraft(BlogContent{Title: "v1"}, "")
	require.NoError(t, err)

	gate := make(chan struct{})
	f.remote.gate = gate
	f.monitor.goOnline()
	waitFor(t, f.remote.entered)

	f.clock.Advance(time.Second)
	_, err = f.c.SaveDraft(BlogContent{Title: "v2"}, id)
	require.NoError(t, err)
	close(gate)
	report := waitFor(t, f.reports)
	require.Equal(t, 1, report.DraftsSynced)

	d, ok := f.c.GetDraft(id)
	require.True(t, ok)
	require.Equal(t, SyncPending, d.SyncStatus)
	require.Equal(t, "v2", d.Fields.Title)
	require.Equal(t, "v1", f.remote.draftCalls()[0].Fields.Title)
}

func TestDraftDeletedDuringUploadIsSkipped(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)
	id, err := f.c.SaveDraft(BlogContent{Title: "v1"}, "")
	require.NoError(t, err)

	gate := make(chan struct{})
	f.remote.gate = gate
	f.monitor.goOnline()
	waitFor(t, f.remote.entered)

	require.NoError(t, f.c.DeleteDraft(id))
	close(gate)
	waitFor(t, f.reports)

	_, ok := f.c.GetDraft(id)
	require.False(t, ok)
	require.Empty(t, f.persistedDrafts(t))
}

// ============================================================================
// Retry policy
// ============================================================================

func TestTransientFailuresAreBoundedByMaxRetries(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	f := newCoordinator(t, NewMemoryStorage(), true, &OfflineOptions{Metrics: metrics})
	f.remote.actionErr = func(ActionType, json.RawMessage) error { return errors.New("connection reset") }
	dropped := countEvents(f.c, EventActionDropped)

	_, err := f.c.QueueAction(ActionUpdateBlog, map[string]string{"id": "b1", "title": "x"})
	require.NoError(t, err)

	for attempt := 1; attempt < DefaultMaxRetries; attempt++ {
		report, err := f.c.SyncPendingData(context.Background())
		require.NoError(t, err)
		require.Equal(t, 1, report.ActionsRetrying)
		actions := f.c.GetOfflineState().PendingActions
		require.Len(t, actions, 1)
		require.Equal(t, attempt, actions[0].RetryCount)
		require.Equal(t, "connection reset", actions[0].LastError)
		require.Equal(t, attempt, f.persistedActions(t)[0].RetryCount)
	}

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.ActionsDropped)
	require.Empty(t, f.c.GetOfflineState().PendingActions)
	require.Len(t, f.remote.actionCalls(), DefaultMaxRetries)
	require.Equal(t, 1, dropped())
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.droppedActions.WithLabelValues(string(ActionUpdateBlog), "exhausted")))
}

func TestPermanentFailureIsDroppedImmediately(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)
	f := newCoordinator(t, NewMemoryStorage(), true, &OfflineOptions{Metrics: metrics})
	f.remote.actionErr = func(ActionType, json.RawMessage) error {
		return &APIError{StatusCode: 400, Code: "VALIDATION", Message: "title required"}
	}

	_, err := f.c.QueueAction(ActionCreateBlog, map[string]string{})
	require.NoError(t, err)

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.ActionsDropped)
	require.Empty(t, f.c.GetOfflineState().PendingActions)
	require.Equal(t, 1.0, testutil.ToFloat64(metrics.droppedActions.WithLabelValues(string(ActionCreateBlog), "permanent")))
}

func TestRetryAlwaysKeepsPermanentFailures(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), true, &OfflineOptions{ShouldRetry: RetryAlways, MaxRetries: 5})
	f.remote.actionErr = func(ActionType, json.RawMessage) error { return &APIError{StatusCode: 404} }

	_, err := f.c.QueueAction(ActionDeleteBlog, map[string]string{"id": "gone"})
	require.NoError(t, err)

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.ActionsRetrying)
	actions := f.c.GetOfflineState().PendingActions
	require.Len(t, actions, 1)
	require.Equal(t, 5, actions[0].MaxRetries)
}

func TestPanickingRemoteCountsAsFailure(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), true, nil)
	f.remote.actionErr = func(ActionType, json.RawMessage) error { panic("nil map") }

	_, err := f.c.QueueAction(ActionLikeBlog, map[string]string{"id": "b1"})
	require.NoError(t, err)

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.ActionsRetrying)
	actions := f.c.GetOfflineState().PendingActions
	require.Len(t, actions, 1)
	require.Contains(t, actions[0].LastError, "panicked")
}

// ============================================================================
// Concurrency
// ============================================================================

func TestConcurrentSyncCallsShareOnePass(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), true, nil)
	starts := countEvents(f.c, EventSyncStart)
	_, err := f.c.QueueAction(ActionLikeBlog, map[string]string{"id": "b1"})
	require.NoError(t, err)

	gate := make(chan struct{})
	f.remote.gate = gate

	type result struct {
		report SyncReport
		err    error
	}
	results := make(chan result, 2)
	run := func() {
		report, err := f.c.SyncPendingData(context.Background())
		results <- result{report, err}
	}
	go run()
	waitFor(t, f.remote.entered)
	require.True(t, f.c.GetSyncStatus().Syncing)

	go run()
	require.Never(t, func() bool { return len(results) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	close(gate)

	a, b := waitFor(t, results), waitFor(t, results)
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	require.Equal(t, a.report, b.report)
	require.Equal(t, 1, a.report.ActionsConfirmed)
	require.Len(t, f.remote.actionCalls(), 1)
	require.Equal(t, 1, starts())
	require.False(t, f.c.GetSyncStatus().Syncing)
}

func TestOnlyOfflineToOnlineEdgeStartsSync(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)
	starts := countEvents(f.c, EventSyncStart)
	online := countEvents(f.c, EventNetworkOnline)

	f.monitor.goOffline()
	f.monitor.goOffline()
	f.reconnect(t)
	f.monitor.goOnline()

	require.Never(t, func() bool { return starts() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Equal(t, 1, starts())
	require.Equal(t, 1, online())

	f.monitor.goOffline()
	f.reconnect(t)
	require.Equal(t, 2, starts())
}

func TestGoingOfflineMidPassAbortsRemainingWork(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), true, nil)
	_, err := f.c.QueueAction(ActionLikeBlog, map[string]string{"id": "b1"})
	require.NoError(t, err)
	_, err = f.c.QueueAction(ActionLikeBlog, map[string]string{"id": "b2"})
	require.NoError(t, err)

	var once sync.Once
	f.remote.onCall = func() { once.Do(f.monitor.goOffline) }

	report, err := f.c.SyncPendingData(context.Background())
	require.NoError(t, err)
	require.True(t, report.Aborted)
	require.Equal(t, 1, report.ActionsConfirmed)

	state := f.c.GetOfflineState()
	require.True(t, state.IsOffline)
	require.Len(t, state.PendingActions, 1)
	require.JSONEq(t, `{"id":"b2"}`, string(state.PendingActions[0].Payload))
	require.Zero(t, state.PendingActions[0].RetryCount)
	require.True(t, state.LastSyncTime.IsZero())
	require.Len(t, f.persistedActions(t), 1)
}

func TestCancelledContextAbortsPass(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), true, nil)
	_, err := f.c.QueueAction(ActionLikeBlog, map[string]string{"id": "b1"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := f.c.SyncPendingData(ctx)
	require.NoError(t, err)
	require.True(t, report.Aborted)
	require.Empty(t, f.remote.actionCalls())
	require.Len(t, f.c.GetOfflineState().PendingActions, 1)
}

// ============================================================================
// Listeners and lifecycle
// ============================================================================

func TestListenersReceiveIsolatedSnapshots(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)

	var mu sync.Mutex
	var snapshots []OfflineState
	unsubscribe := f.c.AddListener(func(s OfflineState) {
		mu.Lock()
		snapshots = append(snapshots, s)
		mu.Unlock()
	})
	f.c.AddListener(func(OfflineState) { panic("broken banner") })

	id, err := f.c.SaveDraft(BlogContent{Title: "a", Tags: []string{"x"}}, "")
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, snapshots, 1)
	snapshots[0].Drafts[0].Fields.Tags[0] = "mutated"
	snapshots[0].Drafts[0].Fields.Title = "mutated"
	mu.Unlock()

	d, _ := f.c.GetDraft(id)
	require.Equal(t, "a", d.Fields.Title)
	require.Equal(t, []string{"x"}, d.Fields.Tags)

	unsubscribe()
	_, err = f.c.QueueAction(ActionLikeBlog, nil)
	require.NoError(t, err)
	mu.Lock()
	require.Len(t, snapshots, 1)
	mu.Unlock()
}

func TestLifecycleErrors(t *testing.T) {
	storage := NewMemoryStorage()
	_, err := NewOfflineCoordinator(nil, newStubMonitor(true), newFakeRemote(), nil)
	require.ErrorIs(t, err, ErrInvalidArgument)

	c, err := NewOfflineCoordinator(storage, newStubMonitor(true), newFakeRemote(), nil)
	require.NoError(t, err)

	_, err = c.SaveDraft(BlogContent{}, "")
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.QueueAction(ActionLikeBlog, nil)
	require.ErrorIs(t, err, ErrNotInitialized)
	_, err = c.SyncPendingData(context.Background())
	require.ErrorIs(t, err, ErrNotInitialized)

	require.NoError(t, c.Init(context.Background()))
	require.NoError(t, c.Init(context.Background()))
	c.Destroy()
	c.Destroy()

	require.ErrorIs(t, c.DeleteDraft("x"), ErrDestroyed)
	require.ErrorIs(t, c.ClearOfflineData(), ErrDestroyed)
	require.ErrorIs(t, c.Init(context.Background()), ErrDestroyed)
}

func TestQueueActionRejectsInvalidInput(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)

	_, err := f.c.QueueAction("publish_blog", nil)
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.c.QueueAction(ActionCreateBlog, json.RawMessage(`{"title":`))
	require.ErrorIs(t, err, ErrInvalidArgument)
	_, err = f.c.QueueAction(ActionCreateBlog, make(chan int))
	require.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewOfflineCoordinator(NewMemoryStorage(), f.monitor, f.remote, &OfflineOptions{MaxRetries: -1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	require.Empty(t, f.c.GetOfflineState().PendingActions)
}

func TestDeleteDraftIsIdempotent(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)
	id, err := f.c.SaveDraft(BlogContent{Title: "a"}, "")
	require.NoError(t, err)

	require.NoError(t, f.c.DeleteDraft(id))
	require.NoError(t, f.c.DeleteDraft(id))
	require.NoError(t, f.c.DeleteDraft("never-existed"))
	require.Empty(t, f.persistedDrafts(t))
	require.Zero(t, f.c.GetSyncStatus().PendingDrafts)
}

func TestClearOfflineData(t *testing.T) {
	f := newCoordinator(t, NewMemoryStorage(), false, nil)
	_, err := f.c.SaveDraft(BlogContent{Title: "a"}, "")
	require.NoError(t, err)
	_, err = f.c.QueueAction(ActionLikeBlog, nil)
	require.NoError(t, err)
	require.NoError(t, f.storage.Set(lastSyncTimeKey, []byte("1")))
	require.NoError(t, f.storage.Set("cache_blog_1", []byte("{}")))

	require.NoError(t, f.c.ClearOfflineData())

	state := f.c.GetOfflineState()
	require.Empty(t, state.Drafts)
	require.Empty(t, state.PendingActions)
	require.True(t, state.LastSyncTime.IsZero())
	keys, err := f.storage.Keys("")
	require.NoError(t, err)
	require.Equal(t, []string{"cache_blog_1"}, keys)
}

func TestSaveDraftPersistFailureKeepsDraft(t *testing.T) {
	f := newCoordinator(t, failingStorage{NewMemoryStorage()}, false, nil)

	id, err := f.c.SaveDraft(BlogContent{Title: "unsaved"}, "")
	require.Error(t, err)
	require.NotEmpty(t, id)
	d, ok := f.c.GetDraft(id)
	require.True(t, ok)
	require.Equal(t, SyncPending, d.SyncStatus)
}

// ============================================================================
// Persistence
// ============================================================================

func TestStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	storage, err := badgerstore.Open(badgerstore.Options{Dir: dir, Compress: true})
	require.NoError(t, err)

	f := newCoordinator(t, storage, false, nil)
	draftID, err := f.c.SaveDraft(BlogContent{Title: "durable", Tags: []string{"a", "b"}}, "")
	require.NoError(t, err)
	actionID, err := f.c.QueueAction(ActionCreateBlog, map[string]string{"title": "durable"})
	require.NoError(t, err)
	f.c.Destroy()
	require.NoError(t, storage.Close())

	reopened, err := badgerstore.Open(badgerstore.Options{Dir: dir})
	require.NoError(t, err)
	defer reopened.Close()

	g := newCoordinator(t, reopened, false, nil)
	state := g.c.GetOfflineState()
	require.Len(t, state.Drafts, 1)
	require.Equal(t, draftID, state.Drafts[0].ID)
	require.Equal(t, []string{"a", "b"}, state.Drafts[0].Fields.Tags)
	require.Equal(t, SyncPending, state.Drafts[0].SyncStatus)
	require.Len(t, state.PendingActions, 1)
	require.Equal(t, actionID, state.PendingActions[0].ID)
	require.Equal(t, DefaultMaxRetries, state.PendingActions[0].MaxRetries)

	report := g.reconnect(t)
	require.Equal(t, 1, report.DraftsSynced)
	require.Equal(t, 1, report.ActionsConfirmed)
}

func TestHydrateRepairsStoredState(t *testing.T) {
	storage := NewMemoryStorage()
	drafts := []Draft{
		{ID: "interrupted", SyncStatus: SyncSyncing},
		{ID: "legacy"},
		{ID: "done", SyncStatus: SyncSynced},
	}
	actions := []PendingAction{
		{ID: "ok", Type: ActionLikeBlog, Payload: json.RawMessage(`{}`), MaxRetries: 3},
		{ID: "bad", Type: "publish_blog", Payload: json.RawMessage(`{}`), MaxRetries: 3},
		{ID: "old", Type: ActionCreateBlog, Payload: json.RawMessage(`{}`)},
		{ID: "spent", Type: ActionCreateBlog, Payload: json.RawMessage(`{}`), RetryCount: 3, MaxRetries: 3},
	}
	raw, err := json.Marshal(drafts)
	require.NoError(t, err)
	require.NoError(t, storage.Set(draftBlogsKey, raw))
	raw, err = json.Marshal(actions)
	require.NoError(t, err)
	require.NoError(t, storage.Set(offlineActionsKey, raw))
	require.NoError(t, storage.Set(lastSyncTimeKey, []byte("1772366400000")))

	f := newCoordinator(t, storage, false, nil)
	state := f.c.GetOfflineState()

	require.Equal(t, SyncPending, state.Drafts[0].SyncStatus)
	require.Equal(t, SyncPending, state.Drafts[1].SyncStatus)
	require.Equal(t, SyncSynced, state.Drafts[2].SyncStatus)

	require.Len(t, state.PendingActions, 2)
	require.Equal(t, "ok", state.PendingActions[0].ID)
	require.Equal(t, "old", state.PendingActions[1].ID)
	require.Equal(t, DefaultMaxRetries, state.PendingActions[1].MaxRetries)
	require.True(t, state.LastSyncTime.Equal(f.clock.Now()))
}

func TestHydrateToleratesCorruptState(t *testing.T) {
	storage := NewMemoryStorage()
	require.NoError(t, storage.Set(draftBlogsKey, []byte("{not json")))
	require.NoError(t, storage.Set(offlineActionsKey, []byte("[{")))
	require.NoError(t, storage.Set(lastSyncTimeKey, []byte("yesterday")))

	f := newCoordinator(t, storage, true, nil)
	state := f.c.GetOfflineState()
	require.Empty(t, state.Drafts)
	require.Empty(t, state.PendingActions)
	require.True(t, state.LastSyncTime.IsZero())
	require.False(t, state.IsOffline)
}
