// Package blogsync is the offline-first data layer of the blog mobile client:
// connectivity monitoring, an expiring LRU cache, a durable queue of pending
// mutations, and draft reconciliation when the device comes back online.
//
// Usage:
//
//	storage, _ := badgerstore.Open(badgerstore.Options{Dir: dir})
//	source := blogsync.NewManualSource(blogsync.OfflineConnectivity())
//	monitor := blogsync.NewNetworkMonitor(source, storage, nil)
//	monitor.Init(ctx)
//
//	client := blogsync.NewClient(apiKey, blogsync.WithBaseURL(url))
//	offline, _ := blogsync.NewOfflineCoordinator(storage, monitor, client, nil)
//	offline.Init(ctx)
//	defer offline.Destroy()
//
//	id, _ := offline.SaveDraft(blogsync.BlogContent{Title: "Hello"}, "")
//	offline.QueueAction(blogsync.ActionLikeBlog, map[string]string{"id": "b1"})
package blogsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Persisted keys.
const (
	offlineActionsKey = "offline_actions"
	draftBlogsKey     = "draft_blogs"
	lastSyncTimeKey   = "last_sync_time"
)

// DefaultMaxRetries is the number of sync passes an action may be attempted in.
const DefaultMaxRetries = 3

// ============================================================================
// Collaborators
// ============================================================================

// RemoteAPI is the backend surface pending work is replayed against. Each call
// either succeeds or returns an error; timeouts belong to the implementation.
type RemoteAPI interface {
	CreateBlog(ctx context.Context, payload json.RawMessage) error
	UpdateBlog(ctx context.Context, payload json.RawMessage) error
	DeleteBlog(ctx context.Context, payload json.RawMessage) error
	LikeBlog(ctx context.Context, payload json.RawMessage) error
	SaveDraft(ctx context.Context, draft Draft) error
}

// ConnectivityMonitor is the part of NetworkMonitor the coordinator needs.
type ConnectivityMonitor interface {
	CurrentState() ConnectivityState
	Subscribe(fn func(ConnectivityState)) (unsubscribe func())
}

// OfflineOptions configures the OfflineCoordinator.
type OfflineOptions struct {
	// MaxRetries for newly queued actions; 0 means DefaultMaxRetries.
	MaxRetries int `validate:"gte=0"`
	// ShouldRetry reports whether a failed action may be attempted again.
	// Defaults to DefaultShouldRetry.
	ShouldRetry func(error) bool

	Logger  *zap.Logger
	Metrics *Metrics
	Now     func() time.Time
}

func (o *OfflineOptions) defaults() {
	if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.ShouldRetry == nil {
		o.ShouldRetry = DefaultShouldRetry
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// ============================================================================
// Offline Coordinator
// ============================================================================

// OfflineCoordinator owns the pending-action queue and the draft registry and
// replays them against the backend when connectivity returns.
type OfflineCoordinator struct {
	offlineEmitter
	storage Storage
	monitor ConnectivityMonitor
	remote  RemoteAPI

	maxRetries  int
	shouldRetry func(error) bool
	log         *zap.Logger
	metrics     *Metrics
	now         func() time.Time

	mu          sync.Mutex
	state       OfflineState
	syncing     bool
	initialized bool
	destroyed   bool
	unsubscribe func()
	runCtx      context.Context
	cancelRun   context.CancelFunc

	listeners *listenerSet[OfflineState]
	flight    singleflight.Group
	autoSync  sync.WaitGroup
}

// NewOfflineCoordinator creates a coordinator. Call Init before use.
func NewOfflineCoordinator(storage Storage, monitor ConnectivityMonitor, remote RemoteAPI, opts *OfflineOptions) (*OfflineCoordinator, error) {
	if storage == nil || monitor == nil || remote == nil {
		return nil, invalidArgument("storage, monitor and remote are required")
	}
	var o OfflineOptions
	if opts != nil {
		o = *opts
	}
	o.defaults()
	if err := validateStruct(o); err != nil {
		return nil, err
	}
	log := o.Logger.With(zap.String("module", "offline"))
	return &OfflineCoordinator{
		offlineEmitter: newOfflineEmitter(log),
		storage:        storage,
		monitor:        monitor,
		remote:         remote,
		maxRetries:     o.MaxRetries,
		shouldRetry:    o.ShouldRetry,
		log:            log,
		metrics:        o.Metrics,
		now:            o.Now,
		state:          OfflineState{PendingActions: []PendingAction{}, Drafts: []Draft{}},
		listeners:      newListenerSet[OfflineState](log),
	}, nil
}

// Init hydrates the persisted queue and drafts and starts following the
// monitor. ctx bounds automatic sync passes started by connectivity changes.
func (c *OfflineCoordinator) Init(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.initialized {
		c.mu.Unlock()
		return nil
	}
	c.state.PendingActions = c.loadActions()
	c.state.Drafts = c.loadDrafts()
	c.state.LastSyncTime = c.loadLastSyncTime()
	c.state.IsOffline = c.monitor.CurrentState().IsOffline()
	c.runCtx, c.cancelRun = context.WithCancel(ctx)
	c.initialized = true
	c.reportDepthLocked()
	actions, drafts, offline := len(c.state.PendingActions), len(c.state.Drafts), c.state.IsOffline
	c.mu.Unlock()

	unsubscribe := c.monitor.Subscribe(c.handleConnectivity)
	c.mu.Lock()
	c.unsubscribe = unsubscribe
	c.mu.Unlock()

	c.log.Info("offline coordinator ready",
		zap.Int("pending_actions", actions),
		zap.Int("drafts", drafts),
		zap.Bool("offline", offline))
	return nil
}

// Destroy stops following the monitor and waits for automatic sync passes.
func (c *OfflineCoordinator) Destroy() {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return
	}
	c.destroyed = true
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	if c.cancelRun != nil {
		c.cancelRun()
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	c.autoSync.Wait()
	c.listeners.clear()
	c.removeAll()
}

func (c *OfflineCoordinator) usableLocked() error {
	if c.destroyed {
		return ErrDestroyed
	}
	if !c.initialized {
		return ErrNotInitialized
	}
	return nil
}

// handleConnectivity applies a monitor snapshot. Only the Offline to Online
// edge starts a sync pass.
func (c *OfflineCoordinator) handleConnectivity(s ConnectivityState) {
	offline := s.IsOffline()

	c.mu.Lock()
	if c.destroyed || c.state.IsOffline == offline {
		c.mu.Unlock()
		return
	}
	c.state.IsOffline = offline
	snapshot := c.state.clone()
	if !offline {
		c.autoSync.Add(1)
	}
	ctx := c.runCtx
	c.mu.Unlock()

	c.listeners.publish(snapshot)
	if offline {
		c.log.Info("device offline")
		c.emit(EventNetworkOffline, s)
		return
	}

	c.log.Info("device online; syncing pending data")
	c.emit(EventNetworkOnline, s)
	go func() {
		defer c.autoSync.Done()
		if _, err := c.SyncPendingData(ctx); err != nil {
			c.log.Warn("automatic sync failed", zap.Error(err))
		}
	}()
}

// AddListener registers fn to receive a full state snapshot after every change.
func (c *OfflineCoordinator) AddListener(fn func(OfflineState)) (unsubscribe func()) {
	return c.listeners.add(fn)
}

// GetOfflineState returns a snapshot of the aggregate.
func (c *OfflineCoordinator) GetOfflineState() OfflineState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.clone()
}

// GetSyncStatus summarizes the queue for offline banners.
func (c *OfflineCoordinator) GetSyncStatus() SyncStatusSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SyncStatusSummary{
		PendingActions: len(c.state.PendingActions),
		PendingDrafts:  countUnsynced(c.state.Drafts),
		LastSyncTime:   c.state.LastSyncTime,
		IsOnline:       !c.state.IsOffline,
		Syncing:        c.syncing,
	}
}

func countUnsynced(drafts []Draft) int {
	n := 0
	for _, d := range drafts {
		if d.SyncStatus != SyncSynced {
			n++
		}
	}
	return n
}

// ── Drafts ────────────────────────────────────────────────

// SaveDraft creates or replaces a draft and persists it before returning. An
// empty draftID creates a new draft. If persisting fails the draft is kept in
// memory and the error is returned with the id.
func (c *OfflineCoordinator) SaveDraft(fields BlogContent, draftID string) (string, error) {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	if draftID == "" {
		draftID = uuid.NewString()
	}
	fields.Tags = append([]string(nil), fields.Tags...)
	offline := c.state.IsOffline
	draft := Draft{
		ID:                  draftID,
		Fields:              fields,
		LastModified:        c.now(),
		IsOfflineOriginated: offline,
		SyncStatus:          SyncSynced,
	}
	if offline {
		draft.SyncStatus = SyncPending
	}

	drafts := make([]Draft, 0, len(c.state.Drafts)+1)
	replaced := false
	for _, d := range c.state.Drafts {
		if d.ID == draftID {
			drafts = append(drafts, draft)
			replaced = true
			continue
		}
		drafts = append(drafts, d)
	}
	if !replaced {
		drafts = append(drafts, draft)
	}
	c.state.Drafts = drafts
	err := c.persistDraftsLocked()
	c.reportDepthLocked()
	snapshot := c.state.clone()
	c.mu.Unlock()

	c.listeners.publish(snapshot)
	if err != nil {
		return draftID, fmt.Errorf("persist draft %s: %w", draftID, err)
	}
	return draftID, nil
}

// GetDraft returns the draft with id.
func (c *OfflineCoordinator) GetDraft(id string) (Draft, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.state.Drafts {
		if d.ID == id {
			d.Fields.Tags = append([]string(nil), d.Fields.Tags...)
			return d, true
		}
	}
	return Draft{}, false
}

// DeleteDraft removes the draft with id. Unknown ids are ignored.
func (c *OfflineCoordinator) DeleteDraft(id string) error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	drafts := make([]Draft, 0, len(c.state.Drafts))
	for _, d := range c.state.Drafts {
		if d.ID != id {
			drafts = append(drafts, d)
		}
	}
	if len(drafts) == len(c.state.Drafts) {
		c.mu.Unlock()
		return nil
	}
	c.state.Drafts = drafts
	c.persistDraftsLocked()
	c.reportDepthLocked()
	snapshot := c.state.clone()
	c.mu.Unlock()

	c.listeners.publish(snapshot)
	return nil
}

// ── Action queue ──────────────────────────────────────────

// QueueAction appends a mutation to the queue. payload is JSON-encoded unless
// it already is raw JSON. Delivery always happens in a sync pass, even when
// online.
func (c *OfflineCoordinator) QueueAction(t ActionType, payload any) (string, error) {
	raw, err := encodePayload(payload)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}
	action := PendingAction{
		ID:         uuid.NewString(),
		Type:       t,
		Payload:    raw,
		EnqueuedAt: c.now(),
		MaxRetries: c.maxRetries,
	}
	if err := validateStruct(action); err != nil {
		c.mu.Unlock()
		return "", err
	}
	actions := make([]PendingAction, 0, len(c.state.PendingActions)+1)
	actions = append(actions, c.state.PendingActions...)
	c.state.PendingActions = append(actions, action)
	c.persistActionsLocked()
	c.reportDepthLocked()
	snapshot := c.state.clone()
	c.mu.Unlock()

	c.log.Debug("action queued", zap.String("id", action.ID), zap.String("type", string(t)))
	c.listeners.publish(snapshot)
	return action.ID, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if !json.Valid(p) {
			return nil, invalidArgument("payload is not valid JSON")
		}
		return append(json.RawMessage(nil), p...), nil
	case []byte:
		if !json.Valid(p) {
			return nil, invalidArgument("payload is not valid JSON")
		}
		return append(json.RawMessage(nil), p...), nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, invalidArgument("encode payload: %v", err)
		}
		return raw, nil
	}
}

// ClearOfflineData drops every queued action, draft and the last sync time.
func (c *OfflineCoordinator) ClearOfflineData() error {
	c.mu.Lock()
	if err := c.usableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.state.PendingActions = []PendingAction{}
	c.state.Drafts = []Draft{}
	c.state.LastSyncTime = time.Time{}
	err := c.storage.Delete(offlineActionsKey, draftBlogsKey, lastSyncTimeKey)
	if err != nil {
		c.log.Warn("clear offline data", zap.Error(err))
	}
	c.reportDepthLocked()
	snapshot := c.state.clone()
	c.mu.Unlock()

	c.listeners.publish(snapshot)
	return err
}

// ============================================================================
// Sync engine
// ============================================================================

// SyncPendingData replays pending drafts and actions against the backend.
// It is a no-op while offline. Concurrent calls share one pass and its report.
// Item failures are recorded on the items and never returned.
func (c *OfflineCoordinator) SyncPendingData(ctx context.Context) (SyncReport, error) {
	c.mu.Lock()
	err := c.usableLocked()
	c.mu.Unlock()
	if err != nil {
		return SyncReport{}, err
	}
	v, _, _ := c.flight.Do("sync", func() (any, error) {
		return c.syncPass(ctx), nil
	})
	return v.(SyncReport), nil
}

func (c *OfflineCoordinator) syncPass(ctx context.Context) SyncReport {
	start := c.now()

	c.mu.Lock()
	if c.state.IsOffline {
		c.mu.Unlock()
		c.metrics.syncPass("skipped", 0)
		return SyncReport{Skipped: true}
	}
	c.syncing = true
	var drafts []Draft
	for _, d := range c.state.Drafts {
		if d.SyncStatus.NeedsSync() {
			drafts = append(drafts, d)
		}
	}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()

	c.emit(EventSyncStart, nil)
	c.log.Debug("sync pass started", zap.Int("drafts", len(drafts)))

	var report SyncReport
	report.Aborted = c.syncDrafts(ctx, drafts, &report)
	if !report.Aborted {
		report.Aborted = c.syncActions(ctx, &report)
	}
	report.Duration = c.now().Sub(start)

	if report.Aborted {
		c.log.Info("sync pass aborted", zap.Any("report", report))
		c.metrics.syncPass("aborted", report.Duration)
		c.emit(EventSyncComplete, report)
		return report
	}

	c.mu.Lock()
	c.state.LastSyncTime = c.now()
	c.persistLastSyncLocked()
	snapshot := c.state.clone()
	c.mu.Unlock()
	c.listeners.publish(snapshot)

	c.log.Info("sync pass completed",
		zap.Int("drafts_synced", report.DraftsSynced),
		zap.Int("drafts_failed", report.DraftsFailed),
		zap.Int("actions_confirmed", report.ActionsConfirmed),
		zap.Int("actions_retrying", report.ActionsRetrying),
		zap.Int("actions_dropped", report.ActionsDropped),
		zap.Duration("duration", report.Duration))
	c.metrics.syncPass("completed", report.Duration)
	c.emit(EventSyncComplete, report)
	return report
}

// canContinue is checked before every remote call.
func (c *OfflineCoordinator) canContinue(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.state.IsOffline && !c.destroyed
}

func (c *OfflineCoordinator) syncDrafts(ctx context.Context, snapshot []Draft, report *SyncReport) (aborted bool) {
	if len(snapshot) == 0 {
		return false
	}
	defer func() {
		c.mu.Lock()
		c.persistDraftsLocked()
		c.reportDepthLocked()
		state := c.state.clone()
		c.mu.Unlock()
		c.listeners.publish(state)
	}()

	for _, d := range snapshot {
		if !c.canContinue(ctx) {
			return true
		}

		c.mu.Lock()
		sent, ok := c.setDraftStatusLocked(d.ID, SyncSyncing)
		if !ok {
			c.mu.Unlock()
			continue
		}
		c.persistDraftsLocked()
		state := c.state.clone()
		c.mu.Unlock()
		c.listeners.publish(state)

		err := c.callRemote(func() error { return c.remote.SaveDraft(ctx, sent) })

		c.mu.Lock()
		idx := indexOfDraft(c.state.Drafts, d.ID)
		if idx < 0 {
			// Deleted while the request was in flight.
			c.mu.Unlock()
			continue
		}
		drafts := append([]Draft(nil), c.state.Drafts...)
		cur := drafts[idx]
		switch {
		case err != nil:
			cur.SyncStatus = SyncFailed
		case cur.LastModified.After(sent.LastModified):
			// Edited during the upload; the newer content still needs a pass.
			cur.SyncStatus = SyncPending
		default:
			cur.SyncStatus = SyncSynced
			cur.IsOfflineOriginated = false
		}
		drafts[idx] = cur
		c.state.Drafts = drafts
		c.mu.Unlock()

		if err != nil {
			report.DraftsFailed++
			c.log.Warn("draft sync failed", zap.String("draft_id", d.ID), zap.Error(err))
			c.emit(EventDraftFailed, map[string]any{"draftId": d.ID, "error": err.Error()})
			continue
		}
		report.DraftsSynced++
		c.emit(EventDraftSynced, cur)
	}
	return false
}

// setDraftStatusLocked updates the live draft and returns a copy of it.
func (c *OfflineCoordinator) setDraftStatusLocked(id string, status SyncStatus) (Draft, bool) {
	idx := indexOfDraft(c.state.Drafts, id)
	if idx < 0 {
		return Draft{}, false
	}
	drafts := append([]Draft(nil), c.state.Drafts...)
	drafts[idx].SyncStatus = status
	c.state.Drafts = drafts
	d := drafts[idx]
	d.Fields.Tags = append([]string(nil), d.Fields.Tags...)
	return d, true
}

func indexOfDraft(drafts []Draft, id string) int {
	for i, d := range drafts {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (c *OfflineCoordinator) syncActions(ctx context.Context, report *SyncReport) (aborted bool) {
	c.mu.Lock()
	snapshot := append([]PendingAction(nil), c.state.PendingActions...)
	c.mu.Unlock()
	if len(snapshot) == 0 {
		return false
	}
	defer func() {
		c.mu.Lock()
		c.persistActionsLocked()
		c.reportDepthLocked()
		state := c.state.clone()
		c.mu.Unlock()
		c.listeners.publish(state)
	}()

	for _, a := range snapshot {
		if !c.canContinue(ctx) {
			return true
		}
		err := c.callRemote(func() error { return c.dispatch(ctx, a) })

		c.mu.Lock()
		actions := make([]PendingAction, 0, len(c.state.PendingActions))
		var (
			found   bool
			updated PendingAction
			dropped string
		)
		for _, live := range c.state.PendingActions {
			if live.ID != a.ID {
				actions = append(actions, live)
				continue
			}
			found = true
			if err == nil {
				updated = live
				continue
			}
			live.RetryCount++
			live.LastError = err.Error()
			updated = live
			switch {
			case !c.shouldRetry(err):
				dropped = "permanent"
			case live.RetryCount >= live.MaxRetries:
				dropped = "exhausted"
			default:
				actions = append(actions, live)
			}
		}
		c.state.PendingActions = actions
		c.mu.Unlock()

		if !found {
			// Cleared while the request was in flight.
			continue
		}
		switch {
		case err == nil:
			report.ActionsConfirmed++
			c.emit(EventActionConfirmed, updated)
		case dropped != "":
			report.ActionsDropped++
			c.metrics.actionDropped(updated.Type, dropped)
			c.log.Warn("dropping action",
				zap.String("action_id", updated.ID),
				zap.String("type", string(updated.Type)),
				zap.String("reason", dropped),
				zap.Int("attempts", updated.RetryCount),
				zap.Error(err))
			c.emit(EventActionDropped, updated)
		default:
			report.ActionsRetrying++
			c.log.Debug("action failed; will retry",
				zap.String("action_id", updated.ID),
				zap.Int("attempts", updated.RetryCount),
				zap.Error(err))
			c.emit(EventActionFailed, updated)
		}
	}
	return false
}

func (c *OfflineCoordinator) dispatch(ctx context.Context, a PendingAction) error {
	switch a.Type {
	case ActionCreateBlog:
		return c.remote.CreateBlog(ctx, a.Payload)
	case ActionUpdateBlog:
		return c.remote.UpdateBlog(ctx, a.Payload)
	case ActionDeleteBlog:
		return c.remote.DeleteBlog(ctx, a.Payload)
	case ActionLikeBlog:
		return c.remote.LikeBlog(ctx, a.Payload)
	}
	return invalidArgument("unknown action type %q", a.Type)
}

// callRemote turns a panicking collaborator into an item failure.
func (c *OfflineCoordinator) callRemote(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote call panicked: %v", r)
		}
	}()
	return fn()
}

// ============================================================================
// Persistence
// ============================================================================

func (c *OfflineCoordinator) saveJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.storage.Set(key, data); err != nil {
		c.log.Warn("persist offline state", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (c *OfflineCoordinator) persistDraftsLocked() error {
	return c.saveJSON(draftBlogsKey, c.state.Drafts)
}

func (c *OfflineCoordinator) persistActionsLocked() error {
	return c.saveJSON(offlineActionsKey, c.state.PendingActions)
}

func (c *OfflineCoordinator) persistLastSyncLocked() {
	value := strconv.FormatInt(c.state.LastSyncTime.UnixMilli(), 10)
	if err := c.storage.Set(lastSyncTimeKey, []byte(value)); err != nil {
		c.log.Warn("persist offline state", zap.String("key", lastSyncTimeKey), zap.Error(err))
	}
}

func (c *OfflineCoordinator) loadJSON(key string, v any) bool {
	data, ok, err := c.storage.Get(key)
	if err != nil {
		c.log.Warn("load offline state", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		c.log.Warn("corrupt offline state; starting empty", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *OfflineCoordinator) loadActions() []PendingAction {
	var actions []PendingAction
	if !c.loadJSON(offlineActionsKey, &actions) {
		return []PendingAction{}
	}
	out := actions[:0]
	for _, a := range actions {
		if !a.Type.Valid() {
			c.log.Warn("discarding stored action with unknown type", zap.String("action_id", a.ID), zap.String("type", string(a.Type)))
			continue
		}
		if a.MaxRetries < 1 {
			a.MaxRetries = c.maxRetries
		}
		if a.RetryCount >= a.MaxRetries {
			continue
		}
		out = append(out, a)
	}
	return out
}

func (c *OfflineCoordinator) loadDrafts() []Draft {
	var drafts []Draft
	if !c.loadJSON(draftBlogsKey, &drafts) {
		return []Draft{}
	}
	for i := range drafts {
		// A pass interrupted by process death leaves drafts in syncing.
		if drafts[i].SyncStatus == SyncSyncing || drafts[i].SyncStatus == "" {
			drafts[i].SyncStatus = SyncPending
		}
	}
	return drafts
}

func (c *OfflineCoordinator) loadLastSyncTime() time.Time {
	data, ok, err := c.storage.Get(lastSyncTimeKey)
	if err != nil || !ok {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func (c *OfflineCoordinator) reportDepthLocked() {
	c.metrics.queueDepth(len(c.state.PendingActions), countUnsynced(c.state.Drafts))
}
