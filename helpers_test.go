package blogsync

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// ============================================================================
// Test Helpers
// ============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newObservedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

type remoteCall struct {
	Type    ActionType
	Payload json.RawMessage
}

// fakeRemote records every call. actionErr and draftErr decide failures;
// gate, when set, blocks each call until it is closed.
type fakeRemote struct {
	mu        sync.Mutex
	actions   []remoteCall
	drafts    []Draft
	actionErr func(ActionType, json.RawMessage) error
	draftErr  func(Draft) error
	onCall    func()
	gate      chan struct{}
	entered   chan struct{}
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{entered: make(chan struct{}, 64)}
}

func (f *fakeRemote) wait(ctx context.Context) error {
	f.entered <- struct{}{}
	f.mu.Lock()
	gate, onCall := f.gate, f.onCall
	f.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeRemote) action(ctx context.Context, t ActionType, payload json.RawMessage) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, remoteCall{Type: t, Payload: append(json.RawMessage(nil), payload...)})
	if f.actionErr != nil {
		return f.actionErr(t, payload)
	}
	return nil
}

func (f *fakeRemote) CreateBlog(ctx context.Context, p json.RawMessage) error {
	return f.action(ctx, ActionCreateBlog, p)
}

func (f *fakeRemote) UpdateBlog(ctx context.Context, p json.RawMessage) error {
	return f.action(ctx, ActionUpdateBlog, p)
}

func (f *fakeRemote) DeleteBlog(ctx context.Context, p json.RawMessage) error {
	return f.action(ctx, ActionDeleteBlog, p)
}

func (f *fakeRemote) LikeBlog(ctx context.Context, p json.RawMessage) error {
	return f.action(ctx, ActionLikeBlog, p)
}

func (f *fakeRemote) SaveDraft(ctx context.Context, d Draft) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	if f.draftErr != nil {
		return f.draftErr(d)
	}
	return nil
}

func (f *fakeRemote) actionCalls() []remoteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remoteCall(nil), f.actions...)
}

func (f *fakeRemote) draftCalls() []Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Draft(nil), f.drafts...)
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		require.FailNow(t, "timed out waiting for value")
	}
	var zero T
	return zero
}
