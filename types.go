package blogsync

import (
	"encoding/json"
	"time"
)

// ============================================================================
// Connectivity Types
// ============================================================================

// TransportType is the normalized kind of link the device is using.
type TransportType string

const (
	TransportNone      TransportType = "none"
	TransportWiFi      TransportType = "wifi"
	TransportCellular  TransportType = "cellular"
	TransportEthernet  TransportType = "ethernet"
	TransportWebSocket TransportType = "websocket"
	TransportUnknown   TransportType = "unknown"
)

// ConnectivityState is an immutable snapshot of the device's network status.
type ConnectivityState struct {
	Connected         bool          `json:"connected"`
	InternetReachable bool          `json:"internetReachable"`
	TransportType     TransportType `json:"transportType"`
	ObservedAt        time.Time     `json:"observedAt"`
}

// IsOffline reports whether the snapshot should be treated as offline.
func (s ConnectivityState) IsOffline() bool {
	return !s.Connected || !s.InternetReachable
}

// OfflineConnectivity is the fallback used whenever the real state is unknown.
func OfflineConnectivity() ConnectivityState {
	return ConnectivityState{TransportType: TransportNone}
}

// ============================================================================
// Blog Content Types
// ============================================================================

// BlogContent is the editable part of a blog post.
type BlogContent struct {
	Title      string   `json:"title,omitempty"`
	Content    string   `json:"content,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CoverImage string   `json:"coverImage,omitempty"`
	Category   string   `json:"category,omitempty"`
	Status     string   `json:"status,omitempty"`
}

// Blog is a published post as returned by the backend.
type Blog struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug,omitempty"`
	AuthorID  string    `json:"authorId,omitempty"`
	Likes     int       `json:"likes"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
	BlogContent
}

// BlogPage is one page of a blog listing.
type BlogPage struct {
	Blogs []Blog `json:"blogs"`
	Total int    `json:"total"`
	Page  int    `json:"page"`
	Limit int    `json:"limit"`
}

// ============================================================================
// Offline Queue Types
// ============================================================================

// ActionType names a mutating operation that can be deferred while offline.
type ActionType string

const (
	ActionCreateBlog ActionType = "create_blog"
	ActionUpdateBlog ActionType = "update_blog"
	ActionDeleteBlog ActionType = "delete_blog"
	ActionLikeBlog   ActionType = "like_blog"
)

// Valid reports whether t is one of the known action types.
func (t ActionType) Valid() bool {
	switch t {
	case ActionCreateBlog, ActionUpdateBlog, ActionDeleteBlog, ActionLikeBlog:
		return true
	}
	return false
}

// PendingAction is a queued mutation waiting for a sync pass.
type PendingAction struct {
	ID         string          `json:"id"`
	Type       ActionType      `json:"type" validate:"required,oneof=create_blog update_blog delete_blog like_blog"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueuedAt"`
	RetryCount int             `json:"retryCount"`
	MaxRetries int             `json:"maxRetries" validate:"gte=1"`
	LastError  string          `json:"lastError,omitempty"`
}

// SyncStatus is the reconciliation state of a draft.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// NeedsSync reports whether a draft with this status is picked up by a sync pass.
func (s SyncStatus) NeedsSync() bool {
	return s == SyncPending || s == SyncFailed
}

// Draft is locally edited blog content that the backend has not confirmed yet.
type Draft struct {
	ID                  string      `json:"id"`
	Fields              BlogContent `json:"fields"`
	LastModified        time.Time   `json:"lastModified"`
	IsOfflineOriginated bool        `json:"isOfflineOriginated"`
	SyncStatus          SyncStatus  `json:"syncStatus"`
}

// OfflineState is the aggregate exposed to subscribers. Values handed out by
// the coordinator are deep copies.
type OfflineState struct {
	IsOffline      bool            `json:"isOffline"`
	PendingActions []PendingAction `json:"pendingActions"`
	Drafts         []Draft         `json:"drafts"`
	LastSyncTime   time.Time       `json:"lastSyncTime"`
}

func (s OfflineState) clone() OfflineState {
	out := OfflineState{
		IsOffline:      s.IsOffline,
		LastSyncTime:   s.LastSyncTime,
		PendingActions: make([]PendingAction, len(s.PendingActions)),
		Drafts:         make([]Draft, len(s.Drafts)),
	}
	for i, a := range s.PendingActions {
		a.Payload = append(json.RawMessage(nil), a.Payload...)
		out.PendingActions[i] = a
	}
	for i, d := range s.Drafts {
		d.Fields.Tags = append([]string(nil), d.Fields.Tags...)
		out.Drafts[i] = d
	}
	return out
}

// SyncStatusSummary is the compact status used for offline banners.
type SyncStatusSummary struct {
	PendingActions int       `json:"pendingActions"`
	PendingDrafts  int       `json:"pendingDrafts"`
	LastSyncTime   time.Time `json:"lastSyncTime"`
	IsOnline       bool      `json:"isOnline"`
	Syncing        bool      `json:"syncing"`
}

// SyncReport summarizes one sync pass.
type SyncReport struct {
	Skipped          bool          `json:"skipped"`
	Aborted          bool          `json:"aborted"`
	DraftsSynced     int           `json:"draftsSynced"`
	DraftsFailed     int           `json:"draftsFailed"`
	ActionsConfirmed int           `json:"actionsConfirmed"`
	ActionsRetrying  int           `json:"actionsRetrying"`
	ActionsDropped   int           `json:"actionsDropped"`
	Duration         time.Duration `json:"duration"`
}
