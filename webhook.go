package blogsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// ============================================================================
// Blog change webhook
// ============================================================================

// WebhookSignatureHeader carries the hex HMAC-SHA256 of the request body,
// optionally prefixed with "sha256=".
const WebhookSignatureHeader = "X-Blog-Signature"

// maxWebhookBody bounds the request body read by the handler.
const maxWebhookBody = 1 << 20

// VerifyWebhookSignature checks signature against the HMAC-SHA256 of body.
// The comparison is constant-time.
func VerifyWebhookSignature(body []byte, signature, secret string) bool {
	if len(body) == 0 || signature == "" || secret == "" {
		return false
	}
	sig := strings.TrimPrefix(signature, "sha256=")
	if sig == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if len(sig) != len(expected) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(sig), []byte(expected)) == 1
}

// ParseWebhookEvent decodes a {"type","payload"} envelope into a BlogEvent.
func ParseWebhookEvent(body []byte) (BlogEvent, error) {
	var env RealtimeEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return BlogEvent{}, fmt.Errorf("invalid JSON in webhook body: %w", err)
	}
	switch env.Type {
	case BlogEventCreated, BlogEventUpdated, BlogEventDeleted:
	case "":
		return BlogEvent{}, fmt.Errorf("missing type field in webhook body")
	default:
		return BlogEvent{}, fmt.Errorf("unknown webhook event: %s", env.Type)
	}
	var ev BlogEvent
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return BlogEvent{}, fmt.Errorf("invalid webhook payload: %w", err)
		}
	}
	ev.Type = env.Type
	if ev.BlogID == "" {
		return BlogEvent{}, fmt.Errorf("missing blogId in webhook payload")
	}
	return ev, nil
}

// BlogWebhook receives signed blog change notifications pushed by the
// backend. It is a BlogEvents source, so a CacheManager can follow it the
// same way it follows a WebSocketSource.
type BlogWebhook struct {
	secret string
	log    *zap.Logger
	events *listenerSet[BlogEvent]
}

// NewBlogWebhook creates a receiver that accepts bodies signed with secret.
func NewBlogWebhook(secret string, log *zap.Logger) (*BlogWebhook, error) {
	if secret == "" {
		return nil, invalidArgument("webhook secret is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("module", "webhook"))
	return &BlogWebhook{
		secret: secret,
		log:    log,
		events: newListenerSet[BlogEvent](log),
	}, nil
}

// OnBlogEvent registers fn for every accepted event.
func (w *BlogWebhook) OnBlogEvent(fn func(BlogEvent)) (unsubscribe func()) {
	return w.events.add(fn)
}

// Handle verifies, parses and publishes one delivery. It returns the status
// code and response body for the caller to write.
func (w *BlogWebhook) Handle(body []byte, signature string) (int, any) {
	if !VerifyWebhookSignature(body, signature, w.secret) {
		w.log.Warn("webhook signature rejected")
		return http.StatusUnauthorized, map[string]string{"error": "Invalid signature"}
	}
	ev, err := ParseWebhookEvent(body)
	if err != nil {
		return http.StatusBadRequest, map[string]string{"error": err.Error()}
	}
	w.log.Debug("webhook event", zap.String("type", ev.Type), zap.String("blog_id", ev.BlogID))
	w.events.publish(ev)
	return http.StatusOK, map[string]bool{"ok": true}
}

// ServeHTTP accepts POST deliveries.
//
// Example:
//
//	wh, _ := blogsync.NewBlogWebhook(secret, log)
//	defer cache.InvalidateOnEvents(wh)()
//	http.Handle("/hooks/blogs", wh)
func (w *BlogWebhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeWebhookJSON(rw, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeWebhookJSON(rw, http.StatusBadRequest, map[string]string{"error": "Failed to read body"})
		return
	}
	status, data := w.Handle(body, r.Header.Get(WebhookSignatureHeader))
	writeWebhookJSON(rw, status, data)
}

func writeWebhookJSON(rw http.ResponseWriter, status int, data any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	json.NewEncoder(rw).Encode(data)
}
