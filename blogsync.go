package blogsync

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL = "http://localhost:5000"
	DefaultTimeout = 30 * time.Second
)

// ============================================================================
// Client
// ============================================================================

// Client talks to the blog backend. It implements RemoteAPI.
type Client struct {
	apiKey         string
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	limiter        *rate.Limiter
	blogs          *BlogsClient
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = client }
}

// WithRequestTimeout bounds every single call, so one hung request cannot
// stall a sync pass.
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.requestTimeout = timeout }
}

// WithRateLimit throttles outgoing requests to rps with the given burst.
func WithRateLimit(rps float64, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewClient creates a backend client. apiKey may be empty.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.blogs = &BlogsClient{client: c}
	return c
}

// SetToken sets or updates the bearer token.
func (c *Client) SetToken(token string) {
	c.apiKey = token
}

// BaseURL returns the backend address.
func (c *Client) BaseURL() string { return c.baseURL }

// Blogs returns the blog API sub-client.
func (c *Client) Blogs() *BlogsClient {
	return c.blogs
}

// Health checks that the backend answers.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, nil)
	return err
}

// ============================================================================
// Internal request helper
// ============================================================================

func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}, query map[string]string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	u := c.baseURL + path
	if len(query) > 0 {
		params := url.Values{}
		for k, v := range query {
			params.Set(k, v)
		}
		u += "?" + params.Encode()
	}

	var bodyReader io.Reader
	switch b := body.(type) {
	case nil:
	case json.RawMessage:
		bodyReader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apiErrorFrom(resp.StatusCode, data)
	}
	return data, nil
}

// apiErrorFrom accepts {"error":{"code","message"}} as well as flat
// {"code","message"} bodies.
func apiErrorFrom(status int, body []byte) *APIError {
	e := &APIError{StatusCode: status}
	if gjson.ValidBytes(body) {
		res := gjson.ParseBytes(body)
		e.Code = firstString(res, "error.code", "code")
		e.Message = firstString(res, "error.message", "message", "error")
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

func firstString(res gjson.Result, paths ...string) string {
	for _, p := range paths {
		if v := res.Get(p); v.Exists() && v.Type == gjson.String {
			return v.String()
		}
	}
	return ""
}

// unwrapData returns the "data" member of an enveloped response, or the whole
// body when there is no envelope.
func unwrapData(body []byte) []byte {
	if v := gjson.GetBytes(body, "data"); v.IsObject() || v.IsArray() {
		return []byte(v.Raw)
	}
	return body
}

func decodeJSON[T any](data []byte) (*T, error) {
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &result, nil
}

// payloadID extracts the blog id an action refers to.
func payloadID(payload json.RawMessage) (string, error) {
	if !gjson.ValidBytes(payload) {
		return "", invalidArgument("payload is not valid JSON")
	}
	for _, p := range []string{"id", "_id", "blogId"} {
		if v := gjson.GetBytes(payload, p); v.Exists() && v.String() != "" {
			return v.String(), nil
		}
	}
	return "", invalidArgument("payload has no blog id")
}

// ============================================================================
// RemoteAPI
// ============================================================================

func (c *Client) CreateBlog(ctx context.Context, payload json.RawMessage) error {
	_, err := c.doRequest(ctx, http.MethodPost, "/api/blogs", payload, nil)
	return err
}

func (c *Client) UpdateBlog(ctx context.Context, payload json.RawMessage) error {
	id, err := payloadID(payload)
	if err != nil {
		return err
	}
	_, err = c.doRequest(ctx, http.MethodPut, "/api/blogs/"+url.PathEscape(id), payload, nil)
	return err
}

func (c *Client) DeleteBlog(ctx context.Context, payload json.RawMessage) error {
	id, err := payloadID(payload)
	if err != nil {
		return err
	}
	_, err = c.doRequest(ctx, http.MethodDelete, "/api/blogs/"+url.PathEscape(id), nil, nil)
	return err
}

func (c *Client) LikeBlog(ctx context.Context, payload json.RawMessage) error {
	id, err := payloadID(payload)
	if err != nil {
		return err
	}
	_, err = c.doRequest(ctx, http.MethodPost, "/api/blogs/"+url.PathEscape(id)+"/like", nil, nil)
	return err
}

func (c *Client) SaveDraft(ctx context.Context, draft Draft) error {
	return c.blogs.SaveDraft(ctx, draft)
}

// ============================================================================
// Blogs Client
// ============================================================================

// BlogsClient provides typed access to the blog endpoints.
type BlogsClient struct{ client *Client }

// ListOptions selects a page of blogs.
type ListOptions struct {
	Page     int
	Limit    int
	Category string
	Tag      string
	Search   string
}

func (o *ListOptions) query() map[string]string {
	if o == nil {
		return nil
	}
	q := map[string]string{}
	if o.Page > 0 {
		q["page"] = strconv.Itoa(o.Page)
	}
	if o.Limit > 0 {
		q["limit"] = strconv.Itoa(o.Limit)
	}
	if o.Category != "" {
		q["category"] = o.Category
	}
	if o.Tag != "" {
		q["tag"] = o.Tag
	}
	if o.Search != "" {
		q["search"] = o.Search
	}
	return q
}

// cacheKey is stable across map iteration order.
func (o *ListOptions) cacheKey() string {
	q := url.Values{}
	for k, v := range o.query() {
		q.Set(k, v)
	}
	if len(q) == 0 {
		return "all"
	}
	return q.Encode()
}

func decodeBlog(data []byte) (*Blog, error) {
	if v := gjson.GetBytes(data, "data.blog"); v.IsObject() {
		return decodeJSON[Blog]([]byte(v.Raw))
	}
	return decodeJSON[Blog](unwrapData(data))
}

func (b *BlogsClient) Create(ctx context.Context, content BlogContent) (*Blog, error) {
	data, err := b.client.doRequest(ctx, http.MethodPost, "/api/blogs", content, nil)
	if err != nil {
		return nil, err
	}
	return decodeBlog(data)
}

func (b *BlogsClient) Update(ctx context.Context, id string, content BlogContent) (*Blog, error) {
	data, err := b.client.doRequest(ctx, http.MethodPut, "/api/blogs/"+url.PathEscape(id), content, nil)
	if err != nil {
		return nil, err
	}
	return decodeBlog(data)
}

func (b *BlogsClient) Delete(ctx context.Context, id string) error {
	_, err := b.client.doRequest(ctx, http.MethodDelete, "/api/blogs/"+url.PathEscape(id), nil, nil)
	return err
}

func (b *BlogsClient) Like(ctx context.Context, id string) error {
	_, err := b.client.doRequest(ctx, http.MethodPost, "/api/blogs/"+url.PathEscape(id)+"/like", nil, nil)
	return err
}

func (b *BlogsClient) Get(ctx context.Context, id string) (*Blog, error) {
	data, err := b.client.doRequest(ctx, http.MethodGet, "/api/blogs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeBlog(data)
}

func (b *BlogsClient) List(ctx context.Context, opts *ListOptions) (*BlogPage, error) {
	data, err := b.client.doRequest(ctx, http.MethodGet, "/api/blogs", nil, opts.query())
	if err != nil {
		return nil, err
	}
	return decodeJSON[BlogPage](unwrapData(data))
}

// SaveDraft uploads a draft. The backend upserts by id.
func (b *BlogsClient) SaveDraft(ctx context.Context, draft Draft) error {
	body := struct {
		ID string `json:"id"`
		BlogContent
		LastModified        time.Time `json:"lastModified"`
		IsOfflineOriginated bool      `json:"isOfflineOriginated"`
	}{draft.ID, draft.Fields, draft.LastModified, draft.IsOfflineOriginated}
	_, err := b.client.doRequest(ctx, http.MethodPost, "/api/drafts", body, nil)
	return err
}

// ============================================================================
// Cached reads
// ============================================================================

// CachedBlogs reads blogs through the cache: fresh data is fetched and cached
// while online, and the cached copy is served when offline or when the
// backend cannot be reached.
type CachedBlogs struct {
	blogs   *BlogsClient
	cache   *CacheManager
	monitor ConnectivityMonitor
	ttl     time.Duration
	log     *zap.Logger
}

// NewCachedBlogs creates a read-through view. ttl <= 0 uses the cache default.
func NewCachedBlogs(client *Client, cache *CacheManager, monitor ConnectivityMonitor, ttl time.Duration, log *zap.Logger) *CachedBlogs {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedBlogs{
		blogs:   client.Blogs(),
		cache:   cache,
		monitor: monitor,
		ttl:     ttl,
		log:     log.With(zap.String("module", "cached_blogs")),
	}
}

// Get returns the blog with id, or ErrOffline when offline with nothing cached.
func (cb *CachedBlogs) Get(ctx context.Context, id string) (*Blog, error) {
	if cb.monitor.CurrentState().IsOffline() {
		if blog, ok := cb.cache.GetBlog(id); ok {
			return &blog, nil
		}
		return nil, ErrOffline
	}
	blog, err := cb.blogs.Get(ctx, id)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if apiErr.StatusCode == http.StatusNotFound {
				cb.cache.InvalidateBlog(id)
			}
			return nil, err
		}
		if cached, ok := cb.cache.GetBlog(id); ok {
			cb.log.Debug("serving cached blog after fetch failure", zap.String("blog_id", id), zap.Error(err))
			return &cached, nil
		}
		return nil, err
	}
	if err := cb.cache.PutBlog(*blog, cb.ttl); err != nil {
		cb.log.Warn("cache blog", zap.String("blog_id", id), zap.Error(err))
	}
	return blog, nil
}

// List returns a page of blogs, falling back to the cached page.
func (cb *CachedBlogs) List(ctx context.Context, opts *ListOptions) (*BlogPage, error) {
	key := opts.cacheKey()
	if cb.monitor.CurrentState().IsOffline() {
		if page, ok := cb.cache.GetBlogPage(key); ok {
			return &page, nil
		}
		return nil, ErrOffline
	}
	page, err := cb.blogs.List(ctx, opts)
	if err != nil {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			if cached, ok := cb.cache.GetBlogPage(key); ok {
				cb.log.Debug("serving cached page after fetch failure", zap.String("page", key), zap.Error(err))
				return &cached, nil
			}
		}
		return nil, err
	}
	if err := cb.cache.PutBlogPage(key, *page, cb.ttl); err != nil {
		cb.log.Warn("cache blog page", zap.String("page", key), zap.Error(err))
	}
	for _, blog := range page.Blogs {
		if blog.ID == "" {
			continue
		}
		if err := cb.cache.PutBlog(blog, cb.ttl); err != nil {
			cb.log.Debug("cache listed blog", zap.String("blog_id", blog.ID), zap.Error(err))
		}
	}
	return page, nil
}
