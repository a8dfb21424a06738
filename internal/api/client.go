package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"cordctl/internal/apierr"
	"cordctl/internal/cache"
	"cordctl/internal/ratelimit"
	"cordctl/pkg/logging"
)

const (
	// DefaultQueueDelay is the pacing between consecutive queue drains.
	DefaultQueueDelay = 100 * time.Millisecond

	// DefaultRequestTimeout bounds each HTTP attempt.
	DefaultRequestTimeout = 10 * time.Second

	// queueCapacity bounds how many requests can wait in the queue. Enqueue
	// blocks beyond this rather than growing without bound.
	queueCapacity = 64

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 8 << 20
)

// Authorizer supplies access tokens and invalidates them when the API
// rejects one. Implemented by the oauth Manager.
type Authorizer interface {
	Authorize(ctx context.Context) (string, error)
	Invalidate()
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL        string
	RequestTimeout time.Duration
	QueueDelay     time.Duration
}

// Client is the single entry point for Discord REST calls. Every request is
// queued and executed by one drain goroutine, so requests are strictly
// serialized and paced, and the rate limiter sees them in order.
type Client struct {
	baseURL    string
	timeout    time.Duration
	queueDelay time.Duration

	httpClient *http.Client
	auth       Authorizer
	limiter    *ratelimit.Limiter
	responses  *cache.Cache[[]byte]

	queue chan *queuedRequest

	closeOnce sync.Once
	done      chan struct{}
}

// queuedRequest is one unit of work for the drain goroutine. A bounded retry
// is a fresh queuedRequest carrying the original reply channel plus the
// retry flag of the failure that spawned it.
type queuedRequest struct {
	ctx      context.Context
	method   string
	path     string
	body     []byte
	cacheKey string // "" when the response must not be cached
	reply    chan callResult

	retried429 bool
	retried401 bool
}

type callResult struct {
	body []byte
	err  error
}

// NewClient creates a client and starts its drain goroutine. Close releases
// it.
func NewClient(opts Options, auth Authorizer, limiter *ratelimit.Limiter, responses *cache.Cache[[]byte]) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.QueueDelay <= 0 {
		opts.QueueDelay = DefaultQueueDelay
	}
	c := &Client{
		baseURL:    opts.BaseURL,
		timeout:    opts.RequestTimeout,
		queueDelay: opts.QueueDelay,
		httpClient: &http.Client{},
		auth:       auth,
		limiter:    limiter,
		responses:  responses,
		queue:      make(chan *queuedRequest, queueCapacity),
		done:       make(chan struct{}),
	}
	go c.drain()
	return c
}

// Close stops the drain goroutine. Queued requests that have not started
// fail with their context error once the caller gives up.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// call enqueues one request and waits for its result. Cacheable requests are
// served from the response cache when fresh.
func (c *Client) call(ctx context.Context, method, path string, payload any, cacheable bool) ([]byte, error) {
	cacheKey := ""
	if cacheable && method == http.MethodGet {
		cacheKey = method + " " + path
		if body, ok := c.responses.Get(cacheKey); ok {
			logging.Debug("API", "Cache hit for %s", path)
			return body, nil
		}
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
	}

	req := &queuedRequest{
		ctx:      ctx,
		method:   method,
		path:     path,
		body:     body,
		cacheKey: cacheKey,
		reply:    make(chan callResult, 1),
	}

	select {
	case c.queue <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, fmt.Errorf("client is closed")
	}

	select {
	case res := <-req.reply:
		return res.body, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// drain services the queue one request at a time with fixed pacing between
// requests.
func (c *Client) drain() {
	for {
		select {
		case <-c.done:
			return
		case req := <-c.queue:
			body, requeued, err := c.execute(req)
			if !requeued {
				req.reply <- callResult{body: body, err: err}
			}

			select {
			case <-time.After(c.queueDelay):
			case <-c.done:
				return
			}
		}
	}
}

// execute runs one queued request through the full sequence: cache, rate
// limiter, auth, HTTP, header bookkeeping, and bounded remediation. A 429 is
// retried once, re-entering the queue after the server-directed wait; a 401
// is retried once, re-entering the queue after a forced token refresh. The
// retry is a fresh entry at the tail, so requests queued in the meantime keep
// their place and the drain loop never stalls on a wait.
func (c *Client) execute(req *queuedRequest) (body []byte, requeued bool, err error) {
	requestID := uuid.New().String()
	route := routeKey(req.method, req.path)

	logging.Debug("API", "Executing %s %s (request: %s)", req.method, req.path, requestID)

	// A duplicate queued before the first completion may be resolved by now.
	if req.cacheKey != "" {
		if body, ok := c.responses.Get(req.cacheKey); ok {
			logging.Debug("API", "Cache hit for queued %s", req.path)
			return body, false, nil
		}
	}

	if err := c.limiter.Acquire(req.ctx, route); err != nil {
		return nil, false, err
	}

	token, err := c.auth.Authorize(req.ctx)
	if err != nil {
		return nil, false, err
	}

	status, header, body, err := c.send(req, token)
	if err != nil {
		return nil, false, err
	}

	if updateErr := c.limiter.Update(route, header); updateErr != nil && status < 400 {
		// The response itself succeeded; the limiter has recorded the
		// depleted budget for the next request.
		logging.Debug("API", "Route %s budget exhausted", route)
	}

	if status >= 200 && status < 300 {
		if req.cacheKey != "" {
			c.responses.Set(req.cacheKey, body)
		}
		return body, false, nil
	}

	apiErr := apierr.Classify(status, body, header)

	if status == http.StatusTooManyRequests && !req.retried429 {
		retry := *req
		retry.retried429 = true
		wait, _ := apierr.RetryAfter(apiErr)
		logging.Info("API", "Rate limited on %s, retrying in %s (request: %s)", route, wait, requestID)
		time.AfterFunc(wait, func() { c.requeue(&retry) })
		return nil, true, nil
	}

	if status == http.StatusUnauthorized && !req.retried401 {
		logging.Info("API", "Token rejected on %s, refreshing and retrying (request: %s)", route, requestID)
		c.auth.Invalidate()
		retry := *req
		retry.retried401 = true
		// Non-blocking: the drain goroutine must never wait on its own
		// queue. On a full queue the 401 surfaces instead.
		select {
		case c.queue <- &retry:
			return nil, true, nil
		default:
			return nil, false, apiErr
		}
	}

	return nil, false, apiErr
}

// requeue appends a retry entry at the queue tail. It runs off the drain
// goroutine, so a blocking send is safe; the caller's context and client
// shutdown still release it.
func (c *Client) requeue(req *queuedRequest) {
	select {
	case c.queue <- req:
	case <-req.ctx.Done():
		req.reply <- callResult{err: req.ctx.Err()}
	case <-c.done:
		req.reply <- callResult{err: fmt.Errorf("client is closed")}
	}
}

// send performs a single HTTP attempt under the per-request timeout.
func (c *Client) send(req *queuedRequest, token string) (int, http.Header, []byte, error) {
	ctx, cancel := context.WithTimeout(req.ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if len(req.body) > 0 {
		reader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, reader)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	if len(req.body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, nil, apierr.FromTransport(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return 0, nil, nil, apierr.FromTransport(err)
	}
	return resp.StatusCode, resp.Header, body, nil
}
