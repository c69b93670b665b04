package garage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// maxResponseSize caps how much of a device response body is read.
const maxResponseSize = 1 << 20

// GateOptions configures how device requests are built.
type GateOptions struct {
	SSL     bool
	Host    string
	Port    int
	Timeout time.Duration

	// HeaderName/HeaderValue add one static header to every request.
	HeaderName  string
	HeaderValue string

	// OAuth enables request signing when non-nil.
	OAuth *OAuthCredentials
}

// BaseURL returns scheme://host[:port], omitting default ports.
func (o GateOptions) BaseURL() string {
	scheme := "http"
	if o.SSL {
		scheme = "https"
	}
	if (!o.SSL && o.Port == 80) || (o.SSL && o.Port == 443) {
		return scheme + "://" + o.Host
	}
	return scheme + "://" + o.Host + ":" + strconv.Itoa(o.Port)
}

// Executor performs device requests. Gate is the production implementation.
type Executor interface {
	Execute(ctx context.Context, ep Endpoint) (status int, body []byte, err error)
}

// RequestObserver is told about every dispatched device request.
type RequestObserver interface {
	ObserveRequest(endpoint string, status int, latency time.Duration, err error)
	ObserveQueueDepth(depth int)
}

// gateRequest is one queued call waiting for the worker.
type gateRequest struct {
	ctx      context.Context
	endpoint Endpoint
	reply    chan gateResult
}

type gateResult struct {
	status int
	body   []byte
	err    error
}

// Gate serialises every device request through a single worker goroutine.
//
// Requests are handed to the worker over an unbuffered channel, so callers
// are served in the order they blocked and at most one request is in flight.
// A caller's context bounds only its wait in the queue; once dispatched, a
// request runs until it completes, times out, or fails.
//
// Thread Safety:
//   - Execute is safe for concurrent use.
type Gate struct {
	opts   GateOptions
	client *http.Client
	signer *Signer

	queue chan *gateRequest
	depth atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	observer   RequestObserver
	logger     Logger
	observerMu sync.RWMutex
}

// NewGate creates a gate and starts its worker.
//
// Parameters:
//   - opts: Connection settings from Setup
//   - client: HTTP client to use; nil builds one with opts.Timeout
//
// Returns:
//   - *Gate: Running gate; call Close to stop it
func NewGate(opts GateOptions, client *http.Client) *Gate {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	g := &Gate{
		opts:   opts,
		client: client,
		queue:  make(chan *gateRequest),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
	if opts.OAuth != nil {
		g.signer = NewSigner(*opts.OAuth)
	}

	g.wg.Add(1)
	go g.run()

	return g
}

// SetObserver registers the request observer (metrics, telemetry).
func (g *Gate) SetObserver(observer RequestObserver) {
	g.observerMu.Lock()
	g.observer = observer
	g.observerMu.Unlock()
}

// SetLogger sets the logger used for request tracing.
func (g *Gate) SetLogger(logger Logger) {
	g.observerMu.Lock()
	g.logger = logger
	g.observerMu.Unlock()
}

// QueueDepth returns the number of callers waiting or in flight.
func (g *Gate) QueueDepth() int {
	return int(g.depth.Load())
}

// Execute performs one request for ep once every earlier caller has finished.
//
// Parameters:
//   - ctx: Bounds the wait in the queue only
//   - ep: Endpoint to call
//
// Returns:
//   - int: HTTP status code
//   - []byte: Response body
//   - error: *TransportError, *UnexpectedStatusError, ctx.Err() if abandoned
//     before dispatch, or ErrGateClosed
func (g *Gate) Execute(ctx context.Context, ep Endpoint) (int, []byte, error) {
	req := &gateRequest{
		ctx:      ctx,
		endpoint: ep,
		reply:    make(chan gateResult, 1),
	}

	g.changeDepth(1)

	select {
	case g.queue <- req:
	case <-ctx.Done():
		g.changeDepth(-1)
		return 0, nil, ctx.Err()
	case <-g.done:
		g.changeDepth(-1)
		return 0, nil, ErrGateClosed
	}

	res := <-req.reply
	return res.status, res.body, res.err
}

// Close stops the worker after the in-flight request finishes.
func (g *Gate) Close() {
	g.stopOnce.Do(func() {
		close(g.done)
	})
	g.wg.Wait()
}

// run is the worker loop. It owns the single active-request slot.
func (g *Gate) run() {
	defer g.wg.Done()

	for {
		select {
		case <-g.done:
			return
		case req := <-g.queue:
			res := g.dispatch(req)
			g.changeDepth(-1)
			req.reply <- res
		}
	}
}

// dispatch performs the HTTP round trip for one queued request.
func (g *Gate) dispatch(req *gateRequest) gateResult {
	// Detach from the caller so a later cancellation cannot abort the device call.
	ctx := context.WithoutCancel(req.ctx)
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	ep := req.endpoint
	start := time.Now()
	status, body, err := g.roundTrip(ctx, ep)
	latency := time.Since(start)

	observer, logger := g.hooks()
	logger.Debug("device request completed",
		"endpoint", ep.Name,
		"method", ep.Method,
		"status", status,
		"latency", latency,
		"error", err,
	)
	if observer != nil {
		observer.ObserveRequest(ep.Name, status, latency, err)
	}

	return gateResult{status: status, body: body, err: err}
}

// roundTrip builds, signs and sends the request and classifies the status.
func (g *Gate) roundTrip(ctx context.Context, ep Endpoint) (int, []byte, error) {
	url := g.opts.BaseURL() + ep.URL
	if g.signer != nil {
		signed, err := g.signer.Sign(ep.Method, url)
		if err != nil {
			return 0, nil, &TransportError{Endpoint: ep.Name, Err: err}
		}
		url = signed
	}

	httpReq, err := http.NewRequestWithContext(ctx, ep.Method, url, nil)
	if err != nil {
		return 0, nil, &TransportError{Endpoint: ep.Name, Err: err}
	}
	if g.opts.HeaderName != "" {
		httpReq.Header.Set(g.opts.HeaderName, g.opts.HeaderValue)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return 0, nil, &TransportError{Endpoint: ep.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, &TransportError{Endpoint: ep.Name, Err: fmt.Errorf("reading body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, body, &UnexpectedStatusError{Endpoint: ep.Name, Status: resp.StatusCode}
	}

	return resp.StatusCode, body, nil
}

func (g *Gate) hooks() (RequestObserver, Logger) {
	g.observerMu.RLock()
	defer g.observerMu.RUnlock()
	return g.observer, g.logger
}

func (g *Gate) changeDepth(delta int64) {
	depth := g.depth.Add(delta)
	if observer, _ := g.hooks(); observer != nil {
		observer.ObserveQueueDepth(int(depth))
	}
}
