package garage

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// gateFor points a gate at an httptest server.
func gateFor(t *testing.T, srv *httptest.Server, mutate func(*GateOptions)) *Gate {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parsing server URL: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	opts := GateOptions{Host: host, Port: port, Timeout: 2 * time.Second}
	if mutate != nil {
		mutate(&opts)
	}
	g := NewGate(opts, srv.Client())
	t.Cleanup(g.Close)
	return g
}

type countingObserver struct {
	requests atomic.Int64
	maxDepth atomic.Int64
}

func (o *countingObserver) ObserveRequest(string, int, time.Duration, error) { o.requests.Add(1) }

func (o *countingObserver) ObserveQueueDepth(depth int) {
	for {
		cur := o.maxDepth.Load()
		if int64(depth) <= cur || o.maxDepth.CompareAndSwap(cur, int64(depth)) {
			return
		}
	}
}

func TestGateOptions_BaseURL(t *testing.T) {
	tests := []struct {
		opts GateOptions
		want string
	}{
		{GateOptions{Host: "garage.local", Port: 80}, "http://garage.local"},
		{GateOptions{Host: "garage.local", Port: 8080}, "http://garage.local:8080"},
		{GateOptions{SSL: true, Host: "garage.local", Port: 443}, "https://garage.local"},
		{GateOptions{SSL: true, Host: "garage.local", Port: 80}, "https://garage.local:80"},
		{GateOptions{Host: "10.0.0.5", Port: 443}, "http://10.0.0.5:443"},
	}
	for _, tt := range tests {
		if got := tt.opts.BaseURL(); got != tt.want {
			t.Errorf("BaseURL(%+v) = %q, want %q", tt.opts, got, tt.want)
		}
	}
}

func TestGate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/door/open" {
			http.Error(w, "wrong route", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	g := gateFor(t, srv, nil)
	observer := &countingObserver{}
	g.SetObserver(observer)

	status, body, err := g.Execute(context.Background(), Endpoint{Name: "door_open", Method: http.MethodPut, URL: "/door/open"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if status != http.StatusOK || string(body) != `{"success":true}` {
		t.Errorf("Execute() = %d %q", status, body)
	}
	if observer.requests.Load() != 1 {
		t.Errorf("observer saw %d requests, want 1", observer.requests.Load())
	}
	if g.QueueDepth() != 0 {
		t.Errorf("QueueDepth() = %d after completion, want 0", g.QueueDepth())
	}
}

func TestGate_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := gateFor(t, srv, nil)
	status, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status"})

	var use *UnexpectedStatusError
	if !errors.As(err, &use) {
		t.Fatalf("Execute() error = %v, want *UnexpectedStatusError", err)
	}
	if use.Status != http.StatusServiceUnavailable || status != http.StatusServiceUnavailable {
		t.Errorf("status = %d / %d, want 503", use.Status, status)
	}
	if !errors.Is(err, ErrUnexpectedStatus) {
		t.Error("error does not match ErrUnexpectedStatus")
	}
}

func TestGate_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	g := gateFor(t, srv, nil)
	srv.Close()

	_, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("Execute() error = %v, want ErrTransport", err)
	}
	var te *TransportError
	if !errors.As(err, &te) || te.Endpoint != "door_state" {
		t.Errorf("TransportError = %+v", te)
	}
}

func TestGate_StaticHeader(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Api-Key"))
	}))
	defer srv.Close()

	g := gateFor(t, srv, func(o *GateOptions) {
		o.HeaderName = "X-Api-Key"
		o.HeaderValue = "s3cret"
	})

	if _, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got.Load() != "s3cret" {
		t.Errorf("X-Api-Key = %v, want s3cret", got.Load())
	}
}

func TestGate_OAuthSigned(t *testing.T) {
	var query atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		query.Store(r.URL.Query())
	}))
	defer srv.Close()

	g := gateFor(t, srv, func(o *GateOptions) {
		o.OAuth = &OAuthCredentials{
			SignatureMethod: SignatureHMACSHA256,
			ConsumerKey:     "ck",
			ConsumerSecret:  "cs",
			Token:           "tk",
			TokenSecret:     "ts",
		}
	})

	if _, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status?verbose=1"}); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	q, _ := query.Load().(url.Values)
	for _, key := range []string{"oauth_consumer_key", "oauth_token", "oauth_nonce", "oauth_timestamp", "oauth_signature"} {
		if q.Get(key) == "" {
			t.Errorf("query missing %s: %v", key, q)
		}
	}
	if q.Get("oauth_signature_method") != SignatureHMACSHA256 {
		t.Errorf("oauth_signature_method = %q", q.Get("oauth_signature_method"))
	}
	if q.Get("oauth_version") != "1.0a" {
		t.Errorf("oauth_version = %q, want 1.0a", q.Get("oauth_version"))
	}
	if q.Get("verbose") != "1" {
		t.Errorf("original query lost: %v", q)
	}
}

func TestGate_SerialisesRequests(t *testing.T) {
	var inFlight, maxInFlight atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			cur := maxInFlight.Load()
			if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	g := gateFor(t, srv, nil)
	observer := &countingObserver{}
	g.SetObserver(observer)

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status"}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Execute() error = %v", err)
	}
	if maxInFlight.Load() != 1 {
		t.Errorf("max in-flight requests = %d, want 1", maxInFlight.Load())
	}
	if observer.requests.Load() != callers {
		t.Errorf("observer saw %d requests, want %d", observer.requests.Load(), callers)
	}
	if observer.maxDepth.Load() < 2 {
		t.Errorf("max queue depth = %d, want callers to have queued", observer.maxDepth.Load())
	}
}

func TestGate_DispatchesInArrivalOrder(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	var order []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/a" {
			close(started)
			<-release
		}
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	g := gateFor(t, srv, nil)

	var wg sync.WaitGroup
	execute := func(path string) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: path}); err != nil {
				t.Errorf("Execute(%s) error = %v", path, err)
			}
		}()
	}

	execute("/a")
	<-started

	// Queue the rest one at a time while /a holds the worker.
	paths := []string{"/b", "/c", "/d", "/e"}
	for i, path := range paths {
		execute(path)
		deadline := time.Now().Add(time.Second)
		for g.QueueDepth() < i+2 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(release)
	wg.Wait()

	want := []string{"/a", "/b", "/c", "/d", "/e"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestGate_TimeoutReleasesGate(t *testing.T) {
	slowStarted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/slow" {
			close(slowStarted)
			select {
			case <-time.After(500 * time.Millisecond):
			case <-r.Context().Done():
				return
			}
		}
		w.Write([]byte("OK"))
	}))
	defer srv.Close()

	g := gateFor(t, srv, func(o *GateOptions) { o.Timeout = 100 * time.Millisecond })

	slowErr := make(chan error, 1)
	go func() {
		_, _, err := g.Execute(context.Background(), Endpoint{Name: "door_open", Method: http.MethodPut, URL: "/slow"})
		slowErr <- err
	}()
	<-slowStarted

	_, body, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/fast"})
	if err != nil {
		t.Fatalf("queued Execute() error = %v, want nil", err)
	}
	if string(body) != "OK" {
		t.Errorf("queued Execute() body = %q, want OK", body)
	}

	err = <-slowErr
	if !errors.Is(err, ErrTransport) {
		t.Errorf("timed out Execute() error = %v, want ErrTransport", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("timed out Execute() error = %v, want context.DeadlineExceeded", err)
	}
	if g.QueueDepth() != 0 {
		t.Errorf("QueueDepth() = %d, want 0", g.QueueDepth())
	}
}

func TestGate_CancelWhileQueued(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.Write([]byte("OK"))
	}))
	defer srv.Close()
	defer close(release)

	g := gateFor(t, srv, nil)
	ep := Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status"}

	first := make(chan error, 1)
	go func() {
		_, _, err := g.Execute(context.Background(), ep)
		first <- err
	}()

	// Wait until the first request occupies the worker.
	deadline := time.Now().Add(time.Second)
	for g.QueueDepth() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := g.Execute(ctx, ep)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("queued Execute() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestGate_Closed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer srv.Close()

	g := gateFor(t, srv, nil)
	g.Close()

	_, _, err := g.Execute(context.Background(), Endpoint{Name: "door_state", Method: http.MethodGet, URL: "/status"})
	if !errors.Is(err, ErrGateClosed) {
		t.Errorf("Execute() after Close error = %v, want ErrGateClosed", err)
	}
}
