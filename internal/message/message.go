// internal/message/message.go
//
// Adept – Outbound webhook dispatcher.
//
// Context
//   Form actions post submission data to external endpoints.  Those calls
//   must not hold up the admin request, so Enqueue hands the request to a
//   small worker pool and returns immediately.  Delivery uses
//   go-retryablehttp, which retries connection errors and 5xx responses
//   with exponential backoff.
//
//   Requests are re-bound to the dispatcher's own context on enqueue.  The
//   originating HTTP request's context is cancelled as soon as the admin
//   response is written, which would otherwise abort every delivery.
//
// Style
//   Two-space sentence spacing, Oxford comma, concise inline notes.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("message: queue full")
	ErrClosed    = errors.New("message: dispatcher closed")
)

// Options tunes a Dispatcher.  Zero values pick defaults.
type Options struct {
	Workers  int
	Queue    int
	RetryMax int
	Timeout  time.Duration
}

// Dispatcher delivers queued webhook requests.
type Dispatcher struct {
	client *retryablehttp.Client
	log    *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan *http.Request
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewDispatcher starts the worker pool.
func NewDispatcher(opts Options, log *zap.SugaredLogger) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.Queue <= 0 {
		opts.Queue = 64
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.S()
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = opts.RetryMax
	rc.RetryWaitMin = 500 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = opts.Timeout
	rc.Logger = leveled{log}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		client: rc,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan *http.Request, opts.Queue),
	}
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Enqueue schedules req for delivery.  It never blocks: a full queue
// returns ErrQueueFull.
func (d *Dispatcher) Enqueue(_ context.Context, req *http.Request) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.jobs <- req.Clone(d.ctx):
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued deliveries, or for ctx to
// expire, whichever comes first.  In-flight requests are cancelled on
// expiry.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for req := range d.jobs {
		d.deliver(req)
	}
}

func (d *Dispatcher) deliver(req *http.Request) {
	rr, err := retryablehttp.FromRequest(req)
	if err != nil {
		d.log.Errorw("webhook request invalid", "url", req.URL.String(), "err", err)
		return
	}
	resp, err := d.client.Do(rr)
	if err != nil {
		d.log.Warnw("webhook delivery failed", "url", req.URL.String(), "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		d.log.Warnw("webhook rejected", "url", req.URL.String(), "status", resp.StatusCode)
		return
	}
	d.log.Debugw("webhook delivered", "url", req.URL.String(), "status", resp.StatusCode)
}

// leveled adapts a SugaredLogger to retryablehttp.LeveledLogger.
type leveled struct{ s *zap.SugaredLogger }

func (l leveled) Error(msg string, kv ...interface{}) { l.s.Errorw(msg, kv...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.s.Infow(msg, kv...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.s.Debugw(msg, kv...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.s.Warnw(msg, kv...) }
