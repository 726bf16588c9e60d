// Package query runs outbound ledger calls: it encodes a request, hands it to
// the transport, decodes the answer, applies the side effects the answer
// carries and completes a single-shot future with either the value or a typed
// error.
package query

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mbd888/starledger/internal/api"
	"github.com/mbd888/starledger/internal/apierror"
	"github.com/mbd888/starledger/internal/logging"
	"github.com/mbd888/starledger/internal/metrics"
	"github.com/mbd888/starledger/internal/traces"
)

// Transport delivers an encoded request and returns the raw response body.
// Failures should be *apierror.Error when the server answered with one.
type Transport interface {
	Issue(ctx context.Context, p api.Payload) ([]byte, error)
}

// Effect is a state change carried by a response, such as committing
// embedded user records. Effects run in order before the future completes.
type Effect func(ctx context.Context)

// Outcome is a decoded response.
type Outcome[T any] struct {
	Value   T
	Effects []Effect
}

// Handler builds one request and decodes its response.
type Handler[T any] interface {
	Request() api.Request
	Decode(ctx context.Context, raw []byte) (Outcome[T], error)
}

// ErrorObserver is implemented by handlers that need to see a failure
// before it is delivered to the caller.
type ErrorObserver interface {
	OnError(ctx context.Context, err *apierror.Error)
}

// Call adapts plain functions to Handler and ErrorObserver.
type Call[T any] struct {
	Req     api.Request
	DecodeF func(ctx context.Context, raw []byte) (Outcome[T], error)
	ErrorF  func(ctx context.Context, err *apierror.Error)
}

func (c Call[T]) Request() api.Request { return c.Req }

func (c Call[T]) Decode(ctx context.Context, raw []byte) (Outcome[T], error) {
	return c.DecodeF(ctx, raw)
}

func (c Call[T]) OnError(ctx context.Context, err *apierror.Error) {
	if c.ErrorF != nil {
		c.ErrorF(ctx, err)
	}
}

// Runner owns the goroutines of in-flight queries.
type Runner struct {
	transport Transport
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	closed    bool
}

// NewRunner creates a runner sending through transport.
func NewRunner(transport Transport) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{transport: transport, ctx: ctx, cancel: cancel}
}

// Closed reports whether Close has been called.
func (r *Runner) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Close aborts every in-flight query with ErrRequestAborted and waits for
// their goroutines to exit.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
	r.wg.Wait()
}

// Send starts h on its own goroutine and returns its future immediately.
func Send[T any](ctx context.Context, r *Runner, h Handler[T]) *Future[T] {
	req := h.Request()
	payload, err := api.Encode(req)
	if err != nil {
		return Failed[T](apierror.New(400, err.Error()))
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Failed[T](apierror.ErrRequestAborted)
	}
	r.wg.Add(1)
	r.mu.Unlock()

	p, f := NewPromise[T]()
	ctx = logging.WithQuery(ctx, req.Method(), uuid.NewString())
	go func() {
		defer r.wg.Done()
		run(ctx, r, h, payload, p)
	}()
	return f
}

func run[T any](ctx context.Context, r *Runner, h Handler[T], payload api.Payload, p *Promise[T]) {
	name, id := logging.Query(ctx)
	ctx, span := traces.StartSpan(ctx, "query."+name, traces.QueryName(name), traces.QueryID(id))
	defer span.End()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(r.ctx, cancel)
	defer stop()

	done := metrics.ObserveQuery(name)
	start := time.Now()
	log := logging.L(ctx)
	log.Debug("query sent", "flags", payload.Flags)

	fail := func(err *apierror.Error) {
		if obs, ok := h.(ErrorObserver); ok && !errors.Is(err, apierror.ErrRequestAborted) {
			obs.OnError(ctx, err)
		}
		traces.Fail(span, err)
		log.Warn("query failed", "code", err.Code, "error", err.Message, "duration_ms", time.Since(start).Milliseconds())
		done(resultLabel(err))
		p.Reject(err)
	}

	raw, err := r.transport.Issue(ctx, payload)
	if ctx.Err() != nil {
		fail(apierror.ErrRequestAborted)
		return
	}
	if err != nil {
		fail(apierror.FromError(err))
		return
	}

	out, err := h.Decode(ctx, raw)
	if err != nil {
		fail(apierror.Errorf(500, "decode %s: %v", name, err))
		return
	}
	// Nothing may be applied once the query is torn down. A cancellation
	// landing after this check no longer stops the effects or the completion.
	if ctx.Err() != nil {
		fail(apierror.ErrRequestAborted)
		return
	}
	for _, effect := range out.Effects {
		effect(ctx)
	}

	log.Debug("query completed", "effects", len(out.Effects), "duration_ms", time.Since(start).Milliseconds())
	done("ok")
	p.Resolve(out.Value)
}

func resultLabel(err *apierror.Error) string {
	if errors.Is(err, apierror.ErrRequestAborted) {
		return "aborted"
	}
	if err.Code >= 500 {
		return "server_error"
	}
	return "error"
}
