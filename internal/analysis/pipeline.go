// Package analysis estimates how complete and relevant an answer is.
//
// Every call is cancellable and never fails from the caller's point of view:
// timeouts, model errors, unparsable output and cancellation all resolve to
// types.DefaultAnalysis().
package analysis

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"yuzu/interview/internal/types"
)

const DefaultTimeout = 5 * time.Second

var (
	ErrCancelled = errors.New("analysis cancelled")
	ErrNoModel   = errors.New("analysis model not configured")
)

// Model is a text completion backend that answers with JSON.
type Model interface {
	Name() string
	Complete(ctx context.Context, system, prompt string) (string, error)
}

type Request struct {
	QuestionIndex   int
	QuestionText    string
	Transcript      string
	QuestionContext string
}

// Call is a handle on one in-flight analysis.
type Call struct {
	ID      string
	Request Request

	cancel context.CancelFunc
	done   chan struct{}
	result types.AnalysisResult
	err    error
}

// Cancel aborts the call; Result then yields the default analysis.
func (c *Call) Cancel() { c.cancel() }

func (c *Call) Done() <-chan struct{} { return c.done }

// Result blocks until the call finishes.
func (c *Call) Result() types.AnalysisResult {
	<-c.done
	return c.result
}

// Err reports why the default analysis was substituted, or nil.
func (c *Call) Err() error {
	<-c.done
	return c.err
}

type Pipeline struct {
	model   Model
	timeout time.Duration

	mu    sync.Mutex
	calls map[string]*Call
}

// New returns a pipeline over model. A nil model makes every call resolve
// to the default analysis immediately.
func New(model Model, timeout time.Duration) *Pipeline {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Pipeline{model: model, timeout: timeout, calls: make(map[string]*Call)}
}

// Analyze starts an analysis and returns without waiting for it.
func (p *Pipeline) Analyze(ctx context.Context, req Request) *Call {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	call := &Call{
		ID:      uuid.NewString(),
		Request: req,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	p.mu.Lock()
	p.calls[call.ID] = call
	p.mu.Unlock()
	gaugePending.Inc()

	go p.run(cctx, call)
	return call
}

func (p *Pipeline) run(ctx context.Context, call *Call) {
	start := time.Now()
	defer func() {
		call.cancel()
		p.mu.Lock()
		delete(p.calls, call.ID)
		p.mu.Unlock()
		gaugePending.Dec()
		metricLatencyMS.Observe(float64(time.Since(start).Milliseconds()))
		close(call.done)
	}()

	res, err := p.analyze(ctx, call.Request)
	if err != nil {
		outcome := "error"
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			outcome = "timeout"
		case errors.Is(err, context.Canceled):
			outcome = "cancelled"
			err = ErrCancelled
		case errors.Is(err, ErrParse):
			outcome = "parse_error"
		}
		metricCalls.WithLabelValues(outcome).Inc()
		if outcome != "cancelled" {
			log.Printf("[analysis] q=%d call=%s %s: %v", call.Request.QuestionIndex, call.ID, outcome, err)
		}
		call.result = types.DefaultAnalysis()
		call.err = err
		return
	}
	metricCalls.WithLabelValues("ok").Inc()
	call.result = res
}

func (p *Pipeline) analyze(ctx context.Context, req Request) (types.AnalysisResult, error) {
	if p.model == nil {
		return types.AnalysisResult{}, ErrNoModel
	}
	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := p.model.Complete(ctx, systemPrompt, buildPrompt(req))
		ch <- reply{text, err}
	}()

	select {
	case <-ctx.Done():
		return types.AnalysisResult{}, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() != nil {
				return types.AnalysisResult{}, ctx.Err()
			}
			return types.AnalysisResult{}, r.err
		}
		return Parse(r.text)
	}
}

// CancelAll cancels every in-flight call.
func (p *Pipeline) CancelAll() {
	p.mu.Lock()
	calls := make([]*Call, 0, len(p.calls))
	for _, c := range p.calls {
		calls = append(calls, c)
	}
	p.mu.Unlock()
	for _, c := range calls {
		c.Cancel()
	}
}

func (p *Pipeline) HasPendingAnalysis() bool { return p.Pending() > 0 }

func (p *Pipeline) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *Pipeline) ModelName() string {
	if p.model == nil {
		return "none"
	}
	return p.model.Name()
}
