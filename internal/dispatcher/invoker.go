package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/local/linerelay/internal/ai"
	mpkg "github.com/local/linerelay/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Invoker performs exactly one bounded backend call per Invoke.
type Invoker struct {
	client ai.Client
	pool   *Pool
	params ai.GenerationParams

	late atomic.Int64
}

// Stats is a point-in-time view of the invoker, reported by /diag.
type Stats struct {
	Workers     int   `json:"workers"`
	Queued      int   `json:"queued"`
	LateResults int64 `json:"late_results"`
}

func NewInvoker(client ai.Client, pool *Pool, params ai.GenerationParams) *Invoker {
	return &Invoker{client: client, pool: pool, params: params}
}

func (iv *Invoker) Provider() string { return iv.client.Name() }
func (iv *Invoker) Model() string    { return iv.client.Model() }

func (iv *Invoker) Stats() Stats {
	return Stats{
		Workers:     iv.pool.Concurrency(),
		Queued:      iv.pool.Pending(),
		LateResults: iv.late.Load(),
	}
}

// Invoke sends text to the backend and waits at most deadline, queue time
// included. On timeout the worker keeps running but its result is dropped.
func (iv *Invoker) Invoke(ctx context.Context, text string, deadline time.Duration) Result {
	provider, model := iv.client.Name(), iv.client.Model()
	logger := log.With().
		Str("request_id", uuid.NewString()).
		Str("provider", provider).
		Str("model", model).
		Logger()

	if strings.TrimSpace(text) == "" {
		return Fail(KindBadRequestPayload, "empty prompt", nil)
	}
	if deadline <= 0 {
		return Fail(KindBadRequestPayload, fmt.Sprintf("non-positive deadline %s", deadline), nil)
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// One buffered slot per invocation: the worker never blocks on send and a
	// late result can only land here, where nobody reads it. The caller writes
	// its verdict to late exactly once, after it stopped waiting on done.
	done := make(chan Result, 1)
	late := make(chan bool, 1)

	task := func() {
		if callCtx.Err() != nil {
			logger.Debug().Msg("invocation expired while queued; skipping backend call")
			return
		}
		r := iv.call(callCtx, text)
		done <- r
		if !<-late {
			return
		}
		iv.late.Add(1)
		mpkg.IncLateResult(provider, model)
		logger.Debug().
			Str("kind", r.Kind().String()).
			Dur("duration", time.Since(start)).
			Msg("discarding late backend result")
	}

	var res Result
	if err := iv.pool.Submit(callCtx, task); err != nil {
		res = iv.submitFailure(ctx, err, deadline)
	} else {
		select {
		case res = <-done:
			late <- false
		case <-callCtx.Done():
			late <- true
			res = iv.deadlineFailure(ctx, deadline)
		}
	}

	dur := time.Since(start)
	mpkg.ObserveInvocation(provider, model, resultLabel(res), dur)
	if res.OK() {
		logger.Info().Dur("duration", dur).Int("chars", len(res.Text)).Msg("backend invocation succeeded")
	} else {
		logger.Warn().
			Str("kind", res.Failure.Kind.String()).
			Str("detail", res.Failure.Detail).
			Dur("duration", dur).
			Dur("deadline", deadline).
			Msg("backend invocation failed")
	}
	return res
}

// ListAvailableModels is the capability probe. Errors are returned as-is.
func (iv *Invoker) ListAvailableModels(ctx context.Context) ([]string, error) {
	ids, err := iv.client.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Str("provider", iv.client.Name()).Msg("list models failed")
		return nil, err
	}
	return ids, nil
}

func (iv *Invoker) call(ctx context.Context, text string) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			res = Fail(KindUnknown, fmt.Sprintf("backend panic: %v", p), nil)
		}
	}()

	resp, err := iv.client.Generate(ctx, ai.Request{Prompt: text, Model: iv.client.Model(), Params: iv.params})
	if err != nil {
		return Fail(classify(err), err.Error(), err)
	}
	return extractText(resp)
}

// extractText prefers the SDK text accessor and falls back to the joined
// candidate parts.
func extractText(resp ai.Response) Result {
	if txt := strings.TrimSpace(resp.Text); txt != "" {
		return Success(txt)
	}
	if txt := strings.TrimSpace(strings.Join(resp.Parts, "")); txt != "" {
		return Success(txt)
	}
	detail := "empty response"
	switch {
	case resp.BlockReason != "":
		detail += " (blocked: " + resp.BlockReason + ")"
	case resp.FinishReason != "":
		detail += " (finish_reason: " + resp.FinishReason + ")"
	}
	return Fail(KindEmptyResponse, detail, nil)
}

func (iv *Invoker) deadlineFailure(ctx context.Context, deadline time.Duration) Result {
	if err := ctx.Err(); err != nil {
		return Fail(KindTimeout, "caller stopped waiting: "+err.Error(), err)
	}
	return Fail(KindTimeout, fmt.Sprintf("no backend response within %s", deadline), context.DeadlineExceeded)
}

func (iv *Invoker) submitFailure(ctx context.Context, err error, deadline time.Duration) Result {
	if errors.Is(err, ErrPoolStopped) {
		return Fail(KindUnknown, err.Error(), err)
	}
	if ctx.Err() != nil {
		return Fail(KindTimeout, "caller stopped waiting while queued: "+ctx.Err().Error(), err)
	}
	return Fail(KindTimeout, fmt.Sprintf("no worker free within %s", deadline), err)
}

func resultLabel(r Result) string {
	if r.OK() {
		return "success"
	}
	return strings.ToLower(r.Failure.Kind.String())
}
