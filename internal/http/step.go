package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"flowload/internal/condition"
	"flowload/internal/config"
	"flowload/internal/core"
	"flowload/internal/log"
	"flowload/internal/template"
	"flowload/internal/transform"
)

// maxResponseBodySize limits how much of a response body is kept for
// extraction, validation and last_response.
const maxResponseBodySize = 10 * 1024 * 1024

// StepResult is the outcome of one ExecuteStep call. Skipped steps are
// successful.
type StepResult struct {
	Name       string
	Success    bool
	Skipped    bool
	StatusCode int
	Duration   time.Duration
	Attempts   int
	Error      string
	Err        error
}

// RequestError reports a request that failed below the HTTP layer.
type RequestError struct {
	Step string
	Err  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("request %s: %v", e.Step, e.Err)
}

func (e *RequestError) Unwrap() error { return e.Err }

// ExecuteStep runs the full pipeline for step: pre-requests, pre-transforms,
// the skip check, the request with its retry loop and extraction,
// post-transforms and validation.
func (e *Executor) ExecuteStep(ctx context.Context, step *config.Step) StepResult {
	start := e.clock.Now()
	logger := e.logger.With(log.Step(step.Name))
	res := StepResult{Name: step.Name}

	finish := func(err error) StepResult {
		res.Duration = e.clock.Since(start)
		if err != nil {
			res.Err = err
			res.Error = err.Error()
			logger.Error("step failed", zap.Error(err))
			return res
		}
		res.Success = true
		return res
	}

	e.runPreRequests(ctx, step, logger)

	if err := e.applyTransforms(step.PreTransforms, logger); err != nil {
		return finish(err)
	}

	if e.shouldSkip(step.SkipIf) {
		logger.Info("step skipped by skip_if")
		res.Skipped = true
		return finish(nil)
	}

	resp, attempts, err := e.requestWithRetry(ctx, step, logger)
	res.Attempts = attempts
	if err != nil {
		return finish(err)
	}
	res.StatusCode = resp.StatusCode
	if resp.Err != nil {
		return finish(&RequestError{Step: step.Name, Err: resp.Err})
	}

	if err := e.applyTransforms(step.PostTransforms, logger); err != nil {
		return finish(err)
	}
	return finish(validateResponse(step.Validate, resp, e.vars))
}

// requestWithRetry issues the request until the retry rule stops asking for
// another attempt or the attempt budget is spent. The last response is
// returned either way.
func (e *Executor) requestWithRetry(ctx context.Context, step *config.Step, logger *zap.Logger) (*Response, int, error) {
	maxAttempts := step.RetryOn.Attempts()
	for attempt := 1; ; attempt++ {
		resp, err := e.do(ctx, step)
		if err != nil {
			return nil, attempt, err
		}
		logger.Info("request completed",
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", resp.Elapsed),
			zap.Int("attempt", attempt))
		if resp.Err == nil {
			extractVariables(logger, step.Extract, resp, e.vars)
		}

		if !e.shouldRetry(step.RetryOn) {
			return resp, attempt, nil
		}
		if attempt >= maxAttempts {
			logger.Warn("max retries reached", zap.Int("max_retries", maxAttempts))
			return resp, attempt, nil
		}
		if ctx.Err() != nil {
			return resp, attempt, nil
		}

		action := step.RetryOn.Action
		logger.Info("retry condition met",
			zap.String("action", action),
			zap.Int("next_attempt", attempt+1),
			zap.Int("max_retries", maxAttempts))
		if action != "" {
			e.runReferenced(ctx, action, "retry action", logger)
		}
	}
}

// runPreRequests runs each pre-request through the auxiliary pipeline.
// Their failures are logged and never fail the outer step.
func (e *Executor) runPreRequests(ctx context.Context, step *config.Step, logger *zap.Logger) {
	for _, pre := range step.PreRequest {
		if pre.Inline != nil {
			if err := e.runAuxiliary(ctx, pre.Inline); err != nil {
				logger.Warn("inline pre-request failed", zap.String("pre_request", pre.Inline.Name), zap.Error(err))
			}
			continue
		}
		e.runReferenced(ctx, pre.Name, "pre-request", logger)
	}
}

func (e *Executor) runReferenced(ctx context.Context, name, role string, logger *zap.Logger) {
	target, ok := e.cfg.FindStep(name)
	if !ok {
		logger.Warn(role+" step not found", zap.String("target", name))
		return
	}
	if err := e.runAuxiliary(ctx, target); err != nil {
		logger.Warn(role+" failed", zap.String("target", name), zap.Error(err))
	}
}

// runAuxiliary executes a step used as a pre-request or retry action. It
// makes a single attempt and does not run the step's own pre-requests,
// skip check or retry rule.
func (e *Executor) runAuxiliary(ctx context.Context, step *config.Step) error {
	logger := e.logger.With(log.Step(step.Name))
	if err := e.applyTransforms(step.PreTransforms, logger); err != nil {
		return err
	}
	resp, err := e.do(ctx, step)
	if err != nil {
		return err
	}
	if resp.Err != nil {
		return &RequestError{Step: step.Name, Err: resp.Err}
	}
	extractVariables(logger, step.Extract, resp, e.vars)
	if err := e.applyTransforms(step.PostTransforms, logger); err != nil {
		return err
	}
	return validateResponse(step.Validate, resp, e.vars)
}

// applyTransforms runs list in order, writing each output into the context
// before the next transform resolves its input. A failing transform is
// logged and skipped; an unknown transform name stops the list.
func (e *Executor) applyTransforms(list []config.Transform, logger *zap.Logger) error {
	for _, t := range list {
		if t.Type == "" {
			continue
		}
		input := template.Resolve(t.Input, e.vars)
		cfg, _ := template.Resolve(t.Config, e.vars).(map[string]any)

		out, err := e.registry.Execute(t.Type, input, cfg, e.vars)
		if err != nil {
			if errors.Is(err, transform.ErrUnknownTransform) {
				return err
			}
			logger.Error("transform failed", log.Transform(t.Type), zap.Error(err))
			continue
		}
		if t.Output != "" {
			e.vars[t.Output] = out
		}
	}
	return nil
}

func (e *Executor) shouldSkip(c *config.Condition) bool {
	if c == nil {
		return false
	}
	left := template.ResolveString(c.Left, e.vars)
	right := template.ResolveString(c.Right, e.vars)
	return condition.Evaluate(condition.Type(c.Condition), left, right)
}

func (e *Executor) shouldRetry(r *config.RetryRule) bool {
	if r == nil {
		return false
	}
	left := template.ResolveString(r.Left, e.vars)
	right := template.ResolveString(r.Right, e.vars)
	return condition.EvaluateRule(condition.Type(r.Condition), left, right)
}

// do issues one request for step and records the response in the context
// as last_response and response. The returned error is only set when the
// request could not be built; transport failures are carried in
// Response.Err.
func (e *Executor) do(ctx context.Context, step *config.Step) (*Response, error) {
	ctx, cancel := context.WithTimeout(core.ContextWithActorID(ctx, e.actorID), e.cfg.RequestTimeout(step))
	defer cancel()

	req, body, err := buildRequest(ctx, e.cfg, step, e.vars)
	if err != nil {
		return nil, err
	}
	e.debug.LogRequest(e.actorID, step.Name, req, body)

	client := e.client
	if !step.FollowRedirects() {
		client = e.noRedirect
	}

	resp := &Response{}
	start := e.clock.Now()
	httpResp, err := client.Do(req)
	if err == nil {
		resp.StatusCode = httpResp.StatusCode
		resp.Header = httpResp.Header
		resp.Body, err = io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBodySize))
		_ = httpResp.Body.Close()
		if err != nil {
			err = fmt.Errorf("reading response body: %w", err)
		}
	}
	resp.Elapsed = e.clock.Since(start)

	if err != nil {
		resp.StatusCode = 0
		resp.Err = err
		e.debug.LogError(e.actorID, step.Name, err, resp.Elapsed)
	} else {
		e.debug.LogResponse(e.actorID, step.Name, resp)
	}

	e.vars["last_response"] = resp.lastResponse()
	e.vars["response"] = resp.retryView()
	e.report(step, req.Method, len(body), resp)
	return resp, nil
}

// report sends one event per HTTP call. A call succeeds when its status is
// one the step's status_code validation accepts, or below 400 when the step
// does not name any.
func (e *Executor) report(step *config.Step, method string, sent int, resp *Response) {
	ev := core.Event{
		ActorID:    e.actorID,
		Timestamp:  e.clock.Now(),
		Step:       step.Name,
		Method:     method,
		Duration:   resp.Elapsed,
		StatusCode: resp.StatusCode,
		BytesSent:  int64(sent),
		BytesRecv:  int64(len(resp.Body)),
	}
	codes := step.Validate.StatusCodes()
	switch {
	case resp.Err != nil:
		ev.Error = resp.Err.Error()
	case len(codes) > 0 && !codes.Contains(resp.StatusCode):
		ev.Error = fmt.Sprintf("status %d not in %v", resp.StatusCode, []int(codes))
	case len(codes) == 0 && resp.StatusCode >= 400:
		ev.Error = fmt.Sprintf("status %d", resp.StatusCode)
	default:
		ev.Success = true
	}
	e.reporter.Report(ev)
}
