package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultTimeout = 5 * time.Second

var ErrToolTimeout = errors.New("tool call timed out")

// Invocation is a single toolUse request from the model.
type Invocation struct {
	ToolUseID string
	Name      string
	Arguments string
}

// Result is what gets sent back to the model. Content is always valid JSON:
// the serialized tool output or {"error": "..."} when Err is set.
type Result struct {
	ToolUseID string
	Name      string
	Content   string
	Err       error
	Duration  time.Duration
}

func (r Result) Failed() bool { return r.Err != nil }

type Orchestrator struct {
	registry *Registry
	timeout  time.Duration
}

type OrchestratorOption func(*Orchestrator)

// WithTimeout bounds every tool call. Non-positive values disable the bound.
func WithTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.timeout = timeout
	}
}

func NewOrchestrator(registry *Registry, opts ...OrchestratorOption) *Orchestrator {
	if registry == nil {
		registry = NewRegistry()
	}
	o := &Orchestrator{registry: registry, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) Registry() *Registry { return o.registry }

// Execute runs the invocation and never fails: lookup errors, invalid
// arguments, tool errors, panics and timeouts all become an error result.
func (o *Orchestrator) Execute(ctx context.Context, invocation Invocation) Result {
	ctx, span := tracer.Start(ctx, "execute tool")
	defer span.End()
	span.SetAttributes(
		attribute.String("tool.name", invocation.Name),
		attribute.String("tool.use_id", invocation.ToolUseID),
	)

	start := time.Now()
	output, err := o.run(ctx, invocation)
	result := Result{ToolUseID: invocation.ToolUseID, Name: invocation.Name, Duration: time.Since(start)}

	if err == nil {
		content, marshalErr := json.Marshal(output)
		if marshalErr != nil {
			err = fmt.Errorf("failed to serialize result of %q: %w", invocation.Name, marshalErr)
		} else {
			result.Content = string(content)
		}
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		toolFailureCounter.Add(ctx, 1)
		logger.WarnContext(ctx, "tool call failed",
			"tool", invocation.Name,
			"tool_use_id", invocation.ToolUseID,
			"error", err)

		result.Err = err
		result.Content = ErrorContent(err)
	}

	return result
}

func (o *Orchestrator) run(ctx context.Context, invocation Invocation) (any, error) {
	tool, ok := o.registry.Lookup(invocation.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, invocation.Name)
	}

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				done <- outcome{err: fmt.Errorf("tool %q panicked: %v", invocation.Name, recovered)}
			}
		}()
		output, err := tool.Execute(ctx, invocation.Arguments)
		done <- outcome{output: output, err: err}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			return nil, fmt.Errorf("failed to execute tool %q: %w", invocation.Name, result.err)
		}
		return result.output, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, invocation.Name, o.timeout)
		}
		return nil, fmt.Errorf("tool %q cancelled: %w", invocation.Name, ctx.Err())
	}
}

// ErrorContent renders err as the JSON payload the model receives for a
// failed tool call.
func ErrorContent(err error) string {
	content, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(content)
}
