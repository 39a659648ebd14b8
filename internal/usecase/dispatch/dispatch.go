// Package dispatch resolves the tool calls of a paused run concurrently.
package dispatch

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"lawggle-ai/internal/domain"
)

type options struct {
	limit int
}

// Option configures Run.
type Option func(*options)

// WithLimit caps the number of handlers running at once. n <= 0 means no cap.
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

// Run invokes handler for every call concurrently and returns one output per
// call, in call order. Each output is written to the slot of the call that
// produced it, so completion order never affects pairing.
//
// The batch is returned only after every handler has settled. If any handler
// fails, Run returns the first error and no outputs.
func Run(ctx context.Context, calls []domain.ToolCall, handler domain.FunctionHandler, opts ...Option) ([]domain.ToolOutput, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	outputs := make([]domain.ToolOutput, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}

	for i, call := range calls {
		g.Go(func() error {
			out, err := invoke(gctx, handler, call)
			if err != nil {
				return domain.NewDomainError("dispatch.Run",
					fmt.Errorf("%w: %w", domain.ErrToolCallFailure, err),
					fmt.Sprintf("call %s (%s)", call.ID, call.Function.Name))
			}
			outputs[i] = domain.ToolOutput{Output: out, ToolCallID: call.ID}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// invoke runs one handler, turning a panic into an error.
func invoke(ctx context.Context, handler domain.FunctionHandler, call domain.ToolCall) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(ctx, call)
}
