package dispatch

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lawggle-ai/internal/domain"
)

func calls(names ...string) []domain.ToolCall {
	out := make([]domain.ToolCall, len(names))
	for i, n := range names {
		out[i] = domain.ToolCall{
			ID:       "call_" + n,
			Type:     domain.ToolTypeFunction,
			Function: domain.FunctionCall{Name: n, Arguments: "{}"},
		}
	}
	return out
}

func TestRunPairsOutputsWithCalls(t *testing.T) {
	// Earlier calls sleep longer so completion order is the reverse of call order.
	delays := map[string]time.Duration{
		"a": 60 * time.Millisecond,
		"b": 30 * time.Millisecond,
		"c": 0,
	}
	handler := func(_ context.Context, c domain.ToolCall) (string, error) {
		time.Sleep(delays[c.Function.Name])
		return "out-" + c.Function.Name, nil
	}

	outputs, err := Run(context.Background(), calls("a", "b", "c"), handler)
	require.NoError(t, err)

	assert.Equal(t, []domain.ToolOutput{
		{Output: "out-a", ToolCallID: "call_a"},
		{Output: "out-b", ToolCallID: "call_b"},
		{Output: "out-c", ToolCallID: "call_c"},
	}, outputs)
}

func TestRunEmptyBatch(t *testing.T) {
	outputs, err := Run(context.Background(), nil, func(context.Context, domain.ToolCall) (string, error) {
		t.Fatal("handler must not be called")
		return "", nil
	})
	require.NoError(t, err)
	assert.Empty(t, outputs)
}

func TestRunEmptyOutputIsKept(t *testing.T) {
	outputs, err := Run(context.Background(), calls("unknown"), func(context.Context, domain.ToolCall) (string, error) {
		return "", nil
	})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, domain.ToolOutput{Output: "", ToolCallID: "call_unknown"}, outputs[0])
}

func TestRunHandlerErrorFailsBatch(t *testing.T) {
	boom := errors.New("boom")
	handler := func(_ context.Context, c domain.ToolCall) (string, error) {
		if c.Function.Name == "bad" {
			return "", boom
		}
		return "ok", nil
	}

	outputs, err := Run(context.Background(), calls("good", "bad", "good2"), handler)
	require.Error(t, err)
	assert.Nil(t, outputs)
	assert.True(t, errors.Is(err, boom))
	assert.True(t, errors.Is(err, domain.ErrToolCallFailure))
	assert.Contains(t, err.Error(), "call_bad")
}

func TestRunHandlerPanicBecomesError(t *testing.T) {
	handler := func(context.Context, domain.ToolCall) (string, error) {
		panic("kaboom")
	}

	_, err := Run(context.Background(), calls("x"), handler)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrToolCallFailure))
	assert.Contains(t, err.Error(), "kaboom")
}

func TestRunCancelsSiblingsOnFailure(t *testing.T) {
	var cancelled atomic.Bool
	handler := func(ctx context.Context, c domain.ToolCall) (string, error) {
		if c.Function.Name == "bad" {
			return "", errors.New("fail")
		}
		select {
		case <-ctx.Done():
			cancelled.Store(true)
			return "", ctx.Err()
		case <-time.After(2 * time.Second):
			return "late", nil
		}
	}

	_, err := Run(context.Background(), calls("slow", "bad"), handler)
	require.Error(t, err)
	assert.True(t, cancelled.Load())
}

func TestRunWithLimit(t *testing.T) {
	var inFlight, peak atomic.Int32
	handler := func(context.Context, domain.ToolCall) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}

	outputs, err := Run(context.Background(), calls("a", "b", "c", "d", "e", "f"), handler, WithLimit(2))
	require.NoError(t, err)
	assert.Len(t, outputs, 6)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}
