package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/richinex/turbineopt/storage"
)

// Executor runs tools under a RetryPolicy.
type Executor struct {
	policy RetryPolicy
}

// NewExecutor creates an executor. Zero policy fields take defaults.
func NewExecutor(policy RetryPolicy) *Executor {
	return &Executor{policy: policy.withDefaults()}
}

// Execute runs a tool until it succeeds, fails permanently, or runs out of
// attempts. The whole sequence shares one Timeout.
func (e *Executor) Execute(ctx context.Context, tool Tool, args json.RawMessage) (ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, e.policy.Timeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < e.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ToolResult{}, ctx.Err()
			case <-time.After(e.backoff(attempt)):
			}
		}

		result, err := tool.Execute(ctx, args)
		if err != nil {
			lastErr = err
			continue
		}
		if result.Success() || !retryable(result.Error) {
			return result, nil
		}
		lastErr = result.Error
	}

	return FailureResult(fmt.Errorf("%s failed after %d attempts: %w",
		tool.Metadata().Name, e.policy.MaxAttempts, lastErr)), nil
}

// backoff doubles from BaseDelay, capped at MaxDelay.
func (e *Executor) backoff(attempt int) time.Duration {
	delay := e.policy.BaseDelay << (attempt - 1)
	if delay <= 0 || delay > e.policy.MaxDelay {
		delay = e.policy.MaxDelay
	}
	return delay
}

// permanentHints match store errors that no retry will clear.
var permanentHints = []string{"no such table", "no such column", "resourcenotfound", "accessdenied"}

func retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidArguments),
		errors.Is(err, ErrNoData),
		errors.Is(err, ErrUnknownFunction),
		errors.Is(err, storage.ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, hint := range permanentHints {
		if strings.Contains(msg, hint) {
			return false
		}
	}
	return true
}
