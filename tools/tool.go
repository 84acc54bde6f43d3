// Package tools answers the turbine information functions: catalog lookups
// and optimization results, addressed by function name with string
// parameters and answered with JSON text.
//
// Information Hiding:
// - Store access hidden behind the storage interfaces
// - Argument parsing and output encoding hidden in each function
// - Retry and timeout policy hidden in the Executor
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	// ErrInvalidArguments marks a call whose parameters are missing or malformed.
	ErrInvalidArguments = errors.New("validation failed")
	// ErrNoData marks a lookup with no matching row.
	ErrNoData = errors.New("no data found")
	// ErrUnknownFunction marks a call to an unregistered function.
	ErrUnknownFunction = errors.New("unknown function")
)

// ToolParameter describes one string parameter of a function.
type ToolParameter struct {
	Name        string `json:"name"`
	ParamType   string `json:"param_type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// ToolMetadata names and documents a function.
type ToolMetadata struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ToolParameter `json:"parameters"`
}

// ToolResult is the outcome of one call. Output holds JSON text on success.
type ToolResult struct {
	Output string
	Error  error
}

// MarshalJSON renders {"success","output"} plus "error" on failure.
func (t ToolResult) MarshalJSON() ([]byte, error) {
	out := struct {
		Success bool   `json:"success"`
		Output  string `json:"output"`
		Error   string `json:"error,omitempty"`
	}{Success: t.Error == nil, Output: t.Output}
	if t.Error != nil {
		out.Error = t.Error.Error()
	}
	return json.Marshal(out)
}

// Success reports whether the call produced output.
func (t ToolResult) Success() bool {
	return t.Error == nil
}

// SuccessResult wraps JSON output.
func SuccessResult(output string) ToolResult {
	return ToolResult{Output: output}
}

// FailureResult wraps a call error.
func FailureResult(err error) ToolResult {
	return ToolResult{Error: err}
}

// Tool is one turbine information function.
type Tool interface {
	Metadata() ToolMetadata

	// Execute runs the function. Data and argument problems are reported in
	// the result; a returned error means the call could not be attempted.
	Execute(ctx context.Context, args json.RawMessage) (ToolResult, error)

	// Validate checks arguments without touching any store.
	Validate(args json.RawMessage) error
}

// RetryPolicy bounds how long and how often a call is attempted.
// Zero fields take the DefaultRetryPolicy values.
type RetryPolicy struct {
	Timeout     time.Duration
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy allows three attempts within 30 seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Timeout:     30 * time.Second,
		MaxAttempts: 3,
		BaseDelay:   100 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.Timeout <= 0 {
		p.Timeout = d.Timeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	return p
}
