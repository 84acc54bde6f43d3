package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Parameter is one named argument of an Invocation.
type Parameter struct {
	Name  string `json:"name"`
	Type  string `json:"type,omitempty"`
	Value string `json:"value"`
}

// Invocation is an action-group function call.
type Invocation struct {
	ActionGroup string      `json:"actionGroup"`
	Function    string      `json:"function"`
	Parameters  []Parameter `json:"parameters"`
}

// Args encodes the parameters as a JSON object. Later duplicates win.
func (inv Invocation) Args() json.RawMessage {
	values := make(map[string]string, len(inv.Parameters))
	for _, p := range inv.Parameters {
		values[p.Name] = p.Value
	}
	data, _ := json.Marshal(values)
	return data
}

// Response is the action-group reply envelope. The tool output, or an
// {"error": ...} object, is carried as text in
// response.functionResponse.responseBody.TEXT.body.
type Response struct {
	Response ResponseEnvelope `json:"response"`
}

// ResponseEnvelope identifies the answered function.
type ResponseEnvelope struct {
	ActionGroup      string           `json:"actionGroup"`
	Function         string           `json:"function"`
	FunctionResponse FunctionResponse `json:"functionResponse"`
}

// FunctionResponse holds the response body by content type.
type FunctionResponse struct {
	ResponseBody map[string]TextBody `json:"responseBody"`
}

// TextBody is a text payload.
type TextBody struct {
	Body string `json:"body"`
}

// Body returns the TEXT payload.
func (r Response) Body() string {
	return r.Response.FunctionResponse.ResponseBody["TEXT"].Body
}

// Handler dispatches invocations to registered tools.
type Handler struct {
	Registry *Registry
	Executor *Executor
	Logger   *slog.Logger
}

// NewHandler creates a handler running tools under policy.
func NewHandler(registry *Registry, policy RetryPolicy, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{Registry: registry, Executor: NewExecutor(policy), Logger: logger}
}

// Handle runs the invoked function. Failures, including unknown functions,
// are reported inside the response body, never as a Go error.
func (h *Handler) Handle(ctx context.Context, inv Invocation) Response {
	body := h.run(ctx, inv)
	return Response{Response: ResponseEnvelope{
		ActionGroup: inv.ActionGroup,
		Function:    inv.Function,
		FunctionResponse: FunctionResponse{
			ResponseBody: map[string]TextBody{"TEXT": {Body: body}},
		},
	}}
}

func (h *Handler) run(ctx context.Context, inv Invocation) string {
	tool, ok := h.Registry.Get(inv.Function)
	if !ok {
		return errorBody(fmt.Errorf("%w: %s", ErrUnknownFunction, inv.Function))
	}

	args := inv.Args()
	if err := tool.Validate(args); err != nil {
		return errorBody(err)
	}

	start := time.Now()
	result, err := h.Executor.Execute(ctx, tool, args)
	if err == nil && !result.Success() {
		err = result.Error
	}
	if err != nil {
		h.Logger.Warn("tool failed", "function", inv.Function, "error", err)
		return errorBody(err)
	}
	h.Logger.Debug("tool finished", "function", inv.Function, "duration", time.Since(start))
	return result.Output
}

func errorBody(err error) string {
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	return string(data)
}
