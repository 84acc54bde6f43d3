package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/richinex/turbineopt/model"
	"github.com/richinex/turbineopt/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	ctx := context.Background()
	store := storage.NewInMemoryStore()

	day := func(s string) time.Time {
		d, _ := time.Parse(model.DateLayout, s)
		return d
	}
	turbines := []model.Turbine{
		{ID: "WT-001", Model: "GE-2.8", State: "TX", InstallDate: day("2015-03-01"), LastMaintenance: day("2024-06-01"), CapacityMW: 2.8},
		{ID: "WT-002", Model: "Vestas-V120", State: "TX", InstallDate: day("2017-09-12"), LastMaintenance: day("2024-02-20"), CapacityMW: 3},
		{ID: "WT-003", Model: "GE-2.8", State: "IA", InstallDate: day("2019-04-30"), LastMaintenance: day("2023-11-05"), CapacityMW: 2.8},
	}
	if err := store.SaveTurbines(ctx, turbines); err != nil {
		t.Fatalf("SaveTurbines failed: %v", err)
	}
	results := []model.OptimizationResult{
		{TurbineID: "WT-001", AssessedDate: "2024-07-02", OptimalRPM: 7, Cost: 2160000, Revenue: 32850000, Profit: 30690000},
		{TurbineID: "WT-002", AssessedDate: "2024-07-02", OptimalRPM: 11, Cost: 100, Revenue: 300, Profit: 200},
		{TurbineID: "WT-002", AssessedDate: "2024-07-01", OptimalRPM: 9, Cost: 100, Revenue: 250, Profit: 150},
	}
	if err := store.SaveResults(ctx, results); err != nil {
		t.Fatalf("SaveResults failed: %v", err)
	}

	registry, err := WithDefaults(store, store)
	if err != nil {
		t.Fatalf("WithDefaults failed: %v", err)
	}
	return NewHandler(registry, RetryPolicy{}, nil)
}

func invoke(t *testing.T, h *Handler, function string, params ...string) string {
	t.Helper()
	inv := Invocation{ActionGroup: "turbine-info", Function: function}
	for i := 0; i+1 < len(params); i += 2 {
		inv.Parameters = append(inv.Parameters, Parameter{Name: params[i], Type: "string", Value: params[i+1]})
	}
	resp := h.Handle(context.Background(), inv)
	if resp.Response.ActionGroup != "turbine-info" || resp.Response.Function != function {
		t.Errorf("envelope does not echo the invocation: %+v", resp.Response)
	}
	return resp.Body()
}

func decode(t *testing.T, body string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		t.Fatalf("body is not JSON: %q: %v", body, err)
	}
	return v
}

func TestWithDefaultsRegistersAllFunctions(t *testing.T) {
	h := newTestHandler(t)
	want := []string{
		"count_turbines_by_model",
		"count_turbines_by_state",
		"get_all_turbine_performances",
		"get_turbine_by_id",
		"get_turbine_performance",
		"get_turbines_by_model",
		"get_turbines_by_state",
	}
	if got := h.Registry.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
	if err := h.Registry.Register(NewCountByStateTool(storage.NewInMemoryStore())); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestGetTurbineByID(t *testing.T) {
	h := newTestHandler(t)

	got := decode(t, invoke(t, h, "get_turbine_by_id", "turbine_id", "WT-002")).(map[string]any)
	if got["model"] != "Vestas-V120" || got["install_date"] != "2017-09-12" {
		t.Errorf("unexpected turbine: %v", got)
	}

	if body := invoke(t, h, "get_turbine_by_id", "turbine_id", "WT-404"); body != "{}" {
		t.Errorf("expected empty object for unknown turbine, got %s", body)
	}
}

func TestGetTurbinesByStateAndModel(t *testing.T) {
	h := newTestHandler(t)

	texas := decode(t, invoke(t, h, "get_turbines_by_state", "state", "TX")).([]any)
	if len(texas) != 2 {
		t.Fatalf("expected 2 TX turbines, got %d", len(texas))
	}
	if texas[0].(map[string]any)["turbine_id"] != "WT-001" {
		t.Errorf("expected results ordered by id, got %v", texas)
	}

	ge := decode(t, invoke(t, h, "get_turbines_by_model", "model", "GE-2.8")).([]any)
	if len(ge) != 2 {
		t.Errorf("expected 2 GE-2.8 turbines, got %d", len(ge))
	}
}

func TestGetTurbinePerformance(t *testing.T) {
	h := newTestHandler(t)

	full := decode(t, invoke(t, h, "get_turbine_performance", "turbine_id", "WT-001", "assessed_date", "2024-07-02")).(map[string]any)
	if full["optimal_rpm"] != 7.0 || full["profit"] != 30690000.0 {
		t.Errorf("unexpected performance: %v", full)
	}

	subset := decode(t, invoke(t, h, "get_turbine_performance",
		"turbine_id", "WT-001", "assessed_date", "2024-07-02", "metrics", "profit, optimal_rpm,unknown")).(map[string]any)
	want := map[string]any{"WT-001": map[string]any{"profit": 30690000.0, "optimal_rpm": 7.0}}
	if !reflect.DeepEqual(subset, want) {
		t.Errorf("subset = %v, want %v", subset, want)
	}

	missing := decode(t, invoke(t, h, "get_turbine_performance", "turbine_id", "WT-009", "assessed_date", "2024-07-02")).(map[string]any)
	if missing["error"] != "no data found for turbine WT-009 on 2024-07-02" {
		t.Errorf("unexpected error body: %v", missing)
	}
}

func TestGetAllTurbinePerformances(t *testing.T) {
	h := newTestHandler(t)

	all := decode(t, invoke(t, h, "get_all_turbine_performances", "assessed_date", "2024-07-02")).([]any)
	if len(all) != 2 {
		t.Fatalf("expected 2 results, got %d", len(all))
	}
	if all[1].(map[string]any)["turbine_id"] != "WT-002" {
		t.Errorf("unexpected order: %v", all)
	}
}

func TestCountTurbines(t *testing.T) {
	h := newTestHandler(t)

	byState := decode(t, invoke(t, h, "count_turbines_by_state"))
	if !reflect.DeepEqual(byState, map[string]any{"TX": 2.0, "IA": 1.0}) {
		t.Errorf("unexpected state counts: %v", byState)
	}
	byModel := decode(t, invoke(t, h, "count_turbines_by_model"))
	if !reflect.DeepEqual(byModel, map[string]any{"GE-2.8": 2.0, "Vestas-V120": 1.0}) {
		t.Errorf("unexpected model counts: %v", byModel)
	}
}

func TestHandleErrorsStayInBody(t *testing.T) {
	h := newTestHandler(t)

	unknown := decode(t, invoke(t, h, "drop_tables")).(map[string]any)
	if unknown["error"] != "unknown function: drop_tables" {
		t.Errorf("unexpected body: %v", unknown)
	}

	missing := decode(t, invoke(t, h, "get_turbines_by_state")).(map[string]any)
	if missing["error"] != `validation failed: missing required parameter "state"` {
		t.Errorf("unexpected body: %v", missing)
	}
}

type flakyTool struct {
	queryTool
	calls    int
	failures int
	err      error
}

func (f *flakyTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	f.calls++
	if f.calls <= f.failures {
		return FailureResult(f.err), nil
	}
	return SuccessResult(`"ok"`), nil
}

func TestExecutorRetriesTransientFailures(t *testing.T) {
	tool := &flakyTool{failures: 2, err: errors.New("connection reset by peer")}
	tool.meta = ToolMetadata{Name: "flaky"}

	result, err := NewExecutor(RetryPolicy{BaseDelay: time.Millisecond}).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success() || tool.calls != 3 {
		t.Errorf("expected success on third attempt, got %+v after %d calls", result, tool.calls)
	}
}

func TestExecutorDoesNotRetryMissingData(t *testing.T) {
	tool := &flakyTool{failures: 5, err: fmt.Errorf("%w for turbine WT-1 on 2024-07-02", ErrNoData)}
	tool.meta = ToolMetadata{Name: "flaky"}

	result, err := NewExecutor(RetryPolicy{BaseDelay: time.Millisecond}).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() || tool.calls != 1 {
		t.Errorf("expected a single failed attempt, got %+v after %d calls", result, tool.calls)
	}
}

func TestToolResultMarshalJSON(t *testing.T) {
	data, _ := json.Marshal(FailureResult(errors.New("boom 1")))
	if string(data) != `{"success":false,"output":"","error":"boom 1"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
	data, _ = json.Marshal(SuccessResult("[]"))
	if string(data) != `{"success":true,"output":"[]"}` {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestExecutorGivesUpAfterMaxAttempts(t *testing.T) {
	tool := &flakyTool{failures: 10, err: errors.New("database is locked")}
	tool.meta = ToolMetadata{Name: "flaky"}

	result, err := NewExecutor(RetryPolicy{MaxAttempts: 4, BaseDelay: time.Millisecond}).Execute(context.Background(), tool, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success() || tool.calls != 4 {
		t.Fatalf("expected failure after 4 calls, got %+v after %d calls", result, tool.calls)
	}
	if !strings.Contains(result.Error.Error(), "flaky failed after 4 attempts") {
		t.Errorf("unexpected error: %v", result.Error)
	}
}

func TestRetryable(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{errors.New("connection refused"), true},
		{errors.New("ProvisionedThroughputExceededException"), true},
		{fmt.Errorf("lookup: %w", storage.ErrNotFound), false},
		{fmt.Errorf("%w: missing x", ErrInvalidArguments), false},
		{errors.New("SQL logic error: no such table: turbines"), false},
	}
	for _, c := range cases {
		if got := retryable(c.err); got != c.want {
			t.Errorf("retryable(%q) = %v, want %v", c.err, got, c.want)
		}
	}
}
