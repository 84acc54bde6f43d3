package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/richinex/turbineopt/catalog"
	"github.com/richinex/turbineopt/model"
	"github.com/richinex/turbineopt/storage"
)

// queryTool is a tool whose arguments are a flat object of strings and whose
// output is the JSON encoding of whatever run returns.
type queryTool struct {
	meta ToolMetadata
	run  func(ctx context.Context, args map[string]string) (any, error)
}

func (t *queryTool) Metadata() ToolMetadata { return t.meta }

func (t *queryTool) Validate(args json.RawMessage) error {
	_, err := t.parse(args)
	return err
}

func (t *queryTool) parse(args json.RawMessage) (map[string]string, error) {
	values := map[string]string{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &values); err != nil {
			return nil, fmt.Errorf("%w: arguments must be an object of strings: %w", ErrInvalidArguments, err)
		}
	}
	for _, p := range t.meta.Parameters {
		if p.Required && strings.TrimSpace(values[p.Name]) == "" {
			return nil, fmt.Errorf("%w: missing required parameter %q", ErrInvalidArguments, p.Name)
		}
	}
	return values, nil
}

func (t *queryTool) Execute(ctx context.Context, args json.RawMessage) (ToolResult, error) {
	values, err := t.parse(args)
	if err != nil {
		return FailureResult(err), nil
	}

	out, err := t.run(ctx, values)
	if err != nil {
		return FailureResult(err), nil
	}

	data, err := json.Marshal(out)
	if err != nil {
		return FailureResult(fmt.Errorf("failed to encode output: %w", err)), nil
	}
	return SuccessResult(string(data)), nil
}

func param(name, description string, required bool) ToolParameter {
	return ToolParameter{Name: name, ParamType: "string", Description: description, Required: required}
}

// turbineRecord renders a turbine with calendar-date strings.
func turbineRecord(t model.Turbine) map[string]any {
	rec := map[string]any{
		"turbine_id":  t.ID,
		"model":       t.Model,
		"state":       t.State,
		"capacity_mw": t.CapacityMW,
	}
	for _, attr := range []string{"name", "install_date", "last_maintenance"} {
		if v := t.Attribute(attr); v != "" {
			rec[attr] = v
		}
	}
	if t.Lat != 0 || t.Lon != 0 {
		rec["lat"] = t.Lat
		rec["lon"] = t.Lon
	}
	return rec
}

func turbineRecords(turbines []model.Turbine) []map[string]any {
	out := make([]map[string]any, len(turbines))
	for i, t := range turbines {
		out[i] = turbineRecord(t)
	}
	return out
}

// NewTurbineByIDTool looks up one catalog entry. An unknown id yields an
// empty object.
func NewTurbineByIDTool(store storage.CatalogStore) Tool {
	return &queryTool{
		meta: ToolMetadata{
			Name:        "get_turbine_by_id",
			Description: "Get catalog details for one turbine",
			Parameters:  []ToolParameter{param("turbine_id", "Turbine identifier, e.g. WT-001", true)},
		},
		run: func(ctx context.Context, args map[string]string) (any, error) {
			t, err := store.GetTurbine(ctx, args["turbine_id"])
			if errors.Is(err, storage.ErrNotFound) {
				return map[string]any{}, nil
			}
			if err != nil {
				return nil, err
			}
			return turbineRecord(t), nil
		},
	}
}

func newFindTool(name, description, attr string, store storage.CatalogStore, filter func(string) catalog.Filter) Tool {
	return &queryTool{
		meta: ToolMetadata{
			Name:        name,
			Description: description,
			Parameters:  []ToolParameter{param(attr, "Value to match exactly", true)},
		},
		run: func(ctx context.Context, args map[string]string) (any, error) {
			turbines, err := store.FindTurbines(ctx, filter(args[attr]))
			if err != nil {
				return nil, err
			}
			return turbineRecords(turbines), nil
		},
	}
}

// NewTurbinesByStateTool lists turbines installed in one state.
func NewTurbinesByStateTool(store storage.CatalogStore) Tool {
	return newFindTool("get_turbines_by_state", "List turbines located in a state", "state", store,
		func(v string) catalog.Filter { return catalog.Filter{State: v} })
}

// NewTurbinesByModelTool lists turbines of one model.
func NewTurbinesByModelTool(store storage.CatalogStore) Tool {
	return newFindTool("get_turbines_by_model", "List turbines of a given model", "model", store,
		func(v string) catalog.Filter { return catalog.Filter{Model: v} })
}

// NewTurbinePerformanceTool returns the optimization result for one turbine
// and date. With a metrics list, only those columns are returned, keyed by
// turbine id.
func NewTurbinePerformanceTool(results storage.ResultReader) Tool {
	return &queryTool{
		meta: ToolMetadata{
			Name:        "get_turbine_performance",
			Description: "Get the optimal rpm, cost, revenue and profit of a turbine on an assessment date",
			Parameters: []ToolParameter{
				param("turbine_id", "Turbine identifier", true),
				param("assessed_date", "Assessment date, YYYY-MM-DD", true),
				param("metrics", "Comma-separated subset of optimal_rpm, cost, revenue, profit", false),
			},
		},
		run: func(ctx context.Context, args map[string]string) (any, error) {
			id, date := args["turbine_id"], args["assessed_date"]
			r, err := results.GetResult(ctx, id, date)
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%w for turbine %s on %s", ErrNoData, id, date)
			}
			if err != nil {
				return nil, err
			}

			if strings.TrimSpace(args["metrics"]) == "" {
				return r, nil
			}
			selected := map[string]any{}
			for _, name := range strings.Split(args["metrics"], ",") {
				if v, ok := r.Metric(strings.TrimSpace(name)); ok {
					selected[strings.TrimSpace(name)] = v
				}
			}
			return map[string]any{r.TurbineID: selected}, nil
		},
	}
}

// NewAllPerformancesTool returns every result for one assessment date.
func NewAllPerformancesTool(results storage.ResultReader) Tool {
	return &queryTool{
		meta: ToolMetadata{
			Name:        "get_all_turbine_performances",
			Description: "Get optimization results of all turbines for an assessment date",
			Parameters:  []ToolParameter{param("assessed_date", "Assessment date, YYYY-MM-DD", true)},
		},
		run: func(ctx context.Context, args map[string]string) (any, error) {
			return results.QueryResults(ctx, storage.ResultQuery{AssessedDate: args["assessed_date"]})
		},
	}
}

func newCountTool(name, description, attr string, store storage.CatalogStore) Tool {
	return &queryTool{
		meta: ToolMetadata{Name: name, Description: description},
		run: func(ctx context.Context, _ map[string]string) (any, error) {
			turbines, err := store.FindTurbines(ctx, catalog.Filter{})
			if err != nil {
				return nil, err
			}
			return catalog.CountBy(turbines, attr), nil
		},
	}
}

// NewCountByStateTool counts turbines per state.
func NewCountByStateTool(store storage.CatalogStore) Tool {
	return newCountTool("count_turbines_by_state", "Count turbines in each state", "state", store)
}

// NewCountByModelTool counts turbines per model.
func NewCountByModelTool(store storage.CatalogStore) Tool {
	return newCountTool("count_turbines_by_model", "Count turbines of each model", "model", store)
}
