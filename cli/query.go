package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/richinex/turbineopt/storage"
	"github.com/richinex/turbineopt/tools"
)

// ActionGroup is the action group name reported in query responses.
const ActionGroup = "turbine-info"

// ParseParameters converts name=value arguments into invocation parameters.
func ParseParameters(args []string) ([]tools.Parameter, error) {
	params := make([]tools.Parameter, 0, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q (want name=value)", arg)
		}
		params = append(params, tools.Parameter{Name: name, Type: "string", Value: value})
	}
	return params, nil
}

// Query answers one turbine information function against a backend and
// prints the response envelope as indented JSON.
func Query(ctx context.Context, env *Env, backend, function string, args []string) (tools.Response, error) {
	params, err := ParseParameters(args)
	if err != nil {
		return tools.Response{}, err
	}
	s, closeStore, err := env.openStore(ctx, backend)
	if err != nil {
		return tools.Response{}, err
	}
	defer closeStore()

	registry, err := tools.WithDefaults(s, s)
	if err != nil {
		return tools.Response{}, err
	}
	policy := tools.RetryPolicy{
		Timeout:     env.Settings.Query.Timeout,
		MaxAttempts: env.Settings.Query.MaxAttempts,
	}
	handler := tools.NewHandler(registry, policy, env.Logger)
	resp := handler.Handle(ctx, tools.Invocation{
		ActionGroup: ActionGroup,
		Function:    function,
		Parameters:  params,
	})

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return resp, err
	}
	fmt.Fprintln(env.Out, string(data))
	return resp, nil
}

// ListTools prints the available query functions.
func ListTools(out io.Writer, verbose bool) error {
	store := storage.NewInMemoryStore()
	registry, err := tools.WithDefaults(store, store)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Available functions:")
	fmt.Fprintln(out)

	for _, meta := range registry.List() {
		fmt.Fprintf(out, "  %s\n", meta.Name)
		fmt.Fprintf(out, "    %s\n", meta.Description)

		if verbose && len(meta.Parameters) > 0 {
			fmt.Fprintln(out, "    Parameters:")
			for _, param := range meta.Parameters {
				req := ""
				if param.Required {
					req = "*"
				}
				fmt.Fprintf(out, "      %s%s: %s - %s\n", param.Name, req, param.ParamType, param.Description)
			}
		}
		fmt.Fprintln(out)
	}
	return nil
}

// Runs prints the most recent assessment runs recorded in SQLite.
func Runs(ctx context.Context, env *Env, limit int) error {
	s, err := storage.OpenSqlite(env.Settings.Store.DBPath)
	if err != nil {
		return err
	}
	defer s.Close()

	runs, err := s.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(env.Out, "No runs recorded.")
		return nil
	}

	tw := tabwriter.NewWriter(env.Out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tDATE\tSTARTED\tTURBINES\tCOMPUTED\tNO SNAPSHOT\tNO CANDIDATES\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.RunID, r.AssessedDate, r.StartedAt.UTC().Format(time.RFC3339),
			r.Turbines, r.Computed, r.NoSnapshot, r.NoValidCandidates, r.Duration.Round(time.Millisecond))
	}
	return tw.Flush()
}
