package tools

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabq/tabq/internal/dataset"
)

func newRegistry(t *testing.T, loaded bool) *Registry {
	t.Helper()
	table := dataset.New(dataset.Options{}, nil)
	if loaded {
		path := filepath.Join("..", "dataset", "testdata", "sales.csv")
		if err := table.Load(path); err != nil {
			t.Fatalf("Load: %v", err)
		}
	}
	return NewRegistry(table)
}

func TestRegistryBuiltins(t *testing.T) {
	r := newRegistry(t, false)

	want := []string{
		"get_data_summary", "get_column_info", "search_data",
		"get_basic_stats", "get_value_counts", "list_measures",
		"list_dimensions", "filter_data", "sort_data", "group_and_aggregate",
	}
	for _, name := range want {
		if r.Get(name) == nil {
			t.Errorf("builtin tool %q not registered", name)
		}
	}
	if len(r.Names()) != len(want) {
		t.Errorf("registered %d tools, want %d", len(r.Names()), len(want))
	}
}

func TestListFormat(t *testing.T) {
	r := newRegistry(t, false)

	specs := r.List()
	if len(specs) == 0 {
		t.Fatal("List returned nothing")
	}
	for _, spec := range specs {
		if spec["type"] != "function" {
			t.Errorf("spec type = %v, want function", spec["type"])
		}
		fn, ok := spec["function"].(map[string]any)
		if !ok {
			t.Fatal("spec missing function block")
		}
		if fn["name"] == "" || fn["description"] == "" {
			t.Errorf("incomplete spec: %v", fn)
		}
		if fn["parameters"] == nil {
			t.Errorf("tool %v missing parameters schema", fn["name"])
		}
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := newRegistry(t, false)

	_, err := r.Execute(context.Background(), "hack_the_planet", nil)
	var unavail *ErrToolUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("error = %v, want ErrToolUnavailable", err)
	}
	if !strings.Contains(unavail.Error(), "get_data_summary") {
		t.Errorf("error should name available tools: %v", unavail)
	}
}

func TestToolsWithoutDataset(t *testing.T) {
	r := newRegistry(t, false)
	ctx := context.Background()

	// Every builtin should tell the model to load data, not error out.
	for _, name := range r.Names() {
		args := map[string]any{
			"column": "x", "query": "x", "operator": "eq", "value": "x",
			"group_by": "x", "measure": "x", "aggregation": "sum",
		}
		got, err := r.Execute(ctx, name, args)
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
			continue
		}
		if got != notLoadedMsg {
			t.Errorf("%s: got %q, want not-loaded message", name, got)
		}
	}
}

func TestDataSummaryTool(t *testing.T) {
	r := newRegistry(t, true)

	got, err := r.Execute(context.Background(), "get_data_summary", nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "12 rows") || !strings.Contains(got, "sales.csv") {
		t.Errorf("unexpected summary:\n%s", got)
	}
}

func TestColumnInfoTool(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	got, err := r.Execute(ctx, "get_column_info", map[string]any{"column": "price"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, want := range []string{"Column: price", "Data Type:", "Unique Values:", "Sample Values:"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q:\n%s", want, got)
		}
	}

	// Unknown columns surface the available ones
	if _, err := r.Execute(ctx, "get_column_info", map[string]any{"column": "bogus"}); err == nil {
		t.Error("expected error for unknown column")
	}

	// Missing argument
	if _, err := r.Execute(ctx, "get_column_info", nil); err == nil {
		t.Error("expected error for missing column argument")
	}
}

func TestSearchTool(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	got, err := r.Execute(ctx, "search_data", map[string]any{"query": "widget"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "Found 4 rows") {
		t.Errorf("unexpected result:\n%s", got)
	}

	got, err = r.Execute(ctx, "search_data", map[string]any{"query": "West", "columns": "region"})
	if err != nil {
		t.Fatalf("Execute scoped: %v", err)
	}
	if !strings.Contains(got, "Found 5 rows") {
		t.Errorf("unexpected scoped result:\n%s", got)
	}
}

func TestBasicStatsTool(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	got, err := r.Execute(ctx, "get_basic_stats", map[string]any{"column": "quantity"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "Statistics for 'quantity'") {
		t.Errorf("unexpected result:\n%s", got)
	}

	// No column → all numeric columns
	got, err = r.Execute(ctx, "get_basic_stats", nil)
	if err != nil {
		t.Fatalf("Execute all: %v", err)
	}
	if !strings.Contains(got, "all numeric columns") {
		t.Errorf("unexpected all-columns result:\n%s", got)
	}
}

func TestValueCountsTool(t *testing.T) {
	r := newRegistry(t, true)

	got, err := r.Execute(context.Background(), "get_value_counts", map[string]any{"column": "product"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "Value counts for 'product'") || !strings.Contains(got, "Widget") {
		t.Errorf("unexpected result:\n%s", got)
	}
}

func TestMeasureDimensionTools(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	measures, err := r.Execute(ctx, "list_measures", nil)
	if err != nil {
		t.Fatalf("list_measures: %v", err)
	}
	if !strings.Contains(measures, "price") || !strings.Contains(measures, "quantity") {
		t.Errorf("measures missing expected columns:\n%s", measures)
	}

	dims, err := r.Execute(ctx, "list_dimensions", nil)
	if err != nil {
		t.Fatalf("list_dimensions: %v", err)
	}
	for _, want := range []string{"product", "region", "order_id"} {
		if !strings.Contains(dims, want) {
			t.Errorf("dimensions missing %q:\n%s", want, dims)
		}
	}
}

func TestFilterToolNumericArgument(t *testing.T) {
	r := newRegistry(t, true)

	// JSON numbers arrive as float64; the handler must stringify them.
	got, err := r.Execute(context.Background(), "filter_data", map[string]any{
		"column": "quantity", "operator": "gte", "value": float64(5),
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(got, "2 rows matched") {
		t.Errorf("unexpected result:\n%s", got)
	}
}

func TestSortAndGroupTools(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	got, err := r.Execute(ctx, "sort_data", map[string]any{"column": "price", "order": "desc"})
	if err != nil {
		t.Fatalf("sort_data: %v", err)
	}
	if !strings.Contains(got, "sorted by price") {
		t.Errorf("unexpected sort result:\n%s", got)
	}

	got, err = r.Execute(ctx, "group_and_aggregate", map[string]any{
		"group_by": "region", "measure": "price", "aggregation": "mean",
	})
	if err != nil {
		t.Fatalf("group_and_aggregate: %v", err)
	}
	if !strings.Contains(got, "mean of price by region") {
		t.Errorf("unexpected group result:\n%s", got)
	}
}

func TestExecuteJSON(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	got, err := r.ExecuteJSON(ctx, "get_column_info", `{"column": "region"}`)
	if err != nil {
		t.Fatalf("ExecuteJSON: %v", err)
	}
	if !strings.Contains(got, "Column: region") {
		t.Errorf("unexpected result:\n%s", got)
	}

	if _, err := r.ExecuteJSON(ctx, "get_column_info", `{"column": `); err == nil {
		t.Error("expected error for malformed JSON")
	}
}

func TestSuggestTools(t *testing.T) {
	tests := []struct {
		question string
		want     []string
	}{
		{"Give me a summary of the data", []string{"get_data_summary"}},
		{"What is the average price?", []string{"get_basic_stats"}},
		{"Find rows with Widget", []string{"search_data"}},
		{"Show the top 5 by price", []string{"sort_data"}},
		{"Total sales by region breakdown", []string{"group_and_aggregate"}},
		{"Tell me about the price column", []string{"get_data_summary", "get_column_info"}},
		{"hello there", nil},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			got := SuggestTools(tt.question)
			if len(got) != len(tt.want) {
				t.Fatalf("SuggestTools(%q) = %v, want %v", tt.question, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("suggestion[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
