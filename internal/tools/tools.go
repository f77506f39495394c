// Package tools defines the analysis tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tabq/tabq/internal/dataset"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools map[string]*Tool
	table *dataset.Table
}

// NewRegistry creates a tool registry bound to a dataset table.
func NewRegistry(table *dataset.Table) *Registry {
	r := &Registry{
		tools: make(map[string]*Tool),
		table: table,
	}
	r.registerBuiltins()
	return r
}

// notLoadedMsg is what the LLM sees when a tool runs before any CSV is
// loaded. A plain message lets the model recover instead of aborting.
const notLoadedMsg = "No CSV data is currently loaded. Please load a CSV file first."

func (r *Registry) registerBuiltins() {
	// Dataset summary
	r.Register(&Tool{
		Name:        "get_data_summary",
		Description: "Get a comprehensive summary of the loaded CSV dataset including shape, columns, and memory usage. Use this first to understand what data is available.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleDataSummary,
	})

	// Column details
	r.Register(&Tool{
		Name:        "get_column_info",
		Description: "Get detailed information about a specific column including data type, missing values, unique values, and sample data.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"column": map[string]any{
					"type":        "string",
					"description": "The column name",
				},
			},
			"required": []string{"column"},
		},
		Handler: r.handleColumnInfo,
	})

	// Full-text search
	r.Register(&Tool{
		Name:        "search_data",
		Description: "Search for rows containing specific text, case-insensitively. Optionally limit the search to named columns.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Text to search for",
				},
				"columns": map[string]any{
					"type":        "string",
					"description": "Comma-separated column names to limit the search (optional)",
				},
			},
			"required": []string{"query"},
		},
		Handler: r.handleSearch,
	})

	// Descriptive statistics
	r.Register(&Tool{
		Name:        "get_basic_stats",
		Description: "Get basic statistics (count, mean, median, std, min, quartiles, max) for numeric columns. Omit column to get stats for all numeric columns.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"column": map[string]any{
					"type":        "string",
					"description": "A numeric column name (optional)",
				},
			},
		},
		Handler: r.handleBasicStats,
	})

	// Frequency distribution
	r.Register(&Tool{
		Name:        "get_value_counts",
		Description: "Get the frequency distribution of values in a column, most frequent first.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"column": map[string]any{
					"type":        "string",
					"description": "The column name",
				},
			},
			"required": []string{"column"},
		},
		Handler: r.handleValueCounts,
	})

	// Analytics classification
	r.Register(&Tool{
		Name:        "list_measures",
		Description: "List the measures (numeric fields suitable for aggregation like sum or average) in the dataset.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleListMeasures,
	})

	r.Register(&Tool{
		Name:        "list_dimensions",
		Description: "List the dimensions (categorical fields suitable for grouping and filtering) in the dataset.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: r.handleListDimensions,
	})

	// Row filtering
	r.Register(&Tool{
		Name:        "filter_data",
		Description: "Filter rows where a column matches a value. Operators: eq, neq, gt, gte, lt, lte, contains.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"column": map[string]any{
					"type":        "string",
					"description": "The column to filter on",
				},
				"operator": map[string]any{
					"type":        "string",
					"description": "Comparison operator (eq, neq, gt, gte, lt, lte, contains)",
				},
				"value": map[string]any{
					"type":        "string",
					"description": "The value to compare against",
				},
			},
			"required": []string{"column", "operator", "value"},
		},
		Handler: r.handleFilter,
	})

	// Sorting
	r.Register(&Tool{
		Name:        "sort_data",
		Description: "Sort the dataset by a column in ascending or descending order.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"column": map[string]any{
					"type":        "string",
					"description": "The column to sort by",
				},
				"order": map[string]any{
					"type":        "string",
					"description": "Sort order: asc or desc (default asc)",
				},
			},
			"required": []string{"column"},
		},
		Handler: r.handleSort,
	})

	// Grouping and aggregation
	r.Register(&Tool{
		Name:        "group_and_aggregate",
		Description: "Group rows by a dimension column and aggregate a measure column. Aggregations: sum, mean, median, min, max, count, std.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"group_by": map[string]any{
					"type":        "string",
					"description": "The dimension column to group by",
				},
				"measure": map[string]any{
					"type":        "string",
					"description": "The measure column to aggregate",
				},
				"aggregation": map[string]any{
					"type":        "string",
					"description": "Aggregation function (sum, mean, median, min, max, count, std)",
				},
			},
			"required": []string{"group_by", "measure", "aggregation"},
		},
		Handler: r.handleGroupAggregate,
	})
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// List returns all tools in the function-calling format the LLM expects.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", &ErrToolUnavailable{ToolName: name, Available: r.Names()}
	}
	return tool.Handler(ctx, args)
}

// ExecuteJSON runs a tool with JSON-encoded arguments.
func (r *Registry) ExecuteJSON(ctx context.Context, name string, argsJSON string) (string, error) {
	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	return r.Execute(ctx, name, args)
}

// Tool handlers

func (r *Registry) handleDataSummary(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}
	return r.table.Summary()
}

func (r *Registry) handleColumnInfo(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	column, _ := args["column"].(string)
	if column == "" {
		return "", fmt.Errorf("column is required")
	}

	info, err := r.table.ColumnInfo(column)
	if err != nil {
		return "", err
	}

	meta, err := r.table.Metadata()
	if err != nil {
		return "", err
	}

	nullPct := 0.0
	if meta.Rows > 0 {
		nullPct = float64(info.NullCount) / float64(meta.Rows) * 100
	}

	samples := info.SampleValues
	if len(samples) > 5 {
		samples = samples[:5]
	}

	return fmt.Sprintf(
		"Column: %s\nDescription: %s\nData Type: %s\nMissing Values: %d (%.1f%%)\nUnique Values: %d\nSample Values: %s",
		info.Name, info.Description, info.Type, info.NullCount, nullPct,
		info.UniqueCount, strings.Join(samples, ", "),
	), nil
}

func (r *Registry) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	var columns []string
	if raw, _ := args["columns"].(string); raw != "" {
		for _, c := range strings.Split(raw, ",") {
			columns = append(columns, strings.TrimSpace(c))
		}
	}

	return r.table.Search(query, columns)
}

func (r *Registry) handleBasicStats(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	if column, _ := args["column"].(string); column != "" {
		stats, err := r.table.ColumnStats(column)
		if err != nil {
			return "", err
		}
		return stats.String(), nil
	}

	all, err := r.table.AllStats()
	if err != nil {
		return "", err
	}
	if len(all) == 0 {
		return "No numeric columns found in the dataset.", nil
	}

	parts := make([]string, 0, len(all))
	for _, s := range all {
		parts = append(parts, s.String())
	}
	return "Basic statistics for all numeric columns:\n\n" + strings.Join(parts, "\n\n"), nil
}

func (r *Registry) handleValueCounts(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	column, _ := args["column"].(string)
	if column == "" {
		return "", fmt.Errorf("column is required")
	}

	counts, total, err := r.table.ValueCounts(column, 20)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if total > len(counts) {
		fmt.Fprintf(&b, "Top %d values in '%s' (out of %d unique values):\n\n", len(counts), column, total)
	} else {
		fmt.Fprintf(&b, "Value counts for '%s':\n\n", column)
	}
	for _, vc := range counts {
		fmt.Fprintf(&b, "%s    %d\n", vc.Value, vc.Count)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Registry) handleListMeasures(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	measures, err := r.table.Measures()
	if err != nil {
		return "", err
	}
	if len(measures) == 0 {
		return "No measures found in the dataset. All columns appear to be dimensions.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available measures (%d):\n", len(measures))
	for _, m := range measures {
		info, err := r.table.ColumnInfo(m)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "- %s (%s)\n", m, info.Type)
	}
	b.WriteString("\nUse measures for: aggregation, sum, average, min, max")
	return b.String(), nil
}

func (r *Registry) handleListDimensions(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	dims, err := r.table.Dimensions()
	if err != nil {
		return "", err
	}
	if len(dims) == 0 {
		return "No dimensions found in the dataset. All columns appear to be measures.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Available dimensions (%d):\n", len(dims))
	for _, d := range dims {
		info, err := r.table.ColumnInfo(d)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "- %s (%s)\n", d, info.Type)
	}
	b.WriteString("\nUse dimensions for: grouping, filtering, categorizing")
	return b.String(), nil
}

func (r *Registry) handleFilter(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	column, _ := args["column"].(string)
	operator, _ := args["operator"].(string)
	if column == "" || operator == "" {
		return "", fmt.Errorf("column and operator are required")
	}
	value := stringifyArg(args["value"])

	return r.table.Filter(column, operator, value)
}

func (r *Registry) handleSort(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	column, _ := args["column"].(string)
	if column == "" {
		return "", fmt.Errorf("column is required")
	}
	order, _ := args["order"].(string)

	return r.table.Sort(column, order)
}

func (r *Registry) handleGroupAggregate(ctx context.Context, args map[string]any) (string, error) {
	if !r.table.Loaded() {
		return notLoadedMsg, nil
	}

	groupBy, _ := args["group_by"].(string)
	measure, _ := args["measure"].(string)
	aggregation, _ := args["aggregation"].(string)
	if groupBy == "" || measure == "" || aggregation == "" {
		return "", fmt.Errorf("group_by, measure, and aggregation are required")
	}

	return r.table.GroupAggregate(groupBy, measure, aggregation)
}

// stringifyArg renders a JSON argument value as the string the dataset
// layer expects. Models send numbers as JSON numbers, not strings.
func stringifyArg(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// Render integers without a trailing .0
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case bool:
		return fmt.Sprintf("%t", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
