package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Stats holds descriptive statistics for a numeric column.
type Stats struct {
	Column string  `json:"column"`
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// String renders the stats the way tool results present them.
func (s *Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Statistics for '%s':\n", s.Column)
	fmt.Fprintf(&b, "count   %d\n", s.Count)
	fmt.Fprintf(&b, "mean    %.4f\n", s.Mean)
	fmt.Fprintf(&b, "median  %.4f\n", s.Median)
	fmt.Fprintf(&b, "std     %.4f\n", s.StdDev)
	fmt.Fprintf(&b, "min     %.4f\n", s.Min)
	fmt.Fprintf(&b, "25%%     %.4f\n", s.Q25)
	fmt.Fprintf(&b, "75%%     %.4f\n", s.Q75)
	fmt.Fprintf(&b, "max     %.4f", s.Max)
	return b.String()
}

// ColumnStats computes descriptive statistics for a numeric column.
func (t *Table) ColumnStats(name string) (*Stats, error) {
	df, ok := t.frame()
	if !ok {
		return nil, ErrNotLoaded
	}
	if !hasColumn(df, name) {
		return nil, &ErrUnknownColumn{Column: name, Available: df.Names()}
	}

	col := df.Col(name)
	if col.Type() != series.Int && col.Type() != series.Float {
		return nil, fmt.Errorf("column %q is not numeric, cannot calculate statistics", name)
	}

	return &Stats{
		Column: name,
		Count:  col.Len() - nullCount(col),
		Mean:   col.Mean(),
		Median: col.Median(),
		StdDev: col.StdDev(),
		Min:    col.Min(),
		Q25:    col.Quantile(0.25),
		Q75:    col.Quantile(0.75),
		Max:    col.Max(),
	}, nil
}

// AllStats computes statistics for every numeric column.
func (t *Table) AllStats() ([]*Stats, error) {
	df, ok := t.frame()
	if !ok {
		return nil, ErrNotLoaded
	}

	var out []*Stats
	for _, name := range df.Names() {
		col := df.Col(name)
		if col.Type() != series.Int && col.Type() != series.Float {
			continue
		}
		s, err := t.ColumnStats(name)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ValueCount pairs a distinct value with its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// ValueCounts returns the frequency distribution for a column, most
// frequent first, capped at limit entries. A limit of zero means 20.
// The second return value is the number of distinct values overall.
func (t *Table) ValueCounts(name string, limit int) ([]ValueCount, int, error) {
	df, ok := t.frame()
	if !ok {
		return nil, 0, ErrNotLoaded
	}
	if !hasColumn(df, name) {
		return nil, 0, &ErrUnknownColumn{Column: name, Available: df.Names()}
	}
	if limit <= 0 {
		limit = 20
	}

	counts := make(map[string]int)
	for _, v := range df.Col(name).Records() {
		counts[v]++
	}

	out := make([]ValueCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, ValueCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})

	total := len(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// Search returns rows where any string column (or any of the named
// columns) contains the query, case-insensitively. The rendered result
// is capped at the configured row limit.
func (t *Table) Search(query string, columns []string) (string, error) {
	df, ok := t.frame()
	if !ok {
		return "", ErrNotLoaded
	}
	if strings.TrimSpace(query) == "" {
		return "", fmt.Errorf("search query is empty")
	}

	searchCols := columns
	if len(searchCols) == 0 {
		for i, name := range df.Names() {
			if df.Types()[i] == series.String {
				searchCols = append(searchCols, name)
			}
		}
	} else {
		for _, name := range searchCols {
			if !hasColumn(df, name) {
				return "", &ErrUnknownColumn{Column: name, Available: df.Names()}
			}
		}
	}

	q := strings.ToLower(query)
	match := make([]bool, df.Nrow())
	for _, name := range searchCols {
		for i, v := range df.Col(name).Records() {
			if !match[i] && strings.Contains(strings.ToLower(v), q) {
				match[i] = true
			}
		}
	}

	var indices []int
	for i, m := range match {
		if m {
			indices = append(indices, i)
		}
	}

	if len(indices) == 0 {
		return fmt.Sprintf("No rows found containing %q", query), nil
	}

	sub := df.Subset(indices)
	if sub.Err != nil {
		return "", fmt.Errorf("subset rows: %w", sub.Err)
	}

	header := fmt.Sprintf("Found %d rows containing %q:\n\n", len(indices), query)
	return header + t.renderFrame(sub), nil
}

// comparators maps filter operator names onto gota comparators.
var comparators = map[string]series.Comparator{
	"eq":  series.Eq,
	"neq": series.Neq,
	"gt":  series.Greater,
	"gte": series.GreaterEq,
	"lt":  series.Less,
	"lte": series.LessEq,
}

// Filter returns rows where the column matches value under the given
// operator. Operators: eq, neq, gt, gte, lt, lte, contains.
func (t *Table) Filter(column, operator, value string) (string, error) {
	df, ok := t.frame()
	if !ok {
		return "", ErrNotLoaded
	}
	if !hasColumn(df, column) {
		return "", &ErrUnknownColumn{Column: column, Available: df.Names()}
	}

	col := df.Col(column)

	var filtered dataframe.DataFrame
	if operator == "contains" {
		q := strings.ToLower(value)
		filtered = df.Filter(dataframe.F{
			Colname:    column,
			Comparator: series.CompFunc,
			Comparando: func(el series.Element) bool {
				return strings.Contains(strings.ToLower(el.String()), q)
			},
		})
	} else {
		cmp, ok := comparators[operator]
		if !ok {
			return "", fmt.Errorf("unknown operator %q (use eq, neq, gt, gte, lt, lte, contains)", operator)
		}

		// Numeric columns compare numerically.
		var comparando any = value
		if col.Type() == series.Int || col.Type() == series.Float {
			f, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return "", fmt.Errorf("column %q is numeric but value %q is not", column, value)
			}
			comparando = f
		}

		filtered = df.Filter(dataframe.F{
			Colname:    column,
			Comparator: cmp,
			Comparando: comparando,
		})
	}
	if filtered.Err != nil {
		return "", fmt.Errorf("filter: %w", filtered.Err)
	}

	if filtered.Nrow() == 0 {
		return fmt.Sprintf("No rows matched %s %s %q", column, operator, value), nil
	}

	header := fmt.Sprintf("%d rows matched %s %s %q:\n\n", filtered.Nrow(), column, operator, value)
	return header + t.renderFrame(filtered), nil
}

// Sort returns the dataset ordered by a column. Order is "asc" or
// "desc"; empty means ascending.
func (t *Table) Sort(column, order string) (string, error) {
	df, ok := t.frame()
	if !ok {
		return "", ErrNotLoaded
	}
	if !hasColumn(df, column) {
		return "", &ErrUnknownColumn{Column: column, Available: df.Names()}
	}

	var sorted dataframe.DataFrame
	switch order {
	case "", "asc":
		sorted = df.Arrange(dataframe.Sort(column))
	case "desc":
		sorted = df.Arrange(dataframe.RevSort(column))
	default:
		return "", fmt.Errorf("unknown sort order %q (use asc or desc)", order)
	}
	if sorted.Err != nil {
		return "", fmt.Errorf("sort: %w", sorted.Err)
	}

	header := fmt.Sprintf("Dataset sorted by %s (%s):\n\n", column, orDefault(order, "asc"))
	return header + t.renderFrame(sorted), nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// aggregations maps aggregation names onto gota aggregation types.
var aggregations = map[string]dataframe.AggregationType{
	"sum":    dataframe.Aggregation_SUM,
	"mean":   dataframe.Aggregation_MEAN,
	"median": dataframe.Aggregation_MEDIAN,
	"min":    dataframe.Aggregation_MIN,
	"max":    dataframe.Aggregation_MAX,
	"count":  dataframe.Aggregation_COUNT,
	"std":    dataframe.Aggregation_STD,
}

// GroupAggregate groups rows by a dimension column and aggregates a
// measure column. Aggregation names: sum, mean, median, min, max,
// count, std.
func (t *Table) GroupAggregate(groupBy, measure, aggregation string) (string, error) {
	df, ok := t.frame()
	if !ok {
		return "", ErrNotLoaded
	}
	if !hasColumn(df, groupBy) {
		return "", &ErrUnknownColumn{Column: groupBy, Available: df.Names()}
	}
	if !hasColumn(df, measure) {
		return "", &ErrUnknownColumn{Column: measure, Available: df.Names()}
	}

	agg, ok := aggregations[aggregation]
	if !ok {
		return "", fmt.Errorf("unknown aggregation %q (use sum, mean, median, min, max, count, std)", aggregation)
	}

	col := df.Col(measure)
	if aggregation != "count" && col.Type() != series.Int && col.Type() != series.Float {
		return "", fmt.Errorf("column %q is not numeric, cannot aggregate with %s", measure, aggregation)
	}

	groups := df.GroupBy(groupBy)
	if groups.Err != nil {
		return "", fmt.Errorf("group by %s: %w", groupBy, groups.Err)
	}

	result := groups.Aggregation([]dataframe.AggregationType{agg}, []string{measure})
	if result.Err != nil {
		return "", fmt.Errorf("aggregate %s(%s): %w", aggregation, measure, result.Err)
	}
	result = result.Arrange(dataframe.Sort(groupBy))
	if result.Err != nil {
		return "", fmt.Errorf("order groups: %w", result.Err)
	}

	header := fmt.Sprintf("%s of %s by %s:\n\n", aggregation, measure, groupBy)
	return header + t.renderFrame(result), nil
}

// renderFrame renders a dataframe as an aligned text table, capped at
// the configured row limit with a trailer naming the overflow.
func (t *Table) renderFrame(df dataframe.DataFrame) string {
	records := df.Records()
	if len(records) == 0 {
		return "(empty)"
	}

	maxRows := t.opts.maxRows()
	total := len(records) - 1 // minus header
	trimmed := false
	if total > maxRows {
		records = records[:maxRows+1]
		trimmed = true
	}

	// Column widths
	widths := make([]int, len(records[0]))
	for _, row := range records {
		for i, cell := range row {
			if len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	for r, row := range records {
		for i, cell := range row {
			if i > 0 {
				b.WriteString("  ")
			}
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-len(cell)))
			}
		}
		if r < len(records)-1 {
			b.WriteByte('\n')
		}
	}

	if trimmed {
		fmt.Fprintf(&b, "\n\n... and %d more rows.", total-maxRows)
	}
	return b.String()
}
