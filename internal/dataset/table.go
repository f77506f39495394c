// Package dataset loads CSV files and answers structured questions
// about their contents. It wraps a gota dataframe with metadata,
// column classification, and the analysis operations the agent's
// tools are built on.
package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// Options control CSV parsing and result rendering.
type Options struct {
	// Delimiter is the field separator. Zero means comma.
	Delimiter rune

	// MaxFileSizeMB caps the input file size. Zero means no limit.
	MaxFileSizeMB int

	// MaxResultRows caps rows rendered in tool results. Zero means 10.
	MaxResultRows int
}

func (o Options) maxRows() int {
	if o.MaxResultRows <= 0 {
		return 10
	}
	return o.MaxResultRows
}

// Table holds a loaded CSV file and its derived metadata.
// All methods are safe for concurrent use; the dataframe itself is
// never mutated after load.
type Table struct {
	mu     sync.RWMutex
	df     dataframe.DataFrame
	path   string
	loaded bool
	opts   Options
	logger *slog.Logger
}

// New creates an empty table. Load must be called before any analysis.
func New(opts Options, logger *slog.Logger) *Table {
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{opts: opts, logger: logger}
}

// Load reads a CSV file into memory, replacing any previously loaded
// data. The file must exist, carry a .csv extension, and fit under the
// configured size cap.
func (t *Table) Load(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a CSV file", path)
	}
	if !strings.EqualFold(filepath.Ext(path), ".csv") {
		return fmt.Errorf("%s: file must have a .csv extension", path)
	}
	if t.opts.MaxFileSizeMB > 0 {
		max := int64(t.opts.MaxFileSizeMB) * 1024 * 1024
		if info.Size() > max {
			return fmt.Errorf("%s is %d bytes, exceeds the %d MB limit", path, info.Size(), t.opts.MaxFileSizeMB)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	delim := t.opts.Delimiter
	if delim == 0 {
		delim = ','
	}

	df := dataframe.ReadCSV(f,
		dataframe.WithDelimiter(delim),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(true),
	)
	if df.Err != nil {
		return fmt.Errorf("parse %s: %w", path, df.Err)
	}
	if df.Ncol() == 0 {
		return fmt.Errorf("%s contains no columns", path)
	}

	t.mu.Lock()
	t.df = df
	t.path = path
	t.loaded = true
	t.mu.Unlock()

	t.logger.Info("dataset loaded",
		"file", filepath.Base(path),
		"rows", df.Nrow(),
		"columns", df.Ncol(),
	)
	return nil
}

// Loaded reports whether a dataset is in memory.
func (t *Table) Loaded() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.loaded
}

// Clear drops the loaded dataset.
func (t *Table) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.df = dataframe.DataFrame{}
	t.path = ""
	t.loaded = false
}

// Path returns the path of the loaded file, or empty.
func (t *Table) Path() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.path
}

// frame returns the dataframe under a read lock. Callers must treat
// the returned value as immutable.
func (t *Table) frame() (dataframe.DataFrame, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.df, t.loaded
}

// Metadata describes the loaded dataset.
type Metadata struct {
	FilePath    string            `json:"file_path"`
	FileName    string            `json:"file_name"`
	Rows        int               `json:"rows"`
	Cols        int               `json:"cols"`
	Columns     []string          `json:"columns"`
	Types       map[string]string `json:"types"`
	NullCounts  map[string]int    `json:"null_counts"`
	SampleRows  [][]string        `json:"sample_rows"` // first 3 data rows
	MemoryBytes int               `json:"memory_bytes"`
}

// Metadata returns descriptive metadata for the loaded dataset.
func (t *Table) Metadata() (*Metadata, error) {
	df, ok := t.frame()
	if !ok {
		return nil, ErrNotLoaded
	}

	meta := &Metadata{
		FilePath:   t.Path(),
		FileName:   filepath.Base(t.Path()),
		Rows:       df.Nrow(),
		Cols:       df.Ncol(),
		Columns:    df.Names(),
		Types:      make(map[string]string, df.Ncol()),
		NullCounts: make(map[string]int, df.Ncol()),
	}

	for i, name := range df.Names() {
		meta.Types[name] = string(df.Types()[i])
		meta.NullCounts[name] = nullCount(df.Col(name))
	}

	records := df.Records()
	for _, row := range records {
		for _, cell := range row {
			meta.MemoryBytes += len(cell)
		}
	}
	// records[0] is the header
	for i := 1; i < len(records) && i <= 3; i++ {
		meta.SampleRows = append(meta.SampleRows, records[i])
	}

	return meta, nil
}

// nullCount counts missing values in a series. Numeric series carry
// NaN markers; string series use the empty string.
func nullCount(s series.Series) int {
	count := 0
	if s.Type() == series.String {
		for _, v := range s.Records() {
			if v == "" || v == "NaN" {
				count++
			}
		}
		return count
	}
	for _, isNaN := range s.IsNaN() {
		if isNaN {
			count++
		}
	}
	return count
}

// ColumnInfo describes a single column.
type ColumnInfo struct {
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	NullCount    int      `json:"null_count"`
	UniqueCount  int      `json:"unique_count"`
	SampleValues []string `json:"sample_values"`
	Description  string   `json:"description"`
	IsMeasure    bool     `json:"is_measure"`
}

// ColumnInfo returns details about a named column.
func (t *Table) ColumnInfo(name string) (*ColumnInfo, error) {
	df, ok := t.frame()
	if !ok {
		return nil, ErrNotLoaded
	}
	if !hasColumn(df, name) {
		return nil, &ErrUnknownColumn{Column: name, Available: df.Names()}
	}

	col := df.Col(name)
	uniques := uniqueValues(col)

	samples := make([]string, 0, 10)
	for _, v := range uniques {
		if v == "" || v == "NaN" {
			continue
		}
		samples = append(samples, v)
		if len(samples) == 10 {
			break
		}
	}

	info := &ColumnInfo{
		Name:         name,
		Type:         string(col.Type()),
		NullCount:    nullCount(col),
		UniqueCount:  len(uniques),
		SampleValues: samples,
		IsMeasure:    isMeasure(name, col),
	}
	info.Description = describeColumn(name, col, info.UniqueCount)
	return info, nil
}

// uniqueValues returns distinct record values in first-seen order.
func uniqueValues(s series.Series) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range s.Records() {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// describeColumn infers a short description from the column name and
// its contents.
func describeColumn(name string, s series.Series, uniqueCount int) string {
	lower := strings.ToLower(name)

	switch {
	case containsAny(lower, "id", "_id", "identifier"):
		return "Unique identifier column"
	case containsAny(lower, "name", "title"):
		return "Name/title column containing text values"
	case containsAny(lower, "date", "time"):
		return "Date/time column"
	case containsAny(lower, "email"):
		return "Email address column"
	case containsAny(lower, "price", "cost", "amount"):
		return "Monetary value column"
	case containsAny(lower, "age"):
		return "Age column (numeric)"
	}

	if s.Type() == series.String {
		if s.Len() > 0 && uniqueCount*10 < s.Len() {
			return fmt.Sprintf("Categorical column with %d unique values", uniqueCount)
		}
		return "Text column"
	}
	if s.Type() == series.Int || s.Type() == series.Float {
		return fmt.Sprintf("Numeric column (range: %.2f to %.2f)", s.Min(), s.Max())
	}
	return fmt.Sprintf("Column of type %s", s.Type())
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// isMeasure reports whether a column is a numeric fact suitable for
// aggregation. Identifier-like numeric columns count as dimensions.
func isMeasure(name string, s series.Series) bool {
	if s.Type() != series.Int && s.Type() != series.Float {
		return false
	}
	lower := strings.ToLower(name)
	if containsAny(lower, "id", "code", "zip", "postal", "year") {
		return false
	}
	return true
}

// Measures returns the columns classified as measures.
func (t *Table) Measures() ([]string, error) {
	df, ok := t.frame()
	if !ok {
		return nil, ErrNotLoaded
	}
	var out []string
	for _, name := range df.Names() {
		if isMeasure(name, df.Col(name)) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Dimensions returns the columns classified as dimensions.
func (t *Table) Dimensions() ([]string, error) {
	df, ok := t.frame()
	if !ok {
		return nil, ErrNotLoaded
	}
	var out []string
	for _, name := range df.Names() {
		if !isMeasure(name, df.Col(name)) {
			out = append(out, name)
		}
	}
	return out, nil
}

// Summary returns a human-readable summary of the loaded dataset,
// suitable for LLM context and tool results.
func (t *Table) Summary() (string, error) {
	meta, err := t.Metadata()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Dataset: %s\n", meta.FileName)
	fmt.Fprintf(&b, "Shape: %d rows × %d columns\n", meta.Rows, meta.Cols)
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(meta.Columns, ", "))
	fmt.Fprintf(&b, "Memory usage: %.2f KB", float64(meta.MemoryBytes)/1024)

	totalNulls := 0
	for _, n := range meta.NullCounts {
		totalNulls += n
	}
	if totalNulls > 0 {
		fmt.Fprintf(&b, "\nMissing values: %d total", totalNulls)
	}
	return b.String(), nil
}

func hasColumn(df dataframe.DataFrame, name string) bool {
	for _, n := range df.Names() {
		if n == name {
			return true
		}
	}
	return false
}
