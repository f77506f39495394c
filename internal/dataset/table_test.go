package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func loadSales(t *testing.T) *Table {
	t.Helper()
	tbl := New(Options{}, nil)
	if err := tbl.Load(filepath.Join("testdata", "sales.csv")); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return tbl
}

func TestLoadValidation(t *testing.T) {
	dir := t.TempDir()

	notCSV := filepath.Join(dir, "data.txt")
	if err := os.WriteFile(notCSV, []byte("a,b\n1,2\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	big := filepath.Join(dir, "big.csv")
	if err := os.WriteFile(big, make([]byte, 2*1024*1024), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		opts Options
		path string
	}{
		{name: "missing file", path: filepath.Join(dir, "nope.csv")},
		{name: "wrong extension", path: notCSV},
		{name: "directory", path: dir + ".csv"},
		{name: "over size cap", opts: Options{MaxFileSizeMB: 1}, path: big},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := New(tt.opts, nil)
			if err := tbl.Load(tt.path); err == nil {
				t.Error("expected error, got nil")
			}
			if tbl.Loaded() {
				t.Error("table should not report loaded after failed Load")
			}
		})
	}
}

func TestNotLoaded(t *testing.T) {
	tbl := New(Options{}, nil)

	if _, err := tbl.Metadata(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Metadata error = %v, want ErrNotLoaded", err)
	}
	if _, err := tbl.Summary(); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("Summary error = %v, want ErrNotLoaded", err)
	}
	if _, err := tbl.ColumnStats("price"); !errors.Is(err, ErrNotLoaded) {
		t.Errorf("ColumnStats error = %v, want ErrNotLoaded", err)
	}
}

func TestMetadata(t *testing.T) {
	tbl := loadSales(t)

	meta, err := tbl.Metadata()
	if err != nil {
		t.Fatalf("Metadata: %v", err)
	}

	if meta.Rows != 12 {
		t.Errorf("Rows = %d, want 12", meta.Rows)
	}
	if meta.Cols != 5 {
		t.Errorf("Cols = %d, want 5", meta.Cols)
	}
	if meta.FileName != "sales.csv" {
		t.Errorf("FileName = %q", meta.FileName)
	}
	want := []string{"order_id", "product", "region", "price", "quantity"}
	for i, col := range want {
		if meta.Columns[i] != col {
			t.Errorf("Columns[%d] = %q, want %q", i, meta.Columns[i], col)
		}
	}
	if len(meta.SampleRows) != 3 {
		t.Errorf("SampleRows = %d rows, want 3", len(meta.SampleRows))
	}
	if meta.Types["product"] != "string" {
		t.Errorf("Types[product] = %q, want string", meta.Types["product"])
	}
	if meta.Types["price"] != "float" {
		t.Errorf("Types[price] = %q, want float", meta.Types["price"])
	}
}

func TestSummary(t *testing.T) {
	tbl := loadSales(t)

	summary, err := tbl.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}

	for _, want := range []string{"sales.csv", "12 rows", "5 columns", "product"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

func TestColumnInfo(t *testing.T) {
	tbl := loadSales(t)

	tests := []struct {
		column      string
		wantMeasure bool
		wantDesc    string // substring
	}{
		{"order_id", false, "identifier"},
		{"product", false, ""},
		{"price", true, "Monetary"},
		{"quantity", true, "Numeric"},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			info, err := tbl.ColumnInfo(tt.column)
			if err != nil {
				t.Fatalf("ColumnInfo: %v", err)
			}
			if info.IsMeasure != tt.wantMeasure {
				t.Errorf("IsMeasure = %v, want %v", info.IsMeasure, tt.wantMeasure)
			}
			if tt.wantDesc != "" && !strings.Contains(info.Description, tt.wantDesc) {
				t.Errorf("Description = %q, want substring %q", info.Description, tt.wantDesc)
			}
			if len(info.SampleValues) == 0 {
				t.Error("expected sample values")
			}
			if info.Type == "" {
				t.Error("expected a column type")
			}
		})
	}
}

func TestColumnInfoUnknown(t *testing.T) {
	tbl := loadSales(t)

	_, err := tbl.ColumnInfo("nonexistent")
	var unknownErr *ErrUnknownColumn
	if !errors.As(err, &unknownErr) {
		t.Fatalf("error = %v, want ErrUnknownColumn", err)
	}
	if !strings.Contains(unknownErr.Error(), "product") {
		t.Errorf("error should list available columns: %v", unknownErr)
	}
}

func TestColumnInfoUniqueCounts(t *testing.T) {
	tbl := loadSales(t)

	info, err := tbl.ColumnInfo("product")
	if err != nil {
		t.Fatal(err)
	}
	if info.UniqueCount != 4 {
		t.Errorf("UniqueCount = %d, want 4", info.UniqueCount)
	}

	info, err = tbl.ColumnInfo("region")
	if err != nil {
		t.Fatal(err)
	}
	if info.UniqueCount != 4 {
		t.Errorf("region UniqueCount = %d, want 4", info.UniqueCount)
	}
}

func TestMeasuresAndDimensions(t *testing.T) {
	tbl := loadSales(t)

	measures, err := tbl.Measures()
	if err != nil {
		t.Fatal(err)
	}
	dims, err := tbl.Dimensions()
	if err != nil {
		t.Fatal(err)
	}

	wantMeasures := map[string]bool{"price": true, "quantity": true}
	if len(measures) != len(wantMeasures) {
		t.Errorf("Measures = %v, want price and quantity", measures)
	}
	for _, m := range measures {
		if !wantMeasures[m] {
			t.Errorf("unexpected measure %q", m)
		}
	}

	// order_id is numeric but identifier-like, so it is a dimension
	foundID := false
	for _, d := range dims {
		if d == "order_id" {
			foundID = true
		}
	}
	if !foundID {
		t.Errorf("order_id should be a dimension, got dims %v", dims)
	}
}

func TestClear(t *testing.T) {
	tbl := loadSales(t)
	if !tbl.Loaded() {
		t.Fatal("expected loaded")
	}
	tbl.Clear()
	if tbl.Loaded() {
		t.Error("expected cleared")
	}
	if tbl.Path() != "" {
		t.Errorf("Path = %q after Clear", tbl.Path())
	}
}
