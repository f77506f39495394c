package web

import (
	"net/http"

	"github.com/tabq/tabq/internal/dataset"
)

// DatasetData is the template context for the dataset explorer page.
type DatasetData struct {
	PageData
	Loaded     bool
	Metadata   *dataset.Metadata
	Columns    []*dataset.ColumnInfo
	Measures   []string
	Dimensions []string
	LoadError  string
}

// handleDataset renders the dataset explorer page.
func (s *WebServer) handleDataset(w http.ResponseWriter, r *http.Request) {
	s.renderDataset(w, r, "")
}

// handleDatasetLoad loads a CSV from a server-side path and re-renders
// the explorer with the outcome.
func (s *WebServer) handleDatasetLoad(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	path := r.FormValue("path")
	if path == "" {
		s.renderDataset(w, r, "path is required")
		return
	}
	if err := s.table.Load(path); err != nil {
		s.logger.Error("dataset load failed", "path", path, "error", err)
		s.renderDataset(w, r, err.Error())
		return
	}
	s.renderDataset(w, r, "")
}

func (s *WebServer) renderDataset(w http.ResponseWriter, r *http.Request, loadError string) {
	data := DatasetData{
		PageData: PageData{
			BrandName: s.brandName,
			ActiveNav: "dataset",
		},
		Loaded:    s.table.Loaded(),
		LoadError: loadError,
	}

	if data.Loaded {
		meta, err := s.table.Metadata()
		if err == nil {
			data.Metadata = meta
			for _, col := range meta.Columns {
				if info, err := s.table.ColumnInfo(col); err == nil {
					data.Columns = append(data.Columns, info)
				}
			}
		}
		data.Measures, _ = s.table.Measures()
		data.Dimensions, _ = s.table.Dimensions()
	}

	s.render(w, r, "dataset.html", data)
}
