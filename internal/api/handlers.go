package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tabq/tabq/internal/dataset"
)

// maxUploadBytes caps multipart CSV uploads at 100 MB, matching the
// default dataset size limit.
const maxUploadBytes = 100 << 20

// datasetPathFromRequest resolves the CSV path from either a JSON body
// with a server-local path or a multipart upload, which is written to a
// temp directory keeping its original file name.
func (s *Server) datasetPathFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	ct := r.Header.Get("Content-Type")
	if strings.HasPrefix(ct, "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
			return "", false
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "file field is required")
			return "", false
		}
		defer file.Close()

		dir, err := os.MkdirTemp("", "tabq-upload-")
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return "", false
		}
		path := filepath.Join(dir, filepath.Base(header.Filename))
		dst, err := os.Create(path)
		if err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return "", false
		}
		if _, err := io.Copy(dst, io.LimitReader(file, maxUploadBytes)); err != nil {
			dst.Close()
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return "", false
		}
		if err := dst.Close(); err != nil {
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
			return "", false
		}
		return path, true
	}

	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return "", false
	}
	if req.Path == "" {
		s.errorResponse(w, http.StatusBadRequest, "path is required")
		return "", false
	}
	return req.Path, true
}

func (s *Server) handleDatasetLoad(w http.ResponseWriter, r *http.Request) {
	path, ok := s.datasetPathFromRequest(w, r)
	if !ok {
		return
	}

	if err := s.table.Load(path); err != nil {
		s.logger.Error("dataset load failed", "path", path, "error", err)
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	meta, err := s.table.Metadata()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":   "loaded",
		"metadata": meta,
	}, s.logger)
}

func (s *Server) handleDatasetInfo(w http.ResponseWriter, r *http.Request) {
	meta, err := s.table.Metadata()
	if errors.Is(err, dataset.ErrNotLoaded) {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	summary, _ := s.table.Summary()
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"metadata": meta,
		"summary":  summary,
	}, s.logger)
}

func (s *Server) handleDatasetClear(w http.ResponseWriter, r *http.Request) {
	s.table.Clear()
	s.logger.Info("dataset cleared via API")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"status": "cleared"}, s.logger)
}

func (s *Server) handleDatasetColumn(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	info, err := s.table.ColumnInfo(name)
	if err != nil {
		var unknown *dataset.ErrUnknownColumn
		switch {
		case errors.Is(err, dataset.ErrNotLoaded):
			s.errorResponse(w, http.StatusNotFound, err.Error())
		case errors.As(err, &unknown):
			s.errorResponse(w, http.StatusNotFound, err.Error())
		default:
			s.errorResponse(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, info, s.logger)
}

func (s *Server) handleConversationList(w http.ResponseWriter, r *http.Request) {
	convs := s.store.GetAllConversations()

	// Return summaries without full message content
	type ConvSummary struct {
		ID            string    `json:"id"`
		MessageCount  int       `json:"message_count"`
		QuestionCount int       `json:"question_count"`
		DatasetFile   string    `json:"dataset_file,omitempty"`
		CreatedAt     time.Time `json:"created_at"`
		UpdatedAt     time.Time `json:"updated_at"`
	}

	summaries := make([]ConvSummary, len(convs))
	for i, c := range convs {
		summaries[i] = ConvSummary{
			ID:            c.ID,
			MessageCount:  len(c.Messages),
			QuestionCount: c.QuestionCount,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		}
		if c.Dataset != nil {
			summaries[i].DatasetFile = c.Dataset.File
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversations": summaries,
		"count":         len(summaries),
	}, s.logger)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	conv := s.store.GetConversation(id)
	if conv == nil {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, conv, s.logger)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.store.Clear(id)
	if s.archive != nil {
		if err := s.archive.Delete(id); err != nil {
			s.logger.Warn("archive delete failed", "conversation", id, "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"status": "deleted", "id": id}, s.logger)
}

func (s *Server) handleConversationExport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.store.Export(id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "conversation-"+id+".json"))
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("failed to write export", "error", err)
	}
}

func (s *Server) handleConversationImport(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	id, err := s.store.Import(data)
	if err != nil {
		s.errorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"status": "imported", "id": id}, s.logger)
}

func (s *Server) handleArchiveConversations(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	limit := parseIntParam(r, "limit", 50)
	convs, err := s.archive.ListConversations(limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "list conversations: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"conversations": convs,
		"count":         len(convs),
	}, s.logger)
}

func (s *Server) handleArchiveConversationGet(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	id := r.PathValue("id")
	messages := s.archive.GetMessages(id)
	if len(messages) == 0 {
		s.errorResponse(w, http.StatusNotFound, "conversation not found")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"id":       id,
		"messages": messages,
		"count":    len(messages),
	}, s.logger)
}

func (s *Server) handleArchiveStats(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "archive not configured")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.archive.Stats(), s.logger)
}
