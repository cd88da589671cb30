package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JingePHA/eval-ui/internal/models"
	"github.com/JingePHA/eval-ui/internal/navigation"
	"github.com/JingePHA/eval-ui/internal/storage"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snapshots, err := s.gateway.Count(r.Context())
	if err != nil {
		s.logger.Error("status: count snapshots failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	view := s.controller.Current()
	resp := map[string]interface{}{
		"snapshots": snapshots,
		"documents": view.Total,
		"position":  view.Position,
		"progress":  view.Progress,
		"state":     s.controller.State(),
		"in_flight": s.controller.InFlight(),
		"modes":     view.Modes,
	}
	if len(view.Unsaved) > 0 {
		resp["unsaved"] = view.Unsaved
	}

	if s.config != nil {
		configInfo := map[string]interface{}{
			"storage_backend":    s.config.Storage.Backend,
			"document_directory": s.config.Documents.Directory,
		}
		if s.config.Storage.Backend == "sqlite" {
			configInfo["database_path"] = s.config.Storage.DatabasePath
			if diskBytes, err := storage.DatabaseDiskUsage(s.config.Storage.DatabasePath); err == nil {
				resp["disk_usage_bytes"] = diskBytes
			}
		}
		resp["config"] = configInfo
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDocuments(w http.ResponseWriter, r *http.Request) {
	docs := s.controller.Documents()
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"documents": docs,
		"progress":  s.controller.Current().Progress,
	})
}

func (s *Server) handleDocumentFile(w http.ResponseWriter, r *http.Request) {
	id := models.DocumentID(pathParam(r, "id"))
	path, err := s.files.DocumentPath(id)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if info, err := os.Stat(path); err != nil || info.IsDir() {
		s.respondError(w, http.StatusNotFound, "document not found")
		return
	}
	http.ServeFile(w, r, path)
}

func (s *Server) handleCurrent(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.controller.Current())
}

type navigateRequest struct {
	Index *int `json:"index"`
}

type navigateResponse struct {
	Moved    bool            `json:"moved"`
	Document navigation.View `json:"document"`
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		s.respondError(w, http.StatusBadRequest, "index is required")
		return
	}
	moved, err := s.controller.RequestGoTo(r.Context(), *req.Index)
	s.respondNavigation(w, moved, err)
}

func (s *Server) handleNext(w http.ResponseWriter, r *http.Request) {
	moved, err := s.controller.RequestNext(r.Context())
	s.respondNavigation(w, moved, err)
}

func (s *Server) handlePrevious(w http.ResponseWriter, r *http.Request) {
	moved, err := s.controller.RequestPrevious(r.Context())
	s.respondNavigation(w, moved, err)
}

func (s *Server) respondNavigation(w http.ResponseWriter, moved bool, err error) {
	switch {
	case errors.Is(err, navigation.ErrOutOfRange):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, navigation.ErrClosed):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("navigation failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, navigateResponse{Moved: moved, Document: s.controller.Current()})
	}
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	err := s.controller.RequestManualSave(r.Context())
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	case errors.Is(err, navigation.ErrSave):
		s.logger.Warn("manual save failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, navigation.ErrNoDocument):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, navigation.ErrClosed):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

type rangeRequest struct {
	Start   int    `json:"start"`
	End     int    `json:"end"`
	Text    string `json:"text"`
	Comment string `json:"comment"`
}

func (s *Server) handleAddRange(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.controller.AddRange(req.Start, req.End, req.Text, req.Comment) {
		s.respondIgnored(w)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleRemoveRange(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var removed bool
	switch {
	case q.Has("start") || q.Has("end"):
		start, err1 := strconv.Atoi(q.Get("start"))
		end, err2 := strconv.Atoi(q.Get("end"))
		if err1 != nil || err2 != nil {
			s.respondError(w, http.StatusBadRequest, "start and end must be integers")
			return
		}
		removed = s.controller.RemoveRangeAt(start, end)
	case q.Has("text"):
		removed = s.controller.RemoveRange(q.Get("text"))
	default:
		s.respondError(w, http.StatusBadRequest, "text or start and end are required")
		return
	}
	if !removed {
		s.respondIgnored(w)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleRangeComment(w http.ResponseWriter, r *http.Request) {
	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.controller.SetRangeComment(req.Start, req.End, req.Comment) {
		s.respondIgnored(w)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleIndicatorComment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.controller.SetIndicatorComment(pathParam(r, "name"), req.Comment) {
		s.respondIgnored(w)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	key := pathParam(r, "key")
	data, err := s.gateway.Load(r.Context(), key)
	if errors.Is(err, storage.ErrNotFound) {
		s.respondJSON(w, http.StatusNotFound, map[string]interface{}{"annotations": []interface{}{}})
		return
	}
	if err != nil {
		s.logger.Error("load snapshot failed", zap.String("key", key), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// pathParam returns the unescaped route parameter.
func pathParam(r *http.Request, name string) string {
	v := chi.URLParam(r, name)
	if u, err := url.PathUnescape(v); err == nil {
		return u
	}
	return v
}

func (s *Server) respondIgnored(w http.ResponseWriter) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
