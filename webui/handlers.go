package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"sd_backend/catalog"
	"sd_backend/core"
	"sd_backend/db"
	"sd_backend/imagegen"
	"sd_backend/metrics"
	"sd_backend/sdruntime"
	"sd_backend/shutdown"
)

// RootResponse is the body of GET /.
type RootResponse struct {
	Status string `json:"status"`
	Device string `json:"device"`
}

// VerifyModelRequest is the body of POST /models/verify.
type VerifyModelRequest struct {
	ModelPath string `json:"model_path"`
}

// VerifyModelResponse is the reply to POST /models/verify.
type VerifyModelResponse struct {
	Exists bool `json:"exists"`
}

// DeleteImageResponse is the reply to DELETE /images/{id}.
type DeleteImageResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	System           metrics.SystemStatus `json:"system"`
	Uptime           string               `json:"uptime"`
	Tasks            metrics.TaskMetrics  `json:"tasks"`
	RecentTasks      []metrics.TaskRecord `json:"recent_tasks"`
	Cache            sdruntime.CacheStats `json:"cache"`
	GPU              *metrics.GPUMetrics  `json:"gpu,omitempty"`
	GPUAvailable     bool                 `json:"gpu_available"`
	GPUError         string               `json:"gpu_error,omitempty"`
	Events           HubStats             `json:"events"`
	ActiveOperations int64                `json:"active_operations"`
}

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Generations []db.GenerationRecord `json:"generations"`
	Count       int                   `json:"count"`
}

const recentTaskLimit = 10

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, RootResponse{Status: "ok", Device: s.config.Device})
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	folders, err := s.services.Models.Scan()
	if err != nil {
		s.logger.Error("model scan failed",
			zap.String("request_id", core.RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list models")
		return
	}
	writeJSON(w, http.StatusOK, folders)
}

func (s *Server) handleVerifyModel(w http.ResponseWriter, r *http.Request) {
	var req VerifyModelRequest
	if err := s.decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ModelPath) == "" {
		writeError(w, http.StatusBadRequest, "model_path is required")
		return
	}
	writeJSON(w, http.StatusOK, VerifyModelResponse{Exists: s.services.Models.Verify(req.ModelPath)})
}

func (s *Server) handleModelMetadata(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	meta, err := s.services.Models.Metadata(id)
	if err != nil {
		if errors.Is(err, catalog.ErrModelNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Model %s not found", id))
			return
		}
		s.logger.Error("model metadata failed",
			zap.String("request_id", core.RequestIDFromContext(r.Context())),
			zap.String("model", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read model metadata")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	params := imagegen.DefaultParameters()
	if err := s.decodeJSON(w, r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var images []imagegen.GeneratedImage
	err := s.services.Operations.WrapOperation(r.Context(), "generate", func(ctx context.Context) error {
		var genErr error
		// A client disconnect does not abort a batch in progress.
		images, genErr = s.services.Generator.Generate(context.WithoutCancel(ctx), params)
		return genErr
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, images)
	case errors.Is(err, imagegen.ErrInvalidParams):
		writeError(w, http.StatusBadRequest, invalidParamsDetail(err))
	case errors.Is(err, imagegen.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Model %s not found", params.Model))
	case errors.Is(err, shutdown.ErrTrackerClosed):
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
	default:
		// The processor has already logged the cause.
		writeError(w, http.StatusInternalServerError, "Image generation failed")
	}
}

func (s *Server) handleSaveToGallery(w http.ResponseWriter, r *http.Request) {
	var img imagegen.GeneratedImage
	if err := s.decodeJSON(w, r, &img); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := s.services.Images.Get(id)
	if err != nil {
		if errors.Is(err, imagegen.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Image %s not found", id))
			return
		}
		s.logger.Error("image read failed",
			zap.String("request_id", core.RequestIDFromContext(r.Context())),
			zap.String("image_id", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read image")
		return
	}
	writeJSON(w, http.StatusOK, img)
}

func (s *Server) handleDeleteImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	start := time.Now()
	err := s.services.Images.Delete(id)

	task := metrics.TaskRecord{
		ID:        core.RequestIDFromContext(r.Context()),
		Type:      metrics.TaskTypeDelete,
		Status:    metrics.TaskStatusSuccess,
		StartTime: start,
		EndTime:   time.Now(),
	}
	task.Duration = task.EndTime.Sub(start)
	if err != nil {
		task.Status = metrics.TaskStatusError
		task.ErrorKind = imagegen.Kind(err)
		task.ErrorMsg = err.Error()
	} else {
		task.Images = 1
	}
	s.services.Metrics.RecordTask(task)

	switch {
	case err == nil:
		s.services.Events.PublishImageDeleted(id)
		writeJSON(w, http.StatusOK, DeleteImageResponse{Status: "deleted"})
	case errors.Is(err, imagegen.ErrNotFound):
		writeError(w, http.StatusNotFound, fmt.Sprintf("Image %s not found", id))
	default:
		s.logger.Error("image delete failed",
			zap.String("request_id", task.ID),
			zap.String("image_id", id),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to delete image")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	system := s.services.Metrics.GetSystemStatus()
	resp := StatusResponse{
		System:           system,
		Uptime:           core.FormatDuration(system.Uptime),
		Tasks:            s.services.Metrics.GetTaskMetrics(),
		RecentTasks:      s.services.Metrics.GetRecentTasks(recentTaskLimit),
		Cache:            s.services.Cache.Stats(),
		Events:           s.services.Events.Stats(),
		ActiveOperations: s.services.Operations.ActiveOperations(),
	}
	if gpu := s.services.GPU; gpu != nil {
		resp.GPUAvailable = gpu.IsAvailable()
		if resp.GPUAvailable {
			snapshot := gpu.GetCurrentMetrics()
			resp.GPU = &snapshot
		} else if err := gpu.GetLastError(); err != nil {
			resp.GPUError = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.services.History == nil {
		writeError(w, http.StatusServiceUnavailable, "History is not enabled")
		return
	}

	limit := s.config.HistoryDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > s.config.HistoryMaxLimit {
		limit = s.config.HistoryMaxLimit
	}

	records, err := s.services.History.QueryRecentGenerations(r.Context(), limit)
	if err != nil {
		s.logger.Error("history query failed",
			zap.String("request_id", core.RequestIDFromContext(r.Context())),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to read history")
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Generations: records, Count: len(records)})
}

// decodeJSON reads a size-limited JSON body into dst. Unknown fields are
// ignored.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %v", err)
	}
	return nil
}

// invalidParamsDetail drops the error chain prefixes so the client sees
// only the parameter problem.
func invalidParamsDetail(err error) string {
	msg := err.Error()
	marker := imagegen.ErrInvalidParams.Error() + ": "
	if i := strings.LastIndex(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return msg
}

// noDirListing answers directory requests with 404.
func noDirListing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "" || strings.HasSuffix(r.URL.Path, "/") {
			writeError(w, http.StatusNotFound, "Not Found")
			return
		}
		next.ServeHTTP(w, r)
	})
}
