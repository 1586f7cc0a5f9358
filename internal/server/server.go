// Package server exposes the HTTP surface: upload, job status and queue
// stats projections, and cached meeting reads.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"

	"github.com/imalyk/go-meeting-insights/internal/cache"
	"github.com/imalyk/go-meeting-insights/internal/config"
	"github.com/imalyk/go-meeting-insights/internal/meetings"
	"github.com/imalyk/go-meeting-insights/internal/queue"
)

type Server struct {
	cfg      config.Config
	logger   *slog.Logger
	queue    *queue.Service
	meetings *meetings.Store
	cache    *cache.Cache
	objects  *minio.Client
	rdb      *redis.Client
}

func New(cfg config.Config, q *queue.Service, store *meetings.Store, respCache *cache.Cache, objects *minio.Client, rdb *redis.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:      cfg,
		logger:   logger,
		queue:    q,
		meetings: store,
		cache:    respCache,
		objects:  objects,
		rdb:      rdb,
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/meetings", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/meetings", s.handleListMeetings).Methods(http.MethodGet)
	r.HandleFunc("/meetings/{id:[0-9]+}", s.handleGetMeeting).Methods(http.MethodGet)
	r.HandleFunc("/job-status/{id}", s.handleJobStatus).Methods(http.MethodGet)
	r.HandleFunc("/queue-stats", s.handleQueueStats).Methods(http.MethodGet)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	return r
}

type uploadResponse struct {
	JobID     string `json:"job_id"`
	MeetingID int64  `json:"meeting_id"`
	Status    string `json:"status"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file")
		return
	}
	defer file.Close()

	objectKey := fmt.Sprintf("%s%s", uuid.New().String(), filepath.Ext(header.Filename))
	if _, err := s.objects.PutObject(r.Context(), s.cfg.AudioBucket, objectKey, file, header.Size, minio.PutObjectOptions{
		ContentType: header.Header.Get("Content-Type"),
	}); err != nil {
		s.logger.Error("audio upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store audio")
		return
	}

	meetingID, err := s.meetings.Create(r.Context(), header.Filename, objectKey)
	if err != nil {
		s.logger.Error("meeting insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create meeting")
		return
	}

	jobID, err := s.queue.Enqueue(r.Context(), meetingID, objectKey, header.Filename)
	if err != nil {
		s.logger.Error("enqueue failed", "meeting_id", meetingID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "queue unavailable")
		return
	}

	writeJSON(w, http.StatusAccepted, uploadResponse{
		JobID:     jobID,
		MeetingID: meetingID,
		Status:    "queued",
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["id"]

	j, err := s.queue.Status(r.Context(), jobID)
	if err != nil {
		s.logger.Error("job status read failed", "job_id", jobID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read job status")
		return
	}
	if j == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.QueueStats(r.Context())
	if err != nil {
		s.logger.Error("queue stats read failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type meetingItem struct {
	ID              int64     `json:"id"`
	Filename        string    `json:"filename"`
	CreatedAt       time.Time `json:"created_at"`
	Summary         string    `json:"summary,omitempty"`
	Language        string    `json:"language,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	Keywords        []string  `json:"keywords,omitempty"`
	Transcript      string    `json:"transcript,omitempty"`
}

func meetingToItem(m *meetings.Meeting, withTranscript bool) meetingItem {
	item := meetingItem{
		ID:              m.ID,
		Filename:        m.Filename,
		CreatedAt:       m.CreatedAt,
		Summary:         m.Summary,
		Language:        m.Language,
		DurationSeconds: m.DurationSeconds,
		Keywords:        m.Keywords,
	}
	if withTranscript {
		item.Transcript = m.Transcript
	}
	return item
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	key := cache.RequestKey(r)
	var cached []meetingItem
	if s.cache != nil && s.cache.Get(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	list, err := s.meetings.List(r.Context())
	if err != nil {
		s.logger.Error("meeting list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list meetings")
		return
	}

	items := make([]meetingItem, 0, len(list))
	for _, m := range list {
		items = append(items, meetingToItem(m, false))
	}
	if s.cache != nil {
		s.cache.Set(r.Context(), key, items)
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid meeting id")
		return
	}

	key := cache.RequestKey(r)
	var cached meetingItem
	if s.cache != nil && s.cache.Get(r.Context(), key, &cached) {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	m, err := s.meetings.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, meetings.ErrNotFound) {
			writeError(w, http.StatusNotFound, "meeting not found")
			return
		}
		s.logger.Error("meeting read failed", "meeting_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read meeting")
		return
	}

	item := meetingToItem(m, true)
	if s.cache != nil {
		s.cache.Set(r.Context(), key, item)
	}
	writeJSON(w, http.StatusOK, item)
}

type healthResponse struct {
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	RedisConnected bool      `json:"redis_connected"`
	QueueLength    int64     `json:"queue_length"`
	InFlightCount  int64     `json:"in_flight_count"`
	RedisError     string    `json:"redis_error,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Timestamp: time.Now().UTC()}

	if err := s.rdb.Ping(r.Context()).Err(); err != nil {
		resp.Status = "unhealthy"
		resp.RedisError = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	resp.RedisConnected = true

	if stats, err := s.queue.QueueStats(r.Context()); err == nil {
		resp.QueueLength = stats.PendingLength
		resp.InFlightCount = stats.InFlightCount
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListenAndServe runs the HTTP server until ctx is cancelled, then shuts
// it down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", "addr", s.cfg.HTTPAddr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
