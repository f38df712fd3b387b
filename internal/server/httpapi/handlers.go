// Package httpapi exposes the upload pipeline over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/chunkvault/internal/logging"
	"github.com/dmitrijs2005/chunkvault/internal/server/models"
	"github.com/dmitrijs2005/chunkvault/internal/server/services"
)

type SessionManager interface {
	CreateSession(ctx context.Context, in services.CreateSessionInput) (*models.UploadSession, error)
	GetSessionStatus(ctx context.Context, id string) (*models.SessionStatus, error)
	DeleteSession(ctx context.Context, id string) error
}

type ChunkStore interface {
	StoreChunk(ctx context.Context, in services.StoreChunkInput) (*models.UploadSession, error)
}

type Reconstructor interface {
	Reconstruct(ctx context.Context, sessionID string) (*models.FileHandle, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

const (
	headerTotalChunks  = "X-Total-Chunks"
	headerFileName     = "X-File-Name"
	headerFileType     = "X-File-Type"
	headerTargetFolder = "X-Target-Folder"
	headerGymSlug      = "X-Gym-Slug"
	headerGymName      = "X-Gym-Name"
)

type Handler struct {
	Sessions      SessionManager
	Chunks        ChunkStore
	Reconstructor Reconstructor
	Sweeper       Sweeper
	DB            Pinger
	Logger        logging.Logger

	MaxChunkSize     int64
	DefaultRetention time.Duration
}

type createSessionRequest struct {
	SessionID      string `json:"session_id"`
	FileName       string `json:"file_name"`
	FileType       string `json:"file_type"`
	TotalChunks    int    `json:"total_chunks"`
	TargetFolderID string `json:"target_folder_id"`
	GymSlug        string `json:"gym_slug"`
	GymName        string `json:"gym_name"`
}

type sessionResponse struct {
	SessionID      string `json:"session_id"`
	FileName       string `json:"file_name"`
	ReceivedChunks int    `json:"received_chunks"`
	TotalChunks    int    `json:"total_chunks"`
	IsComplete     bool   `json:"is_complete"`
}

func toSessionResponse(s *models.UploadSession) sessionResponse {
	return sessionResponse{
		SessionID:      s.ID,
		FileName:       s.OriginalFileName,
		ReceivedChunks: s.ReceivedChunks,
		TotalChunks:    s.TotalChunks,
		IsComplete:     s.IsComplete,
	}
}

// POST /api/v1/sessions
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		fail(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	s, err := h.Sessions.CreateSession(r.Context(), services.CreateSessionInput{
		SessionID:      req.SessionID,
		FileName:       req.FileName,
		FileType:       req.FileType,
		TotalChunks:    req.TotalChunks,
		TargetFolderID: req.TargetFolderID,
		GymSlug:        req.GymSlug,
		GymName:        req.GymName,
	})
	if err != nil {
		writeError(r.Context(), w, h.Logger, err)
		return
	}
	ok(w, http.StatusCreated, "session ready", toSessionResponse(s))
}

// PUT /api/v1/sessions/{id}/chunks/{index}
func (h *Handler) StoreChunk(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		fail(w, http.StatusBadRequest, "chunk index must be an integer")
		return
	}
	total, err := strconv.Atoi(r.Header.Get(headerTotalChunks))
	if err != nil {
		fail(w, http.StatusBadRequest, headerTotalChunks+" header must be an integer")
		return
	}

	body := r.Body
	if h.MaxChunkSize > 0 {
		body = http.MaxBytesReader(w, r.Body, h.MaxChunkSize)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("chunk exceeds %d bytes", tooLarge.Limit))
			return
		}
		fail(w, http.StatusBadRequest, "read chunk body: "+err.Error())
		return
	}

	s, err := h.Chunks.StoreChunk(r.Context(), services.StoreChunkInput{
		SessionID:      r.PathValue("id"),
		ChunkIndex:     index,
		TotalChunks:    total,
		Data:           data,
		FileName:       r.Header.Get(headerFileName),
		FileType:       r.Header.Get(headerFileType),
		TargetFolderID: r.Header.Get(headerTargetFolder),
		GymSlug:        r.Header.Get(headerGymSlug),
		GymName:        r.Header.Get(headerGymName),
	})
	if err != nil {
		writeError(r.Context(), w, h.Logger, err)
		return
	}
	ok(w, http.StatusOK, "chunk stored", toSessionResponse(s))
}

// GET /api/v1/sessions/{id}
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	st, err := h.Sessions.GetSessionStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, h.Logger, err)
		return
	}
	ok(w, http.StatusOK, "", st)
}

// POST /api/v1/sessions/{id}/reconstruct
func (h *Handler) Reconstruct(w http.ResponseWriter, r *http.Request) {
	fh, err := h.Reconstructor.Reconstruct(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(r.Context(), w, h.Logger, err)
		return
	}
	msg := "file delivered"
	if fh.Deduped {
		msg = "identical file already present"
	}
	ok(w, http.StatusOK, msg, fh)
}

// DELETE /api/v1/sessions/{id}
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeError(r.Context(), w, h.Logger, err)
		return
	}
	ok(w, http.StatusOK, "session deleted", nil)
}

type sweepResponse struct {
	Removed   int    `json:"removed"`
	Retention string `json:"retention"`
}

// POST /api/v1/admin/sweep?retention=24h
func (h *Handler) Sweep(w http.ResponseWriter, r *http.Request) {
	retention := h.DefaultRetention
	if v := r.URL.Query().Get("retention"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			fail(w, http.StatusBadRequest, "retention must be a positive duration")
			return
		}
		retention = d
	}

	n, err := h.Sweeper.Sweep(r.Context(), retention)
	if err != nil {
		writeError(r.Context(), w, h.Logger, err)
		return
	}
	ok(w, http.StatusOK, "sweep finished", sweepResponse{Removed: n, Retention: retention.String()})
}

// GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			h.Logger.Warn(ctx, "health check: database unreachable", "error", err)
			fail(w, http.StatusServiceUnavailable, "database unreachable")
			return
		}
	}
	ok(w, http.StatusOK, "ok", nil)
}
