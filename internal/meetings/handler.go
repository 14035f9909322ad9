package meetings

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-notes/backend/internal/models"
	"github.com/aura-notes/backend/pkg/response"
	"github.com/aura-notes/backend/pkg/storage"
)

// Store is the subset of the repository the handler needs.
type Store interface {
	Create(ctx context.Context, filename, storagePath string) (*models.Meeting, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Meeting, error)
	List(ctx context.Context, status models.MeetingStatus, limit int) ([]models.Meeting, error)
}

// Enqueuer hands a meeting to the pipeline worker.
type Enqueuer interface {
	EnqueueMeetingPipeline(ctx context.Context, meetingID uuid.UUID) error
}

// Handler handles meeting HTTP endpoints.
type Handler struct {
	store          Store
	audio          storage.AudioStore
	queue          Enqueuer
	maxUploadBytes int64
	logger         *zap.Logger
}

// NewHandler creates a meetings handler. maxUploadMB bounds the audio upload.
func NewHandler(store Store, audio storage.AudioStore, queue Enqueuer, maxUploadMB int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadMB <= 0 {
		maxUploadMB = 200
	}
	return &Handler{
		store:          store,
		audio:          audio,
		queue:          queue,
		maxUploadBytes: int64(maxUploadMB) << 20,
		logger:         logger,
	}
}

// Register mounts the meeting routes on r.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/meetings", h.Upload)
	r.GET("/meetings", h.List)
	r.GET("/meetings/:id", h.Get)
	r.POST("/meetings/:id/run", h.Rerun)
}

type meetingView struct {
	ID            uuid.UUID            `json:"id"`
	Filename      string               `json:"filename"`
	Status        models.MeetingStatus `json:"status"`
	FailureReason *string              `json:"failure_reason,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type meetingDetail struct {
	ID            uuid.UUID            `json:"id"`
	Filename      string               `json:"filename"`
	Status        models.MeetingStatus `json:"status"`
	Language      string               `json:"language,omitempty"`
	Duration      float64              `json:"duration,omitempty"`
	Transcript    []models.Segment     `json:"transcript"`
	Summary       *models.Summary      `json:"summary"`
	ActionItems   []models.ActionItem  `json:"action_items"`
	FailureReason *string              `json:"failure_reason"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

func toView(m *models.Meeting) meetingView {
	return meetingView{
		ID:            m.ID,
		Filename:      m.Filename,
		Status:        m.Status,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toDetail(m *models.Meeting) meetingDetail {
	d := meetingDetail{
		ID:            m.ID,
		Filename:      m.Filename,
		Status:        m.Status,
		Summary:       m.Summary,
		ActionItems:   m.ActionItems,
		FailureReason: m.FailureReason,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
	if m.Transcript != nil {
		d.Language = m.Transcript.Language
		d.Duration = m.Transcript.Duration
		d.Transcript = m.Transcript.Segments
	}
	return d
}

// Upload handles POST /meetings. Stores the audio, creates the meeting and enqueues the pipeline.
func (h *Handler) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+(1<<20))
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.PayloadTooLarge(c, fmt.Sprintf("file exceeds %d MB", h.maxUploadBytes>>20))
			return
		}
		response.BadRequest(c, "multipart field 'file' is required")
		return
	}
	if fh.Size > h.maxUploadBytes {
		response.PayloadTooLarge(c, fmt.Sprintf("file exceeds %d MB", h.maxUploadBytes>>20))
		return
	}
	contentType := fh.Header.Get("Content-Type")
	if !storage.ValidateAudioFileType(contentType, fh.Filename) {
		response.BadRequest(c, "invalid audio file type")
		return
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = storage.AudioContentType(fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, "unreadable upload")
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	key := storage.MeetingAudioKey(uuid.New(), fh.Filename, contentType)
	path, err := h.audio.Save(ctx, key, f, fh.Size, contentType)
	if err != nil {
		h.logger.Error("save audio failed", zap.Error(err), zap.String("filename", fh.Filename))
		response.Internal(c, "failed to store audio")
		return
	}

	m, err := h.store.Create(ctx, fh.Filename, path)
	if err != nil {
		h.logger.Error("create meeting failed", zap.Error(err), zap.String("storage_path", path))
		response.Internal(c, "failed to create meeting")
		return
	}
	// The record is the source of truth; a lost job is picked up by resume.
	if err := h.queue.EnqueueMeetingPipeline(ctx, m.ID); err != nil {
		h.logger.Warn("enqueue pipeline failed", zap.Error(err), zap.String("meeting_id", m.ID.String()))
	}
	h.logger.Info("meeting uploaded", zap.String("meeting_id", m.ID.String()), zap.Int64("bytes", fh.Size))
	response.Created(c, gin.H{"id": m.ID, "filename": m.Filename, "status": m.Status})
}

// Get handles GET /meetings/:id.
func (h *Handler) Get(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}
	response.OK(c, toDetail(m))
}

// List handles GET /meetings?status=&limit=.
func (h *Handler) List(c *gin.Context) {
	status := models.MeetingStatus(c.Query("status"))
	if status != "" && !status.Valid() {
		response.BadRequest(c, "invalid status")
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > MaxListLimit {
			response.BadRequest(c, fmt.Sprintf("limit must be between 1 and %d", MaxListLimit))
			return
		}
		limit = n
	}
	list, err := h.store.List(c.Request.Context(), status, limit)
	if err != nil {
		h.logger.Error("list meetings failed", zap.Error(err))
		response.Internal(c, "failed to list meetings")
		return
	}
	views := make([]meetingView, 0, len(list))
	for i := range list {
		views = append(views, toView(&list[i]))
	}
	response.OK(c, views)
}

// Rerun handles POST /meetings/:id/run. Terminal meetings are returned unchanged.
func (h *Handler) Rerun(c *gin.Context) {
	m, ok := h.load(c)
	if !ok {
		return
	}
	if m.Status.Terminal() {
		response.OK(c, gin.H{"meeting": toView(m), "enqueued": false})
		return
	}
	if err := h.queue.EnqueueMeetingPipeline(c.Request.Context(), m.ID); err != nil {
		h.logger.Error("enqueue pipeline failed", zap.Error(err), zap.String("meeting_id", m.ID.String()))
		response.ServiceUnavailable(c, "failed to enqueue pipeline")
		return
	}
	response.Accepted(c, gin.H{"meeting": toView(m), "enqueued": true})
}

func (h *Handler) load(c *gin.Context) (*models.Meeting, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.BadRequest(c, "invalid meeting id")
		return nil, false
	}
	m, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get meeting failed", zap.Error(err), zap.String("meeting_id", id.String()))
		response.Internal(c, "failed to load meeting")
		return nil, false
	}
	if m == nil {
		response.NotFound(c, "meeting not found")
		return nil, false
	}
	return m, true
}
