package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/voicedesk/backend/internal/analytics"
	"github.com/voicedesk/backend/internal/db"
	"github.com/voicedesk/backend/internal/models"
	"github.com/voicedesk/backend/internal/queue"
	"github.com/voicedesk/backend/internal/storage"
)

type Handler struct {
	Store          *db.Store
	Queue          *queue.Queue
	Files          *storage.FileStore
	Redis          *redis.Client
	Validator      *validator.Validate
	Logger         zerolog.Logger
	MaxUploadBytes int64
}

type uploadForm struct {
	AgentID    string `form:"agent_id" validate:"required"`
	CustomerID string `form:"customer_id"`
	Language   string `form:"language"`
}

type uploadResponse struct {
	Message string `json:"message"`
	CallID  string `json:"call_id"`
	Status  string `json:"status"`
}

func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		writeError(c, http.StatusServiceUnavailable, "DB_UNAVAILABLE", "Database unavailable", err.Error())
		return
	}
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		writeError(c, http.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "Queue unavailable", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Upload a call recording
// @Description Accepts a WAV/MP3/OGG recording and queues it for processing
// @Tags calls
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "audio file"
// @Param agent_id formData string true "agent id"
// @Param customer_id formData string false "customer id"
// @Param language formData string false "language code, defaults to en"
// @Success 202 {object} uploadResponse
// @Failure 400 {object} map[string]any
// @Router /api/calls/upload [post]
func (h *Handler) Upload(c *gin.Context) {
	var form uploadForm
	if err := c.ShouldBind(&form); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid form data", err.Error())
		return
	}
	if err := h.Validator.Struct(form); err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "agent_id is required", err.Error())
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "audio file is required", nil)
		return
	}
	if !storage.AllowedExtension(fileHeader.Filename) {
		writeError(c, http.StatusBadRequest, "INVALID_FILE_TYPE", "Only WAV, MP3, and OGG files are supported", nil)
		return
	}
	if h.MaxUploadBytes > 0 && fileHeader.Size > h.MaxUploadBytes {
		writeError(c, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
			fmt.Sprintf("Audio file exceeds the %d MB limit", h.MaxUploadBytes>>20), nil)
		return
	}

	language := form.Language
	if language == "" {
		language = "en"
	}

	callID := uuid.NewString()

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusInternalServerError, "UPLOAD_ERROR", "Failed to read uploaded file", err.Error())
		return
	}
	defer f.Close()

	audioPath, err := h.Files.SaveAudio(f, callID, fileHeader.Filename)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "STORAGE_ERROR", "Failed to store audio", err.Error())
		return
	}

	call := models.Call{
		ID:               callID,
		AgentID:          form.AgentID,
		Language:         language,
		CreatedAt:        time.Now().UTC(),
		AudioPath:        audioPath,
		ProcessingStatus: models.StatusPending,
	}
	if form.CustomerID != "" {
		call.CustomerID = &form.CustomerID
	}

	ctx := c.Request.Context()
	if err := h.Store.CreateCall(ctx, call); err != nil {
		_, _ = h.Files.DeleteFile(callID)
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to create call", err.Error())
		return
	}

	if err := h.Queue.Enqueue(ctx, callID); err != nil {
		h.Logger.Error().Err(err).Str("call_id", callID).Msg("enqueue failed")
		_ = h.Store.FailCall(ctx, callID, "failed to enqueue processing job: "+err.Error())
		writeError(c, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to queue processing job", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, uploadResponse{
		Message: "File uploaded successfully",
		CallID:  callID,
		Status:  models.StatusPending,
	})
}

// @Summary Get a call with its segments
// @Tags calls
// @Produce json
// @Param id path string true "call id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/calls/{id} [get]
func (h *Handler) GetCall(c *gin.Context) {
	id := c.Param("id")
	call, err := h.Store.GetCall(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Call not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get call", err.Error())
		return
	}

	segments, err := h.Store.GetSegments(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get segments", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{"call": call, "segments": segments})
}

// @Summary List calls
// @Tags calls
// @Produce json
// @Param agent_id query string false "filter by agent"
// @Param status query string false "filter by processing status"
// @Param start_date query string false "RFC3339 lower bound on created_at"
// @Param end_date query string false "RFC3339 upper bound on created_at"
// @Success 200 {object} map[string]any
// @Router /api/calls [get]
func (h *Handler) ListCalls(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	filter := models.CallFilter{
		AgentID: c.Query("agent_id"),
		Status:  c.Query("status"),
		Limit:   limit,
		Offset:  offset,
	}

	var err error
	filter.StartDate, err = parseDate(c.Query("start_date"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "start_date must be RFC3339", err.Error())
		return
	}
	filter.EndDate, err = parseDate(c.Query("end_date"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "end_date must be RFC3339", err.Error())
		return
	}

	calls, err := h.Store.ListCalls(c.Request.Context(), filter)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to list calls", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": calls, "limit": filter.Limit, "offset": filter.Offset})
}

// @Summary Soft-delete a call
// @Tags calls
// @Produce json
// @Param id path string true "call id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/calls/{id} [delete]
func (h *Handler) DeleteCall(c *gin.Context) {
	id := c.Param("id")
	if err := h.Store.SoftDeleteCall(c.Request.Context(), id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Call not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to delete call", err.Error())
		return
	}

	// Audio removal is best effort; the sweeper retries leftovers.
	if _, err := h.Files.DeleteFile(id); err != nil {
		h.Logger.Warn().Err(err).Str("call_id", id).Msg("audio delete failed")
	} else {
		_ = h.Store.ClearAudioPath(c.Request.Context(), id)
	}

	c.JSON(http.StatusOK, gin.H{"message": "Call " + id + " marked as deleted"})
}

// @Summary Re-run processing for a call
// @Description Resets the call to pending and enqueues a new processing job
// @Tags calls
// @Produce json
// @Param id path string true "call id"
// @Success 202 {object} uploadResponse
// @Failure 404 {object} map[string]any
// @Router /api/calls/{id}/reprocess [post]
func (h *Handler) Reprocess(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	if err := h.Store.ResetForReprocess(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Call not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to reset call", err.Error())
		return
	}

	if err := h.Queue.Enqueue(ctx, id); err != nil {
		_ = h.Store.FailCall(ctx, id, "failed to enqueue processing job: "+err.Error())
		writeError(c, http.StatusInternalServerError, "QUEUE_ERROR", "Failed to queue processing job", err.Error())
		return
	}

	c.JSON(http.StatusAccepted, uploadResponse{
		Message: "Reprocessing queued",
		CallID:  id,
		Status:  models.StatusPending,
	})
}

// @Summary Overtalk and sentiment summaries for a call
// @Tags analytics
// @Produce json
// @Param id path string true "call id"
// @Success 200 {object} map[string]any
// @Failure 404 {object} map[string]any
// @Router /api/calls/{id}/analytics [get]
func (h *Handler) CallAnalytics(c *gin.Context) {
	id := c.Param("id")
	call, err := h.Store.GetCall(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "Call not found", nil)
			return
		}
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get call", err.Error())
		return
	}

	segments, err := h.Store.GetSegments(c.Request.Context(), id)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to get segments", err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"call_id":       call.ID,
		"status":        call.ProcessingStatus,
		"hold_time":     call.HoldTime,
		"dead_air_time": call.DeadAirTime,
		"overtalk":      analytics.SummarizeOvertalk(segments),
		"sentiment":     analytics.SummarizeSentiment(segments),
	})
}

func writeError(c *gin.Context, status int, code string, message string, details any) {
	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
			"details": details,
		},
	})
}

func parseDate(value string) (*time.Time, error) {
	if strings.TrimSpace(value) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
