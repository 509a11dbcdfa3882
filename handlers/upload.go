package handlers

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/realtime"
	"github.com/camden-git/faceattend/services"
	"github.com/camden-git/faceattend/workers"
)

// MaxUploadBytes caps a single photo upload.
const MaxUploadBytes = 20 << 20

// AttendanceStatusHeader reports what happened to attendance for the recognized name.
const AttendanceStatusHeader = "X-Attendance-Status"

const (
	attendanceRecorded    = "recorded"
	attendanceAlready     = "already"
	attendanceNotFound    = "not_found"
	attendanceUnavailable = "unavailable"
	attendanceFailed      = "error"
)

// Recognizer runs the recognition pipeline for one uploaded photo.
type Recognizer interface {
	Submit(ctx context.Context, data []byte, capturedAt time.Time, uploadName string) (services.Result, error)
}

type UploadHandler struct {
	Pool      Recognizer
	Artifacts *media.Processor // nil disables saving uploads
	Events    services.EventPublisher

	SaveAnnotated bool
}

// Upload accepts a raw JPEG body from the capture device. a recognized face is
// answered with the person's name as plain text; no face with a 201 status body.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStatus(w, http.StatusRequestEntityTooLarge, "error", "photo exceeds upload limit")
			return
		}
		writeStatus(w, http.StatusBadRequest, "error", "failed to read request body")
		return
	}
	if len(data) == 0 {
		writeStatus(w, http.StatusBadRequest, "error", "empty request body")
		return
	}

	capturedAt := time.Now()
	if v := r.Header.Get("X-Captured-At"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeStatus(w, http.StatusBadRequest, "error", "X-Captured-At must be RFC3339")
			return
		}
		capturedAt = t
	}

	uploadRel, uploadName := "", ""
	if h.Artifacts != nil {
		uploadRel, err = h.Artifacts.SaveUpload(data, capturedAt)
		if err != nil {
			log.Printf("Error saving upload: %v", err)
			writeStatus(w, http.StatusInternalServerError, "error", "failed to store upload")
			return
		}
		uploadName = filepath.Base(uploadRel)
	}

	res, err := h.Pool.Submit(r.Context(), data, capturedAt, uploadName)
	defer res.Close()
	switch {
	case errors.Is(err, media.ErrInvalidImage):
		if uploadRel != "" {
			if derr := h.Artifacts.DiscardUpload(uploadRel); derr != nil {
				log.Printf("Warning: %v", derr)
			}
		}
		writeStatus(w, http.StatusBadRequest, "error", err.Error())
		return
	case errors.Is(err, workers.ErrQueueFull):
		w.Header().Set("Retry-After", "1")
		writeStatus(w, http.StatusServiceUnavailable, "error", "recognition queue is full, retry shortly")
		return
	case err != nil:
		log.Printf("Error processing upload %s: %v", uploadName, err)
		writeStatus(w, http.StatusInternalServerError, "error", err.Error())
		return
	}

	if h.Events != nil {
		h.Events.Broadcast(realtime.Event{
			Type:      realtime.EventRecognition,
			Person:    res.RecognizedName,
			FaceCount: res.FaceCount,
			Outcome:   string(res.Attendance),
		})
	}

	if res.FaceCount == 0 {
		writeStatus(w, http.StatusCreated, "not found face", "No faces detected Please try again")
		return
	}

	if h.SaveAnnotated && h.Artifacts != nil && uploadName != "" {
		if _, err := h.Artifacts.SaveAnnotated(res.Annotated, uploadName); err != nil {
			log.Printf("Warning: failed to save annotated image for %s: %v", uploadName, err)
		}
	}

	if status := attendanceStatus(res); status != "" {
		w.Header().Set(AttendanceStatusHeader, status)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, res.RecognizedName)
}

func attendanceStatus(res services.Result) string {
	switch {
	case errors.Is(res.AttendanceErr, services.ErrServiceUnavailable):
		return attendanceUnavailable
	case res.AttendanceErr != nil:
		return attendanceFailed
	}
	switch res.Attendance {
	case services.OutcomeRecorded:
		return attendanceRecorded
	case services.OutcomeAlreadyRecordedToday:
		return attendanceAlready
	case services.OutcomeNotFound:
		return attendanceNotFound
	}
	return ""
}
