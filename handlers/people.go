package handlers

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/camden-git/faceattend/gallery"
	"github.com/camden-git/faceattend/media"
	"github.com/camden-git/faceattend/models"
)

// PeopleHandler exposes gallery curation: listing enrolled people and adding samples.
type PeopleHandler struct {
	Gallery *gallery.Gallery
}

func personParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "name")
	name, err := url.PathUnescape(raw)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidName, "malformed person name")
		return "", false
	}
	name, err = gallery.NormalizeName(name)
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidName, err.Error())
		return "", false
	}
	return name, true
}

func (h *PeopleHandler) ListPeople(w http.ResponseWriter, r *http.Request) {
	people, err := h.Gallery.ListPersons(r.Context())
	if err != nil {
		log.Printf("Error listing gallery: %v", err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to list people")
		return
	}
	if people == nil {
		people = []models.PersonSummary{}
	}
	writeJSON(w, http.StatusOK, people)
}

func (h *PeopleHandler) GetPerson(w http.ResponseWriter, r *http.Request) {
	name, ok := personParam(w, r)
	if !ok {
		return
	}
	samples, err := h.Gallery.SampleInfos(r.Context(), name)
	if err != nil {
		log.Printf("Error listing samples of %s: %v", name, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to list samples")
		return
	}
	if len(samples) == 0 {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "person has no samples")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    name,
		"samples": samples,
	})
}

// AddSample enrolls the raw photo body as a new sample of the person. the
// photo must contain a detectable face; only the face region is stored.
func (h *PeopleHandler) AddSample(w http.ResponseWriter, r *http.Request) {
	name, ok := personParam(w, r)
	if !ok {
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxUploadBytes))
	if err != nil {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "failed to read photo")
		return
	}

	info, err := h.Gallery.AddSampleBytes(r.Context(), name, data)
	switch {
	case errors.Is(err, media.ErrInvalidImage):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidImage, err.Error())
	case errors.Is(err, gallery.ErrInvalidName):
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidName, err.Error())
	case errors.Is(err, gallery.ErrNoFaceInSample):
		WriteAPIError(w, http.StatusUnprocessableEntity, CodeNoFace, "no face detected in photo")
	case err != nil:
		log.Printf("Error adding sample for %s: %v", name, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to store sample")
	default:
		writeJSON(w, http.StatusCreated, info)
	}
}

// GetSample serves the stored PNG of one sample.
func (h *PeopleHandler) GetSample(w http.ResponseWriter, r *http.Request) {
	name, ok := personParam(w, r)
	if !ok {
		return
	}
	seq, err := strconv.Atoi(chi.URLParam(r, "seq"))
	if err != nil || seq <= 0 {
		WriteAPIError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid sample number")
		return
	}

	data, err := h.Gallery.SampleData(name, seq)
	if errors.Is(err, media.ErrSampleNotFound) {
		WriteAPIError(w, http.StatusNotFound, CodeNotFound, "sample not found")
		return
	}
	if err != nil {
		log.Printf("Error reading sample %s #%d: %v", name, seq, err)
		WriteAPIError(w, http.StatusInternalServerError, CodeInternal, "failed to read sample")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
