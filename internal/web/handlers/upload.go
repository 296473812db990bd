package handlers

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"

	"github.com/kozaktomas/face-monitor/internal/capture"
	"github.com/kozaktomas/face-monitor/internal/constants"
)

// Upload analyzes a chosen image file sent as the multipart field "image".
func (h *SessionsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	s := h.lookup(w, r)
	if s == nil {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize)
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	file, header, err := r.FormFile(constants.ImageFormField)
	if err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("multipart field %q is required", constants.ImageFormField))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	img, err := capture.FromBytes(filepath.Base(header.Filename), data)
	if err != nil {
		if errors.Is(err, capture.ErrEmptyImage) {
			respondError(w, http.StatusBadRequest, "uploaded file is empty")
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	log.Printf("Session %s: analyzing uploaded file %s (%d bytes)", s.ID(), sanitizeForLog(img.Name), len(img.Data))
	if err := s.ChooseFile(img); err != nil {
		respondSessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, s.Snapshot())
}
