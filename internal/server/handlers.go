package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/mietcheck/mietcheck/internal/orchestrator"
	"github.com/mietcheck/mietcheck/pkg/models"
)

var allowedMediaTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/png":       true,
}

// statusResponse is the poll payload. Result is present only in state
// "done", Message/ErrorKind only in state "failed".
type statusResponse struct {
	State     orchestrator.State     `json:"state"`
	Result    *models.AnalysisResult `json:"result,omitempty"`
	Message   string                 `json:"message,omitempty"`
	ErrorKind models.ErrorKind       `json:"error_kind,omitempty"`
}

func toStatusResponse(out orchestrator.Outcome) statusResponse {
	return statusResponse{
		State:     out.State,
		Result:    out.Result,
		Message:   out.Message,
		ErrorKind: out.Kind,
	}
}

func (s *Service) handleCheckout(w http.ResponseWriter, r *http.Request) {
	in, err := parseUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	checkout, err := s.orch.StartCheckout(r.Context(), in)
	if err != nil {
		log.Error().Err(err).Msg("Checkout failed")
		writeError(w, http.StatusBadGateway, "Die Zahlung konnte nicht gestartet werden.")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"session_id":   checkout.ID,
		"redirect_url": checkout.RedirectURL,
	})
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	out := s.orch.PollStatus(r.Context(), sessionID)
	writeJSON(w, http.StatusOK, toStatusResponse(out))
}

func (s *Service) handleRetry(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return
	}

	in, err := parseUpload(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out, err := s.orch.RetryWithNewUpload(r.Context(), sessionID, in)
	if err != nil {
		log.Warn().Err(err).Str("sessionId", sessionID).Msg("Retry rejected")
		writeError(w, http.StatusConflict, "Eine erneute Prüfung ist für diese Sitzung nicht möglich.")
		return
	}
	writeJSON(w, http.StatusAccepted, toStatusResponse(out))
}

func (s *Service) handleReport(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	pdf, err := s.orch.Report(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNoReport) {
			writeError(w, http.StatusNotFound, "Für diese Sitzung liegt kein Bericht vor.")
			return
		}
		log.Error().Err(err).Str("sessionId", sessionID).Msg("Report rendering failed")
		writeError(w, http.StatusInternalServerError, "Der Bericht konnte nicht erstellt werden.")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="mietcheck-bericht.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"uptime":      time.Since(s.startTime).String(),
		"active_jobs": s.orch.ActiveJobs(r.Context()),
	})
}

// parseUpload reads the multipart upload shared by checkout and retry:
// a "files" field plus optional email, plan and floor_area_sqm.
func parseUpload(w http.ResponseWriter, r *http.Request) (*models.PendingInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return nil, errors.New("upload too large or not multipart")
	}

	fileHeaders := r.MultipartForm.File["files"]
	if len(fileHeaders) == 0 {
		return nil, errors.New("no files uploaded")
	}
	if len(fileHeaders) > maxUploadFiles {
		return nil, errors.New("too many files")
	}

	in := &models.PendingInput{
		Email: r.FormValue("email"),
		Plan:  r.FormValue("plan"),
	}
	if v := r.FormValue("floor_area_sqm"); v != "" {
		sqm, err := strconv.ParseFloat(v, 64)
		if err != nil || sqm <= 0 {
			return nil, errors.New("invalid floor_area_sqm")
		}
		in.FloorAreaSqm = sqm
	}

	for _, fh := range fileHeaders {
		f, err := readUploadedFile(fh)
		if err != nil {
			return nil, err
		}
		in.Files = append(in.Files, f)
	}
	return in, nil
}

func readUploadedFile(fh *multipart.FileHeader) (models.UploadedFile, error) {
	file, err := fh.Open()
	if err != nil {
		return models.UploadedFile{}, errors.New("reading upload failed")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return models.UploadedFile{}, errors.New("reading upload failed")
	}
	if len(data) == 0 {
		return models.UploadedFile{}, errors.New("empty file: " + fh.Filename)
	}

	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" || mediaType == "application/octet-stream" {
		mediaType = http.DetectContentType(data)
	}
	if !allowedMediaTypes[mediaType] {
		return models.UploadedFile{}, errors.New("unsupported file type: " + mediaType)
	}

	return models.UploadedFile{
		Name:      fh.Filename,
		MediaType: mediaType,
		Size:      int64(len(data)),
		Data:      data,
	}, nil
}
